// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes provider failures so callers can branch on them
// without string matching.
type ErrorKind string

const (
	// ErrorKindConfig means the provider is missing credentials or an
	// endpoint. Surfaced when the provider is invoked, not at selection time.
	ErrorKindConfig ErrorKind = "config"

	// ErrorKindTransport means the backend was unreachable, returned a
	// non-success status, or the stream broke mid-flight.
	ErrorKindTransport ErrorKind = "transport"

	// ErrorKindDecode means a response payload could not be parsed.
	// Individual malformed stream lines are skipped, not reported; this kind
	// is reserved for payloads that make the whole exchange unusable.
	ErrorKindDecode ErrorKind = "decode"
)

// ProviderError is the error type returned by Provider implementations.
// It always carries a human-readable message suitable for the error frame
// sent to the client.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// configError reports a missing credential or endpoint for provider.
func configError(provider, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrorKindConfig, Message: fmt.Sprintf(format, args...)}
}

// transportError wraps a network or status failure from provider.
func transportError(provider string, err error, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrorKindTransport, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsProviderError extracts a *ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
