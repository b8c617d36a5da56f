// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides streaming clients for the supported model backends.
//
// Every backend (hosted OpenAI API, local Ollama daemon) implements the
// Provider interface. The generation pipeline only ever talks to Provider,
// so adding a backend means adding an implementation, not touching the
// orchestrator.
package llm

import (
	"context"
	"strings"
)

// Message is one role/content turn of a conversation, in the shape every
// backend understands.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamEventType represents the type of streaming event.
type StreamEventType string

const (
	// StreamEventToken carries one incremental text fragment.
	StreamEventToken StreamEventType = "token"
)

// StreamEvent is a single event produced while streaming a completion.
type StreamEvent struct {
	Type    StreamEventType
	Content string
}

// StreamCallback receives events as they are produced by a backend.
//
// The callback is invoked in fragment order, from the goroutine driving the
// stream. Returning a non-nil error aborts the stream (the provider releases
// its transport and returns that error from ChatStream).
type StreamCallback func(event StreamEvent) error

// Provider is the interface every model backend must satisfy.
type Provider interface {
	// Name returns the provider identifier, e.g. "openai" or "ollama".
	// Used for selection, logging, and metrics labels.
	Name() string

	// ChatStream sends the conversation to the backend and streams the
	// completion fragment by fragment through callback. It returns once the
	// backend signals completion, the context is cancelled, the callback
	// returns an error, or the transport fails. Failures are reported as
	// *ProviderError.
	ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) error
}

// Collect runs a full stream and returns the concatenated fragments.
// Useful for callers that do not need incremental output, and in tests.
func Collect(ctx context.Context, p Provider, model string, messages []Message) (string, error) {
	var sb strings.Builder
	err := p.ChatStream(ctx, model, messages, func(event StreamEvent) error {
		if event.Type == StreamEventToken {
			sb.WriteString(event.Content)
		}
		return nil
	})
	return sb.String(), err
}
