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
	"fmt"
	"log/slog"
	"strings"
)

// SelectorConfig holds the deploy-time defaults consulted when a request
// leaves the provider or model unspecified.
type SelectorConfig struct {
	// DefaultProvider is the registry name used when a request names no
	// provider. Typically "openai" or "ollama".
	DefaultProvider string

	// OpenAIModel is the model used for openai requests with no explicit
	// model.
	OpenAIModel string

	// OllamaModel is the model used for ollama requests with no explicit
	// model.
	OllamaModel string
}

// Selector resolves a request's provider and model fields to a concrete
// Provider and model identifier.
//
// Resolution runs in two steps. The model resolves first: an explicit
// request model is kept verbatim, otherwise the candidate provider's
// configured default fills in. The provider then resolves from the request
// (or the configured default), but the resolved model name can override it:
// a model containing "gpt" or "openai" always routes to openai, and a model
// containing "llama" or "mistral" always routes to ollama, regardless of
// what the request asked for. The override keeps a mismatched pairing like
// provider=ollama, model=gpt-4 from reaching a backend that cannot serve it.
type Selector struct {
	config    SelectorConfig
	providers map[string]Provider
}

// NewSelector builds a selector over the given providers.
//
// # Inputs
//   - config: deploy-time defaults. DefaultProvider must be non-empty.
//   - providers: the available backends, keyed by their Name().
func NewSelector(config SelectorConfig, providers ...Provider) *Selector {
	if config.DefaultProvider == "" {
		panic("llm: SelectorConfig.DefaultProvider must be set")
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			panic("llm: nil provider passed to NewSelector")
		}
		byName[p.Name()] = p
	}
	return &Selector{config: config, providers: byName}
}

// defaultModel returns the configured default model for a provider name.
func (s *Selector) defaultModel(provider string) string {
	switch provider {
	case "openai":
		return s.config.OpenAIModel
	case "ollama":
		return s.config.OllamaModel
	default:
		return ""
	}
}

// ResolveModel returns the model identifier a request resolves to. An
// explicit requestedModel is kept verbatim; otherwise the candidate
// provider's default fills in.
func (s *Selector) ResolveModel(requestedProvider, requestedModel string) string {
	if requestedModel != "" {
		return requestedModel
	}
	candidate := requestedProvider
	if candidate == "" {
		candidate = s.config.DefaultProvider
	}
	return s.defaultModel(candidate)
}

// EffectiveProvider returns the provider name a request routes to after the
// model-name override is applied. See the Selector doc for the rules.
func (s *Selector) EffectiveProvider(requestedProvider, resolvedModel string) string {
	candidate := requestedProvider
	if candidate == "" {
		candidate = s.config.DefaultProvider
	}
	lower := strings.ToLower(resolvedModel)
	switch {
	case strings.Contains(lower, "gpt") || strings.Contains(lower, "openai"):
		return "openai"
	case strings.Contains(lower, "llama") || strings.Contains(lower, "mistral"):
		return "ollama"
	}
	return candidate
}

// Resolve maps a request's provider and model fields to a registered
// Provider and the model identifier to send it.
//
// # Outputs
//   - Provider: the backend to stream from.
//   - string: the resolved model identifier. May be empty if neither the
//     request nor the config named one; backends reject that themselves.
//   - error: non-nil when the effective provider is not registered.
func (s *Selector) Resolve(requestedProvider, requestedModel string) (Provider, string, error) {
	model := s.ResolveModel(requestedProvider, requestedModel)
	name := s.EffectiveProvider(requestedProvider, model)
	if requestedProvider != "" && name != requestedProvider {
		slog.Debug("Model name overrides requested provider",
			"requested_provider", requestedProvider, "model", model, "provider", name)
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, "", fmt.Errorf("unsupported provider %q", name)
	}
	return p, model, nil
}
