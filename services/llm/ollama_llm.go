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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("tidewater.llm.ollama")

// maxStreamLineSize caps a single NDJSON line. Ollama fragments are small;
// anything past this indicates a broken stream.
const maxStreamLineSize = 1 << 20

// OllamaClient streams chat responses from a local Ollama server over its
// newline-delimited JSON chat API.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
}

var _ Provider = (*OllamaClient)(nil)

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatChunk struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// NewOllamaClient creates a client for the Ollama chat API.
//
// # Description
//
//	An empty baseURL produces a client that fails with a config error when
//	asked to stream, mirroring the OpenAI client so the provider registry
//	can be built unconditionally.
//
// # Inputs
//   - baseURL: Ollama server root, e.g. http://localhost:11434. A trailing
//     slash is stripped.
//   - timeout: per-request timeout covering the whole stream. Zero means
//     a 5 minute default.
func NewOllamaClient(baseURL string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Name returns the registry name of this provider.
func (o *OllamaClient) Name() string { return "ollama" }

// ChatStream streams a chat response from /api/chat, invoking callback once
// per content fragment.
//
// # Description
//
//	Sends the conversation with stream enabled and reads the
//	newline-delimited JSON response line by line. Lines that do not parse
//	or carry no message content are skipped. A non-2xx status is a hard
//	failure before any fragment is delivered. Returns nil when the server
//	reports done or closes the stream cleanly, the callback's error if the
//	callback aborts, and a ProviderError otherwise.
//
// # Inputs
//   - ctx: cancels the request and the read loop.
//   - model: model identifier passed through to Ollama.
//   - messages: conversation history, oldest first.
//   - callback: receives one StreamEvent per content fragment.
//
// # Outputs
//   - error: nil on success.
func (o *OllamaClient) ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) error {
	ctx, span := tracer.Start(ctx, "OllamaClient.ChatStream")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	if o.baseURL == "" {
		err := configError("ollama", "OLLAMA_BASE_URL is not set")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	payload := ollamaChatRequest{Model: model, Messages: messages, Stream: true}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request to Ollama: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create chat request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		wrapped := transportError("ollama", err, "failed to reach Ollama at %s", o.baseURL)
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		return wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("Ollama chat returned an error", "status_code", resp.StatusCode,
			"response", string(body))
		wrapped := transportError("ollama", nil, "chat failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		return wrapped
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Malformed fragments are skipped rather than aborting a
			// stream that may still carry useful tokens.
			slog.Warn("Skipping malformed Ollama stream line", "error", err)
			continue
		}
		if chunk.Message.Content != "" {
			if err := callback(StreamEvent{Type: StreamEventToken, Content: chunk.Message.Content}); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wrapped := transportError("ollama", err, "stream read failed")
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		return wrapped
	}
	return nil
}
