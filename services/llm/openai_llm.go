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
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OpenAIClient streams chat completions from the OpenAI API (or any
// API-compatible endpoint).
type OpenAIClient struct {
	client *openai.Client
}

var _ Provider = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for the OpenAI chat completions API.
//
// # Description
//
//	An empty apiKey produces a client that fails with a config error the
//	first time it is asked to stream. Construction never fails so that the
//	provider registry can be built unconditionally at startup.
//
// # Inputs
//   - apiKey: OpenAI API key. May be empty.
//
// # Outputs
//   - *OpenAIClient: always non-nil.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	if apiKey == "" {
		return &OpenAIClient{}
	}
	return &OpenAIClient{client: openai.NewClient(apiKey)}
}

// NewOpenAIClientWithConfig creates a client from a full client config.
// Used by tests to point the client at a mock server.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the registry name of this provider.
func (c *OpenAIClient) Name() string { return "openai" }

// ChatStream streams a chat completion, invoking callback once per token
// fragment.
//
// # Description
//
//	Opens a streaming completion request and forwards each non-empty
//	content delta to callback. Returns nil on normal end of stream, the
//	callback's error if the callback aborts, or a ProviderError if the
//	request or stream fails. The error chain is preserved so callers can
//	test for context.Canceled.
//
// # Inputs
//   - ctx: cancels the request and the stream read loop.
//   - model: model identifier passed through to the API.
//   - messages: conversation history, oldest first.
//   - callback: receives one StreamEvent per token fragment.
//
// # Outputs
//   - error: nil on success.
func (c *OpenAIClient) ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) error {
	ctx, span := otel.Tracer("tidewater.llm").Start(ctx, "openai.ChatStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model))

	if c.client == nil {
		err := configError("openai", "OPENAI_API_KEY is not set")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Stream:   true,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		wrapped := transportError("openai", err, "failed to open completion stream")
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		return wrapped
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			wrapped := transportError("openai", err, "stream read failed")
			span.RecordError(wrapped)
			span.SetStatus(codes.Error, wrapped.Error())
			return wrapped
		}
		if len(resp.Choices) == 0 {
			continue
		}
		content := resp.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if err := callback(StreamEvent{Type: StreamEventToken, Content: content}); err != nil {
			return err
		}
	}
}
