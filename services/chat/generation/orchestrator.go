// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/tidewater/services/chat/datatypes"
	"github.com/AleutianAI/tidewater/services/llm"
)

var tracer = otel.Tracer("tidewater.generation")

// DefaultErrorContent fills an assistant message that failed before any
// fragment arrived.
const DefaultErrorContent = "Error generating response"

// Store is the persistence surface the orchestrator needs.
type Store interface {
	CreateMessage(ctx context.Context, msg *datatypes.Message) error
	UpdateMessage(ctx context.Context, id string, update *datatypes.MessageUpdate) (*datatypes.Message, error)
	ListMessagesByChat(ctx context.Context, chatID string) ([]*datatypes.Message, error)
	TouchChat(ctx context.Context, id string) error
}

// Emitter receives the stream frames for one generation turn. The SSE
// writer in the handlers package satisfies this.
type Emitter interface {
	WriteChunk(messageID, chunk string) error
	WriteDone(messageID string) error
	WriteError(messageID, errMsg string) error
}

// Orchestrator runs generation turns against a store and a provider
// selector.
//
// A turn moves through a fixed lifecycle: the assistant placeholder is
// created in streaming status alongside the user message, fragments flow
// to the emitter without touching the store, and exactly one terminal
// update lands when streaming ends, successfully or not.
type Orchestrator struct {
	store    Store
	selector *llm.Selector
}

// NewOrchestrator creates an orchestrator. Panics on nil dependencies;
// wiring bugs should fail at startup, not per request.
func NewOrchestrator(store Store, selector *llm.Selector) *Orchestrator {
	if store == nil {
		panic("generation: store must not be nil")
	}
	if selector == nil {
		panic("generation: selector must not be nil")
	}
	return &Orchestrator{store: store, selector: selector}
}

// CreateTurn persists the user message and the assistant placeholder for
// one generation turn.
//
// # Description
//
//	Runs before any stream bytes are sent, so failures here surface as
//	plain HTTP errors. The placeholder is created in streaming status with
//	empty content and the resolved model name, parented to the user
//	message; the client can render the pending reply from the placeholder
//	alone.
//
// # Inputs
//   - ctx: cancels the store writes.
//   - req: validated request. Role must be user.
//
// # Outputs
//   - *datatypes.Message: the stored user message.
//   - *datatypes.Message: the assistant placeholder, in streaming status.
//   - error: non-nil if persistence fails.
func (o *Orchestrator) CreateTurn(ctx context.Context, req *datatypes.MessageCreate) (*datatypes.Message, *datatypes.Message, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.CreateTurn")
	defer span.End()

	now := time.Now().UTC()
	userMsg := &datatypes.Message{
		ID:          uuid.NewString(),
		ChatID:      req.ChatID,
		ParentID:    req.ParentID,
		ChildrenIDs: []string{},
		Role:        datatypes.RoleUser,
		Content:     req.Content,
		Files:       req.Files,
		Timestamp:   now,
		Status:      datatypes.StatusCompleted,
	}
	if err := o.store.CreateMessage(ctx, userMsg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	placeholder := &datatypes.Message{
		ID:          uuid.NewString(),
		ChatID:      req.ChatID,
		ParentID:    userMsg.ID,
		ChildrenIDs: []string{},
		Role:        datatypes.RoleAssistant,
		Content:     "",
		Model:       o.selector.ResolveModel(req.Provider, req.Model),
		Timestamp:   now.Add(time.Microsecond),
		Status:      datatypes.StatusStreaming,
	}
	if err := o.store.CreateMessage(ctx, placeholder); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	if err := o.store.TouchChat(ctx, req.ChatID); err != nil {
		slog.Warn("Failed to bump chat activity", "chat_id", req.ChatID, "error", err)
	}

	span.SetAttributes(
		attribute.String("chat.id", req.ChatID),
		attribute.String("message.id", placeholder.ID),
	)
	return userMsg, placeholder, nil
}

// Run streams the assistant reply for a prepared turn.
//
// # Description
//
//	Assembles the conversation context, resolves the provider, and
//	forwards fragments to the emitter as they arrive. No store writes
//	happen per fragment. When streaming ends, exactly one terminal update
//	commits the placeholder: completed with the accumulated content on
//	success, error with the partial content (or DefaultErrorContent if
//	nothing arrived) on failure. The terminal write runs detached from
//	ctx's cancellation, so a client disconnect cannot leave the message
//	stuck in streaming status.
//
// # Inputs
//   - ctx: cancels streaming. Terminal commits survive its cancellation.
//   - req: the request that started the turn.
//   - assistantID: the placeholder's message id.
//   - emitter: frame sink. An emitter write error aborts streaming.
//
// # Outputs
//   - error: the failure that ended the turn, nil on success. The terminal
//     store state is already committed either way.
func (o *Orchestrator) Run(ctx context.Context, req *datatypes.MessageCreate, assistantID string, emitter Emitter) error {
	ctx, span := tracer.Start(ctx, "Orchestrator.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.id", req.ChatID),
		attribute.String("message.id", assistantID),
	)

	var accumulated strings.Builder

	messages, err := BuildContext(ctx, o.store, req.ChatID)
	if err != nil {
		return o.fail(ctx, span, assistantID, emitter, &accumulated, err)
	}

	provider, model, err := o.selector.Resolve(req.Provider, req.Model)
	if err != nil {
		return o.fail(ctx, span, assistantID, emitter, &accumulated, err)
	}
	span.SetAttributes(
		attribute.String("llm.provider", provider.Name()),
		attribute.String("llm.model", model),
	)

	err = provider.ChatStream(ctx, model, messages, func(event llm.StreamEvent) error {
		if event.Type != llm.StreamEventToken {
			return nil
		}
		accumulated.WriteString(event.Content)
		return emitter.WriteChunk(assistantID, event.Content)
	})
	if err != nil {
		return o.fail(ctx, span, assistantID, emitter, &accumulated, err)
	}

	if err := o.commit(ctx, assistantID, accumulated.String(), datatypes.StatusCompleted); err != nil {
		return o.fail(ctx, span, assistantID, emitter, &accumulated, err)
	}
	if err := emitter.WriteDone(assistantID); err != nil {
		slog.Debug("Client gone before done frame", "message_id", assistantID, "error", err)
	}
	return nil
}

// fail commits the error state and sends the error frame best-effort. The
// original failure is returned for the caller's logs and metrics.
func (o *Orchestrator) fail(ctx context.Context, span trace.Span, assistantID string, emitter Emitter, accumulated *strings.Builder, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	content := accumulated.String()
	if content == "" {
		content = DefaultErrorContent
	}
	if err := o.commit(ctx, assistantID, content, datatypes.StatusError); err != nil {
		slog.Error("Failed to commit error state", "message_id", assistantID, "error", err)
	}
	if err := emitter.WriteError(assistantID, cause.Error()); err != nil {
		slog.Debug("Client gone before error frame", "message_id", assistantID, "error", err)
	}
	slog.Error("Generation failed", "message_id", assistantID, "error", cause)
	return cause
}

// commit writes the single terminal update for the placeholder. It runs
// outside ctx's cancellation so disconnects and timeouts cannot strand a
// message in streaming status.
func (o *Orchestrator) commit(ctx context.Context, assistantID, content string, status datatypes.MessageStatus) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	_, err := o.store.UpdateMessage(commitCtx, assistantID, &datatypes.MessageUpdate{
		Content: &content,
		Status:  &status,
	})
	return err
}
