// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides the Gin HTTP handlers for the chat service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/tidewater/services/chat/datatypes"
	"github.com/AleutianAI/tidewater/services/chat/generation"
	"github.com/AleutianAI/tidewater/services/chat/middleware"
	"github.com/AleutianAI/tidewater/services/chat/observability"
	"github.com/AleutianAI/tidewater/services/chat/store"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// heartbeatInterval is the interval for sending keepalive pings.
	// Set to 15s to stay well under typical LB timeouts (60s for ALB/Nginx).
	heartbeatInterval = 15 * time.Second
)

// =============================================================================
// Interface Definition
// =============================================================================

// GenerateHandler defines the contract for the message generation endpoint.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; Gin calls handlers
// concurrently.
type GenerateHandler interface {
	// HandleGenerate processes POST /v1/messages/generate requests.
	//
	// # Description
	//
	// Validates the request, persists the user message and assistant
	// placeholder, then streams the reply as SSE frames. Failures before
	// the first byte of the stream surface as HTTP errors; failures after
	// that arrive as an error frame.
	//
	// # Outputs
	//
	// SSE frames, each "data: {json}\n\n" with json one of:
	//   - {"chunk":"...","message_id":"..."}
	//   - {"done":true,"message_id":"..."}
	//   - {"error":"...","message_id":"..."}
	//
	// HTTP status (before streaming starts):
	//   - 400 Bad Request: invalid body or validation failure
	//   - 404 Not Found: chat missing or owned by another user
	//   - 500 Internal Server Error: persistence or SSE setup failure
	HandleGenerate(c *gin.Context)
}

// =============================================================================
// Struct Definition
// =============================================================================

// generateHandler implements GenerateHandler for production use.
//
// Thread-safe. All fields are read-only after construction.
type generateHandler struct {
	db     *store.DB
	orch   *generation.Orchestrator
	tracer trace.Tracer
}

var _ GenerateHandler = (*generateHandler)(nil)

// =============================================================================
// Constructor
// =============================================================================

// NewGenerateHandler creates a GenerateHandler with the provided
// dependencies. Panics on nil dependencies (programming errors).
func NewGenerateHandler(db *store.DB, orch *generation.Orchestrator) GenerateHandler {
	if db == nil {
		panic("NewGenerateHandler: db must not be nil")
	}
	if orch == nil {
		panic("NewGenerateHandler: orch must not be nil")
	}
	return &generateHandler{
		db:     db,
		orch:   orch,
		tracer: otel.Tracer("tidewater.chat.handlers.generate"),
	}
}

// =============================================================================
// Handler Methods
// =============================================================================

// HandleGenerate processes POST /v1/messages/generate requests.
//
// The flow is:
//  1. Parse and validate the request body
//  2. Check the chat exists and belongs to the caller
//  3. Persist the user message and assistant placeholder
//  4. Set SSE headers and create the writer
//  5. Start the heartbeat goroutine
//  6. Run the generation turn, forwarding fragments as frames
func (h *generateHandler) HandleGenerate(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointGenerate

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleGenerate")
	defer span.End()

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			duration := time.Since(startTime).Seconds()
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, duration, success)
		}
	}()

	userID := middleware.GetUserID(c)
	span.SetAttributes(attribute.String("user.id", userID))

	// Step 1: Parse and validate request body
	var req datatypes.MessageCreate
	if err := c.BindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse generate request", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		slog.Error("Generate request validation failed", "error", err, "chat_id", req.ChatID)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}
	if req.Role != datatypes.RoleUser {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "generation turns must start from a user message"})
		return
	}
	span.SetAttributes(
		attribute.String("chat.id", req.ChatID),
		attribute.String("request.provider", req.Provider),
		attribute.String("request.model", req.Model),
	)

	// Step 2: Ownership check. Missing and foreign chats look identical to
	// the caller.
	chat, err := h.db.GetChat(ctx, req.ChatID)
	if err != nil || chat.UserID != userID {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			span.RecordError(err)
			slog.Error("Chat lookup failed", "error", err, "chat_id", req.ChatID)
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}

	// Step 3: Persist the turn. Failures here are still plain HTTP errors.
	_, placeholder, err := h.orch.CreateTurn(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn persistence failed")
		slog.Error("Failed to persist generation turn", "error", err, "chat_id", req.ChatID)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeStore)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create messages"})
		return
	}
	span.SetAttributes(attribute.String("message.id", placeholder.ID))

	// Step 4: Set SSE headers and create writer
	SetSSEHeaders(c.Writer)
	sseWriter, err := NewSSEWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "SSE setup failed")
		slog.Error("Failed to create SSE writer", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	// Step 5: Heartbeat goroutine keeps idle proxies from cutting the
	// stream while the backend is still thinking. It must be joined before
	// this handler returns; the ResponseWriter is invalid after that.
	heartbeatDone := make(chan struct{})
	heartbeatExited := make(chan struct{})
	go h.runHeartbeat(ctx, sseWriter, endpoint, heartbeatDone, heartbeatExited)

	// Step 6: Run the turn. The orchestrator owns the terminal commit; the
	// emitter wrapper only adds metrics.
	emitter := &meteredEmitter{
		inner:    sseWriter,
		endpoint: endpoint,
		model:    placeholder.Model,
		started:  startTime,
	}
	streamErr := h.orch.Run(ctx, &req, placeholder.ID, emitter)
	close(heartbeatDone)
	<-heartbeatExited

	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "generation failed")
		if m := observability.DefaultMetrics; m != nil {
			switch {
			case errors.Is(streamErr, context.Canceled):
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
				m.RecordClientDisconnect(endpoint)
			case errors.Is(streamErr, context.DeadlineExceeded):
				m.RecordError(endpoint, observability.ErrorCodeTimeout)
			default:
				m.RecordError(endpoint, observability.ErrorCodeProvider)
			}
		}
		return
	}

	span.SetAttributes(attribute.Int64("stream.fragment_count", emitter.fragments.Load()))
	success = true
}

// runHeartbeat sends keepalive comments until the stream finishes or the
// request context ends. Closes exited on return so the handler can wait
// out an in-flight keepalive write before releasing the ResponseWriter.
func (h *generateHandler) runHeartbeat(ctx context.Context, w SSEWriter, endpoint observability.Endpoint, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.WriteKeepAlive(); err != nil {
				slog.Debug("Keepalive write failed, client likely gone", "error", err)
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(endpoint)
			}
		}
	}
}

// =============================================================================
// Metered Emitter
// =============================================================================

// meteredEmitter wraps an SSEWriter with per-fragment metrics. It satisfies
// generation.Emitter.
type meteredEmitter struct {
	inner     SSEWriter
	endpoint  observability.Endpoint
	model     string
	started   time.Time
	fragments atomic.Int64
	sawFirst  atomic.Bool
}

var _ generation.Emitter = (*meteredEmitter)(nil)

func (e *meteredEmitter) WriteChunk(messageID, chunk string) error {
	if e.sawFirst.CompareAndSwap(false, true) {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstFragment(e.endpoint, time.Since(e.started).Seconds())
		}
	}
	e.fragments.Add(1)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordFragment(e.model)
	}
	return e.inner.WriteChunk(messageID, chunk)
}

func (e *meteredEmitter) WriteDone(messageID string) error {
	return e.inner.WriteDone(messageID)
}

func (e *meteredEmitter) WriteError(messageID, errMsg string) error {
	return e.inner.WriteError(messageID, errMsg)
}
