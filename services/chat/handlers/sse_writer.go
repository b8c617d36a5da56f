// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// =============================================================================
// Wire Format
// =============================================================================

// GenerateEvent is the JSON payload of one generation stream frame.
//
// Exactly one of Chunk, Done, or Error is meaningful per frame; MessageID
// is always present so clients can correlate frames with the assistant
// placeholder they already hold.
type GenerateEvent struct {
	Chunk     string `json:"chunk,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Error     string `json:"error,omitempty"`
	MessageID string `json:"message_id"`
}

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes generation stream frames to an HTTP response.
//
// # Description
//
// SSEWriter abstracts frame serialization and writing, enabling testability
// and separation from HTTP response mechanics. Each frame is written as
// "data: {json}\n\n" and flushed immediately; there are no event-type
// lines, so any SSE or fetch-streaming client can consume the feed with
// plain data-line parsing.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The generation goroutine
// and the keepalive ticker write through the same writer.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before the first write.
type SSEWriter interface {
	// WriteChunk writes one content fragment frame.
	WriteChunk(messageID, chunk string) error

	// WriteDone writes the terminal success frame. Exactly one terminal
	// frame is sent per stream.
	WriteDone(messageID string) error

	// WriteError writes the terminal failure frame with a client-safe
	// message.
	WriteError(messageID, errMsg string) error

	// WriteKeepAlive sends an SSE comment (": ping\n\n") to keep the
	// connection alive through proxies with idle timeouts. Comments are
	// ignored by clients and are not part of the frame protocol.
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
//
// Thread-safe via mutex; the mutex also keeps a keepalive comment from
// interleaving inside a frame. Cannot be reused across requests.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

var _ SSEWriter = (*sseWriter)(nil)

// =============================================================================
// Constructor
// =============================================================================

// NewSSEWriter creates an SSEWriter for the given ResponseWriter.
//
// # Inputs
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//   - SSEWriter: ready to write frames.
//   - error: non-nil if the ResponseWriter does not support flushing.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// writeFrame serializes the event and writes one "data: {json}\n\n" frame,
// flushing immediately.
func (w *sseWriter) writeFrame(event GenerateEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// WriteChunk writes one content fragment frame.
func (w *sseWriter) WriteChunk(messageID, chunk string) error {
	return w.writeFrame(GenerateEvent{Chunk: chunk, MessageID: messageID})
}

// WriteDone writes the terminal success frame.
func (w *sseWriter) WriteDone(messageID string) error {
	return w.writeFrame(GenerateEvent{Done: true, MessageID: messageID})
}

// WriteError writes the terminal failure frame.
func (w *sseWriter) WriteError(messageID, errMsg string) error {
	return w.writeFrame(GenerateEvent{Error: errMsg, MessageID: messageID})
}

// WriteKeepAlive sends a comment line to keep the connection alive.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon followed by text, then double newline
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// Sets Content-Type: text/event-stream, disables caching and proxy
// buffering. Must be called before writing any response body.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
