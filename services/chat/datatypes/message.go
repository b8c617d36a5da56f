// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the persisted entities and request bodies for
// the chat service.
//
// This file contains the message tree types. Chat and user types live in
// chat.go and user.go; request bodies live in requests.go.
package datatypes

import (
	"time"
)

// =============================================================================
// Enumerations
// =============================================================================

// MessageRole identifies who authored a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r MessageRole) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// MessageStatus tracks a message through the generation lifecycle.
//
// User messages are created directly in StatusCompleted. Assistant
// placeholders start in StatusStreaming and move to StatusCompleted or
// StatusError exactly once when generation finishes.
type MessageStatus string

const (
	StatusStreaming MessageStatus = "streaming"
	StatusCompleted MessageStatus = "completed"
	StatusError     MessageStatus = "error"
)

// =============================================================================
// Entities
// =============================================================================

// MessageFile is a file attachment reference carried on a message. The
// service stores only metadata; file bytes live elsewhere.
type MessageFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Message is one node in a chat's message tree.
//
// # Description
//
// Messages form a tree via ParentID and ChildrenIDs: regenerating a reply
// or editing a prompt creates a sibling branch rather than overwriting
// history. The linear conversation sent to a model is the time-ordered
// walk of the chat's messages, not the tree structure.
//
// # Fields
//
//   - ID: UUID v4, assigned at creation.
//   - ChatID: owning chat. Immutable.
//   - ParentID: the message this replies to. Empty for roots.
//   - ChildrenIDs: replies to this message, in creation order.
//   - Model: the model that produced (or will produce) an assistant
//     message. Recorded on the placeholder so the client can label the
//     stream before any content exists.
//   - Timestamp: creation time, UTC. Never updated.
//   - Status: see MessageStatus.
//   - Rating: optional user feedback, -1, 0, or 1.
type Message struct {
	ID          string            `json:"id"`
	ChatID      string            `json:"chat_id"`
	ParentID    string            `json:"parent_id,omitempty"`
	ChildrenIDs []string          `json:"children_ids"`
	Role        MessageRole       `json:"role"`
	Content     string            `json:"content"`
	Model       string            `json:"model,omitempty"`
	Files       []MessageFile     `json:"files,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Status      MessageStatus     `json:"status"`
	Rating      int               `json:"rating,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
