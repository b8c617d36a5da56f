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
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/tidewater/services/chat/datatypes"
	"github.com/AleutianAI/tidewater/services/chat/middleware"
	"github.com/AleutianAI/tidewater/services/chat/store"
)

// MessageHandler defines the contract for the non-streaming message
// endpoints.
type MessageHandler interface {
	// HandleCreateMessage processes POST /v1/messages. The message is
	// stored as-is in completed status; no generation happens.
	HandleCreateMessage(c *gin.Context)

	// HandleListMessages processes GET /v1/messages/chat/:chatId and
	// returns the chat's messages in ascending timestamp order.
	HandleListMessages(c *gin.Context)

	// HandleUpdateMessage processes PATCH /v1/messages/:id partial
	// updates (content, status, rating). An unknown message id is 404;
	// a message in another user's chat is 403.
	HandleUpdateMessage(c *gin.Context)
}

type messageHandler struct {
	db *store.DB
}

var _ MessageHandler = (*messageHandler)(nil)

// NewMessageHandler creates a MessageHandler. Panics on a nil store.
func NewMessageHandler(db *store.DB) MessageHandler {
	if db == nil {
		panic("NewMessageHandler: db must not be nil")
	}
	return &messageHandler{db: db}
}

// ownedChat loads a chat and verifies the caller owns it. Missing and
// foreign chats both report not found.
func (h *messageHandler) ownedChat(c *gin.Context, chatID string) (*datatypes.Chat, bool) {
	chat, err := h.db.GetChat(c.Request.Context(), chatID)
	if err != nil || chat.UserID != middleware.GetUserID(c) {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("Chat lookup failed", "error", err, "chat_id", chatID)
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return nil, false
	}
	return chat, true
}

func (h *messageHandler) HandleCreateMessage(c *gin.Context) {
	var req datatypes.MessageCreate
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}
	if _, ok := h.ownedChat(c, req.ChatID); !ok {
		return
	}

	msg := &datatypes.Message{
		ID:          uuid.NewString(),
		ChatID:      req.ChatID,
		ParentID:    req.ParentID,
		ChildrenIDs: []string{},
		Role:        req.Role,
		Content:     req.Content,
		Model:       req.Model,
		Files:       req.Files,
		Timestamp:   time.Now().UTC(),
		Status:      datatypes.StatusCompleted,
	}
	if err := h.db.CreateMessage(c.Request.Context(), msg); err != nil {
		slog.Error("Failed to create message", "error", err, "chat_id", req.ChatID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create message"})
		return
	}
	if err := h.db.TouchChat(c.Request.Context(), req.ChatID); err != nil {
		slog.Warn("Failed to bump chat activity", "chat_id", req.ChatID, "error", err)
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *messageHandler) HandleListMessages(c *gin.Context) {
	chatID := c.Param("chatId")
	if _, ok := h.ownedChat(c, chatID); !ok {
		return
	}

	messages, err := h.db.ListMessagesByChat(c.Request.Context(), chatID)
	if err != nil {
		slog.Error("Failed to list messages", "error", err, "chat_id", chatID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *messageHandler) HandleUpdateMessage(c *gin.Context) {
	id := c.Param("id")

	var req datatypes.MessageUpdate
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	msg, err := h.db.GetMessage(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err != nil {
		slog.Error("Message lookup failed", "error", err, "message_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	// The message id is already confirmed to exist, so an ownership failure
	// here is a 403, not a 404.
	chat, err := h.db.GetChat(c.Request.Context(), msg.ChatID)
	if err != nil || chat.UserID != middleware.GetUserID(c) {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("Chat lookup failed", "error", err, "chat_id", msg.ChatID)
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized to update this message"})
		return
	}

	updated, err := h.db.UpdateMessage(c.Request.Context(), id, &req)
	if err != nil {
		slog.Error("Failed to update message", "error", err, "message_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update message"})
		return
	}
	c.JSON(http.StatusOK, updated)
}
