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

// ChatHandler defines the contract for the chat CRUD endpoints.
type ChatHandler interface {
	// HandleCreateChat processes POST /v1/chats.
	HandleCreateChat(c *gin.Context)

	// HandleListChats processes GET /v1/chats, most recently active first.
	HandleListChats(c *gin.Context)

	// HandleGetChat processes GET /v1/chats/:id.
	HandleGetChat(c *gin.Context)

	// HandleUpdateChat processes PATCH /v1/chats/:id.
	HandleUpdateChat(c *gin.Context)

	// HandleDeleteChat processes DELETE /v1/chats/:id. Deleting a chat
	// removes all of its messages.
	HandleDeleteChat(c *gin.Context)
}

type chatHandler struct {
	db *store.DB
}

var _ ChatHandler = (*chatHandler)(nil)

// NewChatHandler creates a ChatHandler. Panics on a nil store.
func NewChatHandler(db *store.DB) ChatHandler {
	if db == nil {
		panic("NewChatHandler: db must not be nil")
	}
	return &chatHandler{db: db}
}

// owned loads the chat in the :id param and verifies the caller owns it.
func (h *chatHandler) owned(c *gin.Context) (*datatypes.Chat, bool) {
	id := c.Param("id")
	chat, err := h.db.GetChat(c.Request.Context(), id)
	if err != nil || chat.UserID != middleware.GetUserID(c) {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("Chat lookup failed", "error", err, "chat_id", id)
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return nil, false
	}
	return chat, true
}

func (h *chatHandler) HandleCreateChat(c *gin.Context) {
	var req datatypes.ChatCreate
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	now := time.Now().UTC()
	chat := &datatypes.Chat{
		ID:             uuid.NewString(),
		UserID:         middleware.GetUserID(c),
		Title:          req.Title,
		SelectedModels: req.SelectedModels,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.db.CreateChat(c.Request.Context(), chat); err != nil {
		slog.Error("Failed to create chat", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create chat"})
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (h *chatHandler) HandleListChats(c *gin.Context) {
	chats, err := h.db.ListChatsByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		slog.Error("Failed to list chats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}
	if chats == nil {
		chats = []*datatypes.Chat{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *chatHandler) HandleGetChat(c *gin.Context) {
	chat, ok := h.owned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (h *chatHandler) HandleUpdateChat(c *gin.Context) {
	chat, ok := h.owned(c)
	if !ok {
		return
	}

	var req datatypes.ChatUpdate
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	updated, err := h.db.UpdateChat(c.Request.Context(), chat.ID, &req)
	if err != nil {
		slog.Error("Failed to update chat", "error", err, "chat_id", chat.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update chat"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *chatHandler) HandleDeleteChat(c *gin.Context) {
	chat, ok := h.owned(c)
	if !ok {
		return
	}
	if err := h.db.DeleteChat(c.Request.Context(), chat.ID); err != nil {
		slog.Error("Failed to delete chat", "error", err, "chat_id", chat.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete chat"})
		return
	}
	c.Status(http.StatusNoContent)
}
