// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tidewater/services/chat/datatypes"
	"github.com/AleutianAI/tidewater/services/chat/middleware"
	"github.com/AleutianAI/tidewater/services/chat/store"
)

// =============================================================================
// Test Setup
// =============================================================================

// crudTestEnv wires the chat and message handlers behind a stub auth layer
// that injects a fixed user id.
type crudTestEnv struct {
	router *gin.Engine
	db     *store.DB
	userID string
}

func newCRUDTestEnv(t *testing.T) *crudTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	userID := uuid.NewString()
	auth := func(c *gin.Context) { middleware.SetUserID(c, userID) }

	chats := NewChatHandler(db)
	messages := NewMessageHandler(db)

	router := gin.New()
	router.Use(auth)
	router.POST("/v1/chats", chats.HandleCreateChat)
	router.GET("/v1/chats", chats.HandleListChats)
	router.GET("/v1/chats/:id", chats.HandleGetChat)
	router.PATCH("/v1/chats/:id", chats.HandleUpdateChat)
	router.DELETE("/v1/chats/:id", chats.HandleDeleteChat)
	router.POST("/v1/messages", messages.HandleCreateMessage)
	router.GET("/v1/messages/chat/:chatId", messages.HandleListMessages)
	router.PATCH("/v1/messages/:id", messages.HandleUpdateMessage)

	return &crudTestEnv{router: router, db: db, userID: userID}
}

func (e *crudTestEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *crudTestEnv) createChat(t *testing.T, title string) *datatypes.Chat {
	t.Helper()

	w := e.do(t, "POST", "/v1/chats", datatypes.ChatCreate{Title: title})
	require.Equal(t, http.StatusCreated, w.Code)

	var chat datatypes.Chat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &chat))
	return &chat
}

// =============================================================================
// Chat CRUD Tests
// =============================================================================

func TestHandleCreateChat_DefaultTitle(t *testing.T) {
	env := newCRUDTestEnv(t)

	chat := env.createChat(t, "")
	// The store applies the default title on write.
	stored, err := env.db.GetChat(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.DefaultChatTitle, stored.Title)
	assert.Equal(t, env.userID, stored.UserID)
}

func TestHandleListChats_Empty(t *testing.T) {
	env := newCRUDTestEnv(t)

	w := env.do(t, "GET", "/v1/chats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"chats":[]}`, w.Body.String())
}

func TestHandleGetChat_ForeignReturns404(t *testing.T) {
	env := newCRUDTestEnv(t)

	foreign := &datatypes.Chat{ID: uuid.NewString(), UserID: uuid.NewString()}
	require.NoError(t, env.db.CreateChat(context.Background(), foreign))

	w := env.do(t, "GET", "/v1/chats/"+foreign.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "foreign chat should look missing")
}

func TestHandleUpdateChat_Rename(t *testing.T) {
	env := newCRUDTestEnv(t)
	chat := env.createChat(t, "Before")

	title := "After"
	w := env.do(t, "PATCH", "/v1/chats/"+chat.ID, datatypes.ChatUpdate{Title: &title})
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := env.db.GetChat(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", stored.Title)
}

func TestHandleDeleteChat_Cascades(t *testing.T) {
	env := newCRUDTestEnv(t)
	chat := env.createChat(t, "Doomed")

	create := env.do(t, "POST", "/v1/messages", datatypes.MessageCreate{
		ChatID:  chat.ID,
		Role:    datatypes.RoleUser,
		Content: "hello",
	})
	require.Equal(t, http.StatusCreated, create.Code)

	var msg datatypes.Message
	require.NoError(t, json.Unmarshal(create.Body.Bytes(), &msg))

	del := env.do(t, "DELETE", "/v1/chats/"+chat.ID, nil)
	require.Equal(t, http.StatusNoContent, del.Code)

	_, err := env.db.GetChat(context.Background(), chat.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.db.GetMessage(context.Background(), msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "messages should be deleted with the chat")
}

// =============================================================================
// Message Endpoint Tests
// =============================================================================

func TestHandleCreateMessage_ForeignChat(t *testing.T) {
	env := newCRUDTestEnv(t)

	foreign := &datatypes.Chat{ID: uuid.NewString(), UserID: uuid.NewString()}
	require.NoError(t, env.db.CreateChat(context.Background(), foreign))

	w := env.do(t, "POST", "/v1/messages", datatypes.MessageCreate{
		ChatID:  foreign.ID,
		Role:    datatypes.RoleUser,
		Content: "hello",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleListMessages_Order(t *testing.T) {
	env := newCRUDTestEnv(t)
	chat := env.createChat(t, "")

	for _, content := range []string{"one", "two", "three"} {
		w := env.do(t, "POST", "/v1/messages", datatypes.MessageCreate{
			ChatID:  chat.ID,
			Role:    datatypes.RoleUser,
			Content: content,
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.do(t, "GET", "/v1/messages/chat/"+chat.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []datatypes.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, "one", resp.Messages[0].Content)
	assert.Equal(t, "three", resp.Messages[2].Content)
}

func TestHandleUpdateMessage_Rating(t *testing.T) {
	env := newCRUDTestEnv(t)
	chat := env.createChat(t, "")

	create := env.do(t, "POST", "/v1/messages", datatypes.MessageCreate{
		ChatID:  chat.ID,
		Role:    datatypes.RoleUser,
		Content: "rate me",
	})
	require.Equal(t, http.StatusCreated, create.Code)

	var msg datatypes.Message
	require.NoError(t, json.Unmarshal(create.Body.Bytes(), &msg))

	rating := 1
	w := env.do(t, "PATCH", "/v1/messages/"+msg.ID, datatypes.MessageUpdate{Rating: &rating})
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := env.db.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Rating)
	assert.Equal(t, "rate me", stored.Content, "unset fields stay untouched")
}

func TestHandleUpdateMessage_ForeignChatForbidden(t *testing.T) {
	env := newCRUDTestEnv(t)

	// An existing message in another user's chat: 403, not 404.
	foreign := &datatypes.Chat{ID: uuid.NewString(), UserID: uuid.NewString()}
	require.NoError(t, env.db.CreateChat(context.Background(), foreign))
	msg := &datatypes.Message{
		ID:        uuid.NewString(),
		ChatID:    foreign.ID,
		Role:      datatypes.RoleUser,
		Content:   "someone else's",
		Timestamp: time.Now().UTC(),
		Status:    datatypes.StatusCompleted,
	}
	require.NoError(t, env.db.CreateMessage(context.Background(), msg))

	rating := 1
	w := env.do(t, "PATCH", "/v1/messages/"+msg.ID, datatypes.MessageUpdate{Rating: &rating})
	assert.Equal(t, http.StatusForbidden, w.Code)

	stored, err := env.db.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Rating, "foreign message must stay untouched")
}

func TestHandleUpdateMessage_NotFound(t *testing.T) {
	env := newCRUDTestEnv(t)

	rating := 1
	w := env.do(t, "PATCH", "/v1/messages/"+uuid.NewString(), datatypes.MessageUpdate{Rating: &rating})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
