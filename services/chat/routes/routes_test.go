// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/tidewater/services/chat/generation"
	"github.com/AleutianAI/tidewater/services/chat/middleware"
	"github.com/AleutianAI/tidewater/services/chat/store"
	"github.com/AleutianAI/tidewater/services/llm"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockProvider is a minimal llm.Provider for route wiring tests.
type mockProvider struct{}

func (m *mockProvider) Name() string { return "openai" }

func (m *mockProvider) ChatStream(_ context.Context, _ string, _ []llm.Message, callback llm.StreamCallback) error {
	_ = callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: "mock stream"})
	return nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	selector := llm.NewSelector(llm.SelectorConfig{
		DefaultProvider: "openai",
		OpenAIModel:     "gpt-3.5-turbo",
		OllamaModel:     "llama2",
	}, &mockProvider{})
	orch := generation.NewOrchestrator(db, selector)
	tokens := middleware.NewTokenService("test-secret", time.Minute)

	router := gin.New()
	SetupRoutes(router, db, orch, tokens)
	return router
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersCoreRoutes(t *testing.T) {
	router := newTestRouter(t)

	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/"},
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/auth/register"},
		{"POST", "/v1/auth/login"},
		{"GET", "/v1/auth/me"},
		{"POST", "/v1/chats"},
		{"GET", "/v1/chats"},
		{"GET", "/v1/chats/:id"},
		{"PATCH", "/v1/chats/:id"},
		{"DELETE", "/v1/chats/:id"},
		{"POST", "/v1/messages"},
		{"GET", "/v1/messages/chat/:chatId"},
		{"PATCH", "/v1/messages/:id"},
		{"POST", "/v1/messages/generate"},
	}

	registered := router.Routes()
	for _, expected := range coreRoutes {
		found := false
		for _, r := range registered {
			if r.Method == expected.method && r.Path == expected.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("route %s %s not registered", expected.method, expected.path)
		}
	}
}

func TestSetupRoutes_HealthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/", "/health"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("GET %s returned %d, want 200", path, w.Code)
		}
	}
}

func TestSetupRoutes_AuthGating(t *testing.T) {
	router := newTestRouter(t)

	// Protected routes must 401 without a token.
	protected := []struct {
		method string
		path   string
	}{
		{"GET", "/v1/chats"},
		{"POST", "/v1/messages/generate"},
		{"GET", "/v1/auth/me"},
	}
	for _, route := range protected {
		req := httptest.NewRequest(route.method, route.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s returned %d without a token, want 401", route.method, route.path, w.Code)
		}
	}
}
