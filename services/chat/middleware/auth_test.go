// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(svc *TokenService) *gin.Engine {
	router := gin.New()
	router.GET("/protected", svc.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
	})
	return router
}

// =============================================================================
// Token Service Tests
// =============================================================================

func TestNewTokenService_PanicsOnEmptySecret(t *testing.T) {
	assert.Panics(t, func() {
		NewTokenService("", time.Minute)
	}, "should panic on empty secret")
}

func TestTokenService_CreateAndValidate(t *testing.T) {
	svc := NewTokenService("test-secret", time.Minute)

	token, err := svc.CreateToken("user-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestTokenService_ExpiredToken(t *testing.T) {
	// A negative TTL falls back to the default, so build the service with a
	// tiny positive TTL and wait it out.
	svc := NewTokenService("test-secret", time.Millisecond)

	token, err := svc.CreateToken("user-123")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err, "expired token should fail validation")
}

func TestTokenService_WrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", time.Minute)
	verifier := NewTokenService("secret-b", time.Minute)

	token, err := issuer.CreateToken("user-123")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err, "token signed with another key should fail")
}

func TestTokenService_GarbageToken(t *testing.T) {
	svc := NewTokenService("test-secret", time.Minute)

	_, err := svc.ValidateToken("not.a.token")
	assert.Error(t, err)
}

// =============================================================================
// Middleware Tests
// =============================================================================

func TestMiddleware_ValidToken(t *testing.T) {
	svc := NewTokenService("test-secret", time.Minute)
	router := newTestRouter(svc)

	token, err := svc.CreateToken("user-123")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-123")
}

func TestMiddleware_MissingHeader(t *testing.T) {
	svc := NewTokenService("test-secret", time.Minute)
	router := newTestRouter(svc)

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_MalformedHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "abc123"},
		{"basic auth", "Basic abc123"},
		{"empty bearer", "Bearer "},
		{"bearer only", "Bearer"},
	}

	svc := NewTokenService("test-secret", time.Minute)
	router := newTestRouter(svc)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			req.Header.Set("Authorization", tt.header)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestMiddleware_InvalidToken(t *testing.T) {
	svc := NewTokenService("test-secret", time.Minute)
	router := newTestRouter(svc)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetUserID_Unset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetUserID(c))
}
