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
	"golang.org/x/crypto/bcrypt"

	"github.com/AleutianAI/tidewater/services/chat/datatypes"
	"github.com/AleutianAI/tidewater/services/chat/middleware"
	"github.com/AleutianAI/tidewater/services/chat/store"
)

// AuthHandler defines the contract for account and session endpoints.
type AuthHandler interface {
	// HandleRegister processes POST /v1/auth/register. On success the new
	// account is returned along with an access token.
	HandleRegister(c *gin.Context)

	// HandleLogin processes POST /v1/auth/login. Invalid username and
	// invalid password report the same error.
	HandleLogin(c *gin.Context)

	// HandleMe processes GET /v1/auth/me for the authenticated user.
	HandleMe(c *gin.Context)
}

type authHandler struct {
	db     *store.DB
	tokens *middleware.TokenService
}

var _ AuthHandler = (*authHandler)(nil)

// NewAuthHandler creates an AuthHandler. Panics on nil dependencies.
func NewAuthHandler(db *store.DB, tokens *middleware.TokenService) AuthHandler {
	if db == nil {
		panic("NewAuthHandler: db must not be nil")
	}
	if tokens == nil {
		panic("NewAuthHandler: tokens must not be nil")
	}
	return &authHandler{db: db, tokens: tokens}
}

func (h *authHandler) HandleRegister(c *gin.Context) {
	var req datatypes.RegisterRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	user := &datatypes.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.db.CreateUser(c.Request.Context(), user); err != nil {
		switch {
		case errors.Is(err, store.ErrUsernameExists):
			c.JSON(http.StatusConflict, gin.H{"error": "username already registered"})
		case errors.Is(err, store.ErrEmailExists):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		default:
			slog.Error("Failed to create user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}

	token, err := h.tokens.CreateToken(user.ID)
	if err != nil {
		slog.Error("Failed to issue token", "error", err, "user_id", user.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user":         user.Public(),
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (h *authHandler) HandleLogin(c *gin.Context) {
	var req datatypes.LoginRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	user, err := h.db.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("User lookup failed", "error", err)
		}
		// Same response for unknown user and bad password.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.tokens.CreateToken(user.ID)
	if err != nil {
		slog.Error("Failed to issue token", "error", err, "user_id", user.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":         user.Public(),
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (h *authHandler) HandleMe(c *gin.Context) {
	user, err := h.db.GetUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("User lookup failed", "error", err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	c.JSON(http.StatusOK, user.Public())
}
