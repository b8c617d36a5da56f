// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the chat service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header,
// validates its signature and expiry with the configured signing key, and
// stores the subject user id in the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	TokenService.Middleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► Parse and verify HS256 signature + expiry
//	   │
//	   └─► Store user id in context
//	           │
//	           ▼
//	       Handler (retrieves via GetUserID)
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// =============================================================================
// Context Keys
// =============================================================================

// authUserKey is the context key for the authenticated user id.
const authUserKey = "tidewater_auth_user"

// =============================================================================
// Token Service
// =============================================================================

// TokenService issues and validates HS256 access tokens.
//
// Thread-safe; the secret is read-only after construction.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service. Panics on an empty secret;
// running without a signing key is a deployment error.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if secret == "" {
		panic("NewTokenService: secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// CreateToken issues a signed access token for a user id.
func (s *TokenService) CreateToken(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a token and returns its subject user id.
func (s *TokenService) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// =============================================================================
// Middleware
// =============================================================================

// Middleware returns a Gin middleware that rejects requests lacking a valid
// bearer token and stores the user id for handlers.
func (s *TokenService) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}
		userID, err := s.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(authUserKey, userID)
		c.Next()
	}
}

// =============================================================================
// Context Helpers
// =============================================================================

// SetUserID stores the authenticated user id in the Gin context. Exposed
// for handler tests that bypass the middleware.
func SetUserID(c *gin.Context, userID string) {
	c.Set(authUserKey, userID)
}

// GetUserID returns the authenticated user id, or empty string if the
// request did not pass the auth middleware.
func GetUserID(c *gin.Context) string {
	if v, ok := c.Get(authUserKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
