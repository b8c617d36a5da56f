// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxFilesPerMessage caps attachment references on one message.
	MaxFilesPerMessage = 16
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = chatValidate.RegisterValidation("msgrole", validateRole)
}

// validateMaxBytes checks byte length rather than rune count so oversized
// multi-byte payloads cannot slip under the limit.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// validateRole accepts only the known message roles.
func validateRole(fl validator.FieldLevel) bool {
	return ValidRole(MessageRole(fl.Field().String()))
}

// =============================================================================
// Message Requests
// =============================================================================

// MessageCreate is the request body for creating a message and for starting
// a generation turn.
//
// # Description
//
// For plain creation (POST /v1/messages) the message is stored as-is in
// completed status. For generation (POST /v1/messages/generate) the body
// describes the user turn: Role must be "user", and Model and Provider
// are hints for routing the reply. Both fields may be empty, in which case
// deploy-time defaults apply; a model name containing a recognizable family
// ("gpt", "llama", ...) overrides the provider hint.
//
// # Validation
//
//   - ChatID: required, UUID v4.
//   - ParentID: optional, UUID v4 when present.
//   - Role: required, one of user/assistant/system.
//   - Content: max 32KB.
//   - Files: at most MaxFilesPerMessage entries.
type MessageCreate struct {
	ChatID   string        `json:"chat_id" validate:"required,uuid4"`
	ParentID string        `json:"parent_id,omitempty" validate:"omitempty,uuid4"`
	Role     MessageRole   `json:"role" validate:"required,msgrole"`
	Content  string        `json:"content" validate:"maxbytes"`
	Model    string        `json:"model,omitempty" validate:"max=128"`
	Provider string        `json:"provider,omitempty" validate:"omitempty,oneof=openai ollama"`
	Files    []MessageFile `json:"files,omitempty" validate:"max=16"`
}

// Validate checks the request against its validation tags.
func (r *MessageCreate) Validate() error {
	return chatValidate.Struct(r)
}

// MessageUpdate is a partial update to a stored message. Nil fields are
// left untouched.
type MessageUpdate struct {
	Content *string        `json:"content,omitempty" validate:"omitempty,maxbytes"`
	Status  *MessageStatus `json:"status,omitempty" validate:"omitempty,oneof=streaming completed error"`
	Rating  *int           `json:"rating,omitempty" validate:"omitempty,min=-1,max=1"`
}

// Validate checks the request against its validation tags.
func (r *MessageUpdate) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Chat Requests
// =============================================================================

// ChatCreate is the request body for creating a chat. An empty title
// defaults to DefaultChatTitle.
type ChatCreate struct {
	Title          string   `json:"title,omitempty" validate:"max=256"`
	SelectedModels []string `json:"selected_models,omitempty" validate:"max=8,dive,max=128"`
}

// Validate checks the request against its validation tags.
func (r *ChatCreate) Validate() error {
	return chatValidate.Struct(r)
}

// ChatUpdate is a partial update to a chat. Nil fields are left untouched.
type ChatUpdate struct {
	Title          *string   `json:"title,omitempty" validate:"omitempty,min=1,max=256"`
	SelectedModels *[]string `json:"selected_models,omitempty" validate:"omitempty,max=8,dive,max=128"`
}

// Validate checks the request against its validation tags.
func (r *ChatUpdate) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Auth Requests
// =============================================================================

// RegisterRequest is the request body for account creation.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// Validate checks the request against its validation tags.
func (r *RegisterRequest) Validate() error {
	return chatValidate.Struct(r)
}

// LoginRequest is the request body for credential login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Validate checks the request against its validation tags.
func (r *LoginRequest) Validate() error {
	return chatValidate.Struct(r)
}
