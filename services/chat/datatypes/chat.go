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
	"time"
)

// DefaultChatTitle is used when a chat is created without a title.
const DefaultChatTitle = "New chat"

// Chat is a conversation container owned by a single user.
//
// SelectedModels remembers the models the user last picked in the UI so a
// reopened chat defaults to them. It has no effect on generation; each
// generate request names its own provider and model.
type Chat struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	SelectedModels []string  `json:"selected_models,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
