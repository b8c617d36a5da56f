// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generation drives one model turn: it creates the user message
// and assistant placeholder, assembles the conversation context, streams
// fragments from the selected provider, and commits the terminal state.
package generation

import (
	"context"

	"github.com/AleutianAI/tidewater/services/chat/datatypes"
	"github.com/AleutianAI/tidewater/services/llm"
)

// BuildContext assembles the linear conversation sent to the model.
//
// # Description
//
//	Re-reads the chat's messages from the store in ascending timestamp
//	order and maps them to provider messages. Only user, assistant, and
//	system roles are forwarded. The freshly created assistant placeholder
//	is part of the snapshot; its content is empty so it adds no prompt
//	text, but backends must tolerate an empty trailing assistant turn.
//
// # Inputs
//   - ctx: cancels the store read.
//   - db: message store.
//   - chatID: chat whose history to assemble.
//
// # Outputs
//   - []llm.Message: conversation, oldest first.
//   - error: non-nil if the store read fails.
func BuildContext(ctx context.Context, db Store, chatID string) ([]llm.Message, error) {
	stored, err := db.ListMessagesByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	messages := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		switch m.Role {
		case datatypes.RoleUser, datatypes.RoleAssistant, datatypes.RoleSystem:
			messages = append(messages, llm.Message{
				Role:    string(m.Role),
				Content: m.Content,
			})
		}
	}
	return messages, nil
}
