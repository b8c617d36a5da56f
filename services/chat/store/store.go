// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Entity operations for chats, messages, and users.
//
// Key layout:
//
//	message:<msgID>                      -> Message JSON
//	chatmsg:<chatID>:<ts>:<msgID>        -> "" (time-ordered index, ts is
//	                                        zero-padded UnixNano)
//	chat:<chatID>                        -> Chat JSON
//	userchat:<userID>:<chatID>           -> "" (ownership index)
//	user:<userID>                        -> User JSON
//	username:<username>                  -> userID
//	useremail:<email>                    -> userID
//
// The chatmsg index makes chronological listing a single prefix scan and
// gives generation its conversation snapshot without sorting.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/tidewater/services/chat/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound is returned when a looked-up entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUsernameExists is returned when registering a taken username.
	ErrUsernameExists = errors.New("username already registered")

	// ErrEmailExists is returned when registering a taken email.
	ErrEmailExists = errors.New("email already registered")
)

// =============================================================================
// Keys
// =============================================================================

func messageKey(id string) []byte {
	return []byte("message:" + id)
}

func chatMessageKey(chatID string, ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("chatmsg:%s:%020d:%s", chatID, ts.UnixNano(), id))
}

func chatMessagePrefix(chatID string) []byte {
	return []byte("chatmsg:" + chatID + ":")
}

func chatKey(id string) []byte {
	return []byte("chat:" + id)
}

func userChatKey(userID, chatID string) []byte {
	return []byte("userchat:" + userID + ":" + chatID)
}

func userChatPrefix(userID string) []byte {
	return []byte("userchat:" + userID + ":")
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func usernameKey(username string) []byte {
	return []byte("username:" + username)
}

func userEmailKey(email string) []byte {
	return []byte("useremail:" + email)
}

// =============================================================================
// Transaction helpers
// =============================================================================

// getJSON reads and unmarshals a value inside txn. Returns ErrNotFound for
// missing keys.
func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// setJSON marshals and writes a value inside txn.
func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// =============================================================================
// Messages
// =============================================================================

// CreateMessage stores a message and links it into its chat's tree.
//
// # Description
//
//	Writes the message record, its chronological index entry, and the
//	parent's updated children list in one transaction, so readers never
//	observe a message whose parent does not point back at it. A ParentID
//	that references no stored message is ignored rather than rejected;
//	the message is stored as a root.
//
// # Inputs
//   - ctx: cancels the transaction.
//   - msg: message to store. ID, ChatID, and Timestamp must be set.
//
// # Outputs
//   - error: non-nil if the write fails.
func (d *DB) CreateMessage(ctx context.Context, msg *datatypes.Message) error {
	if msg.ID == "" || msg.ChatID == "" {
		return errors.New("message requires id and chat_id")
	}
	if msg.ChildrenIDs == nil {
		msg.ChildrenIDs = []string{}
	}
	return d.withTxn(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, messageKey(msg.ID), msg); err != nil {
			return err
		}
		if err := txn.Set(chatMessageKey(msg.ChatID, msg.Timestamp, msg.ID), nil); err != nil {
			return err
		}
		if msg.ParentID == "" {
			return nil
		}
		var parent datatypes.Message
		err := getJSON(txn, messageKey(msg.ParentID), &parent)
		if errors.Is(err, ErrNotFound) {
			// Dangling parent references are tolerated; the message
			// becomes a root of its own branch.
			return nil
		}
		if err != nil {
			return err
		}
		parent.ChildrenIDs = append(parent.ChildrenIDs, msg.ID)
		return setJSON(txn, messageKey(msg.ParentID), &parent)
	})
}

// GetMessage fetches a message by id. Returns ErrNotFound if absent.
func (d *DB) GetMessage(ctx context.Context, id string) (*datatypes.Message, error) {
	var msg datatypes.Message
	err := d.withReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, messageKey(id), &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateMessage applies a partial update to a stored message and returns
// the updated record.
//
// The read and write run in one transaction, so concurrent updates to the
// same message serialize rather than clobber each other.
func (d *DB) UpdateMessage(ctx context.Context, id string, update *datatypes.MessageUpdate) (*datatypes.Message, error) {
	var msg datatypes.Message
	err := d.withTxn(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, messageKey(id), &msg); err != nil {
			return err
		}
		if update.Content != nil {
			msg.Content = *update.Content
		}
		if update.Status != nil {
			msg.Status = *update.Status
		}
		if update.Rating != nil {
			msg.Rating = *update.Rating
		}
		return setJSON(txn, messageKey(id), &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessagesByChat returns all of a chat's messages in ascending
// timestamp order.
func (d *DB) ListMessagesByChat(ctx context.Context, chatID string) ([]*datatypes.Message, error) {
	var ids []string
	prefix := chatMessagePrefix(chatID)
	err := d.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			// chatmsg:<chatID>:<ts>:<msgID>; the id starts after the
			// fixed-width timestamp and its trailing colon.
			idStart := len(prefix) + 20 + 1
			if idStart >= len(key) {
				continue
			}
			ids = append(ids, key[idStart:])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]*datatypes.Message, 0, len(ids))
	err = d.withReadTxn(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			var msg datatypes.Message
			if err := getJSON(txn, messageKey(id), &msg); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			messages = append(messages, &msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// =============================================================================
// Chats
// =============================================================================

// CreateChat stores a chat and its ownership index entry.
func (d *DB) CreateChat(ctx context.Context, chat *datatypes.Chat) error {
	if chat.ID == "" || chat.UserID == "" {
		return errors.New("chat requires id and user_id")
	}
	if chat.Title == "" {
		chat.Title = datatypes.DefaultChatTitle
	}
	return d.withTxn(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, chatKey(chat.ID), chat); err != nil {
			return err
		}
		return txn.Set(userChatKey(chat.UserID, chat.ID), nil)
	})
}

// GetChat fetches a chat by id. Returns ErrNotFound if absent.
func (d *DB) GetChat(ctx context.Context, id string) (*datatypes.Chat, error) {
	var chat datatypes.Chat
	err := d.withReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, chatKey(id), &chat)
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// UpdateChat applies a partial update to a chat and bumps UpdatedAt.
func (d *DB) UpdateChat(ctx context.Context, id string, update *datatypes.ChatUpdate) (*datatypes.Chat, error) {
	var chat datatypes.Chat
	err := d.withTxn(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, chatKey(id), &chat); err != nil {
			return err
		}
		if update.Title != nil {
			chat.Title = *update.Title
		}
		if update.SelectedModels != nil {
			chat.SelectedModels = *update.SelectedModels
		}
		chat.UpdatedAt = time.Now().UTC()
		return setJSON(txn, chatKey(id), &chat)
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// TouchChat bumps a chat's UpdatedAt, used when new messages land.
func (d *DB) TouchChat(ctx context.Context, id string) error {
	return d.withTxn(ctx, func(txn *badger.Txn) error {
		var chat datatypes.Chat
		if err := getJSON(txn, chatKey(id), &chat); err != nil {
			return err
		}
		chat.UpdatedAt = time.Now().UTC()
		return setJSON(txn, chatKey(id), &chat)
	})
}

// ListChatsByUser returns all chats owned by a user, most recently updated
// first.
func (d *DB) ListChatsByUser(ctx context.Context, userID string) ([]*datatypes.Chat, error) {
	var chats []*datatypes.Chat
	prefix := userChatPrefix(userID)
	err := d.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			chatID := string(it.Item().Key())[len(prefix):]
			var chat datatypes.Chat
			if err := getJSON(txn, chatKey(chatID), &chat); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			chats = append(chats, &chat)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Most recent activity first.
	for i := 1; i < len(chats); i++ {
		for j := i; j > 0 && chats[j].UpdatedAt.After(chats[j-1].UpdatedAt); j-- {
			chats[j], chats[j-1] = chats[j-1], chats[j]
		}
	}
	return chats, nil
}

// DeleteChat removes a chat, its ownership index, and all of its messages.
//
// The cascade runs through a WriteBatch so a long chat cannot overflow a
// single transaction (badger.ErrTxnTooBig); the batch splits commits
// internally as needed. The chat record itself is deleted last, so a
// partial cascade leaves the chat visible and the delete retryable.
func (d *DB) DeleteChat(ctx context.Context, id string) error {
	chat, err := d.GetChat(ctx, id)
	if err != nil {
		return err
	}

	var indexKeys [][]byte
	var msgIDs []string
	err = d.withReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := chatMessagePrefix(id)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			indexKeys = append(indexKeys, key)
			idStart := len(prefix) + 20 + 1
			if idStart < len(key) {
				msgIDs = append(msgIDs, string(key[idStart:]))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := d.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range indexKeys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	for _, msgID := range msgIDs {
		if err := wb.Delete(messageKey(msgID)); err != nil {
			return err
		}
	}
	if err := wb.Delete(userChatKey(chat.UserID, id)); err != nil {
		return err
	}
	if err := wb.Delete(chatKey(id)); err != nil {
		return err
	}
	return wb.Flush()
}

// =============================================================================
// Users
// =============================================================================

// CreateUser stores a user, enforcing username and email uniqueness.
//
// Uniqueness checks and writes share one transaction, so two concurrent
// registrations of the same name cannot both succeed.
func (d *DB) CreateUser(ctx context.Context, user *datatypes.User) error {
	if user.ID == "" || user.Username == "" {
		return errors.New("user requires id and username")
	}
	return d.withTxn(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(usernameKey(user.Username)); err == nil {
			return ErrUsernameExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if user.Email != "" {
			if _, err := txn.Get(userEmailKey(user.Email)); err == nil {
				return ErrEmailExists
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(userEmailKey(user.Email), []byte(user.ID)); err != nil {
				return err
			}
		}
		if err := txn.Set(usernameKey(user.Username), []byte(user.ID)); err != nil {
			return err
		}
		return setJSON(txn, userKey(user.ID), user)
	})
}

// GetUser fetches a user by id. Returns ErrNotFound if absent.
func (d *DB) GetUser(ctx context.Context, id string) (*datatypes.User, error) {
	var user datatypes.User
	err := d.withReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername resolves a username to its user record. Returns
// ErrNotFound if absent.
func (d *DB) GetUserByUsername(ctx context.Context, username string) (*datatypes.User, error) {
	var user datatypes.User
	err := d.withReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(usernameKey(username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var userID string
		if err := item.Value(func(val []byte) error {
			userID = string(val)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, userKey(userID), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
