package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

// StoreChatMessage persists a room message. The sender's display data is
// read inside the same transaction, so the record handed to onCommit is the
// one history will return. onCommit runs on the writer goroutine.
func (m *Manager) StoreChatMessage(ctx context.Context, message *types.ChatMessage, onCommit func(*types.ChatMessage)) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}

	var afterCommit func()
	if onCommit != nil {
		afterCommit = func() { onCommit(message) }
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var sender types.Sender
		err = tx.QueryRowContext(ctx,
			`SELECT id, full_name, avatar_url FROM users WHERE id = ?`,
			message.Sender.ID,
		).Scan(&sender.ID, &sender.FullName, &sender.AvatarURL)
		if errors.Is(err, sql.ErrNoRows) {
			return interfaces.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query sender: %w", err)
		}

		createdAt := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO chat_messages (id, course_id, sender_id, message, created_at)
			VALUES (?, ?, ?, ?, ?)
		`,
			message.ID,
			message.CourseID,
			sender.ID,
			message.Message,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chat message: %w", err)
		}

		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read chat message sequence: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit chat message: %w", err)
		}

		message.Seq = seq
		message.Sender = sender
		message.CreatedAt = createdAt
		return nil
	}, afterCommit)
}

// GetChatHistory returns the newest limit messages of a course, newest first
func (m *Manager) GetChatHistory(ctx context.Context, courseID string, limit int) ([]*types.ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT cm.seq, cm.id, cm.course_id, cm.message, cm.created_at,
		       u.id, u.full_name, u.avatar_url
		FROM chat_messages cm
		JOIN users u ON u.id = cm.sender_id
		WHERE cm.course_id = ?
		ORDER BY cm.created_at DESC, cm.seq DESC
		LIMIT ?
	`, courseID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*types.ChatMessage{}
	for rows.Next() {
		var message types.ChatMessage
		if err := rows.Scan(
			&message.Seq,
			&message.ID,
			&message.CourseID,
			&message.Message,
			&message.CreatedAt,
			&message.Sender.ID,
			&message.Sender.FullName,
			&message.Sender.AvatarURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		messages = append(messages, &message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat message rows: %w", err)
	}
	return messages, nil
}

// StoreBotMessages persists chatbot turns atomically, in order
func (m *Manager) StoreBotMessages(ctx context.Context, messages ...*types.BotMessage) error {
	if len(messages) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i, message := range messages {
		if message.ID == "" {
			message.ID = uuid.NewString()
		}
		if message.CreatedAt.IsZero() {
			// Keep turns distinguishable when they share a clock tick
			message.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, message := range messages {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO chatbot_messages (id, course_id, user_id, role, message, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`,
				message.ID,
				message.CourseID,
				message.UserID,
				message.Role,
				message.Message,
				message.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert bot message: %w", err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit bot messages: %w", err)
		}
		return nil
	}, nil)
}

// GetBotHistory returns the last limit turns of a user's bot conversation,
// oldest first
func (m *Manager) GetBotHistory(ctx context.Context, courseID, userID string, limit int) ([]*types.BotMessage, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, course_id, user_id, role, message, created_at
		FROM chatbot_messages
		WHERE course_id = ? AND user_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, courseID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bot history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*types.BotMessage{}
	for rows.Next() {
		var message types.BotMessage
		if err := rows.Scan(
			&message.ID,
			&message.CourseID,
			&message.UserID,
			&message.Role,
			&message.Message,
			&message.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bot message row: %w", err)
		}
		messages = append(messages, &message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bot message rows: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}
