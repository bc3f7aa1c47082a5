// Package store persists conversations and messages on SQLite.
// Every unordered participant pair maps to a single conversation row;
// the pair is kept sorted so the unique index can enforce that.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zuhreplanet/sohbet/internal/models"
)

type Store struct {
	conn *sql.DB
}

func New(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// Conn exposes the underlying connection for collaborators that share
// the same database, such as the reputation store.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

func normalizePair(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// FindConversationByParticipants looks up the conversation for an
// unordered pair of users. Returns nil when no conversation exists.
func (s *Store) FindConversationByParticipants(ctx context.Context, userA, userB int) (*models.Conversation, error) {
	low, high := normalizePair(userA, userB)
	c := &models.Conversation{}
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, participant_low, participant_high, disappear_after_hours, last_message_at, created_at
		FROM conversations
		WHERE participant_low = ? AND participant_high = ?
	`, low, high).Scan(&c.ID, &c.ParticipantLow, &c.ParticipantHigh, &c.DisappearAfterHours, &c.LastMessageAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return c, nil
}

// CreateConversation inserts the canonical pair. Two concurrent calls
// for the same pair race on the unique index; the loser re-fetches the
// winner's row instead of failing.
func (s *Store) CreateConversation(ctx context.Context, userA, userB int) (*models.Conversation, error) {
	low, high := normalizePair(userA, userB)
	now := time.Now().UTC()

	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO conversations (participant_low, participant_high, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, low, high, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return s.FindConversationByParticipants(ctx, userA, userB)
		}
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("conversation id: %w", err)
	}

	return &models.Conversation{
		ID:              int(id),
		ParticipantLow:  low,
		ParticipantHigh: high,
		CreatedAt:       now,
	}, nil
}

// GetConversation returns the conversation or nil when missing.
func (s *Store) GetConversation(ctx context.Context, id int) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, participant_low, participant_high, disappear_after_hours, last_message_at, created_at
		FROM conversations
		WHERE id = ?
	`, id).Scan(&c.ID, &c.ParticipantLow, &c.ParticipantHigh, &c.DisappearAfterHours, &c.LastMessageAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// UpdateConversationTimer sets disappear_after_hours; nil turns the
// timer off. Existing messages keep the expiry they were given at send
// time.
func (s *Store) UpdateConversationTimer(ctx context.Context, conversationID int, hours *int) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE conversations
		SET disappear_after_hours = ?, updated_at = ?
		WHERE id = ?
	`, hours, time.Now().UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("update timer: %w", err)
	}
	return nil
}

// ListConversationsForUser returns the user's conversations, most
// recently active first. Conversations that never saw a message fall
// back to their creation time for ordering.
func (s *Store) ListConversationsForUser(ctx context.Context, userID int) ([]*models.Conversation, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, participant_low, participant_high, disappear_after_hours, last_message_at, created_at
		FROM conversations
		WHERE participant_low = ? OR participant_high = ?
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*models.Conversation
	for rows.Next() {
		c := &models.Conversation{}
		if err := rows.Scan(&c.ID, &c.ParticipantLow, &c.ParticipantHigh, &c.DisappearAfterHours, &c.LastMessageAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UserExists reports whether a user with the given id exists.
func (s *Store) UserExists(ctx context.Context, userID int) (bool, error) {
	var exists bool
	err := s.conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)
	`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

// UnreadCount counts messages in the conversation the given user has
// not read yet, excluding their own and deleted ones.
func (s *Store) UnreadCount(ctx context.Context, conversationID, userID int) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND sender_id != ? AND is_read = 0 AND is_deleted = 0
	`, conversationID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}
