package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zuhreplanet/sohbet/internal/models"
)

// InsertMessage stores the message and bumps the conversation's
// last_message_at in one transaction. The id is assigned by the
// database; created_at is stamped here unless the caller set it.
func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages
			(conversation_id, sender_id, content, type, media_url, created_at, expires_at, is_flagged, flag_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ConversationID, m.SenderID, m.Content, m.Type, m.MediaURL, m.CreatedAt, m.ExpiresAt, m.IsFlagged, m.FlagReason)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	m.ID = int(id)

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = ?, updated_at = ? WHERE id = ?
	`, m.CreatedAt, m.CreatedAt, m.ConversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	return tx.Commit()
}

// GetMessage returns the message or nil when missing. Deleted rows are
// returned too; callers decide what a deleted message means for them.
func (s *Store) GetMessage(ctx context.Context, id int) (*models.Message, error) {
	m := &models.Message{}
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, content, type, media_url, created_at, expires_at,
		       is_read, read_at, is_deleted, deleted_at, is_flagged, flag_reason
		FROM messages WHERE id = ?
	`, id).Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.MediaURL, &m.CreatedAt, &m.ExpiresAt,
		&m.IsRead, &m.ReadAt, &m.IsDeleted, &m.DeletedAt, &m.IsFlagged, &m.FlagReason,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListMessages returns one page of non-deleted messages, oldest first.
// beforeID = 0 returns the newest page; otherwise the page of messages
// older than that id. The query runs newest-first to honor the cursor
// and the result is reversed in place.
func (s *Store) ListMessages(ctx context.Context, conversationID, limit, beforeID int) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, type, media_url, created_at, expires_at,
		       is_read, read_at, is_deleted, deleted_at, is_flagged, flag_reason
		FROM messages
		WHERE conversation_id = ? AND is_deleted = 0`
	args := []interface{}{conversationID}
	if beforeID > 0 {
		query += ` AND id < ?`
		args = append(args, beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to get oldest first
	for i := len(messages)/2 - 1; i >= 0; i-- {
		opp := len(messages) - 1 - i
		messages[i], messages[opp] = messages[opp], messages[i]
	}
	return messages, nil
}

// LastMessage returns the newest non-deleted message of the
// conversation, or nil when there is none.
func (s *Store) LastMessage(ctx context.Context, conversationID int) (*models.Message, error) {
	m := &models.Message{}
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, content, type, media_url, created_at, expires_at,
		       is_read, read_at, is_deleted, deleted_at, is_flagged, flag_reason
		FROM messages
		WHERE conversation_id = ? AND is_deleted = 0
		ORDER BY id DESC LIMIT 1
	`, conversationID).Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.MediaURL, &m.CreatedAt, &m.ExpiresAt,
		&m.IsRead, &m.ReadAt, &m.IsDeleted, &m.DeletedAt, &m.IsFlagged, &m.FlagReason,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last message: %w", err)
	}
	return m, nil
}

// MarkMessagesExpired soft-deletes every non-deleted message of the
// conversation whose expiry has passed as of the given instant.
// Running it twice changes nothing the second time.
func (s *Store) MarkMessagesExpired(ctx context.Context, conversationID int, asOf time.Time) (int64, error) {
	result, err := s.conn.ExecContext(ctx, `
		UPDATE messages
		SET is_deleted = 1, deleted_at = ?
		WHERE conversation_id = ? AND is_deleted = 0 AND expires_at IS NOT NULL AND expires_at <= ?
	`, asOf, conversationID, asOf)
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}
	swept, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark expired rows: %w", err)
	}
	return swept, nil
}

// MarkRead marks every unread message not sent by the given user as
// read. Calling it again is a no-op.
func (s *Store) MarkRead(ctx context.Context, conversationID, excludeSenderID int, asOf time.Time) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE messages
		SET is_read = 1, read_at = ?
		WHERE conversation_id = ? AND sender_id != ? AND is_read = 0 AND is_deleted = 0
	`, asOf, conversationID, excludeSenderID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// SoftDeleteMessage flags the row deleted; nothing is ever removed.
func (s *Store) SoftDeleteMessage(ctx context.Context, messageID int, asOf time.Time) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE messages
		SET is_deleted = 1, deleted_at = ?
		WHERE id = ? AND is_deleted = 0
	`, asOf, messageID)
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	return nil
}

// ListFlaggedMessages returns messages annotated by moderation, newest
// first, for the admin review screen. Deleted ones are included so a
// sender cannot hide a flagged message by deleting it.
func (s *Store) ListFlaggedMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, type, media_url, created_at, expires_at,
		       is_read, read_at, is_deleted, deleted_at, is_flagged, flag_reason
		FROM messages
		WHERE is_flagged = 1
		ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list flagged: %w", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	defer rows.Close()
	var res []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.MediaURL, &m.CreatedAt, &m.ExpiresAt,
			&m.IsRead, &m.ReadAt, &m.IsDeleted, &m.DeletedAt, &m.IsFlagged, &m.FlagReason,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
