package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zuhreplanet/sohbet/internal/models"
)

// GetUser returns the user or nil when missing.
func (s *Store) GetUser(ctx context.Context, id int) (*models.User, error) {
	u := &models.User{}
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, username, display_name, avatar_url, role, experience_points, created_at
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Role, &u.ExperiencePoints, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the user or nil when missing.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u := &models.User{}
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, username, display_name, avatar_url, role, experience_points, created_at
		FROM users WHERE username = ?
	`, username).Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Role, &u.ExperiencePoints, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// SearchUsers lists users other than excludeID, optionally filtered by
// a username or display-name fragment, ordered by username.
func (s *Store) SearchUsers(ctx context.Context, excludeID int, query string, limit int) ([]*models.User, error) {
	var rows *sql.Rows
	var err error
	if query != "" {
		pattern := "%" + query + "%"
		rows, err = s.conn.QueryContext(ctx, `
			SELECT id, username, display_name, avatar_url, role, experience_points, created_at
			FROM users
			WHERE id != ? AND (username LIKE ? OR display_name LIKE ?)
			ORDER BY username LIMIT ?
		`, excludeID, pattern, pattern, limit)
	} else {
		rows, err = s.conn.QueryContext(ctx, `
			SELECT id, username, display_name, avatar_url, role, experience_points, created_at
			FROM users
			WHERE id != ?
			ORDER BY username LIMIT ?
		`, excludeID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var res []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Role, &u.ExperiencePoints, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// UpdateDisplayName sets the user's display name.
func (s *Store) UpdateDisplayName(ctx context.Context, userID int, displayName string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE users SET display_name = ?, updated_at = ? WHERE id = ?
	`, displayName, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	return nil
}

// UpdateAvatarURL sets the user's avatar URL.
func (s *Store) UpdateAvatarURL(ctx context.Context, userID int, avatarURL string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?
	`, avatarURL, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return nil
}

// InsertUpload records an uploaded file and assigns its id.
func (s *Store) InsertUpload(ctx context.Context, u *models.Upload) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO uploads (user_id, file_name, stored_name, file_path, file_size, content_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.UserID, u.FileName, u.StoredName, u.FilePath, u.FileSize, u.ContentType, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("upload id: %w", err)
	}
	u.ID = int(id)
	return nil
}
