// Package reputation tracks the experience points users earn for
// activity on the platform.
package reputation

import (
	"context"
	"database/sql"
	"fmt"
)

type Store struct {
	conn *sql.DB
}

func New(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// IncrementExperience adds amount to the user's experience points.
func (s *Store) IncrementExperience(ctx context.Context, userID, amount int) error {
	result, err := s.conn.ExecContext(ctx, `
		UPDATE users
		SET experience_points = experience_points + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, amount, userID)
	if err != nil {
		return fmt.Errorf("increment experience: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment experience rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// Experience returns the user's current experience points.
func (s *Store) Experience(ctx context.Context, userID int) (int, error) {
	var xp int
	err := s.conn.QueryRowContext(ctx, `
		SELECT experience_points FROM users WHERE id = ?
	`, userID).Scan(&xp)
	if err != nil {
		return 0, fmt.Errorf("get experience: %w", err)
	}
	return xp, nil
}
