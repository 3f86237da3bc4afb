package store

import (
	"context"
	"database/sql"
	"errors"
)

// PutSnapshot saves the user's in-progress exam, replacing any earlier one.
func (s *Store) PutSnapshot(ctx context.Context, userID string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress_snapshots (user_id, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		userID, string(data), s.nowMilli(),
	)
	return err
}

// GetSnapshot returns the user's saved exam progress. The boolean is false
// when there is none.
func (s *Store) GetSnapshot(ctx context.Context, userID string) ([]byte, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM progress_snapshots WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(data), true, nil
}

// DeleteSnapshot removes the user's saved exam progress, if any.
func (s *Store) DeleteSnapshot(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM progress_snapshots WHERE user_id = $1`, userID)
	return err
}
