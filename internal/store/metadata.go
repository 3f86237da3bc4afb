package store

import (
	"context"
	"database/sql"
	"errors"
)

const importKeyPrefix = "import:"

// setMetadata upserts a key-value pair.
func setMetadata(ctx context.Context, ex execer, key, value string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// GetImportedFileHash returns the content hash recorded for a question file,
// or "" if the file was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, path string) (string, error) {
	return s.GetMetadata(ctx, importKeyPrefix+path)
}

// setImportedFileHash records the content hash of an imported question file.
func setImportedFileHash(ctx context.Context, ex execer, path, hash string) error {
	return setMetadata(ctx, ex, importKeyPrefix+path, hash)
}
