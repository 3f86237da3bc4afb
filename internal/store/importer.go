package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pavelanni/certprep/internal/model"
)

// ImportResult reports what ImportQuestions did with one file.
type ImportResult struct {
	Source   string `json:"source"`
	Hash     string `json:"hash"`
	Imported int    `json:"imported"`
	// Skipped is "unchanged" or "changed" when the file was not imported.
	Skipped string `json:"skipped,omitempty"`
}

// ImportQuestions loads a JSON array of question imports in one transaction.
// A source whose hash was recorded before is skipped: unchanged files are
// already in the bank, and changed ones would duplicate questions that
// existing attempts refer to.
func (s *Store) ImportQuestions(ctx context.Context, source string, data []byte) (ImportResult, error) {
	sum := sha256.Sum256(data)
	res := ImportResult{Source: source, Hash: hex.EncodeToString(sum[:])}

	stored, err := s.GetImportedFileHash(ctx, source)
	if err != nil {
		return res, fmt.Errorf("check import status for %s: %w", source, err)
	}
	switch {
	case stored == res.Hash:
		res.Skipped = "unchanged"
		slog.Info("questions file unchanged, skipping", "source", source)
		return res, nil
	case stored != "":
		res.Skipped = "changed"
		slog.Warn("questions file changed since last import, skipping to avoid duplicates", "source", source)
		return res, nil
	}

	var imports []model.QuestionImport
	if err := json.Unmarshal(data, &imports); err != nil {
		return res, fmt.Errorf("parse %s: %w", source, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	for i, qi := range imports {
		q, err := qi.ToQuestion()
		if err == nil {
			_, err = s.insertQuestion(ctx, tx, q)
		}
		if err != nil {
			return res, fmt.Errorf("question %d in %s: %w", i+1, source, err)
		}
	}
	if err := setImportedFileHash(ctx, tx, source, res.Hash); err != nil {
		return res, fmt.Errorf("record import for %s: %w", source, err)
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}

	res.Imported = len(imports)
	slog.Info("imported questions", "source", source, "count", res.Imported)
	return res, nil
}
