package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/certprep/internal/answers"
	"github.com/pavelanni/certprep/internal/model"
)

const attemptColumns = `a.id, a.question_id, a.user_id, a.session_id, a.selected_answers, a.is_correct, a.time_spent, a.created_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertAttempt writes a with a fresh ID and timestamp. Selected answers are
// stored through answers.Encode.
func (s *Store) insertAttempt(ctx context.Context, ex execer, a model.Attempt) (model.Attempt, error) {
	enc, err := answers.Encode(a.SelectedAnswers)
	if err != nil {
		return a, fmt.Errorf("encode answers: %w", err)
	}
	a.ID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.UnixMilli(s.nowMilli())
	}
	var sessionID sql.NullString
	if a.SessionID != "" {
		sessionID = sql.NullString{String: a.SessionID, Valid: true}
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO user_attempts (id, question_id, user_id, session_id, selected_answers, is_correct, time_spent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.QuestionID, a.UserID, sessionID, enc, a.IsCorrect, a.TimeSpent, a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return a, err
	}
	return a, nil
}

// InsertAttempt stores a single answered question.
func (s *Store) InsertAttempt(ctx context.Context, a model.Attempt) (model.Attempt, error) {
	return s.insertAttempt(ctx, s.db, a)
}

// scanAttemptView reads attempt columns followed by question columns.
func scanAttemptView(sc rowScanner) (model.AttemptView, error) {
	var v model.AttemptView
	var sessionID sql.NullString
	var raw string
	var created int64
	var qr questionRow
	dest := append([]any{&v.ID, &v.QuestionID, &v.UserID, &sessionID, &raw, &v.IsCorrect, &v.TimeSpent, &created}, qr.dest()...)
	if err := sc.Scan(dest...); err != nil {
		return v, err
	}
	v.SessionID = sessionID.String
	v.SelectedAnswers = answers.Decode(raw)
	v.CreatedAt = time.UnixMilli(created)
	v.Question = qr.question()
	return v, nil
}

func scanAttemptViews(rows *sql.Rows) ([]model.AttemptView, error) {
	defer rows.Close()
	views := []model.AttemptView{}
	for rows.Next() {
		v, err := scanAttemptView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// LatestIncorrectAttempts returns, for each question the user has answered,
// the most recent attempt if that attempt was wrong.
func (s *Store) LatestIncorrectAttempts(ctx context.Context, userID string) ([]model.AttemptView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+`, `+questionColumns+`
		 FROM user_attempts a JOIN questions q ON q.id = a.question_id
		 WHERE a.user_id = $1
		 ORDER BY a.created_at DESC, a.seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	all, err := scanAttemptViews(rows)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := []model.AttemptView{}
	for _, v := range all {
		if seen[v.QuestionID] {
			continue
		}
		seen[v.QuestionID] = true
		if !v.IsCorrect {
			out = append(out, v)
		}
	}
	return out, nil
}

// ClearIncorrectAttempts deletes the user's wrong attempts and returns how
// many were removed.
func (s *Store) ClearIncorrectAttempts(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_attempts WHERE user_id = $1 AND NOT is_correct`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
