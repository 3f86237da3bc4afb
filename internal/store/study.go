package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/certprep/internal/model"
)

const studySessionColumns = `id, user_id, mode, total_questions, correct_answers, incorrect_answers, time_spent, created_at`

func scanStudySession(sc rowScanner) (model.StudySession, error) {
	var ss model.StudySession
	var created int64
	err := sc.Scan(&ss.ID, &ss.UserID, &ss.Mode, &ss.TotalQuestions, &ss.CorrectAnswers,
		&ss.IncorrectAnswers, &ss.TimeSpent, &created)
	ss.CreatedAt = time.UnixMilli(created)
	return ss, err
}

// CreateStudySession stores a finished session together with its
// per-question attempts in one transaction.
func (s *Store) CreateStudySession(ctx context.Context, ss model.StudySession, attempts []model.Attempt) (model.StudySession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ss, err
	}
	defer tx.Rollback()

	ss.ID = uuid.NewString()
	ss.CreatedAt = time.UnixMilli(s.nowMilli())
	if ss.Mode == "" {
		ss.Mode = "exam"
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO study_sessions (id, user_id, mode, total_questions, correct_answers, incorrect_answers, time_spent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ss.ID, ss.UserID, ss.Mode, ss.TotalQuestions, ss.CorrectAnswers, ss.IncorrectAnswers,
		ss.TimeSpent, ss.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return ss, fmt.Errorf("insert session: %w", err)
	}

	for _, a := range attempts {
		a.UserID = ss.UserID
		a.SessionID = ss.ID
		a.CreatedAt = ss.CreatedAt
		if _, err := s.insertAttempt(ctx, tx, a); err != nil {
			return ss, fmt.Errorf("insert attempt for question %s: %w", a.QuestionID, err)
		}
	}
	return ss, tx.Commit()
}

// GetStudySession returns a session by ID, or nil if there is none.
func (s *Store) GetStudySession(ctx context.Context, id string) (*model.StudySession, error) {
	ss, err := scanStudySession(s.db.QueryRowContext(ctx,
		`SELECT `+studySessionColumns+` FROM study_sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ss, nil
}

// GetStudySessionView returns a session with its attempts, or nil if the
// session does not exist. Sessions saved before attempts carried a session ID
// fall back to the user's attempts made within the session's time window.
func (s *Store) GetStudySessionView(ctx context.Context, id string) (*model.StudySessionView, error) {
	ss, err := s.GetStudySession(ctx, id)
	if err != nil || ss == nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+`, `+questionColumns+`
		 FROM user_attempts a JOIN questions q ON q.id = a.question_id
		 WHERE a.session_id = $1
		 ORDER BY a.seq`, id)
	if err != nil {
		return nil, err
	}
	attempts, err := scanAttemptViews(rows)
	if err != nil {
		return nil, err
	}

	if len(attempts) == 0 {
		start := ss.CreatedAt.UnixMilli()
		end := ss.CreatedAt.Add(time.Duration(ss.TimeSpent) * time.Second).UnixMilli()
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+attemptColumns+`, `+questionColumns+`
			 FROM user_attempts a JOIN questions q ON q.id = a.question_id
			 WHERE a.user_id = $1 AND a.session_id IS NULL AND a.created_at >= $2 AND a.created_at <= $3
			 ORDER BY a.created_at, a.seq`, ss.UserID, start, end)
		if err != nil {
			return nil, err
		}
		if attempts, err = scanAttemptViews(rows); err != nil {
			return nil, err
		}
	}

	return &model.StudySessionView{Session: *ss, Attempts: attempts}, nil
}

// ListStudySessions returns a user's sessions, newest first.
func (s *Store) ListStudySessions(ctx context.Context, userID string) ([]model.StudySession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+studySessionColumns+` FROM study_sessions WHERE user_id = $1 ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectStudySessions(rows)
}

// ListAllStudySessions returns every session in creation order.
func (s *Store) ListAllStudySessions(ctx context.Context) ([]model.StudySession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+studySessionColumns+` FROM study_sessions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	return collectStudySessions(rows)
}

func collectStudySessions(rows *sql.Rows) ([]model.StudySession, error) {
	defer rows.Close()
	sessions := []model.StudySession{}
	for rows.Next() {
		ss, err := scanStudySession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}
