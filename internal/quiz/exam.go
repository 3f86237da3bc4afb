package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/certprep/internal/session"
)

const defaultTick = time.Second

// StartExam samples a fresh exam for owner and starts its countdown. Any
// running exam or saved snapshot of the same user is discarded.
func (s *Service) StartExam(ctx context.Context, owner session.Owner) (*session.Session, error) {
	if err := s.DiscardExam(ctx, owner.UserID); err != nil {
		return nil, err
	}
	qs, err := s.FetchRandomQuestions(ctx, s.cfg.ExamQuestions)
	if err != nil {
		return nil, err
	}
	if len(qs) < s.cfg.ExamQuestions {
		slog.Warn("question bank smaller than exam size", "have", len(qs), "want", s.cfg.ExamQuestions)
	}
	sess, err := session.New(session.ModeExam, owner, qs, s.examOptions(owner)...)
	if err != nil {
		return nil, err
	}
	if err := sess.Start(ctx); err != nil {
		// A failed first snapshot leaves a running exam; keep it.
		if !errors.Is(err, session.ErrSnapshotNotSaved) {
			return nil, err
		}
		slog.Warn("exam snapshot not saved", "user", owner.UserID, "error", err)
	}
	s.run(sess)
	slog.Info("exam started", "user", owner.UserID, "questions", len(qs))
	return sess, nil
}

// PendingExam returns the user's saved exam progress, or nil if there is
// none. A snapshot that cannot be decoded is deleted.
func (s *Service) PendingExam(ctx context.Context, userID string) (*session.Progress, error) {
	data, ok, err := s.store.GetSnapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return nil, nil
	}
	p, err := session.Restore(data)
	if err != nil {
		slog.Warn("discarding unreadable exam snapshot", "user", userID, "error", err)
		if err := s.store.DeleteSnapshot(ctx, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &p, nil
}

// ResumeExam continues the user's exam. A running exam in memory is returned
// as is; otherwise the saved snapshot is restored with its remaining time.
func (s *Service) ResumeExam(ctx context.Context, owner session.Owner) (*session.Session, error) {
	if sess := s.Active(owner.UserID, session.ModeExam); sess != nil && sess.State() == session.StateRunning {
		return sess, nil
	}
	p, err := s.PendingExam(ctx, owner.UserID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNoPendingExam
	}
	qs, err := s.FetchQuestionsByIDs(ctx, p.QuestionIDs)
	if err != nil {
		return nil, err
	}
	sess, err := session.Resume(owner, qs, *p, s.examOptions(owner)...)
	if err != nil {
		if errors.Is(err, session.ErrSnapshotMismatch) || errors.Is(err, session.ErrSnapshotCorrupt) {
			slog.Warn("discarding exam snapshot", "user", owner.UserID, "error", err)
			if derr := s.store.DeleteSnapshot(ctx, owner.UserID); derr != nil {
				slog.Warn("snapshot not deleted", "user", owner.UserID, "error", derr)
			}
		}
		return nil, err
	}
	if sess.State() == session.StateNotStarted {
		if err := sess.Start(ctx); err != nil && !errors.Is(err, session.ErrSnapshotNotSaved) {
			return nil, err
		}
	}
	s.run(sess)
	slog.Info("exam resumed", "user", owner.UserID, "index", p.CurrentIndex, "time_left", p.TimeLeft)
	return sess, nil
}

// DiscardExam stops the user's exam and deletes its snapshot.
func (s *Service) DiscardExam(ctx context.Context, userID string) error {
	s.unregister(userID, session.ModeExam)
	if err := s.store.DeleteSnapshot(ctx, userID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// FinishExam submits the user's running exam.
func (s *Service) FinishExam(ctx context.Context, userID string) (session.Outcome, error) {
	sess := s.Active(userID, session.ModeExam)
	if sess == nil {
		return session.Outcome{}, ErrNoActiveSession
	}
	return sess.Finish(ctx)
}

func (s *Service) examOptions(owner session.Owner) []session.Option {
	return []session.Option{
		session.WithDuration(s.cfg.ExamDuration),
		session.WithSnapshotStore(s.store),
		session.WithSessionSink(s),
		session.OnComplete(func(out session.Outcome) {
			slog.Info("exam completed", "user", owner.UserID, "session", out.SessionID,
				"correct", out.Result.Correct, "total", out.Result.Total, "timed_out", out.TimedOut)
		}),
	}
}

// run registers sess and drives its countdown until it completes, the user
// discards it, or the service shuts down.
func (s *Service) run(sess *session.Session) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.register(sess, cancel)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := sess.Run(ctx, s.cfg.TickInterval); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("exam timer stopped", "user", sess.Owner().UserID, "error", err)
		}
	}()
}
