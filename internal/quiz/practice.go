package quiz

import (
	"context"
	"log/slog"

	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/session"
)

// ClampPracticeCount bounds a requested practice size; zero or negative
// picks the default.
func ClampPracticeCount(n, def int) int {
	if n <= 0 {
		n = def
	}
	return max(MinPracticeQuestions, min(n, MaxPracticeQuestions))
}

// StartPractice begins a practice run. With retryIDs the run covers those
// questions in that order; otherwise count random questions are drawn.
// Practice answers are recorded one by one; the run itself is not stored.
func (s *Service) StartPractice(ctx context.Context, owner session.Owner, count int, retryIDs []string) (*session.Session, error) {
	qs, err := s.practiceQuestions(ctx, count, retryIDs)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(session.ModePractice, owner, qs,
		session.WithAttemptSink(s),
		session.OnComplete(func(out session.Outcome) {
			slog.Info("practice completed", "user", owner.UserID,
				"correct", out.Result.Correct, "total", out.Result.Total)
		}),
	)
	if err != nil {
		return nil, err
	}
	if err := sess.Start(ctx); err != nil {
		return nil, err
	}
	s.register(sess, nil)
	slog.Info("practice started", "user", owner.UserID, "questions", len(qs), "retry", len(retryIDs) > 0)
	return sess, nil
}

// EndPractice drops the user's practice run.
func (s *Service) EndPractice(userID string) {
	s.unregister(userID, session.ModePractice)
}

func (s *Service) practiceQuestions(ctx context.Context, count int, retryIDs []string) ([]model.Question, error) {
	if len(retryIDs) > 0 {
		return s.FetchQuestionsByIDs(ctx, retryIDs)
	}
	return s.FetchRandomQuestions(ctx, ClampPracticeCount(count, s.cfg.PracticeQuestions))
}
