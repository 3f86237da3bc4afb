// Package quiz wires question storage, sampling, sessions and explanations
// into the operations the HTTP layer and CLI use.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/sampling"
	"github.com/pavelanni/certprep/internal/session"
)

// Practice size bounds.
const (
	MinPracticeQuestions = 1
	MaxPracticeQuestions = 100
)

// explainTimeout bounds one shared explanation generation.
const explainTimeout = 2 * time.Minute

var (
	ErrNoActiveSession = errors.New("no active session")
	ErrNoPendingExam   = errors.New("no saved exam to resume")
	ErrNoExplainer     = errors.New("explanations are not configured")
)

// Store is the persistence the service needs.
type Store interface {
	session.SnapshotStore
	ListQuestionIDs(ctx context.Context) ([]string, error)
	GetQuestion(ctx context.Context, id string) (model.Question, error)
	GetQuestionsByIDs(ctx context.Context, ids []string) ([]model.Question, error)
	UpdateExplanation(ctx context.Context, id string, exp model.Explanation) error
	QuestionsWithoutExplanation(ctx context.Context) ([]model.Question, error)
	InsertAttempt(ctx context.Context, a model.Attempt) (model.Attempt, error)
	CreateStudySession(ctx context.Context, ss model.StudySession, attempts []model.Attempt) (model.StudySession, error)
	GetStudySessionView(ctx context.Context, id string) (*model.StudySessionView, error)
	LatestIncorrectAttempts(ctx context.Context, userID string) ([]model.AttemptView, error)
	ClearIncorrectAttempts(ctx context.Context, userID string) (int64, error)
}

// Explainer generates explanations for questions.
type Explainer interface {
	Explain(ctx context.Context, q model.Question) (model.Explanation, error)
}

type activeKey struct {
	userID string
	mode   session.Mode
}

type activeSession struct {
	sess   *session.Session
	cancel context.CancelFunc
}

// Service holds one active session per user and mode.
type Service struct {
	store     Store
	explainer Explainer
	cfg       model.ExamConfig
	rnd       *rand.Rand

	mu     sync.Mutex
	active map[activeKey]*activeSession

	explain singleflight.Group

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithRand makes sampling deterministic.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rnd = r }
}

// New creates a service. explainer may be nil when explanations are disabled.
func New(st Store, explainer Explainer, cfg model.ExamConfig, opts ...Option) *Service {
	if cfg.ExamQuestions <= 0 {
		cfg.ExamQuestions = 65
	}
	if cfg.ExamDuration <= 0 {
		cfg.ExamDuration = session.DefaultExamDuration
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTick
	}
	if cfg.PracticeQuestions <= 0 {
		cfg.PracticeQuestions = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:     st,
		explainer: explainer,
		cfg:       cfg,
		active:    make(map[activeKey]*activeSession),
		baseCtx:   ctx,
		stop:      cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the effective exam configuration.
func (s *Service) Config() model.ExamConfig { return s.cfg }

// FetchRandomQuestions picks count distinct questions at random.
func (s *Service) FetchRandomQuestions(ctx context.Context, count int) ([]model.Question, error) {
	ids, err := s.store.ListQuestionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list question ids: %w", err)
	}
	picked := sampling.Sample(ids, count, s.rnd)
	if len(picked) == 0 {
		return []model.Question{}, nil
	}
	qs, err := s.store.GetQuestionsByIDs(ctx, picked)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	return sampling.Shuffle(qs, s.rnd), nil
}

// FetchQuestionsByIDs returns the questions in the requested order.
// Duplicate and unknown IDs are dropped.
func (s *Service) FetchQuestionsByIDs(ctx context.Context, ids []string) ([]model.Question, error) {
	qs, err := s.store.GetQuestionsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	byID := make(map[string]model.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	out := make([]model.Question, 0, len(qs))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
			delete(byID, id)
		}
	}
	return out, nil
}

// SubmitAttempt records a practice answer.
func (s *Service) SubmitAttempt(ctx context.Context, a session.Attempt) error {
	_, err := s.store.InsertAttempt(ctx, model.Attempt{
		QuestionID:      a.QuestionID,
		UserID:          a.UserID,
		SelectedAnswers: a.Selected,
		IsCorrect:       a.IsCorrect,
		TimeSpent:       a.TimeSpent,
	})
	return err
}

// SubmitSession stores a completed session with one attempt per question.
// Each attempt gets the average time per question.
func (s *Service) SubmitSession(ctx context.Context, sum session.Summary) (string, error) {
	res := sum.Result
	perQuestion := 0
	if res.Total > 0 {
		perQuestion = sum.TimeSpent / res.Total
	}
	attempts := make([]model.Attempt, 0, len(res.Results))
	for _, r := range res.Results {
		attempts = append(attempts, model.Attempt{
			QuestionID:      r.QuestionID,
			SelectedAnswers: r.Selected,
			IsCorrect:       r.IsCorrect,
			TimeSpent:       perQuestion,
		})
	}
	ss, err := s.store.CreateStudySession(ctx, model.StudySession{
		UserID:           sum.UserID,
		Mode:             string(sum.Mode),
		TotalQuestions:   res.Total,
		CorrectAnswers:   res.Correct,
		IncorrectAnswers: res.Incorrect,
		TimeSpent:        sum.TimeSpent,
	}, attempts)
	if err != nil {
		return "", err
	}
	slog.Info("study session saved", "id", ss.ID, "user", sum.UserID, "mode", sum.Mode,
		"correct", res.Correct, "total", res.Total)
	return ss.ID, nil
}

// Explain returns the cached explanation for a question, generating and
// storing it on first use. Concurrent requests for the same question share
// one generation.
func (s *Service) Explain(ctx context.Context, questionID string) (model.Explanation, error) {
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return model.Explanation{}, err
	}
	if q.Explanation != "" {
		return model.Explanation{Text: q.Explanation, Keywords: q.Keywords}, nil
	}
	if s.explainer == nil {
		return model.Explanation{}, ErrNoExplainer
	}

	ch := s.explain.DoChan(questionID, func() (any, error) {
		// The generation outlives any single waiter; only Shutdown or the
		// timeout stops it.
		gctx, cancel := context.WithTimeout(s.baseCtx, explainTimeout)
		defer cancel()
		exp, err := s.explainer.Explain(gctx, q)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpdateExplanation(gctx, q.ID, exp); err != nil {
			return nil, fmt.Errorf("store explanation: %w", err)
		}
		return exp, nil
	})
	select {
	case <-ctx.Done():
		return model.Explanation{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Explanation{}, res.Err
		}
		slog.Debug("explanation ready", "question", questionID, "shared", res.Shared)
		return res.Val.(model.Explanation), nil
	}
}

// WarmExplanations generates explanations for every question that lacks one,
// at most concurrency at a time. It returns how many were generated.
func (s *Service) WarmExplanations(ctx context.Context, concurrency int) (int, error) {
	qs, err := s.store.QuestionsWithoutExplanation(ctx)
	if err != nil {
		return 0, err
	}
	if concurrency < 1 {
		concurrency = 1
	}
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, q := range qs {
		g.Go(func() error {
			if _, err := s.Explain(gctx, q.ID); err != nil {
				slog.Warn("explanation failed", "question", q.ID, "error", err)
				return nil
			}
			done.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(done.Load()), err
}

// IncorrectAttempts lists questions whose latest attempt was wrong.
func (s *Service) IncorrectAttempts(ctx context.Context, userID string) ([]model.AttemptView, error) {
	return s.store.LatestIncorrectAttempts(ctx, userID)
}

// ClearIncorrect deletes the user's wrong attempts.
func (s *Service) ClearIncorrect(ctx context.Context, userID string) (int64, error) {
	return s.store.ClearIncorrectAttempts(ctx, userID)
}

// SessionDetail returns a stored study session with its attempts, or nil.
func (s *Service) SessionDetail(ctx context.Context, id string) (*model.StudySessionView, error) {
	return s.store.GetStudySessionView(ctx, id)
}

// Active returns the user's running or just-completed session in mode.
func (s *Service) Active(userID string, mode session.Mode) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.active[activeKey{userID, mode}]; ok {
		return a.sess
	}
	return nil
}

// Shutdown stops all exam timers. Exam progress stays in the snapshot store.
func (s *Service) Shutdown() {
	s.stop()
	s.wg.Wait()
}

// register replaces any active session of the same user and mode.
func (s *Service) register(sess *session.Session, cancel context.CancelFunc) {
	key := activeKey{sess.Owner().UserID, sess.Mode()}
	s.mu.Lock()
	old := s.active[key]
	s.active[key] = &activeSession{sess: sess, cancel: cancel}
	s.mu.Unlock()
	if old != nil && old.cancel != nil {
		old.cancel()
	}
}

func (s *Service) unregister(userID string, mode session.Mode) {
	s.mu.Lock()
	a := s.active[activeKey{userID, mode}]
	delete(s.active, activeKey{userID, mode})
	s.mu.Unlock()
	if a != nil && a.cancel != nil {
		a.cancel()
	}
}
