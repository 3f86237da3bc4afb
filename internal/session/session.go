// Package session drives a single practice or exam run: question
// progression, answer selection, the exam countdown and completion.
//
// A Session is safe for concurrent use. User actions and timer ticks are
// serialized by one mutex, and so are the sink calls they trigger.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/scoring"
)

// Mode selects practice or exam behavior.
type Mode string

const (
	ModePractice Mode = "practice"
	ModeExam     Mode = "exam"
)

// State is the lifecycle state of a session.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
)

// DefaultExamDuration is the SAA-C03 exam length.
const DefaultExamDuration = 130 * time.Minute

var (
	ErrNotRunning        = errors.New("session is not running")
	ErrAlreadyStarted    = errors.New("session already started")
	ErrWrongMode         = errors.New("operation not available in this mode")
	ErrNoQuestions       = errors.New("session has no questions")
	ErrOptionOutOfRange  = errors.New("option out of range")
	ErrIndexOutOfRange   = errors.New("question index out of range")
	ErrAlreadySubmitted  = errors.New("question already submitted")
	ErrNotSubmitted      = errors.New("question not submitted yet")
	ErrEmptySelection    = errors.New("no option selected")
	ErrSnapshotCorrupt   = errors.New("snapshot is corrupt")
	ErrSnapshotMismatch  = errors.New("snapshot does not match questions")
	ErrAttemptNotSaved   = errors.New("attempt not saved")
	ErrSessionNotSaved   = errors.New("session not saved")
	ErrSnapshotNotSaved  = errors.New("snapshot not saved")
	ErrDuplicateQuestion = errors.New("duplicate question")
)

// Owner identifies who the session belongs to.
type Owner struct {
	UserID string
	Name   string
}

// Attempt is one practice answer handed to the AttemptSink.
type Attempt struct {
	QuestionID string
	UserID     string
	Selected   []int
	IsCorrect  bool
	TimeSpent  int
}

// AttemptSink records practice answers as they are submitted.
type AttemptSink interface {
	SubmitAttempt(ctx context.Context, a Attempt) error
}

// Summary is a completed session handed to the SessionSink.
type Summary struct {
	UserID    string
	Mode      Mode
	Result    scoring.Result
	TimeSpent int
}

// SessionSink records completed sessions and returns the stored id.
type SessionSink interface {
	SubmitSession(ctx context.Context, s Summary) (string, error)
}

// Feedback is shown after a practice answer is submitted.
type Feedback struct {
	QuestionID     string `json:"questionId"`
	Selected       []int  `json:"selected"`
	CorrectAnswers []int  `json:"correctAnswers"`
	IsCorrect      bool   `json:"isCorrect"`
}

// Outcome is the final result of a completed session.
type Outcome struct {
	SessionID string         `json:"sessionId,omitempty"`
	Result    scoring.Result `json:"result"`
	TimeSpent int            `json:"timeSpent"`
	TimedOut  bool           `json:"timedOut"`
	Err       error          `json:"-"`
}

// View is a read-only picture of the session for rendering.
type View struct {
	Mode          Mode           `json:"mode"`
	State         State          `json:"state"`
	Index         int            `json:"index"`
	Total         int            `json:"total"`
	Question      model.Question `json:"question"`
	Selected      []int          `json:"selected"`
	Required      int            `json:"required"`
	Answered      bool           `json:"answered"`
	AnsweredCount int            `json:"answeredCount"`
	TimeLeft      int            `json:"timeLeft"`
	Feedback      *Feedback      `json:"feedback,omitempty"`
	Outcome       *Outcome       `json:"outcome,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithAttemptSink sets where practice answers go.
func WithAttemptSink(s AttemptSink) Option {
	return func(sess *Session) { sess.attempts = s }
}

// WithSessionSink sets where completed sessions go.
func WithSessionSink(s SessionSink) Option {
	return func(sess *Session) { sess.sessions = s }
}

// WithSnapshotStore enables exam progress persistence.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(sess *Session) { sess.snapshots = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(sess *Session) { sess.now = now }
}

// WithDuration sets the exam countdown length, truncated to whole seconds.
func WithDuration(d time.Duration) Option {
	return func(sess *Session) { sess.duration = d }
}

// OnComplete registers fn to run once after the session completes.
// fn is called without the session lock held.
func OnComplete(fn func(Outcome)) Option {
	return func(sess *Session) { sess.onComplete = append(sess.onComplete, fn) }
}

// Session is one practice or exam run for one owner.
type Session struct {
	mu sync.Mutex

	mode      Mode
	owner     Owner
	questions []model.Question
	byID      map[string]int

	state         State
	progress      Progress
	questionStart time.Time
	outcome       *Outcome
	done          chan struct{}
	pending       []func()

	duration   time.Duration
	now        func() time.Time
	attempts   AttemptSink
	sessions   SessionSink
	snapshots  SnapshotStore
	onComplete []func(Outcome)
}

// New creates a session over questions in the given order.
func New(mode Mode, owner Owner, questions []model.Question, opts ...Option) (*Session, error) {
	if mode != ModePractice && mode != ModeExam {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	s := &Session{
		mode:     mode,
		owner:    owner,
		state:    StateNotStarted,
		done:     make(chan struct{}),
		duration: DefaultExamDuration,
		now:      time.Now,
		byID:     make(map[string]int, len(questions)),
	}
	for _, o := range opts {
		o(s)
	}

	ids := make([]string, 0, len(questions))
	for i, q := range questions {
		if _, dup := s.byID[q.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateQuestion, q.ID)
		}
		s.byID[q.ID] = i
		ids = append(ids, q.ID)
	}
	s.questions = slices.Clone(questions)
	s.progress = Progress{
		UserID:      owner.UserID,
		Mode:        mode,
		QuestionIDs: ids,
		Selections:  map[string][]int{},
		Answered:    map[string]bool{},
	}
	return s, nil
}

// Resume rebuilds a session from restored progress. questions may come in
// any order; they are arranged to match the progress. Remaining time is
// taken verbatim, with no adjustment for time spent away.
func Resume(owner Owner, questions []model.Question, p Progress, opts ...Option) (*Session, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if p.UserID != owner.UserID {
		return nil, fmt.Errorf("%w: snapshot belongs to another user", ErrSnapshotMismatch)
	}
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]model.Question, 0, len(p.QuestionIDs))
	for _, id := range p.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: question %s missing", ErrSnapshotMismatch, id)
		}
		ordered = append(ordered, q)
	}

	s, err := New(p.Mode, owner, ordered, opts...)
	if err != nil {
		return nil, err
	}
	s.progress = p.clone()
	for id, sel := range s.progress.Selections {
		k := s.questions[s.byID[id]].RequiredSelections()
		s.progress.Selections[id] = clampSelection(sel, k, len(s.questions[s.byID[id]].Options))
	}
	if p.Started {
		s.state = StateRunning
		s.questionStart = s.now()
	}
	return s, nil
}

// clampSelection drops out-of-range options and keeps only the newest k picks.
func clampSelection(sel []int, k, optionCount int) []int {
	var out []int
	for _, v := range sel {
		if v >= 0 && v < optionCount && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	if k < 1 {
		k = 1
	}
	if len(out) > k {
		out = out[len(out)-k:]
	}
	return out
}

// unlock releases the mutex and then runs callbacks queued while it was held.
func (s *Session) unlock() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// Mode returns the session mode.
func (s *Session) Mode() Mode { return s.mode }

// Owner returns the session owner.
func (s *Session) Owner() Owner { return s.owner }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns a copy of the current progress.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.clone()
}

// Questions returns the session questions in order.
func (s *Session) Questions() []model.Question {
	return slices.Clone(s.questions)
}

// Done is closed when the session completes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Outcome returns the final result once the session has completed.
func (s *Session) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return Outcome{}, false
	}
	return *s.outcome, true
}

// Start begins the run and, for exams, the countdown.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlock()
	if s.state != StateNotStarted {
		return ErrAlreadyStarted
	}
	now := s.now()
	s.state = StateRunning
	s.progress.Started = true
	s.progress.StartTime = now
	s.progress.CurrentIndex = 0
	if s.mode == ModeExam {
		s.progress.TimeLeft = int(s.duration / time.Second)
	}
	s.questionStart = now
	return s.persist(ctx)
}

// Current describes the question under the cursor.
func (s *Session) Current() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Session) view() View {
	idx := s.progress.CurrentIndex
	q := s.questions[idx]
	sel := slices.Clone(s.progress.Selections[q.ID])
	if sel == nil {
		sel = []int{}
	}
	v := View{
		Mode:     s.mode,
		State:    s.state,
		Index:    idx,
		Total:    len(s.questions),
		Selected: sel,
		Required: q.RequiredSelections(),
		TimeLeft: s.progress.TimeLeft,
	}
	if s.mode == ModeExam {
		v.Answered = len(sel) > 0
		for _, id := range s.progress.QuestionIDs {
			if len(s.progress.Selections[id]) > 0 {
				v.AnsweredCount++
			}
		}
	} else {
		v.Answered = s.progress.Answered[q.ID]
		v.AnsweredCount = len(s.progress.Answered)
	}

	switch {
	case s.mode == ModePractice && v.Answered:
		v.Question = q
		fb := feedback(q, sel)
		v.Feedback = &fb
	case s.state == StateCompleted:
		v.Question = q
	default:
		v.Question = q.StripAnswers()
	}
	if s.outcome != nil {
		out := *s.outcome
		v.Outcome = &out
	}
	return v
}

func feedback(q model.Question, sel []int) Feedback {
	return Feedback{
		QuestionID:     q.ID,
		Selected:       slices.Clone(sel),
		CorrectAnswers: slices.Clone(q.CorrectAnswers),
		IsCorrect:      scoring.IsCorrect(q.CorrectAnswers, sel),
	}
}

// Select picks option opt on the current question.
func (s *Session) Select(ctx context.Context, opt int) error {
	return s.changeSelection(ctx, opt, func(sel []int, k int) []int { return Pick(sel, opt, k) })
}

// Deselect removes option opt from the current question.
func (s *Session) Deselect(ctx context.Context, opt int) error {
	return s.changeSelection(ctx, opt, func(sel []int, _ int) []int { return Unpick(sel, opt) })
}

// Toggle flips option opt on the current question.
func (s *Session) Toggle(ctx context.Context, opt int) error {
	return s.changeSelection(ctx, opt, func(sel []int, k int) []int { return Toggle(sel, opt, k) })
}

func (s *Session) changeSelection(ctx context.Context, opt int, change func([]int, int) []int) error {
	s.mu.Lock()
	defer s.unlock()
	if s.state != StateRunning {
		return ErrNotRunning
	}
	q := s.questions[s.progress.CurrentIndex]
	if opt < 0 || opt >= len(q.Options) {
		return fmt.Errorf("%w: %d", ErrOptionOutOfRange, opt)
	}
	if s.mode == ModePractice && s.progress.Answered[q.ID] {
		return ErrAlreadySubmitted
	}
	sel := change(s.progress.Selections[q.ID], q.RequiredSelections())
	if len(sel) == 0 {
		delete(s.progress.Selections, q.ID)
	} else {
		s.progress.Selections[q.ID] = sel
	}
	return s.persist(ctx)
}

// GoTo moves the exam cursor to question i.
func (s *Session) GoTo(ctx context.Context, i int) error {
	s.mu.Lock()
	defer s.unlock()
	if s.mode != ModeExam {
		return ErrWrongMode
	}
	if s.state != StateRunning {
		return ErrNotRunning
	}
	if i < 0 || i >= len(s.questions) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	s.progress.CurrentIndex = i
	return s.persist(ctx)
}

// Next advances the cursor. In practice mode the current question must be
// submitted first, and advancing past the last question completes the
// session. In exam mode the cursor stops at the last question.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlock()
	if s.state != StateRunning {
		return ErrNotRunning
	}
	last := len(s.questions) - 1
	if s.mode == ModePractice {
		q := s.questions[s.progress.CurrentIndex]
		if !s.progress.Answered[q.ID] {
			return ErrNotSubmitted
		}
		if s.progress.CurrentIndex == last {
			_, err := s.complete(ctx, false)
			return err
		}
		s.progress.CurrentIndex++
		s.questionStart = s.now()
		return nil
	}
	if s.progress.CurrentIndex < last {
		s.progress.CurrentIndex++
	}
	return s.persist(ctx)
}

// Prev moves the exam cursor back, stopping at the first question.
func (s *Session) Prev(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlock()
	if s.mode != ModeExam {
		return ErrWrongMode
	}
	if s.state != StateRunning {
		return ErrNotRunning
	}
	if s.progress.CurrentIndex > 0 {
		s.progress.CurrentIndex--
	}
	return s.persist(ctx)
}

// Submit grades the current practice question and records the attempt.
// The question counts as answered even when the attempt sink fails; the
// failure is returned wrapped in ErrAttemptNotSaved alongside the feedback.
func (s *Session) Submit(ctx context.Context) (Feedback, error) {
	s.mu.Lock()
	defer s.unlock()
	if s.mode != ModePractice {
		return Feedback{}, ErrWrongMode
	}
	if s.state != StateRunning {
		return Feedback{}, ErrNotRunning
	}
	q := s.questions[s.progress.CurrentIndex]
	if s.progress.Answered[q.ID] {
		return Feedback{}, ErrAlreadySubmitted
	}
	sel := s.progress.Selections[q.ID]
	if len(sel) == 0 {
		return Feedback{}, ErrEmptySelection
	}

	fb := feedback(q, sel)
	s.progress.Answered[q.ID] = true
	spent := int(s.now().Sub(s.questionStart) / time.Second)
	if spent < 0 {
		spent = 0
	}

	if s.attempts == nil {
		return fb, nil
	}
	err := s.attempts.SubmitAttempt(ctx, Attempt{
		QuestionID: q.ID,
		UserID:     s.owner.UserID,
		Selected:   slices.Clone(sel),
		IsCorrect:  fb.IsCorrect,
		TimeSpent:  spent,
	})
	if err != nil {
		return fb, fmt.Errorf("%w: %w", ErrAttemptNotSaved, err)
	}
	return fb, nil
}

// Tick takes one second off the exam countdown. Reaching zero completes the
// session with whatever is selected. Ticks outside a running exam do nothing.
func (s *Session) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlock()
	if s.mode != ModeExam {
		return ErrWrongMode
	}
	if s.state != StateRunning {
		return nil
	}
	if s.progress.TimeLeft > 0 {
		s.progress.TimeLeft--
	}
	if s.progress.TimeLeft == 0 {
		_, err := s.complete(ctx, true)
		return err
	}
	return s.persist(ctx)
}

// Finish ends an exam early and submits it.
func (s *Session) Finish(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.unlock()
	if s.mode != ModeExam {
		return Outcome{}, ErrWrongMode
	}
	if s.state != StateRunning {
		return Outcome{}, ErrNotRunning
	}
	return s.complete(ctx, false)
}

// Run ticks the exam every interval until it completes or ctx is done, so
// interval is the wall-clock length of one countdown second. Anything other
// than time.Second scales the exam clock.
// Tick failures are logged and the countdown carries on.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if s.mode != ModeExam {
		return ErrWrongMode
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-t.C:
			if err := s.Tick(ctx); err != nil {
				slog.Warn("exam tick failed", "user", s.owner.UserID, "error", err)
			}
		}
	}
}

// Clear removes the owner's persisted snapshot.
func (s *Session) Clear(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	if err := s.snapshots.DeleteSnapshot(ctx, s.owner.UserID); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// complete must be called with the lock held and the session running.
func (s *Session) complete(ctx context.Context, timedOut bool) (Outcome, error) {
	s.state = StateCompleted

	items := make([]scoring.Item, len(s.questions))
	for i := range s.questions {
		q := s.questions[i]
		items[i] = scoring.Item{
			QuestionID: q.ID,
			Question:   &q,
			Selected:   slices.Clone(s.progress.Selections[q.ID]),
		}
	}
	res := scoring.Score(items)

	var spent int
	if s.mode == ModeExam {
		spent = int(s.duration/time.Second) - s.progress.TimeLeft
	} else {
		spent = int(s.now().Sub(s.progress.StartTime) / time.Second)
	}
	if spent < 0 {
		spent = 0
	}
	out := Outcome{Result: res, TimeSpent: spent, TimedOut: timedOut}

	var retErr error
	if s.sessions != nil {
		id, err := s.sessions.SubmitSession(ctx, Summary{
			UserID:    s.owner.UserID,
			Mode:      s.mode,
			Result:    res,
			TimeSpent: spent,
		})
		if err != nil {
			out.Err = err
			retErr = fmt.Errorf("%w: %w", ErrSessionNotSaved, err)
		}
		out.SessionID = id
	}

	// The snapshot stays when the submit failed so the run can be resumed
	// and finished again.
	if s.mode == ModeExam && retErr == nil {
		if err := s.Clear(ctx); err != nil {
			slog.Warn("exam snapshot not cleared", "user", s.owner.UserID, "error", err)
		}
	}

	s.outcome = &out
	close(s.done)
	for _, fn := range s.onComplete {
		s.pending = append(s.pending, func() { fn(out) })
	}
	return out, retErr
}

// persist writes the exam snapshot. Called with the lock held.
func (s *Session) persist(ctx context.Context) error {
	if s.mode != ModeExam || s.snapshots == nil || s.state != StateRunning {
		return nil
	}
	data, err := Save(s.progress)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotNotSaved, err)
	}
	if err := s.snapshots.PutSnapshot(ctx, s.owner.UserID, data); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotNotSaved, err)
	}
	return nil
}
