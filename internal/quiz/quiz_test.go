package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/session"
	"github.com/pavelanni/certprep/internal/store"
)

type fixture struct {
	store *store.Store
	owner session.Owner
	ids   []string
}

func newFixture(t *testing.T, questions int) *fixture {
	t.Helper()
	st, err := store.New(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	uid, err := st.CreateUser(ctx, model.User{
		Username: "alice", Name: "Alice", PasswordHash: "x", Role: model.UserRoleStudent, Active: true,
	})
	require.NoError(t, err)

	f := &fixture{store: st, owner: session.Owner{UserID: uid, Name: "Alice"}}
	for i := range questions {
		correct := []int{i % 4}
		if i%3 == 2 {
			correct = []int{0, 1}
		}
		id, err := st.InsertQuestion(ctx, model.Question{
			Text:           fmt.Sprintf("Question %02d", i),
			Options:        []string{"EC2", "S3", "RDS", "SQS"},
			CorrectAnswers: correct,
			Difficulty:     model.DifficultyMedium,
			Topic:          "Storage",
		})
		require.NoError(t, err)
		f.ids = append(f.ids, id)
	}
	return f
}

func (f *fixture) service(t *testing.T, cfg model.ExamConfig, explainer Explainer) *Service {
	t.Helper()
	svc := New(f.store, explainer, cfg, WithRand(rand.New(rand.NewPCG(1, 2))))
	t.Cleanup(svc.Shutdown)
	return svc
}

func (f *fixture) correct(t *testing.T, id string) []int {
	t.Helper()
	q, err := f.store.GetQuestion(context.Background(), id)
	require.NoError(t, err)
	return q.CorrectAnswers
}

func TestFetchRandomQuestions(t *testing.T) {
	f := newFixture(t, 30)
	svc := f.service(t, model.ExamConfig{}, nil)
	ctx := context.Background()

	qs, err := svc.FetchRandomQuestions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, qs, 10)
	seen := map[string]bool{}
	for _, q := range qs {
		assert.False(t, seen[q.ID], "duplicate %s", q.ID)
		seen[q.ID] = true
	}

	qs, err = svc.FetchRandomQuestions(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, qs, 30)

	qs, err = svc.FetchRandomQuestions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestFetchQuestionsByIDsKeepsRequestOrder(t *testing.T) {
	f := newFixture(t, 5)
	svc := f.service(t, model.ExamConfig{}, nil)

	want := []string{f.ids[3], f.ids[0], f.ids[4]}
	req := []string{f.ids[3], "missing", f.ids[0], f.ids[3], f.ids[4]}
	qs, err := svc.FetchQuestionsByIDs(context.Background(), req)
	require.NoError(t, err)

	got := make([]string, len(qs))
	for i, q := range qs {
		got[i] = q.ID
	}
	assert.Equal(t, want, got)
}

func TestClampPracticeCount(t *testing.T) {
	tests := []struct{ n, def, want int }{
		{0, 10, 10},
		{-5, 10, 10},
		{1, 10, 1},
		{55, 10, 55},
		{100, 10, 100},
		{101, 10, 100},
		{0, 500, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampPracticeCount(tt.n, tt.def), "ClampPracticeCount(%d, %d)", tt.n, tt.def)
	}
}

func TestPracticeRecordsAttempts(t *testing.T) {
	f := newFixture(t, 10)
	svc := f.service(t, model.ExamConfig{}, nil)
	ctx := context.Background()

	sess, err := svc.StartPractice(ctx, f.owner, 3, nil)
	require.NoError(t, err)
	assert.Same(t, sess, svc.Active(f.owner.UserID, session.ModePractice))

	// Answer the first question wrong, the rest right.
	var wrongID string
	for i := range 3 {
		v := sess.Current()
		want := f.correct(t, v.Question.ID)
		if i == 0 {
			wrongID = v.Question.ID
			require.NoError(t, sess.Select(ctx, (want[0]+1)%4))
			if len(want) > 1 {
				require.NoError(t, sess.Select(ctx, (want[1]+2)%4))
			}
		} else {
			for _, o := range want {
				require.NoError(t, sess.Select(ctx, o))
			}
		}
		fb, err := sess.Submit(ctx)
		require.NoError(t, err)
		assert.Equal(t, i != 0, fb.IsCorrect)
		require.NoError(t, sess.Next(ctx))
	}

	assert.Equal(t, session.StateCompleted, sess.State())
	out, ok := sess.Outcome()
	require.True(t, ok)
	assert.Equal(t, 2, out.Result.Correct)
	assert.Empty(t, out.SessionID, "practice runs are not stored as sessions")

	wrong, err := svc.IncorrectAttempts(ctx, f.owner.UserID)
	require.NoError(t, err)
	require.Len(t, wrong, 1)
	assert.Equal(t, wrongID, wrong[0].QuestionID)

	n, err := svc.ClearIncorrect(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	wrong, err = svc.IncorrectAttempts(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.Empty(t, wrong)
}

func TestPracticeRetryUsesGivenOrder(t *testing.T) {
	f := newFixture(t, 6)
	svc := f.service(t, model.ExamConfig{}, nil)

	retry := []string{f.ids[5], f.ids[1]}
	sess, err := svc.StartPractice(context.Background(), f.owner, 50, retry)
	require.NoError(t, err)
	assert.Equal(t, retry, sess.Progress().QuestionIDs)

	svc.EndPractice(f.owner.UserID)
	assert.Nil(t, svc.Active(f.owner.UserID, session.ModePractice))
}

func TestPracticeWithEmptyBank(t *testing.T) {
	f := newFixture(t, 0)
	svc := f.service(t, model.ExamConfig{}, nil)
	_, err := svc.StartPractice(context.Background(), f.owner, 5, nil)
	assert.ErrorIs(t, err, session.ErrNoQuestions)
}

func TestExamFinishStoresSession(t *testing.T) {
	f := newFixture(t, 12)
	svc := f.service(t, model.ExamConfig{ExamQuestions: 5, TickInterval: time.Hour}, nil)
	ctx := context.Background()

	sess, err := svc.StartExam(ctx, f.owner)
	require.NoError(t, err)
	assert.Len(t, sess.Questions(), 5)

	pending, err := svc.PendingExam(ctx, f.owner.UserID)
	require.NoError(t, err)
	require.NotNil(t, pending, "starting an exam saves a snapshot")

	for i, q := range sess.Questions() {
		require.NoError(t, sess.GoTo(ctx, i))
		for _, o := range f.correct(t, q.ID) {
			require.NoError(t, sess.Select(ctx, o))
		}
	}

	out, err := svc.FinishExam(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, 5, out.Result.Correct)
	require.NotEmpty(t, out.SessionID)

	pending, err = svc.PendingExam(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.Nil(t, pending, "snapshot removed after a successful submit")

	detail, err := svc.SessionDetail(ctx, out.SessionID)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "exam", detail.Session.Mode)
	assert.Equal(t, 5, detail.Session.CorrectAnswers)
	assert.Len(t, detail.Attempts, 5)

	_, err = svc.FinishExam(ctx, f.owner.UserID)
	assert.ErrorIs(t, err, session.ErrNotRunning)
}

func TestExamTimesOut(t *testing.T) {
	f := newFixture(t, 4)
	svc := f.service(t, model.ExamConfig{ExamQuestions: 4, ExamDuration: 3 * time.Second, TickInterval: 5 * time.Millisecond}, nil)
	ctx := context.Background()

	sess, err := svc.StartExam(ctx, f.owner)
	require.NoError(t, err)

	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("exam did not time out")
	}
	out, ok := sess.Outcome()
	require.True(t, ok)
	assert.True(t, out.TimedOut)
	assert.Equal(t, 3, out.TimeSpent)
	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, 4, out.Result.Total)
}

func TestResumeExamAfterRestart(t *testing.T) {
	f := newFixture(t, 10)
	cfg := model.ExamConfig{ExamQuestions: 6, TickInterval: time.Hour}
	ctx := context.Background()

	first := New(f.store, nil, cfg)
	sess, err := first.StartExam(ctx, f.owner)
	require.NoError(t, err)
	require.NoError(t, sess.GoTo(ctx, 2))
	require.NoError(t, sess.Select(ctx, 3))
	before := sess.Progress()
	first.Shutdown()

	second := f.service(t, cfg, nil)
	_, err = second.FinishExam(ctx, f.owner.UserID)
	require.ErrorIs(t, err, ErrNoActiveSession)

	pending, err := second.PendingExam(ctx, f.owner.UserID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, 2, pending.CurrentIndex)

	resumed, err := second.ResumeExam(ctx, f.owner)
	require.NoError(t, err)
	v := resumed.Current()
	assert.Equal(t, session.StateRunning, v.State)
	assert.Equal(t, 2, v.Index)
	assert.Equal(t, []int{3}, v.Selected)
	assert.Equal(t, before.QuestionIDs, resumed.Progress().QuestionIDs)
	assert.Equal(t, before.TimeLeft, v.TimeLeft)

	again, err := second.ResumeExam(ctx, f.owner)
	require.NoError(t, err)
	assert.Same(t, resumed, again, "a running exam is reused")
}

func TestResumeWithoutSnapshot(t *testing.T) {
	f := newFixture(t, 3)
	svc := f.service(t, model.ExamConfig{}, nil)
	_, err := svc.ResumeExam(context.Background(), f.owner)
	assert.ErrorIs(t, err, ErrNoPendingExam)
}

func TestPendingExamDropsCorruptSnapshot(t *testing.T) {
	f := newFixture(t, 3)
	svc := f.service(t, model.ExamConfig{}, nil)
	ctx := context.Background()

	require.NoError(t, f.store.PutSnapshot(ctx, f.owner.UserID, []byte("{not json")))
	p, err := svc.PendingExam(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, ok, err := f.store.GetSnapshot(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.False(t, ok, "corrupt snapshot deleted")
}

func TestStartExamReplacesRunningExam(t *testing.T) {
	f := newFixture(t, 10)
	svc := f.service(t, model.ExamConfig{ExamQuestions: 3, TickInterval: time.Hour}, nil)
	ctx := context.Background()

	first, err := svc.StartExam(ctx, f.owner)
	require.NoError(t, err)
	second, err := svc.StartExam(ctx, f.owner)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Same(t, second, svc.Active(f.owner.UserID, session.ModeExam))

	require.NoError(t, svc.DiscardExam(ctx, f.owner.UserID))
	assert.Nil(t, svc.Active(f.owner.UserID, session.ModeExam))
	p, err := svc.PendingExam(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

type fakeExplainer struct {
	calls   atomic.Int32
	release chan struct{}
	failOn  string
}

func (e *fakeExplainer) Explain(ctx context.Context, q model.Question) (model.Explanation, error) {
	e.calls.Add(1)
	if e.release != nil {
		select {
		case <-e.release:
		case <-ctx.Done():
			return model.Explanation{}, ctx.Err()
		}
	}
	if q.Text == e.failOn {
		return model.Explanation{}, errors.New("model unavailable")
	}
	return model.Explanation{Text: "About " + q.Text, Keywords: []string{"S3"}}, nil
}

func TestExplainSharesGenerationAndCaches(t *testing.T) {
	f := newFixture(t, 2)
	exp := &fakeExplainer{release: make(chan struct{})}
	svc := f.service(t, model.ExamConfig{}, exp)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]model.Explanation, 5)
	errs := make([]error, 5)
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Explain(ctx, f.ids[0])
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(exp.release)
	wg.Wait()

	for i := range 5 {
		require.NoError(t, errs[i])
		assert.Equal(t, "About Question 00", results[i].Text)
	}
	assert.EqualValues(t, 1, exp.calls.Load())

	got, err := svc.Explain(ctx, f.ids[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"S3"}, got.Keywords)
	assert.EqualValues(t, 1, exp.calls.Load(), "stored explanation is reused")
}

func TestExplainSurvivesFirstCallerCancel(t *testing.T) {
	f := newFixture(t, 1)
	exp := &fakeExplainer{release: make(chan struct{})}
	svc := f.service(t, model.ExamConfig{}, exp)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Explain(first, f.ids[0])
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return exp.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		exp model.Explanation
		err error
	}
	second := make(chan result, 1)
	go func() {
		e, err := svc.Explain(context.Background(), f.ids[0])
		second <- result{e, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(exp.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "About Question 00", got.exp.Text)
	assert.EqualValues(t, 1, exp.calls.Load())

	stored, err := f.store.GetQuestion(context.Background(), f.ids[0])
	require.NoError(t, err)
	assert.Equal(t, "About Question 00", stored.Explanation)
}

func TestExplainWithoutExplainer(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.service(t, model.ExamConfig{}, nil)
	_, err := svc.Explain(context.Background(), f.ids[0])
	assert.Error(t, err)
}

func TestWarmExplanations(t *testing.T) {
	f := newFixture(t, 6)
	exp := &fakeExplainer{failOn: "Question 03"}
	svc := f.service(t, model.ExamConfig{}, exp)
	ctx := context.Background()

	n, err := svc.WarmExplanations(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	left, err := f.store.QuestionsWithoutExplanation(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "Question 03", left[0].Text)
}
