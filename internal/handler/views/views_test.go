package views

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/certprep/internal/i18n"
	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/session"
)

func renderString(t *testing.T, lang string, fn func(ctx context.Context, buf *bytes.Buffer) error) string {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatal(err)
	}
	ctx := i18n.WithLocalizer(context.Background(), i18n.NewLocalizer(lang))
	var buf bytes.Buffer
	if err := fn(ctx, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func TestIndexPageAnonymous(t *testing.T) {
	html := renderString(t, "en", func(ctx context.Context, buf *bytes.Buffer) error {
		return IndexPage(IndexData{LoginError: true}).Render(ctx, buf)
	})
	for _, want := range []string{`action="/api/auth/login"`, "Invalid username or password."} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(html, "Start exam") {
		t.Error("anonymous page should not offer an exam")
	}
}

func TestIndexPageUser(t *testing.T) {
	d := IndexData{
		User:          &model.User{Name: "Kim <script>"},
		QuestionCount: 120,
		ExamQuestions: 65,
		ExamDuration:  130 * time.Minute,
		Pending: &session.Progress{
			QuestionIDs:  make([]string, 65),
			CurrentIndex: 9,
			TimeLeft:     500,
		},
		IncorrectCount: 3,
		Sessions: []model.StudySession{{
			ID: "s1", Mode: "exam", TotalQuestions: 65, CorrectAnswers: 47,
			TimeSpent: 3725, CreatedAt: time.Now().Add(-2 * time.Hour),
		}},
	}
	html := renderString(t, "ko", func(ctx context.Context, buf *bytes.Buffer) error {
		return IndexPage(d).Render(ctx, buf)
	})
	for _, want := range []string{
		"Kim &lt;script&gt;",
		"120개의 문제가 있습니다.",
		"65문제, 130분.",
		"65문제 중 10번, 남은 시간 8:20.",
		"복습할 문제 3개.",
		`href="/results/s1"`,
		"47/65 (72.3%)",
		"1:02:05",
		"경계",
		"2 hours ago",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestResultsPage(t *testing.T) {
	v := model.StudySessionView{
		Session: model.StudySession{ID: "s1", Mode: "practice", TotalQuestions: 2, CorrectAnswers: 1, TimeSpent: 75, CreatedAt: time.Now()},
		Attempts: []model.AttemptView{
			{
				Attempt:  model.Attempt{SelectedAnswers: []int{0}, IsCorrect: true},
				Question: model.Question{Text: "Pick S3", Options: []string{"S3", "EBS", "EFS", "FSx"}, CorrectAnswers: []int{0}},
			},
			{
				Attempt:  model.Attempt{SelectedAnswers: []int{}, IsCorrect: false},
				Question: model.Question{Text: "Pick two", Options: []string{"A", "B", "C", "D", "E"}, CorrectAnswers: []int{1, 4}},
			},
		},
	}
	html := renderString(t, "en", func(ctx context.Context, buf *bytes.Buffer) error {
		return ResultsPage(v).Render(ctx, buf)
	})
	for _, want := range []string{
		"1 of 2 correct (50%)",
		"Time spent: 1:15",
		"Correct answer: 2, 5",
		"Your answer: No answer",
		`<li class="selected correct">S3</li>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(html, "tier-") {
		t.Error("short sessions have no tier")
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := map[int]string{0: "0:00", 59: "0:59", 500: "8:20", 3600: "1:00:00", 7800: "2:10:00", -4: "0:00"}
	for in, want := range tests {
		if got := FormatSeconds(in); got != want {
			t.Errorf("FormatSeconds(%d) = %q, want %q", in, got, want)
		}
	}
}
