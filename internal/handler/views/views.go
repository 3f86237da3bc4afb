// Package views renders the server-side HTML pages.
package views

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	"github.com/pavelanni/certprep/internal/i18n"
	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/scoring"
	"github.com/pavelanni/certprep/internal/session"
)

// IndexData is what the start page shows.
type IndexData struct {
	User           *model.User
	QuestionCount  int
	ExamQuestions  int
	ExamDuration   time.Duration
	Pending        *session.Progress
	IncorrectCount int
	Sessions       []model.StudySession
	LoginError     bool
}

type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(s string) {
	if w.err == nil {
		_, w.err = io.WriteString(w.w, s)
	}
}

func (w *writer) text(s string) {
	w.raw(templ.EscapeString(s))
}

func (w *writer) printf(format string, args ...any) {
	if w.err == nil {
		_, w.err = fmt.Fprintf(w.w, format, args...)
	}
}

func page(title string, body func(ctx context.Context, w *writer)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
		w.text(title)
		w.raw(`</title></head><body><main>`)
		w.raw(`<h1>`)
		w.text(i18n.T(ctx, "AppTitle"))
		w.raw(`</h1>`)
		body(ctx, w)
		w.raw(`</main></body></html>`)
		return w.err
	})
}

// IndexPage renders the start page: a login form for anonymous visitors,
// otherwise exam and practice entry points and the session history.
func IndexPage(d IndexData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		return page(i18n.T(ctx, "AppTitle"), func(ctx context.Context, w *writer) {
			if d.User == nil {
				loginForm(ctx, w, d.LoginError)
				return
			}
			w.raw(`<p class="user">`)
			w.text(d.User.Name)
			w.raw(` <form method="post" action="/api/auth/logout" style="display:inline"><button>`)
			w.text(i18n.T(ctx, "Logout"))
			w.raw(`</button></form></p>`)

			w.raw(`<p>`)
			w.text(i18n.Tp(ctx, "QuestionsAvailable", d.QuestionCount))
			w.raw(` `)
			w.text(i18n.Td(ctx, "ExamFormat", map[string]any{
				"Questions": d.ExamQuestions,
				"Minutes":   int(d.ExamDuration / time.Minute),
			}))
			w.raw(`</p>`)

			if p := d.Pending; p != nil {
				w.raw(`<section class="pending"><p>`)
				w.text(i18n.Td(ctx, "PendingExam", map[string]any{
					"Index":    p.CurrentIndex + 1,
					"Total":    len(p.QuestionIDs),
					"TimeLeft": FormatSeconds(p.TimeLeft),
				}))
				w.raw(`</p><button data-action="POST /api/exam/resume">`)
				w.text(i18n.T(ctx, "ResumeExam"))
				w.raw(`</button> <button data-action="DELETE /api/exam">`)
				w.text(i18n.T(ctx, "DiscardExam"))
				w.raw(`</button></section>`)
			}

			w.raw(`<p><button data-action="POST /api/exam">`)
			w.text(i18n.T(ctx, "StartExam"))
			w.raw(`</button> <button data-action="POST /api/practice">`)
			w.text(i18n.T(ctx, "StartPractice"))
			w.raw(`</button></p>`)

			if d.IncorrectCount > 0 {
				w.raw(`<p class="review">`)
				w.text(i18n.Tp(ctx, "IncorrectToReview", d.IncorrectCount))
				w.raw(`</p>`)
			}

			sessionTable(ctx, w, d.Sessions)
		}).Render(ctx, out)
	})
}

func loginForm(ctx context.Context, w *writer, failed bool) {
	if failed {
		w.raw(`<p class="error">`)
		w.text(i18n.T(ctx, "LoginError"))
		w.raw(`</p>`)
	}
	w.raw(`<form method="post" action="/api/auth/login">`)
	w.raw(`<input name="username" autocomplete="username" required> `)
	w.raw(`<input name="password" type="password" autocomplete="current-password" required> <button>`)
	w.text(i18n.T(ctx, "Login"))
	w.raw(`</button></form>`)
}

func sessionTable(ctx context.Context, w *writer, sessions []model.StudySession) {
	w.raw(`<h2>`)
	w.text(i18n.T(ctx, "RecentSessions"))
	w.raw(`</h2>`)
	if len(sessions) == 0 {
		w.raw(`<p>`)
		w.text(i18n.T(ctx, "NoSessions"))
		w.raw(`</p>`)
		return
	}
	w.raw(`<table><thead><tr>`)
	for _, col := range []string{"ColDate", "ColMode", "ColScore", "ColTime", "ColResult"} {
		w.raw(`<th>`)
		w.text(i18n.T(ctx, col))
		w.raw(`</th>`)
	}
	w.raw(`</tr></thead><tbody>`)
	for _, s := range sessions {
		pct := scoring.Percentage(s.CorrectAnswers, s.TotalQuestions)
		w.raw(`<tr><td title="`)
		w.text(s.CreatedAt.Format(time.RFC3339))
		w.raw(`">`)
		w.text(humanize.Time(s.CreatedAt))
		w.raw(`</td><td>`)
		w.text(i18n.T(ctx, "Mode_"+s.Mode))
		w.raw(`</td><td>`)
		w.printf(`<a href="/results/%s">%d/%d (%s%%)</a>`,
			templ.EscapeString(s.ID), s.CorrectAnswers, s.TotalQuestions, humanize.FtoaWithDigits(pct, 1))
		w.raw(`</td><td>`)
		w.text(FormatSeconds(s.TimeSpent))
		w.raw(`</td><td>`)
		w.text(i18n.T(ctx, "Tier_"+string(scoring.Classify(s.CorrectAnswers, s.TotalQuestions))))
		w.raw(`</td></tr>`)
	}
	w.raw(`</tbody></table>`)
}

// ResultsPage renders one stored session with every answered question.
func ResultsPage(v model.StudySessionView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		return page(i18n.T(ctx, "ResultsTitle"), func(ctx context.Context, w *writer) {
			s := v.Session
			pct := scoring.Percentage(s.CorrectAnswers, s.TotalQuestions)
			w.raw(`<h2>`)
			w.text(i18n.T(ctx, "ResultsTitle"))
			w.raw(` · `)
			w.text(i18n.T(ctx, "Mode_"+s.Mode))
			w.raw(`</h2><p class="score">`)
			w.text(i18n.Td(ctx, "ScoreLine", map[string]any{
				"Correct":    s.CorrectAnswers,
				"Total":      s.TotalQuestions,
				"Percentage": humanize.FtoaWithDigits(pct, 1),
			}))
			if tier := scoring.Classify(s.CorrectAnswers, s.TotalQuestions); tier != scoring.TierUnrated {
				w.raw(` <strong class="tier-` + string(tier) + `">`)
				w.text(i18n.T(ctx, "Tier_"+string(tier)))
				w.raw(`</strong>`)
			}
			w.raw(`</p><p>`)
			w.text(i18n.Td(ctx, "TimeSpent", map[string]any{"Duration": FormatSeconds(s.TimeSpent)}))
			w.raw(` · `)
			w.text(humanize.Time(s.CreatedAt))
			w.raw(`</p><ol class="attempts">`)
			for _, a := range v.Attempts {
				attemptItem(ctx, w, a)
			}
			w.raw(`</ol><p><a href="/">`)
			w.text(i18n.T(ctx, "BackHome"))
			w.raw(`</a></p>`)
		}).Render(ctx, out)
	})
}

func attemptItem(ctx context.Context, w *writer, a model.AttemptView) {
	status := "Incorrect"
	if a.IsCorrect {
		status = "Correct"
	}
	w.raw(`<li class="` + strings.ToLower(status) + `"><p>`)
	w.text(a.Question.Text)
	w.raw(`</p><ul>`)
	for i, opt := range a.Question.Options {
		var marks []string
		if slices.Contains(a.SelectedAnswers, i) {
			marks = append(marks, "selected")
		}
		if slices.Contains(a.Question.CorrectAnswers, i) {
			marks = append(marks, "correct")
		}
		w.raw(`<li class="` + strings.Join(marks, " ") + `">`)
		w.text(opt)
		w.raw(`</li>`)
	}
	w.raw(`</ul><p>`)
	w.text(i18n.T(ctx, "YourAnswer"))
	w.raw(`: `)
	w.text(optionList(ctx, a.SelectedAnswers))
	w.raw(` · `)
	w.text(i18n.T(ctx, "CorrectAnswer"))
	w.raw(`: `)
	w.text(optionList(ctx, a.Question.CorrectAnswers))
	w.raw(` · <strong>`)
	w.text(i18n.T(ctx, status))
	w.raw(`</strong></p></li>`)
}

// optionList prints 0-based indices as 1-based option numbers.
func optionList(ctx context.Context, idx []int) string {
	if len(idx) == 0 {
		return i18n.T(ctx, "NoAnswer")
	}
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = fmt.Sprint(v + 1)
	}
	return strings.Join(parts, ", ")
}

// FormatSeconds renders a second count as h:mm:ss or m:ss.
func FormatSeconds(sec int) string {
	if sec < 0 {
		sec = 0
	}
	h, m, s := sec/3600, sec%3600/60, sec%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
