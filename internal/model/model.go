package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent can practice, take exams and review their own results.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin can additionally manage questions and users.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

const (
	// MinOptions is the number of options every question carries.
	MinOptions = 4
	// MaxOptions is the upper bound; the 5th and 6th options are optional.
	MaxOptions = 6
)

// Question represents a single multiple-choice or multi-select question.
// Options holds only the options that are set; a question never has an
// empty-string option in the middle of the list.
type Question struct {
	ID             string     `json:"id"`
	Text           string     `json:"question"`
	Options        []string   `json:"options"`
	CorrectAnswers []int      `json:"correctAnswers"`
	Difficulty     Difficulty `json:"difficulty"`
	Topic          string     `json:"topic"`
	Explanation    string     `json:"explanation,omitempty"`
	Keywords       []string   `json:"keywords"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// RequiredSelections is the number of options a user has to pick.
func (q Question) RequiredSelections() int {
	return len(q.CorrectAnswers)
}

// Validate checks the option count and correct-answer invariants.
func (q Question) Validate() error {
	if q.Text == "" {
		return errors.New("question text is empty")
	}
	if len(q.Options) < MinOptions || len(q.Options) > MaxOptions {
		return fmt.Errorf("question has %d options, want %d..%d", len(q.Options), MinOptions, MaxOptions)
	}
	for i, o := range q.Options {
		if o == "" {
			return fmt.Errorf("option %d is empty", i+1)
		}
	}
	if len(q.CorrectAnswers) == 0 {
		return errors.New("question has no correct answers")
	}
	seen := make(map[int]bool, len(q.CorrectAnswers))
	for _, a := range q.CorrectAnswers {
		if a < 0 || a >= len(q.Options) {
			return fmt.Errorf("correct answer %d out of range [0, %d)", a, len(q.Options))
		}
		if seen[a] {
			return fmt.Errorf("duplicate correct answer %d", a)
		}
		seen[a] = true
	}
	return nil
}

// StripAnswers returns a copy without correct answers and explanation,
// for showing questions during an exam.
func (q Question) StripAnswers() Question {
	q.CorrectAnswers = nil
	q.Explanation = ""
	q.Keywords = nil
	return q
}

// QuestionImport is used for loading questions from JSON files and the admin API.
// Option5 and Option6 are optional.
type QuestionImport struct {
	Question       string     `json:"question"`
	Option1        string     `json:"option1"`
	Option2        string     `json:"option2"`
	Option3        string     `json:"option3"`
	Option4        string     `json:"option4"`
	Option5        string     `json:"option5,omitempty"`
	Option6        string     `json:"option6,omitempty"`
	CorrectAnswers []int      `json:"correctAnswers"`
	Difficulty     Difficulty `json:"difficulty"`
	Topic          string     `json:"topic"`
}

// ErrOptionGap reports an import with option6 set but option5 empty.
var ErrOptionGap = errors.New("option6 is set but option5 is empty")

// ToQuestion converts an import record, dropping unset trailing options.
func (qi QuestionImport) ToQuestion() (Question, error) {
	if qi.Option5 == "" && qi.Option6 != "" {
		return Question{}, ErrOptionGap
	}
	opts := []string{qi.Option1, qi.Option2, qi.Option3, qi.Option4}
	if qi.Option5 != "" {
		opts = append(opts, qi.Option5)
	}
	if qi.Option6 != "" {
		opts = append(opts, qi.Option6)
	}
	diff := qi.Difficulty
	if diff == "" {
		diff = DifficultyMedium
	}
	return Question{
		Text:           qi.Question,
		Options:        opts,
		CorrectAnswers: qi.CorrectAnswers,
		Difficulty:     diff,
		Topic:          qi.Topic,
	}, nil
}

// Explanation is the generated study note for a question.
type Explanation struct {
	Text     string   `json:"explanation"`
	Keywords []string `json:"keywords"`
}

// Attempt is one submitted answer to one question. SelectedAnswers are 0-based.
type Attempt struct {
	ID              string    `json:"id"`
	QuestionID      string    `json:"questionId"`
	UserID          string    `json:"userId"`
	SessionID       string    `json:"sessionId,omitempty"`
	SelectedAnswers []int     `json:"selectedAnswers"`
	IsCorrect       bool      `json:"isCorrect"`
	TimeSpent       int       `json:"timeSpent"`
	CreatedAt       time.Time `json:"createdAt"`
}

// AttemptView combines an attempt with its question for display.
type AttemptView struct {
	Attempt
	Question Question `json:"question"`
}

// StudySession is a completed exam or practice run.
type StudySession struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	Mode             string    `json:"mode"`
	TotalQuestions   int       `json:"totalQuestions"`
	CorrectAnswers   int       `json:"correctAnswers"`
	IncorrectAnswers int       `json:"incorrectAnswers"`
	TimeSpent        int       `json:"timeSpent"`
	CreatedAt        time.Time `json:"createdAt"`
}

// StudySessionView combines a study session with its attempts.
type StudySessionView struct {
	Session  StudySession  `json:"session"`
	Attempts []AttemptView `json:"attempts"`
}

// ExamConfig holds runtime exam parameters set via CLI flags.
type ExamConfig struct {
	ExamQuestions     int           // questions per exam (65 for SAA-C03)
	ExamDuration      time.Duration // countdown length
	TickInterval      time.Duration // wall-clock length of one countdown second
	PracticeQuestions int           // default practice size
	SecureCookies     bool          // Set Secure flag on cookies (disable for local dev)
}
