package model

import "time"

// ResultsExport is the top-level JSON structure for study-session export.
type ResultsExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Results    []UserResult `json:"results"`
}

// UserResult holds one user's study session for export.
type UserResult struct {
	Username      string           `json:"username"`
	Name          string           `json:"name"`
	SessionNumber int              `json:"session_number"`
	Mode          string           `json:"mode"`
	StartedAt     time.Time        `json:"started_at"`
	TimeSpent     int              `json:"time_spent"`
	Total         int              `json:"total"`
	Correct       int              `json:"correct"`
	Percentage    float64          `json:"percentage"`
	Tier          string           `json:"tier,omitempty"`
	Questions     []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Text           string     `json:"text"`
	Topic          string     `json:"topic"`
	Difficulty     Difficulty `json:"difficulty"`
	Options        []string   `json:"options"`
	CorrectAnswers []int      `json:"correct_answers"`
	Selected       []int      `json:"selected"`
	IsCorrect      bool       `json:"is_correct"`
}
