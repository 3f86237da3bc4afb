// Package scoring grades answer selections and classifies exam results.
package scoring

import (
	"fmt"
	"math"

	"github.com/pavelanni/certprep/internal/model"
)

// Tier is the pass/fail band of a full-length exam.
type Tier string

const (
	TierPass       Tier = "pass"
	TierBorderline Tier = "borderline"
	TierFail       Tier = "fail"
	// TierUnrated is used when the total does not match the exam format.
	TierUnrated Tier = ""
)

// Thresholds are tied to the 65-question exam format.
const (
	ExamQuestionCount   = 65
	PassThreshold       = 50
	BorderlineThreshold = 45
)

// Item is one graded unit: a question and what the user picked.
type Item struct {
	QuestionID string
	Question   *model.Question
	Selected   []int
}

// QuestionResult is the per-question outcome.
type QuestionResult struct {
	QuestionID string `json:"questionId"`
	Selected   []int  `json:"selected"`
	IsCorrect  bool   `json:"isCorrect"`
}

// Result is the outcome of Score.
type Result struct {
	Total      int              `json:"total"`
	Correct    int              `json:"correct"`
	Incorrect  int              `json:"incorrect"`
	Percentage float64          `json:"percentage"`
	Tier       Tier             `json:"tier,omitempty"`
	Results    []QuestionResult `json:"results"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// IsCorrect reports whether selected matches correct exactly as a set.
// An empty selection is correct only when there is nothing to select.
func IsCorrect(correct, selected []int) bool {
	want := make(map[int]bool, len(correct))
	for _, c := range correct {
		want[c] = true
	}
	got := make(map[int]bool, len(selected))
	for _, s := range selected {
		if !want[s] {
			return false
		}
		got[s] = true
	}
	return len(got) == len(want)
}

// Score grades items. Items whose question is missing or invalid are left
// out of the totals and reported in Warnings.
func Score(items []Item) Result {
	res := Result{Results: make([]QuestionResult, 0, len(items))}
	for _, it := range items {
		if it.Question == nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("question %s not found", it.QuestionID))
			continue
		}
		if err := it.Question.Validate(); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("question %s invalid: %v", it.QuestionID, err))
			continue
		}
		ok := IsCorrect(it.Question.CorrectAnswers, it.Selected)
		sel := it.Selected
		if sel == nil {
			sel = []int{}
		}
		res.Results = append(res.Results, QuestionResult{
			QuestionID: it.QuestionID,
			Selected:   sel,
			IsCorrect:  ok,
		})
		res.Total++
		if ok {
			res.Correct++
		}
	}
	res.Incorrect = res.Total - res.Correct
	res.Percentage = Percentage(res.Correct, res.Total)
	res.Tier = Classify(res.Correct, res.Total)
	return res
}

// Percentage returns correct/total*100 rounded to one decimal place.
func Percentage(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*1000) / 10
}

// Classify returns the tier for a full-length exam. Other totals are unrated.
func Classify(correct, total int) Tier {
	if total != ExamQuestionCount {
		return TierUnrated
	}
	switch {
	case correct >= PassThreshold:
		return TierPass
	case correct >= BorderlineThreshold:
		return TierBorderline
	default:
		return TierFail
	}
}
