package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/certprep/internal/model"
)

func testQuestion(id string, correct ...int) *model.Question {
	return &model.Question{
		ID:             id,
		Text:           "Which services?",
		Options:        []string{"EC2", "S3", "RDS", "SQS"},
		CorrectAnswers: correct,
		Difficulty:     model.DifficultyMedium,
	}
}

func TestIsCorrect(t *testing.T) {
	correct := []int{0, 1}
	tests := []struct {
		name     string
		selected []int
		want     bool
	}{
		{"exact", []int{0, 1}, true},
		{"order does not matter", []int{1, 0}, true},
		{"subset", []int{0}, false},
		{"superset", []int{0, 1, 2}, false},
		{"disjoint", []int{2, 3}, false},
		{"same size wrong member", []int{0, 2}, false},
		{"empty", []int{}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCorrect(correct, tt.selected))
		})
	}
}

func TestIsCorrectNoCorrectAnswers(t *testing.T) {
	assert.True(t, IsCorrect(nil, nil))
	assert.False(t, IsCorrect(nil, []int{0}))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		correct int
		total   int
		want    Tier
	}{
		{65, 65, TierPass},
		{50, 65, TierPass},
		{49, 65, TierBorderline},
		{45, 65, TierBorderline},
		{44, 65, TierFail},
		{0, 65, TierFail},
		{10, 10, TierUnrated},
		{50, 64, TierUnrated},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.correct, tt.total), "%d/%d", tt.correct, tt.total)
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(0, 0))
	assert.Equal(t, 100.0, Percentage(3, 3))
	assert.Equal(t, 66.7, Percentage(2, 3))
	assert.Equal(t, 76.9, Percentage(50, 65))
}

func TestScore(t *testing.T) {
	items := []Item{
		{QuestionID: "q1", Question: testQuestion("q1", 0, 1), Selected: []int{1, 0}},
		{QuestionID: "q2", Question: testQuestion("q2", 2), Selected: []int{3}},
		{QuestionID: "q3", Question: testQuestion("q3", 3), Selected: nil},
		{QuestionID: "q4", Question: nil, Selected: []int{0}},
		{QuestionID: "q5", Question: testQuestion("q5", 7), Selected: []int{0}},
	}

	res := Score(items)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, 2, res.Incorrect)
	assert.Equal(t, 33.3, res.Percentage)
	assert.Equal(t, TierUnrated, res.Tier)
	require.Len(t, res.Results, 3)
	assert.True(t, res.Results[0].IsCorrect)
	assert.Equal(t, []int{}, res.Results[2].Selected)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "q4")
	assert.Contains(t, res.Warnings[1], "q5")
}

func TestScoreFullExam(t *testing.T) {
	items := make([]Item, ExamQuestionCount)
	for i := range items {
		sel := []int{0}
		if i >= 50 {
			sel = []int{1}
		}
		items[i] = Item{QuestionID: "q", Question: testQuestion("q", 0), Selected: sel}
	}
	res := Score(items)
	assert.Equal(t, 50, res.Correct)
	assert.Equal(t, TierPass, res.Tier)
}

func TestScoreEmpty(t *testing.T) {
	res := Score(nil)
	assert.Equal(t, 0, res.Total)
	assert.Equal(t, 0.0, res.Percentage)
	assert.Empty(t, res.Results)
}
