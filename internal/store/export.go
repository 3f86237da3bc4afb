package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/scoring"
)

// ExportResults builds export-ready results from all study sessions.
func (s *Store) ExportResults(ctx context.Context) ([]model.UserResult, error) {
	sessions, err := s.ListAllStudySessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	// Track session count per user for session_number.
	userSessionCount := make(map[string]int)
	users := make(map[string]*model.User)

	results := []model.UserResult{}
	for _, ss := range sessions {
		userSessionCount[ss.UserID]++

		view, err := s.GetStudySessionView(ctx, ss.ID)
		if err != nil {
			return nil, fmt.Errorf("get session %s: %w", ss.ID, err)
		}

		user, ok := users[ss.UserID]
		if !ok {
			if user, err = s.GetUserByID(ctx, ss.UserID); err != nil {
				return nil, fmt.Errorf("get user %s: %w", ss.UserID, err)
			}
			users[ss.UserID] = user
		}
		var username, name string
		if user != nil {
			username = user.Username
			name = user.Name
		}

		questions := []model.QuestionResult{}
		if view != nil {
			for _, a := range view.Attempts {
				questions = append(questions, model.QuestionResult{
					Text:           a.Question.Text,
					Topic:          a.Question.Topic,
					Difficulty:     a.Question.Difficulty,
					Options:        a.Question.Options,
					CorrectAnswers: a.Question.CorrectAnswers,
					Selected:       a.SelectedAnswers,
					IsCorrect:      a.IsCorrect,
				})
			}
		}

		results = append(results, model.UserResult{
			Username:      username,
			Name:          name,
			SessionNumber: userSessionCount[ss.UserID],
			Mode:          ss.Mode,
			StartedAt:     ss.CreatedAt,
			TimeSpent:     ss.TimeSpent,
			Total:         ss.TotalQuestions,
			Correct:       ss.CorrectAnswers,
			Percentage:    scoring.Percentage(ss.CorrectAnswers, ss.TotalQuestions),
			Tier:          string(scoring.Classify(ss.CorrectAnswers, ss.TotalQuestions)),
			Questions:     questions,
		})
	}

	return results, nil
}
