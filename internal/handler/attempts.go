package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/scoring"
	"github.com/pavelanni/certprep/internal/session"
)

type attemptRequest struct {
	QuestionID      string `json:"questionId"`
	SelectedAnswers []int  `json:"selectedAnswers"`
	TimeSpent       int    `json:"timeSpent"`
}

// handleCreateAttempt grades and records a single answer. Correctness is
// computed here, not taken from the client.
func (h *Handler) handleCreateAttempt(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req attemptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	q, err := h.store.GetQuestion(r.Context(), req.QuestionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "question not found")
			return
		}
		h.serverError(w, r, err)
		return
	}
	for _, a := range req.SelectedAnswers {
		if a < 0 || a >= len(q.Options) {
			writeError(w, http.StatusBadRequest, "selected answer out of range")
			return
		}
	}
	if req.SelectedAnswers == nil {
		req.SelectedAnswers = []int{}
	}

	correct := scoring.IsCorrect(q.CorrectAnswers, req.SelectedAnswers)
	if err := h.quiz.SubmitAttempt(r.Context(), session.Attempt{
		QuestionID: q.ID,
		UserID:     user.ID,
		Selected:   req.SelectedAnswers,
		IsCorrect:  correct,
		TimeSpent:  max(req.TimeSpent, 0),
	}); err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session.Feedback{
		QuestionID:     q.ID,
		Selected:       req.SelectedAnswers,
		CorrectAnswers: q.CorrectAnswers,
		IsCorrect:      correct,
	})
}

func (h *Handler) handleIncorrectAttempts(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	views, err := h.quiz.IncorrectAttempts(r.Context(), user.ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleClearIncorrect(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	n, err := h.quiz.ClearIncorrect(r.Context(), user.ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handler) handleListTestSessions(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	list, err := h.store.ListStudySessions(r.Context(), user.ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type testSessionRequest struct {
	Mode      session.Mode `json:"mode"`
	TimeSpent int          `json:"timeSpent"`
	Answers   []struct {
		QuestionID      string `json:"questionId"`
		SelectedAnswers []int  `json:"selectedAnswers"`
	} `json:"answers"`
}

// handleCreateTestSession scores a run graded on the client and stores it
// with one attempt per answer. Unknown questions are dropped and reported.
func (h *Handler) handleCreateTestSession(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req testSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "answers required")
		return
	}
	switch req.Mode {
	case "":
		req.Mode = session.ModeExam
	case session.ModeExam, session.ModePractice:
	default:
		writeError(w, http.StatusBadRequest, "unknown mode")
		return
	}

	ids := make([]string, len(req.Answers))
	for i, a := range req.Answers {
		ids[i] = a.QuestionID
	}
	qs, err := h.store.GetQuestionsByIDs(r.Context(), ids)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	byID := make(map[string]*model.Question, len(qs))
	for i := range qs {
		byID[qs[i].ID] = &qs[i]
	}
	items := make([]scoring.Item, len(req.Answers))
	for i, a := range req.Answers {
		items[i] = scoring.Item{QuestionID: a.QuestionID, Question: byID[a.QuestionID], Selected: a.SelectedAnswers}
	}
	res := scoring.Score(items)
	if res.Total == 0 {
		writeError(w, http.StatusBadRequest, "no known questions in answers")
		return
	}

	id, err := h.quiz.SubmitSession(r.Context(), session.Summary{
		UserID:    user.ID,
		Mode:      req.Mode,
		Result:    res,
		TimeSpent: max(req.TimeSpent, 0),
	})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session.Outcome{SessionID: id, Result: res, TimeSpent: max(req.TimeSpent, 0)})
}

func (h *Handler) handleGetTestSession(w http.ResponseWriter, r *http.Request) {
	v, ok := h.loadStudySession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v)
}
