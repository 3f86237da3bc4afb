package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/quiz"
	"github.com/pavelanni/certprep/internal/store"
)

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qs, err := h.store.ListQuestionsFiltered(r.Context(), q.Get("difficulty"), q.Get("topic"))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.store.ListDistinctTopics(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

type postQuestionsRequest struct {
	QuestionIDs []string `json:"questionIds"`
	model.QuestionImport
}

// handlePostQuestions looks questions up when the body carries questionIds
// and otherwise creates one question, which needs the admin role.
func (h *Handler) handlePostQuestions(w http.ResponseWriter, r *http.Request) {
	var req postQuestionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.QuestionIDs != nil {
		h.writeQuestionsByIDs(w, r, req.QuestionIDs)
		return
	}

	if u := model.UserFromContext(r.Context()); u.Role != model.UserRoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	q, err := req.ToQuestion()
	if err == nil {
		err = q.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.store.InsertQuestion(r.Context(), q)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	created, err := h.store.GetQuestion(r.Context(), id)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	slog.Info("question created", "id", id, "topic", q.Topic)
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleBatchQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionIDs []string `json:"questionIds"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.writeQuestionsByIDs(w, r, req.QuestionIDs)
}

func (h *Handler) writeQuestionsByIDs(w http.ResponseWriter, r *http.Request, ids []string) {
	qs, err := h.quiz.FetchQuestionsByIDs(r.Context(), ids)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *Handler) handleRandomQuestions(w http.ResponseWriter, r *http.Request) {
	count := h.config.PracticeQuestions
	if s := r.URL.Query().Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "count must be a number")
			return
		}
		count = n
	}
	qs, err := h.quiz.FetchRandomQuestions(r.Context(), quiz.ClampPracticeCount(count, h.config.PracticeQuestions))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *Handler) handleComplexQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := h.store.ListComplexQuestions(r.Context(), r.URL.Query().Get("type"), 0)
	if err != nil {
		if errors.Is(err, store.ErrUnknownComplexType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "questionID")
	if err := h.store.DeleteQuestion(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "question not found")
			return
		}
		h.serverError(w, r, err)
		return
	}
	slog.Info("question deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID string `json:"questionId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.QuestionID == "" {
		writeError(w, http.StatusBadRequest, "questionId required")
		return
	}
	exp, err := h.quiz.Explain(r.Context(), req.QuestionID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}
