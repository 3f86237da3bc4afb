package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/certprep/internal/session"
)

type practiceRequest struct {
	Count          int      `json:"count"`
	RetryIDs       []string `json:"retryIds"`
	RetryIncorrect bool     `json:"retryIncorrect"`
}

func (h *Handler) activePractice(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess := h.quiz.Active(owner(r).UserID, session.ModePractice)
	if sess == nil {
		writeError(w, http.StatusNotFound, "no practice in progress")
		return nil, false
	}
	return sess, true
}

// handleStartPractice starts a random run, a retry of given questions, or a
// retry of every question last answered wrong.
func (h *Handler) handleStartPractice(w http.ResponseWriter, r *http.Request) {
	var req practiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o := owner(r)
	if req.RetryIncorrect {
		wrong, err := h.quiz.IncorrectAttempts(r.Context(), o.UserID)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		if len(wrong) == 0 {
			writeError(w, http.StatusConflict, "no incorrect questions to retry")
			return
		}
		req.RetryIDs = make([]string, len(wrong))
		for i, a := range wrong {
			req.RetryIDs[i] = a.QuestionID
		}
	}
	sess, err := h.quiz.StartPractice(r.Context(), o, req.Count, req.RetryIDs)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Current())
}

func (h *Handler) handleGetPractice(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activePractice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Current())
}

func (h *Handler) handleEndPractice(w http.ResponseWriter, r *http.Request) {
	h.quiz.EndPractice(owner(r).UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePracticeSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, ok := h.activePractice(w, r)
	if !ok {
		return
	}
	h.writeView(w, r, sess, applySelection(r, sess, req))
}

type submitResponse struct {
	Feedback session.Feedback `json:"feedback"`
	View     session.View     `json:"view"`
	Warning  string           `json:"warning,omitempty"`
}

func (h *Handler) handlePracticeSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activePractice(w, r)
	if !ok {
		return
	}
	fb, err := sess.Submit(r.Context())
	if err != nil && !errors.Is(err, session.ErrAttemptNotSaved) {
		h.writeErr(w, r, err)
		return
	}
	resp := submitResponse{Feedback: fb, View: sess.Current()}
	if err != nil {
		slog.Error("practice attempt not saved", "user", sess.Owner().UserID, "error", err)
		resp.Warning = "answer graded but not saved"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePracticeNext(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activePractice(w, r)
	if !ok {
		return
	}
	h.writeView(w, r, sess, sess.Next(r.Context()))
}
