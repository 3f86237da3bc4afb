package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/session"
)

func owner(r *http.Request) session.Owner {
	u := model.UserFromContext(r.Context())
	return session.Owner{UserID: u.ID, Name: u.Name}
}

type pendingExam struct {
	Index    int `json:"index"`
	Total    int `json:"total"`
	Answered int `json:"answered"`
	TimeLeft int `json:"timeLeft"`
}

type examStatus struct {
	Exam    *session.View `json:"exam,omitempty"`
	Pending *pendingExam  `json:"pending,omitempty"`
}

// activeExam returns the caller's running exam or writes a 404.
func (h *Handler) activeExam(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess := h.quiz.Active(owner(r).UserID, session.ModeExam)
	if sess == nil || sess.State() != session.StateRunning {
		writeError(w, http.StatusNotFound, "no exam in progress")
		return nil, false
	}
	return sess, true
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	sess, err := h.quiz.StartExam(r.Context(), owner(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Current())
}

// handleGetExam reports the running exam, a saved one that can be resumed
// or discarded, or the exam that just ended. An exam that timed out is
// reported with its outcome.
func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	o := owner(r)
	var status examStatus
	if sess := h.quiz.Active(o.UserID, session.ModeExam); sess != nil {
		v := sess.Current()
		status.Exam = &v
		if v.State == session.StateRunning {
			writeJSON(w, http.StatusOK, status)
			return
		}
	}
	p, err := h.quiz.PendingExam(r.Context(), o.UserID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if p != nil {
		answered := 0
		for _, sel := range p.Selections {
			if len(sel) > 0 {
				answered++
			}
		}
		status.Pending = &pendingExam{
			Index:    p.CurrentIndex,
			Total:    len(p.QuestionIDs),
			Answered: answered,
			TimeLeft: p.TimeLeft,
		}
	}
	if status.Exam == nil && status.Pending == nil {
		writeError(w, http.StatusNotFound, "no exam in progress")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleResumeExam(w http.ResponseWriter, r *http.Request) {
	sess, err := h.quiz.ResumeExam(r.Context(), owner(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Current())
}

func (h *Handler) handleDiscardExam(w http.ResponseWriter, r *http.Request) {
	if err := h.quiz.DiscardExam(r.Context(), owner(r).UserID); err != nil {
		h.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectRequest struct {
	Option int `json:"option"`
	// Selected picks (true) or drops (false) the option; absent toggles it.
	Selected *bool `json:"selected"`
}

func applySelection(r *http.Request, sess *session.Session, req selectRequest) error {
	switch {
	case req.Selected == nil:
		return sess.Toggle(r.Context(), req.Option)
	case *req.Selected:
		return sess.Select(r.Context(), req.Option)
	default:
		return sess.Deselect(r.Context(), req.Option)
	}
}

// writeView answers with the session view. Snapshot failures leave the
// in-memory change in place, so they are reported as a warning.
func (h *Handler) writeView(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) {
	if err != nil && !errors.Is(err, session.ErrSnapshotNotSaved) {
		h.writeErr(w, r, err)
		return
	}
	if err != nil {
		slog.Warn("exam progress not persisted", "user", sess.Owner().UserID, "error", err)
		w.Header().Set("X-Warning", "progress not saved")
	}
	writeJSON(w, http.StatusOK, sess.Current())
}

func (h *Handler) handleExamSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, ok := h.activeExam(w, r)
	if !ok {
		return
	}
	h.writeView(w, r, sess, applySelection(r, sess, req))
}

func (h *Handler) handleExamGoTo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index int `json:"index"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, ok := h.activeExam(w, r)
	if !ok {
		return
	}
	h.writeView(w, r, sess, sess.GoTo(r.Context(), req.Index))
}

func (h *Handler) handleExamNext(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeExam(w, r)
	if !ok {
		return
	}
	h.writeView(w, r, sess, sess.Next(r.Context()))
}

func (h *Handler) handleExamPrev(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeExam(w, r)
	if !ok {
		return
	}
	h.writeView(w, r, sess, sess.Prev(r.Context()))
}

type outcomeResponse struct {
	session.Outcome
	Warning string `json:"warning,omitempty"`
}

func (h *Handler) handleExamFinish(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeExam(w, r)
	if !ok {
		return
	}
	out, err := h.quiz.FinishExam(r.Context(), sess.Owner().UserID)
	if err != nil && !errors.Is(err, session.ErrSessionNotSaved) {
		h.writeErr(w, r, err)
		return
	}
	resp := outcomeResponse{Outcome: out}
	if err != nil {
		slog.Error("exam result not saved", "user", sess.Owner().UserID, "error", err)
		resp.Warning = "result not saved; resume the exam to submit again"
	}
	writeJSON(w, http.StatusOK, resp)
}
