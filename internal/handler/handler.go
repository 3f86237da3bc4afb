package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/certprep/internal/auth"
	"github.com/pavelanni/certprep/internal/handler/views"
	appI18n "github.com/pavelanni/certprep/internal/i18n"
	"github.com/pavelanni/certprep/internal/llm"
	"github.com/pavelanni/certprep/internal/model"
	"github.com/pavelanni/certprep/internal/quiz"
	"github.com/pavelanni/certprep/internal/session"
	"github.com/pavelanni/certprep/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	quiz   *quiz.Service
	auth   *auth.Authenticator
	config model.ExamConfig
}

// New creates a new Handler.
func New(s *store.Store, q *quiz.Service, a *auth.Authenticator, cfg model.ExamConfig) *Handler {
	return &Handler{store: s, quiz: q, auth: a, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(appI18n.Middleware)
		r.Use(h.auth.Middleware)

		r.Get("/", h.handleIndex)
		r.Post("/api/auth/login", h.handleLogin)
		r.Get("/api/auth/login", h.handleAuthStatus)
		r.Delete("/api/auth/login", h.handleLogout)
		r.Post("/api/auth/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)

			r.Get("/results/{sessionID}", h.handleResultsPage)

			r.Get("/api/questions", h.handleListQuestions)
			r.Post("/api/questions", h.handlePostQuestions)
			r.Get("/api/questions/random", h.handleRandomQuestions)
			r.Post("/api/questions/batch", h.handleBatchQuestions)
			r.Get("/api/questions/complex", h.handleComplexQuestions)
			r.Get("/api/questions/topics", h.handleListTopics)

			r.Post("/api/attempts", h.handleCreateAttempt)
			r.Get("/api/attempts/incorrect", h.handleIncorrectAttempts)
			r.Delete("/api/attempts/incorrect", h.handleClearIncorrect)

			r.Get("/api/test-sessions", h.handleListTestSessions)
			r.Post("/api/test-sessions", h.handleCreateTestSession)
			r.Get("/api/test-sessions/{sessionID}", h.handleGetTestSession)

			r.Post("/api/explanations", h.handleExplain)

			r.Post("/api/exam", h.handleStartExam)
			r.Get("/api/exam", h.handleGetExam)
			r.Delete("/api/exam", h.handleDiscardExam)
			r.Post("/api/exam/resume", h.handleResumeExam)
			r.Post("/api/exam/select", h.handleExamSelect)
			r.Post("/api/exam/goto", h.handleExamGoTo)
			r.Post("/api/exam/next", h.handleExamNext)
			r.Post("/api/exam/prev", h.handleExamPrev)
			r.Post("/api/exam/finish", h.handleExamFinish)

			r.Post("/api/practice", h.handleStartPractice)
			r.Get("/api/practice", h.handleGetPractice)
			r.Delete("/api/practice", h.handleEndPractice)
			r.Post("/api/practice/select", h.handlePracticeSelect)
			r.Post("/api/practice/submit", h.handlePracticeSubmit)
			r.Post("/api/practice/next", h.handlePracticeNext)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(model.UserRoleAdmin))

			r.Delete("/api/questions/{questionID}", h.handleDeleteQuestion)
			r.Get("/api/admin/users", h.handleListUsers)
			r.Post("/api/admin/users", h.handleCreateUser)
			r.Post("/api/admin/users/{userID}/toggle", h.handleToggleUserActive)
			r.Post("/api/admin/questions/upload", h.handleUploadQuestions)
		})
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := views.IndexData{
		User:          model.UserFromContext(ctx),
		ExamQuestions: h.config.ExamQuestions,
		ExamDuration:  h.config.ExamDuration,
	}
	if d.User != nil {
		var err error
		if d.QuestionCount, err = h.store.QuestionCount(ctx); err != nil {
			h.serverError(w, r, err)
			return
		}
		if d.Sessions, err = h.store.ListStudySessions(ctx, d.User.ID); err != nil {
			h.serverError(w, r, err)
			return
		}
		if d.Pending, err = h.quiz.PendingExam(ctx, d.User.ID); err != nil {
			h.serverError(w, r, err)
			return
		}
		wrong, err := h.quiz.IncorrectAttempts(ctx, d.User.ID)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		d.IncorrectCount = len(wrong)
	}
	renderHTML(w, r, http.StatusOK, views.IndexPage(d))
}

func (h *Handler) handleResultsPage(w http.ResponseWriter, r *http.Request) {
	v, ok := h.loadStudySession(w, r)
	if !ok {
		return
	}
	renderHTML(w, r, http.StatusOK, views.ResultsPage(*v))
}

// loadStudySession fetches the session named in the URL and checks the
// caller may see it. It writes the error response itself.
func (h *Handler) loadStudySession(w http.ResponseWriter, r *http.Request) (*model.StudySessionView, bool) {
	user := model.UserFromContext(r.Context())
	v, err := h.quiz.SessionDetail(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.serverError(w, r, err)
		return nil, false
	}
	if v == nil || (v.Session.UserID != user.ID && user.Role != model.UserRoleAdmin) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return v, true
}

func renderHTML(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "path", r.URL.Path, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// writeErr maps domain errors to HTTP status codes.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, quiz.ErrNoActiveSession), errors.Is(err, quiz.ErrNoPendingExam):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrNoQuestions):
		writeError(w, http.StatusConflict, "no questions available")
	case errors.Is(err, session.ErrOptionOutOfRange),
		errors.Is(err, session.ErrIndexOutOfRange),
		errors.Is(err, session.ErrWrongMode),
		errors.Is(err, session.ErrEmptySelection):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotRunning),
		errors.Is(err, session.ErrAlreadyStarted),
		errors.Is(err, session.ErrAlreadySubmitted),
		errors.Is(err, session.ErrNotSubmitted),
		errors.Is(err, session.ErrSnapshotMismatch),
		errors.Is(err, session.ErrSnapshotCorrupt):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, llm.ErrDisabled), errors.Is(err, quiz.ErrNoExplainer):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.serverError(w, r, err)
	}
}
