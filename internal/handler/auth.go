package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/certprep/internal/auth"
	"github.com/pavelanni/certprep/internal/handler/views"
	"github.com/pavelanni/certprep/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func isForm(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}

// handleLogin accepts JSON from API clients and form posts from the start
// page. Form posts are answered with a redirect or the page with an error.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	form := isForm(r)
	var req loginRequest
	if form {
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	} else if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if user == nil || !user.Active || !auth.CheckPassword(user.PasswordHash, req.Password) {
		slog.Info("login failed", "username", req.Username)
		if form {
			renderHTML(w, r, http.StatusUnauthorized, views.IndexPage(views.IndexData{LoginError: true}))
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := h.auth.Issue(user)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.auth.SetCookie(w, token)
	slog.Info("login", "user", user.ID, "username", user.Username)

	if form {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

func (h *Handler) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": user != nil, "user": user})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.ClearCookie(w)
	if isForm(r) || r.Method == http.MethodPost {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
