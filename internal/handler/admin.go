package handler

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/certprep/internal/auth"
	"github.com/pavelanni/certprep/internal/model"
)

const maxUploadBytes = 10 << 20

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username string         `json:"username"`
	Name     string         `json:"name"`
	Password string         `json:"password"`
	Role     model.UserRole `json:"role"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	switch req.Role {
	case "":
		req.Role = model.UserRoleStudent
	case model.UserRoleStudent, model.UserRoleAdmin:
	default:
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	if req.Name == "" {
		req.Name = req.Username
	}

	existing, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "username taken")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	id, err := h.store.CreateUser(r.Context(), model.User{
		Username:     req.Username,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	slog.Info("user created", "id", id, "username", req.Username, "role", req.Role)

	u, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if self := model.UserFromContext(r.Context()); self.ID == id {
		writeError(w, http.StatusBadRequest, "cannot deactivate yourself")
		return
	}
	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.serverError(w, r, err)
		return
	}
	u, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleUploadQuestions imports a question file sent as the questions_file
// multipart field.
func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or not multipart")
		return
	}
	file, header, err := r.FormFile("questions_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	res, err := h.store.ImportQuestions(r.Context(), "upload:"+header.Filename, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Info("uploaded questions via admin", "filename", header.Filename, "count", res.Imported, "skipped", res.Skipped)
	writeJSON(w, http.StatusOK, res)
}
