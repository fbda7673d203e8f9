package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/erazemk/paralibrary/internal/auth"
	"github.com/erazemk/paralibrary/internal/gateway"
	"github.com/erazemk/paralibrary/internal/imaging"
	"github.com/erazemk/paralibrary/internal/model"
	"github.com/erazemk/paralibrary/internal/store"
)

// UsersHandler handles registration, profiles and user administration.
type UsersHandler struct {
	DB      *sql.DB
	Gateway *gateway.Gateway
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type profileRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PictureURL  string `json:"picture_url"`
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.Errorf(model.ErrValidation, "invalid email address %q", email)
	}
	return nil
}

// Register handles POST /api/users.
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if err := validateEmail(req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Username, hash, model.RoleUser)
	if err != nil {
		writeError(w, r, err)
		return
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = user.Username
	}
	if err := store.UpdateUserProfile(r.Context(), h.DB, user.ID, displayName, req.Email, ""); err != nil {
		writeError(w, r, err)
		return
	}
	user.DisplayName = displayName
	user.Email = req.Email

	slog.Info("user registered", "user", user.Username)
	jsonResponse(w, http.StatusCreated, user)
}

// Me handles GET /api/users/me.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	user, err := store.GetActiveUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// UpdateMe handles PUT /api/users/me.
func (h *UsersHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Email = strings.TrimSpace(req.Email)
	if req.DisplayName == "" {
		jsonError(w, http.StatusBadRequest, "display name required")
		return
	}
	if err := validateEmail(req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.UpdateUserProfile(r.Context(), h.DB, claims.UserID, req.DisplayName, req.Email, strings.TrimSpace(req.PictureURL)); err != nil {
		writeError(w, r, err)
		return
	}

	h.Me(w, r)
}

// UploadPicture handles PUT /api/users/me/picture.
func (h *UsersHandler) UploadPicture(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<10)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("picture")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "picture file required")
		return
	}
	defer file.Close()

	pic, err := imaging.ProcessPicture(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.SetUserPicture(r.Context(), h.DB, claims.UserID, pic.Data, pic.MIME); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("profile picture updated", "user", claims.Username, "bytes", len(pic.Data))
	h.Me(w, r)
}

// GetPicture handles GET /api/users/{id}/picture.
func (h *UsersHandler) GetPicture(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	data, mime, err := store.GetUserPicture(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no picture")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	profile, err := h.Gateway.Profile(r.Context(), id, GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, profile)
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	claims := GetClaims(r.Context())
	if claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	// Look up target name before deleting.
	target, err := store.GetActiveUser(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if target == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user deleted", "user", claims.Username, "deleted_user", target.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("user %s deleted", target.Username)})
}
