package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/paralibrary/internal/gateway"
)

// FriendsHandler handles the caller's friendships.
type FriendsHandler struct {
	Gateway *gateway.Gateway
}

// List handles GET /api/friends.
func (h *FriendsHandler) List(w http.ResponseWriter, r *http.Request) {
	friends, err := h.Gateway.Friends(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, friends)
}

// Request handles POST /api/friends/{id}.
func (h *FriendsHandler) Request(w http.ResponseWriter, r *http.Request) {
	other, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	claims := GetClaims(r.Context())
	f, err := h.Gateway.RequestFriend(r.Context(), claims.UserID, other)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("friend requested", "user", claims.Username, "friend", other, "status", f.Status)
	jsonResponse(w, http.StatusOK, f)
}

// Accept handles PUT /api/friends/{id}, accepting the request user {id} sent.
func (h *FriendsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	other, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	claims := GetClaims(r.Context())
	f, err := h.Gateway.AcceptFriend(r.Context(), claims.UserID, other)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("friend accepted", "user", claims.Username, "friend", other)
	jsonResponse(w, http.StatusOK, f)
}

// Remove handles DELETE /api/friends/{id}.
func (h *FriendsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	other, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	claims := GetClaims(r.Context())
	if err := h.Gateway.RemoveFriend(r.Context(), claims.UserID, other); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("friend removed", "user", claims.Username, "friend", other)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "friend removed"})
}
