package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/paralibrary/internal/gateway"
)

// LoansHandler handles loan requests and transitions.
type LoansHandler struct {
	Gateway *gateway.Gateway
}

type loanRequest struct {
	BookID int64 `json:"book_id"`
}

// Request handles POST /api/loans.
func (h *LoansHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookID <= 0 {
		jsonError(w, http.StatusBadRequest, "book_id required")
		return
	}

	claims := GetClaims(r.Context())
	l, err := h.Gateway.RequestLoan(r.Context(), req.BookID, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, l)
}

// Transition handles POST /api/loans/{id}/{action}.
func (h *LoansHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	action, err := gateway.ParseAction(r.PathValue("action"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.transition(w, r, id, action)
}

// Cancel handles DELETE /api/loans/{id}.
func (h *LoansHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid loan id")
		return
	}
	h.transition(w, r, id, gateway.ActionCancel)
}

func (h *LoansHandler) transition(w http.ResponseWriter, r *http.Request, id int64, action gateway.Action) {
	claims := GetClaims(r.Context())
	l, err := h.Gateway.TransitionLoan(r.Context(), id, claims.UserID, action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

// List handles GET /api/loans?role=owner|requester&status=.
func (h *LoansHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loans, err := h.Gateway.Loans(r.Context(), GetClaims(r.Context()).UserID,
		gateway.LoanRole(q.Get("role")), q.Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, loans)
}

// Get handles GET /api/loans/{id}.
func (h *LoansHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	l, err := h.Gateway.Loan(r.Context(), id, GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

// Sweep handles POST /api/admin/sweep.
func (h *LoansHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.Gateway.SweepLate(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("late sweep requested", "user", GetClaims(r.Context()).Username, "marked", n)
	jsonResponse(w, http.StatusOK, map[string]int{"marked": n})
}
