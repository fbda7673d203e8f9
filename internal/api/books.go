package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/paralibrary/internal/catalog"
	"github.com/erazemk/paralibrary/internal/gateway"
)

// BooksHandler handles libraries and book CRUD.
type BooksHandler struct {
	Gateway *gateway.Gateway
}

// OwnLibrary handles GET /api/libraries.
func (h *BooksHandler) OwnLibrary(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	h.library(w, r, claims.UserID)
}

// Library handles GET /api/libraries/{id}?q=&category=.
func (h *BooksHandler) Library(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	h.library(w, r, owner)
}

func (h *BooksHandler) library(w http.ResponseWriter, r *http.Request, ownerID int64) {
	q := r.URL.Query()
	lib, err := h.Gateway.Catalog(r.Context(), ownerID, GetClaims(r.Context()).UserID, q.Get("q"), q.Get("category"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, lib)
}

// Create handles POST /api/books.
func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req catalog.BookInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	book, err := h.Gateway.CreateBook(r.Context(), claims.UserID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("book created", "user", claims.Username, "book", book.ID, "title", book.Title)
	jsonResponse(w, http.StatusCreated, book)
}

// Get handles GET /api/books/{id}.
func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	book, err := h.Gateway.Book(r.Context(), id, GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, book)
}

// Update handles PUT /api/books/{id}.
func (h *BooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	var req catalog.BookInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	book, err := h.Gateway.UpdateBook(r.Context(), claims.UserID, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("book updated", "user", claims.Username, "book", id)
	jsonResponse(w, http.StatusOK, book)
}

// Delete handles DELETE /api/books/{id}.
func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	claims := GetClaims(r.Context())
	if err := h.Gateway.DeleteBook(r.Context(), claims.UserID, id); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("book deleted", "user", claims.Username, "book", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "book deleted"})
}

// Loan handles GET /api/books/{id}/loan. The body is null when the book is
// not lent to or by the caller.
func (h *BooksHandler) Loan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	l, err := h.Gateway.LoanForBook(r.Context(), id, GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}
