package api

import (
	"database/sql"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/erazemk/paralibrary/internal/auth"
	"github.com/erazemk/paralibrary/internal/gateway"
	"github.com/erazemk/paralibrary/internal/model"
)

// Config wires the router's dependencies.
type Config struct {
	DB      *sql.DB
	Gateway *gateway.Gateway
	Issuer  *auth.Issuer

	// Registration and login budget per client address.
	AuthRate  rate.Limit
	AuthBurst int
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: cfg.DB, Issuer: cfg.Issuer}
	usersHandler := &UsersHandler{DB: cfg.DB, Gateway: cfg.Gateway}
	friendsHandler := &FriendsHandler{Gateway: cfg.Gateway}
	booksHandler := &BooksHandler{Gateway: cfg.Gateway}
	loansHandler := &LoansHandler{Gateway: cfg.Gateway}

	if cfg.AuthRate == 0 {
		cfg.AuthRate = rate.Limit(1)
	}
	if cfg.AuthBurst == 0 {
		cfg.AuthBurst = 10
	}
	limited := NewRateLimiter(cfg.AuthRate, cfg.AuthBurst).Middleware

	authMW := AuthMiddleware(cfg.Issuer, cfg.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(requireAdmin(h)) }

	// Public: login and registration.
	mux.Handle("POST /api/auth/login", limited(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/users", limited(http.HandlerFunc(usersHandler.Register)))

	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))

	// Users.
	mux.Handle("GET /api/users/me", authed(usersHandler.Me))
	mux.Handle("PUT /api/users/me", authed(usersHandler.UpdateMe))
	mux.Handle("PUT /api/users/me/picture", authed(usersHandler.UploadPicture))
	mux.Handle("GET /api/users/{id}", authed(usersHandler.Get))
	mux.Handle("GET /api/users/{id}/picture", authed(usersHandler.GetPicture))
	mux.Handle("GET /api/users", admin(usersHandler.List))
	mux.Handle("DELETE /api/users/{id}", admin(usersHandler.Delete))

	// Friends.
	mux.Handle("GET /api/friends", authed(friendsHandler.List))
	mux.Handle("POST /api/friends/{id}", authed(friendsHandler.Request))
	mux.Handle("PUT /api/friends/{id}", authed(friendsHandler.Accept))
	mux.Handle("DELETE /api/friends/{id}", authed(friendsHandler.Remove))

	// Libraries and books.
	mux.Handle("GET /api/libraries", authed(booksHandler.OwnLibrary))
	mux.Handle("GET /api/libraries/{id}", authed(booksHandler.Library))
	mux.Handle("POST /api/books", authed(booksHandler.Create))
	mux.Handle("GET /api/books/{id}", authed(booksHandler.Get))
	mux.Handle("PUT /api/books/{id}", authed(booksHandler.Update))
	mux.Handle("DELETE /api/books/{id}", authed(booksHandler.Delete))
	mux.Handle("GET /api/books/{id}/loan", authed(booksHandler.Loan))

	// Loans.
	mux.Handle("POST /api/loans", authed(loansHandler.Request))
	mux.Handle("GET /api/loans", authed(loansHandler.List))
	mux.Handle("GET /api/loans/{id}", authed(loansHandler.Get))
	mux.Handle("DELETE /api/loans/{id}", authed(loansHandler.Cancel))
	mux.Handle("POST /api/loans/{id}/{action}", authed(loansHandler.Transition))

	// Admin.
	mux.Handle("POST /api/admin/sweep", admin(loansHandler.Sweep))

	return mux
}
