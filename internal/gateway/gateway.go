// Package gateway is the single entry point for user intents. It checks the
// caller against the catalog and friendship rules and hands loan changes to
// the loan manager. It knows nothing about HTTP.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/paralibrary/internal/catalog"
	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/loan"
	"github.com/erazemk/paralibrary/internal/model"
	"github.com/erazemk/paralibrary/internal/search"
	"github.com/erazemk/paralibrary/internal/store"
)

// DefaultRetryDelay is the pause before retrying a busy store.
const DefaultRetryDelay = 50 * time.Millisecond

// Gateway holds no per-request state.
type Gateway struct {
	DB         *sql.DB
	Books      *catalog.Service
	Lending    *loan.Manager
	RetryDelay time.Duration
}

// New returns a gateway over the given services.
func New(database *sql.DB, cat *catalog.Service, loans *loan.Manager) *Gateway {
	return &Gateway{DB: database, Books: cat, Lending: loans, RetryDelay: DefaultRetryDelay}
}

// Library is one user's catalog as seen by a viewer.
type Library struct {
	User       *model.User  `json:"user"`
	Books      []model.Book `json:"books"`
	Categories []string     `json:"categories"`
}

// annotate fills in availability, and the active loan when the viewer is
// one of its parties.
func (g *Gateway) annotate(ctx context.Context, b *model.Book, viewerID int64) error {
	active, err := g.Lending.ActiveForBook(ctx, b.ID)
	if err != nil {
		return err
	}
	b.Available = active == nil
	b.Loan = nil
	if active != nil && active.Party(viewerID) {
		b.Loan = active
	}
	return nil
}

// Catalog returns ownerID's books visible to viewerID, narrowed by term and
// category. Categories lists every category of the visible books.
func (g *Gateway) Catalog(ctx context.Context, ownerID, viewerID int64, term, category string) (*Library, error) {
	return do(ctx, g, "catalog", func() (*Library, error) {
		owner, books, err := g.Books.Library(ctx, ownerID, viewerID)
		if err != nil {
			return nil, err
		}

		lib := &Library{User: owner, Books: books, Categories: search.Categories(books)}
		if search.IsFiltered(term, category) {
			lib.Books = search.Filter(books, term, category)
		}
		for i := range lib.Books {
			if err := g.annotate(ctx, &lib.Books[i], viewerID); err != nil {
				return nil, err
			}
		}
		return lib, nil
	})
}

// Book returns a single visible book.
func (g *Gateway) Book(ctx context.Context, bookID, viewerID int64) (*model.Book, error) {
	return do(ctx, g, "book", func() (*model.Book, error) {
		b, err := g.Books.Book(ctx, bookID, viewerID)
		if err != nil {
			return nil, err
		}
		if err := g.annotate(ctx, b, viewerID); err != nil {
			return nil, err
		}
		return b, nil
	})
}

// CreateBook adds a book to ownerID's catalog.
func (g *Gateway) CreateBook(ctx context.Context, ownerID int64, in catalog.BookInput) (*model.Book, error) {
	return do(ctx, g, "create book", func() (*model.Book, error) {
		b, err := g.Books.Create(ctx, ownerID, in)
		if err != nil {
			return nil, err
		}
		b.Available = true
		return b, nil
	})
}

// UpdateBook edits a book owned by actorID.
func (g *Gateway) UpdateBook(ctx context.Context, actorID, bookID int64, in catalog.BookInput) (*model.Book, error) {
	return do(ctx, g, "update book", func() (*model.Book, error) {
		b, err := g.Books.Update(ctx, actorID, bookID, in)
		if err != nil {
			return nil, err
		}
		if err := g.annotate(ctx, b, actorID); err != nil {
			return nil, err
		}
		return b, nil
	})
}

// DeleteBook removes a book owned by actorID. No loan of the book can start
// while the delete runs.
func (g *Gateway) DeleteBook(ctx context.Context, actorID, bookID int64) error {
	return exec(ctx, g, "delete book", func() error {
		return g.Lending.Locked(ctx, bookID, func(ctx context.Context) error {
			return g.Books.Delete(ctx, actorID, bookID)
		})
	})
}

// RequestLoan asks to borrow bookID.
func (g *Gateway) RequestLoan(ctx context.Context, bookID, requesterID int64) (*model.Loan, error) {
	return do(ctx, g, "request loan", func() (*model.Loan, error) {
		return g.Lending.Request(ctx, bookID, requesterID)
	})
}

// Action is a caller-driven loan transition.
type Action string

// Loan actions.
const (
	ActionAccept Action = "accept"
	ActionBegin  Action = "begin"
	ActionCancel Action = "cancel"
	ActionReturn Action = "return"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAccept, ActionBegin, ActionCancel, ActionReturn:
		return a, nil
	default:
		return "", model.Errorf(model.ErrValidation, "unknown loan action %q", s)
	}
}

// TransitionLoan applies action to loanID on behalf of actorID.
func (g *Gateway) TransitionLoan(ctx context.Context, loanID, actorID int64, action Action) (*model.Loan, error) {
	var fn func(context.Context, int64, int64) (*model.Loan, error)
	switch action {
	case ActionAccept:
		fn = g.Lending.Accept
	case ActionBegin:
		fn = g.Lending.Begin
	case ActionCancel:
		fn = g.Lending.Cancel
	case ActionReturn:
		fn = g.Lending.Return
	default:
		return nil, model.Errorf(model.ErrValidation, "unknown loan action %q", action)
	}

	return do(ctx, g, string(action)+" loan", func() (*model.Loan, error) {
		return fn(ctx, loanID, actorID)
	})
}

// MarkLate persists the late status of an overdue loan.
func (g *Gateway) MarkLate(ctx context.Context, loanID int64) (*model.Loan, error) {
	return do(ctx, g, "mark late", func() (*model.Loan, error) {
		return g.Lending.MarkLate(ctx, loanID)
	})
}

// SweepLate marks every overdue loan late and returns how many changed.
func (g *Gateway) SweepLate(ctx context.Context) (int, error) {
	return do(ctx, g, "sweep", func() (int, error) {
		return g.Lending.SweepLate(ctx)
	})
}

// LoanForBook returns the active loan of a visible book when viewerID is a
// party to it, and nil otherwise.
func (g *Gateway) LoanForBook(ctx context.Context, bookID, viewerID int64) (*model.Loan, error) {
	return do(ctx, g, "loan for book", func() (*model.Loan, error) {
		if _, err := g.Books.Book(ctx, bookID, viewerID); err != nil {
			return nil, err
		}
		active, err := g.Lending.ActiveForBook(ctx, bookID)
		if err != nil || active == nil || !active.Party(viewerID) {
			return nil, err
		}
		return active, nil
	})
}

// Loan returns a loan to one of its parties.
func (g *Gateway) Loan(ctx context.Context, loanID, viewerID int64) (*model.Loan, error) {
	return do(ctx, g, "loan", func() (*model.Loan, error) {
		l, err := g.Lending.Loan(ctx, loanID)
		if err != nil {
			return nil, err
		}
		if !l.Party(viewerID) {
			return nil, model.Errorf(model.ErrAuthorization, "user %d is not a party to loan %d", viewerID, loanID)
		}
		return l, nil
	})
}

// LoanRole selects which side of a loan a listing is for.
type LoanRole string

// Loan roles.
const (
	RoleAny       LoanRole = ""
	RoleOwner     LoanRole = "owner"
	RoleRequester LoanRole = "requester"
)

// Loans lists userID's loans, as owner, requester or either. An empty status
// means every status.
func (g *Gateway) Loans(ctx context.Context, userID int64, role LoanRole, status string) ([]model.Loan, error) {
	f := store.LoanFilter{}
	switch role {
	case RoleAny:
		f.PartyID = userID
	case RoleOwner:
		f.OwnerID = userID
	case RoleRequester:
		f.RequesterID = userID
	default:
		return nil, model.Errorf(model.ErrValidation, "unknown loan role %q", role)
	}

	if status != "" {
		s := model.LoanStatus(status)
		if s == "active" {
			f.Statuses = model.ActiveLoanStatuses
		} else if !s.Valid() {
			return nil, model.Errorf(model.ErrValidation, "unknown loan status %q", status)
		} else {
			f.Statuses = []model.LoanStatus{s}
		}
	}

	return do(ctx, g, "loans", func() ([]model.Loan, error) {
		loans, err := g.Lending.List(ctx, f)
		if loans == nil && err == nil {
			loans = []model.Loan{}
		}
		return loans, err
	})
}

// Profile is a user as seen by another user.
type Profile struct {
	User       *model.User           `json:"user"`
	Friendship model.FriendshipState `json:"friendship"`
	// RequestedBy is set while a friend request is pending.
	RequestedBy int64 `json:"requested_by,omitempty"`
}

// Profile returns userID's public profile and its relation to viewerID.
func (g *Gateway) Profile(ctx context.Context, userID, viewerID int64) (*Profile, error) {
	return do(ctx, g, "profile", func() (*Profile, error) {
		u, err := g.activeUser(ctx, g.DB, userID)
		if err != nil {
			return nil, err
		}
		p := &Profile{User: u, Friendship: model.FriendshipNone}
		if userID == viewerID {
			return p, nil
		}

		f, err := store.GetFriendship(ctx, g.DB, viewerID, userID)
		if err != nil {
			return nil, err
		}
		if f != nil {
			p.Friendship = f.Status
			if f.Status == model.FriendshipRequested {
				p.RequestedBy = f.RequestedBy
			}
		}
		if p.Friendship != model.FriendshipFriends {
			u.Email = ""
		}
		return p, nil
	})
}

func (g *Gateway) activeUser(ctx context.Context, q db.Querier, id int64) (*model.User, error) {
	u, err := store.GetActiveUser(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, model.Errorf(model.ErrNotFound, "user %d not found", id)
	}
	return u, nil
}

// FriendshipStatus returns the state between two users.
func (g *Gateway) FriendshipStatus(ctx context.Context, a, b int64) (model.FriendshipState, error) {
	return do(ctx, g, "friendship status", func() (model.FriendshipState, error) {
		return store.StatusBetween(ctx, g.DB, a, b)
	})
}

// RequestFriend sends a friend request from actorID to otherID.
func (g *Gateway) RequestFriend(ctx context.Context, actorID, otherID int64) (*model.Friendship, error) {
	return g.friendTx(ctx, "request friend", actorID, otherID, func(tx *sql.Tx) (*model.Friendship, error) {
		return store.RequestFriendship(ctx, tx, actorID, otherID)
	})
}

// AcceptFriend accepts the request otherID sent to actorID.
func (g *Gateway) AcceptFriend(ctx context.Context, actorID, otherID int64) (*model.Friendship, error) {
	return g.friendTx(ctx, "accept friend", actorID, otherID, func(tx *sql.Tx) (*model.Friendship, error) {
		return store.AcceptFriendship(ctx, tx, otherID, actorID)
	})
}

// RemoveFriend removes any friendship or pending request between the users.
func (g *Gateway) RemoveFriend(ctx context.Context, actorID, otherID int64) error {
	return exec(ctx, g, "remove friend", func() error {
		return store.RemoveFriendship(ctx, g.DB, actorID, otherID)
	})
}

// Friends lists friendships and pending requests touching userID.
func (g *Gateway) Friends(ctx context.Context, userID int64) ([]model.Friendship, error) {
	return do(ctx, g, "friends", func() ([]model.Friendship, error) {
		list, err := store.ListFriendships(ctx, g.DB, userID)
		if list == nil && err == nil {
			list = []model.Friendship{}
		}
		return list, err
	})
}

func (g *Gateway) friendTx(ctx context.Context, name string, actorID, otherID int64, fn func(tx *sql.Tx) (*model.Friendship, error)) (*model.Friendship, error) {
	return do(ctx, g, name, func() (*model.Friendship, error) {
		var f *model.Friendship
		err := db.WithTx(ctx, g.DB, func(tx *sql.Tx) error {
			if _, err := g.activeUser(ctx, tx, otherID); err != nil {
				return err
			}
			var err error
			f, err = fn(tx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return f, nil
	})
}
