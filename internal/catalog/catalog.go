// Package catalog applies ownership and visibility rules on top of the book
// store.
package catalog

import (
	"context"
	"database/sql"
	"strings"

	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/model"
	"github.com/erazemk/paralibrary/internal/store"
)

// BookInput holds the editable fields of a book.
type BookInput struct {
	Title      string           `json:"title"`
	Author     string           `json:"author"`
	ISBN       string           `json:"isbn"`
	Summary    string           `json:"summary"`
	Categories []string         `json:"categories"`
	Visibility model.Visibility `json:"visibility"`
}

// Validate normalizes the input in place and checks it.
func (in *BookInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.Categories = model.NormalizeCategories(in.Categories)
	if in.Visibility == "" {
		in.Visibility = model.VisibilityPublic
	}

	if in.Title == "" {
		return model.Errorf(model.ErrValidation, "title is required")
	}
	if !in.Visibility.Valid() {
		return model.Errorf(model.ErrValidation, "unknown visibility %q", in.Visibility)
	}
	return nil
}

func (in *BookInput) apply(b *model.Book) {
	b.Title = in.Title
	b.Author = in.Author
	b.ISBN = in.ISBN
	b.Summary = in.Summary
	b.Categories = in.Categories
	b.Visibility = in.Visibility
}

// Service is the owner-checked catalog.
type Service struct {
	DB     *sql.DB
	Policy Policy
}

// New returns a catalog service using policy p.
func New(database *sql.DB, p Policy) *Service {
	return &Service{DB: database, Policy: p}
}

// Library returns ownerID's profile and the books viewerID may see.
func (s *Service) Library(ctx context.Context, ownerID, viewerID int64) (*model.User, []model.Book, error) {
	owner, err := store.GetActiveUser(ctx, s.DB, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if owner == nil {
		return nil, nil, model.Errorf(model.ErrNotFound, "user %d not found", ownerID)
	}

	books, err := store.ListBooksByOwner(ctx, s.DB, ownerID)
	if err != nil {
		return nil, nil, err
	}

	state := model.FriendshipNone
	if ownerID != viewerID {
		state, err = store.StatusBetween(ctx, s.DB, viewerID, ownerID)
		if err != nil {
			return nil, nil, err
		}
	}

	visible := make([]model.Book, 0, len(books))
	for _, b := range books {
		if CanView(s.Policy, &b, viewerID, state) {
			visible = append(visible, b)
		}
	}
	return owner, visible, nil
}

// Book returns a book if viewerID may see it. Books the viewer may not see
// are reported as not found.
func (s *Service) Book(ctx context.Context, id, viewerID int64) (*model.Book, error) {
	return s.book(ctx, s.DB, id, viewerID)
}

func (s *Service) book(ctx context.Context, q db.Querier, id, viewerID int64) (*model.Book, error) {
	b, err := store.GetBook(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, model.Errorf(model.ErrNotFound, "book %d not found", id).ForBook(id)
	}

	// Deleted users' books disappear with their library.
	owner, err := store.GetActiveUser(ctx, q, b.OwnerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, model.Errorf(model.ErrNotFound, "book %d not found", id).ForBook(id)
	}

	ok, err := Visible(ctx, q, s.Policy, b, viewerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.Errorf(model.ErrNotFound, "book %d not found", id).ForBook(id)
	}
	return b, nil
}

// owned returns a book for modification by actorID.
func (s *Service) owned(ctx context.Context, q db.Querier, id, actorID int64) (*model.Book, error) {
	b, err := s.book(ctx, q, id, actorID)
	if err != nil {
		return nil, err
	}
	if b.OwnerID != actorID {
		return nil, model.Errorf(model.ErrAuthorization, "only the owner can modify book %d", id).ForBook(id)
	}
	return b, nil
}

// Create adds a book to ownerID's catalog.
func (s *Service) Create(ctx context.Context, ownerID int64, in BookInput) (*model.Book, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var created *model.Book
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		owner, err := store.GetActiveUser(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if owner == nil {
			return model.Errorf(model.ErrNotFound, "user %d not found", ownerID)
		}

		b := &model.Book{OwnerID: ownerID}
		in.apply(b)
		created, err = store.CreateBook(ctx, tx, b)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update replaces the editable fields of a book owned by actorID.
func (s *Service) Update(ctx context.Context, actorID, id int64, in BookInput) (*model.Book, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var updated *model.Book
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		b, err := s.owned(ctx, tx, id, actorID)
		if err != nil {
			return err
		}

		in.apply(b)
		if err := store.UpdateBook(ctx, tx, b); err != nil {
			return err
		}
		updated, err = store.GetBook(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a book owned by actorID. A book that is requested or lent
// out cannot be deleted. Callers that lend books should hold the book's loan
// lock while deleting.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	return db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := s.owned(ctx, tx, id, actorID); err != nil {
			return err
		}

		active, err := store.ActiveLoanForBook(ctx, tx, id)
		if err != nil {
			return err
		}
		if active != nil {
			return model.Errorf(model.ErrConflict, "book %d has an active loan", id).ForLoan(active)
		}

		return store.DeleteBook(ctx, tx, id)
	})
}
