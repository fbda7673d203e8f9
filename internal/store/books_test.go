package store

import (
	"context"
	"database/sql"
	"slices"
	"testing"

	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/model"
)

func mustUser(t *testing.T, database *sql.DB, username string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), database, username, "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser(%q): %v", username, err)
	}
	return u
}

func mustBook(t *testing.T, database *sql.DB, ownerID int64, title string, categories ...string) *model.Book {
	t.Helper()
	b, err := CreateBook(context.Background(), database, &model.Book{
		OwnerID:    ownerID,
		Title:      title,
		Visibility: model.VisibilityPublic,
		Categories: categories,
	})
	if err != nil {
		t.Fatalf("CreateBook(%q): %v", title, err)
	}
	return b
}

func TestCreateAndGetBook(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustUser(t, database, "owner")

	book, err := CreateBook(ctx, database, &model.Book{
		OwnerID:    owner.ID,
		Title:      "Dune",
		Author:     "Frank Herbert",
		ISBN:       "9780441013593",
		Visibility: model.VisibilityPrivate,
		Categories: []string{"sci-fi", " classic ", "sci-fi"},
	})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if book.Title != "Dune" || book.Author != "Frank Herbert" {
		t.Errorf("unexpected book: %+v", book)
	}
	if book.Visibility != model.VisibilityPrivate {
		t.Errorf("expected private visibility, got %q", book.Visibility)
	}
	if !slices.Equal(book.Categories, []string{"classic", "sci-fi"}) {
		t.Errorf("unexpected categories: %v", book.Categories)
	}

	missing, err := GetBook(ctx, database, 9999)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing book")
	}
}

func TestBookWithoutCategories(t *testing.T) {
	database := db.NewTestDB(t)
	owner := mustUser(t, database, "owner")

	book := mustBook(t, database, owner.ID, "Untagged")
	if book.Categories == nil || len(book.Categories) != 0 {
		t.Errorf("expected empty non-nil categories, got %#v", book.Categories)
	}
}

func TestListBooksByOwner(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := mustUser(t, database, "alice")
	bob := mustUser(t, database, "bob")

	first := mustBook(t, database, alice.ID, "First", "a")
	second := mustBook(t, database, alice.ID, "Second", "b")
	mustBook(t, database, bob.ID, "Bob's")

	books, err := ListBooksByOwner(ctx, database, alice.ID)
	if err != nil {
		t.Fatalf("ListBooksByOwner: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("expected 2 books, got %d", len(books))
	}
	if books[0].ID != second.ID || books[1].ID != first.ID {
		t.Errorf("expected newest first, got %d, %d", books[0].ID, books[1].ID)
	}
	if !slices.Equal(books[1].Categories, []string{"a"}) {
		t.Errorf("categories not loaded: %v", books[1].Categories)
	}

	none, err := ListBooksByOwner(ctx, database, 9999)
	if err != nil {
		t.Fatalf("ListBooksByOwner: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no books, got %d", len(none))
	}
}

func TestUpdateBook(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustUser(t, database, "owner")
	book := mustBook(t, database, owner.ID, "Old", "x", "y")

	book.Title = "New"
	book.Visibility = model.VisibilityPrivate
	book.Categories = []string{"z"}
	if err := UpdateBook(ctx, database, book); err != nil {
		t.Fatalf("UpdateBook: %v", err)
	}

	got, _ := GetBook(ctx, database, book.ID)
	if got.Title != "New" || got.Visibility != model.VisibilityPrivate {
		t.Errorf("book not updated: %+v", got)
	}
	if !slices.Equal(got.Categories, []string{"z"}) {
		t.Errorf("categories not replaced: %v", got.Categories)
	}
	if got.OwnerID != owner.ID {
		t.Error("owner must not change")
	}
}

func TestDeleteBook(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustUser(t, database, "owner")
	book := mustBook(t, database, owner.ID, "Doomed")

	if err := DeleteBook(ctx, database, book.ID); err != nil {
		t.Fatalf("DeleteBook: %v", err)
	}

	got, _ := GetBook(ctx, database, book.ID)
	if got != nil {
		t.Error("expected deleted book to be hidden")
	}
	books, _ := ListBooksByOwner(ctx, database, owner.ID)
	if len(books) != 0 {
		t.Errorf("expected no books after delete, got %d", len(books))
	}
}
