package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/model"
)

const bookColumns = `id, owner_id, title, author, isbn, summary, visibility, created_at, updated_at, deleted_at`

func scanBook(s interface{ Scan(...any) error }, b *model.Book) error {
	return s.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Author, &b.ISBN, &b.Summary, &b.Visibility, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt)
}

// CreateBook inserts a book with its categories and returns the stored record.
func CreateBook(ctx context.Context, q db.Querier, b *model.Book) (*model.Book, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO books (owner_id, title, author, isbn, summary, visibility) VALUES (?, ?, ?, ?, ?, ?)`,
		b.OwnerID, b.Title, b.Author, b.ISBN, b.Summary, string(b.Visibility),
	)
	if err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting book id: %w", err)
	}

	if err := setCategories(ctx, q, id, b.Categories); err != nil {
		return nil, err
	}

	return GetBook(ctx, q, id)
}

// GetBook returns a non-deleted book by ID, or nil if none exists.
func GetBook(ctx context.Context, q db.Querier, id int64) (*model.Book, error) {
	b := &model.Book{}
	err := scanBook(q.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ? AND deleted_at IS NULL`, id,
	), b)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting book: %w", err)
	}

	cats, err := loadCategories(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	b.Categories = categoriesOf(cats, id)
	return b, nil
}

// ListBooksByOwner returns an owner's books, newest first.
func ListBooksByOwner(ctx context.Context, q db.Querier, ownerID int64) ([]model.Book, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books
		 WHERE owner_id = ? AND deleted_at IS NULL
		 ORDER BY created_at DESC, id DESC`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	var books []model.Book
	var ids []int64
	for rows.Next() {
		var b model.Book
		if err := scanBook(rows, &b); err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		books = append(books, b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	rows.Close()

	cats, err := loadCategories(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range books {
		books[i].Categories = categoriesOf(cats, books[i].ID)
	}
	return books, nil
}

// UpdateBook updates a book's metadata and categories. The owner never changes.
func UpdateBook(ctx context.Context, q db.Querier, b *model.Book) error {
	_, err := q.ExecContext(ctx,
		`UPDATE books SET title = ?, author = ?, isbn = ?, summary = ?, visibility = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		b.Title, b.Author, b.ISBN, b.Summary, string(b.Visibility), b.ID,
	)
	if err != nil {
		return fmt.Errorf("updating book: %w", err)
	}
	return setCategories(ctx, q, b.ID, b.Categories)
}

// DeleteBook soft-deletes a book.
func DeleteBook(ctx context.Context, q db.Querier, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE books SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	return nil
}

func setCategories(ctx context.Context, q db.Querier, bookID int64, categories []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM book_categories WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("clearing categories: %w", err)
	}
	for _, c := range model.NormalizeCategories(categories) {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO book_categories (book_id, category) VALUES (?, ?)`, bookID, c,
		); err != nil {
			return fmt.Errorf("adding category: %w", err)
		}
	}
	return nil
}

// loadCategories returns categories keyed by book ID for the given books.
func loadCategories(ctx context.Context, q db.Querier, bookIDs []int64) (map[int64][]string, error) {
	cats := make(map[int64][]string, len(bookIDs))
	if len(bookIDs) == 0 {
		return cats, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(bookIDs)), ",")
	args := make([]any, len(bookIDs))
	for i, id := range bookIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx,
		`SELECT book_id, category FROM book_categories
		 WHERE book_id IN (`+placeholders+`) ORDER BY category`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var c string
		if err := rows.Scan(&id, &c); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		cats[id] = append(cats[id], c)
	}
	return cats, rows.Err()
}

func categoriesOf(cats map[int64][]string, id int64) []string {
	if c, ok := cats[id]; ok {
		return c
	}
	return []string{}
}
