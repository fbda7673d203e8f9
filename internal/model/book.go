package model

import (
	"slices"
	"strings"
	"time"
)

// Visibility controls who besides the owner may see a book.
type Visibility string

// Book visibilities.
const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Book is a single title in a user's catalog.
type Book struct {
	ID         int64      `json:"id"`
	OwnerID    int64      `json:"owner_id"`
	Title      string     `json:"title"`
	Author     string     `json:"author"`
	ISBN       string     `json:"isbn"`
	Summary    string     `json:"summary"`
	Categories []string   `json:"categories"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`

	// Loan state as seen by a particular viewer (not always populated).
	Available bool  `json:"available"`
	Loan      *Loan `json:"loan,omitempty"`
}

// HasCategory reports whether the book is tagged with category.
func (b *Book) HasCategory(category string) bool {
	return slices.Contains(b.Categories, category)
}

// NormalizeCategories trims, drops empty entries, de-duplicates and sorts.
func NormalizeCategories(categories []string) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
