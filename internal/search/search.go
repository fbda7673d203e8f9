// Package search filters a list of books by free text and category.
package search

import (
	"strings"

	"github.com/erazemk/paralibrary/internal/model"
)

// Filter returns the books whose title or author contains term (ignoring
// case) and that are tagged with category. An empty term or category matches
// everything. The term is literal text. The result keeps the input order and
// the input slice is never modified.
func Filter(books []model.Book, term, category string) []model.Book {
	needle := strings.ToLower(strings.TrimSpace(term))
	category = strings.TrimSpace(category)

	out := make([]model.Book, 0, len(books))
	for _, b := range books {
		if Matches(&b, needle, category) {
			out = append(out, b)
		}
	}
	return out
}

// Matches reports whether a single book passes the filter. needle must
// already be lower-cased and trimmed.
func Matches(b *model.Book, needle, category string) bool {
	if category != "" && !b.HasCategory(category) {
		return false
	}
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(b.Title), needle) ||
		strings.Contains(strings.ToLower(b.Author), needle)
}

// Categories returns every category used by books, sorted and unique.
func Categories(books []model.Book) []string {
	var all []string
	for _, b := range books {
		all = append(all, b.Categories...)
	}
	return model.NormalizeCategories(all)
}

// IsFiltered reports whether term or category would narrow a listing.
func IsFiltered(term, category string) bool {
	return strings.TrimSpace(term) != "" || strings.TrimSpace(category) != ""
}
