package search

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/erazemk/paralibrary/internal/model"
)

func library() []model.Book {
	return []model.Book{
		{ID: 1, Title: "Dune", Author: "Frank Herbert", Categories: []string{"sci-fi"}},
		{ID: 2, Title: "Emma", Author: "Jane Austen", Categories: []string{"classic", "romance"}},
		{ID: 3, Title: "C++ Primer", Author: "Stanley Lippman", Categories: []string{"programming"}},
		{ID: 4, Title: "Children of Dune", Author: "Frank Herbert", Categories: []string{"sci-fi"}},
		{ID: 5, Title: "What is (.*)?", Author: "Anon", Categories: []string{}},
	}
}

func ids(books []model.Book) []int64 {
	out := make([]int64, len(books))
	for i, b := range books {
		out[i] = b.ID
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		term     string
		category string
		want     []int64
	}{
		{"empty matches all", "", "", []int64{1, 2, 3, 4, 5}},
		{"whitespace term matches all", "   ", "", []int64{1, 2, 3, 4, 5}},
		{"title substring", "dune", "", []int64{1, 4}},
		{"case insensitive", "DUNE", "", []int64{1, 4}},
		{"author substring", "austen", "", []int64{2}},
		{"trimmed term", "  herbert ", "", []int64{1, 4}},
		{"category only", "", "sci-fi", []int64{1, 4}},
		{"term and category", "emma", "classic", []int64{2}},
		{"term and wrong category", "emma", "sci-fi", nil},
		{"unknown category", "", "poetry", nil},
		{"regex metacharacters are literal", "c++", "", []int64{3}},
		{"dot star is literal", "(.*)", "", []int64{5}},
		{"unmatched bracket is literal", "[", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(library(), tt.term, tt.category)
			assert.Equal(t, len(tt.want), len(got))
			if len(tt.want) > 0 {
				assert.Equal(t, tt.want, ids(got))
			}
		})
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	books := library()
	before := ids(books)

	Filter(books, "dune", "sci-fi")

	assert.Equal(t, before, ids(books))
	assert.Equal(t, "Dune", books[0].Title)
}

func TestCategories(t *testing.T) {
	assert.Equal(t, []string{"classic", "programming", "romance", "sci-fi"}, Categories(library()))
	assert.Empty(t, Categories(nil))
}

func TestIsFiltered(t *testing.T) {
	assert.False(t, IsFiltered("", ""))
	assert.False(t, IsFiltered("  ", " "))
	assert.True(t, IsFiltered("x", ""))
	assert.True(t, IsFiltered("", "sci-fi"))
}

// indexOf returns the position of the book with id in books, or -1.
func indexOf(books []model.Book, id int64) int {
	return slices.IndexFunc(books, func(b model.Book) bool { return b.ID == id })
}

func genBook(t *rapid.T, id int64) model.Book {
	alphabet := rapid.SampledFrom([]string{"a", "B", "c", "Dune", "+", ".", "*", " ", "é"})
	word := rapid.Custom(func(t *rapid.T) string {
		return strings.Join(rapid.SliceOfN(alphabet, 0, 6).Draw(t, "parts"), "")
	})
	return model.Book{
		ID:         id,
		Title:      word.Draw(t, "title"),
		Author:     word.Draw(t, "author"),
		Categories: rapid.SliceOfDistinct(rapid.SampledFrom([]string{"x", "y", "z"}), rapid.ID[string]).Draw(t, "categories"),
	}
}

func genBooks(t *rapid.T) []model.Book {
	n := rapid.IntRange(0, 20).Draw(t, "n")
	books := make([]model.Book, n)
	for i := range books {
		books[i] = genBook(t, int64(i+1))
	}
	return books
}

func TestFilterProperties(t *testing.T) {
	t.Run("empty filter is identity", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			books := genBooks(t)
			got := Filter(books, "", "")
			require.Equal(t, ids(books), ids(got))
		})
	})

	t.Run("every result matches and is from the input in order", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			books := genBooks(t)
			term := rapid.SampledFrom([]string{"", "a", "b", "dune", "+", ".*", " c "}).Draw(t, "term")
			category := rapid.SampledFrom([]string{"", "x", "y"}).Draw(t, "category")

			got := Filter(books, term, category)
			needle := strings.ToLower(strings.TrimSpace(term))

			last := -1
			for _, b := range got {
				pos := indexOf(books, b.ID)
				require.Greater(t, pos, last, "order not preserved")
				last = pos

				if category != "" {
					require.True(t, slices.Contains(b.Categories, category))
				}
				if needle != "" {
					require.True(t,
						strings.Contains(strings.ToLower(b.Title), needle) ||
							strings.Contains(strings.ToLower(b.Author), needle))
				}
			}
		})
	})

	t.Run("every matching input is returned", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			books := genBooks(t)
			term := rapid.SampledFrom([]string{"", "a", "B", "dune", "*"}).Draw(t, "term")
			category := rapid.SampledFrom([]string{"", "x", "z"}).Draw(t, "category")

			got := ids(Filter(books, term, category))
			needle := strings.ToLower(strings.TrimSpace(term))
			for _, b := range books {
				inCategory := category == "" || slices.Contains(b.Categories, category)
				hasTerm := needle == "" ||
					strings.Contains(strings.ToLower(b.Title), needle) ||
					strings.Contains(strings.ToLower(b.Author), needle)
				if inCategory && hasTerm {
					require.Contains(t, got, b.ID)
				}
			}
		})
	})
}
