// Package book defines the canonical record types shared by every layer of
// the blend pipeline: one shelved book, one user's library, and the shelf
// vocabulary both are expressed in.
package book

import (
	"errors"
	"sort"
)

// Common errors returned by fetch-layer packages.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrFeedRoot     = errors.New("feed root not found")
)

// Shelf is one of a user's reading-status categories. Unknown shelf names
// pass through as opaque strings and sort after the three canonical ones.
type Shelf string

// The three canonical shelves, plus the scope value that selects their union.
const (
	ShelfCurrentlyReading Shelf = "currently-reading"
	ShelfToRead           Shelf = "to-read"
	ShelfRead             Shelf = "read"
	ShelfAll              Shelf = "all" // request scope only, never stored on a record
)

// Shelves lists the canonical shelves fetched for the "all" scope.
func Shelves() []Shelf {
	return []Shelf{ShelfRead, ShelfToRead, ShelfCurrentlyReading}
}

// Priority returns the canonical ordering rank of a shelf. Downstream
// "longest/oldest book" tie-breaks pick the first record under this
// ordering, so it must stay stable.
func (s Shelf) Priority() int {
	switch s {
	case ShelfCurrentlyReading:
		return 0
	case ShelfToRead:
		return 1
	case ShelfRead:
		return 2
	default:
		return 3
	}
}

// BookURL returns the canonical book page URL for a Goodreads book id.
func BookURL(bookID string) string {
	return "https://www.goodreads.com/book/show/" + bookID
}

// Record is one shelved book for one user. Fields that the source may omit
// are pointer-typed; absence is nil, never a zero that could be mistaken
// for data.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Record struct {
	BookID        string  `json:"book_id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	Shelf         Shelf   `json:"shelf"`
	ISBN          string  `json:"isbn,omitempty"`
	AverageRating float64 `json:"average_rating"`
	UserRating    int     `json:"user_rating"` // 0 means unrated
	UserReview    string  `json:"user_review"`
	ReadAt        *Date   `json:"read_at"`
	DateAdded     *Date   `json:"date_added"`
	NumPages      *int    `json:"num_pages"`
	Published     *int    `json:"book_published"`
	ImageSmall    string  `json:"image_small"`
	ImageMedium   string  `json:"image_medium"`
	ImageLarge    string  `json:"image_large"`
	Link          string  `json:"link"`
}

// Library is an ordered collection of records for one user, tagged with the
// user id and the shelf scope that was requested.
type Library struct {
	UserID string   `json:"user_id"`
	Scope  Shelf    `json:"shelf"`
	Books  []Record `json:"books"`
}

// SortCanonical orders books by shelf priority (currently-reading, to-read,
// read), preserving source order inside each shelf.
func (l *Library) SortCanonical() {
	sort.SliceStable(l.Books, func(i, j int) bool {
		return l.Books[i].Shelf.Priority() < l.Books[j].Shelf.Priority()
	})
}

// Dedupe removes records whose book id was already seen, keeping the first
// occurrence. Duplicate ids across pages are a source-side artifact.
func (l *Library) Dedupe() {
	seen := make(map[string]bool, len(l.Books))
	out := l.Books[:0]
	for _, b := range l.Books {
		if seen[b.BookID] {
			continue
		}
		seen[b.BookID] = true
		out = append(out, b)
	}
	l.Books = out
}

// OnShelf returns the records on the given shelf, in library order.
func (l *Library) OnShelf(s Shelf) []Record {
	var out []Record
	for _, b := range l.Books {
		if b.Shelf == s {
			out = append(out, b)
		}
	}
	return out
}
