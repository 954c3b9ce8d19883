// Package metrics computes per-user aggregates and pairwise overlaps for
// two book libraries. Everything here is deterministic and pure: inputs
// are never mutated, and aggregates over empty or all-null columns come
// back nil rather than a fabricated zero.
package metrics

import (
	"math"
	"sort"

	"github.com/bookblend-dev/bookblend/pkg/book"
)

// Era is one of six fixed publication-year buckets.
type Era string

// The era buckets, half-open, in canonical order. Dominant-era ties
// resolve to the earlier bucket in this order.
const (
	EraPre1900     Era = "pre_1900"
	Era1900to1950  Era = "1900_1950"
	Era1950to1980  Era = "1950_1980"
	Era1980to2000  Era = "1980_2000"
	Era2000to2010  Era = "2000_2010"
	Era2010Present Era = "2010_present"
)

// Eras lists the buckets in canonical order.
func Eras() []Era {
	return []Era{EraPre1900, Era1900to1950, Era1950to1980, Era1980to2000, Era2000to2010, Era2010Present}
}

// EraOf buckets a publication year.
func EraOf(year int) Era {
	switch {
	case year < 1900:
		return EraPre1900
	case year < 1950:
		return Era1900to1950
	case year < 1980:
		return Era1950to1980
	case year < 2000:
		return Era1980to2000
	case year < 2010:
		return Era2000to2010
	default:
		return Era2010Present
	}
}

// BookDetail identifies one notable book (oldest, longest) in a user's
// read shelf.
type BookDetail struct {
	BookID string `json:"book_id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Year   *int   `json:"year,omitempty"`
	Pages  *int   `json:"pages,omitempty"`
	Image  string `json:"image"`
}

// UserStats are one user's aggregates. Pointer fields are nil when the
// underlying column had no data.
//
//nolint:govet // fieldalignment: intentional layout for readability
type UserStats struct {
	UserID string `json:"user_id"`

	TotalBooks       int `json:"total_books"`
	ReadCount        int `json:"read_count"`
	ToReadCount      int `json:"to_read_count"`
	CurrentlyReading int `json:"currently_reading_count"`

	TotalPages  *int     `json:"total_pages"`
	MeanPages   *float64 `json:"mean_pages"`
	MedianPages *float64 `json:"median_pages"`

	RatedCount int      `json:"rated_count"`
	MeanRating *float64 `json:"mean_rating"`

	MeanPubYear *int        `json:"mean_pub_year"`
	OldestBook  *BookDetail `json:"oldest_book"`
	LongestBook *BookDetail `json:"longest_book"`

	EraPercent  map[Era]float64 `json:"era_percent"`
	DominantEra Era             `json:"dominant_era,omitempty"`
}

// AuthorBook is one book inside a common-author entry.
type AuthorBook struct {
	BookID string     `json:"book_id"`
	Title  string     `json:"title"`
	Shelf  book.Shelf `json:"shelf"`
}

// AuthorOverlap lists both users' books by one shared author.
type AuthorOverlap struct {
	Author     string       `json:"author"`
	User1Books []AuthorBook `json:"user1_books"`
	User2Books []AuthorBook `json:"user2_books"`
}

// Comparison is the full pairwise statistics output.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Comparison struct {
	User1 UserStats `json:"user1"`
	User2 UserStats `json:"user2"`

	CommonBooksCount     int `json:"common_books_count"`
	CommonReadBooksCount int `json:"common_read_books_count"`

	// CommonBooks holds user 1's record for every shared book id, in
	// user 1's canonical order.
	CommonBooks []book.Record `json:"common_books,omitempty"`

	// EraSimilarity is the dot product of the two users' fractional era
	// distributions, as a percentage.
	EraSimilarity float64 `json:"era_similarity"`

	CommonAuthors []AuthorOverlap `json:"common_authors"`

	// AuthorUnionCount is the number of distinct non-empty authors across
	// both libraries, the denominator of the author-overlap signal.
	AuthorUnionCount int `json:"author_union_count"`
}

// Stats computes one user's aggregates. Read-shelf-only statistics (pages,
// publication years, eras) skip records missing the relevant field instead
// of counting them as zero.
func Stats(lib book.Library) UserStats {
	s := UserStats{
		UserID:     lib.UserID,
		TotalBooks: len(lib.Books),
		EraPercent: make(map[Era]float64, 6),
	}
	for _, e := range Eras() {
		s.EraPercent[e] = 0
	}

	var pages []int
	var years []int
	var ratingSum, ratingCount int
	eraCounts := make(map[Era]int, 6)

	for i := range lib.Books {
		b := &lib.Books[i]
		switch b.Shelf {
		case book.ShelfRead:
			s.ReadCount++
		case book.ShelfToRead:
			s.ToReadCount++
		case book.ShelfCurrentlyReading:
			s.CurrentlyReading++
		}

		if b.UserRating > 0 {
			ratingSum += b.UserRating
			ratingCount++
		}

		if b.Shelf != book.ShelfRead {
			continue
		}
		if b.NumPages != nil {
			pages = append(pages, *b.NumPages)
		}
		if b.Published != nil {
			years = append(years, *b.Published)
			eraCounts[EraOf(*b.Published)]++
		}

		if b.Published != nil && (s.OldestBook == nil || *b.Published < *s.OldestBook.Year) {
			s.OldestBook = &BookDetail{
				BookID: b.BookID, Title: b.Title, Author: b.Author,
				Year: b.Published, Image: b.ImageLarge,
			}
		}
		if b.NumPages != nil && (s.LongestBook == nil || *b.NumPages > *s.LongestBook.Pages) {
			s.LongestBook = &BookDetail{
				BookID: b.BookID, Title: b.Title, Author: b.Author,
				Pages: b.NumPages, Image: b.ImageLarge,
			}
		}
	}

	s.RatedCount = ratingCount
	if ratingCount > 0 {
		mean := float64(ratingSum) / float64(ratingCount)
		s.MeanRating = &mean
	}

	if len(pages) > 0 {
		total := 0
		for _, p := range pages {
			total += p
		}
		mean := float64(total) / float64(len(pages))
		median := medianOf(pages)
		s.TotalPages = &total
		s.MeanPages = &mean
		s.MedianPages = &median
	}

	if len(years) > 0 {
		sum := 0
		for _, y := range years {
			sum += y
		}
		meanYear := int(math.Round(float64(sum) / float64(len(years))))
		s.MeanPubYear = &meanYear

		for era, count := range eraCounts {
			s.EraPercent[era] = 100 * float64(count) / float64(len(years))
		}
		best := -1
		for _, era := range Eras() {
			if eraCounts[era] > best {
				best = eraCounts[era]
				s.DominantEra = era
			}
		}
	}

	return s
}

// medianOf returns the median of a non-empty slice without mutating it.
func medianOf(values []int) float64 {
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

// Compare computes the pairwise statistics for two libraries. Both inputs
// are expected in canonical order; tie-breaks for oldest and longest book
// pick the first record under that ordering.
func Compare(lib1, lib2 book.Library) Comparison {
	c := Comparison{
		User1: Stats(lib1),
		User2: Stats(lib2),
	}

	ids2 := make(map[string]bool, len(lib2.Books))
	readIDs2 := make(map[string]bool)
	for _, b := range lib2.Books {
		ids2[b.BookID] = true
		if b.Shelf == book.ShelfRead {
			readIDs2[b.BookID] = true
		}
	}

	for _, b := range lib1.Books {
		if ids2[b.BookID] {
			c.CommonBooksCount++
			c.CommonBooks = append(c.CommonBooks, b)
		}
		if b.Shelf == book.ShelfRead && readIDs2[b.BookID] {
			c.CommonReadBooksCount++
		}
	}

	c.EraSimilarity = eraSimilarity(c.User1, c.User2)

	byAuthor1 := booksByAuthor(lib1)
	byAuthor2 := booksByAuthor(lib2)
	c.CommonAuthors = commonAuthors(byAuthor1, byAuthor2)

	union := make(map[string]bool, len(byAuthor1)+len(byAuthor2))
	for author := range byAuthor1 {
		union[author] = true
	}
	for author := range byAuthor2 {
		union[author] = true
	}
	c.AuthorUnionCount = len(union)

	return c
}

// eraSimilarity is the dot product of the fractional era distributions,
// scaled to a percentage. Zero whenever either user has no dated read
// books.
func eraSimilarity(s1, s2 UserStats) float64 {
	var dot float64
	for _, era := range Eras() {
		dot += (s1.EraPercent[era] / 100) * (s2.EraPercent[era] / 100)
	}
	return dot * 100
}

// commonAuthors lists authors present in both libraries with each user's
// books by that author, sorted by combined book count descending and
// author name ascending on ties.
func commonAuthors(byAuthor1, byAuthor2 map[string][]AuthorBook) []AuthorOverlap {
	var overlaps []AuthorOverlap
	for author, books1 := range byAuthor1 {
		books2, ok := byAuthor2[author]
		if !ok {
			continue
		}
		overlaps = append(overlaps, AuthorOverlap{
			Author:     author,
			User1Books: books1,
			User2Books: books2,
		})
	}

	sort.Slice(overlaps, func(i, j int) bool {
		ci := len(overlaps[i].User1Books) + len(overlaps[i].User2Books)
		cj := len(overlaps[j].User1Books) + len(overlaps[j].User2Books)
		if ci != cj {
			return ci > cj
		}
		return overlaps[i].Author < overlaps[j].Author
	})
	return overlaps
}

func booksByAuthor(lib book.Library) map[string][]AuthorBook {
	out := make(map[string][]AuthorBook)
	for _, b := range lib.Books {
		if b.Author == "" {
			continue
		}
		out[b.Author] = append(out[b.Author], AuthorBook{
			BookID: b.BookID,
			Title:  b.Title,
			Shelf:  b.Shelf,
		})
	}
	return out
}
