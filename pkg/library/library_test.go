package library

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bookblend-dev/bookblend/pkg/book"
)

// stubFetcher returns canned records per shelf and logs requested shelves.
type stubFetcher struct {
	shelves map[book.Shelf][]book.Record
	calls   []book.Shelf
}

func (s *stubFetcher) FetchShelf(_ context.Context, _ string, shelf book.Shelf) []book.Record {
	s.calls = append(s.calls, shelf)
	return s.shelves[shelf]
}

func rec(id string, shelf book.Shelf) book.Record {
	return book.Record{BookID: id, Title: "Book " + id, Shelf: shelf}
}

func TestBuildAllScope(t *testing.T) {
	f := &stubFetcher{shelves: map[book.Shelf][]book.Record{
		book.ShelfRead:             {rec("1", book.ShelfRead), rec("2", book.ShelfRead)},
		book.ShelfToRead:           {rec("3", book.ShelfToRead)},
		book.ShelfCurrentlyReading: {rec("4", book.ShelfCurrentlyReading)},
	}}

	lib := NewBuilder(f).Build(context.Background(), "42", book.ShelfAll)

	if lib.UserID != "42" || lib.Scope != book.ShelfAll {
		t.Errorf("library tagged %q/%q, want 42/all", lib.UserID, lib.Scope)
	}
	if diff := cmp.Diff([]book.Shelf{book.ShelfRead, book.ShelfToRead, book.ShelfCurrentlyReading}, f.calls); diff != "" {
		t.Errorf("shelves fetched mismatch (-want +got):\n%s", diff)
	}

	var gotIDs []string
	for _, b := range lib.Books {
		gotIDs = append(gotIDs, b.BookID)
	}
	// Canonical ordering: currently-reading, to-read, read.
	if diff := cmp.Diff([]string{"4", "3", "1", "2"}, gotIDs); diff != "" {
		t.Errorf("book order mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildSingleShelf(t *testing.T) {
	f := &stubFetcher{shelves: map[book.Shelf][]book.Record{
		book.ShelfToRead: {rec("7", book.ShelfToRead)},
	}}

	lib := NewBuilder(f).Build(context.Background(), "42", book.ShelfToRead)

	if len(f.calls) != 1 || f.calls[0] != book.ShelfToRead {
		t.Errorf("fetched %v, want a single to-read fetch", f.calls)
	}
	if len(lib.Books) != 1 || lib.Books[0].BookID != "7" {
		t.Errorf("got %v, want single book 7", lib.Books)
	}
	if lib.Scope != book.ShelfToRead {
		t.Errorf("Scope = %q, want to-read", lib.Scope)
	}
}

func TestBuildDedupesAcrossShelves(t *testing.T) {
	f := &stubFetcher{shelves: map[book.Shelf][]book.Record{
		book.ShelfRead:             {rec("1", book.ShelfRead)},
		book.ShelfCurrentlyReading: {rec("1", book.ShelfCurrentlyReading)},
	}}

	lib := NewBuilder(f).Build(context.Background(), "42", book.ShelfAll)

	if len(lib.Books) != 1 {
		t.Fatalf("got %d books, want 1 after dedupe", len(lib.Books))
	}
	if lib.Books[0].Shelf != book.ShelfCurrentlyReading {
		t.Errorf("kept shelf %q, want the higher-priority currently-reading copy", lib.Books[0].Shelf)
	}
}

func TestBuildEmptyLibrary(t *testing.T) {
	f := &stubFetcher{}

	lib := NewBuilder(f).Build(context.Background(), "42", book.ShelfAll)

	if len(lib.Books) != 0 {
		t.Errorf("got %d books, want 0", len(lib.Books))
	}
	if lib.UserID != "42" {
		t.Errorf("UserID = %q, want 42", lib.UserID)
	}
}
