package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bookblend-dev/bookblend/pkg/book"
	"github.com/google/go-cmp/cmp"
)

const feedHeader = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test shelf: read</title>`

const feedFooter = `</channel></rss>`

func feedItem(bookID, title string) string {
	return fmt.Sprintf(`<item>
  <title>%s</title>
  <author_name>  Jane   Doe </author_name>
  <book_id>0</book_id>
  <book id="%s"><num_pages>312</num_pages></book>
  <isbn>9780000000001</isbn>
  <user_shelves></user_shelves>
  <average_rating>4.12</average_rating>
  <user_rating>5</user_rating>
  <user_review></user_review>
  <user_read_at>Wed, 01 Jan 2020 00:00:00 -0800</user_read_at>
  <user_date_added>Tue, 31 Dec 2019 00:00:00 -0800</user_date_added>
  <book_published>1995</book_published>
  <book_small_image_url>https://i.gr-assets.com/books/1.2345._SX50_.jpg</book_small_image_url>
  <book_medium_image_url>https://i.gr-assets.com/books/1.2345._SX98_.jpg</book_medium_image_url>
  <book_large_image_url>https://i.gr-assets.com/books/1.2345.jpg</book_large_image_url>
</item>`, title, bookID)
}

func feedPage(from, count int) string {
	var b strings.Builder
	b.WriteString(feedHeader)
	for i := range count {
		b.WriteString(feedItem(fmt.Sprintf("%d", from+i), fmt.Sprintf("Book %d", from+i)))
	}
	b.WriteString(feedFooter)
	return b.String()
}

func TestPageParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedHeader+feedItem("42", "The Dispossessed")+feedFooter)
	}))
	defer srv.Close()
	defer SetBaseURL(srv.URL)()

	c := New()
	records, more, err := c.Page(context.Background(), "1234", book.ShelfRead, 1)
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if more {
		t.Error("short page should report no more pages")
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	got := records[0]
	if got.BookID != "42" {
		t.Errorf("BookID = %q, want %q (nested book id wins)", got.BookID, "42")
	}
	if got.Author != "Jane Doe" {
		t.Errorf("Author = %q, want %q", got.Author, "Jane Doe")
	}
	if got.Shelf != book.ShelfRead {
		t.Errorf("Shelf = %q, want requested shelf", got.Shelf)
	}
	if got.AverageRating != 4.12 {
		t.Errorf("AverageRating = %v, want 4.12", got.AverageRating)
	}
	if got.UserRating != 5 {
		t.Errorf("UserRating = %d, want 5", got.UserRating)
	}
	if got.NumPages == nil || *got.NumPages != 312 {
		t.Errorf("NumPages = %v, want 312", got.NumPages)
	}
	if got.Published == nil || *got.Published != 1995 {
		t.Errorf("Published = %v, want 1995", got.Published)
	}
	if got.ReadAt == nil || got.ReadAt.String() != "2020-01-01" {
		t.Errorf("ReadAt = %v, want 2020-01-01", got.ReadAt)
	}
	if got.Link != "https://www.goodreads.com/book/show/42" {
		t.Errorf("Link = %q", got.Link)
	}
	wantImages := []string{
		"https://i.gr-assets.com/books/1.jpg",
		"https://i.gr-assets.com/books/1.jpg",
		"https://i.gr-assets.com/books/1.2345.jpg",
	}
	gotImages := []string{got.ImageSmall, got.ImageMedium, got.ImageLarge}
	if diff := cmp.Diff(wantImages, gotImages); diff != "" {
		t.Errorf("image URLs mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchShelfPaginates(t *testing.T) {
	var pagesServed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pagesServed = append(pagesServed, page)
		switch page {
		case "1":
			fmt.Fprint(w, feedPage(1, 100))
		case "2":
			fmt.Fprint(w, feedPage(101, 100))
		default:
			fmt.Fprint(w, feedPage(201, 37))
		}
	}))
	defer srv.Close()
	defer SetBaseURL(srv.URL)()

	c := New()
	records := c.FetchShelf(context.Background(), "1234", book.ShelfRead)

	if len(records) != 237 {
		t.Errorf("got %d records, want 237", len(records))
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, pagesServed); diff != "" {
		t.Errorf("pages fetched mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchShelfStopsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, feedPage(1, 100))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	defer SetBaseURL(srv.URL)()

	c := New()
	records := c.FetchShelf(context.Background(), "1234", book.ShelfRead)

	if len(records) != 100 {
		t.Errorf("got %d records, want the 100 collected before the failure", len(records))
	}
}

func TestPageUserNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	defer SetBaseURL(srv.URL)()

	c := New()
	_, _, err := c.Page(context.Background(), "no-such-user", book.ShelfRead, 1)
	if !errors.Is(err, book.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestPageNotRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>sign in required</body></html>")
	}))
	defer srv.Close()
	defer SetBaseURL(srv.URL)()

	c := New()
	_, _, err := c.Page(context.Background(), "1234", book.ShelfRead, 1)
	if !errors.Is(err, book.ErrFeedRoot) {
		t.Errorf("err = %v, want ErrFeedRoot", err)
	}
}

func TestPageSkipsItemsWithoutBookID(t *testing.T) {
	noID := strings.NewReplacer(
		`<book_id>0</book_id>`, `<book_id></book_id>`,
		`<book id="7">`, `<book id="">`,
	).Replace(feedItem("7", "Ghost Entry"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedHeader+noID+feedItem("8", "Real Entry")+feedFooter)
	}))
	defer srv.Close()
	defer SetBaseURL(srv.URL)()

	c := New()
	records, _, err := c.Page(context.Background(), "1234", book.ShelfRead, 1)
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if len(records) != 1 || records[0].BookID != "8" {
		t.Errorf("got %v, want single record with id 8", records)
	}
}

func TestRecordShelf(t *testing.T) {
	tests := []struct {
		name        string
		requested   book.Shelf
		userShelves string
		want        book.Shelf
	}{
		{"concrete request is authoritative", book.ShelfToRead, "read", book.ShelfToRead},
		{"all scope uses item shelf", book.ShelfAll, "currently-reading", book.ShelfCurrentlyReading},
		{"all scope takes first of list", book.ShelfAll, "to-read, fantasy", book.ShelfToRead},
		{"all scope defaults to read", book.ShelfAll, "", book.ShelfRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recordShelf(tt.requested, tt.userShelves); got != tt.want {
				t.Errorf("recordShelf(%q, %q) = %q, want %q", tt.requested, tt.userShelves, got, tt.want)
			}
		})
	}
}
