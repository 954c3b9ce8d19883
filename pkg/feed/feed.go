// Package feed fetches a user's shelved books from the Goodreads
// review-list RSS feed, one page at a time, and normalizes each item
// into a book.Record. This is the primary shelf source; pkg/shelftable
// is the HTML alternate.
package feed

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bookblend-dev/bookblend/pkg/book"
	"github.com/bookblend-dev/bookblend/pkg/httpcache"
	"github.com/bookblend-dev/bookblend/pkg/normalize"
)

// PageSize is the number of items a full feed page carries. A page with
// fewer items is the last page.
const PageSize = 100

// Client fetches Goodreads RSS feed pages.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*config)

type config struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
}

// WithHTTPCache sets the HTTP cache.
func WithHTTPCache(httpCache httpcache.Cacher) Option {
	return func(c *config) { c.cache = httpCache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithHTTPClient sets a custom HTTP client, for tests and for sharing a
// cookie jar with other fetchers.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// New creates a feed client.
func New(opts ...Option) *Client {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: cfg.httpClient,
		cache:      cfg.cache,
		logger:     cfg.logger,
	}
}

// baseURL is variable so tests can point the client at a local server.
var baseURL = "https://www.goodreads.com"

// FeedURL returns the RSS URL for one page of one user's shelf.
func FeedURL(userID string, shelf book.Shelf, page int) string {
	return fmt.Sprintf("%s/review/list_rss/%s?page=%d&shelf=%s",
		baseURL, url.PathEscape(userID), page, url.QueryEscape(string(shelf)))
}

// rssFeed mirrors the subset of the feed XML the pipeline consumes.
type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title         string  `xml:"title"`
	AuthorName    string  `xml:"author_name"`
	BookID        string  `xml:"book_id"`
	ISBN          string  `xml:"isbn"`
	UserShelves   string  `xml:"user_shelves"`
	AverageRating string  `xml:"average_rating"`
	UserRating    string  `xml:"user_rating"`
	UserReview    string  `xml:"user_review"`
	UserReadAt    string  `xml:"user_read_at"`
	UserDateAdded string  `xml:"user_date_added"`
	BookPublished string  `xml:"book_published"`
	ImageSmall    string  `xml:"book_small_image_url"`
	ImageMedium   string  `xml:"book_medium_image_url"`
	ImageLarge    string  `xml:"book_large_image_url"`
	Book          rssBook `xml:"book"`
}

type rssBook struct {
	ID       string `xml:"id,attr"`
	NumPages string `xml:"num_pages"`
}

// Page fetches one feed page. The second return value reports whether
// more pages remain: false once a page comes back with fewer than
// PageSize items. A 404 surfaces as book.ErrUserNotFound; a response
// that is not an RSS document surfaces as book.ErrFeedRoot.
func (c *Client) Page(ctx context.Context, userID string, shelf book.Shelf, page int) ([]book.Record, bool, error) {
	feedURL := FeedURL(userID, shelf, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	body, err := httpcache.FetchURL(ctx, c.cache, c.httpClient, req, c.logger)
	if err != nil {
		var httpErr *httpcache.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, false, fmt.Errorf("feed for user %s: %w", userID, book.ErrUserNotFound)
		}
		return nil, false, fmt.Errorf("fetch feed page %d for user %s: %w", page, userID, err)
	}

	var feedDoc rssFeed
	if err := xml.Unmarshal(body, &feedDoc); err != nil {
		return nil, false, fmt.Errorf("parse feed page %d for user %s: %w: %w", page, userID, book.ErrFeedRoot, err)
	}

	records := make([]book.Record, 0, len(feedDoc.Channel.Items))
	for _, item := range feedDoc.Channel.Items {
		rec, ok := itemToRecord(item, shelf)
		if !ok {
			c.logger.Debug("skipping feed item without book id", "user_id", userID, "title", item.Title)
			continue
		}
		records = append(records, rec)
	}

	more := len(feedDoc.Channel.Items) >= PageSize
	return records, more, nil
}

// FetchShelf fetches every page of one shelf. Page errors are fail-soft:
// the first failure stops pagination and the records collected so far are
// returned, so one bad page never aborts a library build.
func (c *Client) FetchShelf(ctx context.Context, userID string, shelf book.Shelf) []book.Record {
	var all []book.Record
	for page := 1; ; page++ {
		records, more, err := c.Page(ctx, userID, shelf, page)
		if err != nil {
			c.logger.Warn("feed page failed, stopping pagination",
				"user_id", userID, "shelf", shelf, "page", page, "error", err)
			return all
		}
		all = append(all, records...)
		if !more {
			return all
		}
	}
}

// itemToRecord normalizes one feed item. The book id prefers the nested
// book element's id attribute over the item-level field; an item with
// neither is dropped. Records from a concrete shelf request are tagged
// with the requested shelf; the "all" scope falls back to the item's own
// shelf list.
func itemToRecord(item rssItem, requested book.Shelf) (book.Record, bool) {
	bookID := strings.TrimSpace(item.Book.ID)
	if bookID == "" {
		bookID = strings.TrimSpace(item.BookID)
	}
	if bookID == "" {
		return book.Record{}, false
	}

	return book.Record{
		BookID:        bookID,
		Title:         strings.TrimSpace(item.Title),
		Author:        normalize.Author(item.AuthorName),
		Shelf:         recordShelf(requested, item.UserShelves),
		ISBN:          strings.TrimSpace(item.ISBN),
		AverageRating: normalize.Float(item.AverageRating),
		UserRating:    normalize.Int(item.UserRating),
		UserReview:    normalize.Review(item.UserReview),
		ReadAt:        normalize.Date(item.UserReadAt),
		DateAdded:     normalize.Date(item.UserDateAdded),
		NumPages:      normalize.Count(item.Book.NumPages),
		Published:     normalize.Count(item.BookPublished),
		ImageSmall:    normalize.CoverURL(strings.TrimSpace(item.ImageSmall)),
		ImageMedium:   normalize.CoverURL(strings.TrimSpace(item.ImageMedium)),
		ImageLarge:    normalize.CoverURL(strings.TrimSpace(item.ImageLarge)),
		Link:          book.BookURL(bookID),
	}, true
}

// recordShelf decides the shelf a record is tagged with. A concrete
// requested shelf is authoritative. Under the "all" scope the item's
// first listed shelf wins; the feed omits the field for the default
// exclusive shelf, which is "read".
func recordShelf(requested book.Shelf, userShelves string) book.Shelf {
	if requested != book.ShelfAll && requested != "" {
		return requested
	}
	for _, name := range strings.Split(userShelves, ",") {
		if name = strings.TrimSpace(name); name != "" {
			return book.Shelf(name)
		}
	}
	return book.ShelfRead
}

// SetBaseURL overrides the feed host. Tests use it to point the client
// at an httptest server; it returns a restore function.
func SetBaseURL(u string) (restore func()) {
	prev := baseURL
	baseURL = strings.TrimSuffix(u, "/")
	return func() { baseURL = prev }
}
