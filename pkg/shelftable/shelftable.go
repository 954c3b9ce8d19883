// Package shelftable parses a user's shelf from the Goodreads review-list
// HTML table. It is the alternate shelf source: private shelves are not
// exposed over RSS, but the HTML view is visible to an authenticated
// session carrying the user's cookies.
package shelftable

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bookblend-dev/bookblend/pkg/book"
	"github.com/bookblend-dev/bookblend/pkg/httpcache"
	"github.com/bookblend-dev/bookblend/pkg/normalize"
)

// PageSize is the per_page value requested from the table view.
const PageSize = 100

// fullPageThreshold is the row count below which a page is treated as the
// last one. The table view drops a handful of rows on full pages, so the
// cutoff sits under PageSize.
const fullPageThreshold = 90

var bookShowPath = regexp.MustCompile(`/book/show/(\d+)`)

// Row is one parsed table row keyed by the header cells' alt attributes.
// Column identity comes from the alt attribute, not the visible header
// text, so reordered or localized headers do not break the mapping.
type Row map[string]string

// Parse extracts the rows of the table with id "books" from a review-list
// page. A document without that table yields book.ErrFeedRoot. Columns
// present in the header but missing from a row come back as empty values.
func Parse(body []byte) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse shelf page: %w", err)
	}

	table := doc.Find("table#books")
	if table.Length() == 0 {
		return nil, fmt.Errorf("shelf page has no books table: %w", book.ErrFeedRoot)
	}

	var columns []string
	table.Find("tr#booksHeader th").Each(func(_ int, th *goquery.Selection) {
		name := strings.TrimSpace(th.AttrOr("alt", ""))
		if name == "" {
			name = strings.TrimSpace(th.Text())
		}
		columns = append(columns, name)
	})

	var rows []Row
	table.Find("tr.bookalike").Each(func(_ int, tr *goquery.Selection) {
		row := make(Row, len(columns)+2)
		cells := tr.Find("td")
		for i, col := range columns {
			if i >= cells.Length() {
				row[col] = ""
				continue
			}
			row[col] = cellValue(col, cells.Eq(i))
		}

		if title := titleCell(columns, cells); title != nil {
			if href, ok := title.Find("a").First().Attr("href"); ok {
				if m := bookShowPath.FindStringSubmatch(href); m != nil {
					row["goodreads_id"] = m[1]
					row["goodreads_url"] = "https://www.goodreads.com" + href
				}
			}
		}

		rows = append(rows, row)
	})

	return rows, nil
}

func titleCell(columns []string, cells *goquery.Selection) *goquery.Selection {
	for i, col := range columns {
		if col == "title" && i < cells.Length() {
			return cells.Eq(i)
		}
	}
	return nil
}

// cellValue extracts one cell's value. Cover cells yield the image source,
// title cells the link text, rating cells the staticStars title phrase.
// Everything else takes the value div's text with the label stripped.
func cellValue(col string, cell *goquery.Selection) string {
	switch col {
	case "cover":
		return cell.Find("img").First().AttrOr("src", "")
	case "title":
		if link := cell.Find("a").First(); link.Length() > 0 {
			return strings.TrimSpace(link.Text())
		}
		return strings.TrimSpace(cell.Text())
	case "rating":
		if title, ok := cell.Find("span.staticStars").First().Attr("title"); ok {
			return title
		}
	}

	var value string
	if div := cell.Find("div.value").First(); div.Length() > 0 {
		value = strings.TrimSpace(div.Text())
	} else {
		value = strings.TrimSpace(cell.Text())
	}

	if label := cell.Find("label").First(); label.Length() > 0 {
		value = strings.TrimSpace(strings.TrimPrefix(value, strings.TrimSpace(label.Text())))
	}
	return value
}

// Records converts parsed rows into book records tagged with the given
// shelf. Rows without a book id are dropped.
func Records(rows []Row, shelf book.Shelf) []book.Record {
	records := make([]book.Record, 0, len(rows))
	for _, row := range rows {
		bookID := row["goodreads_id"]
		if bookID == "" {
			continue
		}
		records = append(records, book.Record{
			BookID:        bookID,
			Title:         row["title"],
			Author:        normalize.Author(row["author"]),
			Shelf:         shelf,
			ISBN:          normalize.FieldLabel("isbn", row["isbn"]),
			AverageRating: normalize.Float(row["avg_rating"]),
			UserRating:    normalize.Rating(row["rating"]),
			UserReview:    normalize.Review(row["review"]),
			ReadAt:        normalize.Date(row["date_read"]),
			DateAdded:     normalize.Date(row["date_added"]),
			NumPages:      normalize.Pages(row["num_pages"]),
			Published:     normalize.Year(row["date_pub"]),
			ImageLarge:    normalize.CoverURL(row["cover"]),
			Link:          book.BookURL(bookID),
		})
	}
	return records
}

// Client fetches review-list table pages, typically with an authenticated
// http.Client whose jar carries Goodreads session cookies.
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

// WithHTTPClient sets a custom HTTP client, usually one carrying a cookie
// jar from pkg/auth.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// New creates a shelf table client.
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

var baseURL = "https://www.goodreads.com"

// PageURL returns the review-list URL for one page of one user's shelf.
func PageURL(userID string, shelf book.Shelf, page int) string {
	return fmt.Sprintf("%s/review/list/%s?per_page=%d&page=%d&shelf=%s",
		baseURL, url.PathEscape(userID), PageSize, page, url.QueryEscape(string(shelf)))
}

// Page fetches and parses one table page. The second return value reports
// whether more pages remain.
func (c *Client) Page(ctx context.Context, userID string, shelf book.Shelf, page int) ([]book.Record, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, PageURL(userID, shelf, page), http.NoBody)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)
	req.Header.Set("Accept", "text/html")

	body, err := httpcache.FetchURL(ctx, c.cache, c.httpClient, req, c.logger)
	if err != nil {
		return nil, false, fmt.Errorf("fetch shelf page %d for user %s: %w", page, userID, err)
	}

	rows, err := Parse(body)
	if err != nil {
		return nil, false, err
	}

	records := Records(rows, shelf)
	more := len(rows) >= fullPageThreshold
	return records, more, nil
}

// FetchShelf fetches every page of one shelf. Like the RSS path, page
// errors stop pagination but never abort the build.
func (c *Client) FetchShelf(ctx context.Context, userID string, shelf book.Shelf) []book.Record {
	var all []book.Record
	for page := 1; ; page++ {
		records, more, err := c.Page(ctx, userID, shelf, page)
		if err != nil {
			c.logger.Warn("shelf table page failed, stopping pagination",
				"user_id", userID, "shelf", shelf, "page", page, "error", err)
			return all
		}
		all = append(all, records...)
		if !more {
			return all
		}
	}
}

// SetBaseURL overrides the table host for tests; it returns a restore
// function.
func SetBaseURL(u string) (restore func()) {
	prev := baseURL
	baseURL = strings.TrimSuffix(u, "/")
	return func() { baseURL = prev }
}
