// Package userinfo fetches a Goodreads user's profile: display name,
// avatar, shelved-book count, and the friends and followed users listed
// on the profile page.
package userinfo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bookblend-dev/bookblend/pkg/book"
	"github.com/bookblend-dev/bookblend/pkg/httpcache"
)

// User is the profile summary scraped from the user page's OpenGraph tags.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Username   string `json:"username,omitempty"`
	ImageURL   string `json:"image_url"`
	ProfileURL string `json:"profile_url"`
	BookCount  string `json:"book_count"`
}

// Friend is one friend or followed user listed on the profile page.
// Followed users carry no book count.
type Friend struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url"`
	ProfileURL string `json:"profile_url"`
	BookCount  string `json:"book_count"`
}

// Profile bundles the user summary with their friend list.
type Profile struct {
	User    User     `json:"user"`
	Friends []Friend `json:"friends"`
}

// Client fetches Goodreads profile pages.
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

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// New creates a profile client.
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

// ProfileURL returns the public profile page URL for a user id.
func ProfileURL(userID string) string {
	return baseURL + "/user/show/" + userID
}

// Fetch retrieves and parses one user's profile page. A 404 surfaces as
// book.ErrUserNotFound.
func (c *Client) Fetch(ctx context.Context, userID string) (*Profile, error) {
	profileURL := ProfileURL(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)
	req.Header.Set("Accept", "text/html")

	body, err := httpcache.FetchURL(ctx, c.cache, c.httpClient, req, c.logger)
	if err != nil {
		var httpErr *httpcache.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("profile for user %s: %w", userID, book.ErrUserNotFound)
		}
		return nil, fmt.Errorf("fetch profile for user %s: %w", userID, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse profile for user %s: %w", userID, err)
	}

	profile := &Profile{
		User:    parseUser(doc, userID, profileURL),
		Friends: parseFriends(doc),
	}
	c.logger.Debug("fetched profile", "user_id", userID, "name", profile.User.Name, "friends", len(profile.Friends))
	return profile, nil
}

func metaContent(doc *goquery.Document, property string) string {
	return doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().AttrOr("content", "")
}

// parseUser reads the OpenGraph meta tags. The book count sits inside the
// og:description sentence "<name> has <n> books on Goodreads...".
func parseUser(doc *goquery.Document, userID, profileURL string) User {
	u := User{
		ID:         userID,
		ProfileURL: profileURL,
		Name:       metaContent(doc, "og:title"),
		Username:   metaContent(doc, "profile:username"),
		ImageURL:   metaContent(doc, "og:image"),
	}

	desc := metaContent(doc, "og:description")
	if _, after, found := strings.Cut(desc, " has "); found {
		if count, _, found := strings.Cut(after, " books on Goodreads"); found {
			u.BookCount = count
		}
	}
	return u
}

// parseFriends collects the friends box entries, then the followed-user
// entries, in page order.
func parseFriends(doc *goquery.Document) []Friend {
	var friends []Friend
	seen := make(map[string]bool)

	doc.Find(".bigBoxContent.containerWithHeaderContent > div").Each(func(_ int, div *goquery.Selection) {
		link := div.Find("a.leftAlignedImage").First()
		nameLink := div.Find(".friendName a").First()
		img := link.Find("img").First()
		if link.Length() == 0 || nameLink.Length() == 0 || img.Length() == 0 {
			return
		}

		path := link.AttrOr("href", "")
		id := idFromProfilePath(path)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		friends = append(friends, Friend{
			ID:         id,
			Name:       strings.TrimSpace(nameLink.Text()),
			ImageURL:   img.AttrOr("src", ""),
			ProfileURL: baseURL + path,
			BookCount:  friendBookCount(div),
		})
	})

	doc.Find("div.bigBoxBody div.bigBoxContent a.leftAlignedImage").Each(func(_ int, link *goquery.Selection) {
		path := link.AttrOr("href", "")
		title := strings.TrimSpace(link.AttrOr("title", ""))
		img := link.Find("img").First()
		if path == "" || title == "" || img.Length() == 0 {
			return
		}

		id := idFromProfilePath(path)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		friends = append(friends, Friend{
			ID:         id,
			Name:       title,
			ImageURL:   img.AttrOr("src", ""),
			ProfileURL: baseURL + path,
		})
	})

	return friends
}

// idFromProfilePath extracts the numeric id from a profile href such as
// "/user/show/42944663-jane".
func idFromProfilePath(path string) string {
	last := path[strings.LastIndex(path, "/")+1:]
	id, _, _ := strings.Cut(last, "-")
	return id
}

// friendBookCount pulls the "<n> books" fragment from a friend entry.
func friendBookCount(div *goquery.Selection) string {
	for _, line := range strings.Split(div.Find(".left").First().Text(), "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "books") {
			return strings.TrimSpace(strings.ReplaceAll(line, " books", ""))
		}
	}
	return ""
}

// SetBaseURL overrides the profile host for tests; it returns a restore
// function.
func SetBaseURL(u string) (restore func()) {
	prev := baseURL
	baseURL = strings.TrimSuffix(u, "/")
	return func() { baseURL = prev }
}
