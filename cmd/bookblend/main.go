// Command bookblend fetches Goodreads shelves and scores reading
// compatibility between two users.
//
// Usage:
//
//	bookblend <user_id>                 # fetch one user's library
//	bookblend <user_id1> <user_id2>     # blend two users
//	bookblend -user <user_id>           # fetch profile info instead
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bookblend-dev/bookblend/pkg/auth"
	"github.com/bookblend-dev/bookblend/pkg/blend"
	"github.com/bookblend-dev/bookblend/pkg/book"
	"github.com/bookblend-dev/bookblend/pkg/feed"
	"github.com/bookblend-dev/bookblend/pkg/httpcache"
	"github.com/bookblend-dev/bookblend/pkg/insight"
	"github.com/bookblend-dev/bookblend/pkg/library"
	"github.com/bookblend-dev/bookblend/pkg/shelftable"
	"github.com/bookblend-dev/bookblend/pkg/userinfo"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	verbose := flag.Bool("v", false, "verbose logging (same as -debug)")
	shelf := flag.String("shelf", "all", "shelf scope: read, to-read, currently-reading or all")
	noCache := flag.Bool("no-cache", false, "disable HTTP caching (enabled by default with 14-day TTL)")
	cacheTTL := flag.Duration("cache-ttl", 14*24*time.Hour, "cache time-to-live")
	noBrowser := flag.Bool("no-browser", false, "disable reading Goodreads cookies from browser stores")
	tableView := flag.Bool("table", false, "scrape the HTML shelf table instead of the RSS feed")
	userMode := flag.Bool("user", false, "fetch profile info instead of the shelf library")
	includeBooks := flag.Bool("include-books", false, "include the common book list in blend output")
	flag.Parse()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "Usage: bookblend [options] <user_id> [<user_id2>]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr, "\nWith one user id the shelf library is printed; with two,")
		fmt.Fprintln(os.Stderr, "a compatibility blend. OPENAI_API_KEY enables genre insights.")
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *debug || *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	scope, ok := parseShelf(*shelf)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown shelf %q\n", *shelf)
		os.Exit(1)
	}

	var httpCache *httpcache.Cache
	if !*noCache {
		var err error
		httpCache, err = httpcache.New(*cacheTTL)
		if err != nil {
			logger.Warn("failed to initialize cache, continuing without cache", "error", err)
		} else {
			logger.Debug("HTTP cache initialized", "ttl", cacheTTL.String())
		}
	}

	httpClient := buildHTTPClient(logger, *noBrowser)
	ctx := context.Background()

	if *userMode {
		runUser(ctx, logger, httpCache, httpClient, flag.Arg(0))
		return
	}

	fetcher := buildFetcher(logger, httpCache, httpClient, *tableView)
	libraries := library.NewBuilder(fetcher, library.WithLogger(logger))

	if flag.NArg() == 1 {
		lib := libraries.Build(ctx, flag.Arg(0), scope)
		outputJSON(lib)
		return
	}

	opts := []blend.Option{blend.WithLogger(logger)}
	userOpts := []userinfo.Option{userinfo.WithLogger(logger), userinfo.WithHTTPClient(httpClient)}
	if httpCache != nil {
		userOpts = append(userOpts, userinfo.WithHTTPCache(httpCache))
	}
	opts = append(opts, blend.WithUserSource(userinfo.New(userOpts...)))
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		opts = append(opts, blend.WithGenreSource(insight.New(key, insight.WithLogger(logger))))
	} else {
		logger.Debug("OPENAI_API_KEY not set, skipping genre insights")
	}

	scorer := blend.New(libraries, opts...)
	result, err := scorer.Blend(ctx, flag.Arg(0), flag.Arg(1), scope, *includeBooks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	outputJSON(result)
}

// shelfFetcher is the subset of the feed and table clients the library
// builder needs.
type shelfFetcher interface {
	FetchShelf(ctx context.Context, userID string, shelf book.Shelf) []book.Record
}

func buildFetcher(logger *slog.Logger, httpCache *httpcache.Cache, httpClient *http.Client, tableView bool) shelfFetcher {
	if tableView {
		opts := []shelftable.Option{shelftable.WithLogger(logger), shelftable.WithHTTPClient(httpClient)}
		if httpCache != nil {
			opts = append(opts, shelftable.WithHTTPCache(httpCache))
		}
		return shelftable.New(opts...)
	}
	opts := []feed.Option{feed.WithLogger(logger), feed.WithHTTPClient(httpClient)}
	if httpCache != nil {
		opts = append(opts, feed.WithHTTPCache(httpCache))
	}
	return feed.New(opts...)
}

// buildHTTPClient attaches Goodreads session cookies from the environment
// or browser stores when available. Anonymous fetching still works for
// public shelves.
func buildHTTPClient(logger *slog.Logger, noBrowser bool) *http.Client {
	client := &http.Client{Timeout: 30 * time.Second}

	sources := []auth.Source{auth.EnvSource{}}
	if !noBrowser {
		sources = append(sources, auth.NewBrowserSource(logger))
	}
	cookies, err := auth.ChainSources(context.Background(), sources...)
	if err != nil || len(cookies) == 0 {
		logger.Debug("no Goodreads cookies found, fetching anonymously")
		return client
	}
	jar, err := auth.NewCookieJar(cookies)
	if err != nil {
		logger.Warn("failed to build cookie jar", "error", err)
		return client
	}
	logger.Debug("using Goodreads session cookies", "count", len(cookies))
	client.Jar = jar
	return client
}

func runUser(ctx context.Context, logger *slog.Logger, httpCache *httpcache.Cache, httpClient *http.Client, userID string) {
	opts := []userinfo.Option{userinfo.WithLogger(logger), userinfo.WithHTTPClient(httpClient)}
	if httpCache != nil {
		opts = append(opts, userinfo.WithHTTPCache(httpCache))
	}
	profile, err := userinfo.New(opts...).Fetch(ctx, userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	outputJSON(profile)
}

func parseShelf(raw string) (book.Shelf, bool) {
	switch book.Shelf(raw) {
	case book.ShelfAll, book.ShelfRead, book.ShelfToRead, book.ShelfCurrentlyReading:
		return book.Shelf(raw), true
	}
	return "", false
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Output error: %v\n", err)
		os.Exit(1)
	}
}
