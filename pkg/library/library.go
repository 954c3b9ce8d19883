// Package library builds one user's complete book library from a shelf
// fetcher, honoring the requested shelf scope.
package library

import (
	"context"
	"log/slog"

	"github.com/bookblend-dev/bookblend/pkg/book"
)

// Fetcher retrieves every record of one shelf for one user. Both the RSS
// feed client and the HTML shelf table client satisfy this.
type Fetcher interface {
	FetchShelf(ctx context.Context, userID string, shelf book.Shelf) []book.Record
}

// Builder assembles libraries from a Fetcher.
type Builder struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder creates a library builder on top of a shelf fetcher.
func NewBuilder(fetcher Fetcher, opts ...Option) *Builder {
	b := &Builder{fetcher: fetcher, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces the user's library for the given scope. The "all" scope
// fetches the three canonical shelves and merges them; a concrete shelf
// fetches once. The result is always canonically ordered, and duplicate
// book ids keep the record from the highest-priority shelf. A user with
// no fetchable books yields an empty library, never an error; fetch
// failures surface through logging only.
func (b *Builder) Build(ctx context.Context, userID string, scope book.Shelf) book.Library {
	lib := book.Library{UserID: userID, Scope: scope}

	if scope == book.ShelfAll || scope == "" {
		lib.Scope = book.ShelfAll
		for _, shelf := range book.Shelves() {
			records := b.fetcher.FetchShelf(ctx, userID, shelf)
			b.logger.Debug("fetched shelf", "user_id", userID, "shelf", shelf, "books", len(records))
			lib.Books = append(lib.Books, records...)
		}
	} else {
		lib.Books = b.fetcher.FetchShelf(ctx, userID, scope)
	}

	lib.SortCanonical()
	lib.Dedupe()

	if len(lib.Books) == 0 {
		b.logger.Warn("library is empty", "user_id", userID, "shelf", scope)
	}
	return lib
}
