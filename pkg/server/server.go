// Package server exposes the blend pipeline over HTTP. Routes are
// read-only JSON endpoints; authentication is a single shared API key
// checked on the /api subtree when configured.
package server

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/bookblend-dev/bookblend/pkg/blend"
	"github.com/bookblend-dev/bookblend/pkg/book"
	"github.com/bookblend-dev/bookblend/pkg/hardcover"
	"github.com/bookblend-dev/bookblend/pkg/userinfo"
)

// Libraries builds a user's shelf library.
type Libraries interface {
	Build(ctx context.Context, userID string, scope book.Shelf) book.Library
}

// Users fetches a user's profile.
type Users interface {
	Fetch(ctx context.Context, userID string) (*userinfo.Profile, error)
}

// Blender scores two users against each other.
type Blender interface {
	Blend(ctx context.Context, userID1, userID2 string, scope book.Shelf, includeBooks bool) (*blend.BlendResult, error)
}

// TagSource looks up genre tags for a batch of book ids.
type TagSource interface {
	TagsForBooks(ctx context.Context, goodreadsIDs []string) ([]hardcover.BookTags, error)
}

// Server holds the request handlers and their collaborators.
type Server struct {
	libraries Libraries
	users     Users
	blender   Blender
	tags      TagSource
	apiKey    string
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAPIKey requires the given key in the X-API-Key header on /api routes.
// An empty key leaves the API open.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithTagSource enriches the books endpoint with genre tags.
func WithTagSource(tags TagSource) Option {
	return func(s *Server) { s.tags = tags }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a Server around the given collaborators.
func New(libraries Libraries, users Users, blender Blender, opts ...Option) *Server {
	s := &Server{
		libraries: libraries,
		users:     users,
		blender:   blender,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the chi router for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleWelcome)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/books/{user_id}", s.handleBooks)
		r.Get("/users/{user_id}", s.handleUser)
		r.Get("/blend", s.handleBlend)
	})
	return r
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			s.writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the BookBlend API",
		"docs":    "/api/blend?user_id1=&user_id2=",
	})
}

// bookEntry is a shelf record plus optional Hardcover genre tags.
type bookEntry struct {
	book.Record
	Tags []string `json:"tags,omitempty"`
}

type booksResponse struct {
	UserID string      `json:"user_id"`
	Shelf  string      `json:"shelf"`
	Count  int         `json:"count"`
	Books  []bookEntry `json:"books"`
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	shelf, ok := parseShelf(r.URL.Query().Get("shelf"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown shelf")
		return
	}

	lib := s.libraries.Build(r.Context(), userID, shelf)
	entries := make([]bookEntry, 0, len(lib.Books))
	for _, rec := range lib.Books {
		sanitizeRecord(&rec)
		entries = append(entries, bookEntry{Record: rec})
	}
	s.attachTags(r.Context(), entries)

	s.writeJSON(w, http.StatusOK, booksResponse{
		UserID: userID,
		Shelf:  string(shelf),
		Count:  len(entries),
		Books:  entries,
	})
}

// attachTags decorates entries with Hardcover genre tags. Lookup failure
// leaves the books untagged.
func (s *Server) attachTags(ctx context.Context, entries []bookEntry) {
	if s.tags == nil || len(entries) == 0 {
		return
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.BookID)
	}
	tagged, err := s.tags.TagsForBooks(ctx, ids)
	if err != nil {
		s.logger.Warn("hardcover tag lookup failed", "error", err)
		return
	}
	byID := make(map[string][]string, len(tagged))
	for _, t := range tagged {
		byID[t.GoodreadsID] = t.Tags
	}
	for i := range entries {
		entries[i].Tags = byID[entries[i].BookID]
	}
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	profile, err := s.users.Fetch(r.Context(), userID)
	if err != nil {
		if errors.Is(err, book.ErrUserNotFound) {
			s.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.logger.Error("profile fetch failed", "user", userID, "error", err)
		s.writeError(w, http.StatusBadGateway, "upstream fetch failed")
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleBlend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID1, userID2 := q.Get("user_id1"), q.Get("user_id2")
	if userID1 == "" || userID2 == "" {
		s.writeError(w, http.StatusBadRequest, "user_id1 and user_id2 are required")
		return
	}
	shelf, ok := parseShelf(q.Get("shelf"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown shelf")
		return
	}
	includeBooks := q.Get("include_books") == "true" || q.Get("include_books") == "1"

	result, err := s.blender.Blend(r.Context(), userID1, userID2, shelf, includeBooks)
	if err != nil {
		if errors.Is(err, blend.ErrUsersUnavailable) || errors.Is(err, book.ErrUserNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("blend failed", "user1", userID1, "user2", userID2, "error", err)
		s.writeError(w, http.StatusInternalServerError, "blend failed")
		return
	}

	sanitizeBlend(result)
	s.writeJSON(w, http.StatusOK, result)
}

// parseShelf validates a shelf query parameter. Empty means all shelves.
func parseShelf(raw string) (book.Shelf, bool) {
	switch book.Shelf(raw) {
	case book.ShelfAll, book.ShelfRead, book.ShelfToRead, book.ShelfCurrentlyReading:
		return book.Shelf(raw), true
	}
	if raw == "" {
		return book.ShelfAll, true
	}
	return "", false
}

// safeFloat replaces NaN and infinities, which JSON cannot carry.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func sanitizeRecord(rec *book.Record) {
	rec.AverageRating = safeFloat(rec.AverageRating)
}

func sanitizeBlend(result *blend.BlendResult) {
	result.Blend.Score = safeFloat(result.Blend.Score)
	for k, v := range result.Blend.Components {
		result.Blend.Components[k] = safeFloat(v)
	}
	result.Metrics.EraSimilarity = safeFloat(result.Metrics.EraSimilarity)
	for i := range result.Metrics.CommonBooks {
		sanitizeRecord(&result.Metrics.CommonBooks[i])
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
