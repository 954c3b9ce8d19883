// Package blend reduces two users' library metrics, plus an optional
// externally supplied genre signal, into one 0-100 compatibility score
// with a documented sparse-data policy.
package blend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/bookblend-dev/bookblend/pkg/book"
	"github.com/bookblend-dev/bookblend/pkg/metrics"
	"github.com/bookblend-dev/bookblend/pkg/userinfo"
)

// ErrUsersUnavailable is returned when neither user's data could be
// fetched. It is the only hard failure: a valid-but-empty library still
// produces a (possibly preliminary) result.
var ErrUsersUnavailable = errors.New("no data available for either user")

// The seven component names, fixed.
const (
	ComponentCommonBooks   = "common_books"
	ComponentCommonAuthors = "common_authors"
	ComponentGenres        = "genres"
	ComponentEra           = "era"
	ComponentRating        = "rating"
	ComponentLength        = "length"
	ComponentYear          = "year"
)

// Weights returns the fixed component weights. They sum to 1.0.
func Weights() map[string]float64 {
	return map[string]float64{
		ComponentCommonBooks:   0.25,
		ComponentCommonAuthors: 0.10,
		ComponentGenres:        0.25,
		ComponentEra:           0.15,
		ComponentRating:        0.10,
		ComponentLength:        0.10,
		ComponentYear:          0.05,
	}
}

// Tuning holds the score's normalization constants and sparse-data
// thresholds. The defaults are the canonical ones; they are exposed so
// tests and experiments can tighten or loosen them.
type Tuning struct {
	LowTotal      int     // below this total count a user is "low"
	LowRead       int     // below this read count a user is "low"
	ModerateTotal int     // below this total count a user is "moderate"
	ModerateRead  int     // below this read count a user is "moderate"
	RatingScale   float64 // rating delta that zeroes the rating component
	PageCap       float64 // median-pages delta that zeroes the length component
	YearCap       float64 // mean-year delta that zeroes the year component
}

// DefaultTuning returns the canonical constants.
func DefaultTuning() Tuning {
	return Tuning{
		LowTotal:      5,
		LowRead:       3,
		ModerateTotal: 10,
		ModerateRead:  5,
		RatingScale:   4,
		PageCap:       400,
		YearCap:       50,
	}
}

// DataLevel classifies how much data a user has.
type DataLevel string

// Data levels, from least to most.
const (
	LevelLow      DataLevel = "low"
	LevelModerate DataLevel = "moderate"
	LevelOK       DataLevel = "ok"
)

// Classify applies the sparse-data thresholds to one user's counts.
func (t Tuning) Classify(s metrics.UserStats) DataLevel {
	switch {
	case s.TotalBooks < t.LowTotal || s.ReadCount < t.LowRead:
		return LevelLow
	case s.TotalBooks < t.ModerateTotal || s.ReadCount < t.ModerateRead:
		return LevelModerate
	default:
		return LevelOK
	}
}

// GenreSignal is the capped, deduplicated genre lists supplied by the
// insight collaborator.
type GenreSignal struct {
	User1Preferences []string `json:"user1_preferences"`
	User2Preferences []string `json:"user2_preferences"`
	SharedGenres     []string `json:"shared_genres"`
}

// GenreSource supplies the genre signal for two libraries. Failures are
// tolerated: the genres component falls back to 0.
type GenreSource interface {
	Genres(ctx context.Context, lib1, lib2 book.Library, comparison metrics.Comparison) (GenreSignal, error)
}

// Result is the score with its component breakdown.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Result struct {
	Score       float64            `json:"score"`
	Components  map[string]float64 `json:"components"`
	Weights     map[string]float64 `json:"weights"`
	Preliminary bool               `json:"preliminary,omitempty"`
	Note        string             `json:"note,omitempty"`
}

// Score combines the comparison and genre signal into the weighted score.
// Every component is normalized to [0,1]; missing data falls back per
// component (0 for the overlap signals, 0.5 neutral for the averages).
func Score(c metrics.Comparison, genres GenreSignal, tuning Tuning) Result {
	components := map[string]float64{
		ComponentCommonBooks:   commonBooksComponent(c),
		ComponentCommonAuthors: commonAuthorsComponent(c),
		ComponentGenres:        genresComponent(genres),
		ComponentEra:           c.EraSimilarity / 100,
		ComponentRating:        deltaComponent(c.User1.MeanRating, c.User2.MeanRating, tuning.RatingScale),
		ComponentLength:        deltaComponent(c.User1.MedianPages, c.User2.MedianPages, tuning.PageCap),
		ComponentYear:          yearComponent(c.User1.MeanPubYear, c.User2.MeanPubYear, tuning.YearCap),
	}

	weights := Weights()
	var total float64
	for name, weight := range weights {
		total += components[name] * weight
	}

	r := Result{
		Score:      math.Round(total*1000) / 10,
		Components: components,
		Weights:    weights,
	}

	level1 := tuning.Classify(c.User1)
	level2 := tuning.Classify(c.User2)
	if level1 != LevelOK || level2 != LevelOK {
		r.Preliminary = true
		r.Note = fmt.Sprintf("preliminary: user libraries are small (user1=%s, user2=%s); the score will firm up as more books are shelved", level1, level2)
	}
	return r
}

// commonBooksComponent weighs shared read books over shared shelved
// books. Each term drops to 0 when its denominator is 0; the sum is
// capped at 1.
func commonBooksComponent(c metrics.Comparison) float64 {
	var v float64
	if minRead := min(c.User1.ReadCount, c.User2.ReadCount); minRead > 0 {
		v += 0.7 * float64(c.CommonReadBooksCount) / float64(minRead)
	}
	if minTotal := min(c.User1.TotalBooks, c.User2.TotalBooks); minTotal > 0 {
		v += 0.3 * float64(c.CommonBooksCount) / float64(minTotal)
	}
	return min(v, 1)
}

func commonAuthorsComponent(c metrics.Comparison) float64 {
	if c.AuthorUnionCount == 0 {
		return 0
	}
	return float64(len(c.CommonAuthors)) / float64(c.AuthorUnionCount)
}

func genresComponent(g GenreSignal) float64 {
	minLen := min(len(g.User1Preferences), len(g.User2Preferences))
	if minLen == 0 {
		return 0
	}
	return min(float64(len(g.SharedGenres))/float64(minLen), 1)
}

// deltaComponent maps the absolute difference between two averages onto
// [0,1], with 0.5 as the neutral fallback when either side is unknown.
func deltaComponent(a, b *float64, scale float64) float64 {
	if a == nil || b == nil {
		return 0.5
	}
	return max(0, 1-min(1, math.Abs(*a-*b)/scale))
}

func yearComponent(a, b *int, scale float64) float64 {
	if a == nil || b == nil {
		return 0.5
	}
	fa, fb := float64(*a), float64(*b)
	return max(0, 1-min(1, math.Abs(fa-fb)/scale))
}

// Users labels the two sides of a result.
type Users struct {
	User1 userinfo.User `json:"user1"`
	User2 userinfo.User `json:"user2"`
}

// BlendResult is the full output of one blend computation.
//
//nolint:govet // fieldalignment: intentional layout for readability
type BlendResult struct {
	Users   *Users             `json:"users,omitempty"`
	Blend   Result             `json:"blend"`
	Metrics metrics.Comparison `json:"metrics"`
	Genres  *GenreSignal       `json:"genre_insights,omitempty"`
}

// LibraryBuilder produces one user's library for a scope. Fetch failures
// degrade to an empty library.
type LibraryBuilder interface {
	Build(ctx context.Context, userID string, scope book.Shelf) book.Library
}

// UserSource fetches profile metadata used to label the result.
type UserSource interface {
	Fetch(ctx context.Context, userID string) (*userinfo.Profile, error)
}

// Scorer orchestrates the fetches and the score for a pair of users.
type Scorer struct {
	libraries LibraryBuilder
	users     UserSource
	genres    GenreSource
	tuning    Tuning
	logger    *slog.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithUserSource sets the profile collaborator used to label results.
func WithUserSource(src UserSource) Option {
	return func(s *Scorer) { s.users = src }
}

// WithGenreSource sets the genre-signal collaborator.
func WithGenreSource(src GenreSource) Option {
	return func(s *Scorer) { s.genres = src }
}

// WithTuning overrides the default constants.
func WithTuning(t Tuning) Option {
	return func(s *Scorer) { s.tuning = t }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) { s.logger = logger }
}

// New creates a Scorer on top of a library builder.
func New(libraries LibraryBuilder, opts ...Option) *Scorer {
	s := &Scorer{
		libraries: libraries,
		tuning:    DefaultTuning(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Blend fetches both users' libraries and profiles concurrently, compares
// them, and scores the pair. The metrics step starts only after all four
// fetches complete; the two users' fetch order cannot affect the result.
// When includeBooks is false the shared-book records are omitted from the
// output to keep responses small.
func (s *Scorer) Blend(ctx context.Context, userID1, userID2 string, scope book.Shelf, includeBooks bool) (*BlendResult, error) {
	var (
		lib1, lib2         book.Library
		profile1, profile2 *userinfo.Profile
		infoErr1, infoErr2 error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lib1 = s.libraries.Build(gctx, userID1, scope)
		return nil
	})
	g.Go(func() error {
		lib2 = s.libraries.Build(gctx, userID2, scope)
		return nil
	})
	if s.users != nil {
		g.Go(func() error {
			profile1, infoErr1 = s.users.Fetch(gctx, userID1)
			return nil
		})
		g.Go(func() error {
			profile2, infoErr2 = s.users.Fetch(gctx, userID2)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if infoErr1 != nil {
		s.logger.Warn("user info fetch failed", "user_id", userID1, "error", infoErr1)
	}
	if infoErr2 != nil {
		s.logger.Warn("user info fetch failed", "user_id", userID2, "error", infoErr2)
	}
	// Both profiles unfetchable and both libraries empty means the ids
	// are bad or the source is down. An empty library for a real user is
	// not an error.
	if len(lib1.Books) == 0 && len(lib2.Books) == 0 &&
		(s.users == nil || (infoErr1 != nil && infoErr2 != nil)) {
		return nil, fmt.Errorf("blend %s/%s: %w", userID1, userID2, ErrUsersUnavailable)
	}

	comparison := metrics.Compare(lib1, lib2)

	var genres GenreSignal
	var genresFetched bool
	level1 := s.tuning.Classify(comparison.User1)
	level2 := s.tuning.Classify(comparison.User2)
	if s.genres != nil && !(level1 == LevelLow && level2 == LevelLow) {
		signal, err := s.genres.Genres(ctx, lib1, lib2, comparison)
		if err != nil {
			s.logger.Warn("genre signal failed, scoring without it",
				"user_id1", userID1, "user_id2", userID2, "error", err)
		} else {
			genres = signal
			genresFetched = true
		}
	} else if s.genres != nil {
		s.logger.Debug("both users low on data, skipping genre signal",
			"user_id1", userID1, "user_id2", userID2)
	}

	result := &BlendResult{
		Blend:   Score(comparison, genres, s.tuning),
		Metrics: comparison,
	}
	if !includeBooks {
		result.Metrics.CommonBooks = nil
	}
	if genresFetched {
		result.Genres = &genres
	}
	if profile1 != nil || profile2 != nil {
		result.Users = &Users{}
		if profile1 != nil {
			result.Users.User1 = profile1.User
		} else {
			result.Users.User1 = userinfo.User{ID: userID1}
		}
		if profile2 != nil {
			result.Users.User2 = profile2.User
		} else {
			result.Users.User2 = userinfo.User{ID: userID2}
		}
	}

	s.logger.Info("blend computed",
		"user_id1", userID1, "user_id2", userID2,
		"score", result.Blend.Score, "preliminary", result.Blend.Preliminary)
	return result, nil
}
