// Package insight derives genre and reading-style insights for a pair of
// users from their read shelves, using an LLM constrained to a fixed
// genre taxonomy. The output feeds the blend score's genres component;
// callers must treat failures as a missing signal, never a fatal error.
package insight

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/goccy/go-json"

	"github.com/bookblend-dev/bookblend/pkg/blend"
	"github.com/bookblend-dev/bookblend/pkg/book"
	"github.com/bookblend-dev/bookblend/pkg/metrics"
)

// List caps keeping responses tight and useful.
const (
	MaxUserGenres      = 8
	MaxSharedGenres    = 5
	MaxRecommendations = 4
)

// taxonomy is the canonical genre vocabulary. Scoring and any frontend
// rely on these exact strings; labels outside the list are dropped or
// remapped during sanitization.
var taxonomy = []string{
	"Literary Fiction",
	"Contemporary Fiction",
	"Classics",
	"Historical Fiction",
	"Science Fiction",
	"Fantasy",
	"Mystery",
	"Thriller & Crime",
	"Horror",
	"Romance",
	"Memoir",
	"Biography",
	"History",
	"Philosophy",
	"Psychology",
	"Self-Help",
	"Business & Economics",
	"Science & Technology",
	"Poetry",
	"Religion & Spirituality",
	"Young Adult",
	"New Adult",
	"Middle Grade",
	"Children's",
	"Short Stories & Essays",
	"Graphic Novels & Comics",
	"LGBTQ+",
	"Cultural & Regional Literature",
	"True Crime",
	"Health, Food & Lifestyle",
}

// containsRemap maps free-form label fragments onto taxonomy entries when
// no exact match exists. Order matters on overlapping fragments, so this
// is a slice, not a map.
var containsRemap = []struct {
	fragment string
	genre    string
}{
	{"science", "Science & Technology"},
	{"philosophy", "Philosophy"},
	{"business", "Business & Economics"},
	{"history", "History"},
	{"memoir", "Memoir"},
	{"biograph", "Biography"},
	{"romance", "Romance"},
	{"thriller", "Thriller & Crime"},
	{"mystery", "Mystery"},
	{"poetry", "Poetry"},
	{"horror", "Horror"},
	{"fantasy", "Fantasy"},
	{"fiction", "Contemporary Fiction"},
}

// Taxonomy returns a copy of the canonical genre labels.
func Taxonomy() []string {
	out := make([]string, len(taxonomy))
	copy(out, taxonomy)
	return out
}

// CanonicalGenre maps a free-form label onto the taxonomy. The second
// return value is false when no mapping exists.
func CanonicalGenre(label string) (string, bool) {
	s := strings.TrimSpace(label)
	if s == "" {
		return "", false
	}
	low := strings.ToLower(s)
	for _, g := range taxonomy {
		if low == strings.ToLower(g) {
			return g, true
		}
	}
	for _, r := range containsRemap {
		if strings.Contains(low, r.fragment) {
			return r.genre, true
		}
	}
	return "", false
}

// capGenres canonicalizes, deduplicates and caps one genre list.
func capGenres(labels []string, maxLen int) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, label := range labels {
		g, ok := CanonicalGenre(label)
		if !ok || seen[g] {
			continue
		}
		out = append(out, g)
		seen[g] = true
		if len(out) >= maxLen {
			break
		}
	}
	return out
}

// GenreInsights is the genre section of the model's output after
// sanitization: every label is from the taxonomy, lists are capped, and
// shared_genres is recomputed as the sorted intersection.
type GenreInsights struct {
	User1Preferences []string `json:"user1_preferences"`
	User2Preferences []string `json:"user2_preferences"`
	SharedGenres     []string `json:"shared_genres"`
	Recommendations  []string `json:"recommendations"`
}

// ReadingStyle is the model's free-text compatibility section.
type ReadingStyle struct {
	User1Summary         string  `json:"user1_summary"`
	User2Summary         string  `json:"user2_summary"`
	CompatibilityScore   float64 `json:"compatibility_score"`
	CompatibilityDetails string  `json:"compatibility_details"`
}

// BookRecommendations lists real titles the model suggests.
type BookRecommendations struct {
	ForBoth  []string `json:"for_both"`
	ForUser1 []string `json:"for_user1"`
	ForUser2 []string `json:"for_user2"`
}

// Insights is the full structured response.
type Insights struct {
	GenreInsights       GenreInsights       `json:"genre_insights"`
	ReadingStyle        ReadingStyle        `json:"reading_style"`
	BookRecommendations BookRecommendations `json:"book_recommendations"`
}

// Client calls the OpenAI chat-completions API in JSON mode.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL overrides the API host, for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates an insight client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   "gpt-4o-mini",
		baseURL: "https://api.openai.com",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return c
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	MaxTokens int `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Insights analyzes both users' read shelves and returns the sanitized
// structured result.
func (c *Client) Insights(ctx context.Context, lib1, lib2 book.Library, name1, name2 string) (*Insights, error) {
	books1 := readShelfLines(lib1)
	books2 := readShelfLines(lib2)
	if len(books1) == 0 || len(books2) == 0 {
		return nil, fmt.Errorf("no read books for one or both users")
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt()},
			{Role: "user", Content: userPrompt(name1, name2, books1, books2)},
		},
		Temperature: 0,
		MaxTokens:   1200,
	}
	reqBody.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, c.baseURL+"/v1/chat/completions", payload)
	if err != nil {
		return nil, fmt.Errorf("insight request: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse insight response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("insight response has no choices")
	}

	var raw Insights
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &raw); err != nil {
		return nil, fmt.Errorf("parse insight content: %w", err)
	}

	sanitize(&raw)
	return &raw, nil
}

// Genres adapts Insights to the blend scorer's genre-signal interface.
func (c *Client) Genres(ctx context.Context, lib1, lib2 book.Library, _ metrics.Comparison) (blend.GenreSignal, error) {
	insights, err := c.Insights(ctx, lib1, lib2, "User 1", "User 2")
	if err != nil {
		return blend.GenreSignal{}, err
	}
	return blend.GenreSignal{
		User1Preferences: insights.GenreInsights.User1Preferences,
		User2Preferences: insights.GenreInsights.User2Preferences,
		SharedGenres:     insights.GenreInsights.SharedGenres,
	}, nil
}

func (c *Client) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	return retry.DoWithData(
		func() ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+c.apiKey)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close() //nolint:errcheck // intentional

			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("insight API returned HTTP %d", resp.StatusCode)
			}
			return io.ReadAll(resp.Body)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(250*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying insight request", "attempt", n+1, "error", err)
		}),
	)
}

// sanitize enforces the taxonomy and caps, and recomputes shared_genres
// as the sorted intersection of the two preference lists.
func sanitize(in *Insights) {
	gi := &in.GenreInsights
	gi.User1Preferences = capGenres(gi.User1Preferences, MaxUserGenres)
	gi.User2Preferences = capGenres(gi.User2Preferences, MaxUserGenres)

	set1 := make(map[string]bool, len(gi.User1Preferences))
	for _, g := range gi.User1Preferences {
		set1[g] = true
	}
	shared := []string{}
	for _, g := range gi.User2Preferences {
		if set1[g] {
			shared = append(shared, g)
		}
	}
	sort.Strings(shared)
	if len(shared) > MaxSharedGenres {
		shared = shared[:MaxSharedGenres]
	}
	gi.SharedGenres = shared

	if len(gi.Recommendations) > MaxRecommendations {
		gi.Recommendations = gi.Recommendations[:MaxRecommendations]
	}
	if gi.Recommendations == nil {
		gi.Recommendations = []string{}
	}
}

// readShelfLines formats the read shelf as "Title by Author" lines.
func readShelfLines(lib book.Library) []string {
	var lines []string
	for _, b := range lib.Books {
		if b.Shelf != book.ShelfRead {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s by %s", b.Title, b.Author))
	}
	return lines
}

func systemPrompt() string {
	tax, _ := json.MarshalIndent(taxonomy, "", "  ") //nolint:errcheck // static input
	return fmt.Sprintf(`You are an expert literary analyst and book recommendation engine.
Analyze reading preferences for two users and return ONLY a valid JSON object with this structure:
{
  "genre_insights": {"user1_preferences": [], "user2_preferences": [], "shared_genres": [], "recommendations": []},
  "reading_style": {"user1_summary": "", "user2_summary": "", "compatibility_score": 0.0, "compatibility_details": ""},
  "book_recommendations": {"for_both": [], "for_user1": [], "for_user2": []}
}

GENRE TAXONOMY (choose only from this list; do NOT invent new labels):
%s

LIMITS:
- user1_preferences and user2_preferences: up to %d each
- shared_genres: up to %d, must be the intersection of the two user lists
- recommendations: up to %d

Every book recommendation must be a real, published book with its exact title and author.`,
		tax, MaxUserGenres, MaxSharedGenres, MaxRecommendations)
}

func userPrompt(name1, name2 string, books1, books2 []string) string {
	return fmt.Sprintf(`Analyze the reading preferences for %[1]s and %[2]s.
Identify each user's top genres from the taxonomy based on the books they have read,
and recommend books each would enjoy from the other's list plus shared picks neither has read.

USER 1 (%[1]s) read books:
%[3]s

USER 2 (%[2]s) read books:
%[4]s

Return the analysis in the exact JSON format specified.`,
		name1, name2, strings.Join(books1, "\n"), strings.Join(books2, "\n"))
}
