// Package hardcover looks up community genre tags for Goodreads book ids
// through the Hardcover GraphQL API. Tags supplement the LLM genre signal
// with per-book ground truth when a bearer token is configured.
package hardcover

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/goccy/go-json"
)

// BookTags is the flattened tag list for one mapped book.
type BookTags struct {
	GoodreadsID string   `json:"goodreads_id"`
	Title       string   `json:"title"`
	Tags        []string `json:"tags"`
}

// Client queries the Hardcover GraphQL endpoint.
type Client struct {
	token      string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the GraphQL endpoint, for tests.
func WithEndpoint(u string) Option {
	return func(c *Client) { c.endpoint = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Hardcover client with the given bearer token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:    token,
		endpoint: "https://hardcover-production.hasura.app/v1/graphql",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// The book_mappings query keyed on Goodreads external ids. Platform id 1
// is Goodreads on Hardcover's side.
const tagsQuery = `query GetBookByGoodreadsIDs {
  book_mappings(
    where: {platform: {id: {_eq: 1}}, external_id: {_in: [%s]}}
  ) {
    external_id
    book {
      title
      taggings {
        tag {
          tag
        }
      }
    }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data struct {
		BookMappings []struct {
			ExternalID string `json:"external_id"`
			Book       struct {
				Title    string `json:"title"`
				Taggings []struct {
					Tag struct {
						Tag string `json:"tag"`
					} `json:"tag"`
				} `json:"taggings"`
			} `json:"book"`
		} `json:"book_mappings"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// TagsForBooks fetches the genre tags for a batch of Goodreads book ids.
// Unmapped ids are simply absent from the result.
func (c *Client) TagsForBooks(ctx context.Context, goodreadsIDs []string) ([]BookTags, error) {
	if len(goodreadsIDs) == 0 {
		return nil, nil
	}

	quoted := make([]string, 0, len(goodreadsIDs))
	for _, id := range goodreadsIDs {
		quoted = append(quoted, fmt.Sprintf("%q", id))
	}

	payload, err := json.Marshal(graphqlRequest{
		Query:     fmt.Sprintf(tagsQuery, strings.Join(quoted, ", ")),
		Variables: map[string]any{},
	})
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("hardcover query: %w", err)
	}

	var resp graphqlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse hardcover response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("hardcover query failed: %s", resp.Errors[0].Message)
	}

	out := make([]BookTags, 0, len(resp.Data.BookMappings))
	for _, m := range resp.Data.BookMappings {
		tags := make([]string, 0, len(m.Book.Taggings))
		for _, t := range m.Book.Taggings {
			tags = append(tags, t.Tag.Tag)
		}
		out = append(out, BookTags{
			GoodreadsID: m.ExternalID,
			Title:       m.Book.Title,
			Tags:        tags,
		})
	}
	c.logger.Debug("fetched hardcover tags", "requested", len(goodreadsIDs), "mapped", len(out))
	return out, nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	return retry.DoWithData(
		func() ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+c.token)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close() //nolint:errcheck // intentional

			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("hardcover API returned HTTP %d", resp.StatusCode)
			}
			return io.ReadAll(resp.Body)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(250*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying hardcover request", "attempt", n+1, "error", err)
		}),
	)
}
