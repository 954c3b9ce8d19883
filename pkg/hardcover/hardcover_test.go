package hardcover

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

func TestTagsForBooks(t *testing.T) {
	var gotAuth string
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotQuery = req.Query
		fmt.Fprint(w, `{
			"data": {
				"book_mappings": [
					{
						"external_id": "12345",
						"book": {
							"title": "Dune",
							"taggings": [
								{"tag": {"tag": "Science Fiction"}},
								{"tag": {"tag": "Classics"}}
							]
						}
					},
					{
						"external_id": "67890",
						"book": {"title": "Untagged", "taggings": []}
					}
				]
			}
		}`)
	}))
	defer server.Close()

	client := New("test-token", WithEndpoint(server.URL))
	tags, err := client.TagsForBooks(context.Background(), []string{"12345", "67890", "99999"})
	if err != nil {
		t.Fatalf("TagsForBooks: %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if !strings.Contains(gotQuery, `"12345", "67890", "99999"`) {
		t.Errorf("query missing quoted id list: %s", gotQuery)
	}
	if !strings.Contains(gotQuery, "platform: {id: {_eq: 1}}") {
		t.Errorf("query missing platform filter: %s", gotQuery)
	}

	want := []BookTags{
		{GoodreadsID: "12345", Title: "Dune", Tags: []string{"Science Fiction", "Classics"}},
		{GoodreadsID: "67890", Title: "Untagged", Tags: []string{}},
	}
	if diff := cmp.Diff(want, tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestTagsForBooksEmptyInput(t *testing.T) {
	client := New("token")
	tags, err := client.TagsForBooks(context.Background(), nil)
	if err != nil {
		t.Fatalf("TagsForBooks: %v", err)
	}
	if tags != nil {
		t.Errorf("expected nil result for empty input, got %v", tags)
	}
}

func TestTagsForBooksGraphQLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"errors": [{"message": "field not found"}]}`)
	}))
	defer server.Close()

	client := New("token", WithEndpoint(server.URL))
	if _, err := client.TagsForBooks(context.Background(), []string{"1"}); err == nil {
		t.Fatal("expected error from GraphQL errors array")
	} else if !strings.Contains(err.Error(), "field not found") {
		t.Errorf("error should carry server message, got: %v", err)
	}
}

func TestTagsForBooksHTTPError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := New("bad-token", WithEndpoint(server.URL))
	if _, err := client.TagsForBooks(context.Background(), []string{"1"}); err == nil {
		t.Fatal("expected error on HTTP 403")
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts with retry, got %d", calls)
	}
}
