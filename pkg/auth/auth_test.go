package auth

import (
	"context"
	"net/url"
	"testing"
)

func TestNewCookieJar(t *testing.T) {
	cookies := map[string]string{
		"_session_id2": "abc123",
		"at-main":      "xyz789",
	}

	jar, err := NewCookieJar(cookies)
	if err != nil {
		t.Fatalf("NewCookieJar failed: %v", err)
	}

	u, err := url.Parse("https://" + Domain)
	if err != nil {
		t.Fatalf("url.Parse failed: %v", err)
	}
	if got := jar.Cookies(u); len(got) != 2 {
		t.Errorf("jar has %d cookies, want 2", len(got))
	}
}

func TestNewCookieJarSkipsEmptyValues(t *testing.T) {
	jar, err := NewCookieJar(map[string]string{"_session_id2": "", "locale": "en"})
	if err != nil {
		t.Fatalf("NewCookieJar failed: %v", err)
	}

	u, _ := url.Parse("https://" + Domain)
	got := jar.Cookies(u)
	if len(got) != 1 {
		t.Fatalf("jar has %d cookies, want 1", len(got))
	}
	if got[0].Name != "locale" {
		t.Errorf("cookie = %q, want %q", got[0].Name, "locale")
	}
}

func TestEnvSource(t *testing.T) {
	t.Setenv("GOODREADS_SESSION_ID2", "test-session")
	t.Setenv("GOODREADS_AT_MAIN", "test-at-main")

	src := EnvSource{}
	cookies, err := src.Cookies(context.Background())
	if err != nil {
		t.Fatalf("Cookies failed: %v", err)
	}

	if cookies["_session_id2"] != "test-session" {
		t.Errorf("_session_id2 = %q, want %q", cookies["_session_id2"], "test-session")
	}
	if cookies["at-main"] != "test-at-main" {
		t.Errorf("at-main = %q, want %q", cookies["at-main"], "test-at-main")
	}
}

func TestEnvSourceNoCookies(t *testing.T) {
	for _, v := range EnvVarNames() {
		t.Setenv(v, "")
	}

	src := EnvSource{}
	cookies, err := src.Cookies(context.Background())
	if err != nil {
		t.Fatalf("Cookies failed: %v", err)
	}

	if cookies != nil {
		t.Error("cookies should be nil when env vars not set")
	}
}

func TestStaticSource(t *testing.T) {
	input := map[string]string{
		"_session_id2": "abc123",
		"ccsid":        "xyz789",
	}

	src := NewStaticSource(input)
	cookies, err := src.Cookies(context.Background())
	if err != nil {
		t.Fatalf("Cookies failed: %v", err)
	}

	if len(cookies) != 2 {
		t.Errorf("got %d cookies, want 2", len(cookies))
	}
	if cookies["_session_id2"] != "abc123" {
		t.Errorf("_session_id2 = %q, want %q", cookies["_session_id2"], "abc123")
	}

	// Verify it's a copy
	cookies["_session_id2"] = "modified"
	cookies2, err := src.Cookies(context.Background())
	if err != nil {
		t.Fatalf("Cookies failed: %v", err)
	}
	if cookies2["_session_id2"] != "abc123" {
		t.Error("StaticSource should return copies")
	}
}

func TestStaticSourceEmpty(t *testing.T) {
	src := NewStaticSource(nil)
	cookies, err := src.Cookies(context.Background())
	if err != nil {
		t.Fatalf("Cookies failed: %v", err)
	}

	if cookies != nil {
		t.Error("cookies should be nil for empty source")
	}
}

func TestChainSources(t *testing.T) {
	// First source returns nil
	src1 := NewStaticSource(nil)

	// Second source returns cookies
	src2 := NewStaticSource(map[string]string{"at-main": "from-src2"})

	// Third source also has cookies (should not be reached)
	src3 := NewStaticSource(map[string]string{"at-main": "from-src3"})

	cookies, err := ChainSources(context.Background(), src1, src2, src3)
	if err != nil {
		t.Fatalf("ChainSources failed: %v", err)
	}

	if cookies["at-main"] != "from-src2" {
		t.Errorf("at-main = %q, want %q", cookies["at-main"], "from-src2")
	}
}

func TestChainSourcesAllEmpty(t *testing.T) {
	src1 := NewStaticSource(nil)
	src2 := NewStaticSource(nil)

	cookies, err := ChainSources(context.Background(), src1, src2)
	if err != nil {
		t.Fatalf("ChainSources failed: %v", err)
	}

	if cookies != nil {
		t.Error("cookies should be nil when all sources empty")
	}
}

func TestEnvVarNames(t *testing.T) {
	vars := EnvVarNames()
	if len(vars) == 0 {
		t.Fatal("should return env var names")
	}

	varSet := make(map[string]bool)
	for _, v := range vars {
		varSet[v] = true
	}

	if !varSet["GOODREADS_SESSION_ID2"] {
		t.Error("should include GOODREADS_SESSION_ID2")
	}
}
