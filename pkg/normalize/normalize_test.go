package normalize

import (
	"testing"

	"github.com/bookblend-dev/bookblend/pkg/book"
)

func TestDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string // ISO form, "" means nil
	}{
		{"month day year", "Mar 18, 2025", "2025-03-18"},
		{"month day year no comma", "Mar 18 2025", "2025-03-18"},
		{"zero padded", "Apr 09, 2001", "2001-04-09"},
		{"bare year", "2019", "2019-01-01"},
		{"iso", "2021-07-04", "2021-07-04"},
		{"month year completed to first", "Mar 2025", "2025-03-01"},
		{"rss datetime", "Tue, 18 Mar 2025 00:00:00 -0700", "2025-03-18"},
		{"not set", "not set", ""},
		{"empty", "", ""},
		{"whitespace", "   ", ""},
		{"garbage", "someday maybe", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Date(tt.in)
			if tt.want == "" {
				if got != nil {
					t.Errorf("Date(%q) = %v, want nil", tt.in, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Date(%q) = nil, want %s", tt.in, tt.want)
			}
			if got.String() != tt.want {
				t.Errorf("Date(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestDateRoundTrip(t *testing.T) {
	// A normalized date serialized to ISO and re-parsed is the same
	// calendar date.
	for _, in := range []string{"Mar 18, 2025", "2019", "Jan 2025"} {
		d := Date(in)
		if d == nil {
			t.Fatalf("Date(%q) = nil", in)
		}
		again, err := book.ParseISODate(d.String())
		if err != nil {
			t.Fatalf("re-parse %q: %v", d, err)
		}
		if again != *d {
			t.Errorf("round trip of %q: %v != %v", in, again, *d)
		}
	}
}

func TestYear(t *testing.T) {
	tests := []struct {
		in   string
		want int // 0 means nil
	}{
		{"Mar 18, 2025", 2025},
		{"2019", 2019},
		{"Apr 09, 2001", 2001},
		{"1899", 1899},
		{"not set", 0},
		{"", 0},
		{"no digits", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Year(tt.in)
			if tt.want == 0 {
				if got != nil {
					t.Errorf("Year(%q) = %v, want nil", tt.in, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("Year(%q) = %v, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestRating(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"[ 4 of 5 stars ]", 4},
		{"[ 1 of 5 stars ]", 1},
		{"Ben's rating really liked it", 4},
		{"really liked it", 4},
		{"liked it", 3},
		{"it was amazing", 5},
		{"it was ok", 2},
		{"did not like it", 1},
		{"", 0},
		{"no stars here", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Rating(tt.in); got != tt.want {
				t.Errorf("Rating(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestRatingStrategiesAgree(t *testing.T) {
	// The bracketed form and the phrase form must resolve through the
	// same table.
	pairs := []struct {
		bracket string
		phrase  string
	}{
		{"[ 1 of 5 stars ]", "did not like it"},
		{"[ 2 of 5 stars ]", "it was ok"},
		{"[ 3 of 5 stars ]", "liked it"},
		{"[ 4 of 5 stars ]", "really liked it"},
		{"[ 5 of 5 stars ]", "it was amazing"},
	}
	for _, p := range pairs {
		if Rating(p.bracket) != Rating(p.phrase) {
			t.Errorf("Rating(%q) = %d but Rating(%q) = %d",
				p.bracket, Rating(p.bracket), p.phrase, Rating(p.phrase))
		}
	}
}

func TestPages(t *testing.T) {
	tests := []struct {
		in   string
		want int // -1 means nil
	}{
		{"312 pages", 312},
		{"312 pp", 312},
		{"1", 1},
		{"unknown", -1},
		{"", -1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Pages(tt.in)
			if tt.want == -1 {
				if got != nil {
					t.Errorf("Pages(%q) = %v, want nil", tt.in, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("Pages(%q) = %v, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestCount(t *testing.T) {
	tests := []struct {
		in   string
		want int // -1 means nil
	}{
		{"1,234", 1234},
		{"12", 12},
		{"1,234,567", 1234567},
		{"", -1},
		{"n/a", -1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Count(tt.in)
			if tt.want == -1 {
				if got != nil {
					t.Errorf("Count(%q) = %v, want nil", tt.in, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("Count(%q) = %v, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestCoverURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "suffix before extension",
			in:   "https://i.gr-assets.com/images/books/1234567890l/12345._SY75_.jpg",
			want: "https://i.gr-assets.com/images/books/1234567890l/12345.jpg",
		},
		{
			name: "SX token",
			in:   "https://i.gr-assets.com/images/books/1234567890l/12345._SX50_.jpg",
			want: "https://i.gr-assets.com/images/books/1234567890l/12345.jpg",
		},
		{
			name: "token elsewhere in path",
			in:   "https://images.gr-assets.com/books/_SY160_/9780.jpg",
			want: "https://images.gr-assets.com/books//9780.jpg",
		},
		{
			name: "already normalized is idempotent",
			in:   "https://i.gr-assets.com/images/books/1234567890l/12345.jpg",
			want: "https://i.gr-assets.com/images/books/1234567890l/12345.jpg",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CoverURL(tt.in)
			if got != tt.want {
				t.Errorf("CoverURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
			// Deterministic: normalizing twice changes nothing.
			if again := CoverURL(got); again != got {
				t.Errorf("CoverURL not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestFieldLabel(t *testing.T) {
	tests := []struct {
		field string
		value string
		want  string
	}{
		{"isbn", "isbn0590353403", "0590353403"},
		{"isbn13", "isbn139780590353403", "9780590353403"},
		{"asin", "asinB000FC0SIS", "B000FC0SIS"},
		{"isbn", "0590353403", "0590353403"},
		{"isbn", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if got := FieldLabel(tt.field, tt.value); got != tt.want {
				t.Errorf("FieldLabel(%q, %q) = %q, want %q", tt.field, tt.value, got, tt.want)
			}
		})
	}
}

func TestAuthor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Le Guin, Ursula K.*", "Le Guin, Ursula K."},
		{"Tolkien,   J.R.R.", "Tolkien, J.R.R."},
		{"  Herbert, Frank \n", "Herbert, Frank"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Author(tt.in); got != tt.want {
				t.Errorf("Author(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReview(t *testing.T) {
	if got := Review("None"); got != "" {
		t.Errorf("Review(None) = %q, want empty", got)
	}
	if got := Review("  great book  "); got != "great book" {
		t.Errorf("Review = %q", got)
	}
}
