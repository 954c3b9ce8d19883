// Package normalize turns raw scraped field values into typed ones. Every
// function here is pure and total: a value that cannot be parsed becomes
// nil (or the empty string), never an error.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bookblend-dev/bookblend/pkg/book"
)

// notSet is the literal Goodreads uses for unset dates. Case-sensitive,
// matching the source.
const notSet = "not set"

var dateLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05 -0700", // RSS pubDate form
	"Jan 2, 2006",
	"Jan 02, 2006",
	"Jan 2 2006",
	"2006-01-02",
	"2006",
}

// Date parses a shelf date ("Mar 18, 2025", "Mar 18 2025", a bare year, an
// ISO string, or the RSS datetime form). "not set", empty, and unparsable
// input all yield nil. A two-token "Month Year" form is completed to the
// first of that month.
func Date(raw string) *book.Date {
	s := strings.TrimSpace(raw)
	if s == "" || strings.Contains(s, notSet) {
		return nil
	}

	if parts := strings.Fields(s); len(parts) == 2 && isYear(parts[1]) {
		s = parts[0] + " 1, " + parts[1]
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := book.DateOf(t)
			return &d
		}
	}
	return nil
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

var yearPattern = regexp.MustCompile(`(?:^|\D)(\d{4})(?:\D|$)`)

// Year extracts a four-digit publication year from free text such as
// "Mar 18, 2025" or "2019". Any year is legitimate, including pre-1900.
func Year(raw string) *int {
	s := strings.TrimSpace(raw)
	if s == "" || strings.Contains(s, notSet) {
		return nil
	}
	m := yearPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &y
}

var bracketRating = regexp.MustCompile(`\[\s*(\d) of 5 stars\s*\]`)

// ratingPhrases is the single mapping table both rating strategies resolve
// through. Order matters: "really liked it" must be tested before its
// suffix "liked it".
var ratingPhrases = []struct {
	phrase string
	stars  int
}{
	{"did not like it", 1},
	{"it was ok", 2},
	{"really liked it", 4},
	{"liked it", 3},
	{"it was amazing", 5},
}

// Rating normalizes a rating field to an integer in 0-5, where 0 means
// unrated. It accepts the bracketed numeric form "[ 4 of 5 stars ]" and
// the five canonical Goodreads phrases; both resolve to the same scale.
func Rating(raw string) int {
	if m := bracketRating.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 0 && n <= 5 {
			return n
		}
	}
	lower := strings.ToLower(raw)
	for _, p := range ratingPhrases {
		if strings.Contains(lower, p.phrase) {
			return p.stars
		}
	}
	return 0
}

var leadingInt = regexp.MustCompile(`(\d+)`)

// Pages extracts the leading integer from a free-text page count such as
// "312 pages" or "312 pp". Nil when no digits are present.
func Pages(raw string) *int {
	m := leadingInt.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// Count parses an integer that may carry thousands separators
// ("1,234" -> 1234).
func Count(raw string) *int {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

var (
	coverSizeSuffix = regexp.MustCompile(`(\d+)\._S[XY]\d+_(\.[a-zA-Z]+)`)
	coverSizeToken  = regexp.MustCompile(`_S[XY]\d+_`)
)

// CoverURL strips the thumbnail size constraint from a Goodreads cover
// image URL to recover the unconstrained-resolution URL. Both rewrites
// always run, so the output is independent of which size token was
// present, and a URL with no token passes through unchanged.
func CoverURL(raw string) string {
	out := coverSizeSuffix.ReplaceAllString(raw, "$1$2")
	return coverSizeToken.ReplaceAllString(out, "")
}

// FieldLabel strips a prefix equal to the field's own name: the source
// sometimes prepends the column label ("isbn", "isbn13", "asin") to the
// value itself.
func FieldLabel(field, value string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), field))
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Author trims the trailing marker Goodreads appends to some author names
// and collapses internal whitespace runs.
func Author(raw string) string {
	s := whitespaceRun.ReplaceAllString(strings.TrimSpace(raw), " ")
	return strings.TrimRight(s, "*")
}

// Review normalizes a review field: the literal "None" and whitespace-only
// values become the empty string. Output is never null.
func Review(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "None" {
		return ""
	}
	return s
}

// Float parses a decimal rating such as "4.23". Unparsable input is 0.
func Float(raw string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return f
}

// Int parses an integer, returning 0 for anything unparsable.
func Int(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
