// Package vntext holds the Vietnamese-aware text helpers shared by the
// catalog, the order resolver and the image-search client.
package vntext

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Fold returns s in NFC with Unicode case folding applied and outer
// whitespace trimmed, so "ÁO THUN " and "áo thun" compare equal.
// SQL LOWER is ASCII-only in SQLite, so matching uses Fold in Go.
func Fold(s string) string {
	// A Caser is stateful; build one per call.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// Contains reports whether the folded haystack contains the folded needle.
func Contains(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}

// NewCollator returns a case-insensitive Vietnamese collator, so "Áo"
// sorts with the a-words rather than after "z". A Collator must not be
// shared between goroutines.
func NewCollator() *collate.Collator {
	return collate.New(language.Vietnamese, collate.IgnoreCase)
}

// ErrBadPrice is returned by ParsePrice for strings with no usable number.
var ErrBadPrice = errors.New("unparseable price")

// ParsePrice converts a price string written in the Vietnamese convention
// ('.' groups thousands, ',' marks decimals) into a number. Currency
// symbols, letters and spaces are ignored: "150.000đ", "1.250.000,50 VND"
// and "150000" all parse. A single '.' followed by exactly three digits
// is a thousands separator; any other single '.' is a decimal point.
func ParsePrice(s string) (float64, error) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	clean := strings.Trim(b.String(), ".,")
	if clean == "" {
		return 0, fmt.Errorf("%w: %q", ErrBadPrice, s)
	}

	var normalized string
	switch commas := strings.Count(clean, ","); {
	case commas > 1:
		return 0, fmt.Errorf("%w: %q has more than one decimal comma", ErrBadPrice, s)
	case commas == 1:
		whole, frac, _ := strings.Cut(clean, ",")
		if strings.Contains(frac, ".") {
			return 0, fmt.Errorf("%w: %q has a thousands dot after the decimal comma", ErrBadPrice, s)
		}
		normalized = strings.ReplaceAll(whole, ".", "") + "." + frac
	default:
		switch dots := strings.Count(clean, "."); {
		case dots > 1:
			normalized = strings.ReplaceAll(clean, ".", "")
		case dots == 1:
			_, after, _ := strings.Cut(clean, ".")
			if len(after) == 3 {
				normalized = strings.Replace(clean, ".", "", 1)
			} else {
				normalized = clean
			}
		default:
			normalized = clean
		}
	}

	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrBadPrice, s, err)
	}
	return v, nil
}

// HasKeyword reports whether the folded text contains kw. Phrases and
// words longer than three runes match anywhere; shorter words must stand
// alone, so "hi" does not fire on "thi" and "ok" not on "book".
func HasKeyword(text, kw string) bool {
	text, kw = Fold(text), Fold(kw)
	if strings.Contains(kw, " ") || len([]rune(kw)) > 3 {
		return strings.Contains(text, kw)
	}
	for _, w := range strings.Fields(text) {
		if strings.Trim(w, ".,!?;:") == kw {
			return true
		}
	}
	return false
}
