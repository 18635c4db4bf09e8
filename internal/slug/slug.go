// Package slug turns document titles into filesystem and URL safe path segments.
package slug

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fallback is returned when a title produces no usable characters.
const Fallback = "untitled"

// Make converts title into a lower-case, hyphen-separated slug.
//
// Han characters are transliterated one by one into toneless pinyin, each
// becoming its own segment. Runs of other characters are kept as Latin
// segments: diacritics are folded, every capital letter starts a new
// hyphen-separated part and anything outside [a-z0-9_-] becomes a hyphen.
// Han characters the pinyin table does not cover act as separators.
func Make(title string) string {
	var segments []string
	var run strings.Builder

	flush := func() {
		if run.Len() == 0 {
			return
		}
		if s := latin(run.String()); s != "" {
			segments = append(segments, s)
		}
		run.Reset()
	}

	args := pinyin.NewArgs()
	for _, r := range title {
		if !unicode.Is(unicode.Han, r) {
			run.WriteRune(r)
			continue
		}
		flush()
		for _, py := range pinyin.LazyPinyin(string(r), args) {
			if s := latin(py); s != "" {
				segments = append(segments, s)
			}
		}
	}
	flush()

	if len(segments) == 0 {
		return Fallback
	}
	return strings.Join(segments, "-")
}

var fold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// latin normalizes a run of non-Han text.
func latin(s string) string {
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s) + 4)
	dash := true // suppresses leading and repeated hyphens
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			if !dash {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			dash = false
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
