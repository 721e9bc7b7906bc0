// Package textnorm provides the text normalisation shared by title lookup and
// the safety gate. All functions are pure and allocation-light; they run on
// every turn.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// StripDiacritics removes combining marks so "război" and "razboi" compare equal.
func StripDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize lowercases, strips diacritics, maps every non-alphanumeric rune to
// a space and collapses runs of whitespace. The result is the canonical key
// used by the title index.
func Normalize(s string) string {
	s = strings.ToLower(StripDiacritics(s))
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// ForModeration normalises text for the insult classifier: Normalize plus
// collapsing character runs longer than two ("fuuuu" -> "fuu") to resist
// stretched-letter obfuscation.
func ForModeration(s string) string {
	s = Normalize(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune = -1
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run > 2 {
				continue
			}
		} else {
			prev = r
			run = 1
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
