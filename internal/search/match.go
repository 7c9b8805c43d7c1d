// Package search finds countries, cities, states, servers and gateways by name.
package search

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TextMatch locates a match for highlighting. Index and Length count runes of FullText.
type TextMatch struct {
	Index    int    `json:"index"`
	Length   int    `json:"length"`
	FullText string `json:"full_text"`
}

// Parts splits FullText into the text before, inside and after the match.
func (m TextMatch) Parts() (before, match, after string) {
	r := []rune(m.FullText)
	start := min(max(m.Index, 0), len(r))
	end := min(start+max(m.Length, 0), len(r))
	return string(r[:start]), string(r[start:end]), string(r[end:])
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// folded is text reduced for matching. pos maps each folded rune to its rune index in the
// source; n is the source length in runes.
type folded struct {
	runes []rune
	pos   []int
	n     int
}

// foldText returns the accent- and case-folded runes of s. Precomposed letters fold to one
// rune each and standalone combining marks (decomposed text) are dropped, so every folded
// rune maps back onto one source rune. Runes whose folding would expand ("ß" to "ss") are
// only lower-cased.
func foldText(s string) folded {
	caser := cases.Fold()
	f := folded{runes: make([]rune, 0, len(s)), pos: make([]int, 0, len(s))}
	for _, r := range s {
		if !unicode.Is(unicode.Mn, r) {
			f.runes = append(f.runes, foldRune(caser, r))
			f.pos = append(f.pos, f.n)
		}
		f.n++
	}
	return f
}

// span converts a match over folded runes into source rune positions. Marks trailing the
// last matched rune belong to the match.
func (f folded) span(idx, length int) (start, n int) {
	start = f.pos[idx]
	end := f.n
	if idx+length < len(f.pos) {
		end = f.pos[idx+length]
	}
	return start, end - start
}

func fold(s string) []rune {
	return foldText(s).runes
}

func foldRune(caser cases.Caser, r rune) rune {
	if r < utf8.RuneSelf {
		return unicode.ToLower(r)
	}
	stripped, _, err := transform.String(stripMarks, string(r))
	if err != nil || utf8.RuneCountInString(stripped) != 1 {
		return unicode.ToLower(r)
	}
	folded := caser.String(stripped)
	if utf8.RuneCountInString(folded) != 1 {
		return unicode.ToLower([]rune(stripped)[0])
	}
	first, _ := utf8.DecodeRuneInString(folded)
	return first
}

// Normalize returns s without diacritics and in lower case, e.g. "Zürich" becomes "zurich".
func Normalize(s string) string {
	return string(fold(s))
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == '-' || r == '#'
}

// Query is a prepared search term.
type Query struct {
	raw    string
	folded []rune
}

// NewQuery prepares term for matching.
func NewQuery(term string) Query {
	term = strings.TrimSpace(term)
	return Query{raw: term, folded: fold(term)}
}

// Empty reports whether the query matches nothing.
func (q Query) Empty() bool { return len(q.folded) == 0 }

func (q Query) String() string { return q.raw }

var serverTermPattern = regexp.MustCompile(`^[a-zA-Z-]+[0-9]+$`)

// ServerName returns the query with '#' inserted before its trailing number when it looks
// like a server name typed without the separator ("pl1" becomes "pl#1").
func (q Query) ServerName() (Query, bool) {
	if !serverTermPattern.MatchString(q.raw) {
		return q, false
	}
	digits := strings.IndexAny(q.raw, "0123456789")
	return NewQuery(q.raw[:digits] + "#" + q.raw[digits:]), true
}

// Match finds q in text. A match must start a word: at the start of text, after a
// separator (whitespace, '-', '#'), or on a separator. "wa" matches "Warsaw" but "ars"
// does not.
func (q Query) Match(text string) (TextMatch, bool) {
	if q.Empty() {
		return TextMatch{}, false
	}
	f := foldText(text)
	hay := f.runes
	idx := indexRunes(hay, q.folded)
	if idx < 0 {
		return TextMatch{}, false
	}
	length := len(q.folded)
	if idx == 0 || isSeparator(hay[idx-1]) || isSeparator(hay[idx]) {
		start, n := f.span(idx, length)
		return TextMatch{Index: start, Length: n, FullText: text}, true
	}
	// The first occurrence is mid-word; look for a later word starting with the term.
	start := 0
	for i := 0; i <= len(hay); i++ {
		if i < len(hay) && !isSeparator(hay[i]) {
			continue
		}
		if hasPrefix(hay[start:i], q.folded) {
			from, n := f.span(start, length)
			return TextMatch{Index: from, Length: n, FullText: text}, true
		}
		start = i + 1
	}
	return TextMatch{}, false
}

// MatchAny tries each text in order and returns the first match.
func (q Query) MatchAny(texts ...string) (TextMatch, bool) {
	for _, t := range texts {
		if t == "" {
			continue
		}
		if m, ok := q.Match(t); ok {
			return m, true
		}
	}
	return TextMatch{}, false
}

func indexRunes(hay, needle []rune) int {
	for i := 0; i+len(needle) <= len(hay); i++ {
		if slices.Equal(hay[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func hasPrefix(word, prefix []rune) bool {
	return len(word) >= len(prefix) && slices.Equal(word[:len(prefix)], prefix)
}
