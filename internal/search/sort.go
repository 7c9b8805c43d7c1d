package search

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Item is anything Sort can order.
type Item interface {
	Label() string
	TextMatch() *TextMatch
}

func (r CountryResult) Label() string           { return r.Name }
func (r CountryResult) TextMatch() *TextMatch   { return r.Match }
func (r CityStateResult) Label() string         { return r.Name }
func (r CityStateResult) TextMatch() *TextMatch { return r.Match }
func (r ServerResult) Label() string            { return r.Name }
func (r ServerResult) TextMatch() *TextMatch    { return r.Match }
func (r GatewayResult) Label() string           { return r.Name }
func (r GatewayResult) TextMatch() *TextMatch   { return r.Match }

// Comparator orders two items, returning a negative, zero or positive number.
type Comparator func(a, b Item) int

// Then chains c with next, consulting next only on ties.
func (c Comparator) Then(next Comparator) Comparator {
	return func(a, b Item) int {
		if r := c(a, b); r != 0 {
			return r
		}
		return next(a, b)
	}
}

// ByCollation orders labels by the collation rules of locale, ignoring case and accents
// at the primary level. The returned comparator must not be used concurrently.
func ByCollation(locale language.Tag) Comparator {
	col := collate.New(locale, collate.Loose, collate.Numeric)
	return func(a, b Item) int {
		return col.CompareString(a.Label(), b.Label())
	}
}

// FirstWordMatch puts items matched at the start of their text before items matched on a
// later word. Unmatched items sort last.
func FirstWordMatch() Comparator {
	rank := func(i Item) int {
		m := i.TextMatch()
		switch {
		case m == nil:
			return 2
		case m.Index == 0:
			return 0
		}
		return 1
	}
	return func(a, b Item) int { return rank(a) - rank(b) }
}

// SearchOrder is the ordering used for search hits: first-word matches first, then
// alphabetical in the user's locale.
func SearchOrder(locale language.Tag) Comparator {
	return FirstWordMatch().Then(ByCollation(locale))
}

// Sort orders items in place. Ties keep their relative order.
func Sort[T Item](items []T, c Comparator) {
	slices.SortStableFunc(items, func(a, b T) int { return c(a, b) })
}

// Sort orders every list of r with c.
func (r *Results) Sort(c Comparator) {
	Sort(r.Countries, c)
	Sort(r.Cities, c)
	Sort(r.States, c)
	Sort(r.Servers, c)
	Sort(r.Gateways, c)
}
