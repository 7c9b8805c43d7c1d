package search

import (
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/language"

	"github.com/asheshgoplani/vpn-deck/internal/intent"
	"github.com/asheshgoplani/vpn-deck/internal/servers"
)

// SuggestionKind says what a suggestion names.
type SuggestionKind string

const (
	SuggestCountry SuggestionKind = "country"
	SuggestCity    SuggestionKind = "city"
	SuggestState   SuggestionKind = "state"
	SuggestServer  SuggestionKind = "server"
	SuggestGateway SuggestionKind = "gateway"
)

// Suggestion is a "did you mean" candidate for a query without hits.
type Suggestion struct {
	Kind  SuggestionKind `json:"kind"`
	Label string         `json:"label"`
	Score int            `json:"score"`
}

type candidate struct {
	kind   SuggestionKind
	label  string
	folded string
}

// candidates implements fuzzy.Source over folded labels.
type candidates []candidate

func (c candidates) String(i int) string { return c[i].folded }
func (c candidates) Len() int            { return len(c) }

// Suggest returns up to limit names that fuzzily contain term's letters in order, best
// first. It tolerates dropped letters ("swtzrlnd" finds Switzerland), not substitutions.
func (e *Engine) Suggest(term string, locale language.Tag, limit int) []Suggestion {
	q := NewQuery(term)
	if q.Empty() || limit <= 0 {
		return nil
	}
	ix := e.src.Index()

	var src candidates
	add := func(kind SuggestionKind, label string) {
		src = append(src, candidate{kind: kind, label: label, folded: Normalize(label)})
	}
	countries := map[intent.CountryID]bool{}
	for _, f := range servers.FilterTypes {
		for _, c := range ix.Countries(f) {
			if !countries[c.Exit] {
				countries[c.Exit] = true
				add(SuggestCountry, e.names.CountryName(c.Exit, locale))
			}
		}
	}
	for _, c := range ix.Cities(intent.CountryFastest, servers.FilterAll) {
		add(SuggestCity, c.LocalizedName(locale))
	}
	for _, s := range ix.States(intent.CountryFastest, servers.FilterAll) {
		add(SuggestState, s.LocalizedName(locale))
	}
	for _, s := range ix.Servers(servers.ServerQuery{}) {
		add(SuggestServer, s.Name)
	}
	for _, g := range ix.Gateways() {
		add(SuggestGateway, g.Name)
	}

	matches := fuzzy.FindFrom(string(q.folded), src)
	out := make([]Suggestion, 0, min(limit, len(matches)))
	seen := map[string]bool{}
	for _, m := range matches {
		c := src[m.Index]
		key := string(c.kind) + "\x00" + c.label
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Suggestion{Kind: c.kind, Label: c.label, Score: m.Score})
		if len(out) == limit {
			break
		}
	}
	return out
}
