package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
	"github.com/asheshgoplani/vpn-deck/internal/intent"
	"github.com/asheshgoplani/vpn-deck/internal/logging"
	"github.com/asheshgoplani/vpn-deck/internal/servers"
)

var searchLog = logging.ForComponent(logging.CompSearch)

// IndexSource hands out the index of the latest catalog snapshot.
type IndexSource interface {
	Index() *servers.Index
}

// CountryResult is a matched or browsed country.
type CountryResult struct {
	servers.CountryAggregate
	Name  string
	Match *TextMatch
}

// CityStateResult is a matched or browsed city or state.
type CityStateResult struct {
	servers.CityStateAggregate
	Name  string
	Match *TextMatch
}

// ServerResult is a matched or browsed server.
type ServerResult struct {
	catalog.Server
	Match *TextMatch
}

// GatewayResult is a matched or browsed gateway.
type GatewayResult struct {
	servers.GatewayAggregate
	Match *TextMatch
}

// Results are the hits for one filter type. Order is unspecified; see Sort.
type Results struct {
	Countries []CountryResult
	Cities    []CityStateResult
	States    []CityStateResult
	Servers   []ServerResult
	Gateways  []GatewayResult
}

// Len is the total number of hits.
func (r Results) Len() int {
	return len(r.Countries) + len(r.Cities) + len(r.States) + len(r.Servers) + len(r.Gateways)
}

// ByFilter holds one Results per filter type.
type ByFilter map[servers.FilterType]Results

// Engine runs queries against the current index. It keeps no state between queries.
type Engine struct {
	src   IndexSource
	names CountryNamer
}

// Option configures an Engine.
type Option func(*Engine)

// WithCountryNamer replaces the CLDR country names.
func WithCountryNamer(n CountryNamer) Option {
	return func(e *Engine) { e.names = n }
}

// NewEngine returns an engine reading from src.
func NewEngine(src IndexSource, opts ...Option) *Engine {
	e := &Engine{src: src, names: DisplayNames{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search matches term against every country, city, state, server and gateway of one
// index snapshot and partitions the hits per filter type. Countries, cities and states
// match on their locale name or their English name. On cancellation nothing is returned.
func (e *Engine) Search(ctx context.Context, term string, locale language.Tag) (ByFilter, error) {
	start := time.Now()
	q := NewQuery(term)
	out := make(ByFilter, len(servers.FilterTypes))
	for _, f := range servers.FilterTypes {
		out[f] = Results{}
	}
	if q.Empty() {
		return out, nil
	}

	ix := e.src.Index()
	var (
		countries map[servers.FilterType][]CountryResult
		cities    map[servers.FilterType][]CityStateResult
		states    map[servers.FilterType][]CityStateResult
		srvs      map[servers.FilterType][]ServerResult
		gateways  map[servers.FilterType][]GatewayResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		countries, err = e.matchCountries(gctx, ix, q, locale)
		return err
	})
	g.Go(func() (err error) {
		cities, err = matchCityStates(gctx, ix, q, locale, false)
		return err
	})
	g.Go(func() (err error) {
		states, err = matchCityStates(gctx, ix, q, locale, true)
		return err
	})
	g.Go(func() (err error) {
		srvs, err = matchServers(gctx, ix, q)
		return err
	})
	g.Go(func() (err error) {
		gateways, err = matchGateways(gctx, ix, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, f := range servers.FilterTypes {
		r := Results{
			Countries: countries[f],
			Cities:    cities[f],
			States:    states[f],
			Servers:   srvs[f],
			Gateways:  gateways[f],
		}
		total += r.Len()
		out[f] = r
	}
	logging.Aggregate(logging.CompSearch, "search_query",
		slog.Uint64("catalog_version", ix.Version()),
		slog.Int("hits", total),
		slog.Duration("elapsed", time.Since(start)))
	searchLog.Debug("search_done", slog.String("term", term), slog.String("locale", locale.String()), slog.Int("hits", total))
	return out, nil
}

func (e *Engine) matchCountries(ctx context.Context, ix *servers.Index, q Query, locale language.Tag) (map[servers.FilterType][]CountryResult, error) {
	type hit struct {
		name  string
		match TextMatch
		ok    bool
	}
	seen := map[intent.CountryID]hit{}
	out := map[servers.FilterType][]CountryResult{}
	for _, f := range servers.FilterTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, c := range ix.Countries(f) {
			h, done := seen[c.Exit]
			if !done {
				h.name = e.names.CountryName(c.Exit, locale)
				h.match, h.ok = q.MatchAny(h.name, EnglishCountryName(e.names, c.Exit))
				seen[c.Exit] = h
			}
			if h.ok {
				m := h.match
				out[f] = append(out[f], CountryResult{CountryAggregate: c, Name: h.name, Match: &m})
			}
		}
	}
	return out, nil
}

func matchCityStates(ctx context.Context, ix *servers.Index, q Query, locale language.Tag, state bool) (map[servers.FilterType][]CityStateResult, error) {
	out := map[servers.FilterType][]CityStateResult{}
	for _, f := range servers.FilterTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var aggs []servers.CityStateAggregate
		if state {
			aggs = ix.States(intent.CountryFastest, f)
		} else {
			aggs = ix.Cities(intent.CountryFastest, f)
		}
		for _, a := range aggs {
			name := a.LocalizedName(locale)
			if m, ok := q.MatchAny(name, a.ID.Name); ok {
				out[f] = append(out[f], CityStateResult{CityStateAggregate: a, Name: name, Match: &m})
			}
		}
	}
	return out, nil
}

func matchServers(ctx context.Context, ix *servers.Index, q Query) (map[servers.FilterType][]ServerResult, error) {
	candidates := []Query{q}
	if enhanced, ok := q.ServerName(); ok {
		candidates = []Query{enhanced, q}
	}
	matches := map[string]TextMatch{}
	for i, s := range ix.Snapshot().Servers {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, c := range candidates {
			if m, ok := c.Match(s.Name); ok {
				matches[s.ID] = m
				break
			}
		}
	}
	out := map[servers.FilterType][]ServerResult{}
	if len(matches) == 0 {
		return out, nil
	}
	for _, f := range servers.FilterTypes {
		for _, s := range ix.Servers(servers.ServerQuery{Filter: f}) {
			if m, ok := matches[s.ID]; ok {
				out[f] = append(out[f], ServerResult{Server: s, Match: &m})
			}
		}
	}
	return out, nil
}

func matchGateways(ctx context.Context, ix *servers.Index, q Query) (map[servers.FilterType][]GatewayResult, error) {
	out := map[servers.FilterType][]GatewayResult{}
	for _, gw := range ix.Gateways() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, ok := q.Match(gw.Name)
		if !ok {
			continue
		}
		for _, f := range servers.FilterTypes {
			if len(ix.Servers(servers.ServerQuery{Gateway: gw.Name, Filter: f})) > 0 {
				out[f] = append(out[f], GatewayResult{GatewayAggregate: gw, Match: &m})
			}
		}
	}
	return out, nil
}

// Browse lists every country, city and state under filter without matching, restricted
// to country unless it is a sentinel. Gateways are listed for FilterAll only.
func (e *Engine) Browse(filter servers.FilterType, country intent.CountryID, locale language.Tag) Results {
	ix := e.src.Index()
	var r Results
	for _, c := range ix.Countries(filter) {
		if country.IsSentinel() || c.Exit == country {
			r.Countries = append(r.Countries, CountryResult{CountryAggregate: c, Name: e.names.CountryName(c.Exit, locale)})
		}
	}
	for _, a := range ix.Cities(country, filter) {
		r.Cities = append(r.Cities, CityStateResult{CityStateAggregate: a, Name: a.LocalizedName(locale)})
	}
	for _, a := range ix.States(country, filter) {
		r.States = append(r.States, CityStateResult{CityStateAggregate: a, Name: a.LocalizedName(locale)})
	}
	if filter == servers.FilterAll && country.IsSentinel() {
		for _, gw := range ix.Gateways() {
			r.Gateways = append(r.Gateways, GatewayResult{GatewayAggregate: gw})
		}
	}
	return r
}
