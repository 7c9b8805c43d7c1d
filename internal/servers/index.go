package servers

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
	"github.com/asheshgoplani/vpn-deck/internal/intent"
)

// CountryAggregate summarizes one exit country under a filter.
type CountryAggregate struct {
	Exit intent.CountryID
	// Entry is the Secure Core entry: the single entry country when every server shares
	// it, CountryFastest when it varies. For other filters it equals Exit.
	Entry         intent.CountryID
	Tier          catalog.Tier
	InMaintenance bool
	ServerCount   int
}

// CityStateAggregate summarizes one city or state of a country.
type CityStateAggregate struct {
	Country       intent.CountryID
	ID            intent.CityStateID
	Tier          catalog.Tier
	InMaintenance bool
	ServerCount   int

	sample catalog.Server
}

// LocalizedName returns the city or state name in locale, or the English name.
func (a CityStateAggregate) LocalizedName(locale language.Tag) string {
	if a.ID.IsState {
		return a.sample.LocalizedState(locale)
	}
	return a.sample.LocalizedCity(locale)
}

// GatewayAggregate summarizes one dedicated gateway.
type GatewayAggregate struct {
	Name          string
	Tier          catalog.Tier
	InMaintenance bool
	ServerCount   int
}

// Index is an immutable view over one catalog snapshot. All methods are safe for
// concurrent use and return empty values, never errors, for unknown locations.
type Index struct {
	snap      *catalog.Snapshot
	countries map[FilterType][]CountryAggregate
	gateways  []GatewayAggregate
}

// Build indexes snap, precomputing the country and gateway aggregates.
func Build(snap *catalog.Snapshot) *Index {
	ix := &Index{snap: snap, countries: make(map[FilterType][]CountryAggregate, len(FilterTypes))}
	for _, f := range FilterTypes {
		ix.countries[f] = ix.aggregateCountries(f)
	}
	ix.gateways = ix.aggregateGateways()
	return ix
}

// Snapshot returns the indexed catalog snapshot.
func (ix *Index) Snapshot() *catalog.Snapshot { return ix.snap }

// Version returns the indexed snapshot version.
func (ix *Index) Version() uint64 { return ix.snap.Version }

// browsable is the default browsing context: no gateway servers, no free servers.
func browsable(s catalog.Server, filter FilterType) bool {
	return !s.IsGateway() && s.Tier != catalog.TierFree && filter.Matches(s)
}

func inCountry(s catalog.Server, country intent.CountryID) bool {
	return country.IsSentinel() || s.Exit() == country
}

// group accumulates tier and maintenance over a set of servers.
type group struct {
	count     int
	online    int
	minTier   catalog.Tier
	minOnline catalog.Tier
}

func (g *group) add(s catalog.Server) {
	if g.count == 0 || s.Tier < g.minTier {
		g.minTier = s.Tier
	}
	if s.Online {
		if g.online == 0 || s.Tier < g.minOnline {
			g.minOnline = s.Tier
		}
		g.online++
	}
	g.count++
}

// tier advertises the cheapest online server, or the cheapest overall when all are offline.
func (g *group) tier() catalog.Tier {
	if g.online > 0 {
		return g.minOnline
	}
	return g.minTier
}

func (g *group) inMaintenance() bool { return g.online == 0 }

// Countries aggregates browsable servers by exit country, ordered by code.
func (ix *Index) Countries(filter FilterType) []CountryAggregate {
	return slices.Clone(ix.countries[filter])
}

func (ix *Index) aggregateCountries(filter FilterType) []CountryAggregate {
	groups := map[intent.CountryID]*group{}
	entries := map[intent.CountryID]map[intent.CountryID]struct{}{}
	for _, s := range ix.snap.Servers {
		if !browsable(s, filter) {
			continue
		}
		exit := s.Exit()
		g := groups[exit]
		if g == nil {
			g = &group{}
			groups[exit] = g
			entries[exit] = map[intent.CountryID]struct{}{}
		}
		g.add(s)
		entries[exit][s.Entry()] = struct{}{}
	}

	out := make([]CountryAggregate, 0, len(groups))
	for exit, g := range groups {
		agg := CountryAggregate{
			Exit:          exit,
			Entry:         exit,
			Tier:          g.tier(),
			InMaintenance: g.inMaintenance(),
			ServerCount:   g.count,
		}
		if filter == FilterSecureCore {
			agg.Entry = intent.CountryFastest
			if len(entries[exit]) == 1 {
				for e := range entries[exit] {
					agg.Entry = e
				}
			}
		}
		out = append(out, agg)
	}
	slices.SortFunc(out, func(a, b CountryAggregate) int { return cmp.Compare(a.Exit, b.Exit) })
	return out
}

// Country returns the aggregate for one country, or false when it has no servers under filter.
func (ix *Index) Country(country intent.CountryID, filter FilterType) (CountryAggregate, bool) {
	for _, c := range ix.countries[filter] {
		if c.Exit == country {
			return c, true
		}
	}
	return CountryAggregate{}, false
}

// Cities aggregates browsable servers of country by city.
func (ix *Index) Cities(country intent.CountryID, filter FilterType) []CityStateAggregate {
	return ix.cityStates(country, filter, false)
}

// States aggregates browsable servers of country by state.
func (ix *Index) States(country intent.CountryID, filter FilterType) []CityStateAggregate {
	return ix.cityStates(country, filter, true)
}

func locationOf(s catalog.Server, state bool) string {
	if state {
		return s.State
	}
	return s.City
}

func (ix *Index) cityStates(country intent.CountryID, filter FilterType, state bool) []CityStateAggregate {
	type key struct {
		country intent.CountryID
		name    string
	}
	groups := map[key]*group{}
	samples := map[key]catalog.Server{}
	for _, s := range ix.snap.Servers {
		name := locationOf(s, state)
		if name == "" || !browsable(s, filter) || !inCountry(s, country) {
			continue
		}
		k := key{country: s.Exit(), name: name}
		g := groups[k]
		if g == nil {
			g = &group{}
			groups[k] = g
			samples[k] = s
		}
		g.add(s)
	}

	out := make([]CityStateAggregate, 0, len(groups))
	for k, g := range groups {
		out = append(out, CityStateAggregate{
			Country:       k.country,
			ID:            intent.CityStateID{Name: k.name, IsState: state},
			Tier:          g.tier(),
			InMaintenance: g.inMaintenance(),
			ServerCount:   g.count,
			sample:        samples[k],
		})
	}
	slices.SortFunc(out, func(a, b CityStateAggregate) int {
		return cmp.Or(cmp.Compare(a.Country, b.Country), cmp.Compare(a.ID.Name, b.ID.Name))
	})
	return out
}

// HaveStates reports whether any browsable server of country is grouped by state.
func (ix *Index) HaveStates(country intent.CountryID) bool {
	for _, s := range ix.snap.Servers {
		if s.State != "" && inCountry(s, country) && !s.IsGateway() && s.Tier != catalog.TierFree {
			return true
		}
	}
	return false
}

// ServerQuery selects servers for Servers. The zero value lists every browsable server.
type ServerQuery struct {
	Country intent.CountryID
	// Location restricts to a city or state when non-nil.
	Location *intent.CityStateID
	Filter   FilterType
	// Gateway lists that gateway's servers instead of the regular catalog.
	Gateway string
}

// Servers lists servers matching q ordered by name. Free servers are never listed.
func (ix *Index) Servers(q ServerQuery) []catalog.Server {
	var out []catalog.Server
	for _, s := range ix.snap.Servers {
		if s.Tier == catalog.TierFree || !q.Filter.Matches(s) || !inCountry(s, q.Country) {
			continue
		}
		if q.Gateway != "" {
			if s.GatewayName() != q.Gateway {
				continue
			}
		} else if s.IsGateway() {
			continue
		}
		if q.Location != nil && locationOf(s, q.Location.IsState) != q.Location.Name {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b catalog.Server) int { return CompareServerNames(a.Name, b.Name) })
	return out
}

// CompareServerNames orders "CH#2" before "CH#10".
func CompareServerNames(a, b string) int {
	ap, an, aok := splitServerName(a)
	bp, bn, bok := splitServerName(b)
	if aok && bok && ap == bp {
		return cmp.Or(cmp.Compare(an, bn), strings.Compare(a, b))
	}
	return strings.Compare(a, b)
}

func splitServerName(name string) (string, int, bool) {
	prefix, num, ok := strings.Cut(name, "#")
	if !ok {
		return name, 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return name, 0, false
	}
	return prefix, n, true
}

// Gateways aggregates gateway servers by gateway name, ordered by name. Every tier counts.
func (ix *Index) Gateways() []GatewayAggregate {
	return slices.Clone(ix.gateways)
}

func (ix *Index) aggregateGateways() []GatewayAggregate {
	groups := map[string]*group{}
	for _, s := range ix.snap.Servers {
		name := s.GatewayName()
		if name == "" {
			continue
		}
		g := groups[name]
		if g == nil {
			g = &group{}
			groups[name] = g
		}
		g.add(s)
	}
	out := make([]GatewayAggregate, 0, len(groups))
	for name, g := range groups {
		out = append(out, GatewayAggregate{
			Name:          name,
			Tier:          g.minTier,
			InMaintenance: g.inMaintenance(),
			ServerCount:   g.count,
		})
	}
	slices.SortFunc(out, func(a, b GatewayAggregate) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// AvailableTypes returns the filters with at least one browsable server in country, or
// anywhere when country is a sentinel.
func (ix *Index) AvailableTypes(country intent.CountryID) []FilterType {
	var out []FilterType
	for _, f := range FilterTypes {
		for _, s := range ix.snap.Servers {
			if browsable(s, f) && inCountry(s, country) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// EntryCountries lists the distinct Secure Core entry countries for exit, or for every exit
// when exit is a sentinel.
func (ix *Index) EntryCountries(exit intent.CountryID) []intent.CountryID {
	seen := map[intent.CountryID]struct{}{}
	for _, s := range ix.snap.Servers {
		if browsable(s, FilterSecureCore) && inCountry(s, exit) {
			seen[s.Entry()] = struct{}{}
		}
	}
	out := make([]intent.CountryID, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
