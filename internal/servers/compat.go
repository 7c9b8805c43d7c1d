package servers

import (
	"cmp"
	"slices"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
	"github.com/asheshgoplani/vpn-deck/internal/intent"
)

// Availability describes whether an intent can be connected right now.
type Availability int

const (
	// NoServers: nothing in the catalog matches the intent.
	NoServers Availability = iota
	// UnavailablePlan: matching servers exist but all need a higher tier.
	UnavailablePlan
	// AvailableOffline: the user may use matching servers but none is online.
	AvailableOffline
	// Online: at least one usable matching server is online.
	Online
)

func (a Availability) String() string {
	switch a {
	case Online:
		return "online"
	case AvailableOffline:
		return "offline"
	case UnavailablePlan:
		return "unavailable-plan"
	}
	return "no-servers"
}

// compat implements intent.Visitor for one server.
type compat struct {
	s            catalog.Server
	matchFastest bool
	home         intent.CountryID
}

func (c compat) countryMatches(country intent.CountryID) bool {
	switch country {
	case intent.CountryFastest:
		return c.matchFastest
	case intent.CountryFastestExcludingHome:
		return c.matchFastest && (c.home == intent.CountryFastest || c.s.Exit() != c.home)
	}
	return c.s.Exit() == country
}

// regular is the shared rule for country, city and state intents: no Secure Core or
// gateway servers, and every required feature present.
func (c compat) regular(features intent.FeatureSet) bool {
	return !c.s.IsSecureCore() && !c.s.IsGateway() && c.s.Features.Intent().ContainsAll(features)
}

func (c compat) FastestInCountry(i intent.FastestInCountry) bool {
	return c.regular(i.Features) && c.countryMatches(i.Country)
}

func (c compat) FastestInCity(i intent.FastestInCity) bool {
	return c.regular(i.Features) && c.s.Exit() == i.Country && c.s.City == i.CityEn
}

func (c compat) FastestInState(i intent.FastestInState) bool {
	return c.regular(i.Features) && c.s.Exit() == i.Country && c.s.State == i.StateEn
}

func (c compat) SecureCore(i intent.SecureCore) bool {
	if !c.s.IsSecureCore() || c.s.IsGateway() || !c.countryMatches(i.ExitCountry) {
		return false
	}
	return i.EntryCountry.IsSentinel() || c.s.Entry() == i.EntryCountry
}

func (c compat) Server(i intent.Server) bool {
	return c.s.ID == i.ServerID
}

func (c compat) Gateway(i intent.Gateway) bool {
	return c.s.GatewayName() == i.GatewayName && (i.ServerID == "" || c.s.ID == i.ServerID)
}

// Compatible reports whether s satisfies in. The "fastest" countries match only when
// matchFastest is set; FastestExcludingHome additionally skips home.
func Compatible(s catalog.Server, in intent.ConnectIntent, matchFastest bool, home intent.CountryID) bool {
	return intent.Visit[bool](in, compat{s: s, matchFastest: matchFastest, home: home})
}

// Matching returns every server compatible with in, regardless of tier or status.
func (ix *Index) Matching(in intent.ConnectIntent, home intent.CountryID) []catalog.Server {
	var out []catalog.Server
	for _, s := range ix.snap.Servers {
		if Compatible(s, in, true, home) {
			out = append(out, s)
		}
	}
	return out
}

// Availability classifies in for a user of tier userTier.
func (ix *Index) Availability(in intent.ConnectIntent, userTier catalog.Tier, home intent.CountryID) Availability {
	result := NoServers
	for _, s := range ix.snap.Servers {
		if !Compatible(s, in, true, home) {
			continue
		}
		if s.Tier > userTier {
			result = max(result, UnavailablePlan)
			continue
		}
		if s.Online {
			return Online
		}
		result = AvailableOffline
	}
	return result
}

// Satisfiable reports whether in has an online compatible server the user may use.
func (ix *Index) Satisfiable(in intent.ConnectIntent, maxTier catalog.Tier, home intent.CountryID) bool {
	return ix.Availability(in, maxTier, home) == Online
}

// BestServer picks the online compatible server with the lowest score, then lowest load.
func (ix *Index) BestServer(in intent.ConnectIntent, maxTier catalog.Tier, home intent.CountryID) (catalog.Server, bool) {
	var candidates []catalog.Server
	for _, s := range ix.snap.Servers {
		if s.Online && s.Tier <= maxTier && Compatible(s, in, true, home) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return catalog.Server{}, false
	}
	best := slices.MinFunc(candidates, func(a, b catalog.Server) int {
		return cmp.Or(cmp.Compare(a.Score, b.Score), cmp.Compare(a.Load, b.Load), cmp.Compare(a.ID, b.ID))
	})
	return best, true
}
