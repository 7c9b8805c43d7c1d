// Package servers derives browsable aggregates (countries, cities, states, gateways) from a
// catalog snapshot and answers which servers an intent can use.
package servers

import (
	"fmt"
	"strings"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
)

// FilterType partitions browse and search results.
type FilterType int

const (
	FilterAll FilterType = iota
	FilterSecureCore
	FilterP2P
	FilterTor
)

// FilterTypes lists every filter in display order.
var FilterTypes = []FilterType{FilterAll, FilterSecureCore, FilterP2P, FilterTor}

func (f FilterType) String() string {
	switch f {
	case FilterAll:
		return "all"
	case FilterSecureCore:
		return "secure-core"
	case FilterP2P:
		return "p2p"
	case FilterTor:
		return "tor"
	}
	return fmt.Sprintf("filter(%d)", int(f))
}

// ParseFilterType accepts the names printed by String plus "sc".
func ParseFilterType(s string) (FilterType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "secure-core", "securecore", "sc":
		return FilterSecureCore, nil
	case "p2p":
		return FilterP2P, nil
	case "tor":
		return FilterTor, nil
	}
	return FilterAll, fmt.Errorf("servers: unknown filter %q", s)
}

// Matches is the filter predicate. All excludes Secure Core servers; Secure Core matches
// only them; Tor and P2P test their feature bit. Gateway exclusion is the caller's
// browsing context, not part of the filter.
func (f FilterType) Matches(s catalog.Server) bool {
	switch f {
	case FilterAll:
		return !s.IsSecureCore()
	case FilterSecureCore:
		return s.IsSecureCore()
	case FilterP2P:
		return s.Features.Has(catalog.FeatureP2P)
	case FilterTor:
		return s.Features.Has(catalog.FeatureTor)
	}
	return false
}
