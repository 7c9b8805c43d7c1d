// Package catalog holds the server list the rest of vpn-deck reads from: the server model,
// immutable versioned snapshots, a broadcasting store and a file-backed loader.
package catalog

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/asheshgoplani/vpn-deck/internal/intent"
)

// Tier is the plan level a server requires.
type Tier int

const (
	TierFree     Tier = 0
	TierBasic    Tier = 1
	TierPlus     Tier = 2
	TierInternal Tier = 3
)

func (t Tier) String() string {
	switch t {
	case TierFree:
		return "free"
	case TierBasic:
		return "basic"
	case TierPlus:
		return "plus"
	case TierInternal:
		return "internal"
	}
	return "unknown"
}

// Feature is a bit of Server.Features.
type Feature uint32

const (
	FeatureSecureCore Feature = 1 << iota
	FeatureTor
	FeatureP2P
	FeatureStreaming
	FeatureIPv6
	FeatureRestricted
	FeaturePartner
)

// Features is the server feature bitset as delivered by the catalog.
type Features uint32

func (f Features) Has(bit Feature) bool { return f&Features(bit) != 0 }

// Intent converts the intent-relevant bits to an intent.FeatureSet.
func (f Features) Intent() intent.FeatureSet {
	var set intent.FeatureSet
	if f.Has(FeatureTor) {
		set |= intent.Features(intent.FeatureTor)
	}
	if f.Has(FeatureP2P) {
		set |= intent.Features(intent.FeatureP2P)
	}
	return set
}

// Translation holds localized names for a server's location.
type Translation struct {
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
}

// Server is one logical server. Values are read-only once published in a Snapshot.
type Server struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ExitCountry  string   `json:"exit_country"`
	EntryCountry string   `json:"entry_country"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	HostCountry  string   `json:"host_country,omitempty"`
	Tier         Tier     `json:"tier"`
	Features     Features `json:"features"`
	Online       bool     `json:"online"`
	Load         int      `json:"load"`
	Score        float64  `json:"score"`
	// RawGatewayName is the gateway name sent by the API; see GatewayName.
	RawGatewayName string `json:"gateway_name,omitempty"`
	// Translations are keyed by BCP 47 tag ("pl", "pt-BR").
	Translations map[string]Translation `json:"translations,omitempty"`
}

// Exit returns the exit country as a CountryID.
func (s Server) Exit() intent.CountryID { return intent.NewCountryID(s.ExitCountry) }

// Entry returns the entry country as a CountryID.
func (s Server) Entry() intent.CountryID { return intent.NewCountryID(s.EntryCountry) }

// IsSecureCore reports whether the server routes through a separate entry country.
func (s Server) IsSecureCore() bool { return s.Features.Has(FeatureSecureCore) }

// GatewayName returns the dedicated gateway this server belongs to, or "".
// Only restricted servers belong to gateways; when the API omits the name it is the
// part of the server name before '#'.
func (s Server) GatewayName() string {
	if !s.Features.Has(FeatureRestricted) {
		return ""
	}
	if s.RawGatewayName != "" {
		return s.RawGatewayName
	}
	name, _, _ := strings.Cut(s.Name, "#")
	return strings.TrimSpace(name)
}

// IsGateway reports whether the server is only reachable through a gateway.
func (s Server) IsGateway() bool { return s.GatewayName() != "" }

// LocalizedCity returns the city name for locale, falling back to the English name.
func (s Server) LocalizedCity(locale language.Tag) string {
	if t, ok := s.translation(locale); ok && t.City != "" {
		return t.City
	}
	return s.City
}

// LocalizedState returns the state name for locale, falling back to the English name.
func (s Server) LocalizedState(locale language.Tag) string {
	if t, ok := s.translation(locale); ok && t.State != "" {
		return t.State
	}
	return s.State
}

func (s Server) translation(locale language.Tag) (Translation, bool) {
	if len(s.Translations) == 0 || locale == language.Und {
		return Translation{}, false
	}
	if t, ok := s.Translations[locale.String()]; ok {
		return t, true
	}
	base, _ := locale.Base()
	t, ok := s.Translations[base.String()]
	return t, ok
}
