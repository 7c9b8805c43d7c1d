// Package intent defines ConnectIntent, the user-level description of where to connect
// before it is resolved to a concrete server.
package intent

import "fmt"

// Kind is the stable tag of a ConnectIntent variant. Its values are persisted.
type Kind string

const (
	KindFastest        Kind = "FASTEST"
	KindFastestInCity  Kind = "FASTEST_IN_CITY"
	KindFastestInState Kind = "FASTEST_IN_REGION"
	KindSecureCore     Kind = "SECURE_CORE"
	KindServer         Kind = "SERVER"
	KindGateway        Kind = "GATEWAY"
)

// SettingsOverrides are connection settings a profile applies on top of the user's
// global settings. The core carries them without interpreting them.
type SettingsOverrides struct {
	Protocol   string   `json:"protocol,omitempty"`
	NetShield  *bool    `json:"netshield,omitempty"`
	LANConnect *bool    `json:"lan_connect,omitempty"`
	NATType    string   `json:"nat_type,omitempty"`
	CustomDNS  []string `json:"custom_dns,omitempty"`
}

// Options are the fields shared by every variant.
type Options struct {
	// ProfileID links the intent to a user-defined profile. Intents with a profile are
	// keyed by the profile id alone.
	ProfileID *int64
	Overrides *SettingsOverrides
}

func (o Options) options() Options { return o }

// WithProfile returns options linking to profile id.
func WithProfile(id int64, overrides *SettingsOverrides) Options {
	return Options{ProfileID: &id, Overrides: overrides}
}

// ConnectIntent is a closed sum type. connectIntent is declared on each variant, not on
// the embedded Options, so only the variants of this package implement it; use Visit for
// exhaustive matching.
type ConnectIntent interface {
	Kind() Kind
	options() Options
	connectIntent()
	fmt.Stringer
}

// FastestInCountry selects the best server in a country, or anywhere for the sentinels.
type FastestInCountry struct {
	Country  CountryID
	Features FeatureSet
	Options
}

// FastestInCity selects the best server in a city.
type FastestInCity struct {
	Country  CountryID
	CityEn   string
	Features FeatureSet
	Options
}

// FastestInState selects the best server in a state or region.
type FastestInState struct {
	Country  CountryID
	StateEn  string
	Features FeatureSet
	Options
}

// SecureCore routes through EntryCountry before exiting in ExitCountry.
type SecureCore struct {
	ExitCountry  CountryID
	EntryCountry CountryID
	Options
}

// Server selects one specific server. ExitCountry is CountryFastest when unknown.
type Server struct {
	ServerID    string
	ExitCountry CountryID
	Features    FeatureSet
	Options
}

// Gateway selects a dedicated gateway, optionally one of its servers.
type Gateway struct {
	GatewayName string
	ServerID    string
	Options
}

func (FastestInCountry) Kind() Kind { return KindFastest }
func (FastestInCity) Kind() Kind    { return KindFastestInCity }
func (FastestInState) Kind() Kind   { return KindFastestInState }
func (SecureCore) Kind() Kind       { return KindSecureCore }
func (Server) Kind() Kind           { return KindServer }
func (Gateway) Kind() Kind          { return KindGateway }

func (FastestInCountry) connectIntent() {}
func (FastestInCity) connectIntent()    {}
func (FastestInState) connectIntent()   {}
func (SecureCore) connectIntent()       {}
func (Server) connectIntent()           {}
func (Gateway) connectIntent()          {}

// Fastest returns the universal intent: best server anywhere, no feature requirements.
func Fastest() FastestInCountry {
	return FastestInCountry{Country: CountryFastest}
}

// IsDefault reports whether i is the universal Fastest intent, ignoring profile links.
func IsDefault(i ConnectIntent) bool {
	f, ok := i.(FastestInCountry)
	return ok && f.Country == CountryFastest && f.Features.IsEmpty()
}

// ProfileID returns the linked profile id of i, if any.
func ProfileID(i ConnectIntent) (int64, bool) {
	o := i.options()
	if o.ProfileID == nil {
		return 0, false
	}
	return *o.ProfileID, true
}

// Overrides returns the settings overrides carried by i, or nil.
func Overrides(i ConnectIntent) *SettingsOverrides {
	return i.options().Overrides
}

// FeaturesOf returns the required features of i. Secure Core and gateway intents
// never require features.
func FeaturesOf(i ConnectIntent) FeatureSet {
	switch v := i.(type) {
	case FastestInCountry:
		return v.Features
	case FastestInCity:
		return v.Features
	case FastestInState:
		return v.Features
	case Server:
		return v.Features
	}
	return NoFeatures
}

// Equal compares two intents by their storage key.
func Equal(a, b ConnectIntent) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Key(a) == Key(b)
}

func (i FastestInCountry) String() string {
	return withFeatures("fastest in "+i.Country.String(), i.Features)
}

func (i FastestInCity) String() string {
	return withFeatures(fmt.Sprintf("fastest in %s, %s", i.CityEn, i.Country), i.Features)
}

func (i FastestInState) String() string {
	return withFeatures(fmt.Sprintf("fastest in %s, %s", i.StateEn, i.Country), i.Features)
}

func (i SecureCore) String() string {
	return fmt.Sprintf("secure core %s via %s", i.ExitCountry, i.EntryCountry)
}

func (i Server) String() string {
	return withFeatures("server "+i.ServerID, i.Features)
}

func (i Gateway) String() string {
	if i.ServerID != "" {
		return fmt.Sprintf("gateway %s server %s", i.GatewayName, i.ServerID)
	}
	return "gateway " + i.GatewayName
}

func withFeatures(s string, f FeatureSet) string {
	if f.IsEmpty() {
		return s
	}
	return s + " [" + f.String() + "]"
}
