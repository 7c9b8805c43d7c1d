package main

import (
	"errors"
	"flag"
	"strings"

	"github.com/asheshgoplani/vpn-deck/internal/intent"
)

// stringList is a repeatable string flag that also splits on commas.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

// intentFlags collects the flags describing a connect intent.
type intentFlags struct {
	country    string
	city       string
	state      string
	entry      string
	secureCore bool
	server     string
	gateway    string
	features   stringList
	profile    int64
}

func (f *intentFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.country, "country", "", "Exit country code, \"fastest\" or \"fastest-excluding-home\"")
	fs.StringVar(&f.country, "c", "", "Exit country (short)")
	fs.StringVar(&f.city, "city", "", "City (English name)")
	fs.StringVar(&f.state, "state", "", "State or region (English name)")
	fs.StringVar(&f.entry, "entry", "", "Secure Core entry country")
	fs.BoolVar(&f.secureCore, "secure-core", false, "Route through a Secure Core entry country")
	fs.StringVar(&f.server, "server", "", "Specific server id")
	fs.StringVar(&f.gateway, "gateway", "", "Dedicated gateway name")
	fs.Var(&f.features, "feature", "Required feature: tor, p2p (repeatable)")
	fs.Int64Var(&f.profile, "profile", -1, "Profile id the intent belongs to")
}

// build turns the flags into an intent. No flags at all means Fastest.
func (f *intentFlags) build() (intent.ConnectIntent, error) {
	features, err := intent.ParseFeatureSet(f.features)
	if err != nil {
		return nil, err
	}
	var opts intent.Options
	if f.profile >= 0 {
		opts = intent.WithProfile(f.profile, nil)
	}
	country := intent.NewCountryID(strings.TrimSpace(f.country))

	switch {
	case f.gateway != "":
		if f.city != "" || f.state != "" || f.secureCore || f.entry != "" || !features.IsEmpty() {
			return nil, errors.New("--gateway only combines with --server")
		}
		return intent.Gateway{GatewayName: f.gateway, ServerID: f.server, Options: opts}, nil

	case f.secureCore || f.entry != "":
		if f.city != "" || f.state != "" || f.server != "" || !features.IsEmpty() {
			return nil, errors.New("--secure-core only combines with --country and --entry")
		}
		return intent.SecureCore{ExitCountry: country, EntryCountry: intent.NewCountryID(f.entry), Options: opts}, nil

	case f.server != "":
		if f.city != "" || f.state != "" {
			return nil, errors.New("--server does not combine with --city or --state")
		}
		return intent.Server{ServerID: f.server, ExitCountry: country, Features: features, Options: opts}, nil

	case f.city != "" && f.state != "":
		return nil, errors.New("use either --city or --state")

	case f.city != "" || f.state != "":
		if country.IsSentinel() {
			return nil, errors.New("--city and --state need --country")
		}
		if f.city != "" {
			return intent.FastestInCity{Country: country, CityEn: f.city, Features: features, Options: opts}, nil
		}
		return intent.FastestInState{Country: country, StateEn: f.state, Features: features, Options: opts}, nil
	}
	return intent.FastestInCountry{Country: country, Features: features, Options: opts}, nil
}
