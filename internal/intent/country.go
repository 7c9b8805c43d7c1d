package intent

import "strings"

// CountryID identifies a country by its two-letter code.
// The two sentinels are never real codes: CountryFastest (the zero value) selects the best
// server anywhere, CountryFastestExcludingHome selects the best server outside the user's
// detected country.
type CountryID string

const (
	CountryFastest              CountryID = ""
	CountryFastestExcludingHome CountryID = "-"
)

// NewCountryID normalizes a two-letter code. Sentinel spellings accepted on the command
// line ("fastest", "fastest-excluding-home") map to their sentinel values.
func NewCountryID(code string) CountryID {
	c := strings.TrimSpace(code)
	switch strings.ToLower(c) {
	case "", "fastest", "any":
		return CountryFastest
	case "-", "fastest-excluding-home", "excluding-home":
		return CountryFastestExcludingHome
	}
	return CountryID(strings.ToUpper(c))
}

// IsSentinel reports whether c is one of the "fastest" pseudo-countries.
func (c CountryID) IsSentinel() bool {
	return c == CountryFastest || c == CountryFastestExcludingHome
}

// Code returns the real country code, or "" for sentinels.
func (c CountryID) Code() string {
	if c.IsSentinel() {
		return ""
	}
	return string(c)
}

func (c CountryID) String() string {
	switch c {
	case CountryFastest:
		return "fastest"
	case CountryFastestExcludingHome:
		return "fastest-excluding-home"
	}
	return string(c)
}

// CityStateID names a city or a state (region) by its English canonical name.
// A city and a state with the same name are different locations.
type CityStateID struct {
	Name    string
	IsState bool
}

func (id CityStateID) String() string {
	if id.IsState {
		return "state:" + id.Name
	}
	return "city:" + id.Name
}
