package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrUnknownType is returned when stored data names a variant this build does not know.
	ErrUnknownType = errors.New("intent: unknown type")
	// ErrMalformed is returned when stored data lacks a field its variant requires.
	ErrMalformed = errors.New("intent: malformed data")
)

// Data is the flat storage form of a ConnectIntent.
type Data struct {
	Type         Kind               `json:"type"`
	ExitCountry  *string            `json:"exit_country,omitempty"`
	EntryCountry *string            `json:"entry_country,omitempty"`
	City         *string            `json:"city,omitempty"`
	Region       *string            `json:"region,omitempty"`
	GatewayName  *string            `json:"gateway_name,omitempty"`
	ServerID     *string            `json:"server_id,omitempty"`
	Features     []string           `json:"features,omitempty"`
	ProfileID    *int64             `json:"profile_id,omitempty"`
	Overrides    *SettingsOverrides `json:"settings_overrides,omitempty"`
}

type toData struct{}

func (toData) FastestInCountry(i FastestInCountry) Data {
	return Data{Type: KindFastest, ExitCountry: country(i.Country), Features: i.Features.Names()}
}

func (toData) FastestInCity(i FastestInCity) Data {
	return Data{Type: KindFastestInCity, ExitCountry: country(i.Country), City: &i.CityEn, Features: i.Features.Names()}
}

func (toData) FastestInState(i FastestInState) Data {
	return Data{Type: KindFastestInState, ExitCountry: country(i.Country), Region: &i.StateEn, Features: i.Features.Names()}
}

func (toData) SecureCore(i SecureCore) Data {
	return Data{Type: KindSecureCore, ExitCountry: country(i.ExitCountry), EntryCountry: country(i.EntryCountry)}
}

func (toData) Server(i Server) Data {
	return Data{Type: KindServer, ExitCountry: country(i.ExitCountry), ServerID: &i.ServerID, Features: i.Features.Names()}
}

func (toData) Gateway(i Gateway) Data {
	d := Data{Type: KindGateway, GatewayName: &i.GatewayName}
	if i.ServerID != "" {
		d.ServerID = &i.ServerID
	}
	return d
}

// country stores CountryFastest as a missing field and every other value verbatim.
func country(c CountryID) *string {
	if c == CountryFastest {
		return nil
	}
	s := string(c)
	return &s
}

func countryOf(s *string) CountryID {
	if s == nil {
		return CountryFastest
	}
	return CountryID(*s)
}

// ToData converts i to its storage form.
func ToData(i ConnectIntent) Data {
	d := Visit[Data](i, toData{})
	o := i.options()
	d.ProfileID = o.ProfileID
	d.Overrides = o.Overrides
	if len(d.Features) == 0 {
		d.Features = nil
	}
	return d
}

// Intent converts stored data back to a ConnectIntent.
func (d Data) Intent() (ConnectIntent, error) {
	features, err := ParseFeatureSet(d.Features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	opts := Options{ProfileID: d.ProfileID, Overrides: d.Overrides}
	switch d.Type {
	case KindFastest:
		return FastestInCountry{Country: countryOf(d.ExitCountry), Features: features, Options: opts}, nil
	case KindFastestInCity:
		if d.City == nil {
			return nil, fmt.Errorf("%w: %s needs city", ErrMalformed, d.Type)
		}
		return FastestInCity{Country: countryOf(d.ExitCountry), CityEn: *d.City, Features: features, Options: opts}, nil
	case KindFastestInState:
		if d.Region == nil {
			return nil, fmt.Errorf("%w: %s needs region", ErrMalformed, d.Type)
		}
		return FastestInState{Country: countryOf(d.ExitCountry), StateEn: *d.Region, Features: features, Options: opts}, nil
	case KindSecureCore:
		return SecureCore{ExitCountry: countryOf(d.ExitCountry), EntryCountry: countryOf(d.EntryCountry), Options: opts}, nil
	case KindServer:
		if d.ServerID == nil || *d.ServerID == "" {
			return nil, fmt.Errorf("%w: %s needs server id", ErrMalformed, d.Type)
		}
		return Server{ServerID: *d.ServerID, ExitCountry: countryOf(d.ExitCountry), Features: features, Options: opts}, nil
	case KindGateway:
		if d.GatewayName == nil || *d.GatewayName == "" {
			return nil, fmt.Errorf("%w: %s needs gateway name", ErrMalformed, d.Type)
		}
		g := Gateway{GatewayName: *d.GatewayName, Options: opts}
		if d.ServerID != nil {
			g.ServerID = *d.ServerID
		}
		return g, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, d.Type)
}

// Marshal encodes i in its storage form.
func Marshal(i ConnectIntent) ([]byte, error) {
	return json.Marshal(ToData(i))
}

// Unmarshal decodes an intent previously written by Marshal.
func Unmarshal(b []byte) (ConnectIntent, error) {
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return d.Intent()
}

// Key returns the stable identity of i used for recents de-duplication.
// Intents linked to a profile are identified by the profile alone; all others by their
// target fields. Settings overrides never contribute to an unlinked key.
func Key(i ConnectIntent) string {
	if id, ok := ProfileID(i); ok {
		return "profile:" + strconv.FormatInt(id, 10)
	}
	d := Visit[Data](i, toData{})
	fields := []any{d.Type, d.ExitCountry, d.EntryCountry, d.City, d.Region, d.GatewayName, d.ServerID, d.Features}
	b, _ := json.Marshal(fields)
	return string(b)
}
