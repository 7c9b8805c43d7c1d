// Package geo detects the user's home country, which FastestExcludingHome intents avoid.
package geo

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"

	"github.com/asheshgoplani/vpn-deck/internal/intent"
	"github.com/asheshgoplani/vpn-deck/internal/logging"
)

var geoLog = logging.ForComponent(logging.CompGeo)

// ErrNoDatabase is returned when a lookup needs a GeoIP database but none is configured.
var ErrNoDatabase = errors.New("geo: no geoip database configured")

// ErrUnknownCountry is returned when the database has no country for an address.
var ErrUnknownCountry = errors.New("geo: country unknown")

// Config selects how the home country is found. HomeCountry wins over a lookup of HomeIP.
type Config struct {
	DBPath      string
	HomeCountry string
	HomeIP      string
}

// Detector resolves addresses to countries with a MaxMind database.
type Detector struct {
	cfg    Config
	reader *geoip2.Reader
}

// Open opens the configured database. Without DBPath the detector only honors the
// HomeCountry override.
func Open(cfg Config) (*Detector, error) {
	d := &Detector{cfg: cfg}
	if cfg.DBPath == "" {
		return d, nil
	}
	r, err := geoip2.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("geo: open %s: %w", cfg.DBPath, err)
	}
	d.reader = r
	return d, nil
}

// Close releases the database.
func (d *Detector) Close() error {
	if d.reader == nil {
		return nil
	}
	return d.reader.Close()
}

// Lookup returns the country of ip.
func (d *Detector) Lookup(ip string) (intent.CountryID, error) {
	if d.reader == nil {
		return intent.CountryFastest, ErrNoDatabase
	}
	addr := net.ParseIP(strings.TrimSpace(ip))
	if addr == nil {
		return intent.CountryFastest, fmt.Errorf("geo: invalid ip %q", ip)
	}
	rec, err := d.reader.Country(addr)
	if err != nil {
		return intent.CountryFastest, fmt.Errorf("geo: lookup %s: %w", ip, err)
	}
	if rec.Country.IsoCode == "" {
		return intent.CountryFastest, fmt.Errorf("%w: %s", ErrUnknownCountry, ip)
	}
	return intent.NewCountryID(rec.Country.IsoCode), nil
}

// HomeCountry returns the configured override, else the country of HomeIP.
func (d *Detector) HomeCountry() (intent.CountryID, error) {
	if c := strings.TrimSpace(d.cfg.HomeCountry); c != "" {
		id := intent.NewCountryID(c)
		if id.IsSentinel() || len(id) != 2 {
			return intent.CountryFastest, fmt.Errorf("geo: invalid home country %q", c)
		}
		return id, nil
	}
	if d.cfg.HomeIP == "" {
		if d.reader == nil {
			return intent.CountryFastest, ErrNoDatabase
		}
		return intent.CountryFastest, errors.New("geo: no home ip configured")
	}
	c, err := d.Lookup(d.cfg.HomeIP)
	if err != nil {
		return intent.CountryFastest, err
	}
	geoLog.Debug("home_country_detected", slog.String("country", c.Code()))
	return c, nil
}
