package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
	"github.com/asheshgoplani/vpn-deck/internal/logging"
)

// UserConfig is the content of config.toml. Zero values mean "use the default"; the
// Get* functions apply defaults.
type UserConfig struct {
	Catalog CatalogSettings `toml:"catalog"`
	Recents RecentsSettings `toml:"recents"`
	Search  SearchSettings  `toml:"search"`
	Geo     GeoSettings     `toml:"geo"`
	User    UserSettings    `toml:"user"`
	Logs    LogSettings     `toml:"logs"`
}

// CatalogSettings locates the server catalog.
type CatalogSettings struct {
	// Path is the JSON catalog file. Default: ~/.vpn-deck/servers.json
	Path string `toml:"path"`

	// Watch reloads the catalog when the file changes. Default: true
	Watch *bool `toml:"watch"`

	// ReloadPerSecond caps catalog reloads. Default: 2
	ReloadPerSecond float64 `toml:"reload_per_second"`

	// URL is downloaded into Path by "vpn-deck catalog update" and by watch. Empty disables.
	URL string `toml:"url"`

	// CheckIntervalHours is how often watch re-downloads URL. Default: 6
	CheckIntervalHours int `toml:"check_interval_hours"`
}

// GetWatch reports whether catalog watching is enabled.
func (c CatalogSettings) GetWatch() bool {
	return c.Watch == nil || *c.Watch
}

// CheckInterval returns CheckIntervalHours as a duration.
func (c CatalogSettings) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalHours) * time.Hour
}

// RecentsSettings bounds the recents list.
type RecentsSettings struct {
	// MaxRecents caps unpinned recents per user. Default: 6
	MaxRecents int `toml:"max_recents"`

	// RetryIntervalSecs is the validator retry delay after a storage error. Default: 30
	RetryIntervalSecs int `toml:"retry_interval_secs"`
}

// RetryInterval returns RetryIntervalSecs as a duration.
func (r RecentsSettings) RetryInterval() time.Duration {
	return time.Duration(r.RetryIntervalSecs) * time.Second
}

// SearchSettings configures search.
type SearchSettings struct {
	// Locale is the BCP 47 tag used for names and sorting. Default: en-US
	Locale string `toml:"locale"`

	// Suggestions is how many fuzzy suggestions to show when nothing matches. Default: 5
	Suggestions int `toml:"suggestions"`
}

// Tag parses Locale, falling back to American English.
func (s SearchSettings) Tag() language.Tag {
	tag, err := language.Parse(s.Locale)
	if err != nil || s.Locale == "" {
		return language.AmericanEnglish
	}
	return tag
}

// GeoSettings configures home country detection.
type GeoSettings struct {
	GeoIPDB     string `toml:"geoip_db"`
	HomeCountry string `toml:"home_country"`
	HomeIP      string `toml:"home_ip"`
}

// UserSettings identifies the owner of recents.
type UserSettings struct {
	// ID is the default user id. Default: "default"
	ID string `toml:"id"`

	// MaxTier is the highest server tier the user may connect to. Default: internal (3)
	MaxTier *int `toml:"max_tier"`
}

// Tier returns the configured tier bound.
func (u UserSettings) Tier() catalog.Tier {
	if u.MaxTier == nil || *u.MaxTier < int(catalog.TierFree) || *u.MaxTier > int(catalog.TierInternal) {
		return catalog.TierInternal
	}
	return catalog.Tier(*u.MaxTier)
}

// LogSettings configures debug.log.
type LogSettings struct {
	// Level is "debug", "info", "warn" or "error". Default: info
	Level string `toml:"level"`

	// Format is "json" or "text". Default: json
	Format string `toml:"format"`

	// MaxSizeMB rotates debug.log at this size. Default: 10
	MaxSizeMB int `toml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept. Default: 5
	MaxBackups int `toml:"max_backups"`

	// MaxAgeDays is the retention of rotated files. Default: 10
	MaxAgeDays int `toml:"max_age_days"`

	// Compress gzips rotated files. Default: true
	Compress *bool `toml:"compress"`

	// AggregateIntervalSecs is the flush interval of event summaries. Default: 30
	AggregateIntervalSecs int `toml:"aggregate_interval_secs"`
}

var defaultUserConfig = UserConfig{}

// Cache for user config (loaded once per process)
var (
	userConfigCache   *UserConfig
	userConfigCacheMu sync.RWMutex
)

// GetUserConfigPath returns the path to config.toml.
func GetUserConfigPath() (string, error) {
	dir, err := GetVPNDeckDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, UserConfigFileName), nil
}

// LoadUserConfig loads config.toml, caching the result. A missing file yields the
// defaults. On a parse error the defaults are returned together with the error.
func LoadUserConfig() (*UserConfig, error) {
	userConfigCacheMu.RLock()
	if userConfigCache != nil {
		defer userConfigCacheMu.RUnlock()
		return userConfigCache, nil
	}
	userConfigCacheMu.RUnlock()

	userConfigCacheMu.Lock()
	defer userConfigCacheMu.Unlock()
	if userConfigCache != nil {
		return userConfigCache, nil
	}

	configPath, err := GetUserConfigPath()
	if err != nil {
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}

	var config UserConfig
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		// Cache defaults to prevent repeated parse attempts
		userConfigCache = &defaultUserConfig
		return userConfigCache, fmt.Errorf("config.toml parse error: %w", err)
	}
	userConfigCache = &config
	return userConfigCache, nil
}

// ReloadUserConfig drops the cache and loads config.toml again.
func ReloadUserConfig() (*UserConfig, error) {
	ClearUserConfigCache()
	return LoadUserConfig()
}

// ClearUserConfigCache makes the next LoadUserConfig read from disk.
func ClearUserConfigCache() {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
}

// SaveUserConfig writes config.toml atomically: temp file, fsync, rename.
func SaveUserConfig(config *UserConfig) error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# vpn-deck configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	_ = syncFile(tmpPath)
	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}
	ClearUserConfigCache()
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func loadOrDefault() *UserConfig {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		return &defaultUserConfig
	}
	return config
}

// GetCatalogSettings returns catalog settings with defaults applied.
func GetCatalogSettings() CatalogSettings {
	settings := loadOrDefault().Catalog
	if settings.Path == "" {
		if dir, err := GetVPNDeckDir(); err == nil {
			settings.Path = filepath.Join(dir, CatalogFileName)
		}
	} else if p, err := ExpandPath(settings.Path); err == nil {
		settings.Path = p
	}
	if settings.ReloadPerSecond <= 0 {
		settings.ReloadPerSecond = 2
	}
	if settings.CheckIntervalHours <= 0 {
		settings.CheckIntervalHours = 6
	}
	return settings
}

// GetRecentsSettings returns recents settings with defaults applied.
func GetRecentsSettings() RecentsSettings {
	settings := loadOrDefault().Recents
	if settings.MaxRecents <= 0 {
		settings.MaxRecents = 6
	}
	if settings.RetryIntervalSecs <= 0 {
		settings.RetryIntervalSecs = 30
	}
	return settings
}

// GetSearchSettings returns search settings with defaults applied.
func GetSearchSettings() SearchSettings {
	settings := loadOrDefault().Search
	if settings.Locale == "" {
		settings.Locale = "en-US"
	}
	if settings.Suggestions <= 0 {
		settings.Suggestions = 5
	}
	return settings
}

// GetGeoSettings returns geo settings with the database path expanded.
func GetGeoSettings() GeoSettings {
	settings := loadOrDefault().Geo
	if settings.GeoIPDB != "" {
		if p, err := ExpandPath(settings.GeoIPDB); err == nil {
			settings.GeoIPDB = p
		}
	}
	return settings
}

// GetUserSettings returns user settings.
func GetUserSettings() UserSettings {
	settings := loadOrDefault().User
	settings.ID = strings.TrimSpace(settings.ID)
	return settings
}

// GetLogSettings returns log settings with defaults applied.
func GetLogSettings() LogSettings {
	settings := loadOrDefault().Logs
	if settings.Level == "" {
		settings.Level = "info"
	}
	if settings.Format == "" {
		settings.Format = "json"
	}
	if settings.MaxSizeMB <= 0 {
		settings.MaxSizeMB = 10
	}
	if settings.MaxBackups <= 0 {
		settings.MaxBackups = 5
	}
	if settings.MaxAgeDays <= 0 {
		settings.MaxAgeDays = 10
	}
	if settings.Compress == nil {
		compress := true
		settings.Compress = &compress
	}
	if settings.AggregateIntervalSecs <= 0 {
		settings.AggregateIntervalSecs = 30
	}
	return settings
}

// LoggingConfig maps log settings onto the logging package.
func (l LogSettings) LoggingConfig(dir string, debug bool) logging.Config {
	return logging.Config{
		LogDir:                dir,
		Level:                 l.Level,
		Format:                l.Format,
		MaxSizeMB:             l.MaxSizeMB,
		MaxBackups:            l.MaxBackups,
		MaxAgeDays:            l.MaxAgeDays,
		Compress:              l.Compress == nil || *l.Compress,
		RingBufferSize:        1024 * 1024,
		AggregateIntervalSecs: l.AggregateIntervalSecs,
		Debug:                 debug,
	}
}

const exampleConfig = `# vpn-deck configuration

[catalog]
# path = "~/.vpn-deck/servers.json"
# watch = true
# reload_per_second = 2
# url = "https://example.com/vpn/servers.json"
# check_interval_hours = 6

[recents]
# max_recents = 6
# retry_interval_secs = 30

[search]
# locale = "en-US"
# suggestions = 5

[geo]
# geoip_db = "~/.vpn-deck/GeoLite2-Country.mmdb"
# home_country = ""
# home_ip = ""

[user]
# id = "default"
# max_tier = 3

[logs]
# level = "info"
# format = "json"
# max_size_mb = 10
# max_backups = 5
# max_age_days = 10
# compress = true
`

// CreateExampleConfig writes a commented config.toml unless one exists.
func CreateExampleConfig() error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(configPath, []byte(exampleConfig), 0o600)
}
