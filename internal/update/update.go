// Package update downloads the server catalog from a remote URL into the local catalog file.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
	"github.com/asheshgoplani/vpn-deck/internal/logging"
)

const (
	// CacheFileName stores the last check result next to the catalog.
	CacheFileName = "catalog-cache.json"

	// DefaultCheckInterval is used when Config.Interval is not set.
	DefaultCheckInterval = 6 * time.Hour

	// maxCatalogBytes bounds a downloaded catalog.
	maxCatalogBytes = 64 << 20
)

var updateLog = logging.ForComponent(logging.CompCatalog)

// Cache stores the last check result
type Cache struct {
	CheckedAt    time.Time `json:"checked_at"`
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Servers      int       `json:"servers"`
}

// Config configures an Updater.
type Config struct {
	// URL serves a catalog in the on-disk format.
	URL string
	// CatalogPath receives the downloaded catalog.
	CatalogPath string
	// CacheDir holds CacheFileName. Default: the directory of CatalogPath.
	CacheDir string
	// Interval between checks made by Run and by non-forced Check calls.
	Interval time.Duration
	// Client defaults to a client with a 30 second timeout.
	Client *http.Client
}

// Result describes one check.
type Result struct {
	Updated   bool      `json:"updated"`
	Skipped   bool      `json:"skipped"`
	Servers   int       `json:"servers"`
	CheckedAt time.Time `json:"checked_at"`
}

// Updater keeps the catalog file in step with a remote URL.
type Updater struct {
	cfg Config
	now func() time.Time
}

// New returns an Updater for cfg.
func New(cfg Config) *Updater {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCheckInterval
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Dir(cfg.CatalogPath)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Updater{cfg: cfg, now: time.Now}
}

func (u *Updater) cachePath() string {
	return filepath.Join(u.cfg.CacheDir, CacheFileName)
}

// loadCache loads the cache from disk
func (u *Updater) loadCache() (*Cache, error) {
	data, err := os.ReadFile(u.cachePath())
	if err != nil {
		return nil, err
	}
	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// saveCache saves the cache to disk
func (u *Updater) saveCache(cache *Cache) error {
	if err := os.MkdirAll(u.cfg.CacheDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(u.cachePath(), data, 0o644)
}

// Due reports whether a non-forced Check would contact the server.
func (u *Updater) Due() bool {
	cache, err := u.loadCache()
	if err != nil || cache.URL != u.cfg.URL {
		return true
	}
	if _, err := os.Stat(u.cfg.CatalogPath); err != nil {
		return true
	}
	return u.now().Sub(cache.CheckedAt) >= u.cfg.Interval
}

// Check downloads the catalog unless the last check is younger than the interval. A
// conditional request leaves an unchanged catalog file untouched. The file is only
// replaced by a catalog that decodes and validates.
func (u *Updater) Check(ctx context.Context, force bool) (Result, error) {
	if u.cfg.URL == "" {
		return Result{}, errors.New("update: no catalog url configured")
	}
	if !force && !u.Due() {
		cache, _ := u.loadCache()
		return Result{Skipped: true, Servers: cache.Servers, CheckedAt: cache.CheckedAt}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.cfg.URL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("update: request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	cache, cacheErr := u.loadCache()
	if cacheErr == nil && cache.URL == u.cfg.URL && fileExists(u.cfg.CatalogPath) {
		if cache.ETag != "" {
			req.Header.Set("If-None-Match", cache.ETag)
		}
		if cache.LastModified != "" {
			req.Header.Set("If-Modified-Since", cache.LastModified)
		}
	}

	resp, err := u.cfg.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("update: fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	now := u.now()
	switch resp.StatusCode {
	case http.StatusNotModified:
		if cache == nil {
			return Result{}, fmt.Errorf("update: %s answered 304 to an unconditional request", u.cfg.URL)
		}
		cache.CheckedAt = now
		_ = u.saveCache(cache)
		updateLog.Debug("catalog_not_modified", slog.String("url", u.cfg.URL))
		return Result{Servers: cache.Servers, CheckedAt: now}, nil
	case http.StatusOK:
	default:
		return Result{}, fmt.Errorf("update: %s returned status %d", u.cfg.URL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("update: read catalog: %w", err)
	}
	if len(data) > maxCatalogBytes {
		return Result{}, fmt.Errorf("update: catalog larger than %d bytes", maxCatalogBytes)
	}
	servers, err := catalog.Decode(data)
	if err != nil {
		return Result{}, fmt.Errorf("update: %w", err)
	}
	if err := catalog.SaveFile(u.cfg.CatalogPath, servers); err != nil {
		return Result{}, err
	}

	// Cache save errors only cost an extra download next time.
	_ = u.saveCache(&Cache{
		CheckedAt:    now,
		URL:          u.cfg.URL,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Servers:      len(servers),
	})
	updateLog.Info("catalog_downloaded",
		slog.String("url", u.cfg.URL),
		slog.Int("servers", len(servers)))
	return Result{Updated: true, Servers: len(servers), CheckedAt: now}, nil
}

// Run checks once and then every interval until ctx is done. Failures are logged and
// retried at the next tick.
func (u *Updater) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := u.Check(ctx, false); err != nil && ctx.Err() == nil {
			updateLog.Warn("catalog_download_failed", slog.String("url", u.cfg.URL), slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
