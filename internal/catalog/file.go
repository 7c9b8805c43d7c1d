package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoCatalog is returned when the catalog file does not exist.
var ErrNoCatalog = errors.New("catalog: no catalog file")

// File is the on-disk catalog format.
type File struct {
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	Servers   []Server  `json:"servers"`
}

// LoadFile reads and validates a catalog file.
func LoadFile(path string) ([]Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoCatalog, path)
		}
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses catalog JSON. Country codes are upper-cased and a missing entry country
// defaults to the exit country.
func Decode(data []byte) ([]Server, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Servers))
	for i := range f.Servers {
		s := &f.Servers[i]
		if s.ID == "" {
			return nil, fmt.Errorf("catalog: server %d has no id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate server id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		s.ExitCountry = strings.ToUpper(strings.TrimSpace(s.ExitCountry))
		s.EntryCountry = strings.ToUpper(strings.TrimSpace(s.EntryCountry))
		if s.ExitCountry == "" {
			return nil, fmt.Errorf("catalog: server %q has no exit country", s.ID)
		}
		if s.EntryCountry == "" {
			s.EntryCountry = s.ExitCountry
		}
	}
	return f.Servers, nil
}

// SaveFile writes servers atomically: temp file, fsync, rename.
func SaveFile(path string, servers []Server) error {
	data, err := json.MarshalIndent(File{UpdatedAt: time.Now().UTC(), Servers: servers}, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("catalog: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".servers-*.json")
	if err != nil {
		return fmt.Errorf("catalog: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("catalog: close: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
