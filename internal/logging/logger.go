// Package logging configures the process-wide structured logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names attached to every record as the "component" attribute.
const (
	CompCatalog  = "catalog"
	CompIndex    = "index"
	CompSearch   = "search"
	CompResolver = "resolver"
	CompRecents  = "recents"
	CompStorage  = "storage"
	CompGeo      = "geo"
	CompCLI      = "cli"
)

// LogFileName is the file written inside Config.LogDir.
const LogFileName = "debug.log"

// Config holds logging configuration.
type Config struct {
	// LogDir receives debug.log. Empty disables file output.
	LogDir string

	// Level is "debug", "info" (default), "warn" or "error".
	Level string

	// Format is "json" (default) or "text".
	Format string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// RingBufferSize is the in-memory tail kept for DumpRingBuffer, in bytes.
	RingBufferSize int

	// AggregateIntervalSecs is how often batched events are summarized.
	AggregateIntervalSecs int

	// Stderr additionally mirrors records to standard error (vpn-deck --verbose).
	Stderr bool

	// Debug forces logging on even without a LogDir.
	Debug bool
}

func (c *Config) applyDefaults() {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 10
	}
	if c.RingBufferSize <= 0 {
		c.RingBufferSize = 4 * 1024 * 1024
	}
	if c.AggregateIntervalSecs <= 0 {
		c.AggregateIntervalSecs = 30
	}
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

var (
	mu      sync.RWMutex
	root    *slog.Logger
	ring    *RingBuffer
	agg     *Aggregator
	rotator *lumberjack.Logger
)

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

// Init installs the global logger. Calling it again replaces the previous setup.
// Without Debug, LogDir or Stderr everything is discarded.
func Init(cfg Config) {
	Shutdown()

	mu.Lock()
	defer mu.Unlock()

	cfg.applyDefaults()

	if !cfg.Debug && cfg.LogDir == "" && !cfg.Stderr {
		root = discard
		ring = NewRingBuffer(1024)
		agg = NewAggregator(nil, cfg.AggregateIntervalSecs)
		return
	}

	ring = NewRingBuffer(cfg.RingBufferSize)
	writers := []io.Writer{ring}
	if cfg.LogDir != "" {
		rotator = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, LogFileName),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		writers = append(writers, rotator)
	}
	if cfg.Stderr {
		writers = append(writers, os.Stderr)
	}
	out := io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if cfg.Format == "text" {
		root = slog.New(slog.NewTextHandler(out, opts))
	} else {
		root = slog.New(slog.NewJSONHandler(out, opts))
	}

	agg = NewAggregator(root, cfg.AggregateIntervalSecs)
	agg.Start()
}

// Logger returns the global logger, or a discarding one before Init.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if root == nil {
		return discard
	}
	return root
}

// ForComponent returns a logger tagged with component. The handler is looked up on
// every record, so package-level loggers declared before Init still reach the real output.
func ForComponent(name string) *slog.Logger {
	return slog.New(&componentHandler{component: name})
}

type componentHandler struct {
	component string
	attrs     []slog.Attr
	groups    []string
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	return handler.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

// Aggregate counts a high-frequency event; a summary is logged once per interval.
func Aggregate(component, event string, attrs ...slog.Attr) {
	mu.RLock()
	a := agg
	mu.RUnlock()
	if a != nil {
		a.Record(component, event, attrs...)
	}
}

// DumpRingBuffer writes the most recent log output to path.
func DumpRingBuffer(path string) error {
	mu.RLock()
	r := ring
	mu.RUnlock()
	if r == nil {
		return nil
	}
	return r.DumpToFile(path)
}

// Shutdown flushes pending summaries and closes the log file.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()

	if agg != nil {
		agg.Stop()
		agg = nil
	}
	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}
	root = nil
	ring = nil
}
