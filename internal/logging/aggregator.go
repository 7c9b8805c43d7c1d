package logging

import (
	"log/slog"
	"sync"
	"time"
)

type eventKey struct {
	component string
	event     string
}

type eventStats struct {
	count     int64
	firstSeen time.Time
	attrs     []slog.Attr
}

// Aggregator counts repeated events (catalog reloads, search queries) and logs one
// "event_summary" record per event per interval instead of one record per occurrence.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	events map[eventKey]*eventStats

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAggregator returns an aggregator flushing every intervalSecs seconds.
// A nil logger drops everything.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		now:      time.Now,
		events:   make(map[eventKey]*eventStats),
		stop:     make(chan struct{}),
	}
}

// Start runs the periodic flush in the background.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(a.interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				a.Flush()
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop ends the background flush and emits whatever is pending.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.wg.Wait()
	a.Flush()
}

// Record counts one occurrence. The attrs of the latest occurrence are reported.
func (a *Aggregator) Record(component, event string, attrs ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := eventKey{component: component, event: event}
	s := a.events[k]
	if s == nil {
		s = &eventStats{firstSeen: a.now()}
		a.events[k] = s
	}
	s.count++
	if len(attrs) > 0 {
		s.attrs = attrs
	}
}

// Pending returns the current count for an event that has not been flushed yet.
func (a *Aggregator) Pending(component, event string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s := a.events[eventKey{component: component, event: event}]; s != nil {
		return s.count
	}
	return 0
}

// Flush logs a summary for every pending event and resets the counters.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	pending := a.events
	a.events = make(map[eventKey]*eventStats)
	a.mu.Unlock()

	if a.logger == nil || len(pending) == 0 {
		return
	}
	now := a.now()
	for k, s := range pending {
		args := []any{
			slog.String("component", k.component),
			slog.String("event", k.event),
			slog.Int64("count", s.count),
			slog.Duration("window", now.Sub(s.firstSeen)),
		}
		for _, attr := range s.attrs {
			args = append(args, attr)
		}
		a.logger.Info("event_summary", args...)
	}
}
