package recents

import (
	"context"
	"log/slog"
	"time"
)

// ChangeStamp reports a value that grows on every write to shared storage.
type ChangeStamp interface {
	LastModified() (int64, error)
}

// Poller detects writes made by other processes by polling a change stamp. SQLite has no
// change notification across connections, so polling is the portable option.
type Poller struct {
	src      ChangeStamp
	interval time.Duration
	ch       chan struct{}
	last     int64
}

// NewPoller returns a poller checking src every interval (default 2s).
func NewPoller(src ChangeStamp, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	last, _ := src.LastModified()
	return &Poller{src: src, interval: interval, ch: make(chan struct{}, 1), last: last}
}

// C is signalled when the stamp moved since the previous poll.
func (p *Poller) C() <-chan struct{} { return p.ch }

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.check()
		}
	}
}

func (p *Poller) check() bool {
	ts, err := p.src.LastModified()
	if err != nil {
		recentsLog.Debug("recents_poll_failed", slog.String("error", err.Error()))
		return false
	}
	if ts <= p.last {
		return false
	}
	p.last = ts
	recentsLog.Debug("recents_storage_changed", slog.Int64("timestamp", ts))
	select {
	case p.ch <- struct{}{}:
	default:
	}
	return true
}
