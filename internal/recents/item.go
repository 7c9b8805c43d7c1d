// Package recents keeps the per-user history of connect intents: pinned items first, then
// the rest by last connection, bounded in size and kept consistent with the server catalog.
package recents

import (
	"cmp"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/asheshgoplani/vpn-deck/internal/intent"
)

// ErrNotFound is returned when a recent id does not belong to the user.
var ErrNotFound = errors.New("recents: not found")

// Item is one entry of a user's recents list.
type Item struct {
	ID              string
	UserID          string
	Intent          intent.ConnectIntent
	LastConnectedAt time.Time
	Pinned          bool
	PinnedAt        time.Time
}

// Key is the normalized intent key the item is unique by.
func (it Item) Key() string { return intent.Key(it.Intent) }

// ServerID returns the server a Server recent points at.
func (it Item) ServerID() (string, bool) {
	if s, ok := it.Intent.(intent.Server); ok {
		return s.ServerID, true
	}
	return "", false
}

// compareItems orders pinned items first (latest pin first), then unpinned by last
// connection, newest first. Ties fall back to the id so the order is total.
func compareItems(a, b Item) int {
	if a.Pinned != b.Pinned {
		if a.Pinned {
			return -1
		}
		return 1
	}
	ta, tb := a.LastConnectedAt, b.LastConnectedAt
	if a.Pinned {
		ta, tb = a.PinnedAt, b.PinnedAt
	}
	if c := tb.Compare(ta); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func sortItems(items []Item) {
	slices.SortFunc(items, compareItems)
}

// byLastConnected orders items newest connection first.
func byLastConnected(a, b Item) int {
	return cmp.Or(b.LastConnectedAt.Compare(a.LastConnectedAt), strings.Compare(a.ID, b.ID))
}
