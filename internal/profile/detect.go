// Package profile decides whose recents a vpn-deck invocation works with.
package profile

import (
	"os"
	"strings"

	"github.com/asheshgoplani/vpn-deck/internal/config"
)

const (
	// UserEnv selects the user explicitly.
	UserEnv = "VPNDECK_USER"

	// DefaultUser owns recents when nothing else is configured.
	DefaultUser = "default"
)

// EffectiveUser returns the user id to use.
// Priority order:
// 1. explicit (the --user flag)
// 2. VPNDECK_USER environment variable
// 3. [user] id in config.toml
// 4. "default"
func EffectiveUser(explicit string) string {
	if u := strings.TrimSpace(explicit); u != "" {
		return u
	}
	if u := strings.TrimSpace(os.Getenv(UserEnv)); u != "" {
		return u
	}
	if u := config.GetUserSettings().ID; u != "" {
		return u
	}
	return DefaultUser
}
