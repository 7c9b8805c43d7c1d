package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/asheshgoplani/vpn-deck/internal/config"
)

func TestEffectiveUser(t *testing.T) {
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	if err := os.WriteFile(filepath.Join(home, config.UserConfigFileName), []byte("[user]\nid = \"from-config\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	config.ClearUserConfigCache()
	t.Cleanup(config.ClearUserConfigCache)

	tests := []struct {
		name     string
		explicit string
		env      string
		expected string
	}{
		{"explicit flag takes priority", "flag", "env", "flag"},
		{"environment over config", "", "env", "env"},
		{"blank flag ignored", "  ", "env", "env"},
		{"config when nothing else", "", "", "from-config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(UserEnv, tt.env)
			if got := EffectiveUser(tt.explicit); got != tt.expected {
				t.Errorf("EffectiveUser(%q) = %q, want %q", tt.explicit, got, tt.expected)
			}
		})
	}
}

func TestEffectiveUserDefaultFallback(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	t.Setenv(UserEnv, "")
	config.ClearUserConfigCache()
	t.Cleanup(config.ClearUserConfigCache)

	if got := EffectiveUser(""); got != DefaultUser {
		t.Errorf("EffectiveUser() = %q, want %q", got, DefaultUser)
	}
}
