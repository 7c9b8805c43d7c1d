package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/asheshgoplani/vpn-deck/internal/config"
	"github.com/asheshgoplani/vpn-deck/internal/logging"
	"github.com/asheshgoplani/vpn-deck/internal/profile"
)

const Version = "0.3.0"

// init sets up color profile for consistent terminal colors across environments
func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color profile based on terminal capabilities.
func initColorProfile() {
	// VPNDECK_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("VPNDECK_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}
	// Works in SSH, basic terminals, and older emulators
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command line and returns the process exit code. A panic is reported
// on stderr with a dump of the recent log records.
func run(args []string, stdout, stderr io.Writer) (code int) {
	user, verbose, args := extractGlobalFlags(args)
	env := &cliEnv{stdout: stdout, stderr: stderr, user: profile.EffectiveUser(user)}

	command := ""
	if len(args) > 0 {
		command = args[0]
	}
	initLogging(verbose, command == "watch")
	defer logging.Shutdown()
	defer recoverCrash(stderr, &code)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) == 0 {
		printHelp(stdout)
		return 0
	}
	rest := args[1:]
	switch command {
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "vpn-deck v%s\n", Version)
		return 0
	case "help", "--help", "-h":
		printHelp(stdout)
		return 0
	case "countries":
		return handleCountries(env, rest)
	case "cities":
		return handleCityStates(env, rest, false)
	case "states":
		return handleCityStates(env, rest, true)
	case "servers":
		return handleServers(env, rest)
	case "gateways":
		return handleGateways(env, rest)
	case "entries":
		return handleEntries(env, rest)
	case "types":
		return handleTypes(env, rest)
	case "search", "find":
		return handleSearch(ctx, env, rest)
	case "resolve":
		return handleResolve(ctx, env, rest)
	case "default":
		return handleDefault(ctx, env, rest)
	case "recents", "recent":
		return handleRecents(ctx, env, rest)
	case "watch":
		return handleWatch(ctx, env, rest)
	case "catalog":
		return handleCatalog(ctx, env, rest)
	case "config":
		return handleConfig(env, rest)
	}
	fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
	printHelp(stderr)
	return 1
}

// extractGlobalFlags pulls -u/--user and --verbose out of args before dispatch.
func extractGlobalFlags(args []string) (user string, verbose bool, remaining []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "-u="):
			user = strings.TrimPrefix(arg, "-u=")
			continue
		case strings.HasPrefix(arg, "--user="):
			user = strings.TrimPrefix(arg, "--user=")
			continue
		case arg == "-u" || arg == "--user":
			if i+1 < len(args) {
				user = args[i+1]
				i++
				continue
			}
		case arg == "--verbose":
			verbose = true
			continue
		}
		remaining = append(remaining, arg)
	}
	return user, verbose, remaining
}

// initLogging writes debug.log into the vpn-deck directory when VPNDECK_DEBUG is set or
// the long-running watch command is used. Otherwise records are discarded unless
// --verbose mirrors them to stderr.
func initLogging(verbose, daemon bool) {
	debugMode := os.Getenv("VPNDECK_DEBUG") != "" || daemon
	dir := ""
	if debugMode {
		if d, err := config.GetVPNDeckDir(); err == nil && os.MkdirAll(d, 0o700) == nil {
			dir = d
		}
	}
	cfg := config.GetLogSettings().LoggingConfig(dir, debugMode)
	cfg.Stderr = verbose
	logging.Init(cfg)
}

func handleConfig(env *cliEnv, args []string) int {
	if len(args) == 0 || args[0] != "init" {
		fmt.Fprintln(env.stderr, "Usage: vpn-deck config init")
		return 1
	}
	out := NewCLIOutput(env, false)
	if err := config.CreateExampleConfig(); err != nil {
		return out.Error(fmt.Sprintf("failed to write config: %v", err), ErrCodeStorage)
	}
	path, _ := config.GetUserConfigPath()
	out.Success(fmt.Sprintf("Config at %s", path), nil)
	return 0
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, "vpn-deck v%s\n", Version)
	fmt.Fprintln(w, "Browse VPN servers, resolve connect intents and keep recent connections")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: vpn-deck [-u user] [--verbose] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global Options:")
	fmt.Fprintln(w, "  -u, --user <id>   Use recents of this user (default: 'default')")
	fmt.Fprintln(w, "  --verbose         Mirror logs to stderr")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Browse Commands:")
	fmt.Fprintln(w, "  countries [--filter f]        List countries")
	fmt.Fprintln(w, "  cities <CC> [--filter f]      List cities of a country")
	fmt.Fprintln(w, "  states <CC> [--filter f]      List states of a country")
	fmt.Fprintln(w, "  servers [CC] [--city name]    List servers")
	fmt.Fprintln(w, "  gateways                      List gateways")
	fmt.Fprintln(w, "  entries <CC>                  List Secure Core entry countries")
	fmt.Fprintln(w, "  types [CC]                    List available filters")
	fmt.Fprintln(w, "  search <term>                 Search everything by name")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Connect Commands:")
	fmt.Fprintln(w, "  resolve [intent flags]        Resolve an intent to a server")
	fmt.Fprintln(w, "  default                       Show the default intent")
	fmt.Fprintln(w, "  recents <command>             Manage recent connections (see 'recents help')")
	fmt.Fprintln(w, "  watch                         Keep recents valid while the catalog changes")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Other Commands:")
	fmt.Fprintln(w, "  catalog update [--force]      Download the catalog from [catalog] url")
	fmt.Fprintln(w, "  config init                   Write an example config.toml")
	fmt.Fprintln(w, "  version                       Show version")
	fmt.Fprintln(w, "  help                          Show this help")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Intent flags:")
	fmt.Fprintln(w, "  -c, --country CC   --city name   --state name   --feature tor,p2p")
	fmt.Fprintln(w, "  --secure-core --entry CC   --server id   --gateway name   --profile id")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  vpn-deck search zur                      # Countries, cities and servers matching 'zur'")
	fmt.Fprintln(w, "  vpn-deck resolve -c CH --city Zurich     # Best server in Zurich")
	fmt.Fprintln(w, "  vpn-deck recents connect -c PL --json    # Record a connection")
	fmt.Fprintln(w, "  vpn-deck recents pin 3f2a                # Pin by id prefix")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment Variables:")
	fmt.Fprintln(w, "  VPNDECK_HOME    State directory (default: ~/.vpn-deck)")
	fmt.Fprintln(w, "  VPNDECK_USER    Default user")
	fmt.Fprintln(w, "  VPNDECK_COLOR   Color mode: truecolor, 256, 16, none")
	fmt.Fprintln(w, "  VPNDECK_DEBUG   Write debug.log")
}
