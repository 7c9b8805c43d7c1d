package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/asheshgoplani/vpn-deck/internal/intent"
	"github.com/asheshgoplani/vpn-deck/internal/resolver"
)

type resolveJSON struct {
	Requested     string      `json:"requested"`
	Resolved      string      `json:"resolved"`
	Steps         int         `json:"steps"`
	Unsatisfiable bool        `json:"unsatisfiable"`
	Availability  string      `json:"availability"`
	Intent        intent.Data `json:"intent"`
	Server        *serverJSON `json:"server,omitempty"`
}

func newResolveJSON(requested intent.ConnectIntent, p resolver.Pick, availability string) resolveJSON {
	j := resolveJSON{
		Requested:     requested.String(),
		Resolved:      p.Intent.String(),
		Steps:         p.Steps,
		Unsatisfiable: p.Unsatisfiable,
		Availability:  availability,
		Intent:        intent.ToData(p.Intent),
	}
	if p.Server.ID != "" {
		s := toServerJSON(p.Server)
		j.Server = &s
	}
	return j
}

func formatPick(sb *strings.Builder, j resolveJSON) {
	switch {
	case j.Unsatisfiable:
		fmt.Fprintf(sb, "%s %s cannot be satisfied (%s); falling back to %s\n", offlineSymbol, j.Requested, j.Availability, j.Resolved)
		return
	case j.Steps > 0:
		fmt.Fprintf(sb, "%s %s generalized %d step(s) to %s\n", bulletSymbol, j.Requested, j.Steps, j.Resolved)
	default:
		fmt.Fprintf(sb, "%s %s\n", successSymbol, j.Resolved)
	}
	if j.Server != nil {
		fmt.Fprintf(sb, "  Server: %s (%s, load %d%%)\n", j.Server.Name, j.Server.Exit, j.Server.Load)
	}
}

// handleResolve resolves an intent built from flags against the catalog.
func handleResolve(ctx context.Context, env *cliEnv, args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	var f intentFlags
	f.register(fs)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Fprintln(env.stderr, "Usage: vpn-deck resolve [-c CC] [--city name|--state name] [--secure-core --entry CC] [--server id] [--gateway name] [--feature f] [--json]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return 1
	}
	out := NewCLIOutput(env, *jsonOutput)
	in, err := f.build()
	if err != nil {
		return out.Error(err.Error(), ErrCodeInvalidArgs)
	}

	a, err := newApp(env.user)
	if err != nil {
		return out.Error(fmt.Sprintf("failed to load catalog: %v", err), ErrCodeNoCatalog)
	}
	defer a.Close()

	p, err := a.resolver.Pick(ctx, in)
	if err != nil {
		return out.Error(fmt.Sprintf("resolve interrupted: %v", err), ErrCodeInterrupted)
	}
	j := newResolveJSON(in, p, a.resolver.Availability(in).String())
	var sb strings.Builder
	formatPick(&sb, j)
	out.Print(sb.String(), j)
	if p.Unsatisfiable {
		return 2
	}
	return 0
}

// handleDefault prints the intent used when nothing was chosen.
func handleDefault(ctx context.Context, env *cliEnv, args []string) int {
	fs := flag.NewFlagSet("default", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return 1
	}
	out := NewCLIOutput(env, *jsonOutput)

	a, err := newApp(env.user)
	if err != nil {
		return out.Error(fmt.Sprintf("failed to load catalog: %v", err), ErrCodeNoCatalog)
	}
	defer a.Close()

	res, err := a.resolver.Default(ctx)
	if err != nil {
		return out.Error(fmt.Sprintf("resolve interrupted: %v", err), ErrCodeInterrupted)
	}
	j := newResolveJSON(intent.Fastest(), resolver.Pick{Result: res}, a.resolver.Availability(res.Intent).String())
	var sb strings.Builder
	formatPick(&sb, j)
	out.Print(sb.String(), j)
	return 0
}
