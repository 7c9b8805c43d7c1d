package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/asheshgoplani/vpn-deck/internal/intent"
	"github.com/asheshgoplani/vpn-deck/internal/recents"
)

// handleRecents dispatches recents subcommands.
func handleRecents(ctx context.Context, env *cliEnv, args []string) int {
	if len(args) == 0 {
		printRecentsHelp(env)
		return 1
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list", "ls":
		return handleRecentsList(ctx, env, rest)
	case "connect":
		return handleRecentsConnect(ctx, env, rest)
	case "pin":
		return handleRecentsPin(ctx, env, rest, true)
	case "unpin":
		return handleRecentsPin(ctx, env, rest, false)
	case "remove", "rm":
		return handleRecentsRemove(ctx, env, rest)
	case "validate":
		return handleRecentsValidate(ctx, env, rest)
	case "export":
		return handleRecentsExport(ctx, env, rest)
	case "import":
		return handleRecentsImport(ctx, env, rest)
	case "help", "-h", "--help":
		printRecentsHelp(env)
		return 0
	default:
		fmt.Fprintf(env.stderr, "Unknown recents command: %s\n", sub)
		printRecentsHelp(env)
		return 1
	}
}

func printRecentsHelp(env *cliEnv) {
	fmt.Fprintln(env.stderr, `Usage: vpn-deck recents <command> [options]

Commands:
  list                 List recent connections, pinned first
  connect [intent]     Record a connection and print the chosen server
  pin <id>             Pin a recent
  unpin <id>           Unpin a recent
  remove <id>          Remove a recent
  validate             Drop recents for removed servers and enforce the size cap
  export [file]        Write all recents as JSON (stdout by default)
  import <file>        Load recents written by export`)
}

// openRecentsApp parses common flags and opens the app with its recents store.
func openRecentsApp(env *cliEnv, fs *flag.FlagSet, args []string) (*app, *CLIOutput, int) {
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.SetOutput(env.stderr)
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return nil, nil, 1
	}
	out := NewCLIOutput(env, *jsonOutput)
	a, err := newApp(env.user)
	if err != nil {
		return nil, nil, out.Error(fmt.Sprintf("failed to load catalog: %v", err), ErrCodeNoCatalog)
	}
	if err := a.openRecents(); err != nil {
		a.Close()
		return nil, nil, out.Error(fmt.Sprintf("failed to open state: %v", err), ErrCodeStorage)
	}
	return a, out, 0
}

type recentJSON struct {
	ID              string      `json:"id"`
	Intent          string      `json:"intent"`
	Data            intent.Data `json:"data"`
	LastConnectedAt time.Time   `json:"last_connected_at"`
	Pinned          bool        `json:"pinned"`
	PinnedAt        *time.Time  `json:"pinned_at,omitempty"`
}

func toRecentJSON(it recents.Item) recentJSON {
	j := recentJSON{
		ID:              it.ID,
		Intent:          it.Intent.String(),
		Data:            intent.ToData(it.Intent),
		LastConnectedAt: it.LastConnectedAt,
		Pinned:          it.Pinned,
	}
	if it.Pinned {
		t := it.PinnedAt
		j.PinnedAt = &t
	}
	return j
}

func handleRecentsList(ctx context.Context, env *cliEnv, args []string) int {
	fs := flag.NewFlagSet("recents list", flag.ContinueOnError)
	a, out, code := openRecentsApp(env, fs, args)
	if a == nil {
		return code
	}
	defer a.Close()

	items, err := a.recents.List(ctx, env.user)
	if err != nil {
		return out.Error(fmt.Sprintf("failed to list recents: %v", err), ErrCodeStorage)
	}
	rows := make([]recentJSON, len(items))
	var sb strings.Builder
	for i, it := range items {
		rows[i] = toRecentJSON(it)
		pin := " "
		if it.Pinned {
			pin = "*"
		}
		fmt.Fprintf(&sb, "%s %s %s %s\n", pin, cell(TruncateID(it.ID), 8),
			cell(it.LastConnectedAt.Local().Format("2006-01-02 15:04"), 16), it.Intent)
	}
	if len(items) == 0 {
		sb.WriteString("No recent connections.\n")
	}
	out.Print(sb.String(), rows)
	return 0
}

// handleRecentsConnect records the intent as a connection and prints the server it
// resolves to. The requested intent is stored, not the generalized one.
func handleRecentsConnect(ctx context.Context, env *cliEnv, args []string) int {
	fs := flag.NewFlagSet("recents connect", flag.ContinueOnError)
	var f intentFlags
	f.register(fs)
	fs.Usage = func() {
		fmt.Fprintln(env.stderr, "Usage: vpn-deck recents connect [intent flags] [--json]")
		fs.PrintDefaults()
	}
	a, out, code := openRecentsApp(env, fs, args)
	if a == nil {
		return code
	}
	defer a.Close()

	in, err := f.build()
	if err != nil {
		return out.Error(err.Error(), ErrCodeInvalidArgs)
	}
	p, err := a.resolver.Pick(ctx, in)
	if err != nil {
		return out.Error(fmt.Sprintf("resolve interrupted: %v", err), ErrCodeInterrupted)
	}
	if p.Unsatisfiable {
		return out.Error(fmt.Sprintf("%s cannot be satisfied (%s)", in, a.resolver.Availability(in)), ErrCodeUnsatisfied)
	}
	it, err := a.recents.InsertOrUpdateForConnection(ctx, env.user, in, time.Now())
	if err != nil {
		return out.Error(fmt.Sprintf("failed to record connection: %v", err), ErrCodeStorage)
	}

	j := newResolveJSON(in, p, a.resolver.Availability(p.Intent).String())
	var sb strings.Builder
	formatPick(&sb, j)
	fmt.Fprintf(&sb, "  Recent: %s\n", TruncateID(it.ID))
	out.Print(sb.String(), map[string]any{"recent": toRecentJSON(it), "resolved": j})
	return 0
}

func handleRecentsPin(ctx context.Context, env *cliEnv, args []string, pin bool) int {
	name := "recents unpin"
	if pin {
		name = "recents pin"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	a, out, code := openRecentsApp(env, fs, args)
	if a == nil {
		return code
	}
	defer a.Close()

	it, code := findRecent(ctx, a, out, env.user, fs.Arg(0))
	if it == nil {
		return code
	}
	if pin {
		err := a.recents.Pin(ctx, env.user, it.ID, time.Now())
		if err != nil {
			return out.Error(fmt.Sprintf("failed to pin: %v", err), ErrCodeStorage)
		}
		out.Success(fmt.Sprintf("Pinned %s", it.Intent), map[string]any{"success": true, "id": it.ID, "pinned": true})
		return 0
	}
	if err := a.recents.Unpin(ctx, env.user, it.ID); err != nil {
		return out.Error(fmt.Sprintf("failed to unpin: %v", err), ErrCodeStorage)
	}
	out.Success(fmt.Sprintf("Unpinned %s", it.Intent), map[string]any{"success": true, "id": it.ID, "pinned": false})
	return 0
}

func handleRecentsRemove(ctx context.Context, env *cliEnv, args []string) int {
	fs := flag.NewFlagSet("recents remove", flag.ContinueOnError)
	a, out, code := openRecentsApp(env, fs, args)
	if a == nil {
		return code
	}
	defer a.Close()

	it, code := findRecent(ctx, a, out, env.user, fs.Arg(0))
	if it == nil {
		return code
	}
	if err := a.recents.Remove(ctx, env.user, it.ID); err != nil {
		return out.Error(fmt.Sprintf("failed to remove: %v", err), ErrCodeStorage)
	}
	out.Success(fmt.Sprintf("Removed %s", it.Intent), map[string]any{"success": true, "id": it.ID})
	return 0
}

func findRecent(ctx context.Context, a *app, out *CLIOutput, user, identifier string) (*recents.Item, int) {
	items, err := a.recents.List(ctx, user)
	if err != nil {
		return nil, out.Error(fmt.Sprintf("failed to list recents: %v", err), ErrCodeStorage)
	}
	it, msg, errCode := ResolveRecent(identifier, items)
	if it == nil {
		return nil, out.Error(msg, errCode)
	}
	return it, 0
}

type reportJSON struct {
	CatalogVersion uint64   `json:"catalog_version"`
	MissingServer  []string `json:"missing_server"`
	Truncated      []string `json:"truncated"`
}

func handleRecentsValidate(ctx context.Context, env *cliEnv, args []string) int {
	fs := flag.NewFlagSet("recents validate", flag.ContinueOnError)
	a, out, code := openRecentsApp(env, fs, args)
	if a == nil {
		return code
	}
	defer a.Close()
	if !a.hasCatalog {
		return out.Error(fmt.Sprintf("no catalog at %s", a.catalogPath), ErrCodeNoCatalog)
	}

	rep, err := a.validator(nil).Validate(ctx)
	if err != nil {
		return out.Error(fmt.Sprintf("validation failed: %v", err), ErrCodeStorage)
	}
	j := reportJSON{
		CatalogVersion: rep.CatalogVersion,
		MissingServer:  append([]string{}, rep.MissingServer...),
		Truncated:      append([]string{}, rep.Truncated...),
	}
	out.Success(fmt.Sprintf("Removed %d recent(s): %d for missing servers, %d over the limit",
		rep.Removed(), len(rep.MissingServer), len(rep.Truncated)), j)
	return 0
}

func handleRecentsExport(ctx context.Context, env *cliEnv, args []string) int {
	fs := flag.NewFlagSet("recents export", flag.ContinueOnError)
	a, out, code := openRecentsApp(env, fs, args)
	if a == nil {
		return code
	}
	defer a.Close()

	if fs.NArg() == 0 {
		if _, err := a.db.ExportRecents(ctx, env.stdout); err != nil {
			return out.Error(fmt.Sprintf("export failed: %v", err), ErrCodeStorage)
		}
		return 0
	}
	path := fs.Arg(0)
	f, err := os.Create(path)
	if err != nil {
		return out.Error(fmt.Sprintf("export failed: %v", err), ErrCodeStorage)
	}
	n, err := a.db.ExportRecents(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return out.Error(fmt.Sprintf("export failed: %v", err), ErrCodeStorage)
	}
	out.Success(fmt.Sprintf("Exported %d recent(s) to %s", n, path), map[string]any{"success": true, "count": n, "path": path})
	return 0
}

func handleRecentsImport(ctx context.Context, env *cliEnv, args []string) int {
	fs := flag.NewFlagSet("recents import", flag.ContinueOnError)
	a, out, code := openRecentsApp(env, fs, args)
	if a == nil {
		return code
	}
	defer a.Close()
	if fs.NArg() != 1 {
		return out.Error("import file is required", ErrCodeInvalidArgs)
	}

	n, err := a.db.ImportRecents(ctx, fs.Arg(0))
	if err != nil {
		return out.Error(fmt.Sprintf("import failed: %v", err), ErrCodeStorage)
	}
	a.recents.Notify()
	out.Success(fmt.Sprintf("Imported %d recent(s)", n), map[string]any{"success": true, "count": n})
	return 0
}
