package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/asheshgoplani/vpn-deck/internal/recents"
	"github.com/asheshgoplani/vpn-deck/internal/search"
)

// normalizeArgs reorders args so flags come before positional arguments.
// Go's flag package stops parsing at the first non-flag argument, which means
// "search warsaw --json" would silently ignore --json.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)
			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") {
				continue
			}
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// cliEnv carries the output streams of one invocation.
type cliEnv struct {
	stdout io.Writer
	stderr io.Writer
	user   string
}

// CLIOutput handles consistent output formatting across all CLI commands
type CLIOutput struct {
	w, errW  io.Writer
	jsonMode bool
	color    bool
}

// NewCLIOutput creates a new CLI output handler
func NewCLIOutput(env *cliEnv, jsonMode bool) *CLIOutput {
	return &CLIOutput{w: env.stdout, errW: env.stderr, jsonMode: jsonMode, color: isTerminal(env.stdout)}
}

// Success prints a success message or JSON response
func (c *CLIOutput) Success(message string, data any) {
	if c.jsonMode {
		c.printJSON(data)
		return
	}
	fmt.Fprintf(c.w, "%s %s\n", successSymbol, message)
}

// Error prints an error message or JSON error response and returns the exit code.
func (c *CLIOutput) Error(message string, code string) int {
	if c.jsonMode {
		c.printJSON(map[string]any{
			"success": false,
			"error":   message,
			"code":    code,
		})
		return 1
	}
	fmt.Fprintf(c.errW, "Error: %s\n", message)
	return 1
}

// Print prints data (human-readable or JSON)
func (c *CLIOutput) Print(humanOutput string, jsonData any) {
	if c.jsonMode {
		c.printJSON(jsonData)
		return
	}
	fmt.Fprint(c.w, humanOutput)
}

func (c *CLIOutput) printJSON(data any) {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(c.errW, "Error: failed to format JSON: %v\n", err)
		return
	}
	fmt.Fprintln(c.w, string(output))
}

// Symbols for human-readable output
const (
	successSymbol = "✓"
	bulletSymbol  = "•"
	onlineSymbol  = "●"
	offlineSymbol = "○"
)

// Error codes
const (
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeAmbiguous   = "AMBIGUOUS"
	ErrCodeInvalidArgs = "INVALID_ARGS"
	ErrCodeNoCatalog   = "NO_CATALOG"
	ErrCodeStorage     = "STORAGE"
	ErrCodeUnsatisfied = "UNSATISFIABLE"
	ErrCodeInterrupted = "INTERRUPTED"
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var matchStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7"))

// highlight renders text with the matched span emphasized. Without color the span is
// wrapped in brackets.
func (c *CLIOutput) highlight(text string, m *search.TextMatch) string {
	if m == nil {
		return text
	}
	before, match, after := m.Parts()
	if c.color {
		return before + matchStyle.Render(match) + after
	}
	return before + "[" + match + "]" + after
}

// cell truncates s to width display columns and pads it. Wide runes count double.
func cell(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

// StatusSymbol returns the symbol for a maintenance flag
func StatusSymbol(inMaintenance bool) string {
	if inMaintenance {
		return offlineSymbol
	}
	return onlineSymbol
}

// TruncateID returns a shortened ID for display
func TruncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ResolveRecent finds a recent by id or id prefix (at least 4 characters).
func ResolveRecent(identifier string, items []recents.Item) (*recents.Item, string, string) {
	if identifier == "" {
		return nil, "recent id is required", ErrCodeInvalidArgs
	}
	for i := range items {
		if items[i].ID == identifier {
			return &items[i], "", ""
		}
	}
	var matches []*recents.Item
	if len(identifier) >= 4 {
		for i := range items {
			if strings.HasPrefix(items[i].ID, identifier) {
				matches = append(matches, &items[i])
			}
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], "", ""
	case 0:
		return nil, fmt.Sprintf("recent '%s' not found", identifier), ErrCodeNotFound
	}
	var names []string
	for _, m := range matches {
		names = append(names, fmt.Sprintf("%s (%s)", m.Intent, m.ID))
	}
	return nil, fmt.Sprintf("'%s' matches multiple recents:\n  - %s\nUse a longer id.",
		identifier, strings.Join(names, "\n  - ")), ErrCodeAmbiguous
}
