package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/asheshgoplani/vpn-deck/internal/config"
	"github.com/asheshgoplani/vpn-deck/internal/logging"
)

// writeCrashDump writes the log ring buffer to crash-dump-<unix>.jsonl in the vpn-deck
// directory. A non-empty trailer is appended after the records.
func writeCrashDump(trailer string) (string, error) {
	dir, err := config.GetVPNDeckDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
	if err := logging.DumpRingBuffer(path); err != nil {
		return "", err
	}
	if trailer == "" {
		return path, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return path, err
	}
	defer f.Close()
	_, err = io.WriteString(f, trailer)
	return path, err
}

// recoverCrash turns a panic into exit code 1 and a crash dump. It must be deferred
// directly by the function that may panic.
func recoverCrash(stderr io.Writer, code *int) {
	r := recover()
	if r == nil {
		return
	}
	stack := debug.Stack()
	cliLog.Error("panic", slog.String("panic", fmt.Sprint(r)))
	path, err := writeCrashDump(fmt.Sprintf("panic: %v\n\n%s", r, stack))
	if err != nil {
		fmt.Fprintf(stderr, "vpn-deck crashed: %v (crash dump failed: %v)\n", r, err)
	} else {
		fmt.Fprintf(stderr, "vpn-deck crashed: %v\nLog dump: %s\n", r, path)
	}
	*code = 1
}

// dumpOnSignal writes a crash dump every time the process receives SIGUSR1, until ctx is done.
func dumpOnSignal(ctx context.Context) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		defer signal.Stop(usr1)
		for {
			select {
			case <-ctx.Done():
				return
			case <-usr1:
				path, err := writeCrashDump("")
				if err != nil {
					cliLog.Error("crash_dump_failed", slog.String("error", err.Error()))
					continue
				}
				cliLog.Info("crash_dump_written", slog.String("path", path))
			}
		}
	}()
}
