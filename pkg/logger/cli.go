package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCLI is the logger commands start with: charm output on a terminal,
// JSON when stdout is piped or collected.
func NewCLI(debug bool) *slog.Logger {
	return newCLI(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())), debug)
}

func newCLI(w io.Writer, interactive, debug bool) *slog.Logger {
	return New(
		WithWriter(w),
		WithDebug(debug),
		WithPretty(interactive),
		WithJSON(!interactive),
		WithSource(debug && !interactive),
	)
}

// NewWithFile is NewCLI plus JSON records appended to path. The returned
// closer closes the file; it is a no-op when path is empty.
func NewWithFile(debug bool, path string) (*slog.Logger, io.Closer, error) {
	cli := NewCLI(debug)
	if path == "" {
		return cli, io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := New(WithWriter(f), WithJSON(true), WithDebug(debug))
	return Multi(cli, file), f, nil
}
