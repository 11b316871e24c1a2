// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"text/tabwriter"

	"golang.org/x/term"
)

// Output is where commands print results.
type Output struct {
	Writer io.Writer

	// JSON selects machine-readable output.
	JSON bool
}

// EmitJSON writes value as indented JSON when JSON output is selected.
// It reports whether it did, so text formatting can be skipped.
func (o *Output) EmitJSON(value any) (bool, error) {
	if !o.JSON {
		return false, nil
	}
	return true, o.WriteJSON(value)
}

// WriteJSON writes value as indented JSON. A nil slice is written as
// [] rather than null.
func (o *Output) WriteJSON(value any) error {
	if v := reflect.ValueOf(value); v.Kind() == reflect.Slice && v.IsNil() {
		value = reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	encoder := json.NewEncoder(o.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// Printf writes formatted text.
func (o *Output) Printf(format string, args ...any) {
	fmt.Fprintf(o.Writer, format, args...)
}

// Table returns a tab-aligned writer over the output. Flush it when
// done.
func (o *Output) Table() *tabwriter.Writer {
	return tabwriter.NewWriter(o.Writer, 0, 0, 2, ' ', 0)
}

// IsTerminal reports whether the output is an interactive terminal.
func (o *Output) IsTerminal() bool {
	file, ok := o.Writer.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// NewLogger returns the logger commands report progress with: text
// when stderr is a terminal, JSON (the daemon's format) otherwise.
func NewLogger(verbose bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		options.Level = slog.LevelDebug
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}
