package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/document"
	"github.com/tusklang/tusk-go/internal/runtime"
	"github.com/tusklang/tusk-go/internal/telemetry"
)

// usageError maps to exit code 2.
type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func isUsageError(err error, target *usageError) bool {
	return errors.As(err, target)
}

// newRuntime wires the engine for the config directory from --config, or
// the current directory.
func newRuntime(cmd *cobra.Command) (*runtime.Runtime, error) {
	dir := flagConfig
	if dir == "" {
		dir = "."
	}
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	if flagQuiet {
		level = slog.LevelError
	}
	logger := telemetry.NewLogger(os.Stderr, level)
	return runtime.New(cmd.Context(), dir, runtime.WithLogger(logger))
}

// printJSON writes v as indented JSON to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printValue renders a single document value for humans, or JSON with
// --json.
func printValue(w io.Writer, v any) error {
	if flagJSON {
		return printJSON(w, v)
	}
	_, err := fmt.Fprintln(w, document.Stringify(v))
	return err
}

// printDocument renders a whole document.
func printDocument(w io.Writer, doc *document.Document) error {
	if flagJSON {
		return printJSON(w, doc.Nested())
	}
	for _, key := range doc.Keys() {
		v, _ := doc.Get(key)
		if _, err := fmt.Fprintf(w, "%s = %s\n", key, document.Stringify(v)); err != nil {
			return err
		}
	}
	return nil
}

// note prints a status line unless --quiet or --json is set.
func note(w io.Writer, format string, args ...any) {
	if flagQuiet || flagJSON {
		return
	}
	fmt.Fprintf(w, format+"\n", args...)
}
