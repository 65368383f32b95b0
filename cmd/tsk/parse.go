package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/formatter"
	"github.com/tusklang/tusk-go/internal/parser"
)

func newParseCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse and evaluate a .tsk file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			doc, err := rt.LoadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output == "json" || flagJSON {
				return printJSON(cmd.OutOrStdout(), doc.Nested())
			}
			return printDocument(cmd.OutOrStdout(), doc)
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "Output format (json)")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get FILE KEY",
		Short: "Print one value from a .tsk file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			doc, err := rt.LoadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			v, ok := doc.Get(args[1])
			if !ok {
				return fmt.Errorf("key %q not found in %s", args[1], args[0])
			}
			return printValue(cmd.OutOrStdout(), v)
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set FILE KEY VALUE",
		Short: "Set a key in a .tsk file and rewrite it canonically",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, key, value := args[0], args[1], args[2]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			f, errs := parser.Parse(string(data), path)
			if len(errs) > 0 {
				return errs[0]
			}

			updated, err := parser.SetKey(f, key, value)
			if err != nil {
				return err
			}

			if err := os.WriteFile(path, []byte(formatter.Format(updated)), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			note(cmd.OutOrStdout(), "%s = %s", key, value)
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a .tsk file for syntax errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			_, errs := parser.Parse(string(data), args[0])
			if len(errs) == 0 {
				if flagJSON {
					return printJSON(cmd.OutOrStdout(), map[string]any{"valid": true})
				}
				note(cmd.OutOrStdout(), "%s: ok", args[0])
				return nil
			}

			if flagJSON {
				msgs := make([]string, len(errs))
				for i, e := range errs {
					msgs[i] = e.Error()
				}
				_ = printJSON(cmd.OutOrStdout(), map[string]any{"valid": false, "errors": msgs})
			} else {
				for _, e := range errs {
					fmt.Fprintln(cmd.ErrOrStderr(), e.Error())
				}
			}
			return fmt.Errorf("%s: %d error(s)", args[0], len(errs))
		},
	}
}

func newFmtCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "fmt FILE",
		Short: "Re-print a .tsk file in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			f, errs := parser.Parse(string(data), args[0])
			if len(errs) > 0 {
				return errs[0]
			}

			out := formatter.Format(f)
			if write {
				return os.WriteFile(args[0], []byte(out), 0o644)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "Rewrite the file in place")
	return cmd
}
