package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/peanut"
)

func newPeanutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peanuts",
		Short: "Manage the peanut configuration hierarchy",
	}

	compile := &cobra.Command{
		Use:   "compile FILE",
		Short: "Compile a .peanuts or peanut.tsk file to binary .pnt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			dst := filepath.Join(filepath.Dir(src), "peanut.pnt")
			if err := peanut.CompileFile(src, dst); err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "compiled %s -> %s", src, dst)
			return nil
		},
	}

	autoCompile := &cobra.Command{
		Use:   "auto-compile [PATH]",
		Short: "Compile every stale .peanuts/peanut.tsk under a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			compiled := 0
			err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return err
				}
				name := d.Name()
				if name != "peanut.tsk" && !strings.HasSuffix(name, ".peanuts") {
					return nil
				}
				dst := filepath.Join(filepath.Dir(path), "peanut.pnt")
				if err := peanut.CompileFile(path, dst); err != nil {
					return fmt.Errorf("compile %s: %w", path, err)
				}
				note(cmd.OutOrStdout(), "compiled %s", path)
				compiled++
				return nil
			})
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]int{"compiled": compiled})
			}
			note(cmd.OutOrStdout(), "%d file(s) compiled", compiled)
			return nil
		},
	}

	load := &cobra.Command{
		Use:   "load FILE",
		Short: "Load and display a binary .pnt file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := peanut.ReadBinary(args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), values)
			}
			ts, err := peanut.BinaryTimestamp(args[0])
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "# compiled %s\n", ts.Format("2006-01-02 15:04:05"))
			}
			return printJSON(cmd.OutOrStdout(), values)
		},
	}

	cmd.AddCommand(compile, autoCompile, load)
	return cmd
}
