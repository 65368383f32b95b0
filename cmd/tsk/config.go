package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/document"
	"github.com/tusklang/tusk-go/internal/peanut"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Query the peanut configuration hierarchy",
	}

	get := &cobra.Command{
		Use:   "get KEY",
		Short: "Print one value from the merged hierarchy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPeanut()
			if err != nil {
				return err
			}
			v := cfg.Get(args[0])
			if v == nil {
				return fmt.Errorf("key %q not found", args[0])
			}
			return printValue(cmd.OutOrStdout(), v)
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a key in the nearest peanut.tsk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := flagConfig
			if dir == "" {
				dir = "."
			}
			path := filepath.Join(dir, "peanut.tsk")
			return setFileKey(cmd, path, args[0], args[1])
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print every merged key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPeanut()
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), cfg.Values())
			}
			for _, key := range cfg.Keys() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, document.Stringify(cfg.Get(key)))
			}
			return nil
		},
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Show which files contribute to the hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPeanut()
			if err != nil {
				return err
			}
			sources := cfg.Sources()
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), sources)
			}
			for _, src := range sources {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", src.Path)
			}
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Reload the hierarchy and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadPeanut(); err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "ok")
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]bool{"valid": true})
			}
			return nil
		},
	}

	compile := &cobra.Command{
		Use:   "compile",
		Short: "Compile every hierarchy source to binary .pnt",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPeanut()
			if err != nil {
				return err
			}
			compiled := 0
			for _, src := range cfg.Sources() {
				if filepath.Ext(src.Path) == ".pnt" {
					continue
				}
				dst := filepath.Join(filepath.Dir(src.Path), "peanut.pnt")
				if err := peanut.CompileFile(src.Path, dst); err != nil {
					return fmt.Errorf("compile %s: %w", src.Path, err)
				}
				note(cmd.OutOrStdout(), "compiled %s", src.Path)
				compiled++
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]int{"compiled": compiled})
			}
			return nil
		},
	}

	docs := &cobra.Command{
		Use:   "docs",
		Short: "Describe the hierarchy's sections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPeanut()
			if err != nil {
				return err
			}
			sections := map[string]int{}
			for _, key := range cfg.Keys() {
				root, _, _ := strings.Cut(key, ".")
				sections[root]++
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), sections)
			}
			names := make([]string, 0, len(sections))
			for name := range sections {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d key(s)\n", name, sections[name])
			}
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Hierarchy size summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPeanut()
			if err != nil {
				return err
			}
			out := map[string]int{
				"keys":    len(cfg.Keys()),
				"sources": len(cfg.Sources()),
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "keys:    %d\nsources: %d\n", out["keys"], out["sources"])
			return nil
		},
	}

	export := &cobra.Command{
		Use:   "export [FILE]",
		Short: "Export the merged hierarchy as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPeanut()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return printJSON(cmd.OutOrStdout(), cfg.Values())
			}
			data, err := json.MarshalIndent(cfg.Values(), "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], append(data, '\n'), 0o644); err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "exported %s", args[0])
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import JSON values into the nearest peanut.tsk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var values map[string]any
			if err := json.Unmarshal(data, &values); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			dir := flagConfig
			if dir == "" {
				dir = "."
			}
			path := filepath.Join(dir, "peanut.tsk")
			imported := 0
			for section, v := range values {
				entries, isMap := v.(map[string]any)
				if !isMap {
					if err := setFileKey(cmd, path, section, document.Stringify(v)); err != nil {
						return err
					}
					imported++
					continue
				}
				for key, ev := range entries {
					if err := setFileKey(cmd, path, section+"."+key, document.Stringify(ev)); err != nil {
						return err
					}
					imported++
				}
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]int{"imported": imported})
			}
			note(cmd.OutOrStdout(), "%d key(s) imported into %s", imported, path)
			return nil
		},
	}

	clearCache := &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete compiled .pnt files in the hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPeanut()
			if err != nil {
				return err
			}
			removed := 0
			for _, src := range cfg.Sources() {
				pnt := filepath.Join(filepath.Dir(src.Path), "peanut.pnt")
				if err := os.Remove(pnt); err == nil {
					note(cmd.OutOrStdout(), "removed %s", pnt)
					removed++
				}
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]int{"removed": removed})
			}
			return nil
		},
	}

	cmd.AddCommand(get, set, list, check, validate, compile, docs, stats, export, importCmd, clearCache)
	return cmd
}

func loadPeanut() (*peanut.Config, error) {
	dir := flagConfig
	if dir == "" {
		dir = "."
	}
	return peanut.Load(dir)
}

// setFileKey updates one key in a .tsk file, creating the file when
// missing.
func setFileKey(cmd *cobra.Command, path, key, value string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return err
		}
	}
	setCmd := newSetCmd()
	setCmd.SetContext(cmd.Context())
	setCmd.SetOut(cmd.OutOrStdout())
	setCmd.SetErr(cmd.ErrOrStderr())
	return setCmd.RunE(setCmd, []string{path, key, value})
}
