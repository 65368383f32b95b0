package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations through the configured adapter",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the configured database connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			settings := rt.Settings().Database
			connected := rt.DB() != nil
			if connected {
				connected = rt.DB().Ping(cmd.Context()) == nil
			}

			out := map[string]any{
				"type":      settings.Type,
				"database":  settings.Database,
				"host":      settings.Host,
				"file":      settings.File,
				"connected": connected,
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "type:      %s\n", orDefault(settings.Type, "sqlite"))
			fmt.Fprintf(cmd.OutOrStdout(), "connected: %v\n", connected)
			return nil
		},
	}

	health := &cobra.Command{
		Use:   "health",
		Short: "Ping the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.DB() == nil {
				return fmt.Errorf("no database configured")
			}
			if err := rt.DB().Ping(cmd.Context()); err != nil {
				return fmt.Errorf("database unhealthy: %w", err)
			}
			note(cmd.OutOrStdout(), "healthy")
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{"status": "healthy"})
			}
			return nil
		},
	}

	query := &cobra.Command{
		Use:   "query SQL",
		Short: "Run a statement and print its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.DB() == nil {
				return fmt.Errorf("no database configured")
			}
			rows, err := rt.DB().Query(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate FILE",
		Short: "Run the statements in a SQL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.DB() == nil {
				return fmt.Errorf("no database configured")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			applied := 0
			for _, stmt := range splitStatements(string(data)) {
				if _, err := rt.DB().Exec(cmd.Context(), stmt); err != nil {
					return fmt.Errorf("statement %d: %w", applied+1, err)
				}
				applied++
			}
			note(cmd.OutOrStdout(), "%d statement(s) applied", applied)
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]int{"applied": applied})
			}
			return nil
		},
	}

	backup := &cobra.Command{
		Use:   "backup [DEST]",
		Short: "Copy the sqlite database file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			src := rt.Settings().Database.File
			if src == "" {
				src = "./tusklang.db"
			}
			dst := src + ".backup"
			if len(args) == 1 {
				dst = args[0]
			}
			if err := copyFile(src, dst); err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "backed up %s -> %s", src, dst)
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore SRC",
		Short: "Restore the sqlite database file from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			dst := rt.Settings().Database.File
			if dst == "" {
				dst = "./tusklang.db"
			}
			if err := copyFile(args[0], dst); err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "restored %s -> %s", args[0], dst)
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default sqlite database",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.DB() == nil {
				return fmt.Errorf("no database configured; set database.type in the config")
			}
			if err := rt.DB().Ping(cmd.Context()); err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "database ready")
			return nil
		},
	}

	console := &cobra.Command{
		Use:   "console",
		Short: "Interactive SQL console",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.DB() == nil {
				return fmt.Errorf("no database configured")
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			fmt.Fprint(out, "sql> ")
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "exit" || line == "quit" || line == `\q` {
					return nil
				}
				if line != "" {
					rows, err := rt.DB().Query(cmd.Context(), line)
					if err != nil {
						fmt.Fprintf(out, "error: %v\n", err)
					} else {
						_ = printJSON(out, rows)
					}
				}
				fmt.Fprint(out, "sql> ")
			}
			return scanner.Err()
		},
	}

	cmd.AddCommand(status, health, query, migrate, backup, restore, initCmd, console)
	return cmd
}

func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" && !strings.HasPrefix(stmt, "--") {
			out = append(out, stmt)
		}
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return out.Sync()
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
