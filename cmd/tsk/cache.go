package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the @cache store",
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Drop all cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			dropped := rt.Cache().Clear()
			rt.CrossFile().Invalidate()
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]int{"dropped": dropped})
			}
			note(cmd.OutOrStdout(), "%d entries dropped", dropped)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show cache entry counts and hit rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, hits, misses := rt.Cache().Stats()
			cfEntries, cfFiles := rt.CrossFile().Stats()
			out := map[string]any{
				"entries":          entries,
				"hits":             hits,
				"misses":           misses,
				"crossfile_keys":   cfEntries,
				"crossfile_files":  cfFiles,
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entries:         %d\n", entries)
			fmt.Fprintf(cmd.OutOrStdout(), "hits:            %d\n", hits)
			fmt.Fprintf(cmd.OutOrStdout(), "misses:          %d\n", misses)
			fmt.Fprintf(cmd.OutOrStdout(), "crossfile keys:  %d\n", cfEntries)
			fmt.Fprintf(cmd.OutOrStdout(), "crossfile files: %d\n", cfFiles)
			return nil
		},
	}

	warm := &cobra.Command{
		Use:   "warm FILE...",
		Short: "Evaluate files so their @cache values are populated",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			for _, path := range args {
				if _, err := rt.LoadFile(cmd.Context(), path); err != nil {
					return fmt.Errorf("warm %s: %w", path, err)
				}
				note(cmd.OutOrStdout(), "warmed %s", path)
			}
			entries, _, _ := rt.Cache().Stats()
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]int{"entries": entries})
			}
			return nil
		},
	}

	redis := &cobra.Command{
		Use:   "redis",
		Short: "Redis cache tier",
	}
	redisInfo := &cobra.Command{
		Use:   "info",
		Short: "Show the Redis tier configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			host := ""
			if pn := rt.Peanut(); pn != nil {
				host = pn.GetString("redis.host")
			}
			out := map[string]any{
				"configured": host != "",
				"host":       host,
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			if host == "" {
				note(cmd.OutOrStdout(), "no redis tier configured (set redis.host)")
			} else {
				note(cmd.OutOrStdout(), "redis tier: %s", host)
			}
			return nil
		},
	}
	redis.AddCommand(redisInfo)

	cmd.AddCommand(clear, status, warm, redis)
	return cmd
}
