package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"lang":    langVersion,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tsk version %s (lang %s)\n", version, langVersion)
			return nil
		},
	}
}
