package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/css"
)

func newCSSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "css",
		Short: "CSS shortcode utilities",
	}

	var output string
	expand := &cobra.Command{
		Use:   "expand FILE",
		Short: "Expand shortcode properties in a stylesheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := css.ExpandFile(args[0], output)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"input":  args[0],
					"output": out,
				})
			}
			note(cmd.OutOrStdout(), "expanded %s -> %s", args[0], out)
			return nil
		},
	}
	expand.Flags().StringVarP(&output, "output", "o", "", "Output path (default FILE.expanded.css)")

	mapCmd := &cobra.Command{
		Use:   "map",
		Short: "Show the shortcode mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			table := css.Map()
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), table)
			}
			for _, short := range css.Shortcodes() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-4s %s\n", short, table[short])
			}
			return nil
		},
	}

	cmd.AddCommand(expand, mapCmd)
	return cmd
}
