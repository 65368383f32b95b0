// Package main is the entry point for the tsk CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version     = "1.0.0"
	langVersion = "2.0"
)

// Global flags.
var (
	flagVerbose bool
	flagQuiet   bool
	flagJSON    bool
	flagConfig  string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tsk",
		Short: "TuskLang configuration language toolkit",
		Long: `tsk parses and evaluates TuskLang (.tsk) configuration files,
resolves @operator expressions, compiles binary .tskb bundles,
manages the peanut configuration hierarchy, and serves documents
over HTTP.

Run with no arguments to start the interactive REPL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd)
		},
	}

	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose output")
	root.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "Suppress non-essential output")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "Emit machine-readable JSON")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Working directory for the config hierarchy")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newParseCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newSetCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newFmtCmd())
	root.AddCommand(newConvertCmd())
	root.AddCommand(newCompileCmd())
	root.AddCommand(newOptimizeCmd())
	root.AddCommand(newBinaryCmd())
	root.AddCommand(newPeanutsCmd())
	root.AddCommand(newDBCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newSecurityCmd())
	root.AddCommand(newLicenseCmd())
	root.AddCommand(newAICmd())
	root.AddCommand(newCSSCmd())
	root.AddCommand(newServicesCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newTestCmd())

	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var uerr usageError
		if isUsageError(err, &uerr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
