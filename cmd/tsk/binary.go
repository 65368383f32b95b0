package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/binary"
	"github.com/tusklang/tusk-go/internal/parser"
)

func newBinaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "binary",
		Short: "Work with binary .tskb files",
	}

	var compileOut, compilePassword string
	compile := &cobra.Command{
		Use:   "compile FILE",
		Short: "Compile .tsk to .tskb",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := compileBinary(args[0], compileOut, compilePassword, false)
			if err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "compiled %s -> %s", args[0], out)
			return nil
		},
	}
	compile.Flags().StringVarP(&compileOut, "output", "o", "", "Output path")
	compile.Flags().StringVar(&compilePassword, "password", "", "Encrypt with this password")

	var execPassword string
	execute := &cobra.Command{
		Use:   "execute FILE",
		Short: "Load a .tskb file and evaluate its document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, _, _, err := readBinary(args[0], execPassword)
			if err != nil {
				return err
			}

			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			doc, err := rt.EvalSource(cmd.Context(), string(payload), args[0])
			if err != nil {
				return err
			}
			return printDocument(cmd.OutOrStdout(), doc)
		},
	}
	execute.Flags().StringVar(&execPassword, "password", "", "Decrypt with this password")

	info := &cobra.Command{
		Use:   "info FILE",
		Short: "Print .tskb header and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			header, meta, err := binary.Inspect(in)
			if err != nil {
				return err
			}

			out := map[string]any{
				"version":     header.Version,
				"compressed":  header.Compression != 0,
				"encrypted":   header.Encryption != 0,
				"signed":      header.Signature != 0,
				"data_size":   header.DataSize,
				"timestamp":   header.Timestamp.Format(time.RFC3339),
				"source":      meta.Source,
				"creator":     meta.Creator,
				"key_count":   meta.KeyCount,
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version:    %d\n", header.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "compressed: %v\n", header.Compression != 0)
			fmt.Fprintf(cmd.OutOrStdout(), "encrypted:  %v\n", header.Encryption != 0)
			fmt.Fprintf(cmd.OutOrStdout(), "signed:     %v\n", header.Signature != 0)
			fmt.Fprintf(cmd.OutOrStdout(), "data size:  %d bytes\n", header.DataSize)
			fmt.Fprintf(cmd.OutOrStdout(), "timestamp:  %s\n", header.Timestamp.Format(time.RFC3339))
			if meta.Source != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "source:     %s\n", meta.Source)
			}
			if meta.Creator != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "creator:    %s\n", meta.Creator)
			}
			return nil
		},
	}

	var validatePassword string
	validate := &cobra.Command{
		Use:   "validate FILE",
		Short: "Verify a .tskb file's checksum and payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, _, _, err := readBinary(args[0], validatePassword)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if _, errs := parser.Parse(string(payload), args[0]); len(errs) > 0 {
				return fmt.Errorf("%s: payload does not parse: %w", args[0], errs[0])
			}
			note(cmd.OutOrStdout(), "%s: ok", args[0])
			return nil
		},
	}
	validate.Flags().StringVar(&validatePassword, "password", "", "Decrypt with this password")

	var benchRuns int
	benchmark := &cobra.Command{
		Use:   "benchmark FILE",
		Short: "Compare text parse time against binary load time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			tskb, err := compileBinary(args[0], strings.TrimSuffix(args[0], ".tsk")+".bench.tskb", "", false)
			if err != nil {
				return err
			}
			defer os.Remove(tskb)

			textStart := time.Now()
			for i := 0; i < benchRuns; i++ {
				if _, errs := parser.Parse(string(source), args[0]); len(errs) > 0 {
					return errs[0]
				}
			}
			textDur := time.Since(textStart)

			binStart := time.Now()
			for i := 0; i < benchRuns; i++ {
				if _, _, _, err := readBinary(tskb, ""); err != nil {
					return err
				}
			}
			binDur := time.Since(binStart)

			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"runs":      benchRuns,
					"text_ns":   textDur.Nanoseconds(),
					"binary_ns": binDur.Nanoseconds(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "text parse:  %s (%d runs)\n", textDur, benchRuns)
			fmt.Fprintf(cmd.OutOrStdout(), "binary load: %s (%d runs)\n", binDur, benchRuns)
			return nil
		},
	}
	benchmark.Flags().IntVar(&benchRuns, "runs", 100, "Iterations per format")

	var extractOut, extractPassword string
	extract := &cobra.Command{
		Use:   "extract FILE",
		Short: "Extract the source payload from a .tskb file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, _, _, err := readBinary(args[0], extractPassword)
			if err != nil {
				return err
			}
			if extractOut == "" {
				_, err = cmd.OutOrStdout().Write(payload)
				return err
			}
			if err := os.WriteFile(extractOut, payload, 0o644); err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "extracted %s -> %s", args[0], extractOut)
			return nil
		},
	}
	extract.Flags().StringVarP(&extractOut, "output", "o", "", "Output path (stdout when empty)")
	extract.Flags().StringVar(&extractPassword, "password", "", "Decrypt with this password")

	var convertPassword string
	convert := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert between .tsk and .tskb by extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.HasSuffix(args[0], ".tskb") {
				payload, _, _, err := readBinary(args[0], convertPassword)
				if err != nil {
					return err
				}
				out := strings.TrimSuffix(args[0], ".tskb") + ".tsk"
				if err := os.WriteFile(out, payload, 0o644); err != nil {
					return err
				}
				note(cmd.OutOrStdout(), "converted %s -> %s", args[0], out)
				return nil
			}
			out, err := compileBinary(args[0], "", convertPassword, false)
			if err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "converted %s -> %s", args[0], out)
			return nil
		},
	}
	convert.Flags().StringVar(&convertPassword, "password", "", "Password for encrypted payloads")

	cmd.AddCommand(compile, execute, info, validate, benchmark, extract, convert)
	return cmd
}
