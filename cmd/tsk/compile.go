package main

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/binary"
	"github.com/tusklang/tusk-go/internal/formatter"
	"github.com/tusklang/tusk-go/internal/parser"
)

func newCompileCmd() *cobra.Command {
	var output, password string

	cmd := &cobra.Command{
		Use:   "compile FILE",
		Short: "Compile a .tsk file to binary .tskb format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := compileBinary(args[0], output, password, false)
			if err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "compiled %s -> %s", args[0], out)
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{"input": args[0], "output": out})
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default FILE with .tskb)")
	cmd.Flags().StringVar(&password, "password", "", "Encrypt the payload with this password")
	return cmd
}

func newOptimizeCmd() *cobra.Command {
	var output, password string

	cmd := &cobra.Command{
		Use:   "optimize FILE",
		Short: "Compile with canonical re-printing applied first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := compileBinary(args[0], output, password, true)
			if err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "optimized %s -> %s", args[0], out)
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{"input": args[0], "output": out})
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default FILE with .tskb)")
	cmd.Flags().StringVar(&password, "password", "", "Encrypt the payload with this password")
	return cmd
}

// compileBinary turns .tsk source into a .tskb file. Optimizing re-prints
// the AST first, which drops comments and normalizes whitespace.
func compileBinary(input, output, password string, optimize bool) (string, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", input, err)
	}

	f, errs := parser.Parse(string(data), input)
	if len(errs) > 0 {
		return "", errs[0]
	}

	payload := data
	if optimize {
		payload = []byte(formatter.Format(f))
	}

	opts := binary.Options{
		Compress: true,
		Metadata: binary.Metadata{
			Source:   input,
			Creator:  "tsk " + version,
			KeyCount: len(f.Statements),
		},
	}
	if password != "" {
		key := sha256.Sum256([]byte(password))
		opts.EncryptKey = key[:]
	}

	if output == "" {
		output = strings.TrimSuffix(input, ".tsk") + ".tskb"
	}

	out, err := os.Create(output)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", output, err)
	}
	defer out.Close()

	if err := binary.Write(out, payload, opts); err != nil {
		return "", fmt.Errorf("write %s: %w", output, err)
	}
	return output, nil
}

// readBinary loads a .tskb payload, decrypting when a password is given.
func readBinary(path, password string) ([]byte, *binary.Header, *binary.Metadata, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer in.Close()

	var opts binary.ReadOptions
	if password != "" {
		key := sha256.Sum256([]byte(password))
		opts.DecryptKey = key[:]
	}
	return binary.Read(in, opts)
}
