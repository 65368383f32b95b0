package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/tusklang/tusk-go/internal/formatter"
)

func newConvertCmd() *cobra.Command {
	var from, to, output string

	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert between tsk, json, yaml and toml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if from == "" {
				from = formatFromExt(input)
			}
			if to == "" {
				return usageErrorf("--to is required")
			}

			values, err := readAs(cmd, input, from)
			if err != nil {
				return err
			}

			rendered, err := renderAs(values, to)
			if err != nil {
				return err
			}

			if output == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
				return err
			}
			if err := os.WriteFile(output, []byte(rendered), 0o644); err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "wrote %s", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Input format (tsk|json|yaml|toml); inferred from extension")
	cmd.Flags().StringVar(&to, "to", "", "Output format (tsk|json|yaml|toml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (stdout when empty)")
	return cmd
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "tsk"
	}
}

func readAs(cmd *cobra.Command, path, format string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	switch format {
	case "tsk":
		rt, err := newRuntime(cmd)
		if err != nil {
			return nil, err
		}
		defer rt.Close()
		doc, err := rt.EvalSource(cmd.Context(), string(data), path)
		if err != nil {
			return nil, err
		}
		return doc.Nested(), nil

	case "json":
		var values map[string]any
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return values, nil

	case "yaml":
		// Through the JSON bridge so nested keys are strings and numbers
		// carry JSON types, whatever the YAML says.
		var values map[string]any
		if err := sigsyaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return values, nil

	case "toml":
		var values map[string]any
		if err := toml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
		return values, nil
	}
	return nil, usageErrorf("unknown input format %q", format)
}

func renderAs(values map[string]any, format string) (string, error) {
	switch format {
	case "tsk":
		return formatter.FormatMap(values), nil

	case "json":
		out, err := json.MarshalIndent(values, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out) + "\n", nil

	case "yaml":
		out, err := yaml.Marshal(values)
		if err != nil {
			return "", err
		}
		return string(out), nil

	case "toml":
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(values); err != nil {
			return "", err
		}
		return sb.String(), nil
	}
	return "", usageErrorf("unknown output format %q", format)
}
