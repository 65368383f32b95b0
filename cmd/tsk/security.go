package main

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/ast"
	"github.com/tusklang/tusk-go/internal/parser"
	"github.com/tusklang/tusk-go/internal/protection"
)

// secretPatterns flag values that look like credentials during scans.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password|passwd|secret|token|api_?key)\s*[=:]\s*"[^"]+"`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`-----BEGIN (RSA |EC )?PRIVATE KEY-----`),
}

func newSecurityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security",
		Short: "Encrypt, hash and audit configuration values",
	}

	var purpose string
	encrypt := &cobra.Command{
		Use:   "encrypt VALUE",
		Short: "Encrypt a value with the master key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := protection.FromEnv()
			if err != nil {
				return err
			}
			out, err := p.Encrypt(args[0], purpose)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	encrypt.Flags().StringVar(&purpose, "purpose", "config", "Key derivation purpose")

	var decPurpose string
	decrypt := &cobra.Command{
		Use:   "decrypt VALUE",
		Short: "Decrypt a value with the master key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := protection.FromEnv()
			if err != nil {
				return err
			}
			out, err := p.Decrypt(args[0], decPurpose)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	decrypt.Flags().StringVar(&decPurpose, "purpose", "config", "Key derivation purpose")

	hash := &cobra.Command{
		Use:   "hash VALUE",
		Short: "SHA-256 hash a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), protection.Hash(args[0]))
			return nil
		},
	}

	scan := &cobra.Command{
		Use:   "scan [PATH]",
		Short: "Scan .tsk files for values that look like secrets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			findings := []map[string]any{}
			err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() || !strings.HasSuffix(path, ".tsk") {
					return err
				}
				file, err := os.Open(path)
				if err != nil {
					return err
				}
				defer file.Close()

				scanner := bufio.NewScanner(file)
				lineNo := 0
				for scanner.Scan() {
					lineNo++
					line := scanner.Text()
					for _, pat := range secretPatterns {
						if pat.MatchString(line) {
							findings = append(findings, map[string]any{
								"file": path,
								"line": lineNo,
							})
							break
						}
					}
				}
				return scanner.Err()
			})
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"findings": findings})
			}
			for _, f := range findings {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%d: possible secret in plain text\n", f["file"], f["line"])
			}
			if len(findings) > 0 {
				return fmt.Errorf("%d possible secret(s) found", len(findings))
			}
			note(cmd.OutOrStdout(), "no plain-text secrets found")
			return nil
		},
	}

	audit := &cobra.Command{
		Use:   "audit FILE",
		Short: "Report a file's operator and variable usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			f, errs := parser.Parse(string(data), args[0])
			if len(errs) > 0 {
				return errs[0]
			}

			report := auditFile(f)
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "statements: %d\n", report["statements"])
			fmt.Fprintf(cmd.OutOrStdout(), "operators:  %v\n", report["operators"])
			fmt.Fprintf(cmd.OutOrStdout(), "globals:    %v\n", report["globals"])
			return nil
		},
	}

	auth := &cobra.Command{
		Use:   "auth",
		Short: "Session credentials for protected endpoints",
	}
	authLogin := &cobra.Command{
		Use:   "login KEY",
		Short: "Store an API key for serve-mode requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := credentialPath()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(args[0]+"\n"), 0o600); err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "credentials stored")
			return nil
		},
	}
	authLogout := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := credentialPath()
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			note(cmd.OutOrStdout(), "credentials removed")
			return nil
		},
	}
	authStatus := &cobra.Command{
		Use:   "status",
		Short: "Show whether credentials are stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := credentialPath()
			if err != nil {
				return err
			}
			_, statErr := os.Stat(path)
			loggedIn := statErr == nil
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]bool{"logged_in": loggedIn})
			}
			if loggedIn {
				note(cmd.OutOrStdout(), "logged in")
			} else {
				note(cmd.OutOrStdout(), "not logged in")
			}
			return nil
		},
	}
	auth.AddCommand(authLogin, authLogout, authStatus)

	cmd.AddCommand(encrypt, decrypt, hash, scan, audit, auth)
	return cmd
}

// auditFile summarizes operator calls and global definitions in a parsed
// file.
func auditFile(f *ast.File) map[string]any {
	operators := map[string]int{}
	globals := []string{}

	var visit func(expr ast.Expr)
	visit = func(expr ast.Expr) {
		switch x := expr.(type) {
		case *ast.OperatorCall:
			operators[x.Name]++
			for _, arg := range x.Args {
				visit(arg)
			}
		case *ast.Array:
			for _, e := range x.Elems {
				visit(e)
			}
		case *ast.Object:
			for _, v := range x.Values {
				visit(v)
			}
		case *ast.Ternary:
			visit(x.Then)
			visit(x.Else)
		case *ast.Concat:
			for _, p := range x.Parts {
				visit(p)
			}
		case *ast.CrossFileGet:
			operators["file.get"]++
		case *ast.CrossFileSet:
			operators["file.set"]++
			visit(x.Value)
		}
	}

	statements := 0
	for _, stmt := range f.Statements {
		statements++
		switch s := stmt.(type) {
		case *ast.Assignment:
			if s.Global {
				globals = append(globals, s.Key)
			}
			visit(s.Value)
		case *ast.Block:
			for _, entry := range s.Entries {
				visit(entry.Value)
			}
		}
	}

	return map[string]any{
		"statements": statements,
		"operators":  operators,
		"globals":    globals,
	}
}

func credentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tsk", "credentials"), nil
}
