package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/fujsen"
	"github.com/tusklang/tusk-go/internal/parser"
	"github.com/tusklang/tusk-go/internal/protection"
	"github.com/tusklang/tusk-go/internal/runtime"
)

// selfChecks are the built-in smoke suites behind `tsk test`.
var selfChecks = map[string]func(context.Context, *runtime.Runtime) error{
	"parser":     checkParser,
	"operators":  checkOperators,
	"fujsen":     checkFujsen,
	"protection": checkProtection,
	"db":         checkDB,
}

var suiteOrder = []string{"parser", "operators", "fujsen", "protection", "db"}

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [SUITE]",
		Short: "Run built-in self-checks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			suites := suiteOrder
			if len(args) == 1 {
				if _, ok := selfChecks[args[0]]; !ok {
					return usageErrorf("unknown suite %q", args[0])
				}
				suites = []string{args[0]}
			}

			failed := 0
			results := map[string]string{}
			for _, name := range suites {
				if err := selfChecks[name](cmd.Context(), rt); err != nil {
					results[name] = err.Error()
					failed++
					if !flagJSON {
						fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", name, err)
					}
					continue
				}
				results[name] = "ok"
				if !flagJSON {
					fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", name)
				}
			}

			if flagJSON {
				_ = printJSON(cmd.OutOrStdout(), results)
			}
			if failed > 0 {
				return fmt.Errorf("%d suite(s) failed", failed)
			}
			return nil
		},
	}
}

func checkParser(ctx context.Context, rt *runtime.Runtime) error {
	doc, err := rt.EvalSource(ctx, "[db]\nhost = \"localhost\"\nport = 5432\n", "selfcheck.tsk")
	if err != nil {
		return err
	}
	if host := doc.GetString("db.host"); host != "localhost" {
		return fmt.Errorf("db.host = %q, want localhost", host)
	}
	if port, _ := doc.GetInt("db.port"); port != 5432 {
		return fmt.Errorf("db.port = %d, want 5432", port)
	}
	if _, errs := parser.Parse("key = [1, 2", "selfcheck.tsk"); len(errs) == 0 {
		return fmt.Errorf("unterminated array accepted")
	}
	return nil
}

func checkOperators(ctx context.Context, rt *runtime.Runtime) error {
	if err := os.Setenv("TSK_SELFCHECK", "yes"); err != nil {
		return err
	}
	defer os.Unsetenv("TSK_SELFCHECK")

	doc, err := rt.EvalSource(ctx,
		"a = @env(\"TSK_SELFCHECK\")\nb = @string(\"uppercase\", \"ok\")\nc = @if(true, 1, 2)\n",
		"selfcheck.tsk")
	if err != nil {
		return err
	}
	if v := doc.GetString("a"); v != "yes" {
		return fmt.Errorf("@env = %q, want yes", v)
	}
	if v := doc.GetString("b"); v != "OK" {
		return fmt.Errorf("@string uppercase = %q, want OK", v)
	}
	if v, _ := doc.GetInt("c"); v != 1 {
		return fmt.Errorf("@if = %d, want 1", v)
	}
	return nil
}

func checkFujsen(ctx context.Context, rt *runtime.Runtime) error {
	fn := &fujsen.Function{
		Name:       "selfcheck",
		Language:   "go",
		SourceCode: "func Main(args map[string]any) (any, error) { return int64(41) + args[\"n\"].(int64), nil }",
	}
	rt.Functions().Store(fn)
	out, err := rt.Functions().Execute(ctx, fn, map[string]any{"n": int64(1)})
	if err != nil {
		return err
	}
	if n, ok := out.(int64); !ok || n != 42 {
		return fmt.Errorf("go function returned %v, want 42", out)
	}
	return nil
}

func checkProtection(_ context.Context, _ *runtime.Runtime) error {
	p, err := protection.New("selfcheck-master-key")
	if err != nil {
		return err
	}
	ct, err := p.Encrypt("round-trip", "selfcheck")
	if err != nil {
		return err
	}
	pt, err := p.Decrypt(ct, "selfcheck")
	if err != nil {
		return err
	}
	if pt != "round-trip" {
		return fmt.Errorf("decrypt = %q, want round-trip", pt)
	}
	sig := p.Sign("payload")
	if !p.Verify("payload", sig) {
		return fmt.Errorf("signature did not verify")
	}
	return nil
}

func checkDB(ctx context.Context, rt *runtime.Runtime) error {
	db := rt.DB()
	if db == nil {
		return fmt.Errorf("no database configured")
	}
	rows, err := db.Query(ctx, "SELECT 1 AS one")
	if err != nil {
		return err
	}
	if len(rows) != 1 {
		return fmt.Errorf("SELECT 1 returned %d rows", len(rows))
	}
	return nil
}
