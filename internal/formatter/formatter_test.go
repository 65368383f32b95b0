package formatter

import (
	"testing"

	"github.com/tusklang/tusk-go/internal/parser"
)

func format(t *testing.T, src string) string {
	t.Helper()
	f, errs := parser.Parse(src, "fmt_test.tsk")
	if len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	return Format(f)
}

func formatExpr(t *testing.T, src string) string {
	t.Helper()
	expr, errs := parser.ParseValue(src, "fmt_test.tsk")
	if len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	return FormatExpr(expr)
}

func TestFormatCanonicalizes(t *testing.T) {
	src := "name:'app'\n\n\n[server]\nport:8080\ndebug :  true"
	want := "name = \"app\"\n\n[server]\nport = 8080\ndebug = true\n"
	if got := format(t, src); got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
}

func TestFormatGlobals(t *testing.T) {
	got := format(t, "$env = \"prod\"\nregion = \"us\"")
	want := "$env = \"prod\"\nregion = \"us\"\n"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
}

func TestFormatBlock(t *testing.T) {
	src := "[server]\nlimits {\nmax_conns = 100\ntimeout = 30\n}"
	want := "[server]\nlimits {\n  max_conns = 100\n  timeout = 30\n}\n"
	if got := format(t, src); got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
}

func TestFormatBlankLineBetweenSections(t *testing.T) {
	got := format(t, "[a]\nx = 1\n[b]\ny = 2")
	want := "[a]\nx = 1\n\n[b]\ny = 2\n"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
}

func TestFormatExprValues(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`"hi"`, `"hi"`},
		{`'hi'`, `"hi"`},
		{"42", "42"},
		{"2.5", "2.5"},
		{"true", "true"},
		{"null", "null"},
		{"[1, 'a', true]", `[1, "a", true]`},
		{"{host: 'db', port: 5432}", `{host: "db", port: 5432}`},
		{"$base", "$base"},
		{"workers", "workers"},
		{"8000-9000", "8000-9000"},
		{`@env("PORT", 8080)`, `@env("PORT", 8080)`},
		{`$base + "/api"`, `$base + "/api"`},
		{`$debug ? "verbose" : "quiet"`, `$debug ? "verbose" : "quiet"`},
		{`n > 3 ? "big" : "small"`, `n > 3 ? "big" : "small"`},
	}
	for _, tc := range cases {
		if got := formatExpr(t, tc.src); got != tc.want {
			t.Errorf("FormatExpr(%s) = %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestFormatExprCrossFile(t *testing.T) {
	if got := formatExpr(t, `@base.tsk.get("db.host")`); got != `@base.tsk.get("db.host")` {
		t.Fatalf("get = %q", got)
	}
	if got := formatExpr(t, `@base.tsk.set("db.host", "replica")`); got != `@base.tsk.set("db.host", "replica")` {
		t.Fatalf("set = %q", got)
	}
}

func TestFormatRoundTripStable(t *testing.T) {
	src := `$env = "prod"
name = "app"

[server]
host = @env("HOST", "0.0.0.0")
port = 8080
limits {
  max_conns = 100
}

[db]
url = $env + "-db"
pool = 1-10
`
	once := format(t, src)
	twice := format(t, once)
	if once != twice {
		t.Fatalf("formatting is not stable:\nfirst:\n%s\nsecond:\n%s", once, twice)
	}
}

func TestFormatMap(t *testing.T) {
	got := FormatMap(map[string]any{
		"name":  "app",
		"debug": true,
		"server": map[string]any{
			"port": int64(8080),
			"host": "localhost",
		},
		"db": map[string]any{
			"opts": map[string]any{"ssl": true},
		},
	})
	want := `debug = true
name = "app"

[db]
opts = {ssl: true}

[server]
host = "localhost"
port = 8080
`
	if got != want {
		t.Fatalf("FormatMap = %q, want %q", got, want)
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"x", `"x"`},
		{true, "true"},
		{int64(7), "7"},
		{12, "12"},
		{0.5, "0.5"},
		{[]any{int64(1), "a"}, `[1, "a"]`},
		{map[string]any{"b": int64(2), "a": int64(1)}, "{a: 1, b: 2}"},
	}
	for _, tc := range cases {
		if got := FormatValue(tc.in); got != tc.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
