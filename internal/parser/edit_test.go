package parser

import (
	"strings"
	"testing"

	"github.com/tusklang/tusk-go/internal/formatter"
)

func setKey(t *testing.T, src, key, value string) string {
	t.Helper()
	f := mustParse(t, src)
	f, err := SetKey(f, key, value)
	if err != nil {
		t.Fatalf("SetKey(%s, %s): %v", key, value, err)
	}
	return formatter.Format(f)
}

func TestSetKeyReplacesTopLevel(t *testing.T) {
	got := setKey(t, "name = \"app\"\nport = 8080", "port", "9090")
	want := "name = \"app\"\nport = 9090\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSetKeyReplacesInSection(t *testing.T) {
	src := "[db]\nhost = \"localhost\"\nport = 5432\n\n[cache]\nhost = \"redis\"\n"
	got := setKey(t, src, "db.host", `"replica"`)
	if !strings.Contains(got, "host = \"replica\"\nport = 5432") {
		t.Fatalf("db.host not replaced in place:\n%s", got)
	}
	// The same key in another section stays untouched.
	if !strings.Contains(got, "[cache]\nhost = \"redis\"") {
		t.Fatalf("cache.host was touched:\n%s", got)
	}
}

func TestSetKeyInsertsTopLevelBeforeSections(t *testing.T) {
	got := setKey(t, "name = \"app\"\n\n[server]\nport = 8080\n", "debug", "true")
	want := "name = \"app\"\ndebug = true\n\n[server]\nport = 8080\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSetKeyAppendsToSection(t *testing.T) {
	src := "[server]\nhost = \"0.0.0.0\"\n\n[db]\nport = 5432\n"
	got := setKey(t, src, "server.workers", "4")
	want := "[server]\nhost = \"0.0.0.0\"\nworkers = 4\n\n[db]\nport = 5432\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSetKeyCreatesSection(t *testing.T) {
	got := setKey(t, "name = \"app\"\n", "metrics.enabled", "true")
	want := "name = \"app\"\n\n[metrics]\nenabled = true\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSetKeyGlobal(t *testing.T) {
	got := setKey(t, "$env = \"dev\"\nx = 1\n", "$env", `"prod"`)
	want := "$env = \"prod\"\nx = 1\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	// A $name and a plain name are distinct keys.
	got = setKey(t, "$env = \"dev\"\n", "env", `"plain"`)
	if !strings.Contains(got, "$env = \"dev\"") || !strings.Contains(got, "env = \"plain\"") {
		t.Fatalf("global clobbered by plain key:\n%s", got)
	}
}

func TestSetKeyOperatorValue(t *testing.T) {
	got := setKey(t, "x = 1\n", "port", `@env("PORT", 8080)`)
	if !strings.Contains(got, "port = @env(\"PORT\", 8080)") {
		t.Fatalf("operator value lost:\n%s", got)
	}
}

func TestSetKeyBadValue(t *testing.T) {
	f := mustParse(t, "x = 1\n")
	if _, err := SetKey(f, "y", "[1, 2"); err == nil {
		t.Fatal("expected parse error for unterminated array")
	}
}

func TestSetKeyRoundTripParses(t *testing.T) {
	got := setKey(t, "[a]\nx = 1\n", "b.y", "2")
	if _, errs := Parse(got, "edited.tsk"); len(errs) > 0 {
		t.Fatalf("edited output does not re-parse: %v", errs)
	}
}
