package integration_tests

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tusklang/tusk-go/internal/runtime"
	"github.com/tusklang/tusk-go/internal/testutil"
)

// startRuntime wires a full runtime in a temp dir populated with files.
func startRuntime(t *testing.T, files map[string]string) *runtime.Runtime {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		testutil.WriteFile(t, dir, name, content)
	}
	t.Setenv("TSK_STATE_DB", filepath.Join(dir, "state.db"))

	rt, err := runtime.New(context.Background(), dir, runtime.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestFullDocumentEvaluation(t *testing.T) {
	t.Setenv("TSK_INTEG_REGION", "eu-west")

	rt := startRuntime(t, map[string]string{
		"defaults.tsk": "[db]\nhost = \"pg.internal\"\nport = 5432\n",
		"app.tsk": `$env = "production"
$debug = false

name = "shop"

[server]
host = @env("TSK_INTEG_HOST", "0.0.0.0")
port = 8080
mode = $debug ? "verbose" : "quiet"
limits {
  max_conns = 100
}

[db]
host = @defaults.tsk.get("db.host")
url = $env + "-db"
region = @env("TSK_INTEG_REGION")
`,
	})

	doc, err := rt.LoadFile(context.Background(), filepath.Join(rt.Settings().BaseDir, "app.tsk"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	cases := map[string]any{
		"name":                    "shop",
		"server.host":             "0.0.0.0",
		"server.port":             int64(8080),
		"server.mode":             "quiet",
		"server.limits.max_conns": int64(100),
		"db.host":                 "pg.internal",
		"db.url":                  "production-db",
		"db.region":               "eu-west",
	}
	for key, want := range cases {
		if got, _ := doc.Get(key); got != want {
			t.Errorf("%s = %#v, want %#v", key, got, want)
		}
	}
}

func TestPeanutHierarchyFeedsSettings(t *testing.T) {
	parent := t.TempDir()
	child := filepath.Join(parent, "svc")
	if err := os.Mkdir(child, 0o755); err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, parent, "peanut.tsk", "[server]\nport = 4000\napi_key = \"parent-key\"\n")
	testutil.WriteFile(t, child, "peanut.tsk", "[server]\nport = 4100\n")
	t.Setenv("TSK_STATE_DB", filepath.Join(child, "state.db"))

	rt, err := runtime.New(context.Background(), child, runtime.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	s := rt.Settings()
	if s.Server.Port != 4100 {
		t.Errorf("port = %d, want child override 4100", s.Server.Port)
	}
	if s.Server.APIKey != "parent-key" {
		t.Errorf("api_key = %q, want inherited parent-key", s.Server.APIKey)
	}
}

func TestParseErrorNamesFile(t *testing.T) {
	rt := startRuntime(t, nil)
	_, err := rt.EvalSource(context.Background(), "arr = [1, 2", "broken.tsk")
	testutil.AssertErrorContains(t, err, "broken.tsk")
}

func TestCacheOperatorMemoizesAcrossParses(t *testing.T) {
	rt := startRuntime(t, nil)
	ctx := context.Background()

	src := "token = @cache(\"5m\", @env(\"TSK_INTEG_TOKEN\", \"fallback\"))"
	t.Setenv("TSK_INTEG_TOKEN", "first")
	doc, err := rt.EvalSource(ctx, src, "cache.tsk")
	if err != nil {
		t.Fatalf("EvalSource: %v", err)
	}
	if got, _ := doc.Get("token"); got != "first" {
		t.Fatalf("token = %v", got)
	}

	// The cached value survives even though the env var changed.
	t.Setenv("TSK_INTEG_TOKEN", "second")
	doc, err = rt.EvalSource(ctx, src, "cache.tsk")
	if err != nil {
		t.Fatalf("EvalSource: %v", err)
	}
	if got, _ := doc.Get("token"); got != "first" {
		t.Fatalf("token = %v, want memoized first", got)
	}

	_, hits, _ := rt.Cache().Stats()
	if hits < 1 {
		t.Errorf("cache hits = %d, want at least 1", hits)
	}
}
