package peanut

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePeanut(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSingleFile(t *testing.T) {
	dir := t.TempDir()
	writePeanut(t, dir, "peanut.tsk", "[server]\nport = 8080\nhost = \"0.0.0.0\"\n")

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Get("server.port") != int64(8080) {
		t.Errorf("server.port = %v", c.Get("server.port"))
	}
	if c.GetString("server.host") != "0.0.0.0" {
		t.Errorf("server.host = %q", c.GetString("server.host"))
	}
	if c.Get("server.missing") != nil {
		t.Errorf("missing key = %v", c.Get("server.missing"))
	}
}

func TestDeeperDirectoriesWinKeyByKey(t *testing.T) {
	parent := t.TempDir()
	child := filepath.Join(parent, "svc")
	if err := os.Mkdir(child, 0o755); err != nil {
		t.Fatal(err)
	}
	writePeanut(t, parent, "peanut.tsk", "[server]\nport = 8080\nhost = \"parent\"\n")
	writePeanut(t, child, "peanut.tsk", "[server]\nport = 9090\n")

	c, err := Load(child)
	if err != nil {
		t.Fatal(err)
	}
	// The child overrides port but inherits host.
	if c.Get("server.port") != int64(9090) {
		t.Errorf("server.port = %v", c.Get("server.port"))
	}
	if c.Get("server.host") != "parent" {
		t.Errorf("server.host = %v", c.Get("server.host"))
	}
}

func TestBinaryBeatsTextInSameDirectory(t *testing.T) {
	dir := t.TempDir()
	writePeanut(t, dir, "peanut.tsk", "[app]\nsource = \"text\"\n")
	pnt := filepath.Join(dir, "peanut.pnt")
	if err := WriteBinary(pnt, map[string]any{"app": map[string]any{"source": "binary"}}); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Get("app.source") != "binary" {
		t.Fatalf("app.source = %v", c.Get("app.source"))
	}
}

func TestPeanutsFallback(t *testing.T) {
	dir := t.TempDir()
	writePeanut(t, dir, ".peanuts", "[app]\nname = \"dotted\"\n")

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Get("app.name") != "dotted" {
		t.Fatalf("app.name = %v", c.Get("app.name"))
	}
}

func TestExplicitConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writePeanut(t, dir, "peanut.tsk", "[app]\nname = \"local\"\n")
	explicit := writePeanut(t, t.TempDir(), "override.tsk", "[app]\nname = \"explicit\"\n")
	t.Setenv(ConfigEnv, explicit)

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Get("app.name") != "explicit" {
		t.Fatalf("app.name = %v", c.Get("app.name"))
	}
}

func TestSourcesAndKeys(t *testing.T) {
	dir := t.TempDir()
	path := writePeanut(t, dir, "peanut.tsk", "[a]\nx = 1\n[b]\ny = 2\n")

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, s := range c.Sources() {
		if s.Path == path && !s.Binary {
			found = true
		}
	}
	if !found {
		t.Fatalf("sources = %v", c.Sources())
	}

	keys := c.Keys()
	has := func(k string) bool {
		for _, got := range keys {
			if got == k {
				return true
			}
		}
		return false
	}
	if !has("a.x") || !has("b.y") {
		t.Fatalf("keys = %v", keys)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peanut.pnt")
	values := map[string]any{
		"server": map[string]any{"port": int64(8080), "debug": true},
		"name":   "app",
	}
	if err := WriteBinary(path, values); err != nil {
		t.Fatal(err)
	}

	got, err := ReadBinary(path)
	if err != nil {
		t.Fatal(err)
	}
	server, ok := got["server"].(map[string]any)
	if !ok || server["port"] != int64(8080) || server["debug"] != true {
		t.Fatalf("got = %#v", got)
	}

	ts, err := BinaryTimestamp(path)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(ts) > time.Minute {
		t.Fatalf("timestamp = %v", ts)
	}
}

func TestReadBinaryRejectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peanut.pnt")
	if err := WriteBinary(path, map[string]any{"k": "v"}); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadBinary(path); !errors.Is(err, ErrBadPntChecksum) {
		t.Fatalf("err = %v, want ErrBadPntChecksum", err)
	}
}

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	src := writePeanut(t, dir, "peanut.tsk", "[cache]\nttl = 300\n")

	if err := CompileFile(src, ""); err != nil {
		t.Fatal(err)
	}
	got, err := ReadBinary(filepath.Join(dir, "peanut.pnt"))
	if err != nil {
		t.Fatal(err)
	}
	cache, ok := got["cache"].(map[string]any)
	if !ok || cache["ttl"] != int64(300) {
		t.Fatalf("got = %#v", got)
	}
}

func TestAutoCompileRefreshesStaleBinary(t *testing.T) {
	dir := t.TempDir()
	src := writePeanut(t, dir, "peanut.tsk", "[app]\nv = 1\n")
	pnt := filepath.Join(dir, "peanut.pnt")
	if err := CompileFile(src, pnt); err != nil {
		t.Fatal(err)
	}

	// Rewrite the source newer than the binary.
	writePeanut(t, dir, "peanut.tsk", "[app]\nv = 2\n")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(src, future, future); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir, WithAutoCompile(true))
	if err != nil {
		t.Fatal(err)
	}
	if c.Get("app.v") != int64(2) {
		t.Fatalf("app.v = %v, binary was not recompiled", c.Get("app.v"))
	}
}

func TestStructuralSubsetAllowsEnvOperator(t *testing.T) {
	t.Setenv("TSK_PEANUT_TEST", "from-env")
	dir := t.TempDir()
	writePeanut(t, dir, "peanut.tsk", "[server]\nhost = @env(\"TSK_PEANUT_TEST\")\n")

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Get("server.host") != "from-env" {
		t.Fatalf("server.host = %v", c.Get("server.host"))
	}
}
