package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tusklang/tusk-go/internal/testutil"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flagVerbose, flagQuiet, flagJSON, flagConfig = false, false, false, ""

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func testDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TSK_STATE_DB", filepath.Join(dir, "state.db"))
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, version) || !strings.Contains(out, langVersion) {
		t.Fatalf("output = %q", out)
	}

	out, err = runCLI(t, "--json", "version")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	if !strings.Contains(out, fmt.Sprintf("%q: %q", "version", version)) {
		t.Fatalf("json output = %q", out)
	}
}

func TestParseCommand(t *testing.T) {
	dir := testDir(t)
	path := testutil.WriteFile(t, dir, "app.tsk", "[server]\nport = 8080\nhost = \"0.0.0.0\"\n")

	out, err := runCLI(t, "--config", dir, "parse", path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.Contains(out, "server.port = 8080") {
		t.Fatalf("output = %q", out)
	}

	out, err = runCLI(t, "--config", dir, "parse", path, "--output", "json")
	if err != nil {
		t.Fatalf("parse --output json: %v", err)
	}
	if !strings.Contains(out, `"port": 8080`) {
		t.Fatalf("json output = %q", out)
	}
}

func TestGetAndSetCommands(t *testing.T) {
	dir := testDir(t)
	path := testutil.WriteFile(t, dir, "app.tsk", "[db]\nhost = \"localhost\"\n")

	out, err := runCLI(t, "--config", dir, "get", path, "db.host")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.TrimSpace(out) != "localhost" {
		t.Fatalf("get output = %q", out)
	}

	if _, err := runCLI(t, "--config", dir, "set", path, "db.port", "5432"); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "port = 5432") {
		t.Fatalf("rewritten file = %q", data)
	}

	out, err = runCLI(t, "--config", dir, "get", path, "db.port")
	if err != nil {
		t.Fatalf("get after set: %v", err)
	}
	if strings.TrimSpace(out) != "5432" {
		t.Fatalf("get output = %q", out)
	}

	_, err = runCLI(t, "--config", dir, "get", path, "db.missing")
	testutil.AssertErrorContains(t, err, "not found")
}

func TestValidateCommand(t *testing.T) {
	dir := testDir(t)
	good := testutil.WriteFile(t, dir, "good.tsk", "x = 1\n")
	bad := testutil.WriteFile(t, dir, "bad.tsk", "arr = [1, 2\n")

	if _, err := runCLI(t, "validate", good); err != nil {
		t.Fatalf("validate good: %v", err)
	}
	if _, err := runCLI(t, "validate", bad); err == nil {
		t.Fatal("validate bad should fail")
	}
}

func TestConvertCommand(t *testing.T) {
	dir := testDir(t)
	path := testutil.WriteFile(t, dir, "app.tsk", "[server]\nport = 8080\n")

	out, err := runCLI(t, "--config", dir, "convert", path, "--to", "json")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !strings.Contains(out, `"port": 8080`) {
		t.Fatalf("json = %q", out)
	}

	yamlPath := testutil.WriteFile(t, dir, "app.yaml", "server:\n  port: 8080\n")
	out, err = runCLI(t, "convert", yamlPath, "--to", "tsk")
	if err != nil {
		t.Fatalf("convert yaml: %v", err)
	}
	if !strings.Contains(out, "[server]") || !strings.Contains(out, "port = 8080") {
		t.Fatalf("tsk = %q", out)
	}

	_, err = runCLI(t, "convert", path)
	var uerr usageError
	if !isUsageError(err, &uerr) {
		t.Fatalf("missing --to should be a usage error, got %v", err)
	}
}

func TestUsageError(t *testing.T) {
	err := usageErrorf("bad flag %q", "x")
	var uerr usageError
	if !isUsageError(err, &uerr) {
		t.Fatal("errors.As failed on direct usage error")
	}
	wrapped := fmt.Errorf("context: %w", err)
	if !isUsageError(wrapped, &uerr) {
		t.Fatal("errors.As failed on wrapped usage error")
	}
	if isUsageError(errors.New("plain"), &uerr) {
		t.Fatal("plain error misclassified")
	}
}
