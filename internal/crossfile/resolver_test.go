package crossfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tusklang/tusk-go/internal/document"
	"github.com/tusklang/tusk-go/internal/evaluator"
)

// newResolver builds a resolver over dir whose loader runs the real
// parser and evaluator, matching production wiring.
func newResolver(t *testing.T, dir string) (*Resolver, *int) {
	t.Helper()
	r := New(dir)
	loads := 0
	e := evaluator.New(evaluator.WithCrossFile(r), evaluator.WithBaseDir(dir))
	r.SetLoader(func(ctx context.Context, path string) (*document.Document, error) {
		loads++
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return e.Parse(ctx, string(data), path)
	})
	return r, &loads
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGet(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "db.tsk", "[conn]\nhost = \"localhost\"\nport = 5432\n")
	r, _ := newResolver(t, dir)

	v, err := r.Get(context.Background(), "db", "conn.host")
	if err != nil {
		t.Fatal(err)
	}
	if v != "localhost" {
		t.Fatalf("conn.host = %v", v)
	}

	// The bare name and the .tsk-suffixed name both resolve.
	if _, err := r.Get(context.Background(), "db.tsk", "conn.port"); err != nil {
		t.Fatalf("suffixed name: %v", err)
	}
}

func TestGetMissingFile(t *testing.T) {
	r, _ := newResolver(t, t.TempDir())
	_, err := r.Get(context.Background(), "absent", "k")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetMissingKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.tsk", "x = 1\n")
	r, _ := newResolver(t, dir)

	_, err := r.Get(context.Background(), "a", "missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestGetMemoizesUntilFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.tsk", "x = 1\n")
	r, loads := newResolver(t, dir)

	for i := 0; i < 3; i++ {
		if _, err := r.Get(context.Background(), "a", "x"); err != nil {
			t.Fatal(err)
		}
	}
	if *loads != 1 {
		t.Fatalf("file loaded %d times, want 1", *loads)
	}

	// Touching the file with new content invalidates the entry.
	if err := os.WriteFile(path, []byte("x = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	v, err := r.Get(context.Background(), "a", "x")
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(2) {
		t.Fatalf("x = %v after rewrite", v)
	}
	if *loads != 2 {
		t.Fatalf("file loaded %d times, want 2", *loads)
	}
}

func TestSetIsInMemoryOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.tsk", "x = 1\n")
	r, _ := newResolver(t, dir)

	if err := r.Set(context.Background(), "a", "status", "ok"); err != nil {
		t.Fatal(err)
	}
	v, err := r.Get(context.Background(), "a", "status")
	if err != nil {
		t.Fatal(err)
	}
	if v != "ok" {
		t.Fatalf("status = %v", v)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "status") {
		t.Fatal("Set wrote through to disk")
	}
}

func TestCycleDetection(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.tsk", "x = @b.tsk.get(\"y\")\n")
	writeFile(t, dir, "b.tsk", "y = @a.tsk.get(\"x\")\n")
	r, _ := newResolver(t, dir)

	_, err := r.Get(context.Background(), "a", "x")
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("err = %v, want cycle error", err)
	}
}

func TestChainedReference(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.tsk", "region = \"eu\"\n")
	writeFile(t, dir, "mid.tsk", "zone = @base.tsk.get(\"region\") + \"-1\"\n")
	r, _ := newResolver(t, dir)

	v, err := r.Get(context.Background(), "mid", "zone")
	if err != nil {
		t.Fatal(err)
	}
	if v != "eu-1" {
		t.Fatalf("zone = %v", v)
	}
}

func TestSearchPaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "config"), "nested.tsk", "k = \"from-config\"\n")
	r, _ := newResolver(t, dir)

	v, err := r.Get(context.Background(), "nested", "k")
	if err != nil {
		t.Fatal(err)
	}
	if v != "from-config" {
		t.Fatalf("k = %v", v)
	}
}

func TestInvalidate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.tsk", "x = 1\n")
	r, loads := newResolver(t, dir)

	if _, err := r.Get(context.Background(), "a", "x"); err != nil {
		t.Fatal(err)
	}
	r.Invalidate()
	if entries, files := r.Stats(); entries != 0 || files != 0 {
		t.Fatalf("Stats after Invalidate = %d, %d", entries, files)
	}
	if _, err := r.Get(context.Background(), "a", "x"); err != nil {
		t.Fatal(err)
	}
	if *loads != 2 {
		t.Fatalf("loads = %d, want 2", *loads)
	}
}
