package integration_tests

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/tusklang/tusk-go/internal/binary"
	"github.com/tusklang/tusk-go/internal/formatter"
	"github.com/tusklang/tusk-go/internal/fujsen"
	"github.com/tusklang/tusk-go/internal/peanut"
)

// TestCompilePackShip covers the deployment path: evaluate a document,
// render it canonically, pack it compressed and encrypted, then unpack
// and re-evaluate on the "other side".
func TestCompilePackShip(t *testing.T) {
	rt := startRuntime(t, nil)
	ctx := context.Background()

	src := `[server]
host = "10.1.2.3"
port = 8080

[db]
url = "postgres://db:5432/shop"
`
	doc, err := rt.EvalSource(ctx, src, "app.tsk")
	if err != nil {
		t.Fatalf("EvalSource: %v", err)
	}

	rendered := formatter.FormatMap(doc.Nested())
	key := sha256.Sum256([]byte("deploy-secret"))

	var packed bytes.Buffer
	err = binary.Write(&packed, []byte(rendered), binary.Options{
		Compress:   true,
		EncryptKey: key[:],
		Metadata:   binary.Metadata{Source: "app.tsk", KeyCount: doc.Len()},
	})
	if err != nil {
		t.Fatalf("binary.Write: %v", err)
	}
	if bytes.Contains(packed.Bytes(), []byte("postgres://")) {
		t.Fatal("plaintext leaked into packed output")
	}

	// Inspect works without the key.
	header, meta, err := binary.Inspect(bytes.NewReader(packed.Bytes()))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if header.Compression != binary.CompressionGzip || meta.Source != "app.tsk" {
		t.Fatalf("header = %+v, meta = %+v", header, meta)
	}

	unpacked, _, _, err := binary.Read(bytes.NewReader(packed.Bytes()), binary.ReadOptions{DecryptKey: key[:]})
	if err != nil {
		t.Fatalf("binary.Read: %v", err)
	}

	doc2, err := rt.EvalSource(ctx, string(unpacked), "unpacked.tsk")
	if err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}
	if got, _ := doc2.Get("db.url"); got != "postgres://db:5432/shop" {
		t.Errorf("db.url = %v", got)
	}
	if got, _ := doc2.Get("server.port"); got != int64(8080) {
		t.Errorf("server.port = %v", got)
	}
}

func TestPeanutBinaryCompile(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "peanut.tsk")
	if err := os.WriteFile(source, []byte("[app]\nversion = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := peanut.CompileFile(source, ""); err != nil {
		t.Fatalf("CompileFile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "peanut.pnt")); err != nil {
		t.Fatalf("compiled binary missing: %v", err)
	}

	// The binary form is preferred on the next load.
	cfg, err := peanut.Load(dir)
	if err != nil {
		t.Fatalf("peanut.Load: %v", err)
	}
	if got := cfg.Get("app.version"); got != int64(3) {
		t.Errorf("app.version = %v", got)
	}
	binaryLoaded := false
	for _, src := range cfg.Sources() {
		if filepath.Ext(src.Path) == ".pnt" {
			binaryLoaded = true
		}
	}
	if !binaryLoaded {
		t.Error("load should prefer the compiled .pnt")
	}
}

func TestFunctionBundleExecution(t *testing.T) {
	runtime := fujsen.NewRuntime()

	fn := &fujsen.Function{
		Name:     "discount",
		Language: "go",
		SourceCode: `func(args map[string]any) any {
	total := args["total"].(int64)
	if total > 100 {
		return total * 90 / 100
	}
	return total
}`,
	}
	runtime.Store(fn)

	out, err := runtime.Run(context.Background(), "discount", map[string]any{"total": int64(200)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != int64(180) {
		t.Fatalf("discount(200) = %v, want 180", out)
	}

	// Bundles survive serialization.
	data, err := fn.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	restored, err := fujsen.Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if restored.CacheKey() != fn.CacheKey() {
		t.Error("cache key changed across serialization")
	}
}
