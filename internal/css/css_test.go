package css

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpand(t *testing.T) {
	tests := []struct{ in, want string }{
		{"div { mh: 100px; }", "div { max-height: 100px; }"},
		{"div { mw: 50%; }", "div { max-width: 50%; }"},
		{".box{p:4px;m:0}", ".box{padding:4px;margin:0}"},
		{"h1 { fs: 2rem; fw: bold; }", "h1 { font-size: 2rem; font-weight: bold; }"},
		// Unknown two-letter names pass through.
		{"div { zz: 1; }", "div { zz: 1; }"},
		// Full property names are untouched.
		{"div { max-height: 1px; }", "div { max-height: 1px; }"},
	}
	for _, tt := range tests {
		if got := Expand(tt.in); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandLeavesSelectorsAlone(t *testing.T) {
	src := "p { color: red; }"
	// The selector p must not become padding; only declarations expand.
	got := Expand(src)
	if !strings.HasPrefix(got, "p {") {
		t.Fatalf("selector rewritten: %q", got)
	}
}

func TestExpandMultipleDeclarations(t *testing.T) {
	src := "div {\n  mh: 10px;\n  mw: 20px;\n  p: 1em;\n}\n"
	got := Expand(src)
	for _, want := range []string{"max-height: 10px", "max-width: 20px", "padding: 1em"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestMapAndShortcodes(t *testing.T) {
	m := Map()
	if m["mh"] != "max-height" || m["bg"] != "background" {
		t.Fatalf("Map = %v", m)
	}
	// Map returns a copy.
	m["mh"] = "tampered"
	if Map()["mh"] != "max-height" {
		t.Fatal("Map exposes internal state")
	}

	codes := Shortcodes()
	if len(codes) != len(m) {
		t.Fatalf("Shortcodes = %v", codes)
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Fatalf("Shortcodes not sorted: %v", codes)
		}
	}
}

func TestExpandFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "site.css")
	if err := os.WriteFile(in, []byte("div { mh: 1px; }"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := ExpandFile(in, "")
	if err != nil {
		t.Fatal(err)
	}
	if out != filepath.Join(dir, "site.expanded.css") {
		t.Fatalf("out = %q", out)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "div { max-height: 1px; }" {
		t.Fatalf("content = %q", data)
	}
}

func TestExpandFileMissingInput(t *testing.T) {
	if _, err := ExpandFile(filepath.Join(t.TempDir(), "absent.css"), ""); err == nil {
		t.Fatal("missing input accepted")
	}
}
