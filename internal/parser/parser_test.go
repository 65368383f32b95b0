package parser

import (
	"strings"
	"testing"

	"github.com/tusklang/tusk-go/internal/ast"
)

func mustParse(t *testing.T, input string) *ast.File {
	t.Helper()
	f, errs := Parse(input, "test.tsk")
	if len(errs) > 0 {
		for _, e := range errs {
			t.Errorf("parse error: %s", e)
		}
		t.FailNow()
	}
	return f
}

func TestParseSectionsAndAssignments(t *testing.T) {
	input := "[db]\nhost = \"localhost\"\nport = 5432\n"

	f := mustParse(t, input)
	if len(f.Statements) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(f.Statements))
	}

	sec, ok := f.Statements[0].(*ast.Section)
	if !ok {
		t.Fatalf("expected *ast.Section, got %T", f.Statements[0])
	}
	if sec.Name != "db" {
		t.Errorf("section name = %q, want %q", sec.Name, "db")
	}

	host, ok := f.Statements[1].(*ast.Assignment)
	if !ok {
		t.Fatalf("expected *ast.Assignment, got %T", f.Statements[1])
	}
	if host.Key != "host" {
		t.Errorf("key = %q, want %q", host.Key, "host")
	}
	s, ok := host.Value.(*ast.Scalar)
	if !ok {
		t.Fatalf("expected *ast.Scalar, got %T", host.Value)
	}
	if s.Kind != ast.StringScalar || s.Str != "localhost" {
		t.Errorf("host = %v %q, want string \"localhost\"", s.Kind, s.Str)
	}

	port := f.Statements[2].(*ast.Assignment)
	n, ok := port.Value.(*ast.Scalar)
	if !ok {
		t.Fatalf("expected *ast.Scalar, got %T", port.Value)
	}
	if n.Kind != ast.IntScalar || n.Int != 5432 {
		t.Errorf("port = %v %d, want int 5432", n.Kind, n.Int)
	}
}

func TestParseScalarKinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, e ast.Expr)
	}{
		{
			name:  "double quoted string",
			input: `k = "hello"`,
			check: func(t *testing.T, e ast.Expr) {
				s := e.(*ast.Scalar)
				if s.Kind != ast.StringScalar || s.Str != "hello" {
					t.Errorf("got %v %q", s.Kind, s.Str)
				}
			},
		},
		{
			name:  "single quoted string",
			input: `k = 'hi there'`,
			check: func(t *testing.T, e ast.Expr) {
				s := e.(*ast.Scalar)
				if s.Kind != ast.StringScalar || s.Str != "hi there" {
					t.Errorf("got %v %q", s.Kind, s.Str)
				}
			},
		},
		{
			name:  "integer",
			input: `k = 42`,
			check: func(t *testing.T, e ast.Expr) {
				s := e.(*ast.Scalar)
				if s.Kind != ast.IntScalar || s.Int != 42 {
					t.Errorf("got %v %d", s.Kind, s.Int)
				}
			},
		},
		{
			name:  "negative integer",
			input: `k = -7`,
			check: func(t *testing.T, e ast.Expr) {
				s := e.(*ast.Scalar)
				if s.Kind != ast.IntScalar || s.Int != -7 {
					t.Errorf("got %v %d", s.Kind, s.Int)
				}
			},
		},
		{
			name:  "float",
			input: `k = 3.14`,
			check: func(t *testing.T, e ast.Expr) {
				s := e.(*ast.Scalar)
				if s.Kind != ast.FloatScalar || s.Float != 3.14 {
					t.Errorf("got %v %g", s.Kind, s.Float)
				}
			},
		},
		{
			name:  "bool true",
			input: `k = true`,
			check: func(t *testing.T, e ast.Expr) {
				s := e.(*ast.Scalar)
				if s.Kind != ast.BoolScalar || !s.Bool {
					t.Errorf("got %v %v", s.Kind, s.Bool)
				}
			},
		},
		{
			name:  "null",
			input: `k = null`,
			check: func(t *testing.T, e ast.Expr) {
				s := e.(*ast.Scalar)
				if s.Kind != ast.NullScalar {
					t.Errorf("got %v", s.Kind)
				}
			},
		},
		{
			name:  "raw string fallback",
			input: `k = hello world`,
			check: func(t *testing.T, e ast.Expr) {
				s := e.(*ast.Scalar)
				if s.Kind != ast.RawScalar || s.Str != "hello world" {
					t.Errorf("got %v %q", s.Kind, s.Str)
				}
			},
		},
		{
			name:  "version string stays raw",
			input: `k = 1.2.3`,
			check: func(t *testing.T, e ast.Expr) {
				s := e.(*ast.Scalar)
				if s.Kind != ast.RawScalar || s.Str != "1.2.3" {
					t.Errorf("got %v %q", s.Kind, s.Str)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustParse(t, tt.input+"\n")
			a, ok := f.Statements[0].(*ast.Assignment)
			if !ok {
				t.Fatalf("expected *ast.Assignment, got %T", f.Statements[0])
			}
			tt.check(t, a.Value)
		})
	}
}

func TestParseGlobalAndLocalVariables(t *testing.T) {
	input := "$app = \"tusk\"\n[server]\nhost: \"0.0.0.0\"\nname: $app\nbind: host\n"

	f := mustParse(t, input)

	g := f.Statements[0].(*ast.Assignment)
	if !g.Global || g.Key != "app" {
		t.Errorf("global = %v key=%q, want global app", g.Global, g.Key)
	}

	name := f.Statements[3].(*ast.Assignment)
	ref, ok := name.Value.(*ast.VarRef)
	if !ok {
		t.Fatalf("expected *ast.VarRef, got %T", name.Value)
	}
	if !ref.Global || ref.Name != "app" {
		t.Errorf("ref = global=%v name=%q, want global app", ref.Global, ref.Name)
	}

	bind := f.Statements[4].(*ast.Assignment)
	local, ok := bind.Value.(*ast.VarRef)
	if !ok {
		t.Fatalf("expected *ast.VarRef, got %T", bind.Value)
	}
	if local.Global || local.Name != "host" {
		t.Errorf("ref = global=%v name=%q, want local host", local.Global, local.Name)
	}
}

func TestParseArraysAndObjects(t *testing.T) {
	input := "tags = [\"web\", \"api\", 3]\nlimits = {cpu: 2, mem = \"1G\"}\n"

	f := mustParse(t, input)

	arr, ok := f.Statements[0].(*ast.Assignment).Value.(*ast.Array)
	if !ok {
		t.Fatalf("expected *ast.Array, got %T", f.Statements[0].(*ast.Assignment).Value)
	}
	if len(arr.Elems) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(arr.Elems))
	}
	if s := arr.Elems[0].(*ast.Scalar); s.Str != "web" {
		t.Errorf("elem 0 = %q, want web", s.Str)
	}
	if s := arr.Elems[2].(*ast.Scalar); s.Kind != ast.IntScalar || s.Int != 3 {
		t.Errorf("elem 2 = %v, want int 3", s.Kind)
	}

	obj, ok := f.Statements[1].(*ast.Assignment).Value.(*ast.Object)
	if !ok {
		t.Fatalf("expected *ast.Object, got %T", f.Statements[1].(*ast.Assignment).Value)
	}
	if len(obj.Keys) != 2 || obj.Keys[0] != "cpu" || obj.Keys[1] != "mem" {
		t.Fatalf("object keys = %v", obj.Keys)
	}
}

func TestParseMultilineArray(t *testing.T) {
	input := "servers = [\n  \"alpha\",\n  \"beta\"\n]\n"

	f := mustParse(t, input)
	arr, ok := f.Statements[0].(*ast.Assignment).Value.(*ast.Array)
	if !ok {
		t.Fatalf("expected *ast.Array, got %T", f.Statements[0].(*ast.Assignment).Value)
	}
	if len(arr.Elems) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(arr.Elems))
	}
}

func TestParseNestedBlocks(t *testing.T) {
	input := "[app]\ndatabase {\n  host = \"db1\"\n  port = 5432\n}\ncache >\n  ttl = 300\n<\n"

	f := mustParse(t, input)
	if len(f.Statements) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(f.Statements))
	}

	db, ok := f.Statements[1].(*ast.Block)
	if !ok {
		t.Fatalf("expected *ast.Block, got %T", f.Statements[1])
	}
	if db.Name != "database" || db.Style != ast.BraceBlock {
		t.Errorf("block = %q style=%v", db.Name, db.Style)
	}
	if len(db.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(db.Entries))
	}

	cache, ok := f.Statements[2].(*ast.Block)
	if !ok {
		t.Fatalf("expected *ast.Block, got %T", f.Statements[2])
	}
	if cache.Name != "cache" || cache.Style != ast.AngleBlock {
		t.Errorf("block = %q style=%v", cache.Name, cache.Style)
	}
	if len(cache.Entries) != 1 || cache.Entries[0].Key != "ttl" {
		t.Fatalf("angle block entries = %+v", cache.Entries)
	}
}

func TestParseOperatorCall(t *testing.T) {
	input := "now = @date(\"Y-m-d\")\napi_key = @env(\"API_KEY\", \"fallback\")\n"

	f := mustParse(t, input)

	call, ok := f.Statements[0].(*ast.Assignment).Value.(*ast.OperatorCall)
	if !ok {
		t.Fatalf("expected *ast.OperatorCall, got %T", f.Statements[0].(*ast.Assignment).Value)
	}
	if call.Name != "date" {
		t.Errorf("operator = %q, want date", call.Name)
	}
	if call.RawArgs != `"Y-m-d"` {
		t.Errorf("raw args = %q", call.RawArgs)
	}
	if len(call.Args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(call.Args))
	}

	env := f.Statements[1].(*ast.Assignment).Value.(*ast.OperatorCall)
	if env.Name != "env" || len(env.Args) != 2 {
		t.Fatalf("env call = %q args=%d", env.Name, len(env.Args))
	}
	if s := env.Args[1].(*ast.Scalar); s.Str != "fallback" {
		t.Errorf("default arg = %q", s.Str)
	}
}

func TestParseCrossFileReferences(t *testing.T) {
	input := "shared = @config.tsk.get(\"redis.host\")\nmark = @state.tsk.set(\"last_run\", \"today\")\n"

	f := mustParse(t, input)

	get, ok := f.Statements[0].(*ast.Assignment).Value.(*ast.CrossFileGet)
	if !ok {
		t.Fatalf("expected *ast.CrossFileGet, got %T", f.Statements[0].(*ast.Assignment).Value)
	}
	if get.File != "config" || get.Key != "redis.host" {
		t.Errorf("get = %q %q", get.File, get.Key)
	}

	set, ok := f.Statements[1].(*ast.Assignment).Value.(*ast.CrossFileSet)
	if !ok {
		t.Fatalf("expected *ast.CrossFileSet, got %T", f.Statements[1].(*ast.Assignment).Value)
	}
	if set.File != "state" || set.Key != "last_run" {
		t.Errorf("set = %q %q", set.File, set.Key)
	}
	if v := set.Value.(*ast.Scalar); v.Str != "today" {
		t.Errorf("set value = %q", v.Str)
	}
}

func TestParseTernaryAndConcat(t *testing.T) {
	input := "mode = $env == \"production\" ? \"strict\" : \"relaxed\"\ngreeting = \"hello \" + $user + \"!\"\n"

	f := mustParse(t, input)

	tern, ok := f.Statements[0].(*ast.Assignment).Value.(*ast.Ternary)
	if !ok {
		t.Fatalf("expected *ast.Ternary, got %T", f.Statements[0].(*ast.Assignment).Value)
	}
	if tern.Cond.Op != "==" {
		t.Errorf("cond op = %q, want ==", tern.Cond.Op)
	}
	left, ok := tern.Cond.Left.(*ast.VarRef)
	if !ok || !left.Global || left.Name != "env" {
		t.Errorf("cond left = %#v", tern.Cond.Left)
	}
	if s := tern.Then.(*ast.Scalar); s.Str != "strict" {
		t.Errorf("then = %q", s.Str)
	}
	if s := tern.Else.(*ast.Scalar); s.Str != "relaxed" {
		t.Errorf("else = %q", s.Str)
	}

	cat, ok := f.Statements[1].(*ast.Assignment).Value.(*ast.Concat)
	if !ok {
		t.Fatalf("expected *ast.Concat, got %T", f.Statements[1].(*ast.Assignment).Value)
	}
	if len(cat.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(cat.Parts))
	}
}

func TestParseRange(t *testing.T) {
	input := "ports = 8000-9000\nnot_range = 8000 - 9000\n"

	f := mustParse(t, input)

	r, ok := f.Statements[0].(*ast.Assignment).Value.(*ast.Range)
	if !ok {
		t.Fatalf("expected *ast.Range, got %T", f.Statements[0].(*ast.Assignment).Value)
	}
	if r.Min != 8000 || r.Max != 9000 {
		t.Errorf("range = %d-%d", r.Min, r.Max)
	}

	// With spaces the dash is not a range, so the value is a raw string.
	s, ok := f.Statements[1].(*ast.Assignment).Value.(*ast.Scalar)
	if !ok || s.Kind != ast.RawScalar {
		t.Fatalf("expected raw scalar, got %T", f.Statements[1].(*ast.Assignment).Value)
	}
	if s.Str != "8000 - 9000" {
		t.Errorf("raw = %q", s.Str)
	}
}

func TestParseCommentsAndSemicolons(t *testing.T) {
	input := "# leading comment\nname = \"tusk\";\nport = 8080 # trailing comment\n"

	f := mustParse(t, input)
	if len(f.Statements) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(f.Statements))
	}
	port := f.Statements[1].(*ast.Assignment)
	if s := port.Value.(*ast.Scalar); s.Int != 8080 {
		t.Errorf("port = %d", s.Int)
	}
}

func TestParseDistinctSectionKeys(t *testing.T) {
	input := "[a]\nb = 1\n[c]\nb = 2\n"

	f := mustParse(t, input)
	if len(f.Statements) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(f.Statements))
	}
	if sec := f.Statements[0].(*ast.Section); sec.Name != "a" {
		t.Errorf("first section = %q", sec.Name)
	}
	if sec := f.Statements[2].(*ast.Section); sec.Name != "c" {
		t.Errorf("second section = %q", sec.Name)
	}
}

func TestParseErrorsReportPositions(t *testing.T) {
	input := "[ok]\nkey value\n"

	_, errs := Parse(input, "bad.tsk")
	if len(errs) == 0 {
		t.Fatal("expected parse errors")
	}
	e := errs[0]
	if e.File != "bad.tsk" || e.Line != 2 {
		t.Errorf("error position = %s:%d, want bad.tsk:2", e.File, e.Line)
	}
	if !strings.Contains(e.Error(), "bad.tsk:2:") {
		t.Errorf("formatted error = %q", e.Error())
	}
}

func TestParseRecoversAfterError(t *testing.T) {
	input := "key value\ngood = 1\n"

	f, errs := Parse(input, "test.tsk")
	if len(errs) == 0 {
		t.Fatal("expected parse errors")
	}
	found := false
	for _, s := range f.Statements {
		if a, ok := s.(*ast.Assignment); ok && a.Key == "good" {
			found = true
		}
	}
	if !found {
		t.Error("parser did not recover to parse the following line")
	}
}

func TestParseMultilineString(t *testing.T) {
	input := "process = \"\"\"\nfunction add(a, b) {\n  return a + b\n}\n\"\"\"\n"

	f := mustParse(t, input)
	s, ok := f.Statements[0].(*ast.Assignment).Value.(*ast.Scalar)
	if !ok {
		t.Fatalf("expected *ast.Scalar, got %T", f.Statements[0].(*ast.Assignment).Value)
	}
	if !strings.Contains(s.Str, "function add(a, b)") {
		t.Errorf("multiline body = %q", s.Str)
	}
}
