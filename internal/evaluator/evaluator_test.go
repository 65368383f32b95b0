package evaluator

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func evalSource(t *testing.T, src string, opts ...Option) map[string]any {
	t.Helper()
	e := New(opts...)
	doc, err := e.Parse(context.Background(), src, "test.tsk")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	return doc.Map()
}

func TestScalarTypes(t *testing.T) {
	got := evalSource(t, `
x = "hi"
n = 5
f = 5.5
yes = true
no = false
nothing = null
`)
	want := map[string]any{
		"x":       "hi",
		"n":       int64(5),
		"f":       5.5,
		"yes":     true,
		"no":      false,
		"nothing": nil,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestSectionsFlattenToDottedKeys(t *testing.T) {
	got := evalSource(t, `
[db]
host = "localhost"
port = 5432

[cache]
ttl = 300
`)
	if got["db.host"] != "localhost" || got["db.port"] != int64(5432) {
		t.Errorf("db section = %v", got)
	}
	if got["cache.ttl"] != int64(300) {
		t.Errorf("cache section = %v", got)
	}
}

func TestSameKeyInDifferentSections(t *testing.T) {
	got := evalSource(t, `
[a]
b = 1

[c]
b = 2
`)
	if got["a.b"] != int64(1) || got["c.b"] != int64(2) {
		t.Fatalf("section keys collided: %v", got)
	}
}

func TestGlobalsResolveAcrossSections(t *testing.T) {
	got := evalSource(t, `
$base = "/srv"

[app]
root = $base
joined = $base + "/app"
`)
	if got["app.root"] != "/srv" {
		t.Errorf("app.root = %v", got["app.root"])
	}
	if got["app.joined"] != "/srv/app" {
		t.Errorf("app.joined = %v", got["app.joined"])
	}
}

func TestSectionLocalBeforeGlobal(t *testing.T) {
	got := evalSource(t, `
name = "top"

[svc]
name = "local"
uses = name
`)
	if got["svc.uses"] != "local" {
		t.Fatalf("svc.uses = %v, want section-local value", got["svc.uses"])
	}
}

func TestUnresolvedIdentifierKeepsSpelling(t *testing.T) {
	got := evalSource(t, `x = some_bare_word`)
	if got["x"] != "some_bare_word" {
		t.Fatalf("x = %v", got["x"])
	}
}

func TestBlocks(t *testing.T) {
	got := evalSource(t, `
[server]
limits {
  max_conns = 100
  timeout = 30
}
`)
	if got["server.limits.max_conns"] != int64(100) {
		t.Errorf("nested block key = %v", got)
	}
	if got["server.limits.timeout"] != int64(30) {
		t.Errorf("nested block key = %v", got)
	}
}

func TestArraysAndObjects(t *testing.T) {
	got := evalSource(t, `
hosts = ["a", "b"]
limits = {"soft": 10, "hard": 20}
mixed = [1, "two", true]
`)
	if !reflect.DeepEqual(got["hosts"], []any{"a", "b"}) {
		t.Errorf("hosts = %#v", got["hosts"])
	}
	limits, ok := got["limits"].(map[string]any)
	if !ok || limits["soft"] != int64(10) || limits["hard"] != int64(20) {
		t.Errorf("limits = %#v", got["limits"])
	}
	if !reflect.DeepEqual(got["mixed"], []any{int64(1), "two", true}) {
		t.Errorf("mixed = %#v", got["mixed"])
	}
}

func TestRangeValue(t *testing.T) {
	got := evalSource(t, `ports = 8000-9000`)
	want := map[string]any{"min": int64(8000), "max": int64(9000), "type": "range"}
	if !reflect.DeepEqual(got["ports"], want) {
		t.Fatalf("ports = %#v", got["ports"])
	}
}

func TestConcatStringifiesParts(t *testing.T) {
	got := evalSource(t, `
port = 8080
url = "http://host:" + port + "/api"
`)
	if got["url"] != "http://host:8080/api" {
		t.Fatalf("url = %v", got["url"])
	}
}

func TestTernary(t *testing.T) {
	got := evalSource(t, `
$debug = true
level = $debug ? "verbose" : "quiet"
other = 0 ? "a" : "b"
`)
	if got["level"] != "verbose" {
		t.Errorf("level = %v", got["level"])
	}
	if got["other"] != "b" {
		t.Errorf("other = %v", got["other"])
	}
}

func TestTernaryComparisons(t *testing.T) {
	got := evalSource(t, `
n = 5
a = n > 3 ? "big" : "small"
b = n == 5 ? "eq" : "ne"
c = n < 3 ? "lt" : "ge"
`)
	if got["a"] != "big" || got["b"] != "eq" || got["c"] != "ge" {
		t.Fatalf("comparisons = %v", got)
	}
}

func TestOperatorCallThroughRegistry(t *testing.T) {
	t.Setenv("TSK_EVAL_TEST", "wired")
	got := evalSource(t, `v = @env("TSK_EVAL_TEST")`)
	if got["v"] != "wired" {
		t.Fatalf("v = %v", got["v"])
	}
}

func TestOperatorArgsSeeDocumentState(t *testing.T) {
	got := evalSource(t, `
word = "go"
up = @string("uppercase", word)
`)
	if got["up"] != "GO" {
		t.Fatalf("up = %v", got["up"])
	}
}

func TestClockOption(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := evalSource(t, `ts = @date("Y-m-d")`, WithClock(func() time.Time { return fixed }))
	if got["ts"] != "2024-01-02" {
		t.Fatalf("ts = %v", got["ts"])
	}
}

type fakeCrossFile struct {
	gets map[string]any
	sets map[string]any
}

func (f *fakeCrossFile) Get(_ context.Context, file, key string) (any, error) {
	return f.gets[file+"#"+key], nil
}

func (f *fakeCrossFile) Set(_ context.Context, file, key string, value any) error {
	f.sets[file+"#"+key] = value
	return nil
}

func TestCrossFileGetSet(t *testing.T) {
	cf := &fakeCrossFile{
		gets: map[string]any{"other.tsk#db.host": "remote"},
		sets: map[string]any{},
	}
	got := evalSource(t, `
host = @other.tsk.get("db.host")
saved = @other.tsk.set("status", "ok")
`, WithCrossFile(cf))

	if got["host"] != "remote" {
		t.Errorf("host = %v", got["host"])
	}
	if got["saved"] != "ok" {
		t.Errorf("set returns the value, got %v", got["saved"])
	}
	if cf.sets["other.tsk#status"] != "ok" {
		t.Errorf("resolver sets = %v", cf.sets)
	}
}

func TestCrossFileWithoutResolverFails(t *testing.T) {
	e := New()
	_, err := e.Parse(context.Background(), `x = @other.tsk.get("k")`, "test.tsk")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseErrorSurfaces(t *testing.T) {
	e := New()
	_, err := e.Parse(context.Background(), `arr = [1, 2`, "bad.tsk")
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGlobalInsideSectionAlsoSetsSectionKey(t *testing.T) {
	got := evalSource(t, `
[app]
$shared = "v"
next = $shared
`)
	if got["app.shared"] != "v" {
		t.Errorf("app.shared = %v", got["app.shared"])
	}
	if got["app.next"] != "v" {
		t.Errorf("app.next = %v", got["app.next"])
	}
}

type stubProtector struct{}

func (stubProtector) Encrypt(plaintext, purpose string) (string, error) {
	return "enc:" + purpose + ":" + plaintext, nil
}

func (stubProtector) Decrypt(ciphertext, purpose string) (string, error) {
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

func (stubProtector) Sign(data string) string { return "sig:" + data }

func (stubProtector) Verify(data, signature string) bool { return signature == "sig:"+data }

type stubLicense struct{ valid bool }

func (s stubLicense) Valid() bool { return s.valid }

func (s stubLicense) Allows(string) bool { return s.valid }

func TestDottedOperatorNamesDispatch(t *testing.T) {
	got := evalSource(t, `
[audit]
sig = @protection.sign("ship it")
ok = @protection.verify("ship it", "sig:ship it")
bad = @protection.verify("ship it", "sig:tampered")
licensed = @license.valid()
`, WithProtection(stubProtector{}), WithLicense(stubLicense{valid: true}))
	if got["audit.sig"] != "sig:ship it" {
		t.Errorf("audit.sig = %v", got["audit.sig"])
	}
	if got["audit.ok"] != true {
		t.Errorf("audit.ok = %v", got["audit.ok"])
	}
	if got["audit.bad"] != false {
		t.Errorf("audit.bad = %v", got["audit.bad"])
	}
	if got["audit.licensed"] != true {
		t.Errorf("audit.licensed = %v", got["audit.licensed"])
	}
}

func TestDottedOperatorNeedsAdjacentSegments(t *testing.T) {
	got := evalSource(t, `spaced = @protection . sign("x")`, WithProtection(stubProtector{}))
	s, ok := got["spaced"].(string)
	if !ok || !strings.HasPrefix(s, "@protection") {
		t.Fatalf("spaced = %#v, want the raw spelling", got["spaced"])
	}
}

func TestMissingGlobalReadsAsEmptyString(t *testing.T) {
	got := evalSource(t, `greeting = "hi " + $nobody`)
	if got["greeting"] != "hi " {
		t.Fatalf("greeting = %#v", got["greeting"])
	}
	got = evalSource(t, `alone = $nobody`)
	if got["alone"] != "" {
		t.Fatalf("alone = %#v, want empty string", got["alone"])
	}
}
