package document

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSetPreservesOrder(t *testing.T) {
	d := New()
	d.Set("b", int64(1))
	d.Set("a", int64(2))
	d.Set("b", int64(3)) // reassignment keeps position

	want := []string{"b", "a"}
	if got := d.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	if v, _ := d.Get("b"); v != int64(3) {
		t.Fatalf("b = %v, want 3", v)
	}
}

func TestDelete(t *testing.T) {
	d := New()
	d.Set("a", 1)
	d.Set("b", 2)
	d.Delete("a")
	d.Delete("missing")

	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", d.Len())
	}
	if got := d.Keys(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("Keys() = %v", got)
	}
}

func TestSectionAndSectionNames(t *testing.T) {
	d := New()
	d.Set("name", "app")
	d.Set("db.host", "localhost")
	d.Set("db.port", int64(5432))
	d.Set("cache.ttl", int64(300))

	sec := d.Section("db")
	if sec["host"] != "localhost" || sec["port"] != int64(5432) {
		t.Fatalf("Section(db) = %v", sec)
	}
	if names := d.SectionNames(); !reflect.DeepEqual(names, []string{"cache", "db"}) {
		t.Fatalf("SectionNames() = %v", names)
	}
}

func TestSectionKeysAreDistinct(t *testing.T) {
	d := New()
	d.Set("a.b", int64(1))
	d.Set("c.b", int64(2))

	av, _ := d.Get("a.b")
	cv, _ := d.Get("c.b")
	if av == cv {
		t.Fatalf("a.b and c.b collided: %v", av)
	}
}

func TestTypedGetters(t *testing.T) {
	d := New()
	d.Set("port", int64(8080))
	d.Set("ratio", 0.5)
	d.Set("portstr", "9090")
	d.Set("on", true)
	d.Set("hosts", []any{"a", "b", int64(3)})

	if n, ok := d.GetInt("port"); !ok || n != 8080 {
		t.Errorf("GetInt(port) = %d, %v", n, ok)
	}
	if n, ok := d.GetInt("portstr"); !ok || n != 9090 {
		t.Errorf("GetInt(portstr) = %d, %v", n, ok)
	}
	if f, ok := d.GetFloat("ratio"); !ok || f != 0.5 {
		t.Errorf("GetFloat(ratio) = %v, %v", f, ok)
	}
	if !d.GetBool("on") {
		t.Errorf("GetBool(on) = false")
	}
	if d.GetBool("missing") {
		t.Errorf("GetBool(missing) = true")
	}
	if s := d.GetString("port"); s != "8080" {
		t.Errorf("GetString(port) = %q", s)
	}
	want := []string{"a", "b", "3"}
	if got := d.GetStringSlice("hosts"); !reflect.DeepEqual(got, want) {
		t.Errorf("GetStringSlice(hosts) = %v", got)
	}
	if got := d.GetStringSlice("port"); !reflect.DeepEqual(got, []string{"8080"}) {
		t.Errorf("GetStringSlice(port) = %v", got)
	}
}

func TestNested(t *testing.T) {
	d := New()
	d.Set("name", "app")
	d.Set("db.host", "localhost")
	d.Set("db.pool.size", int64(10))

	got := d.Nested()
	db, ok := got["db"].(map[string]any)
	if !ok {
		t.Fatalf("db is not a map: %T", got["db"])
	}
	if db["host"] != "localhost" {
		t.Errorf("db.host = %v", db["host"])
	}
	pool, ok := db["pool"].(map[string]any)
	if !ok || pool["size"] != int64(10) {
		t.Errorf("db.pool = %v", db["pool"])
	}
}

func TestMarshalJSON(t *testing.T) {
	d := New()
	d.Set("db.port", int64(5432))

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"db":{"port":5432}}` {
		t.Fatalf("json = %s", data)
	}
}

func TestFromMapRoundTrip(t *testing.T) {
	m := map[string]any{
		"name": "app",
		"db": map[string]any{
			"host": "localhost",
			"port": int64(5432),
		},
	}
	d := FromMap(m)
	if v, _ := d.Get("db.host"); v != "localhost" {
		t.Fatalf("db.host = %v", v)
	}
	if !reflect.DeepEqual(d.Nested(), m) {
		t.Fatalf("round trip mismatch: %v", d.Nested())
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"x", "x"},
		{int64(42), "42"},
		{2.5, "2.5"},
		{true, "true"},
		{[]any{int64(1), "a"}, `[1,"a"]`},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToInt(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int64(5), 5, true},
		{5.0, 5, true},
		{"12", 12, true},
		{"nope", 0, false},
		{true, 1, true},
	}
	for _, tt := range tests {
		got, ok := ToInt(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ToInt(%v) = %d, %v", tt.in, got, ok)
		}
	}
}

func TestTruthy(t *testing.T) {
	truthy := []any{true, int64(1), 0.1, "x", []any{int64(1)}}
	falsy := []any{nil, false, int64(0), 0.0, "", []any{}}
	for _, v := range truthy {
		if !Truthy(v) {
			t.Errorf("Truthy(%#v) = false", v)
		}
	}
	for _, v := range falsy {
		if Truthy(v) {
			t.Errorf("Truthy(%#v) = true", v)
		}
	}
}
