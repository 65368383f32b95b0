// Package document implements the flattened key/value model produced by
// evaluating a TuskLang (.tsk) file. Nesting is encoded in the key string:
// a key inside [section] becomes "section.key", an entry of a nested block
// becomes "section.block.key", and top-level keys keep their bare name.
package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Document is an ordered mapping from dotted-path keys to evaluated values.
// Values are plain Go types: string, int64, float64, bool, nil,
// []any and map[string]any.
type Document struct {
	mu     sync.RWMutex
	values map[string]any
	order  []string
}

// New creates an empty document.
func New() *Document {
	return &Document{values: make(map[string]any)}
}

// Set stores a value under the given dotted key, appending to the key order
// on first assignment. Reassignment keeps the original position.
func (d *Document) Set(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.values[key]; !exists {
		d.order = append(d.order, key)
	}
	d.values[key] = value
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.values[key]
	return v, ok
}

// Delete removes a key. Missing keys are a no-op.
func (d *Document) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.values)
}

// Keys returns all keys in assignment order.
func (d *Document) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, len(d.order))
	copy(keys, d.order)
	return keys
}

// Section returns the keys under the given prefix with the prefix stripped,
// preserving assignment order. Section("db") on a document holding db.host
// and db.port yields {"host": ..., "port": ...}.
func (d *Document) Section(prefix string) map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any)
	p := prefix + "."
	for _, k := range d.order {
		if strings.HasPrefix(k, p) {
			out[strings.TrimPrefix(k, p)] = d.values[k]
		}
	}
	return out
}

// SectionNames returns the distinct first path components, sorted.
func (d *Document) SectionNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := make(map[string]bool)
	for _, k := range d.order {
		if i := strings.IndexByte(k, '.'); i > 0 {
			seen[k[:i]] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GetString returns the value under key coerced to a string. Non-string
// scalars render via fmt; missing keys return the empty string.
func (d *Document) GetString(key string) string {
	v, ok := d.Get(key)
	if !ok || v == nil {
		return ""
	}
	return Stringify(v)
}

// GetInt returns the value under key as an int64, coercing floats and
// numeric strings. The bool result reports whether the coercion succeeded.
func (d *Document) GetInt(key string) (int64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	return ToInt(v)
}

// GetFloat returns the value under key as a float64.
func (d *Document) GetFloat(key string) (float64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// GetBool returns the value under key interpreted by TuskLang truthiness.
func (d *Document) GetBool(key string) bool {
	v, ok := d.Get(key)
	if !ok {
		return false
	}
	return Truthy(v)
}

// GetStringSlice returns the value under key as a string slice. Arrays
// stringify element-wise; a scalar becomes a single-element slice.
func (d *Document) GetStringSlice(key string) []string {
	v, ok := d.Get(key)
	if !ok || v == nil {
		return nil
	}
	if arr, isArr := v.([]any); isArr {
		out := make([]string, len(arr))
		for i, e := range arr {
			out[i] = Stringify(e)
		}
		return out
	}
	return []string{Stringify(v)}
}

// Map returns a copy of the flat key/value mapping.
func (d *Document) Map() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// Nested rebuilds the hierarchical form of the document: dotted keys become
// nested maps. Assignment order decides which entry wins when a scalar and a
// subtree collide (later wins, matching reassignment semantics).
func (d *Document) Nested() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	root := make(map[string]any)
	for _, key := range d.order {
		parts := strings.Split(key, ".")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = d.values[key]
	}
	return root
}

// MarshalJSON renders the nested form.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Nested())
}

// FromMap builds a document from a nested map, flattening map values into
// dotted keys. Arrays are stored whole.
func FromMap(m map[string]any) *Document {
	d := New()
	flattenInto(d, "", m)
	return d
}

func flattenInto(d *Document, prefix string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if child, ok := m[k].(map[string]any); ok {
			flattenInto(d, full, child)
			continue
		}
		d.Set(full, m[k])
	}
}

// ------------------------------------------------------------------
// Value coercion
// ------------------------------------------------------------------

// Stringify renders a value the way TuskLang prints it: strings verbatim,
// bools and null as their keywords, numbers without exponent noise, and
// composites as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ToInt coerces a value to int64.
func ToInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ToFloat coerces a value to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Truthy implements TuskLang condition truthiness: false, null, zero,
// "0", "false", "null" and the empty string are falsy, everything else
// is truthy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		s := strings.TrimSpace(strings.ToLower(t))
		return s != "" && s != "false" && s != "null" && s != "0"
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}
