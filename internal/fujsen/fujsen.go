// Package fujsen implements function serialization: a Function bundles a
// piece of source code with its language, dependencies and context so it
// can be stored inside a TuskLang document and executed later, in-process
// for Go and WASM and via subprocess for the scripting languages.
package fujsen

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Sentinel errors.
var (
	ErrUnknownLanguage = errors.New("fujsen: no executor for language")
	ErrExpired         = errors.New("fujsen: function bundle expired")
	ErrNotFound        = errors.New("fujsen: function not found")
)

// Function is a serialized function bundle.
type Function struct {
	Name         string            `json:"name"`
	Language     string            `json:"language"`
	SourceCode   string            `json:"source_code"`
	CompiledCode []byte            `json:"compiled_code,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Context      map[string]any    `json:"context,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at,omitempty"`
}

// CacheKey is md5("name:language:source"), the cross-SDK cache identity
// of a bundle.
func (f *Function) CacheKey() string {
	sum := md5.Sum([]byte(f.Name + ":" + f.Language + ":" + f.SourceCode))
	return hex.EncodeToString(sum[:])
}

// Expired reports whether the bundle's expiry has passed.
func (f *Function) Expired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && now.After(f.ExpiresAt)
}

// Serialize renders the bundle as JSON.
func (f *Function) Serialize() ([]byte, error) {
	return json.Marshal(f)
}

// Deserialize parses a bundle from JSON.
func Deserialize(data []byte) (*Function, error) {
	var f Function
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fujsen: deserialize: %w", err)
	}
	if f.Name == "" || f.Language == "" {
		return nil, errors.New("fujsen: bundle missing name or language")
	}
	return &f, nil
}

// Executor runs a function bundle with call arguments and returns its
// result.
type Executor interface {
	Language() string
	Execute(ctx context.Context, fn *Function, args map[string]any) (any, error)
}

// Runtime holds the per-language executors, the stored bundles, and the
// result cache.
type Runtime struct {
	mu        sync.RWMutex
	executors map[string]Executor
	functions map[string]*Function
	cache     *resultCache
	clock     func() time.Time
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithCacheTTL sets the result cache TTL (default 5 minutes).
func WithCacheTTL(ttl time.Duration) RuntimeOption {
	return func(r *Runtime) { r.cache.ttl = ttl }
}

// WithCacheSize caps the result cache (default 1000 entries). Past the
// cap the oldest half is evicted.
func WithCacheSize(n int) RuntimeOption {
	return func(r *Runtime) { r.cache.maxSize = n }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) RuntimeOption {
	return func(r *Runtime) {
		r.clock = clock
		r.cache.clock = clock
	}
}

// NewRuntime creates a runtime with the standard executors registered:
// go (yaegi), javascript/python/bash (subprocess) and wasm (wazero).
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		executors: make(map[string]Executor),
		functions: make(map[string]*Function),
		cache:     newResultCache(5*time.Minute, 1000),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.RegisterExecutor(newGoExecutor())
	r.RegisterExecutor(newSubprocessExecutor("javascript", "node", "-e"))
	r.RegisterExecutor(newSubprocessExecutor("python", "python3", "-c"))
	r.RegisterExecutor(newSubprocessExecutor("bash", "bash", "-c"))
	r.RegisterExecutor(newWASMExecutor())
	return r
}

// RegisterExecutor adds (or replaces) an executor for its language.
func (r *Runtime) RegisterExecutor(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Language()] = e
}

// Store registers a function bundle under its name.
func (r *Runtime) Store(fn *Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn.CreatedAt.IsZero() {
		fn.CreatedAt = r.clock()
	}
	r.functions[fn.Name] = fn
}

// Lookup returns a stored bundle.
func (r *Runtime) Lookup(name string) (*Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[name]
	return fn, ok
}

// Languages lists the registered executor languages, sorted.
func (r *Runtime) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for l := range r.executors {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Execute runs a bundle with the given arguments. The bundle's stored
// context merges under the call arguments (arguments win), and results
// memoize in the cache keyed by bundle identity plus arguments.
func (r *Runtime) Execute(ctx context.Context, fn *Function, args map[string]any) (any, error) {
	if fn.Expired(r.clock()) {
		return nil, fmt.Errorf("%w: %s", ErrExpired, fn.Name)
	}

	r.mu.RLock()
	exec, ok := r.executors[fn.Language]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownLanguage, fn.Language)
	}

	merged := make(map[string]any, len(fn.Context)+len(args))
	for k, v := range fn.Context {
		merged[k] = v
	}
	for k, v := range args {
		merged[k] = v
	}

	cacheKey := fn.CacheKey() + argsKey(merged)
	if v, hit := r.cache.get(cacheKey); hit {
		return v, nil
	}

	result, err := exec.Execute(ctx, fn, merged)
	if err != nil {
		return nil, fmt.Errorf("fujsen %s (%s): %w", fn.Name, fn.Language, err)
	}
	r.cache.put(cacheKey, result)
	return result, nil
}

// Run implements the operator hook: executes the bundle stored under key.
func (r *Runtime) Run(ctx context.Context, key string, args map[string]any) (any, error) {
	fn, ok := r.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return r.Execute(ctx, fn, args)
}

func argsKey(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	sum := md5.Sum(b)
	return ":" + hex.EncodeToString(sum[:])
}

// resultCache memoizes execution results with TTL expiry and an
// oldest-half eviction past the size cap.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	clock   func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value any
	at    time.Time
}

func newResultCache(ttl time.Duration, maxSize int) *resultCache {
	return &resultCache{
		ttl:     ttl,
		maxSize: maxSize,
		clock:   time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *resultCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock().Sub(e.at) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *resultCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictOldestHalf()
	}
	c.entries[key] = cacheEntry{value: value, at: c.clock()}
}

func (c *resultCache) evictOldestHalf() {
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for _, e := range all[:len(all)/2] {
		delete(c.entries, e.key)
	}
}

// Len reports the number of cached results.
func (c *resultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheLen reports the runtime's cached result count.
func (r *Runtime) CacheLen() int { return r.cache.Len() }
