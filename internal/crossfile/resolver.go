// Package crossfile resolves @file.tsk.get("key") and @file.tsk.set(...)
// references between TuskLang documents. Files are discovered by probing a
// fixed list of directories relative to the referencing document, loaded
// once per modification, and memoized per file:key.
package crossfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tusklang/tusk-go/internal/document"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound reports that no probe directory contains the requested file.
var ErrNotFound = errors.New("file not found")

// DefaultSearchPaths is the probe order inherited from the language:
// the current directory, ./config, the parent, and ../config.
var DefaultSearchPaths = []string{".", "./config", "..", "../config"}

// LoadFunc parses and evaluates one file into a document. The resolver
// stays parser-agnostic; the evaluator supplies this at wiring time.
type LoadFunc func(ctx context.Context, path string) (*document.Document, error)

type cacheEntry struct {
	value  any
	ok     bool
	mtime  time.Time
	path   string
	loaded time.Time
}

// Resolver implements cross-file gets and sets with an mtime-validated
// cache. A cached entry is reused only while the backing file's
// modification time is unchanged; the never-invalidated cache of the
// original language was a documented gap, not a behavior to keep.
type Resolver struct {
	mu      sync.RWMutex
	baseDir string
	paths   []string
	cache   map[string]cacheEntry
	docs    map[string]*document.Document
	load    LoadFunc
	group   singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSearchPaths replaces the probe directories.
func WithSearchPaths(paths ...string) Option {
	return func(r *Resolver) { r.paths = paths }
}

// WithExtraPaths appends probe directories after the defaults.
func WithExtraPaths(paths ...string) Option {
	return func(r *Resolver) { r.paths = append(r.paths, paths...) }
}

// New creates a resolver rooted at baseDir. The loader must be attached
// with SetLoader before the first Get; construction order is circular with
// the evaluator, which needs the resolver as one of its backends.
func New(baseDir string, opts ...Option) *Resolver {
	r := &Resolver{
		baseDir: baseDir,
		paths:   append([]string(nil), DefaultSearchPaths...),
		cache:   make(map[string]cacheEntry),
		docs:    make(map[string]*document.Document),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLoader attaches the parse-and-evaluate function.
func (r *Resolver) SetLoader(load LoadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load = load
}

type chainKey struct{}

// loadChain returns the chain of files currently being resolved on this
// context, used to detect reference cycles.
func loadChain(ctx context.Context) []string {
	chain, _ := ctx.Value(chainKey{}).([]string)
	return chain
}

// Get resolves key in the named file (the base name, without the .tsk
// suffix). Results memoize per file:key until the file's mtime changes.
func (r *Resolver) Get(ctx context.Context, file, key string) (any, error) {
	path, mtime, err := r.locate(file)
	if err != nil {
		return nil, err
	}

	cacheKey := file + ":" + key
	r.mu.RLock()
	entry, hit := r.cache[cacheKey]
	r.mu.RUnlock()
	if hit && entry.mtime.Equal(mtime) {
		if !entry.ok {
			return nil, fmt.Errorf("key %q not found in %s", key, path)
		}
		return entry.value, nil
	}

	for _, seen := range loadChain(ctx) {
		if seen == path {
			return nil, fmt.Errorf("cross-file cycle: %s", strings.Join(append(loadChain(ctx), path), " -> "))
		}
	}

	doc, err := r.loadDoc(ctx, path, mtime)
	if err != nil {
		return nil, err
	}

	value, ok := doc.Get(key)
	r.mu.Lock()
	r.cache[cacheKey] = cacheEntry{value: value, ok: ok, mtime: mtime, path: path, loaded: time.Now()}
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("key %q not found in %s", key, path)
	}
	return value, nil
}

// Set updates key in the named file's in-memory document. There is no
// write-back to disk; the updated value is visible to later gets until the
// underlying file changes.
func (r *Resolver) Set(ctx context.Context, file, key string, value any) error {
	path, mtime, err := r.locate(file)
	if err != nil {
		return err
	}
	doc, err := r.loadDoc(ctx, path, mtime)
	if err != nil {
		return err
	}
	doc.Set(key, value)

	r.mu.Lock()
	r.cache[file+":"+key] = cacheEntry{value: value, ok: true, mtime: mtime, path: path, loaded: time.Now()}
	r.mu.Unlock()
	return nil
}

// Invalidate drops all cached entries.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cacheEntry)
	r.docs = make(map[string]*document.Document)
}

// Stats reports the cache size.
func (r *Resolver) Stats() (entries int, files int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache), len(r.docs)
}

// locate probes the search paths for file.tsk and returns the first hit
// with its modification time.
func (r *Resolver) locate(file string) (string, time.Time, error) {
	name := file
	if !strings.HasSuffix(name, ".tsk") {
		name += ".tsk"
	}
	for _, dir := range r.paths {
		path := filepath.Join(r.baseDir, dir, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, info.ModTime(), nil
		}
	}
	return "", time.Time{}, fmt.Errorf("%s: %w (searched %s)", name, ErrNotFound, strings.Join(r.paths, ", "))
}

// loadDoc loads a file's document, deduplicating concurrent loads of the
// same path+mtime through singleflight.
func (r *Resolver) loadDoc(ctx context.Context, path string, mtime time.Time) (*document.Document, error) {
	r.mu.RLock()
	doc, cached := r.docs[path]
	load := r.load
	r.mu.RUnlock()

	if cached {
		// Reload only when any cache entry for this path is stale.
		if !r.stale(path, mtime) {
			return doc, nil
		}
	}
	if load == nil {
		return nil, errors.New("crossfile: no loader attached")
	}

	flightKey := fmt.Sprintf("%s@%d", path, mtime.UnixNano())
	v, err, _ := r.group.Do(flightKey, func() (any, error) {
		loadCtx := context.WithValue(ctx, chainKey{}, append(loadChain(ctx), path))
		d, err := load(loadCtx, path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		r.mu.Lock()
		r.docs[path] = d
		for k, e := range r.cache {
			if e.path == path && !e.mtime.Equal(mtime) {
				delete(r.cache, k)
			}
		}
		r.mu.Unlock()
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*document.Document), nil
}

func (r *Resolver) stale(path string, mtime time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.cache {
		if e.path == path {
			return !e.mtime.Equal(mtime)
		}
	}
	return false
}
