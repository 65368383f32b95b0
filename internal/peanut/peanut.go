// Package peanut implements the hierarchical auto-discovered configuration
// chain. Each directory from the filesystem root down to the working
// directory may contribute a config file; deeper files win key-by-key via
// a CSS-like deep merge. Within one directory the binary peanut.pnt beats
// peanut.tsk, which beats .peanuts.
package peanut

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tusklang/tusk-go/internal/document"
	"github.com/tusklang/tusk-go/internal/parser"
)

// ConfigEnv names the environment variable pointing at an explicit config
// file prepended to the chain.
const ConfigEnv = "TUSKLANG_CONFIG"

// candidate filenames per directory, in precedence order.
var candidates = []string{"peanut.pnt", "peanut.tsk", ".peanuts"}

// globalDirs seed the chain before the directory walk.
func globalDirs() []string {
	dirs := []string{"/etc/tusklang"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "tusklang"))
	}
	return dirs
}

// Source records one file that contributed to the merged config.
type Source struct {
	Path   string
	Binary bool
}

// Config is the merged hierarchical configuration.
type Config struct {
	mu          sync.RWMutex
	root        string
	autoCompile bool
	values      map[string]any
	sources     []Source
}

// Option configures loading.
type Option func(*Config)

// WithAutoCompile recompiles stale .pnt files next to their sources during
// load.
func WithAutoCompile(enabled bool) Option {
	return func(c *Config) { c.autoCompile = enabled }
}

// Load walks the hierarchy rooted at the global locations down through
// dir's ancestors and merges every config file it finds.
func Load(dir string, opts ...Option) (*Config, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	c := &Config{root: abs, values: make(map[string]any)}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string]any)
	c.sources = nil

	for _, dir := range c.chainDirs() {
		path, ok := pickCandidate(dir)
		if !ok {
			continue
		}
		if err := c.mergeFile(path); err != nil {
			return err
		}
	}
	if explicit := os.Getenv(ConfigEnv); explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			if err := c.mergeFile(explicit); err != nil {
				return err
			}
		}
	}
	return nil
}

// chainDirs lists the directories to probe, shallowest first so deeper
// files override during the merge.
func (c *Config) chainDirs() []string {
	var walk []string
	dir := c.root
	for {
		walk = append(walk, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	// walk is deepest-first; reverse it and put the global dirs ahead.
	out := append([]string{}, globalDirs()...)
	for i := len(walk) - 1; i >= 0; i-- {
		out = append(out, walk[i])
	}
	return out
}

func pickCandidate(dir string) (string, bool) {
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return path, true
	}
	return "", false
}

func (c *Config) mergeFile(path string) error {
	binaryFile := strings.HasSuffix(path, ".pnt")

	if c.autoCompile && binaryFile {
		if src, ok := staleSource(path); ok {
			if err := CompileFile(src, path); err != nil {
				return fmt.Errorf("auto-compile %s: %w", src, err)
			}
		}
	}

	var values map[string]any
	var err error
	if binaryFile {
		values, err = ReadBinary(path)
	} else {
		values, err = parseTextConfig(path)
	}
	if err != nil {
		return err
	}

	deepMerge(c.values, values)
	c.sources = append(c.sources, Source{Path: path, Binary: binaryFile})
	return nil
}

// staleSource reports whether a source file next to the .pnt is newer
// than it.
func staleSource(pntPath string) (string, bool) {
	pntInfo, err := os.Stat(pntPath)
	if err != nil {
		return "", false
	}
	dir := filepath.Dir(pntPath)
	for _, name := range []string{"peanut.tsk", ".peanuts"} {
		src := filepath.Join(dir, name)
		info, err := os.Stat(src)
		if err != nil {
			continue
		}
		if info.ModTime().After(pntInfo.ModTime()) {
			return src, true
		}
	}
	return "", false
}

// parseTextConfig evaluates a .tsk/.peanuts file into nested maps. Only
// the structural subset runs here: peanut files configure the runtime
// itself, so operator dispatch is not available during their load.
func parseTextConfig(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, errs := parser.Parse(string(data), path)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	doc, err := structuralDocument(f)
	if err != nil {
		return nil, err
	}
	return doc.Nested(), nil
}

// deepMerge overlays src onto dst, descending into maps so deeper files
// override individual keys rather than whole sections.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				deepMerge(dv, sv)
				continue
			}
			child := make(map[string]any, len(sv))
			deepMerge(child, sv)
			dst[k] = child
			continue
		}
		dst[k] = v
	}
}

// Get resolves a dotted path into the merged values.
func (c *Config) Get(key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var node any = c.values
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = m[part]
		if !ok {
			return nil
		}
	}
	return node
}

// GetString returns the value at key rendered as a string.
func (c *Config) GetString(key string) string {
	v := c.Get(key)
	if v == nil {
		return ""
	}
	return document.Stringify(v)
}

// Values returns a deep copy of the merged map.
func (c *Config) Values() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	deepMerge(out, c.values)
	return out
}

// Sources lists the files that contributed, in merge order.
func (c *Config) Sources() []Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Source(nil), c.sources...)
}

// Keys returns all dotted paths, sorted.
func (c *Config) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []string
	collectKeys("", c.values, &keys)
	sort.Strings(keys)
	return keys
}

func collectKeys(prefix string, m map[string]any, out *[]string) {
	for k, v := range m {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			collectKeys(full, child, out)
			continue
		}
		*out = append(*out, full)
	}
}

// Reload re-walks the hierarchy. The watcher calls it on file events.
func (c *Config) Reload(_ context.Context) error {
	return c.reload()
}
