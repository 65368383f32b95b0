package peanut

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch recompiles .pnt files and reloads the merged config whenever a
// contributing source file changes. It blocks until the context is
// cancelled. onReload, when non-nil, runs after each successful reload.
func (c *Config) Watch(ctx context.Context, logger *slog.Logger, onReload func()) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs := make(map[string]bool)
	for _, src := range c.Sources() {
		dirs[filepath.Dir(src.Path)] = true
	}
	// Always watch the root so a newly created peanut file is picked up.
	dirs[c.root] = true
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logger.Warn("watch failed", "dir", dir, "error", err)
		}
	}

	// Editors produce bursts of events per save; debounce them.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isPeanutFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			logger.Debug("peanut change", "path", event.Name, "op", event.Op.String())
			pending = time.After(250 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)

		case <-pending:
			pending = nil
			if c.autoCompile {
				c.compileStale(logger)
			}
			if err := c.reload(); err != nil {
				logger.Error("peanut reload failed", "error", err)
				continue
			}
			logger.Info("peanut config reloaded", "sources", len(c.Sources()))
			if onReload != nil {
				onReload()
			}
		}
	}
}

func (c *Config) compileStale(logger *slog.Logger) {
	for _, src := range c.Sources() {
		if src.Binary {
			continue
		}
		if !strings.HasSuffix(src.Path, ".tsk") {
			continue
		}
		dst := strings.TrimSuffix(src.Path, ".tsk") + ".pnt"
		if err := CompileFile(src.Path, dst); err != nil {
			logger.Warn("compile failed", "src", src.Path, "error", err)
			continue
		}
		logger.Info("compiled", "src", src.Path, "dst", dst)
	}
}

func isPeanutFile(path string) bool {
	base := filepath.Base(path)
	for _, name := range candidates {
		if base == name {
			return true
		}
	}
	return false
}
