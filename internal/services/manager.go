// Package services manages background processes declared in the [services]
// section of the configuration: start, stop, status and health checks, with
// PIDs tracked in the local state store.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tusklang/tusk-go/internal/document"
	"github.com/tusklang/tusk-go/internal/state"
)

// Spec describes a managed service from configuration.
type Spec struct {
	Name    string
	Command string
	Args    []string
	Port    int
	Health  string // health check URL, optional
	LogFile string
}

// Status is one service's runtime state.
type Status struct {
	Name      string    `json:"name"`
	State     string    `json:"state"` // running, stopped, stale
	PID       int       `json:"pid,omitempty"`
	Port      int       `json:"port,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Health    string    `json:"health,omitempty"`
}

// Manager starts and stops services against the state-store registry.
type Manager struct {
	store  *state.Store
	logger *slog.Logger
	logDir string
}

// NewManager creates a manager. logDir receives per-service log files;
// empty means ~/.tsk/logs.
func NewManager(store *state.Store, logger *slog.Logger, logDir string) *Manager {
	if logDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			logDir = filepath.Join(home, ".tsk", "logs")
		}
	}
	return &Manager{store: store, logger: logger, logDir: logDir}
}

// SpecsFromSection reads service specs out of a flattened services section,
// where each service is `services.<name>.command` plus optional port,
// health and args keys.
func SpecsFromSection(section map[string]any) []Spec {
	byName := make(map[string]*Spec)
	ordered := []string{}
	for key, v := range section {
		name, field, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		spec, seen := byName[name]
		if !seen {
			spec = &Spec{Name: name}
			byName[name] = spec
			ordered = append(ordered, name)
		}
		switch field {
		case "command":
			spec.Command = document.Stringify(v)
		case "args":
			if list, isList := v.([]any); isList {
				for _, a := range list {
					spec.Args = append(spec.Args, document.Stringify(a))
				}
			} else {
				spec.Args = strings.Fields(document.Stringify(v))
			}
		case "port":
			if n, isInt := v.(int64); isInt {
				spec.Port = int(n)
			}
		case "health":
			spec.Health = document.Stringify(v)
		case "log":
			spec.LogFile = document.Stringify(v)
		}
	}

	specs := make([]Spec, 0, len(ordered))
	for _, name := range ordered {
		if byName[name].Command != "" {
			specs = append(specs, *byName[name])
		}
	}
	return specs
}

// Start launches a service and records it in the registry. A service whose
// recorded PID is still alive is left alone.
func (m *Manager) Start(ctx context.Context, spec Spec) (*Status, error) {
	if existing, err := m.store.GetService(ctx, spec.Name); err == nil && existing != nil {
		if processAlive(existing.PID) {
			return &Status{
				Name:      existing.Name,
				State:     "running",
				PID:       existing.PID,
				Port:      existing.Port,
				StartedAt: existing.StartedAt,
			}, nil
		}
	}

	logPath := spec.LogFile
	if logPath == "" {
		logPath = filepath.Join(m.logDir, spec.Name+".log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// New process group so stopping the CLI does not kill the service.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	pid := cmd.Process.Pid
	_ = logFile.Close()

	// Reap in the background so the child never zombies while we live.
	go func() { _ = cmd.Wait() }()

	if spec.Health != "" {
		if err := WaitForHealth(ctx, spec.Health, 30*time.Second); err != nil {
			_ = syscall.Kill(-pid, syscall.SIGTERM)
			return nil, fmt.Errorf("%s health check: %w", spec.Name, err)
		}
	}

	svc := state.Service{
		Name:    spec.Name,
		PID:     pid,
		Port:    spec.Port,
		Command: spec.Command + " " + strings.Join(spec.Args, " "),
	}
	if err := m.store.RegisterService(ctx, svc); err != nil {
		return nil, fmt.Errorf("register %s: %w", spec.Name, err)
	}

	m.logger.Info("service started", "name", spec.Name, "pid", pid, "log", logPath)
	return &Status{Name: spec.Name, State: "running", PID: pid, Port: spec.Port, StartedAt: time.Now()}, nil
}

// Stop terminates a registered service. SIGTERM first, SIGKILL after the
// grace period.
func (m *Manager) Stop(ctx context.Context, name string) error {
	svc, err := m.store.GetService(ctx, name)
	if err != nil {
		return err
	}
	if svc == nil {
		return fmt.Errorf("service %q not registered", name)
	}

	if processAlive(svc.PID) {
		_ = syscall.Kill(-svc.PID, syscall.SIGTERM)
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) && processAlive(svc.PID) {
			time.Sleep(100 * time.Millisecond)
		}
		if processAlive(svc.PID) {
			_ = syscall.Kill(-svc.PID, syscall.SIGKILL)
		}
	}

	if err := m.store.UnregisterService(ctx, name); err != nil {
		return err
	}
	m.logger.Info("service stopped", "name", name, "pid", svc.PID)
	return nil
}

// Restart stops then starts a service.
func (m *Manager) Restart(ctx context.Context, spec Spec) (*Status, error) {
	if err := m.Stop(ctx, spec.Name); err != nil {
		m.logger.Warn("restart: stop failed", "name", spec.Name, "error", err)
	}
	return m.Start(ctx, spec)
}

// StatusAll reports on every registered service.
func (m *Manager) StatusAll(ctx context.Context) ([]Status, error) {
	registered, err := m.store.Services(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(registered))
	for _, svc := range registered {
		s := Status{
			Name:      svc.Name,
			State:     "stale",
			PID:       svc.PID,
			Port:      svc.Port,
			StartedAt: svc.StartedAt,
		}
		if processAlive(svc.PID) {
			s.State = "running"
		}
		out = append(out, s)
	}
	return out, nil
}

// Health probes every running service that exposes a port, concurrently.
func (m *Manager) Health(ctx context.Context, specs []Spec) (map[string]string, error) {
	byName := make(map[string]Spec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	statuses, err := m.StatusAll(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	results := make(map[string]string, len(statuses))
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range statuses {
		if st.State != "running" {
			results[st.Name] = "stopped"
			continue
		}
		spec, ok := byName[st.Name]
		if !ok || spec.Health == "" {
			results[st.Name] = "unknown"
			continue
		}
		name, url := st.Name, spec.Health
		g.Go(func() error {
			outcome := "healthy"
			if err := WaitForHealth(gctx, url, 3*time.Second); err != nil {
				outcome = "unhealthy"
			}
			mu.Lock()
			results[name] = outcome
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Logs copies the tail of a service's log file to w.
func (m *Manager) Logs(_ context.Context, name string, w io.Writer, lines int) error {
	path := filepath.Join(m.logDir, name+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read logs for %s: %w", name, err)
	}
	if lines > 0 {
		all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if len(all) > lines {
			all = all[len(all)-lines:]
		}
		data = []byte(strings.Join(all, "\n") + "\n")
	}
	_, err = w.Write(data)
	return err
}

// processAlive reports whether a PID refers to a live process we can
// signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
