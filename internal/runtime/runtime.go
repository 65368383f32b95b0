package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tusklang/tusk-go/internal/ai"
	"github.com/tusklang/tusk-go/internal/cache"
	"github.com/tusklang/tusk-go/internal/crossfile"
	"github.com/tusklang/tusk-go/internal/dbal"
	"github.com/tusklang/tusk-go/internal/document"
	"github.com/tusklang/tusk-go/internal/evaluator"
	"github.com/tusklang/tusk-go/internal/fujsen"
	"github.com/tusklang/tusk-go/internal/license"
	"github.com/tusklang/tusk-go/internal/operators"
	"github.com/tusklang/tusk-go/internal/peanut"
	"github.com/tusklang/tusk-go/internal/protection"
	"github.com/tusklang/tusk-go/internal/state"
	"github.com/tusklang/tusk-go/internal/telemetry"
)

// Runtime owns the fully wired engine for one working directory.
type Runtime struct {
	settings  Settings
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	peanut    *peanut.Config
	crossfile *crossfile.Resolver
	cache     *cache.Memory
	evaluator *evaluator.Evaluator
	functions *fujsen.Runtime
	protect   operators.Protector
	store     *state.Store
	db        dbal.Adapter
	ai        *ai.Service
	validator *license.Validator
	infra     *operators.Infra
	redact    *telemetry.RedactFilter

	mu       sync.Mutex
	watchers []chan string
}

// Option configures the runtime.
type Option func(*Runtime)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithSettings overrides the settings resolved from the peanut hierarchy.
func WithSettings(s Settings) Option {
	return func(r *Runtime) { r.settings = s }
}

// New wires the engine for baseDir. Every backend is optional at
// evaluation time; wiring failures for optional backends are logged and
// the corresponding operators degrade to their not-configured errors.
func New(ctx context.Context, baseDir string, opts ...Option) (*Runtime, error) {
	if baseDir == "" {
		baseDir = "."
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}

	r := &Runtime{
		logger:  telemetry.NewLogger(os.Stderr, slog.LevelInfo),
		metrics: telemetry.NewMetrics(),
		cache:   cache.New(),
	}

	// Peanut hierarchy loads first; everything else configures from it.
	pn, err := peanut.Load(abs)
	if err != nil {
		r.logger.Warn("peanut config unavailable", "dir", abs, "error", err)
	} else {
		r.peanut = pn
	}

	r.settings = SettingsFromPeanut(r.peanut, abs)
	for _, opt := range opts {
		opt(r)
	}

	// Every key the runtime knows is scrubbed from its own log output,
	// whichever handler the logger was built on.
	r.redact = telemetry.NewRedactFilter(r.logger.Handler())
	for _, secret := range []string{
		os.Getenv(protection.MasterKeyEnv),
		r.settings.Server.APIKey,
		r.settings.License,
		r.settings.AI.AnthropicKey,
		r.settings.AI.OpenAIKey,
	} {
		r.redact.AddSecret(secret)
	}
	r.logger = slog.New(r.redact)

	if statePath, err := state.DefaultPath(); err == nil {
		if store, serr := state.Open(ctx, statePath); serr == nil {
			r.store = store
		} else {
			r.logger.Warn("state store unavailable", "path", statePath, "error", serr)
		}
	}

	if key := os.Getenv(protection.MasterKeyEnv); key != "" {
		if p, perr := protection.New(key); perr == nil {
			r.protect = p
		} else {
			r.logger.Warn("protection disabled", "error", perr)
		}
	}

	if r.settings.License != "" {
		r.validator = license.New(r.settings.License)
	}

	r.functions = fujsen.NewRuntime()
	r.ai = r.buildAI(ctx)
	r.crossfile = crossfile.New(abs)
	r.infra = operators.NewDefaultInfra(ctx)

	if r.settings.Database.Type != "" || r.settings.Database.File != "" {
		if adapter, derr := dbal.Open(ctx, r.settings.Database); derr == nil {
			r.db = adapter
		} else {
			r.logger.Warn("database unavailable", "type", r.settings.Database.Type, "error", derr)
		}
	}

	r.evaluator = evaluator.New(r.evaluatorOptions()...)

	// The resolver parses referenced files with the same evaluator,
	// closing the @file.tsk.get loop.
	r.crossfile.SetLoader(func(ctx context.Context, path string) (*document.Document, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return r.evaluator.Parse(ctx, string(data), path)
	})

	return r, nil
}

func (r *Runtime) evaluatorOptions() []evaluator.Option {
	opts := []evaluator.Option{
		evaluator.WithBaseDir(r.settings.BaseDir),
		evaluator.WithLogger(r.logger),
		evaluator.WithCrossFile(r.crossfile),
		evaluator.WithCache(r.cache),
		evaluator.WithFunctions(r.functions),
	}
	if r.peanut != nil {
		opts = append(opts, evaluator.WithPeanut(r.peanut))
	}
	if r.db != nil {
		opts = append(opts, evaluator.WithDatabase(r.db))
	}
	if r.ai != nil && len(r.ai.Providers()) > 0 {
		opts = append(opts, evaluator.WithAI(r.ai))
	}
	if r.protect != nil {
		opts = append(opts, evaluator.WithProtection(r.protect))
	}
	if r.validator != nil {
		opts = append(opts, evaluator.WithLicense(r.validator))
	}
	if r.store != nil {
		opts = append(opts, evaluator.WithMetrics(state.MetricSink{Store: r.store, Ctx: context.Background()}))
	}
	if r.infra != nil {
		opts = append(opts, evaluator.WithInfra(r.infra))
	}
	return opts
}

func (r *Runtime) buildAI(_ context.Context) *ai.Service {
	var opts []ai.Option
	if r.settings.AI.AnthropicKey != "" {
		c := ai.NewAnthropicClientWithKey(r.settings.AI.AnthropicKey)
		c.SetModel(r.settings.AI.ClaudeModel)
		opts = append(opts, ai.WithProvider("claude", c))
	}
	if r.settings.AI.OpenAIKey != "" || r.settings.AI.OpenAIBaseURL != "" {
		var c *ai.OpenAIClient
		if r.settings.AI.OpenAIBaseURL != "" {
			c = ai.NewOpenAICompatibleClient(r.settings.AI.OpenAIBaseURL, r.settings.AI.OpenAIKey,
				ai.WithModel(r.settings.AI.ChatGPTModel))
		} else {
			c = ai.NewOpenAIClient(r.settings.AI.OpenAIKey, ai.WithModel(r.settings.AI.ChatGPTModel))
		}
		opts = append(opts, ai.WithProvider("chatgpt", c))
	}
	opts = append(opts, ai.WithLogger(r.logger))
	if r.store != nil {
		opts = append(opts, ai.WithUsageRecorder(r.store))
	}
	return ai.NewService(opts...)
}

// Settings returns the resolved settings.
func (r *Runtime) Settings() Settings { return r.settings }

// Logger returns the runtime logger.
func (r *Runtime) Logger() *slog.Logger { return r.logger }

// Metrics returns the telemetry registry wrapper.
func (r *Runtime) Metrics() *telemetry.Metrics { return r.metrics }

// Redact masks configured secrets in s, for strings that leave the
// process through channels other than the logger.
func (r *Runtime) Redact(s string) string {
	if r.redact == nil {
		return s
	}
	return r.redact.RedactString(s)
}

// Evaluator returns the wired evaluator.
func (r *Runtime) Evaluator() *evaluator.Evaluator { return r.evaluator }

// Peanut returns the hierarchical config, or nil when none loaded.
func (r *Runtime) Peanut() *peanut.Config { return r.peanut }

// CrossFile returns the cross-file resolver.
func (r *Runtime) CrossFile() *crossfile.Resolver { return r.crossfile }

// Cache returns the @cache backend.
func (r *Runtime) Cache() *cache.Memory { return r.cache }

// Functions returns the FUJSEN runtime.
func (r *Runtime) Functions() *fujsen.Runtime { return r.functions }

// Store returns the local state store, or nil when unavailable.
func (r *Runtime) Store() *state.Store { return r.store }

// DB returns the configured database adapter, or nil.
func (r *Runtime) DB() dbal.Adapter { return r.db }

// AI returns the AI service.
func (r *Runtime) AI() *ai.Service { return r.ai }

// License returns the license validator, or nil when no key configured.
func (r *Runtime) License() *license.Validator { return r.validator }

// LoadFile parses and evaluates a .tsk file, recording parse metrics.
func (r *Runtime) LoadFile(ctx context.Context, path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return r.EvalSource(ctx, string(data), path)
}

// EvalSource parses and evaluates TuskLang source text.
func (r *Runtime) EvalSource(ctx context.Context, source, name string) (*document.Document, error) {
	start := time.Now()
	doc, err := r.evaluator.Parse(ctx, source, name)
	r.metrics.RecordParse(err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	entries, _, _ := r.cache.Stats()
	r.metrics.SetCacheEntries(entries)
	return doc, nil
}

// Subscribe registers a config-change listener; the returned channel
// receives the path of each changed file. Used by the SSE stream.
func (r *Runtime) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 8)
	r.mu.Lock()
	r.watchers = append(r.watchers, ch)
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, w := range r.watchers {
			if w == ch {
				r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// NotifyChange fans a changed path out to subscribers. Slow subscribers
// miss events rather than blocking the watcher.
func (r *Runtime) NotifyChange(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.watchers {
		select {
		case w <- path:
		default:
		}
	}
}

// WatchConfig re-reads the peanut hierarchy on change and notifies
// subscribers. Blocks until ctx is done.
func (r *Runtime) WatchConfig(ctx context.Context) error {
	if r.peanut == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.peanut.Watch(ctx, r.logger, func() {
		r.crossfile.Invalidate()
		r.NotifyChange("peanut")
	})
}

// Close releases the database, state store and cross-file cache.
func (r *Runtime) Close() error {
	var first error
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			first = err
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	if r.infra != nil && r.infra.Etcd != nil {
		if err := r.infra.Etcd.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
