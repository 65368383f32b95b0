package operators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tusklang/tusk-go/internal/document"
)

// ErrNotConfigured wraps operators whose backing client is absent from the
// environment. Callers can detect it with errors.Is.
var ErrNotConfigured = errors.New("backend not configured")

// NotConfigured builds the standard error for a missing backend.
func NotConfigured(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotConfigured)
}

// QueryExecutor runs SQL for @query/@q through the configured database
// adapter.
type QueryExecutor interface {
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}

// Cache is the @cache(ttl, value) backend.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}

// CrossFileResolver reads and writes keys in other .tsk files.
type CrossFileResolver interface {
	Get(ctx context.Context, file, key string) (any, error)
	Set(ctx context.Context, file, key string, value any) error
}

// AIClient answers @claude and @chatgpt prompts.
type AIClient interface {
	Complete(ctx context.Context, provider, prompt string) (string, error)
}

// Protector is the encryption surface consumed by the security operators.
type Protector interface {
	Encrypt(plaintext, purpose string) (string, error)
	Decrypt(ciphertext, purpose string) (string, error)
	Sign(data string) string
	Verify(data, signature string) bool
}

// LicenseChecker gates licensed features.
type LicenseChecker interface {
	Valid() bool
	Allows(feature string) bool
}

// PeanutSource resolves @peanut(key) from the hierarchical config.
type PeanutSource interface {
	Get(key string) any
}

// MetricsSink records and reads custom metric values for @metrics, @learn
// and @optimize.
type MetricsSink interface {
	Record(name string, value float64)
	Value(name string) (float64, bool)
}

// FunctionRunner executes a stored FUJSEN function bundle by key.
type FunctionRunner interface {
	Run(ctx context.Context, key string, args map[string]any) (any, error)
}

// EvalFunc evaluates a TuskLang value-expression snippet with extra
// variables bound (loop operators bind $i and $item through it). The
// evaluator supplies it, keeping this package free of a parser dependency.
type EvalFunc func(ctx context.Context, src string, vars map[string]any) (any, error)

// Env carries everything an operator may touch. Absent backends are nil;
// operators that need one return ErrNotConfigured.
type Env struct {
	Doc     *document.Document
	Globals map[string]any
	Section string
	Vars    map[string]any

	Eval      EvalFunc
	CrossFile CrossFileResolver
	DB        QueryExecutor
	Cache     Cache
	HTTP      *http.Client
	AI        AIClient
	Protect   Protector
	License   LicenseChecker
	Peanut    PeanutSource
	Metrics   MetricsSink
	Functions FunctionRunner
	Infra     *Infra

	BaseDir string
	Clock   func() time.Time
	Logger  *slog.Logger
}

// Now returns the environment clock, defaulting to time.Now.
func (e *Env) Now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// Log returns the environment logger, defaulting to slog.Default.
func (e *Env) Log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// HTTPClient returns the configured HTTP client or a 30-second default.
func (e *Env) HTTPClient() *http.Client {
	if e.HTTP != nil {
		return e.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// EvalParam evaluates one raw parameter string. Quoted parameters shortcut
// to their unquoted text without a full evaluation pass.
func (e *Env) EvalParam(ctx context.Context, raw string) (any, error) {
	raw = trimParam(raw)
	if raw == "" {
		return "", nil
	}
	if isQuoted(raw) {
		return Unquote(raw), nil
	}
	if e.Eval == nil {
		return raw, nil
	}
	return e.Eval(ctx, raw, e.Vars)
}

// EvalParamString evaluates a parameter and coerces the result to a string.
func (e *Env) EvalParamString(ctx context.Context, raw string) (string, error) {
	v, err := e.EvalParam(ctx, raw)
	if err != nil {
		return "", err
	}
	return document.Stringify(v), nil
}

// WithVars returns a copy of the environment with extra variables layered
// over the current set. The loop operators use it for per-iteration scopes.
func (e *Env) WithVars(vars map[string]any) *Env {
	child := *e
	merged := make(map[string]any, len(e.Vars)+len(vars))
	for k, v := range e.Vars {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	child.Vars = merged
	return &child
}

func trimParam(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

func isQuoted(s string) bool {
	return len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\''))
}
