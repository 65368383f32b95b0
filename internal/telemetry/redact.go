package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const redactedMark = "***REDACTED***"

// RedactFilter is a slog.Handler that masks registered secret values
// (master key, API keys, license key) wherever they appear in a record's
// message or string attributes. Derived handlers from WithAttrs/WithGroup
// share the secret set, so AddSecret applies to loggers split off earlier.
type RedactFilter struct {
	inner slog.Handler
	state *redactState
}

// redactState holds the replacer shared by the whole handler tree. The
// replacer is rebuilt on AddSecret so Handle only takes a read lock.
type redactState struct {
	mu    sync.RWMutex
	pairs []string
	repl  *strings.Replacer
}

func (st *redactState) scrub(s string) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if len(st.pairs) == 0 {
		return s
	}
	return st.repl.Replace(s)
}

func (st *redactState) empty() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.pairs) == 0
}

// NewRedactFilter wraps inner with secret masking. No secrets are
// registered yet; until AddSecret is called records pass through as-is.
func NewRedactFilter(inner slog.Handler) *RedactFilter {
	return &RedactFilter{inner: inner, state: &redactState{}}
}

// AddSecret registers a value to mask. Empty values are ignored.
func (f *RedactFilter) AddSecret(value string) {
	if value == "" {
		return
	}
	st := f.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.pairs = append(st.pairs, value, redactedMark)
	st.repl = strings.NewReplacer(st.pairs...)
}

// RedactString masks every registered secret in s.
func (f *RedactFilter) RedactString(s string) string {
	return f.state.scrub(s)
}

func (f *RedactFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.inner.Enabled(ctx, level)
}

func (f *RedactFilter) Handle(ctx context.Context, record slog.Record) error {
	if f.state.empty() {
		return f.inner.Handle(ctx, record)
	}
	clean := slog.NewRecord(record.Time, record.Level, f.state.scrub(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(f.scrubAttr(a))
		return true
	})
	return f.inner.Handle(ctx, clean)
}

func (f *RedactFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = f.scrubAttr(a)
	}
	return &RedactFilter{inner: f.inner.WithAttrs(scrubbed), state: f.state}
}

func (f *RedactFilter) WithGroup(name string) slog.Handler {
	return &RedactFilter{inner: f.inner.WithGroup(name), state: f.state}
}

// scrubAttr masks string values, recursing into groups. Non-string kinds
// pass through untouched: a secret that survives strconv round-trips as a
// number is not a secret this filter can know about.
func (f *RedactFilter) scrubAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, f.state.scrub(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		clean := make([]any, 0, len(group))
		for _, g := range group {
			clean = append(clean, f.scrubAttr(g))
		}
		return slog.Group(a.Key, clean...)
	default:
		return a
	}
}
