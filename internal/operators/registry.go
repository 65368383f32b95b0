// Package operators implements the @operator(...) dispatch registry for
// TuskLang values. Each operator is a self-contained handler registered by
// name; unknown operators evaluate to their literal @name(args) text, which
// is the language's shipped behavior for integrations that are named in
// documents but not configured in the runtime.
package operators

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Call is one @name(args) invocation site. RawArgs preserves the source
// text between the parentheses; handlers parse their own parameters, so
// nested calls and quoted commas survive intact.
type Call struct {
	Name    string
	RawArgs string
	File    string
	Line    int
}

// Descriptor renders the call back to its source form.
func (c Call) Descriptor() string {
	return fmt.Sprintf("@%s(%s)", c.Name, c.RawArgs)
}

// Params splits RawArgs on top-level commas, honoring quotes and bracket
// nesting, and trims each piece. An empty argument list yields nil.
func (c Call) Params() []string {
	return SplitParams(c.RawArgs)
}

// SplitParams splits an argument string on commas at bracket depth zero,
// outside of quotes.
func SplitParams(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var (
		parts   []string
		sb      strings.Builder
		depth   int
		inQuote rune
	)
	for i := 0; i < len(raw); i++ {
		ch := rune(raw[i])
		switch {
		case inQuote != 0:
			sb.WriteRune(ch)
			if ch == '\\' && i+1 < len(raw) {
				i++
				sb.WriteByte(raw[i])
				continue
			}
			if ch == inQuote {
				inQuote = 0
			}
		case ch == '"' || ch == '\'':
			inQuote = ch
			sb.WriteRune(ch)
		case ch == '(' || ch == '[' || ch == '{':
			depth++
			sb.WriteRune(ch)
		case ch == ')' || ch == ']' || ch == '}':
			depth--
			sb.WriteRune(ch)
		case ch == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(sb.String()))
			sb.Reset()
		default:
			sb.WriteRune(ch)
		}
	}
	parts = append(parts, strings.TrimSpace(sb.String()))
	return parts
}

// Unquote strips one layer of matching quotes from a parameter.
func Unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Operator evaluates one @operator call against the environment.
type Operator interface {
	Name() string
	Evaluate(ctx context.Context, call Call, env *Env) (any, error)
}

// EvaluateFunc adapts a plain function to the Operator interface.
type EvaluateFunc func(ctx context.Context, call Call, env *Env) (any, error)

type funcOperator struct {
	name string
	fn   EvaluateFunc
}

func (f *funcOperator) Name() string { return f.name }

func (f *funcOperator) Evaluate(ctx context.Context, call Call, env *Env) (any, error) {
	return f.fn(ctx, call, env)
}

// Registry maps operator names to their handlers.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operator)}
}

// Register adds an operator. Registering a duplicate name panics; operator
// names are a fixed namespace and a collision is a programming error.
func (r *Registry) Register(op Operator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.Name()]; exists {
		panic(fmt.Sprintf("operators: duplicate registration for %q", op.Name()))
	}
	r.ops[op.Name()] = op
}

// RegisterFunc registers a function under the given name.
func (r *Registry) RegisterFunc(name string, fn EvaluateFunc) {
	r.Register(&funcOperator{name: name, fn: fn})
}

// Lookup returns the operator registered under name.
func (r *Registry) Lookup(name string) (Operator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns the registered operator names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for n := range r.ops {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Evaluate dispatches a call. Unknown operators return the call's
// descriptor text rather than an error.
func (r *Registry) Evaluate(ctx context.Context, call Call, env *Env) (any, error) {
	op, ok := r.Lookup(call.Name)
	if !ok {
		return call.Descriptor(), nil
	}
	v, err := op.Evaluate(ctx, call, env)
	if err != nil {
		return nil, fmt.Errorf("@%s: %w", call.Name, err)
	}
	return v, nil
}

// defaultRegistry collects the operators registered at init time by the
// per-group files in this package.
var defaultRegistry = NewRegistry()

// Register adds an operator to the default registry.
func Register(op Operator) { defaultRegistry.Register(op) }

// RegisterFunc adds a function operator to the default registry.
func RegisterFunc(name string, fn EvaluateFunc) { defaultRegistry.RegisterFunc(name, fn) }

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }
