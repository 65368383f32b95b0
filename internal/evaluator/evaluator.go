// Package evaluator walks a parsed TuskLang AST into a flattened document,
// resolving $global and section-local variables and dispatching @operator
// calls through the operator registry.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tusklang/tusk-go/internal/ast"
	"github.com/tusklang/tusk-go/internal/document"
	"github.com/tusklang/tusk-go/internal/operators"
	"github.com/tusklang/tusk-go/internal/parser"
)

// Evaluator turns AST files into documents. The zero value is not usable;
// construct with New.
type Evaluator struct {
	registry  *operators.Registry
	crossFile operators.CrossFileResolver
	db        operators.QueryExecutor
	cache     operators.Cache
	httpc     *http.Client
	ai        operators.AIClient
	protect   operators.Protector
	license   operators.LicenseChecker
	peanut    operators.PeanutSource
	metrics   operators.MetricsSink
	functions operators.FunctionRunner
	infra     *operators.Infra
	baseDir   string
	clock     func() time.Time
	logger    *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRegistry overrides the operator registry (the default process-wide
// registry otherwise).
func WithRegistry(r *operators.Registry) Option {
	return func(e *Evaluator) { e.registry = r }
}

// WithCrossFile sets the cross-file resolver behind @file.tsk.get/set.
func WithCrossFile(r operators.CrossFileResolver) Option {
	return func(e *Evaluator) { e.crossFile = r }
}

// WithDatabase sets the @query backend.
func WithDatabase(db operators.QueryExecutor) Option {
	return func(e *Evaluator) { e.db = db }
}

// WithCache sets the @cache backend.
func WithCache(c operators.Cache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithHTTPClient sets the client used by @request.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Evaluator) { e.httpc = c }
}

// WithAI sets the @claude/@chatgpt backend.
func WithAI(c operators.AIClient) Option {
	return func(e *Evaluator) { e.ai = c }
}

// WithProtection sets the @encrypt/@decrypt backend.
func WithProtection(p operators.Protector) Option {
	return func(e *Evaluator) { e.protect = p }
}

// WithLicense sets the license gate.
func WithLicense(l operators.LicenseChecker) Option {
	return func(e *Evaluator) { e.license = l }
}

// WithPeanut sets the @peanut source.
func WithPeanut(p operators.PeanutSource) Option {
	return func(e *Evaluator) { e.peanut = p }
}

// WithMetrics sets the @metrics/@learn/@optimize store.
func WithMetrics(m operators.MetricsSink) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithFunctions sets the @fujsen runtime.
func WithFunctions(f operators.FunctionRunner) Option {
	return func(e *Evaluator) { e.functions = f }
}

// WithInfra sets the infrastructure clients.
func WithInfra(i *operators.Infra) Option {
	return func(e *Evaluator) { e.infra = i }
}

// WithBaseDir sets the directory relative paths resolve against.
func WithBaseDir(dir string) Option {
	return func(e *Evaluator) { e.baseDir = dir }
}

// WithClock overrides the time source; tests pin @date and @cron with it.
func WithClock(clock func() time.Time) Option {
	return func(e *Evaluator) { e.clock = clock }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// New creates an evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		registry: operators.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// scope is the mutable evaluation state for one file walk.
type scope struct {
	doc     *document.Document
	globals map[string]any
	section string
	vars    map[string]any
}

// File evaluates a parsed file into a document. Globals reset per call,
// matching the per-parser-instance lifetime of the original language.
func (e *Evaluator) File(ctx context.Context, f *ast.File) (*document.Document, error) {
	sc := &scope{
		doc:     document.New(),
		globals: make(map[string]any),
	}
	for _, stmt := range f.Statements {
		if err := e.evalStatement(ctx, stmt, sc); err != nil {
			return nil, err
		}
	}
	return sc.doc, nil
}

// Parse parses and evaluates TuskLang source in one step.
func (e *Evaluator) Parse(ctx context.Context, input, file string) (*document.Document, error) {
	f, errs := parser.Parse(input, file)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return e.File(ctx, f)
}

func (e *Evaluator) evalStatement(ctx context.Context, stmt ast.Statement, sc *scope) error {
	switch s := stmt.(type) {
	case *ast.Section:
		sc.section = s.Name
		return nil

	case *ast.Assignment:
		return e.evalAssignment(ctx, s, sc, "")

	case *ast.Block:
		prefix := s.Name
		if sc.section != "" {
			prefix = sc.section + "." + s.Name
		}
		for _, entry := range s.Entries {
			if err := e.evalAssignment(ctx, entry, sc, prefix); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%s: unhandled statement %T", stmt.Pos(), stmt)
	}
}

func (e *Evaluator) evalAssignment(ctx context.Context, a *ast.Assignment, sc *scope, blockPrefix string) error {
	v, err := e.evalExpr(ctx, a.Value, sc)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Pos(), err)
	}

	if a.Global {
		sc.globals[a.Key] = v
		// A $key assignment inside a section also stores section.key, so
		// documents expose globals alongside plain keys.
		if sc.section != "" {
			sc.doc.Set(sc.section+"."+a.Key, v)
		} else {
			sc.doc.Set(a.Key, v)
		}
		return nil
	}

	key := a.Key
	switch {
	case blockPrefix != "":
		key = blockPrefix + "." + a.Key
	case sc.section != "":
		key = sc.section + "." + a.Key
	}
	sc.doc.Set(key, v)
	return nil
}

func (e *Evaluator) evalExpr(ctx context.Context, expr ast.Expr, sc *scope) (any, error) {
	switch x := expr.(type) {
	case *ast.Scalar:
		return x.Value(), nil

	case *ast.VarRef:
		return e.resolveVar(x, sc), nil

	case *ast.Array:
		out := make([]any, len(x.Elems))
		for i, elem := range x.Elems {
			v, err := e.evalExpr(ctx, elem, sc)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *ast.Object:
		out := make(map[string]any, len(x.Keys))
		for i, key := range x.Keys {
			v, err := e.evalExpr(ctx, x.Values[i], sc)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil

	case *ast.Range:
		return map[string]any{"min": x.Min, "max": x.Max, "type": "range"}, nil

	case *ast.Concat:
		var sb []byte
		for _, part := range x.Parts {
			v, err := e.evalExpr(ctx, part, sc)
			if err != nil {
				return nil, err
			}
			sb = append(sb, document.Stringify(v)...)
		}
		return string(sb), nil

	case *ast.Ternary:
		cond, err := e.evalCondition(ctx, x.Cond, sc)
		if err != nil {
			return nil, err
		}
		if cond {
			return e.evalExpr(ctx, x.Then, sc)
		}
		return e.evalExpr(ctx, x.Else, sc)

	case *ast.OperatorCall:
		call := operators.Call{
			Name:    x.Name,
			RawArgs: x.RawArgs,
			File:    x.Pos().File,
			Line:    x.Pos().Line,
		}
		return e.registry.Evaluate(ctx, call, e.opEnv(sc))

	case *ast.CrossFileGet:
		if e.crossFile == nil {
			return nil, operators.NotConfigured("cross-file resolver")
		}
		return e.crossFile.Get(ctx, x.File, x.Key)

	case *ast.CrossFileSet:
		if e.crossFile == nil {
			return nil, operators.NotConfigured("cross-file resolver")
		}
		v, err := e.evalExpr(ctx, x.Value, sc)
		if err != nil {
			return nil, err
		}
		if err := e.crossFile.Set(ctx, x.File, x.Key, v); err != nil {
			return nil, err
		}
		return v, nil

	default:
		return nil, fmt.Errorf("%s: unhandled expression %T", expr.Pos(), expr)
	}
}

// resolveVar implements the lookup order: loop/operator variables, globals
// ($name always comes from the global scope), section-locals, then
// top-level keys. An unresolved bare identifier falls back to its own
// spelling, the language's raw-string rule.
func (e *Evaluator) resolveVar(x *ast.VarRef, sc *scope) any {
	if sc.vars != nil {
		if v, ok := sc.vars[x.Name]; ok {
			return v
		}
	}
	if x.Global {
		if v, ok := sc.globals[x.Name]; ok {
			return v
		}
		// A $name that was never assigned reads as the empty string, not
		// null, so JSON output stays "".
		return ""
	}
	if sc.section != "" {
		if v, ok := sc.doc.Get(sc.section + "." + x.Name); ok {
			return v
		}
	}
	if v, ok := sc.globals[x.Name]; ok {
		return v
	}
	if v, ok := sc.doc.Get(x.Name); ok {
		return v
	}
	return x.Name
}

// opEnv builds the operator environment for the current scope.
func (e *Evaluator) opEnv(sc *scope) *operators.Env {
	return &operators.Env{
		Doc:       sc.doc,
		Globals:   sc.globals,
		Section:   sc.section,
		Vars:      sc.vars,
		Eval:      e.evalSnippet(sc),
		CrossFile: e.crossFile,
		DB:        e.db,
		Cache:     e.cache,
		HTTP:      e.httpc,
		AI:        e.ai,
		Protect:   e.protect,
		License:   e.license,
		Peanut:    e.peanut,
		Metrics:   e.metrics,
		Functions: e.functions,
		Infra:     e.infra,
		BaseDir:   e.baseDir,
		Clock:     e.clock,
		Logger:    e.logger,
	}
}

// evalSnippet returns the EvalFunc operators use for their raw parameter
// strings, re-entering the evaluator with extra variables layered on.
func (e *Evaluator) evalSnippet(sc *scope) operators.EvalFunc {
	return func(ctx context.Context, src string, vars map[string]any) (any, error) {
		expr, errs := parser.ParseValue(src, "<operator>")
		if len(errs) > 0 {
			return nil, errs[0]
		}
		child := &scope{
			doc:     sc.doc,
			globals: sc.globals,
			section: sc.section,
			vars:    vars,
		}
		return e.evalExpr(ctx, expr, child)
	}
}
