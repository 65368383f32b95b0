package operators

import (
	"context"
	"fmt"
	"strings"

	"github.com/tusklang/tusk-go/internal/document"
)

// maxWhileIterations bounds @while loops; the language caps runaway
// conditions rather than hanging the parse.
const maxWhileIterations = 1000

func init() {
	RegisterFunc("switch", opSwitch)
	RegisterFunc("for", opFor)
	RegisterFunc("while", opWhile)
	RegisterFunc("each", opEach)
	RegisterFunc("filter", opFilter)
}

// opSwitch implements @switch(value, "c1:r1;c2:r2", default). Cases are
// semicolon-separated, each a case:result pair compared as strings.
func opSwitch(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @switch(value, cases, default?)")
	}
	value, err := env.EvalParamString(ctx, params[0])
	if err != nil {
		return nil, err
	}
	cases := Unquote(params[1])

	for _, pair := range strings.Split(cases, ";") {
		c, result, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(c) == value {
			return env.EvalParam(ctx, strings.TrimSpace(result))
		}
	}
	if len(params) > 2 {
		return env.EvalParam(ctx, params[2])
	}
	return nil, nil
}

// opFor implements @for(start, end, expr): the expression is evaluated for
// each i in [start, end] with $i bound, results collected in order.
func opFor(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 3 {
		return nil, fmt.Errorf("expected @for(start, end, expr)")
	}
	start, err := evalInt(ctx, env, params[0])
	if err != nil {
		return nil, err
	}
	end, err := evalInt(ctx, env, params[1])
	if err != nil {
		return nil, err
	}
	expr := strings.TrimSpace(strings.Join(params[2:], ", "))

	var out []any
	for i := start; i <= end; i++ {
		scoped := env.WithVars(map[string]any{"i": i})
		v, err := scoped.EvalParam(ctx, expr)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// opWhile implements @while(cond, expr), capped at maxWhileIterations.
// $i carries the iteration counter.
func opWhile(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @while(cond, expr)")
	}
	cond := params[0]
	expr := strings.TrimSpace(strings.Join(params[1:], ", "))

	var out []any
	for i := int64(0); i < maxWhileIterations; i++ {
		scoped := env.WithVars(map[string]any{"i": i})
		c, err := scoped.EvalParam(ctx, cond)
		if err != nil {
			return nil, err
		}
		if !document.Truthy(c) {
			break
		}
		v, err := scoped.EvalParam(ctx, expr)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// opEach implements @each(array, expr) with $item and $i bound per element.
func opEach(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @each(array, expr)")
	}
	arr, err := evalArray(ctx, env, params[0])
	if err != nil {
		return nil, err
	}
	expr := strings.TrimSpace(strings.Join(params[1:], ", "))

	out := make([]any, 0, len(arr))
	for i, item := range arr {
		scoped := env.WithVars(map[string]any{"item": item, "i": int64(i)})
		v, err := scoped.EvalParam(ctx, expr)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// opFilter implements @filter(array, cond): keeps the elements for which
// the condition, with $item and $i bound, is truthy.
func opFilter(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @filter(array, cond)")
	}
	arr, err := evalArray(ctx, env, params[0])
	if err != nil {
		return nil, err
	}
	cond := strings.TrimSpace(strings.Join(params[1:], ", "))

	var out []any
	for i, item := range arr {
		scoped := env.WithVars(map[string]any{"item": item, "i": int64(i)})
		c, err := scoped.EvalParam(ctx, cond)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if document.Truthy(c) {
			out = append(out, item)
		}
	}
	return out, nil
}

func evalInt(ctx context.Context, env *Env, raw string) (int64, error) {
	v, err := env.EvalParam(ctx, raw)
	if err != nil {
		return 0, err
	}
	n, ok := document.ToInt(v)
	if !ok {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	return n, nil
}

func evalArray(ctx context.Context, env *Env, raw string) ([]any, error) {
	v, err := env.EvalParam(ctx, raw)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%q is not an array", raw)
	}
	return arr, nil
}
