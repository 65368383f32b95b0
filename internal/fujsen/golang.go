package fujsen

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// goExecutor runs Go bundles in-process through the yaegi interpreter.
// Only the standard library is exposed; bundles cannot import anything
// else.
type goExecutor struct{}

func newGoExecutor() *goExecutor { return &goExecutor{} }

func (e *goExecutor) Language() string { return "go" }

// Execute evaluates the bundle source, which must either be a function
// expression of type func(map[string]any) any or declare
// Main(args map[string]any) any.
func (e *goExecutor) Execute(ctx context.Context, fn *Function, args map[string]any) (any, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("yaegi stdlib: %w", err)
	}

	v, err := i.EvalWithContext(ctx, fn.SourceCode)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}

	if !isCallable(v) {
		// Source declared functions instead of evaluating to one; look
		// for the conventional entry point.
		if strings.Contains(fn.SourceCode, "func Main") {
			v, err = i.EvalWithContext(ctx, "Main")
			if err != nil {
				return nil, fmt.Errorf("resolve Main: %w", err)
			}
		}
		if !isCallable(v) {
			return nil, fmt.Errorf("go bundle %s is not a function and declares no Main", fn.Name)
		}
	}

	t := v.Type()
	in := make([]reflect.Value, 0, 1)
	if t.NumIn() == 1 {
		in = append(in, reflect.ValueOf(args))
	} else if t.NumIn() > 1 {
		return nil, fmt.Errorf("go bundle %s takes %d arguments, want at most one", fn.Name, t.NumIn())
	}

	out := v.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return resultValue(out[0])
	case 2:
		// (any, error) form.
		if errVal := out[1]; !errVal.IsNil() {
			if callErr, ok := errVal.Interface().(error); ok {
				return nil, callErr
			}
		}
		return resultValue(out[0])
	default:
		return nil, fmt.Errorf("go bundle %s returns %d values", fn.Name, len(out))
	}
}

func isCallable(v reflect.Value) bool {
	return v.IsValid() && v.Kind() == reflect.Func
}

func resultValue(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	r := v.Interface()
	// Normalize ints to the document's canonical int64.
	switch t := r.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	}
	return r, nil
}
