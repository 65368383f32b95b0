package evaluator

import (
	"context"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/tusklang/tusk-go/internal/ast"
	"github.com/tusklang/tusk-go/internal/document"
)

// evalCondition decides a ternary/@if condition. The raw text is first
// offered to the expression engine with the document's variables as the
// environment; the legacy comparator is the fallback so the documented
// forms (==, !=, ordered compares, bare truthiness) always work, including
// $-prefixed references the engine cannot parse.
func (e *Evaluator) evalCondition(ctx context.Context, cond *ast.Condition, sc *scope) (bool, error) {
	if raw := strings.TrimSpace(cond.Raw); raw != "" && !strings.ContainsAny(raw, "$@") {
		if result, err := expr.Eval(raw, e.conditionEnv(sc)); err == nil {
			if b, ok := result.(bool); ok {
				return b, nil
			}
			return document.Truthy(result), nil
		}
	}

	left, err := e.evalExpr(ctx, cond.Left, sc)
	if err != nil {
		return false, err
	}
	if cond.Op == "" {
		return document.Truthy(left), nil
	}
	right, err := e.evalExpr(ctx, cond.Right, sc)
	if err != nil {
		return false, err
	}
	return compare(cond.Op, left, right), nil
}

// compare implements the legacy comparator: equality compares the string
// forms, ordered operators compare numerically when both sides parse as
// floats and lexically otherwise.
func compare(op string, left, right any) bool {
	ls := document.Stringify(left)
	rs := document.Stringify(right)

	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	}

	lf, lok := document.ToFloat(left)
	rf, rok := document.ToFloat(right)
	if lok && rok {
		switch op {
		case ">":
			return lf > rf
		case ">=":
			return lf >= rf
		case "<":
			return lf < rf
		case "<=":
			return lf <= rf
		}
		return false
	}

	switch op {
	case ">":
		return ls > rs
	case ">=":
		return ls >= rs
	case "<":
		return ls < rs
	case "<=":
		return ls <= rs
	}
	return false
}

// conditionEnv flattens the scope into the expression engine's variable
// namespace: loop vars shadow section-locals, which shadow globals.
func (e *Evaluator) conditionEnv(sc *scope) map[string]any {
	env := make(map[string]any)
	for k, v := range sc.globals {
		env[k] = v
	}
	if sc.section != "" {
		for k, v := range sc.doc.Section(sc.section) {
			if !strings.Contains(k, ".") {
				env[k] = v
			}
		}
	}
	for k, v := range sc.vars {
		env[k] = v
	}
	return env
}
