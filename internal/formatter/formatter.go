// Package formatter renders a parsed .tsk AST back to canonical source,
// with deterministic output: `=` assignment, double-quoted strings, brace
// blocks, one blank line between sections. Comments are not preserved.
package formatter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tusklang/tusk-go/internal/ast"
)

// Format renders a file to canonical .tsk source.
func Format(f *ast.File) string {
	var sb strings.Builder

	for i, stmt := range f.Statements {
		if _, isSection := stmt.(*ast.Section); isSection && i > 0 {
			sb.WriteString("\n")
		}
		formatStatement(&sb, stmt)
	}

	return sb.String()
}

func formatStatement(sb *strings.Builder, stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.Section:
		fmt.Fprintf(sb, "[%s]\n", s.Name)

	case *ast.Assignment:
		formatAssignment(sb, s, "")

	case *ast.Block:
		fmt.Fprintf(sb, "%s {\n", s.Name)
		for _, entry := range s.Entries {
			formatAssignment(sb, entry, "  ")
		}
		sb.WriteString("}\n")
	}
}

func formatAssignment(sb *strings.Builder, a *ast.Assignment, indent string) {
	key := a.Key
	if a.Global {
		key = "$" + key
	}
	fmt.Fprintf(sb, "%s%s = %s\n", indent, key, FormatExpr(a.Value))
}

// FormatExpr renders one value expression.
func FormatExpr(expr ast.Expr) string {
	switch x := expr.(type) {
	case *ast.Scalar:
		return formatScalar(x)

	case *ast.Array:
		parts := make([]string, len(x.Elems))
		for i, e := range x.Elems {
			parts[i] = FormatExpr(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"

	case *ast.Object:
		parts := make([]string, len(x.Keys))
		for i, k := range x.Keys {
			parts[i] = fmt.Sprintf("%s: %s", k, FormatExpr(x.Values[i]))
		}
		return "{" + strings.Join(parts, ", ") + "}"

	case *ast.VarRef:
		if x.Global {
			return "$" + x.Name
		}
		return x.Name

	case *ast.OperatorCall:
		return fmt.Sprintf("@%s(%s)", x.Name, x.RawArgs)

	case *ast.Ternary:
		return fmt.Sprintf("%s ? %s : %s",
			formatCondition(x.Cond), FormatExpr(x.Then), FormatExpr(x.Else))

	case *ast.Concat:
		parts := make([]string, len(x.Parts))
		for i, p := range x.Parts {
			parts[i] = FormatExpr(p)
		}
		return strings.Join(parts, " + ")

	case *ast.Range:
		return fmt.Sprintf("%d-%d", x.Min, x.Max)

	case *ast.CrossFileGet:
		return fmt.Sprintf("@%s.tsk.get(%q)", x.File, x.Key)

	case *ast.CrossFileSet:
		return fmt.Sprintf("@%s.tsk.set(%q, %s)", x.File, x.Key, FormatExpr(x.Value))
	}
	return ""
}

func formatCondition(c *ast.Condition) string {
	if c == nil {
		return ""
	}
	if c.Op == "" {
		return FormatExpr(c.Left)
	}
	return fmt.Sprintf("%s %s %s", FormatExpr(c.Left), c.Op, FormatExpr(c.Right))
}

// FormatMap renders a nested value map as .tsk source. Top-level maps
// become [section] groups; deeper maps become inline objects. Keys sort
// for deterministic output.
func FormatMap(values map[string]any) string {
	var sb strings.Builder

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Scalars first so they stay outside any section.
	sections := []string{}
	for _, k := range keys {
		if _, isMap := values[k].(map[string]any); isMap {
			sections = append(sections, k)
			continue
		}
		fmt.Fprintf(&sb, "%s = %s\n", k, FormatValue(values[k]))
	}

	for i, name := range sections {
		if i > 0 || sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%s]\n", name)
		section := values[name].(map[string]any)
		sectionKeys := make([]string, 0, len(section))
		for k := range section {
			sectionKeys = append(sectionKeys, k)
		}
		sort.Strings(sectionKeys)
		for _, k := range sectionKeys {
			fmt.Fprintf(&sb, "%s = %s\n", k, FormatValue(section[k]))
		}
	}

	return sb.String()
}

// FormatValue renders a plain Go value as a .tsk literal.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, FormatValue(x[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprintf("%v", v)
}

func formatScalar(s *ast.Scalar) string {
	switch s.Kind {
	case ast.StringScalar:
		return strconv.Quote(s.Str)
	case ast.IntScalar:
		return strconv.FormatInt(s.Int, 10)
	case ast.FloatScalar:
		return strconv.FormatFloat(s.Float, 'g', -1, 64)
	case ast.BoolScalar:
		return strconv.FormatBool(s.Bool)
	case ast.NullScalar:
		return "null"
	}
	return s.Raw
}
