package peanut

import (
	"fmt"
	"os"
	"strings"

	"github.com/tusklang/tusk-go/internal/ast"
	"github.com/tusklang/tusk-go/internal/document"
)

// structuralDocument evaluates the structural subset of TuskLang: scalars,
// arrays, objects, ranges, concatenation, variable references and @env.
// Other operator calls keep their descriptor text, matching how the
// original loader treated them during bootstrap.
func structuralDocument(f *ast.File) (*document.Document, error) {
	doc := document.New()
	globals := make(map[string]any)
	section := ""

	for _, stmt := range f.Statements {
		switch s := stmt.(type) {
		case *ast.Section:
			section = s.Name
		case *ast.Assignment:
			if err := structuralAssign(doc, globals, section, "", s); err != nil {
				return nil, err
			}
		case *ast.Block:
			prefix := s.Name
			if section != "" {
				prefix = section + "." + s.Name
			}
			for _, entry := range s.Entries {
				if err := structuralAssign(doc, globals, section, prefix, entry); err != nil {
					return nil, err
				}
			}
		}
	}
	return doc, nil
}

func structuralAssign(doc *document.Document, globals map[string]any, section, blockPrefix string, a *ast.Assignment) error {
	v, err := structuralValue(doc, globals, section, a.Value)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Pos(), err)
	}
	if a.Global {
		globals[a.Key] = v
		if section != "" {
			doc.Set(section+"."+a.Key, v)
		} else {
			doc.Set(a.Key, v)
		}
		return nil
	}
	key := a.Key
	switch {
	case blockPrefix != "":
		key = blockPrefix + "." + a.Key
	case section != "":
		key = section + "." + a.Key
	}
	doc.Set(key, v)
	return nil
}

func structuralValue(doc *document.Document, globals map[string]any, section string, expr ast.Expr) (any, error) {
	switch x := expr.(type) {
	case *ast.Scalar:
		return x.Value(), nil
	case *ast.Array:
		out := make([]any, len(x.Elems))
		for i, e := range x.Elems {
			v, err := structuralValue(doc, globals, section, e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *ast.Object:
		out := make(map[string]any, len(x.Keys))
		for i, k := range x.Keys {
			v, err := structuralValue(doc, globals, section, x.Values[i])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case *ast.Range:
		return map[string]any{"min": x.Min, "max": x.Max, "type": "range"}, nil
	case *ast.Concat:
		var sb strings.Builder
		for _, part := range x.Parts {
			v, err := structuralValue(doc, globals, section, part)
			if err != nil {
				return nil, err
			}
			sb.WriteString(document.Stringify(v))
		}
		return sb.String(), nil
	case *ast.VarRef:
		if x.Global {
			if v, ok := globals[x.Name]; ok {
				return v, nil
			}
			return nil, nil
		}
		if section != "" {
			if v, ok := doc.Get(section + "." + x.Name); ok {
				return v, nil
			}
		}
		if v, ok := doc.Get(x.Name); ok {
			return v, nil
		}
		return x.Name, nil
	case *ast.OperatorCall:
		if x.Name == "env" {
			params := splitEnvParams(x.RawArgs)
			if len(params) > 0 {
				if v, ok := os.LookupEnv(unquote(params[0])); ok {
					return v, nil
				}
				if len(params) > 1 {
					return unquote(params[1]), nil
				}
			}
			return "", nil
		}
		return fmt.Sprintf("@%s(%s)", x.Name, x.RawArgs), nil
	case *ast.Ternary:
		// Structural loads cannot evaluate conditions; take the then
		// branch, the original loader's behavior for bootstrap files.
		return structuralValue(doc, globals, section, x.Then)
	default:
		return nil, fmt.Errorf("unsupported value form %T in peanut config", expr)
	}
}

func splitEnvParams(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
