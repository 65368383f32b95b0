package parser

import (
	"fmt"
	"strings"

	"github.com/tusklang/tusk-go/internal/ast"
)

// SetKey replaces or appends an assignment in a parsed file. A dotted key
// addresses `section.key`; the section is created at the end of the file
// when missing. rawValue is parsed as a value expression, so quoted
// strings, numbers and @operator calls all work.
func SetKey(f *ast.File, key, rawValue string) (*ast.File, error) {
	expr, errs := ParseValue(rawValue, f.Path)
	if len(errs) > 0 {
		return nil, fmt.Errorf("value %q: %w", rawValue, errs[0])
	}

	section, name := "", key
	if i := strings.LastIndex(key, "."); i > 0 {
		section, name = key[:i], key[i+1:]
	}

	global := strings.HasPrefix(name, "$")
	name = strings.TrimPrefix(name, "$")

	assign := &ast.Assignment{Key: name, Global: global, Value: expr}

	// Replace in place when the key already exists.
	current := ""
	for _, stmt := range f.Statements {
		switch s := stmt.(type) {
		case *ast.Section:
			current = s.Name
		case *ast.Assignment:
			if current == section && s.Key == name && s.Global == global {
				s.Value = expr
				return f, nil
			}
		}
	}

	if section == "" {
		// Top-level keys go before the first section header so they stay
		// section-free on re-parse.
		insertAt := len(f.Statements)
		for i, stmt := range f.Statements {
			if _, isSection := stmt.(*ast.Section); isSection {
				insertAt = i
				break
			}
		}
		stmts := make([]ast.Statement, 0, len(f.Statements)+1)
		stmts = append(stmts, f.Statements[:insertAt]...)
		stmts = append(stmts, assign)
		stmts = append(stmts, f.Statements[insertAt:]...)
		f.Statements = stmts
		return f, nil
	}

	// Append at the end of the target section, or create the section.
	insertAt := -1
	current = ""
	for i, stmt := range f.Statements {
		if s, isSection := stmt.(*ast.Section); isSection {
			current = s.Name
		}
		if current == section {
			insertAt = i + 1
		}
	}
	if insertAt < 0 {
		f.Statements = append(f.Statements, &ast.Section{Name: section}, assign)
		return f, nil
	}

	stmts := make([]ast.Statement, 0, len(f.Statements)+1)
	stmts = append(stmts, f.Statements[:insertAt]...)
	stmts = append(stmts, assign)
	stmts = append(stmts, f.Statements[insertAt:]...)
	f.Statements = stmts
	return f, nil
}
