// Package ast defines the abstract syntax tree node types for TuskLang
// (.tsk) documents.
package ast

import "fmt"

// Pos represents a position in source code.
type Pos struct {
	File   string
	Line   int
	Column int
}

// String renders the position as file:line:column.
func (p Pos) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Pos
	End() Pos
}

// File represents a parsed TuskLang (.tsk) file.
type File struct {
	Path       string
	Statements []Statement
	StartPos   Pos
	EndPos     Pos
}

func (f *File) Pos() Pos { return f.StartPos }
func (f *File) End() Pos { return f.EndPos }

// Statement is the interface for top-level statements.
type Statement interface {
	Node
	stmtNode()
}

// Section is a [name] header. Assignments that follow it belong to the
// section until the next header.
type Section struct {
	Name     string
	StartPos Pos
	EndPos   Pos
}

func (s *Section) Pos() Pos  { return s.StartPos }
func (s *Section) End() Pos  { return s.EndPos }
func (s *Section) stmtNode() {}

// Assignment is a key = value or key: value line. Global is set when the
// key carries a $ prefix (the prefix is stripped from Key).
type Assignment struct {
	Key      string
	Global   bool
	Value    Expr
	StartPos Pos
	EndPos   Pos
}

func (a *Assignment) Pos() Pos  { return a.StartPos }
func (a *Assignment) End() Pos  { return a.EndPos }
func (a *Assignment) stmtNode() {}

// BlockStyle distinguishes the two object block notations.
type BlockStyle int

const (
	BraceBlock BlockStyle = iota // name { ... }
	AngleBlock                   // name > ... <
)

// Block is a nested object introduced by `name {` or `name >`. Its entries
// flatten into section.name.key paths.
type Block struct {
	Name     string
	Style    BlockStyle
	Entries  []*Assignment
	StartPos Pos
	EndPos   Pos
}

func (b *Block) Pos() Pos  { return b.StartPos }
func (b *Block) End() Pos  { return b.EndPos }
func (b *Block) stmtNode() {}

// Expr is the interface for value expressions. The concrete types form a
// closed tagged union: Scalar, Array, Object, VarRef, OperatorCall, Ternary,
// Concat, Range, CrossFileGet and CrossFileSet.
type Expr interface {
	Node
	exprNode()
}

// ScalarKind enumerates the scalar value categories.
type ScalarKind int

const (
	StringScalar ScalarKind = iota
	IntScalar
	FloatScalar
	BoolScalar
	NullScalar
	RawScalar // unquoted text that matched no other form
)

var scalarKindNames = map[ScalarKind]string{
	StringScalar: "string",
	IntScalar:    "int",
	FloatScalar:  "float",
	BoolScalar:   "bool",
	NullScalar:   "null",
	RawScalar:    "raw",
}

// String returns the kind name.
func (k ScalarKind) String() string {
	if n, ok := scalarKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("ScalarKind(%d)", int(k))
}

// Scalar is a literal value. Exactly one of Str/Int/Float/Bool is
// meaningful, selected by Kind; Raw always preserves the source text.
type Scalar struct {
	Kind     ScalarKind
	Raw      string
	Str      string
	Int      int64
	Float    float64
	Bool     bool
	StartPos Pos
	EndPos   Pos
}

func (s *Scalar) Pos() Pos  { return s.StartPos }
func (s *Scalar) End() Pos  { return s.EndPos }
func (s *Scalar) exprNode() {}

// Value returns the scalar as a plain Go value.
func (s *Scalar) Value() any {
	switch s.Kind {
	case StringScalar, RawScalar:
		return s.Str
	case IntScalar:
		return s.Int
	case FloatScalar:
		return s.Float
	case BoolScalar:
		return s.Bool
	case NullScalar:
		return nil
	}
	return s.Raw
}

// Array is a [a, b, c] literal.
type Array struct {
	Elems    []Expr
	StartPos Pos
	EndPos   Pos
}

func (a *Array) Pos() Pos  { return a.StartPos }
func (a *Array) End() Pos  { return a.EndPos }
func (a *Array) exprNode() {}

// Object is an inline {k: v, k2 = v2} literal. Keys keeps source order.
type Object struct {
	Keys     []string
	Values   []Expr
	StartPos Pos
	EndPos   Pos
}

func (o *Object) Pos() Pos  { return o.StartPos }
func (o *Object) End() Pos  { return o.EndPos }
func (o *Object) exprNode() {}

// VarRef references a variable: $name for a global, a bare identifier for
// a section-local value.
type VarRef struct {
	Name     string
	Global   bool
	StartPos Pos
	EndPos   Pos
}

func (v *VarRef) Pos() Pos  { return v.StartPos }
func (v *VarRef) End() Pos  { return v.EndPos }
func (v *VarRef) exprNode() {}

// OperatorCall is an @name(args) invocation. RawArgs preserves the argument
// text between the parentheses; Args holds the comma-split parsed forms.
type OperatorCall struct {
	Name     string
	RawArgs  string
	Args     []Expr
	StartPos Pos
	EndPos   Pos
}

func (o *OperatorCall) Pos() Pos  { return o.StartPos }
func (o *OperatorCall) End() Pos  { return o.EndPos }
func (o *OperatorCall) exprNode() {}

// Condition is the comparison inside a ternary or @if. Op is one of
// == != > >= < <=, or empty when the condition is a bare truthiness test
// (Right is nil in that case). Raw preserves the full source text for
// expression-engine evaluation.
type Condition struct {
	Left     Expr
	Op       string
	Right    Expr
	Raw      string
	StartPos Pos
	EndPos   Pos
}

func (c *Condition) Pos() Pos { return c.StartPos }
func (c *Condition) End() Pos { return c.EndPos }

// Ternary is cond ? then : else.
type Ternary struct {
	Cond     *Condition
	Then     Expr
	Else     Expr
	StartPos Pos
	EndPos   Pos
}

func (t *Ternary) Pos() Pos  { return t.StartPos }
func (t *Ternary) End() Pos  { return t.EndPos }
func (t *Ternary) exprNode() {}

// Concat is a + chain of string parts.
type Concat struct {
	Parts    []Expr
	StartPos Pos
	EndPos   Pos
}

func (c *Concat) Pos() Pos  { return c.StartPos }
func (c *Concat) End() Pos  { return c.EndPos }
func (c *Concat) exprNode() {}

// Range is an n-m shorthand, evaluated to {min, max, type: "range"}.
type Range struct {
	Min      int64
	Max      int64
	Raw      string
	StartPos Pos
	EndPos   Pos
}

func (r *Range) Pos() Pos  { return r.StartPos }
func (r *Range) End() Pos  { return r.EndPos }
func (r *Range) exprNode() {}

// CrossFileGet is @file.tsk.get("key").
type CrossFileGet struct {
	File     string // base name without the .tsk suffix
	Key      string
	StartPos Pos
	EndPos   Pos
}

func (c *CrossFileGet) Pos() Pos  { return c.StartPos }
func (c *CrossFileGet) End() Pos  { return c.EndPos }
func (c *CrossFileGet) exprNode() {}

// CrossFileSet is @file.tsk.set("key", value).
type CrossFileSet struct {
	File     string
	Key      string
	Value    Expr
	StartPos Pos
	EndPos   Pos
}

func (c *CrossFileSet) Pos() Pos  { return c.StartPos }
func (c *CrossFileSet) End() Pos  { return c.EndPos }
func (c *CrossFileSet) exprNode() {}
