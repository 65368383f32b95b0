// Package parser implements the lexer and recursive descent parser
// for TuskLang (.tsk) configuration files.
package parser

import "fmt"

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenNewline
	TokenRune // any character with no structural meaning, kept for raw values

	// Literals
	TokenIdent
	TokenString
	TokenNumber

	// Keywords
	TokenTrue
	TokenFalse
	TokenNull

	// Delimiters
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLParen    // (
	TokenRParen    // )
	TokenColon     // :
	TokenAssign    // =
	TokenComma     // ,
	TokenSemicolon // ;
	TokenDot       // .
	TokenDollar    // $
	TokenAt        // @
	TokenQuestion  // ?
	TokenPlus      // +
	TokenMinus     // -

	// Comparison operators
	TokenEqual     // ==
	TokenNotEqual  // !=
	TokenGreater   // >
	TokenGreaterEq // >=
	TokenLess      // <
	TokenLessEq    // <=
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenError:     "Error",
	TokenNewline:   "Newline",
	TokenRune:      "Rune",
	TokenIdent:     "Ident",
	TokenString:    "String",
	TokenNumber:    "Number",
	TokenTrue:      "true",
	TokenFalse:     "false",
	TokenNull:      "null",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenColon:     ":",
	TokenAssign:    "=",
	TokenComma:     ",",
	TokenSemicolon: ";",
	TokenDot:       ".",
	TokenDollar:    "$",
	TokenAt:        "@",
	TokenQuestion:  "?",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenEqual:     "==",
	TokenNotEqual:  "!=",
	TokenGreater:   ">",
	TokenGreaterEq: ">=",
	TokenLess:      "<",
	TokenLessEq:    "<=",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

var keywords = map[string]TokenType{
	"true":  TokenTrue,
	"false": TokenFalse,
	"null":  TokenNull,
}

// LookupKeyword returns the keyword token type for ident, or TokenIdent.
func LookupKeyword(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}

// Token represents a lexical token with position information. Offset and
// EndOffset index into the source text so the parser can recover the exact
// spelling of a span when a value falls back to a raw string.
type Token struct {
	Type      TokenType
	Literal   string
	File      string
	Line      int
	Column    int
	Offset    int
	EndOffset int
}

func (t Token) String() string {
	if t.Literal != "" {
		return fmt.Sprintf("%s(%q) at %s:%d:%d", t.Type, t.Literal, t.File, t.Line, t.Column)
	}
	return fmt.Sprintf("%s at %s:%d:%d", t.Type, t.File, t.Line, t.Column)
}

// IsKeyLike reports whether the token can serve as a key or identifier in
// key position. Keyword tokens are valid key names in TuskLang.
func (t Token) IsKeyLike() bool {
	switch t.Type {
	case TokenIdent, TokenTrue, TokenFalse, TokenNull:
		return true
	}
	return false
}
