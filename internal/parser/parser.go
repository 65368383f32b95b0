package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tusklang/tusk-go/internal/ast"
)

// ParseError represents a parse error with position information.
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
	Hint    string
}

func (e *ParseError) Error() string {
	s := fmt.Sprintf("%s:%d:%d: error: %s", e.File, e.Line, e.Column, e.Message)
	if e.Hint != "" {
		s += "\n  hint: " + e.Hint
	}
	return s
}

// Parser performs recursive descent parsing of TuskLang (.tsk) token streams.
type Parser struct {
	src    string
	tokens []Token
	pos    int
	file   string
	errors []*ParseError
}

// stopSet marks the token types that terminate the value currently being
// parsed. Statement-level values stop at newline or semicolon; nested
// values add the enclosing delimiter.
type stopSet map[TokenType]bool

func stops(types ...TokenType) stopSet {
	s := make(stopSet, len(types))
	for _, t := range types {
		s[t] = true
	}
	return s
}

func (s stopSet) with(types ...TokenType) stopSet {
	n := make(stopSet, len(s)+len(types))
	for t := range s {
		n[t] = true
	}
	for _, t := range types {
		n[t] = true
	}
	return n
}

var lineStops = stops(TokenNewline, TokenSemicolon, TokenEOF)

// Parse parses the given TuskLang source and returns an AST File. Errors do
// not abort the parse; the parser recovers at the next line and reports
// everything it found.
func Parse(input, file string) (*ast.File, []*ParseError) {
	lexer := NewLexer(input, file)
	tokens, err := lexer.Tokenize()
	if err != nil {
		return nil, []*ParseError{{File: file, Line: 1, Column: 1, Message: err.Error()}}
	}

	p := &Parser{
		src:    input,
		tokens: tokens,
		file:   file,
	}

	f := p.parseFile()
	if len(p.errors) > 0 {
		return f, p.errors
	}
	return f, nil
}

// ParseValue parses a single value expression, as found on the right-hand
// side of an assignment. The loop operators use it to evaluate their
// per-iteration expression snippets.
func ParseValue(input, file string) (ast.Expr, []*ParseError) {
	lexer := NewLexer(input, file)
	tokens, err := lexer.Tokenize()
	if err != nil {
		return nil, []*ParseError{{File: file, Line: 1, Column: 1, Message: err.Error()}}
	}
	p := &Parser{
		src:    input,
		tokens: tokens,
		file:   file,
	}
	expr := p.parseValue(lineStops)
	if len(p.errors) > 0 {
		return expr, p.errors
	}
	return expr, nil
}

func (p *Parser) parseFile() *ast.File {
	f := &ast.File{
		Path:     p.file,
		StartPos: p.currentPos(),
	}

	for !p.isAtEnd() {
		p.skipNewlines()
		if p.isAtEnd() {
			break
		}

		stmt := p.parseStatement()
		if stmt != nil {
			f.Statements = append(f.Statements, stmt)
		}
	}

	f.EndPos = p.currentPos()
	return f
}

func (p *Parser) parseStatement() ast.Statement {
	switch {
	case p.check(TokenLBracket):
		return p.parseSection()
	case p.check(TokenDollar):
		return p.parseAssignment(true)
	case p.current().IsKeyLike():
		switch p.peekType(1) {
		case TokenLBrace:
			return p.parseBlock(ast.BraceBlock)
		case TokenGreater:
			if p.peekType(2) == TokenNewline || p.peekType(2) == TokenEOF {
				return p.parseBlock(ast.AngleBlock)
			}
			return p.parseAssignment(false)
		case TokenColon, TokenAssign:
			return p.parseAssignment(false)
		default:
			p.addError(fmt.Sprintf("expected ':' or '=' after key %q", p.current().Literal),
				"keys are assigned with 'key = value' or 'key: value'")
			p.syncToNewline()
			return nil
		}
	default:
		p.addError(fmt.Sprintf("unexpected token %s", p.current().Type),
			"expected a [section] header or a key assignment")
		p.syncToNewline()
		return nil
	}
}

// parseSection parses a [name] header.
func (p *Parser) parseSection() *ast.Section {
	startPos := p.currentPos()
	p.expect(TokenLBracket)

	sec := &ast.Section{StartPos: startPos}
	if p.current().IsKeyLike() {
		sec.Name = p.advance().Literal
	} else {
		p.addError(fmt.Sprintf("expected section name, got %s", p.current().Type), "")
	}
	p.expect(TokenRBracket)
	sec.EndPos = p.currentPos()
	p.endLine()
	return sec
}

// parseAssignment parses key = value, key: value, or $key = value.
func (p *Parser) parseAssignment(global bool) *ast.Assignment {
	startPos := p.currentPos()
	a := &ast.Assignment{Global: global, StartPos: startPos}

	if global {
		dollar := p.expect(TokenDollar)
		if !p.current().IsKeyLike() || p.current().Offset != dollar.EndOffset {
			p.addError("expected variable name after '$'", "global variables are written $name = value")
			p.syncToNewline()
			return nil
		}
		a.Key = p.advance().Literal
	} else {
		a.Key = p.advance().Literal
	}

	if !p.check(TokenColon) && !p.check(TokenAssign) {
		p.addError(fmt.Sprintf("expected ':' or '=' after key %q, got %s", a.Key, p.current().Type), "")
		p.syncToNewline()
		return nil
	}
	p.advance()

	if p.atAny(lineStops) {
		p.addError(fmt.Sprintf("missing value for key %q", a.Key), "")
		p.endLine()
		return nil
	}

	a.Value = p.parseValue(lineStops)
	a.EndPos = p.currentPos()
	p.endLine()
	return a
}

// parseBlock parses a nested object in either notation:
//
//	name {            name >
//	  k = v             k = v
//	}                 <
func (p *Parser) parseBlock(style ast.BlockStyle) *ast.Block {
	startPos := p.currentPos()
	b := &ast.Block{Style: style, StartPos: startPos}
	b.Name = p.advance().Literal

	if style == ast.BraceBlock {
		p.expect(TokenLBrace)
	} else {
		p.expect(TokenGreater)
	}
	p.endLine()

	closer := TokenRBrace
	if style == ast.AngleBlock {
		closer = TokenLess
	}

	for {
		p.skipNewlines()
		if p.isAtEnd() {
			p.addError(fmt.Sprintf("unterminated block %q", b.Name),
				fmt.Sprintf("close the block with %s", closer))
			break
		}
		if p.check(closer) {
			p.advance()
			break
		}
		if p.check(TokenDollar) {
			if a := p.parseAssignment(true); a != nil {
				b.Entries = append(b.Entries, a)
			}
			continue
		}
		if p.current().IsKeyLike() {
			if a := p.parseAssignment(false); a != nil {
				b.Entries = append(b.Entries, a)
			}
			continue
		}
		p.addError(fmt.Sprintf("unexpected token %s in block %q", p.current().Type, b.Name), "")
		p.syncToNewline()
	}

	b.EndPos = p.currentPos()
	p.endLine()
	return b
}

// parseValue parses a value expression. When the structured grammar does not
// consume the whole value region the parser falls back to the raw source
// text, preserving the language rule that unrecognized values are strings.
func (p *Parser) parseValue(stop stopSet) ast.Expr {
	startTok := p.pos

	expr, structured := p.parseTernary(stop)
	if structured && p.atAny(stop) {
		return expr
	}

	// Raw fallback: rewind and take the source spelling up to the stop.
	p.pos = startTok
	return p.rawValue(stop)
}

// rawValue consumes tokens up to the stop set (at bracket depth zero) and
// returns the exact source text as a raw scalar.
func (p *Parser) rawValue(stop stopSet) ast.Expr {
	startPos := p.currentPos()
	start := p.current().Offset
	end := start
	depth := 0

	for !p.isAtEnd() {
		t := p.current()
		switch t.Type {
		case TokenLBracket, TokenLBrace, TokenLParen:
			depth++
		case TokenRBracket, TokenRBrace, TokenRParen:
			// A closing delimiter at depth zero belongs to the
			// enclosing construct.
			if depth == 0 {
				goto done
			}
			depth--
		default:
			if depth == 0 && stop[t.Type] {
				goto done
			}
			if t.Type == TokenNewline || t.Type == TokenEOF {
				goto done
			}
		}
		end = t.EndOffset
		p.advance()
	}
done:
	raw := strings.TrimSpace(p.src[start:end])
	return &ast.Scalar{
		Kind:     ast.RawScalar,
		Raw:      raw,
		Str:      raw,
		StartPos: startPos,
		EndPos:   p.currentPos(),
	}
}

// parseTernary parses cond ? then : else, a bare comparison (which is not a
// value form on its own), or a concat chain. The boolean result reports
// whether the tokens formed a structured value.
func (p *Parser) parseTernary(stop stopSet) (ast.Expr, bool) {
	condStart := p.currentPos()
	condStartOff := p.current().Offset

	left, ok := p.parseConcat(stop)
	if !ok {
		return nil, false
	}

	var cond *ast.Condition
	switch p.current().Type {
	case TokenEqual, TokenNotEqual, TokenGreater, TokenGreaterEq, TokenLess, TokenLessEq:
		op := p.advance()
		right, rok := p.parseConcat(stop)
		if !rok {
			return nil, false
		}
		cond = &ast.Condition{
			Left:     left,
			Op:       op.Literal,
			Right:    right,
			Raw:      strings.TrimSpace(p.src[condStartOff:p.prevEndOffset()]),
			StartPos: condStart,
			EndPos:   p.currentPos(),
		}
	}

	if !p.check(TokenQuestion) {
		if cond != nil {
			// A comparison with no '?' is not a value form.
			return nil, false
		}
		return left, true
	}
	p.advance() // consume '?'

	if cond == nil {
		cond = &ast.Condition{
			Left:     left,
			Raw:      strings.TrimSpace(p.src[condStartOff:p.prevEndOffsetBefore(TokenQuestion)]),
			StartPos: condStart,
			EndPos:   p.currentPos(),
		}
	}

	t := &ast.Ternary{Cond: cond, StartPos: condStart}
	t.Then = p.parseValue(stop.with(TokenColon))
	if !p.check(TokenColon) {
		p.addError("expected ':' in ternary expression", "conditions are written cond ? then : else")
		t.Else = &ast.Scalar{Kind: ast.NullScalar, StartPos: p.currentPos(), EndPos: p.currentPos()}
		t.EndPos = p.currentPos()
		return t, true
	}
	p.advance() // consume ':'
	t.Else = p.parseValue(stop)
	t.EndPos = p.currentPos()
	return t, true
}

// parseConcat parses operand (+ operand)* and folds single operands.
func (p *Parser) parseConcat(stop stopSet) (ast.Expr, bool) {
	first, ok := p.parseOperand(stop)
	if !ok {
		return nil, false
	}

	if !p.check(TokenPlus) {
		return first, true
	}

	c := &ast.Concat{Parts: []ast.Expr{first}, StartPos: first.Pos()}
	for p.check(TokenPlus) {
		p.advance()
		part, pok := p.parseOperand(stop)
		if !pok {
			return nil, false
		}
		c.Parts = append(c.Parts, part)
	}
	c.EndPos = p.currentPos()
	return c, true
}

// parseOperand parses a primary expression.
func (p *Parser) parseOperand(stop stopSet) (ast.Expr, bool) {
	startPos := p.currentPos()
	tok := p.current()

	switch tok.Type {
	case TokenString:
		p.advance()
		return &ast.Scalar{Kind: ast.StringScalar, Raw: tok.Literal, Str: tok.Literal, StartPos: startPos, EndPos: p.currentPos()}, true

	case TokenTrue:
		p.advance()
		return &ast.Scalar{Kind: ast.BoolScalar, Raw: tok.Literal, Bool: true, StartPos: startPos, EndPos: p.currentPos()}, true

	case TokenFalse:
		p.advance()
		return &ast.Scalar{Kind: ast.BoolScalar, Raw: tok.Literal, Bool: false, StartPos: startPos, EndPos: p.currentPos()}, true

	case TokenNull:
		p.advance()
		return &ast.Scalar{Kind: ast.NullScalar, Raw: tok.Literal, StartPos: startPos, EndPos: p.currentPos()}, true

	case TokenNumber:
		return p.parseNumber(false)

	case TokenMinus:
		num := p.peekToken(1)
		if num.Type == TokenNumber && num.Offset == tok.EndOffset {
			p.advance() // consume '-'
			return p.parseNumber(true)
		}
		return nil, false

	case TokenDollar:
		name := p.peekToken(1)
		if name.IsKeyLike() && name.Offset == tok.EndOffset {
			p.advance()
			p.advance()
			return &ast.VarRef{Name: name.Literal, Global: true, StartPos: startPos, EndPos: p.currentPos()}, true
		}
		return nil, false

	case TokenIdent:
		p.advance()
		if strings.ContainsRune(tok.Literal, '-') {
			return &ast.Scalar{Kind: ast.RawScalar, Raw: tok.Literal, Str: tok.Literal, StartPos: startPos, EndPos: p.currentPos()}, true
		}
		return &ast.VarRef{Name: tok.Literal, Global: false, StartPos: startPos, EndPos: p.currentPos()}, true

	case TokenLBracket:
		return p.parseArray(startPos)

	case TokenLBrace:
		return p.parseObject(startPos)

	case TokenAt:
		return p.parseOperatorCall(startPos)

	default:
		return nil, false
	}
}

// parseNumber parses an integer or float literal, or an n-m range when the
// dash sits directly between two integers.
func (p *Parser) parseNumber(negative bool) (ast.Expr, bool) {
	startPos := p.currentPos()
	tok := p.expect(TokenNumber)
	lit := tok.Literal

	isFloat := strings.Contains(lit, ".")

	// Range form n-m: two adjacent integers joined by a dash.
	if !negative && !isFloat {
		dash := p.current()
		next := p.peekToken(1)
		if dash.Type == TokenMinus && dash.Offset == tok.EndOffset &&
			next.Type == TokenNumber && !strings.Contains(next.Literal, ".") && next.Offset == dash.EndOffset {
			p.advance() // '-'
			p.advance() // max
			minV, _ := strconv.ParseInt(lit, 10, 64)
			maxV, _ := strconv.ParseInt(next.Literal, 10, 64)
			return &ast.Range{
				Min:      minV,
				Max:      maxV,
				Raw:      fmt.Sprintf("%s-%s", lit, next.Literal),
				StartPos: startPos,
				EndPos:   p.currentPos(),
			}, true
		}
	}

	if negative {
		lit = "-" + lit
	}
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			p.addError(fmt.Sprintf("invalid number %q", lit), "")
			return nil, false
		}
		return &ast.Scalar{Kind: ast.FloatScalar, Raw: lit, Float: f, StartPos: startPos, EndPos: p.currentPos()}, true
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		p.addError(fmt.Sprintf("invalid number %q", lit), "")
		return nil, false
	}
	return &ast.Scalar{Kind: ast.IntScalar, Raw: lit, Int: n, StartPos: startPos, EndPos: p.currentPos()}, true
}

// parseArray parses [a, b, c]. Newlines are allowed around elements.
func (p *Parser) parseArray(startPos ast.Pos) (ast.Expr, bool) {
	p.expect(TokenLBracket)
	arr := &ast.Array{StartPos: startPos}

	p.skipNewlines()
	for !p.check(TokenRBracket) {
		if p.isAtEnd() {
			p.addError("unterminated array", "close the array with ']'")
			return nil, false
		}
		elem := p.parseValue(stops(TokenComma, TokenRBracket, TokenNewline))
		arr.Elems = append(arr.Elems, elem)
		p.skipNewlines()
		if p.check(TokenComma) {
			p.advance()
			p.skipNewlines()
			continue
		}
		break
	}
	if !p.check(TokenRBracket) {
		p.addError(fmt.Sprintf("expected ']' in array, got %s", p.current().Type), "")
		return nil, false
	}
	p.advance()
	arr.EndPos = p.currentPos()
	return arr, true
}

// parseObject parses an inline {k: v, k2 = v2} literal.
func (p *Parser) parseObject(startPos ast.Pos) (ast.Expr, bool) {
	p.expect(TokenLBrace)
	obj := &ast.Object{StartPos: startPos}

	p.skipNewlines()
	for !p.check(TokenRBrace) {
		if p.isAtEnd() {
			p.addError("unterminated object", "close the object with '}'")
			return nil, false
		}

		var key string
		switch {
		case p.current().IsKeyLike():
			key = p.advance().Literal
		case p.check(TokenString):
			key = p.advance().Literal
		default:
			p.addError(fmt.Sprintf("expected object key, got %s", p.current().Type), "")
			return nil, false
		}

		if !p.check(TokenColon) && !p.check(TokenAssign) {
			p.addError(fmt.Sprintf("expected ':' or '=' after object key %q", key), "")
			return nil, false
		}
		p.advance()

		val := p.parseValue(stops(TokenComma, TokenRBrace, TokenNewline))
		obj.Keys = append(obj.Keys, key)
		obj.Values = append(obj.Values, val)

		p.skipNewlines()
		if p.check(TokenComma) {
			p.advance()
			p.skipNewlines()
			continue
		}
		break
	}
	if !p.check(TokenRBrace) {
		p.addError(fmt.Sprintf("expected '}' in object, got %s", p.current().Type), "")
		return nil, false
	}
	p.advance()
	obj.EndPos = p.currentPos()
	return obj, true
}

// parseOperatorCall parses @name(args), @file.tsk.get("key") and
// @file.tsk.set("key", value). A bare @name with no parentheses is not a
// structured form.
func (p *Parser) parseOperatorCall(startPos ast.Pos) (ast.Expr, bool) {
	at := p.expect(TokenAt)

	name := p.current()
	if !name.IsKeyLike() || name.Offset != at.EndOffset {
		return nil, false
	}
	p.advance()

	// Cross-file reference: @file.tsk.get(...) / @file.tsk.set(...)
	if p.check(TokenDot) && p.peekToken(1).Literal == "tsk" && p.peekType(2) == TokenDot {
		method := p.peekToken(3)
		if (method.Literal == "get" || method.Literal == "set") && p.peekType(4) == TokenLParen {
			p.advance() // .
			p.advance() // tsk
			p.advance() // .
			p.advance() // get|set
			return p.parseCrossFile(startPos, name.Literal, method.Literal)
		}
	}

	// Dotted operator names: @protection.sign(...), @license.valid(...).
	// The segments must be adjacent in the source so `@env . x` stays raw.
	opName := name.Literal
	end := name.EndOffset
	for p.check(TokenDot) && p.current().Offset == end &&
		p.peekToken(1).IsKeyLike() && p.peekToken(1).Offset == p.current().EndOffset {
		ident := p.peekToken(1)
		p.advance()
		p.advance()
		opName += "." + ident.Literal
		end = ident.EndOffset
	}

	if !p.check(TokenLParen) {
		return nil, false
	}
	lparen := p.advance()

	call := &ast.OperatorCall{Name: opName, StartPos: startPos}

	// Locate the matching close paren for the raw argument text.
	if end, ok := p.matchingParen(); ok {
		call.RawArgs = strings.TrimSpace(p.src[lparen.EndOffset:p.tokens[end].Offset])
	}

	for !p.check(TokenRParen) {
		if p.isAtEnd() || p.check(TokenNewline) {
			p.addError(fmt.Sprintf("unterminated @%s(...) call", call.Name), "close the argument list with ')'")
			return nil, false
		}
		arg := p.parseValue(stops(TokenComma, TokenRParen, TokenNewline))
		call.Args = append(call.Args, arg)
		if p.check(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	if !p.check(TokenRParen) {
		p.addError(fmt.Sprintf("expected ')' after @%s arguments, got %s", call.Name, p.current().Type), "")
		return nil, false
	}
	p.advance()
	call.EndPos = p.currentPos()
	return call, true
}

func (p *Parser) parseCrossFile(startPos ast.Pos, file, method string) (ast.Expr, bool) {
	p.expect(TokenLParen)

	if !p.check(TokenString) {
		p.addError(fmt.Sprintf("expected quoted key in @%s.tsk.%s(...)", file, method), "")
		return nil, false
	}
	key := p.advance().Literal

	if method == "get" {
		if !p.check(TokenRParen) {
			p.addError("expected ')' after cross-file key", "")
			return nil, false
		}
		p.advance()
		return &ast.CrossFileGet{File: file, Key: key, StartPos: startPos, EndPos: p.currentPos()}, true
	}

	if !p.check(TokenComma) {
		p.addError("expected ',' and a value in @file.tsk.set(...)", "")
		return nil, false
	}
	p.advance()
	val := p.parseValue(stops(TokenRParen, TokenNewline))
	if !p.check(TokenRParen) {
		p.addError("expected ')' after cross-file value", "")
		return nil, false
	}
	p.advance()
	return &ast.CrossFileSet{File: file, Key: key, Value: val, StartPos: startPos, EndPos: p.currentPos()}, true
}

// matchingParen returns the token index of the close paren matching the one
// just consumed, scanning at nesting depth.
func (p *Parser) matchingParen() (int, bool) {
	depth := 0
	for i := p.pos; i < len(p.tokens); i++ {
		switch p.tokens[i].Type {
		case TokenLParen:
			depth++
		case TokenRParen:
			if depth == 0 {
				return i, true
			}
			depth--
		case TokenNewline, TokenEOF:
			return 0, false
		}
	}
	return 0, false
}

// ------------------------------------------------------------------
// Parser helpers
// ------------------------------------------------------------------

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF, File: p.file}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekToken(offset int) Token {
	i := p.pos + offset
	if i >= len(p.tokens) {
		return Token{Type: TokenEOF, File: p.file}
	}
	return p.tokens[i]
}

func (p *Parser) peekType(offset int) TokenType {
	return p.peekToken(offset).Type
}

func (p *Parser) check(t TokenType) bool {
	return p.current().Type == t
}

func (p *Parser) atAny(s stopSet) bool {
	return s[p.current().Type]
}

func (p *Parser) advance() Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(t TokenType) Token {
	if !p.check(t) {
		p.addError(fmt.Sprintf("expected %s, got %s", t, p.current().Type), "")
	}
	return p.advance()
}

func (p *Parser) skipNewlines() {
	for p.check(TokenNewline) {
		p.advance()
	}
}

// endLine consumes an optional trailing semicolon and the line terminator.
func (p *Parser) endLine() {
	if p.check(TokenSemicolon) {
		p.advance()
	}
	if p.check(TokenNewline) {
		p.advance()
		return
	}
	if p.isAtEnd() {
		return
	}
	p.addError(fmt.Sprintf("unexpected %s after value", p.current().Type), "one assignment per line")
	p.syncToNewline()
}

func (p *Parser) syncToNewline() {
	for !p.isAtEnd() && !p.check(TokenNewline) {
		p.advance()
	}
	if p.check(TokenNewline) {
		p.advance()
	}
}

func (p *Parser) isAtEnd() bool {
	return p.current().Type == TokenEOF
}

func (p *Parser) currentPos() ast.Pos {
	tok := p.current()
	return ast.Pos{File: tok.File, Line: tok.Line, Column: tok.Column}
}

// prevEndOffset is the end offset of the last consumed token.
func (p *Parser) prevEndOffset() int {
	if p.pos == 0 {
		return 0
	}
	return p.tokens[p.pos-1].EndOffset
}

// prevEndOffsetBefore walks back past the given trailing token type to find
// where the preceding expression ended.
func (p *Parser) prevEndOffsetBefore(t TokenType) int {
	i := p.pos - 1
	for i > 0 && p.tokens[i].Type == t {
		i--
	}
	return p.tokens[i].EndOffset
}

func (p *Parser) addError(msg, hint string) {
	tok := p.current()
	p.errors = append(p.errors, &ParseError{
		File:    tok.File,
		Line:    tok.Line,
		Column:  tok.Column,
		Message: msg,
		Hint:    hint,
	})
}
