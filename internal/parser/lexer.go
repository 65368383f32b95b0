package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes TuskLang (.tsk) source input.
type Lexer struct {
	input   string
	file    string
	pos     int
	line    int
	col     int
	tokens  []Token
	start   int
	startLn int
	startCl int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, file string) *Lexer {
	return &Lexer{
		input: input,
		file:  file,
		line:  1,
		col:   1,
	}
}

// Tokenize scans the entire input and returns all tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return l.tokens, nil
}

func (l *Lexer) nextToken() (Token, error) {
	l.skipWhitespaceAndComments()

	l.start = l.pos
	l.startLn = l.line
	l.startCl = l.col

	if l.pos >= len(l.input) {
		return l.makeToken(TokenEOF, ""), nil
	}

	ch := l.peek()

	switch {
	case ch == '\n':
		l.advance()
		return l.makeToken(TokenNewline, "\n"), nil
	case ch == '[':
		l.advance()
		return l.makeToken(TokenLBracket, "["), nil
	case ch == ']':
		l.advance()
		return l.makeToken(TokenRBracket, "]"), nil
	case ch == '{':
		l.advance()
		return l.makeToken(TokenLBrace, "{"), nil
	case ch == '}':
		l.advance()
		return l.makeToken(TokenRBrace, "}"), nil
	case ch == '(':
		l.advance()
		return l.makeToken(TokenLParen, "("), nil
	case ch == ')':
		l.advance()
		return l.makeToken(TokenRParen, ")"), nil
	case ch == ',':
		l.advance()
		return l.makeToken(TokenComma, ","), nil
	case ch == ';':
		l.advance()
		return l.makeToken(TokenSemicolon, ";"), nil
	case ch == '.':
		l.advance()
		return l.makeToken(TokenDot, "."), nil
	case ch == '$':
		l.advance()
		return l.makeToken(TokenDollar, "$"), nil
	case ch == '@':
		l.advance()
		return l.makeToken(TokenAt, "@"), nil
	case ch == '?':
		l.advance()
		return l.makeToken(TokenQuestion, "?"), nil
	case ch == '+':
		l.advance()
		return l.makeToken(TokenPlus, "+"), nil
	case ch == '-':
		l.advance()
		return l.makeToken(TokenMinus, "-"), nil
	case ch == ':':
		l.advance()
		return l.makeToken(TokenColon, ":"), nil
	case ch == '=':
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return l.makeToken(TokenEqual, "=="), nil
		}
		return l.makeToken(TokenAssign, "="), nil
	case ch == '!':
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return l.makeToken(TokenNotEqual, "!="), nil
		}
		return l.makeToken(TokenRune, "!"), nil
	case ch == '>':
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return l.makeToken(TokenGreaterEq, ">="), nil
		}
		return l.makeToken(TokenGreater, ">"), nil
	case ch == '<':
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return l.makeToken(TokenLessEq, "<="), nil
		}
		return l.makeToken(TokenLess, "<"), nil
	case ch == '"' || ch == '\'':
		return l.scanString(ch)
	case isDigit(ch):
		return l.scanNumber()
	case isIdentStart(ch):
		return l.scanIdentOrKeyword()
	default:
		l.advance()
		return l.makeToken(TokenRune, l.input[l.start:l.pos]), nil
	}
}

// scanString handles single- and double-quoted strings plus the
// triple-quoted multiline form ("""...""") used for embedded function
// bodies.
func (l *Lexer) scanString(quote rune) (Token, error) {
	l.advance() // consume opening quote

	if l.peek() == quote && l.runeAtOffset(l.pos+utf8.RuneLen(quote)) == quote {
		return l.scanTripleString(quote)
	}
	if l.peek() == quote {
		// Empty string: the next rune closes immediately.
		l.advance()
		return l.makeToken(TokenString, ""), nil
	}

	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.peek()
		if ch == quote {
			l.advance() // consume closing quote
			return l.makeToken(TokenString, sb.String()), nil
		}
		if ch == '\\' {
			l.advance()
			if l.pos >= len(l.input) {
				return Token{}, fmt.Errorf("%s:%d:%d: unterminated string escape", l.file, l.line, l.col)
			}
			esc := l.peek()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case '\'':
				sb.WriteByte('\'')
			default:
				sb.WriteByte('\\')
				sb.WriteRune(esc)
			}
			l.advance()
			continue
		}
		if ch == '\n' {
			return Token{}, fmt.Errorf("%s:%d:%d: unterminated string", l.file, l.startLn, l.startCl)
		}
		sb.WriteRune(ch)
		l.advance()
	}
	return Token{}, fmt.Errorf("%s:%d:%d: unterminated string", l.file, l.startLn, l.startCl)
}

func (l *Lexer) scanTripleString(quote rune) (Token, error) {
	l.advance() // second quote
	l.advance() // third quote

	var sb strings.Builder
	for l.pos < len(l.input) {
		if l.peek() == quote && l.runeAtOffset(l.pos+utf8.RuneLen(quote)) == quote && l.runeAtOffset(l.pos+2*utf8.RuneLen(quote)) == quote {
			l.advance()
			l.advance()
			l.advance()
			return l.makeToken(TokenString, sb.String()), nil
		}
		sb.WriteRune(l.peek())
		l.advance()
	}
	return Token{}, fmt.Errorf("%s:%d:%d: unterminated multiline string", l.file, l.startLn, l.startCl)
}

// scanNumber scans digits with at most one fractional part. Signs and
// range dashes are separate tokens.
func (l *Lexer) scanNumber() (Token, error) {
	for l.pos < len(l.input) && isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		l.advance()
		for l.pos < len(l.input) && isDigit(l.peek()) {
			l.advance()
		}
	}
	return l.makeToken(TokenNumber, l.input[l.start:l.pos]), nil
}

func (l *Lexer) scanIdentOrKeyword() (Token, error) {
	for l.pos < len(l.input) && isIdentPart(l.peek()) {
		l.advance()
	}
	literal := l.input[l.start:l.pos]
	tokType := LookupKeyword(literal)
	return l.makeToken(tokType, literal), nil
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.peek()
		if ch == ' ' || ch == '\t' || ch == '\r' {
			l.advance()
			continue
		}
		// Line comments start with #
		if ch == '#' {
			for l.pos < len(l.input) && l.peek() != '\n' {
				l.advance()
			}
			continue
		}
		break
	}
}

func (l *Lexer) peek() rune {
	return l.runeAtOffset(l.pos)
}

func (l *Lexer) peekAt(offset int) rune {
	return l.runeAtOffset(l.pos + offset)
}

func (l *Lexer) runeAtOffset(p int) rune {
	if p < 0 || p >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[p:])
	return r
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

func (l *Lexer) makeToken(typ TokenType, literal string) Token {
	return Token{
		Type:      typ,
		Literal:   literal,
		File:      l.file,
		Line:      l.startLn,
		Column:    l.startCl,
		Offset:    l.start,
		EndOffset: l.pos,
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}
