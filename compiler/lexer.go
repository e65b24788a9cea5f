package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for the script language
// ---------------------------------------------------------------------------

// Lexer tokenizes script source code.
type Lexer struct {
	input    string
	pos      int  // current position in input
	readPos  int  // reading position (after current char)
	ch       rune // current character
	line     int  // current line (1-based)
	col      int  // current column (1-based)
	lastType TokenType
	hasLast  bool
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	tok := l.scan()
	tok.End = l.position()
	l.lastType, l.hasLast = tok.Type, true
	return tok
}

var punctuators = []struct {
	lit string
	typ TokenType
}{
	// Longest first.
	{"===", TokenStrictEq},
	{"!==", TokenStrictNotEq},
	{"=>", TokenArrow},
	{"==", TokenEq},
	{"!=", TokenNotEq},
	{"<=", TokenLessEq},
	{">=", TokenGreaterEq},
	{"&&", TokenAnd},
	{"||", TokenOr},
	{"+=", TokenPlusAssign},
	{"-=", TokenMinusAssign},
	{"(", TokenLParen},
	{")", TokenRParen},
	{"[", TokenLBracket},
	{"]", TokenRBracket},
	{"{", TokenLBrace},
	{"}", TokenRBrace},
	{",", TokenComma},
	{";", TokenSemicolon},
	{":", TokenColon},
	{"=", TokenAssign},
	{"+", TokenPlus},
	{"-", TokenMinus},
	{"*", TokenStar},
	{"%", TokenPercent},
	{"!", TokenBang},
	{"<", TokenLess},
	{">", TokenGreater},
}

func (l *Lexer) scan() Token {
	if err := l.skipWhitespaceAndComments(); err != "" {
		return Token{Type: TokenError, Literal: err, Pos: l.position()}
	}

	pos := l.position()

	switch {
	case l.atEOF():
		return Token{Type: TokenEOF, Literal: "", Pos: pos}

	case l.ch == '\'' || l.ch == '"':
		return l.readString(pos)

	case isDigit(l.ch) || l.ch == '.' && isDigit(l.peekChar()):
		return l.readNumber(pos)

	case l.ch == '.':
		l.readChar()
		return Token{Type: TokenDot, Literal: ".", Pos: pos}

	case l.ch == '/':
		if l.hasLast && endsOperand(l.lastType) {
			l.readChar()
			return Token{Type: TokenSlash, Literal: "/", Pos: pos}
		}
		return l.readRegExp(pos)

	case isIdentStart(l.ch):
		return l.readIdentifier(pos)
	}

	rest := l.input[l.pos:]
	for _, p := range punctuators {
		if strings.HasPrefix(rest, p.lit) {
			for range p.lit {
				l.readChar()
			}
			return Token{Type: p.typ, Literal: p.lit, Pos: pos}
		}
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}
}

// skipWhitespaceAndComments skips whitespace, // line comments and /* */
// block comments. It returns a message for an unterminated comment.
func (l *Lexer) skipWhitespaceAndComments() string {
	for {
		for !l.atEOF() && unicode.IsSpace(l.ch) {
			l.readChar()
		}
		if l.ch == '/' && l.peekChar() == '/' {
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.atEOF() {
					return "unterminated comment"
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
			continue
		}
		return ""
	}
}

// readString reads a single or double quoted string. The literal is the
// decoded value.
func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	l.readChar()
	var sb strings.Builder
	for l.ch != quote {
		if l.atEOF() || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			case 0:
				return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
			default:
				sb.WriteRune(l.ch)
			}
			l.readChar()
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	l.readChar()
	return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
}

// readNumber reads a decimal, hex or bigint literal.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
	}
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == 'n' {
		lit := l.input[start:l.pos]
		l.readChar()
		return Token{Type: TokenBigInt, Literal: lit, Pos: pos}
	}
	if l.ch == '.' {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		if !isDigit(l.ch) {
			return Token{Type: TokenError, Literal: "malformed exponent", Pos: pos}
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
}

// readRegExp reads /body/flags. The literal keeps both slashes.
func (l *Lexer) readRegExp(pos Position) Token {
	start := l.pos
	l.readChar()
	inClass := false
	for {
		switch {
		case l.atEOF() || l.ch == '\n':
			return Token{Type: TokenError, Literal: "unterminated regexp", Pos: pos}
		case l.ch == '\\':
			l.readChar()
			if l.atEOF() {
				return Token{Type: TokenError, Literal: "unterminated regexp", Pos: pos}
			}
		case l.ch == '[':
			inClass = true
		case l.ch == ']':
			inClass = false
		case l.ch == '/' && !inClass:
			l.readChar()
			for isIdentPart(l.ch) {
				l.readChar()
			}
			return Token{Type: TokenRegExp, Literal: l.input[start:l.pos], Pos: pos}
		}
		l.readChar()
	}
}

// readIdentifier reads an identifier or reserved word.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if typ, ok := reservedWords[lit]; ok {
		return Token{Type: typ, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

// ---------------------------------------------------------------------------
// Character classes
// ---------------------------------------------------------------------------

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
