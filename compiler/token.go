package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the script lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber     // 42, 3.14, 1e10, 0xff
	TokenBigInt     // 42n
	TokenString     // 'hello', "hello"
	TokenRegExp     // /ab+c/gi
	TokenIdentifier // foo, Bar, $x, _y

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenDot       // .
	TokenSemicolon // ;
	TokenColon     // :
	TokenArrow     // =>

	// Operators
	TokenAssign      // =
	TokenPlusAssign  // +=
	TokenMinusAssign // -=
	TokenPlus        // +
	TokenMinus       // -
	TokenStar        // *
	TokenSlash       // /
	TokenPercent     // %
	TokenBang        // !
	TokenLess        // <
	TokenGreater     // >
	TokenLessEq      // <=
	TokenGreaterEq   // >=
	TokenEq          // ==
	TokenNotEq       // !=
	TokenStrictEq    // ===
	TokenStrictNotEq // !==
	TokenAnd         // &&
	TokenOr          // ||

	// Reserved words
	TokenLet
	TokenConst
	TokenVar
	TokenFunction
	TokenClass
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenNew
	TokenThis
	TokenNull
	TokenUndefined
	TokenTrue
	TokenFalse
	TokenTypeof
	TokenDelete
	TokenAsync
	TokenExtends
	TokenStatic
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenNumber:      "NUMBER",
	TokenBigInt:      "BIGINT",
	TokenString:      "STRING",
	TokenRegExp:      "REGEXP",
	TokenIdentifier:  "IDENTIFIER",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenLBrace:      "{",
	TokenRBrace:      "}",
	TokenComma:       ",",
	TokenDot:         ".",
	TokenSemicolon:   ";",
	TokenColon:       ":",
	TokenArrow:       "=>",
	TokenAssign:      "=",
	TokenPlusAssign:  "+=",
	TokenMinusAssign: "-=",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenBang:        "!",
	TokenLess:        "<",
	TokenGreater:     ">",
	TokenLessEq:      "<=",
	TokenGreaterEq:   ">=",
	TokenEq:          "==",
	TokenNotEq:       "!=",
	TokenStrictEq:    "===",
	TokenStrictNotEq: "!==",
	TokenAnd:         "&&",
	TokenOr:          "||",
	TokenLet:         "let",
	TokenConst:       "const",
	TokenVar:         "var",
	TokenFunction:    "function",
	TokenClass:       "class",
	TokenReturn:      "return",
	TokenIf:          "if",
	TokenElse:        "else",
	TokenWhile:       "while",
	TokenNew:         "new",
	TokenThis:        "this",
	TokenNull:        "null",
	TokenUndefined:   "undefined",
	TokenTrue:        "true",
	TokenFalse:       "false",
	TokenTypeof:      "typeof",
	TokenDelete:      "delete",
	TokenAsync:       "async",
	TokenExtends:     "extends",
	TokenStatic:      "static",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text
	Pos     Position // start position
	End     Position // position just past the token
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"let":       TokenLet,
	"const":     TokenConst,
	"var":       TokenVar,
	"function":  TokenFunction,
	"class":     TokenClass,
	"return":    TokenReturn,
	"if":        TokenIf,
	"else":      TokenElse,
	"while":     TokenWhile,
	"new":       TokenNew,
	"this":      TokenThis,
	"null":      TokenNull,
	"undefined": TokenUndefined,
	"true":      TokenTrue,
	"false":     TokenFalse,
	"typeof":    TokenTypeof,
	"delete":    TokenDelete,
	"async":     TokenAsync,
	"extends":   TokenExtends,
	"static":    TokenStatic,
}

// endsOperand reports whether a token can end an operand. A slash after
// such a token is division; anywhere else it starts a regexp literal.
func endsOperand(t TokenType) bool {
	switch t {
	case TokenNumber, TokenBigInt, TokenString, TokenRegExp, TokenIdentifier,
		TokenRParen, TokenRBracket, TokenRBrace,
		TokenThis, TokenNull, TokenUndefined, TokenTrue, TokenFalse:
		return true
	}
	return false
}
