package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/heapsnap/heap"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for the script language
// ---------------------------------------------------------------------------

// SyntaxError is a parse failure at a source position.
type SyntaxError struct {
	Pos Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("SyntaxError: line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// Parser parses script source code into an AST. It stops at the first
// error: the remaining input reads as EOF so every loop terminates.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	prevEnd   Position // end of the last consumed token
	errors    []*SyntaxError
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.prevEnd = p.curToken.End
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken)
	return false
}

// errorf records a parse error and halts the token stream.
func (p *Parser) errorf(format string, args ...any) {
	if len(p.errors) > 0 {
		return
	}
	pos := p.curToken.Pos
	if p.curTokenIs(TokenError) {
		format, args = "%s", []any{p.curToken.Literal}
	}
	p.errors = append(p.errors, &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
	eof := Token{Type: TokenEOF, Pos: pos, End: pos}
	p.lexer = NewLexer("")
	p.curToken, p.peekToken = eof, eof
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []*SyntaxError {
	return p.errors
}

func (p *Parser) err() error {
	if len(p.errors) == 0 {
		return nil
	}
	return p.errors[0]
}

// parserState is a snapshot used for bounded lookahead.
type parserState struct {
	lexer     Lexer
	curToken  Token
	peekToken Token
	prevEnd   Position
}

func (p *Parser) save() parserState {
	return parserState{*p.lexer, p.curToken, p.peekToken, p.prevEnd}
}

func (p *Parser) restore(s parserState) {
	*p.lexer = s.lexer
	p.curToken, p.peekToken, p.prevEnd = s.curToken, s.peekToken, s.prevEnd
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Parse parses a whole script.
func Parse(source string) (*Program, error) {
	p := NewParser(source)
	prog := p.ParseProgram()
	if err := p.err(); err != nil {
		return nil, err
	}
	return prog, nil
}

// ParseExpressionSource parses source as exactly one expression.
func ParseExpressionSource(source string) (Expr, error) {
	p := NewParser(source)
	expr := p.ParseExpression()
	if !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after expression", p.curToken)
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return expr, nil
}

// ParseFunctionSource parses the text of one function of the given kind,
// as returned by heap.Function.SourceText. Class constructor kinds yield
// a *ClassLiteral, everything else a *FunctionLiteral.
func ParseFunctionSource(source string, kind heap.FunctionKind) (Expr, error) {
	p := NewParser(source)
	var fn Expr
	switch kind {
	case heap.BaseConstructor, heap.DefaultBaseConstructor,
		heap.DerivedConstructor, heap.DefaultDerivedConstructor:
		if !p.curTokenIs(TokenClass) {
			p.errorf("expected class, got %s", p.curToken)
			break
		}
		fn = p.parseClass()
	case heap.ConciseMethod, heap.AsyncConciseMethod,
		heap.ConciseGeneratorMethod, heap.AsyncConciseGeneratorMethod:
		if m := p.parseMethod(); m != nil {
			fn = m
		}
	default:
		expr := p.parseAssignment()
		lit, ok := expr.(*FunctionLiteral)
		if !ok || lit == nil {
			p.errorf("source text is not a function")
			break
		}
		if lit.Kind != kind {
			p.errorf("source text is a %s, want %s", lit.Kind, kind)
		}
		fn = lit
	}
	if !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after function", p.curToken)
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return fn, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ParseProgram parses statements until EOF.
func (p *Parser) ParseProgram() *Program {
	start := p.curToken.Pos
	var body []Stmt
	for !p.curTokenIs(TokenEOF) {
		if s := p.ParseStatement(); s != nil {
			body = append(body, s)
		}
	}
	return &Program{SpanVal: MakeSpan(start, p.curToken.Pos), Body: body}
}

// ParseStatement parses a single statement.
func (p *Parser) ParseStatement() Stmt {
	switch p.curToken.Type {
	case TokenLet, TokenConst, TokenVar:
		return p.parseVarDecl()
	case TokenFunction:
		return p.parseFunctionDecl()
	case TokenAsync:
		if p.peekTokenIs(TokenFunction) {
			return p.parseFunctionDecl()
		}
	case TokenClass:
		start := p.curToken.Pos
		cls := p.parseClass()
		if cls == nil {
			return nil
		}
		if cls.Name == "" {
			p.errorf("class declaration needs a name")
			return nil
		}
		return &ClassDecl{SpanVal: MakeSpan(start, p.prevEnd), Class: cls}
	case TokenReturn:
		return p.parseReturn()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenLBrace:
		return p.parseBlock()
	case TokenSemicolon:
		start := p.curToken.Pos
		p.nextToken()
		return &EmptyStmt{SpanVal: MakeSpan(start, p.prevEnd)}
	}

	start := p.curToken.Pos
	expr := p.ParseExpression()
	if expr == nil {
		return nil
	}
	p.skipSemicolon()
	return &ExprStmt{SpanVal: MakeSpan(start, p.prevEnd), Expr: expr}
}

func (p *Parser) skipSemicolon() {
	if p.curTokenIs(TokenSemicolon) {
		p.nextToken()
	}
}

// parseVarDecl parses let|const|var name [= init].
func (p *Parser) parseVarDecl() Stmt {
	start := p.curToken.Pos
	kind := p.curToken.Type
	p.nextToken()
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected variable name, got %s", p.curToken)
		return nil
	}
	decl := &VarDecl{Kind: kind, Name: p.curToken.Literal}
	p.nextToken()
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		decl.Init = p.parseAssignment()
	} else if kind == TokenConst {
		p.errorf("missing initializer in const declaration")
		return nil
	}
	p.skipSemicolon()
	decl.SpanVal = MakeSpan(start, p.prevEnd)
	return decl
}

func (p *Parser) parseFunctionDecl() Stmt {
	start := p.curToken.Pos
	fn := p.parseFunction()
	if fn == nil {
		return nil
	}
	if fn.Name == "" {
		p.errorf("function declaration needs a name")
		return nil
	}
	return &FunctionDecl{SpanVal: MakeSpan(start, p.prevEnd), Func: fn}
}

func (p *Parser) parseReturn() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	ret := &ReturnStmt{}
	if !p.curTokenIs(TokenSemicolon) && !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		ret.Value = p.ParseExpression()
	}
	p.skipSemicolon()
	ret.SpanVal = MakeSpan(start, p.prevEnd)
	return ret
}

func (p *Parser) parseIf() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	if !p.expect(TokenLParen) {
		return nil
	}
	cond := p.ParseExpression()
	if !p.expect(TokenRParen) {
		return nil
	}
	stmt := &IfStmt{Cond: cond, Then: p.ParseStatement()}
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		stmt.Else = p.ParseStatement()
	}
	stmt.SpanVal = MakeSpan(start, p.prevEnd)
	return stmt
}

func (p *Parser) parseWhile() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	if !p.expect(TokenLParen) {
		return nil
	}
	cond := p.ParseExpression()
	if !p.expect(TokenRParen) {
		return nil
	}
	body := p.ParseStatement()
	return &WhileStmt{SpanVal: MakeSpan(start, p.prevEnd), Cond: cond, Body: body}
}

func (p *Parser) parseBlock() *BlockStmt {
	start := p.curToken.Pos
	body := p.parseBraceBody()
	return &BlockStmt{SpanVal: MakeSpan(start, p.prevEnd), Body: body}
}

// parseBraceBody parses { statements }.
func (p *Parser) parseBraceBody() []Stmt {
	if !p.expect(TokenLBrace) {
		return nil
	}
	var body []Stmt
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		if s := p.ParseStatement(); s != nil {
			body = append(body, s)
		}
	}
	p.expect(TokenRBrace)
	return body
}

// ---------------------------------------------------------------------------
// Functions and classes
// ---------------------------------------------------------------------------

// parseFunction parses [async] function [*] [name] (params) { body }.
func (p *Parser) parseFunction() *FunctionLiteral {
	start := p.curToken.Pos
	async := false
	if p.curTokenIs(TokenAsync) {
		async = true
		p.nextToken()
	}
	if !p.expect(TokenFunction) {
		return nil
	}
	gen := false
	if p.curTokenIs(TokenStar) {
		gen = true
		p.nextToken()
	}
	fn := &FunctionLiteral{Kind: functionKind(async, gen)}
	if p.curTokenIs(TokenIdentifier) {
		fn.Name = p.curToken.Literal
		p.nextToken()
	}
	fn.Params = p.parseParams()
	fn.Body = p.parseBraceBody()
	fn.SpanVal = MakeSpan(start, p.prevEnd)
	return fn
}

func functionKind(async, gen bool) heap.FunctionKind {
	switch {
	case async && gen:
		return heap.AsyncGeneratorFunction
	case async:
		return heap.AsyncFunction
	case gen:
		return heap.GeneratorFunction
	}
	return heap.NormalFunction
}

func methodKind(async, gen bool) heap.FunctionKind {
	switch {
	case async && gen:
		return heap.AsyncConciseGeneratorMethod
	case async:
		return heap.AsyncConciseMethod
	case gen:
		return heap.ConciseGeneratorMethod
	}
	return heap.ConciseMethod
}

// parseParams parses (a, b, c).
func (p *Parser) parseParams() []string {
	if !p.expect(TokenLParen) {
		return nil
	}
	var params []string
	for !p.curTokenIs(TokenRParen) {
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name, got %s", p.curToken)
			return nil
		}
		params = append(params, p.curToken.Literal)
		p.nextToken()
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		if !p.curTokenIs(TokenRParen) {
			p.errorf("expected , or ) in parameter list, got %s", p.curToken)
			return nil
		}
	}
	p.nextToken()
	return params
}

// isArrowAhead reports whether the current ( starts an arrow parameter
// list. It never records errors.
func (p *Parser) isArrowAhead() bool {
	saved := p.save()
	defer p.restore(saved)
	p.nextToken()
	for !p.curTokenIs(TokenRParen) {
		if !p.curTokenIs(TokenIdentifier) {
			return false
		}
		p.nextToken()
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		} else if !p.curTokenIs(TokenRParen) {
			return false
		}
	}
	p.nextToken()
	return p.curTokenIs(TokenArrow)
}

// parseArrow parses [async] (params) => body and [async] x => body.
func (p *Parser) parseArrow() *FunctionLiteral {
	start := p.curToken.Pos
	fn := &FunctionLiteral{Kind: heap.ArrowFunction}
	if p.curTokenIs(TokenAsync) {
		fn.Kind = heap.AsyncArrowFunction
		p.nextToken()
	}
	if p.curTokenIs(TokenIdentifier) {
		fn.Params = []string{p.curToken.Literal}
		p.nextToken()
	} else {
		fn.Params = p.parseParams()
	}
	if !p.expect(TokenArrow) {
		return nil
	}
	if p.curTokenIs(TokenLBrace) {
		fn.Body = p.parseBraceBody()
	} else {
		fn.ExprBody = p.parseAssignment()
	}
	fn.SpanVal = MakeSpan(start, p.prevEnd)
	return fn
}

// parseMethod parses [async] [*] name (params) { body }.
func (p *Parser) parseMethod() *FunctionLiteral {
	start := p.curToken.Pos
	async, gen := false, false
	if p.curTokenIs(TokenAsync) && !p.peekTokenIs(TokenLParen) {
		async = true
		p.nextToken()
	}
	if p.curTokenIs(TokenStar) {
		gen = true
		p.nextToken()
	}
	name, ok := p.propertyName()
	if !ok {
		p.errorf("expected method name, got %s", p.curToken)
		return nil
	}
	fn := &FunctionLiteral{Kind: methodKind(async, gen), Name: name}
	fn.Params = p.parseParams()
	fn.Body = p.parseBraceBody()
	fn.SpanVal = MakeSpan(start, p.prevEnd)
	return fn
}

// propertyName consumes an identifier, reserved word, string or number
// used as a property key.
func (p *Parser) propertyName() (string, bool) {
	tok := p.curToken
	switch {
	case tok.Type == TokenIdentifier || tok.Type == TokenString:
	case tok.Type == TokenNumber:
		n, ok := p.numberValue(tok)
		if !ok {
			return "", false
		}
		p.nextToken()
		return heap.NumberValue(n).(fmt.Stringer).String(), true
	default:
		if _, reserved := reservedWords[tok.Literal]; !reserved {
			return "", false
		}
	}
	p.nextToken()
	return tok.Literal, true
}

// parseClass parses class [Name] { members }.
func (p *Parser) parseClass() *ClassLiteral {
	start := p.curToken.Pos
	p.nextToken() // consume class
	cls := &ClassLiteral{}
	if p.curTokenIs(TokenIdentifier) {
		cls.Name = p.curToken.Literal
		p.nextToken()
	}
	if p.curTokenIs(TokenExtends) {
		p.errorf("class inheritance is not supported")
		return nil
	}
	if !p.expect(TokenLBrace) {
		return nil
	}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenSemicolon) {
			p.nextToken()
			continue
		}
		if p.curTokenIs(TokenStatic) && !p.peekTokenIs(TokenLParen) {
			p.errorf("static class members are not supported")
			return nil
		}
		m := p.parseMethod()
		if m == nil {
			return nil
		}
		if m.Name == "constructor" {
			if cls.Ctor != nil {
				p.errorf("a class may only have one constructor")
				return nil
			}
			if m.Kind != heap.ConciseMethod {
				p.errorf("class constructor may not be async or a generator")
				return nil
			}
			m.Kind = heap.BaseConstructor
			cls.Ctor = m
			continue
		}
		cls.Methods = append(cls.Methods, m)
	}
	p.expect(TokenRBrace)
	cls.SpanVal = MakeSpan(start, p.prevEnd)
	return cls
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr {
	return p.parseAssignment()
}

func (p *Parser) parseAssignment() Expr {
	switch {
	case p.curTokenIs(TokenIdentifier) && p.peekTokenIs(TokenArrow):
		return p.parseArrow()
	case p.curTokenIs(TokenLParen) && p.isArrowAhead():
		return p.parseArrow()
	case p.curTokenIs(TokenAsync):
		if p.peekTokenIs(TokenFunction) {
			return p.parseFunction()
		}
		if p.peekTokenIs(TokenIdentifier) {
			return p.parseArrow()
		}
		if p.peekTokenIs(TokenLParen) {
			saved := p.save()
			p.nextToken()
			arrow := p.isArrowAhead()
			p.restore(saved)
			if arrow {
				return p.parseArrow()
			}
		}
		p.errorf("unexpected async")
		return nil
	}

	start := p.curToken.Pos
	left := p.parseLogicalOr()
	switch op := p.curToken.Type; op {
	case TokenAssign, TokenPlusAssign, TokenMinusAssign:
		switch left.(type) {
		case *Identifier, *MemberExpr:
		default:
			p.errorf("invalid assignment target")
			return nil
		}
		p.nextToken()
		value := p.parseAssignment()
		return &AssignExpr{SpanVal: MakeSpan(start, p.prevEnd), Op: op, Target: left, Value: value}
	}
	return left
}

func (p *Parser) parseLogicalOr() Expr {
	start := p.curToken.Pos
	left := p.parseLogicalAnd()
	for p.curTokenIs(TokenOr) {
		p.nextToken()
		right := p.parseLogicalAnd()
		left = &LogicalExpr{SpanVal: MakeSpan(start, p.prevEnd), Op: TokenOr, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseLogicalAnd() Expr {
	start := p.curToken.Pos
	left := p.parseBinary(0)
	for p.curTokenIs(TokenAnd) {
		p.nextToken()
		right := p.parseBinary(0)
		left = &LogicalExpr{SpanVal: MakeSpan(start, p.prevEnd), Op: TokenAnd, Left: left, Right: right}
	}
	return left
}

// binaryLevels lists binary operators from loosest to tightest.
var binaryLevels = [][]TokenType{
	{TokenEq, TokenNotEq, TokenStrictEq, TokenStrictNotEq},
	{TokenLess, TokenGreater, TokenLessEq, TokenGreaterEq},
	{TokenPlus, TokenMinus},
	{TokenStar, TokenSlash, TokenPercent},
}

func (p *Parser) parseBinary(level int) Expr {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	start := p.curToken.Pos
	left := p.parseBinary(level + 1)
	for {
		op, ok := p.binaryOp(level)
		if !ok {
			return left
		}
		p.nextToken()
		right := p.parseBinary(level + 1)
		left = &BinaryExpr{SpanVal: MakeSpan(start, p.prevEnd), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) binaryOp(level int) (TokenType, bool) {
	for _, op := range binaryLevels[level] {
		if p.curTokenIs(op) {
			return op, true
		}
	}
	return 0, false
}

func (p *Parser) parseUnary() Expr {
	switch op := p.curToken.Type; op {
	case TokenBang, TokenMinus, TokenPlus, TokenTypeof, TokenDelete:
		start := p.curToken.Pos
		p.nextToken()
		operand := p.parseUnary()
		return &UnaryExpr{SpanVal: MakeSpan(start, p.prevEnd), Op: op, Operand: operand}
	}
	return p.parseCallMember()
}

// parseCallMember parses member accesses and calls on a primary.
func (p *Parser) parseCallMember() Expr {
	start := p.curToken.Pos
	var expr Expr
	if p.curTokenIs(TokenNew) {
		expr = p.parseNew()
	} else {
		expr = p.parsePrimary()
	}
	for expr != nil {
		switch {
		case p.curTokenIs(TokenDot), p.curTokenIs(TokenLBracket):
			expr = p.parseMember(start, expr)
		case p.curTokenIs(TokenLParen):
			args := p.parseArgs()
			expr = &CallExpr{SpanVal: MakeSpan(start, p.prevEnd), Callee: expr, Args: args}
		default:
			return expr
		}
	}
	return nil
}

// parseMember parses .name or [expr] after object.
func (p *Parser) parseMember(start Position, object Expr) Expr {
	if p.curTokenIs(TokenLBracket) {
		p.nextToken()
		index := p.ParseExpression()
		if !p.expect(TokenRBracket) {
			return nil
		}
		return &MemberExpr{SpanVal: MakeSpan(start, p.prevEnd), Object: object, Index: index}
	}
	p.nextToken() // consume .
	tok := p.curToken
	_, reserved := reservedWords[tok.Literal]
	if tok.Type != TokenIdentifier && !reserved {
		p.errorf("expected property name after ., got %s", tok)
		return nil
	}
	p.nextToken()
	return &MemberExpr{SpanVal: MakeSpan(start, p.prevEnd), Object: object, Name: tok.Literal}
}

// parseNew parses new Callee[(args)]. The callee may not contain calls.
func (p *Parser) parseNew() Expr {
	start := p.curToken.Pos
	p.nextToken() // consume new
	var callee Expr
	if p.curTokenIs(TokenNew) {
		callee = p.parseNew()
	} else {
		callee = p.parsePrimary()
	}
	for callee != nil && (p.curTokenIs(TokenDot) || p.curTokenIs(TokenLBracket)) {
		callee = p.parseMember(start, callee)
	}
	if callee == nil {
		return nil
	}
	var args []Expr
	if p.curTokenIs(TokenLParen) {
		args = p.parseArgs()
	}
	return &NewExpr{SpanVal: MakeSpan(start, p.prevEnd), Callee: callee, Args: args}
}

func (p *Parser) parseArgs() []Expr {
	p.nextToken() // consume (
	var args []Expr
	for !p.curTokenIs(TokenRParen) {
		arg := p.parseAssignment()
		if arg == nil {
			return nil
		}
		args = append(args, arg)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		if !p.curTokenIs(TokenRParen) {
			p.errorf("expected , or ) in arguments, got %s", p.curToken)
			return nil
		}
	}
	p.nextToken()
	return args
}

// parsePrimary parses a primary expression.
func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	span := MakeSpan(tok.Pos, tok.End)
	switch tok.Type {
	case TokenNumber:
		n, ok := p.numberValue(tok)
		if !ok {
			p.errorf("invalid number literal %q", tok.Literal)
			return nil
		}
		p.nextToken()
		return &NumberLiteral{SpanVal: span, Value: n}
	case TokenBigInt:
		p.nextToken()
		return &BigIntLiteral{SpanVal: span, Digits: tok.Literal}
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: span, Value: tok.Literal}
	case TokenRegExp:
		i := strings.LastIndexByte(tok.Literal, '/')
		p.nextToken()
		return &RegExpLiteral{SpanVal: span, Pattern: tok.Literal[1:i], Flags: tok.Literal[i+1:]}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: span, Value: tok.Type == TokenTrue}
	case TokenNull:
		p.nextToken()
		return &NullLiteral{SpanVal: span}
	case TokenUndefined:
		p.nextToken()
		return &UndefinedLiteral{SpanVal: span}
	case TokenThis:
		p.nextToken()
		return &ThisExpr{SpanVal: span}
	case TokenIdentifier:
		p.nextToken()
		return &Identifier{SpanVal: span, Name: tok.Literal}
	case TokenLParen:
		p.nextToken()
		expr := p.ParseExpression()
		if !p.expect(TokenRParen) {
			return nil
		}
		return expr
	case TokenLBracket:
		return p.parseArrayLiteral()
	case TokenLBrace:
		return p.parseObjectLiteral()
	case TokenFunction:
		return p.parseFunction()
	case TokenClass:
		return p.parseClass()
	}
	p.errorf("unexpected %s", tok)
	return nil
}

func (p *Parser) numberValue(tok Token) (float64, bool) {
	lit := tok.Literal
	if len(lit) > 2 && (lit[1] == 'x' || lit[1] == 'X') {
		n, err := strconv.ParseUint(lit[2:], 16, 64)
		return float64(n), err == nil
	}
	n, err := strconv.ParseFloat(lit, 64)
	if err != nil && !isRangeError(err) {
		return 0, false
	}
	return n, true
}

// isRangeError reports an out-of-range float, which still parses to ±Inf
// or zero the way script numbers do.
func isRangeError(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// parseArrayLiteral parses [a, , b]. Elisions become nil elements.
func (p *Parser) parseArrayLiteral() Expr {
	start := p.curToken.Pos
	p.nextToken() // consume [
	var elems []Expr
	for !p.curTokenIs(TokenRBracket) {
		if p.curTokenIs(TokenComma) {
			elems = append(elems, nil)
			p.nextToken()
			continue
		}
		elem := p.parseAssignment()
		if elem == nil {
			return nil
		}
		elems = append(elems, elem)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		if !p.curTokenIs(TokenRBracket) {
			p.errorf("expected , or ] in array literal, got %s", p.curToken)
			return nil
		}
	}
	p.nextToken()
	return &ArrayLiteral{SpanVal: MakeSpan(start, p.prevEnd), Elements: elems}
}

// parseObjectLiteral parses {k: v, m() {}, shorthand}.
func (p *Parser) parseObjectLiteral() Expr {
	start := p.curToken.Pos
	p.nextToken() // consume {
	obj := &ObjectLiteral{}
	for !p.curTokenIs(TokenRBrace) {
		prop, ok := p.parseObjectProperty()
		if !ok {
			return nil
		}
		obj.Properties = append(obj.Properties, prop)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		if !p.curTokenIs(TokenRBrace) {
			p.errorf("expected , or } in object literal, got %s", p.curToken)
			return nil
		}
	}
	p.nextToken()
	obj.SpanVal = MakeSpan(start, p.prevEnd)
	return obj
}

func (p *Parser) parseObjectProperty() (PropertyDef, bool) {
	isMethod := p.peekTokenIs(TokenLParen) || p.curTokenIs(TokenStar) ||
		p.curTokenIs(TokenAsync) && !p.peekTokenIs(TokenColon) && !p.peekTokenIs(TokenComma) && !p.peekTokenIs(TokenRBrace)
	if isMethod {
		m := p.parseMethod()
		if m == nil {
			return PropertyDef{}, false
		}
		return PropertyDef{Key: m.Name, Value: m}, true
	}
	keyTok := p.curToken
	key, ok := p.propertyName()
	if !ok {
		p.errorf("expected property name, got %s", p.curToken)
		return PropertyDef{}, false
	}
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		value := p.parseAssignment()
		if value == nil {
			return PropertyDef{}, false
		}
		return PropertyDef{Key: key, Value: value}, true
	}
	if keyTok.Type != TokenIdentifier {
		p.errorf("expected : after property name %q", key)
		return PropertyDef{}, false
	}
	return PropertyDef{Key: key, Value: &Identifier{SpanVal: MakeSpan(keyTok.Pos, keyTok.End), Name: key}}, true
}
