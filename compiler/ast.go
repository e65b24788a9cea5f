package compiler

import "github.com/chazu/heapsnap/heap"

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for the script language
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// NumberLiteral represents a numeric literal.
type NumberLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *NumberLiteral) Span() Span { return n.SpanVal }
func (n *NumberLiteral) node()      {}
func (n *NumberLiteral) expr()      {}

// BigIntLiteral represents a bigint literal (42n). Digits excludes the
// trailing n.
type BigIntLiteral struct {
	SpanVal Span
	Digits  string
}

func (n *BigIntLiteral) Span() Span { return n.SpanVal }
func (n *BigIntLiteral) node()      {}
func (n *BigIntLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// RegExpLiteral represents /pattern/flags.
type RegExpLiteral struct {
	SpanVal Span
	Pattern string
	Flags   string
}

func (n *RegExpLiteral) Span() Span { return n.SpanVal }
func (n *RegExpLiteral) node()      {}
func (n *RegExpLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// NullLiteral represents null.
type NullLiteral struct {
	SpanVal Span
}

func (n *NullLiteral) Span() Span { return n.SpanVal }
func (n *NullLiteral) node()      {}
func (n *NullLiteral) expr()      {}

// UndefinedLiteral represents undefined.
type UndefinedLiteral struct {
	SpanVal Span
}

func (n *UndefinedLiteral) Span() Span { return n.SpanVal }
func (n *UndefinedLiteral) node()      {}
func (n *UndefinedLiteral) expr()      {}

// Identifier represents a name reference.
type Identifier struct {
	SpanVal Span
	Name    string
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}
func (n *Identifier) expr()      {}

// ThisExpr represents this.
type ThisExpr struct {
	SpanVal Span
}

func (n *ThisExpr) Span() Span { return n.SpanVal }
func (n *ThisExpr) node()      {}
func (n *ThisExpr) expr()      {}

// ArrayLiteral represents [a, , b]. A nil element is a hole.
type ArrayLiteral struct {
	SpanVal  Span
	Elements []Expr
}

func (n *ArrayLiteral) Span() Span { return n.SpanVal }
func (n *ArrayLiteral) node()      {}
func (n *ArrayLiteral) expr()      {}

// PropertyDef is one key: value entry of an object literal. Methods are
// stored as FunctionLiteral values of kind ConciseMethod.
type PropertyDef struct {
	Key   string
	Value Expr
}

// ObjectLiteral represents {k: v, m() {}}.
type ObjectLiteral struct {
	SpanVal    Span
	Properties []PropertyDef
}

func (n *ObjectLiteral) Span() Span { return n.SpanVal }
func (n *ObjectLiteral) node()      {}
func (n *ObjectLiteral) expr()      {}

// FunctionLiteral represents any function-valued syntax: declarations,
// expressions, arrows, methods and class constructors. Arrow functions
// with an expression body set ExprBody instead of Body. Its span covers
// the whole function text, which becomes the function's source range.
type FunctionLiteral struct {
	SpanVal  Span
	Kind     heap.FunctionKind
	Name     string
	Params   []string
	Body     []Stmt
	ExprBody Expr
}

func (n *FunctionLiteral) Span() Span { return n.SpanVal }
func (n *FunctionLiteral) node()      {}
func (n *FunctionLiteral) expr()      {}

// ClassLiteral represents class Name { constructor() {} m() {} }. Ctor
// is nil for a class without an explicit constructor.
type ClassLiteral struct {
	SpanVal Span
	Name    string
	Ctor    *FunctionLiteral
	Methods []*FunctionLiteral
}

func (n *ClassLiteral) Span() Span { return n.SpanVal }
func (n *ClassLiteral) node()      {}
func (n *ClassLiteral) expr()      {}

// MemberExpr represents obj.name or obj[expr]. Exactly one of Name and
// Index is set.
type MemberExpr struct {
	SpanVal Span
	Object  Expr
	Name    string
	Index   Expr
}

func (n *MemberExpr) Span() Span { return n.SpanVal }
func (n *MemberExpr) node()      {}
func (n *MemberExpr) expr()      {}

// CallExpr represents callee(args).
type CallExpr struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// NewExpr represents new Callee(args).
type NewExpr struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

func (n *NewExpr) Span() Span { return n.SpanVal }
func (n *NewExpr) node()      {}
func (n *NewExpr) expr()      {}

// AssignExpr represents target = value, target += value and
// target -= value. Target is an Identifier or a MemberExpr.
type AssignExpr struct {
	SpanVal Span
	Op      TokenType
	Target  Expr
	Value   Expr
}

func (n *AssignExpr) Span() Span { return n.SpanVal }
func (n *AssignExpr) node()      {}
func (n *AssignExpr) expr()      {}

// BinaryExpr represents arithmetic and comparison operators.
type BinaryExpr struct {
	SpanVal Span
	Op      TokenType
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// LogicalExpr represents && and ||, which short-circuit.
type LogicalExpr struct {
	SpanVal Span
	Op      TokenType
	Left    Expr
	Right   Expr
}

func (n *LogicalExpr) Span() Span { return n.SpanVal }
func (n *LogicalExpr) node()      {}
func (n *LogicalExpr) expr()      {}

// UnaryExpr represents !x, -x, typeof x and delete x.
type UnaryExpr struct {
	SpanVal Span
	Op      TokenType
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// VarDecl represents let, const or var declarations.
type VarDecl struct {
	SpanVal Span
	Kind    TokenType // TokenLet, TokenConst or TokenVar
	Name    string
	Init    Expr // nil when absent
}

func (n *VarDecl) Span() Span { return n.SpanVal }
func (n *VarDecl) node()      {}
func (n *VarDecl) stmt()      {}

// FunctionDecl represents a hoisted function declaration.
type FunctionDecl struct {
	SpanVal Span
	Func    *FunctionLiteral
}

func (n *FunctionDecl) Span() Span { return n.SpanVal }
func (n *FunctionDecl) node()      {}
func (n *FunctionDecl) stmt()      {}

// ClassDecl represents a class declaration.
type ClassDecl struct {
	SpanVal Span
	Class   *ClassLiteral
}

func (n *ClassDecl) Span() Span { return n.SpanVal }
func (n *ClassDecl) node()      {}
func (n *ClassDecl) stmt()      {}

// ExprStmt represents an expression used as a statement.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// BlockStmt represents { ... }.
type BlockStmt struct {
	SpanVal Span
	Body    []Stmt
}

func (n *BlockStmt) Span() Span { return n.SpanVal }
func (n *BlockStmt) node()      {}
func (n *BlockStmt) stmt()      {}

// IfStmt represents if (cond) then else otherwise.
type IfStmt struct {
	SpanVal Span
	Cond    Expr
	Then    Stmt
	Else    Stmt // nil when absent
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// WhileStmt represents while (cond) body.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    Stmt
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// ReturnStmt represents return [value].
type ReturnStmt struct {
	SpanVal Span
	Value   Expr // nil for a bare return
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// EmptyStmt represents a lone semicolon.
type EmptyStmt struct {
	SpanVal Span
}

func (n *EmptyStmt) Span() Span { return n.SpanVal }
func (n *EmptyStmt) node()      {}
func (n *EmptyStmt) stmt()      {}

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// Program is a parsed script.
type Program struct {
	SpanVal Span
	Body    []Stmt
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// MakeSpan creates a span from two positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}
