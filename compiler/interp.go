package compiler

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/heapsnap/heap"
)

var log = commonlog.GetLogger("heapsnap.compiler")

const (
	DefaultMaxSteps = 10_000_000
	DefaultMaxDepth = 256
)

// RuntimeError is an uncaught script exception.
type RuntimeError struct {
	Kind string // TypeError, ReferenceError, RangeError, SyntaxError or Error
	Msg  string
	Err  error
}

func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return e.Kind + ": " + e.Msg
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func throwf(kind, format string, args ...any) error {
	return &RuntimeError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// wrapHeap turns a heap failure into a script exception.
func wrapHeap(msg string, err error) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}
	kind := "Error"
	switch {
	case errors.Is(err, heap.ErrOutOfMemory):
		kind = "RangeError"
	case errors.Is(err, heap.ErrReadOnly), errors.Is(err, heap.ErrNotConfigurable),
		errors.Is(err, heap.ErrUnsupportedPrototype), errors.Is(err, heap.ErrNoPrototypeSlot):
		kind = "TypeError"
	case errors.Is(err, heap.ErrInvalidRegExp):
		kind = "SyntaxError"
	}
	return &RuntimeError{Kind: kind, Msg: msg, Err: err}
}

// ---------------------------------------------------------------------------
// Interpreter
// ---------------------------------------------------------------------------

// Interpreter is a tree-walking evaluator over heap.Realm values. Script
// functions are heap.Function records whose source range is reparsed on
// first call, so functions restored from a snapshot run the same way as
// the ones created here. An Interpreter runs one script at a time.
type Interpreter struct {
	Out      io.Writer // print output
	MaxSteps int
	MaxDepth int

	mu     sync.Mutex
	realms map[*heap.Realm]*realmState
}

// realmState is the per-realm cache of parsed functions and builtins.
type realmState struct {
	compiled map[*heap.Function]*compiled
	natives  map[*heap.Function]native
	builtins map[string]heap.Value // nil until first lookup
}

// compiled is a parsed function body. base is the script offset that the
// parsed text starts at.
type compiled struct {
	fn     *FunctionLiteral // nil for a class without a constructor
	base   int
	script *heap.Script
}

type native func(ex *execution, this heap.Value, args []heap.Value) (heap.Value, error)

// New creates an interpreter printing to stdout.
func New() *Interpreter {
	return &Interpreter{
		Out:      os.Stdout,
		MaxSteps: DefaultMaxSteps,
		MaxDepth: DefaultMaxDepth,
		realms:   make(map[*heap.Realm]*realmState),
	}
}

var defaultInterpreter = New()

// Eval evaluates expr in realm with the shared default interpreter.
func Eval(realm *heap.Realm, expr string) (heap.Value, error) {
	return defaultInterpreter.Evaluate(realm, expr)
}

// Run runs a script in realm with the shared default interpreter.
func Run(realm *heap.Realm, name, source string) error {
	return defaultInterpreter.Run(realm, name, source)
}

// Evaluate evaluates a single expression at the top level of realm.
func (in *Interpreter) Evaluate(realm *heap.Realm, expr string) (heap.Value, error) {
	e, err := ParseExpressionSource(expr)
	if err != nil {
		return nil, err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	ex := in.begin(realm)
	return ex.eval(e, &scope{script: &heap.Script{Name: "<eval>", Source: expr}})
}

// Run parses and runs source as a top-level script named name. Top-level
// declarations become realm globals.
func (in *Interpreter) Run(realm *heap.Realm, name, source string) error {
	prog, err := Parse(source)
	if err != nil {
		return err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	log.Debugf("running %s (%d bytes)", name, len(source))
	ex := in.begin(realm)
	sc := &scope{script: &heap.Script{Name: name, Source: source}}
	if err := ex.hoist(prog.Body, sc); err != nil {
		return err
	}
	_, _, err = ex.execList(prog.Body, sc)
	return err
}

// Release drops everything cached for realm.
func (in *Interpreter) Release(realm *heap.Realm) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.realms, realm)
}

func (in *Interpreter) begin(realm *heap.Realm) *execution {
	st, ok := in.realms[realm]
	if !ok {
		st = &realmState{
			compiled: make(map[*heap.Function]*compiled),
			natives:  make(map[*heap.Function]native),
		}
		in.realms[realm] = st
	}
	return &execution{in: in, realm: realm, state: st}
}

// ---------------------------------------------------------------------------
// Execution state
// ---------------------------------------------------------------------------

// execution is one Evaluate or Run call.
type execution struct {
	in    *Interpreter
	realm *heap.Realm
	state *realmState
	steps int
	depth int
}

// scope is the lexical environment of the code being run. A nil ctx is
// the top level, whose bindings are realm globals.
type scope struct {
	ctx    *heap.Context
	script *heap.Script
	base   int
}

func (sc *scope) with(ctx *heap.Context) *scope {
	return &scope{ctx: ctx, script: sc.script, base: sc.base}
}

func (ex *execution) step() error {
	ex.steps++
	if ex.in.MaxSteps > 0 && ex.steps > ex.in.MaxSteps {
		return throwf("RangeError", "step limit of %d exceeded", ex.in.MaxSteps)
	}
	return nil
}

// compiledFor returns the parsed body of fn, reparsing its source text on
// first use.
func (ex *execution) compiledFor(fn *heap.Function) (*compiled, error) {
	if c, ok := ex.state.compiled[fn]; ok {
		return c, nil
	}
	if fn.Script() == nil {
		return nil, throwf("TypeError", "%s has no source", heap.Describe(fn))
	}
	parsed, err := ParseFunctionSource(fn.SourceText(), fn.FunctionKind())
	if err != nil {
		return nil, &RuntimeError{Kind: "SyntaxError", Msg: "cannot compile " + heap.Describe(fn), Err: err}
	}
	c := &compiled{base: fn.Start(), script: fn.Script()}
	switch x := parsed.(type) {
	case *ClassLiteral:
		c.fn = x.Ctor
	case *FunctionLiteral:
		c.fn = x
	}
	ex.state.compiled[fn] = c
	return c, nil
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

func (ex *execution) lookup(sc *scope, name string) (heap.Value, error) {
	if v, ok := sc.ctx.Lookup(name); ok {
		return v, nil
	}
	if v, ok := ex.realm.Global(name); ok {
		return v, nil
	}
	if v, ok := ex.builtin(name); ok {
		return v, nil
	}
	return nil, throwf("ReferenceError", "%s is not defined", name)
}

func (ex *execution) assign(sc *scope, name string, v heap.Value) {
	if sc.ctx.Assign(name, v) {
		return
	}
	ex.realm.SetGlobal(name, v)
}

// declare initializes a binding of the current scope.
func (ex *execution) declare(sc *scope, name string, v heap.Value) {
	if sc.ctx != nil {
		if i := sc.ctx.IndexOf(name); i >= 0 {
			sc.ctx.SetAt(i, v)
			return
		}
	}
	ex.assign(sc, name, v)
}

// declaredNames lists the names a statement list declares directly, in
// order and without duplicates.
func declaredNames(body []Stmt, seen map[string]bool) []string {
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, s := range body {
		switch d := s.(type) {
		case *VarDecl:
			add(d.Name)
		case *FunctionDecl:
			add(d.Func.Name)
		case *ClassDecl:
			add(d.Class.Name)
		}
	}
	return names
}

// hoist creates the function declarations of body before it runs.
func (ex *execution) hoist(body []Stmt, sc *scope) error {
	for _, s := range body {
		d, ok := s.(*FunctionDecl)
		if !ok {
			continue
		}
		fn, err := ex.makeFunction(d.Func, sc)
		if err != nil {
			return err
		}
		ex.declare(sc, d.Func.Name, fn)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// execList runs statements until one returns.
func (ex *execution) execList(body []Stmt, sc *scope) (heap.Value, bool, error) {
	for _, s := range body {
		v, returned, err := ex.exec(s, sc)
		if err != nil || returned {
			return v, returned, err
		}
	}
	return heap.Undefined, false, nil
}

func (ex *execution) exec(s Stmt, sc *scope) (heap.Value, bool, error) {
	if err := ex.step(); err != nil {
		return nil, false, err
	}
	switch s := s.(type) {
	case *ExprStmt:
		_, err := ex.eval(s.Expr, sc)
		return nil, false, err

	case *VarDecl:
		var v heap.Value = heap.Undefined
		if s.Init != nil {
			var err error
			if v, err = ex.eval(s.Init, sc); err != nil {
				return nil, false, err
			}
		}
		ex.declare(sc, s.Name, v)
		return nil, false, nil

	case *FunctionDecl, *EmptyStmt:
		return nil, false, nil

	case *ClassDecl:
		cls, err := ex.makeClass(s.Class, sc)
		if err != nil {
			return nil, false, err
		}
		ex.declare(sc, s.Class.Name, cls)
		return nil, false, nil

	case *ReturnStmt:
		if s.Value == nil {
			return heap.Undefined, true, nil
		}
		v, err := ex.eval(s.Value, sc)
		return v, err == nil, err

	case *IfStmt:
		cond, err := ex.eval(s.Cond, sc)
		if err != nil {
			return nil, false, err
		}
		if truthy(cond) {
			return ex.exec(s.Then, sc)
		}
		if s.Else != nil {
			return ex.exec(s.Else, sc)
		}
		return nil, false, nil

	case *WhileStmt:
		for {
			cond, err := ex.eval(s.Cond, sc)
			if err != nil || !truthy(cond) {
				return nil, false, err
			}
			v, returned, err := ex.exec(s.Body, sc)
			if err != nil || returned {
				return v, returned, err
			}
		}

	case *BlockStmt:
		return ex.execBlock(s, sc)
	}
	return nil, false, throwf("SyntaxError", "unsupported statement %T", s)
}

// execBlock runs a block. Blocks that declare names get their own block
// context.
func (ex *execution) execBlock(b *BlockStmt, sc *scope) (heap.Value, bool, error) {
	if names := declaredNames(b.Body, map[string]bool{}); len(names) > 0 {
		ctx, err := ex.realm.NewContext(heap.BlockContext, sc.ctx, names)
		if err != nil {
			return nil, false, wrapHeap("cannot create block scope", err)
		}
		sc = sc.with(ctx)
	}
	if err := ex.hoist(b.Body, sc); err != nil {
		return nil, false, err
	}
	return ex.execList(b.Body, sc)
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// makeFunction creates a closure over the current scope.
func (ex *execution) makeFunction(lit *FunctionLiteral, sc *scope) (*heap.Function, error) {
	fn, err := ex.realm.NewFunction(heap.FunctionInfo{
		Kind:       lit.Kind,
		Name:       lit.Name,
		Script:     sc.script,
		Start:      sc.base + lit.SpanVal.Start.Offset,
		End:        sc.base + lit.SpanVal.End.Offset,
		ParamCount: len(lit.Params),
		Context:    sc.ctx,
	})
	if err != nil {
		return nil, wrapHeap("cannot create function", err)
	}
	ex.state.compiled[fn] = &compiled{fn: lit, base: sc.base, script: sc.script}
	return fn, nil
}

// makeClass creates a class constructor and installs its methods on the
// instance prototype as non-enumerable properties.
func (ex *execution) makeClass(cls *ClassLiteral, sc *scope) (*heap.Function, error) {
	info := heap.FunctionInfo{
		Kind:    heap.DefaultBaseConstructor,
		Name:    cls.Name,
		Script:  sc.script,
		Start:   sc.base + cls.SpanVal.Start.Offset,
		End:     sc.base + cls.SpanVal.End.Offset,
		Context: sc.ctx,
	}
	if cls.Ctor != nil {
		info.Kind = heap.BaseConstructor
		info.ParamCount = len(cls.Ctor.Params)
	}
	fn, err := ex.realm.NewFunction(info)
	if err != nil {
		return nil, wrapHeap("cannot create class", err)
	}
	ex.state.compiled[fn] = &compiled{fn: cls.Ctor, base: sc.base, script: sc.script}
	proto, err := fn.Prototype()
	if err != nil {
		return nil, wrapHeap("cannot create class prototype", err)
	}
	for _, m := range cls.Methods {
		method, err := ex.makeFunction(m, sc)
		if err != nil {
			return nil, err
		}
		if err := proto.DefineProperty(m.Name, method, heap.DontEnum); err != nil {
			return nil, wrapHeap("cannot define method "+m.Name, err)
		}
	}
	return fn, nil
}

// call invokes callee as a plain function.
func (ex *execution) call(callee, this heap.Value, args []heap.Value) (heap.Value, error) {
	fn, ok := callee.(*heap.Function)
	if !ok {
		return nil, throwf("TypeError", "%s is not a function", heap.Describe(callee))
	}
	if nat, ok := ex.state.natives[fn]; ok {
		return nat(ex, this, args)
	}
	if fn.FunctionKind().IsClassConstructor() {
		return nil, throwf("TypeError", "Class constructor %s cannot be invoked without 'new'", fn.Name())
	}
	return ex.invoke(fn, this, args)
}

// invoke runs a script function body in a fresh function context.
func (ex *execution) invoke(fn *heap.Function, this heap.Value, args []heap.Value) (heap.Value, error) {
	switch k := fn.FunctionKind(); k {
	case heap.GeneratorFunction, heap.AsyncFunction, heap.AsyncArrowFunction,
		heap.AsyncGeneratorFunction, heap.AsyncConciseMethod,
		heap.ConciseGeneratorMethod, heap.AsyncConciseGeneratorMethod:
		return nil, throwf("TypeError", "calling %s functions is not supported", k)
	}
	c, err := ex.compiledFor(fn)
	if err != nil {
		return nil, err
	}
	if c.fn == nil {
		return heap.Undefined, nil
	}
	if ex.in.MaxDepth > 0 && ex.depth >= ex.in.MaxDepth {
		return nil, throwf("RangeError", "Maximum call stack size exceeded")
	}
	if err := ex.step(); err != nil {
		return nil, err
	}
	ex.depth++
	defer func() { ex.depth-- }()

	lit := c.fn
	seen := map[string]bool{}
	names := declaredNames(paramStmts(lit.Params), seen)
	if lit.Kind != heap.ArrowFunction {
		names = append(names, "this")
		seen["this"] = true
	}
	names = append(names, declaredNames(lit.Body, seen)...)
	ctx, err := ex.realm.NewContext(heap.FunctionContext, fn.Context(), names)
	if err != nil {
		return nil, wrapHeap("cannot create function scope", err)
	}
	for i, p := range lit.Params {
		if i < len(args) {
			ctx.Assign(p, args[i])
		}
	}
	if lit.Kind != heap.ArrowFunction {
		ctx.Assign("this", this)
	}
	sc := &scope{ctx: ctx, script: c.script, base: c.base}

	if lit.ExprBody != nil {
		return ex.eval(lit.ExprBody, sc)
	}
	if err := ex.hoist(lit.Body, sc); err != nil {
		return nil, err
	}
	v, returned, err := ex.execList(lit.Body, sc)
	if err != nil {
		return nil, err
	}
	if !returned {
		return heap.Undefined, nil
	}
	return v, nil
}

// paramStmts presents parameters as declarations so declaredNames can
// dedupe them together with the body.
func paramStmts(params []string) []Stmt {
	out := make([]Stmt, len(params))
	for i, p := range params {
		out[i] = &VarDecl{Kind: TokenVar, Name: p}
	}
	return out
}

func constructible(fn *heap.Function) bool {
	k := fn.FunctionKind()
	return k == heap.NormalFunction || k.IsClassConstructor()
}

// construct implements new.
func (ex *execution) construct(callee heap.Value, args []heap.Value) (heap.Value, error) {
	fn, ok := callee.(*heap.Function)
	if !ok || !constructible(fn) {
		return nil, throwf("TypeError", "%s is not a constructor", heap.Describe(callee))
	}
	if _, isNative := ex.state.natives[fn]; isNative {
		return nil, throwf("TypeError", "%s is not a constructor", heap.Describe(callee))
	}
	pv, err := fn.PrototypeValue()
	if err != nil {
		return nil, wrapHeap("cannot read prototype", err)
	}
	var proto heap.Value = ex.realm.ObjectPrototype()
	if p, ok := pv.(*heap.Object); ok {
		proto = p
	}
	obj, err := ex.realm.NewObjectWithPrototype(proto)
	if err != nil {
		return nil, wrapHeap("cannot allocate instance", err)
	}
	res, err := ex.invoke(fn, obj, args)
	if err != nil {
		return nil, err
	}
	if isObjectLike(res) {
		return res, nil
	}
	return obj, nil
}
