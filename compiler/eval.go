package compiler

import (
	"math"

	"github.com/chazu/heapsnap/heap"
)

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (ex *execution) eval(e Expr, sc *scope) (heap.Value, error) {
	switch e := e.(type) {
	case *NumberLiteral:
		return heap.NumberValue(e.Value), nil
	case *BigIntLiteral:
		b, err := heap.NewBigInt(e.Digits)
		if err != nil {
			return nil, throwf("SyntaxError", "%v", err)
		}
		return b, nil
	case *StringLiteral:
		return heap.String(e.Value), nil
	case *BoolLiteral:
		return heap.Boolean(e.Value), nil
	case *NullLiteral:
		return heap.Null, nil
	case *UndefinedLiteral:
		return heap.Undefined, nil
	case *RegExpLiteral:
		re, err := ex.realm.NewRegExp(e.Pattern, e.Flags)
		if err != nil {
			return nil, wrapHeap("invalid regular expression /"+e.Pattern+"/"+e.Flags, err)
		}
		return re, nil

	case *Identifier:
		return ex.lookup(sc, e.Name)
	case *ThisExpr:
		if v, ok := sc.ctx.Lookup("this"); ok {
			return v, nil
		}
		return heap.Undefined, nil

	case *ArrayLiteral:
		return ex.evalArray(e, sc)
	case *ObjectLiteral:
		return ex.evalObject(e, sc)
	case *FunctionLiteral:
		return ex.makeFunction(e, sc)
	case *ClassLiteral:
		return ex.makeClass(e, sc)

	case *MemberExpr:
		obj, key, err := ex.evalMemberTarget(e, sc)
		if err != nil {
			return nil, err
		}
		return ex.getProperty(obj, key)

	case *CallExpr:
		return ex.evalCall(e, sc)

	case *NewExpr:
		callee, err := ex.eval(e.Callee, sc)
		if err != nil {
			return nil, err
		}
		args, err := ex.evalArgs(e.Args, sc)
		if err != nil {
			return nil, err
		}
		return ex.construct(callee, args)

	case *AssignExpr:
		return ex.evalAssign(e, sc)

	case *LogicalExpr:
		left, err := ex.eval(e.Left, sc)
		if err != nil {
			return nil, err
		}
		if truthy(left) == (e.Op == TokenOr) {
			return left, nil
		}
		return ex.eval(e.Right, sc)

	case *BinaryExpr:
		left, err := ex.eval(e.Left, sc)
		if err != nil {
			return nil, err
		}
		right, err := ex.eval(e.Right, sc)
		if err != nil {
			return nil, err
		}
		return binaryOp(e.Op, left, right)

	case *UnaryExpr:
		return ex.evalUnary(e, sc)
	}
	return nil, throwf("SyntaxError", "unsupported expression %T", e)
}

func (ex *execution) evalArgs(exprs []Expr, sc *scope) ([]heap.Value, error) {
	args := make([]heap.Value, len(exprs))
	for i, a := range exprs {
		v, err := ex.eval(a, sc)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// evalArray builds an array literal. Elisions become holes.
func (ex *execution) evalArray(e *ArrayLiteral, sc *scope) (heap.Value, error) {
	elems := make([]heap.Value, len(e.Elements))
	for i, el := range e.Elements {
		if el == nil {
			continue
		}
		v, err := ex.eval(el, sc)
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	arr, err := ex.realm.NewArrayFromElements(elems)
	if err != nil {
		return nil, wrapHeap("cannot allocate array", err)
	}
	return arr, nil
}

func (ex *execution) evalObject(e *ObjectLiteral, sc *scope) (heap.Value, error) {
	obj, err := ex.realm.NewObject()
	if err != nil {
		return nil, wrapHeap("cannot allocate object", err)
	}
	for _, p := range e.Properties {
		v, err := ex.eval(p.Value, sc)
		if err != nil {
			return nil, err
		}
		if err := obj.Set(p.Key, v); err != nil {
			return nil, wrapHeap("cannot set "+p.Key, err)
		}
	}
	return obj, nil
}

// evalMemberTarget evaluates the object and key of a member expression.
func (ex *execution) evalMemberTarget(e *MemberExpr, sc *scope) (heap.Value, heap.Value, error) {
	obj, err := ex.eval(e.Object, sc)
	if err != nil {
		return nil, nil, err
	}
	if e.Index == nil {
		return obj, heap.String(e.Name), nil
	}
	key, err := ex.eval(e.Index, sc)
	if err != nil {
		return nil, nil, err
	}
	return obj, key, nil
}

func (ex *execution) evalCall(e *CallExpr, sc *scope) (heap.Value, error) {
	var callee heap.Value
	var this heap.Value = heap.Undefined
	if m, ok := e.Callee.(*MemberExpr); ok {
		obj, key, err := ex.evalMemberTarget(m, sc)
		if err != nil {
			return nil, err
		}
		if callee, err = ex.getProperty(obj, key); err != nil {
			return nil, err
		}
		this = obj
	} else {
		var err error
		if callee, err = ex.eval(e.Callee, sc); err != nil {
			return nil, err
		}
	}
	args, err := ex.evalArgs(e.Args, sc)
	if err != nil {
		return nil, err
	}
	return ex.call(callee, this, args)
}

func (ex *execution) evalAssign(e *AssignExpr, sc *scope) (heap.Value, error) {
	compute := func(old heap.Value) (heap.Value, error) {
		v, err := ex.eval(e.Value, sc)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case TokenPlusAssign:
			return binaryOp(TokenPlus, old, v)
		case TokenMinusAssign:
			return binaryOp(TokenMinus, old, v)
		}
		return v, nil
	}

	switch t := e.Target.(type) {
	case *Identifier:
		var old heap.Value
		if e.Op != TokenAssign {
			var err error
			if old, err = ex.lookup(sc, t.Name); err != nil {
				return nil, err
			}
		}
		v, err := compute(old)
		if err != nil {
			return nil, err
		}
		ex.assign(sc, t.Name, v)
		return v, nil

	case *MemberExpr:
		obj, key, err := ex.evalMemberTarget(t, sc)
		if err != nil {
			return nil, err
		}
		var old heap.Value
		if e.Op != TokenAssign {
			if old, err = ex.getProperty(obj, key); err != nil {
				return nil, err
			}
		}
		v, err := compute(old)
		if err != nil {
			return nil, err
		}
		return v, ex.setProperty(obj, key, v)
	}
	return nil, throwf("SyntaxError", "invalid assignment target")
}

func (ex *execution) evalUnary(e *UnaryExpr, sc *scope) (heap.Value, error) {
	switch e.Op {
	case TokenTypeof:
		if id, ok := e.Operand.(*Identifier); ok {
			v, err := ex.lookup(sc, id.Name)
			if err != nil {
				return heap.String("undefined"), nil
			}
			return heap.String(typeOf(v)), nil
		}
	case TokenDelete:
		m, ok := e.Operand.(*MemberExpr)
		if !ok {
			return heap.False, nil
		}
		obj, key, err := ex.evalMemberTarget(m, sc)
		if err != nil {
			return nil, err
		}
		return ex.deleteProperty(obj, key)
	}

	v, err := ex.eval(e.Operand, sc)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case TokenBang:
		return heap.Boolean(!truthy(v)), nil
	case TokenMinus:
		if _, ok := v.(*heap.BigInt); ok {
			return nil, throwf("TypeError", "BigInt arithmetic is not supported")
		}
		return heap.NumberValue(-toNumber(v)), nil
	case TokenPlus:
		return heap.NumberValue(toNumber(v)), nil
	case TokenTypeof:
		return heap.String(typeOf(v)), nil
	}
	return nil, throwf("SyntaxError", "unsupported unary operator %s", e.Op)
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func binaryOp(op TokenType, left, right heap.Value) (heap.Value, error) {
	switch op {
	case TokenStrictEq:
		return heap.Boolean(heap.StrictEquals(left, right)), nil
	case TokenStrictNotEq:
		return heap.Boolean(!heap.StrictEquals(left, right)), nil
	case TokenEq:
		return heap.Boolean(looseEquals(left, right)), nil
	case TokenNotEq:
		return heap.Boolean(!looseEquals(left, right)), nil
	}

	_, lb := left.(*heap.BigInt)
	_, rb := right.(*heap.BigInt)
	if lb || rb {
		return nil, throwf("TypeError", "BigInt arithmetic is not supported")
	}

	switch op {
	case TokenPlus:
		lp, rp := toPrimitive(left), toPrimitive(right)
		_, ls := lp.(heap.String)
		_, rs := rp.(heap.String)
		if ls || rs {
			return heap.String(toString(lp) + toString(rp)), nil
		}
		return heap.NumberValue(toNumber(lp) + toNumber(rp)), nil
	case TokenMinus:
		return heap.NumberValue(toNumber(left) - toNumber(right)), nil
	case TokenStar:
		return heap.NumberValue(toNumber(left) * toNumber(right)), nil
	case TokenSlash:
		return heap.NumberValue(toNumber(left) / toNumber(right)), nil
	case TokenPercent:
		return heap.NumberValue(math.Mod(toNumber(left), toNumber(right))), nil
	case TokenLess, TokenGreater, TokenLessEq, TokenGreaterEq:
		return heap.Boolean(compare(op, toPrimitive(left), toPrimitive(right))), nil
	}
	return nil, throwf("SyntaxError", "unsupported binary operator %s", op)
}

func compare(op TokenType, left, right heap.Value) bool {
	ls, lok := left.(heap.String)
	rs, rok := right.(heap.String)
	if lok && rok {
		switch op {
		case TokenLess:
			return ls < rs
		case TokenGreater:
			return ls > rs
		case TokenLessEq:
			return ls <= rs
		}
		return ls >= rs
	}
	l, r := toNumber(left), toNumber(right)
	switch op {
	case TokenLess:
		return l < r
	case TokenGreater:
		return l > r
	case TokenLessEq:
		return l <= r
	}
	return l >= r
}

func looseEquals(a, b heap.Value) bool {
	nullish := func(v heap.Value) bool {
		k := v.Kind()
		return k == heap.KindUndefined || k == heap.KindNull
	}
	if nullish(a) || nullish(b) {
		return nullish(a) && nullish(b)
	}
	ao, bo := isObjectLike(a), isObjectLike(b)
	switch {
	case ao && bo:
		return a == b
	case ao:
		a = toPrimitive(a)
	case bo:
		b = toPrimitive(b)
	}
	as, aok := a.(heap.String)
	bs, bok := b.(heap.String)
	if aok && bok {
		return as == bs
	}
	if _, ok := a.(*heap.BigInt); ok {
		return heap.StrictEquals(a, b)
	}
	if _, ok := b.(*heap.BigInt); ok {
		return false
	}
	return toNumber(a) == toNumber(b)
}
