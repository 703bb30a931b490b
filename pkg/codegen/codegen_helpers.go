package codegen

import (
	"strings"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/types"
	"github.com/xplshn/cmmc/pkg/util"
)

var arithOps = map[token.Type]ir.Op{
	token.Plus: ir.OpAdd, token.Minus: ir.OpSub, token.Star: ir.OpMul, token.Div: ir.OpDiv,
}

// isBoolean reports whether an Exp is a comparison, a logical operator or a
// negation, which are lowered through jumps
func isBoolean(n *ast.Node) bool {
	if n.Is(0, token.Not) {
		return true
	}
	return n.Is(1, token.Relop) || n.Is(1, token.And) || n.Is(1, token.Or)
}

// isDirect reports whether an expression can be computed straight into a
// named variable: it writes its destination once, after reading its operands
func isDirect(n *ast.Node) bool {
	for n.Is(0, token.LP) {
		n = n.Child(1)
	}
	switch {
	case n.Is(0, token.Exp):
		_, ok := arithOps[n.Child(1).Type]
		return ok
	case n.Is(0, token.Minus):
		return true
	case n.Is(0, token.ID) && n.Is(1, token.LP):
		return n.Child(0).Value != "write"
	}
	return false
}

// plainVar returns the identifier of an Exp that names a scalar variable
func plainVar(n *ast.Node) *ast.Node {
	if n.Len() != 1 || !n.Is(0, token.ID) || n.Typ == nil || n.Typ.Kind != types.Basic {
		return nil
	}
	return n.Child(0)
}

// codegenExp translates n for its value into *place. A nil place means the
// value is not needed and only side effects are kept.
func (ctx *Context) codegenExp(n *ast.Node, place *ir.Operand) {
	n.Expect(token.Exp)
	if n.Typ.IsBasic(types.Float) {
		ctx.cannotTranslate(n, "floating-point values are not supported.")
	}

	c := n.Child(0)
	switch {
	case c.Type == token.LP:
		ctx.codegenExp(n.Child(1), place)
	case isBoolean(n):
		ctx.codegenBoolean(n, place)
	case c.Type == token.Exp:
		ctx.codegenCompound(n, place)
	case c.Type == token.Minus:
		t := ctx.newTemp()
		ctx.codegenExp(n.Child(1), &t)
		if place != nil {
			ctx.binary(ir.OpSub, *place, ir.NewConst(0), t)
		}
	case c.Type == token.ID && n.Len() > 1:
		ctx.codegenFuncCall(n, place)
	case c.Type == token.ID:
		ctx.codegenIdent(n, place)
	case c.Type == token.Int:
		ctx.bind(place, ir.NewConst(c.IntValue()))
	case c.Type == token.Char:
		ctx.bind(place, ir.NewConst(c.CharValue()))
	case c.Type == token.Float:
		ctx.cannotTranslate(n, "floating-point values are not supported.")
	default:
		util.Internal("line %d: unexpected %s in Exp", c.Line, c.Type)
	}
}

func (ctx *Context) codegenIdent(n *ast.Node, place *ir.Operand) {
	if place == nil {
		return
	}
	name, typ := ctx.ref(n.Child(0)), n.Typ
	op := ir.NewVar(name)
	// aggregate parameters arrive as the address of the caller's storage
	if strings.HasPrefix(name, "v_") && typ.IsAggregate() {
		op = ir.NewAddr(name)
	}
	if typ != nil && typ.Kind == types.Array {
		op.ElemType = typ.Elem
	}
	ctx.bind(place, op)
}

// codegenBoolean assigns 0 to the destination, then patches it to 1 on the
// path where the condition holds
func (ctx *Context) codegenBoolean(n *ast.Node, place *ir.Operand) {
	trueL, falseL := ctx.newLabel(), ctx.newLabel()
	if place == nil {
		ctx.codegenCond(n, trueL, falseL)
		ctx.label(trueL)
		ctx.label(falseL)
		return
	}
	ctx.assign(*place, ir.NewConst(0))
	ctx.codegenCond(n, trueL, falseL)
	ctx.label(trueL)
	ctx.assign(*place, ir.NewConst(1))
	ctx.label(falseL)
}

// codegenCompound handles the productions that start with an Exp
func (ctx *Context) codegenCompound(n *ast.Node, place *ir.Operand) {
	op := n.Child(1)
	switch op.Type {
	case token.AssignOp:
		ctx.codegenAssign(n, place)
	case token.LB:
		ctx.codegenSubscript(n, place)
	case token.Dot:
		ctx.codegenMemberAccess(n, place)
	default:
		irOp, ok := arithOps[op.Type]
		if !ok {
			util.Internal("line %d: unexpected operator %s", op.Line, op.Type)
		}
		if place == nil {
			ctx.codegenExp(n.Child(0), nil)
			ctx.codegenExp(n.Child(2), nil)
			return
		}
		t1 := ctx.newTemp()
		ctx.codegenExp(n.Child(0), &t1)
		t2 := ctx.newTemp()
		ctx.codegenExp(n.Child(2), &t2)
		ctx.binary(irOp, *place, t1, t2)
	}
}

func (ctx *Context) codegenAssign(n *ast.Node, place *ir.Operand) {
	lhs, rhs := n.Child(0), n.Child(2)
	if lhs.Typ != nil && lhs.Typ.Kind == types.Struct {
		src := ctx.newTemp()
		ctx.codegenExp(rhs, &src)
		dst := ctx.newTemp()
		ctx.codegenExp(lhs, &dst)
		ctx.copyWords(dst, src, types.Size(lhs.Typ))
		ctx.bind(place, dst)
		return
	}
	if id := plainVar(lhs); id != nil && isDirect(rhs) {
		dst := ir.NewVar(ctx.ref(id))
		ctx.codegenExp(rhs, &dst)
		ctx.bind(place, dst)
		return
	}
	src := ctx.newTemp()
	ctx.codegenExp(rhs, &src)
	dst := ctx.newTemp()
	ctx.codegenExp(lhs, &dst)
	ctx.assign(dst, src)
	ctx.bind(place, dst)
}

// codegenSubscript computes base + index * elementSize into *place, which
// becomes an address
func (ctx *Context) codegenSubscript(n *ast.Node, place *ir.Operand) {
	if place == nil {
		ctx.codegenExp(n.Child(0), nil)
		ctx.codegenExp(n.Child(2), nil)
		return
	}
	idx := ctx.newTemp()
	ctx.codegenExp(n.Child(2), &idx)
	base := ctx.newTemp()
	ctx.codegenExp(n.Child(0), &base)
	elem := base.ElemType
	if elem == nil {
		util.Internal("line %d: indexing %s without an element type", n.Line, base)
	}

	width := types.Size(elem)
	var offset ir.Operand
	if idx.Kind == ir.Constant {
		offset = ir.NewConst(idx.Value * width)
	} else {
		offset = ctx.newTemp()
		ctx.binary(ir.OpMul, offset, idx, ir.NewConst(width))
	}
	target := ctx.addressOf(base)
	ctx.emit(ir.NewBinary(ir.OpAddAddr, *place, target, offset))
	place.Kind, place.ElemType = ir.Address, nil
	if elem.Kind == types.Array {
		place.ElemType = elem.Elem
	}
}

// codegenMemberAccess adds the byte offset of the field to the address of
// the struct
func (ctx *Context) codegenMemberAccess(n *ast.Node, place *ir.Operand) {
	if place == nil {
		ctx.codegenExp(n.Child(0), nil)
		return
	}
	st := n.Child(0).Typ
	if st == nil || st.Kind != types.Struct {
		util.Internal("line %d: member access on %s", n.Line, st)
	}
	name := n.Child(2).Expect(token.ID).Value
	field, offset := st.Fields.Lookup(name)
	if field == nil {
		util.Internal("line %d: %s has no field %q", n.Line, st, name)
	}

	base := ctx.newTemp()
	ctx.codegenExp(n.Child(0), &base)
	target := ctx.addressOf(base)
	ctx.emit(ir.NewBinary(ir.OpAddAddr, *place, target, ir.NewConst(offset)))
	place.Kind, place.ElemType = ir.Address, nil
	if field.Type.Kind == types.Array {
		place.ElemType = field.Type.Elem
	}
}

// codegenFuncCall evaluates every argument before pushing any of them, so
// that the ARG instructions of one call stay contiguous and end right before
// the CALL, first argument last
func (ctx *Context) codegenFuncCall(n *ast.Node, place *ir.Operand) {
	id := n.Child(0)
	name := ctx.ref(id)
	args := n.Find(token.Args).Items()
	if n.Typ.IsAggregate() {
		ctx.cannotTranslate(n, "calling %q returns a %s by value.", id.Value, n.Typ)
	}

	switch name {
	case "read":
		ctx.emit(ir.NewUnary(ir.OpRead, ctx.destination(place)))
		return
	case "write":
		t := ctx.newTemp()
		ctx.codegenExp(args[0], &t)
		ctx.unary(ir.OpWrite, t)
		ctx.bind(place, ir.NewConst(0))
		return
	}

	ops := make([]ir.Operand, len(args))
	for i, a := range args {
		t := ctx.newTemp()
		ctx.codegenExp(a, &t)
		if a.Typ.IsAggregate() {
			ops[i] = ir.NewAddr(ctx.addressOf(t).Name)
		} else {
			ops[i] = ctx.load(t)
		}
	}
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].Kind == ir.Address {
			ctx.emit(ir.NewUnary(ir.OpArgAddr, ops[i]))
		} else {
			ctx.emit(ir.NewUnary(ir.OpArg, ops[i]))
		}
	}

	ctx.emit(ir.NewAssign(ir.OpCall, ctx.destination(place), ir.NewFunc(name)))
}

// destination returns where a call result goes: *place, or a scratch
// temporary when the result is unused
func (ctx *Context) destination(place *ir.Operand) ir.Operand {
	if place == nil {
		return ctx.newTemp()
	}
	return *place
}

// codegenCond emits jumps to trueL when n holds and to falseL otherwise
func (ctx *Context) codegenCond(n *ast.Node, trueL, falseL ir.Operand) {
	n.Expect(token.Exp)
	switch {
	case n.Is(0, token.Not):
		ctx.codegenCond(n.Child(1), falseL, trueL)
	case n.Is(0, token.LP):
		ctx.codegenCond(n.Child(1), trueL, falseL)
	case n.Is(1, token.Relop):
		t1 := ctx.newTemp()
		ctx.codegenExp(n.Child(0), &t1)
		t2 := ctx.newTemp()
		ctx.codegenExp(n.Child(2), &t2)
		ctx.ifGoto(t1, n.Child(1).Value, t2, trueL)
		ctx.jump(falseL)
	case n.Is(1, token.And):
		next := ctx.newLabel()
		ctx.codegenCond(n.Child(0), next, falseL)
		ctx.label(next)
		ctx.codegenCond(n.Child(2), trueL, falseL)
	case n.Is(1, token.Or):
		next := ctx.newLabel()
		ctx.codegenCond(n.Child(0), trueL, next)
		ctx.label(next)
		ctx.codegenCond(n.Child(2), trueL, falseL)
	default:
		t := ctx.newTemp()
		ctx.codegenExp(n, &t)
		ctx.ifGoto(t, "!=", ir.NewConst(0), trueL)
		ctx.jump(falseL)
	}
}
