package codegen

import (
	"errors"
	"fmt"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/symtab"
	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/types"
	"github.com/xplshn/cmmc/pkg/util"
)

// ErrCannotTranslate is wrapped by the errors for programs that check but use
// constructs the back end has no lowering for
var ErrCannotTranslate = errors.New("Cannot translate")

type translateError struct{ err error }

// Context lowers a checked tree to IR. Temporaries and labels are numbered
// per translation unit.
type Context struct {
	prog       *ir.Program
	table      *symtab.Table
	tempCount  int
	labelCount int
}

func NewContext(table *symtab.Table) *Context {
	return &Context{prog: &ir.Program{}, table: table}
}

// GenerateIR translates a tree that passed the type checker without errors
func GenerateIR(root *ast.Node, table *symtab.Table) (*ir.Program, error) {
	return NewContext(table).GenerateIR(root)
}

func (ctx *Context) GenerateIR(root *ast.Node) (prog *ir.Program, err error) {
	defer func() {
		switch r := recover().(type) {
		case nil:
		case *util.InternalError:
			prog, err = nil, r
		case translateError:
			prog, err = nil, r.err
		default:
			panic(r)
		}
	}()

	root.Expect(token.Program)
	for _, def := range root.Find(token.ExtDefList).Items() {
		ctx.codegenExtDef(def)
	}
	return ctx.prog, nil
}

func (ctx *Context) cannotTranslate(n *ast.Node, format string, args ...any) {
	panic(translateError{fmt.Errorf("%w: Line %d: %s", ErrCannotTranslate, n.Line, fmt.Sprintf(format, args...))})
}

func (ctx *Context) newTemp() ir.Operand {
	t := ir.NewVar(fmt.Sprintf("t%d", ctx.tempCount))
	ctx.tempCount++
	return t
}

func (ctx *Context) newLabel() ir.Operand {
	l := ir.NewLabel(fmt.Sprintf("label%d", ctx.labelCount))
	ctx.labelCount++
	return l
}

// bind makes *place denote op instead of the temporary reserved for it. When
// that temporary is the newest one its number is given back.
func (ctx *Context) bind(place *ir.Operand, op ir.Operand) {
	if place == nil {
		return
	}
	if place.Kind == ir.Variable && place.Name == fmt.Sprintf("t%d", ctx.tempCount-1) {
		ctx.tempCount--
	}
	*place = op
}

// ref returns the IR name of an ID leaf
func (ctx *Context) ref(id *ast.Node) string {
	if id.Ref != "" {
		return id.Ref
	}
	if ctx.table != nil {
		if e := ctx.table.Lookup(id.Value); e != nil && e.GenName != "" {
			return e.GenName
		}
	}
	util.Internal("line %d: %q has no IR name", id.Line, id.Value)
	return ""
}

func (ctx *Context) emit(in *ir.Instruction) { ctx.prog.Emit(in) }

// load materializes an address operand into a fresh temporary
func (ctx *Context) load(op ir.Operand) ir.Operand {
	if op.Kind != ir.Address {
		return op
	}
	t := ctx.newTemp()
	ctx.emit(ir.NewAssign(ir.OpReadAddr, t, op))
	return t
}

func (ctx *Context) unary(op ir.Op, x ir.Operand) { ctx.emit(ir.NewUnary(op, ctx.load(x))) }

func (ctx *Context) label(l ir.Operand) { ctx.emit(ir.NewUnary(ir.OpLabel, l)) }

func (ctx *Context) jump(l ir.Operand) { ctx.emit(ir.NewUnary(ir.OpGoto, l)) }

// assign stores src into dst, going through memory when either is an address
func (ctx *Context) assign(dst, src ir.Operand) {
	switch {
	case dst.Kind == ir.Address:
		ctx.emit(ir.NewAssign(ir.OpWriteAddr, dst, ctx.load(src)))
	case src.Kind == ir.Address:
		ctx.emit(ir.NewAssign(ir.OpReadAddr, dst, src))
	default:
		ctx.emit(ir.NewAssign(ir.OpAssign, dst, src))
	}
}

func (ctx *Context) binary(op ir.Op, result, x, y ir.Operand) {
	x, y = ctx.load(x), ctx.load(y)
	ctx.emit(ir.NewBinary(op, result, x, y))
}

func (ctx *Context) ifGoto(x ir.Operand, relop string, y, target ir.Operand) {
	x, y = ctx.load(x), ctx.load(y)
	ctx.emit(ir.NewIfGoto(x, relop, y, target))
}

// addressOf returns an operand holding the address of an aggregate
func (ctx *Context) addressOf(op ir.Operand) ir.Operand {
	if op.Kind == ir.Address {
		return op
	}
	t := ctx.newTemp()
	ctx.emit(ir.NewAssign(ir.OpGetAddr, t, op))
	return t
}

// copyWords copies size bytes between two aggregates one word at a time
func (ctx *Context) copyWords(dst, src ir.Operand, size int) {
	dst, src = ctx.addressOf(dst), ctx.addressOf(src)
	for off := 0; off < size; off += types.WordSize {
		from, to := src, dst
		if off > 0 {
			from, to = ctx.newTemp(), ctx.newTemp()
			ctx.emit(ir.NewBinary(ir.OpAddAddr, from, src, ir.NewConst(off)))
			ctx.emit(ir.NewBinary(ir.OpAddAddr, to, dst, ir.NewConst(off)))
		}
		v := ctx.newTemp()
		ctx.emit(ir.NewAssign(ir.OpReadAddr, v, ir.NewAddr(from.Name)))
		ctx.emit(ir.NewAssign(ir.OpWriteAddr, ir.NewAddr(to.Name), v))
	}
}

func (ctx *Context) codegenExtDef(def *ast.Node) {
	def.Expect(token.ExtDef)
	switch {
	case def.Is(1, token.ExtDecList):
		ctx.cannotTranslate(def, "global variables are not supported.")
	case def.Is(1, token.FunDec) && def.Is(2, token.CompSt):
		ctx.codegenFuncDecl(def.Child(1), def.Child(2))
	}
}

// declaredID walks a VarDec down to the identifier it declares
func declaredID(vd *ast.Node) *ast.Node {
	for vd.Expect(token.VarDec).Is(0, token.VarDec) {
		vd = vd.Child(0)
	}
	return vd.Child(0).Expect(token.ID)
}

func (ctx *Context) codegenFuncDecl(funDec, body *ast.Node) {
	id := funDec.Child(0).Expect(token.ID)
	ctx.emit(ir.NewUnary(ir.OpFunction, ir.NewFunc(ctx.ref(id))))
	for _, pd := range funDec.Find(token.VarList).Items() {
		pid := declaredID(pd.Expect(token.ParamDec).Child(1))
		ctx.emit(ir.NewUnary(ir.OpParam, ir.NewVar(ctx.ref(pid))))
	}
	ctx.codegenCompSt(body)

	// control may fall off the end of a body whose last statement is not a
	// return; keep it from running into the next function
	if last := ctx.prog.At(ctx.prog.Len() - 1); last.Op != ir.OpReturn {
		ctx.emit(ir.NewUnary(ir.OpReturn, ir.NewConst(0)))
	}
}

func (ctx *Context) codegenCompSt(n *ast.Node) {
	n.Expect(token.CompSt)
	for _, def := range n.Find(token.DefList).Items() {
		for _, dec := range def.Expect(token.Def).Child(1).Items() {
			ctx.codegenDec(dec)
		}
	}
	for _, s := range n.Find(token.StmtList).Items() {
		ctx.codegenStmt(s)
	}
}

func (ctx *Context) codegenDec(dec *ast.Node) {
	id := declaredID(dec.Expect(token.Dec).Child(0))
	typ := id.Typ
	if typ == nil {
		util.Internal("line %d: declaration of %q has no type", id.Line, id.Value)
	}
	v := ir.NewVar(ctx.ref(id))
	if typ.IsAggregate() {
		ctx.emit(ir.NewDec(v, types.Size(typ)))
	}

	init := dec.Child(2)
	switch {
	case init == nil:
	case typ.Kind == types.Struct:
		src := ctx.newTemp()
		ctx.codegenExp(init, &src)
		ctx.copyWords(v, src, types.Size(typ))
	case isDirect(init):
		ctx.codegenExp(init, &v)
	default:
		t := ctx.newTemp()
		ctx.codegenExp(init, &t)
		ctx.assign(v, t)
	}
}

func (ctx *Context) codegenStmt(n *ast.Node) {
	c := n.Expect(token.Stmt).Child(0)
	switch c.Type {
	case token.Exp:
		ctx.codegenExp(c, nil)
	case token.CompSt:
		ctx.codegenCompSt(c)
	case token.Return:
		ctx.codegenReturn(n)
	case token.If:
		ctx.codegenIf(n)
	case token.While:
		ctx.codegenWhile(n)
	default:
		util.Internal("line %d: unexpected %s in Stmt", c.Line, c.Type)
	}
}

func (ctx *Context) codegenReturn(n *ast.Node) {
	exp := n.Find(token.Exp)
	if exp == nil {
		ctx.unary(ir.OpReturn, ir.NewConst(0))
		return
	}
	if exp.Typ.IsAggregate() {
		ctx.cannotTranslate(exp, "returning a %s by value is not supported.", exp.Typ)
	}
	t := ctx.newTemp()
	ctx.codegenExp(exp, &t)
	ctx.unary(ir.OpReturn, t)
}

func (ctx *Context) codegenIf(n *ast.Node) {
	cond, then, els := n.Child(2), n.Child(4), n.Child(6)
	trueL, falseL := ctx.newLabel(), ctx.newLabel()
	ctx.codegenCond(cond, trueL, falseL)
	ctx.label(trueL)
	ctx.codegenStmt(then)
	if els == nil {
		ctx.label(falseL)
		return
	}
	endL := ctx.newLabel()
	ctx.jump(endL)
	ctx.label(falseL)
	ctx.codegenStmt(els)
	ctx.label(endL)
}

func (ctx *Context) codegenWhile(n *ast.Node) {
	startL, bodyL, endL := ctx.newLabel(), ctx.newLabel(), ctx.newLabel()
	ctx.label(startL)
	ctx.codegenCond(n.Child(2), bodyL, endL)
	ctx.label(bodyL)
	ctx.codegenStmt(n.Child(4))
	ctx.jump(startL)
	ctx.label(endL)
}
