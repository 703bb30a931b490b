package typeChecker

import (
	"fmt"
	"strings"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/symtab"
	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/types"
	"github.com/xplshn/cmmc/pkg/util"
)

// Semantic error kinds, reported as "Error type <n>"
const (
	ErrUndefinedVar      = 1
	ErrUndefinedFunc     = 2
	ErrRedefinedVar      = 3
	ErrRedefinedFunc     = 4
	ErrAssignMismatch    = 5
	ErrAssignRvalue      = 6
	ErrOperandMismatch   = 7
	ErrReturnMismatch    = 8
	ErrArgsMismatch      = 9
	ErrNotArray          = 10
	ErrNotFunc           = 11
	ErrNonIntIndex       = 12
	ErrNotStruct         = 13
	ErrUndefinedField    = 14
	ErrRedefinedField    = 15
	ErrRedefinedStruct   = 16
	ErrUndefinedStruct   = 17
	ErrDeclaredOnly      = 18
	ErrSignatureMismatch = 19
	ErrNestedFunc        = 20
)

type TypeChecker struct {
	cfg   *config.Config
	table *symtab.Table
	diags *util.Diagnostics
	equiv types.Equivalence

	retType  *types.Type // return type of the function being checked
	retKnown bool
	used     map[string]bool // IR names already given out in the current function
}

func NewTypeChecker(cfg *config.Config, table *symtab.Table, diags *util.Diagnostics) *TypeChecker {
	equiv := types.Structural
	if cfg.IsFeatureEnabled(config.FeatNominalStructs) {
		equiv = types.Nominal
	}
	return &TypeChecker{cfg: cfg, table: table, diags: diags, equiv: equiv, used: make(map[string]bool)}
}

// Check walks the whole program, filling the table and annotating every Exp
// node with its type. User errors go to the diagnostics; the returned error
// only reports a malformed tree.
func (tc *TypeChecker) Check(root *ast.Node) (err error) {
	defer util.Recover(&err)
	root.Expect(token.Program)
	for _, def := range root.Find(token.ExtDefList).Items() {
		tc.checkExtDef(def)
	}
	for _, e := range tc.table.DeclaredOnly() {
		tc.diags.Semantic(ErrDeclaredOnly, e.Line, "Function \"%s\" is declared but never defined.", e.Name)
	}
	return nil
}

func (tc *TypeChecker) errorf(code, line int, format string, args ...any) {
	tc.diags.Semantic(code, line, format, args...)
}

func (tc *TypeChecker) checkExtDef(n *ast.Node) {
	n.Expect(token.ExtDef)
	typ := tc.checkSpecifier(n.Child(0))
	switch second := n.Child(1); second.Type {
	case token.Semi:
	case token.ExtDecList:
		if typ == nil {
			return
		}
		for _, vd := range second.Items() {
			tc.declareVar(vd, typ, false)
		}
	case token.FunDec:
		tc.checkFunc(typ, second, n.Child(2))
	default:
		util.Internal("line %d: unexpected %s in ExtDef", n.Line, second.Type)
	}
}

func (tc *TypeChecker) checkSpecifier(n *ast.Node) *types.Type {
	c := n.Expect(token.Specifier).Child(0)
	if c == nil {
		util.Internal("line %d: empty Specifier", n.Line)
	}
	switch c.Type {
	case token.TypeKw:
		switch c.Value {
		case "int":
			return types.NewBasic(types.Int)
		case "float":
			return types.NewBasic(types.Float)
		case "char":
			return types.NewBasic(types.Char)
		}
		util.Internal("line %d: unknown basic type %q", c.Line, c.Value)
	case token.StructSpecifier:
		return tc.checkStructSpecifier(c)
	}
	util.Internal("line %d: unexpected %s in Specifier", c.Line, c.Type)
	return nil
}

func (tc *TypeChecker) checkStructSpecifier(n *ast.Node) *types.Type {
	if tag := n.Find(token.Tag); tag != nil {
		id := tag.Child(0).Expect(token.ID)
		e := tc.table.Lookup(id.Value)
		if e == nil || !e.IsStructDef {
			tc.errorf(ErrUndefinedStruct, id.Line, "Undefined structure \"%s\".", id.Value)
			return nil
		}
		return e.Type.Copy()
	}

	name := ""
	if opt := n.Find(token.OptTag); opt != nil {
		name = opt.Child(0).Expect(token.ID).Value
	}
	fields := tc.checkStructBody(n.Find(token.DefList))
	entry := &symtab.Entry{Name: name, Type: types.NewStruct(name, fields), IsStructDef: true, Line: n.Line}
	if name == "" {
		entry.Name = tc.table.NextAnonStruct()
	}
	if tc.table.Conflicts(entry) {
		tc.errorf(ErrRedefinedStruct, n.Line, "Duplicated name \"%s\".", entry.Name)
		return nil
	}
	tc.table.Insert(entry)
	return entry.Type.Copy()
}

func (tc *TypeChecker) checkStructBody(defList *ast.Node) types.FieldList {
	tc.table.OpenScope()
	defer tc.table.CloseScope()

	var fields types.FieldList
	for _, def := range defList.Items() {
		typ := tc.checkSpecifier(def.Expect(token.Def).Child(0))
		if typ == nil {
			continue
		}
		for _, dec := range def.Child(1).Items() {
			name, ftyp, id := tc.checkVarDec(dec.Expect(token.Dec).Child(0), typ)
			if dec.Len() > 1 {
				tc.errorf(ErrRedefinedField, id.Line, "Field \"%s\" cannot be initialized.", name)
				tc.checkExp(dec.Child(2))
			}
			if hasField(fields, name) {
				tc.errorf(ErrRedefinedField, id.Line, "Redefined field \"%s\".", name)
				continue
			}
			fields = append(fields, &types.Field{Name: name, Type: ftyp})
		}
	}
	return fields
}

func hasField(fields types.FieldList, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// checkVarDec builds the declared type. int a[2][3] is an array of 2 arrays
// of 3 ints.
func (tc *TypeChecker) checkVarDec(n *ast.Node, base *types.Type) (string, *types.Type, *ast.Node) {
	var sizes []int
	cur := n.Expect(token.VarDec)
	for cur.Is(0, token.VarDec) {
		if size := cur.Child(2); size != nil && size.Type == token.Int {
			sizes = append(sizes, size.IntValue())
		} else {
			tc.errorf(ErrNonIntIndex, cur.Line, "Array size is not an integer constant.")
		}
		cur = cur.Child(0)
	}
	id := cur.Child(0).Expect(token.ID)
	typ := base.Copy()
	for _, size := range sizes {
		typ = types.NewArray(size, typ)
	}
	return id.Value, typ, id
}

// declareVar inserts a variable or parameter into the current scope and
// assigns its IR name
func (tc *TypeChecker) declareVar(vd *ast.Node, base *types.Type, isParam bool) *symtab.Entry {
	name, typ, id := tc.checkVarDec(vd, base)
	return tc.declare(name, typ, id, isParam)
}

func (tc *TypeChecker) declare(name string, typ *types.Type, id *ast.Node, isParam bool) *symtab.Entry {
	e := &symtab.Entry{Name: name, Type: typ, IsParam: isParam, Line: id.Line}
	if tc.table.Conflicts(e) {
		tc.errorf(ErrRedefinedVar, id.Line, "Redefined variable \"%s\".", name)
		return nil
	}
	shadowed := tc.table.Shadows(name)
	if shadowed != nil {
		tc.diags.Warn(tc.cfg, config.WarnShadow, id.Line, "Declaration of \"%s\" shadows the one at line %d.", name, shadowed.Line)
	}
	e.GenName = tc.varName(name, isParam)
	tc.table.Insert(e)
	id.Ref, id.Typ = e.GenName, typ
	return e
}

// varName gives parameters a v_ prefix and locals a t_ prefix. A local whose
// name was already given out in the same function, by a hidden outer local
// or by a sibling block, is qualified with its depth so that each keeps its
// own storage.
func (tc *TypeChecker) varName(name string, isParam bool) string {
	if isParam {
		return "v_" + name
	}
	gen := "t_" + name
	if tc.used[gen] {
		depth := tc.table.Depth()
		gen = fmt.Sprintf("t%d_%s", depth, name)
		for k := 1; tc.used[gen]; k++ {
			gen = fmt.Sprintf("t%d_%d_%s", depth, k, name)
		}
	}
	tc.used[gen] = true
	return gen
}

func funcName(name string) string {
	if name == "main" {
		return name
	}
	return "f_" + name
}

func (tc *TypeChecker) checkFunc(ret *types.Type, funDec, body *ast.Node) {
	id := funDec.Expect(token.FunDec).Child(0).Expect(token.ID)
	if tc.table.Depth() != 0 {
		tc.errorf(ErrNestedFunc, funDec.Line, "Nested definition of function \"%s\".", id.Value)
		return
	}
	state := types.Declared
	if body != nil && body.Type == token.CompSt {
		state = types.Defined
	}

	var ids []*ast.Node
	var fields types.FieldList
	for _, pd := range funDec.Find(token.VarList).Items() {
		base := tc.checkSpecifier(pd.Expect(token.ParamDec).Child(0))
		name, typ, pid := tc.checkVarDec(pd.Child(1), base)
		ids = append(ids, pid)
		fields = append(fields, &types.Field{Name: name, Type: typ, IsParam: true})
	}
	tc.declareFunc(id, types.NewFunc(state, fields, ret.Copy(), id.Line))
	tc.used = make(map[string]bool)

	tc.table.OpenScope()
	defer tc.table.CloseScope()
	for i, f := range fields {
		tc.declare(f.Name, f.Type.Copy(), ids[i], true)
	}
	if state == types.Declared {
		return
	}

	tc.retType, tc.retKnown = ret, ret != nil
	returns := tc.checkCompSt(body, false)
	if !returns && ret != nil && !ret.IsVoid() {
		tc.diags.Warn(tc.cfg, config.WarnMissingReturn, id.Line, "Control may reach the end of non-void function \"%s\".", id.Value)
	}
	tc.retType, tc.retKnown = nil, false
}

// declareFunc merges a declaration or definition into the table.
// Declarations and definitions must agree on the signature; the state of a
// mismatching entry still follows the latest one.
func (tc *TypeChecker) declareFunc(id *ast.Node, ftype *types.Type) {
	name := id.Value
	id.Ref = funcName(name)
	prev := tc.table.Resolve(name)
	switch {
	case prev == nil:
		e := &symtab.Entry{Name: name, Type: ftype, GenName: id.Ref, Line: id.Line}
		if tc.table.Conflicts(e) {
			tc.errorf(ErrRedefinedFunc, id.Line, "Redefined function \"%s\".", name)
			return
		}
		tc.table.Insert(e)
	case prev.Type == nil || prev.Type.Kind != types.Func:
		tc.errorf(ErrRedefinedFunc, id.Line, "Redefined function \"%s\".", name)
	case prev.Type.State == types.Defined && ftype.State == types.Defined:
		tc.errorf(ErrRedefinedFunc, id.Line, "Redefined function \"%s\".", name)
	case !tc.equiv.SignatureEqual(prev.Type, ftype):
		tc.errorf(ErrSignatureMismatch, id.Line, "Inconsistent declaration of function \"%s\".", name)
		prev.Type.State = ftype.State
	case ftype.State == types.Defined:
		prev.Type.State = types.Defined
	}
}

// checkCompSt checks a block and reports whether one of its statements returns
func (tc *TypeChecker) checkCompSt(n *ast.Node, openScope bool) bool {
	n.Expect(token.CompSt)
	if openScope {
		tc.table.OpenScope()
		defer tc.table.CloseScope()
	}
	for _, def := range n.Find(token.DefList).Items() {
		typ := tc.checkSpecifier(def.Expect(token.Def).Child(0))
		if typ == nil {
			continue
		}
		for _, dec := range def.Child(1).Items() {
			tc.checkDec(dec, typ)
		}
	}
	returns := false
	for _, s := range n.Find(token.StmtList).Items() {
		if s.Type == token.ExtDef {
			tc.checkExtDef(s)
			continue
		}
		if tc.checkStmt(s) {
			returns = true
		}
	}
	return returns
}

func (tc *TypeChecker) checkDec(dec *ast.Node, typ *types.Type) {
	dec.Expect(token.Dec)
	var init *types.Type
	hasInit := dec.Len() > 1
	if hasInit {
		init = tc.checkExp(dec.Child(2))
	}
	e := tc.declareVar(dec.Child(0), typ, false)
	if e == nil || !hasInit || init == nil {
		return
	}
	switch {
	case e.Type.Kind != types.Basic && e.Type.Kind != types.Struct:
		tc.errorf(ErrAssignRvalue, dec.Line, "Cannot initialize \"%s\" of type %s.", e.Name, e.Type)
	case !tc.equiv.Equal(init, e.Type):
		tc.errorf(ErrAssignMismatch, dec.Line, "Type mismatched for assignment.")
	}
}

func (tc *TypeChecker) checkStmt(s *ast.Node) bool {
	c := s.Expect(token.Stmt).Child(0)
	switch c.Type {
	case token.Exp:
		tc.checkExp(c)
		if !hasEffect(c) {
			tc.diags.Warn(tc.cfg, config.WarnUnusedValue, c.Line, "Value of \"%s\" is not used.", getNodeName(c))
		}
		return false
	case token.CompSt:
		return tc.checkCompSt(c, true)
	case token.Return:
		if !s.Is(1, token.Exp) {
			return false
		}
		t := tc.checkExp(s.Child(1))
		if t != nil && tc.retKnown && !tc.equiv.Equal(t, tc.retType) {
			tc.errorf(ErrReturnMismatch, c.Line, "Type mismatched for return.")
		}
		return true
	case token.If:
		tc.checkExp(s.Child(2))
		returns := tc.checkStmt(s.Child(4))
		if s.Is(5, token.Else) && tc.checkStmt(s.Child(6)) {
			returns = true
		}
		return returns
	case token.While:
		tc.checkExp(s.Child(2))
		return tc.checkStmt(s.Child(4))
	}
	util.Internal("line %d: unexpected %s in Stmt", c.Line, c.Type)
	return false
}

func (tc *TypeChecker) checkExp(n *ast.Node) *types.Type {
	t, _ := tc.exp(n)
	return t
}

// hasEffect reports whether an expression assigns or calls somewhere
func hasEffect(n *ast.Node) bool {
	if n.Is(1, token.AssignOp) || (n.Is(0, token.ID) && n.Is(1, token.LP)) {
		return true
	}
	for _, c := range n.Children {
		if c.Type == token.Exp && hasEffect(c) {
			return true
		}
		if c.Type == token.Args && hasEffect(c) {
			return true
		}
	}
	return false
}

// exp returns the type of an expression and whether it denotes an assignable
// location. A nil type means an error was already reported below.
func (tc *TypeChecker) exp(n *ast.Node) (typ *types.Type, lvalue bool) {
	n.Expect(token.Exp)
	defer func() { n.Typ = typ }()

	c := n.Child(0)
	if c == nil {
		util.Internal("line %d: empty Exp", n.Line)
	}
	switch c.Type {
	case token.Exp:
		return tc.compoundExp(n)
	case token.LP:
		t, _ := tc.exp(n.Child(1))
		return t, false
	case token.Minus, token.Not:
		t, _ := tc.exp(n.Child(1))
		switch {
		case t == nil:
			return nil, false
		case t.Kind != types.Basic || t.IsVoid():
			tc.errorf(ErrOperandMismatch, c.Line, "Type mismatched for operand of \"%s\".", opText(c))
			return nil, false
		case c.Type == token.Minus:
			return t, false
		}
		return types.NewBasic(types.Int), false
	case token.ID:
		if n.Len() == 1 {
			return tc.identifier(c)
		}
		return tc.call(n), false
	case token.Int:
		return types.NewBasic(types.Int), false
	case token.Float:
		return types.NewBasic(types.Float), false
	case token.Char:
		return types.NewBasic(types.Char), false
	}
	util.Internal("line %d: unexpected %s in Exp", c.Line, c.Type)
	return nil, false
}

func (tc *TypeChecker) identifier(id *ast.Node) (*types.Type, bool) {
	e := tc.table.Resolve(id.Value)
	if e == nil || e.IsStructDef {
		tc.errorf(ErrUndefinedVar, id.Line, "Undefined variable \"%s\".", id.Value)
		return nil, false
	}
	id.Ref = e.GenName
	return e.Type.Copy(), true
}

func (tc *TypeChecker) call(n *ast.Node) *types.Type {
	id := n.Child(0)
	e := tc.table.Resolve(id.Value)
	switch {
	case e == nil || e.IsStructDef:
		tc.errorf(ErrUndefinedFunc, id.Line, "Undefined function \"%s\".", id.Value)
		return nil
	case e.Type == nil || e.Type.Kind != types.Func:
		tc.errorf(ErrNotFunc, id.Line, "\"%s\" is not a function.", id.Value)
		return nil
	}
	id.Ref = e.GenName

	var args []*types.Type
	for _, a := range n.Find(token.Args).Items() {
		args = append(args, tc.checkExp(a))
	}
	if !tc.argsMatch(e.Type.Params, args) {
		tc.errorf(ErrArgsMismatch, id.Line, "Function \"%s(%s)\" is not applicable for arguments \"(%s)\".",
			id.Value, e.Type.Params, typeList(args))
	}
	return e.Type.Return.Copy()
}

// argsMatch compares arguments and parameters pairwise. Arguments that
// already failed to check match anything.
func (tc *TypeChecker) argsMatch(params types.FieldList, args []*types.Type) bool {
	if len(params) != len(args) {
		return false
	}
	for i, a := range args {
		if a != nil && !tc.equiv.Equal(a, params[i].Type) {
			return false
		}
	}
	return true
}

func typeList(ts []*types.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// compoundExp handles the productions that start with an Exp: binary
// operators, assignment, indexing and member access
func (tc *TypeChecker) compoundExp(n *ast.Node) (*types.Type, bool) {
	left, lvalue := tc.exp(n.Child(0))
	op := n.Child(1)
	if op == nil {
		util.Internal("line %d: Exp without operator", n.Line)
	}

	switch op.Type {
	case token.LB:
		index := tc.checkExp(n.Child(2))
		if left == nil {
			return nil, false
		}
		if left.Kind != types.Array {
			tc.errorf(ErrNotArray, op.Line, "\"%s\" is not an array.", getNodeName(n.Child(0)))
			return nil, false
		}
		if index != nil && !index.IsBasic(types.Int) {
			tc.errorf(ErrNonIntIndex, op.Line, "\"%s\" is not an integer.", getNodeName(n.Child(2)))
		}
		elem := left.Elem
		return elem, elem != nil && elem.Kind != types.Array

	case token.Dot:
		member := n.Child(2).Expect(token.ID)
		if left == nil {
			return nil, false
		}
		if left.Kind != types.Struct {
			tc.errorf(ErrNotStruct, op.Line, "Illegal use of \".\".")
			return nil, false
		}
		f, _ := left.Fields.Lookup(member.Value)
		if f == nil {
			tc.errorf(ErrUndefinedField, member.Line, "Non-existent field \"%s\".", member.Value)
			return nil, false
		}
		return f.Type, f.Type != nil && f.Type.Kind != types.Array

	case token.AssignOp:
		right := tc.checkExp(n.Child(2))
		switch {
		case left == nil || right == nil:
			return nil, false
		case !lvalue || left.Kind == types.Array || left.Kind == types.Func:
			tc.errorf(ErrAssignRvalue, op.Line, "The left-hand side of an assignment must be a variable.")
			return nil, false
		case !tc.equiv.Equal(left, right):
			tc.errorf(ErrAssignMismatch, op.Line, "Type mismatched for assignment.")
			return nil, false
		}
		return left, false

	case token.And, token.Or, token.Relop, token.Plus, token.Minus, token.Star, token.Div:
		right := tc.checkExp(n.Child(2))
		switch {
		case left == nil || right == nil:
			return nil, false
		case left.Kind != types.Basic || !tc.equiv.Equal(left, right):
			tc.errorf(ErrOperandMismatch, op.Line, "Type mismatched for operands of \"%s\".", opText(op))
			return nil, false
		case op.Type == token.And || op.Type == token.Or || op.Type == token.Relop:
			return types.NewBasic(types.Int), false
		}
		return left, false
	}
	util.Internal("line %d: unexpected operator %s", op.Line, op.Type)
	return nil, false
}

var opSpelling = map[token.Type]string{
	token.AssignOp: "=", token.And: "&&", token.Or: "||",
	token.Plus: "+", token.Minus: "-", token.Star: "*", token.Div: "/", token.Not: "!",
}

func opText(op *ast.Node) string {
	if op.Type == token.Relop {
		return op.Value
	}
	return opSpelling[op.Type]
}

// getNodeName renders an expression back to source form for error messages
func getNodeName(n *ast.Node) string {
	if n == nil {
		return "expression"
	}
	c := n.Child(0)
	if c == nil {
		return "expression"
	}
	switch {
	case n.Len() == 1:
		switch c.Type {
		case token.Char:
			return "'" + c.Value + "'"
		case token.ID, token.Int, token.Float:
			return c.Value
		}
	case c.Type == token.LP:
		return "(" + getNodeName(n.Child(1)) + ")"
	case c.Type == token.Minus || c.Type == token.Not:
		return opText(c) + getNodeName(n.Child(1))
	case c.Type == token.ID:
		return c.Value + "(...)"
	case n.Is(1, token.LB):
		return getNodeName(c) + "[" + getNodeName(n.Child(2)) + "]"
	case n.Is(1, token.Dot):
		return getNodeName(c) + "." + n.Child(2).Value
	case n.Len() == 3:
		return getNodeName(c) + " " + opText(n.Child(1)) + " " + getNodeName(n.Child(2))
	}
	return "expression"
}
