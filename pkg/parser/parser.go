package parser

import (
	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/util"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	diags    *util.Diagnostics
}

// syntaxError unwinds the descent after the first reported error
type syntaxError struct{}

// NewParser creates a Parser over a token stream that ends with EOF
func NewParser(tokens []token.Token, diags *util.Diagnostics) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != token.EOF {
		tokens = append(tokens, token.Token{Type: token.EOF})
	}
	return &Parser{tokens: tokens, current: tokens[0], diags: diags}
}

// Parse builds the tree for a whole program. It stops at the first syntax
// error, which is recorded in the diagnostics, and then returns nil.
func (p *Parser) Parse() (root *ast.Node) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(syntaxError); !ok {
				panic(r)
			}
			root = nil
		}
	}()
	return p.program()
}

// Parser helpers
func (p *Parser) advance() token.Token {
	tok := p.current
	if p.pos < len(p.tokens)-1 {
		p.previous = p.current
		p.pos++
		p.current = p.tokens[p.pos]
	}
	return tok
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool { return p.current.Type == tokType }

func (p *Parser) leaf() *ast.Node { return ast.Leaf(p.advance()) }

// expect consumes a token of type tokType or reports that it is missing,
// at the line of the last good token
func (p *Parser) expect(tokType token.Type, spelling string) *ast.Node {
	if p.check(tokType) {
		return p.leaf()
	}
	line := p.previous.Line
	if line == 0 {
		line = p.current.Line
	}
	p.fail(line, "Missing \"%s\".", spelling)
	return nil
}

func (p *Parser) unexpected() {
	if p.check(token.EOF) {
		p.fail(p.current.Line, "Unexpected end of file.")
	}
	p.fail(p.current.Line, "Syntax error near %s.", describe(p.current))
}

func (p *Parser) fail(line int, format string, args ...any) {
	p.diags.Syntax(line, format, args...)
	panic(syntaxError{})
}

func describe(tok token.Token) string {
	if tok.Value != "" {
		return "\"" + tok.Value + "\""
	}
	return tok.Type.String()
}

// chain folds items into a right-recursive list: List -> item (sep List)?
func chain(kind token.Type, items []*ast.Node, seps []*ast.Node) *ast.Node {
	var list *ast.Node
	for i := len(items) - 1; i >= 0; i-- {
		if list == nil {
			list = ast.New(kind, items[i].Line, items[i])
			continue
		}
		var sep *ast.Node
		if seps != nil {
			sep = seps[i]
		}
		list = ast.New(kind, items[i].Line, items[i], sep, list)
	}
	return list
}

func (p *Parser) program() *ast.Node {
	var defs []*ast.Node
	for !p.check(token.EOF) {
		defs = append(defs, p.extDef())
	}
	line := 1
	if len(defs) > 0 {
		line = defs[0].Line
	}
	return ast.New(token.Program, line, chain(token.ExtDefList, defs, nil))
}

func (p *Parser) extDef() *ast.Node {
	spec := p.specifier()
	switch {
	case p.check(token.Semi):
		return ast.New(token.ExtDef, spec.Line, spec, p.leaf())
	case p.check(token.ID) && p.peek().Type == token.LP:
		fun := p.funDec()
		if p.check(token.LC) {
			return ast.New(token.ExtDef, spec.Line, spec, fun, p.compSt())
		}
		return ast.New(token.ExtDef, spec.Line, spec, fun, p.expect(token.Semi, ";"))
	}
	var decs, commas []*ast.Node
	for {
		decs = append(decs, p.varDec())
		if !p.check(token.Comma) {
			break
		}
		commas = append(commas, p.leaf())
	}
	list := chain(token.ExtDecList, decs, commas)
	return ast.New(token.ExtDef, spec.Line, spec, list, p.expect(token.Semi, ";"))
}

func (p *Parser) specifier() *ast.Node {
	switch {
	case p.check(token.TypeKw):
		return ast.New(token.Specifier, p.current.Line, p.leaf())
	case p.check(token.Struct):
		s := p.structSpecifier()
		return ast.New(token.Specifier, s.Line, s)
	}
	p.unexpected()
	return nil
}

func (p *Parser) structSpecifier() *ast.Node {
	kw := p.leaf()
	switch {
	case p.check(token.ID) && p.peek().Type == token.LC:
		id := p.leaf()
		tag := ast.New(token.OptTag, id.Line, id)
		lc := p.leaf()
		defs := p.defList()
		return ast.New(token.StructSpecifier, kw.Line, kw, tag, lc, defs, p.expect(token.RC, "}"))
	case p.check(token.ID):
		id := p.leaf()
		return ast.New(token.StructSpecifier, kw.Line, kw, ast.New(token.Tag, id.Line, id))
	case p.check(token.LC):
		lc := p.leaf()
		defs := p.defList()
		return ast.New(token.StructSpecifier, kw.Line, kw, lc, defs, p.expect(token.RC, "}"))
	}
	p.unexpected()
	return nil
}

func (p *Parser) varDec() *ast.Node {
	if !p.check(token.ID) {
		p.unexpected()
	}
	id := p.leaf()
	dec := ast.New(token.VarDec, id.Line, id)
	for p.check(token.LB) {
		lb := p.leaf()
		if !p.check(token.Int) {
			p.unexpected()
		}
		size := p.leaf()
		dec = ast.New(token.VarDec, dec.Line, dec, lb, size, p.expect(token.RB, "]"))
	}
	return dec
}

func (p *Parser) funDec() *ast.Node {
	id := p.leaf()
	lp := p.leaf()
	if p.check(token.RP) {
		return ast.New(token.FunDec, id.Line, id, lp, p.leaf())
	}
	var params, commas []*ast.Node
	for {
		spec := p.specifier()
		params = append(params, ast.New(token.ParamDec, spec.Line, spec, p.varDec()))
		if !p.check(token.Comma) {
			break
		}
		commas = append(commas, p.leaf())
	}
	list := chain(token.VarList, params, commas)
	return ast.New(token.FunDec, id.Line, id, lp, list, p.expect(token.RP, ")"))
}

func (p *Parser) compSt() *ast.Node {
	lc := p.leaf()
	defs := p.defList()
	var stmts []*ast.Node
	for !p.check(token.RC) && !p.check(token.EOF) {
		if p.check(token.TypeKw) || p.check(token.Struct) {
			p.fail(p.current.Line, "Declaration after statement.")
		}
		stmts = append(stmts, p.stmt())
	}
	return ast.New(token.CompSt, lc.Line, lc, defs, chain(token.StmtList, stmts, nil), p.expect(token.RC, "}"))
}

func (p *Parser) defList() *ast.Node {
	var defs []*ast.Node
	for p.check(token.TypeKw) || p.check(token.Struct) {
		spec := p.specifier()
		var decs, commas []*ast.Node
		for {
			vd := p.varDec()
			dec := ast.New(token.Dec, vd.Line, vd)
			if p.check(token.AssignOp) {
				dec.Add(p.leaf())
				dec.Add(p.exp())
			}
			decs = append(decs, dec)
			if !p.check(token.Comma) {
				break
			}
			commas = append(commas, p.leaf())
		}
		list := chain(token.DecList, decs, commas)
		defs = append(defs, ast.New(token.Def, spec.Line, spec, list, p.expect(token.Semi, ";")))
	}
	return chain(token.DefList, defs, nil)
}

func (p *Parser) stmt() *ast.Node {
	line := p.current.Line
	switch {
	case p.check(token.LC):
		return ast.New(token.Stmt, line, p.compSt())
	case p.check(token.Return):
		ret := p.leaf()
		if p.check(token.Semi) {
			return ast.New(token.Stmt, line, ret, p.leaf())
		}
		e := p.exp()
		return ast.New(token.Stmt, line, ret, e, p.expect(token.Semi, ";"))
	case p.check(token.If):
		kw := p.leaf()
		lp := p.expect(token.LP, "(")
		cond := p.exp()
		rp := p.expect(token.RP, ")")
		body := p.stmt()
		n := ast.New(token.Stmt, line, kw, lp, cond, rp, body)
		if p.check(token.Else) {
			n.Add(p.leaf())
			n.Add(p.stmt())
		}
		return n
	case p.check(token.While):
		kw := p.leaf()
		lp := p.expect(token.LP, "(")
		cond := p.exp()
		rp := p.expect(token.RP, ")")
		return ast.New(token.Stmt, line, kw, lp, cond, rp, p.stmt())
	}
	e := p.exp()
	return ast.New(token.Stmt, line, e, p.expect(token.Semi, ";"))
}

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Div:
		return 5
	case token.Plus, token.Minus:
		return 4
	case token.Relop:
		return 3
	case token.And:
		return 2
	case token.Or:
		return 1
	default:
		return -1
	}
}

func (p *Parser) exp() *ast.Node {
	left := p.parseBinaryExpr(1)
	if p.check(token.AssignOp) {
		op := p.leaf()
		right := p.exp()
		return ast.New(token.Exp, left.Line, left, op, right)
	}
	return left
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		prec := getBinaryOpPrecedence(p.current.Type)
		if prec < minPrec {
			break
		}
		op := p.leaf()
		right := p.parseBinaryExpr(prec + 1)
		left = ast.New(token.Exp, left.Line, left, op, right)
	}
	return left
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	if p.check(token.Minus) || p.check(token.Not) {
		op := p.leaf()
		operand := p.parseUnaryExpr()
		return ast.New(token.Exp, op.Line, op, operand)
	}
	return p.parsePostfixExpr()
}

func (p *Parser) parsePostfixExpr() *ast.Node {
	expr := p.parsePrimaryExpr()
	for {
		switch {
		case p.check(token.LB):
			lb := p.leaf()
			index := p.exp()
			expr = ast.New(token.Exp, expr.Line, expr, lb, index, p.expect(token.RB, "]"))
		case p.check(token.Dot):
			dot := p.leaf()
			if !p.check(token.ID) {
				p.unexpected()
			}
			expr = ast.New(token.Exp, expr.Line, expr, dot, p.leaf())
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	line := p.current.Line
	switch {
	case p.check(token.LP):
		lp := p.leaf()
		inner := p.exp()
		return ast.New(token.Exp, line, lp, inner, p.expect(token.RP, ")"))
	case p.check(token.ID) && p.peek().Type == token.LP:
		id := p.leaf()
		lp := p.leaf()
		if p.check(token.RP) {
			return ast.New(token.Exp, line, id, lp, p.leaf())
		}
		args := p.args()
		return ast.New(token.Exp, line, id, lp, args, p.expect(token.RP, ")"))
	case p.check(token.ID), p.check(token.Int), p.check(token.Float), p.check(token.Char):
		return ast.New(token.Exp, line, p.leaf())
	}
	p.unexpected()
	return nil
}

func (p *Parser) args() *ast.Node {
	var items, commas []*ast.Node
	for {
		items = append(items, p.exp())
		if !p.check(token.Comma) {
			break
		}
		commas = append(commas, p.leaf())
	}
	return chain(token.Args, items, commas)
}
