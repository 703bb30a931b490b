// Package ast defines the concrete syntax tree of a C-- program.
//
// Every node is labelled with a grammar symbol from package token and keeps
// its children in production order. Empty productions (an empty ExtDefList,
// DefList, StmtList or VarList) produce no node at all, so optional pieces
// are simply missing from the children slice:
//
//	Program         -> ExtDefList?
//	ExtDefList      -> ExtDef ExtDefList?
//	ExtDef          -> Specifier ExtDecList SEMI | Specifier SEMI
//	                 | Specifier FunDec CompSt | Specifier FunDec SEMI
//	ExtDecList      -> VarDec | VarDec COMMA ExtDecList
//	Specifier       -> TYPE | StructSpecifier
//	StructSpecifier -> STRUCT OptTag? LC DefList? RC | STRUCT Tag
//	OptTag, Tag     -> ID
//	VarDec          -> ID | VarDec LB INT RB
//	FunDec          -> ID LP VarList? RP
//	VarList         -> ParamDec COMMA VarList | ParamDec
//	ParamDec        -> Specifier VarDec
//	CompSt          -> LC DefList? StmtList? RC
//	StmtList        -> Stmt StmtList?
//	Stmt            -> Exp SEMI | CompSt | RETURN Exp? SEMI
//	                 | IF LP Exp RP Stmt (ELSE Stmt)? | WHILE LP Exp RP Stmt
//	DefList         -> Def DefList?
//	Def             -> Specifier DecList SEMI
//	DecList         -> Dec | Dec COMMA DecList
//	Dec             -> VarDec | VarDec ASSIGNOP Exp
//	Exp             -> Exp (ASSIGNOP|AND|OR|RELOP|PLUS|MINUS|STAR|DIV) Exp
//	                 | LP Exp RP | MINUS Exp | NOT Exp | ID LP Args? RP
//	                 | Exp LB Exp RB | Exp DOT ID | ID | INT | FLOAT | CHAR
//	Args            -> Exp COMMA Args | Exp
package ast

import (
	"strconv"
	"strings"

	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/types"
	"github.com/xplshn/cmmc/pkg/util"
)

// Node is one grammar symbol in the tree
type Node struct {
	Type     token.Type
	Value    string // ID, TYPE, INT, FLOAT, CHAR and RELOP text
	Line     int
	Children []*Node
	Parent   *Node
	Typ      *types.Type // Set by the type checker on Exp nodes and declared ID leaves
	Ref      string      // IR name of the variable an ID leaf declares or uses
}

// New builds a non-terminal node. nil children (empty productions) are dropped.
func New(typ token.Type, line int, children ...*Node) *Node {
	n := &Node{Type: typ, Line: line}
	for _, c := range children {
		n.Add(c)
	}
	return n
}

// Leaf builds a terminal node from a scanned token
func Leaf(tok token.Token) *Node { return &Node{Type: tok.Type, Value: tok.Value, Line: tok.Line} }

// Add appends c to n's children
func (n *Node) Add(c *Node) {
	if c == nil {
		return
	}
	c.Parent = n
	n.Children = append(n.Children, c)
}

func (n *Node) Len() int { return len(n.Children) }

// Child returns the i-th child, or nil when there is none
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// Is reports whether the i-th child exists and is labelled t
func (n *Node) Is(i int, t token.Type) bool {
	c := n.Child(i)
	return c != nil && c.Type == t
}

// Find returns the first child labelled t
func (n *Node) Find(t token.Type) *Node {
	for _, c := range n.Children {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// Items flattens a right-recursive list node (ExtDefList, VarList, Args, ...)
// into its elements. A nil list has no items.
func (n *Node) Items() []*Node {
	var out []*Node
	for cur := n; cur != nil; cur = cur.Find(n.Type) {
		if item := cur.Child(0); item != nil {
			out = append(out, item)
		}
	}
	return out
}

// IntValue decodes an INT literal written in decimal, octal or hex
func (n *Node) IntValue() int {
	v, err := strconv.ParseInt(n.Value, 0, 64)
	if err != nil {
		util.Internal("line %d: bad integer literal %q", n.Line, n.Value)
	}
	return int(v)
}

// CharValue decodes a CHAR literal to its character code
func (n *Node) CharValue() int {
	if n.Value == `\0` {
		return 0
	}
	if hex, ok := strings.CutPrefix(n.Value, `\x`); ok {
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			util.Internal("line %d: bad character literal '%s'", n.Line, n.Value)
		}
		return int(v)
	}
	r, _, tail, err := strconv.UnquoteChar(n.Value, '\'')
	if err != nil || tail != "" {
		util.Internal("line %d: bad character literal '%s'", n.Line, n.Value)
	}
	return int(r)
}

func (n *Node) FloatValue() float64 {
	v, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		util.Internal("line %d: bad float literal %q", n.Line, n.Value)
	}
	return v
}

// Expect panics with an internal error unless n is labelled t. It guards the
// positional walks done by the checker and the IR builder.
func (n *Node) Expect(t token.Type) *Node {
	if n == nil {
		util.Internal("expected %s, found nothing", t)
	}
	if n.Type != t {
		util.Internal("line %d: expected %s, found %s", n.Line, t, n.Type)
	}
	return n
}
