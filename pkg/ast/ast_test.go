package ast

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nalgeon/be"
	"github.com/xplshn/cmmc/pkg/token"
)

func sample() *Node {
	tok := func(t token.Type, v string, line int) *Node { return Leaf(token.Token{Type: t, Value: v, Line: line}) }
	exp := New(token.Exp, 2,
		New(token.Exp, 2, tok(token.ID, "a", 2)),
		tok(token.AssignOp, "", 2),
		New(token.Exp, 2, tok(token.Char, `\n`, 2)),
	)
	return New(token.Program, 1,
		New(token.ExtDefList, 1,
			New(token.ExtDef, 1,
				New(token.Specifier, 1, tok(token.TypeKw, "float", 1)),
				New(token.FunDec, 1, tok(token.ID, "f", 1), tok(token.LP, "", 1), tok(token.RP, "", 1)),
				New(token.CompSt, 1,
					tok(token.LC, "", 1),
					New(token.StmtList, 2, New(token.Stmt, 2, exp, tok(token.Semi, "", 2))),
					tok(token.RC, "", 3),
				),
			),
		),
	)
}

var ignoreParent = cmpopts.IgnoreFields(Node{}, "Parent")

func TestDumpFormat(t *testing.T) {
	var buf bytes.Buffer
	be.Err(t, Dump(&buf, sample(), false), nil)
	want := strings.Join([]string{
		"Program (1)",
		"  ExtDefList (1)",
		"    ExtDef (1)",
		"      Specifier (1)",
		"        TYPE: float",
		"      FunDec (1)",
		"        ID: f",
		"        LP",
		"        RP",
		"      CompSt (1)",
		"        LC",
		"        StmtList (2)",
		"          Stmt (2)",
		"            Exp (2)",
		"              Exp (2)",
		"                ID: a",
		"              ASSIGNOP",
		"              Exp (2)",
		`                CHAR: '\n'`,
		"            SEMI",
		"        RC",
		"",
	}, "\n")
	be.Equal(t, buf.String(), want)
}

func TestDumpReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	be.Err(t, Dump(&buf, sample(), true), nil)
	got, err := Read(&buf)
	be.Err(t, err, nil)
	if diff := cmp.Diff(sample(), got, ignoreParent); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadInheritsParentLine(t *testing.T) {
	src := "Exp (7)\n  Exp (7)\n    INT: 0x10\n  PLUS\n  Exp (8)\n    FLOAT: 1.500000\n"
	n, err := Read(strings.NewReader(src))
	be.Err(t, err, nil)
	be.Equal(t, n.Child(1).Line, 7)
	be.Equal(t, n.Child(0).Child(0).IntValue(), 16)
	be.Equal(t, n.Child(2).Child(0).Line, 8)
	be.Equal(t, n.Child(2).Child(0).FloatValue(), 1.5)
	be.True(t, n.Child(1).Parent == n)
}

func TestReadAlias(t *testing.T) {
	n, err := Read(strings.NewReader("StructSpecifier (3)\n  STRUCTURE\n  Tag (3)\n    ID: P\n"))
	be.Err(t, err, nil)
	be.Equal(t, n.Child(0).Type, token.Struct)
}

func TestReadErrors(t *testing.T) {
	tests := []struct{ src, want string }{
		{"Program (1)\n   ExtDefList (1)\n", "odd indentation"},
		{"Program (1)\n    ExtDefList (1)\n", "unexpected depth"},
		{"Program (1)\n  SEMI\n    ID: x\n", "cannot have children"},
		{"Program (1)\n  Bogus (1)\n", "unknown symbol"},
		{"Program\n", "has no line number"},
		{"Exp (1)\n  ID\n", "has no value"},
		{"Exp (1)\n  CHAR: x\n", "malformed CHAR"},
		{"\n\n", "empty tree"},
	}
	for _, tc := range tests {
		_, err := Read(strings.NewReader(tc.src))
		be.True(t, err != nil)
		be.True(t, strings.Contains(err.Error(), tc.want))
	}
}

func TestNodeHelpers(t *testing.T) {
	root := sample()
	def := root.Child(0).Child(0)
	be.True(t, def.Is(1, token.FunDec))
	be.True(t, !def.Is(5, token.FunDec))
	be.True(t, def.Find(token.CompSt) != nil)
	be.True(t, def.Find(token.Args) == nil)
	be.True(t, def.Child(-1) == nil)
	be.Equal(t, def.Expect(token.ExtDef), def)

	var nilNode *Node
	be.True(t, nilNode.Child(0) == nil)
}

func TestItems(t *testing.T) {
	leaf := func(v string) *Node { return Leaf(token.Token{Type: token.ID, Value: v, Line: 1}) }
	comma := func() *Node { return Leaf(token.Token{Type: token.Comma, Line: 1}) }
	args := New(token.Args, 1, leaf("a"), comma(), New(token.Args, 1, leaf("b"), comma(), New(token.Args, 1, leaf("c"))))
	var got []string
	for _, it := range args.Items() {
		got = append(got, it.Value)
	}
	be.Equal(t, got, []string{"a", "b", "c"})

	var none *Node
	be.Equal(t, len(none.Items()), 0)
}

func TestCharValue(t *testing.T) {
	tests := map[string]int{"a": 'a', `\n`: '\n', `\t`: '\t', `\\`: '\\', `\'`: '\'', `\0`: 0, `\x41`: 'A', `"`: '"'}
	for text, want := range tests {
		n := Leaf(token.Token{Type: token.Char, Value: text, Line: 1})
		be.Equal(t, n.CharValue(), want)
	}
}
