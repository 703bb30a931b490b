package typeChecker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/lexer"
	"github.com/xplshn/cmmc/pkg/parser"
	"github.com/xplshn/cmmc/pkg/symtab"
	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/types"
	"github.com/xplshn/cmmc/pkg/util"
)

type result struct {
	root  *ast.Node
	table *symtab.Table
	diags *util.Diagnostics
}

func check(t *testing.T, cfg *config.Config, src string) result {
	t.Helper()
	if cfg == nil {
		cfg = config.NewConfig()
	}
	diags := &util.Diagnostics{}
	root := parser.NewParser(lexer.Tokenize([]rune(src), diags), diags).Parse()
	if root == nil || diags.HasErrors() {
		t.Fatalf("parse failed: %v", diags.List())
	}
	table := symtab.New()
	be.Err(t, NewTypeChecker(cfg, table, diags).Check(root), nil)
	return result{root, table, diags}
}

func messages(d *util.Diagnostics) []string {
	var out []string
	for _, diag := range d.List() {
		out = append(out, diag.String())
	}
	return out
}

func codes(d *util.Diagnostics) []int {
	var out []int
	for _, diag := range d.List() {
		if diag.Class == util.Semantic {
			out = append(out, diag.Code)
		}
	}
	return out
}

func TestCleanProgram(t *testing.T) {
	r := check(t, nil, `
struct Point { int x, y; };
int dist(struct Point p, struct Point q) {
  int dx = p.x - q.x;
  int dy = p.y - q.y;
  return dx * dx + dy * dy;
}
int main() {
  struct Point a, b;
  int grid[3][4];
  float f = 1.5;
  char c = 'x';
  a.x = 1; a.y = 2; b = a;
  grid[1][2] = dist(a, b);
  if (grid[1][2] > 0 && !(f < 0.5)) write(grid[1][2]); else write(read());
  while (a.x < 10) a.x = a.x + 1;
  return 0;
}`)
	be.Equal(t, messages(r.diags), []string(nil))
	main := r.table.Lookup("main")
	be.Equal(t, main.Type.State, types.Defined)
	be.Equal(t, main.GenName, "main")
	be.Equal(t, r.table.Lookup("dist").GenName, "f_dist")
	be.Equal(t, r.table.Lookup("grid").Type.String(), "int[3][4]")
	be.Equal(t, r.table.Lookup("p").GenName, "v_p")
}

func TestScenarioUndefinedVariable(t *testing.T) {
	r := check(t, nil, "int main(){ int b; b = c; return 0; }")
	be.Equal(t, messages(r.diags), []string{`Error type 1 at Line 1: Undefined variable "c".`})
}

func TestScenarioStructRedefined(t *testing.T) {
	r := check(t, nil, "struct A { int x; };\nstruct A { int y; };\nint main() { return 0; }")
	be.Equal(t, messages(r.diags), []string{`Error type 16 at Line 2: Duplicated name "A".`})
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []int
	}{
		{"undefined function", "int main() { return g(); }", []int{ErrUndefinedFunc}},
		{"redefined variable", "int main() { int a; float a; return 0; }", []int{ErrRedefinedVar}},
		{"param and local clash", "int f(int a) { int a; return a; }", []int{ErrRedefinedVar}},
		{"redefined function", "int f() { return 1; }\nint f() { return 2; }", []int{ErrRedefinedFunc}},
		{"function named like a global", "int f;\nint f() { return 1; }", []int{ErrRedefinedFunc}},
		{"assign mismatch", "int main() { int a; float b; a = b; return 0; }", []int{ErrAssignMismatch}},
		{"init mismatch", "int main() { int a = 1.5; return a; }", []int{ErrAssignMismatch}},
		{"assign to rvalue", "int main() { int a; a + 1 = 2; return 0; }", []int{ErrAssignRvalue}},
		{"assign to array", "int main() { int a[2], b[2]; a = b; return 0; }", []int{ErrAssignRvalue}},
		{"assign to parenthesised", "int main() { int a; (a) = 1; return 0; }", []int{ErrAssignRvalue}},
		{"operand mismatch", "int main() { int a; float b; return a + b; }", []int{ErrOperandMismatch}},
		{"struct operand", "struct S { int x; };\nint main() { struct S s, t; return s + t; }", []int{ErrOperandMismatch}},
		{"negate array", "int main() { int a[2]; return -a; }", []int{ErrOperandMismatch}},
		{"return mismatch", "int main() { return 1.0; }", []int{ErrReturnMismatch}},
		{"too many args", "int f(int x) { return x; }\nint main() { return f(1, 2); }", []int{ErrArgsMismatch}},
		{"wrong arg type", "int f(int x) { return x; }\nint main() { return f(1.0); }", []int{ErrArgsMismatch}},
		{"index non-array", "int main() { int a; return a[0]; }", []int{ErrNotArray}},
		{"call non-function", "int main() { int a; return a(); }", []int{ErrNotFunc}},
		{"float index", "int main() { int a[3]; return a[1.5]; }", []int{ErrNonIntIndex}},
		{"dot on int", "int main() { int a; return a.x; }", []int{ErrNotStruct}},
		{"missing field", "struct S { int x; };\nint main() { struct S s; return s.y; }", []int{ErrUndefinedField}},
		{"duplicate field", "struct S { int x; float x; };\nint main() { return 0; }", []int{ErrRedefinedField}},
		{"field initializer", "struct S { int x = 1; };\nint main() { return 0; }", []int{ErrRedefinedField}},
		{"struct named like variable", "int main() { int P; struct P { int x; } q; return 0; }", []int{ErrRedefinedStruct}},
		{"undefined struct", "int main() { struct Q q; return 0; }", []int{ErrUndefinedStruct}},
		{"declared only", "int g(int x);\nint main() { return 0; }", []int{ErrDeclaredOnly}},
		{"signature mismatch", "int g(int x);\nfloat g(int x) { return 1.0; }\nint main() { return 0; }", []int{ErrSignatureMismatch}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := check(t, nil, tc.src)
			be.Equal(t, codes(r.diags), tc.want)
		})
	}
}

func TestNoCascade(t *testing.T) {
	// one undefined name inside a larger expression reports once
	r := check(t, nil, "int main() { int a; a = (x + 1) * 2 - a; return a[x]; }")
	be.Equal(t, codes(r.diags), []int{ErrUndefinedVar, ErrUndefinedVar, ErrNotArray})
}

func TestErrorsInBothOperands(t *testing.T) {
	r := check(t, nil, "int main() { return x + y; }")
	be.Equal(t, codes(r.diags), []int{ErrUndefinedVar, ErrUndefinedVar})
}

func TestConditionErrorStillChecksBody(t *testing.T) {
	r := check(t, nil, "int main() { if (x) { return y; } while (z) w = 1; return 0; }")
	be.Equal(t, codes(r.diags), []int{ErrUndefinedVar, ErrUndefinedVar, ErrUndefinedVar, ErrUndefinedVar})
}

func TestSignatureMatching(t *testing.T) {
	r := check(t, nil, "int f(int a);\nint f(int b) { return b; }\nint main() { return f(1); }")
	be.Equal(t, messages(r.diags), []string(nil))
	be.Equal(t, r.table.Lookup("f").Type.State, types.Defined)

	r = check(t, nil, "int f(int a);\nint f(int b) { return b; }\nint f(int c) { return c; }\nint main() { return 0; }")
	be.Equal(t, messages(r.diags), []string{`Error type 4 at Line 3: Redefined function "f".`})

	r = check(t, nil, "int f(int a);\nfloat f(int a) { return 1.0; }\nint main() { return 0; }")
	be.Equal(t, messages(r.diags), []string{`Error type 19 at Line 2: Inconsistent declaration of function "f".`})
	// the mismatching definition still counts as a definition
	be.Equal(t, r.table.Lookup("f").Type.State, types.Defined)
}

func TestBuiltinsCanBeDeclared(t *testing.T) {
	r := check(t, nil, "int write(int v);\nint main() { return write(read()); }")
	be.Equal(t, messages(r.diags), []string(nil))
}

func TestArgsMismatchMessage(t *testing.T) {
	r := check(t, nil, "int f(int a, float b) { return a; }\nint main() { return f(1); }")
	be.Equal(t, messages(r.diags), []string{
		`Error type 9 at Line 2: Function "f(int a, float b)" is not applicable for arguments "(int)".`,
	})
}

func TestShadowingAndNames(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnShadow, true)
	r := check(t, cfg, "int main() {\n  int x = 1;\n  {\n    int x = 2;\n    { int x = 3; }\n  }\n  return x;\n}")
	be.Equal(t, r.diags.ErrorCount(), 0)
	be.Equal(t, messages(r.diags), []string{
		`Warning at Line 4: Declaration of "x" shadows the one at line 2. [-Wshadow]`,
		`Warning at Line 5: Declaration of "x" shadows the one at line 4. [-Wshadow]`,
	})

	be.Equal(t, refs(r.root), []string{"main", "t_x", "t2_x", "t3_x", "t_x"})
}

func refs(root *ast.Node) []string {
	var out []string
	var walk func(n *ast.Node)
	walk = func(n *ast.Node) {
		if n.Type == token.ID && n.Ref != "" {
			out = append(out, n.Ref)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

func TestSiblingScopes(t *testing.T) {
	r := check(t, nil, "int main() { { int i = 1; } { int i[2]; } { int i; } return 0; }\nint g(int i) { int j; { int i; } return i; }\nint h() { int i; return 0; }")
	be.Equal(t, r.diags.ErrorCount(), 0)
	// siblings get their own storage; names restart in every function
	be.Equal(t, refs(r.root), []string{"main", "t_i", "t2_i", "t2_1_i", "f_g", "v_i", "t_j", "t_i", "v_i", "f_h", "t_i"})
}

func TestMissingReturnWarning(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnMissingReturn, true)
	r := check(t, cfg, "int f(int a) { if (a) return 1; }\nint g(int a) { while (a) { return 1; } }\nint h() { int z; z = 1; }")
	// a one-armed if and a while body both count as returning
	be.Equal(t, r.diags.Count(util.Warning), 1)
	be.Equal(t, r.diags.List()[0].Line, 3)
}

func TestUnusedValueWarning(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnUnusedValue, true)
	r := check(t, cfg, "int f() { return 1; }\nint main() {\n  int a;\n  a + 1;\n  f() * 2;\n  a = 3;\n  -(a);\n  return a;\n}")
	be.Equal(t, r.diags.ErrorCount(), 0)
	be.Equal(t, messages(r.diags), []string{
		`Warning at Line 4: Value of "a + 1" is not used. [-Wunused-value]`,
		`Warning at Line 7: Value of "-(a)" is not used. [-Wunused-value]`,
	})
}

func TestNominalStructs(t *testing.T) {
	src := "struct A { int x; };\nstruct B { int y; };\nint main() { struct A a; struct B b; a = b; return 0; }"
	r := check(t, nil, src)
	be.Equal(t, r.diags.ErrorCount(), 0)

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatNominalStructs, true)
	r = check(t, cfg, src)
	be.Equal(t, codes(r.diags), []int{ErrAssignMismatch})
}

func TestAnonymousStruct(t *testing.T) {
	r := check(t, nil, "int main() { struct { int a; float b; } s; s.b = 2.0; return s.a; }")
	be.Equal(t, r.diags.ErrorCount(), 0)
	be.True(t, r.table.Lookup("1") != nil)
	be.True(t, r.table.Lookup("1").IsStructDef)
}

func TestExpressionTypes(t *testing.T) {
	r := check(t, nil, "struct S { int v[4]; float w; };\nint main() { struct S s; s.w = s.w * 2.0; return s.v[1] < 3 || 'c' == 'd'; }")
	be.Equal(t, r.diags.ErrorCount(), 0)

	var got []string
	var walk func(n *ast.Node)
	walk = func(n *ast.Node) {
		for _, c := range n.Children {
			walk(c)
		}
		if n.Type == token.Exp {
			got = append(got, n.Typ.String())
		}
	}
	walk(r.root.Find(token.ExtDefList).Find(token.ExtDefList))
	want := []string{
		// s.w = s.w * 2.0
		"struct S", "float", "struct S", "float", "float", "float", "float",
		// s.v[1] < 3 || 'c' == 'd'
		"struct S", "int[4]", "int", "int", "int", "int", "char", "char", "int", "int",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("expression types (-want +got):\n%s", diff)
	}
}
