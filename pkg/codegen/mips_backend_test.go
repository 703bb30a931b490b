package codegen

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/util"
)

type arity map[string]int

func (a arity) ParamCount(name string) (int, bool) {
	n, ok := a[name]
	return n, ok
}

func assemble(t *testing.T, cfg *config.Config, src string) string {
	t.Helper()
	root, table := checked(t, src)
	prog, err := GenerateIR(root, table)
	be.Err(t, err, nil)
	buf, err := NewMIPSBackend(table).Generate(prog, cfg)
	be.Err(t, err, nil)
	return buf.String()
}

func TestRuntimePreamble(t *testing.T) {
	asm := assemble(t, nil, "int main() { return 0; }")
	be.True(t, strings.HasPrefix(asm, ".data\n_prompt: .asciiz \"Enter an integer:\"\n_ret: .asciiz \"\\n\"\n.globl main\n.text\nread:\n"))
	be.True(t, strings.Contains(asm, "  jr $ra\n\nwrite:\n"))
	be.True(t, strings.HasSuffix(asm, "\nmain:\n  move $gp, $sp\n  move $v0, $0\n  jr $ra\n"))
}

func TestMainBody(t *testing.T) {
	asm := assemble(t, nil, "int main() { int a; a = 1 + 2; return a; }")
	_, body, ok := strings.Cut(asm, "\nmain:\n")
	be.True(t, ok)
	be.Equal(t, body, lines(
		"  move $gp, $sp",
		"  addi $sp, $sp, -4",
		"    #allocate -4($gp) for t_a",
		"  lw $t0, -4($gp)",
		"  li $t0, 3",
		"  sw $t0, -4($gp)",
		"  lw $t0, -4($gp)",
		"  move $v0, $t0",
		"  jr $ra",
	))
}

func TestCommentsCanBeDisabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatAsmComments, false)
	asm := assemble(t, cfg, "int main() { int a[4]; a[0] = 1; return a[0]; }")
	be.True(t, !strings.Contains(asm, "#allocate"))
	be.True(t, strings.Contains(asm, "  addi $sp, $sp, -16\n  sw $sp, -4($sp)\n  addi $sp, $sp, -4\n"))
}

func TestArrayFrame(t *testing.T) {
	asm := assemble(t, nil, "int main() { int a[4]; a[0] = 1; return a[0]; }")
	be.True(t, strings.Contains(asm, "    #allocate -20($gp) for array t_a with base at -16($gp)\n"))
	// GET_ADDR loads the base pointer kept in the array's slot
	be.True(t, strings.Contains(asm, ", -20($gp)\n"))
	be.True(t, strings.Contains(asm, "  sw "))
}

func TestCallSequence(t *testing.T) {
	asm := assemble(t, nil, "int add(int x, int y) { return x + y; }\nint main() { int r; r = add(1, 2); write(r); return 0; }")
	add, main, ok := strings.Cut(asm, "\nmain:\n")
	be.True(t, ok)

	be.True(t, strings.Contains(add, "\nf_add:\n  move $gp, $sp\n"))
	be.True(t, strings.Contains(add, "  lw $t1, 8($gp)\n  lw $t2, 12($gp)\n  add $t0, $t1, $t2\n"))

	for _, want := range []string{
		"  addi $sp, $sp, -72\n  sw $t0, 0($sp)\n",
		"  sw $t9, 68($sp)\n  addi $sp, $sp, -8\n",
		"  li $t1, 1\n  sw $t1, 0($sp)\n",
		"  li $t2, 2\n  sw $t2, 4($sp)\n",
		"  sw $ra, 0($sp)\n  sw $gp, 4($sp)\n  jal f_add\n  move $sp, $gp\n  lw $ra, 0($sp)\n  lw $gp, 4($sp)\n  addi $sp, $sp, 16\n",
		"  lw $t9, 68($sp)\n  addi $sp, $sp, 72\n  move $t0, $v0\n",
		"  move $a0, $t0\n  jal write\n",
	} {
		if !strings.Contains(main, want) {
			t.Errorf("missing %q in:\n%s", want, main)
		}
	}
}

func TestCallWithManyArguments(t *testing.T) {
	var params, args []string
	for i := 0; i < 20; i++ {
		params = append(params, fmt.Sprintf("int p%d", i))
		args = append(args, strconv.Itoa(i+1))
	}
	src := "int f(" + strings.Join(params, ", ") + ") { return p0 + p19; }\n" +
		"int main() { int a = 1; write(f(" + strings.Join(args, ", ") + ")); a = f(a, " + strings.Join(args[1:], ", ") + "); return a; }"
	asm := assemble(t, nil, src)
	be.True(t, strings.Contains(asm, "  lw $t1, 8($gp)\n  lw $t2, 84($gp)\n"))
	be.Equal(t, strings.Count(asm, "  addi $sp, $sp, -80\n"), 2)
	be.Equal(t, strings.Count(asm, ", 76($sp)\n"), 2)
	be.Equal(t, strings.Count(asm, "  addi $sp, $sp, 88\n"), 2)
}

func TestBranches(t *testing.T) {
	asm := assemble(t, nil, "int main() { int i = 0; while (i != 3) i = i + 1; if (i >= 3) write(i); return i; }")
	for _, want := range []string{"bne ", "bge ", "  j label0\n", "label2:\n", "  addi $t0, $t0, 1\n"} {
		be.True(t, strings.Contains(asm, want))
	}
}

func TestSubtractAndDivide(t *testing.T) {
	asm := assemble(t, nil, "int main() { int a = read(); int b; b = a - 5; b = 10 - a; b = a / 2; return b; }")
	be.True(t, strings.Contains(asm, ", -5\n"))
	be.True(t, strings.Contains(asm, "  sub "))
	be.True(t, strings.Contains(asm, "  div "))
	be.True(t, strings.Contains(asm, "  mflo "))
}

func TestInternalErrors(t *testing.T) {
	outside := &ir.Program{}
	outside.Emit(ir.NewUnary(ir.OpReturn, ir.NewConst(0)))

	badParams := &ir.Program{}
	badParams.Emit(ir.NewUnary(ir.OpFunction, ir.NewFunc("f_g")))
	badParams.Emit(ir.NewUnary(ir.OpParam, ir.NewVar("v_a")))
	badParams.Emit(ir.NewUnary(ir.OpReturn, ir.NewVar("v_a")))

	decAfterUse := &ir.Program{}
	decAfterUse.Emit(ir.NewUnary(ir.OpFunction, ir.NewFunc("main")))
	decAfterUse.Emit(ir.NewAssign(ir.OpAssign, ir.NewVar("t_a"), ir.NewConst(1)))
	decAfterUse.Emit(ir.NewDec(ir.NewVar("t_a"), 8))

	badArity := &ir.Program{}
	badArity.Emit(ir.NewUnary(ir.OpFunction, ir.NewFunc("main")))
	badArity.Emit(ir.NewUnary(ir.OpArg, ir.NewConst(1)))
	badArity.Emit(ir.NewAssign(ir.OpCall, ir.NewVar("t0"), ir.NewFunc("f_g")))

	unknown := &ir.Program{}
	unknown.Emit(ir.NewUnary(ir.OpFunction, ir.NewFunc("main")))
	unknown.Emit(ir.NewAssign(ir.OpCall, ir.NewVar("t0"), ir.NewFunc("f_h")))

	for _, prog := range []*ir.Program{outside, badParams, decAfterUse, badArity, unknown} {
		buf, err := NewMIPSBackend(arity{"f_g": 2}).Generate(prog, nil)
		be.True(t, buf == nil)
		be.True(t, errors.Is(err, util.ErrInternal))
	}
}

func TestAllocatorEviction(t *testing.T) {
	var out bytes.Buffer
	f := newFrame(&out)
	names := []string{}
	for i := 0; i < 20; i++ {
		name := "t" + string(rune('a'+i))
		names = append(names, name)
		f.slots[name] = -4 * (i + 1)
	}

	f.newInstruction()
	be.Equal(t, regNames[f.checkVariable(ir.NewConst(5))], "$t0")
	for i := 0; i < 17; i++ {
		f.newInstruction()
		f.checkVariable(ir.NewVar(names[i]))
	}
	be.Equal(t, regNames[f.lookup(names[16])], "$t9")

	// the pool is full: the constant goes first, then the oldest variables
	f.newInstruction()
	be.Equal(t, regNames[f.checkVariable(ir.NewVar(names[17]))], "$t0")
	f.newInstruction()
	be.Equal(t, regNames[f.checkVariable(ir.NewVar(names[18]))], "$t1")
	be.Equal(t, f.lookup(names[0]), -1)

	// a cached variable is reused without a new register
	f.newInstruction()
	be.Equal(t, regNames[f.checkVariable(ir.NewVar(names[18]))], "$t1")
	be.Equal(t, regNames[f.checkVariable(ir.NewConst(0))], "$0")
}

func TestAllocatorKeepsPinnedRegisters(t *testing.T) {
	var out bytes.Buffer
	f := newFrame(&out)
	f.newInstruction()
	for i := 0; i < lastReg-firstReg+1; i++ {
		f.checkVariable(ir.NewConst(i + 1))
	}
	defer func() {
		r := recover()
		be.True(t, r != nil)
		_, ok := r.(*util.InternalError)
		be.True(t, ok)
	}()
	f.checkVariable(ir.NewConst(99))
}
