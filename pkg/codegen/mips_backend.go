package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/util"
)

// runtime holds the data section and the read and write routines, which go
// through the SPIM syscalls
const runtime = `.data
_prompt: .asciiz "Enter an integer:"
_ret: .asciiz "\n"
.globl main
.text
read:
  li $v0, 4
  la $a0, _prompt
  syscall
  li $v0, 5
  syscall
  jr $ra

write:
  li $v0, 1
  syscall
  li $v0, 4
  la $a0, _ret
  syscall
  move $v0, $0
  jr $ra
`

var branchOps = map[string]string{
	"==": "beq", "!=": "bne", ">": "bgt", "<": "blt", ">=": "bge", "<=": "ble",
}

type mipsBackend struct {
	out      *bytes.Buffer
	prog     *ir.Program
	cfg      *config.Config
	resolver SignatureResolver
	f        *frame
}

// NewMIPSBackend returns a backend producing MIPS32 assembly for SPIM. The
// resolver, when not nil, must know every callee and is used to cross-check
// the arguments found before each CALL.
func NewMIPSBackend(resolver SignatureResolver) Backend {
	return &mipsBackend{resolver: resolver}
}

func (b *mipsBackend) Generate(prog *ir.Program, cfg *config.Config) (buf *bytes.Buffer, err error) {
	defer util.Recover(&err)
	if cfg == nil {
		cfg = config.NewConfig()
	}
	b.out, b.prog, b.cfg, b.f = new(bytes.Buffer), prog, cfg, nil
	b.out.WriteString(runtime)
	for i, in := range prog.Code {
		if in.Op != ir.OpFunction && b.f == nil {
			util.Internal("%s outside of a function", in)
		}
		b.gen(i, in)
	}
	return b.out, nil
}

func (b *mipsBackend) comment(format string, args ...any) {
	if b.cfg.IsFeatureEnabled(config.FeatAsmComments) {
		fmt.Fprintf(b.out, "    #"+format+"\n", args...)
	}
}

func (b *mipsBackend) gen(i int, in *ir.Instruction) {
	if in.Op == ir.OpFunction {
		b.genFunction(i, in)
		return
	}
	f := b.f
	f.newInstruction()
	switch in.Op {
	case ir.OpLabel:
		fmt.Fprintf(b.out, "%s:\n", in.X())
	case ir.OpGoto:
		f.ins("j %s", in.X())
	case ir.OpReturn:
		r := f.checkVariable(in.X())
		f.ins("move $v0, %s", regNames[r])
		f.ins("jr $ra")
	case ir.OpParam, ir.OpArg, ir.OpArgAddr, ir.OpDec:
		// handled by FUNCTION and CALL
	case ir.OpRead:
		f.ins("addi $sp, $sp, -4")
		f.ins("sw $ra, 0($sp)")
		f.ins("jal read")
		f.ins("lw $ra, 0($sp)")
		f.ins("addi $sp, $sp, 4")
		r := f.writable(in.X())
		f.ins("move %s, $v0", regNames[r])
		f.store(in.X(), r)
	case ir.OpWrite:
		r := f.checkVariable(in.X())
		f.ins("addi $sp, $sp, -8")
		f.ins("sw $a0, 0($sp)")
		f.ins("sw $ra, 4($sp)")
		f.ins("move $a0, %s", regNames[r])
		f.ins("jal write")
		f.ins("lw $a0, 0($sp)")
		f.ins("lw $ra, 4($sp)")
		f.ins("addi $sp, $sp, 8")
	case ir.OpAssign:
		l := f.writable(in.Result)
		if y := in.X(); y.Kind == ir.Constant {
			f.ins("li %s, %d", regNames[l], y.Value)
		} else {
			f.ins("move %s, %s", regNames[l], regNames[f.checkVariable(y)])
		}
		f.store(in.Result, l)
	case ir.OpGetAddr:
		l := f.writable(in.Result)
		f.ins("lw %s, %d($gp)", regNames[l], f.slot(in.X().Name))
		f.store(in.Result, l)
	case ir.OpReadAddr:
		l := f.writable(in.Result)
		r := f.checkVariable(in.X())
		f.ins("lw %s, 0(%s)", regNames[l], regNames[r])
		f.store(in.Result, l)
	case ir.OpWriteAddr:
		l := f.checkVariable(in.Result)
		r := f.checkVariable(in.X())
		f.ins("sw %s, 0(%s)", regNames[r], regNames[l])
	case ir.OpCall:
		b.genCall(i, in)
	case ir.OpAdd, ir.OpAddAddr, ir.OpSub:
		b.genAddSub(in)
	case ir.OpMul:
		res := f.writable(in.Result)
		x, y := f.checkVariable(in.Args[0]), f.checkVariable(in.Args[1])
		f.ins("mul %s, %s, %s", regNames[res], regNames[x], regNames[y])
		f.store(in.Result, res)
	case ir.OpDiv:
		res := f.writable(in.Result)
		x, y := f.checkVariable(in.Args[0]), f.checkVariable(in.Args[1])
		f.ins("div %s, %s", regNames[x], regNames[y])
		f.ins("mflo %s", regNames[res])
		f.store(in.Result, res)
	case ir.OpIfGoto:
		op, ok := branchOps[in.Args[1].Name]
		if !ok {
			util.Internal("unknown relop %q", in.Args[1].Name)
		}
		x, y := f.checkVariable(in.Args[0]), f.checkVariable(in.Args[2])
		f.ins("%s %s, %s, %s", op, regNames[x], regNames[y], in.Args[3])
	default:
		util.Internal("no lowering for %s", in.Op)
	}
}

// genFunction resets the register state and reserves a slot below $gp for
// every named operand of the function body. Parameters sit above $gp where
// the caller stored them.
func (b *mipsBackend) genFunction(i int, in *ir.Instruction) {
	name := in.X().Name
	fmt.Fprintf(b.out, "\n%s:\n", name)
	f := newFrame(b.out)
	b.f = f
	f.ins("move $gp, $sp")

	j := i + 1
	argc := 0
	for ; j < b.prog.Len() && b.prog.At(j).Op == ir.OpParam; j++ {
		f.slots[b.prog.At(j).X().Name] = 8 + 4*argc
		argc++
	}
	if b.resolver != nil {
		if n, ok := b.resolver.ParamCount(name); ok && n != argc {
			util.Internal("%s declares %d parameters but has %d PARAM lines", name, n, argc)
		}
	}

	for ; j < b.prog.Len() && b.prog.At(j).Op != ir.OpFunction; j++ {
		next := b.prog.At(j)
		if next.Op == ir.OpDec {
			x := next.X()
			if _, ok := f.slots[x.Name]; ok {
				util.Internal("array %s is used before DEC", x.Name)
			}
			f.sp -= next.Size + 4
			f.ins("addi $sp, $sp, -%d", next.Size)
			f.ins("sw $sp, -4($sp)")
			f.ins("addi $sp, $sp, -4")
			f.slots[x.Name] = f.sp
			b.comment("allocate %d($gp) for array %s with base at %d($gp)", f.sp, x.Name, f.sp+4)
			continue
		}
		for _, op := range next.Named() {
			if _, ok := f.slots[op.Name]; ok {
				continue
			}
			f.ins("addi $sp, $sp, -4")
			f.sp -= 4
			f.slots[op.Name] = f.sp
			b.comment("allocate %d($gp) for %s", f.sp, op.Name)
		}
	}
}

// args returns the ARG instructions right before the CALL at index i, the
// first argument first
func (b *mipsBackend) args(i int) []ir.Operand {
	var out []ir.Operand
	for in := b.prog.Prev(i); in != nil && (in.Op == ir.OpArg || in.Op == ir.OpArgAddr); in = b.prog.Prev(i) {
		out = append(out, in.X())
		i--
	}
	return out
}

func (b *mipsBackend) genCall(i int, in *ir.Instruction) {
	f := b.f
	callee := in.X().Name
	args := b.args(i)
	if b.resolver != nil {
		n, ok := b.resolver.ParamCount(callee)
		if !ok {
			util.Internal("call to unknown function %s", callee)
		}
		if n != len(args) {
			util.Internal("call to %s passes %d arguments, want %d", callee, len(args), n)
		}
	}

	l := f.writable(in.Result)
	f.pusha()
	f.ins("addi $sp, $sp, -%d", 4*len(args))
	for k, a := range args {
		// ARG_ADDR passes the address itself
		r := f.checkVariable(a)
		f.ins("sw %s, %d($sp)", regNames[r], 4*k)
		if r != l {
			f.unpin(r)
		}
	}
	f.ins("addi $sp, $sp, -8")
	f.ins("sw $ra, 0($sp)")
	f.ins("sw $gp, 4($sp)")
	f.ins("jal %s", callee)
	f.ins("move $sp, $gp")
	f.ins("lw $ra, 0($sp)")
	f.ins("lw $gp, 4($sp)")
	f.ins("addi $sp, $sp, %d", 8+4*len(args))
	f.popa()
	f.ins("move %s, $v0", regNames[l])
	f.store(in.Result, l)
}

// genAddSub folds two constants and uses addi when one side is constant
func (b *mipsBackend) genAddSub(in *ir.Instruction) {
	f := b.f
	res := f.writable(in.Result)
	x, y := in.Args[0], in.Args[1]
	sub := in.Op == ir.OpSub
	switch {
	case x.Kind == ir.Constant && y.Kind == ir.Constant:
		v := x.Value + y.Value
		if sub {
			v = x.Value - y.Value
		}
		f.ins("li %s, %d", regNames[res], v)
	case y.Kind == ir.Constant:
		v := y.Value
		if sub {
			v = -v
		}
		f.ins("addi %s, %s, %d", regNames[res], regNames[f.checkVariable(x)], v)
	case x.Kind == ir.Constant && !sub:
		f.ins("addi %s, %s, %d", regNames[res], regNames[f.checkVariable(y)], x.Value)
	default:
		rx, ry := f.checkVariable(x), f.checkVariable(y)
		op := "add"
		if sub {
			op = "sub"
		}
		f.ins("%s %s, %s, %s", op, regNames[res], regNames[rx], regNames[ry])
	}
	f.store(in.Result, res)
}
