package codegen

import (
	"fmt"
	"io"

	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/util"
)

var regNames = [...]string{
	"$0", "$at", "$v0", "$v1", "$a0", "$a1", "$a2", "$a3",
	"$t0", "$t1", "$t2", "$t3", "$t4", "$t5", "$t6", "$t7",
	"$s0", "$s1", "$s2", "$s3", "$s4", "$s5", "$s6", "$s7",
	"$t8", "$t9", "$k0", "$k1", "$gp", "$sp", "$fp", "$ra",
}

const (
	regZero = 0
	// registers 8 ($t0) to 25 ($t9), $s0-$s7 included, saved around every call
	firstReg = 8
	lastReg  = 25
	// bytes pushed to save the allocatable registers
	saveArea = (lastReg - firstReg + 1) * 4
)

// binding records what an allocatable register currently holds
type binding struct {
	used    bool
	isConst bool
	name    string // variable name when !isConst
}

// frame tracks one function: where each named operand lives in memory and
// which operand each register caches. Memory is always up to date, so
// dropping a binding never needs a spill.
type frame struct {
	out   io.Writer
	slots map[string]int // $gp relative offset
	sp    int            // frame size so far, as a negative offset

	regs        [len(regNames)]binding
	pinned      [len(regNames)]bool // read or written by the current instruction
	order       []int               // bound registers, oldest first
	lastChanged int
}

func newFrame(out io.Writer) *frame {
	return &frame{out: out, slots: make(map[string]int)}
}

func (f *frame) ins(format string, args ...any) {
	fmt.Fprintf(f.out, "  "+format+"\n", args...)
}

func (f *frame) slot(name string) int {
	off, ok := f.slots[name]
	if !ok {
		util.Internal("%s has no stack slot", name)
	}
	return off
}

// newInstruction releases the pins of the previous instruction
func (f *frame) newInstruction() { f.pinned = [len(regNames)]bool{} }

// unpin lets a register be reused before the current instruction ends,
// once its value has been consumed
func (f *frame) unpin(r int) {
	if r != regZero {
		f.pinned[r] = false
	}
}

func (f *frame) bind(r int, b binding) int {
	f.regs[r] = b
	f.pinned[r] = true
	for i, o := range f.order {
		if o == r {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	f.order = append(f.order, r)
	return r
}

func (f *frame) evictable(r int) bool { return r != f.lastChanged && !f.pinned[r] }

// allocReg picks a register for b: a free one if any, else the oldest
// register caching a constant, else the oldest caching a variable.
func (f *frame) allocReg(b binding) int {
	b.used = true
	for r := firstReg; r <= lastReg; r++ {
		if !f.regs[r].used {
			return f.bind(r, b)
		}
	}
	for _, wantConst := range []bool{true, false} {
		for _, r := range f.order {
			if f.regs[r].isConst == wantConst && f.evictable(r) {
				f.lastChanged = r
				return f.bind(r, b)
			}
		}
	}
	util.Internal("out of registers")
	return 0
}

// lookup returns the register already caching a variable, or -1
func (f *frame) lookup(name string) int {
	for r := firstReg; r <= lastReg; r++ {
		if b := f.regs[r]; b.used && !b.isConst && b.name == name {
			return r
		}
	}
	return -1
}

// checkVariable brings op into a register. Constants get a fresh register
// each time, except 0 which is read from $0. Variables are always reloaded
// from their slot since a label may join paths that cached different values.
func (f *frame) checkVariable(op ir.Operand) int {
	if op.Kind == ir.Constant {
		if op.Value == 0 {
			return regZero
		}
		r := f.allocReg(binding{isConst: true})
		f.ins("li %s, %d", regNames[r], op.Value)
		return r
	}
	if !op.IsNamed() {
		util.Internal("%s operand %s in a register", op.Kind, op)
	}
	off := f.slot(op.Name)
	r := f.lookup(op.Name)
	if r < 0 {
		r = f.allocReg(binding{name: op.Name})
	}
	f.pinned[r] = true
	f.ins("lw %s, %d($gp)", regNames[r], off)
	return r
}

// writable is checkVariable for a destination: constant 0 must not come
// back as $0
func (f *frame) writable(op ir.Operand) int {
	r := f.checkVariable(op)
	if r == regZero {
		util.Internal("writing to constant %s", op)
	}
	return r
}

// store writes a register back to the home slot of op
func (f *frame) store(op ir.Operand, r int) {
	f.ins("sw %s, %d($gp)", regNames[r], f.slot(op.Name))
}

func (f *frame) pusha() {
	f.ins("addi $sp, $sp, -%d", saveArea)
	for r := firstReg; r <= lastReg; r++ {
		f.ins("sw %s, %d($sp)", regNames[r], (r-firstReg)*4)
	}
}

func (f *frame) popa() {
	for r := firstReg; r <= lastReg; r++ {
		f.ins("lw %s, %d($sp)", regNames[r], (r-firstReg)*4)
	}
	f.ins("addi $sp, $sp, %d", saveArea)
}
