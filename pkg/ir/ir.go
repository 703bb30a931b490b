// Package ir defines the three-address code produced from a checked C--
// tree and consumed by the code generator.
package ir

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xplshn/cmmc/pkg/types"
	"github.com/xplshn/cmmc/pkg/util"
)

type OperandKind int

const (
	Variable OperandKind = iota
	Constant
	Address // a computed location that must be loaded or stored explicitly
	Label
	Function
	Relop
)

var operandKindNames = [...]string{
	Variable: "variable", Constant: "constant", Address: "address",
	Label: "label", Function: "function", Relop: "relop",
}

func (k OperandKind) String() string { return operandKindNames[k] }

// Operand is a value. Instructions keep their own copies, so rewriting an
// operand after it was emitted never changes printed code.
type Operand struct {
	Kind     OperandKind
	Name     string      // every kind but Constant
	Value    int         // Constant
	ElemType *types.Type // element type when the operand is an array base
}

func NewVar(name string) Operand       { return Operand{Kind: Variable, Name: name} }
func NewConst(v int) Operand           { return Operand{Kind: Constant, Value: v} }
func NewAddr(name string) Operand      { return Operand{Kind: Address, Name: name} }
func NewLabel(name string) Operand     { return Operand{Kind: Label, Name: name} }
func NewFunc(name string) Operand      { return Operand{Kind: Function, Name: name} }
func NewRelop(spelling string) Operand { return Operand{Kind: Relop, Name: spelling} }

// IsNamed reports whether o lives in a stack slot
func (o Operand) IsNamed() bool { return o.Kind == Variable || o.Kind == Address }

func (o Operand) String() string {
	if o.Kind == Constant {
		return fmt.Sprintf("#%d", o.Value)
	}
	return o.Name
}

type Op int

const (
	// one operand
	OpLabel Op = iota
	OpFunction
	OpGoto
	OpReturn
	OpParam
	OpArg
	OpArgAddr
	OpRead
	OpWrite
	// x := y
	OpAssign
	OpCall
	OpGetAddr
	OpReadAddr
	OpWriteAddr
	// x := y op z
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpAddAddr
	// IF x relop y GOTO z
	OpIfGoto
	// DEC x size
	OpDec
)

type shape int

const (
	unary shape = iota
	assign
	binary
	ifGoto
	dec
)

var opShapes = [...]shape{
	OpLabel: unary, OpFunction: unary, OpGoto: unary, OpReturn: unary, OpParam: unary,
	OpArg: unary, OpArgAddr: unary, OpRead: unary, OpWrite: unary,
	OpAssign: assign, OpCall: assign, OpGetAddr: assign, OpReadAddr: assign, OpWriteAddr: assign,
	OpAdd: binary, OpSub: binary, OpMul: binary, OpDiv: binary, OpAddAddr: binary,
	OpIfGoto: ifGoto,
	OpDec:    dec,
}

var opNames = [...]string{
	OpLabel: "LABEL", OpFunction: "FUNCTION", OpGoto: "GOTO", OpReturn: "RETURN", OpParam: "PARAM",
	OpArg: "ARG", OpArgAddr: "ARG_ADDR", OpRead: "READ", OpWrite: "WRITE",
	OpAssign: "ASSIGN", OpCall: "CALL", OpGetAddr: "GET_ADDR", OpReadAddr: "READ_ADDR", OpWriteAddr: "WRITE_ADDR",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpAddAddr: "ADD_ADDR",
	OpIfGoto: "IF_GOTO", OpDec: "DEC",
}

func (op Op) String() string { return opNames[op] }

// Instruction is one line of IR. Result is the written operand of the
// assign and binary forms. Args holds, in printed order, x for the one
// operand forms and DEC, y for the assign forms, y and z for the binary
// forms, and x, relop, y, target for IF_GOTO.
type Instruction struct {
	Op     Op
	Result Operand
	Args   []Operand
	Size   int // DEC
}

func expectShape(op Op, s shape) {
	if op < 0 || int(op) >= len(opShapes) || opShapes[op] != s {
		util.Internal("malformed %s instruction", op)
	}
}

func NewUnary(op Op, x Operand) *Instruction {
	expectShape(op, unary)
	return &Instruction{Op: op, Args: []Operand{x}}
}

func NewAssign(op Op, left, right Operand) *Instruction {
	expectShape(op, assign)
	return &Instruction{Op: op, Result: left, Args: []Operand{right}}
}

func NewBinary(op Op, result, x, y Operand) *Instruction {
	expectShape(op, binary)
	return &Instruction{Op: op, Result: result, Args: []Operand{x, y}}
}

func NewIfGoto(x Operand, relop string, y, target Operand) *Instruction {
	return &Instruction{Op: OpIfGoto, Args: []Operand{x, NewRelop(relop), y, target}}
}

func NewDec(x Operand, size int) *Instruction {
	if size <= 0 {
		util.Internal("DEC %s with size %d", x, size)
	}
	return &Instruction{Op: OpDec, Args: []Operand{x}, Size: size}
}

// X returns the single operand of a one operand or DEC instruction
func (in *Instruction) X() Operand { return in.Args[0] }

// Defines returns the operand an instruction writes to a stack slot, if any.
// WRITE_ADDR stores through its target and so defines nothing.
func (in *Instruction) Defines() (Operand, bool) {
	switch in.Op {
	case OpRead, OpDec:
		return in.Args[0], true
	case OpAssign, OpCall, OpGetAddr, OpReadAddr, OpAdd, OpSub, OpMul, OpDiv, OpAddAddr:
		return in.Result, true
	}
	return Operand{}, false
}

// Named returns the operands of in that live in stack slots, the written
// operand first
func (in *Instruction) Named() []Operand {
	var out []Operand
	if s := opShapes[in.Op]; s == assign || s == binary {
		out = append(out, in.Result)
	}
	for _, a := range in.Args {
		if a.IsNamed() {
			out = append(out, a)
		}
	}
	return out
}

func (in *Instruction) String() string {
	a := in.Args
	switch in.Op {
	case OpLabel:
		return fmt.Sprintf("LABEL %s :", a[0])
	case OpFunction:
		return fmt.Sprintf("FUNCTION %s :", a[0])
	case OpArg, OpArgAddr:
		return "ARG " + a[0].String()
	case OpGoto, OpReturn, OpParam, OpRead, OpWrite:
		return in.Op.String() + " " + a[0].String()
	case OpAssign:
		return fmt.Sprintf("%s := %s", in.Result, a[0])
	case OpCall:
		return fmt.Sprintf("%s := CALL %s", in.Result, a[0])
	case OpGetAddr:
		return fmt.Sprintf("%s := &%s", in.Result, a[0])
	case OpReadAddr:
		return fmt.Sprintf("%s := *%s", in.Result, a[0])
	case OpWriteAddr:
		return fmt.Sprintf("*%s := %s", in.Result, a[0])
	case OpAdd, OpAddAddr:
		return fmt.Sprintf("%s := %s + %s", in.Result, a[0], a[1])
	case OpSub:
		return fmt.Sprintf("%s := %s - %s", in.Result, a[0], a[1])
	case OpMul:
		return fmt.Sprintf("%s := %s * %s", in.Result, a[0], a[1])
	case OpDiv:
		return fmt.Sprintf("%s := %s / %s", in.Result, a[0], a[1])
	case OpIfGoto:
		return fmt.Sprintf("IF %s %s %s GOTO %s", a[0], a[1], a[2], a[3])
	case OpDec:
		return fmt.Sprintf("DEC %s %d", a[0], in.Size)
	}
	util.Internal("unknown IR op %d", in.Op)
	return ""
}

// Program is the instruction sequence of a whole translation unit.
// Instructions are addressed by index so that the code generator can look
// behind a CALL for its arguments and ahead of a FUNCTION for its frame.
type Program struct {
	Code []*Instruction
}

func (p *Program) Emit(in *Instruction) { p.Code = append(p.Code, in) }

func (p *Program) Len() int { return len(p.Code) }

// At returns the i-th instruction, or nil outside the program
func (p *Program) At(i int) *Instruction {
	if i < 0 || i >= len(p.Code) {
		return nil
	}
	return p.Code[i]
}

func (p *Program) Prev(i int) *Instruction { return p.At(i - 1) }
func (p *Program) Next(i int) *Instruction { return p.At(i + 1) }

// WriteTo prints one instruction per line
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, in := range p.Code {
		c, err := io.WriteString(w, in.String()+"\n")
		n += int64(c)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (p *Program) String() string {
	var buf bytes.Buffer
	p.WriteTo(&buf)
	return buf.String()
}
