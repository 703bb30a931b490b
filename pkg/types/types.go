// Package types implements the C-- type system: type values, deep copy,
// equivalence and storage size.
package types

import (
	"fmt"
	"strings"

	"github.com/xplshn/cmmc/pkg/util"
)

// Kind discriminates the variants of a Type
type Kind int

const (
	Basic Kind = iota
	Array
	Struct
	Func
)

// BasicKind enumerates the scalar types
type BasicKind int

const (
	Bool BasicKind = iota
	Char
	Int
	Float
	Void
)

var basicNames = [...]string{Bool: "bool", Char: "char", Int: "int", Float: "float", Void: "void"}

func (b BasicKind) String() string { return basicNames[b] }

// FuncState records whether a function has only been declared or has a body
type FuncState int

const (
	Declared FuncState = iota
	Defined
)

// WordSize is the storage size of every basic type
const WordSize = 4

// Type is a tagged variant. Only the fields belonging to Kind are meaningful.
// A nil *Type stands for void, or for an error that was already reported.
type Type struct {
	Kind Kind

	Basic BasicKind // Basic

	Len  int   // Array
	Elem *Type // Array

	Name   string    // Struct; empty for anonymous structs
	Fields FieldList // Struct

	State  FuncState // Func
	Params FieldList // Func
	Return *Type     // Func
	Line   int       // Func, line of the latest declaration
}

// Field is one named member of a struct or one parameter of a function
type Field struct {
	Name    string
	Type    *Type
	IsParam bool
}

// FieldList is an insertion-ordered sequence of fields
type FieldList []*Field

func NewBasic(k BasicKind) *Type { return &Type{Kind: Basic, Basic: k} }
func NewArray(n int, elem *Type) *Type { return &Type{Kind: Array, Len: n, Elem: elem} }
func NewStruct(name string, fields FieldList) *Type {
	return &Type{Kind: Struct, Name: name, Fields: fields}
}

func NewFunc(state FuncState, params FieldList, ret *Type, line int) *Type {
	return &Type{Kind: Func, State: state, Params: params, Return: ret, Line: line}
}

// Copy returns a deep clone of t
func (t *Type) Copy() *Type {
	if t == nil {
		return nil
	}
	c := *t
	c.Elem = t.Elem.Copy()
	c.Fields = t.Fields.Copy()
	c.Params = t.Params.Copy()
	c.Return = t.Return.Copy()
	return &c
}

func (t *Type) IsBasic(k BasicKind) bool { return t != nil && t.Kind == Basic && t.Basic == k }
func (t *Type) IsVoid() bool { return t == nil || t.IsBasic(Void) }

// IsAggregate reports whether t is an array or a struct
func (t *Type) IsAggregate() bool { return t != nil && (t.Kind == Array || t.Kind == Struct) }

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case Basic:
		return t.Basic.String()
	case Array:
		dims := ""
		base := t
		for base != nil && base.Kind == Array {
			dims += fmt.Sprintf("[%d]", base.Len)
			base = base.Elem
		}
		return base.String() + dims
	case Struct:
		if t.Name != "" {
			return "struct " + t.Name
		}
		return "struct {" + t.Fields.String() + "}"
	case Func:
		return fmt.Sprintf("%s(%s)", t.Return, t.Params.String())
	}
	return "<bad type>"
}

// Copy deep-clones the list
func (fl FieldList) Copy() FieldList {
	if fl == nil {
		return nil
	}
	out := make(FieldList, len(fl))
	for i, f := range fl {
		out[i] = &Field{Name: f.Name, Type: f.Type.Copy(), IsParam: f.IsParam}
	}
	return out
}

// Lookup finds a field by name and returns it with its byte offset
func (fl FieldList) Lookup(name string) (*Field, int) {
	offset := 0
	for _, f := range fl {
		if f.Name == name {
			return f, offset
		}
		offset += Size(f.Type)
	}
	return nil, -1
}

func (fl FieldList) String() string {
	parts := make([]string, len(fl))
	for i, f := range fl {
		parts[i] = f.Type.String() + " " + f.Name
	}
	return strings.Join(parts, ", ")
}

// Size returns the storage size of t in bytes
func Size(t *Type) int {
	if t == nil {
		util.Internal("size of a void type")
	}
	switch t.Kind {
	case Basic:
		return WordSize
	case Array:
		return t.Len * Size(t.Elem)
	case Struct:
		size := 0
		for _, f := range t.Fields {
			size += Size(f.Type)
		}
		return size
	default:
		util.Internal("size of type %s", t)
		return 0
	}
}
