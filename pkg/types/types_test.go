package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
)

func point() *Type {
	return NewStruct("Point", FieldList{
		{Name: "x", Type: NewBasic(Int)},
		{Name: "y", Type: NewBasic(Int)},
	})
}

func TestEqualReflexive(t *testing.T) {
	all := []*Type{
		NewBasic(Int),
		NewBasic(Float),
		NewBasic(Char),
		NewArray(3, NewBasic(Int)),
		NewArray(2, NewArray(4, NewBasic(Float))),
		point(),
		NewFunc(Declared, FieldList{{Name: "a", Type: NewBasic(Int), IsParam: true}}, NewBasic(Int), 1),
	}
	for _, typ := range all {
		be.True(t, Equal(typ, typ))
		be.True(t, Equal(typ, typ.Copy()))
		be.True(t, Nominal.Equal(typ, typ.Copy()))
	}
}

func TestEqualSentinel(t *testing.T) {
	be.True(t, Equal(nil, nil))
	be.True(t, Equal(nil, NewBasic(Void)))
	be.True(t, Equal(NewBasic(Void), nil))
	be.True(t, !Equal(nil, NewBasic(Int)))
	be.True(t, !Equal(NewBasic(Int), nil))
}

func TestEqualKinds(t *testing.T) {
	be.True(t, !Equal(NewBasic(Int), NewBasic(Float)))
	be.True(t, !Equal(NewBasic(Int), NewArray(1, NewBasic(Int))))
	// length is ignored
	be.True(t, Equal(NewArray(3, NewBasic(Int)), NewArray(10, NewBasic(Int))))
	be.True(t, !Equal(NewArray(3, NewBasic(Int)), NewArray(3, NewBasic(Float))))
	be.True(t, !Equal(NewArray(3, NewBasic(Int)), NewArray(3, NewArray(3, NewBasic(Int)))))
}

func TestStructEquivalence(t *testing.T) {
	other := NewStruct("Pair", FieldList{
		{Name: "a", Type: NewBasic(Int)},
		{Name: "b", Type: NewBasic(Int)},
	})
	be.True(t, Equal(point(), other))
	be.True(t, Equal(other, point()))
	be.True(t, !Nominal.Equal(point(), other))

	anon := NewStruct("", FieldList{{Name: "p", Type: NewBasic(Int)}, {Name: "q", Type: NewBasic(Int)}})
	be.True(t, Nominal.Equal(anon, point()))

	short := NewStruct("Short", FieldList{{Name: "x", Type: NewBasic(Int)}})
	be.True(t, !Equal(point(), short))
}

func TestFuncEquivalence(t *testing.T) {
	params := func(name string) FieldList {
		return FieldList{{Name: name, Type: NewBasic(Int), IsParam: true}}
	}
	decl := NewFunc(Declared, params("a"), NewBasic(Int), 1)
	def := NewFunc(Defined, params("b"), NewBasic(Int), 2)
	be.True(t, Equal(decl, def))
	be.True(t, Equal(def, decl))
	be.True(t, !Equal(def, def.Copy()))
	be.True(t, Structural.SignatureEqual(def, def.Copy()))

	floatRet := NewFunc(Declared, params("a"), NewBasic(Float), 3)
	be.True(t, !Equal(decl, floatRet))
	noParams := NewFunc(Declared, nil, NewBasic(Int), 3)
	be.True(t, !Equal(decl, noParams))
}

func TestSize(t *testing.T) {
	be.Equal(t, Size(NewBasic(Int)), 4)
	be.Equal(t, Size(NewBasic(Char)), 4)
	be.Equal(t, Size(NewArray(10, NewBasic(Int))), 40)
	be.Equal(t, Size(NewArray(2, NewArray(3, NewBasic(Int)))), 24)
	be.Equal(t, Size(point()), 8)
	nested := NewStruct("Box", FieldList{
		{Name: "corner", Type: point()},
		{Name: "tags", Type: NewArray(5, NewBasic(Int))},
	})
	be.Equal(t, Size(nested), 28)
}

func TestSizeOfFunctionPanics(t *testing.T) {
	defer func() { be.True(t, recover() != nil) }()
	Size(NewFunc(Declared, nil, NewBasic(Int), 1))
}

func TestCopyIsDeep(t *testing.T) {
	orig := NewStruct("Box", FieldList{
		{Name: "corner", Type: point()},
		{Name: "tags", Type: NewArray(5, NewBasic(Int))},
	})
	dup := orig.Copy()
	if diff := cmp.Diff(orig, dup); diff != "" {
		t.Fatalf("copy differs (-orig +copy):\n%s", diff)
	}
	dup.Fields[0].Type.Fields[0].Name = "changed"
	dup.Fields[1].Type.Len = 9
	be.Equal(t, orig.Fields[0].Type.Fields[0].Name, "x")
	be.Equal(t, orig.Fields[1].Type.Len, 5)
}

func TestLookupOffset(t *testing.T) {
	fields := FieldList{
		{Name: "a", Type: NewBasic(Int)},
		{Name: "arr", Type: NewArray(3, NewBasic(Int))},
		{Name: "b", Type: NewBasic(Int)},
	}
	f, off := fields.Lookup("b")
	be.Equal(t, f.Name, "b")
	be.Equal(t, off, 16)
	f, off = fields.Lookup("missing")
	be.True(t, f == nil)
	be.Equal(t, off, -1)
}

func TestString(t *testing.T) {
	be.Equal(t, NewArray(2, NewArray(3, NewBasic(Int))).String(), "int[2][3]")
	be.Equal(t, point().String(), "struct Point")
	var void *Type
	be.Equal(t, void.String(), "void")
}
