package types

// Equivalence selects how struct types are compared
type Equivalence int

const (
	// Structural compares structs field by field
	Structural Equivalence = iota
	// Nominal compares structs by tag; untagged structs fall back to Structural
	Nominal
)

// Equal compares a and b with structural struct equivalence
func Equal(a, b *Type) bool { return Structural.Equal(a, b) }

// Equal reports whether a and b denote the same type.
// nil equals nil and any void. Arrays ignore their length. Two function
// types that are both defined never compare equal.
func (e Equivalence) Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a.IsVoid() && b.IsVoid()
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Basic:
		return a.Basic == b.Basic
	case Array:
		return e.Equal(a.Elem, b.Elem)
	case Struct:
		if e == Nominal && a.Name != "" && b.Name != "" {
			return a.Name == b.Name
		}
		return e.FieldsEqual(a.Fields, b.Fields)
	case Func:
		if a.State == Defined && b.State == Defined {
			return false
		}
		return e.SignatureEqual(a, b)
	}
	return false
}

// FieldsEqual compares two field lists pairwise by type, ignoring names
func (e Equivalence) FieldsEqual(a, b FieldList) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !e.Equal(a[i].Type, b[i].Type) {
			return false
		}
	}
	return true
}

// SignatureEqual compares arity, parameter types and return type of two
// function types regardless of their state
func (e Equivalence) SignatureEqual(a, b *Type) bool {
	return e.Equal(a.Return, b.Return) && e.FieldsEqual(a.Params, b.Params)
}
