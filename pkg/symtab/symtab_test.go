package symtab

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/cmmc/pkg/types"
)

func intVar(name string) *Entry {
	return &Entry{Name: name, Type: types.NewBasic(types.Int), GenName: "t_" + name}
}

func names(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestBuiltins(t *testing.T) {
	tab := New()
	read := tab.Lookup("read")
	be.True(t, read != nil)
	be.Equal(t, read.Type.State, types.Defined)
	be.Equal(t, read.Depth, 0)

	n, ok := tab.ParamCount("write")
	be.True(t, ok)
	be.Equal(t, n, 1)
	n, ok = tab.ParamCount("read")
	be.True(t, ok)
	be.Equal(t, n, 0)
	_, ok = tab.ParamCount("f_missing")
	be.True(t, !ok)
}

func TestLookupMostRecentFirst(t *testing.T) {
	tab := New()
	outer := intVar("x")
	tab.Insert(outer)
	tab.OpenScope()
	inner := intVar("x")
	tab.Insert(inner)
	be.Equal(t, tab.Lookup("x"), inner)
	be.Equal(t, tab.Resolve("x"), inner)
	tab.CloseScope()

	// closed entries stay reachable by name, but not visible
	be.Equal(t, tab.Lookup("x"), inner)
	be.Equal(t, tab.Resolve("x"), outer)
	be.True(t, tab.Lookup("y") == nil)
}

func TestScopeRetention(t *testing.T) {
	tab := New()
	for depth := 1; depth <= 3; depth++ {
		tab.OpenScope()
		for i := 0; i < depth; i++ {
			tab.Insert(intVar(fmt.Sprintf("v%d_%d", depth, i)))
		}
		be.Equal(t, len(tab.ScopeEntries(depth)), depth)
	}
	for tab.Depth() > 0 {
		tab.CloseScope()
	}
	for depth := 1; depth <= 3; depth++ {
		be.Equal(t, len(tab.ScopeEntries(depth)), 0)
		for i := 0; i < depth; i++ {
			e := tab.Lookup(fmt.Sprintf("v%d_%d", depth, i))
			be.True(t, e != nil)
			be.True(t, !e.Visible())
			be.Equal(t, e.Depth, depth)
		}
	}
	be.Equal(t, names(tab.ScopeEntries(0)), []string{"write", "read"})
}

func TestConflicts(t *testing.T) {
	tab := New()
	tab.OpenScope()
	tab.Insert(intVar("x"))
	be.True(t, tab.Conflicts(intVar("x")))
	be.True(t, !tab.Conflicts(intVar("y")))

	// shadowing in a nested block is fine
	tab.OpenScope()
	be.True(t, !tab.Conflicts(intVar("x")))
	be.Equal(t, tab.Shadows("x").Depth, 1)
	tab.CloseScope()
	tab.CloseScope()

	// sibling scopes do not clash with closed entries
	tab.OpenScope()
	be.True(t, !tab.Conflicts(intVar("x")))
	tab.CloseScope()
}

func TestStructConflicts(t *testing.T) {
	tab := New()
	tab.OpenScope()
	tab.Insert(&Entry{Name: "P", Type: types.NewStruct("P", nil), IsStructDef: true})
	tab.CloseScope()

	// struct tags are never released
	be.True(t, tab.Conflicts(&Entry{Name: "P", Type: types.NewStruct("P", nil), IsStructDef: true}))
	be.True(t, tab.Conflicts(intVar("P")))

	tab.Insert(intVar("q"))
	be.True(t, tab.Conflicts(&Entry{Name: "q", Type: types.NewStruct("q", nil), IsStructDef: true}))
}

func TestNestedFunctionIsInternalError(t *testing.T) {
	tab := New()
	tab.OpenScope()
	defer func() { be.True(t, recover() != nil) }()
	tab.Conflicts(&Entry{Name: "g", Type: types.NewFunc(types.Declared, nil, nil, 1)})
}

func TestRemove(t *testing.T) {
	tab := New()
	a, b, c := intVar("a"), intVar("b"), intVar("c")
	tab.Insert(a)
	tab.Insert(b)
	tab.Insert(c)
	tab.Remove(b)
	be.True(t, tab.Lookup("b") == nil)
	be.Equal(t, names(tab.ScopeEntries(0)), []string{"c", "a", "write", "read"})

	tab.Remove(c)
	be.Equal(t, names(tab.ScopeEntries(0)), []string{"a", "write", "read"})
	be.Equal(t, tab.Lookup("a"), a)
}

func TestGrowKeepsOrder(t *testing.T) {
	tab := New()
	first := intVar("dup")
	tab.Insert(first)
	for i := 0; i < 1000; i++ {
		tab.Insert(intVar(fmt.Sprintf("n%d", i)))
	}
	second := intVar("dup")
	tab.OpenScope()
	tab.Insert(second)
	be.True(t, len(tab.buckets) > initialBuckets)
	be.Equal(t, tab.Lookup("dup"), second)
	for i := 0; i < 1000; i += 97 {
		be.True(t, tab.Lookup(fmt.Sprintf("n%d", i)) != nil)
	}
}

func TestHashStaysInRange(t *testing.T) {
	for _, name := range []string{"", "a", "main", strings.Repeat("z", 200)} {
		be.True(t, hash(name, 63) < 64)
	}
}

func TestDeclaredOnly(t *testing.T) {
	tab := New()
	f := &Entry{Name: "f", GenName: "f_f", Type: types.NewFunc(types.Declared, nil, types.NewBasic(types.Int), 3)}
	g := &Entry{Name: "g", GenName: "f_g", Type: types.NewFunc(types.Defined, nil, types.NewBasic(types.Int), 4)}
	h := &Entry{Name: "h", GenName: "f_h", Type: types.NewFunc(types.Declared, nil, types.NewBasic(types.Int), 5)}
	tab.Insert(f)
	tab.Insert(g)
	tab.Insert(h)
	be.Equal(t, names(tab.DeclaredOnly()), []string{"f", "h"})
}

func TestAnonStructNames(t *testing.T) {
	tab := New()
	be.Equal(t, tab.NextAnonStruct(), "1")
	be.Equal(t, tab.NextAnonStruct(), "2")
}

func TestWriteTo(t *testing.T) {
	tab := New()
	tab.Insert(intVar("x"))
	var buf bytes.Buffer
	_, err := tab.WriteTo(&buf)
	be.Err(t, err, nil)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	be.Equal(t, len(lines), 3)
	be.True(t, strings.HasPrefix(lines[0], "func     read"))
	be.True(t, strings.Contains(lines[2], "t_x"))
	be.True(t, strings.HasSuffix(lines[2], "int"))
}
