// Package symtab resolves C-- names. Entries live in an arena and take part
// in two index-linked chains at once: the hash chain of their name's bucket,
// used for lookup, and the scope chain of the depth they were declared at,
// used to close a scope in one sweep. Closing a scope only unlinks the scope
// chain, so names stay resolvable by later phases.
package symtab

import (
	"fmt"
	"io"

	"github.com/xplshn/cmmc/pkg/types"
	"github.com/xplshn/cmmc/pkg/util"
)

const (
	nilIndex       = -1
	initialBuckets = 64
	maxLoad        = 2
)

// Entry is one declared name
type Entry struct {
	Name        string
	Type        *types.Type
	Depth       int
	GenName     string // identifier used in the IR; empty for struct tags
	IsParam     bool
	IsStructDef bool
	Line        int

	index                int
	hashPrev, hashNext   int
	scopePrev, scopeNext int
	inScope, removed     bool
	inTable              bool
}

// Visible reports whether e still belongs to an open scope
func (e *Entry) Visible() bool { return e.inScope }

type Table struct {
	entries []*Entry
	buckets []int
	scopes  []int // head of the scope chain per depth
	depth   int
	hashed  int
	anon    int
	funcs   map[string]*Entry
}

// New returns a table holding the built-in read and write functions
func New() *Table {
	t := &Table{
		buckets: make([]int, initialBuckets),
		scopes:  []int{nilIndex},
		funcs:   make(map[string]*Entry),
	}
	for i := range t.buckets {
		t.buckets[i] = nilIndex
	}

	intType := types.NewBasic(types.Int)
	read := types.NewFunc(types.Defined, nil, intType.Copy(), 0)
	write := types.NewFunc(types.Defined, types.FieldList{{Name: "arg1", Type: intType.Copy(), IsParam: true}}, intType.Copy(), 0)
	t.Insert(&Entry{Name: "read", Type: read, GenName: "read"})
	t.Insert(&Entry{Name: "write", Type: write, GenName: "write"})
	return t
}

// hash folds name into a bucket index. mask is len(buckets)-1.
func hash(name string, mask uint32) uint32 {
	var val uint32
	for i := 0; i < len(name); i++ {
		val = (val << 2) + uint32(name[i])
		if hi := val &^ mask; hi != 0 {
			val = (val ^ (hi >> 12)) & mask
		}
	}
	return val & mask
}

func (t *Table) bucketOf(name string) int {
	return int(hash(name, uint32(len(t.buckets)-1)))
}

func (t *Table) Depth() int { return t.depth }

// Lookup returns the most recently inserted entry called name, whether or
// not its scope is still open
func (t *Table) Lookup(name string) *Entry {
	for i := t.buckets[t.bucketOf(name)]; i != nilIndex; i = t.entries[i].hashNext {
		if t.entries[i].Name == name {
			return t.entries[i]
		}
	}
	return nil
}

// Resolve is Lookup restricted to entries whose scope is open
func (t *Table) Resolve(name string) *Entry {
	for i := t.buckets[t.bucketOf(name)]; i != nilIndex; i = t.entries[i].hashNext {
		if e := t.entries[i]; e.Name == name && e.inScope {
			return e
		}
	}
	return nil
}

// Conflicts reports whether declaring candidate at the current depth clashes
// with an existing entry. Struct tags share one namespace with every visible
// name and are never released; other names clash within one depth.
func (t *Table) Conflicts(candidate *Entry) bool {
	if t.depth != 0 && candidate.Type != nil && candidate.Type.Kind == types.Func {
		util.Internal("function %q declared at depth %d", candidate.Name, t.depth)
	}
	for i := t.buckets[t.bucketOf(candidate.Name)]; i != nilIndex; i = t.entries[i].hashNext {
		prev := t.entries[i]
		if prev.Name != candidate.Name {
			continue
		}
		if prev.IsStructDef {
			return true
		}
		if prev.inScope && (candidate.IsStructDef || prev.Depth == t.depth) {
			return true
		}
	}
	return false
}

// Shadows returns the visible entry from an outer depth that a declaration
// of name at the current depth would hide
func (t *Table) Shadows(name string) *Entry {
	if e := t.Resolve(name); e != nil && e.Depth < t.depth && !e.IsStructDef {
		return e
	}
	return nil
}

// Insert links e at the head of its hash chain and of the current scope chain
func (t *Table) Insert(e *Entry) {
	if e.inTable {
		util.Internal("entry %q inserted twice", e.Name)
	}
	e.inTable = true
	e.index = len(t.entries)
	e.Depth = t.depth
	t.entries = append(t.entries, e)

	if t.hashed+1 > maxLoad*len(t.buckets) {
		t.grow()
	}
	t.linkHash(e)
	t.hashed++

	e.scopePrev = nilIndex
	e.scopeNext = t.scopes[t.depth]
	if e.scopeNext != nilIndex {
		t.entries[e.scopeNext].scopePrev = e.index
	}
	t.scopes[t.depth] = e.index
	e.inScope = true

	if e.Type != nil && e.Type.Kind == types.Func && e.GenName != "" {
		t.funcs[e.GenName] = e
	}
}

func (t *Table) linkHash(e *Entry) {
	b := t.bucketOf(e.Name)
	e.hashPrev = nilIndex
	e.hashNext = t.buckets[b]
	if e.hashNext != nilIndex {
		t.entries[e.hashNext].hashPrev = e.index
	}
	t.buckets[b] = e.index
}

// grow doubles the bucket count. Entries are relinked oldest first so every
// chain keeps its most-recent-first order.
func (t *Table) grow() {
	t.buckets = make([]int, 2*len(t.buckets))
	for i := range t.buckets {
		t.buckets[i] = nilIndex
	}
	for _, e := range t.entries {
		if !e.removed && e.index < len(t.entries)-1 {
			t.linkHash(e)
		}
	}
}

// Remove unlinks e from both chains
func (t *Table) Remove(e *Entry) {
	if !e.inTable || e.removed {
		util.Internal("removing unknown entry %q", e.Name)
	}
	if e.hashNext != nilIndex {
		t.entries[e.hashNext].hashPrev = e.hashPrev
	}
	if e.hashPrev != nilIndex {
		t.entries[e.hashPrev].hashNext = e.hashNext
	} else {
		t.buckets[t.bucketOf(e.Name)] = e.hashNext
	}
	t.hashed--
	t.unlinkScope(e)
	e.removed = true
	if t.funcs[e.GenName] == e {
		delete(t.funcs, e.GenName)
	}
}

func (t *Table) unlinkScope(e *Entry) {
	if !e.inScope {
		return
	}
	if e.scopeNext != nilIndex {
		t.entries[e.scopeNext].scopePrev = e.scopePrev
	}
	if e.scopePrev != nilIndex {
		t.entries[e.scopePrev].scopeNext = e.scopeNext
	} else {
		t.scopes[e.Depth] = e.scopeNext
	}
	e.scopePrev, e.scopeNext = nilIndex, nilIndex
	e.inScope = false
}

func (t *Table) OpenScope() {
	t.depth++
	if t.depth == len(t.scopes) {
		t.scopes = append(t.scopes, nilIndex)
	}
	t.scopes[t.depth] = nilIndex
}

// CloseScope unlinks every entry declared at the current depth from its
// scope chain and returns to the enclosing depth
func (t *Table) CloseScope() {
	if t.depth == 0 {
		util.Internal("closing the outermost scope")
	}
	for i := t.scopes[t.depth]; i != nilIndex; {
		e := t.entries[i]
		i = e.scopeNext
		e.scopePrev, e.scopeNext = nilIndex, nilIndex
		e.inScope = false
	}
	t.scopes[t.depth] = nilIndex
	t.depth--
}

// ScopeEntries lists the entries still linked at depth, newest first
func (t *Table) ScopeEntries(depth int) []*Entry {
	if depth < 0 || depth >= len(t.scopes) {
		return nil
	}
	var out []*Entry
	for i := t.scopes[depth]; i != nilIndex; i = t.entries[i].scopeNext {
		out = append(out, t.entries[i])
	}
	return out
}

// NextAnonStruct returns a fresh name for an untagged struct. The leading
// digit keeps it out of the identifier namespace.
func (t *Table) NextAnonStruct() string {
	t.anon++
	return fmt.Sprintf("%d", t.anon)
}

// DeclaredOnly returns, in declaration order, the functions that were
// declared but never defined
func (t *Table) DeclaredOnly() []*Entry {
	var out []*Entry
	for _, e := range t.entries {
		if !e.removed && e.Type != nil && e.Type.Kind == types.Func && e.Type.State == types.Declared {
			out = append(out, e)
		}
	}
	return out
}

// ParamCount returns the arity of the function whose IR name is genName
func (t *Table) ParamCount(genName string) (int, bool) {
	e, ok := t.funcs[genName]
	if !ok {
		return 0, false
	}
	return len(e.Type.Params), true
}

// Entries returns every live entry in insertion order
func (t *Table) Entries() []*Entry {
	out := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if !e.removed {
			out = append(out, e)
		}
	}
	return out
}

// WriteTo prints the table for --symbols
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, e := range t.Entries() {
		kind := "var"
		switch {
		case e.IsStructDef:
			kind = "struct"
		case e.Type != nil && e.Type.Kind == types.Func:
			kind = "func"
		case e.IsParam:
			kind = "param"
		}
		gen := e.GenName
		if gen == "" {
			gen = "-"
		}
		c, err := fmt.Fprintf(w, "%-8s %-12s %-12s depth=%d line=%d %s\n", kind, e.Name, gen, e.Depth, e.Line, e.Type)
		n += int64(c)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
