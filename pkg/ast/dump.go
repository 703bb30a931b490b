package ast

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xplshn/cmmc/pkg/token"
)

// Dump prints the tree two spaces per level. Non-terminals carry their line
// in parentheses; terminals print their value, and their line too when
// tokenLines is set.
func Dump(w io.Writer, root *Node, tokenLines bool) error {
	bw := bufio.NewWriter(w)
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		bw.WriteString(strings.Repeat("  ", depth))
		bw.WriteString(n.Type.String())
		if !n.Type.IsTerminal() {
			fmt.Fprintf(bw, " (%d)\n", n.Line)
		} else {
			switch n.Type {
			case token.ID, token.TypeKw, token.Relop:
				bw.WriteString(": " + n.Value)
			case token.Int:
				fmt.Fprintf(bw, ": %d", n.IntValue())
			case token.Float:
				fmt.Fprintf(bw, ": %f", n.FloatValue())
			case token.Char:
				fmt.Fprintf(bw, ": '%s'", n.Value)
			}
			if tokenLines {
				fmt.Fprintf(bw, " (%d)", n.Line)
			}
			bw.WriteByte('\n')
		}
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	if root != nil {
		walk(root, 0)
	}
	return bw.Flush()
}

// Read parses the output of Dump back into a tree. Terminals without an
// explicit line take the line of their parent.
func Read(r io.Reader) (*Node, error) {
	var root *Node
	var stack []*Node
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		body := strings.TrimLeft(text, " ")
		indent := len(text) - len(body)
		if indent%2 != 0 {
			return nil, fmt.Errorf("tree line %d: odd indentation", lineNo)
		}
		depth := indent / 2

		n, err := parseDumpLine(body)
		if err != nil {
			return nil, fmt.Errorf("tree line %d: %w", lineNo, err)
		}

		switch {
		case depth == 0 && root == nil:
			root = n
		case depth == 0 || depth > len(stack):
			return nil, fmt.Errorf("tree line %d: unexpected depth %d", lineNo, depth)
		default:
			parent := stack[depth-1]
			if parent.Type.IsTerminal() {
				return nil, fmt.Errorf("tree line %d: terminal %s cannot have children", lineNo, parent.Type)
			}
			if n.Line == 0 {
				n.Line = parent.Line
			}
			parent.Add(n)
		}
		stack = append(stack[:depth], n)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("empty tree")
	}
	return root, nil
}

func parseDumpLine(body string) (*Node, error) {
	line := 0
	if strings.HasSuffix(body, ")") {
		if i := strings.LastIndex(body, " ("); i >= 0 {
			if v, err := strconv.Atoi(body[i+2 : len(body)-1]); err == nil {
				line, body = v, body[:i]
			}
		}
	}

	name, value, hasValue := strings.Cut(body, ": ")
	typ, ok := token.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown symbol %q", name)
	}
	n := &Node{Type: typ, Line: line}
	if !typ.IsTerminal() && line == 0 {
		return nil, fmt.Errorf("%s has no line number", name)
	}

	switch typ {
	case token.ID, token.TypeKw, token.Relop, token.Int, token.Float:
		if !hasValue || value == "" {
			return nil, fmt.Errorf("%s has no value", name)
		}
		n.Value = value
	case token.Char:
		if len(value) < 3 || value[0] != '\'' || value[len(value)-1] != '\'' {
			return nil, fmt.Errorf("malformed CHAR value %q", value)
		}
		n.Value = value[1 : len(value)-1]
	}
	return n, nil
}
