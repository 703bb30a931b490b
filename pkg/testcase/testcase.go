// Package testcase extracts compiler scenarios from Markdown files. A
// scenario starts at a "Test: <name>" heading and holds one input fence
// followed by assertion fences:
//
//	## Test: sum
//	```cmm
//	int main() { return 1 + 2; }
//	```
//	```ir
//	FUNCTION main :
//	...
//	```
package testcase

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type InputType string

const (
	InputSource InputType = "cmm"  // C-- source text
	InputTree   InputType = "tree" // a syntax tree dump
)

type AssertionType string

const (
	AssertErrors AssertionType = "errors" // every diagnostic, in order
	AssertDump   AssertionType = "dump"   // the syntax tree dump
	AssertIR     AssertionType = "ir"     // the exact IR text
	AssertAsm    AssertionType = "asm"    // lines that appear in the assembly, in order
)

type Assertion struct {
	Type    AssertionType
	Content string
	Line    int // of the fence in the Markdown file
}

type TestCase struct {
	Name       string
	Input      string
	InputType  InputType
	Assertions []Assertion
}

func isInput(lang string) bool {
	return lang == string(InputSource) || lang == string(InputTree)
}

func isAssertion(lang string) bool {
	switch AssertionType(lang) {
	case AssertErrors, AssertDump, AssertIR, AssertAsm:
		return true
	}
	return false
}

// Extract parses a Markdown document and returns its scenarios in order
func Extract(markdown []byte) ([]TestCase, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(markdown))

	var cases []TestCase
	var cur *TestCase
	finish := func() error {
		if cur == nil {
			return nil
		}
		if cur.Input == "" {
			return fmt.Errorf("test %q has no input fence", cur.Name)
		}
		if len(cur.Assertions) == 0 {
			return fmt.Errorf("test %q has no assertion fences", cur.Name)
		}
		cases = append(cases, *cur)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			name, ok := strings.CutPrefix(plainText(n, markdown), "Test: ")
			if !ok {
				return ast.WalkContinue, nil
			}
			if err := finish(); err != nil {
				return ast.WalkStop, err
			}
			cur = &TestCase{Name: strings.TrimSpace(name)}

		case *ast.FencedCodeBlock:
			lang := string(n.Language(markdown))
			line := lineOf(n, markdown)
			if lang == "" {
				return ast.WalkContinue, nil
			}
			if !isInput(lang) && !isAssertion(lang) {
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language %q", line, lang)
			}
			if cur == nil {
				return ast.WalkStop, fmt.Errorf("line %d: %s fence outside of a test", line, lang)
			}
			content := fenceContent(n, markdown)
			if isInput(lang) {
				if cur.Input != "" {
					return ast.WalkStop, fmt.Errorf("line %d: second input fence in test %q", line, cur.Name)
				}
				cur.Input, cur.InputType = content, InputType(lang)
				return ast.WalkContinue, nil
			}
			cur.Assertions = append(cur.Assertions, Assertion{Type: AssertionType(lang), Content: content, Line: line})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking markdown: %w", err)
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return cases, nil
}

func plainText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

func lineOf(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 1
	}
	// the first content line follows the opening fence
	return bytes.Count(source[:node.Lines().At(0).Start], []byte("\n"))
}
