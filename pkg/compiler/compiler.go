// Package compiler strings the phases together for the command line tools
// and the scenario tests.
package compiler

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/codegen"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/lexer"
	"github.com/xplshn/cmmc/pkg/parser"
	"github.com/xplshn/cmmc/pkg/symtab"
	"github.com/xplshn/cmmc/pkg/typeChecker"
	"github.com/xplshn/cmmc/pkg/util"
)

// ErrCompile is returned when the source has lexical, syntax or semantic
// errors. The diagnostics are in Result.Diags.
var ErrCompile = errors.New("compilation failed")

// Phase is the last phase Run executes
type Phase int

const (
	PhaseParse Phase = iota
	PhaseCheck
	PhaseIR
	PhaseAsm
)

type Options struct {
	Until    Phase
	FromTree bool // the input is a tree dump rather than source text
}

// Result holds what each phase produced, up to the one that stopped
type Result struct {
	Tree  *ast.Node
	Table *symtab.Table
	IR    *ir.Program
	Asm   *bytes.Buffer
	Diags *util.Diagnostics
}

// Run compiles input. Compile errors stop the pipeline after the phase that
// found them and give ErrCompile; a program that checks but cannot be
// lowered gives an error wrapping codegen.ErrCannotTranslate; a broken
// invariant gives one wrapping util.ErrInternal.
func Run(input []byte, opts Options, cfg *config.Config) (*Result, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	res := &Result{Diags: &util.Diagnostics{}}

	if opts.FromTree {
		root, err := ast.Read(bytes.NewReader(input))
		if err != nil {
			return res, fmt.Errorf("reading tree: %w", err)
		}
		res.Tree = root
	} else {
		tokens := lexer.Tokenize([]rune(string(input)), res.Diags)
		res.Tree = parser.NewParser(tokens, res.Diags).Parse()
	}
	if res.Diags.HasErrors() || res.Tree == nil {
		return res, fmt.Errorf("%w: %d error(s)", ErrCompile, res.Diags.ErrorCount())
	}
	if opts.Until == PhaseParse {
		return res, nil
	}

	res.Table = symtab.New()
	if err := typeChecker.NewTypeChecker(cfg, res.Table, res.Diags).Check(res.Tree); err != nil {
		return res, err
	}
	if res.Diags.HasErrors() {
		return res, fmt.Errorf("%w: %d error(s)", ErrCompile, res.Diags.ErrorCount())
	}
	if opts.Until == PhaseCheck {
		return res, nil
	}

	prog, err := codegen.GenerateIR(res.Tree, res.Table)
	if err != nil {
		return res, err
	}
	res.IR = prog
	if opts.Until == PhaseIR {
		return res, nil
	}

	asm, err := codegen.NewMIPSBackend(res.Table).Generate(prog, cfg)
	if err != nil {
		return res, fmt.Errorf("MIPS backend: %w", err)
	}
	res.Asm = asm
	return res, nil
}
