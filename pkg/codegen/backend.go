package codegen

import (
	"bytes"

	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes an IR program and a configuration, and produces the target
	// assembly as a byte buffer.
	Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error)
}

// SignatureResolver reports how many parameters the function with a given IR
// name takes. The symbol table implements it.
type SignatureResolver interface {
	ParamCount(genName string) (int, bool)
}
