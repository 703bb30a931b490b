package util

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/xplshn/cmmc/pkg/config"
)

const (
	cRed    = "\033[31m"
	cYellow = "\033[33m"
	cNone   = "\033[0m"
)

// Class groups diagnostics by the phase that raised them
type Class int

const (
	Lexical Class = iota
	Syntax
	Semantic
	Warning
)

type Diagnostic struct {
	Class Class
	Code  int // semantic error kind; 0 for the other classes
	Line  int
	Msg   string
	Flag  string // warning switch name
}

func (d Diagnostic) String() string {
	switch d.Class {
	case Lexical:
		return fmt.Sprintf("Error type A at Line %d: %s", d.Line, d.Msg)
	case Syntax:
		return fmt.Sprintf("Error type B at Line %d: %s", d.Line, d.Msg)
	case Warning:
		return fmt.Sprintf("Warning at Line %d: %s [-W%s]", d.Line, d.Msg, d.Flag)
	default:
		return fmt.Sprintf("Error type %d at Line %d: %s", d.Code, d.Line, d.Msg)
	}
}

// Diagnostics collects errors and warnings in the order they are raised
type Diagnostics struct {
	list   []Diagnostic
	errors int
}

func (d *Diagnostics) add(diag Diagnostic) {
	d.list = append(d.list, diag)
	if diag.Class != Warning {
		d.errors++
	}
}

func (d *Diagnostics) Lexical(line int, format string, args ...any) {
	d.add(Diagnostic{Class: Lexical, Line: line, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diagnostics) Syntax(line int, format string, args ...any) {
	d.add(Diagnostic{Class: Syntax, Line: line, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diagnostics) Semantic(code, line int, format string, args ...any) {
	d.add(Diagnostic{Class: Semantic, Code: code, Line: line, Msg: fmt.Sprintf(format, args...)})
}

// Warn records a warning if wt is enabled in cfg
func (d *Diagnostics) Warn(cfg *config.Config, wt config.Warning, line int, format string, args ...any) {
	if cfg == nil || !cfg.IsWarningEnabled(wt) {
		return
	}
	d.add(Diagnostic{Class: Warning, Line: line, Msg: fmt.Sprintf(format, args...), Flag: cfg.Warnings[wt].Name})
}

func (d *Diagnostics) List() []Diagnostic { return d.list }
func (d *Diagnostics) ErrorCount() int    { return d.errors }
func (d *Diagnostics) HasErrors() bool    { return d.errors > 0 }

// Count returns how many diagnostics of class c were recorded
func (d *Diagnostics) Count(c Class) int {
	n := 0
	for _, diag := range d.list {
		if diag.Class == c {
			n++
		}
	}
	return n
}

// Print writes every diagnostic on its own line, colored when w is a terminal
func (d *Diagnostics) Print(w io.Writer) {
	color := IsTerminal(w)
	for _, diag := range d.list {
		switch {
		case !color:
			fmt.Fprintln(w, diag)
		case diag.Class == Warning:
			fmt.Fprintf(w, "%s%s%s\n", cYellow, diag, cNone)
		default:
			fmt.Fprintf(w, "%s%s%s\n", cRed, diag, cNone)
		}
	}
}

// IsTerminal reports whether w is a character device
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ErrInternal is wrapped by every error produced from a broken compiler invariant
var ErrInternal = errors.New("internal compiler error")

type InternalError struct{ Msg string }

func (e *InternalError) Error() string { return ErrInternal.Error() + ": " + e.Msg }
func (e *InternalError) Unwrap() error { return ErrInternal }

// Internal aborts the current phase. It is reserved for states that a
// well-formed tree can never produce.
func Internal(format string, args ...any) {
	panic(&InternalError{Msg: fmt.Sprintf(format, args...)})
}

// Recover turns a panic raised by Internal into *errp. It must be deferred directly.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InternalError); ok {
		*errp = ie
		return
	}
	panic(r)
}

// Fatal prints a command-level error and exits
func Fatal(prog, format string, args ...any) {
	prefix := "error:"
	if IsTerminal(os.Stderr) {
		prefix = cRed + prefix + cNone
	}
	fmt.Fprintf(os.Stderr, "%s: %s %s\n", prog, prefix, fmt.Sprintf(format, args...))
	os.Exit(1)
}
