package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/cli"
	"github.com/xplshn/cmmc/pkg/compiler"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/util"
)

// exit statuses
const (
	exitCompile  = 1
	exitInternal = 2
)

func main() {
	app := cli.NewApp("cmmc")
	app.Synopsis = "[options] <input> [output]"
	app.Description = "A compiler for C--, a small subset of C, producing MIPS32 assembly for SPIM."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/cmmc>"

	var (
		outFile  string
		emit     string
		dumpIR   bool
		dumpTree bool
		fromTree bool
		symbols  bool
		verbose  bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file> instead of standard output.", "file")
	fs.String(&emit, "emit", "", "asm", "Select what to produce: ir or asm.", "kind")
	fs.Bool(&dumpIR, "dump-ir", "d", false, "Print the intermediate representation (same as --emit ir).")
	fs.Bool(&dumpTree, "dump-tree", "", false, "Print the syntax tree and stop.")
	fs.Bool(&fromTree, "tree", "", false, "Read a syntax tree dump instead of C-- source.")
	fs.Bool(&symbols, "symbols", "", false, "Print the symbol table after checking.")
	fs.Bool(&verbose, "verbose", "v", false, "Report what was written.")

	cfg := config.NewConfig()
	groups := cfg.SetupFlagGroups(fs)

	app.Action = func(args []string) error {
		groups.Apply(cfg)
		if len(args) == 0 || len(args) > 2 {
			app.Usage()
			os.Exit(exitCompile)
		}
		if len(args) == 2 {
			if outFile != "" {
				util.Fatal(app.Name, "output given both as %q and with -o", args[1])
			}
			outFile = args[1]
		}
		if dumpIR {
			emit = "ir"
		}

		opts := compiler.Options{FromTree: fromTree}
		switch {
		case dumpTree:
			opts.Until = compiler.PhaseParse
		case emit == "ir":
			opts.Until = compiler.PhaseIR
		case emit == "asm":
			opts.Until = compiler.PhaseAsm
		default:
			util.Fatal(app.Name, "unknown --emit kind %q (want ir or asm)", emit)
		}

		input, err := os.ReadFile(args[0])
		if err != nil {
			util.Fatal(app.Name, "%v", err)
		}

		res, err := compiler.Run(input, opts, cfg)
		res.Diags.Print(os.Stderr)
		if symbols && res.Table != nil {
			res.Table.WriteTo(os.Stderr)
		}
		switch {
		case errors.Is(err, util.ErrInternal):
			fmt.Fprintf(os.Stderr, "%s: %v\n", app.Name, err)
			os.Exit(exitInternal)
		case errors.Is(err, compiler.ErrCompile):
			os.Exit(exitCompile)
		case err != nil:
			util.Fatal(app.Name, "%v", err)
		}

		var out bytes.Buffer
		switch opts.Until {
		case compiler.PhaseParse:
			if err := ast.Dump(&out, res.Tree, cfg.IsFeatureEnabled(config.FeatTreeLines)); err != nil {
				util.Fatal(app.Name, "%v", err)
			}
		case compiler.PhaseIR:
			res.IR.WriteTo(&out)
		default:
			out.Write(res.Asm.Bytes())
		}

		if outFile == "" {
			os.Stdout.Write(out.Bytes())
			return nil
		}
		if err := os.WriteFile(outFile, out.Bytes(), 0o644); err != nil {
			util.Fatal(app.Name, "could not write output: %v", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "%s: wrote %s to %s\n", app.Name, humanize.Bytes(uint64(out.Len())), outFile)
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(exitCompile)
	}
}
