package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestParse(t *testing.T) {
	var (
		out     string
		dumpIR  bool
		tree    bool
		extra   []string
		enabled = false
		noFlag  = false
	)
	fs := NewFlagSet("cmmc")
	fs.String(&out, "output", "o", "", "Output file", "file")
	fs.Bool(&dumpIR, "dump-ir", "d", false, "Dump IR")
	fs.Bool(&tree, "tree", "", false, "Tree input")
	fs.List(&extra, "define", "D", nil, "Extra", "name")
	fs.AddFlagGroup("Warning Flags", "warning", []FlagGroupEntry{
		{Name: "shadow", Prefix: "W", Usage: "Shadowing", Enabled: &enabled, Disabled: &noFlag},
	})

	err := fs.Parse([]string{"-o", "a.s", "-d", "--tree", "-Da", "-D", "b", "-Wshadow", "in.cmm", "--", "-x"})
	be.Err(t, err, nil)
	be.Equal(t, out, "a.s")
	be.True(t, dumpIR)
	be.True(t, tree)
	be.Equal(t, extra, []string{"a", "b"})
	be.True(t, enabled)
	be.True(t, !noFlag)
	be.Equal(t, fs.Args(), []string{"in.cmm", "-x"})
}

func TestParseLongForms(t *testing.T) {
	var out string
	var verbose bool
	fs := NewFlagSet("cmmc")
	fs.String(&out, "output", "o", "", "Output file", "file")
	fs.Bool(&verbose, "verbose", "v", false, "Verbose")

	be.Err(t, fs.Parse([]string{"--output=x.s", "--verbose=false", "-ofile.s"}), nil)
	be.Equal(t, out, "file.s")
	be.True(t, !verbose)
}

func TestParseErrors(t *testing.T) {
	var out string
	var v bool
	fs := NewFlagSet("cmmc")
	fs.String(&out, "output", "o", "", "Output file", "file")
	fs.Bool(&v, "verbose", "", false, "Verbose")

	be.Err(t, fs.Parse([]string{"--nope"}), "unknown flag")
	be.Err(t, fs.Parse([]string{"-o"}), "needs an argument")
	be.Err(t, fs.Parse([]string{"--verbose=maybe"}), "invalid boolean")
}

func TestRunHelpAndUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := NewApp("cmmc")
	app.Synopsis = "[options] <input> [output]"
	app.Description = "Compiles C-- programs."
	app.Stdout, app.Stderr = &stdout, &stderr
	called := false
	app.Action = func(args []string) error { called = true; return nil }

	be.Err(t, app.Run([]string{"--help"}), nil)
	be.True(t, !called)
	be.True(t, strings.Contains(stdout.String(), "Synopsis"))
	be.True(t, strings.Contains(stdout.String(), "--help"))

	app2 := NewApp("cmmc")
	app2.Synopsis = "[options] <input> [output]"
	app2.Stdout, app2.Stderr = &stdout, &stderr
	be.Err(t, app2.Run([]string{"--bogus"}))
	be.True(t, strings.Contains(stderr.String(), "Usage: cmmc [options] <input> [output]"))
}

func TestWrapText(t *testing.T) {
	be.Equal(t, wrapText("one two three four", 9), []string{"one two", "three", "four"})
	be.Equal(t, len(wrapText("", 10)), 0)
}
