// ctest compiles every C-- program matching a glob, compares the outcome
// against a golden .json file next to the source and, when spim is
// installed, runs the assembly and compares its output too.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/cmmc/pkg/cli"
	"github.com/xplshn/cmmc/pkg/codegen"
	"github.com/xplshn/cmmc/pkg/compiler"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/util"
	"golang.org/x/sync/errgroup"
)

// Compile statuses
const (
	statusOK             = "ok"
	statusError          = "error"
	statusUntranslatable = "untranslatable"
	statusInternal       = "internal"
)

type Compile struct {
	Status      string        `json:"status"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
	Message     string        `json:"message,omitempty"`
	IRHash      string        `json:"ir_hash,omitempty"`
	AsmSize     int           `json:"asm_size,omitempty"`
	Duration    time.Duration `json:"duration"`
}

type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

type TestRun struct {
	Name   string    `json:"name"`
	Input  string    `json:"input,omitempty"`
	Result Execution `json:"result"`
}

type Golden struct {
	SourceHash string    `json:"source_hash"`
	Compile    Compile   `json:"compile"`
	Runs       []TestRun `json:"runs,omitempty"`
}

type FileTestResult struct {
	File     string  `json:"file"`
	Status   string  `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message  string  `json:"message,omitempty"`
	Diff     string  `json:"diff,omitempty"`
	Expected *Golden `json:"expected,omitempty"`
	Actual   *Golden `json:"actual,omitempty"`
}

type options struct {
	testFiles   []string
	skipFiles   []string
	generate    string
	outputJSON  string
	jsonDir     string
	spim        string
	ignoreLines []string
	timeout     time.Duration
	jobs        int
	ignoreIR    bool
	verbose     bool
}

var (
	opts = options{timeout: 5 * time.Second, jobs: 4}
	cfg  = config.NewConfig()
)

var (
	cRed     = "\x1b[91m"
	cYellow  = "\x1b[93m"
	cGreen   = "\x1b[92m"
	cCyan    = "\x1b[96m"
	cMagenta = "\x1b[95m"
	cBold    = "\x1b[1m"
	cNone    = "\x1b[0m"
)

type intValue struct{ p *int }

func (v *intValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("invalid count %q", s)
	}
	*v.p = n
	return nil
}
func (v *intValue) String() string { return strconv.Itoa(*v.p) }
func (v *intValue) Get() any       { return *v.p }

type durationValue struct{ p *time.Duration }

func (v *durationValue) Set(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*v.p = d
	return nil
}
func (v *durationValue) String() string { return v.p.String() }
func (v *durationValue) Get() any       { return *v.p }

func main() {
	log.SetFlags(0)
	if !util.IsTerminal(os.Stdout) {
		cRed, cYellow, cGreen, cCyan, cMagenta, cBold, cNone = "", "", "", "", "", "", ""
	}

	app := cli.NewApp("ctest")
	app.Synopsis = "[options]"
	app.Description = "Regression tests for cmmc: compile C-- programs, run them under spim and compare against golden files."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/cmmc>"

	fs := app.FlagSet
	fs.List(&opts.testFiles, "test-files", "", nil, "Glob pattern(s) for files to test (default tests/*.cmm).", "glob")
	fs.List(&opts.skipFiles, "skip-files", "", nil, "Files to skip.", "file")
	fs.String(&opts.generate, "generate-golden", "", "", "Generate the golden .json file for a source file.", "file")
	fs.String(&opts.outputJSON, "output", "o", ".test_results.json", "Output file for the JSON test report.", "file")
	fs.String(&opts.jsonDir, "dir", "", "", "Directory to store/read golden JSON files (defaults to the source file directory).", "dir")
	fs.String(&opts.spim, "spim", "", "spim", "Path to the spim simulator.", "path")
	fs.List(&opts.ignoreLines, "ignore-lines", "", []string{"Loaded:"}, "Substrings of output lines to ignore when comparing.", "text")
	fs.Var(&durationValue{&opts.timeout}, "timeout", "", "Timeout for each spim run.", opts.timeout.String(), "duration")
	fs.Var(&intValue{&opts.jobs}, "jobs", "j", "Number of parallel test jobs.", strconv.Itoa(opts.jobs), "n")
	fs.Bool(&opts.ignoreIR, "ignore-ir", "", false, "Do not compare the IR hash.")
	fs.Bool(&opts.verbose, "verbose", "v", false, "Enable verbose logging.")
	groups := cfg.SetupFlagGroups(fs)

	app.Action = func(args []string) error {
		groups.Apply(cfg)
		if len(opts.testFiles) == 0 {
			opts.testFiles = []string{"tests/*.cmm"}
		}

		tempDir, err := os.MkdirTemp("", "ctest-*")
		if err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
		}
		defer os.RemoveAll(tempDir)
		setupInterruptHandler(tempDir)

		if opts.generate != "" {
			handleGenerateGolden(opts.generate, tempDir)
			return nil
		}
		if handleRunTestSuite(tempDir) {
			os.RemoveAll(tempDir)
			os.Exit(1)
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// setupInterruptHandler is used to clean up on CTRL+C
func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled. Cleaning up...\n", cYellow, cNone)
		os.Exit(1)
	}()
}

func getJSONPath(sourceFile string) string {
	name := "." + filepath.Base(sourceFile) + ".json"
	if opts.jsonDir != "" {
		return filepath.Join(opts.jsonDir, name)
	}
	return filepath.Join(filepath.Dir(sourceFile), name)
}

func hashBytes(b []byte) string { return strconv.FormatUint(xxhash.Sum64(b), 16) }

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

func spimAvailable() bool {
	_, err := exec.LookPath(opts.spim)
	return err == nil
}

func handleGenerateGolden(sourceFile, tempDir string) {
	log.Printf("Generating golden file for %s...\n", sourceFile)
	if !spimAvailable() {
		log.Printf("%s[WARN]%s spim not found at '%s'; the golden file will hold no runs.\n", cYellow, cNone, opts.spim)
	}

	golden, err := compileAndRun(sourceFile, tempDir, spimAvailable())
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not generate golden file for %s: %v\n", cRed, cNone, sourceFile, err)
	}

	jsonData, err := json.MarshalIndent(golden, "", "  ")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
	}

	goldenFile := getJSONPath(sourceFile)
	if opts.jsonDir != "" {
		if err := os.MkdirAll(opts.jsonDir, 0755); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, opts.jsonDir, err)
		}
	}
	if err := os.WriteFile(goldenFile, jsonData, 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFile, err)
	}
	log.Printf("%s[SUCCESS]%s Golden file created at %s (%s compile, %d run(s))\n",
		cGreen, cNone, goldenFile, golden.Compile.Status, len(golden.Runs))
}

// handleRunTestSuite reports whether any file failed
func handleRunTestSuite(tempDir string) bool {
	useSpim := spimAvailable()
	if !useSpim {
		log.Printf("%s[WARN]%s spim not found at '%s'. Only compiler output will be compared.\n", cYellow, cNone, opts.spim)
	}

	files, err := expandGlobPatterns(opts.testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return false
	}

	skipList := make(map[string]bool)
	for _, f := range opts.skipFiles {
		if abs, err := filepath.Abs(f); err == nil {
			skipList[abs] = true
		}
	}

	results := make([]*FileTestResult, len(files))
	seenHashes := make(map[string]string)
	var g errgroup.Group
	g.SetLimit(opts.jobs)

	// Feed the pool, skipping files with identical content
	for i, file := range files {
		if skipList[file] {
			results[i] = &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			results[i] = &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if original, seen := seenHashes[fileHash]; seen {
			results[i] = &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", original)}
			continue
		}
		seenHashes[fileHash] = file
		g.Go(func() error {
			results[i] = testFile(file, fileHash, tempDir, useSpim)
			return nil
		})
	}
	g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].File < results[j].File })
	printSummary(results)
	writeJSONReport(results)
	return hasFailures(results)
}

func testFile(file, fileHash, tempDir string, useSpim bool) *FileTestResult {
	goldenFile := getJSONPath(file)
	goldenData, err := os.ReadFile(goldenFile)
	if errors.Is(err, os.ErrNotExist) {
		return &FileTestResult{File: file, Status: "SKIP", Message: "Cannot test without a corresponding .json golden file"}
	}
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var expected Golden
	if err := json.Unmarshal(goldenData, &expected); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	actual, err := compileAndRun(file, tempDir, useSpim && len(expected.Runs) > 0)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error(), Expected: &expected}
	}

	res := compareResults(file, &expected, actual, useSpim)
	if expected.SourceHash != fileHash {
		res.Message += " (golden file predates the source, regenerate it with --generate-golden)"
	}
	return res
}

func compileSource(src []byte) (*Compile, []byte) {
	start := time.Now()
	res, err := compiler.Run(src, compiler.Options{Until: compiler.PhaseAsm}, cfg)
	c := &Compile{Duration: time.Since(start)}
	for _, d := range res.Diags.List() {
		c.Diagnostics = append(c.Diagnostics, d.String())
	}

	switch {
	case err == nil:
		c.Status = statusOK
	case errors.Is(err, compiler.ErrCompile):
		c.Status = statusError
	case errors.Is(err, codegen.ErrCannotTranslate):
		c.Status = statusUntranslatable
		c.Message = err.Error()
	default:
		c.Status = statusInternal
		c.Message = err.Error()
	}
	if res.IR != nil {
		var ir bytes.Buffer
		res.IR.WriteTo(&ir)
		c.IRHash = hashBytes(ir.Bytes())
	}
	if res.Asm == nil {
		return c, nil
	}
	c.AsmSize = res.Asm.Len()
	return c, res.Asm.Bytes()
}

func compileAndRun(sourceFile, tempDir string, run bool) (*Golden, error) {
	src, err := os.ReadFile(sourceFile)
	if err != nil {
		return nil, err
	}
	comp, asm := compileSource(src)
	golden := &Golden{SourceHash: hashBytes(src), Compile: *comp}
	if !run || asm == nil {
		return golden, nil
	}

	asmPath := filepath.Join(tempDir, golden.SourceHash+".s")
	if err := os.WriteFile(asmPath, asm, 0644); err != nil {
		return nil, fmt.Errorf("writing assembly: %w", err)
	}
	inputs, err := loadInputs(sourceFile)
	if err != nil {
		return nil, err
	}
	for _, in := range inputs {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		result := executeCommand(ctx, opts.spim, in.Input, "-file", asmPath)
		cancel()
		in.Result = result
		golden.Runs = append(golden.Runs, in)
		if opts.verbose {
			log.Printf("[%s] run %s: exit %d in %s", sourceFile, in.Name, result.ExitCode, result.Duration)
		}
	}
	return golden, nil
}

// loadInputs reads <source>.in, whose runs are separated by lines holding
// only "---". Without the file the program runs once with no input.
func loadInputs(sourceFile string) ([]TestRun, error) {
	data, err := os.ReadFile(sourceFile + ".in")
	if errors.Is(err, os.ErrNotExist) {
		return []TestRun{{Name: "no_input"}}, nil
	}
	if err != nil {
		return nil, err
	}
	var runs []TestRun
	var cur strings.Builder
	flush := func() {
		runs = append(runs, TestRun{Name: fmt.Sprintf("input%d", len(runs)+1), Input: cur.String()})
		cur.Reset()
	}
	for _, line := range strings.SplitAfter(string(data), "\n") {
		if strings.TrimRight(line, "\r\n") == "---" {
			flush()
			continue
		}
		cur.WriteString(line)
	}
	flush()
	return runs, nil
}

// executeCommand runs a command with a timeout and captures its output, optionally piping data to stdin
func executeCommand(ctx context.Context, command string, stdinData string, args ...string) Execution {
	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdinData != "" {
		cmd.Stdin = strings.NewReader(stdinData)
	}

	err := cmd.Run()
	result := Execution{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(startTime)}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = -1
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case err != nil:
		result.ExitCode = -2
		result.Stderr += "\nExecution error: " + err.Error()
	}
	return result
}

func compareResults(file string, expected, actual *Golden, compareRuns bool) *FileTestResult {
	var diffs strings.Builder
	failed := false
	mismatch := func(format string, args ...any) {
		failed = true
		fmt.Fprintf(&diffs, format, args...)
	}

	e, a := expected.Compile, actual.Compile
	if e.Status != a.Status {
		mismatch("Compile status mismatch:\n  - Expected: %s\n  - Actual:   %s\n", e.Status, a.Status)
	}
	if d := cmp.Diff(e.Diagnostics, a.Diagnostics); d != "" {
		mismatch("Diagnostics mismatch:\n%s", d)
	}
	if e.Message != a.Message {
		mismatch("Error message mismatch:\n%s", cmp.Diff(e.Message, a.Message))
	}
	if !opts.ignoreIR && e.IRHash != a.IRHash {
		mismatch("IR changed: %s -> %s\n", e.IRHash, a.IRHash)
	}

	if compareRuns {
		actualRuns := make(map[string]TestRun, len(actual.Runs))
		for _, run := range actual.Runs {
			actualRuns[run.Name] = run
		}
		for _, want := range expected.Runs {
			got, ok := actualRuns[want.Name]
			if !ok {
				mismatch("Test run '%s' missing in actual results.\n", want.Name)
				continue
			}
			if want.Result.ExitCode != got.Result.ExitCode || want.Result.TimedOut != got.Result.TimedOut {
				mismatch("Run '%s' exit mismatch:\n  - Expected: %d (timed out: %v)\n  - Actual:   %d (timed out: %v)\n",
					want.Name, want.Result.ExitCode, want.Result.TimedOut, got.Result.ExitCode, got.Result.TimedOut)
			}
			if filterOutput(want.Result.Stdout) != filterOutput(got.Result.Stdout) {
				mismatch("Run '%s' STDOUT mismatch:\n%s", want.Name, cmp.Diff(want.Result.Stdout, got.Result.Stdout))
			}
		}
	}

	if failed {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Compiler outcome or runtime output mismatch", Diff: diffs.String(), Expected: expected, Actual: actual}
	}
	msg := "Compiler outcome matches"
	if compareRuns && len(expected.Runs) > 0 {
		msg = fmt.Sprintf("Compiler outcome and %d run(s) match", len(expected.Runs))
	}
	return &FileTestResult{File: file, Status: "PASS", Message: msg, Expected: expected, Actual: actual}
}

// filterOutput removes lines containing any of the ignored substrings
func filterOutput(output string) string {
	if len(opts.ignoreLines) == 0 || output == "" {
		return output
	}
	lines := strings.Split(output, "\n")
	kept := lines[:0:0]
	for _, line := range lines {
		ignore := false
		for _, sub := range opts.ignoreLines {
			if sub != "" && strings.Contains(line, sub) {
				ignore = true
				break
			}
		}
		if !ignore {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var totalCompile, totalRuntime time.Duration
	var totalAsm uint64
	var compiled int

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		if result.Actual == nil {
			continue
		}
		compiled++
		totalCompile += result.Actual.Compile.Duration
		totalAsm += uint64(result.Actual.Compile.AsmSize)
		var runtime time.Duration
		for _, run := range result.Actual.Runs {
			runtime += run.Result.Duration
			if opts.verbose {
				fmt.Printf("    %-12s %s\n", run.Name, formatDuration(run.Result.Duration))
			}
		}
		totalRuntime += runtime

		if opts.verbose && result.Expected != nil {
			color := cNone
			if result.Actual.Compile.Duration < result.Expected.Compile.Duration {
				color = cMagenta
			}
			fmt.Printf("  [comp: %s%s%s (was %s) | runt: %s | asm: %s]\n",
				color, formatDuration(result.Actual.Compile.Duration), cNone,
				formatDuration(result.Expected.Compile.Duration),
				formatDuration(runtime), humanize.Bytes(uint64(result.Actual.Compile.AsmSize)))
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
	if compiled > 0 {
		fmt.Println("---")
		fmt.Printf("Compiled %d file(s) into %s of assembly, %s on average per file; spim ran for %s in total.\n",
			compiled, humanize.Bytes(totalAsm), totalCompile/time.Duration(compiled), totalRuntime)
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmed, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) {
	resultsMap := make(map[string]*FileTestResult, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return
	}

	outputFile := opts.outputJSON
	if opts.jsonDir != "" {
		if err := os.MkdirAll(opts.jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, opts.jsonDir, err)
		}
		outputFile = filepath.Join(opts.jsonDir, opts.outputJSON)
	}
	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
		return
	}
	fmt.Printf("Full test report saved to %s (%s)\n", outputFile, humanize.Bytes(uint64(len(jsonData))))
}

func hasFailures(results []*FileTestResult) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			abs, err := filepath.Abs(file)
			if err != nil || seen[abs] {
				continue
			}
			if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
				allFiles = append(allFiles, abs)
				seen[abs] = true
			}
		}
	}
	return allFiles, nil
}
