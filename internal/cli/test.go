package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/modhost/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // glob over scenario file names
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult summarizes a test invocation.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(sr ScenarioResult) {
	r.Scenarios = append(r.Scenarios, sr)
	r.Total++
	if sr.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios against the host.

A scenario declares in-memory modules, an entry, the expected value or
error, and assertions over the recorded trace. A scenario with a golden
file at golden/<name>.golden beside it must also reproduce that trace.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing path, bad filter)

Examples:
  modhost test ./scenarios
  modhost test ./scenarios --filter "dynamic_*"
  modhost test ./scenarios --update
  modhost test ./scenarios/stall.yaml --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	var files []string
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return NewExitError(ExitCommandError, "scenario path not found: "+p)
		}
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot list scenarios", err)
		}
		files = append(files, found...)
	}

	f := opts.Formatter(cmd)
	if len(files) == 0 {
		if f.Format == "json" {
			return reportTests(f, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(f.Writer, "No scenarios found.")
		return nil
	}

	var progress io.Writer = io.Discard
	if f.Format != "json" {
		progress = f.Writer
	}

	var result TestResult
	for _, file := range files {
		run := scenarioRun{file: file, update: opts.Update, out: progress}
		result.add(run.execute(cmd))
	}
	return reportTests(f, result)
}

// findScenarioFiles lists the YAML scenarios under path, which may be a
// single file or a directory tree. golden/ directories are not searched.
func findScenarioFiles(path, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
		}
	}

	var files []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && p != path && d.Name() == "golden":
			return filepath.SkipDir
		case d.IsDir():
			return nil
		}
		name, ok := scenarioName(p)
		if !ok {
			return nil
		}
		if filter != "" {
			if matched, _ := filepath.Match(filter, name); !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	return files, err
}

// scenarioName returns the file name without its .yaml or .yml extension.
func scenarioName(p string) (string, bool) {
	base := filepath.Base(p)
	for _, ext := range []string{".yaml", ".yml"} {
		if name, ok := strings.CutSuffix(base, ext); ok {
			return name, true
		}
	}
	return "", false
}

// goldenFilePath is where the trace snapshot of a scenario file lives.
func goldenFilePath(scenarioFile string) string {
	name, _ := scenarioName(scenarioFile)
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// scenarioRun executes one scenario file and prints a ✓/✗ line for it.
type scenarioRun struct {
	file   string
	update bool
	out    io.Writer
}

func (r scenarioRun) execute(cmd *cobra.Command) ScenarioResult {
	sc, err := harness.LoadScenario(r.file)
	if err != nil {
		return r.failed(filepath.Base(r.file), "failed to load scenario: "+err.Error())
	}

	res, err := harness.RunContext(cmd.Context(), sc)
	if err != nil {
		return r.failed(sc.Name, "execution failed: "+err.Error())
	}

	snapshot, err := harness.Snapshot(sc.Name, res).MarshalCanonical()
	if err != nil {
		return r.failed(sc.Name, "cannot snapshot trace: "+err.Error())
	}

	golden := goldenFilePath(r.file)
	if r.update {
		if err := writeGolden(golden, snapshot); err != nil {
			return r.failed(sc.Name, err.Error())
		}
		fmt.Fprintf(r.out, "✓ %s (golden updated)\n", sc.Name)
		return ScenarioResult{Name: sc.Name, Pass: true}
	}

	switch want, err := os.ReadFile(golden); {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return r.failed(sc.Name, "cannot read golden file: "+err.Error())
	case !bytes.Equal(want, snapshot):
		res.AddError("trace does not match golden file (run with --update to regenerate)")
	}

	if !res.Pass {
		return r.failed(sc.Name, res.Errors...)
	}
	fmt.Fprintf(r.out, "✓ %s\n", sc.Name)
	return ScenarioResult{Name: sc.Name, Pass: true}
}

func (r scenarioRun) failed(name string, errs ...string) ScenarioResult {
	fmt.Fprintf(r.out, "✗ %s\n", name)
	for _, e := range errs {
		fmt.Fprintf(r.out, "  %s\n", e)
	}
	return ScenarioResult{Name: name, Errors: errs}
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write golden file: %w", err)
	}
	return nil
}

// reportTests prints the summary and turns failures into exit code 1.
func reportTests(f *OutputFormatter, result TestResult) error {
	var failure *ExitError
	if result.Failed > 0 {
		msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
		failure = &ExitError{Code: ExitFailure, Message: msg, Reported: true}
	}

	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if failure != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "TEST_FAILED", Message: failure.Message}
		}
		if err := f.encode(resp); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
		if failure == nil {
			fmt.Fprintln(f.Writer, "✓ All scenarios passed")
		}
	}

	if failure != nil {
		return failure
	}
	return nil
}
