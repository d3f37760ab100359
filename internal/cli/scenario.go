package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // compare traces against <dir>/<name>.golden
	Update    bool   // regenerate golden files
	Trace     bool   // print each trace
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	// Trace is the canonical JSON trace, included with --trace.
	Trace json.RawMessage `json:"trace,omitempty"`
}

// ScenarioSummary holds the overall scenario run.
type ScenarioSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <file-or-dir>...",
		Short: "Run membership scenarios",
		Long: `Run YAML membership scenarios and compare the control messages of every
step with its expectations. Directories are searched for .yaml and .yml
files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  rollcall scenario ./scenarios
  rollcall scenario ./scenarios --filter "role-*"
  rollcall scenario ./scenarios --golden ./golden
  rollcall scenario ./scenarios --golden ./golden --update
  rollcall scenario muted.yaml --trace --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "directory of golden trace files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "include the trace of every scenario")

	return cmd
}

func runScenarios(opts *ScenarioOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Update && opts.GoldenDir == "" {
		return formatter.Fail(ExitCommandError, "E001", "--update requires --golden")
	}

	var files []string
	for _, p := range paths {
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return formatter.Fail(ExitCommandError, "E005", err.Error())
		}
		files = append(files, found...)
	}

	summary := ScenarioSummary{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		formatter.VerboseLog("Running %s", file)
		r := runScenarioFile(file, opts, formatter)
		summary.Scenarios = append(summary.Scenarios, r)
		if r.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
		if !formatter.JSON() {
			outputScenarioText(formatter.Writer, r)
		}
	}

	if formatter.JSON() {
		return outputScenarioJSON(formatter, summary)
	}

	if summary.Total == 0 {
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}
	fmt.Fprintln(formatter.Writer)
	fmt.Fprintf(formatter.Writer, "Scenario Summary: %d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}
	fmt.Fprintln(formatter.Writer, "✓ All scenarios passed")
	return nil
}

// findScenarioFiles returns path itself, or the YAML files below it when
// it is a directory. The filter applies to file names without extension.
func findScenarioFiles(path string, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scenario path not found: %s", path)
	}
	match := func(file string) (bool, error) {
		if filter == "" {
			return true, nil
		}
		base := filepath.Base(file)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return false, fmt.Errorf("invalid filter pattern: %w", err)
		}
		return matched, nil
	}

	if !info.IsDir() {
		ok, err := match(path)
		if err != nil || !ok {
			return nil, err
		}
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		ok, err := match(p)
		if err != nil {
			return err
		}
		if ok {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

func runScenarioFile(file string, opts *ScenarioOptions, f *OutputFormatter) ScenarioResult {
	out := ScenarioResult{Name: filepath.Base(file), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		out.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return out
	}
	out.Name = scenario.Name

	var runOpts []harness.Option
	if f.Verbose {
		runOpts = append(runOpts, harness.WithLogger(f.Logger()))
	}
	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		out.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return out
	}
	out.Pass = result.Pass
	out.Errors = result.Errors

	trace, err := harness.MarshalTrace(scenario.Name, result)
	if err != nil {
		out.Pass = false
		out.Errors = append(out.Errors, fmt.Sprintf("failed to marshal trace: %v", err))
		return out
	}
	if opts.Trace {
		out.Trace = trace
	}

	if opts.GoldenDir == "" {
		return out
	}
	golden := filepath.Join(opts.GoldenDir, scenario.Name+".golden")
	if opts.Update {
		if err := writeGolden(golden, trace); err != nil {
			out.Pass = false
			out.Errors = append(out.Errors, err.Error())
		}
		return out
	}

	want, err := os.ReadFile(golden)
	switch {
	case os.IsNotExist(err):
		// No golden file - expectations alone decide.
	case err != nil:
		out.Pass = false
		out.Errors = append(out.Errors, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(want, trace):
		out.Pass = false
		out.Errors = append(out.Errors, "trace does not match golden file (run with --update to regenerate)")
	}
	return out
}

func writeGolden(path string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, trace, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func outputScenarioText(w io.Writer, r ScenarioResult) {
	if r.Pass {
		fmt.Fprintf(w, "✓ %s\n", r.Name)
	} else {
		fmt.Fprintf(w, "✗ %s\n", r.Name)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	if len(r.Trace) > 0 {
		fmt.Fprintf(w, "  %s\n", r.Trace)
	}
}

func outputScenarioJSON(f *OutputFormatter, summary ScenarioSummary) error {
	response := CLIResponse{Status: "ok", Data: summary}
	if summary.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_SCENARIO_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", summary.Failed),
		}
	}

	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}
	return nil
}
