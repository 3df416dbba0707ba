package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	GoldenDir string // defaults to <scenarios-dir>/golden
}

// TestResult holds the overall test result.
type TestResult struct {
	*harness.SuiteResult
	Source string `json:"source"`
}

func (r TestResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenarios: %s\n", r.Source)
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "✗ %s\n", f.Scenario)
		for _, line := range strings.Split(strings.TrimRight(f.Error, "\n"), "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	fmt.Fprintf(&b, "\nResults: %d passed, %d failed, %d total", r.Passed, r.Failed, r.TotalScenarios)
	return b.String()
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test [scenarios-dir]",
		Short: "Run scenario conformance tests",
		Long: `Run YAML scenarios against fresh in-memory root and child layers,
checking each step's expected outcome and the final state assertions.

When the golden directory exists (or with --update), each scenario's trace
is compared against <golden-dir>/<name>.golden. Without a directory the
scenarios bundled with reqsync are run.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  reqsync test
  reqsync test ./scenarios
  reqsync test ./scenarios --update
  reqsync test ./scenarios --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runTests(opts, dir, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden file directory (default <scenarios-dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	var (
		suite *harness.SuiteResult
		err   error
	)
	source := dir
	if dir == "" {
		source = "bundled"
		suite, err = runBundled()
	} else {
		if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
			return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
		}
		suite, err = harness.RunSuite(dir, opts.goldenCheck(dir))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	result := TestResult{SuiteResult: suite, Source: source}
	f := opts.formatter(cmd)
	if suite.Failed == 0 {
		return f.Success(result)
	}
	if err := f.Failure("SCENARIO_FAILED", fmt.Sprintf("%d scenario(s) failed", suite.Failed), result); err != nil {
		return err
	}
	return &ExitError{Code: ExitFailure, Message: "scenarios failed", Reported: true}
}

// goldenCheck returns the golden comparison for a scenario directory, or nil
// when there is no golden directory and --update is not set.
func (o *TestOptions) goldenCheck(dir string) func(*harness.Scenario, *harness.Result) error {
	goldenDir := o.GoldenDir
	if goldenDir == "" {
		base := dir
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			base = filepath.Dir(dir)
		}
		goldenDir = filepath.Join(base, "golden")
	}
	if !o.Update {
		if _, err := os.Stat(goldenDir); err != nil {
			return nil
		}
	}
	return func(s *harness.Scenario, r *harness.Result) error {
		return harness.CompareGolden(goldenDir, s.Name, r, o.Update)
	}
}

func runBundled() (*harness.SuiteResult, error) {
	scenarios, err := harness.Bundled()
	if err != nil {
		return nil, err
	}
	suite := &harness.SuiteResult{}
	for _, s := range scenarios {
		suite.TotalScenarios++
		result, err := harness.Run(s)
		switch {
		case err != nil:
			suite.Failed++
			suite.Failures = append(suite.Failures, harness.ScenarioFailure{Scenario: s.Name, Error: fmt.Sprintf("scenario execution failed: %v", err)})
		case !result.Pass:
			suite.Failed++
			suite.Failures = append(suite.Failures, harness.ScenarioFailure{Scenario: s.Name, Error: strings.Join(result.Errors, "\n")})
		default:
			suite.Passed++
		}
	}
	return suite, nil
}
