package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/config"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/pattern"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	SettingsDir string // resolve role group references against these settings
}

// CheckResult describes a compiled pattern expression.
type CheckResult struct {
	Expression string               `json:"expression"`
	Terms      []pattern.Term       `json:"terms"`
	References []string             `json:"references,omitempty"`
	Valid      bool                 `json:"valid"`
	Errors     []ir.ValidationError `json:"errors,omitempty"`
	Warnings   []ir.ValidationError `json:"warnings,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <expression>",
		Short: "Compile a pattern expression and report problems",
		Long: `Compile a pattern expression and list its terms.

Without --settings only built-in predicates resolve, so role group
references are reported as warnings.

Examples:
  rollcall check "vip -muted"
  rollcall check "join:present -friend" --format json
  rollcall check "vip -muted" --settings ./settings`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SettingsDir, "settings", "", "settings directory to resolve references against")

	return cmd
}

func runCheck(opts *CheckOptions, expr string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var settings *ir.Settings
	if opts.SettingsDir != "" {
		res, err := config.LoadDir(opts.SettingsDir)
		if err != nil {
			return loadFailure(formatter, err)
		}
		settings = res.Settings
		formatter.VerboseLog("Resolving against %d enabled role group(s)", len(settings.EnabledRoleGroups()))
	}

	compiled := pattern.Compile(expr)
	result := CheckResult{
		Expression: expr,
		Terms:      compiled.Terms,
		References: compiled.References(),
	}
	result.Errors, result.Warnings = splitFindings(config.ValidateExpression("expression", expr, settings))
	result.Valid = len(result.Errors) == 0

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputCheckText(formatter, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("expression has %d error(s)", len(result.Errors)))
	}
	return nil
}

func outputCheckText(f *OutputFormatter, r CheckResult) {
	if r.Valid {
		fmt.Fprintf(f.Writer, "✓ %q\n", r.Expression)
	} else {
		fmt.Fprintf(f.Writer, "✗ %q\n", r.Expression)
	}
	if len(r.Terms) == 0 {
		fmt.Fprintln(f.Writer, "  (empty expression matches everyone)")
	}
	for i, t := range r.Terms {
		var notes []string
		if t.Negated {
			notes = append(notes, "negated")
		}
		if len(t.Prefixes) > 0 {
			notes = append(notes, "when "+strings.Join(t.Prefixes, ","))
		}
		if t.Malformed {
			notes = append(notes, "malformed")
		}
		line := fmt.Sprintf("  %d. %s", i+1, t.Base)
		if len(notes) > 0 {
			line += " (" + strings.Join(notes, "; ") + ")"
		}
		fmt.Fprintln(f.Writer, line)
	}
	printFindings(f, r.Errors)
	printFindings(f, r.Warnings)
}
