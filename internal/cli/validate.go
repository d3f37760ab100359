package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/config"
	"github.com/roach88/rollcall/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                 `json:"valid"`
	FileCount int                  `json:"file_count,omitempty"`
	Errors    []ir.ValidationError `json:"errors,omitempty"`
	Warnings  []ir.ValidationError `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <settings-dir>",
		Short: "Validate group settings",
		Long: `Load the CUE settings in a directory and check group names, role refs,
pattern syntax and pattern references.

Warnings (shadowed built-ins, unknown prefixes, unresolved references) are
reported but do not fail validation.

Exit codes:
  0 - Settings are valid
  1 - Settings have errors
  2 - Command error (directory not found, no CUE files, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	res, err := config.LoadDir(dir)
	if err != nil {
		var loadErr *config.LoadError
		if errors.As(err, &loadErr) && loadErr.Code == config.ErrCodeCompile {
			// A compile error is a problem with the settings, not the command.
			line := 0
			if loadErr.Pos.IsValid() {
				line = loadErr.Pos.Line()
			}
			return outputValidation(formatter, ValidationResult{
				Errors: []ir.ValidationError{{Field: "settings", Message: loadErr.Message, Code: loadErr.Code, Line: line}},
			})
		}
		return loadFailure(formatter, err)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, dir)
	formatter.VerboseLog("Loaded %d role group(s), %d pattern(s)", len(res.Settings.RoleGroups), len(res.Settings.Patterns))

	result := ValidationResult{FileCount: res.FileCount}
	result.Errors, result.Warnings = splitFindings(res.Validate())
	result.Valid = len(result.Errors) == 0
	return outputValidation(formatter, result)
}

// splitFindings separates errors from warnings, keeping their order.
func splitFindings(findings []ir.ValidationError) (errs, warnings []ir.ValidationError) {
	for _, f := range findings {
		if f.Warning {
			warnings = append(warnings, f)
		} else {
			errs = append(errs, f)
		}
	}
	return errs, warnings
}

// loadFailure reports an error from config.LoadDir as a command error.
func loadFailure(f *OutputFormatter, err error) error {
	var loadErr *config.LoadError
	if errors.As(err, &loadErr) {
		return f.Fail(ExitCommandError, loadErr.Code, loadErr.Message)
	}
	return f.Fail(ExitCommandError, config.ErrCodeGeneric, err.Error())
}

func outputValidation(f *OutputFormatter, result ValidationResult) error {
	if f.JSON() {
		response := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    result.Errors[0].Code,
				Message: result.Errors[0].Message,
			}
		}
		encoder := json.NewEncoder(f.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else {
		if result.Valid {
			fmt.Fprintln(f.Writer, "✓ Settings valid")
		} else {
			fmt.Fprintln(f.Writer, "✗ Validation failed")
		}
		printFindings(f, result.Errors)
		printFindings(f, result.Warnings)
	}

	if !result.Valid {
		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}

func printFindings(f *OutputFormatter, findings []ir.ValidationError) {
	for _, e := range findings {
		label := "error"
		if e.Warning {
			label = "warning"
		}
		fmt.Fprintln(f.Writer)
		if e.Line > 0 {
			fmt.Fprintf(f.Writer, "line %d\n", e.Line)
		}
		fmt.Fprintf(f.Writer, "  %s %s: %s: %s\n", label, e.Code, e.Field, e.Message)
	}
}
