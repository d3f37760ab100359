package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/config"
	"github.com/roach88/rollcall/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	DBPath string
}

// ImportResult reports what was written.
type ImportResult struct {
	DB         string `json:"db"`
	Revision   int64  `json:"revision"`
	RoleGroups int    `json:"role_groups"`
	Patterns   int    `json:"patterns"`
	Warnings   int    `json:"warnings"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <settings-dir>",
		Short: "Store validated settings in the database",
		Long: `Validate a settings directory and replace the settings stored in the
database with it. The database is created if it does not exist.

Settings with validation errors are not imported.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(opts *ImportOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	res, err := config.LoadDir(dir)
	if err != nil {
		return loadFailure(formatter, err)
	}

	errs, warns := splitFindings(res.Validate())
	if len(errs) > 0 {
		return outputValidation(formatter, ValidationResult{Errors: errs, Warnings: warns})
	}
	for _, w := range warns {
		formatter.VerboseLog("warning %s: %s: %s", w.Code, w.Field, w.Message)
	}
	warnings := len(warns)

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, "E_DB_OPEN", err.Error())
	}
	defer st.Close()

	ctx := cmd.Context()
	if err := st.SaveSettings(ctx, res.Settings); err != nil {
		return formatter.Fail(ExitCommandError, "E_DB_WRITE", err.Error())
	}
	rev, err := st.Revision(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, "E_DB_READ", err.Error())
	}

	result := ImportResult{
		DB:         opts.DBPath,
		Revision:   rev,
		RoleGroups: len(res.Settings.RoleGroups),
		Patterns:   len(res.Settings.Patterns),
		Warnings:   warnings,
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Imported %d role group(s), %d pattern(s) into %s (revision %d)\n",
		result.RoleGroups, result.Patterns, result.DB, result.Revision)
	if warnings > 0 {
		fmt.Fprintf(formatter.Writer, "  %d warning(s), run validate for details\n", warnings)
	}
	return nil
}
