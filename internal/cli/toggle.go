package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/config"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/store"
)

// ToggleOptions holds flags for the toggle command.
type ToggleOptions struct {
	*RootOptions
	DBPath  string
	Enabled bool
}

// ToggleResult reports the stored change.
type ToggleResult struct {
	Kind     ir.CheckKind `json:"kind"`
	Name     string       `json:"name,omitempty"`
	Enabled  bool         `json:"enabled"`
	Revision int64        `json:"revision"`
}

// NewToggleCommand creates the toggle command.
func NewToggleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ToggleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "toggle <kind> [name]",
		Short: "Enable or disable a stored group or check",
		Long: `Enable or disable a group in the stored settings.

role-groups and patterns take the group name. Other kinds toggle the whole
check and take no name. A running server picks the change up on its next
settings reload; use the control API to toggle a live server.

Examples:
  rollcall toggle --db rollcall.db role-groups vip --enabled=false
  rollcall toggle --db rollcall.db muted --enabled`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToggle(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Enabled, "enabled", true, "enable (true) or disable (false)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runToggle(opts *ToggleOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	kind, ok := ir.ParseCheckKind(args[0])
	if !ok {
		return formatter.Fail(ExitCommandError, ir.ErrUnknownCheck, fmt.Sprintf("unknown kind %q", args[0]))
	}
	name := ""
	if len(args) == 2 {
		name = args[1]
	}
	switch {
	case kind.MultiSource() && name == "":
		return formatter.Fail(ExitCommandError, "E001", fmt.Sprintf("%s needs a group name", kind))
	case !kind.MultiSource() && name != "":
		return formatter.Fail(ExitCommandError, "E001", fmt.Sprintf("%s is a single check and takes no name", kind))
	}

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, "E_DB_OPEN", err.Error())
	}
	defer st.Close()

	ctx := cmd.Context()
	if _, err := st.LoadSettings(ctx); errors.Is(err, store.ErrNoSettings) {
		return formatter.Fail(ExitCommandError, "E_NO_SETTINGS", "database holds no settings, run import first")
	} else if err != nil {
		return formatter.Fail(ExitCommandError, "E_DB_READ", err.Error())
	}

	if kind.MultiSource() {
		found, err := st.SetGroupEnabled(ctx, kind, name, opts.Enabled)
		if err != nil {
			return formatter.Fail(ExitCommandError, "E_DB_WRITE", err.Error())
		}
		if !found {
			return formatter.Fail(ExitCommandError, config.ErrCodeNotFound, fmt.Sprintf("no %s group named %q", kind, name))
		}
	} else if err := st.SetCheckEnabled(ctx, kind, opts.Enabled); err != nil {
		return formatter.Fail(ExitCommandError, "E_DB_WRITE", err.Error())
	}

	rev, err := st.Revision(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, "E_DB_READ", err.Error())
	}

	result := ToggleResult{Kind: kind, Name: name, Enabled: opts.Enabled, Revision: rev}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	state := "disabled"
	if opts.Enabled {
		state = "enabled"
	}
	target := string(kind)
	if name != "" {
		target += "/" + name
	}
	fmt.Fprintf(formatter.Writer, "✓ %s %s (revision %d)\n", target, state, rev)
	return nil
}
