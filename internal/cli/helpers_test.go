package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const scenarioDir = "../harness/testdata/scenarios"

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(diag)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), diag.String(), err
}

// writeSettings writes a single settings.cue into a fresh directory.
func writeSettings(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	src := "package settings\n\n" + body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.cue"), []byte(src), 0644))
	return dir
}
