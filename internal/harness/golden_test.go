package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/ir"
)

func TestRunWithGolden_MutedFlip(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/muted_flip.yaml")
	require.NoError(t, err)

	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden_MutedFlip -update
	require.NoError(t, RunWithGolden(t, scenario))
}

func TestAssertGolden_ReusesResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/muted_flip.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.NoError(t, AssertGolden(t, "muted_flip", result))
}

func TestMarshalTrace_Canonical(t *testing.T) {
	n := ir.NewNotification(ir.KindRoleGroups, "vip", ir.ScopeUser, ir.StatusEnter, []ir.EntityID{"B", "A"})
	n.Session = "s-1"
	n.Pass = 7

	r := NewResult()
	r.AddTrace(0, "join B", []ir.Notification{n})
	r.AddTrace(1, "reevaluate all", nil)

	got, err := MarshalTrace("canonical", r)
	require.NoError(t, err)

	want := `{"scenario_name":"canonical","trace":[` +
		`{"action":"join B","notifications":[{"entities":["B","A"],"kind":"role-groups","message":"vip-user-enter","pass":7,"scope":"user","session":"s-1","source":"vip","status":"enter"}],"step":0},` +
		`{"action":"reevaluate all","notifications":[],"step":1}]}`
	assert.Equal(t, want, string(got))
}

func TestMarshalTrace_EmptyTrace(t *testing.T) {
	got, err := MarshalTrace("empty", NewResult())
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"empty","trace":[]}`, string(got))
}
