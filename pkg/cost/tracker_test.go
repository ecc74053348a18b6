package cost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBudgetMathTwoCalls(t *testing.T) {
	tr := New()
	cost := 0.01
	tr.RecordUsage("T", "coder", UsageRecord{InputTokens: 100, Cost: &cost, Model: "zai:glm-5"})
	tr.RecordUsage("T", "coder", UsageRecord{InputTokens: 100, Cost: &cost, Model: "zai:glm-5"})

	u := tr.GetAgentUsage("T", "coder")
	require.Equal(t, int64(200), u.InputTokens)
	require.InDelta(t, 0.02, u.Cost, 1e-9)
	require.Equal(t, int64(2), u.Requests)
	require.Equal(t, "zai:glm-5", u.LastModel)

	team := tr.GetTeamUsage("T")
	require.InDelta(t, 0.02, team["coder"].Cost, 1e-9)
}

func TestCostFallsBackToPricingTable(t *testing.T) {
	tr := New()
	tr.RecordUsage("T", "coder", UsageRecord{InputTokens: 1_000_000, OutputTokens: 1_000_000, Model: "zai:glm-4.5"})
	u := tr.GetAgentUsage("T", "coder")
	require.InDelta(t, 0.55+2.19, u.Cost, 1e-9)
}

func TestRecordCallLogNewestFirst(t *testing.T) {
	tr := New()
	tr.RecordCall("T", "coder", UsageRecord{Model: "m1"})
	tr.RecordCall("T", "coder", UsageRecord{Model: "m2"})

	a := tr.acc("T", "coder")
	require.Len(t, a.Calls, 2)
	require.Equal(t, "m2", a.Calls[0].Model)
	require.Equal(t, "m1", a.Calls[1].Model)
}

func TestResetClearsTeam(t *testing.T) {
	tr := New()
	tr.RecordUsage("T", "coder", UsageRecord{InputTokens: 10, Model: "zai:glm-5"})
	tr.Reset("T")
	u := tr.GetAgentUsage("T", "coder")
	require.Equal(t, int64(0), u.Requests)
}
