package modelrouter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscalationChain(t *testing.T) {
	r := New(Config{
		DefaultModel: "zai:glm-5",
		EscalationChain: []string{
			"zai:glm-5", "anthropic:claude-sonnet-4-6", "anthropic:claude-opus-4-6",
		},
	})

	next, outcome := r.Escalate("zai:glm-5")
	require.Equal(t, EscalateOK, outcome)
	require.Equal(t, "anthropic:claude-sonnet-4-6", next)

	_, outcome = r.Escalate("anthropic:claude-opus-4-6")
	require.Equal(t, EscalateMaxReached, outcome)
}

func TestEscalationDisabledWithoutChain(t *testing.T) {
	r := New(Config{DefaultModel: "zai:glm-5"})
	require.False(t, r.EscalationEnabled())
	_, outcome := r.Escalate("zai:glm-5")
	require.Equal(t, EscalateDisabled, outcome)
}

func TestShouldEscalateThreshold(t *testing.T) {
	r := New(Config{DefaultModel: "zai:glm-5"})
	require.False(t, r.ShouldEscalate("T", "coder", "t1", 2))
	r.RecordFailure("T", "coder", "t1")
	require.False(t, r.ShouldEscalate("T", "coder", "t1", 2))
	r.RecordFailure("T", "coder", "t1")
	require.True(t, r.ShouldEscalate("T", "coder", "t1", 2))
}

func TestSuccessRateSequence(t *testing.T) {
	r := New(Config{DefaultModel: "zai:glm-5"})
	r.RecordSuccess("T", "coder", "t1", "zai:glm-5")
	r.RecordAttempt("zai:glm-5")
	r.RecordSuccess("T", "coder", "t1", "zai:glm-5")

	require.InDelta(t, 2.0/3.0, r.GetSuccessRate("zai:glm-5"), 1e-9)
}

func TestSuccessRateDefaultsToOneWithNoData(t *testing.T) {
	r := New(Config{DefaultModel: "zai:glm-5"})
	require.Equal(t, 1.0, r.GetSuccessRate("never-tried"))
}

func TestSelectResolvesHintOrDefault(t *testing.T) {
	r := New(Config{DefaultModel: "zai:glm-5"})
	require.Equal(t, "zai:glm-5", r.Select("coder", nil))
	require.Equal(t, "anthropic:claude-opus-4-6", r.Select("coder", &Task{ModelHint: "best"}))
	require.Equal(t, "anthropic:claude-haiku-4-5", r.Select("coder", &Task{ModelHint: "anthropic:claude-haiku-4-5"}))
}
