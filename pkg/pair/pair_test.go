package pair

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/teamtable"
)

func newSessions() (*Sessions, *bus.Bus) {
	b := bus.New(16)
	reg := teamtable.NewRegistry()
	table := reg.Create("T")
	return New("T", table, b), b
}

func TestStartPairRejectsSameAgent(t *testing.T) {
	s, _ := newSessions()
	_, err := s.StartPair("coder-1", "coder-1", nil)
	require.ErrorIs(t, err, ErrSameAgent)
}

func TestStartPairNotifiesBothParticipantsAndTeam(t *testing.T) {
	s, b := newSessions()
	coderSub := b.Subscribe(bus.Agent("T", "coder-1"))
	reviewerSub := b.Subscribe(bus.Agent("T", "reviewer-1"))
	teamSub := b.Subscribe(bus.Team("T"))

	session, err := s.StartPair("coder-1", "reviewer-1", map[string]any{"focus": "auth"})
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)

	coderMsg := <-coderSub.C
	require.Equal(t, "pair_started", coderMsg.Tag)
	require.Equal(t, "coder", coderMsg.Payload.(map[string]any)["role"])

	reviewerMsg := <-reviewerSub.C
	require.Equal(t, "reviewer", reviewerMsg.Payload.(map[string]any)["role"])

	teamMsg := <-teamSub.C
	require.Equal(t, "pair_session_started", teamMsg.Tag)
}

func TestBroadcastEventPublishesOnPairTopic(t *testing.T) {
	s, b := newSessions()
	session, err := s.StartPair("coder-1", "reviewer-1", nil)
	require.NoError(t, err)

	pairSub := b.Subscribe(bus.Pair("T", session.ID))
	require.NoError(t, s.BroadcastEvent(session.ID, EventFileEdited, "coder-1", map[string]any{"path": "main.go"}))

	msg := <-pairSub.C
	require.Equal(t, "pair_event", msg.Tag)
	payload := msg.Payload.(map[string]any)
	require.Equal(t, EventFileEdited, payload["event"])
}

func TestBroadcastEventUnknownPairReturnsNotFound(t *testing.T) {
	s, _ := newSessions()
	err := s.BroadcastEvent("nonexistent", EventFileEdited, "coder-1", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStopPairRemovesSessionAndBroadcasts(t *testing.T) {
	s, b := newSessions()
	session, _ := s.StartPair("coder-1", "reviewer-1", nil)
	teamSub := b.Subscribe(bus.Team("T"))

	require.NoError(t, s.StopPair(session.ID))
	_, ok := s.GetPair(session.ID)
	require.False(t, ok)

	msg := <-teamSub.C
	require.Equal(t, "pair_session_stopped", msg.Tag)
}

func TestStopPairUnknownReturnsNotFound(t *testing.T) {
	s, _ := newSessions()
	require.ErrorIs(t, s.StopPair("nonexistent"), ErrNotFound)
}
