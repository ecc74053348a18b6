package debate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/decisions"
)

// fakeStore is a minimal in-memory decisions.Store for these tests.
type fakeStore struct {
	nodes []decisions.Node
	edges []decisions.Edge
}

func (s *fakeStore) InsertDecisionNode(n decisions.Node) error {
	s.nodes = append(s.nodes, n)
	return nil
}
func (s *fakeStore) InsertDecisionEdge(e decisions.Edge) error {
	s.edges = append(s.edges, e)
	return nil
}
func (s *fakeStore) ListDecisionNodes(f decisions.Filters) ([]decisions.Node, error) {
	return s.nodes, nil
}
func (s *fakeStore) UpdateDecisionNode(n decisions.Node) (decisions.Node, error) { return n, nil }

// scriptedParticipant replies to every phase message with a fixed vote
// choice and a one-line proposal/critique/revision, mimicking an agent
// that always proposes its own name and votes for the given vote.
func scriptedParticipant(t *testing.T, b *bus.Bus, teamID, name, vote string, stop <-chan struct{}) {
	sub := b.Subscribe(bus.Agent(teamID, name))
	go func() {
		for {
			select {
			case <-stop:
				return
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				payload, ok := msg.Payload.(map[string]any)
				if !ok {
					continue
				}
				debateTopic, _ := payload["debate_topic"].(string)
				var resp Response
				switch msg.Tag {
				case "debate_propose":
					resp = Response{From: name, Kind: KindProposal, Content: name + "'s plan"}
				case "debate_critique":
					resp = Response{From: name, Kind: KindCritique, Content: "looks fine"}
				case "debate_revise":
					resp = Response{From: name, Kind: KindRevision, Content: name + "'s revised plan"}
				case "debate_vote":
					resp = Response{From: name, Kind: KindChoice, Choice: vote}
				default:
					continue
				}
				b.Broadcast(debateTopic, bus.Message{Payload: resp})
			}
		}
	}()
}

func TestRunRejectsFewerThanTwoParticipants(t *testing.T) {
	b := bus.New(16)
	o := New(b, decisions.New(&fakeStore{}), Config{})
	_, err := o.Run(context.Background(), "T", "topic", []string{"alice"})
	require.ErrorIs(t, err, ErrInsufficientParticipants)
}

func TestRunReachesConsensusWhenAllVotesAgree(t *testing.T) {
	b := bus.New(16)
	store := &fakeStore{}
	o := New(b, decisions.New(store), Config{MaxRounds: 1, RoundTimeout: 2 * time.Second})

	stop := make(chan struct{})
	defer close(stop)
	scriptedParticipant(t, b, "T", "alice", "alice", stop)
	scriptedParticipant(t, b, "T", "bob", "alice", stop)

	outcome, err := o.Run(context.Background(), "T", "which approach", []string{"alice", "bob"})
	require.NoError(t, err)
	require.True(t, outcome.Consensus)
	require.Equal(t, "alice", outcome.Winner)
	require.Len(t, outcome.Rounds, 1)
	require.Equal(t, "alice's revised plan", outcome.Rounds[0].Proposals["alice"])
}

func TestRunNoConsensusWhenVotesSplit(t *testing.T) {
	b := bus.New(16)
	o := New(b, decisions.New(&fakeStore{}), Config{MaxRounds: 1, RoundTimeout: 2 * time.Second})

	stop := make(chan struct{})
	defer close(stop)
	scriptedParticipant(t, b, "T", "alice", "alice", stop)
	scriptedParticipant(t, b, "T", "bob", "bob", stop)

	outcome, err := o.Run(context.Background(), "T", "which approach", []string{"alice", "bob"})
	require.NoError(t, err)
	require.False(t, outcome.Consensus)
}

func TestRunToleratesMissingParticipantViaTimeout(t *testing.T) {
	b := bus.New(16)
	o := New(b, decisions.New(&fakeStore{}), Config{MaxRounds: 1, RoundTimeout: 150 * time.Millisecond})

	stop := make(chan struct{})
	defer close(stop)
	scriptedParticipant(t, b, "T", "alice", "alice", stop)
	// bob never responds.

	outcome, err := o.Run(context.Background(), "T", "which approach", []string{"alice", "bob"})
	require.NoError(t, err)
	require.Len(t, outcome.Votes, 1)
	require.False(t, outcome.Consensus)
}

func TestRunLogsProposalsAsOptionNodes(t *testing.T) {
	b := bus.New(16)
	store := &fakeStore{}
	o := New(b, decisions.New(store), Config{MaxRounds: 1, RoundTimeout: 2 * time.Second})

	stop := make(chan struct{})
	defer close(stop)
	scriptedParticipant(t, b, "T", "alice", "alice", stop)
	scriptedParticipant(t, b, "T", "bob", "alice", stop)

	_, err := o.Run(context.Background(), "T", "which approach", []string{"alice", "bob"})
	require.NoError(t, err)

	var optionCount, observationCount int
	for _, n := range store.nodes {
		switch n.Kind {
		case decisions.NodeOption:
			optionCount++
		case decisions.NodeObservation:
			observationCount++
		}
	}
	require.Equal(t, 2, optionCount)
	require.Equal(t, 2, observationCount)
}
