// Package debate implements the Debate Orchestrator (C12): a bounded-round
// propose/critique/revise/vote protocol over N≥2 agents, collected over a
// dedicated pub/sub topic per round and recorded into the decision graph.
package debate

import (
	"context"
	"errors"
	"time"

	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/decisions"
	"github.com/treetopdevs/loomteams/pkg/ids"
)

var ErrInsufficientParticipants = errors.New("insufficient_participants")

const (
	DefaultMaxRounds    = 3
	DefaultRoundTimeout = 30 * time.Second
)

// ResponseKind names the four response shapes a participant can send back
// on the debate topic.
type ResponseKind string

const (
	KindProposal ResponseKind = "proposal"
	KindCritique ResponseKind = "critique"
	KindRevision ResponseKind = "revision"
	KindChoice   ResponseKind = "choice"
)

// Response is one participant's reply for the current phase. TargetNodeID
// links a critique to the proposal node it addresses; Choice carries a
// vote's selected proposal author.
type Response struct {
	From         string
	Kind         ResponseKind
	Content      string
	TargetNodeID string
	Choice       string
}

// RoundLog records one round's collected proposals and critiques, for
// callers that want the full transcript rather than just the outcome.
type RoundLog struct {
	Round     int
	Proposals map[string]string
	Critiques []Response
}

// Outcome is a finished debate's result.
type Outcome struct {
	DebateID  string
	Topic     string
	Rounds    []RoundLog
	Votes     map[string]string // voter -> choice
	Winner    string
	Consensus bool
}

// Orchestrator drives debates for one installation. bus is used both to
// dispatch phase prompts to participants and to collect their responses;
// graph is where proposals/critiques are recorded.
type Orchestrator struct {
	bus          *bus.Bus
	graph        *decisions.Graph
	maxRounds    int
	roundTimeout time.Duration
}

// Config configures an Orchestrator. Zero values fall back to the
// package defaults (3 rounds, 30s per-round timeout).
type Config struct {
	MaxRounds    int
	RoundTimeout time.Duration
}

func New(b *bus.Bus, graph *decisions.Graph, cfg Config) *Orchestrator {
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	timeout := cfg.RoundTimeout
	if timeout <= 0 {
		timeout = DefaultRoundTimeout
	}
	return &Orchestrator{bus: b, graph: graph, maxRounds: maxRounds, roundTimeout: timeout}
}

// Run drives a full debate over topic among participants, returning the
// decided Outcome. Rejects fewer than 2 participants.
func (o *Orchestrator) Run(ctx context.Context, teamID, topic string, participants []string) (*Outcome, error) {
	if len(participants) < 2 {
		return nil, ErrInsufficientParticipants
	}

	debateID := ids.New()
	debateTopic := bus.Debate(teamID, debateID)
	sub := o.bus.Subscribe(debateTopic)
	defer sub.Unsubscribe()

	proposals := make(map[string]string) // agent -> current proposal content
	var rounds []RoundLog

	for round := 1; round <= o.maxRounds; round++ {
		proposed := o.collect(ctx, teamID, debateTopic, sub, "debate_propose", round,
			map[string]any{"topic": topic}, participants, KindProposal)
		for agent, resp := range proposed {
			proposals[agent] = resp.Content
			o.logNode(teamID, decisions.NodeOption, agent, resp.Content)
		}

		othersProposals := snapshot(proposals)
		critiqued := o.collect(ctx, teamID, debateTopic, sub, "debate_critique", round,
			map[string]any{"others_proposals": othersProposals}, participants, KindCritique)

		var critiques []Response
		for _, resp := range critiqued {
			critiques = append(critiques, resp)
			nodeID := o.logNodeReturningID(teamID, decisions.NodeObservation, resp.From, resp.Content)
			if resp.TargetNodeID != "" && nodeID != "" {
				o.graph.LinkNodes(decisions.Edge{
					TeamID: teamID, Kind: decisions.EdgeSupports, FromID: nodeID, ToID: resp.TargetNodeID,
				})
			}
		}

		revised := o.collect(ctx, teamID, debateTopic, sub, "debate_revise", round,
			map[string]any{"my_critiques": critiques}, participants, KindRevision)
		for agent, resp := range revised {
			proposals[agent] = resp.Content
		}

		rounds = append(rounds, RoundLog{Round: round, Proposals: snapshot(proposals), Critiques: critiques})
	}

	finalProposals := snapshot(proposals)
	voted := o.collect(ctx, teamID, debateTopic, sub, "debate_vote", o.maxRounds,
		map[string]any{"final_proposals": finalProposals}, participants, KindChoice)

	votes := make(map[string]string, len(voted))
	for agent, resp := range voted {
		votes[agent] = resp.Choice
	}
	winner, consensus := tally(votes, len(participants))

	return &Outcome{
		DebateID: debateID, Topic: topic, Rounds: rounds,
		Votes: votes, Winner: winner, Consensus: consensus,
	}, nil
}

// collect broadcasts tag to every participant's agent topic, then drains
// sub for up to o.roundTimeout, keeping the first matching-kind response
// per participant and ignoring later duplicates from the same agent in
// the same phase.
func (o *Orchestrator) collect(ctx context.Context, teamID, debateTopic string, sub *bus.Subscription,
	tag string, round int, extra map[string]any, participants []string, kind ResponseKind) map[string]Response {

	payload := map[string]any{"round": round, "debate_topic": debateTopic}
	for k, v := range extra {
		payload[k] = v
	}
	participantSet := make(map[string]bool, len(participants))
	for _, p := range participants {
		participantSet[p] = true
	}
	for _, p := range participants {
		o.bus.Broadcast(bus.Agent(teamID, p), bus.Message{Tag: tag, Payload: payload})
	}

	out := make(map[string]Response)
	deadline := time.NewTimer(o.roundTimeout)
	defer deadline.Stop()

	for len(out) < len(participants) {
		select {
		case <-ctx.Done():
			return out
		case <-deadline.C:
			return out
		case msg := <-sub.C:
			resp, ok := msg.Payload.(Response)
			if !ok || resp.Kind != kind || !participantSet[resp.From] {
				continue
			}
			if _, already := out[resp.From]; already {
				continue
			}
			out[resp.From] = resp
		}
	}
	return out
}

func (o *Orchestrator) logNode(teamID string, kind decisions.NodeKind, author, content string) {
	o.logNodeReturningID(teamID, kind, author, content)
}

func (o *Orchestrator) logNodeReturningID(teamID string, kind decisions.NodeKind, author, content string) string {
	if o.graph == nil {
		return ""
	}
	id := ids.New()
	err := o.graph.LogNode(decisions.Node{
		ID: id, TeamID: teamID, Kind: kind, Author: author, Content: content, CreatedAt: time.Now(),
	})
	if err != nil {
		return ""
	}
	return id
}

func snapshot(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// tally picks the winner as the argmax-count choice; consensus holds
// iff every vote agrees and every participant voted.
func tally(votes map[string]string, participantCount int) (winner string, consensus bool) {
	counts := make(map[string]int)
	for _, choice := range votes {
		counts[choice]++
	}
	best := -1
	for choice, n := range counts {
		if n > best {
			best = n
			winner = choice
		}
	}
	consensus = len(counts) <= 1 && len(votes) == participantCount
	return winner, consensus
}
