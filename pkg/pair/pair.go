// Package pair implements Pair Mode (C13): a paired coder+reviewer
// session with a dedicated event topic, backed by the Team Table
// Registry the way the Shared Team Context is.
package pair

import (
	"errors"
	"time"

	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/ids"
	"github.com/treetopdevs/loomteams/pkg/teamtable"
)

var (
	ErrSameAgent = errors.New("same_agent")
	ErrNotFound  = errors.New("not_found")
)

// Event names the five event kinds broadcast_event accepts.
type Event string

const (
	EventIntentBroadcast Event = "intent_broadcast"
	EventFileEdited      Event = "file_edited"
	EventReviewFeedback  Event = "review_feedback"
	EventReviewApproved  Event = "review_approved"
	EventReviewRejected  Event = "review_rejected"
)

// Session is one paired coder+reviewer session.
type Session struct {
	ID        string
	Coder     string
	Reviewer  string
	StartedAt time.Time
	Opts      map[string]any
}

// Sessions owns one team's pair sessions, stored in its Team Table and
// announced over its pub/sub topics.
type Sessions struct {
	teamID string
	table  *teamtable.Table
	bus    *bus.Bus
}

// New wraps teamID's table with the Pair Mode API.
func New(teamID string, table *teamtable.Table, b *bus.Bus) *Sessions {
	return &Sessions{teamID: teamID, table: table, bus: b}
}

// StartPair allocates a pair_id, stores the session, notifies both
// participants on their own topics, and broadcasts
// {pair_session_started, id, coder, reviewer} on the team topic.
func (s *Sessions) StartPair(coder, reviewer string, opts map[string]any) (Session, error) {
	if coder == reviewer {
		return Session{}, ErrSameAgent
	}

	session := Session{ID: ids.New(), Coder: coder, Reviewer: reviewer, StartedAt: time.Now(), Opts: opts}
	s.table.Set(teamtable.PairKey(session.ID), session)

	if s.bus != nil {
		s.bus.Broadcast(bus.Agent(s.teamID, coder), bus.Message{Tag: "pair_started", Payload: map[string]any{
			"id": session.ID, "role": "coder", "peer": reviewer,
		}})
		s.bus.Broadcast(bus.Agent(s.teamID, reviewer), bus.Message{Tag: "pair_started", Payload: map[string]any{
			"id": session.ID, "role": "reviewer", "peer": coder,
		}})
		s.bus.Broadcast(bus.Team(s.teamID), bus.Message{Tag: "pair_session_started", Payload: map[string]any{
			"id": session.ID, "coder": coder, "reviewer": reviewer,
		}})
	}
	return session, nil
}

// GetPair returns the session for pairID, if live.
func (s *Sessions) GetPair(pairID string) (Session, bool) {
	v, ok := s.table.Get(teamtable.PairKey(pairID))
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

// BroadcastEvent publishes {pair_event, {event, from, pair_id, payload,
// ts}} on the pair's dedicated topic team:T:pair:<id>.
func (s *Sessions) BroadcastEvent(pairID string, event Event, from string, payload map[string]any) error {
	if _, ok := s.GetPair(pairID); !ok {
		return ErrNotFound
	}
	if s.bus != nil {
		s.bus.Broadcast(bus.Pair(s.teamID, pairID), bus.Message{Tag: "pair_event", Payload: map[string]any{
			"event": event, "from": from, "pair_id": pairID, "payload": payload, "ts": time.Now(),
		}})
	}
	return nil
}

// StopPair reverses StartPair's setup and broadcasts {pair_session_stopped, id}.
func (s *Sessions) StopPair(pairID string) error {
	session, ok := s.GetPair(pairID)
	if !ok {
		return ErrNotFound
	}
	s.table.Delete(teamtable.PairKey(pairID))

	if s.bus != nil {
		s.bus.Broadcast(bus.Team(s.teamID), bus.Message{Tag: "pair_session_stopped", Payload: map[string]any{
			"id": session.ID,
		}})
	}
	return nil
}
