// Package queryrouter implements the Query Router (C7): ask/answer/
// forward message routing between agents, with hop-count bounding and
// Context Keeper enrichment lookups.
package queryrouter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/ids"
	"github.com/treetopdevs/loomteams/pkg/keeper"
)

const defaultMaxHops = 5

// Query is one in-flight question routed between agents.
type Query struct {
	ID          string
	TeamID      string
	Origin      string
	Question    string
	Target      string // "" means broadcast
	Hops        []string
	Enrichments []string
	Answer      string
	CreatedAt   time.Time
	MaxHops     int
}

// KeeperLookup exposes the subset of a team's registered Keepers the
// router needs for enrichment: its topic and a smart_retrieve call.
type KeeperLookup interface {
	Topic() string
	SmartRetrieve(ctx context.Context, query string) string
}

// KeeperProvider returns the currently-registered Keepers for a team.
type KeeperProvider func(teamID string) []KeeperLookup

// Router owns in-flight queries and dispatches query/answer messages
// over the bus.
type Router struct {
	mu      sync.Mutex
	queries map[string]*Query
	bus     *bus.Bus
	keepers KeeperProvider
}

func New(b *bus.Bus, keepers KeeperProvider) *Router {
	return &Router{queries: make(map[string]*Query), bus: b, keepers: keepers}
}

// AskOpts carries ask's optional fields.
type AskOpts struct {
	Target  string
	MaxHops int
}

// Ask creates a Query, gathers keeper enrichments, and dispatches a
// {query, id, from, question, enrichments} message — directly to
// opts.Target if set, else broadcast to the team.
func (r *Router) Ask(ctx context.Context, teamID, from, question string, opts AskOpts) *Query {
	maxHops := opts.MaxHops
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	q := &Query{
		ID: ids.New(), TeamID: teamID, Origin: from, Question: question,
		Target: opts.Target, CreatedAt: time.Now(), MaxHops: maxHops,
	}
	q.Enrichments = r.gatherEnrichments(ctx, teamID, question)

	r.mu.Lock()
	r.queries[q.ID] = q
	r.mu.Unlock()

	r.dispatchQuery(teamID, q, from)
	return q
}

// gatherEnrichments calls smart_retrieve, in turn, on the team's Keepers
// whose topic has non-zero word overlap with question, stops at the
// first non-empty answer, and returns it prefixed with "[Context
// Keeper]: ". A failed or panicking keeper lookup never blocks routing.
func (r *Router) gatherEnrichments(ctx context.Context, teamID, question string) []string {
	if r.keepers == nil {
		return nil
	}
	var best string
	func() {
		defer func() { _ = recover() }()
		qWords := wordSet(question)
		for _, kp := range r.keepers(teamID) {
			if overlap(wordSet(kp.Topic()), qWords) == 0 {
				continue
			}
			best = kp.SmartRetrieve(ctx, question)
			if best != "" {
				break
			}
		}
	}()
	if best == "" {
		return nil
	}
	return []string{"[Context Keeper]: " + best}
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

func (r *Router) dispatchQuery(teamID string, q *Query, from string) {
	if r.bus == nil {
		return
	}
	payload := map[string]any{
		"query_id": q.ID, "from": from, "question": q.Question, "enrichments": q.Enrichments,
	}
	if q.Target != "" {
		r.bus.Broadcast(bus.Agent(teamID, q.Target), bus.Message{Tag: "query", Payload: payload})
	} else {
		r.bus.Broadcast(bus.Team(teamID), bus.Message{Tag: "query", Payload: payload})
	}
}

// ForwardOutcome names Forward's result shape.
type ForwardOutcome string

const (
	ForwardOK            ForwardOutcome = "ok"
	ForwardMaxHopsReached ForwardOutcome = "max_hops_reached"
	ForwardNotFound      ForwardOutcome = "not_found"
)

// Forward appends from to hops and enrichment to enrichments, rejecting
// once len(hops) exceeds max_hops, else re-dispatching to target.
func (r *Router) Forward(id, from, target, enrichment string) ForwardOutcome {
	r.mu.Lock()
	q, ok := r.queries[id]
	if !ok {
		r.mu.Unlock()
		return ForwardNotFound
	}
	q.Hops = append(q.Hops, from)
	if enrichment != "" {
		q.Enrichments = append(q.Enrichments, enrichment)
	}
	if len(q.Hops) > q.MaxHops {
		r.mu.Unlock()
		return ForwardMaxHopsReached
	}
	q.Target = target
	enrichments := append([]string{}, q.Enrichments...)
	teamID := q.TeamID
	question := q.Question
	qid := q.ID
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Broadcast(bus.Agent(teamID, target), bus.Message{Tag: "query", Payload: map[string]any{
			"query_id": qid, "from": from, "question": question, "enrichments": enrichments,
		}})
	}
	return ForwardOK
}

// Answer sets answer, appends from to hops, and delivers
// {query_answer, id, from, answer, enrichments} to the origin agent.
func (r *Router) Answer(id, from, answer string) ForwardOutcome {
	r.mu.Lock()
	q, ok := r.queries[id]
	if !ok {
		r.mu.Unlock()
		return ForwardNotFound
	}
	q.Answer = answer
	q.Hops = append(q.Hops, from)
	enrichments := append([]string{}, q.Enrichments...)
	teamID := q.TeamID
	origin := q.Origin
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Broadcast(bus.Agent(teamID, origin), bus.Message{Tag: "query_answer", Payload: map[string]any{
			"query_id": id, "from": from, "answer": answer, "enrichments": enrichments,
		}})
	}
	return ForwardOK
}

// GetQuery returns a snapshot of the query, if it exists.
func (r *Router) GetQuery(id string) (Query, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queries[id]
	if !ok {
		return Query{}, false
	}
	return *q, true
}

// ExpireStale drops all queries older than ttlMS and returns the count removed.
func (r *Router) ExpireStale(ttlMS int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Duration(ttlMS) * time.Millisecond
	now := time.Now()
	removed := 0
	for id, q := range r.queries {
		if now.Sub(q.CreatedAt) >= cutoff {
			delete(r.queries, id)
			removed++
		}
	}
	return removed
}
