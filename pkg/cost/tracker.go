// Package cost implements the Cost Tracker (C5): per-agent accumulators of
// tokens/cost/calls/escalations, a newest-first call log, and an
// escalation log. Cost resolution prefers the usage record's own reported
// cost and falls back to the Pricing table when only tokens are known.
package cost

import (
	"sync"
	"time"

	"github.com/treetopdevs/loomteams/pkg/pricing"
)

// UsageRecord is one LLM call's raw accounting input.
type UsageRecord struct {
	InputTokens  int64
	OutputTokens int64
	Cost         *float64 // nil means "compute via pricing.Calculate"
	Model        string
}

// CallLogEntry is one entry in an agent's per-call log.
type CallLogEntry struct {
	At           time.Time
	Model        string
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// EscalationLogEntry records one model escalation event.
type EscalationLogEntry struct {
	At       time.Time
	TaskID   string
	OldModel string
	NewModel string
}

// AgentAccumulator is the running total for a single agent.
type AgentAccumulator struct {
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Requests     int64
	LastModel    string
	Calls        []CallLogEntry // newest-first
	Escalations  []EscalationLogEntry
}

// Tracker owns per-team, per-agent cost accumulators.
type Tracker struct {
	mu    sync.Mutex
	teams map[string]map[string]*AgentAccumulator
}

func New() *Tracker {
	return &Tracker{teams: make(map[string]map[string]*AgentAccumulator)}
}

func (t *Tracker) acc(teamID, agentName string) *AgentAccumulator {
	agents, ok := t.teams[teamID]
	if !ok {
		agents = make(map[string]*AgentAccumulator)
		t.teams[teamID] = agents
	}
	a, ok := agents[agentName]
	if !ok {
		a = &AgentAccumulator{}
		agents[agentName] = a
	}
	return a
}

// resolveCost applies the fallback rule: use the record's own cost if
// present, else compute via the pricing table from model+tokens.
func resolveCost(u UsageRecord) float64 {
	if u.Cost != nil {
		return *u.Cost
	}
	return pricing.Calculate(u.Model, u.InputTokens, u.OutputTokens)
}

// RecordUsage adds one call's tokens/cost to the agent's running total.
func (t *Tracker) RecordUsage(teamID, agentName string, u UsageRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.acc(teamID, agentName)
	cost := resolveCost(u)
	a.InputTokens += u.InputTokens
	a.OutputTokens += u.OutputTokens
	a.Cost += cost
	a.Requests++
	a.LastModel = u.Model
}

// RecordCall appends a call-log entry (kept separate from RecordUsage so
// callers that already resolved cost via RecordUsage don't recompute it).
func (t *Tracker) RecordCall(teamID, agentName string, u UsageRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.acc(teamID, agentName)
	entry := CallLogEntry{
		At: time.Now(), Model: u.Model,
		InputTokens: u.InputTokens, OutputTokens: u.OutputTokens,
		Cost: resolveCost(u),
	}
	a.Calls = append([]CallLogEntry{entry}, a.Calls...)
}

// RecordEscalation appends an escalation-log entry for agentName.
func (t *Tracker) RecordEscalation(teamID, agentName, taskID, oldModel, newModel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.acc(teamID, agentName)
	a.Escalations = append(a.Escalations, EscalationLogEntry{
		At: time.Now(), TaskID: taskID, OldModel: oldModel, NewModel: newModel,
	})
}

// AgentUsageSnapshot is a read-only view of one agent's accumulator.
type AgentUsageSnapshot struct {
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Requests     int64
	LastModel    string
}

// GetAgentUsage returns a snapshot of agentName's accumulator within team.
func (t *Tracker) GetAgentUsage(teamID, agentName string) AgentUsageSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.acc(teamID, agentName)
	return AgentUsageSnapshot{
		InputTokens: a.InputTokens, OutputTokens: a.OutputTokens,
		Cost: a.Cost, Requests: a.Requests, LastModel: a.LastModel,
	}
}

// GetTeamUsage returns a snapshot of every agent's accumulator for team.
func (t *Tracker) GetTeamUsage(teamID string) map[string]AgentUsageSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	agents, ok := t.teams[teamID]
	out := make(map[string]AgentUsageSnapshot, len(agents))
	if !ok {
		return out
	}
	for name, a := range agents {
		out[name] = AgentUsageSnapshot{
			InputTokens: a.InputTokens, OutputTokens: a.OutputTokens,
			Cost: a.Cost, Requests: a.Requests, LastModel: a.LastModel,
		}
	}
	return out
}

// TeamCostAggregate sums cost/tokens/requests across every agent in team.
func (t *Tracker) TeamCostAggregate(teamID string) (totalCost float64, totalTokens int64, requests int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	agents := t.teams[teamID]
	for _, a := range agents {
		totalCost += a.Cost
		totalTokens += a.InputTokens + a.OutputTokens
		requests += a.Requests
	}
	return
}

// Reset discards all accumulators for team. Called on team dissolution.
func (t *Tracker) Reset(teamID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.teams, teamID)
}
