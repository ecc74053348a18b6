// Package ratelimit implements the Rate Limiter (C4): per-provider token
// buckets gating LLM call admission, plus hierarchical per-team/per-agent
// USD budgets. Each provider's bucket is a golang.org/x/time/rate.Limiter
// configured to refill its full tokens-per-minute allowance once a
// minute, queried with ReserveN so an unavailable request reports a
// wait_ms estimate instead of blocking (RateLimiter is a shared
// singleton serialized per bucket/team, not a per-caller blocker).
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default per-provider tokens-per-minute bucket size.
var defaultProviderBuckets = map[string]int{
	"anthropic": 80_000,
	"openai":    90_000,
	"google":    60_000,
}

const unknownProviderTokens = 50_000

const (
	DefaultTeamBudgetUSD  = 5.00
	DefaultAgentBudgetUSD = 1.00
)

// bucket wraps a rate.Limiter sized to refill max tokens per minute,
// with burst equal to max so a cold bucket admits a full minute's
// allowance immediately.
type bucket struct {
	limiter *rate.Limiter
	max     float64
}

func newBucket(max float64) *bucket {
	return &bucket{
		limiter: rate.NewLimiter(rate.Limit(max/60.0), int(max)),
		max:     max,
	}
}

// AcquireResult is the outcome of an admission attempt.
type AcquireResult struct {
	OK     bool
	WaitMS int64
}

// agentBudget tracks one agent's spend within a team.
type agentBudget struct {
	Spent      float64
	Limit      float64
	TokensUsed int64
}

// teamBudget tracks a team's aggregate spend plus its agents' spends.
type teamBudget struct {
	Spent  float64
	Limit  float64
	Agents map[string]*agentBudget
}

// BudgetScope names which ceiling was exceeded.
type BudgetScope string

const (
	ScopeTeam  BudgetScope = "team"
	ScopeAgent BudgetScope = "agent"
)

// Usage is one recorded LLM call's accounting delta.
type Usage struct {
	Tokens int64
	Cost   float64
}

// Limiter is the single-writer-per-bucket/team Rate Limiter singleton.
// All mutating operations are serialized through mu, so a team's budget
// and an agent's budget are always updated together atomically.
type Limiter struct {
	mu               sync.Mutex
	buckets          map[string]*bucket
	teams            map[string]*teamBudget
	defaultTeamLimit float64
	defaultAgentLimit float64
}

// New creates a Limiter with the configured default budgets. Zero values
// fall back to the package defaults ($5.00 team / $1.00 agent).
func New(defaultTeamLimit, defaultAgentLimit float64) *Limiter {
	if defaultTeamLimit <= 0 {
		defaultTeamLimit = DefaultTeamBudgetUSD
	}
	if defaultAgentLimit <= 0 {
		defaultAgentLimit = DefaultAgentBudgetUSD
	}
	return &Limiter{
		buckets:           make(map[string]*bucket),
		teams:             make(map[string]*teamBudget),
		defaultTeamLimit:  defaultTeamLimit,
		defaultAgentLimit: defaultAgentLimit,
	}
}

func (l *Limiter) getBucket(provider string) *bucket {
	if b, ok := l.buckets[provider]; ok {
		return b
	}
	max, ok := defaultProviderBuckets[provider]
	if !ok {
		max = unknownProviderTokens
	}
	b := newBucket(float64(max))
	l.buckets[provider] = b
	return b
}

// Acquire attempts to admit an estimated-token LLM call against provider's
// bucket. On insufficient tokens it returns the minimum wait (clamped to
// >=1ms) before retrying, without deducting anything.
func (l *Limiter) Acquire(provider string, estimatedTokens int64) AcquireResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(provider)
	now := time.Now()

	res := b.limiter.ReserveN(now, int(estimatedTokens))
	if !res.OK() {
		// estimatedTokens exceeds the bucket's entire burst capacity; it
		// can never be admitted in one call. Report a full minute's wait
		// as the caller's retry signal.
		return AcquireResult{OK: false, WaitMS: 60_000}
	}

	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now) // don't deduct tokens we can't use yet
		waitMS := delay.Milliseconds()
		if waitMS < 1 {
			waitMS = 1
		}
		return AcquireResult{OK: false, WaitMS: waitMS}
	}
	return AcquireResult{OK: true}
}

func (l *Limiter) getTeam(teamID string) *teamBudget {
	tb, ok := l.teams[teamID]
	if !ok {
		tb = &teamBudget{Limit: l.defaultTeamLimit, Agents: make(map[string]*agentBudget)}
		l.teams[teamID] = tb
	}
	return tb
}

// RecordUsage adds usage to both the team and agent accumulators
// atomically, lazily initializing either as needed. The team ceiling is
// checked first: if both are exceeded, ScopeTeam wins.
func (l *Limiter) RecordUsage(teamID, agentName string, usage Usage) (exceeded bool, scope BudgetScope) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tb := l.getTeam(teamID)
	ab, ok := tb.Agents[agentName]
	if !ok {
		ab = &agentBudget{Limit: l.defaultAgentLimit}
		tb.Agents[agentName] = ab
	}

	tb.Spent += usage.Cost
	ab.Spent += usage.Cost
	ab.TokensUsed += usage.Tokens

	if tb.Spent >= tb.Limit {
		return true, ScopeTeam
	}
	if ab.Spent >= ab.Limit {
		return true, ScopeAgent
	}
	return false, ""
}

// SetAgentLimit overrides a specific agent's budget ceiling.
func (l *Limiter) SetAgentLimit(teamID, agentName string, limit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tb := l.getTeam(teamID)
	ab, ok := tb.Agents[agentName]
	if !ok {
		ab = &agentBudget{}
		tb.Agents[agentName] = ab
	}
	ab.Limit = limit
}

// SetTeamLimit overrides a team's budget ceiling.
func (l *Limiter) SetTeamLimit(teamID string, limit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.getTeam(teamID).Limit = limit
}

// TeamUsage is a read-only snapshot of a team's and its agents' spend.
type TeamUsage struct {
	Spent  float64
	Limit  float64
	Agents map[string]AgentUsage
}

// AgentUsage is a read-only snapshot of one agent's spend.
type AgentUsage struct {
	Spent      float64
	Limit      float64
	TokensUsed int64
}

// GetTeamUsage returns a snapshot of teamID's budget state.
func (l *Limiter) GetTeamUsage(teamID string) TeamUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	tb := l.getTeam(teamID)
	out := TeamUsage{Spent: tb.Spent, Limit: tb.Limit, Agents: make(map[string]AgentUsage, len(tb.Agents))}
	for name, ab := range tb.Agents {
		out.Agents[name] = AgentUsage{Spent: ab.Spent, Limit: ab.Limit, TokensUsed: ab.TokensUsed}
	}
	return out
}

// ResetTeam discards all budget and tracking state for teamID. Called on
// team dissolution.
func (l *Limiter) ResetTeam(teamID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.teams, teamID)
}

// BudgetWarningThreshold is the fraction of the team limit at which a
// budget.warning broadcast should fire.
const BudgetWarningThreshold = 0.8

// NearLimit reports whether teamID's spend has crossed the warning
// threshold of its limit.
func (l *Limiter) NearLimit(teamID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	tb := l.getTeam(teamID)
	if tb.Limit <= 0 {
		return false
	}
	return tb.Spent/tb.Limit >= BudgetWarningThreshold
}
