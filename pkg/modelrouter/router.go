// Package modelrouter implements the Model Router (C6): model selection
// for a task, per-agent/task failure tracking with a threshold check
// (ShouldEscalate), per-model success-rate statistics, and a configured
// escalation chain.
package modelrouter

import "sync"

// EscalateOutcome names the shape of Escalate's result.
type EscalateOutcome string

const (
	EscalateOK         EscalateOutcome = "ok"
	EscalateMaxReached EscalateOutcome = "max_reached"
	EscalateDisabled   EscalateOutcome = "disabled"
)

type failureKey struct {
	teamID, agentName, taskID string
}

type modelStats struct {
	Successes int64
	Attempts  int64
}

// Router selects models, tracks per-task failure counts, and drives the
// configured escalation chain.
type Router struct {
	mu             sync.Mutex
	defaultModel   string
	chain          []string // escalation chain, ordered low->high; empty disables escalation
	failures       map[failureKey]int
	stats          map[string]*modelStats
}

// Config supplies the router's static configuration.
type Config struct {
	DefaultModel string
	// EscalationChain is an ordered list of >=2 "provider:model" strings.
	// Absence (nil or len<2) disables escalation.
	EscalationChain []string
}

func New(cfg Config) *Router {
	chain := cfg.EscalationChain
	if len(chain) < 2 {
		chain = nil
	}
	return &Router{
		defaultModel: cfg.DefaultModel,
		chain:        chain,
		failures:     make(map[failureKey]int),
		stats:        make(map[string]*modelStats),
	}
}

// Task is the minimal task view the router needs to resolve a model hint.
type Task struct {
	ModelHint string
}

// legacyTierAliases maps historic tier names to concrete models, so a
// task.model_hint of "fast" or "strong" still resolves to a real model
// even though the catalog now speaks in "provider:model" strings.
var legacyTierAliases = map[string]string{
	"fast":    "zai:glm-4.5",
	"default": "zai:glm-5",
	"strong":  "anthropic:claude-sonnet-4-6",
	"best":    "anthropic:claude-opus-4-6",
}

// Select resolves the model to use for role+task. If task carries a
// model_hint, it is resolved (legacy tier name or full "provider:model"
// string); otherwise the configured default applies.
func (r *Router) Select(role string, task *Task) string {
	if task != nil && task.ModelHint != "" {
		if resolved, ok := legacyTierAliases[task.ModelHint]; ok {
			return resolved
		}
		return task.ModelHint
	}
	return r.defaultModel
}

// RecordFailure increments the failure counter for (team, agent, task).
func (r *Router) RecordFailure(teamID, agentName, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[failureKey{teamID, agentName, taskID}]++
}

// ShouldEscalate reports whether the recorded failure count for
// (team, agent, task) has reached threshold.
func (r *Router) ShouldEscalate(teamID, agentName, taskID string, threshold int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[failureKey{teamID, agentName, taskID}] >= threshold
}

// EscalationEnabled reports whether an escalation chain is configured.
func (r *Router) EscalationEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chain != nil
}

// Escalate returns the next model in the configured chain after current,
// or max_reached at the tail, or disabled if no chain is configured.
func (r *Router) Escalate(current string) (string, EscalateOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.chain == nil {
		return "", EscalateDisabled
	}
	for i, m := range r.chain {
		if m == current {
			if i+1 < len(r.chain) {
				return r.chain[i+1], EscalateOK
			}
			return "", EscalateMaxReached
		}
	}
	// current isn't on the chain at all: treat the chain head as the
	// first escalation step.
	return r.chain[0], EscalateOK
}

// RecordAttempt increments model's attempt counter.
func (r *Router) RecordAttempt(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statFor(model).Attempts++
}

// RecordSuccess marks a completed (team, agent, task) run as successful.
// It counts as both an attempt and a success, so a bare RecordSuccess
// call (with no preceding RecordAttempt) still contributes a 1/1 data
// point to the model's success rate.
func (r *Router) RecordSuccess(teamID, agentName, taskID, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.statFor(model)
	s.Attempts++
	s.Successes++
}

func (r *Router) statFor(model string) *modelStats {
	s, ok := r.stats[model]
	if !ok {
		s = &modelStats{}
		r.stats[model] = s
	}
	return s
}

// GetSuccessRate returns successes/attempts for model, defaulting to 1.0
// when there is no recorded data (an untried model is assumed reliable
// until proven otherwise).
func (r *Router) GetSuccessRate(model string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[model]
	if !ok || s.Attempts == 0 {
		return 1.0
	}
	return float64(s.Successes) / float64(s.Attempts)
}
