package teams

import (
	"context"
	"sync"
	"time"

	"github.com/treetopdevs/loomteams/pkg/logger"
)

// activeRun is an agent's run context or a team node that can be cancelled.
// Team nodes carry a no-op Cancel and exist purely so dissolve_team can
// cascade through sub-teams without a separate tree structure.
type activeRun struct {
	Key       string
	ParentKey string // "" for a root team
	Cancel    context.CancelFunc
	StartedAt time.Time
}

// runRegistry tracks agent run contexts and team nodes for cascade
// cancellation: dissolving a team cancels the run context of every agent
// on it and recurses into its sub-teams. An agent's run context governs
// its bus dispatch loop and the debate answers started from it; a
// SendMessage call runs under its caller's context and is not cancelled.
type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*activeRun
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*activeRun)}
}

func (r *runRegistry) register(run *activeRun) {
	r.mu.Lock()
	r.runs[run.Key] = run
	r.mu.Unlock()
}

func (r *runRegistry) deregister(key string) {
	r.mu.Lock()
	delete(r.runs, key)
	r.mu.Unlock()
}

// cascadeStop cancels key and every descendant (runs whose ParentKey
// chains back to key), returning the count cancelled.
func (r *runRegistry) cascadeStop(key string) int {
	seen := make(map[string]bool)
	killed := r.cascadeStopLocked(key, seen)
	if killed > 0 {
		logger.InfoCF("teams", "cascade stop completed", map[string]any{"root": key, "killed": killed})
	}
	return killed
}

func (r *runRegistry) cascadeStopLocked(key string, seen map[string]bool) int {
	if seen[key] {
		return 0
	}
	seen[key] = true
	killed := 0

	r.mu.Lock()
	run, ok := r.runs[key]
	if ok {
		delete(r.runs, key)
	}
	var children []string
	for k, v := range r.runs {
		if v.ParentKey == key {
			children = append(children, k)
		}
	}
	r.mu.Unlock()

	if ok {
		run.Cancel()
		killed++
	}
	for _, child := range children {
		killed += r.cascadeStopLocked(child, seen)
	}
	return killed
}
