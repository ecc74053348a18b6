// Package tasks implements the Task Coordinator (C10): CRUD over team
// tasks and their dependency graph through the Persistence Port, with
// availability computed from each task's direct "blocks" predecessors
// so a task is only ever offered once every blocking predecessor has
// completed.
package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/cost"
	"github.com/treetopdevs/loomteams/pkg/ids"
	"github.com/treetopdevs/loomteams/pkg/persistence"
)

// Status values a task moves through.
const (
	StatusPending    = "pending"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DepBlocks is the only dependency kind that gates availability.
const DepBlocks = "blocks"

const defaultPriority = 3

// Coordinator owns task CRUD, dependency bookkeeping, and
// availability/auto-scheduling, mirroring its state into the Shared
// Team Context cache and broadcasting lifecycle events.
type Coordinator struct {
	mu     sync.Mutex
	store  persistence.Store
	bus    *bus.Bus
	costs  *cost.Tracker
	onCacheUpdate func(teamID string, task persistence.TaskRow)
}

func New(store persistence.Store, b *bus.Bus, costs *cost.Tracker) *Coordinator {
	return &Coordinator{store: store, bus: b, costs: costs}
}

// OnCacheUpdate registers a hook invoked after every mutation, used to
// mirror task state into the Shared Team Context cache.
func (c *Coordinator) OnCacheUpdate(fn func(teamID string, task persistence.TaskRow)) {
	c.onCacheUpdate = fn
}

// CreateTask inserts a new pending task and broadcasts {task_created}.
func (c *Coordinator) CreateTask(ctx context.Context, teamID, title, description string, priority int) (persistence.TaskRow, error) {
	if priority == 0 {
		priority = defaultPriority
	}
	now := time.Now()
	row := persistence.TaskRow{
		ID: ids.New(), TeamID: teamID, Title: title, Description: description,
		Status: StatusPending, Priority: priority, InsertedAt: now, UpdatedAt: now,
	}
	if err := c.store.InsertTask(ctx, row); err != nil {
		return persistence.TaskRow{}, err
	}
	c.mirror(teamID, row)
	c.publish(teamID, "task_created", map[string]any{"id": row.ID, "title": row.Title})
	return row, nil
}

// AddDependency records that toID depends on fromID under kind.
func (c *Coordinator) AddDependency(ctx context.Context, teamID, fromID, toID, kind string) error {
	return c.store.InsertTaskDep(ctx, persistence.TaskDep{TeamID: teamID, FromID: fromID, ToID: toID, Kind: kind})
}

// AssignTask sets status=assigned, owner=name, broadcasts
// {task_assigned} on the team topic and directly to the agent's topic.
func (c *Coordinator) AssignTask(ctx context.Context, teamID, taskID, agentName string) (persistence.TaskRow, error) {
	row, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return persistence.TaskRow{}, err
	}
	row.Status = StatusAssigned
	row.Owner = agentName
	row, err = c.store.UpdateTask(ctx, row)
	if err != nil {
		return persistence.TaskRow{}, err
	}
	c.mirror(teamID, row)
	payload := map[string]any{"id": row.ID, "name": agentName, "description": row.Description}
	c.publish(teamID, "task_assigned", payload)
	if c.bus != nil {
		c.bus.Broadcast(bus.Agent(teamID, agentName), bus.Message{Tag: "task_assigned", Payload: payload})
	}
	return row, nil
}

// StartTask moves a task to in_progress.
func (c *Coordinator) StartTask(ctx context.Context, teamID, taskID string) (persistence.TaskRow, error) {
	row, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return persistence.TaskRow{}, err
	}
	row.Status = StatusInProgress
	row, err = c.store.UpdateTask(ctx, row)
	if err != nil {
		return persistence.TaskRow{}, err
	}
	c.mirror(teamID, row)
	c.publish(teamID, "task_started", map[string]any{"id": row.ID, "owner": row.Owner})
	return row, nil
}

// CompleteTask marks a task completed, persists accumulated cost/tokens
// from the Cost Tracker onto the row, records a Learning metric, and
// triggers auto_schedule_unblocked.
func (c *Coordinator) CompleteTask(ctx context.Context, teamID, taskID, result string) (persistence.TaskRow, []string, error) {
	row, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return persistence.TaskRow{}, nil, err
	}
	row.Status = StatusCompleted
	row.Result = result
	if c.costs != nil && row.Owner != "" {
		usage := c.costs.GetAgentUsage(teamID, row.Owner)
		row.CostUSD = usage.Cost
		row.TokensUsed = usage.InputTokens + usage.OutputTokens
	}
	row, err = c.store.UpdateTask(ctx, row)
	if err != nil {
		return persistence.TaskRow{}, nil, err
	}
	c.mirror(teamID, row)
	c.publish(teamID, "task_completed", map[string]any{"id": row.ID, "owner": row.Owner, "result": result})
	_ = c.store.InsertAgentMetric(ctx, persistence.AgentMetric{
		TeamID: teamID, AgentName: row.Owner, TaskID: row.ID, Success: true, RecordedAt: time.Now(),
	})

	unblocked, err := c.autoScheduleUnblocked(ctx, teamID)
	return row, unblocked, err
}

// FailTask marks a task failed and records a failure Learning metric.
func (c *Coordinator) FailTask(ctx context.Context, teamID, taskID, reason string) (persistence.TaskRow, error) {
	row, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return persistence.TaskRow{}, err
	}
	row.Status = StatusFailed
	row, err = c.store.UpdateTask(ctx, row)
	if err != nil {
		return persistence.TaskRow{}, err
	}
	c.mirror(teamID, row)
	c.publish(teamID, "task_failed", map[string]any{"id": row.ID, "owner": row.Owner, "reason": reason})
	_ = c.store.InsertAgentMetric(ctx, persistence.AgentMetric{
		TeamID: teamID, AgentName: row.Owner, TaskID: row.ID, Success: false, RecordedAt: time.Now(),
	})
	return row, nil
}

// ListAvailable returns tasks that are pending and have no incomplete
// blocking predecessor, ordered by (priority asc, inserted_at asc).
func (c *Coordinator) ListAvailable(ctx context.Context, teamID string) ([]persistence.TaskRow, error) {
	all, err := c.store.ListTasksByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	deps, err := c.store.ListTaskDeps(ctx, teamID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]persistence.TaskRow, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}

	blockedBy := make(map[string][]string)
	for _, d := range deps {
		if d.Kind != DepBlocks {
			continue
		}
		blockedBy[d.ToID] = append(blockedBy[d.ToID], d.FromID)
	}

	var available []persistence.TaskRow
	for _, t := range all {
		if t.Status != StatusPending {
			continue
		}
		blocked := false
		for _, predID := range blockedBy[t.ID] {
			if pred, ok := byID[predID]; ok && pred.Status != StatusCompleted {
				blocked = true
				break
			}
		}
		if !blocked {
			available = append(available, t)
		}
	}
	sort.SliceStable(available, func(i, j int) bool {
		if available[i].Priority != available[j].Priority {
			return available[i].Priority < available[j].Priority
		}
		return available[i].InsertedAt.Before(available[j].InsertedAt)
	})
	return available, nil
}

// autoScheduleUnblocked re-checks availability after a completion and
// broadcasts {tasks_unblocked, ids} if the available set is non-empty.
func (c *Coordinator) autoScheduleUnblocked(ctx context.Context, teamID string) ([]string, error) {
	available, err := c.ListAvailable(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, nil
	}
	unblockedIDs := make([]string, len(available))
	for i, t := range available {
		unblockedIDs[i] = t.ID
	}
	c.publish(teamID, "tasks_unblocked", map[string]any{"ids": unblockedIDs})
	return unblockedIDs, nil
}

func (c *Coordinator) mirror(teamID string, row persistence.TaskRow) {
	if c.onCacheUpdate != nil {
		c.onCacheUpdate(teamID, row)
	}
}

func (c *Coordinator) publish(teamID, tag string, payload map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Broadcast(bus.Tasks(teamID), bus.Message{Tag: tag, Payload: payload})
}
