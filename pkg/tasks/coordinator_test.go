package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/cost"
	"github.com/treetopdevs/loomteams/pkg/persistence"
)

func newCoordinator() (*Coordinator, *persistence.MemoryStore) {
	store := persistence.NewMemoryStore()
	b := bus.New(16)
	return New(store, b, cost.New()), store
}

func TestCreateAssignStartCompleteLifecycle(t *testing.T) {
	c, _ := newCoordinator()
	ctx := context.Background()

	task, err := c.CreateTask(ctx, "T", "fix bug", "desc", 0)
	require.NoError(t, err)
	require.Equal(t, StatusPending, task.Status)
	require.Equal(t, defaultPriority, task.Priority)

	task, err = c.AssignTask(ctx, "T", task.ID, "coder")
	require.NoError(t, err)
	require.Equal(t, StatusAssigned, task.Status)
	require.Equal(t, "coder", task.Owner)

	task, err = c.StartTask(ctx, "T", task.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, task.Status)

	task, unblocked, err := c.CompleteTask(ctx, "T", task.ID, "done")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, task.Status)
	require.Empty(t, unblocked)
}

func TestListAvailableExcludesBlockedTasks(t *testing.T) {
	c, _ := newCoordinator()
	ctx := context.Background()

	blocker, _ := c.CreateTask(ctx, "T", "blocker", "", 1)
	blocked, _ := c.CreateTask(ctx, "T", "blocked", "", 2)
	require.NoError(t, c.AddDependency(ctx, "T", blocker.ID, blocked.ID, DepBlocks))

	available, err := c.ListAvailable(ctx, "T")
	require.NoError(t, err)
	require.Len(t, available, 1)
	require.Equal(t, blocker.ID, available[0].ID)

	c.AssignTask(ctx, "T", blocker.ID, "coder")
	c.StartTask(ctx, "T", blocker.ID)
	_, unblocked, err := c.CompleteTask(ctx, "T", blocker.ID, "done")
	require.NoError(t, err)
	require.Equal(t, []string{blocked.ID}, unblocked)
}

func TestListAvailableOrdersByPriorityThenInsertedAt(t *testing.T) {
	c, _ := newCoordinator()
	ctx := context.Background()

	low, _ := c.CreateTask(ctx, "T", "low priority", "", 5)
	high, _ := c.CreateTask(ctx, "T", "high priority", "", 1)

	available, err := c.ListAvailable(ctx, "T")
	require.NoError(t, err)
	require.Equal(t, []string{high.ID, low.ID}, []string{available[0].ID, available[1].ID})
}

func TestFailTaskRecordsFailureMetric(t *testing.T) {
	c, _ := newCoordinator()
	ctx := context.Background()
	task, _ := c.CreateTask(ctx, "T", "risky", "", 0)
	c.AssignTask(ctx, "T", task.ID, "coder")

	failed, err := c.FailTask(ctx, "T", task.ID, "timeout")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)
}

func TestAssignTaskBroadcastsOnTeamAndAgentTopics(t *testing.T) {
	store := persistence.NewMemoryStore()
	b := bus.New(16)
	c := New(store, b, cost.New())

	ctx := context.Background()
	task, _ := c.CreateTask(ctx, "T", "t", "", 0)

	teamSub := b.Subscribe(bus.Tasks("T"))
	agentSub := b.Subscribe(bus.Agent("T", "coder"))
	c.AssignTask(ctx, "T", task.ID, "coder")

	teamMsg := <-teamSub.C
	require.Equal(t, "task_assigned", teamMsg.Tag)
	agentMsg := <-agentSub.C
	require.Equal(t, "task_assigned", agentMsg.Tag)
}
