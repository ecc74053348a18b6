// Package persistence defines the Persistence Port: the contract
// required by the Context Keeper, Task Coordinator, Cost Tracker, Model
// Router, and Decision Graph. ErrNotFound is returned by update/fetch
// operations when the target row doesn't exist.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/treetopdevs/loomteams/pkg/decisions"
)

var ErrNotFound = errors.New("persistence: not found")

// KeeperRow is the persisted shape of a Context Keeper.
type KeeperRow struct {
	ID           string
	TeamID       string
	Topic        string
	SourceAgent  string
	Messages     []KeeperMessage
	TokenCount   int
	Metadata     map[string]any
	Status       string
	CreatedAt    time.Time
}

type KeeperMessage struct {
	Role    string
	Content string
}

// TaskRow is the persisted shape of a team task.
type TaskRow struct {
	ID           string
	TeamID       string
	Title        string
	Description  string
	Status       string
	Owner        string
	Priority     int
	ModelHint    string
	Role         string
	TaskType     string
	Result       string
	CostUSD      float64
	TokensUsed   int64
	InsertedAt   time.Time
	UpdatedAt    time.Time
}

// TaskDep records that ToID depends on FromID under Kind ("blocks" is
// the only kind that gates availability; others are informational).
type TaskDep struct {
	TeamID string
	FromID string
	ToID   string
	Kind   string
}

// TaskCostSummary is the aggregate SumTaskCostByTeam returns.
type TaskCostSummary struct {
	TotalCostUSD float64
	TotalTokens  int64
	TaskCount    int
}

// AgentMetric is one Learning observation recorded after a task
// completes or fails.
type AgentMetric struct {
	TeamID    string
	AgentName string
	TaskID    string
	Success   bool
	DurationMS int64
	RecordedAt time.Time
}

// Store is the full Persistence Port.
type Store interface {
	UpsertKeeper(ctx context.Context, row KeeperRow) error
	FetchKeeper(ctx context.Context, id string) (KeeperRow, error)

	InsertTask(ctx context.Context, row TaskRow) error
	UpdateTask(ctx context.Context, row TaskRow) (TaskRow, error)
	GetTask(ctx context.Context, id string) (TaskRow, error)
	ListTasksByTeam(ctx context.Context, teamID string) ([]TaskRow, error)
	ListTasksByAgent(ctx context.Context, teamID, agentName string) ([]TaskRow, error)
	InsertTaskDep(ctx context.Context, dep TaskDep) error
	ListTaskDeps(ctx context.Context, teamID string) ([]TaskDep, error)
	SumTaskCostByTeam(ctx context.Context, teamID string) (TaskCostSummary, error)

	InsertDecisionNode(n decisions.Node) error
	InsertDecisionEdge(e decisions.Edge) error
	ListDecisionNodes(f decisions.Filters) ([]decisions.Node, error)
	UpdateDecisionNode(n decisions.Node) (decisions.Node, error)

	InsertAgentMetric(ctx context.Context, m AgentMetric) error
}
