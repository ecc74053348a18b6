package persistence

import (
	"context"
	"sync"

	"github.com/treetopdevs/loomteams/pkg/decisions"
)

// MemoryStore is an in-process Store, used by tests and by any
// deployment that doesn't need durability across restarts.
type MemoryStore struct {
	mu       sync.Mutex
	keepers  map[string]KeeperRow
	tasks    map[string]TaskRow
	taskDeps []TaskDep
	nodes    []decisions.Node
	edges    []decisions.Edge
	metrics  []AgentMetric
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keepers: make(map[string]KeeperRow),
		tasks:   make(map[string]TaskRow),
	}
}

func (m *MemoryStore) UpsertKeeper(ctx context.Context, row KeeperRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keepers[row.ID] = row
	return nil
}

func (m *MemoryStore) FetchKeeper(ctx context.Context, id string) (KeeperRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.keepers[id]
	if !ok {
		return KeeperRow{}, ErrNotFound
	}
	return row, nil
}

func (m *MemoryStore) InsertTask(ctx context.Context, row TaskRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[row.ID] = row
	return nil
}

func (m *MemoryStore) UpdateTask(ctx context.Context, row TaskRow) (TaskRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[row.ID]; !ok {
		return TaskRow{}, ErrNotFound
	}
	m.tasks[row.ID] = row
	return row, nil
}

func (m *MemoryStore) GetTask(ctx context.Context, id string) (TaskRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.tasks[id]
	if !ok {
		return TaskRow{}, ErrNotFound
	}
	return row, nil
}

func (m *MemoryStore) ListTasksByTeam(ctx context.Context, teamID string) ([]TaskRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TaskRow
	for _, t := range m.tasks {
		if t.TeamID == teamID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListTasksByAgent(ctx context.Context, teamID, agentName string) ([]TaskRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TaskRow
	for _, t := range m.tasks {
		if t.TeamID == teamID && t.Owner == agentName {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertTaskDep(ctx context.Context, dep TaskDep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskDeps = append(m.taskDeps, dep)
	return nil
}

func (m *MemoryStore) ListTaskDeps(ctx context.Context, teamID string) ([]TaskDep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TaskDep
	for _, d := range m.taskDeps {
		if d.TeamID == teamID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemoryStore) SumTaskCostByTeam(ctx context.Context, teamID string) (TaskCostSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum TaskCostSummary
	for _, t := range m.tasks {
		if t.TeamID != teamID || t.Status != "completed" {
			continue
		}
		sum.TotalCostUSD += t.CostUSD
		sum.TotalTokens += t.TokensUsed
		sum.TaskCount++
	}
	return sum, nil
}

func (m *MemoryStore) InsertDecisionNode(n decisions.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = append(m.nodes, n)
	return nil
}

func (m *MemoryStore) InsertDecisionEdge(e decisions.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, e)
	return nil
}

func (m *MemoryStore) ListDecisionNodes(f decisions.Filters) ([]decisions.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []decisions.Node
	for _, n := range m.nodes {
		if f.TeamID != "" && n.TeamID != f.TeamID {
			continue
		}
		if f.Kind != "" && n.Kind != f.Kind {
			continue
		}
		if f.Author != "" && n.Author != f.Author {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *MemoryStore) UpdateDecisionNode(n decisions.Node) (decisions.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.nodes {
		if existing.ID == n.ID {
			m.nodes[i] = n
			return n, nil
		}
	}
	return decisions.Node{}, ErrNotFound
}

func (m *MemoryStore) InsertAgentMetric(ctx context.Context, metric AgentMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, metric)
	return nil
}
