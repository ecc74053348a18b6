package keeper

import (
	"context"
	"sync"

	"github.com/treetopdevs/loomteams/pkg/decisions"
	"github.com/treetopdevs/loomteams/pkg/persistence"
)

// fakeStore is a minimal persistence.Store stub for keeper tests; it
// counts upserts so debounce-coalescing can be asserted directly.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]persistence.KeeperRow
	upserts map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]persistence.KeeperRow), upserts: make(map[string]int)}
}

func (f *fakeStore) upsertCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts[id]
}

func (f *fakeStore) UpsertKeeper(ctx context.Context, row persistence.KeeperRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.ID] = row
	f.upserts[row.ID]++
	return nil
}

func (f *fakeStore) FetchKeeper(ctx context.Context, id string) (persistence.KeeperRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return persistence.KeeperRow{}, persistence.ErrNotFound
	}
	return row, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, row persistence.TaskRow) error { return nil }
func (f *fakeStore) UpdateTask(ctx context.Context, row persistence.TaskRow) (persistence.TaskRow, error) {
	return row, nil
}
func (f *fakeStore) GetTask(ctx context.Context, id string) (persistence.TaskRow, error) {
	return persistence.TaskRow{}, persistence.ErrNotFound
}
func (f *fakeStore) ListTasksByTeam(ctx context.Context, teamID string) ([]persistence.TaskRow, error) {
	return nil, nil
}
func (f *fakeStore) ListTasksByAgent(ctx context.Context, teamID, agentName string) ([]persistence.TaskRow, error) {
	return nil, nil
}
func (f *fakeStore) InsertTaskDep(ctx context.Context, dep persistence.TaskDep) error { return nil }
func (f *fakeStore) ListTaskDeps(ctx context.Context, teamID string) ([]persistence.TaskDep, error) {
	return nil, nil
}
func (f *fakeStore) SumTaskCostByTeam(ctx context.Context, teamID string) (persistence.TaskCostSummary, error) {
	return persistence.TaskCostSummary{}, nil
}

func (f *fakeStore) InsertDecisionNode(n decisions.Node) error { return nil }
func (f *fakeStore) InsertDecisionEdge(e decisions.Edge) error { return nil }
func (f *fakeStore) ListDecisionNodes(filters decisions.Filters) ([]decisions.Node, error) {
	return nil, nil
}
func (f *fakeStore) UpdateDecisionNode(n decisions.Node) (decisions.Node, error) { return n, nil }
func (f *fakeStore) InsertAgentMetric(ctx context.Context, m persistence.AgentMetric) error {
	return nil
}
