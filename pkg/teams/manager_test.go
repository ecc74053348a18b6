package teams

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/cost"
	"github.com/treetopdevs/loomteams/pkg/modelrouter"
	"github.com/treetopdevs/loomteams/pkg/persistence"
	"github.com/treetopdevs/loomteams/pkg/providers"
	"github.com/treetopdevs/loomteams/pkg/ratelimit"
	"github.com/treetopdevs/loomteams/pkg/roles"
	"github.com/treetopdevs/loomteams/pkg/toolport"
)

type nopClient struct{}

func (nopClient) Chat(ctx context.Context, messages []providers.Message, tools []providers.ToolDefinition, model string, opts map[string]any) (*providers.Response, error) {
	return &providers.Response{Content: "ok"}, nil
}
func (nopClient) DefaultModel() string { return "anthropic:claude-sonnet-4-6" }

func newManager() *Manager {
	return New(Deps{
		Bus: bus.New(16), RateLimiter: ratelimit.New(0, 0), CostTracker: cost.New(),
		ModelRouter: modelrouter.New(modelrouter.Config{DefaultModel: "anthropic:claude-sonnet-4-6"}),
		Tools: toolport.NewRegistry(), Client: nopClient{}, Store: persistence.NewMemoryStore(),
		Roles: roles.NewCatalog(),
	})
}

func TestCreateTeamAssignsRootDepth(t *testing.T) {
	m := newManager()
	tm, err := m.CreateTeam("payments squad", "/repo")
	require.NoError(t, err)
	require.Equal(t, 0, tm.Depth)
	require.Empty(t, tm.ParentTeamID)
	require.Contains(t, tm.TeamID, "payments-squad")
}

func TestCreateSubTeamInheritsProjectPathAndIncrementsDepth(t *testing.T) {
	m := newManager()
	parent, _ := m.CreateTeam("root", "/repo")
	child, err := m.CreateSubTeam(parent.TeamID, "lead-1", "child", 0)
	require.NoError(t, err)
	require.Equal(t, 1, child.Depth)
	require.Equal(t, "/repo", child.ProjectPath)
	require.Equal(t, parent.TeamID, child.ParentTeamID)

	subTeams, err := m.ListSubTeams(parent.TeamID)
	require.NoError(t, err)
	require.Equal(t, []string{child.TeamID}, subTeams)
}

func TestCreateSubTeamRejectsPastMaxDepth(t *testing.T) {
	m := newManager()
	root, _ := m.CreateTeam("root", "/repo")
	l1, err := m.CreateSubTeam(root.TeamID, "lead", "l1", 1)
	require.NoError(t, err)

	_, err = m.CreateSubTeam(l1.TeamID, "lead", "l2", 1)
	require.ErrorIs(t, err, ErrMaxDepthExceeded)
}

func TestCreateSubTeamRejectsUnknownParent(t *testing.T) {
	m := newManager()
	_, err := m.CreateSubTeam("no-such-team", "lead", "child", 0)
	require.ErrorIs(t, err, ErrParentNotFound)
}

func TestSpawnAgentRegistersOnRosterAndBroadcasts(t *testing.T) {
	m := newManager()
	tm, _ := m.CreateTeam("root", "/repo")
	sub := m.deps.Bus.Subscribe(bus.Team(tm.TeamID))

	ag, err := m.SpawnAgent(tm.TeamID, "coder-1", "coder", SpawnOpts{})
	require.NoError(t, err)
	require.NotNil(t, ag)

	roster, err := m.ListAgents(tm.TeamID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, "coder-1", roster[0].Name)

	msg := <-sub.C
	require.Equal(t, "agent_spawned", msg.Tag)
}

func TestSpawnAgentRejectsUnknownRole(t *testing.T) {
	m := newManager()
	tm, _ := m.CreateTeam("root", "/repo")
	_, err := m.SpawnAgent(tm.TeamID, "x", "nonexistent-role", SpawnOpts{})
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestStopAgentRemovesFromRoster(t *testing.T) {
	m := newManager()
	tm, _ := m.CreateTeam("root", "/repo")
	m.SpawnAgent(tm.TeamID, "coder-1", "coder", SpawnOpts{})

	require.NoError(t, m.StopAgent(tm.TeamID, "coder-1"))
	_, ok := m.FindAgent(tm.TeamID, "coder-1")
	require.False(t, ok)
}

func TestSpawnKeeperBroadcastsKeeperCreated(t *testing.T) {
	m := newManager()
	tm, _ := m.CreateTeam("root", "/repo")
	sub := m.deps.Bus.Subscribe(bus.Team(tm.TeamID))

	kp, err := m.SpawnKeeper(context.Background(), tm.TeamID, KeeperOpts{Topic: "auth", SourceAgent: "coder-1"})
	require.NoError(t, err)
	require.NotNil(t, kp)

	msg := <-sub.C
	require.Equal(t, "keeper_created", msg.Tag)
	require.Len(t, m.ListKeepers(tm.TeamID), 1)
}

func TestDissolveTeamCascadesToSubTeamsAndNotifiesSpawningAgent(t *testing.T) {
	m := newManager()
	root, _ := m.CreateTeam("root", "/repo")
	m.SpawnAgent(root.TeamID, "lead-1", "lead", SpawnOpts{})
	child, _ := m.CreateSubTeam(root.TeamID, "lead-1", "child", 0)

	sub := m.deps.Bus.Subscribe(bus.Agent(root.TeamID, "lead-1"))

	require.NoError(t, m.DissolveTeam(root.TeamID))

	_, ok := m.GetTeam(root.TeamID)
	require.False(t, ok)
	_, ok = m.GetTeam(child.TeamID)
	require.False(t, ok)

	msg := <-sub.C
	require.Equal(t, "sub_team_completed", msg.Tag)
}

func TestDissolveUnknownTeamReturnsNotFound(t *testing.T) {
	m := newManager()
	require.ErrorIs(t, m.DissolveTeam("nope"), ErrNotFound)
}
