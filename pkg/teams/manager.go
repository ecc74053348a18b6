// Package teams implements the Teams Manager (C11): the public API for
// creating and dissolving teams, spawning and stopping agents and
// Keepers, and nesting sub-teams under a depth cap with cascade
// dissolution.
package teams

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/treetopdevs/loomteams/pkg/agent"
	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/cost"
	"github.com/treetopdevs/loomteams/pkg/ids"
	"github.com/treetopdevs/loomteams/pkg/keeper"
	"github.com/treetopdevs/loomteams/pkg/logger"
	"github.com/treetopdevs/loomteams/pkg/modelrouter"
	"github.com/treetopdevs/loomteams/pkg/persistence"
	"github.com/treetopdevs/loomteams/pkg/providers"
	"github.com/treetopdevs/loomteams/pkg/ratelimit"
	"github.com/treetopdevs/loomteams/pkg/roles"
	"github.com/treetopdevs/loomteams/pkg/teamcontext"
	"github.com/treetopdevs/loomteams/pkg/teamtable"
	"github.com/treetopdevs/loomteams/pkg/toolport"
)

// DefaultMaxDepth is applied to create_sub_team when no override is
// given: sub-team nesting beyond this depth is rejected.
const DefaultMaxDepth = 3

var (
	ErrMaxDepthExceeded = errors.New("max_depth_exceeded")
	ErrParentNotFound   = errors.New("parent_not_found")
	ErrNotFound         = errors.New("not_found")
	ErrUnknownRole      = errors.New("unknown_role")
)

// Team is one team's identity and nesting position.
type Team struct {
	TeamID       string
	Name         string
	ProjectPath  string
	ParentTeamID string
	Depth        int
}

// team is the manager's internal bookkeeping for one live team.
type team struct {
	Team
	table        *teamtable.Table
	ctx          *teamcontext.Context
	agents       map[string]*agent.Agent
	keepers      map[string]*keeper.Keeper
	spawningAgent string // agent in the parent that created this sub-team, if any
}

// Deps bundles the singletons every agent in every team shares.
type Deps struct {
	Bus         *bus.Bus
	RateLimiter *ratelimit.Limiter
	CostTracker *cost.Tracker
	ModelRouter *modelrouter.Router
	Tools       *toolport.Registry
	Client      providers.Client
	Store       persistence.Store
	Roles       *roles.Catalog
}

// Manager owns every live team's table, roster, and nested structure.
type Manager struct {
	mu    sync.Mutex
	teams map[string]*team
	table *teamtable.Registry
	runs  *runRegistry
	deps  Deps
}

func New(deps Deps) *Manager {
	return &Manager{
		teams: make(map[string]*team),
		table: teamtable.NewRegistry(),
		runs:  newRunRegistry(),
		deps:  deps,
	}
}

// CreateTeam allocates a root team (depth 0).
func (m *Manager) CreateTeam(name, projectPath string) (Team, error) {
	return m.newTeam(name, projectPath, "", 0, "")
}

// CreateSubTeam nests a new team under parentID, failing with
// ErrMaxDepthExceeded if the parent is already at maxDepth, or
// ErrParentNotFound if parentID doesn't exist. maxDepth<=0 uses
// DefaultMaxDepth.
func (m *Manager) CreateSubTeam(parentID, spawningAgent, name string, maxDepth int) (Team, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	m.mu.Lock()
	parent, ok := m.teams[parentID]
	m.mu.Unlock()
	if !ok {
		return Team{}, ErrParentNotFound
	}
	if parent.Depth+1 > maxDepth {
		return Team{}, ErrMaxDepthExceeded
	}

	child, err := m.newTeam(name, parent.ProjectPath, parentID, parent.Depth+1, spawningAgent)
	if err != nil {
		return Team{}, err
	}

	m.mu.Lock()
	parent.table.Set(teamtable.SubTeamKey(child.TeamID), child.TeamID)
	m.mu.Unlock()

	return child, nil
}

func (m *Manager) newTeam(name, projectPath, parentID string, depth int, spawningAgent string) (Team, error) {
	teamID := ids.GenerateTeamID(name)
	tbl := m.table.Create(teamID)
	t := &team{
		Team: Team{
			TeamID: teamID, Name: name, ProjectPath: projectPath,
			ParentTeamID: parentID, Depth: depth,
		},
		table:         tbl,
		ctx:           teamcontext.New(teamID, tbl),
		agents:        make(map[string]*agent.Agent),
		keepers:       make(map[string]*keeper.Keeper),
		spawningAgent: spawningAgent,
	}

	m.mu.Lock()
	m.teams[teamID] = t
	m.mu.Unlock()

	m.runs.register(&activeRun{Key: teamKey(teamID), ParentKey: teamKey(parentID), Cancel: func() {}})

	logger.InfoCF("teams", "team created", map[string]any{"team_id": teamID, "parent": parentID, "depth": depth})
	return t.Team, nil
}

func teamKey(teamID string) string {
	if teamID == "" {
		return ""
	}
	return "team:" + teamID
}

func agentKey(teamID, name string) string { return "agent:" + teamID + ":" + name }

// SpawnOpts configures a newly spawned agent.
type SpawnOpts struct {
	Model string // "" uses the Model Router's default
}

// SpawnAgent resolves role from the Role Catalog, constructs an Agent
// wired to the shared Deps, registers it on the team roster, and
// broadcasts {agent_spawned}.
func (m *Manager) SpawnAgent(teamID, name, roleName string, opts SpawnOpts) (*agent.Agent, error) {
	t, ok := m.getTeam(teamID)
	if !ok {
		return nil, ErrNotFound
	}

	role, ok := m.deps.Roles.Resolve(roleName)
	if !ok {
		return nil, ErrUnknownRole
	}

	model := opts.Model
	if model == "" {
		model = m.deps.ModelRouter.Select(roleName, nil)
	}

	ag := agent.New(teamID, name, role, model, agent.Deps{
		Bus: m.deps.Bus, RateLimiter: m.deps.RateLimiter, CostTracker: m.deps.CostTracker,
		ModelRouter: m.deps.ModelRouter, Tools: m.deps.Tools, Client: m.deps.Client,
	})

	m.mu.Lock()
	t.agents[name] = ag
	m.mu.Unlock()

	t.ctx.RegisterAgent(teamcontext.AgentRosterEntry{Name: name, Role: roleName, Status: "idle", Model: model})

	runCtx, cancel := context.WithCancel(context.Background())
	m.runs.register(&activeRun{Key: agentKey(teamID, name), ParentKey: teamKey(teamID), Cancel: cancel})
	m.startDispatch(runCtx, teamID, name, ag)

	if m.deps.Bus != nil {
		m.deps.Bus.Broadcast(bus.Team(teamID), bus.Message{Tag: "agent_spawned", Payload: map[string]any{
			"name": name, "role": roleName, "model": model,
		}})
	}
	return ag, nil
}

// KeeperOpts configures a newly spawned Keeper.
type KeeperOpts struct {
	Topic             string
	SourceAgent       string
	Metadata          map[string]any
	PersistDebounceMS int
}

// SpawnKeeper constructs a Keeper backed by the shared Persistence Port
// and Model Client, registers it under the team, and broadcasts
// {keeper_created} so every agent can react.
func (m *Manager) SpawnKeeper(ctx context.Context, teamID string, opts KeeperOpts) (*keeper.Keeper, error) {
	t, ok := m.getTeam(teamID)
	if !ok {
		return nil, ErrNotFound
	}

	id := ids.New()
	kp := keeper.New(ctx, keeper.Config{
		ID: id, TeamID: teamID, Topic: opts.Topic, SourceAgent: opts.SourceAgent,
		Metadata: opts.Metadata, Store: m.deps.Store, ModelClient: m.deps.Client,
		PersistDebounceMS: opts.PersistDebounceMS,
	})

	m.mu.Lock()
	t.keepers[id] = kp
	m.mu.Unlock()
	t.table.Set(teamtable.KeeperKey(id), id)

	if m.deps.Bus != nil {
		m.deps.Bus.Broadcast(bus.Team(teamID), bus.Message{Tag: "keeper_created", Payload: map[string]any{
			"id": id, "topic": opts.Topic, "source_agent": opts.SourceAgent, "tokens": kp.GetState().TokenCount,
		}})
	}
	return kp, nil
}

// ListKeepers returns every Keeper registered on teamID, used by the
// task_assigned keeper prefetch in dispatch.go.
func (m *Manager) ListKeepers(teamID string) []*keeper.Keeper {
	t, ok := m.getTeam(teamID)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*keeper.Keeper, 0, len(t.keepers))
	for _, kp := range t.keepers {
		out = append(out, kp)
	}
	return out
}

// StopAgent cascade-cancels name's run context (ending its bus dispatch
// loop), removes it from the roster, and broadcasts {agent_stopped}. A
// SendMessage call already in progress is not cancelled.
func (m *Manager) StopAgent(teamID, name string) error {
	t, ok := m.getTeam(teamID)
	if !ok {
		return ErrNotFound
	}
	m.runs.cascadeStop(agentKey(teamID, name))

	m.mu.Lock()
	delete(t.agents, name)
	m.mu.Unlock()
	t.table.Delete(teamtable.AgentKey(name))

	if m.deps.Bus != nil {
		m.deps.Bus.Broadcast(bus.Team(teamID), bus.Message{Tag: "agent_stopped", Payload: map[string]any{"name": name}})
	}
	return nil
}

// ListAgents returns the team's roster.
func (m *Manager) ListAgents(teamID string) ([]teamcontext.AgentRosterEntry, error) {
	t, ok := m.getTeam(teamID)
	if !ok {
		return nil, ErrNotFound
	}
	return t.ctx.ListAgents(), nil
}

// FindAgent returns the live Agent handle for name, if spawned.
func (m *Manager) FindAgent(teamID, name string) (*agent.Agent, bool) {
	t, ok := m.getTeam(teamID)
	if !ok {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ag, ok := t.agents[name]
	return ag, ok
}

// ListSubTeams returns the team IDs of teamID's direct sub-teams.
func (m *Manager) ListSubTeams(teamID string) ([]string, error) {
	t, ok := m.getTeam(teamID)
	if !ok {
		return nil, ErrNotFound
	}
	var out []string
	t.table.Range(teamtable.KindSubTeam, func(_ teamtable.Key, value any) bool {
		out = append(out, value.(string))
		return true
	})
	return out, nil
}

// GetParentTeam returns teamID's parent, if it has one.
func (m *Manager) GetParentTeam(teamID string) (string, bool) {
	t, ok := m.getTeam(teamID)
	if !ok || t.ParentTeamID == "" {
		return "", false
	}
	return t.ParentTeamID, true
}

// DissolveTeam recursively dissolves every sub-team, stops every agent,
// resets the team's rate-limit/cost-tracker state, deletes its table, and
// broadcasts {team_dissolved}. If it had a parent, the spawning agent's
// topic receives {sub_team_completed, team_id}.
func (m *Manager) DissolveTeam(teamID string) error {
	t, ok := m.getTeam(teamID)
	if !ok {
		return ErrNotFound
	}

	subTeams, _ := m.ListSubTeams(teamID)
	for _, childID := range subTeams {
		if err := m.DissolveTeam(childID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	m.runs.cascadeStop(teamKey(teamID))

	if m.deps.RateLimiter != nil {
		m.deps.RateLimiter.ResetTeam(teamID)
	}
	if m.deps.CostTracker != nil {
		m.deps.CostTracker.Reset(teamID)
	}

	m.mu.Lock()
	delete(m.teams, teamID)
	m.mu.Unlock()
	m.table.Destroy(teamID)

	if m.deps.Bus != nil {
		m.deps.Bus.Broadcast(bus.Team(teamID), bus.Message{Tag: "team_dissolved", Payload: map[string]any{"team_id": teamID}})
		if t.ParentTeamID != "" && t.spawningAgent != "" {
			m.deps.Bus.Broadcast(bus.Agent(t.ParentTeamID, t.spawningAgent), bus.Message{
				Tag: "sub_team_completed", Payload: map[string]any{"team_id": teamID},
			})
		}
	}
	logger.InfoCF("teams", "team dissolved", map[string]any{"team_id": teamID})
	return nil
}

func (m *Manager) getTeam(teamID string) (*team, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	return t, ok
}

// GetTeam returns a read-only snapshot of teamID's identity, for callers
// that only need the Team struct.
func (m *Manager) GetTeam(teamID string) (Team, bool) {
	t, ok := m.getTeam(teamID)
	if !ok {
		return Team{}, false
	}
	return t.Team, true
}

// TeamContext returns the Shared Team Context for teamID, used by tool
// implementations (peer_* tools) outside this package.
func (m *Manager) TeamContext(teamID string) (*teamcontext.Context, error) {
	t, ok := m.getTeam(teamID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, teamID)
	}
	return t.ctx, nil
}
