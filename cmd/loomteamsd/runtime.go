package main

import (
	"os"
	"path/filepath"

	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/config"
	"github.com/treetopdevs/loomteams/pkg/cost"
	"github.com/treetopdevs/loomteams/pkg/decisions"
	"github.com/treetopdevs/loomteams/pkg/logger"
	"github.com/treetopdevs/loomteams/pkg/modelrouter"
	"github.com/treetopdevs/loomteams/pkg/persistence"
	"github.com/treetopdevs/loomteams/pkg/providers"
	"github.com/treetopdevs/loomteams/pkg/ratelimit"
	"github.com/treetopdevs/loomteams/pkg/roles"
	"github.com/treetopdevs/loomteams/pkg/teams"
	"github.com/treetopdevs/loomteams/pkg/toolport"
)

// runtime bundles a fully-wired Teams Manager and the store backing it,
// so commands can close the store once they're done.
type runtime struct {
	cfg     *config.Config
	manager *teams.Manager
	graph   *decisions.Graph
	store   *persistence.SQLiteStore
}

func (r *runtime) Close() error {
	return r.store.Close()
}

// buildRuntime loads configuration and constructs the components the
// CLI commands use: bus, rate limiter, cost tracker, model router, role
// catalog, decision graph, SQLite store, Anthropic Model Client, and the
// Teams Manager (which owns team tables, contexts, agents and Keepers).
// The Query Router, Task Coordinator, Debate Orchestrator and Pair Mode
// are not constructed here.
func buildRuntime(configPath, dbPath string) (*runtime, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}
	store, err := persistence.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}

	b := bus.New(64)
	limiter := ratelimit.New(cfg.Teams.Budget.MaxPerTeamUSD, cfg.Teams.Budget.MaxPerAgentUSD)
	tracker := cost.New()
	router := modelrouter.New(cfg.ModelRouterConfig())
	catalog := roles.NewCatalog()
	cfg.ApplyRoleOverrides(catalog)
	graph := decisions.New(store)

	client := anthropicClientFromEnv(cfg.Model.Default)

	manager := teams.New(teams.Deps{
		Bus:         b,
		RateLimiter: limiter,
		CostTracker: tracker,
		ModelRouter: router,
		Tools:       toolport.NewRegistry(),
		Client:      client,
		Store:       store,
		Roles:       catalog,
	})

	logger.InfoCF("loomteamsd", "runtime ready", map[string]any{
		"config": configPath, "db": dbPath, "default_model": cfg.Model.Default,
	})

	return &runtime{cfg: cfg, manager: manager, graph: graph, store: store}, nil
}

// anthropicClientFromEnv builds the default Model Client from
// ANTHROPIC_API_KEY. Tool implementations, and any non-Anthropic
// providers a deployment wants, are supplied externally per the Tool
// and Model Client ports.
func anthropicClientFromEnv(defaultModel string) providers.Client {
	return providers.NewAnthropicClient(os.Getenv("ANTHROPIC_API_KEY"), defaultModel)
}
