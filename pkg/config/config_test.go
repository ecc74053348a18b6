package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/treetopdevs/loomteams/pkg/roles"
)

func TestDefaultConfigHasSpecDefaultBudgets(t *testing.T) {
	cfg := DefaultConfig()
	require.InDelta(t, 5.00, cfg.Teams.Budget.MaxPerTeamUSD, 0.0001)
	require.InDelta(t, 1.00, cfg.Teams.Budget.MaxPerAgentUSD, 0.0001)
	require.Nil(t, cfg.EscalationChain())
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	require.InDelta(t, 5.00, cfg.Teams.Budget.MaxPerTeamUSD, 0.0001)
}

func TestLoadConfigReadsJSONOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"teams": {
			"budget": {"max_per_team_usd": 25, "max_per_agent_usd": 4},
			"models": {"escalation": ["anthropic:claude-haiku-4-6", "anthropic:claude-sonnet-4-6"]},
			"roles": {"coder": {"max_iterations": 30}}
		},
		"model": {"default": "anthropic:claude-opus-4-6"}
	}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.InDelta(t, 25, cfg.Teams.Budget.MaxPerTeamUSD, 0.0001)
	require.InDelta(t, 4, cfg.Teams.Budget.MaxPerAgentUSD, 0.0001)
	require.Equal(t, "anthropic:claude-opus-4-6", cfg.Model.Default)
	require.Equal(t, []string{"anthropic:claude-haiku-4-6", "anthropic:claude-sonnet-4-6"}, cfg.EscalationChain())
}

func TestEscalationChainDisabledBelowTwoModels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Teams.Models.Escalation = FlexibleStringSlice{"anthropic:claude-sonnet-4-6"}
	require.Nil(t, cfg.EscalationChain())
}

func TestModelRouterConfigCarriesDefaultAndChain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Teams.Models.Escalation = FlexibleStringSlice{"anthropic:claude-haiku-4-6", "anthropic:claude-sonnet-4-6"}
	rc := cfg.ModelRouterConfig()
	require.Equal(t, cfg.Model.Default, rc.DefaultModel)
	require.Equal(t, []string{"anthropic:claude-haiku-4-6", "anthropic:claude-sonnet-4-6"}, rc.EscalationChain)
}

func TestApplyRoleOverridesRegistersCustomAndTweaksBuiltin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Teams.Roles = map[string]RoleOverride{
		"coder":      {MaxIterations: 30},
		"summarizer": {Tools: []string{"file_read"}, SystemPrompt: "You summarize."},
	}
	catalog := roles.NewCatalog()
	cfg.ApplyRoleOverrides(catalog)

	coder, ok := catalog.Resolve("coder")
	require.True(t, ok)
	require.Equal(t, 30, coder.MaxIterations)
	require.NotEmpty(t, coder.Tools)

	summarizer, ok := catalog.Resolve("summarizer")
	require.True(t, ok)
	require.Equal(t, []string{"file_read"}, summarizer.Tools)
	require.Equal(t, "You summarize.", summarizer.SystemPrompt)
}

func TestTemplateLookup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Teams.Templates = map[string]Template{
		"feature-team": {Agents: []TemplateAgent{
			{Name: "lead-1", Role: "lead"},
			{Name: "coder-1", Role: "coder", Count: 2},
		}},
	}
	tmpl, ok := cfg.Template("feature-team")
	require.True(t, ok)
	require.Len(t, tmpl.Agents, 2)

	_, ok = cfg.Template("nonexistent")
	require.False(t, ok)
}

func TestSaveConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Teams.Budget.MaxPerTeamUSD = 42
	require.NoError(t, SaveConfig(path, cfg))

	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.InDelta(t, 42, reloaded.Teams.Budget.MaxPerTeamUSD, 0.0001)
}

func TestLoadTemplatesFileMergesByName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  feature-team:
    agents:
      - name: lead-1
        role: lead
      - name: coder-1
        role: coder
        count: 2
`), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadTemplatesFile(path))

	tmpl, ok := cfg.Template("feature-team")
	require.True(t, ok)
	require.Len(t, tmpl.Agents, 2)
	require.Equal(t, "lead", tmpl.Agents[0].Role)
}

func TestLoadTemplatesFileMissingIsNotAnError(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadTemplatesFile(filepath.Join(t.TempDir(), "nope.yaml")))
	require.Empty(t, cfg.Teams.Templates)
}
