// Package config loads the Teams subsystem's configuration: a JSON file
// overridden by environment variables, following the same
// caarlos0/env-based layering used elsewhere in this codebase's corpus.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/treetopdevs/loomteams/pkg/modelrouter"
	"github.com/treetopdevs/loomteams/pkg/roles"
	"gopkg.in/yaml.v3"
)

// FlexibleStringSlice is a []string that also accepts a JSON number, so
// an escalation chain or allow-list can be edited by hand without
// worrying about quoting.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// ModelConfig holds model.default.
type ModelConfig struct {
	Default string `json:"default" label:"Default Model" env:"LOOMTEAMS_MODEL_DEFAULT"`
}

// BudgetConfig holds teams.budget.*.
type BudgetConfig struct {
	MaxPerTeamUSD  float64 `json:"max_per_team_usd" label:"Max Per Team (USD)" env:"LOOMTEAMS_TEAMS_BUDGET_MAX_PER_TEAM_USD"`
	MaxPerAgentUSD float64 `json:"max_per_agent_usd" label:"Max Per Agent (USD)" env:"LOOMTEAMS_TEAMS_BUDGET_MAX_PER_AGENT_USD"`
}

// ModelsConfig holds teams.models.escalation: an ordered chain of
// provider:model strings. Absence (len < 2) disables escalation.
type ModelsConfig struct {
	Escalation FlexibleStringSlice `json:"escalation" label:"Escalation Chain" env:"LOOMTEAMS_TEAMS_MODELS_ESCALATION" envSeparator:","`
}

// RoleOverride is a per-role override of the built-in role catalog,
// resolved by name under teams.roles.<name>.
type RoleOverride struct {
	Tools          []string `json:"tools,omitempty"`
	MaxIterations  int      `json:"max_iterations,omitempty"`
	SystemPrompt   string   `json:"system_prompt,omitempty"`
	ModelTier      string   `json:"model_tier,omitempty"`
	BudgetLimitUSD float64  `json:"budget_limit_usd,omitempty"`
}

// TemplateAgent is one entry of a team template's agent list.
type TemplateAgent struct {
	Name  string `json:"name" yaml:"name"`
	Role  string `json:"role" yaml:"role"`
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	Count int    `json:"count,omitempty" yaml:"count,omitempty"`
}

// Template is a named, reusable set of agents under teams.templates.<name>.
type Template struct {
	Agents []TemplateAgent `json:"agents" yaml:"agents"`
}

// TeamsConfig holds every teams.* key from the configuration surface.
type TeamsConfig struct {
	Budget    BudgetConfig            `json:"budget" label:"Budget"`
	Models    ModelsConfig            `json:"models" label:"Models"`
	Templates map[string]Template     `json:"templates,omitempty" label:"Team Templates"`
	Roles     map[string]RoleOverride `json:"roles,omitempty" label:"Role Overrides"`
}

// Config is the root configuration object. Zero value is not usable;
// construct with DefaultConfig or LoadConfig.
type Config struct {
	Teams TeamsConfig `json:"teams" label:"Teams"`
	Model ModelConfig `json:"model" label:"Model"`
	mu    sync.RWMutex
}

// DefaultConfig returns the configuration this package uses in the
// absence of any file or environment override.
func DefaultConfig() *Config {
	return &Config{
		Teams: TeamsConfig{
			Budget: BudgetConfig{
				MaxPerTeamUSD:  5.00,
				MaxPerAgentUSD: 1.00,
			},
			Models:    ModelsConfig{Escalation: FlexibleStringSlice{}},
			Templates: map[string]Template{},
			Roles:     map[string]RoleOverride{},
		},
		Model: ModelConfig{Default: "anthropic:claude-sonnet-4-6"},
	}
}

// LoadConfig reads path as JSON over the defaults, then applies any
// LOOMTEAMS_* environment overrides. A missing file is not an error;
// LoadConfig falls back to defaults-plus-environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as indented JSON, creating parent
// directories as needed.
func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	return saveConfigLocked(path, cfg)
}

func saveConfigLocked(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) Lock()    { c.mu.Lock() }
func (c *Config) Unlock()  { c.mu.Unlock() }
func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }

// EscalationChain returns the configured model escalation chain, or nil
// if escalation is disabled (fewer than two models configured).
func (c *Config) EscalationChain() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.Teams.Models.Escalation) < 2 {
		return nil
	}
	return append([]string(nil), c.Teams.Models.Escalation...)
}

// RoleOverride looks up a config-supplied role override by name.
func (c *Config) RoleOverride(name string) (RoleOverride, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ro, ok := c.Teams.Roles[name]
	return ro, ok
}

// Template looks up a named team template.
func (c *Config) Template(name string) (Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tmpl, ok := c.Teams.Templates[name]
	return tmpl, ok
}

// templatesFile is the on-disk shape of a team-templates YAML file: one
// named, reusable agent composition per entry, edited by hand rather
// than through the main JSON+env configuration surface.
type templatesFile struct {
	Templates map[string]Template `yaml:"templates"`
}

// LoadTemplatesFile reads a YAML file of team templates (teams.templates.*)
// and merges them into cfg, overwriting any template already registered
// under the same name. A missing file is not an error.
func (c *Config) LoadTemplatesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var file templatesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Teams.Templates == nil {
		c.Teams.Templates = make(map[string]Template)
	}
	for name, tmpl := range file.Templates {
		c.Teams.Templates[name] = tmpl
	}
	return nil
}

// ModelRouterConfig builds the modelrouter.Config this configuration
// implies: the default model plus the escalation chain, if any.
func (c *Config) ModelRouterConfig() modelrouter.Config {
	return modelrouter.Config{
		DefaultModel:    c.Model.Default,
		EscalationChain: c.EscalationChain(),
	}
}

// ApplyRoleOverrides registers every teams.roles.<name> override onto
// catalog, so a config-supplied tweak to a built-in (or a brand new
// custom role) is visible to role.Catalog.Resolve.
func (c *Config) ApplyRoleOverrides(catalog *roles.Catalog) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, ro := range c.Teams.Roles {
		catalog.RegisterCustom(name, roles.Override{
			Tools:          ro.Tools,
			MaxIterations:  ro.MaxIterations,
			SystemPrompt:   ro.SystemPrompt,
			ModelTier:      ro.ModelTier,
			BudgetLimitUSD: ro.BudgetLimitUSD,
		})
	}
}
