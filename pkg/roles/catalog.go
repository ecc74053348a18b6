// Package roles implements the Role Catalog (C14): the static per-role
// tool whitelist, system prompt, iteration cap, and default budget for the
// five built-in roles, plus support for config-supplied custom roles.
package roles

// Universe of peer-communication tools every role carries.
var peerTools = []string{
	"peer_message", "peer_discovery", "peer_claim_region", "peer_review",
	"peer_create_task", "peer_ask_question", "peer_answer_question",
	"peer_forward_question", "context_retrieve", "context_offload",
}

// Role describes one catalogued agent role.
type Role struct {
	Name           string
	Tools          []string
	MaxIterations  int
	SystemPrompt   string
	ModelTier      string // always "default" for built-ins
	BudgetLimitUSD float64 // 0 means "use the team's default agent budget"
}

const defaultMaxIterations = 15

func withPeerTools(tools ...string) []string {
	return append(append([]string{}, tools...), peerTools...)
}

// builtins is the static catalog of the five built-in roles.
var builtins = map[string]Role{
	"lead": {
		Name: "lead",
		Tools: withPeerTools(
			"file_read", "file_write", "file_edit", "file_search", "content_search",
			"directory_list", "shell", "git", "decision_log", "decision_query",
			"sub_agent", "lsp_diagnostics", "team_spawn", "team_assign",
			"team_progress", "team_dissolve",
		),
		MaxIterations: defaultMaxIterations,
		SystemPrompt: "You are the lead agent on this team. You plan work, delegate " +
			"tasks to teammates, resolve blockers, and make final calls on design " +
			"decisions. You can spawn and stop teammates and sub-teams.",
		ModelTier: "default",
	},
	"researcher": {
		Name: "researcher",
		Tools: withPeerTools(
			"file_read", "file_search", "content_search", "directory_list",
			"lsp_diagnostics", "decision_query",
		),
		MaxIterations: defaultMaxIterations,
		SystemPrompt: "You are the researcher on this team. You investigate the " +
			"codebase and external context, and report findings as discoveries " +
			"for other agents to act on. You do not write files or run shell " +
			"commands.",
		ModelTier: "default",
	},
	"coder": {
		Name: "coder",
		Tools: withPeerTools(
			"file_read", "file_write", "file_edit", "file_search", "content_search",
			"directory_list", "shell", "git", "decision_log", "lsp_diagnostics",
		),
		MaxIterations: defaultMaxIterations,
		SystemPrompt: "You are the coder on this team. You implement assigned " +
			"tasks: read, write, and edit files, run shell commands and git, and " +
			"log the decisions behind non-obvious choices.",
		ModelTier: "default",
	},
	"reviewer": {
		Name: "reviewer",
		Tools: withPeerTools(
			"file_read", "file_search", "content_search", "directory_list",
			"lsp_diagnostics", "decision_query",
		),
		MaxIterations: defaultMaxIterations,
		SystemPrompt: "You are the reviewer on this team. You read diffs and " +
			"files, flag correctness and design issues, and approve or reject " +
			"pair-mode review requests. You do not write files.",
		ModelTier: "default",
	},
	"tester": {
		Name: "tester",
		Tools: withPeerTools(
			"file_read", "file_search", "content_search", "directory_list",
			"lsp_diagnostics", "decision_query",
		),
		MaxIterations: defaultMaxIterations,
		SystemPrompt: "You are the tester on this team. You run and reason about " +
			"tests, reproduce bugs, and report failures as discoveries. You do " +
			"not write production files.",
		ModelTier: "default",
	},
}

// Override carries config-supplied field overrides for a custom role, or
// for tweaking a built-in. Nil/zero fields leave the base value untouched.
type Override struct {
	Tools          []string
	MaxIterations  int
	SystemPrompt   string
	ModelTier      string
	BudgetLimitUSD float64
}

// Catalog resolves role names to their Role definition, including any
// config-loaded custom roles or built-in overrides.
type Catalog struct {
	custom map[string]Role
}

func NewCatalog() *Catalog {
	return &Catalog{custom: make(map[string]Role)}
}

// RegisterCustom adds or overrides a role by name, applying override on
// top of the matching built-in if one exists (so a custom role can start
// from "coder" and only change, say, MaxIterations).
func (c *Catalog) RegisterCustom(name string, override Override) {
	base := builtins[name] // zero Role if name isn't a built-in
	base.Name = name
	if len(override.Tools) > 0 {
		base.Tools = override.Tools
	}
	if override.MaxIterations > 0 {
		base.MaxIterations = override.MaxIterations
	}
	if override.SystemPrompt != "" {
		base.SystemPrompt = override.SystemPrompt
	}
	if override.ModelTier != "" {
		base.ModelTier = override.ModelTier
	}
	if override.BudgetLimitUSD > 0 {
		base.BudgetLimitUSD = override.BudgetLimitUSD
	}
	if base.MaxIterations == 0 {
		base.MaxIterations = defaultMaxIterations
	}
	if len(base.Tools) == 0 {
		base.Tools = append([]string{}, peerTools...)
	}
	c.custom[name] = base
}

// Resolve returns the Role for name: a custom override if registered,
// else a built-in, else (unknown_role) false.
func (c *Catalog) Resolve(name string) (Role, bool) {
	if r, ok := c.custom[name]; ok {
		return r, true
	}
	r, ok := builtins[name]
	return r, ok
}

// Names lists every built-in role name.
func Names() []string {
	return []string{"lead", "researcher", "coder", "reviewer", "tester"}
}
