// Package agent implements the Agent worker (C9): the ReAct loop that
// drives one team member's conversation with its assigned Model Client,
// generalized from a single-agent tool-calling loop into a
// rate-limited, cost-tracked, escalation-capable multi-agent turn.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/cost"
	"github.com/treetopdevs/loomteams/pkg/debate"
	"github.com/treetopdevs/loomteams/pkg/logger"
	"github.com/treetopdevs/loomteams/pkg/modelrouter"
	"github.com/treetopdevs/loomteams/pkg/pricing"
	"github.com/treetopdevs/loomteams/pkg/providers"
	"github.com/treetopdevs/loomteams/pkg/ratelimit"
	"github.com/treetopdevs/loomteams/pkg/roles"
	"github.com/treetopdevs/loomteams/pkg/toolport"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
	StatusBlocked Status = "blocked"
	StatusError   Status = "error"
)

// estimatedTokensPerCall is the pre-call budget acquired from the rate
// limiter before the true usage is known.
const estimatedTokensPerCall = 1000

// Deps bundles the singletons an Agent calls into. All are shared
// across a team's agents.
type Deps struct {
	Bus         *bus.Bus
	RateLimiter *ratelimit.Limiter
	CostTracker *cost.Tracker
	ModelRouter *modelrouter.Router
	Tools       *toolport.Registry
	Client      providers.Client
}

// Agent is one team member: a role, a model, a tool subset, and an
// in-flight message history.
type Agent struct {
	mu sync.Mutex

	teamID  string
	name    string
	role    roles.Role
	model   string
	tools   *toolport.Registry
	messages []providers.Message
	status  Status
	taskID  string
	failureCount int
	context map[string]any

	deps Deps
}

// New constructs an Agent. deps.Tools is the full installation-wide
// registry; the agent keeps only role.Tools from it.
func New(teamID, name string, role roles.Role, model string, deps Deps) *Agent {
	return &Agent{
		teamID: teamID, name: name, role: role, model: model,
		tools: deps.Tools.Subset(role.Tools), status: StatusIdle,
		context: make(map[string]any), deps: deps,
	}
}

func (a *Agent) GetStatus() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// GetHistory returns a read-only copy of the agent's messages.
func (a *Agent) GetHistory() []providers.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]providers.Message{}, a.messages...)
}

// AssignTask updates state.task and triggers a proactive keeper
// prefetch via prefetch, which the caller supplies (it needs access to
// the team's registered Keepers).
func (a *Agent) AssignTask(taskID, description string, prefetch func(description string) string) {
	a.mu.Lock()
	a.taskID = taskID
	a.mu.Unlock()

	if prefetch == nil {
		return
	}
	if hint := prefetch(description); hint != "" {
		a.mu.Lock()
		a.messages = append(a.messages, providers.Message{Role: "system", Content: "[Keeper hint]: " + hint})
		a.mu.Unlock()
	}
}

// PeerMessage appends an inbound peer message; async, never blocks.
func (a *Agent) PeerMessage(from, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, providers.Message{
		Role: "user", Content: fmt.Sprintf("[Peer %s]: %s", from, content),
	})
}

// ChangeRole swaps system prompt, tools, and iteration cap, broadcasting
// {role_changed}. requireApproval only changes the advisory broadcast
// sent first; it is advisory-only in the core (no blocking wait).
func (a *Agent) ChangeRole(newRole roles.Role, requireApproval bool) {
	a.mu.Lock()
	oldName := a.role.Name
	a.mu.Unlock()

	if requireApproval && a.deps.Bus != nil {
		a.deps.Bus.Broadcast(bus.Team(a.teamID), bus.Message{Tag: "role_change_request", Payload: map[string]any{
			"name": a.name, "old": oldName, "new": newRole.Name,
		}})
	}

	a.mu.Lock()
	a.role = newRole
	a.tools = a.deps.Tools.Subset(newRole.Tools)
	a.mu.Unlock()

	if a.deps.Bus != nil {
		a.deps.Bus.Broadcast(bus.Team(a.teamID), bus.Message{Tag: "role_changed", Payload: map[string]any{
			"name": a.name, "old": oldName, "new": newRole.Name,
		}})
	}
}

// SystemPromptExtras carries the ambient context appended to
// role.system_prompt before each ReAct loop.
type SystemPromptExtras struct {
	ProjectRules     string
	ActiveGoals      string
	RecentDecisions  string
	RepoMap          string
	KeeperIndex      []string
	ContextLimit     int
}

func (a *Agent) buildSystemPrompt(extras SystemPromptExtras, currentTokens int) string {
	var b strings.Builder
	b.WriteString(a.role.SystemPrompt)
	if extras.ProjectRules != "" {
		b.WriteString("\n\n")
		b.WriteString(extras.ProjectRules)
	}
	if extras.ActiveGoals != "" {
		b.WriteString("\n\nActive goals:\n")
		b.WriteString(extras.ActiveGoals)
	}
	if extras.RecentDecisions != "" {
		b.WriteString("\n\nRecent decisions:\n")
		b.WriteString(extras.RecentDecisions)
	}
	if extras.RepoMap != "" {
		b.WriteString("\n\nRepo map:\n")
		b.WriteString(extras.RepoMap)
	}
	if len(extras.KeeperIndex) > 0 {
		b.WriteString("\n\nRegistered keepers:\n")
		b.WriteString(strings.Join(extras.KeeperIndex, "\n"))
	}
	if extras.ContextLimit > 0 && currentTokens*2 >= extras.ContextLimit {
		b.WriteString("\n\n[SYSTEM] Context pressure is high. Consider using context_offload to free up room.")
	}
	return b.String()
}

// SendMessageResult is send_message's outcome.
type SendMessageResult struct {
	Reply string
	Err   error
}

// SendMessage appends a user message, runs the ReAct loop to
// completion, and returns the final reply. Blocking, unbounded wait:
// a user-initiated turn has no timeout.
func (a *Agent) SendMessage(ctx context.Context, text string, extras SystemPromptExtras) SendMessageResult {
	a.mu.Lock()
	a.messages = append(a.messages, providers.Message{Role: "user", Content: text})
	a.status = StatusWorking
	a.failureCount = 0
	a.mu.Unlock()
	a.broadcastStatus(StatusWorking)

	reply, err := a.runReActLoop(ctx, extras)

	a.mu.Lock()
	a.status = StatusIdle
	a.mu.Unlock()
	a.broadcastStatus(StatusIdle)

	return SendMessageResult{Reply: reply, Err: err}
}

func (a *Agent) broadcastStatus(s Status) {
	if a.deps.Bus == nil {
		return
	}
	a.deps.Bus.Broadcast(bus.Team(a.teamID), bus.Message{Tag: "agent_status", Payload: map[string]any{
		"name": a.name, "status": s,
	}})
}

// runReActLoop drives up to role.max_iterations of call→classify→act,
// with escalate-once-per-turn recovery on {error}.
func (a *Agent) runReActLoop(ctx context.Context, extras SystemPromptExtras) (string, error) {
	iteration := 0
	maxIter := a.role.MaxIterations

	for iteration < maxIter {
		iteration++

		if a.deps.RateLimiter != nil {
			provider := providers.ProviderOf(a.currentModel())
			for {
				result := a.deps.RateLimiter.Acquire(provider, estimatedTokensPerCall)
				if result.OK {
					break
				}
				time.Sleep(time.Duration(result.WaitMS) * time.Millisecond)
			}
		}

		logger.DebugCF("agent", "react iteration", map[string]any{
			"team": a.teamID, "agent": a.name, "iteration": iteration, "max": maxIter,
		})

		systemPrompt := a.buildSystemPrompt(extras, a.currentTokenEstimate())
		toolDefs := a.toolDefinitions()

		resp, err := a.deps.Client.Chat(ctx, a.messagesWithSystem(systemPrompt), toolDefs, a.currentModel(), nil)
		if err != nil {
			recovered, recoveryErr := a.handleError(ctx, extras)
			if !recovered {
				return "", recoveryErr
			}
			continue
		}

		if resp.Usage != nil {
			a.recordUsage(resp.Usage)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		a.appendAssistantToolCalls(resp)
		a.executeToolCalls(ctx, resp)
	}

	return "", fmt.Errorf("max_iterations_exceeded")
}

func (a *Agent) currentModel() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model
}

// Model returns the agent's current model, reflecting any escalation.
func (a *Agent) Model() string {
	return a.currentModel()
}

func (a *Agent) currentTokenEstimate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, m := range a.messages {
		total += len(strings.Fields(m.Content))
	}
	return total
}

func (a *Agent) messagesWithSystem(systemPrompt string) []providers.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]providers.Message, 0, len(a.messages)+1)
	out = append(out, providers.Message{Role: "system", Content: systemPrompt})
	out = append(out, a.messages...)
	return out
}

func (a *Agent) toolDefinitions() []providers.ToolDefinition {
	a.mu.Lock()
	t := a.tools
	a.mu.Unlock()
	if t == nil {
		return nil
	}
	var defs []providers.ToolDefinition
	for _, name := range a.role.Tools {
		tool, ok := t.Get(name)
		if !ok {
			continue
		}
		defs = append(defs, providers.ToolDefinition{
			Name: tool.Name(), Description: tool.Description(), Parameters: tool.Schema(),
		})
	}
	return defs
}

func (a *Agent) appendAssistantToolCalls(resp *providers.Response) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, providers.Message{
		Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls,
	})
}

const toolCallTimeout = 60 * time.Second

func (a *Agent) executeToolCalls(ctx context.Context, resp *providers.Response) {
	callCtx := toolport.CallContext{TeamID: a.teamID, AgentName: a.name}
	for _, tc := range resp.ToolCalls {
		timeoutCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
		var result toolport.Result
		if a.tools != nil {
			result = a.tools.Execute(timeoutCtx, tc.Name, tc.Arguments, callCtx)
		} else {
			result = toolport.Err(fmt.Errorf("no tools available"))
		}
		cancel()

		content := result.Result
		if result.Failed() {
			content = result.Err.Error()
		}
		a.mu.Lock()
		a.messages = append(a.messages, providers.Message{Role: "tool", Content: content, ToolCallID: tc.ID})
		a.mu.Unlock()
	}
}

// recordUsage runs the usage-accounting cascade: pricing, rate limiter,
// cost tracker, and a budget.warning broadcast if the team is near its
// ceiling.
func (a *Agent) recordUsage(usage *providers.UsageInfo) {
	model := a.currentModel()
	var costVal *float64
	if usage.TotalCostUSD != nil {
		costVal = usage.TotalCostUSD
	} else {
		computed := pricing.Calculate(model, usage.InputTokens, usage.OutputTokens)
		costVal = &computed
	}

	if a.deps.RateLimiter != nil {
		totalTokens := usage.InputTokens + usage.OutputTokens
		exceeded, scope := a.deps.RateLimiter.RecordUsage(a.teamID, a.name, ratelimit.Usage{Tokens: totalTokens, Cost: *costVal})
		if exceeded {
			logger.WarnCF("agent", "budget exceeded", map[string]any{
				"team": a.teamID, "agent": a.name, "scope": scope,
			})
		}
		if a.deps.RateLimiter.NearLimit(a.teamID) && a.deps.Bus != nil {
			a.deps.Bus.Broadcast(bus.Team(a.teamID), bus.Message{Tag: "budget.warning", Payload: map[string]any{
				"team": a.teamID,
			}})
		}
	}
	if a.deps.CostTracker != nil {
		rec := cost.UsageRecord{
			InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens,
			Cost: costVal, Model: model,
		}
		a.deps.CostTracker.RecordUsage(a.teamID, a.name, rec)
		a.deps.CostTracker.RecordCall(a.teamID, a.name, rec)
	}
}

// handleError escalates at most once per turn (SendMessage resets
// failureCount): only after the router's own per-(team,agent,task)
// failure counter has reached its threshold, and only if this agent
// hasn't already escalated during the current turn.
func (a *Agent) handleError(ctx context.Context, extras SystemPromptExtras) (recovered bool, err error) {
	a.mu.Lock()
	taskID := a.taskID
	failureCount := a.failureCount
	model := a.model
	a.mu.Unlock()

	if taskID == "" || a.deps.ModelRouter == nil {
		return false, fmt.Errorf("turn failed")
	}

	a.deps.ModelRouter.RecordFailure(a.teamID, a.name, taskID)

	const escalationThreshold = 2
	canEscalate := failureCount < 1 &&
		a.deps.ModelRouter.ShouldEscalate(a.teamID, a.name, taskID, escalationThreshold) &&
		a.deps.ModelRouter.EscalationEnabled()

	if !canEscalate {
		a.mu.Lock()
		a.status = StatusError
		a.mu.Unlock()
		return false, fmt.Errorf("turn failed")
	}

	next, outcome := a.deps.ModelRouter.Escalate(model)
	if outcome != modelrouter.EscalateOK {
		return false, fmt.Errorf("escalation %s", outcome)
	}

	if a.deps.CostTracker != nil {
		a.deps.CostTracker.RecordEscalation(a.teamID, a.name, taskID, model, next)
	}
	if a.deps.Bus != nil {
		a.deps.Bus.Broadcast(bus.Team(a.teamID), bus.Message{Tag: "agent_escalation", Payload: map[string]any{
			"name": a.name, "old": model, "new": next,
		}})
	}

	a.mu.Lock()
	a.model = next
	a.failureCount++
	a.mu.Unlock()

	return true, nil
}

// HandleContextUpdate merges an incoming {context_update} into state.context.
func (a *Agent) HandleContextUpdate(from string, payload any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.context[from] = payload
}

// HandleKeeperCreated appends a system note when a peer registers a new
// keeper.
func (a *Agent) HandleKeeperCreated(sourceAgent, topic string, tokens int) {
	if sourceAgent == a.name {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, providers.Message{
		Role: "system", Content: fmt.Sprintf("New keeper available: topic=%s source=%s tokens=%d", topic, sourceAgent, tokens),
	})
}

// HandleQuery appends a templated user message for an inbound {query}
// from a peer, letting the agent answer on its next turn.
func (a *Agent) HandleQuery(queryID, from, question string, enrichments []string) {
	if from == a.name {
		return
	}
	var enrichText string
	if len(enrichments) > 0 {
		enrichText = strings.Join(enrichments, "\n")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, providers.Message{
		Role: "user",
		Content: fmt.Sprintf(
			"[Query from %s | ID: %s]\n%s\n\n%s\n\nYou can respond using peer_answer_question.",
			from, queryID, question, enrichText,
		),
	})
}

// HandleQueryAnswer appends a templated user message for an inbound
// {query_answer}.
func (a *Agent) HandleQueryAnswer(queryID, from, answer string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, providers.Message{
		Role:    "user",
		Content: fmt.Sprintf("[Answer from %s | Query: %s] %s", from, queryID, answer),
	})
}

// Debate answers one phase of a debate addressed to this agent: it builds
// a phase-specific prompt from payload, asks the Model Client for a single
// completion outside the normal ReAct loop (no tools, no history), and
// broadcasts the resulting debate.Response on the topic payload carries
// under "debate_topic". Silently does nothing on a malformed payload or a
// Model Client failure — a non-answering participant is handled by the
// orchestrator's own per-round timeout.
func (a *Agent) Debate(ctx context.Context, tag string, payload map[string]any) {
	debateTopic, _ := payload["debate_topic"].(string)
	if debateTopic == "" || a.deps.Bus == nil || a.deps.Client == nil {
		return
	}

	prompt, kind := a.debatePrompt(tag, payload)
	if kind == "" {
		return
	}

	resp, err := a.deps.Client.Chat(ctx, []providers.Message{
		{Role: "system", Content: a.role.SystemPrompt},
		{Role: "user", Content: prompt},
	}, nil, a.currentModel(), nil)
	if err != nil {
		return
	}

	out := debate.Response{From: a.name, Kind: kind, Content: resp.Content}
	if kind == debate.KindChoice {
		out.Choice = a.pickChoice(resp.Content, payload)
	}
	a.deps.Bus.Broadcast(debateTopic, bus.Message{Payload: out})
}

func (a *Agent) debatePrompt(tag string, payload map[string]any) (string, debate.ResponseKind) {
	switch tag {
	case "debate_propose":
		topic, _ := payload["topic"].(string)
		return fmt.Sprintf("Propose an approach for: %s", topic), debate.KindProposal
	case "debate_critique":
		others, _ := payload["others_proposals"].(map[string]string)
		return fmt.Sprintf("Critique these proposals from your peers:\n%s", formatNamedContent(others)), debate.KindCritique
	case "debate_revise":
		critiques, _ := payload["my_critiques"].([]debate.Response)
		return fmt.Sprintf("Revise your proposal considering these critiques:\n%s", formatResponses(critiques)), debate.KindRevision
	case "debate_vote":
		final, _ := payload["final_proposals"].(map[string]string)
		return fmt.Sprintf("Vote for the best proposal among:\n%s\nRespond with only the author's name.", formatNamedContent(final)), debate.KindChoice
	default:
		return "", ""
	}
}

// pickChoice matches the model's free-text vote against the candidate
// names in final_proposals, falling back to this agent's own name if the
// response names no recognizable candidate.
func (a *Agent) pickChoice(content string, payload map[string]any) string {
	final, _ := payload["final_proposals"].(map[string]string)
	trimmed := strings.TrimSpace(content)
	for name := range final {
		if strings.EqualFold(name, trimmed) {
			return name
		}
	}
	lower := strings.ToLower(trimmed)
	for name := range final {
		if strings.Contains(lower, strings.ToLower(name)) {
			return name
		}
	}
	return a.name
}

func formatNamedContent(m map[string]string) string {
	var b strings.Builder
	for name, content := range m {
		fmt.Fprintf(&b, "%s: %s\n", name, content)
	}
	return b.String()
}

func formatResponses(responses []debate.Response) string {
	var b strings.Builder
	for _, r := range responses {
		fmt.Fprintf(&b, "%s: %s\n", r.From, r.Content)
	}
	return b.String()
}
