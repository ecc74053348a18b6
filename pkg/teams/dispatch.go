package teams

import (
	"context"
	"strings"

	"github.com/treetopdevs/loomteams/pkg/agent"
	"github.com/treetopdevs/loomteams/pkg/bus"
	"github.com/treetopdevs/loomteams/pkg/logger"
)

// startDispatch subscribes a freshly spawned agent to its own topic and its
// team's topic, then drives every inbound bus.Message into the matching
// pub/sub reaction for as long as runCtx is alive. This is what makes an
// Agent a *running* team member rather than a passive struct: without it,
// task_assigned/keeper_created/query/debate_* traffic would have no
// listener and every broadcast to this agent would be silently dropped.
func (m *Manager) startDispatch(runCtx context.Context, teamID, name string, ag *agent.Agent) {
	if m.deps.Bus == nil {
		return
	}
	agentSub := m.deps.Bus.Subscribe(bus.Agent(teamID, name))
	teamSub := m.deps.Bus.Subscribe(bus.Team(teamID))

	go func() {
		defer agentSub.Unsubscribe()
		defer teamSub.Unsubscribe()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-agentSub.C:
				if !ok {
					return
				}
				m.react(runCtx, teamID, ag, msg)
			case msg, ok := <-teamSub.C:
				if !ok {
					return
				}
				m.react(runCtx, teamID, ag, msg)
			}
		}
	}()
}

// react dispatches one bus.Message to the Agent method its Tag names, per
// the pub/sub reaction table. Unrecognized tags are silently ignored.
// debate_* phases run in their own goroutine since answering one calls out
// to the Model Client and must not stall delivery of the next message.
func (m *Manager) react(ctx context.Context, teamID string, ag *agent.Agent, msg bus.Message) {
	payload, _ := msg.Payload.(map[string]any)

	switch msg.Tag {
	case "context_update":
		from, _ := payload["from"].(string)
		ag.HandleContextUpdate(from, payload["payload"])
	case "agent_status":
		logger.DebugCF("teams", "peer status", map[string]any{"team": teamID, "payload": payload})
	case "peer_message":
		from, _ := payload["from"].(string)
		content, _ := payload["content"].(string)
		ag.PeerMessage(from, content)
	case "task_assigned":
		taskID, _ := payload["id"].(string)
		description, _ := payload["description"].(string)
		ag.AssignTask(taskID, description, func(desc string) string {
			return m.keeperPrefetch(ctx, teamID, desc)
		})
	case "keeper_created":
		source, _ := payload["source_agent"].(string)
		topic, _ := payload["topic"].(string)
		tokens, _ := payload["tokens"].(int)
		ag.HandleKeeperCreated(source, topic, tokens)
	case "query":
		queryID, _ := payload["query_id"].(string)
		from, _ := payload["from"].(string)
		question, _ := payload["question"].(string)
		enrichments, _ := payload["enrichments"].([]string)
		ag.HandleQuery(queryID, from, question, enrichments)
	case "query_answer":
		queryID, _ := payload["query_id"].(string)
		from, _ := payload["from"].(string)
		answer, _ := payload["answer"].(string)
		ag.HandleQueryAnswer(queryID, from, answer)
	case "debate_propose", "debate_critique", "debate_revise", "debate_vote":
		go ag.Debate(ctx, msg.Tag, payload)
	}
}

// keeperPrefetch searches teamID's registered Keepers for one whose topic
// has non-zero word overlap with description, returning its best
// smart_retrieve result — or "" if none match. Mirrors the Query Router's
// own enrichment lookup (pkg/queryrouter's gatherEnrichments).
func (m *Manager) keeperPrefetch(ctx context.Context, teamID, description string) string {
	keepers := m.ListKeepers(teamID)
	if len(keepers) == 0 {
		return ""
	}
	descWords := wordSet(description)
	for _, kp := range keepers {
		if overlap(wordSet(kp.Topic()), descWords) == 0 {
			continue
		}
		if hint := kp.SmartRetrieve(ctx, description); hint != "" {
			return hint
		}
	}
	return ""
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
