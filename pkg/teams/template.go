package teams

import (
	"fmt"

	"github.com/treetopdevs/loomteams/pkg/agent"
	"github.com/treetopdevs/loomteams/pkg/config"
	"golang.org/x/sync/errgroup"
)

// expandTemplateAgents turns a template's agent list into concrete,
// uniquely-named spawn requests: an entry with count > 1 is expanded
// into name-1, name-2, ... siblings sharing the same role and model.
func expandTemplateAgents(agents []config.TemplateAgent) []config.TemplateAgent {
	var out []config.TemplateAgent
	for _, a := range agents {
		count := a.Count
		if count <= 1 {
			out = append(out, a)
			continue
		}
		for i := 1; i <= count; i++ {
			out = append(out, config.TemplateAgent{
				Name: fmt.Sprintf("%s-%d", a.Name, i), Role: a.Role, Model: a.Model,
			})
		}
	}
	return out
}

// SpawnTemplate instantiates every agent named in tmpl onto teamID,
// fanning the independent SpawnAgent calls out concurrently since they
// share no state beyond the Manager's own locked roster.
func (m *Manager) SpawnTemplate(teamID string, tmpl config.Template) ([]*agent.Agent, error) {
	if _, ok := m.getTeam(teamID); !ok {
		return nil, ErrNotFound
	}

	specs := expandTemplateAgents(tmpl.Agents)
	agents := make([]*agent.Agent, len(specs))

	var g errgroup.Group
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			ag, err := m.SpawnAgent(teamID, spec.Name, spec.Role, SpawnOpts{Model: spec.Model})
			if err != nil {
				return fmt.Errorf("spawn %s: %w", spec.Name, err)
			}
			agents[i] = ag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return agents, nil
}
