// Package decisions models the decision graph: nodes recording options,
// observations, and decisions made during a team's work, and edges
// linking them (e.g. a critique "supports" a proposal). Storage is
// delegated to the Persistence Port; this package only defines the
// shapes and the in-process convenience API agents and the Debate
// Orchestrator call.
package decisions

import "time"

type NodeKind string

const (
	NodeOption      NodeKind = "option"
	NodeObservation NodeKind = "observation"
	NodeDecision    NodeKind = "decision"
)

type EdgeKind string

const (
	EdgeSupports EdgeKind = "supports"
	EdgeRefutes  EdgeKind = "refutes"
	EdgeLeadsTo  EdgeKind = "leads_to"
)

// Node is one entry in a team's decision graph.
type Node struct {
	ID        string
	TeamID    string
	Kind      NodeKind
	Author    string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Edge links two nodes in the graph.
type Edge struct {
	TeamID string
	Kind   EdgeKind
	FromID string
	ToID   string
}

// Filters restricts ListNodes queries.
type Filters struct {
	TeamID string
	Kind   NodeKind // empty means any
	Author string   // empty means any
}

// Store is the subset of the Persistence Port the decision graph uses.
type Store interface {
	InsertDecisionNode(n Node) error
	InsertDecisionEdge(e Edge) error
	ListDecisionNodes(f Filters) ([]Node, error)
	UpdateDecisionNode(n Node) (Node, error)
}

// Graph is a thin convenience wrapper over Store used by agents (for
// decision_log/decision_query tools) and the Debate Orchestrator.
type Graph struct {
	store Store
}

func New(store Store) *Graph {
	return &Graph{store: store}
}

func (g *Graph) LogNode(n Node) error {
	return g.store.InsertDecisionNode(n)
}

func (g *Graph) LinkNodes(e Edge) error {
	return g.store.InsertDecisionEdge(e)
}

func (g *Graph) Query(f Filters) ([]Node, error) {
	return g.store.ListDecisionNodes(f)
}
