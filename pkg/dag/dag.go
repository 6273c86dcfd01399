package dag

import (
	"errors"
	"slices"
	"time"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

var (
	// ErrUnknownNode is returned by the state transition methods when the
	// node ID is not part of the graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrIllegalTransition is returned when a transition would move a node
	// backwards or skip a state. Node states only ever advance
	// Pending → Ready → Running → {Completed | Failed}.
	ErrIllegalTransition = errors.New("illegal state transition")
)

// State is the lifecycle position of a node within one run.
type State int

const (
	// StatePending means at least one dependency has not completed yet.
	StatePending State = iota
	// StateReady means every dependency completed and the node may launch.
	StateReady
	// StateRunning means the node's task process has been launched.
	StateRunning
	// StateCompleted means the task exited with status zero.
	StateCompleted
	// StateFailed means the task failed, timed out, or was killed on abort.
	StateFailed
)

var stateNames = [...]string{"pending", "ready", "running", "completed", "failed"}

// String returns the lower-case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// NodeSpec declares one task as read from configuration.
type NodeSpec struct {
	ID           string        // Executable reference, unique within a graph
	Dependencies []string      // IDs that must complete before this node runs
	Timeout      time.Duration // Maximum runtime; zero means unlimited
}

// Spec is an ordered list of node declarations. Order matters: it fixes the
// initial ready queue and the order of every dependents list, which in turn
// fixes launch order among nodes that become ready together.
type Spec []NodeSpec

// Node is one schedulable task inside a [Graph].
//
// Dependents is derived at construction as the inverse of Dependencies and
// never recomputed. Remaining starts at len(Dependencies) and is decremented
// exactly once per completed dependency.
type Node struct {
	ID           string
	Dependencies []string
	Dependents   []string
	Remaining    int
	Timeout      time.Duration
	State        State
}

// HasTimeout reports whether the node carries a per-task timeout.
func (n *Node) HasTimeout() bool { return n.Timeout > 0 }

// Edge is a dependency edge pointing from a prerequisite to its dependent.
type Edge struct {
	From string // Prerequisite node ID
	To   string // Dependent node ID
}

// Graph is the dependency graph for one run. It owns every node's state
// and in-degree counter.
//
// The zero value is not usable - use [New]. Graph is not safe for concurrent
// use; the scheduler is its only mutator.
type Graph struct {
	nodes     map[string]*Node
	order     []string
	edges     int
	completed int
}

// New builds and validates a graph from spec.
//
// New returns a CONFIG_ERROR when a node ID is invalid or duplicated, or
// when any dependency names an ID that is not itself declared in spec. No
// cycle check happens here: a cyclic graph is structurally valid and is
// reported by the scheduler once it can make no further progress.
func New(spec Spec) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]*Node, len(spec)),
		order: make([]string, 0, len(spec)),
	}

	for _, ns := range spec {
		if err := bterrors.ValidateNodeID(ns.ID); err != nil {
			return nil, err
		}
		if _, exists := g.nodes[ns.ID]; exists {
			return nil, bterrors.New(bterrors.ErrCodeConfig, "duplicate node %q", ns.ID).WithNode(ns.ID)
		}
		if ns.Timeout < 0 {
			return nil, bterrors.New(bterrors.ErrCodeConfig, "node %q has a negative timeout", ns.ID).WithNode(ns.ID)
		}
		deps := dedupe(ns.Dependencies)
		g.nodes[ns.ID] = &Node{
			ID:           ns.ID,
			Dependencies: deps,
			Remaining:    len(deps),
			Timeout:      ns.Timeout,
		}
		g.order = append(g.order, ns.ID)
	}

	for _, id := range g.order {
		n := g.nodes[id]
		for _, dep := range n.Dependencies {
			parent, ok := g.nodes[dep]
			if !ok {
				return nil, bterrors.New(bterrors.ErrCodeConfig,
					"prerequisite %q of node %q is not defined", dep, id).WithNode(id)
			}
			parent.Dependents = append(parent.Dependents, id)
			g.edges++
		}
	}

	for _, n := range g.nodes {
		if n.Remaining == 0 {
			n.State = StateReady
		}
	}
	return g, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the total number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// EdgeCount returns the number of dependency edges.
func (g *Graph) EdgeCount() int { return g.edges }

// CompletedCount returns how many nodes reached [StateCompleted].
func (g *Graph) CompletedCount() int { return g.completed }

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// IDs returns all node IDs in declaration order.
func (g *Graph) IDs() []string { return slices.Clone(g.order) }

// InitialReady returns, in declaration order, the nodes that have no
// dependencies at all. This is the scheduler's starting ready queue.
func (g *Graph) InitialReady() []string {
	var ready []string
	for _, id := range g.order {
		if len(g.nodes[id].Dependencies) == 0 {
			ready = append(ready, id)
		}
	}
	return ready
}

// Dependents returns the IDs of nodes that depend on id, in declaration order.
func (g *Graph) Dependents(id string) []string {
	if n, ok := g.nodes[id]; ok {
		return n.Dependents
	}
	return nil
}

// Timeout returns the per-node timeout, zero when none is configured.
func (g *Graph) Timeout(id string) time.Duration {
	if n, ok := g.nodes[id]; ok {
		return n.Timeout
	}
	return 0
}

// Edges returns every dependency edge, grouped by dependent in declaration order.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, g.edges)
	for _, id := range g.order {
		for _, dep := range g.nodes[id].Dependencies {
			edges = append(edges, Edge{From: dep, To: id})
		}
	}
	return edges
}

// Unfinished returns, in declaration order, the IDs of nodes that did not
// reach [StateCompleted].
func (g *Graph) Unfinished() []string {
	var out []string
	for _, id := range g.order {
		if g.nodes[id].State != StateCompleted {
			out = append(out, id)
		}
	}
	return out
}

// Start moves a node from Ready to Running.
func (g *Graph) Start(id string) error {
	return g.transition(id, StateReady, StateRunning)
}

// Fail moves a node from Running to Failed.
func (g *Graph) Fail(id string) error {
	return g.transition(id, StateRunning, StateFailed)
}

// Complete moves a node from Running to Completed and decrements the
// remaining-dependency counter of each dependent. It returns the dependents
// whose counter reached zero, in dependents-list order; they are now Ready.
func (g *Graph) Complete(id string) ([]string, error) {
	if err := g.transition(id, StateRunning, StateCompleted); err != nil {
		return nil, err
	}
	g.completed++

	var ready []string
	for _, child := range g.nodes[id].Dependents {
		c := g.nodes[child]
		c.Remaining--
		if c.Remaining == 0 && c.State == StatePending {
			c.State = StateReady
			ready = append(ready, child)
		}
	}
	return ready, nil
}

func (g *Graph) transition(id string, from, to State) error {
	n, ok := g.nodes[id]
	if !ok {
		return bterrors.Wrap(bterrors.ErrCodeInternal, ErrUnknownNode, "node %q", id).WithNode(id)
	}
	if n.State != from {
		return bterrors.Wrap(bterrors.ErrCodeInternal, ErrIllegalTransition,
			"node %q: %s -> %s (currently %s)", id, from, to, n.State).WithNode(id)
	}
	n.State = to
	return nil
}
