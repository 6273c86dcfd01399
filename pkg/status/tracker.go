// Package status tracks live run progress and serves it over HTTP.
//
// A [Tracker] is an observability hook that folds scheduler events into a
// snapshot of the current run. [Server] exposes that snapshot as JSON for
// monitoring, and the terminal UI renders it directly.
package status

import (
	"context"
	"slices"
	"sync"
	"time"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/observability"
)

// DefaultHistory is how many finished runs a tracker remembers.
const DefaultHistory = 20

// Node states reported in snapshots.
const (
	NodePending   = "pending"
	NodeWaiting   = "waiting"
	NodeRunning   = "running"
	NodeCompleted = "completed"
	NodeFailed    = "failed"
)

// Run states reported in snapshots.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunAborted   = "aborted"
)

// NodeStatus is the observed state of one node.
type NodeStatus struct {
	ID       string     `json:"id"`
	State    string     `json:"state"`
	PID      int        `json:"pid,omitempty"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	ExitCode *int       `json:"exit_code,omitempty"`
	Waiting  string     `json:"waiting,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Run is a point-in-time view of one run.
type Run struct {
	ID        string       `json:"id"`
	State     string       `json:"state"`
	Start     time.Time    `json:"start"`
	End       *time.Time   `json:"end,omitempty"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	ErrorCode string       `json:"error_code,omitempty"`
	Error     string       `json:"error,omitempty"`
	Nodes     []NodeStatus `json:"nodes"`
}

// Tracker records scheduler events. It is safe for concurrent use.
type Tracker struct {
	observability.NoopRunHooks

	mu      sync.RWMutex
	current *Run
	index   map[string]int
	history []Run
	limit   int
	notify  chan struct{}
}

// NewTracker returns a tracker remembering up to history finished runs.
func NewTracker(history int) *Tracker {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Tracker{limit: history, notify: make(chan struct{}, 1)}
}

// Updates receives a value after every recorded event. Deliveries coalesce;
// a slow reader sees one pending signal, not one per event.
func (t *Tracker) Updates() <-chan struct{} { return t.notify }

func (t *Tracker) changed() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Current returns a copy of the most recent run, or false before any run.
func (t *Tracker) Current() (Run, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return Run{}, false
	}
	return t.current.clone(), true
}

// History returns finished runs, most recent first.
func (t *Tracker) History() []Run {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Run, len(t.history))
	for i, r := range t.history {
		out[len(t.history)-1-i] = r.clone()
	}
	return out
}

func (t *Tracker) OnRunStart(_ context.Context, runID string, nodes []string) {
	t.mu.Lock()
	r := &Run{
		ID:    runID,
		State: RunRunning,
		Start: time.Now(),
		Total: len(nodes),
		Nodes: make([]NodeStatus, len(nodes)),
	}
	t.index = make(map[string]int, len(nodes))
	for i, id := range nodes {
		r.Nodes[i] = NodeStatus{ID: id, State: NodePending}
		t.index[id] = i
	}
	t.current = r
	t.mu.Unlock()
	t.changed()
}

func (t *Tracker) OnResourceWait(_ context.Context, runID, node, failing string) {
	t.update(runID, node, func(n *NodeStatus) {
		n.State = NodeWaiting
		n.Waiting = failing
	})
}

func (t *Tracker) OnNodeLaunch(_ context.Context, runID, node string, pid int, start time.Time) {
	t.update(runID, node, func(n *NodeStatus) {
		n.State = NodeRunning
		n.PID = pid
		n.Start = &start
		n.Waiting = ""
	})
}

func (t *Tracker) OnNodeFinish(_ context.Context, runID, node string, _, end time.Time, exitCode int, err error) {
	t.update(runID, node, func(n *NodeStatus) {
		n.End = &end
		n.ExitCode = &exitCode
		if err != nil {
			n.State = NodeFailed
			n.Error = err.Error()
			return
		}
		n.State = NodeCompleted
		t.current.Completed++
	})
}

func (t *Tracker) OnRunEnd(_ context.Context, runID string, _, end time.Time, _ int, err error) {
	t.mu.Lock()
	if t.current == nil || t.current.ID != runID {
		t.mu.Unlock()
		return
	}
	t.current.End = &end
	t.current.State = RunCompleted
	if err != nil {
		t.current.State = RunAborted
		t.current.ErrorCode = string(bterrors.GetCode(err))
		t.current.Error = err.Error()
	}
	t.history = append(t.history, t.current.clone())
	if len(t.history) > t.limit {
		t.history = slices.Delete(t.history, 0, len(t.history)-t.limit)
	}
	t.mu.Unlock()
	t.changed()
}

func (t *Tracker) update(runID, node string, fn func(*NodeStatus)) {
	t.mu.Lock()
	if t.current == nil || t.current.ID != runID {
		t.mu.Unlock()
		return
	}
	i, ok := t.index[node]
	if !ok {
		t.mu.Unlock()
		return
	}
	fn(&t.current.Nodes[i])
	t.mu.Unlock()
	t.changed()
}

func (r *Run) clone() Run {
	c := *r
	c.Nodes = slices.Clone(r.Nodes)
	return c
}

// Counts tallies nodes by state.
func (r Run) Counts() map[string]int {
	out := make(map[string]int, 5)
	for _, n := range r.Nodes {
		out[n.State]++
	}
	return out
}

var _ observability.RunHooks = (*Tracker)(nil)
