package scheduler

import "time"

// RunState is the position of a run in its lifecycle:
//
//	Idle → Validating → Scheduling → Completed
//	                               ↘ Aborted
type RunState int

const (
	StateIdle RunState = iota
	StateValidating
	StateScheduling
	StateCompleted
	StateAborted
)

var runStateNames = [...]string{"idle", "validating", "scheduling", "completed", "aborted"}

func (s RunState) String() string {
	if s < 0 || int(s) >= len(runStateNames) {
		return "unknown"
	}
	return runStateNames[s]
}

// Timing records one finished node.
type Timing struct {
	Node     string    `json:"node"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	ExitCode int       `json:"exit_code"`
}

// Duration returns End - Start.
func (t Timing) Duration() time.Duration { return t.End.Sub(t.Start) }

// Result summarizes a run. It is returned even when the run aborted, with
// every count frozen at the moment of the abort.
type Result struct {
	RunID     string    `json:"run_id"`
	State     RunState  `json:"-"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Total     int       `json:"total"`
	Launched  []string  `json:"launched"`  // Launch order
	Completed []string  `json:"completed"` // Completion order
	Failed    []string  `json:"failed,omitempty"`
	Timings   []Timing  `json:"timings"`
}

// Duration returns the wall-clock time of the run.
func (r *Result) Duration() time.Duration { return r.End.Sub(r.Start) }

// OK reports whether every node completed.
func (r *Result) OK() bool { return r.State == StateCompleted }
