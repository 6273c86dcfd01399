// Package scheduler runs a task graph to completion or to the first fatal
// condition.
//
// # Control Loop
//
// The scheduler is a single-threaded cooperative loop. Parallelism comes
// entirely from the task processes it launches; the loop itself only
// launches, sleeps and polls:
//
//  1. Abort with DEADLINE_EXCEEDED if the run's deadline has passed.
//  2. Drain the FIFO ready queue: wait on the resource gate, launch the
//     node, record it as running.
//  3. Sleep the poll interval, then visit running nodes in launch order.
//     A node past its timeout is killed (NODE_TIMEOUT). A node that exited
//     zero completes and its newly ready dependents join the queue. A node
//     that exited nonzero aborts the run (NODE_FAILURE).
//
// The loop ends when both the ready queue and the running set are empty.
// If fewer nodes completed than the graph holds, the remainder could never
// become ready and the run fails with CYCLE_OR_INCOMPLETE.
//
// # Aborts
//
// Every error is fatal to the run. Before returning, the scheduler kills
// every node still running and marks it failed, so no task outlives the
// run that started it.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/batchtower/pkg/dag"
	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/executor"
	"github.com/matzehuels/batchtower/pkg/observability"
	"github.com/matzehuels/batchtower/pkg/resource"
)

// maxDetail bounds the stderr excerpt attached to NODE_FAILURE errors.
const maxDetail = 4096

// Scheduler executes one run of a graph. A Scheduler is single-use.
type Scheduler struct {
	graph      *dag.Graph
	exec       executor.Executor
	deadline   *time.Duration
	poll       time.Duration
	gate       Gate
	thresholds resource.Thresholds
	logger     *log.Logger
	hooks      observability.RunHooks
	runID      string

	mu    sync.Mutex
	state RunState

	start   time.Time
	ready   []string
	running []*task
	result  *Result
}

type task struct {
	id      string
	handle  executor.Handle
	start   time.Time
	timeout time.Duration
}

// New returns a scheduler for g that launches nodes through exec.
func New(g *dag.Graph, exec executor.Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		graph:  g,
		exec:   exec,
		poll:   DefaultPollInterval,
		logger: log.Default(),
		hooks:  observability.Run(),
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunID returns the identifier of this run.
func (s *Scheduler) RunID() string { return s.runID }

// State returns the current run state. It is safe to call from other
// goroutines while Run is executing.
func (s *Scheduler) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st RunState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run executes the graph. It returns the run result together with nil on
// full completion, or with the coded error that aborted the run.
// Canceling ctx aborts the run with CANCELED.
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, bterrors.New(bterrors.ErrCodeInternal, "scheduler for run %s already used", s.runID)
	}
	s.state = StateValidating
	s.mu.Unlock()

	s.start = time.Now()
	s.result = &Result{RunID: s.runID, Start: s.start}

	if err := s.validate(); err != nil {
		return s.finish(ctx, err)
	}

	s.result.Total = s.graph.Len()
	s.ready = s.graph.InitialReady()
	s.hooks.OnRunStart(ctx, s.runID, s.graph.IDs())
	s.logger.Info("run started", "run", s.runID, "nodes", s.graph.Len(), "edges", s.graph.EdgeCount())
	s.setState(StateScheduling)

	err := s.checkDeadline()
	if err == nil {
		err = s.loop(ctx)
	}
	if err == nil && s.graph.CompletedCount() != s.graph.Len() {
		err = s.incomplete()
	}
	return s.finish(ctx, err)
}

func (s *Scheduler) validate() error {
	if s.graph == nil {
		return bterrors.New(bterrors.ErrCodeConfig, "no graph to schedule")
	}
	if s.exec == nil {
		return bterrors.New(bterrors.ErrCodeInternal, "no executor configured")
	}
	if s.gate == nil && !s.thresholds.Empty() {
		return bterrors.New(bterrors.ErrCodeInternal, "resource thresholds configured without a gate")
	}
	return s.thresholds.Validate()
}

func (s *Scheduler) loop(ctx context.Context) error {
	for len(s.ready) > 0 || len(s.running) > 0 {
		if err := s.checkDeadline(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}

		for len(s.ready) > 0 {
			id := s.ready[0]
			s.ready = s.ready[1:]
			if err := s.launch(ctx, id); err != nil {
				return err
			}
		}

		if err := s.sleep(ctx); err != nil {
			return err
		}
		if err := s.reap(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) checkDeadline() error {
	if s.deadline == nil {
		return nil
	}
	d := *s.deadline
	if d <= 0 {
		return bterrors.New(bterrors.ErrCodeDeadlineExceeded, "deadline of %s leaves no time to run", d)
	}
	if elapsed := time.Since(s.start); elapsed > d {
		return bterrors.New(bterrors.ErrCodeDeadlineExceeded,
			"run exceeded its deadline of %s after %s", d, elapsed.Round(time.Millisecond))
	}
	return nil
}

// admissionTimeout is the time left until the deadline, or unbounded.
func (s *Scheduler) admissionTimeout() time.Duration {
	if s.deadline == nil {
		return resource.Unbounded
	}
	return max(*s.deadline-time.Since(s.start), 0)
}

func (s *Scheduler) launch(ctx context.Context, id string) error {
	if s.gate != nil && !s.thresholds.Empty() {
		gctx := observability.WithNode(ctx, s.runID, id)
		if err := s.gate.Wait(gctx, s.thresholds, s.admissionTimeout()); err != nil {
			return withNode(err, id)
		}
	}

	h, err := s.exec.Launch(ctx, id)
	if err != nil {
		if bterrors.GetCode(err) == "" {
			err = bterrors.Wrap(bterrors.ErrCodeLaunch, err, "launch %s", id)
		}
		return withNode(err, id)
	}
	if err := s.graph.Start(id); err != nil {
		_ = h.Kill()
		return err
	}

	started := h.StartedAt()
	if started.IsZero() {
		started = time.Now()
	}
	s.running = append(s.running, &task{id: id, handle: h, start: started, timeout: s.graph.Timeout(id)})
	s.result.Launched = append(s.result.Launched, id)

	s.logger.Info("node started", "node", id, "pid", h.PID())
	s.hooks.OnNodeLaunch(ctx, s.runID, id, h.PID(), started)
	return nil
}

func (s *Scheduler) sleep(ctx context.Context) error {
	timer := time.NewTimer(s.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return canceled(ctx.Err())
	case <-timer.C:
		return nil
	}
}

// reap visits running nodes in launch order.
func (s *Scheduler) reap(ctx context.Context) error {
	kept := s.running[:0]
	var abort error

	for i, t := range s.running {
		if abort != nil {
			kept = append(kept, s.running[i:]...)
			break
		}

		now := time.Now()
		if t.timeout > 0 && now.Sub(t.start) > t.timeout {
			_ = t.handle.Kill()
			err := bterrors.New(bterrors.ErrCodeNodeTimeout,
				"node %s exceeded its timeout of %s", t.id, t.timeout).WithNode(t.id)
			s.fail(ctx, t, now, -1, err)
			abort = err
			continue
		}

		code, exited := t.handle.Poll()
		if !exited {
			kept = append(kept, t)
			continue
		}

		if code != 0 {
			_, stderr := t.handle.Output()
			err := bterrors.New(bterrors.ErrCodeNodeFailure,
				"node %s exited with code %d", t.id, code).WithNode(t.id).WithDetail(excerpt(stderr))
			s.fail(ctx, t, now, code, err)
			abort = err
			continue
		}

		newlyReady, err := s.graph.Complete(t.id)
		if err != nil {
			abort = err
			continue
		}
		s.record(t, now, 0)
		s.result.Completed = append(s.result.Completed, t.id)
		s.ready = append(s.ready, newlyReady...)

		s.logger.Info("node completed", "node", t.id, "duration", now.Sub(t.start).Round(time.Millisecond))
		s.hooks.OnNodeFinish(ctx, s.runID, t.id, t.start, now, 0, nil)
	}

	s.running = kept
	return abort
}

func (s *Scheduler) fail(ctx context.Context, t *task, at time.Time, code int, err error) {
	_ = s.graph.Fail(t.id)
	s.record(t, at, code)
	s.result.Failed = append(s.result.Failed, t.id)
	s.hooks.OnNodeFinish(ctx, s.runID, t.id, t.start, at, code, err)
}

func (s *Scheduler) record(t *task, end time.Time, code int) {
	s.result.Timings = append(s.result.Timings, Timing{Node: t.id, Start: t.start, End: end, ExitCode: code})
}

// killRunning terminates every node still tracked as running.
func (s *Scheduler) killRunning(ctx context.Context, cause error) {
	for _, t := range s.running {
		if err := t.handle.Kill(); err != nil {
			s.logger.Error("failed to kill node", "node", t.id, "pid", t.handle.PID(), "err", err)
		} else {
			s.logger.Warn("killed running node", "node", t.id, "pid", t.handle.PID())
		}
		s.fail(ctx, t, time.Now(), -1, fmt.Errorf("killed on abort: %w", cause))
	}
	s.running = nil
}

func (s *Scheduler) incomplete() error {
	unfinished := s.graph.Unfinished()
	err := bterrors.New(bterrors.ErrCodeCycleOrIncomplete,
		"%d of %d nodes never became ready: %s",
		len(unfinished), s.graph.Len(), strings.Join(unfinished, ", "))
	if cycle := s.graph.FindCycle(); cycle != nil {
		err = err.WithDetail("cycle: " + strings.Join(cycle, " -> "))
	}
	return err
}

func (s *Scheduler) finish(ctx context.Context, err error) (*Result, error) {
	if err != nil {
		s.killRunning(ctx, err)
		s.setState(StateAborted)
		s.logger.Error("run aborted", "run", s.runID, "err", err)
		if detail := bterrors.Detail(err); detail != "" {
			s.logger.Error("failure detail", "node", nodeOf(err), "detail", detail)
		}
	} else {
		s.setState(StateCompleted)
	}

	s.result.State = s.State()
	s.result.End = time.Now()
	if s.graph != nil {
		s.logger.Info("run finished", "run", s.runID, "state", s.result.State,
			"completed", len(s.result.Completed), "total", s.graph.Len(),
			"duration", s.result.Duration().Round(time.Millisecond))
	}
	s.hooks.OnRunEnd(ctx, s.runID, s.result.Start, s.result.End, len(s.result.Completed), err)
	return s.result, err
}

func canceled(cause error) error {
	return bterrors.Wrap(bterrors.ErrCodeCanceled, cause, "run interrupted")
}

func withNode(err error, id string) error {
	var e *bterrors.Error
	if bterrors.As(err, &e) && e.Node == "" {
		e.Node = id
	}
	return err
}

func nodeOf(err error) string {
	var e *bterrors.Error
	if bterrors.As(err, &e) {
		return e.Node
	}
	return ""
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxDetail {
		s = "..." + s[len(s)-maxDetail:]
	}
	return s
}
