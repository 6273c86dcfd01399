// Package migrate runs chunked migrations.
//
// A migration has two tasks. The first prints the IDs of the records to
// migrate as a JSON array on stdout. The second runs once per chunk of
// those IDs and receives the chunk as a JSON array in its only argument.
// Chunks run one after another and the first failing chunk stops the
// migration.
//
// While a chunk runs, the resident memory of its process is sampled at
// every poll. With dynamic sizing the peak of each chunk becomes a per-ID
// estimate that sizes the next chunk to fit a share of host memory; see
// [NextChunkSize].
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/executor"
	"github.com/matzehuels/batchtower/pkg/observability"
)

// Defaults.
const (
	DefaultChunkSize    = 10
	DefaultPollInterval = 200 * time.Millisecond
)

// maxDetail bounds the stderr excerpt attached to NODE_FAILURE errors.
const maxDetail = 4096

// Launcher starts a task with extra arguments. [executor.Process]
// implements it.
type Launcher interface {
	LaunchArgs(ctx context.Context, nodeID string, args ...string) (executor.Handle, error)
}

// Chunk is one launch of the chunk task.
type Chunk struct {
	Index    int    // 1-based
	Node     string // name reported to hooks, e.g. "process_chunk.py[3]"
	Size     int    // IDs in the chunk
	Start    time.Time
	End      time.Time
	ExitCode int
	PeakRSS  uint64 // bytes; zero when memory is not tracked
	Stdout   string
}

// Duration returns how long the chunk ran.
func (c Chunk) Duration() time.Duration { return c.End.Sub(c.Start) }

// Result summarizes a migration.
type Result struct {
	RunID      string
	Start      time.Time
	End        time.Time
	Total      int    // IDs printed by the get-IDs task
	Processed  int    // IDs in chunks that exited with code 0
	HostMemory uint64 // total host memory in bytes, zero when unknown
	Chunks     []Chunk
}

// Duration returns the wall-clock time of the migration.
func (r *Result) Duration() time.Duration { return r.End.Sub(r.Start) }

// Sizes returns the size of every chunk in launch order.
func (r *Result) Sizes() []int {
	sizes := make([]int, len(r.Chunks))
	for i, c := range r.Chunks {
		sizes[i] = c.Size
	}
	return sizes
}

// Succeeded returns how many chunks exited with code 0.
func (r *Result) Succeeded() int {
	n := 0
	for _, c := range r.Chunks {
		if c.ExitCode == 0 {
			n++
		}
	}
	return n
}

// Migrator runs one migration. Use [New]; a Migrator runs once.
type Migrator struct {
	exec         Launcher
	getIDs       string
	processChunk string

	chunkSize  int
	dynamic    bool
	maxPercent float64
	memory     Memory
	timeout    time.Duration
	poll       time.Duration
	logger     *log.Logger
	hooks      observability.RunHooks
	runID      string
}

// New returns a migrator running the getIDs and processChunk tasks
// through exec.
func New(exec Launcher, getIDs, processChunk string, opts ...Option) *Migrator {
	m := &Migrator{
		exec:         exec,
		getIDs:       getIDs,
		processChunk: processChunk,
		chunkSize:    DefaultChunkSize,
		maxPercent:   50,
		poll:         DefaultPollInterval,
		logger:       log.Default(),
		hooks:        observability.Run(),
		runID:        uuid.NewString(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunID returns the identifier reported in hooks and the result.
func (m *Migrator) RunID() string { return m.runID }

// Run fetches the IDs and processes them chunk by chunk. The result is
// never nil; it holds every chunk launched before the error.
func (m *Migrator) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: m.runID, Start: time.Now()}
	m.hooks.OnRunStart(ctx, m.runID, []string{m.getIDs, m.processChunk})

	err := m.run(ctx, res)
	res.End = time.Now()

	if err != nil {
		m.logger.Error("migration aborted", "run", m.runID, "err", err)
		if detail := bterrors.Detail(err); detail != "" {
			m.logger.Error("failure detail", "node", nodeOf(err), "detail", detail)
		}
	}
	m.summarize(res)
	m.hooks.OnRunEnd(ctx, m.runID, res.Start, res.End, res.Succeeded(), err)
	return res, err
}

func (m *Migrator) run(ctx context.Context, res *Result) error {
	if m.exec == nil {
		return bterrors.New(bterrors.ErrCodeInternal, "no executor configured")
	}

	ids, err := m.fetchIDs(ctx)
	if err != nil {
		return err
	}
	res.Total = len(ids)
	m.logger.Info("fetched ids", "task", m.getIDs, "count", len(ids))

	if m.memory != nil {
		total, err := m.memory.Total(ctx)
		if err != nil {
			m.logger.Warn("host memory unavailable", "err", err)
		} else {
			res.HostMemory = total
		}
	}

	size := m.chunkSize
	for off := 0; off < len(ids); {
		end := min(off+size, len(ids))
		c, err := m.runChunk(ctx, len(res.Chunks)+1, ids[off:end], res.HostMemory)
		res.Chunks = append(res.Chunks, c)
		if err != nil {
			return err
		}
		res.Processed += c.Size
		off = end

		if m.dynamic && res.HostMemory > 0 {
			next := NextChunkSize(m.chunkSize, c.PeakRSS, c.Size, res.HostMemory, m.maxPercent)
			if next != size {
				m.logger.Info("chunk size adjusted", "from", size, "to", next)
			}
			size = next
		}
	}
	return nil
}

// fetchIDs runs the get-IDs task and decodes its stdout. IDs are kept as
// raw JSON so numbers and strings pass through to the chunk task as they
// were printed.
func (m *Migrator) fetchIDs(ctx context.Context) ([]json.RawMessage, error) {
	out, err := m.execute(ctx, m.getIDs, m.getIDs)
	if err != nil {
		return nil, err
	}
	var ids []json.RawMessage
	if err := json.Unmarshal(out.stdout, &ids); err != nil {
		return nil, bterrors.Wrap(bterrors.ErrCodeNodeFailure, err,
			"task %s did not print a JSON array of ids", m.getIDs).
			WithNode(m.getIDs).WithDetail(excerpt(out.stdout))
	}
	return ids, nil
}

func (m *Migrator) runChunk(ctx context.Context, index int, ids []json.RawMessage, hostMemory uint64) (Chunk, error) {
	c := Chunk{Index: index, Node: fmt.Sprintf("%s[%d]", m.processChunk, index), Size: len(ids), ExitCode: -1}

	arg, err := json.Marshal(ids)
	if err != nil {
		return c, bterrors.Wrap(bterrors.ErrCodeInternal, err, "encode chunk %d", index)
	}

	m.logger.Info("chunk started", "chunk", index, "ids", len(ids))
	out, err := m.execute(ctx, m.processChunk, c.Node, string(arg))
	c.Start, c.End, c.ExitCode, c.PeakRSS = out.start, out.end, out.code, out.peak
	c.Stdout = strings.TrimSpace(string(out.stdout))
	if err != nil {
		return c, err
	}

	kv := []any{"chunk", index, "duration", c.Duration().Round(time.Millisecond)}
	if c.PeakRSS > 0 {
		kv = append(kv, "peak_rss_mb", megabytes(c.PeakRSS))
		if hostMemory > 0 {
			kv = append(kv, "host_percent", fmt.Sprintf("%.2f", 100*float64(c.PeakRSS)/float64(hostMemory)))
		}
	}
	m.logger.Info("chunk completed", kv...)
	if c.Stdout != "" {
		m.logger.Debug("chunk output", "chunk", index, "stdout", c.Stdout)
	}
	return c, nil
}

type outcome struct {
	start  time.Time
	end    time.Time
	code   int
	stdout []byte
	peak   uint64
}

// execute launches task, polls it to completion and reports it to the
// hooks under node.
func (m *Migrator) execute(ctx context.Context, task, node string, args ...string) (outcome, error) {
	out := outcome{start: time.Now(), code: -1}

	h, err := m.exec.LaunchArgs(ctx, task, args...)
	if err != nil {
		if bterrors.GetCode(err) == "" {
			err = bterrors.Wrap(bterrors.ErrCodeLaunch, err, "launch %s", task)
		}
		out.end = time.Now()
		return out, withNode(err, node)
	}
	if started := h.StartedAt(); !started.IsZero() {
		out.start = started
	}
	m.hooks.OnNodeLaunch(ctx, m.runID, node, h.PID(), out.start)

	finish := func(err error) (outcome, error) {
		out.end = time.Now()
		out.stdout, _ = h.Output()
		m.hooks.OnNodeFinish(ctx, m.runID, node, out.start, out.end, out.code, err)
		return out, err
	}

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		m.sample(ctx, h, &out)

		if code, exited := h.Poll(); exited {
			out.code = code
			if code != 0 {
				_, stderr := h.Output()
				return finish(bterrors.New(bterrors.ErrCodeNodeFailure,
					"node %s exited with code %d", node, code).WithNode(node).WithDetail(excerpt(stderr)))
			}
			return finish(nil)
		}

		if m.timeout > 0 && time.Since(out.start) > m.timeout {
			m.kill(h, node)
			return finish(bterrors.New(bterrors.ErrCodeNodeTimeout,
				"node %s exceeded its timeout of %s", node, m.timeout).WithNode(node))
		}

		select {
		case <-ctx.Done():
			m.kill(h, node)
			return finish(bterrors.Wrap(bterrors.ErrCodeCanceled, ctx.Err(), "migration interrupted").WithNode(node))
		case <-ticker.C:
		}
	}
}

// sample records the peak resident size of the task. A process that is
// already gone is not an error.
func (m *Migrator) sample(ctx context.Context, h executor.Handle, out *outcome) {
	if m.memory == nil || h.PID() <= 0 {
		return
	}
	rss, err := m.memory.RSS(ctx, h.PID())
	if err != nil {
		return
	}
	out.peak = max(out.peak, rss)
}

func (m *Migrator) kill(h executor.Handle, node string) {
	if err := h.Kill(); err != nil {
		m.logger.Error("failed to kill task", "node", node, "pid", h.PID(), "err", err)
		return
	}
	m.logger.Warn("killed task", "node", node, "pid", h.PID())
}

func (m *Migrator) summarize(res *Result) {
	m.logger.Info("migration finished", "run", m.runID,
		"processed", res.Processed, "total", res.Total,
		"chunks", len(res.Chunks), "duration", res.Duration().Round(time.Millisecond))
	if len(res.Chunks) == 0 {
		return
	}
	if m.dynamic {
		m.logger.Info("chunk sizes", "sizes", res.Sizes())
	}
	if m.memory != nil {
		peaks := make([]float64, len(res.Chunks))
		for i, c := range res.Chunks {
			peaks[i] = megabytes(c.PeakRSS)
		}
		m.logger.Info("chunk peak memory (MB)", "peaks", peaks)
	}
}

// NextChunkSize sizes the next chunk from the last one. used is the peak
// memory of a chunk of n IDs; the next chunk gets as many IDs as fit into
// maxPercent of total at that rate, and at least one. Without a usable
// measurement the size falls back to def.
func NextChunkSize(def int, used uint64, n int, total uint64, maxPercent float64) int {
	if used == 0 || n <= 0 || total == 0 || maxPercent <= 0 {
		return def
	}
	perID := float64(used) / float64(n)
	budget := maxPercent / 100 * float64(total)
	return max(1, int(budget/perID))
}

func megabytes(b uint64) float64 {
	return math.Round(float64(b)/(1<<20)*100) / 100
}

func withNode(err error, node string) error {
	var e *bterrors.Error
	if bterrors.As(err, &e) && e.Node == "" {
		e.Node = node
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
