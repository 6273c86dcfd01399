package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	teaspinner "github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/status"
)

const tuiRefresh = 250 * time.Millisecond

// =============================================================================
// Messages
// =============================================================================

// snapshotMsg carries the tracker's current run.
type snapshotMsg struct {
	run status.Run
	ok  bool
}

// tickMsg refreshes elapsed times.
type tickMsg time.Time

// runDoneMsg is sent when the run (or the scheduled loop) has returned.
type runDoneMsg struct{ err error }

// =============================================================================
// RunModel - live node view
// =============================================================================

// RunModel is the bubbletea model of the live run view.
type RunModel struct {
	tracker   *status.Tracker
	cancel    context.CancelFunc
	run       status.Run
	hasRun    bool
	spin      teaspinner.Model
	now       time.Time
	done      bool
	err       error
	canceling bool
}

// NewRunModel returns a model rendering tracker. Pressing ctrl+c or q calls
// cancel, which aborts the run; the view stays up until the run returns.
func NewRunModel(tracker *status.Tracker, cancel context.CancelFunc) RunModel {
	spin := teaspinner.New(teaspinner.WithSpinner(teaspinner.Dot), teaspinner.WithStyle(StyleHighlight))
	return RunModel{tracker: tracker, cancel: cancel, spin: spin, now: time.Now()}
}

func (m RunModel) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.tracker), tick(), m.spin.Tick)
}

func waitForUpdate(t *status.Tracker) tea.Cmd {
	return func() tea.Msg {
		<-t.Updates()
		run, ok := t.Current()
		return snapshotMsg{run: run, ok: ok}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tuiRefresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.canceling && m.cancel != nil {
				m.canceling = true
				m.cancel()
			}
		}
	case snapshotMsg:
		if msg.ok {
			m.run, m.hasRun = msg.run, true
		}
		return m, waitForUpdate(m.tracker)
	case teaspinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tickMsg:
		m.now = time.Time(msg)
		if run, ok := m.tracker.Current(); ok {
			m.run, m.hasRun = run, true
		}
		return m, tick()
	case runDoneMsg:
		m.done, m.err = true, msg.err
		if run, ok := m.tracker.Current(); ok {
			m.run, m.hasRun = run, true
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m RunModel) View() string {
	var b strings.Builder

	if !m.hasRun {
		b.WriteString(StyleTitle.Render(appName))
		b.WriteString(" " + StyleDim.Render("waiting for the first run...") + "\n")
		return b.String()
	}

	b.WriteString(StyleTitle.Render("Run " + m.run.ID))
	b.WriteString(" " + m.headline() + "\n")
	b.WriteString(StyleDim.Render(m.counts()) + "\n")
	b.WriteString(m.table() + "\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString(styleIconError.Render(iconError) + " " + StyleError.Render(string(bterrors.GetCode(m.err))) +
			" " + bterrors.UserMessage(m.err) + "\n")
	case m.done:
		b.WriteString(styleIconSuccess.Render(iconSuccess) + " done\n")
	case m.canceling:
		b.WriteString(StyleWarning.Render("canceling, killing running nodes...") + "\n")
	default:
		b.WriteString(StyleDim.Render("q/ctrl+c abort run") + "\n")
	}
	return b.String()
}

func (m RunModel) headline() string {
	end := m.now
	if m.run.End != nil {
		end = *m.run.End
	}
	elapsed := end.Sub(m.run.Start).Round(time.Second)
	state := renderState(m.run.State)
	if m.run.State == status.RunRunning {
		state = m.spin.View() + " " + state
	}
	return state + " " + StyleDim.Render(elapsed.String())
}

func (m RunModel) counts() string {
	c := m.run.Counts()
	return fmt.Sprintf("%d/%d completed · %d running · %d waiting · %d failed",
		c[status.NodeCompleted], m.run.Total, c[status.NodeRunning], c[status.NodeWaiting], c[status.NodeFailed])
}

func (m RunModel) table() string {
	rows := make([][]string, len(m.run.Nodes))
	for i, n := range m.run.Nodes {
		pid, elapsed := "", ""
		if n.PID > 0 {
			pid = strconv.Itoa(n.PID)
		}
		if n.Start != nil {
			end := m.now
			if n.End != nil {
				end = *n.End
			}
			elapsed = end.Sub(*n.Start).Round(100 * time.Millisecond).String()
		}
		note := n.Waiting
		if n.Error != "" {
			note = n.Error
		}
		rows[i] = []string{n.ID, n.State, pid, elapsed, note}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers("Node", "State", "PID", "Elapsed", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return styleHeader.Padding(0, 1)
			case col == 1:
				return base.Inherit(stateStyles[rows[row][1]])
			case col == 4:
				return base.Foreground(colorGray).MaxWidth(60)
			}
			return base
		}).
		Render()
}
