package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/status"
)

func TestRunModel_WaitingView(t *testing.T) {
	m := NewRunModel(status.NewTracker(0), nil)
	if got := m.View(); !strings.Contains(got, "waiting for the first run") {
		t.Errorf("View() = %q", got)
	}
}

func TestRunModel_TracksRun(t *testing.T) {
	ctx := context.Background()
	tracker := status.NewTracker(0)
	tracker.OnRunStart(ctx, "run-1", []string{"a.py", "b.py"})
	tracker.OnNodeLaunch(ctx, "run-1", "a.py", 4242, time.Now())

	var model tea.Model = NewRunModel(tracker, nil)
	model, _ = model.Update(tickMsg(time.Now()))

	view := model.View()
	for _, want := range []string{"run-1", "a.py", "b.py", "4242", "0/2 completed"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestRunModel_CancelOnce(t *testing.T) {
	calls := 0
	var model tea.Model = NewRunModel(status.NewTracker(0), func() { calls++ })

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if calls != 1 {
		t.Errorf("cancel called %d times, want 1", calls)
	}
	if !model.(RunModel).canceling {
		t.Error("model not marked canceling")
	}
}

func TestRunModel_DoneQuits(t *testing.T) {
	ctx := context.Background()
	tracker := status.NewTracker(0)
	tracker.OnRunStart(ctx, "run-1", []string{"a.py"})
	err := bterrors.New(bterrors.ErrCodeNodeFailure, "node a.py exited with code 1")
	tracker.OnRunEnd(ctx, "run-1", time.Now(), time.Now(), 0, err)

	var model tea.Model = NewRunModel(tracker, nil)
	model, cmd := model.Update(runDoneMsg{err: err})
	if cmd == nil {
		t.Fatal("runDoneMsg returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("runDoneMsg did not quit")
	}
	if view := model.View(); !strings.Contains(view, "NODE_FAILURE") {
		t.Errorf("view missing error code:\n%s", view)
	}
}
