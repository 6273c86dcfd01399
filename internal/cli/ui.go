package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/batchtower/pkg/history"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - waiting
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - running
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	StyleTitle     = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)
	StyleDim       = lipgloss.NewStyle().Foreground(colorDim)
	StyleValue     = lipgloss.NewStyle().Foreground(colorWhite)
	StyleSuccess   = lipgloss.NewStyle().Foreground(colorGreen)
	StyleWarning   = lipgloss.NewStyle().Foreground(colorYellow)
	StyleError     = lipgloss.NewStyle().Foreground(colorRed)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleHeader      = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

// stateStyles colors node and run states.
var stateStyles = map[string]lipgloss.Style{
	"pending":   lipgloss.NewStyle().Foreground(colorDim),
	"waiting":   lipgloss.NewStyle().Foreground(colorYellow),
	"running":   lipgloss.NewStyle().Foreground(colorBlue),
	"completed": lipgloss.NewStyle().Foreground(colorGreen),
	"failed":    lipgloss.NewStyle().Foreground(colorRed),
	"aborted":   lipgloss.NewStyle().Foreground(colorRed),
}

func renderState(s string) string {
	if st, ok := stateStyles[s]; ok {
		return st.Render(s)
	}
	return s
}

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(format string, args ...any) {
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Println(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(format string, args ...any) {
	fmt.Println("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

func printFile(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

func printKeyValue(key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(12)
	fmt.Println(keyStyle.Render(key) + " " + StyleValue.Render(value))
}

// =============================================================================
// Run Output
// =============================================================================

// printRun prints an archived or just-finished run: a header line and a
// table of node timings in completion order.
func printRun(e history.Entry) {
	status := StyleSuccess.Render(e.State)
	if e.ErrorCode != "" {
		status = StyleError.Render(e.State + " (" + e.ErrorCode + ")")
	}
	fmt.Println(StyleTitle.Render("Run "+e.RunID) + " " + status)
	printKeyValue("started", e.Start.Format(time.DateTime))
	printKeyValue("duration", e.Duration().Round(time.Millisecond).String())
	printKeyValue("nodes", fmt.Sprintf("%d/%d completed", len(e.Completed), e.Total))
	if e.Config != "" {
		printKeyValue("config", e.Config)
	}
	if len(e.Timings) == 0 {
		return
	}

	rows := make([][]string, 0, len(e.Timings))
	for _, t := range e.Timings {
		state := "completed"
		if t.ExitCode != 0 {
			state = "failed"
		}
		rows = append(rows, []string{
			t.Node,
			state,
			t.Start.Format(time.TimeOnly),
			t.Duration().Round(time.Millisecond).String(),
			strconv.Itoa(t.ExitCode),
		})
	}

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers("Node", "State", "Started", "Duration", "Exit").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return styleHeader.Padding(0, 1)
			}
			if col == 1 {
				return base.Inherit(stateStyles[rows[row][1]])
			}
			return base
		})
	fmt.Println(tbl.Render())
}
