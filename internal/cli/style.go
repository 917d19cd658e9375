package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/shinji-kodama/gitsync/internal/model"
	"github.com/shinji-kodama/gitsync/internal/publish"
)

// Adaptive colors work on both light and dark terminals. lipgloss drops
// all styling when output is not a terminal or NO_COLOR is set.
var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
)

// Styles for the summary printed to stdout.
var (
	styleOK      = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleFail    = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleDim     = lipgloss.NewStyle().Faint(true)
)

// styledNarrator prints the sync progress narrative with colored markers.
// Its renderer detects color support from the writer it prints to, so a
// narrative sent to a pipe or file stays plain.
type styledNarrator struct {
	w          io.Writer
	ok         lipgloss.Style
	skip       lipgloss.Style
	fail       lipgloss.Style
	stepHeader lipgloss.Style
}

// newStyledNarrator creates a narrator writing to w.
func newStyledNarrator(w io.Writer) styledNarrator {
	r := lipgloss.NewRenderer(w)
	return styledNarrator{
		w:          w,
		ok:         r.NewStyle().Foreground(colorSuccess).Bold(true),
		skip:       r.NewStyle().Foreground(colorMuted),
		fail:       r.NewStyle().Foreground(colorError).Bold(true),
		stepHeader: r.NewStyle().Bold(true),
	}
}

// Narrate implements publish.Narrator.
func (n styledNarrator) Narrate(result model.StepResult) {
	marker := fmt.Sprintf("%-6s", publish.Marker(result))
	switch {
	case result.Skipped:
		marker = n.skip.Render(marker)
	case result.Succeeded:
		marker = n.ok.Render(marker)
	default:
		marker = n.fail.Render(marker)
	}
	fmt.Fprintf(n.w, "%s %s: %s\n", marker, n.stepHeader.Render(string(result.Step)), result.Message)
}
