package publish

import (
	"fmt"
	"io"

	"github.com/shinji-kodama/gitsync/internal/model"
)

// Narrator receives the progress narrative, one call per recorded step.
type Narrator interface {
	Narrate(result model.StepResult)
}

// TextNarrator writes one plain line per step, e.g.
//
//	[ok]   fetch: fetched origin
//	[skip] commit: nothing to commit
//	[fail] publish: rejected (non-fast-forward)
type TextNarrator struct {
	W io.Writer
}

// Narrate writes the step line to n.W.
func (n TextNarrator) Narrate(result model.StepResult) {
	if n.W == nil {
		return
	}
	fmt.Fprintf(n.W, "%-6s %s: %s\n", Marker(result), result.Step, result.Message)
}

// Marker returns the bracketed status marker for a step result.
func Marker(result model.StepResult) string {
	switch {
	case result.Skipped:
		return "[skip]"
	case result.Succeeded:
		return "[ok]"
	default:
		return "[fail]"
	}
}

type discardNarrator struct{}

func (discardNarrator) Narrate(model.StepResult) {}
