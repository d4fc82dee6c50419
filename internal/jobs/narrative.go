package jobs

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Narrative collects the human-readable account of one job run. It is
// written to the remote log once, when the run ends.
type Narrative struct {
	log      *slog.Logger
	lines    []string
	warnings int
	errors   int
}

func NewNarrative(started time.Time, log *slog.Logger) *Narrative {
	return &Narrative{
		log:   log,
		lines: []string{started.Format(narrativeTimeLayout)},
	}
}

const narrativeTimeLayout = "2006-01-02 15:04:05.000000-07:00"

// Line adds an informational line
func (n *Narrative) Line(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	n.log.Info(msg)
	n.lines = append(n.lines, msg)
}

// Warn adds a WARNING line
func (n *Narrative) Warn(format string, args ...any) {
	msg := "WARNING - " + fmt.Sprintf(format, args...)
	n.log.Warn(msg)
	n.warnings++
	n.lines = append(n.lines, msg)
}

// Error adds an ERROR line and returns it, so callers can reuse it as a
// result body
func (n *Narrative) Error(format string, args ...any) string {
	msg := "ERROR - " + fmt.Sprintf(format, args...)
	n.log.Error(msg)
	n.errors++
	n.lines = append(n.lines, msg)
	return msg
}

func (n *Narrative) Warnings() int { return n.warnings }
func (n *Narrative) Errors() int   { return n.errors }

func (n *Narrative) String() string {
	return strings.Join(n.lines, "\n") + "\n"
}
