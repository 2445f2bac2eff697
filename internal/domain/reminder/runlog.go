package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RunLog accumulates the human-readable diagnostic trail of one run: the
// windows queried, record counts, and every send/skip decision. It is created
// by the orchestrator, passed explicitly through the run, and flushed to the
// configured sink when the run finishes. Not safe for concurrent use; a run
// is a single sequential pass.
type RunLog struct {
	runID string
	now   func() time.Time
	lines []string
}

// NewRunLog creates a diagnostic log for one run.
func NewRunLog(runID string, now func() time.Time) *RunLog {
	if now == nil {
		now = time.Now
	}
	return &RunLog{runID: runID, now: now}
}

// Printf appends a timestamped line to the log.
func (l *RunLog) Printf(format string, args ...any) {
	line := fmt.Sprintf("%s %s", l.now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	l.lines = append(l.lines, line)
}

// RunID returns the run this log belongs to.
func (l *RunLog) RunID() string {
	return l.runID
}

// Len returns the number of recorded lines.
func (l *RunLog) Len() int {
	return len(l.lines)
}

// String renders the accumulated log as one text block.
func (l *RunLog) String() string {
	return strings.Join(l.lines, "\n")
}

// DiagnosticSink receives the completed run log. Implementations live in
// infra/diag/ (file append, email to the admin address).
type DiagnosticSink interface {
	Flush(ctx context.Context, runID, contents string) error
}
