package diag

import (
	"context"
	"fmt"
	"os"

	"remindly/internal/domain/reminder"
)

var _ reminder.DiagnosticSink = (*FileSink)(nil)

// FileSink appends each run's diagnostic log to a local file.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to the given path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Flush appends the run log, separated by a run header.
func (s *FileSink) Flush(ctx context.Context, runID, contents string) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening diagnostic log file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "==== run %s ====\n%s\n\n", runID, contents); err != nil {
		return fmt.Errorf("writing diagnostic log: %w", err)
	}
	return nil
}
