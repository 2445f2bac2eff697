package diag

import (
	"context"
	"fmt"
	"html"
	"strings"

	"remindly/internal/domain/reminder"
)

var _ reminder.DiagnosticSink = (*EmailSink)(nil)

// EmailSink mails each run's diagnostic log to the administrative address,
// reusing the same delivery provider as the reminders themselves.
type EmailSink struct {
	provider reminder.Provider
	to       string
}

// NewEmailSink creates a sink mailing to the given admin address.
func NewEmailSink(provider reminder.Provider, to string) *EmailSink {
	return &EmailSink{provider: provider, to: to}
}

// Flush sends the run log as one email.
func (s *EmailSink) Flush(ctx context.Context, runID, contents string) error {
	htmlBody := fmt.Sprintf("<pre>%s</pre>", html.EscapeString(contents))

	_, err := s.provider.Send(ctx, &reminder.Message{
		To:      s.to,
		Subject: fmt.Sprintf("Reminder run %s diagnostic log", shortID(runID)),
		HTML:    htmlBody,
		Text:    contents,
	})
	if err != nil {
		return fmt.Errorf("mailing diagnostic log: %w", err)
	}
	return nil
}

func shortID(runID string) string {
	if i := strings.IndexByte(runID, '-'); i > 0 {
		return runID[:i]
	}
	return runID
}
