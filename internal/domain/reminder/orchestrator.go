package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RunOptions controls a single run.
type RunOptions struct {
	// DryRun forces the veto hook to deny every send and suppresses all
	// ledger writes: a full diagnostic pass with no side effects. Used by
	// the admin API's manual test invocation.
	DryRun bool `json:"dry_run"`
}

// TierStats summarizes one tier's processing within a run.
type TierStats struct {
	LeadDays   int    `json:"lead_days"`
	TemplateID string `json:"template_id"`
	Found      int    `json:"found"`
	Sent       int    `json:"sent"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// RunSummary is the consolidated result of one run.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	DryRun    bool          `json:"dry_run"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Tiers     []TierStats   `json:"tiers"`
	Found     int           `json:"found"`
	Sent      int           `json:"sent"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Errors    []string      `json:"errors,omitempty"`
}

// Runner orchestrates one reminder run: tiers ascending, one finder pass per
// tier with a moving previous boundary, one dispatch per due subscription.
// A run is a single sequential pass; concurrent runs are serialized upstream
// by the run queue.
type Runner struct {
	tiers      TierSource
	finder     *Finder
	dispatcher *Dispatcher
	sink       DiagnosticSink
	now        func() time.Time
}

// NewRunner creates a run orchestrator. sink may be nil (diagnostics off).
func NewRunner(tiers TierSource, finder *Finder, dispatcher *Dispatcher, sink DiagnosticSink) *Runner {
	return &Runner{
		tiers:      tiers,
		finder:     finder,
		dispatcher: dispatcher,
		sink:       sink,
		now:        time.Now,
	}
}

// Run executes one complete pass over all configured tiers and returns the
// consolidated summary. The only fatal error is a failure loading the tier
// set; everything else is caught at tier or subscription scope, recorded in
// the summary, and does not abort the run.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	tiers, err := r.tiers.Tiers()
	if err != nil {
		return nil, fmt.Errorf("loading reminder tiers: %w", err)
	}

	start := r.now()
	runDate := midnightUTC(start)
	summary := &RunSummary{
		RunID:     uuid.New().String(),
		DryRun:    opts.DryRun,
		StartedAt: start,
	}

	rl := NewRunLog(summary.RunID, r.now)
	rl.Printf("run %s started (dry_run=%t, run_date=%s, tiers=%d)",
		summary.RunID, opts.DryRun, runDate.Format("2006-01-02"), len(tiers))

	// Subscriptions already dispatched in this run. At most one email per
	// subscription per run, whatever the tier windows look like.
	handled := make(map[string]struct{})

	prevBoundary := 0
	for _, tier := range tiers {
		stats := TierStats{LeadDays: tier.LeadDays, TemplateID: tier.TemplateID}

		rl.Printf("tier %d (%s): scanning charges due in [%d, %d) days",
			tier.LeadDays, tier.TemplateID, prevBoundary, tier.LeadDays)

		due, err := r.finder.FindDue(ctx, tier, prevBoundary, runDate)
		if err != nil {
			msg := fmt.Sprintf("tier %d: %v", tier.LeadDays, err)
			summary.Errors = append(summary.Errors, msg)
			rl.Printf("%s — skipping rest of tier", msg)
			slog.Error("tier scan failed", "run_id", summary.RunID, "lead_days", tier.LeadDays, "error", err)
			summary.Tiers = append(summary.Tiers, stats)
			prevBoundary = tier.LeadDays
			continue
		}

		stats.Found = len(due)
		rl.Printf("tier %d: found %d due subscriptions", tier.LeadDays, len(due))

		for _, sub := range due {
			if _, done := handled[sub.ID]; done {
				continue
			}

			outcome, err := r.dispatcher.Dispatch(ctx, sub, tier, opts, rl)
			handled[sub.ID] = struct{}{}

			switch outcome {
			case OutcomeSent:
				stats.Sent++
			case OutcomeSkipped:
				stats.Skipped++
			case OutcomeFailed:
				stats.Failed++
			}
			if err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("subscription %s: %v", sub.ID, err))
				slog.Error("dispatch failed",
					"run_id", summary.RunID,
					"subscription_id", sub.ID,
					"lead_days", tier.LeadDays,
					"error", err,
				)
			}
		}

		summary.Tiers = append(summary.Tiers, stats)
		prevBoundary = tier.LeadDays
	}

	for _, t := range summary.Tiers {
		summary.Found += t.Found
		summary.Sent += t.Sent
		summary.Skipped += t.Skipped
		summary.Failed += t.Failed
	}
	summary.Duration = r.now().Sub(start)

	rl.Printf("run %s done: found=%d sent=%d skipped=%d failed=%d errors=%d in %s",
		summary.RunID, summary.Found, summary.Sent, summary.Skipped, summary.Failed,
		len(summary.Errors), summary.Duration.Round(time.Millisecond))

	slog.Info("reminder run complete",
		"run_id", summary.RunID,
		"dry_run", opts.DryRun,
		"found", summary.Found,
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"errors", len(summary.Errors),
		"duration", summary.Duration,
	)

	if r.sink != nil {
		if err := r.sink.Flush(ctx, summary.RunID, rl.String()); err != nil {
			slog.Error("failed to flush diagnostic log", "run_id", summary.RunID, "error", err)
		}
	}

	return summary, nil
}
