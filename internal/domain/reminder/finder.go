package reminder

import (
	"context"
	"fmt"
	"time"
)

// Finder selects the subscriptions due a reminder for one tier's window.
type Finder struct {
	source SubscriptionSource
	ledger Ledger
}

// NewFinder creates a finder over the given subscription source and ledger.
func NewFinder(source SubscriptionSource, ledger Ledger) *Finder {
	return &Finder{source: source, ledger: ledger}
}

// FindDue returns the subscriptions whose next charge falls inside the
// half-open window [runDate+prevBoundaryDays, runDate+tier.LeadDays) and
// which have not yet been reminded for that charge at this tier or closer.
// prevBoundaryDays is the lead time of the previously processed (smaller)
// tier, 0 for the first tier; tracking it keeps ascending tiers from
// re-scanning each other's ranges inside one run.
//
// A store or ledger failure aborts this tier only; the orchestrator carries
// on with the remaining tiers.
func (f *Finder) FindDue(ctx context.Context, tier Tier, prevBoundaryDays int, runDate time.Time) ([]*Subscription, error) {
	from := runDate.AddDate(0, 0, prevBoundaryDays)
	to := runDate.AddDate(0, 0, tier.LeadDays)

	candidates, err := f.source.ListRenewingBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions renewing in [%s, %s): %w",
			from.Format("2006-01-02"), to.Format("2006-01-02"), err)
	}

	due := make([]*Subscription, 0, len(candidates))
	for _, sub := range candidates {
		if !f.eligible(sub, from, to) {
			continue
		}

		rec, err := f.ledger.Record(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("reading notification record for subscription %s: %w", sub.ID, err)
		}
		if alreadyNotified(rec, sub.NextPaymentDate, tier.LeadDays) {
			continue
		}

		due = append(due, sub)
	}

	return due, nil
}

// eligible re-applies the selection contract on top of whatever the source
// returned: active, recurring, and next charge inside [from, to).
func (f *Finder) eligible(sub *Subscription, from, to time.Time) bool {
	if sub.Status != StatusActive || !sub.Recurring() {
		return false
	}
	if sub.NextPaymentDate.IsZero() {
		return false
	}
	next := sub.NextPaymentDate
	return !next.Before(from) && next.Before(to)
}
