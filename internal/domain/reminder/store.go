package reminder

import (
	"context"
	"time"
)

// SubscriptionSource defines the contract for reading the subscription store.
// Implementations live in infra/store/ (Supabase in production, in-memory
// for local development); the binary picks one at startup.
type SubscriptionSource interface {
	// ListRenewingBetween returns active, recurring subscriptions whose next
	// payment date falls in the half-open window [from, to).
	// The result reflects the store at query time; payment processing mutates
	// the store concurrently, so re-invoking may yield different results.
	ListRenewingBetween(ctx context.Context, from, to time.Time) ([]*Subscription, error)
}

// Ledger defines the contract for the de-duplication record store.
type Ledger interface {
	// Record retrieves the notification record for a subscription.
	// Returns nil, nil if no record exists.
	Record(ctx context.Context, subscriptionID string) (*NotificationRecord, error)

	// MarkNotified upserts the notification record: this subscription was
	// reminded about nextPaymentDate at the given lead-time tier. Idempotent;
	// calling twice with identical arguments leaves the record unchanged.
	MarkNotified(ctx context.Context, subscriptionID string, nextPaymentDate time.Time, leadDays int) error
}

// MemberDirectory resolves member profiles for outgoing reminders.
type MemberDirectory interface {
	// MemberByID returns the member owning a subscription.
	// Returns nil, nil if no such member exists.
	MemberByID(ctx context.Context, userID string) (*Member, error)
}

// LevelSource resolves membership levels referenced by subscriptions.
type LevelSource interface {
	// LevelByID returns a membership level. Returns nil, nil if the level
	// has been deleted.
	LevelByID(ctx context.Context, id int) (*Level, error)
}

// alreadyNotified reports whether the ledger record suppresses a reminder at
// the given tier for the given upcoming charge: the stored charge date must
// match (day precision) and the stored tier must be equal or closer to
// renewal. A record for a different date is stale and suppresses nothing.
func alreadyNotified(rec *NotificationRecord, nextPaymentDate time.Time, leadDays int) bool {
	return rec != nil &&
		sameDay(rec.LastPaymentDate, nextPaymentDate) &&
		rec.LastLeadDays <= leadDays
}
