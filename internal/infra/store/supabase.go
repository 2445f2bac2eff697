package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"remindly/internal/domain/reminder"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const (
	subscriptionsTable = "subscriptions"
	recordsTable       = "notification_records"
	membersTable       = "members"
	levelsTable        = "membership_levels"
)

var (
	_ reminder.SubscriptionSource = (*SupabaseStore)(nil)
	_ reminder.Ledger             = (*SupabaseStore)(nil)
	_ reminder.MemberDirectory    = (*SupabaseStore)(nil)
	_ reminder.LevelSource        = (*SupabaseStore)(nil)
)

// SupabaseStore implements the subscription source, de-duplication ledger,
// member directory, and level source over the Supabase Go SDK.
type SupabaseStore struct {
	client *supa.Client
}

// NewSupabaseStore creates a new Supabase-backed store.
func NewSupabaseStore(supabaseURL, serviceKey string) (*SupabaseStore, error) {
	client, err := supa.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

// subscriptionRow is the internal representation of a subscriptions row.
type subscriptionRow struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	LevelID         int     `json:"level_id"`
	Status          string  `json:"status"`
	CycleNumber     int     `json:"cycle_number"`
	CyclePeriod     string  `json:"cycle_period"`
	NextPaymentDate *string `json:"next_payment_date"`
	BillingAmount   float64 `json:"billing_amount"`
	CardType        *string `json:"card_type"`
	CardLastFour    *string `json:"card_last_four"`
	CardExpMonth    *int    `json:"card_exp_month"`
	CardExpYear     *int    `json:"card_exp_year"`
	PaymentType     *string `json:"payment_type"`
}

// recordRow is the internal representation of a notification_records row.
type recordRow struct {
	SubscriptionID  string `json:"subscription_id"`
	LastPaymentDate string `json:"last_payment_date"`
	LastLeadDays    int    `json:"last_lead_days"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// memberRow is the internal representation of a members row.
type memberRow struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// levelRow is the internal representation of a membership_levels row.
type levelRow struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ListRenewingBetween returns active, recurring subscriptions whose next
// payment date falls in the half-open window [from, to).
func (s *SupabaseStore) ListRenewingBetween(ctx context.Context, from, to time.Time) ([]*reminder.Subscription, error) {
	data, _, err := s.client.From(subscriptionsTable).
		Select("*", "exact", false).
		Eq("status", string(reminder.StatusActive)).
		Gt("cycle_number", "0").
		Gte("next_payment_date", from.UTC().Format(time.RFC3339)).
		Lt("next_payment_date", to.UTC().Format(time.RFC3339)).
		Order("next_payment_date", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("listing renewing subscriptions: %w", err)
	}

	var rows []subscriptionRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing subscription list: %w", err)
	}

	subs := make([]*reminder.Subscription, 0, len(rows))
	for i := range rows {
		sub, err := rowToSubscription(&rows[i])
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

// Record retrieves the notification record for a subscription.
// Returns nil, nil if no record exists.
func (s *SupabaseStore) Record(ctx context.Context, subscriptionID string) (*reminder.NotificationRecord, error) {
	data, _, err := s.client.From(recordsTable).
		Select("*", "exact", false).
		Eq("subscription_id", subscriptionID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching notification record: %w", err)
	}

	var rows []recordRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing notification record: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return rowToRecord(&rows[0])
}

// MarkNotified upserts the notification record for a subscription, keyed by
// subscription id. Idempotent: repeating the call with identical arguments
// rewrites the same values.
func (s *SupabaseStore) MarkNotified(ctx context.Context, subscriptionID string, nextPaymentDate time.Time, leadDays int) error {
	row := recordRow{
		SubscriptionID:  subscriptionID,
		LastPaymentDate: nextPaymentDate.UTC().Format(time.RFC3339),
		LastLeadDays:    leadDays,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	}

	_, _, err := s.client.From(recordsTable).
		Insert(row, true, "subscription_id", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("upserting notification record: %w", err)
	}

	return nil
}

// MemberByID returns the member profile for a user id.
// Returns nil, nil if no such member exists.
func (s *SupabaseStore) MemberByID(ctx context.Context, userID string) (*reminder.Member, error) {
	data, _, err := s.client.From(membersTable).
		Select("*", "exact", false).
		Eq("id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching member: %w", err)
	}

	var rows []memberRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing member: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return &reminder.Member{
		ID:          rows[0].ID,
		Email:       rows[0].Email,
		Login:       rows[0].Login,
		DisplayName: rows[0].DisplayName,
	}, nil
}

// LevelByID returns a membership level. Returns nil, nil when the level has
// been deleted.
func (s *SupabaseStore) LevelByID(ctx context.Context, id int) (*reminder.Level, error) {
	data, _, err := s.client.From(levelsTable).
		Select("*", "exact", false).
		Eq("id", strconv.Itoa(id)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching membership level: %w", err)
	}

	var rows []levelRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing membership level: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return &reminder.Level{ID: rows[0].ID, Name: rows[0].Name}, nil
}

// rowToSubscription converts a subscriptions row to the domain model.
func rowToSubscription(row *subscriptionRow) (*reminder.Subscription, error) {
	sub := &reminder.Subscription{
		ID:            row.ID,
		UserID:        row.UserID,
		LevelID:       row.LevelID,
		Status:        reminder.SubscriptionStatus(row.Status),
		CycleNumber:   row.CycleNumber,
		CyclePeriod:   reminder.CyclePeriod(row.CyclePeriod),
		BillingAmount: row.BillingAmount,
	}

	if row.NextPaymentDate != nil && *row.NextPaymentDate != "" {
		t, err := parseTimestamp(*row.NextPaymentDate)
		if err != nil {
			return nil, fmt.Errorf("parsing next_payment_date for subscription %s: %w", row.ID, err)
		}
		sub.NextPaymentDate = t
	}

	if row.CardType != nil {
		sub.Billing.CardType = *row.CardType
	}
	if row.CardLastFour != nil {
		sub.Billing.CardLastFour = *row.CardLastFour
	}
	if row.CardExpMonth != nil {
		sub.Billing.ExpMonth = *row.CardExpMonth
	}
	if row.CardExpYear != nil {
		sub.Billing.ExpYear = *row.CardExpYear
	}
	if row.PaymentType != nil {
		sub.Billing.PaymentType = *row.PaymentType
	}

	return sub, nil
}

// rowToRecord converts a notification_records row to the domain model.
func rowToRecord(row *recordRow) (*reminder.NotificationRecord, error) {
	rec := &reminder.NotificationRecord{
		SubscriptionID: row.SubscriptionID,
		LastLeadDays:   row.LastLeadDays,
	}

	t, err := parseTimestamp(row.LastPaymentDate)
	if err != nil {
		return nil, fmt.Errorf("parsing last_payment_date for subscription %s: %w", row.SubscriptionID, err)
	}
	rec.LastPaymentDate = t

	if row.UpdatedAt != "" {
		if t, err := parseTimestamp(row.UpdatedAt); err == nil {
			rec.UpdatedAt = t
		}
	}

	return rec, nil
}

// parseTimestamp accepts the timestamp shapes PostgREST emits.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
