package reminder

import (
	"fmt"
	"time"
)

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

// CyclePeriod is the unit of a subscription's recurrence interval.
type CyclePeriod string

const (
	PeriodDay   CyclePeriod = "Day"
	PeriodWeek  CyclePeriod = "Week"
	PeriodMonth CyclePeriod = "Month"
	PeriodYear  CyclePeriod = "Year"
)

// Subscription is a recurring membership as read from the subscription store.
// The core only reads these fields; it never writes subscription state.
type Subscription struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	LevelID         int                `json:"level_id"`
	Status          SubscriptionStatus `json:"status"`
	CycleNumber     int                `json:"cycle_number"`
	CyclePeriod     CyclePeriod        `json:"cycle_period"`
	NextPaymentDate time.Time          `json:"next_payment_date"`
	BillingAmount   float64            `json:"billing_amount"`
	Billing         BillingDetails     `json:"billing"`
}

// BillingDetails describes the payment instrument on file, used to build the
// billing info block of the reminder email. All fields are optional.
type BillingDetails struct {
	CardType     string `json:"card_type,omitempty"`
	CardLastFour string `json:"card_last_four,omitempty"`
	ExpMonth     int    `json:"exp_month,omitempty"`
	ExpYear      int    `json:"exp_year,omitempty"`
	PaymentType  string `json:"payment_type,omitempty"`
}

// Recurring reports whether the subscription bills on a cycle.
// A cycle number of zero means a one-off membership.
func (s *Subscription) Recurring() bool {
	return s.CycleNumber > 0
}

// CostText formats the per-cycle price, e.g. "$10.00 per Month" or
// "$30.00 every 3 Months".
func (s *Subscription) CostText(currencySymbol string) string {
	amount := fmt.Sprintf("%s%.2f", currencySymbol, s.BillingAmount)
	if s.CycleNumber == 1 {
		return fmt.Sprintf("%s per %s", amount, s.CyclePeriod)
	}
	return fmt.Sprintf("%s every %d %ss", amount, s.CycleNumber, s.CyclePeriod)
}

// Member is a user profile resolved from the member directory.
type Member struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Level is a membership level/plan.
type Level struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// NotificationRecord is the per-subscription de-duplication marker: the next
// payment date a reminder was last sent for, and the smallest lead-time tier
// sent for that date. Created on first send, updated after every permitted
// send, never deleted by the core.
type NotificationRecord struct {
	SubscriptionID  string    `json:"subscription_id"`
	LastPaymentDate time.Time `json:"last_payment_date"`
	LastLeadDays    int       `json:"last_lead_days"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Message is a rendered reminder email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// midnightUTC truncates a moment to the start of its UTC calendar day.
// All window arithmetic runs on whole calendar days from the run start.
func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// sameDay compares two moments at calendar-day precision in UTC. The ledger
// stores the charge date it notified about; a charge rescheduled to another
// day makes the stored record stale.
func sameDay(a, b time.Time) bool {
	return midnightUTC(a).Equal(midnightUTC(b))
}
