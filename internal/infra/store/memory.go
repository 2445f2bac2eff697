package store

import (
	"context"
	"sync"
	"time"

	"remindly/internal/domain/reminder"
)

var (
	_ reminder.SubscriptionSource = (*Memory)(nil)
	_ reminder.Ledger             = (*Memory)(nil)
	_ reminder.MemberDirectory    = (*Memory)(nil)
	_ reminder.LevelSource        = (*Memory)(nil)
)

// Memory is an in-process store implementing the same capabilities as the
// Supabase store. It is selected at startup when no Supabase URL is
// configured (local development) and backs the package tests.
type Memory struct {
	mu            sync.RWMutex
	subscriptions map[string]*reminder.Subscription
	records       map[string]*reminder.NotificationRecord
	members       map[string]*reminder.Member
	levels        map[int]*reminder.Level
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		subscriptions: make(map[string]*reminder.Subscription),
		records:       make(map[string]*reminder.NotificationRecord),
		members:       make(map[string]*reminder.Member),
		levels:        make(map[int]*reminder.Level),
	}
}

// PutSubscription adds or replaces a subscription.
func (m *Memory) PutSubscription(sub *reminder.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.subscriptions[sub.ID] = &cp
}

// PutMember adds or replaces a member profile.
func (m *Memory) PutMember(member *reminder.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *member
	m.members[member.ID] = &cp
}

// PutLevel adds or replaces a membership level.
func (m *Memory) PutLevel(level *reminder.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *level
	m.levels[level.ID] = &cp
}

// ListRenewingBetween returns active, recurring subscriptions whose next
// payment date falls in [from, to).
func (m *Memory) ListRenewingBetween(ctx context.Context, from, to time.Time) ([]*reminder.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*reminder.Subscription
	for _, sub := range m.subscriptions {
		if sub.Status != reminder.StatusActive || !sub.Recurring() {
			continue
		}
		next := sub.NextPaymentDate
		if next.IsZero() || next.Before(from) || !next.Before(to) {
			continue
		}
		cp := *sub
		out = append(out, &cp)
	}
	return out, nil
}

// Record retrieves the notification record for a subscription.
// Returns nil, nil if no record exists.
func (m *Memory) Record(ctx context.Context, subscriptionID string) (*reminder.NotificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[subscriptionID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// MarkNotified upserts the notification record for a subscription.
func (m *Memory) MarkNotified(ctx context.Context, subscriptionID string, nextPaymentDate time.Time, leadDays int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[subscriptionID] = &reminder.NotificationRecord{
		SubscriptionID:  subscriptionID,
		LastPaymentDate: nextPaymentDate,
		LastLeadDays:    leadDays,
		UpdatedAt:       time.Now().UTC(),
	}
	return nil
}

// MemberByID returns a member profile. Returns nil, nil if absent.
func (m *Memory) MemberByID(ctx context.Context, userID string) (*reminder.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[userID]
	if !ok {
		return nil, nil
	}
	cp := *member
	return &cp, nil
}

// LevelByID returns a membership level. Returns nil, nil if absent.
func (m *Memory) LevelByID(ctx context.Context, id int) (*reminder.Level, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	level, ok := m.levels[id]
	if !ok {
		return nil, nil
	}
	cp := *level
	return &cp, nil
}
