package store

import (
	"context"
	"testing"
	"time"

	"remindly/internal/domain/reminder"
)

func TestMemoryListRenewingBetween(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	mem := NewMemory()
	put := func(id string, status reminder.SubscriptionStatus, cycles int, next time.Time) {
		mem.PutSubscription(&reminder.Subscription{
			ID:              id,
			Status:          status,
			CycleNumber:     cycles,
			CyclePeriod:     reminder.PeriodMonth,
			NextPaymentDate: next,
		})
	}
	put("in-window", reminder.StatusActive, 1, from.AddDate(0, 0, 3))
	put("on-lower", reminder.StatusActive, 1, from)
	put("on-upper", reminder.StatusActive, 1, to)
	put("cancelled", reminder.StatusCancelled, 1, from.AddDate(0, 0, 3))
	put("one-off", reminder.StatusActive, 0, from.AddDate(0, 0, 3))
	put("no-date", reminder.StatusActive, 1, time.Time{})

	subs, err := mem.ListRenewingBetween(context.Background(), from, to)
	if err != nil {
		t.Fatalf("ListRenewingBetween: %v", err)
	}

	got := map[string]bool{}
	for _, sub := range subs {
		got[sub.ID] = true
	}
	for _, want := range []string{"in-window", "on-lower"} {
		if !got[want] {
			t.Errorf("missing %q", want)
		}
	}
	for _, reject := range []string{"on-upper", "cancelled", "one-off", "no-date"} {
		if got[reject] {
			t.Errorf("%q should be filtered out", reject)
		}
	}
}

func TestMemoryMarkNotifiedUpserts(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	if rec, err := mem.Record(ctx, "s1"); err != nil || rec != nil {
		t.Fatalf("empty store: rec=%v err=%v", rec, err)
	}

	next := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if err := mem.MarkNotified(ctx, "s1", next, 30); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if err := mem.MarkNotified(ctx, "s1", next, 7); err != nil {
		t.Fatalf("MarkNotified again: %v", err)
	}

	rec, err := mem.Record(ctx, "s1")
	if err != nil || rec == nil {
		t.Fatalf("Record: rec=%v err=%v", rec, err)
	}
	if rec.LastLeadDays != 7 || !rec.LastPaymentDate.Equal(next) {
		t.Errorf("record not replaced by latest write: %+v", rec)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	mem := NewMemory()
	mem.PutMember(&reminder.Member{ID: "u-1", Email: "alice@example.com"})

	first, err := mem.MemberByID(context.Background(), "u-1")
	if err != nil || first == nil {
		t.Fatalf("MemberByID: %v %v", first, err)
	}
	first.Email = "mutated@example.com"

	second, _ := mem.MemberByID(context.Background(), "u-1")
	if second.Email != "alice@example.com" {
		t.Error("stored member mutated through a returned pointer")
	}

	if missing, err := mem.LevelByID(context.Background(), 99); err != nil || missing != nil {
		t.Errorf("absent level: got %v, %v", missing, err)
	}
}
