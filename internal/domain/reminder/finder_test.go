package reminder

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubSource struct {
	subs     []*Subscription
	err      error
	lastFrom time.Time
	lastTo   time.Time
}

func (s *stubSource) ListRenewingBetween(ctx context.Context, from, to time.Time) ([]*Subscription, error) {
	s.lastFrom, s.lastTo = from, to
	if s.err != nil {
		return nil, s.err
	}
	return s.subs, nil
}

type stubLedger struct {
	records map[string]*NotificationRecord
	readErr error
	marks   []markCall
	markErr error
}

type markCall struct {
	subscriptionID  string
	nextPaymentDate time.Time
	leadDays        int
}

func (l *stubLedger) Record(ctx context.Context, subscriptionID string) (*NotificationRecord, error) {
	if l.readErr != nil {
		return nil, l.readErr
	}
	return l.records[subscriptionID], nil
}

func (l *stubLedger) MarkNotified(ctx context.Context, subscriptionID string, nextPaymentDate time.Time, leadDays int) error {
	if l.markErr != nil {
		return l.markErr
	}
	l.marks = append(l.marks, markCall{subscriptionID, nextPaymentDate, leadDays})
	return nil
}

var testRunDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func activeSub(id string, daysOut int) *Subscription {
	return &Subscription{
		ID:              id,
		UserID:          "u-" + id,
		LevelID:         1,
		Status:          StatusActive,
		CycleNumber:     1,
		CyclePeriod:     PeriodMonth,
		NextPaymentDate: testRunDate.AddDate(0, 0, daysOut),
		BillingAmount:   10,
	}
}

func TestFindDueWindowIsHalfOpen(t *testing.T) {
	cases := []struct {
		name    string
		daysOut int
		prev    int
		lead    int
		wantDue bool
	}{
		{"on lower boundary", 0, 0, 7, true},
		{"inside window", 5, 0, 7, true},
		{"day before upper boundary", 6, 0, 7, true},
		{"on upper boundary", 7, 0, 7, false},
		{"on previous boundary", 7, 7, 30, true},
		{"inside second window", 29, 7, 30, true},
		{"on second upper boundary", 30, 7, 30, false},
		{"below previous boundary", 5, 7, 30, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := &stubSource{subs: []*Subscription{activeSub("s1", tc.daysOut)}}
			f := NewFinder(src, &stubLedger{})

			due, err := f.FindDue(context.Background(), Tier{LeadDays: tc.lead, TemplateID: "t"}, tc.prev, testRunDate)
			if err != nil {
				t.Fatalf("FindDue: %v", err)
			}
			if got := len(due) == 1; got != tc.wantDue {
				t.Errorf("daysOut=%d window=[%d,%d): due=%v, want %v", tc.daysOut, tc.prev, tc.lead, got, tc.wantDue)
			}
		})
	}
}

func TestFindDueQueriesBoundaryTrackedWindow(t *testing.T) {
	src := &stubSource{}
	f := NewFinder(src, &stubLedger{})

	if _, err := f.FindDue(context.Background(), Tier{LeadDays: 30, TemplateID: "t"}, 7, testRunDate); err != nil {
		t.Fatalf("FindDue: %v", err)
	}

	if want := testRunDate.AddDate(0, 0, 7); !src.lastFrom.Equal(want) {
		t.Errorf("window start: got %s, want %s", src.lastFrom, want)
	}
	if want := testRunDate.AddDate(0, 0, 30); !src.lastTo.Equal(want) {
		t.Errorf("window end: got %s, want %s", src.lastTo, want)
	}
}

func TestFindDueExcludesNonRecurringAndInactive(t *testing.T) {
	oneOff := activeSub("one-off", 5)
	oneOff.CycleNumber = 0

	cancelled := activeSub("cancelled", 5)
	cancelled.Status = StatusCancelled

	noDate := activeSub("no-date", 5)
	noDate.NextPaymentDate = time.Time{}

	src := &stubSource{subs: []*Subscription{oneOff, cancelled, noDate, activeSub("good", 5)}}
	f := NewFinder(src, &stubLedger{})

	due, err := f.FindDue(context.Background(), Tier{LeadDays: 7, TemplateID: "t"}, 0, testRunDate)
	if err != nil {
		t.Fatalf("FindDue: %v", err)
	}
	if len(due) != 1 || due[0].ID != "good" {
		t.Fatalf("got %d due, want only %q", len(due), "good")
	}
}

func TestFindDueLedgerFiltering(t *testing.T) {
	sub := activeSub("s1", 5)

	cases := []struct {
		name    string
		record  *NotificationRecord
		wantDue bool
	}{
		{"no record", nil, true},
		{
			"already notified at this tier",
			&NotificationRecord{SubscriptionID: "s1", LastPaymentDate: sub.NextPaymentDate, LastLeadDays: 7},
			false,
		},
		{
			"already notified at a closer tier",
			&NotificationRecord{SubscriptionID: "s1", LastPaymentDate: sub.NextPaymentDate, LastLeadDays: 3},
			false,
		},
		{
			"only a farther tier recorded",
			&NotificationRecord{SubscriptionID: "s1", LastPaymentDate: sub.NextPaymentDate, LastLeadDays: 30},
			true,
		},
		{
			"stale record for a previous charge date",
			&NotificationRecord{SubscriptionID: "s1", LastPaymentDate: sub.NextPaymentDate.AddDate(0, -1, 0), LastLeadDays: 7},
			true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := &stubLedger{records: map[string]*NotificationRecord{}}
			if tc.record != nil {
				ledger.records["s1"] = tc.record
			}

			f := NewFinder(&stubSource{subs: []*Subscription{sub}}, ledger)
			due, err := f.FindDue(context.Background(), Tier{LeadDays: 7, TemplateID: "t"}, 0, testRunDate)
			if err != nil {
				t.Fatalf("FindDue: %v", err)
			}
			if got := len(due) == 1; got != tc.wantDue {
				t.Errorf("due=%v, want %v", got, tc.wantDue)
			}
		})
	}
}

func TestFindDuePropagatesStoreErrors(t *testing.T) {
	srcErr := errors.New("connection refused")
	f := NewFinder(&stubSource{err: srcErr}, &stubLedger{})
	if _, err := f.FindDue(context.Background(), Tier{LeadDays: 7, TemplateID: "t"}, 0, testRunDate); !errors.Is(err, srcErr) {
		t.Fatalf("expected source error, got %v", err)
	}

	ledgerErr := errors.New("timeout")
	f = NewFinder(
		&stubSource{subs: []*Subscription{activeSub("s1", 5)}},
		&stubLedger{readErr: ledgerErr},
	)
	if _, err := f.FindDue(context.Background(), Tier{LeadDays: 7, TemplateID: "t"}, 0, testRunDate); !errors.Is(err, ledgerErr) {
		t.Fatalf("expected ledger error, got %v", err)
	}
}
