package reminder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"remindly/internal/domain/reminder"
	"remindly/internal/infra/store"
)

type captureRenderer struct {
	lastTemplate string
	lastData     map[string]any
}

func (r *captureRenderer) Render(templateID string, data map[string]any) (string, string, string, error) {
	r.lastTemplate = templateID
	r.lastData = data
	subject, _ := data["subject"].(string)
	return subject, "<p>reminder</p>", "reminder", nil
}

type captureProvider struct {
	sent []*reminder.Message
}

func (p *captureProvider) Send(ctx context.Context, msg *reminder.Message) (string, error) {
	p.sent = append(p.sent, msg)
	return "msg-1", nil
}

// flakySource fails tier scans whose window starts at the given boundary and
// delegates everything else to the wrapped store.
type flakySource struct {
	inner      reminder.SubscriptionSource
	failFrom   time.Time
	failReason error
}

func (s *flakySource) ListRenewingBetween(ctx context.Context, from, to time.Time) ([]*reminder.Subscription, error) {
	if from.Equal(s.failFrom) {
		return nil, s.failReason
	}
	return s.inner.ListRenewingBetween(ctx, from, to)
}

type runFixture struct {
	mem      *store.Memory
	renderer *captureRenderer
	provider *captureProvider
}

func newRunFixture(t *testing.T) *runFixture {
	t.Helper()
	mem := store.NewMemory()
	mem.PutMember(&reminder.Member{ID: "u-1", Email: "alice@example.com", Login: "alice", DisplayName: "Alice"})
	mem.PutLevel(&reminder.Level{ID: 1, Name: "Gold"})
	return &runFixture{
		mem:      mem,
		renderer: &captureRenderer{},
		provider: &captureProvider{},
	}
}

func (f *runFixture) seedSub(id string, daysOut int) *reminder.Subscription {
	sub := &reminder.Subscription{
		ID:              id,
		UserID:          "u-1",
		LevelID:         1,
		Status:          reminder.StatusActive,
		CycleNumber:     1,
		CyclePeriod:     reminder.PeriodMonth,
		NextPaymentDate: time.Now().UTC().AddDate(0, 0, daysOut),
		BillingAmount:   10,
	}
	f.mem.PutSubscription(sub)
	return sub
}

func (f *runFixture) runner(tiers reminder.StaticTiers, source reminder.SubscriptionSource) *reminder.Runner {
	if source == nil {
		source = f.mem
	}
	finder := reminder.NewFinder(source, f.mem)
	dispatcher := reminder.NewDispatcher(f.mem, f.mem, f.renderer, f.provider, f.mem, nil, reminder.SiteSettings{
		Name:  "Example Site",
		Email: "admin@example.com",
	}, true)
	return reminder.NewRunner(tiers, finder, dispatcher, nil)
}

func TestRunSendsAtMostOncePerCharge(t *testing.T) {
	f := newRunFixture(t)
	sub := f.seedSub("s1", 5)
	r := f.runner(reminder.StaticTiers{{LeadDays: 7, TemplateID: "membership_recurring"}}, nil)

	first, err := r.Run(context.Background(), reminder.RunOptions{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Sent != 1 {
		t.Fatalf("first run sent %d, want 1", first.Sent)
	}

	rec, err := f.mem.Record(context.Background(), "s1")
	if err != nil || rec == nil {
		t.Fatalf("Record after send: rec=%v err=%v", rec, err)
	}
	if rec.LastLeadDays != 7 || !rec.LastPaymentDate.Equal(sub.NextPaymentDate) {
		t.Errorf("record: %+v", rec)
	}

	// Same run the next day resolves to the same charge and stays quiet.
	second, err := r.Run(context.Background(), reminder.RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Found != 0 || second.Sent != 0 {
		t.Errorf("second run found=%d sent=%d, want 0/0", second.Found, second.Sent)
	}
	if len(f.provider.sent) != 1 {
		t.Errorf("got %d deliveries across runs, want 1", len(f.provider.sent))
	}
}

func TestRunPicksNearestTierOnly(t *testing.T) {
	f := newRunFixture(t)
	f.seedSub("near", 5)
	f.seedSub("far", 20)
	r := f.runner(reminder.StaticTiers{
		{LeadDays: 7, TemplateID: "t7"},
		{LeadDays: 30, TemplateID: "t30"},
	}, nil)

	summary, err := r.Run(context.Background(), reminder.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Sent != 2 {
		t.Fatalf("sent %d, want 2", summary.Sent)
	}
	if summary.Tiers[0].Sent != 1 || summary.Tiers[1].Sent != 1 {
		t.Errorf("per-tier sends: %+v", summary.Tiers)
	}
	if len(f.provider.sent) != 2 {
		t.Fatalf("got %d deliveries, want one per subscription", len(f.provider.sent))
	}

	// A charge five days out belongs to the 7-day tier, never both.
	nearRec, _ := f.mem.Record(context.Background(), "near")
	if nearRec == nil || nearRec.LastLeadDays != 7 {
		t.Errorf("near record: %+v", nearRec)
	}
	farRec, _ := f.mem.Record(context.Background(), "far")
	if farRec == nil || farRec.LastLeadDays != 30 {
		t.Errorf("far record: %+v", farRec)
	}
}

func TestRunResendAfterReschedule(t *testing.T) {
	f := newRunFixture(t)
	sub := f.seedSub("s1", 5)

	// A reminder already went out, but for last month's charge.
	stale := sub.NextPaymentDate.AddDate(0, -1, 0)
	if err := f.mem.MarkNotified(context.Background(), "s1", stale, 7); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}

	r := f.runner(reminder.StaticTiers{{LeadDays: 7, TemplateID: "t7"}}, nil)
	summary, err := r.Run(context.Background(), reminder.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Sent != 1 {
		t.Fatalf("sent %d, want 1 for the rescheduled charge", summary.Sent)
	}

	rec, _ := f.mem.Record(context.Background(), "s1")
	if rec == nil || !rec.LastPaymentDate.Equal(sub.NextPaymentDate) {
		t.Errorf("record not advanced to the new charge date: %+v", rec)
	}
}

func TestRunTierFailureDoesNotAbortRun(t *testing.T) {
	f := newRunFixture(t)
	f.seedSub("far", 20)

	runDate := time.Now().UTC()
	runDate = time.Date(runDate.Year(), runDate.Month(), runDate.Day(), 0, 0, 0, 0, time.UTC)
	src := &flakySource{
		inner:      f.mem,
		failFrom:   runDate, // the 7-day tier scans from the run date
		failReason: errors.New("connection reset"),
	}

	r := f.runner(reminder.StaticTiers{
		{LeadDays: 7, TemplateID: "t7"},
		{LeadDays: 30, TemplateID: "t30"},
	}, src)

	summary, err := r.Run(context.Background(), reminder.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("errors: %v, want exactly the failed tier", summary.Errors)
	}
	if summary.Sent != 1 {
		t.Errorf("sent %d, want the 30-day tier to proceed", summary.Sent)
	}
	if f.renderer.lastTemplate != "t30" {
		t.Errorf("template: got %q, want t30", f.renderer.lastTemplate)
	}
}

func TestRunDryRunLeavesNoTrace(t *testing.T) {
	f := newRunFixture(t)
	f.seedSub("s1", 5)
	r := f.runner(reminder.StaticTiers{{LeadDays: 7, TemplateID: "t7"}}, nil)

	summary, err := r.Run(context.Background(), reminder.RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.DryRun {
		t.Error("summary must carry the dry-run flag")
	}
	if summary.Found != 1 || summary.Skipped != 1 || summary.Sent != 0 {
		t.Errorf("found=%d skipped=%d sent=%d, want 1/1/0", summary.Found, summary.Skipped, summary.Sent)
	}
	if len(f.provider.sent) != 0 {
		t.Error("dry run must not deliver")
	}
	if rec, _ := f.mem.Record(context.Background(), "s1"); rec != nil {
		t.Errorf("dry run wrote a notification record: %+v", rec)
	}

	// A real run afterwards still sends: the dry run reserved nothing.
	live, err := r.Run(context.Background(), reminder.RunOptions{})
	if err != nil {
		t.Fatalf("live run: %v", err)
	}
	if live.Sent != 1 {
		t.Errorf("live run after dry run sent %d, want 1", live.Sent)
	}
}

func TestRunPayload(t *testing.T) {
	f := newRunFixture(t)
	f.seedSub("s1", 5)
	r := f.runner(reminder.StaticTiers{{LeadDays: 7, TemplateID: "membership_recurring"}}, nil)

	if _, err := r.Run(context.Background(), reminder.RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data := f.renderer.lastData
	if data == nil {
		t.Fatal("renderer never called")
	}
	if got := data["membership_cost"]; got != "$10.00 per Month" {
		t.Errorf("membership_cost: got %v", got)
	}
	if got := data["membership_level_name"]; got != "Gold" {
		t.Errorf("membership_level_name: got %v", got)
	}
	if got := data["site_name"]; got != "Example Site" {
		t.Errorf("site_name: got %v", got)
	}
	if len(f.provider.sent) != 1 || f.provider.sent[0].To != "alice@example.com" {
		t.Fatalf("delivery: %+v", f.provider.sent)
	}
}
