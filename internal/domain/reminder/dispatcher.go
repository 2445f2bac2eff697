package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Outcome classifies what Dispatch did with one subscription.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// SiteSettings carries the mail-merge values shared by every reminder.
type SiteSettings struct {
	Name           string
	Email          string
	LoginURL       string
	CancelURL      string
	CurrencySymbol string
	DateFormat     string
}

// Dispatcher builds and delivers one reminder per due subscription.
type Dispatcher struct {
	directory MemberDirectory
	levels    LevelSource
	renderer  TemplateRenderer
	provider  Provider
	ledger    Ledger
	veto      VetoHook
	site      SiteSettings

	// markVetoed controls whether a vetoed (not sent) reminder still updates
	// the ledger. True treats a veto as handled, so the tier is not retried;
	// false leaves the subscription eligible for the next run.
	markVetoed bool

	now func() time.Time
}

// NewDispatcher creates a dispatcher. veto may be nil (default allow all).
func NewDispatcher(
	directory MemberDirectory,
	levels LevelSource,
	renderer TemplateRenderer,
	provider Provider,
	ledger Ledger,
	veto VetoHook,
	site SiteSettings,
	markVetoed bool,
) *Dispatcher {
	if site.DateFormat == "" {
		site.DateFormat = "January 2, 2006"
	}
	if site.CurrencySymbol == "" {
		site.CurrencySymbol = "$"
	}
	return &Dispatcher{
		directory:  directory,
		levels:     levels,
		renderer:   renderer,
		provider:   provider,
		ledger:     ledger,
		veto:       veto,
		site:       site,
		markVetoed: markVetoed,
		now:        time.Now,
	}
}

// Dispatch resolves the member, builds the reminder payload, consults the
// veto hook, and delivers via the provider. The ledger is updated strictly
// after a confirmed send (or a permitted skip), never before; a delivery
// failure leaves the subscription eligible so the next run retries.
//
// In a dry run the veto is forced to deny and no ledger writes happen at all.
func (d *Dispatcher) Dispatch(ctx context.Context, sub *Subscription, tier Tier, opts RunOptions, rl *RunLog) (Outcome, error) {
	member, err := d.directory.MemberByID(ctx, sub.UserID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("looking up member %s: %w", sub.UserID, err)
	}
	if member == nil {
		// Permanently undeliverable. Mark the ledger so the next run does
		// not chase the same missing profile again.
		slog.Warn("member not found, treating reminder as handled",
			"subscription_id", sub.ID,
			"user_id", sub.UserID,
		)
		rl.Printf("subscription %s: member %s not found, marked handled without sending", sub.ID, sub.UserID)
		if !opts.DryRun {
			if err := d.ledger.MarkNotified(ctx, sub.ID, sub.NextPaymentDate, tier.LeadDays); err != nil {
				return OutcomeFailed, fmt.Errorf("recording undeliverable subscription %s: %w", sub.ID, err)
			}
		}
		return OutcomeSkipped, nil
	}

	data := d.buildPayload(member, sub, d.levelName(ctx, sub))

	veto := d.veto
	if opts.DryRun {
		veto = denyAll
	}
	allowed := true
	if veto != nil {
		allowed = veto.AllowSend(ctx, true, member, sub)
	}

	if !allowed {
		rl.Printf("subscription %s: send to %s vetoed", sub.ID, member.Email)
		if !opts.DryRun && d.markVetoed {
			if err := d.ledger.MarkNotified(ctx, sub.ID, sub.NextPaymentDate, tier.LeadDays); err != nil {
				return OutcomeFailed, fmt.Errorf("recording vetoed subscription %s: %w", sub.ID, err)
			}
		}
		return OutcomeSkipped, nil
	}

	subject, html, text, err := d.renderer.Render(tier.TemplateID, data)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("rendering template %s for subscription %s: %w", tier.TemplateID, sub.ID, err)
	}

	msg := &Message{
		To:      member.Email,
		Subject: subject,
		HTML:    html,
		Text:    text,
	}

	providerID, err := d.provider.Send(ctx, msg)
	if err != nil {
		rl.Printf("subscription %s: delivery to %s failed: %v", sub.ID, member.Email, err)
		return OutcomeFailed, fmt.Errorf("delivering reminder for subscription %s: %w", sub.ID, err)
	}

	rl.Printf("reminder sent to %s (subscription %s, %d days before renewal)", member.Email, sub.ID, tier.LeadDays)
	slog.Info("reminder sent",
		"subscription_id", sub.ID,
		"to", member.Email,
		"lead_days", tier.LeadDays,
		"template", tier.TemplateID,
		"provider_id", providerID,
	)

	if err := d.ledger.MarkNotified(ctx, sub.ID, sub.NextPaymentDate, tier.LeadDays); err != nil {
		// The email is out; losing the marker risks one duplicate next run
		// but must not fail the dispatch.
		slog.Error("failed to record sent reminder",
			"subscription_id", sub.ID,
			"error", err,
		)
		rl.Printf("subscription %s: sent but ledger update failed: %v", sub.ID, err)
	}

	return OutcomeSent, nil
}

// levelName resolves the membership level's display name, substituting a
// labelled placeholder when the level no longer exists.
func (d *Dispatcher) levelName(ctx context.Context, sub *Subscription) string {
	level, err := d.levels.LevelByID(ctx, sub.LevelID)
	if err != nil {
		slog.Warn("membership level lookup failed", "level_id", sub.LevelID, "error", err)
	}
	if level == nil {
		return fmt.Sprintf("deleted level #%d", sub.LevelID)
	}
	return level.Name
}

// buildPayload assembles the template data dictionary for one reminder.
func (d *Dispatcher) buildPayload(member *Member, sub *Subscription, levelName string) map[string]any {
	return map[string]any{
		"subject":               fmt.Sprintf("Your membership at %s will renew soon", d.site.Name),
		"name":                  member.DisplayName,
		"display_name":          member.DisplayName,
		"user_login":            member.Login,
		"user_email":            member.Email,
		"site_name":             d.site.Name,
		"site_email":            d.site.Email,
		"membership_id":         sub.LevelID,
		"membership_level_name": levelName,
		"membership_cost":       sub.CostText(d.site.CurrencySymbol),
		"billing_amount":        fmt.Sprintf("%s%.2f", d.site.CurrencySymbol, sub.BillingAmount),
		"renewal_date":          sub.NextPaymentDate.Format(d.site.DateFormat),
		"login_link":            d.site.LoginURL,
		"cancel_link":           d.site.CancelURL,
		"billing_info":          d.billingInfo(sub),
	}
}

// billingInfo summarizes the payment instrument on file: card type and last
// four, expiry, and a nudge to update billing details when the card expires
// within 60 days of the run. Falls back to the bare payment type; empty when
// nothing is on file.
func (d *Dispatcher) billingInfo(sub *Subscription) string {
	b := sub.Billing
	if b.CardType != "" && b.CardLastFour != "" {
		info := fmt.Sprintf("%s: ending in %s", b.CardType, b.CardLastFour)
		if b.ExpMonth > 0 && b.ExpYear > 0 {
			info += fmt.Sprintf("\nExpires: %d/%d", b.ExpMonth, b.ExpYear)

			// Card is valid through the end of its expiry month.
			validThrough := time.Date(b.ExpYear, time.Month(b.ExpMonth), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
			if validThrough.Before(d.now().Add(60 * 24 * time.Hour)) {
				info += "\nPlease make sure your billing information is up to date."
			}
		}
		return info
	}
	if b.PaymentType != "" {
		return fmt.Sprintf("Payment Type: %s", b.PaymentType)
	}
	return ""
}
