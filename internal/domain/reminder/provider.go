package reminder

import "context"

// Provider defines the contract for delivering a rendered reminder.
// Implementations live in infra/ (e.g., Resend for email).
type Provider interface {
	// Send delivers a rendered message and returns the provider's message ID.
	Send(ctx context.Context, msg *Message) (string, error)
}

// TemplateRenderer defines the contract for rendering reminder templates.
// Implementations live in infra/template/.
type TemplateRenderer interface {
	// Render produces a subject line, HTML body, and plain-text body for the
	// given template id and payload.
	Render(templateID string, data map[string]any) (subject, html, text string, err error)
}

// VetoHook is the external decision point consulted before each send. It
// receives the default decision (allow) together with the member and
// subscription, and returns the final decision. Implementations that fail
// internally should fail open and log rather than block the run.
type VetoHook interface {
	AllowSend(ctx context.Context, defaultAllow bool, m *Member, sub *Subscription) bool
}

// VetoFunc adapts a plain function to the VetoHook interface.
type VetoFunc func(ctx context.Context, defaultAllow bool, m *Member, sub *Subscription) bool

func (f VetoFunc) AllowSend(ctx context.Context, defaultAllow bool, m *Member, sub *Subscription) bool {
	return f(ctx, defaultAllow, m, sub)
}

// denyAll is the veto used for dry runs: no real deliveries.
var denyAll = VetoFunc(func(context.Context, bool, *Member, *Subscription) bool {
	return false
})
