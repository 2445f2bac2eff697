package template

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"remindly/internal/domain/reminder"
)

var (
	_ reminder.TemplateRenderer = (*Engine)(nil)
	_ reminder.TemplateCatalog  = (*Engine)(nil)
)

// Engine renders reminder templates using Go's html/template package and
// exposes the registered defaults so an external template manager can read
// and edit them.
type Engine struct {
	templates *template.Template
	siteName  string
	bodies    map[string]string // template id -> raw body
}

// NewEngine loads the template file for every configured tier from the given
// directory (one <template id>.html per id). A tier whose template file is
// missing is a configuration error.
func NewEngine(templatesDir, siteName string, tiers []reminder.Tier) (*Engine, error) {
	tmpl, err := template.ParseGlob(templatesDir + "/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates from %s: %w", templatesDir, err)
	}

	bodies := make(map[string]string)
	for _, tier := range tiers {
		if _, ok := bodies[tier.TemplateID]; ok {
			continue
		}
		name := tier.TemplateID + ".html"
		if tmpl.Lookup(name) == nil {
			return nil, fmt.Errorf("no template file for %s in %s", tier.TemplateID, templatesDir)
		}
		raw, err := os.ReadFile(filepath.Join(templatesDir, name))
		if err != nil {
			return nil, fmt.Errorf("reading template body %s: %w", name, err)
		}
		bodies[tier.TemplateID] = string(raw)
	}

	return &Engine{templates: tmpl, siteName: siteName, bodies: bodies}, nil
}

// Render produces a subject line, HTML body, and plain-text fallback for the
// given template id. The payload's "subject" entry overrides the default.
func (e *Engine) Render(templateID string, data map[string]any) (subject, html, text string, err error) {
	if _, ok := e.bodies[templateID]; !ok {
		return "", "", "", fmt.Errorf("no template registered for id: %s", templateID)
	}

	subject = fmt.Sprintf("Your membership at %s will renew soon", e.siteName)
	if custom, ok := data["subject"].(string); ok && custom != "" {
		subject = custom
	}

	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, templateID+".html", data); err != nil {
		return "", "", "", fmt.Errorf("executing template %s: %w", templateID, err)
	}
	html = buf.String()

	// Generate plain-text fallback by stripping HTML tags
	text = stripHTML(html)

	return subject, html, text, nil
}

// Catalog lists the registered templates with their default subject and
// description, keyed by template id.
func (e *Engine) Catalog() []reminder.TemplateInfo {
	ids := make([]string, 0, len(e.bodies))
	for id := range e.bodies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	infos := make([]reminder.TemplateInfo, 0, len(ids))
	for _, id := range ids {
		infos = append(infos, reminder.TemplateInfo{
			ID:          id,
			Subject:     fmt.Sprintf("Happening soon: The recurring payment for your membership at %s", e.siteName),
			Description: fmt.Sprintf("Membership level recurring payment message for %s", e.siteName),
			Body:        e.bodies[id],
		})
	}
	return infos
}

// stripHTML removes HTML tags and collapses whitespace to produce a plain-text version.
func stripHTML(s string) string {
	// Remove HTML tags
	re := regexp.MustCompile(`<[^>]*>`)
	text := re.ReplaceAllString(s, "")

	// Decode common HTML entities
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&nbsp;", " ")

	// Collapse whitespace
	wsRe := regexp.MustCompile(`\s+`)
	text = wsRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
