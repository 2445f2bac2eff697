package reminder

import (
	"fmt"
	"sort"
	"strconv"
)

// Tier maps a lead time to the template sent at that lead time: a reminder
// goes out TemplateID-styled LeadDays days before the next charge.
type Tier struct {
	LeadDays   int    `json:"lead_days"`
	TemplateID string `json:"template_id"`
}

// TierSource supplies the tier set for a run. It is the extension point for
// replacing the configured tiers without touching the run logic.
type TierSource interface {
	Tiers() ([]Tier, error)
}

// StaticTiers is a TierSource over a fixed, pre-validated tier set.
type StaticTiers []Tier

func (s StaticTiers) Tiers() ([]Tier, error) {
	return s, nil
}

// NewTierSet validates a lead-days to template-id mapping and returns the
// tiers sorted ascending by lead days. A run processes the result in order,
// nearest tier first.
func NewTierSet(mapping map[int]string) ([]Tier, error) {
	if len(mapping) == 0 {
		return nil, fmt.Errorf("no reminder tiers configured")
	}

	tiers := make([]Tier, 0, len(mapping))
	for days, templateID := range mapping {
		if days <= 0 {
			return nil, fmt.Errorf("invalid lead time %d: must be a positive number of days", days)
		}
		if templateID == "" {
			return nil, fmt.Errorf("lead time %d has no template id", days)
		}
		tiers = append(tiers, Tier{LeadDays: days, TemplateID: templateID})
	}

	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].LeadDays < tiers[j].LeadDays
	})

	return tiers, nil
}

// TiersFromConfig builds a tier set from the configuration mapping, whose
// keys arrive as strings (YAML/env). A malformed key is a configuration
// error and fails the whole set.
func TiersFromConfig(raw map[string]string) ([]Tier, error) {
	mapping := make(map[int]string, len(raw))
	for key, templateID := range raw {
		days, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("invalid tier key %q: %w", key, err)
		}
		mapping[days] = templateID
	}
	return NewTierSet(mapping)
}
