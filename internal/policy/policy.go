// Package policy holds the immutable per-category policy table and the
// engine that evaluates it. The engine is the sole source of truth for
// decisions: no other component may alter an outcome or a discount.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"shopagent/internal/logging"
)

// Intent is a canonical customer intent.
type Intent string

const (
	IntentRefund      Intent = "refund"
	IntentReturn      Intent = "return"
	IntentReplacement Intent = "replacement"
	IntentDiscount    Intent = "discount"
	IntentUnknown     Intent = "unknown"
)

// OutcomeKind is the decision kind carried by an Outcome.
type OutcomeKind string

const (
	OutcomeRefund      OutcomeKind = "refund"
	OutcomeReturn      OutcomeKind = "return"
	OutcomeReplacement OutcomeKind = "replacement"
	OutcomeDiscount    OutcomeKind = "discount"
	OutcomeNeedsInfo   OutcomeKind = "needs_info"
	OutcomeNotEligible OutcomeKind = "not_eligible"
)

// Outcome is the structured decision produced by the engine.
type Outcome struct {
	Eligible              bool        `json:"eligible"`
	Outcome               OutcomeKind `json:"outcome"`
	DiscountPercent       float64     `json:"discount_percent"`
	Reason                string      `json:"reason"`
	RefusedExcessDiscount bool        `json:"refused_excess_discount,omitempty"`
}

// DiscountTier grants Percent when days since purchase is at most MaxDays.
// The first matching tier wins.
type DiscountTier struct {
	MaxDays int     `json:"max_days"`
	Percent float64 `json:"percent"`
}

// CategoryPolicy is the immutable rule set for one category.
type CategoryPolicy struct {
	ReturnWindowDays   int            `json:"return_window_days"`
	AllowedOutcomes    []string       `json:"allowed_outcomes"`
	DiscountCapPercent float64        `json:"discount_cap_percent"`
	TieredDiscounts    []DiscountTier `json:"tiered_discounts"`
	SpecialConstraints []string       `json:"special_constraints"`
}

// ConstraintOpenedIneligibleAudio marks categories where an opened item
// can never be refunded or returned.
const ConstraintOpenedIneligibleAudio = "opened_ineligible_for_audio"

// HasConstraint reports whether the category carries the given tag.
func (p CategoryPolicy) HasConstraint(tag string) bool {
	for _, c := range p.SpecialConstraints {
		if c == tag {
			return true
		}
	}
	return false
}

// Table is the loaded policy table plus the vocabulary maps that
// normalize legacy category/intent spellings onto the canonical ones.
// Loaded once at startup; immutable thereafter.
type Table struct {
	Categories      map[string]CategoryPolicy `json:"categories"`
	ExtraCategories []string                  `json:"extra_categories"`
	CategoryAliases map[string]string         `json:"category_aliases"`
	IntentAliases   map[string]string         `json:"intent_aliases"`
}

// Load reads and validates a policy table file. Any validation failure
// is fatal at startup by design: a service with a broken policy table
// must not answer customers.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy table %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a policy table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse policy table: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	logging.Policy("policy table loaded: %d categories, %d aliases",
		len(t.Categories), len(t.CategoryAliases)+len(t.IntentAliases))
	return &t, nil
}

func (t *Table) validate() error {
	if len(t.Categories) == 0 {
		return fmt.Errorf("policy table has no categories")
	}
	for name, p := range t.Categories {
		if p.ReturnWindowDays < 0 {
			return fmt.Errorf("category %q: return_window_days must be >= 0", name)
		}
		if len(p.AllowedOutcomes) == 0 {
			return fmt.Errorf("category %q: allowed_outcomes is empty", name)
		}
		if p.DiscountCapPercent < 0 || p.DiscountCapPercent > 100 {
			return fmt.Errorf("category %q: discount_cap_percent %.1f out of [0,100]", name, p.DiscountCapPercent)
		}
		for _, out := range p.AllowedOutcomes {
			switch Intent(out) {
			case IntentRefund, IntentReturn, IntentReplacement, IntentDiscount:
			default:
				return fmt.Errorf("category %q: unknown allowed outcome %q", name, out)
			}
		}
		for i, tier := range p.TieredDiscounts {
			if tier.Percent > p.DiscountCapPercent {
				return fmt.Errorf("category %q: tier %d percent %.1f exceeds cap %.1f",
					name, i, tier.Percent, p.DiscountCapPercent)
			}
		}
	}
	for alias, target := range t.CategoryAliases {
		if !t.isDeclaredCategory(target) {
			return fmt.Errorf("category alias %q points at undeclared category %q", alias, target)
		}
	}
	for alias, target := range t.IntentAliases {
		switch Intent(target) {
		case IntentRefund, IntentReturn, IntentReplacement, IntentDiscount:
		default:
			return fmt.Errorf("intent alias %q points at unknown intent %q", alias, target)
		}
	}
	return nil
}

func (t *Table) isDeclaredCategory(name string) bool {
	if _, ok := t.Categories[name]; ok {
		return true
	}
	for _, c := range t.ExtraCategories {
		if c == name {
			return true
		}
	}
	return false
}

// CanonicalCategory normalizes a raw category string through the alias
// map and reports whether it belongs to the declared category set. This
// is the containment gate for LLM-produced categories: anything outside
// the declared set is discarded.
func (t *Table) CanonicalCategory(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if t.isDeclaredCategory(s) {
		return s, true
	}
	if target, ok := t.CategoryAliases[s]; ok {
		return target, true
	}
	// Aliases are matched case-insensitively so legacy ALL-CAPS
	// vocabulary (FOOD, ELECTRONICS, ...) normalizes too.
	lower := strings.ToLower(s)
	for alias, target := range t.CategoryAliases {
		if strings.ToLower(alias) == lower {
			return target, true
		}
	}
	for name := range t.Categories {
		if strings.ToLower(name) == lower {
			return name, true
		}
	}
	for _, name := range t.ExtraCategories {
		if strings.ToLower(name) == lower {
			return name, true
		}
	}
	return "", false
}

// CanonicalIntent normalizes a raw intent string through the alias map.
func (t *Table) CanonicalIntent(raw string) (Intent, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return IntentUnknown, false
	}
	switch Intent(s) {
	case IntentRefund, IntentReturn, IntentReplacement, IntentDiscount:
		return Intent(s), true
	}
	for alias, target := range t.IntentAliases {
		if strings.ToLower(alias) == s {
			return Intent(target), true
		}
	}
	return IntentUnknown, false
}

// Covers reports whether the engine table has rules for the category.
// Categories outside the table (for example Food and Art) are handled
// by the dialog decision tree instead.
func (t *Table) Covers(category string) bool {
	_, ok := t.Categories[category]
	return ok
}

// DeclaredCategories returns the full declared category set, sorted.
func (t *Table) DeclaredCategories() []string {
	out := make([]string, 0, len(t.Categories)+len(t.ExtraCategories))
	for name := range t.Categories {
		out = append(out, name)
	}
	out = append(out, t.ExtraCategories...)
	sort.Strings(out)
	return out
}
