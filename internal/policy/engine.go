package policy

import (
	"fmt"
	"strings"

	"shopagent/internal/logging"
)

// Engine evaluates the policy table. It is a pure function of its
// inputs and the table: same inputs, same outcome, no side effects.
type Engine struct {
	table *Table
}

// NewEngine wraps a loaded table.
func NewEngine(table *Table) *Engine {
	return &Engine{table: table}
}

// Table returns the underlying policy table.
func (e *Engine) Table() *Table {
	return e.table
}

// Evaluate applies the ordered rule list to one request. Rules are
// checked first to last; the first match wins. All error conditions are
// encoded in the returned Outcome, never in a Go error.
func (e *Engine) Evaluate(category string, intent Intent, daysSincePurchase *int, itemOpened *bool, requestedDiscount *float64) Outcome {
	// Rule 1: unknown category.
	p, ok := e.table.Categories[category]
	if !ok {
		return Outcome{
			Eligible: false,
			Outcome:  OutcomeNeedsInfo,
			Reason:   "Unknown category. Need more detail about the product.",
		}
	}

	// Rule 2: missing mandatory inputs.
	var missing []string
	if daysSincePurchase == nil {
		missing = append(missing, "days_since_purchase")
	}
	if (intent == IntentRefund || intent == IntentReturn) && itemOpened == nil {
		missing = append(missing, "item_opened")
	}
	if len(missing) > 0 {
		return Outcome{
			Eligible: false,
			Outcome:  OutcomeNeedsInfo,
			Reason:   fmt.Sprintf("Missing required info: %s.", strings.Join(missing, ", ")),
		}
	}
	days := *daysSincePurchase

	// Rule 3: return window.
	if intent == IntentRefund || intent == IntentReturn || intent == IntentReplacement {
		if days > p.ReturnWindowDays {
			logging.PolicyDebug("window exceeded: category=%s days=%d window=%d", category, days, p.ReturnWindowDays)
			return Outcome{
				Eligible: false,
				Outcome:  OutcomeNotEligible,
				Reason:   "Return window exceeded based on store policy.",
			}
		}
	}

	// Rule 4: category-specific hard rules.
	if p.HasConstraint(ConstraintOpenedIneligibleAudio) &&
		(intent == IntentRefund || intent == IntentReturn) &&
		itemOpened != nil && *itemOpened {
		return Outcome{
			Eligible: false,
			Outcome:  OutcomeNotEligible,
			Reason:   "Opened in-ear headphones are not eligible for refund.",
		}
	}

	// Rule 5: allowed outcomes.
	if !p.allows(intent) {
		return Outcome{
			Eligible: false,
			Outcome:  OutcomeNotEligible,
			Reason:   "Requested outcome is not allowed for this category.",
		}
	}

	// Rule 6: discount computation with hard caps. No request, however
	// phrased, can push the discount past the category cap.
	if intent == IntentDiscount {
		discount := p.baseDiscount(days)
		refused := requestedDiscount != nil && *requestedDiscount > p.DiscountCapPercent
		if requestedDiscount != nil && *requestedDiscount < discount {
			discount = *requestedDiscount
		}
		if discount > p.DiscountCapPercent {
			discount = p.DiscountCapPercent
		}
		if discount < 0 {
			discount = 0
		}
		return Outcome{
			Eligible:              true,
			Outcome:               OutcomeDiscount,
			DiscountPercent:       discount,
			Reason:                "Discount determined by policy tiers and caps.",
			RefusedExcessDiscount: refused,
		}
	}

	// Rule 7: eligible for the requested outcome.
	return Outcome{
		Eligible: true,
		Outcome:  OutcomeKind(intent),
		Reason:   "Eligible under store policy.",
	}
}

func (p CategoryPolicy) allows(intent Intent) bool {
	for _, out := range p.AllowedOutcomes {
		if Intent(out) == intent {
			return true
		}
	}
	return false
}

// baseDiscount returns the first tier whose max_days covers the
// purchase age, falling back to the category cap.
func (p CategoryPolicy) baseDiscount(days int) float64 {
	for _, tier := range p.TieredDiscounts {
		if days <= tier.MaxDays {
			return tier.Percent
		}
	}
	return p.DiscountCapPercent
}
