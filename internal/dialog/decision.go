package dialog

import (
	"time"

	"shopagent/internal/logging"
	"shopagent/internal/policy"
)

// decisionKind is the branch the decision tree lands on.
type decisionKind int

const (
	decideApprove decisionKind = iota
	decideRetention
	decideAwaitEvidence
	decideNeedsInfo
	decideEngine
)

// decision is the outcome of the category decision tree. For the
// engine branch the manager runs the policy engine afterwards; for all
// other branches the tree itself fixed the result.
type decision struct {
	kind   decisionKind
	reason string
}

// furnitureWindowDays is the hard limit on furniture returns.
const furnitureWindowDays = 7

// decide routes a fully-slotted session through the category branches.
// Categories the policy table covers end at the engine; the categorical
// branches here either precede it (Electronics defect gates, Furniture
// timing) or replace it (Food, Art).
func (m *Manager) decide(state *SessionState) decision {
	category := ""
	if state.Category != nil {
		category = *state.Category
	}

	switch category {
	case "Food":
		return decision{kind: decideRetention, reason: "Returns are not available for food items."}

	case "Art":
		return decision{kind: decideApprove}

	case "Electronics":
		if state.ElectronicsDefectClaimed != nil && !*state.ElectronicsDefectClaimed {
			return decision{kind: decideRetention, reason: "Returns for electronics are only available for defective items."}
		}
		if state.ElectronicsDefectClaimed != nil && *state.ElectronicsDefectClaimed {
			if state.DefectEvidencePresent != nil && !*state.DefectEvidencePresent {
				return decision{kind: decideAwaitEvidence}
			}
		}

	case "Furniture":
		days := m.effectiveDays(state)
		if days == nil {
			return decision{kind: decideNeedsInfo, reason: "Need purchase timing"}
		}
		if *days > furnitureWindowDays {
			return decision{kind: decideRetention, reason: "Furniture returns are limited to 7 days after purchase."}
		}
		if state.FurnitureAssembled != nil && *state.FurnitureAssembled {
			return decision{kind: decideRetention, reason: "Assembled furniture cannot be returned."}
		}
	}

	if m.table.Covers(category) {
		return decision{kind: decideEngine}
	}
	logging.DialogDebug("no decision branch for category %q", category)
	return decision{kind: decideRetention, reason: "Unable to match this request to a store policy."}
}

// effectiveDays returns the purchase age: the direct slot if present,
// else UTC whole days since purchase_date_iso.
func (m *Manager) effectiveDays(state *SessionState) *int {
	if state.DaysSincePurchase != nil {
		return state.DaysSincePurchase
	}
	if state.PurchaseDateISO == nil {
		return nil
	}
	purchased, err := time.Parse("2006-01-02", *state.PurchaseDateISO)
	if err != nil {
		if purchased, err = time.Parse(time.RFC3339, *state.PurchaseDateISO); err != nil {
			return nil
		}
	}
	days := int(m.now().UTC().Sub(purchased.UTC()).Hours() / 24)
	if days < 0 {
		return nil
	}
	return &days
}

// engineOutcome runs the policy engine for the session's slots and
// records the result as the session's last outcome.
func (m *Manager) engineOutcome(state *SessionState) policy.Outcome {
	days := m.effectiveDays(state)
	out := m.engine.Evaluate(*state.Category, state.UserGoal, days, state.ItemOpened, state.RequestedDiscount)
	state.LastPolicyOutcome = &out
	logging.Policy("session=%s category=%s intent=%s outcome=%s eligible=%v discount=%.1f",
		state.SessionID, *state.Category, state.UserGoal, out.Outcome, out.Eligible, out.DiscountPercent)
	return out
}
