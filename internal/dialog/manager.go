package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"shopagent/internal/logging"
	"shopagent/internal/perception"
	"shopagent/internal/policy"
	"shopagent/internal/pricing"
)

// Oracle is the LLM capability surface the dialog consumes. It only
// ever populates slots and renders text; decisions stay in the policy
// engine. perception.Extractor satisfies this.
type Oracle interface {
	ExtractIntent(ctx context.Context, userMessage string) (*perception.NLUUpdate, error)
	ClassifyImage(ctx context.Context, userMessage string, image []byte) (*perception.ImageClassification, error)
	FreeformReply(ctx context.Context, prompt string) (string, error)
}

// PriceLookup maps a product identifier to a price, or unknown.
// pricing.Provider satisfies this.
type PriceLookup interface {
	GetPrice(ctx context.Context, productID string) (*float64, error)
}

// DefaultTurnBudget is the number of turns after which the agent stops
// asking questions and falls back to a summary.
const DefaultTurnBudget = 8

const stallReply = "I can proceed once the remaining detail is provided."

const evidenceRequest = "To verify the defect, please send a photo or a video of the issue, or describe the symptoms in detail."

// Manager runs one conversation turn at a time. It holds only
// immutable collaborators; all mutable state lives in the SessionState
// borrowed into HandleTurn, so one Manager serves every session.
type Manager struct {
	table      *policy.Table
	engine     *policy.Engine
	oracle     Oracle
	prices     PriceLookup
	turnBudget int
	now        func() time.Time
}

// NewManager wires the dialog core. oracle may be nil (no LLM: the
// dialog runs on parsers alone); prices may be nil (prices stay
// unknown). turnBudget <= 0 selects the default.
func NewManager(table *policy.Table, oracle Oracle, prices PriceLookup, turnBudget int) *Manager {
	if prices == nil {
		prices = pricing.NullProvider{}
	}
	if turnBudget <= 0 {
		turnBudget = DefaultTurnBudget
	}
	return &Manager{
		table:      table,
		engine:     policy.NewEngine(table),
		oracle:     oracle,
		prices:     prices,
		turnBudget: turnBudget,
		now:        time.Now,
	}
}

// HandleTurn processes one user message against the session. The
// caller must serialize turns per session; state writes are committed
// by the caller only after HandleTurn returns.
func (m *Manager) HandleTurn(ctx context.Context, state *SessionState, userMessage string, image []byte) TurnResult {
	// Bookkeeping.
	state.TurnCount++
	if DetectEmergency(userMessage) {
		state.EmergencyTrigger = true
	}
	logging.Dialog("session=%s turn=%d emergency=%v", state.SessionID, state.TurnCount, state.EmergencyTrigger)

	// Follow-up parsing against the slot we just asked about.
	if state.LastQuestionSlot != nil {
		if applyFollowUp(m.table, state, *state.LastQuestionSlot, userMessage) {
			logging.DialogDebug("session=%s follow-up filled %s", state.SessionID, *state.LastQuestionSlot)
			state.LastQuestionSlot = nil
		}
	}

	// Image classification. A rejected classification forces the
	// category question even if it was already asked once.
	forceAskCategory := false
	if len(image) > 0 {
		forceAskCategory = m.applyImage(ctx, state, userMessage, image)
	}

	// NLU extraction, only while slots remain open.
	if m.oracle != nil && m.hasOpenSlots(state) {
		if upd, _ := m.oracle.ExtractIntent(ctx, userMessage); upd != nil {
			mergeUpdate(state, upd)
		}
	}

	m.enrich(ctx, state)

	missing := m.missingSlots(state)
	if len(missing) > 0 {
		// Turn budget: summarize instead of asking further questions.
		if state.TurnCount >= m.turnBudget {
			logging.Dialog("session=%s turn budget reached, falling back", state.SessionID)
			return TurnResult{Reply: m.fallbackSummary(state, missing), Status: StatusNeedsInfo}
		}
		// Ask-next: first missing slot not yet asked.
		for _, slot := range missing {
			if !state.Asked(slot) || (forceAskCategory && slot == SlotCategory) {
				return m.ask(state, slot)
			}
		}
		return TurnResult{Reply: stallReply, Status: StatusNeedsInfo}
	}

	return m.respond(ctx, state)
}

// ask marks the slot asked, remembers it for follow-up parsing, and
// returns its canonical question.
func (m *Manager) ask(state *SessionState, slot Slot) TurnResult {
	state.MarkAsked(slot)
	s := slot
	state.LastQuestionSlot = &s
	return TurnResult{Reply: slot.Question(), Status: StatusNeedsInfo, NextQuestionSlot: &s}
}

// applyImage runs the classifier and adopts the result only if it
// passed the containment gate. Returns true when the classification was
// rejected and the category must be re-asked.
func (m *Manager) applyImage(ctx context.Context, state *SessionState, userMessage string, image []byte) bool {
	// A photo supplied while we wait on defect evidence is the evidence.
	if state.DefectEvidencePresent != nil && !*state.DefectEvidencePresent {
		state.DefectEvidencePresent = boolPtr(true)
	}
	if m.oracle == nil {
		return false
	}
	cls, _ := m.oracle.ClassifyImage(ctx, userMessage, image)
	if cls == nil {
		return state.Category == nil
	}
	state.Category = &cls.Category
	if state.ItemGuess == nil && cls.ItemNameGuess != "" {
		state.ItemGuess = &cls.ItemNameGuess
	}
	if state.Condition == nil && cls.Observations != "" {
		state.Condition = &cls.Observations
	}
	return false
}

// mergeUpdate adopts extracted slot candidates. Existing values are
// never overwritten: what the customer confirmed directly outranks
// what the oracle inferred.
func mergeUpdate(state *SessionState, upd *perception.NLUUpdate) {
	if state.Category == nil && upd.Category != nil {
		state.Category = upd.Category
	}
	if state.UserGoal == policy.IntentUnknown && upd.Intent != nil {
		state.UserGoal = policy.Intent(*upd.Intent)
	}
	if state.UserGoalSummary == "" && upd.GoalSummary != nil {
		state.UserGoalSummary = *upd.GoalSummary
	}
	if state.DaysSincePurchase == nil && upd.DaysSincePurchase != nil {
		state.DaysSincePurchase = upd.DaysSincePurchase
	}
	if state.PurchaseDateISO == nil && upd.PurchaseDateISO != nil {
		state.PurchaseDateISO = upd.PurchaseDateISO
	}
	if state.ItemOpened == nil && upd.ItemOpened != nil {
		state.ItemOpened = upd.ItemOpened
	}
	if state.RequestedDiscount == nil && upd.RequestedDiscount != nil {
		state.RequestedDiscount = upd.RequestedDiscount
	}
	if state.FurnitureAssembled == nil && upd.FurnitureAssembled != nil {
		state.FurnitureAssembled = upd.FurnitureAssembled
	}
	if state.ElectronicsDefectClaimed == nil && upd.ElectronicsDefectClaimed != nil {
		state.ElectronicsDefectClaimed = upd.ElectronicsDefectClaimed
	}
	if state.DefectEvidencePresent == nil && upd.DefectEvidencePresent != nil {
		state.DefectEvidencePresent = upd.DefectEvidencePresent
	}
	if state.ProductURL == nil && upd.ProductURL != nil {
		state.ProductURL = upd.ProductURL
	}
	if state.ProductID == nil && upd.ProductID != nil {
		state.ProductID = upd.ProductID
	}
	if state.PurchasePrice == nil && upd.PurchasePrice != nil {
		state.PurchasePrice = upd.PurchasePrice
	}
	if state.CustomerName == nil && upd.CustomerName != nil {
		state.CustomerName = upd.CustomerName
	}
	// The flag only ever latches on.
	if upd.EmergencyTrigger != nil && *upd.EmergencyTrigger {
		state.EmergencyTrigger = true
	}
}

// enrich derives slots from ones already collected: product id from a
// URL, purchase price from the price provider.
func (m *Manager) enrich(ctx context.Context, state *SessionState) {
	if state.ProductID == nil && state.ProductURL != nil {
		if asin := pricing.ExtractASIN(*state.ProductURL); asin != "" {
			state.ProductID = &asin
		}
	}
	if state.PurchasePrice == nil && state.ProductID != nil {
		if price, err := m.prices.GetPrice(ctx, *state.ProductID); err == nil && price != nil {
			state.PurchasePrice = price
		}
	}
}

// hasOpenSlots reports whether extraction could still contribute
// anything.
func (m *Manager) hasOpenSlots(state *SessionState) bool {
	return state.Category == nil ||
		state.UserGoal == policy.IntentUnknown ||
		state.DaysSincePurchase == nil ||
		state.ItemOpened == nil ||
		state.PurchasePrice == nil ||
		state.FurnitureAssembled == nil ||
		state.ElectronicsDefectClaimed == nil ||
		state.CustomerName == nil
}

// missingSlots walks askOrder and keeps the slots still required but
// unfilled.
func (m *Manager) missingSlots(state *SessionState) []Slot {
	var missing []Slot
	for _, slot := range askOrder {
		if m.slotRequired(state, slot) {
			missing = append(missing, slot)
		}
	}
	return missing
}

// slotRequired reports whether the slot is required and unfilled.
// Category and intent gate everything else: the conditional rules need
// both before they apply.
func (m *Manager) slotRequired(state *SessionState, slot Slot) bool {
	switch slot {
	case SlotCategory:
		return state.Category == nil
	case SlotIntent:
		return state.UserGoal == policy.IntentUnknown || state.UserGoal == ""
	}
	if state.Category == nil || state.UserGoal == policy.IntentUnknown || state.UserGoal == "" {
		return false
	}

	category := *state.Category
	covered := m.table.Covers(category)
	days := m.effectiveDays(state)

	switch slot {
	case SlotDaysSincePurchase:
		return covered && days == nil
	case SlotItemOpened:
		return covered && (state.UserGoal == policy.IntentRefund || state.UserGoal == policy.IntentReturn) &&
			state.ItemOpened == nil
	case SlotFurnitureAssembled:
		return category == "Furniture" && days != nil && *days <= furnitureWindowDays &&
			state.FurnitureAssembled == nil
	case SlotDefectClaimed:
		return category == "Electronics" && state.ElectronicsDefectClaimed == nil
	case SlotDefectEvidence:
		return category == "Electronics" && state.ElectronicsDefectClaimed != nil &&
			*state.ElectronicsDefectClaimed && state.DefectEvidencePresent == nil
	case SlotPurchasePrice:
		return covered && (state.UserGoal == policy.IntentRefund || state.UserGoal == policy.IntentDiscount) &&
			state.PurchasePrice == nil && state.ProductID == nil
	}
	// Fulfillment slots are collected by the approved-path sub-flow.
	return false
}

// respond runs the decision tree and composes the reply.
func (m *Manager) respond(ctx context.Context, state *SessionState) TurnResult {
	d := m.decide(state)
	switch d.kind {
	case decideApprove:
		out := policy.Outcome{
			Eligible: true,
			Outcome:  policy.OutcomeKind(state.UserGoal),
			Reason:   "Approved under store policy.",
		}
		state.LastPolicyOutcome = &out
		return m.composeApproved(state)

	case decideRetention:
		return m.composeRetention(state, d.reason)

	case decideAwaitEvidence:
		s := SlotDefectEvidence
		state.LastQuestionSlot = &s
		return TurnResult{Reply: evidenceRequest, Status: StatusAwaitingEvidence}

	case decideNeedsInfo:
		return TurnResult{
			Reply:  fmt.Sprintf("%s. %s", d.reason, SlotDaysSincePurchase.Question()),
			Status: StatusNeedsInfo,
		}
	}

	// Engine branch: the table decides.
	out := m.engineOutcome(state)
	switch out.Outcome {
	case policy.OutcomeNeedsInfo:
		return TurnResult{Reply: out.Reason, Status: StatusNeedsInfo}
	case policy.OutcomeNotEligible:
		return m.composeRetention(state, out.Reason)
	case policy.OutcomeDiscount:
		return TurnResult{Reply: m.renderOutcome(ctx, out), Status: StatusApproved}
	default:
		return m.composeApproved(state)
	}
}

// composeApproved runs the fulfillment sub-flow: collect name, address,
// and phone, then create the pickup request.
func (m *Manager) composeApproved(state *SessionState) TurnResult {
	for _, slot := range fulfillmentOrder {
		if m.fulfillmentFilled(state, slot) {
			continue
		}
		if !state.Asked(slot) {
			return m.ask(state, slot)
		}
		return TurnResult{Reply: stallReply, Status: StatusNeedsInfo}
	}
	if state.TicketNumber == nil {
		ticket := fmt.Sprintf("%08d", rand.Intn(100000000))
		state.TicketNumber = &ticket
		logging.Dialog("session=%s ticket assigned: %s", state.SessionID, ticket)
	}
	return TurnResult{
		Reply:  fmt.Sprintf("Request #%s created. Courier will contact you.", *state.TicketNumber),
		Status: StatusApproved,
	}
}

func (m *Manager) fulfillmentFilled(state *SessionState, slot Slot) bool {
	switch slot {
	case SlotCustomerName:
		return state.CustomerName != nil
	case SlotPickupAddress:
		return state.PickupAddress != nil
	case SlotCustomerPhone:
		return state.CustomerPhone != nil
	}
	return true
}

// composeRetention advances the goodwill ladder and replies with the
// step line. An emergency snaps straight to the final step.
func (m *Manager) composeRetention(state *SessionState, reason string) TurnResult {
	if state.EmergencyTrigger {
		state.RetentionStep = RetentionMaxStep
	} else if state.RetentionStep < RetentionMaxStep {
		state.RetentionStep++
	}
	logging.Dialog("session=%s retention step=%d discount=%.0f",
		state.SessionID, state.RetentionStep, RetentionDiscount(state.RetentionStep))
	return TurnResult{
		Reply:  retentionReply(state.RetentionStep, reason),
		Status: StatusRetention,
	}
}

// renderOutcome turns an engine outcome into reply text. The outcome
// JSON goes to the oracle as immutable context; if the oracle is
// unavailable or silent, the deterministic text stands.
func (m *Manager) renderOutcome(ctx context.Context, out policy.Outcome) string {
	fallback := deterministicReply(out)
	if m.oracle == nil {
		return fallback
	}
	blob, err := json.Marshal(out)
	if err != nil {
		return fallback
	}
	prompt := fmt.Sprintf(
		"Policy decision (immutable): %s\nWrite one short, polite reply to the customer that states exactly this decision.",
		blob)
	text, err := m.oracle.FreeformReply(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		return fallback
	}
	return text
}

func deterministicReply(out policy.Outcome) string {
	if out.Outcome == policy.OutcomeDiscount {
		if out.RefusedExcessDiscount {
			return fmt.Sprintf("We can't go beyond our policy cap, but we can offer you a %.0f%% discount on this purchase.",
				out.DiscountPercent)
		}
		return fmt.Sprintf("We can offer you a %.0f%% discount on this purchase.", out.DiscountPercent)
	}
	return out.Reason
}

// fallbackSummary is the reply once the turn budget is exhausted: a
// recap of what is known and the single most important missing detail.
func (m *Manager) fallbackSummary(state *SessionState, missing []Slot) string {
	var known []string
	if state.Category != nil {
		known = append(known, fmt.Sprintf("category %s", *state.Category))
	}
	if state.UserGoal != policy.IntentUnknown && state.UserGoal != "" {
		known = append(known, fmt.Sprintf("you are looking for a %s", state.UserGoal))
	}
	if days := m.effectiveDays(state); days != nil {
		known = append(known, fmt.Sprintf("purchased %d days ago", *days))
	}
	if state.ItemOpened != nil {
		if *state.ItemOpened {
			known = append(known, "the item is opened")
		} else {
			known = append(known, "the item is unopened")
		}
	}

	recap := "I still don't have enough details about your request."
	if len(known) > 0 {
		recap = fmt.Sprintf("So far I have: %s.", strings.Join(known, ", "))
	}
	return fmt.Sprintf("%s To proceed I still need %s.", recap, missingDetail(missing[0]))
}

var missingDetails = map[Slot]string{
	SlotCategory:           "the product category",
	SlotIntent:             "what outcome you are looking for",
	SlotDaysSincePurchase:  "how many days ago you purchased the item",
	SlotItemOpened:         "whether the item has been opened",
	SlotFurnitureAssembled: "whether the furniture has been assembled",
	SlotDefectClaimed:      "whether the item is defective",
	SlotDefectEvidence:     "evidence of the defect",
	SlotPurchasePrice:      "the purchase price or a product link",
	SlotCustomerName:       "your full name",
	SlotPickupAddress:      "the pickup address",
	SlotCustomerPhone:      "a contact phone number",
}

func missingDetail(slot Slot) string {
	if d, ok := missingDetails[slot]; ok {
		return d
	}
	return string(slot)
}
