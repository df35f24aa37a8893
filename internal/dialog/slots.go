// Package dialog implements the per-turn conversation state machine:
// follow-up parsing, slot filling, the ask-next rule, the decision tree,
// and the retention ladder. The policy engine makes every decision; the
// dialog manager only collects the inputs and renders the result.
package dialog

// Slot names one piece of structured information the agent collects.
// The string value doubles as the JSON key in persisted session state.
type Slot string

const (
	SlotCategory           Slot = "category"
	SlotIntent             Slot = "intent"
	SlotDaysSincePurchase  Slot = "days_since_purchase"
	SlotItemOpened         Slot = "item_opened"
	SlotFurnitureAssembled Slot = "furniture_assembled"
	SlotDefectClaimed      Slot = "electronics_defect_claimed"
	SlotDefectEvidence     Slot = "defect_evidence_present"
	SlotPurchasePrice      Slot = "purchase_price"
	SlotCustomerName       Slot = "customer_name"
	SlotPickupAddress      Slot = "pickup_address"
	SlotCustomerPhone      Slot = "customer_phone"
)

// askOrder is the priority in which missing slots are asked about. The
// ask-next rule picks the first missing slot not yet asked.
var askOrder = []Slot{
	SlotCategory,
	SlotIntent,
	SlotDaysSincePurchase,
	SlotItemOpened,
	SlotFurnitureAssembled,
	SlotDefectClaimed,
	SlotDefectEvidence,
	SlotPurchasePrice,
	SlotCustomerName,
	SlotPickupAddress,
	SlotCustomerPhone,
}

// fulfillmentOrder is the data-collection sub-flow run after approval.
var fulfillmentOrder = []Slot{
	SlotCustomerName,
	SlotPickupAddress,
	SlotCustomerPhone,
}

var slotQuestions = map[Slot]string{
	SlotCategory:           "Which product category is this about — electronics, headphones, a phone, furniture, food, or art?",
	SlotIntent:             "What would you like to do — get a refund, return the item, have it replaced, or receive a discount?",
	SlotDaysSincePurchase:  "How many days ago did you purchase the item?",
	SlotItemOpened:         "Have you opened the item, or is it still sealed?",
	SlotFurnitureAssembled: "Has the furniture been assembled yet?",
	SlotDefectClaimed:      "Is the item defective, or did you change your mind about it?",
	SlotDefectEvidence:     "Please share a photo, a video, or a short description of the symptoms so we can verify the defect.",
	SlotPurchasePrice:      "What price did you pay for the item? A product link or product ID also works.",
	SlotCustomerName:       "May I have your full name?",
	SlotPickupAddress:      "What is the pickup address? Please include city, street, and house number.",
	SlotCustomerPhone:      "What phone number can the courier reach you on?",
}

// Question returns the canonical question text for the slot.
func (s Slot) Question() string {
	return slotQuestions[s]
}

// Status classifies the dialog state a turn ends in.
type Status string

const (
	StatusNeedsInfo        Status = "needs_info"
	StatusApproved         Status = "approved"
	StatusRetention        Status = "retention"
	StatusAwaitingEvidence Status = "awaiting_evidence"
	StatusUnknown          Status = "unknown"
)

// TurnResult is what the transport layer gets back from one turn.
// NextQuestionSlot is non-nil iff a question was asked this turn.
type TurnResult struct {
	Reply            string `json:"reply"`
	Status           Status `json:"status"`
	NextQuestionSlot *Slot  `json:"next_question_slot,omitempty"`
}
