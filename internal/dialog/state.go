package dialog

import (
	"encoding/json"

	"shopagent/internal/policy"
)

// Address is a structured pickup address. Raw always carries the text
// exactly as the customer gave it.
type Address struct {
	Raw       string `json:"raw"`
	City      string `json:"city,omitempty"`
	Street    string `json:"street,omitempty"`
	House     string `json:"house,omitempty"`
	Apartment string `json:"apartment,omitempty"`
}

// SessionState is the durable per-conversation record. It is the sole
// mutable object in the core: the store owns it, the manager borrows it
// for exactly one turn at a time, and writes are committed only at
// end-of-turn. Pointer fields are tri-state: nil means "not collected".
type SessionState struct {
	SessionID string `json:"session_id"`

	UserGoal        policy.Intent `json:"user_goal"`
	UserGoalSummary string        `json:"user_goal_summary,omitempty"`

	Category      *string  `json:"category,omitempty"`
	ItemGuess     *string  `json:"item_guess,omitempty"`
	Condition     *string  `json:"condition,omitempty"`
	ItemOpened    *bool    `json:"item_opened,omitempty"`
	PurchasePrice *float64 `json:"purchase_price,omitempty"`
	ProductID     *string  `json:"product_id,omitempty"`
	ProductURL    *string  `json:"product_url,omitempty"`

	DaysSincePurchase *int    `json:"days_since_purchase,omitempty"`
	PurchaseDateISO   *string `json:"purchase_date_iso,omitempty"`

	RequestedDiscount *float64 `json:"requested_discount,omitempty"`

	FurnitureAssembled       *bool `json:"furniture_assembled,omitempty"`
	ElectronicsDefectClaimed *bool `json:"electronics_defect_claimed,omitempty"`
	DefectEvidencePresent    *bool `json:"defect_evidence_present,omitempty"`

	CustomerName  *string  `json:"customer_name,omitempty"`
	CustomerPhone *string  `json:"customer_phone,omitempty"`
	PickupAddress *Address `json:"pickup_address,omitempty"`

	TurnCount         int             `json:"turn_count"`
	AskedSlots        []Slot          `json:"asked_slots"`
	LastQuestionSlot  *Slot           `json:"last_question_slot,omitempty"`
	EmergencyTrigger  bool            `json:"emergency_trigger"`
	RetentionStep     int             `json:"retention_step"`
	LastPolicyOutcome *policy.Outcome `json:"last_policy_outcome,omitempty"`
	TicketNumber      *string         `json:"ticket_number,omitempty"`
}

// NewSessionState returns the empty state created on a session's first
// message.
func NewSessionState(sessionID string) *SessionState {
	return &SessionState{
		SessionID:  sessionID,
		UserGoal:   policy.IntentUnknown,
		AskedSlots: []Slot{},
	}
}

// Asked reports whether the slot has ever been asked in this session.
func (s *SessionState) Asked(slot Slot) bool {
	for _, a := range s.AskedSlots {
		if a == slot {
			return true
		}
	}
	return false
}

// MarkAsked records that the slot has been asked. Asked slots are a
// set: marking twice is a no-op, so the list never grows past one entry
// per slot.
func (s *SessionState) MarkAsked(slot Slot) {
	if !s.Asked(slot) {
		s.AskedSlots = append(s.AskedSlots, slot)
	}
}

// Marshal serializes the state for persistence.
func (s *SessionState) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSessionState restores a persisted state blob. Unknown keys
// are ignored and missing keys take their zero defaults, so older blobs
// keep loading as the schema grows.
func UnmarshalSessionState(data []byte) (*SessionState, error) {
	var s SessionState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.UserGoal == "" {
		s.UserGoal = policy.IntentUnknown
	}
	if s.AskedSlots == nil {
		s.AskedSlots = []Slot{}
	}
	return &s, nil
}
