package dialog

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"shopagent/internal/policy"
	"shopagent/internal/pricing"
)

// Slot parsers interpret a direct answer to the question just asked.
// They are pure and never fail loudly: an answer that does not match
// leaves the slot unfilled and the dialog carries on.

var (
	intPattern   = regexp.MustCompile(`\d+`)
	pricePattern = regexp.MustCompile(`\d+(?:\.\d{1,2})?`)
	digitPattern = regexp.MustCompile(`\D`)
	yesPattern   = regexp.MustCompile(`\b(yes|yeah|yep|sure)\b`)
	noPattern    = regexp.MustCompile(`\b(no|nope)\b`)
)

// ParseDays reads the first integer in the message as days since
// purchase.
func ParseDays(text string) *int {
	m := intPattern.FindString(text)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// ParseYesNo maps an opened/sealed style answer to a boolean. Negative
// phrases are checked first so "not opened" and "unopened" are never
// mistaken for "opened".
func ParseYesNo(text string) *bool {
	s := strings.ToLower(text)
	for _, phrase := range []string{"unopened", "not opened", "never opened", "sealed", "still in the box"} {
		if strings.Contains(s, phrase) {
			return boolPtr(false)
		}
	}
	if noPattern.MatchString(s) {
		return boolPtr(false)
	}
	if strings.Contains(s, "opened") || strings.Contains(s, "open") {
		return boolPtr(true)
	}
	if yesPattern.MatchString(s) {
		return boolPtr(true)
	}
	return nil
}

// ParseAssembled maps an assembled/unassembled answer to a boolean.
func ParseAssembled(text string) *bool {
	s := strings.ToLower(text)
	for _, phrase := range []string{"not assembled", "unassembled", "disassembled", "still in the box", "flat-pack", "flat pack"} {
		if strings.Contains(s, phrase) {
			return boolPtr(false)
		}
	}
	if strings.Contains(s, "assembled") {
		return boolPtr(true)
	}
	if yesPattern.MatchString(s) {
		return boolPtr(true)
	}
	if noPattern.MatchString(s) {
		return boolPtr(false)
	}
	return nil
}

// ParseDefectClaimed maps a defect/changed-my-mind answer to a boolean.
func ParseDefectClaimed(text string) *bool {
	s := strings.ToLower(text)
	for _, phrase := range []string{"defect", "broken", "doesn't work", "does not work", "not working", "stopped working", "faulty", "dead on arrival"} {
		if strings.Contains(s, phrase) {
			return boolPtr(true)
		}
	}
	for _, phrase := range []string{"changed my mind", "change my mind", "don't like", "do not like", "didn't like", "no longer need", "don't need"} {
		if strings.Contains(s, phrase) {
			return boolPtr(false)
		}
	}
	return nil
}

// intentKeywords maps surface phrases to canonical intents. Ordered so
// the more specific phrases win over bare keywords.
var intentKeywords = []struct {
	phrase string
	intent policy.Intent
}{
	{"arrived broken", policy.IntentRefund},
	{"broken", policy.IntentRefund},
	{"defective", policy.IntentRefund},
	{"money back", policy.IntentRefund},
	{"refund", policy.IntentRefund},
	{"changed my mind", policy.IntentReturn},
	{"don't like", policy.IntentReturn},
	{"do not like", policy.IntentReturn},
	{"didn't like", policy.IntentReturn},
	{"not like", policy.IntentReturn},
	{"send it back", policy.IntentReturn},
	{"return", policy.IntentReturn},
	{"replacement", policy.IntentReplacement},
	{"replace", policy.IntentReplacement},
	{"exchange", policy.IntentReplacement},
	{"discount", policy.IntentDiscount},
	{"coupon", policy.IntentDiscount},
	{"money off", policy.IntentDiscount},
}

// ParseIntent matches intent keywords, falling back to the table's
// intent alias map for legacy spellings.
func ParseIntent(table *policy.Table, text string) *policy.Intent {
	s := strings.ToLower(text)
	for _, kw := range intentKeywords {
		if strings.Contains(s, kw.phrase) {
			intent := kw.intent
			return &intent
		}
	}
	for alias := range table.IntentAliases {
		if strings.Contains(s, strings.ToLower(alias)) {
			if intent, ok := table.CanonicalIntent(alias); ok {
				return &intent
			}
		}
	}
	return nil
}

// ParseCategory matches category names and aliases as whole words.
// Candidates are tried longest first so "headphones" is never shadowed
// by "phone".
func ParseCategory(table *policy.Table, text string) *string {
	s := strings.ToLower(text)

	candidates := make([]string, 0, len(table.CategoryAliases))
	for _, name := range table.DeclaredCategories() {
		candidates = append(candidates, name)
	}
	for alias := range table.CategoryAliases {
		candidates = append(candidates, alias)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) > len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})

	for _, candidate := range candidates {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(candidate)) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(s) {
			if canonical, ok := table.CanonicalCategory(candidate); ok {
				return &canonical
			}
		}
	}
	return nil
}

// ParsePhone strips everything but digits and accepts at least ten of
// them.
func ParsePhone(text string) *string {
	digits := digitPattern.ReplaceAllString(text, "")
	if len(digits) < 10 {
		return nil
	}
	return &digits
}

// ParseAddress splits a comma-separated address into city, street,
// house, and optional apartment. Fewer than three parts is rejected.
func ParseAddress(text string) *Address {
	raw := strings.TrimSpace(text)
	parts := strings.Split(raw, ",")
	if len(parts) < 3 {
		return nil
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	addr := &Address{
		Raw:    raw,
		City:   parts[0],
		Street: parts[1],
		House:  parts[2],
	}
	if len(parts) > 3 {
		addr.Apartment = parts[3]
	}
	return addr
}

// ParseName accepts at least two whitespace-separated tokens.
func ParseName(text string) *string {
	name := strings.TrimSpace(text)
	if len(strings.Fields(name)) < 2 {
		return nil
	}
	return &name
}

// ParsePrice reads the first decimal number, commas stripped.
func ParsePrice(text string) *float64 {
	s := strings.ReplaceAll(text, ",", "")
	m := pricePattern.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// ParseEvidence interprets the answer to the evidence request. The
// question invites a photo, a video, or a symptom description, so a
// defect phrase or a description of a few words counts alongside a
// plain yes/no.
func ParseEvidence(text string) *bool {
	if v := ParseDefectClaimed(text); v != nil && *v {
		return boolPtr(true)
	}
	if v := ParseYesNo(text); v != nil {
		return v
	}
	if len(strings.Fields(text)) >= 4 {
		return boolPtr(true)
	}
	return nil
}

// applyFollowUp runs the parser matching the slot the agent just asked
// about and assigns the value on success.
func applyFollowUp(table *policy.Table, state *SessionState, slot Slot, message string) bool {
	switch slot {
	case SlotCategory:
		if v := ParseCategory(table, message); v != nil {
			state.Category = v
			return true
		}
	case SlotIntent:
		if v := ParseIntent(table, message); v != nil {
			state.UserGoal = *v
			return true
		}
	case SlotDaysSincePurchase:
		if v := ParseDays(message); v != nil {
			state.DaysSincePurchase = v
			return true
		}
	case SlotItemOpened:
		if v := ParseYesNo(message); v != nil {
			state.ItemOpened = v
			return true
		}
	case SlotFurnitureAssembled:
		if v := ParseAssembled(message); v != nil {
			state.FurnitureAssembled = v
			return true
		}
	case SlotDefectClaimed:
		if v := ParseDefectClaimed(message); v != nil {
			state.ElectronicsDefectClaimed = v
			return true
		}
	case SlotDefectEvidence:
		if v := ParseEvidence(message); v != nil {
			state.DefectEvidencePresent = v
			return true
		}
	case SlotPurchasePrice:
		// The answer may be a price, or a product link/ID we can
		// price-look-up later.
		if v := ParsePrice(message); v != nil {
			state.PurchasePrice = v
			return true
		}
		if asin := pricing.ExtractASIN(message); asin != "" {
			state.ProductID = &asin
			return true
		}
	case SlotCustomerName:
		if v := ParseName(message); v != nil {
			state.CustomerName = v
			return true
		}
	case SlotPickupAddress:
		if v := ParseAddress(message); v != nil {
			state.PickupAddress = v
			return true
		}
	case SlotCustomerPhone:
		if v := ParsePhone(message); v != nil {
			state.CustomerPhone = v
			return true
		}
	}
	return false
}

func boolPtr(v bool) *bool { return &v }
