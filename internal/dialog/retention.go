package dialog

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// RetentionMaxStep is the top rung of the retention ladder.
const RetentionMaxStep = 4

// MaxRetentionDiscount is the absolute ceiling on goodwill discounts.
// No amount of rhetoric, shouting, or legal threats moves it.
const MaxRetentionDiscount = 20.0

// emergencyKeywords are the legal/PR threat phrases that snap the
// retention ladder to its final step.
var emergencyKeywords = []string{
	"lawsuit",
	"sue",
	"lawyer",
	"attorney",
	"court",
	"reviews",
	"consumer protection",
	"press",
}

var emergencyWordPattern = buildKeywordPattern(emergencyKeywords)

func buildKeywordPattern(keywords []string) *regexp.Regexp {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
}

// DetectEmergency reports whether the message is an escalation signal:
// sustained ALL-CAPS shouting or a legal/PR threat keyword.
func DetectEmergency(message string) bool {
	if emergencyWordPattern.MatchString(strings.ToLower(message)) {
		return true
	}
	return isShouting(message)
}

// isShouting requires at least one letter, no lowercase letters, and
// more than eight characters overall.
func isShouting(message string) bool {
	trimmed := strings.TrimSpace(message)
	if len(trimmed) <= 8 {
		return false
	}
	hasLetter := false
	for _, r := range trimmed {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// retentionRung is one step of the goodwill ladder.
type retentionRung struct {
	Discount float64
	Line     string
}

// retentionLadder is indexed by retention step 1..4. Discounts are
// fixed per rung; step 4 carries the absolute cap.
var retentionLadder = [RetentionMaxStep + 1]retentionRung{
	1: {Discount: 0, Line: "I'm truly sorry about the inconvenience."},
	2: {Discount: 6, Line: "As a goodwill gesture, I can offer you a 6% coupon for your next order."},
	3: {Discount: 11, Line: "I checked with my manager and we can offer you an 11% discount."},
	4: {Discount: 20, Line: "This is the final option available to me: a 20% discount on your purchase."},
}

// RetentionDiscount returns the goodwill discount for a ladder step.
// Step 0 means retention has not been entered.
func RetentionDiscount(step int) float64 {
	if step < 1 {
		return 0
	}
	if step > RetentionMaxStep {
		step = RetentionMaxStep
	}
	return retentionLadder[step].Discount
}

// retentionReply composes the reply for one retention turn: the refusal
// reason followed by the step-appropriate goodwill line.
func retentionReply(step int, reason string) string {
	if step < 1 {
		step = 1
	}
	if step > RetentionMaxStep {
		step = RetentionMaxStep
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return retentionLadder[step].Line
	}
	return fmt.Sprintf("%s %s", reason, retentionLadder[step].Line)
}
