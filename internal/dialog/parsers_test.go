package dialog

import (
	"testing"

	"shopagent/internal/policy"
)

func testTable(t *testing.T) *policy.Table {
	t.Helper()
	table, err := policy.Load("../../policies.json")
	if err != nil {
		t.Fatalf("failed to load policy table: %v", err)
	}
	return table
}

func TestParseDays(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"4 days", 4, true},
		{"it was 12 days ago", 12, true},
		{"0", 0, true},
		{"bought it yesterday", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got := ParseDays(tc.in)
		if tc.ok != (got != nil) {
			t.Errorf("ParseDays(%q) = %v, want ok=%v", tc.in, got, tc.ok)
			continue
		}
		if got != nil && *got != tc.want {
			t.Errorf("ParseDays(%q) = %d, want %d", tc.in, *got, tc.want)
		}
	}
}

func TestParseYesNo(t *testing.T) {
	cases := []struct {
		in   string
		want *bool
	}{
		{"it's still sealed", boolPtr(false)},
		{"unopened", boolPtr(false)},
		{"not opened yet", boolPtr(false)},
		{"no", boolPtr(false)},
		{"I opened it", boolPtr(true)},
		{"yes", boolPtr(true)},
		{"maybe", nil},
		{"I don't remember", nil},
	}
	for _, tc := range cases {
		got := ParseYesNo(tc.in)
		if !equalBoolPtr(got, tc.want) {
			t.Errorf("ParseYesNo(%q) = %v, want %v", tc.in, fmtBoolPtr(got), fmtBoolPtr(tc.want))
		}
	}
}

func TestParseAssembled(t *testing.T) {
	cases := []struct {
		in   string
		want *bool
	}{
		{"it's already assembled", boolPtr(true)},
		{"not assembled", boolPtr(false)},
		{"still unassembled", boolPtr(false)},
		{"still in the box", boolPtr(false)},
		{"yes", boolPtr(true)},
		{"no", boolPtr(false)},
		{"what do you mean", nil},
	}
	for _, tc := range cases {
		got := ParseAssembled(tc.in)
		if !equalBoolPtr(got, tc.want) {
			t.Errorf("ParseAssembled(%q) = %v, want %v", tc.in, fmtBoolPtr(got), fmtBoolPtr(tc.want))
		}
	}
}

func TestParseDefectClaimed(t *testing.T) {
	cases := []struct {
		in   string
		want *bool
	}{
		{"it's broken", boolPtr(true)},
		{"the screen doesn't work", boolPtr(true)},
		{"it stopped working", boolPtr(true)},
		{"I changed my mind", boolPtr(false)},
		{"I just don't like it", boolPtr(false)},
		{"hello", nil},
	}
	for _, tc := range cases {
		got := ParseDefectClaimed(tc.in)
		if !equalBoolPtr(got, tc.want) {
			t.Errorf("ParseDefectClaimed(%q) = %v, want %v", tc.in, fmtBoolPtr(got), fmtBoolPtr(tc.want))
		}
	}
}

func TestParseEvidence(t *testing.T) {
	cases := []struct {
		in   string
		want *bool
	}{
		{"yes", boolPtr(true)},
		{"no", boolPtr(false)},
		{"it's broken", boolPtr(true)},
		{"it stopped working after two days", boolPtr(true)},
		{"the screen flickers whenever it charges", boolPtr(true)},
		{"maybe", nil},
		{"hm", nil},
	}
	for _, tc := range cases {
		got := ParseEvidence(tc.in)
		if !equalBoolPtr(got, tc.want) {
			t.Errorf("ParseEvidence(%q) = %v, want %v", tc.in, fmtBoolPtr(got), fmtBoolPtr(tc.want))
		}
	}
}

func TestParseIntent(t *testing.T) {
	table := testTable(t)
	cases := []struct {
		in   string
		want policy.Intent
		ok   bool
	}{
		{"I want a refund", policy.IntentRefund, true},
		{"it arrived broken", policy.IntentRefund, true},
		{"I want to return it", policy.IntentReturn, true},
		{"I changed my mind about this", policy.IntentReturn, true},
		{"can I exchange it", policy.IntentReplacement, true},
		{"please replace it", policy.IntentReplacement, true},
		{"give me a discount", policy.IntentDiscount, true},
		{"hello there", policy.IntentUnknown, false},
	}
	for _, tc := range cases {
		got := ParseIntent(table, tc.in)
		if tc.ok != (got != nil) {
			t.Errorf("ParseIntent(%q) = %v, want ok=%v", tc.in, got, tc.ok)
			continue
		}
		if got != nil && *got != tc.want {
			t.Errorf("ParseIntent(%q) = %s, want %s", tc.in, *got, tc.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	table := testTable(t)
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"it's a laptop", "Electronics", true},
		{"my phone screen", "Phones", true},
		{"the headphones I bought", "Headphones & Audio", true},
		{"a sofa, so furniture", "Furniture", true},
		{"FOOD", "Food", true},
		{"a painting", "Art", true},
		{"no idea", "", false},
		// "started" must not match the Art category.
		{"it started beeping", "", false},
	}
	for _, tc := range cases {
		got := ParseCategory(table, tc.in)
		if tc.ok != (got != nil) {
			t.Errorf("ParseCategory(%q) = %v, want ok=%v", tc.in, got, tc.ok)
			continue
		}
		if got != nil && *got != tc.want {
			t.Errorf("ParseCategory(%q) = %s, want %s", tc.in, *got, tc.want)
		}
	}
}

func TestParseCategoryPhoneNotShadowedByHeadphones(t *testing.T) {
	table := testTable(t)
	got := ParseCategory(table, "my headphones broke")
	if got == nil || *got != "Headphones & Audio" {
		t.Fatalf("ParseCategory = %v, want Headphones & Audio", got)
	}
}

func TestParsePhone(t *testing.T) {
	if got := ParsePhone("+1 (555) 123-4567"); got == nil || *got != "15551234567" {
		t.Errorf("ParsePhone = %v", got)
	}
	if got := ParsePhone("call me"); got != nil {
		t.Errorf("expected nil for non-phone input, got %q", *got)
	}
	if got := ParsePhone("12345"); got != nil {
		t.Errorf("expected nil for short number, got %q", *got)
	}
}

func TestParseAddress(t *testing.T) {
	addr := ParseAddress("Springfield, Main Street, 12, apt 4")
	if addr == nil {
		t.Fatal("expected address")
	}
	if addr.City != "Springfield" || addr.Street != "Main Street" || addr.House != "12" || addr.Apartment != "apt 4" {
		t.Errorf("unexpected parts: %+v", addr)
	}
	if addr.Raw != "Springfield, Main Street, 12, apt 4" {
		t.Errorf("raw not preserved: %q", addr.Raw)
	}
	if ParseAddress("Springfield, Main Street") != nil {
		t.Error("two parts must be rejected")
	}
}

func TestParseName(t *testing.T) {
	if got := ParseName("  John Smith "); got == nil || *got != "John Smith" {
		t.Errorf("ParseName = %v", got)
	}
	if ParseName("John") != nil {
		t.Error("single token must be rejected")
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"I paid 129.99", 129.99, true},
		{"1,299.50 dollars", 1299.50, true},
		{"300", 300, true},
		{"no idea", 0, false},
	}
	for _, tc := range cases {
		got := ParsePrice(tc.in)
		if tc.ok != (got != nil) {
			t.Errorf("ParsePrice(%q) = %v, want ok=%v", tc.in, got, tc.ok)
			continue
		}
		if got != nil && *got != tc.want {
			t.Errorf("ParsePrice(%q) = %v, want %v", tc.in, *got, tc.want)
		}
	}
}

func TestApplyFollowUpPriceAcceptsProductID(t *testing.T) {
	table := testTable(t)
	state := NewSessionState("s")
	if !applyFollowUp(table, state, SlotPurchasePrice, "https://www.amazon.com/dp/B08N5WRWNW") {
		t.Fatal("product link should satisfy the price question")
	}
	if state.ProductID == nil || *state.ProductID != "B08N5WRWNW" {
		t.Errorf("product id = %v", state.ProductID)
	}
	if state.PurchasePrice != nil {
		t.Error("price must stay unknown until looked up")
	}
}

func equalBoolPtr(a, b *bool) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func fmtBoolPtr(v *bool) string {
	if v == nil {
		return "nil"
	}
	if *v {
		return "true"
	}
	return "false"
}
