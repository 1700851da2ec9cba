package models

import "strings"

// ConditionTag is the normalized booking condition attached to a room offer
type ConditionTag string

const (
	ConditionStandard         ConditionTag = "standard"
	ConditionFreeCancellation ConditionTag = "free_cancellation"
	ConditionNonRefundable    ConditionTag = "non_refundable"
	ConditionPayLater         ConditionTag = "pay_later"
	ConditionFlexible         ConditionTag = "flexible"
)

// conditionLexicon is checked in order; "non-refundable" must win over "refundable".
var conditionLexicon = []struct {
	tag      ConditionTag
	keywords []string
}{
	{ConditionNonRefundable, []string{"non-refundable", "non refundable", "nonrefundable", "no refund"}},
	{ConditionFreeCancellation, []string{"free cancellation", "free cancelation", "free cancel", "refundable"}},
	{ConditionPayLater, []string{"pay later", "pay at the property", "pay at property", "pay at the hotel", "pay at hotel", "no prepayment"}},
	{ConditionFlexible, []string{"flexible", "reschedul"}},
}

// ParseCondition maps free text from a rate container to a ConditionTag.
// Unrecognized text is Standard.
func ParseCondition(text string) ConditionTag {
	lower := strings.ToLower(text)
	if lower == "" {
		return ConditionStandard
	}
	for _, entry := range conditionLexicon {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.tag
			}
		}
	}
	return ConditionStandard
}

func (c ConditionTag) Valid() bool {
	switch c {
	case ConditionStandard, ConditionFreeCancellation, ConditionNonRefundable, ConditionPayLater, ConditionFlexible:
		return true
	}
	return false
}

// Label returns the text shown to users for the tag
func (c ConditionTag) Label() string {
	switch c {
	case ConditionFreeCancellation:
		return "Free cancellation"
	case ConditionNonRefundable:
		return "Non-refundable"
	case ConditionPayLater:
		return "Pay later"
	case ConditionFlexible:
		return "Flexible"
	}
	return "Standard Rate"
}
