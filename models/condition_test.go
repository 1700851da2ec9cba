package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		text string
		want ConditionTag
	}{
		{"Non-refundable", ConditionNonRefundable},
		{"Free cancellation before 12 May", ConditionFreeCancellation},
		{"Refundable · RM 900 total", ConditionFreeCancellation},
		{"No prepayment needed – pay at the property", ConditionPayLater},
		{"Flexible to reschedule", ConditionFlexible},
		{"Breakfast included", ConditionStandard},
		{"", ConditionStandard},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ParseCondition(tc.text), tc.text)
	}
}

func TestDetectSite(t *testing.T) {
	assert.Equal(t, SiteAirbnb, DetectSite("https://www.airbnb.com/rooms/1"))
	assert.Equal(t, SiteAgoda, DetectSite("https://www.agoda.com/x/hotel/kl.html"))
	assert.Equal(t, SiteBooking, DetectSite("https://www.booking.com/hotel/my/x.html"))
	assert.Equal(t, SiteBooking, DetectSite("https://example.com"))

	_, err := ParseSite("expedia")
	assert.Error(t, err)
	site, err := ParseSite(" Agoda ")
	assert.NoError(t, err)
	assert.Equal(t, SiteAgoda, site)
}
