package models

import (
	"fmt"
	"strings"
)

// SiteID identifies one of the supported booking sites
type SiteID string

const (
	SiteBooking SiteID = "booking"
	SiteAirbnb  SiteID = "airbnb"
	SiteAgoda   SiteID = "agoda"
)

// AllSites lists every supported site in display order
var AllSites = []SiteID{SiteBooking, SiteAgoda, SiteAirbnb}

// DetectSite guesses the site from a listing URL. Anything that is not
// Airbnb or Agoda is treated as Booking.
func DetectSite(rawURL string) SiteID {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "airbnb"):
		return SiteAirbnb
	case strings.Contains(lower, "agoda"):
		return SiteAgoda
	default:
		return SiteBooking
	}
}

// ParseSite validates a site name coming from user input
func ParseSite(s string) (SiteID, error) {
	site := SiteID(strings.ToLower(strings.TrimSpace(s)))
	if !site.Valid() {
		return "", fmt.Errorf("unknown site %q", s)
	}
	return site, nil
}

func (s SiteID) Valid() bool {
	switch s {
	case SiteBooking, SiteAirbnb, SiteAgoda:
		return true
	}
	return false
}

// Title returns the human-readable site name
func (s SiteID) Title() string {
	switch s {
	case SiteBooking:
		return "Booking.com"
	case SiteAirbnb:
		return "Airbnb"
	case SiteAgoda:
		return "Agoda"
	}
	return string(s)
}
