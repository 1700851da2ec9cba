package services

import (
	"net/url"
	"strings"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/utils"
)

// Normalizer turns raw strategy output into canonical HotelSnapshots
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a new Normalizer
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Canonicalize reduces a listing URL to lowercase origin + path without
// trailing slashes. Unparseable input is only lowercased.
func Canonicalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	scheme := strings.ToLower(u.Scheme)
	host := u.Host
	if port := u.Port(); (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		host = u.Hostname()
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
	}
	canonical := scheme + "://" + host + u.EscapedPath()
	return strings.ToLower(strings.TrimRight(canonical, "/"))
}

// Normalize parses every raw room. Rooms whose price does not parse are
// dropped, as are exact repeats of a label and amount.
func (n *Normalizer) Normalize(res models.ExtractionResult) models.HotelSnapshot {
	snap := models.HotelSnapshot{
		Site:         res.Site,
		ListingName:  utils.CollapseSpace(res.Name),
		CanonicalURL: Canonicalize(res.SourceURL),
		SourceURL:    res.SourceURL,
		Method:       res.Method,
		CapturedAt:   res.CapturedAt,
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now()
	}

	seen := utils.NewSeenSet()
	for _, raw := range res.Rooms {
		label := utils.CollapseSpace(raw.Label)
		if label == "" {
			n.logger.Debug("Skipping room with empty label on %s", res.Site)
			continue
		}
		price, ok := models.ParseMoney(raw.PriceText, res.Currency)
		if !ok {
			n.logger.Debug("Skipping room %q: unparseable price %q", label, raw.PriceText)
			continue
		}
		if !seen.Add(label + "|" + price.Amount.String()) {
			continue
		}

		conditionText := utils.CollapseSpace(raw.ConditionText)
		snap.Rooms = append(snap.Rooms, models.RoomOffer{
			Label:         label,
			Price:         price,
			Condition:     models.ParseCondition(conditionText),
			ConditionText: conditionText,
		})
	}

	n.logger.Debug("Normalized %d of %d rooms for %s", len(snap.Rooms), len(res.Rooms), snap.CanonicalURL)
	return snap
}
