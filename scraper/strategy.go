package scraper

import (
	"context"
	"errors"
	"net/url"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/utils"

	"github.com/PuerkitoBio/goquery"
)

// ErrDatesNotSet is returned when a stay needs check-in/check-out dates
var ErrDatesNotSet = errors.New("check-in and check-out dates are not set")

// StayDates are the check-in/check-out dates injected into listing URLs (YYYY-MM-DD)
type StayDates struct {
	Checkin  string `json:"checkin"`
	Checkout string `json:"checkout"`
}

func (d StayDates) IsSet() bool {
	return d.Checkin != "" && d.Checkout != ""
}

// Strategy is the per-site extraction recipe
type Strategy interface {
	Site() models.SiteID
	// WaitSpec describes the elements that signal the prices have rendered
	WaitSpec() WaitSpec
	// NameSelectors are tried in order to read the listing name
	NameSelectors() []string
	DefaultName() string
	// Extract runs the site cascade over a rendered document
	Extract(doc *goquery.Document, sourceURL string) models.ExtractionResult
	// ApplyDates injects the stay dates using the site's query parameters
	ApplyDates(rawURL string, dates StayDates) (string, error)
}

// NameRetry controls how the listing name is re-read while the title renders
type NameRetry struct {
	Attempts int
	Spacing  time.Duration
}

// DefaultNameRetry is 3 attempts, 1s apart
var DefaultNameRetry = NameRetry{Attempts: 3, Spacing: time.Second}

var errNameNotRendered = errors.New("listing name not rendered")

// ExtractName reads the listing name from surface, re-snapshotting between
// attempts. Falls back to the strategy default.
func ExtractName(ctx context.Context, surface Surface, s Strategy, retry NameRetry, logger *utils.Logger) string {
	attempts := retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var name string
	err := utils.RetryFixed(ctx, attempts-1, retry.Spacing, func(int) error {
		doc, err := surface.Snapshot(ctx)
		if err != nil {
			return err
		}
		found, ok := NameFromDoc(doc, s.NameSelectors())
		if !ok {
			return errNameNotRendered
		}
		name = found
		return nil
	}, logger)
	if err != nil {
		logger.Debug("Using default name for %s: %v", s.Site(), err)
		return s.DefaultName()
	}
	return name
}

// NameFromDoc returns the first selector match with more than one character
func NameFromDoc(doc *goquery.Document, selectors []string) (string, bool) {
	for _, sel := range selectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if text := Text(el); len([]rune(text)) > 1 {
			return text, true
		}
	}
	return "", false
}

// SetQuery sets params on rawURL, keeping the rest of the query intact.
// keepExisting params are only set when absent.
func SetQuery(rawURL string, params map[string]string, keepExisting map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	for k, v := range keepExisting {
		if !q.Has(k) {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
