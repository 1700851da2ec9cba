package scraper

import (
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// Policy holds the tuned extraction thresholds
type Policy struct {
	MinPrice          decimal.Decimal
	MaxPrice          decimal.Decimal
	BroadScanMinPrice decimal.Decimal
	BroadScanCap      int
	StandaloneMaxLen  int
}

// DefaultPolicy returns the thresholds observed to work on the supported sites
func DefaultPolicy() Policy {
	return Policy{
		MinPrice:          decimal.NewFromInt(30),
		MaxPrice:          decimal.NewFromInt(10000),
		BroadScanMinPrice: decimal.NewFromInt(100),
		BroadScanCap:      3,
		StandaloneMaxLen:  20,
	}
}

// WithBounds returns a copy of p using the given plausible price range
func (p Policy) WithBounds(min, max int) Policy {
	p.MinPrice = decimal.NewFromInt(int64(min))
	p.MaxPrice = decimal.NewFromInt(int64(max))
	if p.BroadScanMinPrice.LessThan(p.MinPrice) {
		p.BroadScanMinPrice = p.MinPrice
	}
	return p
}

// Pass is the state shared by all methods of one cascade run. A numeric price
// is captured at most once per pass.
type Pass struct {
	Doc       *goquery.Document
	SourceURL string
	Currency  string
	Policy    Policy

	rooms []models.RawRoom
	seen  *utils.SeenSet
}

func NewPass(doc *goquery.Document, sourceURL string, policy Policy) *Pass {
	return &Pass{
		Doc:       doc,
		SourceURL: sourceURL,
		Policy:    policy,
		seen:      utils.NewSeenSet(),
	}
}

// Capture records a room when its price parses, lies within the policy bounds
// and was not captured before in this pass
func (p *Pass) Capture(label, priceText, conditionText string) bool {
	return p.capture(label, priceText, conditionText, p.Policy.MinPrice)
}

// CaptureBroad is Capture for page-wide scans: a higher floor and a room cap
func (p *Pass) CaptureBroad(label, priceText, conditionText string) bool {
	if p.BroadFull() {
		return false
	}
	return p.capture(label, priceText, conditionText, p.Policy.BroadScanMinPrice)
}

// BroadFull reports whether the broad-scan cap is reached
func (p *Pass) BroadFull() bool {
	return p.Policy.BroadScanCap > 0 && len(p.rooms) >= p.Policy.BroadScanCap
}

func (p *Pass) capture(label, priceText, conditionText string, min decimal.Decimal) bool {
	amount, ok := models.ParseAmount(priceText)
	if !ok {
		return false
	}
	if amount.LessThan(min) || amount.GreaterThan(p.Policy.MaxPrice) {
		return false
	}
	if !p.seen.Add(amount.String()) {
		return false
	}
	p.rooms = append(p.rooms, models.RawRoom{
		Label:         label,
		PriceText:     utils.CollapseSpace(priceText),
		ConditionText: conditionText,
	})
	return true
}

// Captured reports whether price was already taken in this pass
func (p *Pass) Captured(priceText string) bool {
	amount, ok := models.ParseAmount(priceText)
	return ok && p.seen.Has(amount.String())
}

func (p *Pass) Rooms() []models.RawRoom {
	return p.rooms
}

// Method is one level of an extraction cascade
type Method struct {
	Name    string
	Extract func(p *Pass)
}

// Cascade is an ordered list of methods. Evaluation stops at the first
// method that captures at least one room; results are never merged.
type Cascade []Method

// Run evaluates the cascade and returns the name of the method that produced
// the rooms, or "" when every method came up empty
func (c Cascade) Run(p *Pass) string {
	for _, m := range c {
		m.Extract(p)
		if len(p.rooms) > 0 {
			return m.Name
		}
	}
	return ""
}

// Result packages the pass output
func (p *Pass) Result(site models.SiteID, method string) models.ExtractionResult {
	return models.ExtractionResult{
		Site:       site,
		SourceURL:  p.SourceURL,
		Currency:   p.Currency,
		Method:     method,
		Rooms:      p.rooms,
		CapturedAt: time.Now(),
	}
}
