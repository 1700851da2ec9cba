package airbnb

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/scraper"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultName = "Airbnb Stay"

	labelNightly       = "Nightly Rate"
	labelNonRefundable = "Total (Non-refundable)"
	labelRefundable    = "Total (Refundable)"
	labelTotal         = "Total Price"
	labelPrice         = "Price"

	conditionStandard      = "Standard Rate"
	conditionFreeCancel    = "Free cancellation"
	conditionNonRefundable = "Non-refundable"

	renderPanelScope    = `[data-testid="book-it-default"], [data-section-id="BOOK_IT_PANEL"], [data-testid="book-it-trigger"]`
	renderCandidates    = `[data-testid*="price"], span, div, strong`
	nightlyCandidates   = `span, div, strong, [data-testid*="price"]`
	rateCandidates      = `span, div, strong, label, [data-testid*="rate"]`
	fallbackCandidates  = `span[class*="price" i], div[class*="price" i], span[aria-label*="price" i], strong, b`
	renderFallbackLimit = 100
	fallbackMaxLen      = 100
)

var (
	renderSelectors = []string{
		`[data-testid="book-it-default"]`,
		`[data-testid="book-it-trigger"]`,
		`[data-section-id="BOOK_IT_PANEL"]`,
		`[data-testid="price-summary"]`,
		`[class*="book-it" i]`,
		`[class*="booking" i]`,
		`[class*="reserve" i]`,
	}
	nameSelectors = []string{
		`[data-testid="listing-title"]`,
		`h1[elementtiming="LCP-target"]`,
		`[data-section-id="TITLE_DEFAULT"] h1`,
		`[data-section-id="TITLE_DEFAULT"] [data-testid="title"]`,
		`[data-testid="title"]`,
		"h1",
	}
	panelSelectors = []string{
		`[data-testid="book-it-default"]`,
		`[data-section-id="BOOK_IT_PANEL"]`,
		`[data-testid="book-it-trigger"]`,
		`[class*="book-it" i]`,
		`[class*="BookingPanel" i]`,
	}

	anyCurrency    = regexp.MustCompile(`RM|MYR|[$€£¥₩₫₹฿₱₦₪]`)
	priceRegex     = regexp.MustCompile(`(RM|MYR|[$€£¥₩₫₹฿₱₦₪])\s*([\d.,]+)`)
	nightRegex     = regexp.MustCompile(`(?i)night`)
	notNightly     = regexp.MustCompile(`(?i)total|service fee|cleaning fee|before taxes`)
	panelNightly   = regexp.MustCompile(`(?i)(RM|[$€£¥₩₫₹฿₱₦₪])\s*([\d.,]+)\s*(?:/\s*)?night`)
	freeCancel     = regexp.MustCompile(`(?i)free cancell?ation`)
	nonRefundTotal = regexp.MustCompile(`(?i)Non[- ]?refundable\s*[·:]\s*(RM|[$€£¥₩₫₹฿₱₦₪])\s*([\d.,]+)\s*total`)
	refundTotal    = regexp.MustCompile(`(?i)(non[- ]?)?refundable\s*[·:]\s*(RM|[$€£¥₩₫₹฿₱₦₪])\s*([\d.,]+)\s*total`)
	nonRefundWord  = regexp.MustCompile(`(?i)non[- ]?refundable`)
	refundWord     = regexp.MustCompile(`(?i)refundable`)
	totalWord      = regexp.MustCompile(`(?i)total`)
	fallbackFree   = regexp.MustCompile(`(?i)free cancel`)
	fallbackNonRef = regexp.MustCompile(`(?i)non[- ]?refund`)
	countedNights  = regexp.MustCompile(`(?i)\d\s*night`)
)

// Strategy extracts the booking panel rates from Airbnb listing pages
type Strategy struct {
	policy scraper.Policy
}

func New(policy scraper.Policy) *Strategy {
	return &Strategy{policy: policy}
}

func (s *Strategy) Site() models.SiteID { return models.SiteAirbnb }

func (s *Strategy) WaitSpec() scraper.WaitSpec {
	return scraper.WaitSpec{
		Selectors: renderSelectors,
		Fallback:  scraper.CurrencyMatcher(renderPanelScope, renderCandidates, anyCurrency, renderFallbackLimit),
		Budget:    20 * time.Second,
	}
}

func (s *Strategy) NameSelectors() []string { return nameSelectors }

func (s *Strategy) DefaultName() string { return defaultName }

// ApplyDates sets check_in/check_out
func (s *Strategy) ApplyDates(rawURL string, dates scraper.StayDates) (string, error) {
	if !dates.IsSet() {
		return rawURL, nil
	}
	out, err := scraper.SetQuery(rawURL, map[string]string{
		"check_in":  dates.Checkin,
		"check_out": dates.Checkout,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("invalid airbnb url: %w", err)
	}
	return out, nil
}

// Cascade has two levels: the panel rates (nightly rate plus the
// refundable/non-refundable totals, always both) and a generic panel scan
func (s *Strategy) Cascade() scraper.Cascade {
	return scraper.Cascade{
		{Name: "panel-rates", Extract: func(p *scraper.Pass) {
			panel := findPanel(p.Doc)
			extractNightlyRate(p, panel)
			extractRateOptions(p, panel)
		}},
		{Name: "panel-scan", Extract: func(p *scraper.Pass) {
			extractPanelScan(p, findPanel(p.Doc))
		}},
	}
}

func (s *Strategy) Extract(doc *goquery.Document, sourceURL string) models.ExtractionResult {
	pass := scraper.NewPass(doc, sourceURL, s.policy)
	method := s.Cascade().Run(pass)
	return pass.Result(s.Site(), method)
}

func findPanel(doc *goquery.Document) *goquery.Selection {
	for _, sel := range panelSelectors {
		if panel := doc.Find(sel).First(); panel.Length() > 0 {
			return panel
		}
	}
	return doc.Find("body").First()
}

func displayPrice(m []string, cur, amount int) string {
	return m[cur] + " " + m[amount]
}

func panelCondition(panelText string) string {
	if freeCancel.MatchString(panelText) {
		return conditionFreeCancel
	}
	return conditionStandard
}

// extractNightlyRate takes the first price whose surroundings mention
// "night" and that is not a total or a fee line
func extractNightlyRate(p *scraper.Pass, panel *goquery.Selection) {
	panelText := scraper.VisibleText(panel)
	condition := panelCondition(panelText)

	found := false
	panel.Find(nightlyCandidates).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if scraper.IsStruck(el) || scraper.IsHidden(el) {
			return true
		}
		elText := scraper.VisibleText(el)
		contextText := scraper.VisibleText(el.Parent())
		if contextText == "" {
			contextText = elText
		}
		if !nightRegex.MatchString(contextText) || notNightly.MatchString(elText) {
			return true
		}
		m := priceRegex.FindStringSubmatch(elText)
		if m == nil || m[2] == "" {
			return true
		}
		p.Capture(labelNightly, displayPrice(m, 1, 2), condition)
		found = true
		return false
	})
	if found {
		return
	}

	if m := panelNightly.FindStringSubmatch(panelText); m != nil && m[2] != "" {
		p.Capture(labelNightly, displayPrice(m, 1, 2), condition)
	}
}

// extractRateOptions reads "Non-refundable · RM 273 total" and
// "Refundable · RM 303 total" from the panel
func extractRateOptions(p *scraper.Pass, panel *goquery.Selection) {
	panelText := scraper.VisibleText(panel)

	nonRef := nonRefundTotal.FindStringSubmatch(panelText)
	if nonRef != nil && nonRef[2] != "" {
		p.Capture(labelNonRefundable, displayPrice(nonRef, 1, 2), conditionNonRefundable)
	}

	var ref []string
	for _, m := range refundTotal.FindAllStringSubmatch(panelText, -1) {
		if m[1] == "" && m[3] != "" {
			ref = m
			break
		}
	}
	if ref != nil {
		p.Capture(labelRefundable, displayPrice(ref, 2, 3), conditionFreeCancel)
	}

	if nonRef != nil || ref != nil {
		return
	}

	panel.Find(rateCandidates).Each(func(_ int, el *goquery.Selection) {
		text := scraper.VisibleText(el)
		if !totalWord.MatchString(text) {
			return
		}
		m := priceRegex.FindStringSubmatch(text)
		if m == nil || m[2] == "" {
			return
		}
		switch {
		case nonRefundWord.MatchString(text):
			p.Capture(labelNonRefundable, displayPrice(m, 1, 2), conditionNonRefundable)
		case refundWord.MatchString(text):
			p.Capture(labelRefundable, displayPrice(m, 1, 2), conditionFreeCancel)
		}
	})
}

// extractPanelScan classifies any price-like element in the panel by the
// words around it
func extractPanelScan(p *scraper.Pass, panel *goquery.Selection) {
	panel.Find(fallbackCandidates).Each(func(_ int, el *goquery.Selection) {
		if scraper.IsStruck(el) || scraper.IsHidden(el) {
			return
		}
		text := strings.TrimSpace(el.Text())
		if len([]rune(text)) >= fallbackMaxLen {
			return
		}
		m := priceRegex.FindStringSubmatch(text)
		if m == nil || m[2] == "" {
			return
		}

		parentText := el.Parent().Text()
		condition := conditionStandard
		switch {
		case fallbackFree.MatchString(parentText):
			condition = conditionFreeCancel
		case fallbackNonRef.MatchString(parentText):
			condition = conditionNonRefundable
		}

		label := labelPrice
		switch {
		case nightRegex.MatchString(parentText) && !countedNights.MatchString(parentText):
			label = labelNightly
		case totalWord.MatchString(parentText):
			label = labelTotal
		}

		p.Capture(label, displayPrice(m, 1, 2), condition)
	})
}
