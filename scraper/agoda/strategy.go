package agoda

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/scraper"

	"github.com/PuerkitoBio/goquery"
)

const (
	roomLabel      = "Agoda Room"
	defaultName    = "Agoda Hotel"
	standardRate   = "Standard Rate"
	broadMinLen    = 3
	broadMaxLen    = 25
	fallbackMaxLen = 50

	finalPriceSelector   = `[class*="finalPr"]`
	rateContainer        = `.PriceDisplay, [class*="PriceDisplay"], [class*="ChildRoomsList"], [class*="MasterRoom"]`
	wrapperSelector      = `[class*="effective-price-wrapper"], [class*="applied-cashback"]`
	priceDisplaySelector = `.PriceDisplay, [class*="PriceDisplay"]`
	fallbackCandidates   = `span, div, strong, [class*="price" i], [class*="Price" i]`
)

var (
	renderSelectors = []string{
		`[data-selenium="master-price-box"]`,
		`[data-selenium="hotel-price-display"]`,
		".PropertyCardPrice",
		".PropertyCardPrice__Value",
		".MasterRoom",
		".MasterRoom-price",
		".PriceDisplay",
		`[class*="MasterRoom"]`,
		`[class*="PriceDisplay"]`,
	}
	nameSelectors = []string{
		`[data-selenium="hotel-header-name"]`,
		`[data-selenium="hotel-name"]`,
		`h1[class*="HeaderCerebrum"]`,
		`h1[data-selenium*="hotel"]`,
		`h2[data-selenium="hotel-name"]`,
		".PropertyHeaderCard h1",
		"h1",
		"h2",
	}

	anyCurrency = regexp.MustCompile(`RM|MYR|[$€£¥₩₫₹฿₱₦₪]`)
	ringgitRate = regexp.MustCompile(`(RM|MYR)\s*([\d,]+(?:\.\d{2})?)`)
	symbolRate  = regexp.MustCompile(`([$€£¥₩₫₹฿₱₦₪]|RM|MYR)\s*([\d,]+(?:\.\d{2})?)`)

	// Cross-sells and page chrome that show prices unrelated to the room
	broadNoise = scraper.NoiseLexicon{
		Classes: []string{"CrossedOut", "StickyNav", "Carousel", "Cardstyled"},
		Texts:   []string{"AirAsia", "Firefly", "Batik Air", "LEGOLAND", "Attractions"},
	}
	displayNoise = scraper.NoiseLexicon{
		Classes: []string{"CrossedOut"},
	}
)

// currencyRule is the price pattern and display label chosen from the URL
type currencyRule struct {
	pattern *regexp.Regexp
	label   string
}

func currencyFor(sourceURL string) currencyRule {
	code := ""
	if u, err := url.Parse(sourceURL); err == nil {
		code = u.Query().Get("currencyCode")
	}
	if code == "" || code == "MYR" {
		return currencyRule{pattern: ringgitRate, label: "RM"}
	}
	return currencyRule{pattern: symbolRate, label: code}
}

// Strategy extracts final selling prices from Agoda property pages
type Strategy struct {
	policy scraper.Policy
}

func New(policy scraper.Policy) *Strategy {
	return &Strategy{policy: policy}
}

func (s *Strategy) Site() models.SiteID { return models.SiteAgoda }

func (s *Strategy) WaitSpec() scraper.WaitSpec {
	return scraper.WaitSpec{
		Selectors: renderSelectors,
		Fallback:  scraper.CurrencyMatcher("", fallbackCandidates, anyCurrency, fallbackMaxLen),
		Budget:    15 * time.Second,
	}
}

func (s *Strategy) NameSelectors() []string { return nameSelectors }

func (s *Strategy) DefaultName() string { return defaultName }

// ApplyDates sets checkIn/checkOut and fills in the occupancy Agoda needs to quote a price
func (s *Strategy) ApplyDates(rawURL string, dates scraper.StayDates) (string, error) {
	if !dates.IsSet() {
		return rawURL, nil
	}
	out, err := scraper.SetQuery(rawURL,
		map[string]string{"checkIn": dates.Checkin, "checkOut": dates.Checkout},
		map[string]string{"adults": "2", "rooms": "1", "children": "0"},
	)
	if err != nil {
		return "", fmt.Errorf("invalid agoda url: %w", err)
	}
	return out, nil
}

func (s *Strategy) Cascade(rule currencyRule) scraper.Cascade {
	return scraper.Cascade{
		{Name: "final-price", Extract: func(p *scraper.Pass) { extractFinalPrice(p, rule) }},
		{Name: "effective-price", Extract: func(p *scraper.Pass) { extractEffectivePrice(p, rule) }},
		{Name: "price-display", Extract: func(p *scraper.Pass) { extractPriceDisplay(p, rule) }},
		{Name: "broad-scan", Extract: func(p *scraper.Pass) { extractBroad(p, rule) }},
	}
}

func (s *Strategy) Extract(doc *goquery.Document, sourceURL string) models.ExtractionResult {
	rule := currencyFor(sourceURL)
	pass := scraper.NewPass(doc, sourceURL, s.policy)
	pass.Currency = rule.label
	method := s.Cascade(rule).Run(pass)
	return pass.Result(s.Site(), method)
}

// match returns the display price "<label> <amount>" for text, or ""
func (r currencyRule) match(text string) string {
	m := r.pattern.FindStringSubmatch(text)
	if m == nil || m[2] == "" {
		return ""
	}
	return r.label + " " + m[2]
}

func extractFinalPrice(p *scraper.Pass, rule currencyRule) {
	p.Doc.Find(finalPriceSelector).Each(func(_ int, el *goquery.Selection) {
		price := rule.match(strings.TrimSpace(el.Text()))
		if price == "" || p.Captured(price) {
			return
		}
		condition := standardRate
		if container := el.Closest(rateContainer); container.Length() > 0 {
			condition = models.ParseCondition(container.Text()).Label()
		}
		p.Capture(roomLabel, price, condition)
	})
}

func extractEffectivePrice(p *scraper.Pass, rule currencyRule) {
	p.Doc.Find(wrapperSelector).Each(func(_ int, el *goquery.Selection) {
		if price := rule.match(strings.TrimSpace(el.Text())); price != "" {
			p.Capture(roomLabel, price, standardRate)
		}
	})
}

func extractPriceDisplay(p *scraper.Pass, rule currencyRule) {
	maxLen := p.Policy.StandaloneMaxLen
	p.Doc.Find(priceDisplaySelector).Each(func(_ int, container *goquery.Selection) {
		container.Find("span, div").Each(func(_ int, el *goquery.Selection) {
			text := strings.TrimSpace(el.Text())
			if scraper.IsDecoy(el, text, displayNoise) {
				return
			}
			if len([]rune(text)) > maxLen {
				return
			}
			if price := rule.match(text); price != "" {
				p.Capture(roomLabel, price, standardRate)
			}
		})
	})
}

func extractBroad(p *scraper.Pass, rule currencyRule) {
	p.Doc.Find("span, div").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := strings.TrimSpace(el.Text())
		if scraper.IsDecoy(el, text, broadNoise) {
			return true
		}
		n := len([]rune(text))
		if n < broadMinLen || n > broadMaxLen {
			return true
		}
		if price := rule.match(text); price != "" {
			p.CaptureBroad(roomLabel, price, standardRate)
		}
		return !p.BroadFull()
	})
}
