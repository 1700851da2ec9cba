package booking

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/scraper"
	"hotel-price-tracker/utils"

	"github.com/PuerkitoBio/goquery"
)

const (
	roomTableSelector  = `#hprt-table, .hprt-table, [data-testid="property-section-rooms-and-rates"], table.roomstable`
	lastChanceSelector = `#hprt-table, .hprt-table, table, [class*="room"]`

	rowRoomNameSelector = `.hprt-roomtype-icon-link, a.hprt-roomtype-link, .hprt-roomtype-name, span.hprt-roomtype-icon-link, [data-testid="room-name"], .room-info a, td.hprt-table-cell-roomtype a`
	rowPriceSelector    = `.bui-price-display__value, .prco-valign-middle-helper, .hprt-price-price, [data-testid*="price"], td.hprt-table-cell-price .bui-price-display__value`
	conditionCell       = `.hprt-table-cell-conditions, [data-testid*="conditions"]`

	blockSelector         = `.hprt-table-room-block, [data-testid*="room-row"], .roomrow, tr[data-block-id]`
	blockNameSelector     = `.hprt-roomtype-icon-link, a[data-room-name], .hprt-roomtype-name, h3, h4`
	priceValueSelector    = `.bui-price-display__value, .prco-valign-middle-helper, .hprt-price-price`
	ancestorNameSelector  = `.hprt-roomtype-icon-link, .hprt-roomtype-name, a[data-room-name]`
	priceClassSelector    = `[class*="price"]`
	maxLabelLen           = 100
	maxConditionLen       = 100
	ancestorLevels        = 10
	standardConditionText = "Standard Rate"
	defaultName           = "Unknown Hotel"
)

var (
	conditionSelectors = []string{
		".hprt-conditions-header",
		".hprt-conditions li",
		`[data-testid*="cancellation"]`,
		`[data-testid*="condition"]`,
		".bui-list__description",
		".hprt-table-cell-conditions li",
		".mpc-inline-block",
		".hprt-conditions-cell .mpc-wrapper",
		`[class*="cancellation"]`,
		`[class*="conditions"]`,
	}
	conditionKeywords = []string{
		"cancel", "refund", "flexible", "reschedule", "non-", "free",
		"no prepayment", "pay at", "breakfast", "included",
	}
	conditionSplit  = regexp.MustCompile(`[•·|]`)
	nonPriceChars   = regexp.MustCompile(`[^\d.,]`)
	classPriceRegex = regexp.MustCompile(`\d[\d,.\s]*\d`)
)

// Strategy extracts room rates from Booking.com property pages
type Strategy struct {
	policy scraper.Policy
}

func New(policy scraper.Policy) *Strategy {
	return &Strategy{policy: policy}
}

func (s *Strategy) Site() models.SiteID { return models.SiteBooking }

func (s *Strategy) WaitSpec() scraper.WaitSpec {
	return scraper.WaitSpec{
		Selectors:  []string{roomTableSelector},
		LastChance: []string{lastChanceSelector},
		Budget:     12 * time.Second,
	}
}

// NameSelectors is a single group so the first match in document order wins
func (s *Strategy) NameSelectors() []string {
	return []string{`[data-testid="title"], h1.pp-header__title, h2.hp__hotel-name, h1, h2`}
}

func (s *Strategy) DefaultName() string { return defaultName }

// ApplyDates sets checkin/checkout
func (s *Strategy) ApplyDates(rawURL string, dates scraper.StayDates) (string, error) {
	if !dates.IsSet() {
		return rawURL, nil
	}
	out, err := scraper.SetQuery(rawURL, map[string]string{
		"checkin":  dates.Checkin,
		"checkout": dates.Checkout,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("invalid booking url: %w", err)
	}
	return out, nil
}

func (s *Strategy) Cascade() scraper.Cascade {
	return scraper.Cascade{
		{Name: "table-rows", Extract: extractTableRows},
		{Name: "room-blocks", Extract: extractRoomBlocks},
		{Name: "price-ancestors", Extract: extractPriceAncestors},
		{Name: "price-class", Extract: extractPriceClass},
	}
}

func (s *Strategy) Extract(doc *goquery.Document, sourceURL string) models.ExtractionResult {
	pass := scraper.NewPass(doc, sourceURL, s.policy)
	method := s.Cascade().Run(pass)
	return pass.Result(s.Site(), method)
}

func roomTable(doc *goquery.Document) *goquery.Selection {
	if t := doc.Find(roomTableSelector).First(); t.Length() > 0 {
		return t
	}
	return doc.Find(lastChanceSelector).First()
}

// priceDigits keeps only digits and separators, prefixed with the currency
// token when the element shows one
func priceDigits(s *goquery.Selection) string {
	text := s.Text()
	digits := strings.TrimSpace(nonPriceChars.ReplaceAllString(text, ""))
	if digits == "" {
		return ""
	}
	if cur := models.DetectCurrency(text); cur != "" {
		return cur + " " + digits
	}
	return digits
}

func roomLabel(s *goquery.Selection) string {
	return utils.Truncate(scraper.Text(s), maxLabelLen)
}

// extractTableRows walks the rate table. A room name row applies to the rate
// rows below it until the next name.
func extractTableRows(p *scraper.Pass) {
	table := roomTable(p.Doc)
	if table.Length() == 0 {
		return
	}

	currentRoom := ""
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if nameEl := row.Find(rowRoomNameSelector).First(); nameEl.Length() > 0 {
			currentRoom = roomLabel(nameEl)
		}

		priceEl := row.Find(rowPriceSelector).First()
		if priceEl.Length() == 0 || scraper.IsStruck(priceEl) || scraper.IsHidden(priceEl) {
			return
		}
		price := priceDigits(priceEl)
		if price == "" || currentRoom == "" {
			return
		}
		p.Capture(currentRoom, price, rowConditions(row))
	})
}

func rowConditions(row *goquery.Selection) string {
	var conditions []string
	add := func(text string) {
		n := len([]rune(text))
		if n <= 2 || n >= maxConditionLen {
			return
		}
		for _, c := range conditions {
			if c == text {
				return
			}
		}
		conditions = append(conditions, text)
	}

	for _, sel := range conditionSelectors {
		row.Find(sel).Each(func(_ int, el *goquery.Selection) {
			text := scraper.Text(el)
			if utils.ContainsAnyFold(text, conditionKeywords...) {
				add(text)
			}
		})
	}

	if cell := row.Find(conditionCell).First(); cell.Length() > 0 {
		for _, part := range conditionSplit.Split(scraper.Text(cell), -1) {
			add(strings.TrimSpace(part))
		}
	}

	if len(conditions) == 0 {
		return standardConditionText
	}
	return strings.Join(conditions, " | ")
}

func extractRoomBlocks(p *scraper.Pass) {
	p.Doc.Find(blockSelector).Each(func(_ int, block *goquery.Selection) {
		nameEl := block.Find(blockNameSelector).First()
		priceEl := block.Find(priceValueSelector).First()
		if nameEl.Length() == 0 || priceEl.Length() == 0 || scraper.IsStruck(priceEl) {
			return
		}
		label := roomLabel(nameEl)
		price := priceDigits(priceEl)
		if label == "" || price == "" {
			return
		}
		p.Capture(label, price, standardConditionText)
	})
}

func extractPriceAncestors(p *scraper.Pass) {
	p.Doc.Find(priceValueSelector).Each(func(idx int, priceEl *goquery.Selection) {
		if scraper.IsStruck(priceEl) {
			return
		}
		price := priceDigits(priceEl)
		if price == "" {
			return
		}
		label := ""
		if nameEl := scraper.FindUp(priceEl, ancestorNameSelector, ancestorLevels); nameEl != nil {
			label = roomLabel(nameEl)
		}
		if label == "" {
			label = fmt.Sprintf("Room Option %d", idx+1)
		}
		p.Capture(label, price, standardConditionText)
	})
}

func extractPriceClass(p *scraper.Pass) {
	p.Doc.Find(priceClassSelector).Each(func(idx int, el *goquery.Selection) {
		if scraper.IsStruck(el) || scraper.IsHidden(el) {
			return
		}
		match := classPriceRegex.FindString(el.Text())
		if match == "" {
			return
		}
		price := strings.Join(strings.Fields(match), "")
		p.Capture(fmt.Sprintf("Room Option %d", idx+1), price, standardConditionText)
	})
}
