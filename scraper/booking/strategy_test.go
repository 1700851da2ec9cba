package booking

import (
	"strings"
	"testing"

	"hotel-price-tracker/scraper"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extract(t *testing.T, html string) (string, []string, []string) {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	res := New(scraper.DefaultPolicy()).Extract(doc, "https://www.booking.com/hotel/my/sample.html")
	var labels, prices []string
	for _, r := range res.Rooms {
		labels = append(labels, r.Label)
		prices = append(prices, r.PriceText)
	}
	return res.Method, labels, prices
}

func TestExtract_TableRows(t *testing.T) {
	html := `<html><body><table id="hprt-table">
		<tr>
			<td><a class="hprt-roomtype-link">Deluxe King Room</a></td>
			<td><span class="bui-price-display__value">RM 250</span></td>
			<td class="hprt-table-cell-conditions"><ul class="hprt-conditions"><li>Free cancellation before 5 May</li><li>No prepayment needed</li></ul></td>
		</tr>
		<tr>
			<td><span class="bui-price-display__value">RM 210</span></td>
			<td class="hprt-table-cell-conditions"><ul class="hprt-conditions"><li>Non-refundable</li></ul></td>
		</tr>
		<tr>
			<td><a class="hprt-roomtype-link">Suite</a></td>
			<td><span class="bui-price-display__value" style="text-decoration: line-through">RM 900</span></td>
		</tr>
		<tr>
			<td><span class="bui-price-display__value">RM 250</span></td>
		</tr>
		<tr>
			<td><a class="hprt-roomtype-link">Twin Room</a></td>
			<td><span class="bui-price-display__value">RM 1,180</span></td>
		</tr>
	</table></body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	res := New(scraper.DefaultPolicy()).Extract(doc, "https://www.booking.com/hotel/my/sample.html")

	assert.Equal(t, "table-rows", res.Method)
	require.Len(t, res.Rooms, 3, "struck and repeated prices are dropped")

	assert.Equal(t, "Deluxe King Room", res.Rooms[0].Label)
	assert.Equal(t, "RM 250", res.Rooms[0].PriceText)
	assert.Contains(t, res.Rooms[0].ConditionText, "Free cancellation before 5 May")
	assert.Contains(t, res.Rooms[0].ConditionText, " | ")

	assert.Equal(t, "Deluxe King Room", res.Rooms[1].Label, "rate rows inherit the room above")
	assert.Equal(t, "Non-refundable", res.Rooms[1].ConditionText)

	assert.Equal(t, "Twin Room", res.Rooms[2].Label)
	assert.Equal(t, "RM 1,180", res.Rooms[2].PriceText)
	assert.Equal(t, "Standard Rate", res.Rooms[2].ConditionText)
}

func TestExtract_RoomBlocks(t *testing.T) {
	method, labels, prices := extract(t, `<html><body>
		<div class="roomrow"><h3>Family Suite</h3><span class="hprt-price-price">€ 320</span></div>
		<div class="roomrow"><h3>Loft</h3><span class="hprt-price-price">€ 12</span></div>
	</body></html>`)

	assert.Equal(t, "room-blocks", method)
	assert.Equal(t, []string{"Family Suite"}, labels)
	assert.Equal(t, []string{"€ 320"}, prices)
}

func TestExtract_PriceAncestors(t *testing.T) {
	method, labels, prices := extract(t, `<html><body>
		<section>
			<span class="hprt-roomtype-name">Studio</span>
			<div><div><span class="prco-valign-middle-helper">US$ 95</span></div></div>
		</section>
		<span class="prco-valign-middle-helper">US$ 140</span>
	</body></html>`)

	assert.Equal(t, "price-ancestors", method)
	assert.Equal(t, []string{"Studio", "Studio"}, labels)
	assert.Equal(t, []string{"$ 95", "$ 140"}, prices)
}

func TestExtract_PriceClass(t *testing.T) {
	method, labels, prices := extract(t, `<html><body>
		<div class="price-tag">Total: 1.234,50 €</div>
		<div class="price-tag">4.5 stars</div>
	</body></html>`)

	assert.Equal(t, "price-class", method)
	assert.Equal(t, []string{"Room Option 1"}, labels)
	assert.Equal(t, []string{"1.234,50"}, prices)
}

func TestExtract_NothingFound(t *testing.T) {
	method, labels, _ := extract(t, `<html><body><p>Sold out</p></body></html>`)
	assert.Empty(t, method)
	assert.Empty(t, labels)
}

func TestApplyDates(t *testing.T) {
	s := New(scraper.DefaultPolicy())

	out, err := s.ApplyDates("https://www.booking.com/hotel/my/sample.html?aid=7", scraper.StayDates{Checkin: "2026-05-01", Checkout: "2026-05-03"})
	require.NoError(t, err)
	assert.Contains(t, out, "checkin=2026-05-01")
	assert.Contains(t, out, "checkout=2026-05-03")
	assert.Contains(t, out, "aid=7")

	same, err := s.ApplyDates("https://www.booking.com/x", scraper.StayDates{})
	require.NoError(t, err)
	assert.Equal(t, "https://www.booking.com/x", same)
}
