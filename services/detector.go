package services

import (
	"fmt"
	"time"

	"hotel-price-tracker/models"

	"github.com/shopspring/decimal"
)

// MaxChangeLog is the number of change events kept, newest first
const MaxChangeLog = 20

var hundred = decimal.NewFromInt(100)

// ChangeDetector diffs a fresh snapshot against the rooms of the previous fetch
type ChangeDetector struct {
	now func() time.Time
}

func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{now: time.Now}
}

// Detect matches rooms by label and emits one event per room whose price
// moved. Rooms without a valid price on either side are ignored.
func (d *ChangeDetector) Detect(snap models.HotelSnapshot, previous []models.RoomOffer) []models.PriceChangeEvent {
	if len(previous) == 0 || len(snap.Rooms) == 0 {
		return nil
	}
	old := make(map[string]models.Money, len(previous))
	for _, r := range previous {
		old[r.Label] = r.Price
	}

	var events []models.PriceChangeEvent
	ts := d.now()
	for _, room := range snap.Rooms {
		before, ok := old[room.Label]
		if !ok || !before.Valid() || !room.Price.Valid() || before.Equal(room.Price) {
			continue
		}
		diff := room.Price.Amount.Sub(before.Amount)
		direction := models.DirectionUp
		if diff.IsNegative() {
			direction = models.DirectionDown
		}
		events = append(events, models.PriceChangeEvent{
			Site:         snap.Site,
			ListingName:  snap.ListingName,
			CanonicalURL: snap.CanonicalURL,
			RoomLabel:    room.Label,
			OldPrice:     before,
			NewPrice:     room.Price,
			PercentDelta: diff.Abs().Div(before.Amount).Mul(hundred).StringFixed(1),
			Direction:    direction,
			Timestamp:    ts,
		})
	}
	return events
}

// AppendToLog puts each event at the head of the log in turn and evicts the
// oldest entries beyond max
func AppendToLog(log, events []models.PriceChangeEvent, max int) []models.PriceChangeEvent {
	out := make([]models.PriceChangeEvent, 0, len(log)+len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i])
	}
	out = append(out, log...)
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// FormatChange builds the alert title and body for one event
func FormatChange(ev models.PriceChangeEvent) (title, body string) {
	verb, arrow := "increased", "↑"
	if ev.Direction == models.DirectionDown {
		verb, arrow = "dropped", "↓"
	}
	title = fmt.Sprintf("Price %s! %s%s%%", verb, arrow, ev.PercentDelta)
	body = fmt.Sprintf("%s\n%s\n%s → %s", ev.ListingName, ev.RoomLabel, ev.OldPrice, ev.NewPrice)
	return title, body
}

// FormatTracked builds the alert shown when a listing joins the watch list
func FormatTracked(name string) (title, body string) {
	return "Hotel Tracked!", name + " has been added to your tracking list."
}
