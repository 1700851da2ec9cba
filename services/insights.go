package services

import (
	"sort"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/utils"

	"github.com/shopspring/decimal"
)

// InsightService computes analytics from the watch list and the change log
type InsightService struct {
	logger *utils.Logger
}

// NewInsightService creates a new InsightService
func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes the report. Listings not checked within staleAfter of
// now (or never checked) are reported as stale.
func (s *InsightService) Generate(listings []models.TrackedListing, changes []models.PriceChangeEvent, now time.Time, staleAfter time.Duration) *models.InsightReport {
	report := &models.InsightReport{
		ListingsBySite: make(map[models.SiteID]int),
		CheapestBySite: make(map[models.SiteID]*models.RoomRef),
		PriciestBySite: make(map[models.SiteID]*models.RoomRef),
	}

	if len(listings) == 0 {
		s.logger.Warn("No tracked listings to generate insights from")
	}

	for i := range listings {
		l := &listings[i]
		report.TotalListings++
		report.ListingsBySite[l.Site]++

		for _, room := range l.Rooms {
			if !room.Price.Valid() {
				continue
			}
			report.TotalRooms++
			ref := &models.RoomRef{Site: l.Site, ListingName: l.Name, Room: room}
			if cur := report.CheapestBySite[l.Site]; cur == nil || room.Price.Amount.LessThan(cur.Room.Price.Amount) {
				report.CheapestBySite[l.Site] = ref
			}
			if cur := report.PriciestBySite[l.Site]; cur == nil || room.Price.Amount.GreaterThan(cur.Room.Price.Amount) {
				report.PriciestBySite[l.Site] = ref
			}
		}

		if l.LastChecked.IsZero() || now.Sub(l.LastChecked) > staleAfter {
			report.StaleListings = append(report.StaleListings, l)
		}
	}

	var biggest decimal.Decimal
	for i := range changes {
		ev := &changes[i]
		if ev.Direction == models.DirectionUp {
			report.RecentIncreases++
			continue
		}
		report.RecentDrops++
		pct, err := decimal.NewFromString(ev.PercentDelta)
		if err != nil {
			continue
		}
		if report.BiggestDrop == nil || pct.GreaterThan(biggest) {
			report.BiggestDrop = ev
			biggest = pct
		}
	}

	sort.Slice(report.StaleListings, func(i, j int) bool {
		return report.StaleListings[i].LastChecked.Before(report.StaleListings[j].LastChecked)
	})

	return report
}
