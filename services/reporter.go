package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/utils"
)

const reportWidth = 60

// PrintInsightReport formats the insight report for the terminal
func PrintInsightReport(w io.Writer, report *models.InsightReport) {
	border := strings.Repeat("═", reportWidth)
	thin := strings.Repeat("─", reportWidth)

	fmt.Fprintf(w, "\n╔%s╗\n", border)
	fmt.Fprintf(w, "║%s║\n", center("HOTEL PRICE TRACKER INSIGHTS", reportWidth))
	fmt.Fprintf(w, "╚%s╝\n", border)

	fmt.Fprintf(w, "\n OVERVIEW\n%s\n", thin)
	fmt.Fprintf(w, "  Tracked Listings        : %d\n", report.TotalListings)
	fmt.Fprintf(w, "  Rooms With Prices       : %d\n", report.TotalRooms)
	fmt.Fprintf(w, "  Recent Price Drops      : %d\n", report.RecentDrops)
	fmt.Fprintf(w, "  Recent Price Increases  : %d\n", report.RecentIncreases)

	sites := sortedSites(report.ListingsBySite)
	if len(sites) > 0 {
		fmt.Fprintf(w, "\n LISTINGS PER SITE\n%s\n", thin)
		for _, site := range sites {
			count := report.ListingsBySite[site]
			fmt.Fprintf(w, "  %-25s %3d  %s\n", site.Title()+":", count, strings.Repeat("▓", count))
		}
	}

	for _, site := range sites {
		cheap, dear := report.CheapestBySite[site], report.PriciestBySite[site]
		if cheap == nil {
			continue
		}
		fmt.Fprintf(w, "\n %s RANGE\n%s\n", strings.ToUpper(site.Title()), thin)
		fmt.Fprintf(w, "  Cheapest : %-12s %s / %s\n", cheap.Room.Price, utils.Ellipsize(cheap.ListingName, 22), utils.Ellipsize(cheap.Room.Label, 18))
		fmt.Fprintf(w, "  Priciest : %-12s %s / %s\n", dear.Room.Price, utils.Ellipsize(dear.ListingName, 22), utils.Ellipsize(dear.Room.Label, 18))
	}

	if ev := report.BiggestDrop; ev != nil {
		fmt.Fprintf(w, "\n BIGGEST RECENT DROP\n%s\n", thin)
		fmt.Fprintf(w, "  Listing  : %s\n", ev.ListingName)
		fmt.Fprintf(w, "  Room     : %s\n", ev.RoomLabel)
		fmt.Fprintf(w, "  Price    : %s → %s (↓%s%%)\n", ev.OldPrice, ev.NewPrice, ev.PercentDelta)
	}

	if len(report.StaleListings) > 0 {
		fmt.Fprintf(w, "\n NOT CHECKED RECENTLY\n%s\n", thin)
		for _, l := range report.StaleListings {
			fmt.Fprintf(w, "  %-40s %s\n", utils.Ellipsize(l.Name, 40), lastChecked(l.LastChecked))
		}
	}

	fmt.Fprintf(w, "\n%s\n\n", border)
}

// PrintListings prints the watch list with the latest rooms of each listing
func PrintListings(w io.Writer, listings []models.TrackedListing) {
	thin := strings.Repeat("─", reportWidth)
	if len(listings) == 0 {
		fmt.Fprintln(w, " No listings tracked yet.")
		return
	}
	for i, l := range listings {
		fmt.Fprintf(w, "\n %d. %s [%s]\n%s\n", i+1, l.Name, l.Site.Title(), thin)
		fmt.Fprintf(w, "  URL          : %s\n", l.URL)
		fmt.Fprintf(w, "  Last checked : %s\n", lastChecked(l.LastChecked))
		if len(l.Rooms) == 0 {
			fmt.Fprintln(w, "  No rooms captured yet")
			continue
		}
		for _, r := range l.Rooms {
			fmt.Fprintf(w, "  %-35s %-14s %s\n", utils.Ellipsize(r.Label, 35), r.Price, conditionText(r))
		}
	}
	fmt.Fprintln(w)
}

// PrintChanges prints the change log, newest first
func PrintChanges(w io.Writer, changes []models.PriceChangeEvent) {
	if len(changes) == 0 {
		fmt.Fprintln(w, " No price changes recorded yet.")
		return
	}
	for _, ev := range changes {
		arrow := "↑"
		if ev.Direction == models.DirectionDown {
			arrow = "↓"
		}
		fmt.Fprintf(w, "  %s %s%-6s %-28s %-22s %s → %s\n",
			ev.Timestamp.Format("2006-01-02 15:04"),
			arrow, ev.PercentDelta+"%",
			utils.Ellipsize(ev.ListingName, 28),
			utils.Ellipsize(ev.RoomLabel, 22),
			ev.OldPrice, ev.NewPrice)
	}
}

func conditionText(r models.RoomOffer) string {
	if r.ConditionText != "" {
		return r.ConditionText
	}
	return r.Condition.Label()
}

func lastChecked(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}

func sortedSites(counts map[models.SiteID]int) []models.SiteID {
	sites := make([]models.SiteID, 0, len(counts))
	for s := range counts {
		sites = append(sites, s)
	}
	sort.Slice(sites, func(i, j int) bool {
		if counts[sites[i]] != counts[sites[j]] {
			return counts[sites[i]] > counts[sites[j]]
		}
		return sites[i] < sites[j]
	})
	return sites
}

func center(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return s
	}
	pad := (width - len(runes)) / 2
	return strings.Repeat(" ", pad) + s + strings.Repeat(" ", width-len(runes)-pad)
}
