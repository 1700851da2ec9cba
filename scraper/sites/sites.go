package sites

import (
	"errors"
	"fmt"

	"hotel-price-tracker/models"
	"hotel-price-tracker/scraper"
	"hotel-price-tracker/scraper/agoda"
	"hotel-price-tracker/scraper/airbnb"
	"hotel-price-tracker/scraper/booking"
)

// ErrUnsupportedSite is returned for sites without a strategy
var ErrUnsupportedSite = errors.New("unsupported site")

// Registry maps each site to its extraction strategy
type Registry struct {
	strategies map[models.SiteID]scraper.Strategy
}

// NewRegistry builds the strategies for every supported site
func NewRegistry(policy scraper.Policy) *Registry {
	return &Registry{strategies: map[models.SiteID]scraper.Strategy{
		models.SiteBooking: booking.New(policy),
		models.SiteAgoda:   agoda.New(policy),
		models.SiteAirbnb:  airbnb.New(policy),
	}}
}

func (r *Registry) For(site models.SiteID) (scraper.Strategy, error) {
	s, ok := r.strategies[site]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSite, site)
	}
	return s, nil
}
