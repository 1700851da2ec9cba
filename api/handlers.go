package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/scraper"
	"hotel-price-tracker/services"
	"hotel-price-tracker/utils"

	"github.com/gin-gonic/gin"
)

// Tracker is the watch list state the handlers read and edit
type Tracker interface {
	Listings(ctx context.Context) ([]models.TrackedListing, error)
	Changes(ctx context.Context) ([]models.PriceChangeEvent, error)
	Remove(ctx context.Context, site models.SiteID, rawURL string) error
	Dates(ctx context.Context) (scraper.StayDates, error)
	SetDates(ctx context.Context, dates scraper.StayDates) error
	Interval(ctx context.Context) (int, error)
	SetInterval(ctx context.Context, minutes int) error
	NextFetch(ctx context.Context) (time.Time, bool, error)
}

// Handler serves the control API. Commands that start page cycles go through
// the message channel, the same way every other control surface sends them.
type Handler struct {
	tracker Tracker
	channel services.Channel
	metrics *utils.Metrics
	logger  *utils.Logger
}

func NewHandler(tracker Tracker, channel services.Channel, metrics *utils.Metrics, logger *utils.Logger) *Handler {
	return &Handler{tracker: tracker, channel: channel, metrics: metrics, logger: logger}
}

type trackRequest struct {
	URL string `json:"url" binding:"required"`
}

type datesRequest struct {
	Checkin  string `json:"checkin" binding:"required"`
	Checkout string `json:"checkout" binding:"required"`
}

type intervalRequest struct {
	Minutes int `json:"minutes" binding:"required"`
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListListings handles GET /api/v1/listings.
func (h *Handler) ListListings(c *gin.Context) {
	listings, err := h.tracker.Listings(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if listings == nil {
		listings = []models.TrackedListing{}
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings, "count": len(listings)})
}

// TrackListing handles POST /api/v1/listings. The listing is added once its
// page has been scraped.
func (h *Handler) TrackListing(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.channel.Send(c.Request.Context(), services.Message{Kind: services.KindTrackURL, URL: req.URL}); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "tracking", "site": models.DetectSite(req.URL)})
}

// UntrackListing handles DELETE /api/v1/listings?url=...&site=...
func (h *Handler) UntrackListing(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	site := models.DetectSite(rawURL)
	if s := c.Query("site"); s != "" {
		parsed, err := models.ParseSite(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		site = parsed
	}
	if err := h.tracker.Remove(c.Request.Context(), site, rawURL); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// Refresh handles POST /api/v1/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	resp, err := h.channel.Send(c.Request.Context(), services.Message{Kind: services.KindForceRefresh})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "refreshing", "started": resp.Started})
}

// ListChanges handles GET /api/v1/changes.
func (h *Handler) ListChanges(c *gin.Context) {
	changes, err := h.tracker.Changes(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if changes == nil {
		changes = []models.PriceChangeEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes, "count": len(changes)})
}

// GetDates handles GET /api/v1/dates.
func (h *Handler) GetDates(c *gin.Context) {
	dates, err := h.tracker.Dates(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkin": dates.Checkin, "checkout": dates.Checkout, "set": dates.IsSet()})
}

// SetDates handles PUT /api/v1/dates.
func (h *Handler) SetDates(c *gin.Context) {
	var req datesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dates := scraper.StayDates{Checkin: req.Checkin, Checkout: req.Checkout}
	if err := h.tracker.SetDates(c.Request.Context(), dates); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkin": dates.Checkin, "checkout": dates.Checkout, "set": true})
}

// GetInterval handles GET /api/v1/interval.
func (h *Handler) GetInterval(c *gin.Context) {
	ctx := c.Request.Context()
	minutes, err := h.tracker.Interval(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	body := gin.H{"minutes": minutes}
	if next, found, err := h.tracker.NextFetch(ctx); err == nil && found {
		body["nextFetch"] = next.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, body)
}

// SetInterval handles PUT /api/v1/interval. The schedule is reset right away
// so errors surface in the response.
func (h *Handler) SetInterval(c *gin.Context) {
	var req intervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := h.tracker.SetInterval(ctx, req.Minutes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.channel.Send(ctx, services.Message{Kind: services.KindResetSchedule}); err != nil {
		h.logger.Warn("Interval saved but schedule not reset: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"minutes": req.Minutes})
}

// fail maps domain errors onto status codes
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrDatesNotSet),
		errors.Is(err, services.ErrInvalidDates),
		errors.Is(err, services.ErrInvalidURL),
		errors.Is(err, services.ErrUnsupportedSite),
		errors.Is(err, services.ErrNoPriceFound):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrTierLimit):
		status = http.StatusPaymentRequired
	case errors.Is(err, services.ErrAlreadyTracked):
		status = http.StatusConflict
	case errors.Is(err, services.ErrNotTracked):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrReceiverNotReady):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
