package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hotel-price-tracker/api"
	"hotel-price-tracker/models"
	"hotel-price-tracker/scraper"
	"hotel-price-tracker/services"
	"hotel-price-tracker/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTracker struct {
	listings  []models.TrackedListing
	changes   []models.PriceChangeEvent
	dates     scraper.StayDates
	minutes   int
	next      time.Time
	removeErr error
	removed   []string
}

func (m *mockTracker) Listings(context.Context) ([]models.TrackedListing, error) {
	return m.listings, nil
}

func (m *mockTracker) Changes(context.Context) ([]models.PriceChangeEvent, error) {
	return m.changes, nil
}

func (m *mockTracker) Remove(_ context.Context, site models.SiteID, rawURL string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, string(site)+" "+rawURL)
	return nil
}

func (m *mockTracker) Dates(context.Context) (scraper.StayDates, error) { return m.dates, nil }

func (m *mockTracker) SetDates(_ context.Context, d scraper.StayDates) error {
	if d.Checkout <= d.Checkin {
		return fmt.Errorf("%w: check-out must be after check-in", services.ErrInvalidDates)
	}
	m.dates = d
	return nil
}

func (m *mockTracker) Interval(context.Context) (int, error) { return m.minutes, nil }

func (m *mockTracker) SetInterval(_ context.Context, minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("refresh interval must be at least 1 minute")
	}
	m.minutes = minutes
	return nil
}

func (m *mockTracker) NextFetch(context.Context) (time.Time, bool, error) {
	return m.next, !m.next.IsZero(), nil
}

type fixture struct {
	router   *gin.Engine
	tracker  *mockTracker
	channel  *services.LocalChannel
	received []services.Message
	reply    func(services.Message) (services.Response, error)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fx := &fixture{tracker: &mockTracker{minutes: 30}, channel: services.NewLocalChannel()}
	fx.channel.OnMessage(func(_ context.Context, msg services.Message) (services.Response, error) {
		fx.received = append(fx.received, msg)
		if fx.reply != nil {
			return fx.reply(msg)
		}
		return services.Response{OK: true}, nil
	})

	h := api.NewHandler(fx.tracker, fx.channel, utils.NewMetrics("test"), utils.NewNopLogger())
	fx.router = gin.New()
	api.SetupRoutes(fx.router, h)
	return fx
}

func (fx *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestTrackListing(t *testing.T) {
	fx := newFixture(t)

	w, body := fx.do(t, http.MethodPost, "/api/v1/listings", map[string]string{"url": "https://www.airbnb.com/rooms/42"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "airbnb", body["site"])
	require.Len(t, fx.received, 1)
	assert.Equal(t, services.KindTrackURL, fx.received[0].Kind)
	assert.Equal(t, "https://www.airbnb.com/rooms/42", fx.received[0].URL)

	w, _ = fx.do(t, http.MethodPost, "/api/v1/listings", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrackListing_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{services.ErrDatesNotSet, http.StatusBadRequest},
		{fmt.Errorf("%w: Agoda requires premium", services.ErrTierLimit), http.StatusPaymentRequired},
		{services.ErrAlreadyTracked, http.StatusConflict},
		{services.ErrReceiverNotReady, http.StatusServiceUnavailable},
		{fmt.Errorf("store down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			fx := newFixture(t)
			fx.reply = func(services.Message) (services.Response, error) { return services.Response{}, tt.err }

			w, body := fx.do(t, http.MethodPost, "/api/v1/listings", map[string]string{"url": "https://www.agoda.com/h/1.html"})
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestUntrackListing(t *testing.T) {
	fx := newFixture(t)

	w, _ := fx.do(t, http.MethodDelete, "/api/v1/listings?url=https://www.agoda.com/h/1.html", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = fx.do(t, http.MethodDelete, "/api/v1/listings?site=booking&url=https://example.com/h", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"agoda https://www.agoda.com/h/1.html", "booking https://example.com/h"}, fx.tracker.removed)

	w, _ = fx.do(t, http.MethodDelete, "/api/v1/listings?site=expedia&url=https://example.com/h", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = fx.do(t, http.MethodDelete, "/api/v1/listings", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	fx.tracker.removeErr = services.ErrNotTracked
	w, _ = fx.do(t, http.MethodDelete, "/api/v1/listings?url=https://www.airbnb.com/rooms/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefresh(t *testing.T) {
	fx := newFixture(t)
	fx.reply = func(services.Message) (services.Response, error) { return services.Response{OK: true, Started: 4}, nil }

	w, body := fx.do(t, http.MethodPost, "/api/v1/refresh", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.EqualValues(t, 4, body["started"])
	assert.Equal(t, services.KindForceRefresh, fx.received[0].Kind)
}

func TestListings(t *testing.T) {
	fx := newFixture(t)

	w, body := fx.do(t, http.MethodGet, "/api/v1/listings", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, []any{}, body["listings"])

	fx.tracker.listings = []models.TrackedListing{{Site: models.SiteBooking, Name: "Grand Hotel"}}
	fx.tracker.changes = []models.PriceChangeEvent{{RoomLabel: "Deluxe", PercentDelta: "16.7", Direction: models.DirectionDown}}

	_, body = fx.do(t, http.MethodGet, "/api/v1/listings", nil)
	assert.EqualValues(t, 1, body["count"])
	_, body = fx.do(t, http.MethodGet, "/api/v1/changes", nil)
	assert.EqualValues(t, 1, body["count"])
}

func TestDates(t *testing.T) {
	fx := newFixture(t)

	_, body := fx.do(t, http.MethodGet, "/api/v1/dates", nil)
	assert.Equal(t, false, body["set"])

	w, _ := fx.do(t, http.MethodPut, "/api/v1/dates", map[string]string{"checkin": "2026-06-03", "checkout": "2026-06-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodPut, "/api/v1/dates", map[string]string{"checkin": "2026-06-01", "checkout": "2026-06-03"})
	assert.Equal(t, http.StatusOK, w.Code)
	_, body = fx.do(t, http.MethodGet, "/api/v1/dates", nil)
	assert.Equal(t, true, body["set"])
	assert.Equal(t, "2026-06-01", body["checkin"])
}

func TestInterval(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.next = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

	_, body := fx.do(t, http.MethodGet, "/api/v1/interval", nil)
	assert.EqualValues(t, 30, body["minutes"])
	assert.Equal(t, "2026-06-01T09:30:00Z", body["nextFetch"])

	w, _ := fx.do(t, http.MethodPut, "/api/v1/interval", map[string]int{"minutes": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodPut, "/api/v1/interval", map[string]int{"minutes": 15})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 15, fx.tracker.minutes)
	require.Len(t, fx.received, 1)
	assert.Equal(t, services.KindResetSchedule, fx.received[0].Kind)
}

func TestHealthAndMetrics(t *testing.T) {
	fx := newFixture(t)

	w, body := fx.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, _ = fx.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_delivery_retries_total")
}
