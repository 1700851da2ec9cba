package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/storage"
	"hotel-price-tracker/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func billingServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.HasPrefix(r.URL.Path, "/verify/user_") {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestSubscriptionClient_CachesSuccess(t *testing.T) {
	ctx := context.Background()
	srv, hits := billingServer(t, http.StatusOK, `{"subscribed":true}`)
	store := storage.NewMemoryStore()
	client := NewSubscriptionClient(srv.URL+"/", store, 5*time.Minute, utils.NewNopLogger())

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	status := client.Check(ctx)
	assert.True(t, status.Premium())
	assert.Equal(t, TierPremium, status.Tier)

	now = now.Add(4 * time.Minute)
	assert.True(t, client.Check(ctx).Premium())
	assert.EqualValues(t, 1, hits.Load(), "second check served from cache")

	now = now.Add(2 * time.Minute)
	client.Check(ctx)
	assert.EqualValues(t, 2, hits.Load(), "cache expired")
}

func TestSubscriptionClient_FailsClosed(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"subscribed":true}`},
		{"bad json", http.StatusOK, `{"subscribed":`},
		{"not subscribed", http.StatusOK, `{"subscribed":false,"tier":"premium"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := billingServer(t, tt.status, tt.body)
			client := NewSubscriptionClient(srv.URL, storage.NewMemoryStore(), time.Minute, utils.NewNopLogger())

			status := client.Check(ctx)
			assert.False(t, status.Premium())
			assert.Equal(t, TierFree, status.Tier)
		})
	}
}

func TestSubscriptionClient_FailuresNotCached(t *testing.T) {
	ctx := context.Background()
	srv, hits := billingServer(t, http.StatusBadGateway, ``)
	client := NewSubscriptionClient(srv.URL, storage.NewMemoryStore(), time.Minute, utils.NewNopLogger())

	client.Check(ctx)
	client.Check(ctx)
	assert.EqualValues(t, 2, hits.Load())
}

func TestSubscriptionClient_NoBackend(t *testing.T) {
	client := NewSubscriptionClient("", storage.NewMemoryStore(), time.Minute, utils.NewNopLogger())
	assert.Equal(t, Status{Tier: TierFree}, client.Check(context.Background()))
}

func TestSubscriptionClient_UserIDPersisted(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	client := NewSubscriptionClient("", store, time.Minute, utils.NewNopLogger())

	id, err := client.UserID(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "user_"))

	again, err := NewSubscriptionClient("", store, time.Minute, utils.NewNopLogger()).UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestTierLimits(t *testing.T) {
	free := LimitsFor(Status{Tier: TierFree}, 2)
	assert.NoError(t, free.Allow(models.SiteBooking, 0))
	assert.NoError(t, free.Allow(models.SiteAirbnb, 1))
	assert.ErrorIs(t, free.Allow(models.SiteAgoda, 0), ErrTierLimit)
	assert.ErrorIs(t, free.Allow(models.SiteBooking, 2), ErrTierLimit)

	premium := LimitsFor(Status{Subscribed: true, Tier: TierPremium}, 2)
	assert.NoError(t, premium.Allow(models.SiteAgoda, 0))
	assert.NoError(t, premium.Allow(models.SiteBooking, 500))
}
