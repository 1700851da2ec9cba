package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 6, cfg.RetryBudget)
	assert.Equal(t, 30*time.Second, cfg.PageCeiling)
	assert.Equal(t, 2*time.Second, cfg.DeliveryBackoff)
	assert.Equal(t, 5*time.Minute, cfg.SubscriptionCacheTTL)
	assert.Equal(t, 30, cfg.MinPrice)
	assert.Equal(t, 10000, cfg.MaxPrice)
	assert.Equal(t, 30, cfg.DefaultRefreshMinutes)
	assert.True(t, cfg.Headless)
	assert.True(t, cfg.Incognito)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("MAX_CONCURRENCY", "7")
	t.Setenv("PAGE_CEILING", "45s")
	t.Setenv("INCOGNITO", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, 7, cfg.MaxConcurrency)
	assert.Equal(t, 45*time.Second, cfg.PageCeiling)
	assert.False(t, cfg.Incognito)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("RETRY_BUDGET: 2\nLOG_LEVEL: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.RetryBudget)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	_, err := Load("")
	assert.Error(t, err)
}

func TestSiteTimings(t *testing.T) {
	timings := SiteTimings()
	assert.Equal(t, 12*time.Second, timings["booking"].RenderBudget)
	assert.Equal(t, 15*time.Second, timings["agoda"].RenderBudget)
	assert.Equal(t, 20*time.Second, timings["airbnb"].RenderBudget)
	assert.Equal(t, 1500*time.Millisecond, timings["airbnb"].InitialDelay)
}
