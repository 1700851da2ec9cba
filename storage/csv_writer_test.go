package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVWriter_WritePriceChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "changes.csv")
	w := NewCSVWriter(path, utils.NewNopLogger())

	events := []models.PriceChangeEvent{{
		Site:         models.SiteAgoda,
		ListingName:  "Hotel Sentral",
		CanonicalURL: "https://www.agoda.com/hotel-sentral/hotel/kuala-lumpur-my.html",
		RoomLabel:    "Agoda Room",
		OldPrice:     models.Money{Amount: decimal.NewFromInt(300), Currency: "RM"},
		NewPrice:     models.Money{Amount: decimal.NewFromInt(250), Currency: "RM"},
		PercentDelta: "16.7",
		Direction:    models.DirectionDown,
		Timestamp:    time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}}
	require.NoError(t, w.WritePriceChanges(events))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "site", records[0][0])
	assert.Equal(t, []string{
		"agoda", "Hotel Sentral", "Agoda Room", "300", "250", "RM", "16.7", "down",
		"https://www.agoda.com/hotel-sentral/hotel/kuala-lumpur-my.html", "2026-10-01T12:00:00Z",
	}, records[1])
}
