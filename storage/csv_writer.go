package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/utils"
)

// CSVWriter exports the price change log to a CSV file
type CSVWriter struct {
	filePath string
	logger   *utils.Logger
}

// NewCSVWriter creates a new CSVWriter
func NewCSVWriter(filePath string, logger *utils.Logger) *CSVWriter {
	return &CSVWriter{filePath: filePath, logger: logger}
}

// Path returns the output file path
func (w *CSVWriter) Path() string {
	return w.filePath
}

// WritePriceChanges writes the change events, newest first, to the CSV file
func (w *CSVWriter) WritePriceChanges(events []models.PriceChangeEvent) error {
	// Ensure output directory exists
	dir := filepath.Dir(w.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(w.filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"site", "listing", "room", "old_price", "new_price",
		"currency", "change_percent", "direction", "url", "timestamp",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range events {
		row := []string{
			string(e.Site),
			e.ListingName,
			e.RoomLabel,
			e.OldPrice.Amount.String(),
			e.NewPrice.Amount.String(),
			e.NewPrice.Currency,
			e.PercentDelta,
			string(e.Direction),
			e.CanonicalURL,
			e.Timestamp.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			w.logger.Error("Failed to write CSV row for '%s': %v", e.ListingName, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	w.logger.Info("Price changes written to: %s (%d rows)", w.filePath, len(events))
	return nil
}
