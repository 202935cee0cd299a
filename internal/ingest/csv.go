package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lox/cyclewatch/internal/models"
)

var dateColumns = []string{"observation_date", "date"}

// DecodeSeriesCSV reads a two-column FRED style CSV. The date column may be
// called observation_date or DATE; the value column is the one named after
// seriesID, falling back to the first non-date column. Values are returned
// verbatim. Rows with an unreadable date are skipped and counted.
func DecodeSeriesCSV(r io.Reader, seriesID string) ([]models.RawObservation, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("empty csv")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	dateIdx, valueIdx := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		for _, dc := range dateColumns {
			if strings.EqualFold(name, dc) && dateIdx < 0 {
				dateIdx = i
			}
		}
		if strings.EqualFold(name, seriesID) {
			valueIdx = i
		}
	}
	if dateIdx < 0 {
		return nil, 0, fmt.Errorf("no date column in header %v", header)
	}
	if valueIdx < 0 {
		for i := range header {
			if i != dateIdx {
				valueIdx = i
				break
			}
		}
	}
	if valueIdx < 0 {
		return nil, 0, fmt.Errorf("no value column in header %v", header)
	}

	var observations []models.RawObservation
	skipped := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("read row %d: %w", len(observations)+skipped+2, err)
		}
		if dateIdx >= len(record) {
			skipped++
			continue
		}
		date, err := time.Parse(models.DateLayout, strings.TrimSpace(record[dateIdx]))
		if err != nil {
			skipped++
			continue
		}
		var value string
		if valueIdx < len(record) {
			value = record[valueIdx]
		}
		observations = append(observations, models.RawObservation{Date: date, Value: value})
	}
	return observations, skipped, nil
}
