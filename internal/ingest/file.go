package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lox/cyclewatch/internal/models"
)

// FileProvider reads a series from a local CSV in the same layout FRED serves.
type FileProvider struct {
	path     string
	seriesID string
}

func NewFileProvider(path, seriesID string) *FileProvider {
	if seriesID == "" {
		seriesID = DefaultSeriesID
	}
	return &FileProvider{path: path, seriesID: seriesID}
}

func (f *FileProvider) Source() string   { return "file" }
func (f *FileProvider) SeriesID() string { return f.seriesID }

// Fetch returns the rows dated within [start, end]. A zero start or end
// leaves that side open.
func (f *FileProvider) Fetch(ctx context.Context, start, end time.Time) ([]models.RawObservation, *FetchResult, error) {
	body, err := os.ReadFile(f.path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	observations, result, err := decodeRange(body, f.seriesID, start, end)
	if err != nil {
		return nil, result, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return observations, result, ctx.Err()
}

// PayloadProvider serves a series from a CSV body already in memory, such as
// a payload archived by an earlier run.
type PayloadProvider struct {
	body     []byte
	seriesID string
}

func NewPayloadProvider(body []byte, seriesID string) *PayloadProvider {
	if seriesID == "" {
		seriesID = DefaultSeriesID
	}
	return &PayloadProvider{body: body, seriesID: seriesID}
}

func (p *PayloadProvider) Source() string   { return "archive" }
func (p *PayloadProvider) SeriesID() string { return p.seriesID }

func (p *PayloadProvider) Fetch(ctx context.Context, start, end time.Time) ([]models.RawObservation, *FetchResult, error) {
	observations, result, err := decodeRange(p.body, p.seriesID, start, end)
	if err != nil {
		return nil, result, fmt.Errorf("decode payload: %w", err)
	}
	return observations, result, ctx.Err()
}

func decodeRange(body []byte, seriesID string, start, end time.Time) ([]models.RawObservation, *FetchResult, error) {
	result := &FetchResult{ResponseSize: len(body), Body: body}

	all, skipped, err := DecodeSeriesCSV(bytes.NewReader(body), seriesID)
	if err != nil {
		return nil, result, err
	}
	result.SkippedRows = skipped

	observations := make([]models.RawObservation, 0, len(all))
	for _, obs := range all {
		if !start.IsZero() && obs.Date.Before(start) {
			continue
		}
		if !end.IsZero() && obs.Date.After(end) {
			continue
		}
		observations = append(observations, obs)
	}
	result.RecordCount = len(observations)
	return observations, result, nil
}
