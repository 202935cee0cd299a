package ingest

import (
	"context"
	"time"

	"github.com/lox/cyclewatch/internal/models"
)

// FetchResult contains metadata about a provider fetch for the run audit.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	RecordCount  int
	SkippedRows  int
	Body         []byte
}

// SeriesProvider returns the raw observations of one series between start
// and end inclusive, ascending by date.
type SeriesProvider interface {
	Source() string
	SeriesID() string
	Fetch(ctx context.Context, start, end time.Time) ([]models.RawObservation, *FetchResult, error)
}
