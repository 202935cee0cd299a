package models

import (
	"time"
)

// DateLayout is the calendar-date format used for store keys and summaries.
const DateLayout = "2006-01-02"

// RawObservation is one row as received from a series provider. Value is the
// untouched token from the source and may be empty or noisy.
type RawObservation struct {
	Date  time.Time
	Value string
}

// StatusRecord is the per-day classification result persisted by a status store.
type StatusRecord struct {
	Date      time.Time `json:"datetime"`
	Status    string    `json:"status"`
	Phase     string    `json:"phase"`
	Since     time.Time `json:"since"`
	Preceding string    `json:"preceding"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the store key for the record, the calendar date as YYYY-MM-DD.
func (r StatusRecord) Key() string {
	return r.Date.Format(DateLayout)
}

// Day truncates t to a UTC calendar date using its wall-clock fields.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
