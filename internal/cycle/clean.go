package cycle

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lox/cyclewatch/internal/models"
)

// Point is one cleaned observation. Value is NaN when the raw token was
// missing or could not be parsed.
type Point struct {
	Date  time.Time
	Value float64
}

// Series is a cleaned series in ascending date order.
type Series []Point

// CleanStats counts what happened while cleaning a raw series.
type CleanStats struct {
	Rows        int
	Missing     int
	ParseErrors int
}

// ParseValue extracts a number from a noisy token. Every character other than
// digits and '.' is dropped; when more than one '.' remains, everything after
// the first one is joined into the fractional part ("1.2.3" parses as 1.23).
// It returns false when no number can be recovered.
func ParseValue(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if parts := strings.Split(clean, "."); len(parts) > 2 {
		clean = parts[0] + "." + strings.Join(parts[1:], "")
	}
	if clean == "" {
		return math.NaN(), false
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return math.NaN(), false
	}
	return d.InexactFloat64(), true
}

// Clean converts raw provider rows into a Series, one point per row. Rows are
// kept in the order received; dates are not gap-filled.
func Clean(raw []models.RawObservation) (Series, CleanStats) {
	stats := CleanStats{Rows: len(raw)}
	series := make(Series, len(raw))
	for i, obs := range raw {
		v, ok := ParseValue(obs.Value)
		if !ok {
			stats.Missing++
			// FRED marks holidays with "."
			if t := strings.TrimSpace(obs.Value); t != "" && t != "." {
				stats.ParseErrors++
			}
		}
		series[i] = Point{Date: obs.Date, Value: v}
	}
	return series, stats
}
