// Package cycle classifies a daily credit-spread series into economic cycle
// phases. Everything in this package is pure: no I/O, no shared state, and
// the same input always produces the same output.
package cycle

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInsufficientData is returned when a series is empty or never produced a
// decisive phase.
var ErrInsufficientData = errors.New("insufficient data")

// Trend is the direction of the short-run mean against the lagged reference block.
type Trend string

const (
	TrendRising  Trend = "RISING"
	TrendFalling Trend = "FALLING"
	TrendNeutral Trend = "NEUTRAL"
	TrendUnknown Trend = "UNKNOWN"
)

// Level is the position of the current value against the long-run median.
type Level string

const (
	LevelAbove   Level = "ABOVE"
	LevelBelow   Level = "BELOW"
	LevelNeutral Level = "NEUTRAL"
	LevelUnknown Level = "UNKNOWN"
)

// Phase is the economic cycle label assigned to a date.
type Phase string

const (
	PhaseOverheating Phase = "OVERHEATING"
	PhaseGrowth      Phase = "GROWTH"
	PhaseRecession   Phase = "RECESSION"
	PhaseRecovery    Phase = "RECOVERY"
	// PhaseUnknown is the empty label held before the first decisive signal.
	PhaseUnknown Phase = ""
)

// String returns the label, or UNKNOWN for the empty phase.
func (p Phase) String() string {
	if p == PhaseUnknown {
		return "UNKNOWN"
	}
	return string(p)
}

// Params controls the window lengths and thresholds of the classifier.
type Params struct {
	LongWindow     int     `validate:"min=1"`
	ShortWindow    int     `validate:"min=1"`
	FutureOffset   int     `validate:"min=0"`
	FutureSpan     int     `validate:"min=1"`
	TrendThreshold float64 `validate:"min=0"`
	LevelThreshold float64 `validate:"min=0"`
}

// DefaultParams returns the parameters used for the daily run.
func DefaultParams() Params {
	return Params{
		LongWindow:     3650,
		ShortWindow:    7,
		FutureOffset:   90,
		FutureSpan:     8,
		TrendThreshold: 0.05,
		LevelThreshold: 0.05,
	}
}

var validate = validator.New()

// Validate reports whether the parameters describe usable windows.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
