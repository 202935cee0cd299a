package cycle

import (
	"math"
	"time"
)

// Row holds every derived field for one date. Undefined numeric fields are NaN.
type Row struct {
	Date         time.Time
	Value        float64
	Filled       float64
	MedianLong   float64
	FutureAvg    float64
	RollingShort float64
	Trend        Trend
	Level        Level
	Phase        Phase
}

type labels[T ~string] struct {
	high, low, neutral, unknown T
}

var (
	trendLabels = labels[Trend]{high: TrendRising, low: TrendFalling, neutral: TrendNeutral, unknown: TrendUnknown}
	levelLabels = labels[Level]{high: LevelAbove, low: LevelBelow, neutral: LevelNeutral, unknown: LevelUnknown}
)

// classify compares current against ref. A ratio exactly at the threshold is
// neutral, and so is a NaN ratio.
func classify[T ~string](current, ref, threshold float64, l labels[T]) T {
	if math.IsNaN(ref) {
		return l.unknown
	}
	ratio := current/ref - 1
	switch {
	case ratio > threshold:
		return l.high
	case ratio < -threshold:
		return l.low
	default:
		return l.neutral
	}
}

// nextPhase is the step function of the phase fold. Only a pair of decisive
// signals moves the phase; anything else carries prev forward.
func nextPhase(prev Phase, trend Trend, level Level) Phase {
	switch {
	case trend == TrendRising && level == LevelBelow:
		return PhaseOverheating
	case trend == TrendFalling && level == LevelBelow:
		return PhaseGrowth
	case trend == TrendRising && level == LevelAbove:
		return PhaseRecession
	case trend == TrendFalling && level == LevelAbove:
		return PhaseRecovery
	default:
		return prev
	}
}

// assignPhases folds nextPhase over rows in ascending order.
func assignPhases(rows []Row) {
	prev := PhaseUnknown
	for i := range rows {
		prev = nextPhase(prev, rows[i].Trend, rows[i].Level)
		rows[i].Phase = prev
	}
}

// Classify derives the smoothed fields, signals and phase for every point of
// an ascending series.
//
// FutureAvg is the mean of a block that ends FutureOffset rows before the
// current one. The name follows the reference block's position relative to
// the start of its window, not the direction of the lookup.
func Classify(series Series, p Params) ([]Row, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	values := make([]float64, len(series))
	for i, pt := range series {
		values[i] = pt.Value
	}

	filled := forwardFill(values)
	medianLong := rollingMedian(filled, p.LongWindow)
	futureAvg := laggedBlockMean(filled, p.FutureOffset, p.FutureSpan)
	rollingShort := rollingMean(filled, p.ShortWindow)

	rows := make([]Row, len(series))
	for i, pt := range series {
		rows[i] = Row{
			Date:         pt.Date,
			Value:        pt.Value,
			Filled:       filled[i],
			MedianLong:   medianLong[i],
			FutureAvg:    futureAvg[i],
			RollingShort: rollingShort[i],
			Trend:        classify(rollingShort[i], futureAvg[i], p.TrendThreshold, trendLabels),
			Level:        classify(filled[i], medianLong[i], p.LevelThreshold, levelLabels),
		}
	}
	assignPhases(rows)
	return rows, nil
}
