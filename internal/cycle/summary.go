package cycle

import (
	"fmt"
	"time"

	"github.com/lox/cyclewatch/internal/models"
)

// NotAvailable is reported as the preceding phase when the current run has
// no decisive phase before it.
const NotAvailable = "N/A"

// Summary describes the most recent run of a single phase.
type Summary struct {
	Phase     Phase
	Since     time.Time
	Preceding string
}

func (s Summary) String() string {
	return fmt.Sprintf(`Current status: "%s", since: "%s", before: "%s"`,
		s.Phase, s.Since.Format(models.DateLayout), s.Preceding)
}

// Summarize scans ascending rows from the newest date backwards. The current
// phase is the newest non-empty phase, Since is the oldest date of its
// contiguous run, and Preceding is the first non-empty phase before that run.
func Summarize(rows []Row) (Summary, error) {
	latest := -1
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Phase != PhaseUnknown {
			latest = i
			break
		}
	}
	if latest < 0 {
		return Summary{}, fmt.Errorf("summarize %d rows: %w", len(rows), ErrInsufficientData)
	}

	current := rows[latest].Phase
	start := latest
	for start > 0 && rows[start-1].Phase == current {
		start--
	}

	preceding := NotAvailable
	for i := start - 1; i >= 0; i-- {
		if rows[i].Phase != PhaseUnknown {
			preceding = string(rows[i].Phase)
			break
		}
	}

	return Summary{
		Phase:     current,
		Since:     rows[start].Date,
		Preceding: preceding,
	}, nil
}

// Result is the output of a full classification run.
type Result struct {
	Rows    []Row
	Summary Summary
	Stats   CleanStats
}

// Run cleans, classifies and summarizes raw observations.
func Run(raw []models.RawObservation, p Params) (*Result, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("classify empty series: %w", ErrInsufficientData)
	}
	series, stats := Clean(raw)
	rows, err := Classify(series, p)
	if err != nil {
		return nil, err
	}
	summary, err := Summarize(rows)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: rows, Summary: summary, Stats: stats}, nil
}
