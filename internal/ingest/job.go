package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lox/cyclewatch/internal/cycle"
	"github.com/lox/cyclewatch/internal/metrics"
	"github.com/lox/cyclewatch/internal/models"
	"github.com/lox/cyclewatch/internal/store"
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"

	DefaultHistoryDays = 3652

	// RawRetentionDays bounds how long archived provider payloads are kept.
	RawRetentionDays = 90
)

var allPhases = []string{
	string(cycle.PhaseOverheating),
	string(cycle.PhaseGrowth),
	string(cycle.PhaseRecession),
	string(cycle.PhaseRecovery),
}

// Job fetches the full history, classifies it and persists today's status.
type Job struct {
	audit       *store.Store
	statuses    store.StatusStore
	provider    SeriesProvider
	params      cycle.Params
	historyDays int
	loc         *time.Location
	now         func() time.Time
	mu          sync.Mutex
}

// NewJob wires a job. audit may be nil, in which case runs and raw payloads
// are not recorded.
func NewJob(audit *store.Store, statuses store.StatusStore, provider SeriesProvider, params cycle.Params, historyDays int, loc *time.Location) *Job {
	if historyDays <= 0 {
		historyDays = DefaultHistoryDays
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Job{
		audit:       audit,
		statuses:    statuses,
		provider:    provider,
		params:      params,
		historyDays: historyDays,
		loc:         loc,
		now:         time.Now,
	}
}

// Today returns the current calendar date in the job's time zone.
func (j *Job) Today() time.Time {
	return models.Day(j.now().In(j.loc))
}

// Run executes one fetch, classify and store cycle. Concurrent calls are
// serialised.
func (j *Job) Run(ctx context.Context, trigger string) (*models.StatusRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	logger := log.With().Str("component", "job").Str("trigger", trigger).Str("series", j.provider.SeriesID()).Logger()

	end := j.Today()
	start := end.AddDate(0, 0, -j.historyDays)

	var run *store.Run
	if j.audit != nil {
		var err error
		run, err = j.audit.StartRun(ctx, j.provider.Source(), j.provider.SeriesID(), trigger)
		if err != nil {
			logger.Warn().Err(err).Msg("start run")
		}
	}

	rec, err := j.execute(ctx, run, start, end)
	if run != nil {
		run.Success = err == nil
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := j.audit.CompleteRun(ctx, run); cerr != nil {
			logger.Warn().Err(cerr).Msg("complete run")
		}
	}

	if err != nil {
		metrics.ClassificationRuns.WithLabelValues(trigger, "failure").Inc()
		logger.Error().Err(err).Msg("classification failed")
		return nil, err
	}

	if j.audit != nil {
		if removed, err := j.audit.CleanupOldRawPayloads(ctx, RawRetentionDays); err != nil {
			logger.Warn().Err(err).Msg("cleanup raw payloads")
		} else if removed > 0 {
			logger.Debug().Int64("removed", removed).Msg("old raw payloads removed")
		}
	}

	metrics.ClassificationRuns.WithLabelValues(trigger, "success").Inc()
	metrics.SetPhase(rec.Phase, allPhases)
	logger.Info().Str("date", rec.Key()).Str("phase", rec.Phase).
		Str("since", rec.Since.Format(models.DateLayout)).Str("preceding", rec.Preceding).
		Msg(rec.Status)
	return rec, nil
}

func (j *Job) execute(ctx context.Context, run *store.Run, start, end time.Time) (*models.StatusRecord, error) {
	observations, fetchResult, err := j.provider.Fetch(ctx, start, end)
	if fetchResult != nil {
		if run != nil {
			run.HTTPStatus = sql.NullInt64{Int64: int64(fetchResult.HTTPStatus), Valid: fetchResult.HTTPStatus > 0}
			run.ResponseSizeBytes = sql.NullInt64{Int64: int64(fetchResult.ResponseSize), Valid: fetchResult.ResponseSize > 0}
			run.RowsFetched = sql.NullInt64{Int64: int64(fetchResult.RecordCount), Valid: true}
		}
		if len(fetchResult.Body) > 0 && run != nil {
			if _, err := j.audit.StoreRawPayload(ctx, run.ID, j.provider.Source(), j.provider.SeriesID(), fetchResult.Body); err != nil {
				log.Warn().Err(err).Msg("store raw payload")
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", j.provider.SeriesID(), err)
	}
	metrics.ObservationsFetched.WithLabelValues(j.provider.SeriesID()).Set(float64(len(observations)))

	result, err := cycle.Run(observations, j.params)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", j.provider.SeriesID(), err)
	}

	stats := result.Stats
	if run != nil {
		run.MissingValues = sql.NullInt64{Int64: int64(stats.Missing), Valid: true}
		run.ParseErrors = sql.NullInt64{Int64: int64(stats.ParseErrors), Valid: true}
		run.Phase = sql.NullString{String: string(result.Summary.Phase), Valid: true}
	}
	if stats.ParseErrors > 0 {
		metrics.ParseErrors.WithLabelValues(j.provider.SeriesID()).Add(float64(stats.ParseErrors))
		log.Debug().Int("parse_errors", stats.ParseErrors).Int("missing", stats.Missing).Msg("unparseable values treated as missing")
	}

	rec := models.StatusRecord{
		Date:      end,
		Status:    result.Summary.String(),
		Phase:     string(result.Summary.Phase),
		Since:     result.Summary.Since,
		Preceding: result.Summary.Preceding,
		CreatedAt: time.Now().UTC(),
	}
	if err := j.statuses.PutStatus(ctx, rec); err != nil {
		return nil, fmt.Errorf("store status: %w", err)
	}
	return &rec, nil
}
