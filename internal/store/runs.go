package store

import (
	"context"
	"database/sql"
	"time"
)

// Run is the audit record of one fetch-and-classify invocation.
type Run struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string // "fred", "file"
	SeriesID          string
	TriggeredBy       string // "schedule", "manual", "cli"
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RowsFetched       sql.NullInt64
	MissingValues     sql.NullInt64
	ParseErrors       sql.NullInt64
	Phase             sql.NullString
	Success           bool
	ErrorMessage      sql.NullString
}

// StartRun creates a new run record and returns it.
func (s *Store) StartRun(ctx context.Context, source, seriesID, triggeredBy string) (*Run, error) {
	run := &Run{
		StartedAt:   time.Now().UTC(),
		Source:      source,
		SeriesID:    seriesID,
		TriggeredBy: triggeredBy,
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO classification_runs (started_at, source, series_id, triggered_by, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, run.StartedAt, run.Source, run.SeriesID, run.TriggeredBy)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteRun updates the run with results.
func (s *Store) CompleteRun(ctx context.Context, run *Run) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE classification_runs SET
			finished_at = ?,
			http_status = ?,
			response_size_bytes = ?,
			rows_fetched = ?,
			missing_values = ?,
			parse_errors = ?,
			phase = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.RowsFetched,
		run.MissingValues, run.ParseErrors, run.Phase, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentRuns returns the latest runs, newest first. With failedOnly set only
// unsuccessful runs are returned.
func (s *Store) RecentRuns(ctx context.Context, limit int, failedOnly bool) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, source, series_id, triggered_by,
			   http_status, response_size_bytes, rows_fetched, missing_values,
			   parse_errors, phase, success, error_message
		FROM classification_runs
		WHERE (? = FALSE OR success = FALSE)
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, failedOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.SeriesID, &r.TriggeredBy,
			&r.HTTPStatus, &r.ResponseSizeBytes, &r.RowsFetched, &r.MissingValues,
			&r.ParseErrors, &r.Phase, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
