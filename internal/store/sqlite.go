package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lox/cyclewatch/internal/models"
)

// ErrNotFound is returned when no status has been persisted yet.
var ErrNotFound = errors.New("no status data found")

// StatusStore persists one classification result per calendar day.
type StatusStore interface {
	PutStatus(ctx context.Context, rec models.StatusRecord) error
	LatestStatus(ctx context.Context) (*models.StatusRecord, error)
	ListStatuses(ctx context.Context, limit int) ([]models.StatusRecord, error)
}

// Store is the SQLite backend. Besides statuses it keeps the run audit log
// and the raw payload archive.
type Store struct {
	db *sql.DB
}

var _ StatusStore = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// PutStatus writes the record for its date, replacing any earlier record for
// the same day.
func (s *Store) PutStatus(ctx context.Context, rec models.StatusRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO economy_status (date, status, phase, since, preceding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			status = excluded.status,
			phase = excluded.phase,
			since = excluded.since,
			preceding = excluded.preceding,
			created_at = excluded.created_at
	`, rec.Key(), rec.Status, rec.Phase, rec.Since.Format(models.DateLayout), rec.Preceding, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("put status %s: %w", rec.Key(), err)
	}
	return nil
}

// LatestStatus returns the record with the greatest date.
func (s *Store) LatestStatus(ctx context.Context) (*models.StatusRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, status, phase, since, preceding, created_at
		FROM economy_status
		ORDER BY date DESC
		LIMIT 1
	`)
	rec, err := scanStatus(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest status: %w", err)
	}
	return rec, nil
}

// ListStatuses returns up to limit records, newest first. A limit of zero or
// less returns nothing.
func (s *Store) ListStatuses(ctx context.Context, limit int) ([]models.StatusRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, status, phase, since, preceding, created_at
		FROM economy_status
		ORDER BY date DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	var records []models.StatusRecord
	for rows.Next() {
		rec, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatus(row scanner) (*models.StatusRecord, error) {
	var rec models.StatusRecord
	var date, since string
	if err := row.Scan(&date, &rec.Status, &rec.Phase, &since, &rec.Preceding, &rec.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if rec.Date, err = time.Parse(models.DateLayout, date); err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	if rec.Since, err = time.Parse(models.DateLayout, since); err != nil {
		return nil, fmt.Errorf("parse since %q: %w", since, err)
	}
	return &rec, nil
}
