package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrPayloadNotFound is returned when a run has no archived payload.
var ErrPayloadNotFound = errors.New("no archived payload")

// StoreRawPayload archives a gzip-compressed copy of a fetched series body.
// Returns the payload ID, or 0 if an identical payload is already stored.
func (s *Store) StoreRawPayload(ctx context.Context, runID int64, source, seriesID string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)

	var run sql.NullInt64
	if runID > 0 {
		run = sql.NullInt64{Int64: runID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_payloads (run_id, fetched_at, source, series_id, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, run, time.Now().UTC(), source, seriesID, buf.Bytes(), hex.EncodeToString(hash[:]))
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// GetRunPayload retrieves and decompresses the payload archived by a run.
// Runs whose body matched an earlier archive have none and return
// ErrPayloadNotFound.
func (s *Store) GetRunPayload(ctx context.Context, runID int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload_compressed FROM raw_payloads WHERE run_id = ?`, runID).
		Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", runID, ErrPayloadNotFound)
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// CleanupOldRawPayloads deletes payloads older than retentionDays and returns
// the number removed.
func (s *Store) CleanupOldRawPayloads(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := s.db.ExecContext(ctx, `DELETE FROM raw_payloads WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
