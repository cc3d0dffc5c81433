package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/runlens/runlens/internal/domain"
	"github.com/runlens/runlens/internal/domain/transcript"
	"github.com/runlens/runlens/internal/port/archive"
)

// defaultListLimit caps ListRuns when the caller does not give a limit.
const defaultListLimit = 50

// Store implements archive.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// scannable abstracts pgx.Row and pgx.Rows for the shared scan helper.
type scannable interface {
	Scan(dest ...any) error
}

func scanRunRecord(row scannable) (archive.RunRecord, error) {
	var rec archive.RunRecord
	err := row.Scan(&rec.ID, &rec.Workflow, &rec.Status, &rec.StartedAt,
		&rec.FinishedAt, &rec.EventCount, &rec.SegmentCount)
	return rec, err
}

// SaveRun persists the run summary and its transcript in one transaction.
// Saving the same run again replaces the previous archive.
func (s *Store) SaveRun(ctx context.Context, rec *archive.RunRecord, segments []transcript.Segment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, workflow_key, status, started_at, finished_at, event_count, segment_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   workflow_key = EXCLUDED.workflow_key,
		   status = EXCLUDED.status,
		   started_at = EXCLUDED.started_at,
		   finished_at = EXCLUDED.finished_at,
		   event_count = EXCLUDED.event_count,
		   segment_count = EXCLUDED.segment_count,
		   archived_at = now()`,
		rec.ID, rec.Workflow, rec.Status, rec.StartedAt, rec.FinishedAt, rec.EventCount, len(segments))
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", rec.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM run_segments WHERE run_id = $1`, rec.ID); err != nil {
		return fmt.Errorf("clear segments for run %s: %w", rec.ID, err)
	}

	for i, seg := range segments {
		data, err := json.Marshal(seg)
		if err != nil {
			return fmt.Errorf("marshal segment %d: %w", i, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO run_segments (run_id, position, segment) VALUES ($1, $2, $3)`,
			rec.ID, i, data); err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive for run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun returns the archived summary for a run.
func (s *Store) GetRun(ctx context.Context, runID string) (*archive.RunRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, workflow_key, status, started_at, finished_at, event_count, segment_count
		 FROM runs WHERE id = $1`, runID)

	rec, err := scanRunRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("archived run %s: %w", runID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get archived run %s: %w", runID, err)
	}
	return &rec, nil
}

// ListRuns returns archived run summaries, most recently finished first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]archive.RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, workflow_key, status, started_at, finished_at, event_count, segment_count
		 FROM runs ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived runs: %w", err)
	}
	defer rows.Close()

	var runs []archive.RunRecord
	for rows.Next() {
		rec, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived run: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// LoadSegments returns the archived transcript for a run in order.
func (s *Store) LoadSegments(ctx context.Context, runID string) ([]transcript.Segment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT segment FROM run_segments WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("load segments for run %s: %w", runID, err)
	}
	defer rows.Close()

	var segments []transcript.Segment
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		var seg transcript.Segment
		if err := json.Unmarshal(data, &seg); err != nil {
			return nil, fmt.Errorf("unmarshal segment: %w", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load segments for run %s: %w", runID, err)
	}

	// Distinguish an empty transcript from a run that was never archived.
	if len(segments) == 0 {
		if _, err := s.GetRun(ctx, runID); err != nil {
			return nil, err
		}
	}
	return segments, nil
}
