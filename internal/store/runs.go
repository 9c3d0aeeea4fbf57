package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const runColumns = `id, host, port, transport, stage, degraded, failure, error, verdict,
	triggered, commands_total, commands_ok, started_at, finished_at`

// InsertRun persists the metadata of a completed run.
func (s *Store) InsertRun(ctx context.Context, rec *RunRecord) error {
	triggered, err := encodeTriggered(rec.Triggered)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.Host, rec.Port, rec.Transport, rec.Stage, rec.Degraded,
		rec.Failure, rec.Error, rec.Verdict, triggered,
		rec.CommandsTotal, rec.CommandsOK, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun loads one run record by ID.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = $1`, id)

	rec, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var triggered []byte
	err := row.Scan(
		&rec.ID, &rec.Host, &rec.Port, &rec.Transport, &rec.Stage, &rec.Degraded,
		&rec.Failure, &rec.Error, &rec.Verdict, &triggered,
		&rec.CommandsTotal, &rec.CommandsOK, &rec.StartedAt, &rec.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Triggered, err = decodeTriggered(triggered)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func encodeTriggered(categories []string) ([]byte, error) {
	if categories == nil {
		categories = []string{}
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("failed to encode triggered categories: %w", err)
	}
	return data, nil
}

func decodeTriggered(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var categories []string
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode triggered categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, nil
	}
	return categories, nil
}
