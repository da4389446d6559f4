package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/darb-group/leadflow/internal/model"
)

const runColumns = `id, kind, status, current, total, message, result, error, created_at, updated_at`

func runDests(r *model.Run) []any {
	return []any{
		&r.ID, &r.Kind, &r.Status, &r.Current, &r.Total, &r.Message,
		&r.Result, &r.Error, &r.CreatedAt, &r.UpdatedAt,
	}
}

// CreateRun inserts a queued run record for the given engine kind.
func (s *PostgresStore) CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run := &model.Run{
		ID:     uuid.New().String(),
		Kind:   kind,
		Status: model.RunStatusQueued,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pipeline_runs (id, kind, status)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		run.ID, run.Kind, run.Status,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: create run")
	}
	return run, nil
}

// UpdateRunProgress records page/batch-level progress and flips the run to
// running.
func (s *PostgresStore) UpdateRunProgress(ctx context.Context, id string, current, total int, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2, current = $3, total = $4, message = $5, updated_at = $6
		WHERE id = $1`,
		id, model.RunStatusRunning, current, total, message, time.Now().UTC())
	if err != nil {
		return eris.Wrapf(err, "store: update run progress %s", id)
	}
	return nil
}

// CompleteRun stores the final result summary and marks the run complete.
func (s *PostgresStore) CompleteRun(ctx context.Context, id string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "store: marshal run result")
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2, result = $3, updated_at = $4
		WHERE id = $1`,
		id, model.RunStatusComplete, payload, time.Now().UTC())
	if err != nil {
		return eris.Wrapf(err, "store: complete run %s", id)
	}
	return nil
}

// FailRun records the failure message and marks the run failed.
func (s *PostgresStore) FailRun(ctx context.Context, id string, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2, error = $3, updated_at = $4
		WHERE id = $1`,
		id, model.RunStatusFailed, errMsg, time.Now().UTC())
	if err != nil {
		return eris.Wrapf(err, "store: fail run %s", id)
	}
	return nil
}

// GetRun fetches a run by ID, or (nil, nil).
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	run := &model.Run{}
	err := s.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM pipeline_runs WHERE id = $1`, id).
		Scan(runDests(run)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "store: get run %s", id)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM pipeline_runs
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(runDests(&r)...); err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
