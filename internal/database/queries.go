package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"aptoswarm/internal/models"
)

// ==================== Run Queries ====================

// InsertRun records a started run
func (db *DB) InsertRun(ctx context.Context, run *models.Run) error {
	settings, err := json.Marshal(run.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode run settings: %w", err)
	}

	query := `
		INSERT INTO runs (run_id, strategy, wallets, tasks, status, settings, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = db.ExecContext(ctx, query,
		run.RunID,
		run.Strategy,
		run.Wallets,
		run.Tasks,
		run.Status,
		string(settings),
		run.StartedAt,
	)
	return err
}

// FinishRun stores the final status and finish time of a run
func (db *DB) FinishRun(ctx context.Context, run *models.Run) error {
	query := `
		UPDATE runs
		SET status = $1, finished_at = $2
		WHERE run_id = $3
	`
	res, err := db.ExecContext(ctx, query, run.Status, run.FinishedAt, run.RunID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", run.RunID)
	}
	return nil
}

type runRow struct {
	models.Run
	RawSettings []byte `db:"settings"`
}

func (r runRow) decode() (models.Run, error) {
	run := r.Run
	if len(r.RawSettings) > 0 {
		if err := json.Unmarshal(r.RawSettings, &run.Settings); err != nil {
			return run, fmt.Errorf("failed to decode settings of run %s: %w", run.RunID, err)
		}
	}
	return run, nil
}

// GetRun retrieves a run by id, returning nil when it does not exist
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	var row runRow
	query := `
		SELECT run_id, strategy, wallets, tasks, status, settings, started_at, finished_at
		FROM runs
		WHERE run_id = $1
	`
	err := db.GetContext(ctx, &row, query, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run, err := row.decode()
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs, most recent first
func (db *DB) ListRuns(ctx context.Context, limit, offset int) ([]models.Run, error) {
	var rows []runRow
	query := `
		SELECT run_id, strategy, wallets, tasks, status, settings, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`
	if err := db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, err
	}

	runs := make([]models.Run, 0, len(rows))
	for _, r := range rows {
		run, err := r.decode()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ==================== Task Result Queries ====================

const insertTaskResult = `
	INSERT INTO task_results (
		run_id, wallet_id, wallet_address, task_id, module_name,
		virtual, status, tx_hash, execution_info, completed_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id
`

// InsertTaskResult journals one completed task
func (db *DB) InsertTaskResult(ctx context.Context, r *models.TaskResult) error {
	return insertResult(ctx, db.DB, r)
}

// InsertTaskResults journals a batch of results atomically
func (db *DB) InsertTaskResults(ctx context.Context, results []*models.TaskResult) error {
	return db.InTransaction(func(tx *sqlx.Tx) error {
		for _, r := range results {
			if err := insertResult(ctx, tx, r); err != nil {
				return fmt.Errorf("failed to insert result of task %s: %w", r.TaskID, err)
			}
		}
		return nil
	})
}

func insertResult(ctx context.Context, q sqlx.QueryerContext, r *models.TaskResult) error {
	return q.QueryRowxContext(ctx, insertTaskResult,
		r.RunID,
		r.WalletID,
		r.WalletAddress,
		r.TaskID,
		r.ModuleName,
		r.Virtual,
		r.Status,
		r.TxHash,
		r.ExecutionInfo,
		r.CompletedAt,
	).Scan(&r.ID)
}

// ListTaskResults returns the results of a run in completion order
func (db *DB) ListTaskResults(ctx context.Context, runID uuid.UUID) ([]models.TaskResult, error) {
	var results []models.TaskResult
	query := `
		SELECT id, run_id, wallet_id, wallet_address, task_id, module_name,
		       virtual, status, tx_hash, execution_info, completed_at
		FROM task_results
		WHERE run_id = $1
		ORDER BY id
	`
	err := db.SelectContext(ctx, &results, query, runID)
	return results, err
}

// CountResultsByStatus aggregates the results of a run
func (db *DB) CountResultsByStatus(ctx context.Context, runID uuid.UUID) (map[models.TaskStatus]int, error) {
	var rows []struct {
		Status models.TaskStatus `db:"status"`
		Count  int               `db:"count"`
	}
	query := `
		SELECT status, COUNT(*) AS count
		FROM task_results
		WHERE run_id = $1
		GROUP BY status
	`
	if err := db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, err
	}

	counts := make(map[models.TaskStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
