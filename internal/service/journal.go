package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aptoswarm/internal/events"
	"aptoswarm/internal/models"
)

// RunRepository persists runs and their task results
type RunRepository interface {
	InsertRun(ctx context.Context, run *models.Run) error
	FinishRun(ctx context.Context, run *models.Run) error
	InsertTaskResult(ctx context.Context, r *models.TaskResult) error
	GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]models.Run, error)
	ListTaskResults(ctx context.Context, runID uuid.UUID) ([]models.TaskResult, error)
}

// journalWriteTimeout bounds each write so a slow database cannot stall event delivery for long
const journalWriteTimeout = 5 * time.Second

// Journal records runs and every completed task. Write failures are logged and
// never interrupt the run.
type Journal struct {
	repo   RunRepository
	logger *zap.Logger

	mu    sync.RWMutex
	runID uuid.UUID
}

// NewJournal creates a journal and subscribes it to task completions
func NewJournal(repo RunRepository, eventManager *events.Manager, logger *zap.Logger) *Journal {
	j := &Journal{
		repo:   repo,
		logger: logger.Named("journal"),
	}
	eventManager.OnTaskCompleted(j.recordTask)
	return j
}

// RunStarted records a new run and makes it the target of task results
func (j *Journal) RunStarted(run models.Run) {
	j.mu.Lock()
	j.runID = run.RunID
	j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	if err := j.repo.InsertRun(ctx, &run); err != nil {
		j.logger.Error("Failed to record run",
			zap.String("run_id", run.RunID.String()),
			zap.Error(err))
		return
	}

	j.logger.Info("Run recorded", zap.String("run_id", run.RunID.String()))
}

// RunFinished records the final status of a run
func (j *Journal) RunFinished(run models.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	if err := j.repo.FinishRun(ctx, &run); err != nil {
		j.logger.Error("Failed to record run completion",
			zap.String("run_id", run.RunID.String()),
			zap.Error(err))
		return
	}

	j.logger.Info("Run completion recorded",
		zap.String("run_id", run.RunID.String()),
		zap.String("status", string(run.Status)))
}

func (j *Journal) recordTask(task models.Task, wallet models.Wallet) {
	j.mu.RLock()
	runID := j.runID
	j.mu.RUnlock()

	if runID == uuid.Nil {
		j.logger.Warn("Task completed outside of a run",
			zap.String("task_id", task.TaskID.String()))
		return
	}

	result := &models.TaskResult{
		RunID:         runID,
		WalletID:      wallet.WalletID,
		WalletAddress: wallet.Address,
		TaskID:        task.TaskID,
		ModuleName:    task.Kind,
		Virtual:       task.Virtual,
		Status:        task.Status,
		ExecutionInfo: task.ResultInfo,
		CompletedAt:   time.Now().UTC(),
	}
	if task.ResultHash != "" {
		hash := task.ResultHash
		result.TxHash = &hash
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	if err := j.repo.InsertTaskResult(ctx, result); err != nil {
		j.logger.Error("Failed to record task result",
			zap.String("run_id", runID.String()),
			zap.String("wallet_id", wallet.WalletID.String()),
			zap.String("task_id", task.TaskID.String()),
			zap.Error(err))
		return
	}

	j.logger.Debug("Task result recorded",
		zap.String("run_id", runID.String()),
		zap.String("task_id", task.TaskID.String()),
		zap.String("status", string(task.Status)))
}

// Runs lists recorded runs, most recent first
func (j *Journal) Runs(ctx context.Context, limit, offset int) ([]models.Run, error) {
	return j.repo.ListRuns(ctx, limit, offset)
}

// Run returns a recorded run with its task results, or nil when unknown
func (j *Journal) Run(ctx context.Context, runID uuid.UUID) (*models.Run, []models.TaskResult, error) {
	run, err := j.repo.GetRun(ctx, runID)
	if err != nil || run == nil {
		return nil, nil, err
	}
	results, err := j.repo.ListTaskResults(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, results, nil
}
