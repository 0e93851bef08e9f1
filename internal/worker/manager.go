package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aptoswarm/internal/events"
	"aptoswarm/internal/models"
	"aptoswarm/internal/storage"
)

// ErrRunInProgress is returned when a run is started while another one is active
var ErrRunInProgress = errors.New("a run is already in progress")

// RunObserver is told when runs start and finish
type RunObserver interface {
	RunStarted(run models.Run)
	RunFinished(run models.Run)
}

// RunManager owns the lifecycle of runs: one at a time, started in the background,
// stoppable at any point
type RunManager struct {
	executor  *Executor
	events    *events.Manager
	storage   *storage.ExecutionStorage
	observers []RunObserver
	logger    *zap.Logger

	mu      sync.Mutex
	current *models.Run
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewRunManager creates a run manager
func NewRunManager(
	executor *Executor,
	eventManager *events.Manager,
	store *storage.ExecutionStorage,
	logger *zap.Logger,
	observers ...RunObserver,
) *RunManager {
	return &RunManager{
		executor:  executor,
		events:    eventManager,
		storage:   store,
		observers: observers,
		logger:    logger.Named("runs"),
	}
}

// Start prepares a run and executes it in the background
func (rm *RunManager) Start(wallets []*models.Wallet, templates []*models.Task, settings models.RunSettings) (*models.Run, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.done != nil {
		select {
		case <-rm.done:
		default:
			return nil, ErrRunInProgress
		}
	}

	plan, err := rm.executor.Prepare(wallets, templates, settings)
	if err != nil {
		return nil, err
	}

	rm.storage.Reset()
	rm.events.Resume()

	run := &models.Run{
		RunID:     uuid.New(),
		Strategy:  plan.Settings.Strategy,
		Wallets:   len(plan.jobs),
		Tasks:     plan.Tasks(),
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
		Settings:  plan.Settings,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	rm.current = run
	rm.cancel = cancel
	rm.done = done
	rm.stopped = false

	for _, o := range rm.observers {
		o.RunStarted(*run)
	}

	rm.logger.Info("Run started",
		zap.String("run_id", run.RunID.String()),
		zap.String("strategy", string(run.Strategy)),
		zap.Int("wallets", run.Wallets),
		zap.Int("tasks", run.Tasks))

	go func() {
		defer close(done)
		defer cancel()

		if err := rm.executor.Execute(ctx, plan); err != nil {
			rm.logger.Error("Run failed", zap.String("run_id", run.RunID.String()), zap.Error(err))
		}
		rm.finish(run)
	}()

	copied := *run
	return &copied, nil
}

func (rm *RunManager) finish(run *models.Run) {
	rm.mu.Lock()
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	if rm.stopped {
		run.Status = models.RunStatusStopped
	} else {
		run.Status = models.RunStatusCompleted
	}
	snapshot := *run
	rm.mu.Unlock()

	for _, o := range rm.observers {
		o.RunFinished(snapshot)
	}

	rm.logger.Info("Run finished",
		zap.String("run_id", run.RunID.String()),
		zap.String("status", string(snapshot.Status)),
		zap.Duration("elapsed", finished.Sub(run.StartedAt)))
}

// Stop silences events and cancels the active run. Wallet and task statuses keep
// their last values.
func (rm *RunManager) Stop() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.cancel == nil || !rm.runningLocked() {
		return false
	}

	rm.logger.Info("Stopping run", zap.String("run_id", rm.current.RunID.String()))
	rm.stopped = true
	rm.events.Stop()
	rm.cancel()
	return true
}

// Wait blocks until the active run finishes or ctx ends
func (rm *RunManager) Wait(ctx context.Context) error {
	rm.mu.Lock()
	done := rm.done
	rm.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a run is active
func (rm *RunManager) Running() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.runningLocked()
}

func (rm *RunManager) runningLocked() bool {
	if rm.done == nil {
		return false
	}
	select {
	case <-rm.done:
		return false
	default:
		return true
	}
}

// Current returns the last started run
func (rm *RunManager) Current() (models.Run, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.current == nil {
		return models.Run{}, false
	}
	return *rm.current, true
}

// Shutdown stops the active run and waits for it up to timeout
func (rm *RunManager) Shutdown(timeout time.Duration) error {
	rm.logger.Info("Shutting down run manager")
	rm.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rm.Wait(ctx); err != nil {
		rm.logger.Warn("Run shutdown timed out")
		return err
	}
	rm.logger.Info("Run manager shutdown complete")
	return nil
}
