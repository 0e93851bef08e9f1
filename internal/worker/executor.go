package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"aptoswarm/internal/config"
	"aptoswarm/internal/events"
	"aptoswarm/internal/models"
	"aptoswarm/internal/module"
	"aptoswarm/internal/tasks"
)

// ModuleSource resolves the module that executes a task kind
type ModuleSource interface {
	Module(kind models.ModuleKind) (module.Module, error)
}

// ProxyChecker validates a wallet's proxy before each task
type ProxyChecker interface {
	Validate(ctx context.Context, w *models.Wallet) error
}

// Executor turns wallets and task templates into scheduled module sends
type Executor struct {
	modules ModuleSource
	retry   *RetryPolicy
	events  *events.Manager
	proxies ProxyChecker
	cfg     config.ExecutorConfig
	sleep   SleepFunc
	logger  *zap.Logger

	// serializes task event delivery and status mutation in the pool strategy
	taskMu sync.Mutex
}

// NewExecutor creates an executor. proxies may be nil to skip proxy validation.
func NewExecutor(
	modules ModuleSource,
	retry *RetryPolicy,
	eventManager *events.Manager,
	proxies ProxyChecker,
	cfg config.ExecutorConfig,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		modules: modules,
		retry:   retry,
		events:  eventManager,
		proxies: proxies,
		cfg:     cfg,
		sleep:   sleepCtx,
		logger:  logger.Named("executor"),
	}
}

// job is one wallet with its expanded schedule
type job struct {
	wallet   *models.Wallet
	schedule []*models.Task
}

// Plan is a prepared run
type Plan struct {
	Settings         models.RunSettings
	InterWalletDelay time.Duration
	MaxWorkers       int
	jobs             []job
}

// Wallets returns the wallets in execution order
func (p *Plan) Wallets() []*models.Wallet {
	out := make([]*models.Wallet, len(p.jobs))
	for i, j := range p.jobs {
		out[i] = j.wallet
	}
	return out
}

// Schedule returns the expanded schedule of the i-th wallet
func (p *Plan) Schedule(i int) []*models.Task {
	return p.jobs[i].schedule
}

// Tasks returns the total number of scheduled tasks
func (p *Plan) Tasks() int {
	n := 0
	for _, j := range p.jobs {
		n += len(j.schedule)
	}
	return n
}

// Prepare shuffles, indexes and expands the run
func (e *Executor) Prepare(wallets []*models.Wallet, templates []*models.Task, settings models.RunSettings) (*Plan, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, errors.New("no wallets to process")
	}
	if len(templates) == 0 {
		return nil, errors.New("no tasks to process")
	}
	for _, t := range templates {
		if _, err := e.modules.Module(t.Kind); err != nil {
			return nil, err
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s task %s: %w", t.Kind, t.TaskID, err)
		}
	}

	if settings.Strategy == "" {
		settings.Strategy = models.StrategySequential
	}

	plan := &Plan{
		Settings:         settings,
		InterWalletDelay: e.cfg.InterWalletDelay,
		MaxWorkers:       e.cfg.MaxWorkers,
	}
	if settings.InterWalletDelaySec != nil {
		plan.InterWalletDelay = seconds(*settings.InterWalletDelaySec)
	}
	if settings.MaxWorkers > 0 {
		plan.MaxWorkers = settings.MaxWorkers
	}
	if plan.MaxWorkers < 1 {
		plan.MaxWorkers = 1
	}

	ordered := append([]*models.Wallet(nil), wallets...)
	if settings.ShuffleWallets {
		rand.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	}

	for i, w := range ordered {
		w.Index = i
		w.Status = models.WalletStatusInactive

		own := append([]*models.Task(nil), templates...)
		if settings.ShuffleTasks {
			rand.Shuffle(len(own), func(i, j int) { own[i], own[j] = own[j], own[i] })
		}
		schedule, err := tasks.Expand(own)
		if err != nil {
			return nil, err
		}
		plan.jobs = append(plan.jobs, job{wallet: w, schedule: schedule})
	}

	return plan, nil
}

// Process prepares and executes a run, blocking until it finishes or ctx is cancelled
func (e *Executor) Process(ctx context.Context, wallets []*models.Wallet, templates []*models.Task, settings models.RunSettings) error {
	plan, err := e.Prepare(wallets, templates, settings)
	if err != nil {
		return err
	}
	return e.Execute(ctx, plan)
}

// Execute runs a prepared plan with its strategy
func (e *Executor) Execute(ctx context.Context, plan *Plan) error {
	e.logger.Info("Run started",
		zap.String("strategy", string(plan.Settings.Strategy)),
		zap.Int("wallets", len(plan.jobs)),
		zap.Int("tasks", plan.Tasks()),
		zap.Int("max_workers", plan.MaxWorkers))

	var err error
	switch plan.Settings.Strategy {
	case models.StrategySequential:
		e.runSequential(ctx, plan, sequentialMode)
	case models.StrategyPool:
		err = e.runPool(ctx, plan)
	case models.StrategyDetached:
		e.runDetached(ctx, plan)
	default:
		err = fmt.Errorf("unknown strategy %q", plan.Settings.Strategy)
	}

	if ctx.Err() != nil {
		e.logger.Info("Run stopped")
		return err
	}
	e.logger.Info("Run finished")
	return err
}

// processWallet runs one wallet's schedule in order
func (e *Executor) processWallet(ctx context.Context, j job, mode runMode) {
	w := j.wallet
	logger := e.logger.With(zap.String("wallet", w.Label()), zap.Int("index", w.Index))

	if ctx.Err() != nil {
		return
	}

	w.Status = models.WalletStatusActive
	e.events.EmitWalletStarted(w)
	logger.Info("Wallet started", zap.Int("tasks", len(j.schedule)))

	failed := false
	var prev *models.Task

	for i, task := range j.schedule {
		if ctx.Err() != nil {
			logger.Info("Run stopped, leaving wallet", zap.Int("next_task", i))
			return
		}

		result := e.processTask(ctx, w, task, prev, mode)
		if task.Status == models.TaskStatusFailed {
			failed = true
		}
		prev = task

		if i == len(j.schedule)-1 {
			break
		}
		if !e.sleep(ctx, e.nextDelay(task, j.schedule[i+1], result)) {
			logger.Info("Run stopped during task delay")
			return
		}
	}

	if mode.abandon && ctx.Err() != nil {
		logger.Info("Run stopped, wallet left as is")
		return
	}

	if failed {
		w.Status = models.WalletStatusFailed
	} else {
		w.Status = models.WalletStatusCompleted
	}
	e.events.EmitWalletCompleted(w)
	logger.Info("Wallet completed", zap.String("status", string(w.Status)))
}

// processTask gates, sends and records one task. The result is nil when the task was skipped.
func (e *Executor) processTask(
	ctx context.Context,
	w *models.Wallet,
	task *models.Task,
	prev *models.Task,
	mode runMode,
) *models.ModuleExecutionResult {
	logger := e.logger.With(
		zap.String("wallet", w.Label()),
		zap.String("task_id", task.TaskID.String()),
		zap.String("module", string(task.Kind)))

	reason := e.gate(ctx, w, task, prev)
	if mode.abandon && ctx.Err() != nil {
		return nil
	}
	if reason != "" {
		logger.Info("Task skipped", zap.String("reason", reason))
		e.critical(mode.serialize, func() {
			task.Status = models.TaskStatusSkipped
			task.ResultInfo = reason
			e.events.EmitTaskCompleted(task, w)
		})
		return nil
	}

	e.critical(mode.serialize, func() {
		task.Status = models.TaskStatusProcessing
		e.events.EmitTaskStarted(task, w)
	})

	var result *models.ModuleExecutionResult
	mod, err := e.modules.Module(task.Kind)
	if err != nil {
		result = models.Errorf("%v", err)
	} else {
		result = e.retry.Send(ctx, mode.wrap(mod), w, task)
	}

	if mode.abandon && ctx.Err() != nil {
		logger.Info("Run stopped, dropping task outcome",
			zap.String("execution_status", string(result.ExecutionStatus)),
			zap.String("tx_hash", result.Hash))
		return nil
	}

	e.critical(mode.serialize, func() {
		task.Status = result.TaskStatus()
		task.ResultHash = result.Hash
		task.ResultInfo = result.ExecutionInfo
		e.events.EmitTaskCompleted(task, w)
	})

	logger.Info("Task completed",
		zap.String("execution_status", string(result.ExecutionStatus)),
		zap.String("status", string(task.Status)),
		zap.String("tx_hash", result.Hash))

	return result
}

// gate returns a non-empty reason when the task must not run
func (e *Executor) gate(ctx context.Context, w *models.Wallet, task *models.Task, prev *models.Task) string {
	if task.Virtual {
		if prev == nil || prev.TaskID != task.ParentID || prev.Status != models.TaskStatusSuccess {
			return "forward task did not succeed"
		}
	} else if !passesProbability(task.Probability) {
		return fmt.Sprintf("skipped by probability %d%%", task.Probability)
	}

	if e.proxies != nil {
		if err := e.proxies.Validate(ctx, w); err != nil {
			return fmt.Sprintf("proxy validation failed: %v", err)
		}
	}
	return ""
}

// passesProbability draws in [1, 100], so 0 never runs and 100 always runs
func passesProbability(probability int) bool {
	return rand.IntN(100)+1 <= probability
}

// nextDelay picks the pause between task and next
func (e *Executor) nextDelay(task, next *models.Task, result *models.ModuleExecutionResult) time.Duration {
	switch {
	case result == nil || task.TestMode:
		return e.cfg.DefaultTaskDelay
	case next.Virtual && next.ParentID == task.TaskID:
		return randomDelay(task.ReverseActionMinDelaySec, task.ReverseActionMaxDelaySec)
	default:
		return randomDelay(task.MinDelaySec, task.MaxDelaySec)
	}
}

func (e *Executor) critical(serialize bool, fn func()) {
	if serialize {
		e.taskMu.Lock()
		defer e.taskMu.Unlock()
	}
	fn()
}

// randomDelay draws uniformly from [minSec, maxSec]
func randomDelay(minSec, maxSec float64) time.Duration {
	if maxSec <= minSec {
		return seconds(minSec)
	}
	return seconds(minSec + rand.Float64()*(maxSec-minSec))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
