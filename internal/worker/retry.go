package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aptoswarm/internal/models"
)

// DefaultRetryInterval is the pause after a failed attempt
const DefaultRetryInterval = time.Second

// Sender performs one attempt of a task
type Sender interface {
	Send(ctx context.Context, wallet *models.Wallet, task *models.Task) *models.ModuleExecutionResult
}

// SleepFunc waits for d unless ctx ends first, reporting whether the full wait elapsed
type SleepFunc func(ctx context.Context, d time.Duration) bool

// RetryPolicy bounds the attempts of a task with a fixed pause between failures
type RetryPolicy struct {
	interval time.Duration
	sleep    SleepFunc
	logger   *zap.Logger
}

// NewRetryPolicy creates a retry policy
func NewRetryPolicy(interval time.Duration, logger *zap.Logger) *RetryPolicy {
	return &RetryPolicy{
		interval: interval,
		sleep:    sleepCtx,
		logger:   logger.Named("retry"),
	}
}

// WithSleep replaces the pause implementation
func (p *RetryPolicy) WithSleep(fn SleepFunc) *RetryPolicy {
	p.sleep = fn
	return p
}

// Send runs the task up to task.Retries times. Test mode tasks get exactly one attempt.
// RETRY results are retried immediately, SUCCESS and SENT end the loop, anything else
// pauses before the next attempt. A cancelled ctx ends the loop with the last result.
func (p *RetryPolicy) Send(ctx context.Context, s Sender, wallet *models.Wallet, task *models.Task) *models.ModuleExecutionResult {
	retries := task.Retries
	if retries < 1 {
		retries = 1
	}

	logger := p.logger.With(
		zap.String("wallet", wallet.Label()),
		zap.String("task_id", task.TaskID.String()),
		zap.String("module", string(task.Kind)))

	var result *models.ModuleExecutionResult

	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 && ctx.Err() != nil {
			logger.Info("Run stopped, abandoning retries", zap.Int("attempt", attempt))
			return result
		}

		result = p.attempt(ctx, s, wallet, task)

		if task.TestMode {
			return result
		}

		if result.Done() {
			return result
		}
		if result.ExecutionStatus == models.ExecutionRetry {
			continue
		}

		logger.Warn("Attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("retries", retries),
			zap.String("execution_status", string(result.ExecutionStatus)),
			zap.String("execution_info", result.ExecutionInfo))

		if attempt < retries && !p.sleep(ctx, p.interval) {
			return result
		}
	}

	logger.Error("Retries exhausted",
		zap.Int("retries", retries),
		zap.String("execution_status", string(result.ExecutionStatus)))

	return result
}

// attempt converts a module panic or a missing result into an ERROR result
func (p *RetryPolicy) attempt(ctx context.Context, s Sender, wallet *models.Wallet, task *models.Task) (result *models.ModuleExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Module panicked",
				zap.String("task_id", task.TaskID.String()),
				zap.String("module", string(task.Kind)),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = models.NewResult(models.ExecutionError, fmt.Sprintf("module panicked: %v", r), "")
		}
	}()

	result = s.Send(ctx, wallet, task)
	if result == nil {
		result = models.Errorf("module returned no result")
	}
	return result
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
