package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aptoswarm/internal/models"
)

// detachedQueueSize bounds events buffered between the detached run and listeners
const detachedQueueSize = 256

// defaultDetachedStopWait applies when the config leaves DetachedStopWait unset
const defaultDetachedStopWait = 10 * time.Second

// senderWrapper adapts a module before it is handed to the retry policy
type senderWrapper func(s Sender) Sender

// uncancellable lets an in-flight send finish after the run is stopped
type uncancellable struct {
	Sender
}

func (u uncancellable) Send(ctx context.Context, wallet *models.Wallet, task *models.Task) *models.ModuleExecutionResult {
	return u.Sender.Send(context.WithoutCancel(ctx), wallet, task)
}

func detachSends(s Sender) Sender { return uncancellable{s} }

func cancellableSends(s Sender) Sender { return s }

// runMode is how a strategy drives processWallet
type runMode struct {
	wrap senderWrapper
	// pool: task events and status changes share one mutex
	serialize bool
	// detached: outcomes arriving after a stop are dropped, not recorded
	abandon bool
}

var (
	sequentialMode = runMode{wrap: detachSends}
	poolMode       = runMode{wrap: detachSends, serialize: true}
	detachedMode   = runMode{wrap: cancellableSends, abandon: true}
)

// runSequential processes wallets one at a time
func (e *Executor) runSequential(ctx context.Context, plan *Plan, mode runMode) {
	for i, j := range plan.jobs {
		if ctx.Err() != nil {
			return
		}
		e.processWallet(ctx, j, mode)

		if i < len(plan.jobs)-1 && !e.sleep(ctx, plan.InterWalletDelay) {
			return
		}
	}
}

// runPool processes up to MaxWorkers wallets concurrently, pausing before each dispatch
func (e *Executor) runPool(ctx context.Context, plan *Plan) error {
	var g errgroup.Group
	g.SetLimit(plan.MaxWorkers)

	for i, j := range plan.jobs {
		if i > 0 && !e.sleep(ctx, plan.InterWalletDelay) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			e.processWallet(ctx, j, poolMode)
			return nil
		})
	}

	return g.Wait()
}

// runDetached runs the batch on its own goroutine with queued event delivery.
// Stopping abandons it: in-flight RPC calls are cancelled and whatever they return
// is neither recorded nor emitted. Transactions already submitted stay on chain.
// It returns once the goroutine exits or DetachedStopWait passes.
func (e *Executor) runDetached(ctx context.Context, plan *Plan) {
	e.events.StartQueue(detachedQueueSize)
	defer e.events.StopQueue()

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.runSequential(ctx, plan, detachedMode)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	wait := e.cfg.DetachedStopWait
	if wait <= 0 {
		wait = defaultDetachedStopWait
	}
	e.logger.Warn("Detached run terminated, waiting for in-flight call",
		zap.Int("wallets", len(plan.jobs)),
		zap.Duration("max_wait", wait))

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		// the goroutine checks ctx before every write, so it stays silent when it returns
		e.logger.Error("Detached run did not exit in time", zap.Duration("waited", wait))
	}
}
