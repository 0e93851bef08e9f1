package module

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/models"
)

// AwaitReceipt polls a submitted transaction until it is committed or timeout elapses.
// A committed transaction without a success flag gets one grace wait before it is
// reported as failed. Timeouts keep the hash, the transaction may still land.
func (l *Lifecycle) AwaitReceipt(ctx context.Context, client ChainClient, hash string, timeout time.Duration) *models.ModuleExecutionResult {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	graceUsed := false

	for {
		tx, err := client.TransactionByHash(waitCtx, hash)
		switch {
		case err == nil && !tx.Pending():
			if tx.Success == nil {
				if graceUsed {
					return models.NewResult(models.ExecutionFailed, "receipt has no status", hash)
				}
				graceUsed = true
				if !sleepCtx(waitCtx, l.cfg.GraceWait) {
					return timedOut(ctx, hash)
				}
				continue
			}
			if *tx.Success {
				return models.NewResult(models.ExecutionSuccess, tx.VMStatus, hash)
			}
			return models.NewResult(models.ExecutionFailed, tx.VMStatus, hash)

		case err != nil && !errors.Is(err, aptos.ErrNotFound) && waitCtx.Err() == nil:
			l.logger.Warn("Failed to poll transaction",
				zap.String("tx_hash", hash),
				zap.Error(err))
		}

		select {
		case <-waitCtx.Done():
			return timedOut(ctx, hash)
		case <-ticker.C:
		}
	}
}

func timedOut(parent context.Context, hash string) *models.ModuleExecutionResult {
	if parent.Err() != nil {
		return models.NewResult(models.ExecutionTimeOut, "receipt wait interrupted", hash)
	}
	return models.NewResult(models.ExecutionTimeOut, fmt.Sprintf("transaction %s not confirmed in time", hash), hash)
}

// sleepCtx waits for d or until ctx is done, reporting whether the full wait elapsed
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
