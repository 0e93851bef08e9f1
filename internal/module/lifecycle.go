package module

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/config"
	"aptoswarm/internal/models"
	"aptoswarm/internal/storage"
)

// State is a step of one send attempt
type State string

const (
	StateBuilding        State = "BUILDING"
	StateSimulating      State = "SIMULATING"
	StateTestMode        State = "TEST_MODE"
	StateSubmitting      State = "SUBMITTING"
	StateSubmitted       State = "SUBMITTED"
	StateAwaitingReceipt State = "AWAITING_RECEIPT"
)

// LifecycleConfig holds receipt polling settings
type LifecycleConfig struct {
	DefaultReceiptTimeout time.Duration
	PollInterval          time.Duration
	GraceWait             time.Duration
}

// LifecycleConfigFrom extracts lifecycle settings from the executor configuration
func LifecycleConfigFrom(cfg config.ExecutorConfig) LifecycleConfig {
	return LifecycleConfig{
		DefaultReceiptTimeout: cfg.DefaultReceiptTimeout,
		PollInterval:          cfg.ReceiptPollInterval,
		GraceWait:             cfg.ReceiptGraceWait,
	}
}

// Lifecycle runs build, simulate, submit and receipt polling for every module
type Lifecycle struct {
	clients   ClientFactory
	storage   *storage.ExecutionStorage
	protocols config.ProtocolConfig
	cfg       LifecycleConfig
	logger    *zap.Logger
}

// NewLifecycle creates the shared transaction lifecycle
func NewLifecycle(
	clients ClientFactory,
	store *storage.ExecutionStorage,
	protocols config.ProtocolConfig,
	cfg LifecycleConfig,
	logger *zap.Logger,
) *Lifecycle {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.DefaultReceiptTimeout <= 0 {
		cfg.DefaultReceiptTimeout = 120 * time.Second
	}
	return &Lifecycle{
		clients:   clients,
		storage:   store,
		protocols: protocols,
		cfg:       cfg,
		logger:    logger.Named("lifecycle"),
	}
}

// Execute performs one send attempt of task for wallet
func (l *Lifecycle) Execute(ctx context.Context, b Builder, wallet *models.Wallet, task *models.Task) *models.ModuleExecutionResult {
	logger := l.logger.With(
		zap.String("wallet", wallet.Label()),
		zap.String("task_id", task.TaskID.String()),
		zap.String("module", string(task.Kind)))

	account, err := aptos.AccountFromPrivateKey(wallet.PrivateKey)
	if err != nil {
		return models.Errorf("invalid wallet credential: %v", err)
	}
	client := l.clients(wallet)

	env := &Env{
		Wallet:    wallet,
		Task:      task,
		Address:   account.Address(),
		Client:    client,
		Storage:   l.storage,
		Protocols: l.protocols,
		Logger:    logger,
	}

	logger.Debug("Transaction state", zap.String("state", string(StateBuilding)))
	payload, err := b.BuildPayload(ctx, env)
	if err != nil {
		if errors.Is(err, ErrPrecondition) {
			logger.Warn("Payload precondition failed", zap.Error(err))
			return models.NewResult(models.ExecutionError, err.Error(), "")
		}
		logger.Error("Failed to build payload", zap.Error(err))
		return models.Failedf("failed to build payload: %v", err)
	}

	logger.Info("Payload built",
		zap.String("function", payload.Entry.Function),
		zap.String("description", payload.Description))

	tx, err := client.BuildTransaction(ctx, env.Address, payload.Entry, task.GasLimit, task.GasPrice)
	if err != nil {
		return models.Failedf("failed to build transaction: %v", err)
	}

	logger.Debug("Transaction state", zap.String("state", string(StateSimulating)))
	sim, err := client.Simulate(ctx, tx, account)
	if err != nil {
		return models.Failedf("simulation failed: %v", err)
	}
	if sim.Success == nil || !*sim.Success {
		logger.Warn("Simulation rejected", zap.String("vm_status", sim.VMStatus))
		return models.Failedf("simulation rejected: %s", sim.VMStatus)
	}

	gasLimit := DeriveGasLimit(sim.GasUsedUnits(), task)
	tx.SetMaxGasAmount(gasLimit)

	if task.TestMode {
		logger.Info("Transaction state",
			zap.String("state", string(StateTestMode)),
			zap.Uint64("gas_limit", gasLimit))
		return models.NewResult(models.ExecutionTestMode,
			fmt.Sprintf("simulation ok, gas_used=%s gas_limit=%d: %s", sim.GasUsed, gasLimit, payload.Description), "")
	}

	logger.Debug("Transaction state", zap.String("state", string(StateSubmitting)))
	hash, err := client.Submit(ctx, tx, account)
	if err != nil {
		logger.Error("Failed to submit transaction", zap.Error(err))
		return models.Failedf("failed to submit transaction: %v", err)
	}

	logger.Info("Transaction state",
		zap.String("state", string(StateSubmitted)),
		zap.String("tx_hash", hash))

	if !task.WaitForReceipt {
		return models.NewResult(models.ExecutionSent, payload.Description, hash)
	}

	timeout := time.Duration(task.TxnWaitTimeoutSec * float64(time.Second))
	if timeout <= 0 {
		timeout = l.cfg.DefaultReceiptTimeout
	}

	logger.Debug("Transaction state",
		zap.String("state", string(StateAwaitingReceipt)),
		zap.Duration("timeout", timeout))

	result := l.AwaitReceipt(ctx, client, hash, timeout)

	logger.Info("Transaction finished",
		zap.String("tx_hash", hash),
		zap.String("execution_status", string(result.ExecutionStatus)),
		zap.String("execution_info", result.ExecutionInfo))

	return result
}
