package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"aptoswarm/internal/models"
	"aptoswarm/internal/tasks"
	"aptoswarm/internal/tokens"
)

// GasPriceSource suggests a gas unit price
type GasPriceSource interface {
	EstimateGasPrice(ctx context.Context) (uint64, error)
}

// FeeService estimates the maximum network fees of tasks and runs
type FeeService struct {
	gas    GasPriceSource
	logger *zap.Logger
}

// NewFeeService creates a new fee service. gas may be nil, in which case tasks
// without an explicit gas price cannot be estimated.
func NewFeeService(gas GasPriceSource, logger *zap.Logger) *FeeService {
	return &FeeService{
		gas:    gas,
		logger: logger.Named("fees"),
	}
}

// FeeEstimate holds the fee bound of one task attempt
type FeeEstimate struct {
	TaskID      string          `json:"task_id"`
	ModuleName  string          `json:"module_name"`
	GasLimit    uint64          `json:"gas_limit"`
	GasPrice    uint64          `json:"gas_price"`
	MaxFeeOctas decimal.Decimal `json:"max_fee_octas"`
	MaxFeeAPT   decimal.Decimal `json:"max_fee_apt"`
}

// RunEstimate sums the fee bounds of a run
type RunEstimate struct {
	Wallets        int             `json:"wallets"`
	TasksPerWallet int             `json:"tasks_per_wallet"`
	Tasks          []FeeEstimate   `json:"tasks"`
	PerWalletAPT   decimal.Decimal `json:"per_wallet_apt"`
	TotalAPT       decimal.Decimal `json:"total_apt"`
}

// MaxFee computes the fee bound of a single attempt: gas_limit * gas_price octas
func MaxFee(gasLimit, gasPrice uint64) (octas, apt decimal.Decimal) {
	octas = decimal.NewFromBigInt(bigU64(gasLimit), 0).Mul(decimal.NewFromBigInt(bigU64(gasPrice), 0))
	return octas, octas.Shift(-int32(tokens.APT().Decimals))
}

// EstimateTask computes the fee bound of one task. A zero gas price falls back
// to the network estimate.
func (s *FeeService) EstimateTask(ctx context.Context, task *models.Task) (*FeeEstimate, error) {
	price := task.GasPrice
	if price == 0 {
		if s.gas == nil {
			return nil, fmt.Errorf("task %s has no gas price and no network estimate is available", task.TaskID)
		}
		estimated, err := s.gas.EstimateGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas price: %w", err)
		}
		price = estimated
	}

	octas, apt := MaxFee(task.GasLimit, price)

	s.logger.Debug("Estimated task fee",
		zap.String("task_id", task.TaskID.String()),
		zap.String("module", string(task.Kind)),
		zap.Uint64("gas_limit", task.GasLimit),
		zap.Uint64("gas_price", price),
		zap.String("max_fee_apt", apt.String()))

	return &FeeEstimate{
		TaskID:      task.TaskID.String(),
		ModuleName:  string(task.Kind),
		GasLimit:    task.GasLimit,
		GasPrice:    price,
		MaxFeeOctas: octas,
		MaxFeeAPT:   apt,
	}, nil
}

// EstimateRun bounds the fees of running templates on every wallet, counting
// repeats and virtual twins. Retries are not counted.
func (s *FeeService) EstimateRun(ctx context.Context, templates []*models.Task, wallets int) (*RunEstimate, error) {
	if wallets < 1 {
		return nil, fmt.Errorf("wallet count must be positive, got %d", wallets)
	}

	schedule, err := tasks.Expand(templates)
	if err != nil {
		return nil, err
	}

	est := &RunEstimate{
		Wallets:        wallets,
		TasksPerWallet: len(schedule),
		PerWalletAPT:   decimal.Zero,
	}
	for _, t := range schedule {
		fee, err := s.EstimateTask(ctx, t)
		if err != nil {
			return nil, err
		}
		est.Tasks = append(est.Tasks, *fee)
		est.PerWalletAPT = est.PerWalletAPT.Add(fee.MaxFeeAPT)
	}
	est.TotalAPT = est.PerWalletAPT.Mul(decimal.NewFromInt(int64(wallets)))

	s.logger.Info("Estimated run fees",
		zap.Int("wallets", wallets),
		zap.Int("tasks_per_wallet", est.TasksPerWallet),
		zap.String("total_apt", est.TotalAPT.String()))

	return est, nil
}

// ValidateBudget checks that a balance covers the per-wallet fee bound
func (s *FeeService) ValidateBudget(est *RunEstimate, balanceAPT decimal.Decimal) error {
	if balanceAPT.LessThan(est.PerWalletAPT) {
		return fmt.Errorf("balance %s APT is below the fee bound %s APT per wallet",
			balanceAPT.String(), est.PerWalletAPT.String())
	}
	return nil
}

func bigU64(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
