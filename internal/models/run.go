package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Strategy selects how wallets are scheduled
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyPool       Strategy = "pool"
	StrategyDetached   Strategy = "detached"
)

// RunSettings configures one run
type RunSettings struct {
	ShuffleWallets bool     `json:"shuffle_wallets" yaml:"shuffle_wallets"`
	ShuffleTasks   bool     `json:"shuffle_tasks" yaml:"shuffle_tasks"`
	Strategy       Strategy `json:"strategy" yaml:"strategy"`
	MaxWorkers     int      `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// InterWalletDelaySec overrides the configured inter-wallet delay when set
	InterWalletDelaySec *float64 `json:"inter_wallet_delay_sec,omitempty" yaml:"inter_wallet_delay_sec,omitempty"`
}

// Validate checks the run settings
func (s RunSettings) Validate() error {
	switch s.Strategy {
	case StrategySequential, StrategyPool, StrategyDetached, "":
	default:
		return fmt.Errorf("unknown strategy %q", s.Strategy)
	}
	if s.MaxWorkers < 0 {
		return fmt.Errorf("max workers must not be negative")
	}
	if s.InterWalletDelaySec != nil && *s.InterWalletDelaySec < 0 {
		return fmt.Errorf("inter-wallet delay must not be negative")
	}
	return nil
}

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusStopped   RunStatus = "stopped"
)

// Run describes one invocation of the executor
type Run struct {
	RunID      uuid.UUID   `json:"run_id" db:"run_id"`
	Strategy   Strategy    `json:"strategy" db:"strategy"`
	Wallets    int         `json:"wallets" db:"wallets"`
	Tasks      int         `json:"tasks" db:"tasks"`
	Status     RunStatus   `json:"status" db:"status"`
	StartedAt  time.Time   `json:"started_at" db:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty" db:"finished_at"`
	Settings   RunSettings `json:"settings" db:"-"`
}

// TaskResult is a journaled task_completed event
type TaskResult struct {
	ID            int64      `json:"id" db:"id"`
	RunID         uuid.UUID  `json:"run_id" db:"run_id"`
	WalletID      uuid.UUID  `json:"wallet_id" db:"wallet_id"`
	WalletAddress string     `json:"wallet_address" db:"wallet_address"`
	TaskID        uuid.UUID  `json:"task_id" db:"task_id"`
	ModuleName    ModuleKind `json:"module_name" db:"module_name"`
	Virtual       bool       `json:"virtual" db:"virtual"`
	Status        TaskStatus `json:"status" db:"status"`
	TxHash        *string    `json:"tx_hash,omitempty" db:"tx_hash"`
	ExecutionInfo string     `json:"execution_info" db:"execution_info"`
	CompletedAt   time.Time  `json:"completed_at" db:"completed_at"`
}
