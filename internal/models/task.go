package models

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// ModuleKind identifies the protocol action a task is bound to
type ModuleKind string

const (
	KindTransfer        ModuleKind = "transfer"
	KindSwap            ModuleKind = "swap"
	KindAddLiquidity    ModuleKind = "add_liquidity"
	KindRemoveLiquidity ModuleKind = "remove_liquidity"
	KindSupply          ModuleKind = "supply"
	KindWithdraw        ModuleKind = "withdraw"
	KindDelegate        ModuleKind = "delegate"
	KindUnlock          ModuleKind = "unlock"
)

// reverseKinds maps a forward action onto the action that undoes it
var reverseKinds = map[ModuleKind]ModuleKind{
	KindSwap:         KindSwap,
	KindAddLiquidity: KindRemoveLiquidity,
	KindDelegate:     KindUnlock,
	KindSupply:       KindWithdraw,
}

// ReverseKind returns the kind of the reverse action, if the kind has one
func (k ModuleKind) ReverseKind() (ModuleKind, bool) {
	r, ok := reverseKinds[k]
	return r, ok
}

// Reversible reports whether tasks of this kind may set ReverseAction
func (k ModuleKind) Reversible() bool {
	_, ok := reverseKinds[k]
	return ok
}

// Valid reports whether the kind is known
func (k ModuleKind) Valid() bool {
	switch k {
	case KindTransfer, KindSwap, KindAddLiquidity, KindRemoveLiquidity,
		KindSupply, KindWithdraw, KindDelegate, KindUnlock:
		return true
	}
	return false
}

// AmountMode selects how a module computes the amount it moves
type AmountMode string

const (
	AmountFixed      AmountMode = "fixed"
	AmountAllBalance AmountMode = "all_balance"
	AmountPercent    AmountMode = "percent"
)

// AmountSpec configures amount selection. Min/Max are in whole coin units.
type AmountSpec struct {
	Mode       AmountMode `json:"mode" yaml:"mode"`
	Min        float64    `json:"min,omitempty" yaml:"min,omitempty"`
	Max        float64    `json:"max,omitempty" yaml:"max,omitempty"`
	MinPercent float64    `json:"min_percent,omitempty" yaml:"min_percent,omitempty"`
	MaxPercent float64    `json:"max_percent,omitempty" yaml:"max_percent,omitempty"`
}

// ActionParams holds the protocol-specific part of a task
type ActionParams struct {
	CoinX           string     `json:"coin_x,omitempty" yaml:"coin_x,omitempty"`
	CoinY           string     `json:"coin_y,omitempty" yaml:"coin_y,omitempty"`
	Amount          AmountSpec `json:"amount" yaml:"amount"`
	SlippagePercent float64    `json:"slippage_percent,omitempty" yaml:"slippage_percent,omitempty"`
	Validator       string     `json:"validator,omitempty" yaml:"validator,omitempty"`
	Recipient       string     `json:"recipient,omitempty" yaml:"recipient,omitempty"`
}

// Task is a configured unit of work bound to one module
type Task struct {
	TaskID uuid.UUID  `json:"task_id" yaml:"task_id"`
	Kind   ModuleKind `json:"module_name" yaml:"module_name"`
	Status TaskStatus `json:"status" yaml:"-"`

	Probability       int     `json:"probability" yaml:"probability"`
	GasPrice          uint64  `json:"gas_price" yaml:"gas_price"`
	GasLimit          uint64  `json:"gas_limit" yaml:"gas_limit"`
	ForcedGasLimit    bool    `json:"forced_gas_limit" yaml:"forced_gas_limit"`
	WaitForReceipt    bool    `json:"wait_for_receipt" yaml:"wait_for_receipt"`
	TxnWaitTimeoutSec float64 `json:"txn_wait_timeout_sec" yaml:"txn_wait_timeout_sec"`
	MinDelaySec       float64 `json:"min_delay_sec" yaml:"min_delay_sec"`
	MaxDelaySec       float64 `json:"max_delay_sec" yaml:"max_delay_sec"`
	Retries           int     `json:"retries" yaml:"retries"`
	Repeats           int     `json:"repeats" yaml:"repeats"`
	TestMode          bool    `json:"test_mode" yaml:"test_mode"`

	ReverseAction            bool    `json:"reverse_action" yaml:"reverse_action"`
	ReverseActionMinDelaySec float64 `json:"reverse_action_min_delay_sec" yaml:"reverse_action_min_delay_sec"`
	ReverseActionMaxDelaySec float64 `json:"reverse_action_max_delay_sec" yaml:"reverse_action_max_delay_sec"`

	// Virtual marks a twin derived from a forward task; ParentID is the forward task id
	Virtual  bool      `json:"virtual,omitempty" yaml:"-"`
	ParentID uuid.UUID `json:"parent_id,omitempty" yaml:"-"`

	Params ActionParams `json:"params" yaml:"params"`

	ResultHash string `json:"result_hash,omitempty" yaml:"-"`
	ResultInfo string `json:"result_info,omitempty" yaml:"-"`
}

// NewTask creates a task with defaults matching a fresh form
func NewTask(kind ModuleKind) *Task {
	return &Task{
		TaskID:            uuid.New(),
		Kind:              kind,
		Status:            TaskStatusCreated,
		Probability:       100,
		GasPrice:          100,
		GasLimit:          10000,
		WaitForReceipt:    true,
		TxnWaitTimeoutSec: 120,
		Retries:           1,
		Repeats:           1,
		Params: ActionParams{
			Amount: AmountSpec{Mode: AmountFixed},
		},
	}
}

// Clone returns a per-run copy sharing the task identity with a reset execution state
func (t *Task) Clone() *Task {
	c := *t
	c.Status = TaskStatusCreated
	c.ResultHash = ""
	c.ResultInfo = ""
	return &c
}

// Reverse derives the virtual twin that undoes this task
func (t *Task) Reverse() (*Task, error) {
	kind, ok := t.Kind.ReverseKind()
	if !ok {
		return nil, fmt.Errorf("module %s has no reverse action", t.Kind)
	}

	v := t.Clone()
	v.TaskID = uuid.New()
	v.Kind = kind
	v.Virtual = true
	v.ParentID = t.TaskID
	v.ReverseAction = false
	v.Probability = 100
	v.Repeats = 1

	if t.Kind == KindSwap {
		v.Params.CoinX, v.Params.CoinY = t.Params.CoinY, t.Params.CoinX
	}

	return v, nil
}

// Validate checks the task configuration and reports every violation
func (t *Task) Validate() error {
	var err error

	if !t.Kind.Valid() {
		err = multierr.Append(err, fmt.Errorf("unknown module %q", t.Kind))
	}
	if t.Probability < 0 || t.Probability > 100 {
		err = multierr.Append(err, fmt.Errorf("probability must be within [0, 100], got %d", t.Probability))
	}
	if t.GasPrice == 0 {
		err = multierr.Append(err, fmt.Errorf("gas price must be positive"))
	}
	if t.GasLimit == 0 {
		err = multierr.Append(err, fmt.Errorf("gas limit must be positive"))
	}
	if t.Retries < 1 {
		err = multierr.Append(err, fmt.Errorf("retries must be positive, got %d", t.Retries))
	}
	if t.Repeats < 1 {
		err = multierr.Append(err, fmt.Errorf("repeats must be positive, got %d", t.Repeats))
	}
	if t.WaitForReceipt && t.TxnWaitTimeoutSec <= 0 {
		err = multierr.Append(err, fmt.Errorf("txn wait timeout is required when waiting for receipt"))
	}
	err = multierr.Append(err, validateDelay("delay", t.MinDelaySec, t.MaxDelaySec))

	if t.ReverseAction {
		if !t.Kind.Reversible() {
			err = multierr.Append(err, fmt.Errorf("module %s does not support reverse action", t.Kind))
		}
		err = multierr.Append(err, validateDelay("reverse action delay",
			t.ReverseActionMinDelaySec, t.ReverseActionMaxDelaySec))
	}

	err = multierr.Append(err, t.Params.validate(t.Kind))
	return err
}

func validateDelay(name string, min, max float64) error {
	if min < 0 || max < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	if min > max {
		return fmt.Errorf("min %s %.2f exceeds max %.2f", name, min, max)
	}
	return nil
}

func (p ActionParams) validate(kind ModuleKind) error {
	var err error

	switch kind {
	case KindSwap, KindAddLiquidity, KindRemoveLiquidity:
		if p.CoinX == "" || p.CoinY == "" {
			err = multierr.Append(err, fmt.Errorf("coin pair is required"))
		} else if p.CoinX == p.CoinY {
			err = multierr.Append(err, fmt.Errorf("coin x and coin y must differ"))
		}
		if p.SlippagePercent < 0 || p.SlippagePercent >= 100 {
			err = multierr.Append(err, fmt.Errorf("slippage must be within [0, 100)"))
		}
	case KindTransfer, KindSupply, KindWithdraw:
		if p.CoinX == "" {
			err = multierr.Append(err, fmt.Errorf("coin is required"))
		}
	case KindDelegate, KindUnlock:
		if p.Validator == "" {
			err = multierr.Append(err, fmt.Errorf("validator address is required"))
		}
	}

	a := p.Amount
	switch a.Mode {
	case AmountFixed:
		if a.Min < 0 || a.Max < 0 {
			err = multierr.Append(err, fmt.Errorf("amounts must not be negative"))
		}
		if a.Max < a.Min {
			err = multierr.Append(err, fmt.Errorf("max amount %v is below min amount %v", a.Max, a.Min))
		}
	case AmountPercent:
		if a.MinPercent <= 0 || a.MaxPercent > 100 || a.MinPercent > a.MaxPercent {
			err = multierr.Append(err, fmt.Errorf("percent range must satisfy 0 < min <= max <= 100"))
		}
	case AmountAllBalance:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown amount mode %q", a.Mode))
	}

	return err
}
