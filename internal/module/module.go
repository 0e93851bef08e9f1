// Package module drives one protocol action through the transaction lifecycle.
package module

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/config"
	"aptoswarm/internal/models"
	"aptoswarm/internal/storage"
)

// ErrPrecondition marks a payload that must not be submitted (zero balance, amount out of
// bounds, bad address). It surfaces as an ERROR result; any other build error is FAILED.
var ErrPrecondition = errors.New("precondition failed")

// preconditionf wraps ErrPrecondition with a formatted reason
func preconditionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// ChainClient is the subset of the Aptos REST client the modules depend on
type ChainClient interface {
	CoinBalance(ctx context.Context, owner, coinType string) (uint64, error)
	View(ctx context.Context, req aptos.ViewRequest) ([]json.RawMessage, error)
	BuildTransaction(ctx context.Context, sender string, payload aptos.EntryFunctionPayload, maxGasAmount, gasUnitPrice uint64) (*aptos.RawTransaction, error)
	Simulate(ctx context.Context, tx *aptos.RawTransaction, signer *aptos.Account) (*aptos.Transaction, error)
	Submit(ctx context.Context, tx *aptos.RawTransaction, signer *aptos.Account) (string, error)
	TransactionByHash(ctx context.Context, hash string) (*aptos.Transaction, error)
}

// ClientFactory returns the client a wallet talks to, routed through its proxy if it has one
type ClientFactory func(w *models.Wallet) ChainClient

// Env is everything a payload builder sees during one attempt
type Env struct {
	Wallet    *models.Wallet
	Task      *models.Task
	Address   string
	Client    ChainClient
	Storage   *storage.ExecutionStorage
	Protocols config.ProtocolConfig
	Logger    *zap.Logger
}

// Payload is a built transaction plus a human-readable summary for logs
type Payload struct {
	Entry       aptos.EntryFunctionPayload
	Description string
}

// Builder computes the payload of one protocol action
type Builder interface {
	Kind() models.ModuleKind
	BuildPayload(ctx context.Context, env *Env) (*Payload, error)
}

// Module is a protocol action bound to the shared lifecycle
type Module interface {
	Builder
	Send(ctx context.Context, wallet *models.Wallet, task *models.Task) *models.ModuleExecutionResult
}

type boundModule struct {
	Builder
	lifecycle *Lifecycle
}

func (m *boundModule) Send(ctx context.Context, wallet *models.Wallet, task *models.Task) *models.ModuleExecutionResult {
	return m.lifecycle.Execute(ctx, m.Builder, wallet, task)
}

// record reads the facts the forward task of a virtual twin stored
func (e *Env) record() (models.ExecutionRecord, error) {
	rec, ok := e.Storage.Get(e.Wallet.WalletID, e.Task.ParentID)
	if !ok {
		return rec, preconditionf("no execution record for forward task %s", e.Task.ParentID)
	}
	return rec, nil
}

// remember stores facts for the virtual twin when the task has a reverse action
func (e *Env) remember(rec models.ExecutionRecord) {
	if e.Task.Virtual || !e.Task.ReverseAction {
		return
	}
	e.Storage.Set(e.Wallet.WalletID, e.Task.TaskID, rec)
}
