package module

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/config"
	"aptoswarm/internal/models"
	"aptoswarm/internal/storage"
)

const testPrivateKey = "0x1111111111111111111111111111111111111111111111111111111111111111"

// fakeChain is an in-memory ChainClient
type fakeChain struct {
	mu sync.Mutex

	balances map[string]uint64
	views    map[string][]uint64
	// options answer views returning option<u128>, keyed by function suffix
	options map[string]uint64

	simSuccess bool
	simGasUsed uint64
	simErr     error
	submitErr  error

	// receipts are returned in order by TransactionByHash, the last one repeats
	receipts []*aptos.Transaction

	built     []*aptos.RawTransaction
	submitted []*aptos.RawTransaction
	polls     int
}

func newFakeChain() *fakeChain {
	success := true
	return &fakeChain{
		balances:   make(map[string]uint64),
		views:      make(map[string][]uint64),
		options:    make(map[string]uint64),
		simSuccess: true,
		simGasUsed: 150,
		receipts:   []*aptos.Transaction{{Type: aptos.TypeUserTransaction, Hash: "0xfeed", Success: &success, VMStatus: "Executed successfully"}},
	}
}

func (f *fakeChain) CoinBalance(_ context.Context, _ string, coinType string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[coinType], nil
}

func (f *fakeChain) View(_ context.Context, req aptos.ViewRequest) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for fn, value := range f.options {
		if strings.HasSuffix(req.Function, fn) {
			raw, _ := json.Marshal(map[string][]string{"vec": {strconv.FormatUint(value, 10)}})
			return []json.RawMessage{raw}, nil
		}
	}
	for fn, values := range f.views {
		if strings.HasSuffix(req.Function, fn) {
			out := make([]json.RawMessage, 0, len(values))
			for _, v := range values {
				raw, _ := json.Marshal(strconv.FormatUint(v, 10))
				out = append(out, raw)
			}
			return out, nil
		}
	}
	return nil, errors.New("unexpected view " + req.Function)
}

func (f *fakeChain) BuildTransaction(_ context.Context, sender string, payload aptos.EntryFunctionPayload, maxGas, gasPrice uint64) (*aptos.RawTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := &aptos.RawTransaction{
		Sender:         sender,
		SequenceNumber: 0,
		GasUnitPrice:   gasPrice,
		Payload:        payload,
	}
	tx.SetMaxGasAmount(maxGas)
	f.built = append(f.built, tx)
	return tx, nil
}

func (f *fakeChain) Simulate(_ context.Context, _ *aptos.RawTransaction, _ *aptos.Account) (*aptos.Transaction, error) {
	if f.simErr != nil {
		return nil, f.simErr
	}
	success := f.simSuccess
	status := "Executed successfully"
	if !success {
		status = "Move abort: EINSUFFICIENT_OUTPUT"
	}
	return &aptos.Transaction{
		Type:     aptos.TypeUserTransaction,
		Success:  &success,
		VMStatus: status,
		GasUsed:  strconv.FormatUint(f.simGasUsed, 10),
	}, nil
}

func (f *fakeChain) Submit(_ context.Context, tx *aptos.RawTransaction, _ *aptos.Account) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, tx)
	return "0xfeed", nil
}

func (f *fakeChain) TransactionByHash(_ context.Context, _ string) (*aptos.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.polls
	if idx >= len(f.receipts) {
		idx = len(f.receipts) - 1
	}
	f.polls++

	r := f.receipts[idx]
	if r == nil {
		return nil, &aptos.APIError{StatusCode: 404, Message: "not found"}
	}
	return r, nil
}

func testLifecycle(chain *fakeChain, store *storage.ExecutionStorage) *Lifecycle {
	return NewLifecycle(
		func(*models.Wallet) ChainClient { return chain },
		store,
		config.DefaultProtocols(),
		LifecycleConfig{
			DefaultReceiptTimeout: time.Second,
			PollInterval:          5 * time.Millisecond,
			GraceWait:             10 * time.Millisecond,
		},
		zap.NewNop(),
	)
}

func testWallet() *models.Wallet {
	return &models.Wallet{
		WalletID:    uuid.New(),
		Name:        "w1",
		PrivateKey:  testPrivateKey,
		PairAddress: "0x2",
		Status:      models.WalletStatusActive,
	}
}
