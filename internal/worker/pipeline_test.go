package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/config"
	"aptoswarm/internal/events"
	"aptoswarm/internal/models"
	"aptoswarm/internal/module"
	"aptoswarm/internal/storage"
	"aptoswarm/internal/tokens"
)

// swapChain is a ChainClient backing a single Liquidswap pool. Submitted swaps move
// balances at the quoted rate.
type swapChain struct {
	mu sync.Mutex

	balances map[string]uint64
	// quotes maps the input coin type to the get_amount_out answer
	quotes map[string]uint64

	built     []*aptos.RawTransaction
	submitted []*aptos.RawTransaction
}

func (c *swapChain) CoinBalance(_ context.Context, _ string, coinType string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[coinType], nil
}

func (c *swapChain) View(_ context.Context, req aptos.ViewRequest) ([]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.HasSuffix(req.Function, "::get_amount_out") {
		return nil, fmt.Errorf("unexpected view %s", req.Function)
	}
	raw, _ := json.Marshal(strconv.FormatUint(c.quotes[req.TypeArguments[0]], 10))
	return []json.RawMessage{raw}, nil
}

func (c *swapChain) BuildTransaction(_ context.Context, sender string, payload aptos.EntryFunctionPayload, maxGas, gasPrice uint64) (*aptos.RawTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &aptos.RawTransaction{Sender: sender, GasUnitPrice: gasPrice, Payload: payload}
	tx.SetMaxGasAmount(maxGas)
	c.built = append(c.built, tx)
	return tx, nil
}

func (c *swapChain) Simulate(context.Context, *aptos.RawTransaction, *aptos.Account) (*aptos.Transaction, error) {
	success := true
	return &aptos.Transaction{
		Type:     aptos.TypeUserTransaction,
		Success:  &success,
		VMStatus: "Executed successfully",
		GasUsed:  "150",
	}, nil
}

func (c *swapChain) Submit(_ context.Context, tx *aptos.RawTransaction, _ *aptos.Account) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, out := tx.Payload.TypeArguments[0], tx.Payload.TypeArguments[1]
	amount := uint64(tx.Payload.Arguments[0].(aptos.U64))
	c.balances[in] -= amount
	c.balances[out] += c.quotes[in]

	c.submitted = append(c.submitted, tx)
	return fmt.Sprintf("0x%x", len(c.submitted)), nil
}

func (c *swapChain) TransactionByHash(_ context.Context, hash string) (*aptos.Transaction, error) {
	success := true
	return &aptos.Transaction{Type: aptos.TypeUserTransaction, Hash: hash, Success: &success}, nil
}

func swapPipeline(t *testing.T, chain *swapChain) (*RunManager, *storage.ExecutionStorage, *eventLog) {
	t.Helper()
	logger := zap.NewNop()

	store := storage.NewExecutionStorage()
	lifecycle := module.NewLifecycle(
		func(*models.Wallet) module.ChainClient { return chain },
		store,
		config.DefaultProtocols(),
		module.LifecycleConfig{DefaultReceiptTimeout: time.Second, PollInterval: time.Millisecond},
		logger,
	)

	em := events.NewManager(logger)
	log := &eventLog{}
	em.Subscribe(log.record)

	exec := NewExecutor(module.NewRegistry(lifecycle), NewRetryPolicy(time.Millisecond, logger), em, nil,
		testExecutorConfig(), logger)
	return NewRunManager(exec, em, store, logger), store, log
}

func reversibleSwap(testMode bool) *models.Task {
	task := swapTask()
	task.Params.Amount = models.AmountSpec{Mode: models.AmountFixed, Min: 1, Max: 1}
	task.ReverseAction = true
	task.TestMode = testMode
	task.WaitForReceipt = false
	task.MinDelaySec, task.MaxDelaySec = 0, 0
	task.ReverseActionMinDelaySec, task.ReverseActionMaxDelaySec = 0, 0
	return task
}

func completedTasks(log *eventLog) []models.Task {
	var out []models.Task
	for _, ev := range log.all() {
		if ev.Type == events.TaskCompleted {
			out = append(out, *ev.Task)
		}
	}
	return out
}

func TestPipeline_SwapTwinReversesForwardSwap(t *testing.T) {
	for _, tc := range []struct {
		name      string
		testMode  bool
		submitted int
		usdcAfter uint64
	}{
		{name: "live", testMode: false, submitted: 2, usdcAfter: 0},
		{name: "test mode", testMode: true, submitted: 0, usdcAfter: 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			apt, err := tokens.Lookup("APT")
			require.NoError(t, err)
			usdc, err := tokens.Lookup("USDC")
			require.NoError(t, err)

			chain := &swapChain{
				balances: map[string]uint64{apt.CoinType: 5 * 100_000_000},
				quotes:   map[string]uint64{apt.CoinType: 40_000_000, usdc.CoinType: 99_000_000},
			}
			rm, store, log := swapPipeline(t, chain)

			// left over from an earlier run
			staleTask := uuid.New()
			store.Set(uuid.New(), staleTask, models.ExecutionRecord{Amount: 777})

			wallets := testWallets(1)
			wallets[0].PrivateKey = fmt.Sprintf("0x%064x", 7)
			forward := reversibleSwap(tc.testMode)

			_, err = rm.Start(wallets, []*models.Task{forward}, models.RunSettings{})
			require.NoError(t, err)
			require.NoError(t, rm.Wait(context.Background()))

			// the run starts from empty storage and only the forward swap records
			require.Equal(t, 1, store.Len())
			rec, ok := store.Get(wallets[0].WalletID, forward.TaskID)
			require.True(t, ok)
			assert.Equal(t, uint64(40_000_000), rec.Amount)
			require.NotNil(t, rec.InitialBalanceY)
			assert.Equal(t, uint64(0), *rec.InitialBalanceY)

			// the twin sells back what the forward swap bought
			require.Len(t, chain.built, 2)
			twin := chain.built[1].Payload
			assert.Equal(t, []string{usdc.CoinType, apt.CoinType}, twin.TypeArguments[:2])
			assert.Equal(t, aptos.U64(40_000_000), twin.Arguments[0])
			assert.Len(t, chain.submitted, tc.submitted)
			assert.Equal(t, tc.usdcAfter, chain.balances[usdc.CoinType])

			done := completedTasks(log)
			require.Len(t, done, 2)
			for _, task := range done {
				assert.Equal(t, models.TaskStatusSuccess, task.Status, task.ResultInfo)
			}
			assert.False(t, done[0].Virtual)
			assert.True(t, done[1].Virtual)
			assert.Equal(t, models.WalletStatusCompleted, wallets[0].Status)
		})
	}
}
