package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aptoswarm/internal/config"
	"aptoswarm/internal/events"
	"aptoswarm/internal/models"
	"aptoswarm/internal/module"
)

// scriptedModule returns canned results and records its calls
type scriptedModule struct {
	kind models.ModuleKind

	mu      sync.Mutex
	calls   int
	results []*models.ModuleExecutionResult
	block   bool
	panics  bool
	// release makes Send ignore ctx and wait until the channel is closed
	release  chan struct{}
	finished int
}

func (m *scriptedModule) Kind() models.ModuleKind { return m.kind }

func (m *scriptedModule) BuildPayload(context.Context, *module.Env) (*module.Payload, error) {
	return nil, fmt.Errorf("not used")
}

func (m *scriptedModule) Send(ctx context.Context, _ *models.Wallet, _ *models.Task) *models.ModuleExecutionResult {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()

	if m.panics {
		panic("boom")
	}
	if m.block {
		<-ctx.Done()
		return models.Failedf("cancelled")
	}
	if m.release != nil {
		<-m.release
		m.mu.Lock()
		m.finished++
		m.mu.Unlock()
		return models.NewResult(models.ExecutionSuccess, "ok", "0xlate")
	}
	if len(m.results) == 0 {
		return models.NewResult(models.ExecutionSuccess, "ok", "0x"+uuid.NewString()[:8])
	}
	if n > len(m.results) {
		n = len(m.results)
	}
	return m.results[n-1]
}

func (m *scriptedModule) Finished() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

func (m *scriptedModule) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeModules map[models.ModuleKind]*scriptedModule

func (f fakeModules) Module(kind models.ModuleKind) (module.Module, error) {
	m, ok := f[kind]
	if !ok {
		return nil, fmt.Errorf("no module registered for %q", kind)
	}
	return m, nil
}

func allModules() fakeModules {
	f := fakeModules{}
	for _, k := range []models.ModuleKind{
		models.KindTransfer, models.KindSwap, models.KindAddLiquidity, models.KindRemoveLiquidity,
		models.KindSupply, models.KindWithdraw, models.KindDelegate, models.KindUnlock,
	} {
		f[k] = &scriptedModule{kind: k}
	}
	return f
}

type failingProxies struct{}

func (failingProxies) Validate(context.Context, *models.Wallet) error {
	return fmt.Errorf("connection refused")
}

func testExecutorConfig() config.ExecutorConfig {
	return config.ExecutorConfig{
		InterWalletDelay: 0,
		DefaultTaskDelay: 0,
		MaxWorkers:       3,
		RetryInterval:    time.Millisecond,
	}
}

func newTestExecutor(modules ModuleSource, em *events.Manager) *Executor {
	logger := zap.NewNop()
	retry := NewRetryPolicy(time.Millisecond, logger)
	return NewExecutor(modules, retry, em, nil, testExecutorConfig(), logger)
}

func testWallets(n int) []*models.Wallet {
	wallets := make([]*models.Wallet, n)
	for i := range wallets {
		wallets[i] = &models.Wallet{
			WalletID: uuid.New(),
			Name:     fmt.Sprintf("w%d", i),
			Status:   models.WalletStatusInactive,
		}
	}
	return wallets
}

func swapTask() *models.Task {
	t := models.NewTask(models.KindSwap)
	t.Params.CoinX, t.Params.CoinY = "APT", "USDC"
	return t
}

func transferTask() *models.Task {
	t := models.NewTask(models.KindTransfer)
	t.Params.CoinX = "APT"
	return t
}

func addLiquidityTask() *models.Task {
	t := models.NewTask(models.KindAddLiquidity)
	t.Params.CoinX, t.Params.CoinY = "APT", "USDC"
	return t
}

// eventLog records events as "type:wallet:module" strings
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) record(ev events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Event(nil), l.events...)
}

func (l *eventLog) strings() []string {
	return eventStrings(l.all())
}

func eventStrings(evs []events.Event) []string {
	var out []string
	for _, ev := range evs {
		s := string(ev.Type) + ":" + ev.Wallet.Name
		if ev.Task != nil {
			s += ":" + string(ev.Task.Kind)
		}
		out = append(out, s)
	}
	return out
}

func (l *eventLog) forWallet(name string) []events.Event {
	var out []events.Event
	for _, ev := range l.all() {
		if ev.Wallet.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
