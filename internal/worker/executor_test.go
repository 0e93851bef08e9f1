package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aptoswarm/internal/events"
	"aptoswarm/internal/models"
	"aptoswarm/internal/storage"
)

func TestExecutor_SequentialEmitsTasksInTemplateOrder(t *testing.T) {
	em := events.NewManager(zap.NewNop())
	log := &eventLog{}
	em.Subscribe(log.record)

	exec := newTestExecutor(allModules(), em)
	wallets := testWallets(1)

	err := exec.Process(context.Background(), wallets, []*models.Task{swapTask(), transferTask()},
		models.RunSettings{Strategy: models.StrategySequential})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"wallet_started:w0",
		"task_started:w0:swap",
		"task_completed:w0:swap",
		"task_started:w0:transfer",
		"task_completed:w0:transfer",
		"wallet_completed:w0",
	}, log.strings())
	assert.Equal(t, models.WalletStatusCompleted, wallets[0].Status)
}

func TestExecutor_VirtualTwinFollowsAfterReverseDelay(t *testing.T) {
	em := events.NewManager(zap.NewNop())
	log := &eventLog{}
	em.Subscribe(log.record)

	add := addLiquidityTask()
	add.ReverseAction = true
	add.MinDelaySec, add.MaxDelaySec = 1, 1
	add.ReverseActionMinDelaySec, add.ReverseActionMaxDelaySec = 1, 1

	exec := newTestExecutor(allModules(), em)
	err := exec.Process(context.Background(), testWallets(1), []*models.Task{add},
		models.RunSettings{Strategy: models.StrategySequential})
	require.NoError(t, err)

	var taskEvents []events.Event
	for _, ev := range log.all() {
		if ev.Task != nil {
			taskEvents = append(taskEvents, ev)
		}
	}
	require.Len(t, taskEvents, 4)

	assert.Equal(t, events.TaskStarted, taskEvents[0].Type)
	assert.Equal(t, models.KindAddLiquidity, taskEvents[0].Task.Kind)
	assert.Equal(t, events.TaskCompleted, taskEvents[1].Type)
	assert.Equal(t, events.TaskStarted, taskEvents[2].Type)
	assert.Equal(t, models.KindRemoveLiquidity, taskEvents[2].Task.Kind)
	assert.True(t, taskEvents[2].Task.Virtual)
	assert.Equal(t, add.TaskID, taskEvents[2].Task.ParentID)
	assert.Equal(t, events.TaskCompleted, taskEvents[3].Type)

	gap := taskEvents[2].Time.Sub(taskEvents[1].Time)
	assert.GreaterOrEqual(t, gap, time.Second)
}

func TestExecutor_ProbabilityGate(t *testing.T) {
	tests := []struct {
		name        string
		probability int
		wantCalls   int
		wantStatus  models.TaskStatus
	}{
		{name: "zero never runs", probability: 0, wantCalls: 0, wantStatus: models.TaskStatusSkipped},
		{name: "hundred always runs", probability: 100, wantCalls: 20, wantStatus: models.TaskStatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			em := events.NewManager(zap.NewNop())
			var completed []models.Task
			em.OnTaskCompleted(func(task models.Task, _ models.Wallet) { completed = append(completed, task) })

			modules := allModules()
			task := transferTask()
			task.Probability = tt.probability
			task.Repeats = 20

			exec := newTestExecutor(modules, em)
			require.NoError(t, exec.Process(context.Background(), testWallets(1), []*models.Task{task},
				models.RunSettings{Strategy: models.StrategySequential}))

			assert.Equal(t, tt.wantCalls, modules[models.KindTransfer].Calls())
			require.Len(t, completed, 20)
			for _, c := range completed {
				assert.Equal(t, tt.wantStatus, c.Status)
			}
		})
	}
}

func TestExecutor_VirtualTwinSkippedWhenForwardFails(t *testing.T) {
	em := events.NewManager(zap.NewNop())
	log := &eventLog{}
	em.Subscribe(log.record)

	modules := allModules()
	modules[models.KindSwap].results = []*models.ModuleExecutionResult{models.Failedf("slippage")}

	task := swapTask()
	task.ReverseAction = true

	wallets := testWallets(1)
	exec := newTestExecutor(modules, em)
	require.NoError(t, exec.Process(context.Background(), wallets, []*models.Task{task},
		models.RunSettings{Strategy: models.StrategySequential}))

	// the twin shares the swap module, only the forward attempt reached it
	assert.Equal(t, 1, modules[models.KindSwap].Calls())

	evs := log.all()
	last := evs[len(evs)-2]
	require.NotNil(t, last.Task)
	assert.True(t, last.Task.Virtual)
	assert.Equal(t, models.TaskStatusSkipped, last.Task.Status)
	assert.Equal(t, models.WalletStatusFailed, wallets[0].Status)
}

func TestExecutor_ProxyFailureSkipsTask(t *testing.T) {
	em := events.NewManager(zap.NewNop())
	modules := allModules()
	logger := zap.NewNop()

	exec := NewExecutor(modules, NewRetryPolicy(0, logger), em, failingProxies{}, testExecutorConfig(), logger)

	task := transferTask()
	task.Retries = 3
	require.NoError(t, exec.Process(context.Background(), testWallets(1), []*models.Task{task},
		models.RunSettings{Strategy: models.StrategySequential}))

	assert.Zero(t, modules[models.KindTransfer].Calls())
}

func TestExecutor_PoolKeepsPerWalletOrder(t *testing.T) {
	em := events.NewManager(zap.NewNop())
	log := &eventLog{}
	em.Subscribe(log.record)

	swap := swapTask()
	swap.ReverseAction = true
	templates := []*models.Task{swap, transferTask(), addLiquidityTask()}

	exec := newTestExecutor(allModules(), em)
	require.NoError(t, exec.Process(context.Background(), testWallets(5), templates,
		models.RunSettings{Strategy: models.StrategyPool, MaxWorkers: 3}))

	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("w%d", i)
		evs := log.forWallet(name)
		require.Len(t, evs, 2+2*4, name)

		assert.Equal(t, events.WalletStarted, evs[0].Type)
		assert.Equal(t, events.WalletCompleted, evs[len(evs)-1].Type)

		var started []models.ModuleKind
		for _, ev := range evs {
			if ev.Type == events.TaskStarted {
				started = append(started, ev.Task.Kind)
			}
		}
		assert.Equal(t, []models.ModuleKind{
			models.KindSwap, models.KindSwap, models.KindTransfer, models.KindAddLiquidity,
		}, started, name)
	}
}

func TestExecutor_ShuffleAssignsIndexes(t *testing.T) {
	exec := newTestExecutor(allModules(), events.NewManager(zap.NewNop()))
	wallets := testWallets(10)

	plan, err := exec.Prepare(wallets, []*models.Task{transferTask()},
		models.RunSettings{ShuffleWallets: true, ShuffleTasks: true})
	require.NoError(t, err)

	ordered := plan.Wallets()
	require.Len(t, ordered, 10)
	for i, w := range ordered {
		assert.Equal(t, i, w.Index)
	}
	assert.Equal(t, models.StrategySequential, plan.Settings.Strategy)
}

func TestExecutor_PrepareRejectsBadInput(t *testing.T) {
	exec := newTestExecutor(fakeModules{models.KindSwap: {kind: models.KindSwap}}, events.NewManager(zap.NewNop()))

	_, err := exec.Prepare(nil, []*models.Task{swapTask()}, models.RunSettings{})
	assert.Error(t, err)

	_, err = exec.Prepare(testWallets(1), nil, models.RunSettings{})
	assert.Error(t, err)

	_, err = exec.Prepare(testWallets(1), []*models.Task{transferTask()}, models.RunSettings{})
	assert.Error(t, err)

	_, err = exec.Prepare(testWallets(1), []*models.Task{swapTask()}, models.RunSettings{Strategy: "fork"})
	assert.Error(t, err)
}

func TestRandomDelayBounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		d := randomDelay(5, 10)
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 10*time.Second)
	}
	assert.Equal(t, 3*time.Second, randomDelay(3, 3))
}

func TestNextDelay(t *testing.T) {
	exec := newTestExecutor(allModules(), events.NewManager(zap.NewNop()))
	exec.cfg.DefaultTaskDelay = 42 * time.Millisecond

	forward := swapTask()
	forward.MinDelaySec, forward.MaxDelaySec = 7, 7
	forward.ReverseAction = true
	forward.ReverseActionMinDelaySec, forward.ReverseActionMaxDelaySec = 2, 2
	twin, err := forward.Reverse()
	require.NoError(t, err)

	ok := models.NewResult(models.ExecutionSuccess, "", "0x1")

	assert.Equal(t, 2*time.Second, exec.nextDelay(forward, twin, ok))
	assert.Equal(t, 7*time.Second, exec.nextDelay(forward, transferTask(), ok))
	assert.Equal(t, 42*time.Millisecond, exec.nextDelay(forward, twin, nil))

	forward.TestMode = true
	assert.Equal(t, 42*time.Millisecond, exec.nextDelay(forward, transferTask(), ok))
}

func TestPassesProbability(t *testing.T) {
	for i := 0; i < 1000; i++ {
		assert.False(t, passesProbability(0))
		assert.True(t, passesProbability(100))
	}
}

func TestRunManager_StopDuringInterWalletDelaySkipsRemainingWallets(t *testing.T) {
	em := events.NewManager(zap.NewNop())
	log := &eventLog{}
	em.Subscribe(log.record)

	exec := newTestExecutor(allModules(), em)
	exec.cfg.InterWalletDelay = 5 * time.Second
	rm := NewRunManager(exec, em, storage.NewExecutionStorage(), zap.NewNop())

	em.OnWalletCompleted(func(w models.Wallet) {
		if w.Name == "w0" {
			rm.Stop()
		}
	})

	wallets := testWallets(2)
	_, err := rm.Start(wallets, []*models.Task{swapTask(), transferTask()}, models.RunSettings{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, rm.Wait(ctx))

	assert.Equal(t, []string{
		"wallet_started:w0",
		"task_started:w0:swap",
		"task_completed:w0:swap",
		"task_started:w0:transfer",
		"task_completed:w0:transfer",
		"wallet_completed:w0",
	}, log.strings())
	assert.Empty(t, log.forWallet("w1"))
	assert.Equal(t, models.WalletStatusInactive, wallets[1].Status)

	run, ok := rm.Current()
	require.True(t, ok)
	assert.Equal(t, models.RunStatusStopped, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestRunManager_RejectsConcurrentRuns(t *testing.T) {
	em := events.NewManager(zap.NewNop())
	modules := allModules()
	modules[models.KindTransfer].block = true

	exec := newTestExecutor(modules, em)
	store := storage.NewExecutionStorage()
	rm := NewRunManager(exec, em, store, zap.NewNop())

	_, err := rm.Start(testWallets(1), []*models.Task{transferTask()},
		models.RunSettings{Strategy: models.StrategyDetached})
	require.NoError(t, err)
	assert.True(t, rm.Running())

	_, err = rm.Start(testWallets(1), []*models.Task{transferTask()}, models.RunSettings{})
	assert.ErrorIs(t, err, ErrRunInProgress)

	// detached runs stop hard, the blocked send is cancelled
	require.True(t, rm.Stop())
	require.NoError(t, rm.Shutdown(2*time.Second))
	assert.False(t, rm.Running())
	assert.True(t, em.Stopped())

	_, err = rm.Start(testWallets(1), []*models.Task{swapTask()}, models.RunSettings{})
	require.NoError(t, err)
	assert.False(t, em.Stopped())
	require.NoError(t, rm.Wait(context.Background()))
}

func TestRunManager_StoppedDetachedRunStaysSilentAfterRestart(t *testing.T) {
	em := events.NewManager(zap.NewNop())
	log := &eventLog{}
	em.Subscribe(log.record)

	modules := allModules()
	release := make(chan struct{})
	modules[models.KindTransfer].release = release

	cfg := testExecutorConfig()
	cfg.DetachedStopWait = 20 * time.Millisecond
	exec := NewExecutor(modules, NewRetryPolicy(time.Millisecond, zap.NewNop()), em, nil, cfg, zap.NewNop())
	rm := NewRunManager(exec, em, storage.NewExecutionStorage(), zap.NewNop())

	stale := testWallets(1)
	_, err := rm.Start(stale, []*models.Task{transferTask()}, models.RunSettings{Strategy: models.StrategyDetached})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return modules[models.KindTransfer].Calls() == 1 },
		time.Second, time.Millisecond)

	// the send ignores cancellation, so the stop times out waiting for it
	require.True(t, rm.Stop())
	require.NoError(t, rm.Wait(context.Background()))
	before := len(log.forWallet("w0"))

	next := testWallets(1)
	next[0].Name = "next"
	_, err = rm.Start(next, []*models.Task{swapTask()}, models.RunSettings{})
	require.NoError(t, err)
	require.NoError(t, rm.Wait(context.Background()))

	close(release)
	require.Eventually(t, func() bool { return modules[models.KindTransfer].Finished() == 1 },
		time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, log.forWallet("w0"), before)
	assert.Equal(t, []string{"wallet_started:w0", "task_started:w0:transfer"}, eventStrings(log.forWallet("w0")))
	assert.Equal(t, models.WalletStatusActive, stale[0].Status)

	assert.Equal(t, models.WalletStatusCompleted, next[0].Status)
	assert.Equal(t, []string{
		"wallet_started:next", "task_started:next:swap", "task_completed:next:swap", "wallet_completed:next",
	}, eventStrings(log.forWallet("next")))
}

func TestExecutor_DetachedDeliversQueuedEvents(t *testing.T) {
	em := events.NewManager(zap.NewNop())
	log := &eventLog{}
	em.Subscribe(log.record)

	exec := newTestExecutor(allModules(), em)
	require.NoError(t, exec.Process(context.Background(), testWallets(2), []*models.Task{swapTask()},
		models.RunSettings{Strategy: models.StrategyDetached}))

	assert.Equal(t, []string{
		"wallet_started:w0", "task_started:w0:swap", "task_completed:w0:swap", "wallet_completed:w0",
		"wallet_started:w1", "task_started:w1:swap", "task_completed:w1:swap", "wallet_completed:w1",
	}, log.strings())
}

func TestStatusMonitor(t *testing.T) {
	em := events.NewManager(zap.NewNop())
	monitor := NewStatusMonitor(em)

	modules := allModules()
	modules[models.KindTransfer].results = []*models.ModuleExecutionResult{models.Failedf("no funds")}

	task := transferTask()
	task.Repeats = 2
	exec := newTestExecutor(modules, em)
	monitor.RunStarted(models.Run{})
	require.NoError(t, exec.Process(context.Background(), testWallets(2), []*models.Task{swapTask(), task},
		models.RunSettings{Strategy: models.StrategyPool}))

	snap := monitor.Snapshot()
	require.Len(t, snap.Wallets, 2)
	for i, w := range snap.Wallets {
		assert.Equal(t, i, w.Index)
		assert.Equal(t, models.WalletStatusFailed, w.Status)
		require.Len(t, w.Tasks, 3)
		assert.Equal(t, models.TaskStatusSuccess, w.Tasks[0].Status)
		assert.Equal(t, models.TaskStatusFailed, w.Tasks[2].Status)
	}
	assert.Equal(t, 6, snap.Completed)
	assert.Equal(t, 2, snap.ByStatus[models.TaskStatusSuccess])
	assert.Equal(t, 4, snap.ByStatus[models.TaskStatusFailed])
}
