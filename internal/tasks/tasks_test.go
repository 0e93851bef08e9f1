package tasks

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptoswarm/internal/models"
)

func swapTask(reverse bool) *models.Task {
	t := models.NewTask(models.KindSwap)
	t.Params.CoinX, t.Params.CoinY = "APT", "USDC"
	t.Params.Amount = models.AmountSpec{Mode: models.AmountFixed, Min: 0.1, Max: 0.2}
	t.ReverseAction = reverse
	t.ReverseActionMinDelaySec, t.ReverseActionMaxDelaySec = 1, 2
	return t
}

func transferTask() *models.Task {
	t := models.NewTask(models.KindTransfer)
	t.Params.CoinX = "APT"
	return t
}

func TestExpand_VirtualTwinFollowsForward(t *testing.T) {
	forward := swapTask(true)
	plain := transferTask()

	schedule, err := Expand([]*models.Task{forward, plain})
	require.NoError(t, err)
	require.Len(t, schedule, 3)

	assert.Equal(t, forward.TaskID, schedule[0].TaskID)
	assert.False(t, schedule[0].Virtual)

	twin := schedule[1]
	assert.True(t, twin.Virtual)
	assert.Equal(t, forward.TaskID, twin.ParentID)
	assert.NotEqual(t, forward.TaskID, twin.TaskID)
	assert.Equal(t, "USDC", twin.Params.CoinX)

	assert.Equal(t, plain.TaskID, schedule[2].TaskID)
}

func TestExpand_RepeatsAreSequentialClones(t *testing.T) {
	forward := swapTask(true)
	forward.Repeats = 3

	schedule, err := Expand([]*models.Task{forward})
	require.NoError(t, err)
	require.Len(t, schedule, 6)

	for i := 0; i < 6; i += 2 {
		assert.Equal(t, forward.TaskID, schedule[i].TaskID)
		assert.NotSame(t, forward, schedule[i])
		assert.True(t, schedule[i+1].Virtual)
		assert.Equal(t, forward.TaskID, schedule[i+1].ParentID)
	}

	// clones are independent of the template and of each other
	schedule[0].Status = models.TaskStatusSuccess
	assert.Equal(t, models.TaskStatusCreated, forward.Status)
	assert.Equal(t, models.TaskStatusCreated, schedule[2].Status)
}

func TestQueue(t *testing.T) {
	q := NewQueue()
	a, b := swapTask(false), transferTask()

	require.NoError(t, q.Add(a, b))
	assert.Equal(t, 2, q.Len())
	assert.Error(t, q.Add(a))

	invalid := transferTask()
	invalid.Probability = 150
	assert.Error(t, q.Add(invalid))
	assert.Equal(t, 2, q.Len())

	got, ok := q.Get(b.TaskID)
	require.True(t, ok)
	assert.Same(t, b, got)

	assert.True(t, q.Remove(a.TaskID))
	assert.False(t, q.Remove(a.TaskID))
	assert.Equal(t, []*models.Task{b}, q.List())

	q.Clear()
	assert.Zero(t, q.Len())
}

func TestQueue_AddRejectsDuplicateWithinBatch(t *testing.T) {
	q := NewQueue()
	a := transferTask()

	err := q.Add(a, swapTask(false), a)
	assert.ErrorContains(t, err, "already queued")
	assert.Zero(t, q.Len())
}

func TestLoadTask_ModuleMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swap.yaml")
	require.NoError(t, SaveTask(path, swapTask(false)))

	_, err := LoadTask(path, models.KindTransfer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModuleMismatch))

	task, err := LoadTask(path, models.KindSwap)
	require.NoError(t, err)
	assert.Equal(t, models.KindSwap, task.Kind)
}

func TestLoadTask_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfer.yaml")
	content := "module_name: transfer\nparams:\n  coin_x: APT\n  amount:\n    mode: all_balance\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	task, err := LoadTask(path, models.KindTransfer)
	require.NoError(t, err)

	assert.NotEqual(t, [16]byte{}, [16]byte(task.TaskID))
	assert.Equal(t, 100, task.Probability)
	assert.Equal(t, 1, task.Retries)
	assert.True(t, task.WaitForReceipt)
	assert.Equal(t, models.AmountAllBalance, task.Params.Amount.Mode)
	assert.Equal(t, models.TaskStatusCreated, task.Status)
}

func TestBundle_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	delay := 3.0
	bundle := &Bundle{
		Actions: []*models.Task{swapTask(true), transferTask()},
		RunSettings: models.RunSettings{
			ShuffleWallets:      true,
			Strategy:            models.StrategyPool,
			MaxWorkers:          3,
			InterWalletDelaySec: &delay,
		},
	}
	require.NoError(t, SaveBundle(path, bundle))

	loaded, err := LoadBundle(path)
	require.NoError(t, err)
	require.Len(t, loaded.Actions, 2)
	assert.Equal(t, bundle.Actions[0].TaskID, loaded.Actions[0].TaskID)
	assert.True(t, loaded.Actions[0].ReverseAction)
	assert.Equal(t, models.KindTransfer, loaded.Actions[1].Kind)
	assert.Equal(t, bundle.RunSettings.Strategy, loaded.RunSettings.Strategy)
	require.NotNil(t, loaded.RunSettings.InterWalletDelaySec)
	assert.Equal(t, 3.0, *loaded.RunSettings.InterWalletDelaySec)
}

func TestLoadBundle_ReportsInvalidActions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	content := "actions:\n  - module_name: swap\n    probability: 300\n  - probability: 10\nrun_settings_config:\n  strategy: fork\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadBundle(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action 0")
	assert.Contains(t, err.Error(), "module_name is missing")
	assert.Contains(t, err.Error(), "unknown strategy")
}
