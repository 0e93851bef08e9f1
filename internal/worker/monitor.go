package worker

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"aptoswarm/internal/events"
	"aptoswarm/internal/models"
)

// TaskState is the last known state of one scheduled task
type TaskState struct {
	TaskID     uuid.UUID         `json:"task_id"`
	ModuleName models.ModuleKind `json:"module_name"`
	Virtual    bool              `json:"virtual"`
	Status     models.TaskStatus `json:"status"`
	ResultHash string            `json:"result_hash,omitempty"`
	ResultInfo string            `json:"result_info,omitempty"`
}

// WalletState is the last known state of one wallet and its tasks in run order
type WalletState struct {
	WalletID uuid.UUID           `json:"wallet_id"`
	Index    int                 `json:"index"`
	Name     string              `json:"name"`
	Address  string              `json:"address"`
	Status   models.WalletStatus `json:"status"`
	Tasks    []TaskState         `json:"tasks"`
}

// RunSnapshot summarizes the live state of a run
type RunSnapshot struct {
	Wallets   []WalletState             `json:"wallets"`
	Completed int                       `json:"tasks_completed"`
	ByStatus  map[models.TaskStatus]int `json:"by_status"`
}

// StatusMonitor builds a live status view of a run from executor events
type StatusMonitor struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*WalletState
}

// NewStatusMonitor creates a monitor and subscribes it to events
func NewStatusMonitor(eventManager *events.Manager) *StatusMonitor {
	m := &StatusMonitor{wallets: make(map[uuid.UUID]*WalletState)}
	eventManager.Subscribe(m.handle)
	return m
}

// RunStarted clears the previous run
func (m *StatusMonitor) RunStarted(models.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets = make(map[uuid.UUID]*WalletState)
}

// RunFinished keeps the final view available
func (m *StatusMonitor) RunFinished(models.Run) {}

func (m *StatusMonitor) handle(ev events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[ev.Wallet.WalletID]
	if !ok {
		w = &WalletState{WalletID: ev.Wallet.WalletID}
		m.wallets[ev.Wallet.WalletID] = w
	}
	w.Index = ev.Wallet.Index
	w.Name = ev.Wallet.Name
	w.Address = ev.Wallet.Address
	w.Status = ev.Wallet.Status

	if ev.Task == nil {
		return
	}

	state := TaskState{
		TaskID:     ev.Task.TaskID,
		ModuleName: ev.Task.Kind,
		Virtual:    ev.Task.Virtual,
		Status:     ev.Task.Status,
		ResultHash: ev.Task.ResultHash,
		ResultInfo: ev.Task.ResultInfo,
	}

	// repeats share a task id, so only the latest entry still in progress is updated
	if n := len(w.Tasks); n > 0 && w.Tasks[n-1].TaskID == state.TaskID &&
		w.Tasks[n-1].Status == models.TaskStatusProcessing {
		w.Tasks[n-1] = state
		return
	}
	w.Tasks = append(w.Tasks, state)
}

// Snapshot returns a copy of the current view ordered by wallet index
func (m *StatusMonitor) Snapshot() RunSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := RunSnapshot{ByStatus: make(map[models.TaskStatus]int)}
	for _, w := range m.wallets {
		c := *w
		c.Tasks = append([]TaskState(nil), w.Tasks...)
		snap.Wallets = append(snap.Wallets, c)

		for _, t := range c.Tasks {
			snap.ByStatus[t.Status]++
			if t.Status != models.TaskStatusProcessing {
				snap.Completed++
			}
		}
	}
	sort.Slice(snap.Wallets, func(i, j int) bool { return snap.Wallets[i].Index < snap.Wallets[j].Index })
	return snap
}
