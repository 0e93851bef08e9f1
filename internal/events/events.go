// Package events fans executor lifecycle notifications out to listeners.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"aptoswarm/internal/models"
)

// Type names a lifecycle event
type Type string

const (
	WalletStarted   Type = "wallet_started"
	TaskStarted     Type = "task_started"
	TaskCompleted   Type = "task_completed"
	WalletCompleted Type = "wallet_completed"
)

// Event is a snapshot of the wallet (and task, for task events) at emission time
type Event struct {
	Type   Type          `json:"type"`
	Wallet models.Wallet `json:"wallet"`
	Task   *models.Task  `json:"task,omitempty"`
	Time   time.Time     `json:"time"`
}

// WalletCallback receives wallet events
type WalletCallback func(wallet models.Wallet)

// TaskCallback receives task events
type TaskCallback func(task models.Task, wallet models.Wallet)

// Listener receives every event
type Listener func(ev Event)

// Manager delivers events to listeners in registration order. Delivery is synchronous
// unless a queue was started, in which case a dispatcher goroutine delivers in FIFO order.
// A panicking listener is logged and never aborts the run.
type Manager struct {
	logger *zap.Logger

	mu              sync.RWMutex
	walletStarted   []WalletCallback
	taskStarted     []TaskCallback
	taskCompleted   []TaskCallback
	walletCompleted []WalletCallback
	listeners       []Listener

	stateMu sync.RWMutex
	stopped bool
	queue   chan Event
	done    chan struct{}
}

// NewManager creates an event manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("events"),
	}
}

func (m *Manager) OnWalletStarted(fns ...WalletCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walletStarted = append(m.walletStarted, fns...)
}

func (m *Manager) OnTaskStarted(fns ...TaskCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskStarted = append(m.taskStarted, fns...)
}

func (m *Manager) OnTaskCompleted(fns ...TaskCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskCompleted = append(m.taskCompleted, fns...)
}

func (m *Manager) OnWalletCompleted(fns ...WalletCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walletCompleted = append(m.walletCompleted, fns...)
}

// Subscribe registers listeners for every event type
func (m *Manager) Subscribe(fns ...Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fns...)
}

// ClearCallbacks removes every registered listener
func (m *Manager) ClearCallbacks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walletStarted = nil
	m.taskStarted = nil
	m.taskCompleted = nil
	m.walletCompleted = nil
	m.listeners = nil
}

// EmitWalletStarted emits wallet_started
func (m *Manager) EmitWalletStarted(w *models.Wallet) {
	m.emit(Event{Type: WalletStarted, Wallet: *w, Time: time.Now()})
}

// EmitTaskStarted emits task_started
func (m *Manager) EmitTaskStarted(t *models.Task, w *models.Wallet) {
	task := *t
	m.emit(Event{Type: TaskStarted, Wallet: *w, Task: &task, Time: time.Now()})
}

// EmitTaskCompleted emits task_completed
func (m *Manager) EmitTaskCompleted(t *models.Task, w *models.Wallet) {
	task := *t
	m.emit(Event{Type: TaskCompleted, Wallet: *w, Task: &task, Time: time.Now()})
}

// EmitWalletCompleted emits wallet_completed
func (m *Manager) EmitWalletCompleted(w *models.Wallet) {
	m.emit(Event{Type: WalletCompleted, Wallet: *w, Time: time.Now()})
}

// Stop drops every event emitted from now on
func (m *Manager) Stop() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.stopped = true
}

// Resume re-arms a stopped manager
func (m *Manager) Resume() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.stopped = false
}

// Stopped reports whether events are being dropped
func (m *Manager) Stopped() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.stopped
}

// StartQueue switches to queued delivery on a dispatcher goroutine
func (m *Manager) StartQueue(size int) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if m.queue != nil {
		return
	}
	m.queue = make(chan Event, size)
	m.done = make(chan struct{})

	go m.dispatch(m.queue, m.done)
}

// StopQueue delivers every queued event and switches back to synchronous delivery
func (m *Manager) StopQueue() {
	m.stateMu.Lock()
	queue, done := m.queue, m.done
	m.queue, m.done = nil, nil
	m.stateMu.Unlock()

	if queue == nil {
		return
	}
	close(queue)
	<-done
}

func (m *Manager) dispatch(queue <-chan Event, done chan<- struct{}) {
	defer close(done)
	for ev := range queue {
		m.deliver(ev)
	}
}

func (m *Manager) emit(ev Event) {
	m.stateMu.RLock()
	if m.stopped {
		m.stateMu.RUnlock()
		m.logger.Debug("Dropping event after stop", zap.String("event", string(ev.Type)))
		return
	}
	if m.queue != nil {
		// held so StopQueue cannot close the channel under a pending send
		m.queue <- ev
		m.stateMu.RUnlock()
		return
	}
	m.stateMu.RUnlock()

	m.deliver(ev)
}

func (m *Manager) deliver(ev Event) {
	m.mu.RLock()
	var wallet []WalletCallback
	var task []TaskCallback
	switch ev.Type {
	case WalletStarted:
		wallet = append(wallet, m.walletStarted...)
	case WalletCompleted:
		wallet = append(wallet, m.walletCompleted...)
	case TaskStarted:
		task = append(task, m.taskStarted...)
	case TaskCompleted:
		task = append(task, m.taskCompleted...)
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.RUnlock()

	for _, fn := range wallet {
		m.safely(ev, func() { fn(ev.Wallet) })
	}
	for _, fn := range task {
		m.safely(ev, func() { fn(*ev.Task, ev.Wallet) })
	}
	for _, fn := range listeners {
		m.safely(ev, func() { fn(ev) })
	}
}

func (m *Manager) safely(ev Event, call func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Event listener panicked",
				zap.String("event", string(ev.Type)),
				zap.String("wallet_id", ev.Wallet.WalletID.String()),
				zap.Any("panic", r))
		}
	}()
	call()
}
