package models

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// WalletStatus represents the state of a wallet during a run
type WalletStatus string

const (
	WalletStatusInactive  WalletStatus = "inactive"
	WalletStatusActive    WalletStatus = "active"
	WalletStatusCompleted WalletStatus = "completed"
	WalletStatusFailed    WalletStatus = "failed"
)

// TaskStatus represents the state of a task
type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "created"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusSkipped    TaskStatus = "skipped"
)

// ExecutionStatus is the outcome of a single module attempt
type ExecutionStatus string

const (
	ExecutionSuccess  ExecutionStatus = "success"
	ExecutionFailed   ExecutionStatus = "failed"
	ExecutionSent     ExecutionStatus = "sent"
	ExecutionRetry    ExecutionStatus = "retry"
	ExecutionError    ExecutionStatus = "error"
	ExecutionTimeOut  ExecutionStatus = "time_out"
	ExecutionTestMode ExecutionStatus = "test_mode"
)

// Proxy holds an HTTP proxy a wallet routes its RPC traffic through
type Proxy struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"-" yaml:"password,omitempty"`
	IsMobile bool   `json:"is_mobile" yaml:"is_mobile"`
}

// URL returns the proxy as an http URL usable by http.Transport
func (p *Proxy) URL() *url.URL {
	u := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// String hides credentials
func (p *Proxy) String() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Wallet is one account credential plus its optional pairing address and proxy
type Wallet struct {
	WalletID    uuid.UUID    `json:"wallet_id"`
	Index       int          `json:"index"`
	Name        string       `json:"name"`
	PrivateKey  string       `json:"-"`
	Address     string       `json:"address"`
	PairAddress string       `json:"pair_address,omitempty"`
	Proxy       *Proxy       `json:"proxy,omitempty"`
	Status      WalletStatus `json:"status"`
}

// Label returns a short identifier for logs
func (w *Wallet) Label() string {
	if w.Name != "" {
		return w.Name
	}
	return w.Address
}

// ModuleExecutionResult is the outcome of one module send attempt.
// A new value is produced per attempt and never mutated afterwards.
type ModuleExecutionResult struct {
	ExecutionStatus ExecutionStatus `json:"execution_status"`
	ExecutionInfo   string          `json:"execution_info"`
	Hash            string          `json:"hash,omitempty"`
}

// NewResult builds a result
func NewResult(status ExecutionStatus, info string, hash string) *ModuleExecutionResult {
	return &ModuleExecutionResult{
		ExecutionStatus: status,
		ExecutionInfo:   info,
		Hash:            hash,
	}
}

// Errorf builds an ERROR result with a formatted message
func Errorf(format string, args ...interface{}) *ModuleExecutionResult {
	return NewResult(ExecutionError, fmt.Sprintf(format, args...), "")
}

// Failedf builds a FAILED result with a formatted message
func Failedf(format string, args ...interface{}) *ModuleExecutionResult {
	return NewResult(ExecutionFailed, fmt.Sprintf(format, args...), "")
}

// Done reports whether the result ends the retry loop
func (r *ModuleExecutionResult) Done() bool {
	return r.ExecutionStatus == ExecutionSuccess || r.ExecutionStatus == ExecutionSent
}

// TaskStatus maps an execution outcome onto the task status
func (r *ModuleExecutionResult) TaskStatus() TaskStatus {
	switch r.ExecutionStatus {
	case ExecutionSuccess, ExecutionSent, ExecutionTestMode:
		return TaskStatusSuccess
	default:
		return TaskStatusFailed
	}
}

// ExecutionRecord holds facts captured by a forward task before it builds its payload,
// consumed by the paired reverse task
type ExecutionRecord struct {
	InitialBalanceX uint64  `json:"initial_balance_x"`
	InitialBalanceY *uint64 `json:"initial_balance_y,omitempty"`
	Amount          uint64  `json:"amount,omitempty"`
}
