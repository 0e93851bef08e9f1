// Package wallet holds the wallet set of a run and imports it from CSV.
package wallet

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"aptoswarm/internal/models"
)

// Registry is an ordered set of wallets with unique ids
type Registry struct {
	mu      sync.RWMutex
	wallets []*models.Wallet
	byID    map[uuid.UUID]*models.Wallet
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uuid.UUID]*models.Wallet)}
}

// Add appends wallets, rejecting duplicate ids
func (r *Registry) Add(wallets ...*models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(wallets))
	for _, w := range wallets {
		if _, ok := r.byID[w.WalletID]; ok {
			return fmt.Errorf("wallet %s already registered", w.WalletID)
		}
		if _, ok := seen[w.WalletID]; ok {
			return fmt.Errorf("duplicate wallet %s", w.WalletID)
		}
		seen[w.WalletID] = struct{}{}
	}

	for _, w := range wallets {
		r.wallets = append(r.wallets, w)
		r.byID[w.WalletID] = w
	}
	return nil
}

// Get returns a wallet by id
func (r *Registry) Get(id uuid.UUID) (*models.Wallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	return w, ok
}

// List returns the wallets in insertion order
func (r *Registry) List() []*models.Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*models.Wallet(nil), r.wallets...)
}

// Replace swaps the whole wallet set, as a reload does
func (r *Registry) Replace(wallets []*models.Wallet) error {
	next := NewRegistry()
	if err := next.Add(wallets...); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets = next.wallets
	r.byID = next.byID
	return nil
}

// Clear removes every wallet
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets = nil
	r.byID = make(map[uuid.UUID]*models.Wallet)
}

// Len returns the number of wallets
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wallets)
}
