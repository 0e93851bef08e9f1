package module

import (
	"fmt"
	"sort"

	"aptoswarm/internal/models"
)

// Constructor creates the payload builder for a module kind
type Constructor func() Builder

// Registry maps module kinds to their builders and binds them to the lifecycle
type Registry struct {
	lifecycle *Lifecycle
	builders  map[models.ModuleKind]Constructor
}

// NewRegistry creates a registry with every built-in protocol module
func NewRegistry(lifecycle *Lifecycle) *Registry {
	r := &Registry{
		lifecycle: lifecycle,
		builders:  make(map[models.ModuleKind]Constructor),
	}
	r.Register(models.KindTransfer, func() Builder { return Transfer{} })
	r.Register(models.KindSwap, func() Builder { return Swap{} })
	r.Register(models.KindAddLiquidity, func() Builder { return AddLiquidity{} })
	r.Register(models.KindRemoveLiquidity, func() Builder { return RemoveLiquidity{} })
	r.Register(models.KindDelegate, func() Builder { return Delegate{} })
	r.Register(models.KindUnlock, func() Builder { return Unlock{} })
	r.Register(models.KindSupply, func() Builder { return Supply{} })
	r.Register(models.KindWithdraw, func() Builder { return Withdraw{} })
	return r
}

// Register binds a constructor to a kind, replacing any previous one
func (r *Registry) Register(kind models.ModuleKind, ctor Constructor) {
	r.builders[kind] = ctor
}

// Module returns the module for a kind
func (r *Registry) Module(kind models.ModuleKind) (Module, error) {
	ctor, ok := r.builders[kind]
	if !ok {
		return nil, fmt.Errorf("no module registered for %q", kind)
	}
	return &boundModule{Builder: ctor(), lifecycle: r.lifecycle}, nil
}

// Kinds lists the registered kinds in name order
func (r *Registry) Kinds() []models.ModuleKind {
	kinds := make([]models.ModuleKind, 0, len(r.builders))
	for k := range r.builders {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
