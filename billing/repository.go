package billing

import (
	"context"
	"sync"
)

// =============================================================================
// REPOSITORY - Persistence port
// =============================================================================

// Repository saves and loads the whole engine state. Saves are
// last-write-wins; no conflict detection is performed.
type Repository interface {
	Save(ctx context.Context, s State) error
	Load(ctx context.Context) (State, error)
}

// MemoryRepository keeps the last saved state in memory. Used by tests and
// when no database is configured.
type MemoryRepository struct {
	mu    sync.RWMutex
	state State
	saves int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Save(ctx context.Context, s State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s.Clone()
	r.saves++
	return nil
}

func (r *MemoryRepository) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone(), nil
}

// Saves returns how many times Save succeeded.
func (r *MemoryRepository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}
