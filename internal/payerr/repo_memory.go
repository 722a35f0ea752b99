package payerr

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
type MemoryRepo struct {
	mu     sync.RWMutex
	errors map[string]Error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{errors: make(map[string]Error)}
}

func (r *MemoryRepo) Create(ctx context.Context, e Error) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.errors[e.ID]; exists {
		return ErrInvalidArgument
	}
	r.errors[e.ID] = e
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, clusterID, errorID string) (Error, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.errors[errorID]
	if !ok || e.ClusterID != clusterID {
		return Error{}, ErrNotFound
	}
	return e, nil
}

func (r *MemoryRepo) Update(ctx context.Context, e Error) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.errors[e.ID]
	if !ok || existing.ClusterID != e.ClusterID {
		return ErrNotFound
	}
	r.errors[e.ID] = e
	return nil
}

func (r *MemoryRepo) ListByTxn(ctx context.Context, clusterID, txnID string) ([]Error, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Error
	for _, e := range r.errors {
		if e.ClusterID == clusterID && e.TxnID == txnID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) ListUnresolved(ctx context.Context, clusterID string) ([]Error, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Error
	for _, e := range r.errors {
		if e.ClusterID == clusterID && !e.Resolved {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
