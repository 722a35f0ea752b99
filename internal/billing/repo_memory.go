package billing

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
type MemoryRepo struct {
	mu    sync.RWMutex
	bills map[string]Bill
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{bills: make(map[string]Bill)}
}

func (r *MemoryRepo) Create(ctx context.Context, b Bill) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bills[b.ID]; exists {
		return ErrInvalidArgument
	}
	r.bills[b.ID] = b
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, clusterID, billID string) (Bill, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bills[billID]
	if !ok || b.ClusterID != clusterID {
		return Bill{}, ErrNotFound
	}
	return b, nil
}

func (r *MemoryRepo) Update(ctx context.Context, b Bill) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.bills[b.ID]
	if !ok || existing.ClusterID != b.ClusterID {
		return ErrNotFound
	}
	r.bills[b.ID] = b
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, clusterID string, f ListFilter) ([]Bill, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Bill
	for _, b := range r.bills {
		if b.ClusterID != clusterID {
			continue
		}
		if f.Category != "" && b.Category != f.Category {
			continue
		}
		if f.TargetUserID != "" && b.TargetUserID != "" && b.TargetUserID != f.TargetUserID {
			continue
		}
		if f.UnpaidOnly && b.PaidAt != nil {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}
