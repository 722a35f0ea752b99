package recurring

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
type MemoryRepo struct {
	mu       sync.RWMutex
	payments map[string]RecurringPayment
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{payments: make(map[string]RecurringPayment)}
}

func (r *MemoryRepo) Create(ctx context.Context, rp RecurringPayment) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[rp.ID]; exists {
		return ErrInvalidArgument
	}
	r.payments[rp.ID] = rp
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, clusterID, id string) (RecurringPayment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.payments[id]
	if !ok || rp.ClusterID != clusterID {
		return RecurringPayment{}, ErrNotFound
	}
	return rp, nil
}

func (r *MemoryRepo) Update(ctx context.Context, rp RecurringPayment) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.payments[rp.ID]
	if !ok || existing.ClusterID != rp.ClusterID {
		return ErrNotFound
	}
	r.payments[rp.ID] = rp
	return nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, clusterID, userID string) ([]RecurringPayment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []RecurringPayment
	for _, rp := range r.payments {
		if rp.ClusterID == clusterID && rp.UserID == userID {
			out = append(out, rp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) ListDue(ctx context.Context, clusterID string, before time.Time) ([]RecurringPayment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []RecurringPayment
	for _, rp := range r.payments {
		if rp.ClusterID == clusterID && rp.Status == StatusActive && !rp.NextPaymentDate.After(before) {
			out = append(out, rp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextPaymentDate.Before(out[j].NextPaymentDate) })
	return out, nil
}
