package dispute

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
type MemoryRepo struct {
	mu       sync.RWMutex
	disputes map[string]Dispute
	comments map[string][]Comment // keyed by dispute id
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		disputes: make(map[string]Dispute),
		comments: make(map[string][]Comment),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, d Dispute) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.disputes[d.ID]; exists {
		return ErrInvalidArgument
	}
	r.disputes[d.ID] = d
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, clusterID, disputeID string) (Dispute, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.disputes[disputeID]
	if !ok || d.ClusterID != clusterID {
		return Dispute{}, ErrNotFound
	}
	return d, nil
}

func (r *MemoryRepo) Update(ctx context.Context, d Dispute) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.disputes[d.ID]
	if !ok || existing.ClusterID != d.ClusterID {
		return ErrNotFound
	}
	r.disputes[d.ID] = d
	return nil
}

func (r *MemoryRepo) ListByBill(ctx context.Context, clusterID, billID string) ([]Dispute, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Dispute
	for _, d := range r.disputes {
		if d.ClusterID == clusterID && d.BillID == billID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) FindActiveByBillAndUser(ctx context.Context, clusterID, billID, userID string) (Dispute, bool, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.disputes {
		if d.ClusterID == clusterID && d.BillID == billID && d.DisputedBy == userID && d.Status.Active() {
			return d, true, nil
		}
	}
	return Dispute{}, false, nil
}

func (r *MemoryRepo) AddComment(ctx context.Context, c Comment) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments[c.DisputeID] = append(r.comments[c.DisputeID], c)
	return nil
}

func (r *MemoryRepo) ListComments(ctx context.Context, disputeID string) ([]Comment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.comments[disputeID]
	out := make([]Comment, len(src))
	copy(out, src)
	return out, nil
}
