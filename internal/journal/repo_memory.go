package journal

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
type MemoryRepo struct {
	mu   sync.RWMutex
	txns map[string]Transaction // keyed by id
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{txns: make(map[string]Transaction)}
}

func (r *MemoryRepo) Create(ctx context.Context, txn Transaction) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.txns[txn.ID]; exists {
		return ErrInvalidArgument
	}
	// Enforce the (wallet, idempotency_key) uniqueness the Postgres schema has.
	if txn.IdempotencyKey != "" {
		for _, t := range r.txns {
			if t.WalletID == txn.WalletID && t.IdempotencyKey == txn.IdempotencyKey {
				return ErrInvalidArgument
			}
		}
	}
	r.txns[txn.ID] = txn
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, clusterID, txnID string) (Transaction, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.txns[txnID]
	if !ok || t.ClusterID != clusterID {
		return Transaction{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) FindByIdempotencyKey(ctx context.Context, clusterID, walletID, key string) (Transaction, bool, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.txns {
		if t.ClusterID == clusterID && t.WalletID == walletID && t.IdempotencyKey == key {
			return t, true, nil
		}
	}
	return Transaction{}, false, nil
}

func (r *MemoryRepo) Update(ctx context.Context, txn Transaction) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.txns[txn.ID]
	if !ok || existing.ClusterID != txn.ClusterID {
		return ErrNotFound
	}
	r.txns[txn.ID] = txn
	return nil
}

func (r *MemoryRepo) ListByWallet(ctx context.Context, clusterID, walletID string, limit int) ([]Transaction, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transaction
	for _, t := range r.txns {
		if t.ClusterID == clusterID && t.WalletID == walletID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) SumCompletedForBill(ctx context.Context, clusterID, billID, payerID string) (int64, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, t := range r.txns {
		if t.ClusterID != clusterID || t.BillID != billID {
			continue
		}
		if t.Type != TypeBillPayment || t.Status != StatusCompleted {
			continue
		}
		if payerID != "" && t.InitiatedBy != payerID {
			continue
		}
		total += t.AmountMinor
	}
	return total, nil
}
