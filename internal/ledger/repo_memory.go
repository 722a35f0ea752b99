package ledger

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
//
// Each wallet has its own mutex, so concurrent Update calls on different
// wallets do not contend while calls on the same wallet serialize, mirroring
// the row-lock behavior of the Postgres implementation.
type MemoryRepo struct {
	mu      sync.RWMutex
	entries map[string]*memEntry // keyed by wallet id
}

type memEntry struct {
	mu    sync.Mutex
	state State
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{entries: make(map[string]*memEntry)}
}

func (r *MemoryRepo) Get(ctx context.Context, clusterID, walletID string) (Wallet, error) {
	_ = ctx

	r.mu.RLock()
	e, ok := r.entries[walletID]
	r.mu.RUnlock()
	if !ok {
		return Wallet{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Wallet.ClusterID != clusterID {
		return Wallet{}, ErrNotFound
	}
	return e.state.Wallet, nil
}

func (r *MemoryRepo) FindByOwner(ctx context.Context, clusterID, ownerID string) (Wallet, bool, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		e.mu.Lock()
		w := e.state.Wallet
		e.mu.Unlock()
		if w.ClusterID == clusterID && w.OwnerID == ownerID {
			return w, true, nil
		}
	}
	return Wallet{}, false, nil
}

func (r *MemoryRepo) Create(ctx context.Context, w Wallet) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[w.ID]; exists {
		return ErrInvalidArgument
	}
	r.entries[w.ID] = &memEntry{state: State{
		Wallet:       w,
		Reservations: make(map[string]Reservation),
	}}
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, clusterID, walletID string, fn func(*State) error) (Wallet, error) {
	_ = ctx

	r.mu.RLock()
	e, ok := r.entries[walletID]
	r.mu.RUnlock()
	if !ok {
		return Wallet{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Wallet.ClusterID != clusterID {
		return Wallet{}, ErrNotFound
	}

	// Work on a copy so a failed callback leaves the entry untouched.
	scratch := State{
		Wallet:       e.state.Wallet,
		Reservations: make(map[string]Reservation, len(e.state.Reservations)),
	}
	for k, v := range e.state.Reservations {
		scratch.Reservations[k] = v
	}

	if err := fn(&scratch); err != nil {
		return Wallet{}, err
	}
	e.state = scratch
	return scratch.Wallet, nil
}
