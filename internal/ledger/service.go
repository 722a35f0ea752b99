package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Service owns all balance mutations.
//
// Money invariants:
// - 0 <= available <= balance at all times
// - available = balance - sum(outstanding reservations)
// - Holds are keyed by transaction id; releasing a hold twice is a no-op
// - Suspended/closed wallets reject new holds and settlements
type Service struct {
	repo Repository
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrNotFound          = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrWalletNotActive   = errors.New("wallet not active")
)

func (s *Service) Get(ctx context.Context, clusterID, walletID string) (Wallet, error) {
	if clusterID == "" || walletID == "" {
		return Wallet{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, clusterID, walletID)
}

// GetOrCreate returns the owner's wallet in the cluster, creating an empty
// active wallet on first use. The cluster's pooled wallet is obtained by
// passing ownerID == clusterID.
// GetByOwner looks up an owner's wallet without creating one.
func (s *Service) GetByOwner(ctx context.Context, clusterID, ownerID string) (Wallet, error) {
	if clusterID == "" || ownerID == "" {
		return Wallet{}, ErrInvalidArgument
	}
	w, ok, err := s.repo.FindByOwner(ctx, clusterID, ownerID)
	if err != nil {
		return Wallet{}, err
	}
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (s *Service) GetOrCreate(ctx context.Context, clusterID, ownerID, currency string) (Wallet, error) {
	if clusterID == "" || ownerID == "" || currency == "" {
		return Wallet{}, ErrInvalidArgument
	}

	w, ok, err := s.repo.FindByOwner(ctx, clusterID, ownerID)
	if err != nil {
		return Wallet{}, err
	}
	if ok {
		return w, nil
	}

	now := s.clock().UTC()
	w = Wallet{
		ID:        uuid.NewString(),
		ClusterID: clusterID,
		OwnerID:   ownerID,
		Currency:  currency,
		Status:    WalletStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, w); err != nil {
		// Lost a create race; the winner's wallet is authoritative.
		if existing, ok, ferr := s.repo.FindByOwner(ctx, clusterID, ownerID); ferr == nil && ok {
			return existing, nil
		}
		return Wallet{}, err
	}
	return w, nil
}

// GetOrCreateClusterWallet returns the cluster's pooled wallet.
func (s *Service) GetOrCreateClusterWallet(ctx context.Context, clusterID, currency string) (Wallet, error) {
	return s.GetOrCreate(ctx, clusterID, clusterID, currency)
}

// Freeze places a hold on the available balance for an in-flight transaction.
// Freezing the same txnID twice is a no-op, so retried admissions do not
// stack holds.
func (s *Service) Freeze(ctx context.Context, clusterID, walletID, txnID string, amountMinor int64) error {
	if clusterID == "" || walletID == "" || txnID == "" {
		return ErrInvalidArgument
	}
	if amountMinor <= 0 {
		return ErrInvalidArgument
	}

	now := s.clock().UTC()
	_, err := s.repo.Update(ctx, clusterID, walletID, func(st *State) error {
		if !st.Wallet.IsActive() {
			return ErrWalletNotActive
		}
		if _, held := st.Reservations[txnID]; held {
			return nil
		}
		if st.Wallet.AvailableMinor < amountMinor {
			return ErrInsufficientFunds
		}
		st.Reservations[txnID] = Reservation{
			TxnID:       txnID,
			WalletID:    walletID,
			AmountMinor: amountMinor,
			CreatedAt:   now,
		}
		st.Wallet.AvailableMinor -= amountMinor
		st.Wallet.UpdatedAt = now
		return nil
	})
	return err
}

// Unfreeze releases the hold owned by txnID. Releasing a hold that does not
// exist (already released, or never placed) is a no-op.
func (s *Service) Unfreeze(ctx context.Context, clusterID, walletID, txnID string) error {
	if clusterID == "" || walletID == "" || txnID == "" {
		return ErrInvalidArgument
	}

	now := s.clock().UTC()
	_, err := s.repo.Update(ctx, clusterID, walletID, func(st *State) error {
		res, held := st.Reservations[txnID]
		if !held {
			return nil
		}
		delete(st.Reservations, txnID)
		st.Wallet.AvailableMinor += res.AmountMinor
		st.Wallet.UpdatedAt = now
		return nil
	})
	return err
}

// ApplyCompletedDelta settles a completed transaction against the wallet.
// deltaMinor is signed: negative for outgoing money (withdrawal, payment,
// bill_payment, transfer), positive for deposits and refunds.
//
// If a hold keyed by txnID exists it is consumed first, so the net effect of
// freeze-then-settle on the available balance is exactly the delta once.
func (s *Service) ApplyCompletedDelta(ctx context.Context, clusterID, walletID, txnID string, deltaMinor int64) error {
	if clusterID == "" || walletID == "" || txnID == "" {
		return ErrInvalidArgument
	}
	if deltaMinor == 0 {
		return ErrInvalidArgument
	}

	now := s.clock().UTC()
	_, err := s.repo.Update(ctx, clusterID, walletID, func(st *State) error {
		if !st.Wallet.IsActive() {
			return ErrWalletNotActive
		}

		if res, held := st.Reservations[txnID]; held {
			delete(st.Reservations, txnID)
			st.Wallet.AvailableMinor += res.AmountMinor
		}

		balance := st.Wallet.BalanceMinor + deltaMinor
		available := st.Wallet.AvailableMinor + deltaMinor
		if balance < 0 || available < 0 {
			return ErrInsufficientFunds
		}
		if available > balance {
			return ErrInvalidArgument
		}

		st.Wallet.BalanceMinor = balance
		st.Wallet.AvailableMinor = available
		st.Wallet.LastTransactionAt = &now
		st.Wallet.UpdatedAt = now
		return nil
	})
	return err
}

func (s *Service) HasSufficientBalance(ctx context.Context, clusterID, walletID string, amountMinor int64) (bool, error) {
	if amountMinor <= 0 {
		return false, ErrInvalidArgument
	}
	w, err := s.Get(ctx, clusterID, walletID)
	if err != nil {
		return false, err
	}
	return w.AvailableMinor >= amountMinor, nil
}

// SetStatus moves a wallet between active/suspended/closed. Closing a wallet
// with outstanding holds is rejected; the holds must settle or release first.
func (s *Service) SetStatus(ctx context.Context, clusterID, walletID string, status WalletStatus) (Wallet, error) {
	switch status {
	case WalletStatusActive, WalletStatusSuspended, WalletStatusClosed:
	default:
		return Wallet{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	return s.repo.Update(ctx, clusterID, walletID, func(st *State) error {
		if status == WalletStatusClosed && len(st.Reservations) > 0 {
			return ErrInvalidArgument
		}
		st.Wallet.Status = status
		st.Wallet.UpdatedAt = now
		return nil
	})
}
