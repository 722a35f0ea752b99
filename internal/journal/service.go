package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Ledger is the slice of wallet behavior the journal drives. Settlement and
// hold release happen exactly once per transaction, from here.
type Ledger interface {
	Unfreeze(ctx context.Context, clusterID, walletID, txnID string) error
	ApplyCompletedDelta(ctx context.Context, clusterID, walletID, txnID string, deltaMinor int64) error
}

// Service owns the transaction state machine.
//
// Contract:
//   - Begin creates PENDING entries; an idempotency key replayed against the
//     same wallet returns the earlier entry with no new economic effect.
//   - Complete applies the settlement delta exactly once.
//   - Fail and Cancel release the hold for outgoing types exactly once.
//   - Terminal entries (completed/failed/cancelled/refunded) never transition again.
type Service struct {
	repo   Repository
	ledger Ledger
	clock  func() time.Time
}

func NewService(repo Repository, ledger Ledger) *Service {
	return &Service{repo: repo, ledger: ledger, clock: time.Now}
}

var (
	ErrNotFound            = errors.New("transaction not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrTerminalTransaction = errors.New("transaction already in a terminal status")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

type BeginRequest struct {
	ClusterID      string
	WalletID       string
	Type           Type
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Description    string
	BillID         string
	InitiatedBy    string
	Provider       string

	UtilityProviderID string
	CustomerID        string
}

// BeginResult flags replays so callers know whether any economic effect
// (freeze, provider call) is still owed.
type BeginResult struct {
	Txn      Transaction
	Replayed bool
}

func (s *Service) Begin(ctx context.Context, req BeginRequest) (BeginResult, error) {
	if req.ClusterID == "" || req.WalletID == "" || req.Currency == "" {
		return BeginResult{}, ErrInvalidArgument
	}
	if !req.Type.valid() {
		return BeginResult{}, ErrInvalidArgument
	}
	if req.AmountMinor <= 0 {
		return BeginResult{}, ErrInvalidArgument
	}

	if req.IdempotencyKey != "" {
		existing, ok, err := s.repo.FindByIdempotencyKey(ctx, req.ClusterID, req.WalletID, req.IdempotencyKey)
		if err != nil {
			return BeginResult{}, err
		}
		if ok {
			return BeginResult{Txn: existing, Replayed: true}, nil
		}
	}

	now := s.clock().UTC()
	txn := Transaction{
		ID:                uuid.NewString(),
		Reference:         NewReference(),
		ClusterID:         req.ClusterID,
		WalletID:          req.WalletID,
		Type:              req.Type,
		AmountMinor:       req.AmountMinor,
		Currency:          req.Currency,
		Status:            StatusPending,
		IdempotencyKey:    req.IdempotencyKey,
		Description:       req.Description,
		BillID:            req.BillID,
		InitiatedBy:       req.InitiatedBy,
		Provider:          req.Provider,
		UtilityProviderID: req.UtilityProviderID,
		CustomerID:        req.CustomerID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		return BeginResult{}, err
	}
	return BeginResult{Txn: txn}, nil
}

// FindByIdempotencyKey returns the transaction previously recorded for this
// wallet and key, if any. Callers honor replays with it before running
// admission checks whose inputs may have changed since the first attempt.
func (s *Service) FindByIdempotencyKey(ctx context.Context, clusterID, walletID, key string) (Transaction, bool, error) {
	if clusterID == "" || walletID == "" || key == "" {
		return Transaction{}, false, ErrInvalidArgument
	}
	return s.repo.FindByIdempotencyKey(ctx, clusterID, walletID, key)
}

func (s *Service) Get(ctx context.Context, clusterID, txnID string) (Transaction, error) {
	if clusterID == "" || txnID == "" {
		return Transaction{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, clusterID, txnID)
}

func (s *Service) ListByWallet(ctx context.Context, clusterID, walletID string, limit int) ([]Transaction, error) {
	if clusterID == "" || walletID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListByWallet(ctx, clusterID, walletID, limit)
}

func (s *Service) SumCompletedForBill(ctx context.Context, clusterID, billID, payerID string) (int64, error) {
	if clusterID == "" || billID == "" {
		return 0, ErrInvalidArgument
	}
	return s.repo.SumCompletedForBill(ctx, clusterID, billID, payerID)
}

func (s *Service) MarkProcessing(ctx context.Context, clusterID, txnID string) (Transaction, error) {
	txn, err := s.transitionable(ctx, clusterID, txnID)
	if err != nil {
		return Transaction{}, err
	}
	if txn.Status != StatusPending {
		return Transaction{}, ErrInvalidTransition
	}
	txn.Status = StatusProcessing
	txn.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, txn); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// Complete settles the transaction: the ledger delta is applied exactly once,
// negative for outgoing types and positive for deposits/refunds.
func (s *Service) Complete(ctx context.Context, clusterID, txnID, providerResponse string) (Transaction, error) {
	txn, err := s.transitionable(ctx, clusterID, txnID)
	if err != nil {
		return Transaction{}, err
	}
	if txn.Status != StatusPending && txn.Status != StatusProcessing {
		return Transaction{}, ErrInvalidTransition
	}

	delta := txn.AmountMinor
	if txn.Type.Outgoing() {
		delta = -txn.AmountMinor
	}
	if err := s.ledger.ApplyCompletedDelta(ctx, clusterID, txn.WalletID, txn.ID, delta); err != nil {
		return Transaction{}, err
	}

	now := s.clock().UTC()
	txn.Status = StatusCompleted
	txn.ProviderResponse = providerResponse
	txn.ProcessedAt = &now
	txn.UpdatedAt = now
	if err := s.repo.Update(ctx, txn); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// Fail marks the transaction failed and releases the hold for outgoing types.
func (s *Service) Fail(ctx context.Context, clusterID, txnID, reason string) (Transaction, error) {
	txn, err := s.transitionable(ctx, clusterID, txnID)
	if err != nil {
		return Transaction{}, err
	}
	if txn.Status != StatusPending && txn.Status != StatusProcessing {
		return Transaction{}, ErrInvalidTransition
	}

	if txn.Type.Outgoing() {
		if err := s.ledger.Unfreeze(ctx, clusterID, txn.WalletID, txn.ID); err != nil {
			return Transaction{}, err
		}
	}

	now := s.clock().UTC()
	txn.Status = StatusFailed
	txn.FailureReason = reason
	txn.FailedAt = &now
	txn.UpdatedAt = now
	if err := s.repo.Update(ctx, txn); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// Cancel abandons a PENDING transaction before any provider work started.
func (s *Service) Cancel(ctx context.Context, clusterID, txnID string) (Transaction, error) {
	txn, err := s.transitionable(ctx, clusterID, txnID)
	if err != nil {
		return Transaction{}, err
	}
	if txn.Status != StatusPending {
		return Transaction{}, ErrInvalidTransition
	}

	if txn.Type.Outgoing() {
		if err := s.ledger.Unfreeze(ctx, clusterID, txn.WalletID, txn.ID); err != nil {
			return Transaction{}, err
		}
	}

	txn.Status = StatusCancelled
	txn.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, txn); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// Refund reverses a COMPLETED transaction. The original moves to REFUNDED and
// a new completed refund entry credits the wallet back.
func (s *Service) Refund(ctx context.Context, clusterID, txnID, reason string) (Transaction, error) {
	txn, err := s.repo.Get(ctx, clusterID, txnID)
	if err != nil {
		return Transaction{}, err
	}
	if txn.Status != StatusCompleted {
		if txn.Status.Terminal() {
			return Transaction{}, ErrTerminalTransaction
		}
		return Transaction{}, ErrInvalidTransition
	}
	if !txn.Type.Outgoing() {
		return Transaction{}, ErrInvalidTransition
	}

	now := s.clock().UTC()
	refund := Transaction{
		ID:          uuid.NewString(),
		Reference:   NewReference(),
		ClusterID:   clusterID,
		WalletID:    txn.WalletID,
		Type:        TypeRefund,
		AmountMinor: txn.AmountMinor,
		Currency:    txn.Currency,
		Status:      StatusPending,
		Description: reason,
		BillID:      txn.BillID,
		InitiatedBy: txn.InitiatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, refund); err != nil {
		return Transaction{}, err
	}
	if err := s.ledger.ApplyCompletedDelta(ctx, clusterID, txn.WalletID, refund.ID, refund.AmountMinor); err != nil {
		return Transaction{}, err
	}

	refund.Status = StatusCompleted
	refund.ProcessedAt = &now
	if err := s.repo.Update(ctx, refund); err != nil {
		return Transaction{}, err
	}

	txn.Status = StatusRefunded
	txn.UpdatedAt = now
	if err := s.repo.Update(ctx, txn); err != nil {
		return Transaction{}, err
	}
	return refund, nil
}

func (s *Service) transitionable(ctx context.Context, clusterID, txnID string) (Transaction, error) {
	if clusterID == "" || txnID == "" {
		return Transaction{}, ErrInvalidArgument
	}
	txn, err := s.repo.Get(ctx, clusterID, txnID)
	if err != nil {
		return Transaction{}, err
	}
	if txn.Status.Terminal() {
		return Transaction{}, ErrTerminalTransaction
	}
	return txn, nil
}
