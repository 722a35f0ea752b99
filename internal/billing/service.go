package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"estate-platform/internal/journal"
	"estate-platform/internal/ledger"
	"estate-platform/internal/notify"

	"github.com/google/uuid"
)

// Journal is the transaction surface the billing engine drives.
type Journal interface {
	Begin(ctx context.Context, req journal.BeginRequest) (journal.BeginResult, error)
	FindByIdempotencyKey(ctx context.Context, clusterID, walletID, key string) (journal.Transaction, bool, error)
	Complete(ctx context.Context, clusterID, txnID, providerResponse string) (journal.Transaction, error)
	Cancel(ctx context.Context, clusterID, txnID string) (journal.Transaction, error)
	SumCompletedForBill(ctx context.Context, clusterID, billID, payerID string) (int64, error)
}

// Ledger is the wallet surface the billing engine needs: the admission hold
// on the payer, and the pooled wallet every bill payment lands in.
type Ledger interface {
	GetOrCreateClusterWallet(ctx context.Context, clusterID, currency string) (ledger.Wallet, error)
	Freeze(ctx context.Context, clusterID, walletID, txnID string, amountMinor int64) error
}

// DisputeChecker gates payments on active disputes.
type DisputeChecker interface {
	HasActiveDispute(ctx context.Context, clusterID, billID string) (bool, error)
	HasActiveDisputeBy(ctx context.Context, clusterID, billID, userID string) (bool, error)
}

// Service is the bill reconciliation engine.
//
// Money contract:
//   - Admission failures (wrong payer, dispute, overdue, over-remaining) are
//     returned errors; no money moves.
//   - A replayed idempotency key returns the earlier outcome with no new effect.
//   - Every completed bill payment credits the cluster's pooled wallet,
//     regardless of bill category.
type Service struct {
	repo     Repository
	journal  Journal
	ledger   Ledger
	disputes DisputeChecker
	events   notify.Publisher
	clock    func() time.Time
}

func NewService(repo Repository, jrnl Journal, ldgr Ledger, disputes DisputeChecker, events notify.Publisher) *Service {
	if events == nil {
		events = notify.NopPublisher{}
	}
	return &Service{
		repo:     repo,
		journal:  jrnl,
		ledger:   ldgr,
		disputes: disputes,
		events:   events,
		clock:    time.Now,
	}
}

var (
	ErrNotFound         = errors.New("bill not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotAllowed       = errors.New("operation not allowed for user")
	ErrBillAlreadyPaid  = errors.New("bill already fully paid")
	ErrPaymentAfterDue  = errors.New("bill is past due and does not allow late payment")
	ErrBillDisputed     = errors.New("bill has an active dispute")
	ErrExceedsRemaining = errors.New("amount exceeds remaining balance on bill")
)

type CreateRequest struct {
	ClusterID            string
	TargetUserID         string
	Title                string
	Description          string
	Type                 BillType
	Category             Category
	UtilityProviderID    string
	CustomerID           string
	AmountMinor          int64
	Currency             string
	DueDate              time.Time
	AllowPaymentAfterDue bool
	CreatedBy            string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Bill, error) {
	if req.ClusterID == "" || req.Title == "" || req.Currency == "" || req.CreatedBy == "" {
		return Bill{}, ErrInvalidArgument
	}
	if !req.Type.valid() {
		return Bill{}, ErrInvalidArgument
	}
	if req.AmountMinor <= 0 || req.DueDate.IsZero() {
		return Bill{}, ErrInvalidArgument
	}
	// Category and target must agree: user_managed bills have exactly one payer.
	switch req.Category {
	case CategoryUserManaged:
		if req.TargetUserID == "" {
			return Bill{}, ErrInvalidArgument
		}
	case CategoryClusterManaged:
		if req.TargetUserID != "" {
			return Bill{}, ErrInvalidArgument
		}
	default:
		return Bill{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	b := Bill{
		ID:                   uuid.NewString(),
		Number:               NewBillNumber(),
		ClusterID:            req.ClusterID,
		TargetUserID:         req.TargetUserID,
		Title:                req.Title,
		Description:          req.Description,
		Type:                 req.Type,
		Category:             req.Category,
		UtilityProviderID:    req.UtilityProviderID,
		CustomerID:           req.CustomerID,
		AmountMinor:          req.AmountMinor,
		Currency:             req.Currency,
		DueDate:              req.DueDate,
		AllowPaymentAfterDue: req.AllowPaymentAfterDue,
		CreatedBy:            req.CreatedBy,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return Bill{}, err
	}

	s.events.Publish(notify.Event{
		Kind:      notify.KindBillCreated,
		ClusterID: b.ClusterID,
		UserIDs:   recipientsFor(b),
		Title:     "New bill: " + b.Title,
		Meta:      map[string]string{"bill_id": b.ID, "bill_number": b.Number},
	})
	return b, nil
}

// RecordSettledUtility creates a user_managed bill already marked paid. It is
// the record-keeping half of a direct utility purchase: the money moved in the
// journal, this leaves a bill the resident can see in their history.
func (s *Service) RecordSettledUtility(ctx context.Context, req CreateRequest, txnID string) (Bill, error) {
	if req.ClusterID == "" || req.TargetUserID == "" || txnID == "" {
		return Bill{}, ErrInvalidArgument
	}
	if !req.Type.valid() || req.AmountMinor <= 0 {
		return Bill{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	b := Bill{
		ID:                uuid.NewString(),
		Number:            NewBillNumber(),
		ClusterID:         req.ClusterID,
		TargetUserID:      req.TargetUserID,
		Title:             req.Title,
		Description:       req.Description,
		Type:              req.Type,
		Category:          CategoryUserManaged,
		UtilityProviderID: req.UtilityProviderID,
		CustomerID:        req.CustomerID,
		AmountMinor:       req.AmountMinor,
		Currency:          req.Currency,
		DueDate:           now,
		CreatedBy:         req.CreatedBy,
		PaidAmountMinor:   req.AmountMinor,
		PaidAt:            &now,
		PaymentTxnID:      txnID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return Bill{}, err
	}
	return b, nil
}

func (s *Service) Get(ctx context.Context, clusterID, billID string) (Bill, error) {
	if clusterID == "" || billID == "" {
		return Bill{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, clusterID, billID)
}

func (s *Service) List(ctx context.Context, clusterID string, f ListFilter) ([]Bill, error) {
	if clusterID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.List(ctx, clusterID, f)
}

// Acknowledge records that a user has seen the bill. Cluster-wide bills may
// be acknowledged by any member; targeted bills only by their target user.
// Returns false when the user already acknowledged.
func (s *Service) Acknowledge(ctx context.Context, clusterID, billID, userID string) (bool, error) {
	if userID == "" {
		return false, ErrInvalidArgument
	}
	b, err := s.repo.Get(ctx, clusterID, billID)
	if err != nil {
		return false, err
	}
	if b.TargetUserID != "" && b.TargetUserID != userID {
		return false, ErrNotAllowed
	}
	if b.AcknowledgedBy(userID) {
		return false, nil
	}

	now := s.clock().UTC()
	b.Acknowledgments = append(b.Acknowledgments, Acknowledgment{UserID: userID, At: now})
	b.UpdatedAt = now
	if err := s.repo.Update(ctx, b); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveAcknowledgment is an admin action, e.g. after a bill is materially revised.
func (s *Service) RemoveAcknowledgment(ctx context.Context, clusterID, billID, userID string) (bool, error) {
	b, err := s.repo.Get(ctx, clusterID, billID)
	if err != nil {
		return false, err
	}
	// Filter into a fresh slice: the backing array may be shared with the
	// repo's stored copy, which must stay intact until Update commits.
	kept := make([]Acknowledgment, 0, len(b.Acknowledgments))
	removed := false
	for _, a := range b.Acknowledgments {
		if a.UserID == userID {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	if !removed {
		return false, nil
	}
	b.Acknowledgments = kept
	b.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, b); err != nil {
		return false, err
	}
	return true, nil
}

type PayRequest struct {
	ClusterID      string
	BillID         string
	UserID         string
	WalletID       string
	AmountMinor    int64
	IdempotencyKey string
}

type PayResult struct {
	Txn      journal.Transaction
	Bill     Bill
	Replayed bool
}

// Pay moves money from the payer's wallet against the bill.
//
// Order matters: all admission checks run before the journal entry exists,
// the hold is keyed by the new transaction id, and settlement happens exactly
// once. A failed hold cancels the pending entry.
func (s *Service) Pay(ctx context.Context, req PayRequest) (PayResult, error) {
	if req.ClusterID == "" || req.BillID == "" || req.UserID == "" || req.WalletID == "" {
		return PayResult{}, ErrInvalidArgument
	}
	if req.AmountMinor <= 0 {
		return PayResult{}, ErrInvalidArgument
	}

	b, err := s.repo.Get(ctx, req.ClusterID, req.BillID)
	if err != nil {
		return PayResult{}, err
	}

	// A replayed key returns the recorded outcome before any admission check:
	// the bill may have settled or gone overdue since the first attempt, and
	// neither turns a replay into an error.
	if req.IdempotencyKey != "" {
		existing, ok, err := s.journal.FindByIdempotencyKey(ctx, req.ClusterID, req.WalletID, req.IdempotencyKey)
		if err != nil {
			return PayResult{}, err
		}
		if ok {
			return PayResult{Txn: existing, Bill: b, Replayed: true}, nil
		}
	}

	st := strategyFor(b)
	if !st.CanBePaidBy(b, req.UserID) {
		return PayResult{}, ErrNotAllowed
	}

	remaining, err := st.RemainingFor(ctx, s.journal, b, req.UserID)
	if err != nil {
		return PayResult{}, err
	}
	if remaining == 0 {
		return PayResult{}, ErrBillAlreadyPaid
	}
	if req.AmountMinor > remaining {
		return PayResult{}, ErrExceedsRemaining
	}

	if err := s.checkDisputeGate(ctx, b, req.UserID); err != nil {
		return PayResult{}, err
	}

	now := s.clock().UTC()
	if b.IsOverdue(now) && !b.AllowPaymentAfterDue {
		return PayResult{}, ErrPaymentAfterDue
	}

	begin, err := s.journal.Begin(ctx, journal.BeginRequest{
		ClusterID:      req.ClusterID,
		WalletID:       req.WalletID,
		Type:           journal.TypeBillPayment,
		AmountMinor:    req.AmountMinor,
		Currency:       b.Currency,
		IdempotencyKey: req.IdempotencyKey,
		Description:    "Bill payment: " + b.Title,
		BillID:         b.ID,
		InitiatedBy:    req.UserID,
	})
	if err != nil {
		return PayResult{}, err
	}
	if begin.Replayed {
		return PayResult{Txn: begin.Txn, Bill: b, Replayed: true}, nil
	}
	txn := begin.Txn

	if err := s.ledger.Freeze(ctx, req.ClusterID, req.WalletID, txn.ID, req.AmountMinor); err != nil {
		if _, cErr := s.journal.Cancel(ctx, req.ClusterID, txn.ID); cErr != nil {
			return PayResult{}, fmt.Errorf("hold failed (%w) and cancel failed: %v", err, cErr)
		}
		return PayResult{}, err
	}

	txn, err = s.journal.Complete(ctx, req.ClusterID, txn.ID, "")
	if err != nil {
		return PayResult{}, err
	}

	b, err = s.applyPayment(ctx, b, req.UserID, req.AmountMinor, txn.ID, now)
	if err != nil {
		return PayResult{}, err
	}

	if err := s.creditClusterWallet(ctx, b, req.UserID, req.AmountMinor, txn.ID); err != nil {
		return PayResult{Txn: txn, Bill: b}, fmt.Errorf("bill payment settled but pooled wallet credit failed: %w", err)
	}

	s.events.Publish(notify.Event{
		Kind:      notify.KindBillPaid,
		ClusterID: b.ClusterID,
		UserIDs:   []string{req.UserID},
		Title:     "Payment received for " + b.Title,
		Meta: map[string]string{
			"bill_id":      b.ID,
			"txn_id":       txn.ID,
			"amount_minor": strconv.FormatInt(req.AmountMinor, 10),
		},
	})

	return PayResult{Txn: txn, Bill: b}, nil
}

func (s *Service) checkDisputeGate(ctx context.Context, b Bill, userID string) error {
	if s.disputes == nil {
		return nil
	}
	// A user_managed bill is frozen for its one payer by any active dispute.
	// A cluster_managed bill only blocks the disputing member; others may
	// keep contributing.
	var (
		blocked bool
		err     error
	)
	if b.Category == CategoryUserManaged {
		blocked, err = s.disputes.HasActiveDispute(ctx, b.ClusterID, b.ID)
	} else {
		blocked, err = s.disputes.HasActiveDisputeBy(ctx, b.ClusterID, b.ID, userID)
	}
	if err != nil {
		return err
	}
	if blocked {
		return ErrBillDisputed
	}
	return nil
}

func (s *Service) applyPayment(ctx context.Context, b Bill, userID string, amountMinor int64, txnID string, now time.Time) (Bill, error) {
	if b.Category == CategoryUserManaged {
		b.PaidAmountMinor += amountMinor
	}

	total, err := strategyFor(b).TotalPaid(ctx, s.journal, b)
	if err != nil {
		return Bill{}, err
	}
	if total >= b.AmountMinor && b.PaidAt == nil {
		b.PaidAt = &now
		b.PaymentTxnID = txnID
	}
	b.UpdatedAt = now
	if err := s.repo.Update(ctx, b); err != nil {
		return Bill{}, err
	}
	return b, nil
}

// creditClusterWallet lands the payment in the cluster's pooled wallet. Both
// categories route here: user bills fund the estate the same way shared
// bills do.
func (s *Service) creditClusterWallet(ctx context.Context, b Bill, userID string, amountMinor int64, sourceTxnID string) error {
	pooled, err := s.ledger.GetOrCreateClusterWallet(ctx, b.ClusterID, b.Currency)
	if err != nil {
		return err
	}

	begin, err := s.journal.Begin(ctx, journal.BeginRequest{
		ClusterID:      b.ClusterID,
		WalletID:       pooled.ID,
		Type:           journal.TypeDeposit,
		AmountMinor:    amountMinor,
		Currency:       b.Currency,
		IdempotencyKey: "pool:" + sourceTxnID,
		Description:    "Pooled credit for bill " + b.Number,
		BillID:         b.ID,
		InitiatedBy:    userID,
	})
	if err != nil {
		return err
	}
	if begin.Replayed {
		return nil
	}
	_, err = s.journal.Complete(ctx, b.ClusterID, begin.Txn.ID, "")
	return err
}

// IsFullyPaid reports whether the bill's paid total covers its amount.
func (s *Service) IsFullyPaid(ctx context.Context, clusterID, billID string) (bool, error) {
	b, err := s.repo.Get(ctx, clusterID, billID)
	if err != nil {
		return false, err
	}
	total, err := strategyFor(b).TotalPaid(ctx, s.journal, b)
	if err != nil {
		return false, err
	}
	return total >= b.AmountMinor, nil
}

// Summary is the per-user view of a bill.
type Summary struct {
	Bill           Bill  `json:"bill"`
	TotalPaidMinor int64 `json:"total_paid_minor"`
	PaidByUser     int64 `json:"paid_by_user_minor"`
	RemainingMinor int64 `json:"remaining_minor"`
	FullyPaid      bool  `json:"fully_paid"`
	Overdue        bool  `json:"overdue"`
	Acknowledged   bool  `json:"acknowledged"`
}

func (s *Service) SummaryFor(ctx context.Context, clusterID, billID, userID string) (Summary, error) {
	b, err := s.repo.Get(ctx, clusterID, billID)
	if err != nil {
		return Summary{}, err
	}
	st := strategyFor(b)

	total, err := st.TotalPaid(ctx, s.journal, b)
	if err != nil {
		return Summary{}, err
	}
	byUser, err := st.PaidByUser(ctx, s.journal, b, userID)
	if err != nil {
		return Summary{}, err
	}
	remaining, err := st.RemainingFor(ctx, s.journal, b, userID)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		Bill:           b,
		TotalPaidMinor: total,
		PaidByUser:     byUser,
		RemainingMinor: remaining,
		FullyPaid:      total >= b.AmountMinor,
		Overdue:        b.IsOverdue(s.clock().UTC()),
		Acknowledged:   b.AcknowledgedBy(userID),
	}, nil
}

func recipientsFor(b Bill) []string {
	if b.TargetUserID != "" {
		return []string{b.TargetUserID}
	}
	return nil // cluster-wide fan-out resolved by the delivery layer
}
