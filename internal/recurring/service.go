package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"estate-platform/internal/billing"
	"estate-platform/internal/journal"
	"estate-platform/internal/notify"
	"estate-platform/internal/payments"

	"github.com/google/uuid"
)

// Payments executes the actual money movement for a due payment: utility
// purchases and pooled-wallet contributions.
type Payments interface {
	PayUtility(ctx context.Context, req payments.PayUtilityRequest) (payments.PayUtilityResult, error)
	TransferToCluster(ctx context.Context, req payments.TransferRequest) (journal.Transaction, error)
}

// BillPayer settles a recurring bill payment through the reconciliation engine.
type BillPayer interface {
	Pay(ctx context.Context, req billing.PayRequest) (billing.PayResult, error)
}

// Ledger is the sufficiency pre-check before an attempt is made.
type Ledger interface {
	HasSufficientBalance(ctx context.Context, clusterID, walletID string, amountMinor int64) (bool, error)
}

// WalletLocker provides per-wallet mutual exclusion for the sweep, so a
// payment is never processed twice for the same wallet concurrently.
type WalletLocker interface {
	Acquire(ctx context.Context, walletID, owner string) (bool, error)
	Release(ctx context.Context, walletID, owner string) error
}

// NopLocker performs no locking; single-process deployments and tests.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string, string) (bool, error) { return true, nil }
func (NopLocker) Release(context.Context, string, string) error         { return nil }

var (
	ErrNotFound          = errors.New("recurring payment not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSpendingLimit     = errors.New("amount exceeds spending limit")
	ErrInsufficientFunds = errors.New("insufficient funds for recurring payment")
)

// Service is the recurring payment scheduler.
type Service struct {
	repo     Repository
	payments Payments
	bills    BillPayer
	ledger   Ledger
	locker   WalletLocker
	events   notify.Publisher
	clock    func() time.Time
}

func NewService(repo Repository, pay Payments, bills BillPayer, ldgr Ledger, locker WalletLocker, events notify.Publisher) *Service {
	if locker == nil {
		locker = NopLocker{}
	}
	if events == nil {
		events = notify.NopPublisher{}
	}
	return &Service{
		repo:     repo,
		payments: pay,
		bills:    bills,
		ledger:   ldgr,
		locker:   locker,
		events:   events,
		clock:    time.Now,
	}
}

type CreateRequest struct {
	ClusterID          string
	UserID             string
	WalletID           string
	BillID             string
	UtilityProviderID  string
	CustomerID         string
	Title              string
	AmountMinor        int64
	Currency           string
	Frequency          Frequency
	StartDate          time.Time
	EndDate            *time.Time
	MaxFailedAttempts  int
	SpendingLimitMinor int64
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (RecurringPayment, error) {
	if req.ClusterID == "" || req.UserID == "" || req.WalletID == "" || req.Title == "" {
		return RecurringPayment{}, ErrInvalidArgument
	}
	if req.AmountMinor <= 0 || !req.Frequency.valid() || req.StartDate.IsZero() {
		return RecurringPayment{}, ErrInvalidArgument
	}
	if req.UtilityProviderID != "" && req.CustomerID == "" {
		return RecurringPayment{}, ErrInvalidArgument
	}
	if req.MaxFailedAttempts <= 0 {
		req.MaxFailedAttempts = 3
	}

	now := s.clock().UTC()
	rp := RecurringPayment{
		ID:                 uuid.NewString(),
		ClusterID:          req.ClusterID,
		UserID:             req.UserID,
		WalletID:           req.WalletID,
		BillID:             req.BillID,
		UtilityProviderID:  req.UtilityProviderID,
		CustomerID:         req.CustomerID,
		Title:              req.Title,
		AmountMinor:        req.AmountMinor,
		Currency:           req.Currency,
		Frequency:          req.Frequency,
		Status:             StatusActive,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		NextPaymentDate:    req.StartDate,
		MaxFailedAttempts:  req.MaxFailedAttempts,
		SpendingLimitMinor: req.SpendingLimitMinor,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, rp); err != nil {
		return RecurringPayment{}, err
	}
	return rp, nil
}

func (s *Service) Get(ctx context.Context, clusterID, id string) (RecurringPayment, error) {
	if clusterID == "" || id == "" {
		return RecurringPayment{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, clusterID, id)
}

func (s *Service) ListByUser(ctx context.Context, clusterID, userID string) ([]RecurringPayment, error) {
	return s.repo.ListByUser(ctx, clusterID, userID)
}

func (s *Service) Pause(ctx context.Context, clusterID, id string) (RecurringPayment, error) {
	return s.setStatus(ctx, clusterID, id, StatusActive, StatusPaused, false)
}

// Resume reactivates a paused payment and clears the failure streak so the
// next attempt starts fresh.
func (s *Service) Resume(ctx context.Context, clusterID, id string) (RecurringPayment, error) {
	return s.setStatus(ctx, clusterID, id, StatusPaused, StatusActive, true)
}

func (s *Service) Cancel(ctx context.Context, clusterID, id string) (RecurringPayment, error) {
	rp, err := s.repo.Get(ctx, clusterID, id)
	if err != nil {
		return RecurringPayment{}, err
	}
	if rp.Status != StatusActive && rp.Status != StatusPaused {
		return RecurringPayment{}, ErrInvalidTransition
	}
	rp.Status = StatusCancelled
	rp.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, rp); err != nil {
		return RecurringPayment{}, err
	}
	return rp, nil
}

func (s *Service) setStatus(ctx context.Context, clusterID, id string, from, to Status, resetFailures bool) (RecurringPayment, error) {
	rp, err := s.repo.Get(ctx, clusterID, id)
	if err != nil {
		return RecurringPayment{}, err
	}
	if rp.Status != from {
		return RecurringPayment{}, ErrInvalidTransition
	}
	rp.Status = to
	if resetFailures {
		rp.FailedAttempts = 0
	}
	rp.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, rp); err != nil {
		return RecurringPayment{}, err
	}
	return rp, nil
}

// ProcessPayment executes one due payment. On success the failure streak
// resets and the schedule advances; past the end date the payment expires
// instead. On failure the streak grows and, at the threshold, the payment
// pauses and the user is notified.
func (s *Service) ProcessPayment(ctx context.Context, clusterID, id string) (RecurringPayment, error) {
	rp, err := s.repo.Get(ctx, clusterID, id)
	if err != nil {
		return RecurringPayment{}, err
	}
	if rp.Status != StatusActive {
		return rp, ErrInvalidTransition
	}

	now := s.clock().UTC()
	if rp.EndDate != nil && now.After(*rp.EndDate) {
		rp.Status = StatusExpired
		rp.UpdatedAt = now
		if err := s.repo.Update(ctx, rp); err != nil {
			return RecurringPayment{}, err
		}
		return rp, nil
	}

	if rp.SpendingLimitMinor > 0 && rp.AmountMinor > rp.SpendingLimitMinor {
		return s.recordFailure(ctx, rp, now, ErrSpendingLimit)
	}
	ok, err := s.ledger.HasSufficientBalance(ctx, clusterID, rp.WalletID, rp.AmountMinor)
	if err != nil {
		return RecurringPayment{}, err
	}
	if !ok {
		return s.recordFailure(ctx, rp, now, ErrInsufficientFunds)
	}

	if err := s.execute(ctx, rp); err != nil {
		return s.recordFailure(ctx, rp, now, err)
	}

	rp.FailedAttempts = 0
	rp.TotalPayments++
	rp.LastPaymentDate = &now
	rp.NextPaymentDate = rp.Frequency.NextAfter(rp.NextPaymentDate)
	if rp.EndDate != nil && rp.NextPaymentDate.After(*rp.EndDate) {
		rp.Status = StatusExpired
	}
	rp.UpdatedAt = now
	if err := s.repo.Update(ctx, rp); err != nil {
		return RecurringPayment{}, err
	}
	return rp, nil
}

// execute routes the attempt: utility purchase, bill payment, or a plain
// pooled-wallet contribution. The idempotency key covers one attempt of one
// occurrence, so concurrent sweeps cannot double-charge.
func (s *Service) execute(ctx context.Context, rp RecurringPayment) error {
	key := fmt.Sprintf("recurring:%s:%d:%d", rp.ID, rp.NextPaymentDate.Unix(), rp.FailedAttempts)

	switch {
	case rp.UtilityProviderID != "":
		_, err := s.payments.PayUtility(ctx, payments.PayUtilityRequest{
			ClusterID:         rp.ClusterID,
			UserID:            rp.UserID,
			UtilityProviderID: rp.UtilityProviderID,
			CustomerID:        rp.CustomerID,
			AmountMinor:       rp.AmountMinor,
			IdempotencyKey:    key,
		})
		return err
	case rp.BillID != "":
		_, err := s.bills.Pay(ctx, billing.PayRequest{
			ClusterID:      rp.ClusterID,
			BillID:         rp.BillID,
			UserID:         rp.UserID,
			WalletID:       rp.WalletID,
			AmountMinor:    rp.AmountMinor,
			IdempotencyKey: key,
		})
		return err
	default:
		_, err := s.payments.TransferToCluster(ctx, payments.TransferRequest{
			ClusterID:   rp.ClusterID,
			FromUserID:  rp.UserID,
			AmountMinor: rp.AmountMinor,
			ActorUserID: rp.UserID,
			ActorRole:   "system",
			Description: rp.Title,
		})
		return err
	}
}

func (s *Service) recordFailure(ctx context.Context, rp RecurringPayment, now time.Time, cause error) (RecurringPayment, error) {
	rp.FailedAttempts++
	if rp.FailedAttempts >= rp.MaxFailedAttempts {
		rp.Status = StatusPaused
		s.events.Publish(notify.Event{
			Kind:      notify.KindRecurringPaused,
			ClusterID: rp.ClusterID,
			UserIDs:   []string{rp.UserID},
			Title:     "Recurring payment paused",
			Body:      fmt.Sprintf("%q was paused after %d failed attempts.", rp.Title, rp.FailedAttempts),
			Meta:      map[string]string{"recurring_id": rp.ID},
		})
	}
	rp.UpdatedAt = now
	if err := s.repo.Update(ctx, rp); err != nil {
		return RecurringPayment{}, err
	}
	return rp, cause
}

// SweepResult summarizes one ProcessDue run.
type SweepResult struct {
	Processed int
	Failed    int
	Paused    int
	Skipped   int
}

// ProcessDue processes every due active payment in the cluster. Each wallet
// is guarded by the wallet lock; wallets already locked elsewhere are skipped
// and picked up on the next sweep.
func (s *Service) ProcessDue(ctx context.Context, clusterID string) (SweepResult, error) {
	if clusterID == "" {
		return SweepResult{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	due, err := s.repo.ListDue(ctx, clusterID, now)
	if err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	for _, rp := range due {
		owner := "sweep:" + rp.ID
		ok, err := s.locker.Acquire(ctx, rp.WalletID, owner)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Skipped++
			continue
		}

		updated, perr := s.ProcessPayment(ctx, clusterID, rp.ID)
		_ = s.locker.Release(ctx, rp.WalletID, owner)

		switch {
		case perr == nil:
			res.Processed++
		case updated.Status == StatusPaused:
			res.Paused++
		default:
			res.Failed++
		}
	}
	return res, nil
}

// RemindUpcoming notifies users whose next payment falls inside the window.
// Returns the number of reminders published.
func (s *Service) RemindUpcoming(ctx context.Context, clusterID string, within time.Duration) (int, error) {
	if clusterID == "" || within <= 0 {
		return 0, ErrInvalidArgument
	}
	now := s.clock().UTC()
	upcoming, err := s.repo.ListDue(ctx, clusterID, now.Add(within))
	if err != nil {
		return 0, err
	}

	var n int
	for _, rp := range upcoming {
		if !rp.NextPaymentDate.After(now) {
			continue // already due, the sweep handles it
		}
		s.events.Publish(notify.Event{
			Kind:      notify.KindRecurringDueSoon,
			ClusterID: rp.ClusterID,
			UserIDs:   []string{rp.UserID},
			Title:     "Upcoming payment",
			Body:      fmt.Sprintf("%q is due on %s.", rp.Title, rp.NextPaymentDate.Format("2006-01-02")),
			Meta:      map[string]string{"recurring_id": rp.ID},
		})
		n++
	}
	return n, nil
}
