package payerr

import (
	"context"
	"errors"
	"time"

	"estate-platform/internal/notify"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("payment error not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotRetryable    = errors.New("payment error cannot be retried")
)

// Recorder persists classified payment failures and fans out notifications.
// Notification delivery is fire-and-forget; a failed send never fails the
// record.
type Recorder struct {
	repo   Repository
	events notify.Publisher
	clock  func() time.Time
}

func NewRecorder(repo Repository, events notify.Publisher) *Recorder {
	if events == nil {
		events = notify.NopPublisher{}
	}
	return &Recorder{repo: repo, events: events, clock: time.Now}
}

type RecordRequest struct {
	ClusterID         string
	TxnID             string
	UserID            string
	ProviderErrorCode string
	Message           string // raw provider error message
}

// Record classifies the failure, persists it with its retry policy, and
// notifies the affected user. CRITICAL errors additionally alert cluster
// admins.
func (r *Recorder) Record(ctx context.Context, req RecordRequest) (Error, error) {
	if req.ClusterID == "" || req.TxnID == "" || req.Message == "" {
		return Error{}, ErrInvalidArgument
	}

	t := Classify(req.Message)
	policy := PolicyFor(t)
	now := r.clock().UTC()

	e := Error{
		ID:                   uuid.NewString(),
		ClusterID:            req.ClusterID,
		TxnID:                req.TxnID,
		UserID:               req.UserID,
		Type:                 t,
		Severity:             SeverityFor(t),
		ProviderErrorCode:    req.ProviderErrorCode,
		ProviderErrorMessage: req.Message,
		UserMessage:          UserMessage(t),
		CanRetry:             policy.CanRetry,
		MaxRetries:           policy.MaxRetries,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if req.UserID != "" {
		e.UserNotified = true
	}
	if e.Severity == SeverityCritical {
		e.AdminNotified = true
	}

	if err := r.repo.Create(ctx, e); err != nil {
		return Error{}, err
	}

	if req.UserID != "" {
		r.events.Publish(notify.Event{
			Kind:      notify.KindPaymentFailed,
			ClusterID: req.ClusterID,
			UserIDs:   []string{req.UserID},
			Title:     "Payment failed",
			Body:      e.UserMessage,
			Meta:      map[string]string{"txn_id": req.TxnID, "error_type": string(t)},
		})
	}
	if e.Severity == SeverityCritical {
		r.events.Publish(notify.Event{
			Kind:      notify.KindAdminAlert,
			ClusterID: req.ClusterID,
			Title:     "Critical payment failure",
			Body:      req.Message,
			Meta:      map[string]string{"txn_id": req.TxnID, "error_type": string(t)},
		})
	}
	return e, nil
}

func (r *Recorder) Get(ctx context.Context, clusterID, errorID string) (Error, error) {
	if clusterID == "" || errorID == "" {
		return Error{}, ErrInvalidArgument
	}
	return r.repo.Get(ctx, clusterID, errorID)
}

func (r *Recorder) ListByTxn(ctx context.Context, clusterID, txnID string) ([]Error, error) {
	return r.repo.ListByTxn(ctx, clusterID, txnID)
}

func (r *Recorder) ListUnresolved(ctx context.Context, clusterID string) ([]Error, error) {
	return r.repo.ListUnresolved(ctx, clusterID)
}

// IncrementRetry consumes one retry attempt. Callers must check CanBeRetried
// first; a non-retryable error is rejected here as a backstop.
func (r *Recorder) IncrementRetry(ctx context.Context, clusterID, errorID string) (Error, error) {
	e, err := r.repo.Get(ctx, clusterID, errorID)
	if err != nil {
		return Error{}, err
	}
	if !e.CanBeRetried() {
		return Error{}, ErrNotRetryable
	}
	e.RetryCount++
	e.UpdatedAt = r.clock().UTC()
	if err := r.repo.Update(ctx, e); err != nil {
		return Error{}, err
	}
	return e, nil
}

// MarkResolved closes the error, recording how it was resolved.
func (r *Recorder) MarkResolved(ctx context.Context, clusterID, errorID, method string) (Error, error) {
	e, err := r.repo.Get(ctx, clusterID, errorID)
	if err != nil {
		return Error{}, err
	}
	if e.Resolved {
		return e, nil
	}
	now := r.clock().UTC()
	e.Resolved = true
	e.ResolvedAt = &now
	e.ResolutionMethod = method
	e.UpdatedAt = now
	if err := r.repo.Update(ctx, e); err != nil {
		return Error{}, err
	}
	return e, nil
}
