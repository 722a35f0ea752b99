package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to residents by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.ClusterID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records an admin action against a wallet (including hidden roles).
func (s *Service) LogAdminAction(ctx context.Context, clusterID, actorUserID, actorRole, ip, message, walletID, metadata string) error {
	return s.Append(ctx, Event{
		ClusterID:   clusterID,
		Type:        EventTypeAdminAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		WalletID:    walletID,
		Message:     message,
		Metadata:    metadata,
	})
}

// LogDisputeResolution records how a dispute was closed and by whom.
func (s *Service) LogDisputeResolution(ctx context.Context, clusterID, actorUserID, actorRole, disputeID, billID, outcome, metadata string) error {
	return s.Append(ctx, Event{
		ClusterID:   clusterID,
		Type:        EventTypeDisputeResolution,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		DisputeID:   disputeID,
		BillID:      billID,
		Message:     outcome,
		Metadata:    metadata,
	})
}

// LogClusterTransfer records a manual movement into the pooled wallet.
func (s *Service) LogClusterTransfer(ctx context.Context, clusterID, actorUserID, actorRole, walletID, txnID, message string) error {
	return s.Append(ctx, Event{
		ClusterID:   clusterID,
		Type:        EventTypeClusterTransfer,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		WalletID:    walletID,
		TxnID:       txnID,
		Message:     message,
	})
}
