package dispute

import (
	"context"
	"errors"
	"time"

	"estate-platform/internal/notify"

	"github.com/google/uuid"
)

// Bills is the billing surface the dispute manager consults on admission.
type Bills interface {
	IsFullyPaid(ctx context.Context, clusterID, billID string) (bool, error)
}

// Auditor records dispute outcomes. Audit failures never block a resolution.
type Auditor interface {
	LogDisputeResolution(ctx context.Context, clusterID, actorUserID, actorRole, disputeID, billID, outcome, metadata string) error
}

// Service manages the dispute lifecycle.
//
// State machine:
//
//	open -> under_review -> resolved | rejected
//	open | under_review -> withdrawn (disputing party only)
//
// Terminal statuses (resolved/rejected/withdrawn) never transition again.
type Service struct {
	repo   Repository
	bills  Bills
	audit  Auditor
	events notify.Publisher
	clock  func() time.Time
}

func NewService(repo Repository, bills Bills, auditor Auditor, events notify.Publisher) *Service {
	if events == nil {
		events = notify.NopPublisher{}
	}
	return &Service{repo: repo, bills: bills, audit: auditor, events: events, clock: time.Now}
}

// SetBills completes the wiring between billing and disputes: each side
// depends on the other through an interface, so one is attached after
// construction.
func (s *Service) SetBills(b Bills) { s.bills = b }

var (
	ErrNotFound          = errors.New("dispute not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotAllowed        = errors.New("operation not allowed for user")
	ErrBillFullyPaid     = errors.New("bill is fully paid and can no longer be disputed")
	ErrInvalidTransition = errors.New("invalid dispute status transition")
)

// Open files a dispute against a bill. If the user already has an active
// dispute on this bill, the existing one is returned unchanged.
func (s *Service) Open(ctx context.Context, clusterID, billID, userID, reason string) (Dispute, error) {
	if clusterID == "" || billID == "" || userID == "" || reason == "" {
		return Dispute{}, ErrInvalidArgument
	}

	if existing, ok, err := s.repo.FindActiveByBillAndUser(ctx, clusterID, billID, userID); err != nil {
		return Dispute{}, err
	} else if ok {
		return existing, nil
	}

	paid, err := s.bills.IsFullyPaid(ctx, clusterID, billID)
	if err != nil {
		return Dispute{}, err
	}
	if paid {
		return Dispute{}, ErrBillFullyPaid
	}

	now := s.clock().UTC()
	d := Dispute{
		ID:         uuid.NewString(),
		ClusterID:  clusterID,
		BillID:     billID,
		DisputedBy: userID,
		Reason:     reason,
		Status:     StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return Dispute{}, err
	}

	s.events.Publish(notify.Event{
		Kind:      notify.KindDisputeOpened,
		ClusterID: clusterID,
		Title:     "Bill disputed",
		Meta:      map[string]string{"dispute_id": d.ID, "bill_id": billID},
	})
	return d, nil
}

func (s *Service) Get(ctx context.Context, clusterID, disputeID string) (Dispute, error) {
	if clusterID == "" || disputeID == "" {
		return Dispute{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, clusterID, disputeID)
}

func (s *Service) ListByBill(ctx context.Context, clusterID, billID string) ([]Dispute, error) {
	if clusterID == "" || billID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListByBill(ctx, clusterID, billID)
}

// StartReview moves an open dispute into review and records reviewer notes.
func (s *Service) StartReview(ctx context.Context, clusterID, disputeID, adminNotes string) (Dispute, error) {
	d, err := s.repo.Get(ctx, clusterID, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if d.Status != StatusOpen {
		return Dispute{}, ErrInvalidTransition
	}
	d.Status = StatusUnderReview
	if adminNotes != "" {
		d.AdminNotes = adminNotes
	}
	d.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, d); err != nil {
		return Dispute{}, err
	}
	return d, nil
}

// Resolve closes the dispute in the member's favor.
func (s *Service) Resolve(ctx context.Context, clusterID, disputeID, adminID, adminRole, notes string) (Dispute, error) {
	return s.close(ctx, clusterID, disputeID, adminID, adminRole, notes, StatusResolved)
}

// Reject closes the dispute upholding the bill.
func (s *Service) Reject(ctx context.Context, clusterID, disputeID, adminID, adminRole, notes string) (Dispute, error) {
	return s.close(ctx, clusterID, disputeID, adminID, adminRole, notes, StatusRejected)
}

func (s *Service) close(ctx context.Context, clusterID, disputeID, adminID, adminRole, notes string, outcome Status) (Dispute, error) {
	if adminID == "" {
		return Dispute{}, ErrInvalidArgument
	}
	d, err := s.repo.Get(ctx, clusterID, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if !d.Status.Active() {
		return Dispute{}, ErrInvalidTransition
	}

	now := s.clock().UTC()
	d.Status = outcome
	d.ResolutionNotes = notes
	d.ResolvedBy = adminID
	d.ResolvedAt = &now
	d.UpdatedAt = now
	if err := s.repo.Update(ctx, d); err != nil {
		return Dispute{}, err
	}

	if s.audit != nil {
		_ = s.audit.LogDisputeResolution(ctx, clusterID, adminID, adminRole, d.ID, d.BillID, string(outcome), "")
	}
	s.events.Publish(notify.Event{
		Kind:      notify.KindDisputeResolved,
		ClusterID: clusterID,
		UserIDs:   []string{d.DisputedBy},
		Title:     "Dispute " + string(outcome),
		Meta:      map[string]string{"dispute_id": d.ID, "bill_id": d.BillID},
	})
	return d, nil
}

// Withdraw lets the disputing party retract their own dispute.
func (s *Service) Withdraw(ctx context.Context, clusterID, disputeID, userID string) (Dispute, error) {
	d, err := s.repo.Get(ctx, clusterID, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if d.DisputedBy != userID {
		return Dispute{}, ErrNotAllowed
	}
	if !d.Status.Active() {
		return Dispute{}, ErrInvalidTransition
	}

	d.Status = StatusWithdrawn
	d.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, d); err != nil {
		return Dispute{}, err
	}
	return d, nil
}

// HasActiveDispute reports whether any member has an active dispute on the bill.
func (s *Service) HasActiveDispute(ctx context.Context, clusterID, billID string) (bool, error) {
	disputes, err := s.repo.ListByBill(ctx, clusterID, billID)
	if err != nil {
		return false, err
	}
	for _, d := range disputes {
		if d.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

// HasActiveDisputeBy reports whether this user has an active dispute on the bill.
func (s *Service) HasActiveDisputeBy(ctx context.Context, clusterID, billID, userID string) (bool, error) {
	_, ok, err := s.repo.FindActiveByBillAndUser(ctx, clusterID, billID, userID)
	return ok, err
}

// AddComment appends a comment to the dispute thread. A reply must reference
// an existing comment on the same dispute.
func (s *Service) AddComment(ctx context.Context, clusterID, disputeID, parentID, authorID, body string) (Comment, error) {
	if authorID == "" || body == "" {
		return Comment{}, ErrInvalidArgument
	}
	d, err := s.repo.Get(ctx, clusterID, disputeID)
	if err != nil {
		return Comment{}, err
	}

	if parentID != "" {
		comments, err := s.repo.ListComments(ctx, d.ID)
		if err != nil {
			return Comment{}, err
		}
		found := false
		for _, c := range comments {
			if c.ID == parentID {
				found = true
				break
			}
		}
		if !found {
			return Comment{}, ErrInvalidArgument
		}
	}

	c := Comment{
		ID:        uuid.NewString(),
		DisputeID: d.ID,
		ParentID:  parentID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.repo.AddComment(ctx, c); err != nil {
		return Comment{}, err
	}
	return c, nil
}

// Thread returns the dispute's comments in creation order. Replies reference
// parents by id; rendering a tree is the caller's concern.
func (s *Service) Thread(ctx context.Context, clusterID, disputeID string) ([]Comment, error) {
	d, err := s.repo.Get(ctx, clusterID, disputeID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListComments(ctx, d.ID)
}
