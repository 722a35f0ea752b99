package dispute

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeBills struct {
	paid map[string]bool
}

func (f fakeBills) IsFullyPaid(ctx context.Context, clusterID, billID string) (bool, error) {
	return f.paid[billID], nil
}

type recordingAuditor struct {
	outcomes []string
}

func (a *recordingAuditor) LogDisputeResolution(ctx context.Context, clusterID, actorUserID, actorRole, disputeID, billID, outcome, metadata string) error {
	a.outcomes = append(a.outcomes, outcome)
	return nil
}

func newTestService() (*Service, fakeBills, *recordingAuditor) {
	bills := fakeBills{paid: make(map[string]bool)}
	auditor := &recordingAuditor{}
	svc := NewService(NewMemoryRepo(), bills, auditor, nil)
	svc.clock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, bills, auditor
}

func TestOpen_IdempotentPerBillAndUser(t *testing.T) {
	svc, _, _ := newTestService()

	first, err := svc.Open(context.Background(), "est-1", "bill-1", "user-1", "wrong amount")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	second, err := svc.Open(context.Background(), "est-1", "bill-1", "user-1", "still wrong")
	if err != nil {
		t.Fatalf("Open again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the existing active dispute, got a new one")
	}
	if second.Reason != "wrong amount" {
		t.Fatalf("existing dispute must be returned unchanged, got reason %q", second.Reason)
	}

	// A different user may dispute the same bill independently.
	other, err := svc.Open(context.Background(), "est-1", "bill-1", "user-2", "duplicate charge")
	if err != nil {
		t.Fatalf("Open by other user: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("disputes are scoped per user")
	}
}

func TestOpen_RejectedWhenBillFullyPaid(t *testing.T) {
	svc, bills, _ := newTestService()
	bills.paid["bill-paid"] = true

	_, err := svc.Open(context.Background(), "est-1", "bill-paid", "user-1", "too late")
	if !errors.Is(err, ErrBillFullyPaid) {
		t.Fatalf("expected ErrBillFullyPaid, got %v", err)
	}
}

func TestLifecycle_ReviewThenResolve(t *testing.T) {
	svc, _, auditor := newTestService()
	d, _ := svc.Open(context.Background(), "est-1", "bill-1", "user-1", "wrong amount")

	d, err := svc.StartReview(context.Background(), "est-1", d.ID, "checking meter readings")
	if err != nil {
		t.Fatalf("StartReview: %v", err)
	}
	if d.Status != StatusUnderReview || d.AdminNotes == "" {
		t.Fatalf("unexpected dispute after review: %+v", d)
	}

	d, err = svc.Resolve(context.Background(), "est-1", d.ID, "admin-1", "estate_manager", "amount corrected")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Status != StatusResolved || d.ResolvedAt == nil || d.ResolvedBy != "admin-1" {
		t.Fatalf("unexpected resolved dispute: %+v", d)
	}
	if len(auditor.outcomes) != 1 || auditor.outcomes[0] != "resolved" {
		t.Fatalf("resolution should be audited, got %v", auditor.outcomes)
	}

	// Terminal: no further transitions.
	if _, err := svc.Reject(context.Background(), "est-1", d.ID, "admin-1", "estate_manager", ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.Withdraw(context.Background(), "est-1", d.ID, "user-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestWithdraw_OnlyDisputingParty(t *testing.T) {
	svc, _, _ := newTestService()
	d, _ := svc.Open(context.Background(), "est-1", "bill-1", "user-1", "wrong amount")

	if _, err := svc.Withdraw(context.Background(), "est-1", d.ID, "user-2"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
	d, err := svc.Withdraw(context.Background(), "est-1", d.ID, "user-1")
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if d.Status != StatusWithdrawn {
		t.Fatalf("expected withdrawn, got %s", d.Status)
	}

	// A withdrawn dispute no longer blocks payments, and the user may reopen.
	blocked, err := svc.HasActiveDisputeBy(context.Background(), "est-1", "bill-1", "user-1")
	if err != nil || blocked {
		t.Fatalf("withdrawn dispute must not block: blocked=%v err=%v", blocked, err)
	}
	if _, err := svc.Open(context.Background(), "est-1", "bill-1", "user-1", "reopened"); err != nil {
		t.Fatalf("reopen after withdraw: %v", err)
	}
}

func TestHasActiveDispute_BillWide(t *testing.T) {
	svc, _, _ := newTestService()

	blocked, err := svc.HasActiveDispute(context.Background(), "est-1", "bill-1")
	if err != nil || blocked {
		t.Fatalf("no disputes yet: blocked=%v err=%v", blocked, err)
	}

	d, _ := svc.Open(context.Background(), "est-1", "bill-1", "user-1", "wrong amount")
	blocked, _ = svc.HasActiveDispute(context.Background(), "est-1", "bill-1")
	if !blocked {
		t.Fatalf("open dispute should block the bill")
	}

	if _, err := svc.Reject(context.Background(), "est-1", d.ID, "admin-1", "estate_manager", "bill stands"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	blocked, _ = svc.HasActiveDispute(context.Background(), "est-1", "bill-1")
	if blocked {
		t.Fatalf("rejected dispute must not block")
	}
}

func TestComments_ThreadWithReplies(t *testing.T) {
	svc, _, _ := newTestService()
	d, _ := svc.Open(context.Background(), "est-1", "bill-1", "user-1", "wrong amount")

	root, err := svc.AddComment(context.Background(), "est-1", d.ID, "", "user-1", "the meter reading is off")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	reply, err := svc.AddComment(context.Background(), "est-1", d.ID, root.ID, "admin-1", "we will re-read it")
	if err != nil {
		t.Fatalf("AddComment reply: %v", err)
	}
	if reply.ParentID != root.ID {
		t.Fatalf("reply should reference its parent")
	}

	// Replying to a comment that does not exist is rejected.
	if _, err := svc.AddComment(context.Background(), "est-1", d.ID, "nope", "user-1", "?"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	thread, err := svc.Thread(context.Background(), "est-1", d.ID)
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if len(thread) != 2 || thread[0].ID != root.ID || thread[1].ID != reply.ID {
		t.Fatalf("unexpected thread: %+v", thread)
	}
}
