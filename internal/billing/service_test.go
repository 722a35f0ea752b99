package billing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"estate-platform/internal/journal"
	"estate-platform/internal/ledger"
	"estate-platform/internal/notify"
)

type fakeDisputes struct {
	billWide map[string]bool
	byUser   map[string]bool // key billID + "|" + userID
}

func (f fakeDisputes) HasActiveDispute(ctx context.Context, clusterID, billID string) (bool, error) {
	return f.billWide[billID], nil
}

func (f fakeDisputes) HasActiveDisputeBy(ctx context.Context, clusterID, billID, userID string) (bool, error) {
	return f.byUser[billID+"|"+userID], nil
}

type harness struct {
	bills    *Service
	ledger   *ledger.Service
	journal  *journal.Service
	events   *notify.MemoryPublisher
	disputes fakeDisputes
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		events: &notify.MemoryPublisher{},
		disputes: fakeDisputes{
			billWide: make(map[string]bool),
			byUser:   make(map[string]bool),
		},
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.ledger = ledger.NewService(ledger.NewMemoryRepo())
	h.journal = journal.NewService(journal.NewMemoryRepo(), h.ledger)
	h.bills = NewService(NewMemoryRepo(), h.journal, h.ledger, h.disputes, h.events)
	h.bills.clock = func() time.Time { return h.now }
	return h
}

func (h *harness) fundedWallet(t *testing.T, userID string, balance int64) ledger.Wallet {
	t.Helper()
	w, err := h.ledger.GetOrCreate(context.Background(), "est-1", userID, "NGN")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := h.ledger.ApplyCompletedDelta(context.Background(), "est-1", w.ID, "seed-"+userID, balance); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w, _ = h.ledger.Get(context.Background(), "est-1", w.ID)
	return w
}

func (h *harness) createBill(t *testing.T, req CreateRequest) Bill {
	t.Helper()
	if req.ClusterID == "" {
		req.ClusterID = "est-1"
	}
	if req.Currency == "" {
		req.Currency = "NGN"
	}
	if req.Type == "" {
		req.Type = BillTypeServiceCharge
	}
	if req.CreatedBy == "" {
		req.CreatedBy = "manager-1"
	}
	if req.DueDate.IsZero() {
		req.DueDate = h.now.Add(7 * 24 * time.Hour)
	}
	b, err := h.bills.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return b
}

func (h *harness) ack(t *testing.T, billID string, users ...string) {
	t.Helper()
	for _, u := range users {
		if _, err := h.bills.Acknowledge(context.Background(), "est-1", billID, u); err != nil {
			t.Fatalf("Acknowledge(%s): %v", u, err)
		}
	}
}

func TestCreate_NumberFormatAndCategoryRules(t *testing.T) {
	h := newHarness(t)

	b := h.createBill(t, CreateRequest{
		Title:        "Service charge Q2",
		Category:     CategoryUserManaged,
		TargetUserID: "user-1",
		AmountMinor:  5000,
	})
	if !strings.HasPrefix(b.Number, "BILL-") || len(b.Number) != len("BILL-")+8 {
		t.Fatalf("unexpected bill number: %q", b.Number)
	}

	// user_managed without a target is invalid, as is cluster_managed with one.
	_, err := h.bills.Create(context.Background(), CreateRequest{
		ClusterID: "est-1", Title: "x", Type: BillTypeWater, Category: CategoryUserManaged,
		AmountMinor: 100, Currency: "NGN", DueDate: h.now, CreatedBy: "m",
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	_, err = h.bills.Create(context.Background(), CreateRequest{
		ClusterID: "est-1", Title: "x", Type: BillTypeWater, Category: CategoryClusterManaged,
		TargetUserID: "user-1", AmountMinor: 100, Currency: "NGN", DueDate: h.now, CreatedBy: "m",
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestPay_UserManagedFullPayment(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, "user-1", 10000)
	b := h.createBill(t, CreateRequest{
		Title: "Service charge", Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 5000,
	})
	h.ack(t, b.ID, "user-1")

	res, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-1", WalletID: w.ID, AmountMinor: 5000,
	})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if res.Bill.PaidAmountMinor != 5000 {
		t.Fatalf("expected running total 5000, got %d", res.Bill.PaidAmountMinor)
	}
	if res.Bill.PaidAt == nil || res.Bill.PaymentTxnID != res.Txn.ID {
		t.Fatalf("bill should be marked paid by txn %s: %+v", res.Txn.ID, res.Bill)
	}

	got, _ := h.ledger.Get(context.Background(), "est-1", w.ID)
	if got.BalanceMinor != 5000 || got.AvailableMinor != 5000 {
		t.Fatalf("payer wallet should be debited once, got balance=%d available=%d",
			got.BalanceMinor, got.AvailableMinor)
	}

	pooled, err := h.ledger.GetOrCreateClusterWallet(context.Background(), "est-1", "NGN")
	if err != nil {
		t.Fatalf("pooled wallet: %v", err)
	}
	if pooled.BalanceMinor != 5000 {
		t.Fatalf("pooled wallet should hold the payment, got %d", pooled.BalanceMinor)
	}
}

func TestPay_UserManagedRejectsOtherPayers(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, "user-2", 10000)
	b := h.createBill(t, CreateRequest{
		Title: "Service charge", Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 5000,
	})

	_, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-2", WalletID: w.ID, AmountMinor: 5000,
	})
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestPay_RequiresAcknowledgment(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, "user-1", 10000)
	b := h.createBill(t, CreateRequest{
		Title: "Service charge", Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 5000,
	})

	req := PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-1", WalletID: w.ID, AmountMinor: 5000,
	}
	_, err := h.bills.Pay(context.Background(), req)
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("unacknowledged bill must not be payable, got %v", err)
	}

	h.ack(t, b.ID, "user-1")
	if _, err := h.bills.Pay(context.Background(), req); err != nil {
		t.Fatalf("Pay after acknowledgment: %v", err)
	}
}

func TestPay_ClusterManagedDerivedTotals(t *testing.T) {
	h := newHarness(t)
	wa := h.fundedWallet(t, "user-a", 10000)
	wb := h.fundedWallet(t, "user-b", 10000)
	b := h.createBill(t, CreateRequest{
		Title: "Generator diesel", Category: CategoryClusterManaged, AmountMinor: 10000,
	})
	h.ack(t, b.ID, "user-a", "user-b")

	if _, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-a", WalletID: wa.ID, AmountMinor: 6000,
	}); err != nil {
		t.Fatalf("first contribution: %v", err)
	}
	res, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-b", WalletID: wb.ID, AmountMinor: 4000,
	})
	if err != nil {
		t.Fatalf("second contribution: %v", err)
	}

	// Cluster bills never carry a stored running total.
	if res.Bill.PaidAmountMinor != 0 {
		t.Fatalf("cluster bill must not store a running total, got %d", res.Bill.PaidAmountMinor)
	}
	if res.Bill.PaidAt == nil {
		t.Fatalf("bill should be marked fully paid once derived total reaches the amount")
	}

	sum, err := h.bills.SummaryFor(context.Background(), "est-1", b.ID, "user-a")
	if err != nil {
		t.Fatalf("SummaryFor: %v", err)
	}
	if sum.TotalPaidMinor != 10000 || sum.PaidByUser != 6000 || sum.RemainingMinor != 0 || !sum.FullyPaid {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	pooled, _ := h.ledger.GetOrCreateClusterWallet(context.Background(), "est-1", "NGN")
	if pooled.BalanceMinor != 10000 {
		t.Fatalf("pooled wallet should hold both contributions, got %d", pooled.BalanceMinor)
	}
}

func TestPay_IdempotencyKeyReplays(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, "user-1", 10000)
	b := h.createBill(t, CreateRequest{
		Title: "Water", Type: BillTypeWater, Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 8000,
	})
	h.ack(t, b.ID, "user-1")

	req := PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-1", WalletID: w.ID,
		AmountMinor: 3000, IdempotencyKey: "pay-attempt-1",
	}
	first, err := h.bills.Pay(context.Background(), req)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	second, err := h.bills.Pay(context.Background(), req)
	if err != nil {
		t.Fatalf("Pay replay: %v", err)
	}
	if !second.Replayed || second.Txn.ID != first.Txn.ID {
		t.Fatalf("expected replay of txn %s, got %+v", first.Txn.ID, second)
	}

	got, _ := h.ledger.Get(context.Background(), "est-1", w.ID)
	if got.BalanceMinor != 7000 {
		t.Fatalf("wallet must be debited exactly once, got %d", got.BalanceMinor)
	}
	sum, _ := h.bills.SummaryFor(context.Background(), "est-1", b.ID, "user-1")
	if sum.TotalPaidMinor != 3000 {
		t.Fatalf("paid total must not double, got %d", sum.TotalPaidMinor)
	}
}

func TestPay_ReplayAfterSettlementReturnsOutcome(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, "user-1", 10000)
	b := h.createBill(t, CreateRequest{
		Title: "Service charge", Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 5000,
	})
	h.ack(t, b.ID, "user-1")

	req := PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-1", WalletID: w.ID,
		AmountMinor: 5000, IdempotencyKey: "settle-1",
	}
	first, err := h.bills.Pay(context.Background(), req)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}

	// The bill is now fully paid and, by the time of the retry, overdue.
	// Neither state change may turn the replay into an error.
	h.now = h.now.Add(30 * 24 * time.Hour)
	second, err := h.bills.Pay(context.Background(), req)
	if err != nil {
		t.Fatalf("replay after settlement: %v", err)
	}
	if !second.Replayed || second.Txn.ID != first.Txn.ID {
		t.Fatalf("expected replay of txn %s, got %+v", first.Txn.ID, second)
	}

	got, _ := h.ledger.Get(context.Background(), "est-1", w.ID)
	if got.BalanceMinor != 5000 {
		t.Fatalf("wallet must be debited exactly once, got %d", got.BalanceMinor)
	}
	sum, _ := h.bills.SummaryFor(context.Background(), "est-1", b.ID, "user-1")
	if sum.TotalPaidMinor != 5000 {
		t.Fatalf("paid total must not double, got %d", sum.TotalPaidMinor)
	}
}

func TestPay_OverpaymentRejected(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, "user-1", 20000)
	b := h.createBill(t, CreateRequest{
		Title: "Service charge", Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 5000,
	})
	h.ack(t, b.ID, "user-1")

	_, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-1", WalletID: w.ID, AmountMinor: 5001,
	})
	if !errors.Is(err, ErrExceedsRemaining) {
		t.Fatalf("expected ErrExceedsRemaining, got %v", err)
	}

	if _, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-1", WalletID: w.ID, AmountMinor: 5000,
	}); err != nil {
		t.Fatalf("full payment: %v", err)
	}
	_, err = h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-1", WalletID: w.ID, AmountMinor: 1,
	})
	if !errors.Is(err, ErrBillAlreadyPaid) {
		t.Fatalf("expected ErrBillAlreadyPaid, got %v", err)
	}
}

func TestPay_InsufficientFundsLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, "user-1", 1000)
	b := h.createBill(t, CreateRequest{
		Title: "Service charge", Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 5000,
	})
	h.ack(t, b.ID, "user-1")

	_, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-1", WalletID: w.ID, AmountMinor: 5000,
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	got, _ := h.ledger.Get(context.Background(), "est-1", w.ID)
	if got.BalanceMinor != 1000 || got.AvailableMinor != 1000 {
		t.Fatalf("wallet must be untouched, got balance=%d available=%d", got.BalanceMinor, got.AvailableMinor)
	}
	sum, _ := h.bills.SummaryFor(context.Background(), "est-1", b.ID, "user-1")
	if sum.TotalPaidMinor != 0 {
		t.Fatalf("no payment should be recorded, got %d", sum.TotalPaidMinor)
	}
}

func TestPay_DisputeGatePerCategory(t *testing.T) {
	h := newHarness(t)
	w1 := h.fundedWallet(t, "user-1", 10000)
	w2 := h.fundedWallet(t, "user-2", 10000)

	personal := h.createBill(t, CreateRequest{
		Title: "Personal", Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 5000,
	})
	shared := h.createBill(t, CreateRequest{
		Title: "Shared", Category: CategoryClusterManaged, AmountMinor: 5000,
	})
	h.ack(t, personal.ID, "user-1")
	h.ack(t, shared.ID, "user-1", "user-2")

	h.disputes.billWide[personal.ID] = true
	h.disputes.byUser[shared.ID+"|user-1"] = true

	_, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: personal.ID, UserID: "user-1", WalletID: w1.ID, AmountMinor: 5000,
	})
	if !errors.Is(err, ErrBillDisputed) {
		t.Fatalf("user_managed bill with active dispute: expected ErrBillDisputed, got %v", err)
	}

	_, err = h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: shared.ID, UserID: "user-1", WalletID: w1.ID, AmountMinor: 1000,
	})
	if !errors.Is(err, ErrBillDisputed) {
		t.Fatalf("disputing member should be blocked, got %v", err)
	}
	// Other members keep contributing to a shared bill.
	if _, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: shared.ID, UserID: "user-2", WalletID: w2.ID, AmountMinor: 1000,
	}); err != nil {
		t.Fatalf("non-disputing member should pass the gate: %v", err)
	}
}

func TestPay_OverdueRules(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, "user-1", 10000)

	strict := h.createBill(t, CreateRequest{
		Title: "Strict", Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 1000,
		DueDate: h.now.Add(-24 * time.Hour),
	})
	lenient := h.createBill(t, CreateRequest{
		Title: "Lenient", Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 1000,
		DueDate: h.now.Add(-24 * time.Hour), AllowPaymentAfterDue: true,
	})
	h.ack(t, strict.ID, "user-1")
	h.ack(t, lenient.ID, "user-1")

	_, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: strict.ID, UserID: "user-1", WalletID: w.ID, AmountMinor: 1000,
	})
	if !errors.Is(err, ErrPaymentAfterDue) {
		t.Fatalf("expected ErrPaymentAfterDue, got %v", err)
	}
	if _, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: lenient.ID, UserID: "user-1", WalletID: w.ID, AmountMinor: 1000,
	}); err != nil {
		t.Fatalf("late payment should be allowed: %v", err)
	}
}

func TestAcknowledge_Rules(t *testing.T) {
	h := newHarness(t)
	shared := h.createBill(t, CreateRequest{
		Title: "Shared", Category: CategoryClusterManaged, AmountMinor: 1000,
	})
	personal := h.createBill(t, CreateRequest{
		Title: "Personal", Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 1000,
	})

	added, err := h.bills.Acknowledge(context.Background(), "est-1", shared.ID, "user-2")
	if err != nil || !added {
		t.Fatalf("any member may acknowledge a shared bill: added=%v err=%v", added, err)
	}
	// Duplicate acknowledgment reports false without error.
	added, err = h.bills.Acknowledge(context.Background(), "est-1", shared.ID, "user-2")
	if err != nil || added {
		t.Fatalf("duplicate acknowledgment: added=%v err=%v", added, err)
	}

	_, err = h.bills.Acknowledge(context.Background(), "est-1", personal.ID, "user-2")
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("only the target may acknowledge a personal bill, got %v", err)
	}

	removed, err := h.bills.RemoveAcknowledgment(context.Background(), "est-1", shared.ID, "user-2")
	if err != nil || !removed {
		t.Fatalf("RemoveAcknowledgment: removed=%v err=%v", removed, err)
	}
}

func TestRemoveAcknowledgment_LeavesPriorReadsIntact(t *testing.T) {
	h := newHarness(t)
	shared := h.createBill(t, CreateRequest{
		Title: "Shared", Category: CategoryClusterManaged, AmountMinor: 1000,
	})
	h.ack(t, shared.ID, "user-1", "user-2")

	// A bill read before the removal shares no storage with the update.
	before, err := h.bills.Get(context.Background(), "est-1", shared.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	removed, err := h.bills.RemoveAcknowledgment(context.Background(), "est-1", shared.ID, "user-1")
	if err != nil || !removed {
		t.Fatalf("RemoveAcknowledgment: removed=%v err=%v", removed, err)
	}

	if len(before.Acknowledgments) != 2 ||
		before.Acknowledgments[0].UserID != "user-1" || before.Acknowledgments[1].UserID != "user-2" {
		t.Fatalf("earlier read was mutated: %+v", before.Acknowledgments)
	}
	after, _ := h.bills.Get(context.Background(), "est-1", shared.ID)
	if len(after.Acknowledgments) != 1 || after.Acknowledgments[0].UserID != "user-2" {
		t.Fatalf("unexpected acknowledgments after removal: %+v", after.Acknowledgments)
	}
}

func TestPay_PublishesBillPaidEvent(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, "user-1", 10000)
	b := h.createBill(t, CreateRequest{
		Title: "Water", Type: BillTypeWater, Category: CategoryUserManaged, TargetUserID: "user-1", AmountMinor: 2000,
	})
	h.ack(t, b.ID, "user-1")

	if _, err := h.bills.Pay(context.Background(), PayRequest{
		ClusterID: "est-1", BillID: b.ID, UserID: "user-1", WalletID: w.ID, AmountMinor: 2000,
	}); err != nil {
		t.Fatalf("Pay: %v", err)
	}

	var paid int
	for _, e := range h.events.Snapshot() {
		if e.Kind == notify.KindBillPaid {
			paid++
		}
	}
	if paid != 1 {
		t.Fatalf("expected one bill_paid event, got %d", paid)
	}
}
