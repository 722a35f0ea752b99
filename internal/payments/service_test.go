package payments

import (
	"context"
	"errors"
	"testing"

	"estate-platform/internal/audit"
	"estate-platform/internal/billing"
	"estate-platform/internal/journal"
	"estate-platform/internal/ledger"
	"estate-platform/internal/notify"
	"estate-platform/internal/payerr"
	"estate-platform/internal/provider"
)

type noDisputes struct{}

func (noDisputes) HasActiveDispute(context.Context, string, string) (bool, error) {
	return false, nil
}
func (noDisputes) HasActiveDisputeBy(context.Context, string, string, string) (bool, error) {
	return false, nil
}

type harness struct {
	svc       *Service
	ledger    *ledger.Service
	journal   *journal.Service
	bills     *billing.Service
	errs      *payerr.Recorder
	providers provider.Repository
	stub      *provider.StubGateway
	events    *notify.MemoryPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	events := &notify.MemoryPublisher{}
	ldgr := ledger.NewService(ledger.NewMemoryRepo())
	jrnl := journal.NewService(journal.NewMemoryRepo(), ldgr)
	bills := billing.NewService(billing.NewMemoryRepo(), jrnl, ldgr, noDisputes{}, events)
	errs := payerr.NewRecorder(payerr.NewMemoryRepo(), events)
	providers := provider.NewMemoryRepo()
	auditor := audit.NewService(audit.NewMemoryRepo())

	stub := provider.NewStubGateway("stub")
	registry := provider.NewRegistry()
	registry.Register(provider.APIProviderPaystack, stub)

	svc := NewService(jrnl, ldgr, bills, errs, providers, registry, auditor, events)
	return &harness{
		svc:       svc,
		ledger:    ldgr,
		journal:   jrnl,
		bills:     bills,
		errs:      errs,
		providers: providers,
		stub:      stub,
		events:    events,
	}
}

func (h *harness) fundedWallet(t *testing.T, clusterID, userID string, amountMinor int64) ledger.Wallet {
	t.Helper()
	ctx := context.Background()
	txn, err := h.svc.Deposit(ctx, DepositRequest{
		ClusterID:   clusterID,
		UserID:      userID,
		Currency:    "NGN",
		AmountMinor: amountMinor,
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	w, err := h.ledger.Get(ctx, clusterID, txn.WalletID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	return w
}

func (h *harness) utilityProvider(t *testing.T, clusterID string) provider.UtilityProvider {
	t.Helper()
	up := provider.UtilityProvider{
		ID:             "up-1",
		ClusterID:      clusterID,
		Name:           "Eko Electric",
		ServiceType:    "electricity",
		Code:           "eko-disco",
		APIProvider:    provider.APIProviderPaystack,
		Active:         true,
		MinAmountMinor: 10000,
	}
	if err := h.providers.Create(context.Background(), up); err != nil {
		t.Fatalf("create provider: %v", err)
	}
	return up
}

func TestDepositIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := DepositRequest{ClusterID: "est-1", UserID: "user-1", Currency: "NGN", AmountMinor: 50000, IdempotencyKey: "dep-1"}
	first, err := h.svc.Deposit(ctx, req)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	second, err := h.svc.Deposit(ctx, req)
	if err != nil {
		t.Fatalf("replay deposit: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("replay created a new transaction: %s vs %s", first.ID, second.ID)
	}

	w, err := h.ledger.Get(ctx, "est-1", first.WalletID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.BalanceMinor != 50000 || w.AvailableMinor != 50000 {
		t.Errorf("wallet = %d/%d, want 50000/50000", w.BalanceMinor, w.AvailableMinor)
	}
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.fundedWallet(t, "est-1", "user-1", 100000)

	txn, err := h.svc.Withdraw(ctx, WithdrawRequest{ClusterID: "est-1", UserID: "user-1", AmountMinor: 30000})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if txn.Status != journal.StatusCompleted {
		t.Errorf("status = %s, want completed", txn.Status)
	}

	after, _ := h.ledger.Get(ctx, "est-1", w.ID)
	if after.BalanceMinor != 70000 || after.AvailableMinor != 70000 {
		t.Errorf("wallet = %d/%d, want 70000/70000", after.BalanceMinor, after.AvailableMinor)
	}
}

func TestWithdrawInsufficientLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.fundedWallet(t, "est-1", "user-1", 10000)

	_, err := h.svc.Withdraw(ctx, WithdrawRequest{ClusterID: "est-1", UserID: "user-1", AmountMinor: 99999})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	after, _ := h.ledger.Get(ctx, "est-1", w.ID)
	if after.BalanceMinor != 10000 || after.AvailableMinor != 10000 {
		t.Errorf("wallet = %d/%d, want untouched 10000/10000", after.BalanceMinor, after.AvailableMinor)
	}
}

func TestTransferToCluster(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fundedWallet(t, "est-1", "user-1", 80000)

	txn, err := h.svc.TransferToCluster(ctx, TransferRequest{
		ClusterID:   "est-1",
		FromUserID:  "user-1",
		AmountMinor: 50000,
		ActorUserID: "mgr-1",
		ActorRole:   "estate_manager",
		Description: "monthly sweep",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if txn.Type != journal.TypeTransfer || txn.Status != journal.StatusCompleted {
		t.Errorf("txn = %s/%s", txn.Type, txn.Status)
	}

	pool, err := h.ledger.GetOrCreateClusterWallet(ctx, "est-1", "NGN")
	if err != nil {
		t.Fatalf("pool wallet: %v", err)
	}
	if pool.BalanceMinor != 50000 {
		t.Errorf("pool balance = %d, want 50000", pool.BalanceMinor)
	}
}

func TestPayUtilitySuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.fundedWallet(t, "est-1", "user-1", 100000)
	up := h.utilityProvider(t, "est-1")

	res, err := h.svc.PayUtility(ctx, PayUtilityRequest{
		ClusterID:         "est-1",
		UserID:            "user-1",
		UtilityProviderID: up.ID,
		CustomerID:        "12345678901",
		AmountMinor:       40000,
	})
	if err != nil {
		t.Fatalf("pay utility: %v", err)
	}
	if res.Txn.Status != journal.StatusCompleted {
		t.Errorf("txn status = %s, want completed", res.Txn.Status)
	}
	if res.Token == "" {
		t.Error("expected a token from the gateway")
	}

	// Payer debited, pooled wallet credited.
	after, _ := h.ledger.Get(ctx, "est-1", w.ID)
	if after.BalanceMinor != 60000 {
		t.Errorf("payer balance = %d, want 60000", after.BalanceMinor)
	}
	pool, _ := h.ledger.GetOrCreateClusterWallet(ctx, "est-1", "NGN")
	if pool.BalanceMinor != 40000 {
		t.Errorf("pool balance = %d, want 40000", pool.BalanceMinor)
	}

	// A paid bill is left behind for the resident's history.
	if res.Bill.PaidAt == nil || res.Bill.PaymentTxnID != res.Txn.ID {
		t.Errorf("bill not marked paid: %+v", res.Bill)
	}
	if res.Bill.Type != "electricity" {
		t.Errorf("bill type = %s, want electricity", res.Bill.Type)
	}

	if got := len(h.stub.Purchases()); got != 1 {
		t.Errorf("gateway purchases = %d, want 1", got)
	}
}

func TestPayUtilityAmountOutOfBounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fundedWallet(t, "est-1", "user-1", 100000)
	up := h.utilityProvider(t, "est-1")

	_, err := h.svc.PayUtility(ctx, PayUtilityRequest{
		ClusterID:         "est-1",
		UserID:            "user-1",
		UtilityProviderID: up.ID,
		CustomerID:        "12345678901",
		AmountMinor:       500, // below provider minimum
	})
	if !errors.Is(err, provider.ErrAmountOutOfBounds) {
		t.Fatalf("err = %v, want ErrAmountOutOfBounds", err)
	}
	if got := len(h.stub.Purchases()); got != 0 {
		t.Errorf("gateway called %d times on rejected amount", got)
	}
}

func TestPayUtilityGatewayTimeoutFailsTransaction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.fundedWallet(t, "est-1", "user-1", 100000)
	up := h.utilityProvider(t, "est-1")
	h.stub.Err = provider.ErrTimeout

	_, err := h.svc.PayUtility(ctx, PayUtilityRequest{
		ClusterID:         "est-1",
		UserID:            "user-1",
		UtilityProviderID: up.ID,
		CustomerID:        "12345678901",
		AmountMinor:       40000,
	})
	if !errors.Is(err, ErrPurchaseFailed) {
		t.Fatalf("err = %v, want ErrPurchaseFailed", err)
	}

	// Hold released, nothing pending, failure classified as a timeout.
	after, _ := h.ledger.Get(ctx, "est-1", w.ID)
	if after.BalanceMinor != 100000 || after.AvailableMinor != 100000 {
		t.Errorf("wallet = %d/%d, want untouched 100000/100000", after.BalanceMinor, after.AvailableMinor)
	}
	txns, _ := h.journal.ListByWallet(ctx, "est-1", w.ID, 0)
	for _, txn := range txns {
		if txn.Status == journal.StatusPending || txn.Status == journal.StatusProcessing {
			t.Errorf("transaction %s left in %s", txn.ID, txn.Status)
		}
	}
	unresolved, _ := h.errs.ListUnresolved(ctx, "est-1")
	if len(unresolved) != 1 {
		t.Fatalf("unresolved errors = %d, want 1", len(unresolved))
	}
	if unresolved[0].Type != payerr.TypeTimeoutError {
		t.Errorf("error type = %s, want %s", unresolved[0].Type, payerr.TypeTimeoutError)
	}
}

func TestRetryFailedPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.fundedWallet(t, "est-1", "user-1", 100000)
	up := h.utilityProvider(t, "est-1")

	h.stub.Err = provider.ErrTimeout
	_, err := h.svc.PayUtility(ctx, PayUtilityRequest{
		ClusterID:         "est-1",
		UserID:            "user-1",
		UtilityProviderID: up.ID,
		CustomerID:        "12345678901",
		AmountMinor:       40000,
	})
	if !errors.Is(err, ErrPurchaseFailed) {
		t.Fatalf("err = %v, want ErrPurchaseFailed", err)
	}
	unresolved, _ := h.errs.ListUnresolved(ctx, "est-1")
	if len(unresolved) != 1 {
		t.Fatalf("unresolved errors = %d, want 1", len(unresolved))
	}

	// Gateway recovers; the retry re-drives the purchase as a new transaction.
	h.stub.Err = nil
	res, err := h.svc.RetryFailedPayment(ctx, "est-1", unresolved[0].ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Txn.Status != journal.StatusCompleted {
		t.Errorf("retry txn status = %s, want completed", res.Txn.Status)
	}
	if res.Txn.ID == unresolved[0].TxnID {
		t.Error("retry reused the failed transaction")
	}

	after, _ := h.ledger.Get(ctx, "est-1", w.ID)
	if after.BalanceMinor != 60000 {
		t.Errorf("payer balance = %d, want 60000", after.BalanceMinor)
	}
	if left, _ := h.errs.ListUnresolved(ctx, "est-1"); len(left) != 0 {
		t.Errorf("error not resolved after successful retry: %d left", len(left))
	}
}

func TestRetryExhausted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fundedWallet(t, "est-1", "user-1", 100000)
	up := h.utilityProvider(t, "est-1")
	h.stub.Err = provider.ErrDeclined

	_, err := h.svc.PayUtility(ctx, PayUtilityRequest{
		ClusterID:         "est-1",
		UserID:            "user-1",
		UtilityProviderID: up.ID,
		CustomerID:        "12345678901",
		AmountMinor:       40000,
	})
	if !errors.Is(err, ErrPurchaseFailed) {
		t.Fatalf("err = %v, want ErrPurchaseFailed", err)
	}
	unresolved, _ := h.errs.ListUnresolved(ctx, "est-1")
	if len(unresolved) != 1 {
		t.Fatalf("unresolved errors = %d, want 1", len(unresolved))
	}

	// Declined payments allow a single retry.
	if _, err := h.svc.RetryFailedPayment(ctx, "est-1", unresolved[0].ID); !errors.Is(err, ErrPurchaseFailed) {
		t.Fatalf("first retry err = %v, want ErrPurchaseFailed", err)
	}
	if _, err := h.svc.RetryFailedPayment(ctx, "est-1", unresolved[0].ID); !errors.Is(err, payerr.ErrNotRetryable) {
		t.Fatalf("second retry err = %v, want ErrNotRetryable", err)
	}
}
