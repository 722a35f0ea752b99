package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"estate-platform/internal/billing"
	"estate-platform/internal/journal"
	"estate-platform/internal/ledger"
	"estate-platform/internal/notify"
	"estate-platform/internal/payerr"
	"estate-platform/internal/provider"
)

// Journal is the transaction surface the orchestrator drives.
type Journal interface {
	Begin(ctx context.Context, req journal.BeginRequest) (journal.BeginResult, error)
	Get(ctx context.Context, clusterID, txnID string) (journal.Transaction, error)
	MarkProcessing(ctx context.Context, clusterID, txnID string) (journal.Transaction, error)
	Complete(ctx context.Context, clusterID, txnID, providerResponse string) (journal.Transaction, error)
	Fail(ctx context.Context, clusterID, txnID, reason string) (journal.Transaction, error)
	Cancel(ctx context.Context, clusterID, txnID string) (journal.Transaction, error)
}

// Ledger is the wallet surface the orchestrator needs.
type Ledger interface {
	GetByOwner(ctx context.Context, clusterID, ownerID string) (ledger.Wallet, error)
	GetOrCreate(ctx context.Context, clusterID, ownerID, currency string) (ledger.Wallet, error)
	GetOrCreateClusterWallet(ctx context.Context, clusterID, currency string) (ledger.Wallet, error)
	Freeze(ctx context.Context, clusterID, walletID, txnID string, amountMinor int64) error
}

// Bills records the paid bill a successful utility purchase leaves behind.
type Bills interface {
	RecordSettledUtility(ctx context.Context, req billing.CreateRequest, txnID string) (billing.Bill, error)
}

// ErrorLog classifies and tracks provider failures for the retry path.
type ErrorLog interface {
	Record(ctx context.Context, req payerr.RecordRequest) (payerr.Error, error)
	Get(ctx context.Context, clusterID, errorID string) (payerr.Error, error)
	IncrementRetry(ctx context.Context, clusterID, errorID string) (payerr.Error, error)
	MarkResolved(ctx context.Context, clusterID, errorID, method string) (payerr.Error, error)
}

// Auditor records admin-visible wallet movements.
type Auditor interface {
	LogClusterTransfer(ctx context.Context, clusterID, actorUserID, actorRole, walletID, txnID, message string) error
}

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrPurchaseFailed  = errors.New("utility purchase failed")
)

// Service orchestrates money movements that cross package boundaries:
// deposits, withdrawals, pooled-wallet transfers, and utility purchases.
type Service struct {
	journal   Journal
	ledger    Ledger
	bills     Bills
	errs      ErrorLog
	providers provider.Repository
	gateways  *provider.Registry
	audit     Auditor
	events    notify.Publisher
	clock     func() time.Time
}

func NewService(jrnl Journal, ldgr Ledger, bills Bills, errs ErrorLog, providers provider.Repository, gateways *provider.Registry, audit Auditor, events notify.Publisher) *Service {
	if events == nil {
		events = notify.NopPublisher{}
	}
	return &Service{
		journal:   jrnl,
		ledger:    ldgr,
		bills:     bills,
		errs:      errs,
		providers: providers,
		gateways:  gateways,
		audit:     audit,
		events:    events,
		clock:     time.Now,
	}
}

type DepositRequest struct {
	ClusterID      string
	UserID         string
	Currency       string
	AmountMinor    int64
	IdempotencyKey string
	Description    string
}

// Deposit credits the user's wallet. Replays of the same idempotency key
// return the original transaction without moving money again.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (journal.Transaction, error) {
	if req.ClusterID == "" || req.UserID == "" || req.AmountMinor <= 0 {
		return journal.Transaction{}, ErrInvalidArgument
	}
	w, err := s.ledger.GetOrCreate(ctx, req.ClusterID, req.UserID, req.Currency)
	if err != nil {
		return journal.Transaction{}, err
	}

	res, err := s.journal.Begin(ctx, journal.BeginRequest{
		ClusterID:      req.ClusterID,
		WalletID:       w.ID,
		Type:           journal.TypeDeposit,
		AmountMinor:    req.AmountMinor,
		Currency:       w.Currency,
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
		InitiatedBy:    req.UserID,
	})
	if err != nil {
		return journal.Transaction{}, err
	}
	if res.Replayed {
		return res.Txn, nil
	}
	return s.journal.Complete(ctx, req.ClusterID, res.Txn.ID, "")
}

type WithdrawRequest struct {
	ClusterID      string
	UserID         string
	AmountMinor    int64
	IdempotencyKey string
	Description    string
}

// Withdraw debits the user's wallet: the amount is frozen first, then the
// transaction completes and consumes the hold.
func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (journal.Transaction, error) {
	if req.ClusterID == "" || req.UserID == "" || req.AmountMinor <= 0 {
		return journal.Transaction{}, ErrInvalidArgument
	}
	w, err := s.ledger.GetByOwner(ctx, req.ClusterID, req.UserID)
	if err != nil {
		return journal.Transaction{}, err
	}

	res, err := s.journal.Begin(ctx, journal.BeginRequest{
		ClusterID:      req.ClusterID,
		WalletID:       w.ID,
		Type:           journal.TypeWithdrawal,
		AmountMinor:    req.AmountMinor,
		Currency:       w.Currency,
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
		InitiatedBy:    req.UserID,
	})
	if err != nil {
		return journal.Transaction{}, err
	}
	if res.Replayed {
		return res.Txn, nil
	}

	if err := s.ledger.Freeze(ctx, req.ClusterID, w.ID, res.Txn.ID, req.AmountMinor); err != nil {
		if _, cerr := s.journal.Cancel(ctx, req.ClusterID, res.Txn.ID); cerr != nil {
			return journal.Transaction{}, fmt.Errorf("freeze failed (%w) and cancel failed: %v", err, cerr)
		}
		return journal.Transaction{}, err
	}
	return s.journal.Complete(ctx, req.ClusterID, res.Txn.ID, "")
}

type TransferRequest struct {
	ClusterID   string
	FromUserID  string
	AmountMinor int64
	ActorUserID string
	ActorRole   string
	Description string
}

// TransferToCluster moves funds from a member wallet into the cluster's
// pooled wallet and records the movement in the audit log.
func (s *Service) TransferToCluster(ctx context.Context, req TransferRequest) (journal.Transaction, error) {
	if req.ClusterID == "" || req.FromUserID == "" || req.AmountMinor <= 0 {
		return journal.Transaction{}, ErrInvalidArgument
	}
	from, err := s.ledger.GetByOwner(ctx, req.ClusterID, req.FromUserID)
	if err != nil {
		return journal.Transaction{}, err
	}

	res, err := s.journal.Begin(ctx, journal.BeginRequest{
		ClusterID:   req.ClusterID,
		WalletID:    from.ID,
		Type:        journal.TypeTransfer,
		AmountMinor: req.AmountMinor,
		Currency:    from.Currency,
		Description: req.Description,
		InitiatedBy: req.ActorUserID,
	})
	if err != nil {
		return journal.Transaction{}, err
	}
	if err := s.ledger.Freeze(ctx, req.ClusterID, from.ID, res.Txn.ID, req.AmountMinor); err != nil {
		if _, cerr := s.journal.Cancel(ctx, req.ClusterID, res.Txn.ID); cerr != nil {
			return journal.Transaction{}, fmt.Errorf("freeze failed (%w) and cancel failed: %v", err, cerr)
		}
		return journal.Transaction{}, err
	}
	txn, err := s.journal.Complete(ctx, req.ClusterID, res.Txn.ID, "")
	if err != nil {
		return journal.Transaction{}, err
	}

	if err := s.creditPool(ctx, req.ClusterID, from.Currency, req.AmountMinor, txn.ID, req.Description); err != nil {
		return journal.Transaction{}, fmt.Errorf("transfer settled but pooled wallet credit failed: %w", err)
	}
	_ = s.audit.LogClusterTransfer(ctx, req.ClusterID, req.ActorUserID, req.ActorRole, from.ID, txn.ID, req.Description)
	return txn, nil
}

type PayUtilityRequest struct {
	ClusterID         string
	UserID            string
	UtilityProviderID string
	CustomerID        string
	AmountMinor       int64
	IdempotencyKey    string
}

type PayUtilityResult struct {
	Txn   journal.Transaction
	Bill  billing.Bill
	Token string
}

// PayUtility purchases a utility (electricity, water, internet) for the user:
// amount limits are checked against the provider configuration, the funds are
// frozen, the gateway is called with a bounded timeout, and the outcome is
// settled exactly once. Gateway failures fail the transaction, release the
// hold, and leave a classified payment error behind; the transaction is
// never left pending.
func (s *Service) PayUtility(ctx context.Context, req PayUtilityRequest) (PayUtilityResult, error) {
	if req.ClusterID == "" || req.UserID == "" || req.UtilityProviderID == "" || req.CustomerID == "" {
		return PayUtilityResult{}, ErrInvalidArgument
	}

	up, err := s.providers.Get(ctx, req.ClusterID, req.UtilityProviderID)
	if err != nil {
		return PayUtilityResult{}, err
	}
	if !up.Active {
		return PayUtilityResult{}, provider.ErrProviderInactive
	}
	if !up.IsAmountValid(req.AmountMinor) {
		return PayUtilityResult{}, provider.ErrAmountOutOfBounds
	}
	gw, err := s.gateways.For(up.APIProvider)
	if err != nil {
		return PayUtilityResult{}, err
	}

	w, err := s.ledger.GetByOwner(ctx, req.ClusterID, req.UserID)
	if err != nil {
		return PayUtilityResult{}, err
	}

	res, err := s.journal.Begin(ctx, journal.BeginRequest{
		ClusterID:         req.ClusterID,
		WalletID:          w.ID,
		Type:              journal.TypePayment,
		AmountMinor:       req.AmountMinor,
		Currency:          w.Currency,
		IdempotencyKey:    req.IdempotencyKey,
		Description:       up.Name + " purchase for " + req.CustomerID,
		InitiatedBy:       req.UserID,
		Provider:          string(up.APIProvider),
		UtilityProviderID: up.ID,
		CustomerID:        req.CustomerID,
	})
	if err != nil {
		return PayUtilityResult{}, err
	}
	if res.Replayed {
		return PayUtilityResult{Txn: res.Txn}, nil
	}

	if err := s.ledger.Freeze(ctx, req.ClusterID, w.ID, res.Txn.ID, req.AmountMinor); err != nil {
		if _, cerr := s.journal.Cancel(ctx, req.ClusterID, res.Txn.ID); cerr != nil {
			return PayUtilityResult{}, fmt.Errorf("freeze failed (%w) and cancel failed: %v", err, cerr)
		}
		return PayUtilityResult{}, err
	}
	if _, err := s.journal.MarkProcessing(ctx, req.ClusterID, res.Txn.ID); err != nil {
		return PayUtilityResult{}, err
	}

	return s.drivePurchase(ctx, gw, up, res.Txn, req.UserID)
}

// drivePurchase performs the gateway call and settles the transaction either
// way. The transaction must be PROCESSING with the amount frozen.
func (s *Service) drivePurchase(ctx context.Context, gw provider.Gateway, up provider.UtilityProvider, txn journal.Transaction, userID string) (PayUtilityResult, error) {
	purchase, err := gw.Purchase(ctx, provider.PurchaseRequest{
		ServiceType:  up.ServiceType,
		ProviderCode: up.Code,
		CustomerID:   txn.CustomerID,
		AmountMinor:  txn.AmountMinor,
		Currency:     txn.Currency,
		Reference:    txn.Reference,
	})
	if err != nil {
		failed, ferr := s.journal.Fail(ctx, txn.ClusterID, txn.ID, err.Error())
		if ferr != nil {
			return PayUtilityResult{}, fmt.Errorf("purchase failed (%v) and marking failed errored: %w", err, ferr)
		}
		if _, rerr := s.errs.Record(ctx, payerr.RecordRequest{
			ClusterID: txn.ClusterID,
			TxnID:     txn.ID,
			UserID:    userID,
			Message:   err.Error(),
		}); rerr != nil {
			return PayUtilityResult{Txn: failed}, fmt.Errorf("%w: %v (error record failed: %v)", ErrPurchaseFailed, err, rerr)
		}
		return PayUtilityResult{Txn: failed}, fmt.Errorf("%w: %v", ErrPurchaseFailed, err)
	}

	completed, err := s.journal.Complete(ctx, txn.ClusterID, txn.ID, purchase.Raw)
	if err != nil {
		return PayUtilityResult{}, err
	}

	bill, err := s.bills.RecordSettledUtility(ctx, billing.CreateRequest{
		ClusterID:         txn.ClusterID,
		TargetUserID:      userID,
		Title:             up.Name + " purchase",
		Type:              billTypeFor(up.ServiceType),
		UtilityProviderID: up.ID,
		CustomerID:        txn.CustomerID,
		AmountMinor:       txn.AmountMinor,
		Currency:          txn.Currency,
		CreatedBy:         userID,
	}, completed.ID)
	if err != nil {
		return PayUtilityResult{}, fmt.Errorf("purchase settled but bill record failed: %w", err)
	}

	if err := s.creditPool(ctx, txn.ClusterID, txn.Currency, txn.AmountMinor, completed.ID, "utility purchase settlement"); err != nil {
		return PayUtilityResult{}, fmt.Errorf("purchase settled but pooled wallet credit failed: %w", err)
	}

	s.events.Publish(notify.Event{
		Kind:      notify.KindPaymentCompleted,
		ClusterID: txn.ClusterID,
		UserIDs:   []string{userID},
		Title:     "Payment completed",
		Body:      up.Name + " purchase succeeded.",
		Meta:      map[string]string{"txn_id": completed.ID, "reference": completed.Reference},
	})
	return PayUtilityResult{Txn: completed, Bill: bill, Token: purchase.Token}, nil
}

// RetryFailedPayment re-drives the provider call for a classified failure.
// The retry is a fresh transaction; the failed one stays failed.
func (s *Service) RetryFailedPayment(ctx context.Context, clusterID, errorID string) (PayUtilityResult, error) {
	if clusterID == "" || errorID == "" {
		return PayUtilityResult{}, ErrInvalidArgument
	}
	pe, err := s.errs.IncrementRetry(ctx, clusterID, errorID)
	if err != nil {
		return PayUtilityResult{}, err
	}
	orig, err := s.journal.Get(ctx, clusterID, pe.TxnID)
	if err != nil {
		return PayUtilityResult{}, err
	}
	if orig.UtilityProviderID == "" {
		return PayUtilityResult{}, ErrInvalidArgument
	}

	res, err := s.PayUtility(ctx, PayUtilityRequest{
		ClusterID:         clusterID,
		UserID:            orig.InitiatedBy,
		UtilityProviderID: orig.UtilityProviderID,
		CustomerID:        orig.CustomerID,
		AmountMinor:       orig.AmountMinor,
		IdempotencyKey:    fmt.Sprintf("retry:%s:%d", errorID, pe.RetryCount),
	})
	if err != nil {
		return res, err
	}
	if _, rerr := s.errs.MarkResolved(ctx, clusterID, errorID, "retry_succeeded"); rerr != nil {
		return res, fmt.Errorf("retry settled but error resolution failed: %w", rerr)
	}
	return res, nil
}

// creditPool deposits into the cluster's pooled wallet, idempotent per source
// transaction.
func (s *Service) creditPool(ctx context.Context, clusterID, currency string, amountMinor int64, sourceTxnID, description string) error {
	pool, err := s.ledger.GetOrCreateClusterWallet(ctx, clusterID, currency)
	if err != nil {
		return err
	}
	res, err := s.journal.Begin(ctx, journal.BeginRequest{
		ClusterID:      clusterID,
		WalletID:       pool.ID,
		Type:           journal.TypeDeposit,
		AmountMinor:    amountMinor,
		Currency:       currency,
		IdempotencyKey: "pool:" + sourceTxnID,
		Description:    description,
		InitiatedBy:    clusterID,
	})
	if err != nil {
		return err
	}
	if res.Replayed {
		return nil
	}
	_, err = s.journal.Complete(ctx, clusterID, res.Txn.ID, "")
	return err
}

func billTypeFor(serviceType string) billing.BillType {
	switch serviceType {
	case "electricity":
		return billing.BillTypeElectricity
	case "water":
		return billing.BillTypeWater
	case "internet":
		return billing.BillTypeInternet
	case "cable_tv":
		return billing.BillTypeCableTV
	default:
		return billing.BillTypeOther
	}
}
