package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"estate-platform/internal/auth"
	"estate-platform/internal/billing"
	"estate-platform/internal/dispute"
	"estate-platform/internal/journal"
	"estate-platform/internal/ledger"
	"estate-platform/internal/payerr"
	"estate-platform/internal/payments"
	"estate-platform/internal/provider"
	"estate-platform/internal/rbac"
	"estate-platform/internal/recurring"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Ledger    *ledger.Service
	Journal   *journal.Service
	Bills     *billing.Service
	Disputes  *dispute.Service
	Recurring *recurring.Service
	Payments  *payments.Service
	Errors    *payerr.Recorder
	Providers provider.Repository
}

// writeError maps domain sentinels to HTTP statuses. Unknown errors are 500s
// with no detail leaked to the client.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, journal.ErrNotFound),
		errors.Is(err, billing.ErrNotFound),
		errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, recurring.ErrNotFound),
		errors.Is(err, payerr.ErrNotFound),
		errors.Is(err, provider.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, billing.ErrNotAllowed),
		errors.Is(err, dispute.ErrNotAllowed):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, recurring.ErrInsufficientFunds),
		errors.Is(err, billing.ErrBillAlreadyPaid),
		errors.Is(err, billing.ErrPaymentAfterDue),
		errors.Is(err, billing.ErrBillDisputed),
		errors.Is(err, billing.ErrExceedsRemaining),
		errors.Is(err, dispute.ErrBillFullyPaid),
		errors.Is(err, recurring.ErrSpendingLimit),
		errors.Is(err, payerr.ErrNotRetryable),
		errors.Is(err, provider.ErrAmountOutOfBounds),
		errors.Is(err, provider.ErrProviderInactive):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, payments.ErrPurchaseFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrInvalidArgument),
		errors.Is(err, journal.ErrInvalidArgument),
		errors.Is(err, billing.ErrInvalidArgument),
		errors.Is(err, dispute.ErrInvalidArgument),
		errors.Is(err, recurring.ErrInvalidArgument),
		errors.Is(err, payments.ErrInvalidArgument),
		errors.Is(err, payerr.ErrInvalidArgument),
		errors.Is(err, journal.ErrTerminalTransaction),
		errors.Is(err, journal.ErrInvalidTransition),
		errors.Is(err, dispute.ErrInvalidTransition),
		errors.Is(err, recurring.ErrInvalidTransition),
		errors.Is(err, ledger.ErrWalletNotActive):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// identity pulls the verified caller out of the request context.
func identity(c *gin.Context) (userID, clusterID, role string, ok bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user identity required"})
		return "", "", "", false
	}
	clusterID, err = auth.ClusterID(c.Request.Context())
	if err != nil || clusterID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "cluster_id required"})
		return "", "", "", false
	}
	role, _ = auth.Role(c.Request.Context())
	return userID, clusterID, role, true
}

// --- Auth ---

type loginRequest struct {
	UserID    string `json:"user_id"`
	ClusterID string `json:"cluster_id"`
	Role      string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.ClusterID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, cluster_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.ClusterID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Wallet ---

func (h Handlers) GetMyWallet(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	currency := c.DefaultQuery("currency", "NGN")
	w, err := h.Ledger.GetOrCreate(c.Request.Context(), clusterID, userID, currency)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h Handlers) ListMyTransactions(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	w, err := h.Ledger.GetByOwner(c.Request.Context(), clusterID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	txns, err := h.Journal.ListByWallet(c.Request.Context(), clusterID, w.ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

type depositRequest struct {
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
	Description    string `json:"description,omitempty"`
}

func (h Handlers) Deposit(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	txn, err := h.Payments.Deposit(c.Request.Context(), payments.DepositRequest{
		ClusterID:      clusterID,
		UserID:         userID,
		Currency:       req.Currency,
		AmountMinor:    req.AmountMinor,
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

type withdrawRequest struct {
	AmountMinor    int64  `json:"amount_minor"`
	IdempotencyKey string `json:"idempotency_key"`
	Description    string `json:"description,omitempty"`
}

func (h Handlers) Withdraw(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	txn, err := h.Payments.Withdraw(c.Request.Context(), payments.WithdrawRequest{
		ClusterID:      clusterID,
		UserID:         userID,
		AmountMinor:    req.AmountMinor,
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// --- Bills ---

type createBillRequest struct {
	TargetUserID         string `json:"target_user_id,omitempty"`
	Title                string `json:"title"`
	Description          string `json:"description,omitempty"`
	Type                 string `json:"type"`
	Category             string `json:"category"`
	UtilityProviderID    string `json:"utility_provider_id,omitempty"`
	CustomerID           string `json:"customer_id,omitempty"`
	AmountMinor          int64  `json:"amount_minor"`
	Currency             string `json:"currency"`
	DueDate              string `json:"due_date"` // RFC 3339
	AllowPaymentAfterDue bool   `json:"allow_payment_after_due"`
}

func (h Handlers) CreateBill(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	var req createBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	due, err := time.Parse(time.RFC3339, req.DueDate)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "due_date must be RFC 3339"})
		return
	}
	b, err := h.Bills.Create(c.Request.Context(), billing.CreateRequest{
		ClusterID:            clusterID,
		TargetUserID:         req.TargetUserID,
		Title:                req.Title,
		Description:          req.Description,
		Type:                 billing.BillType(req.Type),
		Category:             billing.Category(req.Category),
		UtilityProviderID:    req.UtilityProviderID,
		CustomerID:           req.CustomerID,
		AmountMinor:          req.AmountMinor,
		Currency:             req.Currency,
		DueDate:              due,
		AllowPaymentAfterDue: req.AllowPaymentAfterDue,
		CreatedBy:            userID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h Handlers) ListBills(c *gin.Context) {
	_, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	f := billing.ListFilter{
		Category:     billing.Category(c.Query("category")),
		TargetUserID: c.Query("target_user_id"),
		UnpaidOnly:   c.Query("unpaid") == "true",
	}
	bills, err := h.Bills.List(c.Request.Context(), clusterID, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bills": bills})
}

func (h Handlers) GetBill(c *gin.Context) {
	_, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	b, err := h.Bills.Get(c.Request.Context(), clusterID, c.Param("bill_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h Handlers) AcknowledgeBill(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	added, err := h.Bills.Acknowledge(c.Request.Context(), clusterID, c.Param("bill_id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true, "added": added})
}

type payBillRequest struct {
	AmountMinor    int64  `json:"amount_minor"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h Handlers) PayBill(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	var req payBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	w, err := h.Ledger.GetByOwner(c.Request.Context(), clusterID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.Bills.Pay(c.Request.Context(), billing.PayRequest{
		ClusterID:      clusterID,
		BillID:         c.Param("bill_id"),
		UserID:         userID,
		WalletID:       w.ID,
		AmountMinor:    req.AmountMinor,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) BillSummary(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	sum, err := h.Bills.SummaryFor(c.Request.Context(), clusterID, c.Param("bill_id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- Disputes ---

type openDisputeRequest struct {
	Reason string `json:"reason"`
}

func (h Handlers) OpenDispute(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	var req openDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := h.Disputes.Open(c.Request.Context(), clusterID, c.Param("bill_id"), userID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

type disputeNotesRequest struct {
	Notes string `json:"notes"`
}

func (h Handlers) StartDisputeReview(c *gin.Context) {
	_, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	var req disputeNotesRequest
	_ = c.ShouldBindJSON(&req)
	d, err := h.Disputes.StartReview(c.Request.Context(), clusterID, c.Param("dispute_id"), req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h Handlers) ResolveDispute(c *gin.Context) {
	h.closeDispute(c, true)
}

func (h Handlers) RejectDispute(c *gin.Context) {
	h.closeDispute(c, false)
}

func (h Handlers) closeDispute(c *gin.Context, resolve bool) {
	userID, clusterID, role, ok := identity(c)
	if !ok {
		return
	}
	var req disputeNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	var (
		d   dispute.Dispute
		err error
	)
	if resolve {
		d, err = h.Disputes.Resolve(c.Request.Context(), clusterID, c.Param("dispute_id"), userID, role, req.Notes)
	} else {
		d, err = h.Disputes.Reject(c.Request.Context(), clusterID, c.Param("dispute_id"), userID, role, req.Notes)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h Handlers) WithdrawDispute(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	d, err := h.Disputes.Withdraw(c.Request.Context(), clusterID, c.Param("dispute_id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type disputeCommentRequest struct {
	ParentID string `json:"parent_id,omitempty"`
	Body     string `json:"body"`
}

func (h Handlers) AddDisputeComment(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	var req disputeCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	comment, err := h.Disputes.AddComment(c.Request.Context(), clusterID, c.Param("dispute_id"), req.ParentID, userID, req.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h Handlers) DisputeThread(c *gin.Context) {
	_, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	comments, err := h.Disputes.Thread(c.Request.Context(), clusterID, c.Param("dispute_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

// --- Utility payments ---

type payUtilityRequest struct {
	UtilityProviderID string `json:"utility_provider_id"`
	CustomerID        string `json:"customer_id"`
	AmountMinor       int64  `json:"amount_minor"`
	IdempotencyKey    string `json:"idempotency_key"`
}

func (h Handlers) PayUtility(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	var req payUtilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Payments.PayUtility(c.Request.Context(), payments.PayUtilityRequest{
		ClusterID:         clusterID,
		UserID:            userID,
		UtilityProviderID: req.UtilityProviderID,
		CustomerID:        req.CustomerID,
		AmountMinor:       req.AmountMinor,
		IdempotencyKey:    req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) ListUtilityProviders(c *gin.Context) {
	_, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	providers, err := h.Providers.ListActive(c.Request.Context(), clusterID, c.Query("service_type"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

// --- Recurring payments ---

type createRecurringRequest struct {
	BillID             string `json:"bill_id,omitempty"`
	UtilityProviderID  string `json:"utility_provider_id,omitempty"`
	CustomerID         string `json:"customer_id,omitempty"`
	Title              string `json:"title"`
	AmountMinor        int64  `json:"amount_minor"`
	Currency           string `json:"currency"`
	Frequency          string `json:"frequency"`
	StartDate          string `json:"start_date"` // RFC 3339
	EndDate            string `json:"end_date,omitempty"`
	MaxFailedAttempts  int    `json:"max_failed_attempts,omitempty"`
	SpendingLimitMinor int64  `json:"spending_limit_minor,omitempty"`
}

func (h Handlers) CreateRecurring(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	var req createRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "start_date must be RFC 3339"})
		return
	}
	var end *time.Time
	if req.EndDate != "" {
		t, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "end_date must be RFC 3339"})
			return
		}
		end = &t
	}
	w, err := h.Ledger.GetByOwner(c.Request.Context(), clusterID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	rp, err := h.Recurring.Create(c.Request.Context(), recurring.CreateRequest{
		ClusterID:          clusterID,
		UserID:             userID,
		WalletID:           w.ID,
		BillID:             req.BillID,
		UtilityProviderID:  req.UtilityProviderID,
		CustomerID:         req.CustomerID,
		Title:              req.Title,
		AmountMinor:        req.AmountMinor,
		Currency:           req.Currency,
		Frequency:          recurring.Frequency(req.Frequency),
		StartDate:          start,
		EndDate:            end,
		MaxFailedAttempts:  req.MaxFailedAttempts,
		SpendingLimitMinor: req.SpendingLimitMinor,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rp)
}

func (h Handlers) ListMyRecurring(c *gin.Context) {
	userID, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	list, err := h.Recurring.ListByUser(c.Request.Context(), clusterID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recurring_payments": list})
}

func (h Handlers) PauseRecurring(c *gin.Context)  { h.recurringAction(c, h.Recurring.Pause) }
func (h Handlers) ResumeRecurring(c *gin.Context) { h.recurringAction(c, h.Recurring.Resume) }
func (h Handlers) CancelRecurring(c *gin.Context) { h.recurringAction(c, h.Recurring.Cancel) }

func (h Handlers) recurringAction(c *gin.Context, fn func(ctx context.Context, clusterID, id string) (recurring.RecurringPayment, error)) {
	_, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	rp, err := fn(c.Request.Context(), clusterID, c.Param("recurring_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rp)
}

// ProcessDueRecurring triggers a sweep of due recurring payments for the
// caller's cluster. Intended for operators and schedulers.
func (h Handlers) ProcessDueRecurring(c *gin.Context) {
	_, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	res, err := h.Recurring.ProcessDue(c.Request.Context(), clusterID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Admin ---

type transferRequest struct {
	FromUserID  string `json:"from_user_id"`
	AmountMinor int64  `json:"amount_minor"`
	Description string `json:"description,omitempty"`
}

func (h Handlers) AdminTransferToCluster(c *gin.Context) {
	adminID, clusterID, role, ok := identity(c)
	if !ok {
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	txn, err := h.Payments.TransferToCluster(c.Request.Context(), payments.TransferRequest{
		ClusterID:   clusterID,
		FromUserID:  req.FromUserID,
		AmountMinor: req.AmountMinor,
		ActorUserID: adminID,
		ActorRole:   role,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h Handlers) ListUnresolvedErrors(c *gin.Context) {
	_, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	errs, err := h.Errors.ListUnresolved(c.Request.Context(), clusterID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": errs})
}

func (h Handlers) RetryFailedPayment(c *gin.Context) {
	_, clusterID, _, ok := identity(c)
	if !ok {
		return
	}
	res, err := h.Payments.RetryFailedPayment(c.Request.Context(), clusterID, c.Param("error_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Convenience middleware bundles.

func RequireClusterAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireCluster(), rbac.RequireAnyRole(roles...)}
}
