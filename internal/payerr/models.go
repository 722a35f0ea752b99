package payerr

import "time"

type Type string

const (
	TypeInsufficientFunds   Type = "insufficient_funds"
	TypeInvalidCard         Type = "invalid_card"
	TypeExpiredCard         Type = "expired_card"
	TypeDeclinedCard        Type = "declined_card"
	TypeNetworkError        Type = "network_error"
	TypeProviderError       Type = "provider_error"
	TypeValidationError     Type = "validation_error"
	TypeTimeoutError        Type = "timeout_error"
	TypeAuthenticationError Type = "authentication_error"
	TypeLimitExceeded       Type = "limit_exceeded"
	TypeAccountSuspended    Type = "account_suspended"
	TypeUnknownError        Type = "unknown_error"

	// Utility purchase specific.
	TypeUtilityProviderError     Type = "utility_provider_error"
	TypeInvalidCustomerID        Type = "invalid_customer_id"
	TypeUtilityUnavailable       Type = "utility_service_unavailable"
	TypeMeterNotFound            Type = "meter_not_found"
	TypeCustomerValidationFailed Type = "customer_validation_failed"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error is the audit record for a failed payment: what the provider said,
// what we tell the user, and whether/how the payment may be retried.
type Error struct {
	ID                   string     `json:"id"`
	ClusterID            string     `json:"cluster_id"`
	TxnID                string     `json:"txn_id"`
	UserID               string     `json:"user_id,omitempty"`
	Type                 Type       `json:"type"`
	Severity             Severity   `json:"severity"`
	ProviderErrorCode    string     `json:"provider_error_code,omitempty"`
	ProviderErrorMessage string     `json:"provider_error_message"`
	UserMessage          string     `json:"user_message"`
	CanRetry             bool       `json:"can_retry"`
	RetryCount           int        `json:"retry_count"`
	MaxRetries           int        `json:"max_retries"`
	Resolved             bool       `json:"resolved"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
	ResolutionMethod     string     `json:"resolution_method,omitempty"`
	UserNotified         bool       `json:"user_notified"`
	AdminNotified        bool       `json:"admin_notified"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// CanBeRetried gates the retry path: retryable type, attempts left, unresolved.
func (e Error) CanBeRetried() bool {
	return e.CanRetry && e.RetryCount < e.MaxRetries && !e.Resolved
}

// NextRetryDelay backs off exponentially per attempt, capped at 30 minutes.
func (e Error) NextRetryDelay() time.Duration {
	minutes := int64(1) << uint(e.RetryCount)
	if minutes > 30 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}
