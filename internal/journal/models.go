package journal

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeDeposit     Type = "deposit"
	TypeWithdrawal  Type = "withdrawal"
	TypePayment     Type = "payment"
	TypeRefund      Type = "refund"
	TypeTransfer    Type = "transfer"
	TypeBillPayment Type = "bill_payment"
)

// Outgoing reports whether the type moves money out of the wallet, which is
// what determines holds on admission and the settlement sign.
func (t Type) Outgoing() bool {
	switch t {
	case TypeWithdrawal, TypePayment, TypeTransfer, TypeBillPayment:
		return true
	}
	return false
}

func (t Type) valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypePayment, TypeRefund, TypeTransfer, TypeBillPayment:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Terminal statuses are immutable; any transition attempt on them is a defect.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Transaction is the journal entry for every money movement. Entries are
// created PENDING and walk the state machine exactly once per economic effect.
type Transaction struct {
	ID             string `json:"id"`
	Reference      string `json:"reference"`
	ClusterID      string `json:"cluster_id"`
	WalletID       string `json:"wallet_id"`
	Type           Type   `json:"type"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	Status         Status `json:"status"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Description    string `json:"description,omitempty"`
	BillID         string `json:"bill_id,omitempty"`
	InitiatedBy    string `json:"initiated_by,omitempty"`
	Provider       string `json:"provider,omitempty"`
	// UtilityProviderID and CustomerID carry enough context to re-drive a
	// failed utility purchase without the original request.
	UtilityProviderID string     `json:"utility_provider_id,omitempty"`
	CustomerID        string     `json:"customer_id,omitempty"`
	ProviderResponse  string     `json:"provider_response,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	FailedAt          *time.Time `json:"failed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewReference builds a human-quotable transaction reference, e.g.
// TXN-3F2A91C04B7D.
func NewReference() string {
	u := uuid.New()
	return "TXN-" + strings.ToUpper(hex.EncodeToString(u[:6]))
}
