package billing

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	// CategoryClusterManaged bills are shared estate obligations. Any member
	// may contribute, and the paid total is derived from the journal.
	CategoryClusterManaged Category = "cluster_managed"
	// CategoryUserManaged bills belong to exactly one resident.
	CategoryUserManaged Category = "user_managed"
)

type BillType string

const (
	BillTypeElectricity     BillType = "electricity"
	BillTypeWater           BillType = "water"
	BillTypeSecurity        BillType = "security"
	BillTypeMaintenance     BillType = "maintenance"
	BillTypeServiceCharge   BillType = "service_charge"
	BillTypeWasteManagement BillType = "waste_management"
	BillTypeInternet        BillType = "internet"
	BillTypeCableTV         BillType = "cable_tv"
	BillTypeOther           BillType = "other"
)

func (t BillType) valid() bool {
	switch t {
	case BillTypeElectricity, BillTypeWater, BillTypeSecurity, BillTypeMaintenance,
		BillTypeServiceCharge, BillTypeWasteManagement, BillTypeInternet, BillTypeCableTV, BillTypeOther:
		return true
	}
	return false
}

type Acknowledgment struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// Bill is a payable obligation within a cluster. TargetUserID is set exactly
// when Category is user_managed.
//
// PaidAmountMinor is the authoritative running total for user_managed bills.
// For cluster_managed bills paid totals are always derived from completed
// bill_payment journal entries, never stored.
type Bill struct {
	ID                   string           `json:"id"`
	Number               string           `json:"number"`
	ClusterID            string           `json:"cluster_id"`
	TargetUserID         string           `json:"target_user_id,omitempty"`
	Title                string           `json:"title"`
	Description          string           `json:"description,omitempty"`
	Type                 BillType         `json:"type"`
	Category             Category         `json:"category"`
	UtilityProviderID    string           `json:"utility_provider_id,omitempty"`
	CustomerID           string           `json:"customer_id,omitempty"`
	AmountMinor          int64            `json:"amount_minor"`
	Currency             string           `json:"currency"`
	DueDate              time.Time        `json:"due_date"`
	AllowPaymentAfterDue bool             `json:"allow_payment_after_due"`
	PaidAmountMinor      int64            `json:"paid_amount_minor"`
	PaidAt               *time.Time       `json:"paid_at,omitempty"`
	PaymentTxnID         string           `json:"payment_txn_id,omitempty"`
	Acknowledgments      []Acknowledgment `json:"acknowledgments,omitempty"`
	CreatedBy            string           `json:"created_by"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

func (b Bill) AcknowledgedBy(userID string) bool {
	for _, a := range b.Acknowledgments {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// IsOverdue reports whether the bill is unpaid past its due date.
func (b Bill) IsOverdue(now time.Time) bool {
	return b.PaidAt == nil && now.After(b.DueDate)
}

// NewBillNumber builds a human-quotable bill number, e.g. BILL-3F2A91C0.
func NewBillNumber() string {
	u := uuid.New()
	return "BILL-" + strings.ToUpper(hex.EncodeToString(u[:4]))
}
