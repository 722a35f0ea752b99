package recurring

import "time"

type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

func (f Frequency) valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// NextAfter advances t by one period using calendar arithmetic, so monthly
// payments stay on the same day of month where the calendar allows. When the
// target month is shorter, the day clamps to its last day instead of
// spilling into the following month: a payment anchored on the 31st charges
// Feb 28, not Mar 3, and keeps its anchor.
func (f Frequency) NextAfter(t time.Time) time.Time {
	switch f {
	case FrequencyDaily:
		return t.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return addMonthsClamped(t, 1)
	case FrequencyQuarterly:
		return addMonthsClamped(t, 3)
	case FrequencyYearly:
		return addMonthsClamped(t, 12)
	}
	return t
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	month += time.Month(months)
	// Day zero of the following month is the target month's last day.
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > last {
		day = last
	}
	hour, min, sec := t.Clock()
	return time.Date(year, month, day, hour, min, sec, t.Nanosecond(), t.Location())
}

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// RecurringPayment is a standing instruction to execute a payment on a
// schedule. It weakly references a bill or a utility provider; when neither
// is set the payment is a plain contribution to the cluster's pooled wallet.
type RecurringPayment struct {
	ID                 string     `json:"id"`
	ClusterID          string     `json:"cluster_id"`
	UserID             string     `json:"user_id"`
	WalletID           string     `json:"wallet_id"`
	BillID             string     `json:"bill_id,omitempty"`
	UtilityProviderID  string     `json:"utility_provider_id,omitempty"`
	CustomerID         string     `json:"customer_id,omitempty"`
	Title              string     `json:"title"`
	AmountMinor        int64      `json:"amount_minor"`
	Currency           string     `json:"currency"`
	Frequency          Frequency  `json:"frequency"`
	Status             Status     `json:"status"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	NextPaymentDate    time.Time  `json:"next_payment_date"`
	LastPaymentDate    *time.Time `json:"last_payment_date,omitempty"`
	TotalPayments      int        `json:"total_payments"`
	FailedAttempts     int        `json:"failed_attempts"`
	MaxFailedAttempts  int        `json:"max_failed_attempts"`
	SpendingLimitMinor int64      `json:"spending_limit_minor,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Due reports whether the payment should be processed at now.
func (rp RecurringPayment) Due(now time.Time) bool {
	return rp.Status == StatusActive && !rp.NextPaymentDate.After(now)
}
