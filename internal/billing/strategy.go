package billing

import "context"

// paidSums is the journal slice the strategies read paid totals from.
type paidSums interface {
	SumCompletedForBill(ctx context.Context, clusterID, billID, payerID string) (int64, error)
}

// accounting is the per-category paid-amount policy. The interface is sealed:
// exactly two implementations exist and strategyFor is the only constructor,
// so category handling can never fork ad hoc at call sites.
type accounting interface {
	sealed()

	// CanBePaidBy decides admission for a payer, before money moves.
	CanBePaidBy(b Bill, userID string) bool
	// TotalPaid is the bill-wide paid amount.
	TotalPaid(ctx context.Context, sums paidSums, b Bill) (int64, error)
	// PaidByUser is the payer's own contribution.
	PaidByUser(ctx context.Context, sums paidSums, b Bill, userID string) (int64, error)
	// RemainingFor is the most this payer may still contribute.
	RemainingFor(ctx context.Context, sums paidSums, b Bill, userID string) (int64, error)
}

func strategyFor(b Bill) accounting {
	if b.Category == CategoryUserManaged {
		return userManaged{}
	}
	return clusterManaged{}
}

// userManaged: one target payer, stored running total.
type userManaged struct{}

func (userManaged) sealed() {}

func (userManaged) CanBePaidBy(b Bill, userID string) bool {
	return userID != "" && userID == b.TargetUserID && b.AcknowledgedBy(userID)
}

func (userManaged) TotalPaid(ctx context.Context, sums paidSums, b Bill) (int64, error) {
	_ = ctx
	_ = sums
	return b.PaidAmountMinor, nil
}

func (userManaged) PaidByUser(ctx context.Context, sums paidSums, b Bill, userID string) (int64, error) {
	if userID != b.TargetUserID {
		return 0, nil
	}
	return b.PaidAmountMinor, nil
}

func (userManaged) RemainingFor(ctx context.Context, sums paidSums, b Bill, userID string) (int64, error) {
	remaining := b.AmountMinor - b.PaidAmountMinor
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// clusterManaged: any member may contribute, totals derived from the journal.
type clusterManaged struct{}

func (clusterManaged) sealed() {}

// Acknowledgment is the only per-bill gate; due-date and dispute checks run
// per payer in the service, since different payers may be in different states.
func (clusterManaged) CanBePaidBy(b Bill, userID string) bool {
	return userID != "" && b.AcknowledgedBy(userID)
}

func (clusterManaged) TotalPaid(ctx context.Context, sums paidSums, b Bill) (int64, error) {
	return sums.SumCompletedForBill(ctx, b.ClusterID, b.ID, "")
}

func (clusterManaged) PaidByUser(ctx context.Context, sums paidSums, b Bill, userID string) (int64, error) {
	return sums.SumCompletedForBill(ctx, b.ClusterID, b.ID, userID)
}

func (clusterManaged) RemainingFor(ctx context.Context, sums paidSums, b Bill, userID string) (int64, error) {
	total, err := sums.SumCompletedForBill(ctx, b.ClusterID, b.ID, "")
	if err != nil {
		return 0, err
	}
	remaining := b.AmountMinor - total
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
