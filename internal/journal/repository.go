package journal

import "context"

type Repository interface {
	Create(ctx context.Context, txn Transaction) error
	Get(ctx context.Context, clusterID, txnID string) (Transaction, error)
	FindByIdempotencyKey(ctx context.Context, clusterID, walletID, key string) (Transaction, bool, error)
	Update(ctx context.Context, txn Transaction) error
	ListByWallet(ctx context.Context, clusterID, walletID string, limit int) ([]Transaction, error)

	// SumCompletedForBill totals completed bill_payment entries referencing a
	// bill. payerID narrows the total to one payer when non-empty.
	SumCompletedForBill(ctx context.Context, clusterID, billID, payerID string) (int64, error)
}
