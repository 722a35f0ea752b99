package payerr

import "context"

type Repository interface {
	Create(ctx context.Context, e Error) error
	Get(ctx context.Context, clusterID, errorID string) (Error, error)
	Update(ctx context.Context, e Error) error
	ListByTxn(ctx context.Context, clusterID, txnID string) ([]Error, error)
	ListUnresolved(ctx context.Context, clusterID string) ([]Error, error)
}
