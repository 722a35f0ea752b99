package billing

import "context"

type Repository interface {
	Create(ctx context.Context, b Bill) error
	Get(ctx context.Context, clusterID, billID string) (Bill, error)
	Update(ctx context.Context, b Bill) error
	List(ctx context.Context, clusterID string, f ListFilter) ([]Bill, error)
}

type ListFilter struct {
	Category     Category // zero value = all
	TargetUserID string   // non-empty narrows to targeted + cluster-wide bills
	UnpaidOnly   bool
}
