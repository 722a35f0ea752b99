package recurring

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, rp RecurringPayment) error
	Get(ctx context.Context, clusterID, id string) (RecurringPayment, error)
	Update(ctx context.Context, rp RecurringPayment) error
	ListByUser(ctx context.Context, clusterID, userID string) ([]RecurringPayment, error)
	// ListDue returns ACTIVE payments with next_payment_date <= before,
	// ordered by next_payment_date ascending.
	ListDue(ctx context.Context, clusterID string, before time.Time) ([]RecurringPayment, error)
}
