package dispute

import "context"

type Repository interface {
	Create(ctx context.Context, d Dispute) error
	Get(ctx context.Context, clusterID, disputeID string) (Dispute, error)
	Update(ctx context.Context, d Dispute) error
	ListByBill(ctx context.Context, clusterID, billID string) ([]Dispute, error)
	FindActiveByBillAndUser(ctx context.Context, clusterID, billID, userID string) (Dispute, bool, error)

	AddComment(ctx context.Context, c Comment) error
	ListComments(ctx context.Context, disputeID string) ([]Comment, error)
}
