package provider

import "context"

type Repository interface {
	Create(ctx context.Context, p UtilityProvider) error
	Get(ctx context.Context, clusterID, providerID string) (UtilityProvider, error)
	ListActive(ctx context.Context, clusterID, serviceType string) ([]UtilityProvider, error)
}
