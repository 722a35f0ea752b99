package provider

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
type MemoryRepo struct {
	mu        sync.RWMutex
	providers map[string]UtilityProvider
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{providers: make(map[string]UtilityProvider)}
}

func (r *MemoryRepo) Create(ctx context.Context, p UtilityProvider) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.ID]; exists {
		return errors.New("utility provider already exists")
	}
	r.providers[p.ID] = p
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, clusterID, providerID string) (UtilityProvider, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[providerID]
	if !ok || p.ClusterID != clusterID {
		return UtilityProvider{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) ListActive(ctx context.Context, clusterID, serviceType string) ([]UtilityProvider, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []UtilityProvider
	for _, p := range r.providers {
		if p.ClusterID != clusterID || !p.Active {
			continue
		}
		if serviceType != "" && p.ServiceType != serviceType {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
