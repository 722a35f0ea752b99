package provider

import "errors"

// APIProvider identifies which gateway adapter fulfills purchases for a
// utility provider.
type APIProvider string

const (
	APIProviderPaystack     APIProvider = "paystack"
	APIProviderFlutterwave  APIProvider = "flutterwave"
	APIProviderBankTransfer APIProvider = "bank_transfer"
	APIProviderCash         APIProvider = "cash"
)

// UtilityProvider is a cluster-scoped utility configuration: which company,
// which gateway routes its purchases, and the accepted amount range.
type UtilityProvider struct {
	ID                 string      `json:"id"`
	ClusterID          string      `json:"cluster_id"`
	Name               string      `json:"name"`
	ServiceType        string      `json:"service_type"` // electricity, water, internet, cable_tv
	Code               string      `json:"code"`
	APIProvider        APIProvider `json:"api_provider"`
	Active             bool        `json:"active"`
	SupportsValidation bool        `json:"supports_validation"`
	MinAmountMinor     int64       `json:"min_amount_minor"`
	MaxAmountMinor     int64       `json:"max_amount_minor"` // 0 = no upper bound
}

func (p UtilityProvider) IsAmountValid(amountMinor int64) bool {
	if amountMinor <= 0 {
		return false
	}
	if amountMinor < p.MinAmountMinor {
		return false
	}
	if p.MaxAmountMinor > 0 && amountMinor > p.MaxAmountMinor {
		return false
	}
	return true
}

var (
	ErrNotFound          = errors.New("utility provider not found")
	ErrGatewayNotWired   = errors.New("no gateway registered for api provider")
	ErrProviderInactive  = errors.New("utility provider is inactive")
	ErrAmountOutOfBounds = errors.New("amount outside provider limits")
)

// Registry maps APIProvider values to gateway adapters.
type Registry struct {
	gateways map[APIProvider]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[APIProvider]Gateway)}
}

func (r *Registry) Register(api APIProvider, g Gateway) {
	r.gateways[api] = g
}

func (r *Registry) For(api APIProvider) (Gateway, error) {
	g, ok := r.gateways[api]
	if !ok {
		return nil, ErrGatewayNotWired
	}
	return g, nil
}
