package provider

import (
	"context"
	"errors"
)

// Gateway defines the provider-agnostic interface used by business logic.
//
// Rules:
//   - No provider HTTP calls outside gateway adapters.
//   - Keep request/response types provider-agnostic; store provider raw payloads
//     in Raw if needed.
//   - A context deadline exceeded must surface as ErrTimeout so the caller can
//     fail the transaction instead of leaving it pending.
type Gateway interface {
	Name() string
	ValidateCustomer(ctx context.Context, req ValidateCustomerRequest) (CustomerInfo, error)
	Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error)
	ListProviders(ctx context.Context, serviceType string) ([]ProviderInfo, error)
}

var (
	ErrTimeout     = errors.New("provider request timed out")
	ErrUnavailable = errors.New("provider service unavailable")
	ErrDeclined    = errors.New("provider declined the purchase")
)

type ValidateCustomerRequest struct {
	ServiceType  string `json:"service_type"`
	ProviderCode string `json:"provider_code"`
	// CustomerID is the meter/account number at the utility.
	CustomerID string `json:"customer_id"`
}

type CustomerInfo struct {
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Address      string `json:"address,omitempty"`
	Raw          string `json:"raw,omitempty"`
}

type PurchaseRequest struct {
	ServiceType  string `json:"service_type"`
	ProviderCode string `json:"provider_code"`
	CustomerID   string `json:"customer_id"`
	AmountMinor  int64  `json:"amount_minor"`
	Currency     string `json:"currency"`
	// Reference is our transaction reference; providers echo it back.
	Reference string `json:"reference"`
}

type PurchaseResult struct {
	ProviderRef string `json:"provider_ref"`
	// Token is the value delivered to the customer (e.g. a prepaid meter token).
	Token string `json:"token,omitempty"`
	Raw   string `json:"raw,omitempty"`
}

type ProviderInfo struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	ServiceType string `json:"service_type"`
}
