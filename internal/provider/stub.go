package provider

import (
	"context"
	"fmt"
	"sync"
)

// StubGateway is an in-memory gateway useful for tests and local development.
// It succeeds by default; set Err to force every call to fail with it.
type StubGateway struct {
	GatewayName string
	Err         error

	mu        sync.Mutex
	purchases []PurchaseRequest
	seq       int
}

func NewStubGateway(name string) *StubGateway {
	return &StubGateway{GatewayName: name}
}

func (g *StubGateway) Name() string {
	if g.GatewayName == "" {
		return "stub"
	}
	return g.GatewayName
}

func (g *StubGateway) ValidateCustomer(_ context.Context, req ValidateCustomerRequest) (CustomerInfo, error) {
	if g.Err != nil {
		return CustomerInfo{}, g.Err
	}
	return CustomerInfo{
		CustomerID:   req.CustomerID,
		CustomerName: "Stub Customer",
	}, nil
}

func (g *StubGateway) Purchase(_ context.Context, req PurchaseRequest) (PurchaseResult, error) {
	if g.Err != nil {
		return PurchaseResult{}, g.Err
	}
	g.mu.Lock()
	g.seq++
	ref := fmt.Sprintf("STUB-%04d", g.seq)
	g.purchases = append(g.purchases, req)
	g.mu.Unlock()
	return PurchaseResult{ProviderRef: ref, Token: "0000-1111-2222"}, nil
}

func (g *StubGateway) ListProviders(_ context.Context, serviceType string) ([]ProviderInfo, error) {
	if g.Err != nil {
		return nil, g.Err
	}
	return []ProviderInfo{{Code: "stub-grid", Name: "Stub Grid", ServiceType: serviceType}}, nil
}

// Purchases returns a copy of every purchase the stub has accepted.
func (g *StubGateway) Purchases() []PurchaseRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PurchaseRequest, len(g.purchases))
	copy(out, g.purchases)
	return out
}
