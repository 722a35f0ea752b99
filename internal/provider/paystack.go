package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// paystackGateway fulfills utility purchases over Paystack's REST API.
//
// Every call is bounded by the configured request timeout; a deadline
// exceeded is returned as ErrTimeout so orchestrators fail the transaction
// instead of leaving it pending.
type paystackGateway struct {
	baseURL string
	secret  string
	timeout time.Duration
	client  *http.Client
}

func NewPaystackGateway(baseURL, secretKey string, timeout time.Duration) Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &paystackGateway{
		baseURL: baseURL,
		secret:  secretKey,
		timeout: timeout,
		client:  &http.Client{},
	}
}

func (g *paystackGateway) Name() string { return "paystack" }

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (g *paystackGateway) ValidateCustomer(ctx context.Context, req ValidateCustomerRequest) (CustomerInfo, error) {
	body := map[string]string{
		"service_type": req.ServiceType,
		"provider":     req.ProviderCode,
		"customer_id":  req.CustomerID,
	}
	raw, err := g.post(ctx, "/bill/validate", body)
	if err != nil {
		return CustomerInfo{}, err
	}

	var data struct {
		CustomerID   string `json:"customer_id"`
		CustomerName string `json:"customer_name"`
		Address      string `json:"address"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return CustomerInfo{}, fmt.Errorf("paystack: decode validate response: %w", err)
	}
	return CustomerInfo{
		CustomerID:   data.CustomerID,
		CustomerName: data.CustomerName,
		Address:      data.Address,
		Raw:          string(raw),
	}, nil
}

func (g *paystackGateway) Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	body := map[string]any{
		"service_type": req.ServiceType,
		"provider":     req.ProviderCode,
		"customer_id":  req.CustomerID,
		"amount":       req.AmountMinor,
		"currency":     req.Currency,
		"reference":    req.Reference,
	}
	raw, err := g.post(ctx, "/bill/pay", body)
	if err != nil {
		return PurchaseResult{}, err
	}

	var data struct {
		Reference string `json:"reference"`
		Token     string `json:"token"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return PurchaseResult{}, fmt.Errorf("paystack: decode purchase response: %w", err)
	}
	return PurchaseResult{
		ProviderRef: data.Reference,
		Token:       data.Token,
		Raw:         string(raw),
	}, nil
}

func (g *paystackGateway) ListProviders(ctx context.Context, serviceType string) ([]ProviderInfo, error) {
	raw, err := g.get(ctx, "/bill/providers?service_type="+serviceType)
	if err != nil {
		return nil, err
	}

	var data []struct {
		Code        string `json:"code"`
		Name        string `json:"name"`
		ServiceType string `json:"service_type"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("paystack: decode providers response: %w", err)
	}
	out := make([]ProviderInfo, 0, len(data))
	for _, d := range data {
		out = append(out, ProviderInfo{Code: d.Code, Name: d.Name, ServiceType: d.ServiceType})
	}
	return out, nil
}

func (g *paystackGateway) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return g.do(ctx, http.MethodPost, path, bytes.NewReader(payload))
}

func (g *paystackGateway) get(ctx context.Context, path string) (json.RawMessage, error) {
	return g.do(ctx, http.MethodGet, path, nil)
}

func (g *paystackGateway) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("paystack: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("paystack: read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, ErrUnavailable
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("paystack: decode envelope (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !env.Status {
		if env.Message == "" {
			env.Message = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrDeclined, env.Message)
	}
	return env.Data, nil
}
