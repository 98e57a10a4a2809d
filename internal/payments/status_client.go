package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// TransactionStatus is eSewa's transaction status API response.
type TransactionStatus struct {
	ProductCode     string      `json:"product_code"`
	TransactionUUID string      `json:"transaction_uuid"`
	TotalAmount     json.Number `json:"total_amount"`
	Status          string      `json:"status"`
	RefID           string      `json:"ref_id"`
}

// StatusChecker confirms a transaction with the gateway.
type StatusChecker interface {
	Check(ctx context.Context, productCode, totalAmount, transactionUUID string) (*TransactionStatus, error)
}

// StatusClient calls GET <statusURL>?product_code=&total_amount=&transaction_uuid=.
type StatusClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewStatusClient(endpoint string, httpClient *http.Client) *StatusClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &StatusClient{endpoint: endpoint, httpClient: httpClient}
}

func (c *StatusClient) Check(ctx context.Context, productCode, totalAmount, transactionUUID string) (*TransactionStatus, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.esewa.status")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.transaction_uuid", transactionUUID))

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("payments: status url: %w", err)
	}
	q := u.Query()
	q.Set("product_code", productCode)
	q.Set("total_amount", totalAmount)
	q.Set("transaction_uuid", transactionUUID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("payments: build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: status request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("payments: status api returned %d: %s", resp.StatusCode, string(body))
	}
	var out TransactionStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("payments: decode status response: %w", err)
	}
	span.SetAttributes(attribute.String("telehealth.esewa_status", out.Status))
	return &out, nil
}
