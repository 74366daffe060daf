package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Gateway is the external payment processor surface used by the service
type Gateway interface {
	CreateOrder(ctx context.Context, amountCents int64, currency, receipt string) (*Order, error)
	FetchPayment(ctx context.Context, gatewayPaymentID string) (*GatewayPayment, error)
	VerifySignature(orderID, gatewayPaymentID, signature string) bool
	KeyID() string
}

// Order is a gateway checkout order
type Order struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// GatewayPayment is the processor's view of a captured payment
type GatewayPayment struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Method      string `json:"method"`
}

// HTTPGateway talks to the payment processor's REST API using key-id/secret
// basic auth. The key secret doubles as the HMAC key for callback
// signature verification.
type HTTPGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

// NewHTTPGateway creates a gateway client
func NewHTTPGateway(baseURL, keyID, keySecret string) *HTTPGateway {
	return &HTTPGateway{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// KeyID returns the public key id handed to checkout clients
func (g *HTTPGateway) KeyID() string {
	return g.keyID
}

// CreateOrder registers a checkout order with the processor
func (g *HTTPGateway) CreateOrder(ctx context.Context, amountCents int64, currency, receipt string) (*Order, error) {
	payload := map[string]interface{}{
		"amount":   amountCents,
		"currency": currency,
		"receipt":  receipt,
	}

	var order Order
	if err := g.post(ctx, "/v1/orders", payload, &order); err != nil {
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}
	return &order, nil
}

// FetchPayment loads the processor's record of a captured payment
func (g *HTTPGateway) FetchPayment(ctx context.Context, gatewayPaymentID string) (*GatewayPayment, error) {
	var payment GatewayPayment
	if err := g.get(ctx, "/v1/payments/"+gatewayPaymentID, &payment); err != nil {
		return nil, fmt.Errorf("failed to fetch gateway payment: %w", err)
	}
	return &payment, nil
}

// VerifySignature checks the callback signature: HMAC-SHA256 over
// "orderID|paymentID" keyed with the gateway secret, hex encoded
func (g *HTTPGateway) VerifySignature(orderID, gatewayPaymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	fmt.Fprintf(mac, "%s|%s", orderID, gatewayPaymentID)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req, out)
}

func (g *HTTPGateway) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return err
	}
	return g.do(req, out)
}

func (g *HTTPGateway) do(req *http.Request, out interface{}) error {
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
