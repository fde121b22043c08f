// Package payment implements the client for the external checkout gateway.
// The gateway issues a hosted checkout session for an order and later answers
// verification queries with the authoritative transaction state.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnavailable is returned after the bounded retries against the gateway
// are exhausted. Gateway unavailability is a retryable condition and never
// evidence that a payment failed.
var ErrUnavailable = errors.New("payment gateway unavailable")

// GatewayError indicates the gateway answered with a non-success status or a
// malformed body.
type GatewayError struct {
	Op     string
	Status int
	Detail string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: status %d: %s", e.Op, e.Status, e.Detail)
}

// SessionRequest carries the order total and customer metadata required to
// open a checkout session.
type SessionRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	OrderID         string          `json:"order_id"`
	Currency        string          `json:"currency"`
	CustomerName    string          `json:"customer_name"`
	CustomerAddress string          `json:"customer_address"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerPhone   string          `json:"customer_phone"`
	CustomerCity    string          `json:"customer_city"`
	ClientIP        string          `json:"client_ip"`
}

// Session is the gateway's answer to a session request.
type Session struct {
	CheckoutURL       string `json:"checkout_url"`
	SessionID         string `json:"sp_order_id"`
	TransactionStatus string `json:"transactionStatus"`
}

// VerificationRecord is one authoritative transaction state entry returned
// by the verification endpoint. Field names follow the gateway wire format.
type VerificationRecord struct {
	BankStatus        string `json:"bank_status"`
	SPCode            string `json:"sp_code"`
	SPMessage         string `json:"sp_message"`
	TransactionStatus string `json:"transaction_status"`
	Method            string `json:"method"`
	DateTime          string `json:"date_time"`
}

// Gateway is the boundary consumed by order placement and reconciliation.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	VerifySession(ctx context.Context, orderID string) ([]VerificationRecord, error)
}

// Config holds gateway connection settings.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	Retries  int
}

// Client talks to the gateway over HTTP with a per-call timeout and a
// bounded retry on transport errors and 5xx responses.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ Gateway = (*Client)(nil)

// NewClient creates a gateway client. Zero Timeout defaults to 10s, zero
// Retries to 3 attempts total.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateSession opens a checkout session for the given order.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	body := struct {
		SessionRequest
		StoreID  string `json:"store_id"`
		Username string `json:"username"`
		Password string `json:"password"`
	}{
		SessionRequest: req,
		Username:       c.cfg.Username,
		Password:       c.cfg.Password,
	}

	var session Session
	if err := c.post(ctx, "/api/secret-pay", body, &session); err != nil {
		return nil, err
	}
	if session.CheckoutURL == "" {
		return nil, &GatewayError{Op: "create session", Status: http.StatusOK, Detail: "missing checkout_url"}
	}
	return &session, nil
}

// VerifySession fetches the authoritative transaction records for an order.
// An empty list means the gateway has nothing to report yet; that is not an
// error.
func (c *Client) VerifySession(ctx context.Context, orderID string) ([]VerificationRecord, error) {
	body := struct {
		OrderID  string `json:"order_id"`
		Username string `json:"username"`
		Password string `json:"password"`
	}{
		OrderID:  orderID,
		Username: c.cfg.Username,
		Password: c.cfg.Password,
	}

	var records []VerificationRecord
	if err := c.post(ctx, "/api/verification", body, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// post sends one JSON request with bounded retries. Non-2xx responses below
// 500 are terminal; transport errors and 5xx answers are retried with a
// short backoff.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
			zctx.From(ctx).Debug("Retrying gateway call",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
			)
		}

		done, err := c.attempt(ctx, path, payload, out)
		if done {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

// attempt performs a single request. done reports whether the outcome is
// terminal (success or a non-retryable failure).
func (c *Client) attempt(ctx context.Context, path string, payload []byte, out interface{}) (done bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return true, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return false, &GatewayError{Op: path, Status: resp.StatusCode, Detail: "server error"}
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return true, &GatewayError{Op: path, Status: resp.StatusCode, Detail: string(detail)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return true, &GatewayError{Op: path, Status: resp.StatusCode, Detail: "malformed response: " + err.Error()}
	}
	return true, nil
}
