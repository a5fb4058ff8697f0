// Package payment talks to the external payment gateway.  The booking
// engine only needs a yes/no answer for a charge; every failure mode,
// including timeouts, is reported as an error so callers fail closed.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPGateway charges payment references against a remote gateway over
// HTTP.  It implements booking.PaymentGateway.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGateway builds a gateway client with a bounded per-request
// timeout.  A charge that outlives the timeout is treated as rejected.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type chargeRequest struct {
	PaymentRef  string `json:"payment_ref"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type chargeResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// Charge submits the payment reference for the given amount.  A nil
// return means the gateway approved the charge.
func (g *HTTPGateway) Charge(ctx context.Context, paymentRef string, amountCents int64) error {
	body, err := json.Marshal(chargeRequest{
		PaymentRef:  paymentRef,
		AmountCents: amountCents,
		Currency:    "USD",
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("payment gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}
	var out chargeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	if !out.Approved {
		if out.Reason == "" {
			out.Reason = "declined"
		}
		return fmt.Errorf("charge declined: %s", out.Reason)
	}
	return nil
}

// DevGateway approves every charge with a non-empty payment reference.
// Used when no gateway URL is configured, e.g. local development.
type DevGateway struct{}

// Charge approves any non-empty payment reference.
func (DevGateway) Charge(_ context.Context, paymentRef string, _ int64) error {
	if paymentRef == "" {
		return fmt.Errorf("empty payment reference")
	}
	return nil
}
