package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"opsboard/entity"
)

// requestTimeout caps the checkout round trip; the caller is a blocked
// dashboard action, not a background job.
const requestTimeout = 15 * time.Second

// Coordinator drives the invoice payment flow from the dashboard side: it
// asks the checkout endpoint for a hosted payment page and hands the URL
// back to the caller. It never mutates local state; the resulting status
// change arrives through the change stream like any other edit.
type Coordinator struct {
	httpClient *http.Client
	baseURL    string
}

func NewCoordinator(baseURL string) *Coordinator {
	return &Coordinator{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   requestTimeout,
		},
		baseURL: baseURL,
	}
}

type checkoutRequest struct {
	InvoiceID string `json:"invoiceId"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// RequestCheckout returns the hosted payment page URL for the invoice.
// Every failure mode collapses to ErrCheckoutSessionFailed; the cause is
// kept on the wrapped error for logs, not for the caller.
func (c *Coordinator) RequestCheckout(ctx context.Context, invoiceID string, accessToken string) (string, error) {
	body, err := json.Marshal(checkoutRequest{InvoiceID: invoiceID})
	if err != nil {
		return "", fmt.Errorf("%w: %w", entity.ErrCheckoutSessionFailed, err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/payments/checkout-sessions",
		bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", entity.ErrCheckoutSessionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", entity.ErrCheckoutSessionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status code %d", entity.ErrCheckoutSessionFailed, resp.StatusCode)
	}

	var out checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %w", entity.ErrCheckoutSessionFailed, err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: response carries no session url", entity.ErrCheckoutSessionFailed)
	}

	return out.URL, nil
}
