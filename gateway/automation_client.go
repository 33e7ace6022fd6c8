package gateway

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

// AutomationClient notifies the automation pipeline that an invoice was paid,
// so follow-up flows (thank-you email, bookkeeping export) can run.
type AutomationClient struct {
	httpClient *http.Client
	webhookURL string
}

func NewAutomationClient(webhookURL string) AutomationClient {
	return AutomationClient{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
		webhookURL: webhookURL,
	}
}

// Enabled reports whether an automation endpoint is configured at all.
func (c AutomationClient) Enabled() bool {
	return c.webhookURL != ""
}

func (c AutomationClient) NotifyInvoicePaid(ctx context.Context, event entity.InvoiceMarkedPaid) error {
	body, err := json.Marshal(map[string]string{
		"invoiceId":  event.InvoiceID,
		"businessId": event.BusinessID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status code from automation webhook: %d", resp.StatusCode)
	}

	return nil
}
