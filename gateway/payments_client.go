package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"opsboard/entity"
)

type PaymentsClient struct {
	api           *client.API
	webhookSecret string
	dashboardURL  string
}

func NewPaymentsClient(api *client.API, webhookSecret string, dashboardURL string) PaymentsClient {
	return PaymentsClient{
		api:           api,
		webhookSecret: webhookSecret,
		dashboardURL:  dashboardURL,
	}
}

func (c PaymentsClient) CreateCheckoutSession(ctx context.Context, invoice entity.Invoice) (entity.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(invoice.Currency),
					UnitAmount: stripe.Int64(invoice.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Invoice %s (%s)", invoice.ID, entity.FormatCents(invoice.AmountCents))),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.dashboardURL + "?success=true"),
		CancelURL:  stripe.String(c.dashboardURL + "?cancelled=true"),
	}
	params.Context = ctx
	params.AddMetadata("invoice_id", invoice.ID)
	params.AddMetadata("business_id", invoice.BusinessID)

	if invoice.Customer != nil && invoice.Customer.Email != nil {
		params.CustomerEmail = stripe.String(*invoice.Customer.Email)
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return entity.CheckoutSession{}, fmt.Errorf("could not create checkout session: %w", err)
	}

	return entity.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ConstructWebhookEvent verifies the provider signature and flattens the
// event to the fields the invoice lifecycle needs. Events of other types
// come back with an empty InvoiceID and are acknowledged without action.
func (c PaymentsClient) ConstructWebhookEvent(payload []byte, signature string) (entity.PaymentWebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, c.webhookSecret)
	if err != nil {
		return entity.PaymentWebhookEvent{}, fmt.Errorf("could not verify webhook signature: %w", err)
	}

	out := entity.PaymentWebhookEvent{Type: string(event.Type)}
	if out.Type != entity.WebhookCheckoutCompleted {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return entity.PaymentWebhookEvent{}, fmt.Errorf("could not unmarshal checkout session from webhook: %w", err)
	}

	out.SessionID = sess.ID
	out.InvoiceID = sess.Metadata["invoice_id"]
	out.BusinessID = sess.Metadata["business_id"]

	return out, nil
}
