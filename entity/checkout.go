package entity

// CheckoutSession is the hosted payment page created for an invoice.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PaymentWebhookEvent is the provider callback after signature verification,
// reduced to the fields the invoice lifecycle cares about.
type PaymentWebhookEvent struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	InvoiceID  string `json:"invoice_id"`
	BusinessID string `json:"business_id"`
}

const WebhookCheckoutCompleted = "checkout.session.completed"
