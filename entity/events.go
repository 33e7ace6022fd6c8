package entity

import (
	"time"

	"github.com/google/uuid"
)

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewEventHeader() EventHeader {
	return EventHeader{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

func NewEventHeaderWithIdempotencyKey(idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

type InvoiceCheckoutStarted struct {
	Header            EventHeader `json:"header"`
	InvoiceID         string      `json:"invoice_id"`
	BusinessID        string      `json:"business_id"`
	CheckoutSessionID string      `json:"checkout_session_id"`
	CheckoutURL       string      `json:"checkout_url"`
	AmountCents       int64       `json:"amount_cents"`
	Currency          string      `json:"currency"`
}

type InvoiceMarkedPaid struct {
	Header     EventHeader `json:"header"`
	InvoiceID  string      `json:"invoice_id"`
	BusinessID string      `json:"business_id"`
}
