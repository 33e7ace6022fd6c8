package entity

import "time"

type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

const DefaultCurrency = "usd"

// Invoice.Status lifecycle: draft --checkout session created--> sent
// --webhook completion--> paid. "overdue" is never stored; it is derived at
// read time for sent invoices whose due date has passed.
type Invoice struct {
	ID                string        `json:"id" db:"invoice_id"`
	BusinessID        string        `json:"business_id" db:"business_id"`
	CustomerID        *string       `json:"customer_id,omitempty" db:"customer_id"`
	AmountCents       int64         `json:"amount_cents" db:"amount_cents"`
	Currency          string        `json:"currency" db:"currency"`
	Status            InvoiceStatus `json:"status" db:"status"`
	CheckoutSessionID *string       `json:"checkout_session_id,omitempty" db:"checkout_session_id"`
	CheckoutURL       *string       `json:"checkout_url,omitempty" db:"checkout_url"`
	PDFURL            *string       `json:"pdf_url,omitempty" db:"pdf_url"`
	DueDate           *time.Time    `json:"due_date,omitempty" db:"due_date"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`

	// Joined on reads, never written through this entity.
	Customer *CustomerRef `json:"customer,omitempty" db:"-"`
}

func (i Invoice) EntityID() string { return i.ID }
func (i Invoice) TenantID() string { return i.BusinessID }

type InvoiceInput struct {
	BusinessID  string        `json:"business_id"`
	CustomerID  *string       `json:"customer_id,omitempty"`
	AmountCents int64         `json:"amount_cents"`
	Currency    string        `json:"currency,omitempty"`
	Status      InvoiceStatus `json:"status,omitempty"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
}

type InvoicePatch struct {
	CustomerID  *string        `json:"customer_id,omitempty"`
	AmountCents *int64         `json:"amount_cents,omitempty"`
	Currency    *string        `json:"currency,omitempty"`
	Status      *InvoiceStatus `json:"status,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
}

// EffectiveStatus derives the display status without rewriting stored state.
func (i Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.Status == InvoiceSent && i.DueDate != nil && i.DueDate.Before(now) {
		return InvoiceOverdue
	}
	return i.Status
}
