package entity

import "time"

type TicketStatus string

const (
	TicketOpen    TicketStatus = "open"
	TicketPending TicketStatus = "pending"
	TicketClosed  TicketStatus = "closed"
)

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
)

type Ticket struct {
	ID         string         `json:"id" db:"ticket_id"`
	BusinessID string         `json:"business_id" db:"business_id"`
	CustomerID *string        `json:"customer_id,omitempty" db:"customer_id"`
	Subject    string         `json:"subject" db:"subject"`
	Message    string         `json:"message" db:"message"`
	Status     TicketStatus   `json:"status" db:"status"`
	Priority   TicketPriority `json:"priority" db:"priority"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`

	Customer *CustomerRef `json:"customer,omitempty" db:"-"`
}

func (t Ticket) EntityID() string { return t.ID }
func (t Ticket) TenantID() string { return t.BusinessID }

type TicketInput struct {
	BusinessID string         `json:"business_id"`
	CustomerID *string        `json:"customer_id,omitempty"`
	Subject    string         `json:"subject"`
	Message    string         `json:"message"`
	Status     TicketStatus   `json:"status,omitempty"`
	Priority   TicketPriority `json:"priority,omitempty"`
}

// TicketPatch never carries updated_at; the repository stamps it on every
// update, including empty patches.
type TicketPatch struct {
	CustomerID *string         `json:"customer_id,omitempty"`
	Subject    *string         `json:"subject,omitempty"`
	Message    *string         `json:"message,omitempty"`
	Status     *TicketStatus   `json:"status,omitempty"`
	Priority   *TicketPriority `json:"priority,omitempty"`
}
