package entity

import "time"

type Customer struct {
	ID         string    `json:"id" db:"customer_id"`
	BusinessID string    `json:"business_id" db:"business_id"`
	FullName   string    `json:"full_name" db:"full_name"`
	Email      *string   `json:"email,omitempty" db:"email"`
	Phone      *string   `json:"phone,omitempty" db:"phone"`
	Notes      *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

func (c Customer) EntityID() string { return c.ID }
func (c Customer) TenantID() string { return c.BusinessID }

type CustomerInput struct {
	BusinessID string  `json:"business_id"`
	FullName   string  `json:"full_name"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type CustomerPatch struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// CustomerRef is the denormalized slice of a customer carried on joined
// invoice and ticket reads.
type CustomerRef struct {
	ID       string  `json:"id" db:"ref_customer_id"`
	FullName string  `json:"full_name" db:"ref_full_name"`
	Email    *string `json:"email,omitempty" db:"ref_email"`
}
