package entity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"opsboard/entity"
)

func TestInvoiceEffectiveStatus(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	testCases := []struct {
		name     string
		status   entity.InvoiceStatus
		dueDate  *time.Time
		expected entity.InvoiceStatus
	}{
		{
			name:     "sent past due is overdue",
			status:   entity.InvoiceSent,
			dueDate:  &past,
			expected: entity.InvoiceOverdue,
		},
		{
			name:     "sent before due stays sent",
			status:   entity.InvoiceSent,
			dueDate:  &future,
			expected: entity.InvoiceSent,
		},
		{
			name:     "sent without due date stays sent",
			status:   entity.InvoiceSent,
			expected: entity.InvoiceSent,
		},
		{
			name:     "draft past due stays draft",
			status:   entity.InvoiceDraft,
			dueDate:  &past,
			expected: entity.InvoiceDraft,
		},
		{
			name:     "paid past due stays paid",
			status:   entity.InvoicePaid,
			dueDate:  &past,
			expected: entity.InvoicePaid,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			invoice := entity.Invoice{Status: tc.status, DueDate: tc.dueDate}
			assert.Equal(t, tc.expected, invoice.EffectiveStatus(now))
		})
	}
}
