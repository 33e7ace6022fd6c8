package gateway

import (
	"context"
	"sync"

	"opsboard/entity"
)

type AutomationMock struct {
	mock          sync.Mutex
	Notifications []entity.InvoiceMarkedPaid
}

func (c *AutomationMock) Enabled() bool { return true }

func (c *AutomationMock) NotifyInvoicePaid(ctx context.Context, event entity.InvoiceMarkedPaid) error {
	c.mock.Lock()
	defer c.mock.Unlock()

	c.Notifications = append(c.Notifications, event)

	return nil
}

func (c *AutomationMock) NotifiedInvoiceIDs() []string {
	c.mock.Lock()
	defer c.mock.Unlock()

	ids := make([]string, 0, len(c.Notifications))
	for _, n := range c.Notifications {
		ids = append(ids, n.InvoiceID)
	}
	return ids
}
