package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lithammer/shortuuid/v3"

	"opsboard/entity"
)

type PaymentsMock struct {
	mock     sync.Mutex
	Sessions map[string]entity.CheckoutSession
}

func (c *PaymentsMock) CreateCheckoutSession(ctx context.Context, invoice entity.Invoice) (entity.CheckoutSession, error) {
	c.mock.Lock()
	defer c.mock.Unlock()
	if c.Sessions == nil {
		c.Sessions = make(map[string]entity.CheckoutSession)
	}

	sess := entity.CheckoutSession{
		ID:  "cs_test_" + shortuuid.New(),
		URL: "https://checkout.example.com/pay/" + invoice.ID,
	}
	c.Sessions[invoice.ID] = sess

	return sess, nil
}

// ConstructWebhookEvent accepts any payload carrying a JSON-encoded
// PaymentWebhookEvent and rejects the signature "invalid".
func (c *PaymentsMock) ConstructWebhookEvent(payload []byte, signature string) (entity.PaymentWebhookEvent, error) {
	if signature == "" || signature == "invalid" {
		return entity.PaymentWebhookEvent{}, fmt.Errorf("could not verify webhook signature")
	}

	var event entity.PaymentWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return entity.PaymentWebhookEvent{}, err
	}

	return event, nil
}
