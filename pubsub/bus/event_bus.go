package bus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"

	"opsboard/pubsub/outbox"
)

func NewEventBus(pub message.Publisher) (*cqrs.EventBus, error) {
	return cqrs.NewEventBusWithConfig(pub, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			return "events." + params.EventName, nil
		},
		Marshaler: cqrs.JSONMarshaler{
			GenerateName: cqrs.StructName,
		},
	})
}

// NewEventBusForTx publishes domain events through the transactional outbox,
// so they are emitted atomically with the row mutation they describe.
func NewEventBusForTx(ctx context.Context, tx *sqlx.Tx) (*cqrs.EventBus, error) {
	publisher, err := outbox.NewPublisherForTx(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("could not create outbox publisher: %w", err)
	}

	return NewEventBus(publisher)
}
