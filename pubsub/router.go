package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"

	"opsboard/db/changelog"
	"opsboard/entity"
	"opsboard/pubsub/event"
	"opsboard/pubsub/outbox"
)

type ChangeLog interface {
	Store(ctx context.Context, entry changelog.Entry) error
}

func NewWatermillRouter(
	postgresSubscriber message.Subscriber,
	redisPublisher message.Publisher,
	splitterSubscriber message.Subscriber,
	changeLogSubscriber message.Subscriber,
	eventProcessorConfig cqrs.EventProcessorConfig,
	eventHandler event.Handler,
	changeLog ChangeLog,
	watermillLogger watermill.LoggerAdapter,
) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermillLogger)
	if err != nil {
		return nil, fmt.Errorf("could not create router: %w", err)
	}

	useMiddlewares(router, watermillLogger)

	outbox.AddForwarderHandler(postgresSubscriber, redisPublisher, router, watermillLogger)

	eventProcessor, err := cqrs.NewEventProcessorWithConfig(router, eventProcessorConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create event processor: %w", err)
	}

	err = eventProcessor.AddHandlers(
		eventHandler.NotifyAutomationHandler(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not add handlers to event processor: %w", err)
	}

	// every dashboard instance subscribes to its own tables only, so the
	// firehose is fanned out into per-table topics
	router.AddNoPublisherHandler(
		"changes_splitter",
		entity.ChangesTopic,
		splitterSubscriber,
		func(msg *message.Message) error {
			table := msg.Metadata.Get("table")
			if table == "" {
				return fmt.Errorf("could not get table name from message")
			}

			return redisPublisher.Publish(entity.ChangeTopic(table), msg)
		},
	)

	router.AddNoPublisherHandler(
		"store_to_change_log",
		entity.ChangesTopic,
		changeLogSubscriber,
		func(msg *message.Message) error {
			var change entity.Change
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				return fmt.Errorf("could not unmarshal change: %w", err)
			}

			return changeLog.Store(
				msg.Context(),
				changelog.Entry{
					EventID:     change.Header.ID,
					PublishedAt: change.Header.PublishedAt,
					TableName:   change.Table,
					Kind:        string(change.Kind),
					BusinessID:  change.BusinessID,
					EntityID:    change.EntityID,
					Payload:     json.RawMessage(msg.Payload),
				},
			)
		},
	)

	return router, nil
}
