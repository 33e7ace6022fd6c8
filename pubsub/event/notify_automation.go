package event

import (
	"context"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"opsboard/entity"
)

type AutomationService interface {
	Enabled() bool
	NotifyInvoicePaid(ctx context.Context, event entity.InvoiceMarkedPaid) error
}

type Handler struct {
	automationService AutomationService
}

func NewHandler(automationService AutomationService) Handler {
	if automationService == nil {
		panic("missing automation service")
	}

	return Handler{
		automationService: automationService,
	}
}

// NotifyAutomationHandler forwards paid invoices to the automation pipeline.
// Delivery is best-effort: failures are logged and the message is acked, a
// dead automation endpoint must never hold up the stream.
func (h Handler) NotifyAutomationHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"NotifyAutomationHandler",
		func(ctx context.Context, event *entity.InvoiceMarkedPaid) error {
			if !h.automationService.Enabled() {
				return nil
			}

			log.FromContext(ctx).
				WithField("invoice_id", event.InvoiceID).
				Info("Notifying automation pipeline about paid invoice")

			if err := h.automationService.NotifyInvoicePaid(ctx, *event); err != nil {
				log.FromContext(ctx).
					WithError(err).
					WithField("invoice_id", event.InvoiceID).
					Error("Could not notify automation pipeline")
			}

			return nil
		},
	)
}
