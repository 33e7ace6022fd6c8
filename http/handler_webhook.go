package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"

	"opsboard/entity"
)

// PostPaymentWebhook processes provider callbacks. The provider retries on
// non-2xx, so replays of completed checkouts must come back 200 without
// changing anything.
func (s Server) PostPaymentWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	signature := c.Request().Header.Get("Stripe-Signature")
	if signature == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing Stripe-Signature header"})
	}

	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fmt.Errorf("could not read webhook body: %w", err)
	}

	event, err := s.payments.ConstructWebhookEvent(payload, signature)
	if err != nil {
		log.FromContext(ctx).WithError(err).Warn("Rejected payment webhook")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid signature"})
	}

	if event.Type != entity.WebhookCheckoutCompleted {
		// nothing to do for other event types
		return c.String(http.StatusOK, "ok")
	}

	if event.InvoiceID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing invoice_id metadata"})
	}

	if err := s.invoicesRepo.MarkPaid(ctx, event.InvoiceID); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			// an event for an invoice we no longer hold must still be acked,
			// or the provider retries it forever
			log.FromContext(ctx).
				WithField("invoice_id", event.InvoiceID).
				Warn("Acknowledging payment event for unknown invoice")
			return c.String(http.StatusOK, "ok")
		}
		return fmt.Errorf("could not mark invoice as paid: %w", err)
	}

	log.FromContext(ctx).
		WithField("invoice_id", event.InvoiceID).
		WithField("session_id", event.SessionID).
		Info("Invoice paid")

	return c.String(http.StatusOK, "ok")
}
