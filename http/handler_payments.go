package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"

	"opsboard/entity"
)

type checkoutSessionRequest struct {
	InvoiceID string `json:"invoiceId"`
}

type checkoutSessionResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s Server) PostCheckoutSession(c echo.Context) error {
	ctx := c.Request().Context()

	businessID := s.resolver.BusinessIDFromToken(ctx, bearerToken(c))
	if businessID == "" {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Missing authorization header"})
	}

	var request checkoutSessionRequest
	if err := c.Bind(&request); err != nil {
		return err
	}
	if request.InvoiceID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invoiceId is required"})
	}

	invoice, err := s.invoicesRepo.GetWithCustomer(ctx, request.InvoiceID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "Invoice not found"})
		}
		return fmt.Errorf("could not load invoice: %w", err)
	}
	if invoice.BusinessID != businessID {
		// foreign invoices look exactly like missing ones
		return c.JSON(http.StatusNotFound, errorResponse{Error: "Invoice not found"})
	}

	sess, err := s.payments.CreateCheckoutSession(ctx, invoice)
	if err != nil {
		log.FromContext(ctx).
			WithError(err).
			WithField("invoice_id", invoice.ID).
			Error("Could not create checkout session")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to create payment session"})
	}

	if _, err := s.invoicesRepo.RecordCheckoutSession(ctx, invoice.ID, sess.ID, sess.URL); err != nil {
		return fmt.Errorf("could not record checkout session: %w", err)
	}

	return c.JSON(http.StatusOK, checkoutSessionResponse{URL: sess.URL})
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	return token
}
