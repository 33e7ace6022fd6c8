package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// The dashboard read endpoints all follow the same shape: the tenant comes
// from the bearer token, unresolvable tokens get 401, and the rows come back
// in the store's canonical order.

func (s Server) GetBookings(c echo.Context) error {
	businessID := s.resolver.BusinessIDFromToken(c.Request().Context(), bearerToken(c))
	if businessID == "" {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Missing authorization header"})
	}

	bookings, err := s.bookingsRepo.ListByBusiness(c.Request().Context(), businessID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, bookings)
}

func (s Server) GetCustomers(c echo.Context) error {
	businessID := s.resolver.BusinessIDFromToken(c.Request().Context(), bearerToken(c))
	if businessID == "" {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Missing authorization header"})
	}

	customers, err := s.customersRepo.ListByBusiness(c.Request().Context(), businessID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, customers)
}

func (s Server) GetInvoices(c echo.Context) error {
	businessID := s.resolver.BusinessIDFromToken(c.Request().Context(), bearerToken(c))
	if businessID == "" {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Missing authorization header"})
	}

	invoices, err := s.invoicesRepo.ListByBusiness(c.Request().Context(), businessID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, invoices)
}

func (s Server) GetTickets(c echo.Context) error {
	businessID := s.resolver.BusinessIDFromToken(c.Request().Context(), bearerToken(c))
	if businessID == "" {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Missing authorization header"})
	}

	tickets, err := s.ticketsRepo.ListByBusiness(c.Request().Context(), businessID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tickets)
}

// GetChangeLog serves the tenant's audit trail of stream events, oldest first.
func (s Server) GetChangeLog(c echo.Context) error {
	businessID := s.resolver.BusinessIDFromToken(c.Request().Context(), bearerToken(c))
	if businessID == "" {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Missing authorization header"})
	}

	entries, err := s.changeLogRepo.ByBusiness(c.Request().Context(), businessID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}
