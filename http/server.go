package http

import (
	"context"
	"errors"
	"net/http"

	echoHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"opsboard/db/changelog"
	"opsboard/entity"
)

type PaymentsProvider interface {
	CreateCheckoutSession(ctx context.Context, invoice entity.Invoice) (entity.CheckoutSession, error)
	ConstructWebhookEvent(payload []byte, signature string) (entity.PaymentWebhookEvent, error)
}

type InvoicesRepository interface {
	ListByBusiness(ctx context.Context, businessID string) ([]entity.Invoice, error)
	GetWithCustomer(ctx context.Context, id string) (entity.Invoice, error)
	RecordCheckoutSession(ctx context.Context, id, sessionID, checkoutURL string) (entity.Invoice, error)
	MarkPaid(ctx context.Context, id string) error
}

type BookingsRepository interface {
	ListByBusiness(ctx context.Context, businessID string) ([]entity.Booking, error)
}

type CustomersRepository interface {
	ListByBusiness(ctx context.Context, businessID string) ([]entity.Customer, error)
}

type TicketsRepository interface {
	ListByBusiness(ctx context.Context, businessID string) ([]entity.Ticket, error)
}

type ChangeLogRepository interface {
	ByBusiness(ctx context.Context, businessID string) ([]changelog.Entry, error)
}

type TenantResolver interface {
	BusinessIDFromToken(ctx context.Context, token string) string
}

type Server struct {
	addr          string
	e             *echo.Echo
	payments      PaymentsProvider
	invoicesRepo  InvoicesRepository
	bookingsRepo  BookingsRepository
	customersRepo CustomersRepository
	ticketsRepo   TicketsRepository
	changeLogRepo ChangeLogRepository
	resolver      TenantResolver
}

func NewServer(
	addr string,
	payments PaymentsProvider,
	invoicesRepo InvoicesRepository,
	bookingsRepo BookingsRepository,
	customersRepo CustomersRepository,
	ticketsRepo TicketsRepository,
	changeLogRepo ChangeLogRepository,
	resolver TenantResolver,
) *Server {
	e := echoHTTP.NewEcho()
	e.Use(otelecho.Middleware("opsboard"))

	server := &Server{
		addr:          addr,
		e:             e,
		payments:      payments,
		invoicesRepo:  invoicesRepo,
		bookingsRepo:  bookingsRepo,
		customersRepo: customersRepo,
		ticketsRepo:   ticketsRepo,
		changeLogRepo: changeLogRepo,
		resolver:      resolver,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/payments/checkout-sessions", server.PostCheckoutSession)
	e.POST("/payments/webhook", server.PostPaymentWebhook)

	e.GET("/bookings", server.GetBookings)
	e.GET("/customers", server.GetCustomers)
	e.GET("/invoices", server.GetInvoices)
	e.GET("/tickets", server.GetTickets)
	e.GET("/change-log", server.GetChangeLog)

	return server
}

func (s Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		err := s.e.Shutdown(ctx)
		if err != nil {
			log.FromContext(ctx).WithError(err).Error("failed to shutdown HTTP server")
		}
	}()
	log.FromContext(ctx).WithField("addr", s.addr).Info("[HTTP] server listening")
	if err := s.e.Start(s.addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
