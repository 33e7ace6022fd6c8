package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lithammer/shortuuid/v3"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"opsboard/entity"
)

// NewChangeStreamSubscriber builds a per-instance subscriber: every dashboard
// instance consumes the full change stream of its table, so consumer groups
// must not be shared.
func NewChangeStreamSubscriber(rdb *redis.Client, table string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        rdb,
		ConsumerGroup: "sync." + table + "." + shortuuid.New(),
	}, logger)
}

type Bookings = Synchronizer[entity.Booking, entity.BookingInput, entity.BookingPatch]

func NewBookingsSynchronizer(
	store Store[entity.Booking, entity.BookingInput, entity.BookingPatch],
	subscriber message.Subscriber,
	businessID string,
) *Bookings {
	return New(Config[entity.Booking, entity.BookingInput, entity.BookingPatch]{
		Table:      entity.TableBookings,
		BusinessID: businessID,
		Store:      store,
		Subscriber: subscriber,
		Less: func(a, b entity.Booking) bool {
			return a.StartsAt.Before(b.StartsAt)
		},
	})
}

type Customers = Synchronizer[entity.Customer, entity.CustomerInput, entity.CustomerPatch]

func NewCustomersSynchronizer(
	store Store[entity.Customer, entity.CustomerInput, entity.CustomerPatch],
	subscriber message.Subscriber,
	businessID string,
) *Customers {
	return New(Config[entity.Customer, entity.CustomerInput, entity.CustomerPatch]{
		Table:      entity.TableCustomers,
		BusinessID: businessID,
		Store:      store,
		Subscriber: subscriber,
		Less: func(a, b entity.Customer) bool {
			return a.FullName < b.FullName
		},
	})
}

// Invoices adds the decimal-amount create the invoice form submits.
type Invoices struct {
	*Synchronizer[entity.Invoice, entity.InvoiceInput, entity.InvoicePatch]
}

// NewInvoicesSynchronizer re-fetches on every change: invoice rows carry a
// joined customer that change payloads do not include.
func NewInvoicesSynchronizer(
	store Store[entity.Invoice, entity.InvoiceInput, entity.InvoicePatch],
	subscriber message.Subscriber,
	businessID string,
) *Invoices {
	return &Invoices{
		Synchronizer: New(Config[entity.Invoice, entity.InvoiceInput, entity.InvoicePatch]{
			Table:           entity.TableInvoices,
			BusinessID:      businessID,
			Store:           store,
			Subscriber:      subscriber,
			RefetchOnChange: true,
			Less: func(a, b entity.Invoice) bool {
				return a.CreatedAt.After(b.CreatedAt)
			},
		}),
	}
}

// CreateFromDecimal converts the submitted dollar amount to cents before the
// insert reaches the gateway. An invalid amount never leaves the process.
func (i *Invoices) CreateFromDecimal(ctx context.Context, customerID *string, amount string, dueDate *time.Time) (entity.Invoice, error) {
	cents, err := entity.CentsFromDecimal(amount)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("invalid invoice amount: %w", err)
	}

	return i.Create(ctx, entity.InvoiceInput{
		BusinessID:  i.cfg.BusinessID,
		CustomerID:  customerID,
		AmountCents: cents,
		DueDate:     dueDate,
	})
}

// Tickets adds the open-ticket count the support dashboard shows.
type Tickets struct {
	*Synchronizer[entity.Ticket, entity.TicketInput, entity.TicketPatch]
}

func NewTicketsSynchronizer(
	store Store[entity.Ticket, entity.TicketInput, entity.TicketPatch],
	subscriber message.Subscriber,
	businessID string,
) *Tickets {
	return &Tickets{
		Synchronizer: New(Config[entity.Ticket, entity.TicketInput, entity.TicketPatch]{
			Table:           entity.TableTickets,
			BusinessID:      businessID,
			Store:           store,
			Subscriber:      subscriber,
			RefetchOnChange: true,
			Less: func(a, b entity.Ticket) bool {
				return a.CreatedAt.After(b.CreatedAt)
			},
		}),
	}
}

func (t *Tickets) OpenCount() int {
	return lo.CountBy(t.List(), func(ticket entity.Ticket) bool {
		return ticket.Status == entity.TicketOpen
	})
}
