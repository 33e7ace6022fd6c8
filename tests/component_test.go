package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"opsboard/auth"
	"opsboard/db/bookings"
	"opsboard/db/changelog"
	"opsboard/db/customers"
	"opsboard/db/invoices"
	"opsboard/db/profiles"
	"opsboard/entity"
	"opsboard/gateway"
	"opsboard/payments"
	"opsboard/service"
	"opsboard/sync"
)

var (
	httpAddress = ":8080"
	baseURL     = "http://localhost:8080"
	jwtSecret   = "component-test-secret"
)

func TestComponent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("github.com/testcontainers/testcontainers-go.(*Reaper).Connect.func1"))
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbconn, err := sqlx.Open("postgres", postgresURL)
	require.NoError(t, err)
	defer dbconn.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
	defer redisClient.Close()

	paymentsClient := &gateway.PaymentsMock{}
	automationClient := &gateway.AutomationMock{}

	done := make(chan struct{})
	go func() {
		<-done
		e := syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		require.NoError(t, e)
	}()

	finished := make(chan struct{})
	go func() {
		svc := service.New(
			httpAddress,
			dbconn,
			redisClient,
			paymentsClient,
			automationClient,
			jwtSecret,
		)
		assert.NoError(t, svc.Run(ctx))
		close(finished)
	}()

	defer func() {
		close(done)
		<-finished
	}()

	waitForHttpServer(t)

	// tenant setup: a user with a business profile
	userID := uuid.NewString()
	businessID := uuid.NewString()
	require.NoError(t, profiles.NewPostgresRepository(dbconn).Store(context.Background(), userID, businessID))

	token, err := auth.CreateAccessToken(jwtSecret, userID, "owner@example.com", time.Hour)
	require.NoError(t, err)

	email := "ada@example.com"
	customer, err := customers.NewPostgresRepository(dbconn).Create(context.Background(), entity.CustomerInput{
		BusinessID: businessID,
		FullName:   "Ada Lovelace",
		Email:      &email,
	})
	require.NoError(t, err)

	invoicesRepo := invoices.NewPostgresRepository(dbconn)
	invoice, err := invoicesRepo.Create(context.Background(), entity.InvoiceInput{
		BusinessID:  businessID,
		CustomerID:  &customer.ID,
		AmountCents: 4999,
	})
	require.NoError(t, err)

	t.Run("checkout requires auth", func(t *testing.T) {
		_, err := payments.NewCoordinator(baseURL).RequestCheckout(context.Background(), invoice.ID, "")
		assert.ErrorIs(t, err, entity.ErrCheckoutSessionFailed)
	})

	t.Run("checkout of unknown invoice", func(t *testing.T) {
		_, err := payments.NewCoordinator(baseURL).RequestCheckout(context.Background(), uuid.NewString(), token)
		assert.ErrorIs(t, err, entity.ErrCheckoutSessionFailed)
	})

	var checkoutURL string
	t.Run("checkout session is created", func(t *testing.T) {
		checkoutURL, err = payments.NewCoordinator(baseURL).RequestCheckout(context.Background(), invoice.ID, token)
		require.NoError(t, err)

		sess, ok := paymentsClient.Sessions[invoice.ID]
		require.True(t, ok, "no session created for invoice")
		assert.Equal(t, sess.URL, checkoutURL)

		sent, err := invoicesRepo.GetWithCustomer(context.Background(), invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.InvoiceSent, sent.Status)
		require.NotNil(t, sent.CheckoutSessionID)
		assert.Equal(t, sess.ID, *sent.CheckoutSessionID)
	})

	t.Run("webhook rejects missing signature", func(t *testing.T) {
		resp := sendWebhook(t, entity.PaymentWebhookEvent{
			Type:      entity.WebhookCheckoutCompleted,
			InvoiceID: invoice.ID,
		}, "")
		assert.Equal(t, http.StatusBadRequest, resp)
	})

	t.Run("webhook rejects invalid signature", func(t *testing.T) {
		resp := sendWebhook(t, entity.PaymentWebhookEvent{
			Type:      entity.WebhookCheckoutCompleted,
			InvoiceID: invoice.ID,
		}, "invalid")
		assert.Equal(t, http.StatusBadRequest, resp)
	})

	t.Run("webhook rejects missing invoice metadata", func(t *testing.T) {
		resp := sendWebhook(t, entity.PaymentWebhookEvent{
			Type: entity.WebhookCheckoutCompleted,
		}, "t=1,v1=valid")
		assert.Equal(t, http.StatusBadRequest, resp)
	})

	t.Run("webhook for unknown invoice is acknowledged", func(t *testing.T) {
		resp := sendWebhook(t, entity.PaymentWebhookEvent{
			Type:      entity.WebhookCheckoutCompleted,
			InvoiceID: uuid.NewString(),
		}, "t=1,v1=valid")
		assert.Equal(t, http.StatusOK, resp)
	})

	t.Run("webhook marks invoice paid, replays included", func(t *testing.T) {
		event := entity.PaymentWebhookEvent{
			Type:       entity.WebhookCheckoutCompleted,
			SessionID:  *must(invoicesRepo.GetWithCustomer(context.Background(), invoice.ID)).CheckoutSessionID,
			InvoiceID:  invoice.ID,
			BusinessID: businessID,
		}

		// at-least-once delivery
		for i := 0; i < 3; i++ {
			resp := sendWebhook(t, event, "t=1,v1=valid")
			require.Equal(t, http.StatusOK, resp)
		}

		paid, err := invoicesRepo.GetWithCustomer(context.Background(), invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.InvoicePaid, paid.Status)
	})

	t.Run("automation pipeline is notified once", func(t *testing.T) {
		assert.EventuallyWithT(
			t,
			func(t *assert.CollectT) {
				assert.Len(t, automationClient.NotifiedInvoiceIDs(), 1)
			},
			10*time.Second,
			100*time.Millisecond,
		)

		assert.Equal(t, []string{invoice.ID}, automationClient.NotifiedInvoiceIDs())
	})

	t.Run("dashboard collection follows the change stream", func(t *testing.T) {
		subscriber, err := sync.NewChangeStreamSubscriber(redisClient, entity.TableBookings, watermill.NopLogger{})
		require.NoError(t, err)

		synchronizer := sync.NewBookingsSynchronizer(
			bookings.NewPostgresRepository(dbconn),
			subscriber,
			businessID,
		)
		require.NoError(t, synchronizer.Start(context.Background()))
		defer synchronizer.Close()

		created, err := synchronizer.Create(context.Background(), entity.BookingInput{
			BusinessID:   businessID,
			CustomerName: "Walk In",
			Service:      "Repair",
			StartsAt:     time.Now().UTC().Add(time.Hour),
		})
		require.NoError(t, err)

		// the booking appears only once its change event comes back
		assert.Eventually(t, func() bool {
			for _, b := range synchronizer.List() {
				if b.ID == created.ID {
					return true
				}
			}
			return false
		}, 10*time.Second, 100*time.Millisecond)
	})

	t.Run("change log audits the stream", func(t *testing.T) {
		assert.EventuallyWithT(
			t,
			func(t *assert.CollectT) {
				req, err := http.NewRequest(http.MethodGet, baseURL+"/change-log", nil)
				if !assert.NoError(t, err) {
					return
				}
				req.Header.Set("Authorization", "Bearer "+token)

				resp, err := http.DefaultClient.Do(req)
				if !assert.NoError(t, err) {
					return
				}
				defer resp.Body.Close()
				if !assert.Equal(t, http.StatusOK, resp.StatusCode) {
					return
				}

				var entries []changelog.Entry
				if !assert.NoError(t, json.NewDecoder(resp.Body).Decode(&entries)) {
					return
				}
				assert.NotEmpty(t, entries)
			},
			10*time.Second,
			100*time.Millisecond,
		)
	})

	t.Run("dashboard read endpoints", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/invoices", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var list []entity.Invoice
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		require.Len(t, list, 1)
		assert.Equal(t, entity.InvoicePaid, list[0].Status)

		// no token means no tenant
		noAuth, err := http.Get(baseURL + "/invoices")
		require.NoError(t, err)
		defer noAuth.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, noAuth.StatusCode)
	})
}

func sendWebhook(t *testing.T, event entity.PaymentWebhookEvent, signature string) int {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/payments/webhook", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode
}

func waitForHttpServer(t *testing.T) {
	t.Helper()

	require.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			resp, err := http.Get(baseURL + "/health")
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()

			if assert.Less(t, resp.StatusCode, 300, "API not ready, http status: %d", resp.StatusCode) {
				return
			}
		},
		time.Second*10,
		time.Millisecond*50,
	)
}

func must(invoice entity.Invoice, err error) entity.Invoice {
	if err != nil {
		panic(err)
	}
	return invoice
}
