package sync_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsboard/entity"
	"opsboard/sync"
)

type fakeBookingsStore struct {
	mu          stdsync.Mutex
	rows        []entity.Booking
	listCalls   int
	createCalls int
	failDelete  bool
}

func (s *fakeBookingsStore) ListByBusiness(_ context.Context, _ string) ([]entity.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	out := make([]entity.Booking, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *fakeBookingsStore) Create(_ context.Context, input entity.BookingInput) (entity.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	return entity.Booking{
		ID:           uuid.NewString(),
		BusinessID:   input.BusinessID,
		CustomerName: input.CustomerName,
		Service:      input.Service,
		Status:       input.Status,
		StartsAt:     input.StartsAt,
		CreatedAt:    time.Now(),
	}, nil
}

func (s *fakeBookingsStore) Update(_ context.Context, id string, _ entity.BookingPatch) (entity.Booking, error) {
	return entity.Booking{ID: id}, nil
}

func (s *fakeBookingsStore) Delete(_ context.Context, _ string) error {
	if s.failDelete {
		return fmt.Errorf("gateway says no")
	}
	return nil
}

func (s *fakeBookingsStore) calls() (list, create int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls, s.createCalls
}

func newPubSub() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
}

func publishChange(t *testing.T, pubSub *gochannel.GoChannel, change entity.Change) {
	t.Helper()

	payload, err := json.Marshal(change)
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewUUID(), payload)
	require.NoError(t, pubSub.Publish(entity.ChangeTopic(change.Table), msg))
}

func booking(businessID string, startsAt time.Time) entity.Booking {
	return entity.Booking{
		ID:           uuid.NewString(),
		BusinessID:   businessID,
		CustomerName: "Ada Lovelace",
		Service:      "Consultation",
		Status:       entity.BookingScheduled,
		StartsAt:     startsAt,
		CreatedAt:    time.Now(),
	}
}

func insertChange(b entity.Booking) entity.Change {
	row, _ := json.Marshal(b)
	return entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableBookings,
		Kind:       entity.ChangeInsert,
		BusinessID: b.BusinessID,
		EntityID:   b.ID,
		Row:        row,
	}
}

func TestSynchronizer_InsertIsIdempotent(t *testing.T) {
	businessID := uuid.NewString()
	pubSub := newPubSub()
	store := &fakeBookingsStore{}

	s := sync.NewBookingsSynchronizer(store, pubSub, businessID)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	b := booking(businessID, time.Now())
	change := insertChange(b)

	publishChange(t, pubSub, change)
	publishChange(t, pubSub, change)

	assert.Eventually(t, func() bool {
		return len(s.List()) == 1
	}, time.Second, 10*time.Millisecond)

	// give a duplicate a chance to slip in
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, s.List(), 1)
}

func TestSynchronizer_OrdersByStartTime(t *testing.T) {
	businessID := uuid.NewString()
	pubSub := newPubSub()
	store := &fakeBookingsStore{}

	s := sync.NewBookingsSynchronizer(store, pubSub, businessID)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	now := time.Now()
	later := booking(businessID, now.Add(2*time.Hour))
	earlier := booking(businessID, now.Add(time.Hour))

	// insertion order is the reverse of the presentation order
	publishChange(t, pubSub, insertChange(later))
	publishChange(t, pubSub, insertChange(earlier))

	require.Eventually(t, func() bool {
		return len(s.List()) == 2
	}, time.Second, 10*time.Millisecond)

	list := s.List()
	assert.Equal(t, earlier.ID, list[0].ID)
	assert.Equal(t, later.ID, list[1].ID)
}

func TestSynchronizer_UpdateMergesPartialRow(t *testing.T) {
	businessID := uuid.NewString()
	pubSub := newPubSub()
	store := &fakeBookingsStore{}

	s := sync.NewBookingsSynchronizer(store, pubSub, businessID)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	b := booking(businessID, time.Now())
	publishChange(t, pubSub, insertChange(b))

	require.Eventually(t, func() bool {
		return len(s.List()) == 1
	}, time.Second, 10*time.Millisecond)

	partial, _ := json.Marshal(map[string]any{"status": entity.BookingConfirmed})
	publishChange(t, pubSub, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableBookings,
		Kind:       entity.ChangeUpdate,
		BusinessID: businessID,
		EntityID:   b.ID,
		Row:        partial,
	})

	assert.Eventually(t, func() bool {
		list := s.List()
		return len(list) == 1 && list[0].Status == entity.BookingConfirmed
	}, time.Second, 10*time.Millisecond)

	// fields absent from the payload survive the merge
	assert.Equal(t, b.CustomerName, s.List()[0].CustomerName)
	assert.Equal(t, b.Service, s.List()[0].Service)
}

func TestSynchronizer_DeleteAndUnknownIdentityNoop(t *testing.T) {
	businessID := uuid.NewString()
	pubSub := newPubSub()
	store := &fakeBookingsStore{}

	s := sync.NewBookingsSynchronizer(store, pubSub, businessID)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	b := booking(businessID, time.Now())
	publishChange(t, pubSub, insertChange(b))

	require.Eventually(t, func() bool {
		return len(s.List()) == 1
	}, time.Second, 10*time.Millisecond)

	// deleting an identity we do not hold is a no-op
	publishChange(t, pubSub, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableBookings,
		Kind:       entity.ChangeDelete,
		BusinessID: businessID,
		EntityID:   uuid.NewString(),
	})

	deleteChange := entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableBookings,
		Kind:       entity.ChangeDelete,
		BusinessID: businessID,
		EntityID:   b.ID,
	}
	publishChange(t, pubSub, deleteChange)
	publishChange(t, pubSub, deleteChange)

	assert.Eventually(t, func() bool {
		return len(s.List()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSynchronizer_IgnoresForeignTenantEvents(t *testing.T) {
	businessID := uuid.NewString()
	pubSub := newPubSub()
	store := &fakeBookingsStore{}

	s := sync.NewBookingsSynchronizer(store, pubSub, businessID)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	foreign := booking(uuid.NewString(), time.Now())
	publishChange(t, pubSub, insertChange(foreign))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, s.List())
}

func TestSynchronizer_MalformedEventDoesNotKillSubscription(t *testing.T) {
	businessID := uuid.NewString()
	pubSub := newPubSub()
	store := &fakeBookingsStore{}

	s := sync.NewBookingsSynchronizer(store, pubSub, businessID)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	msg := message.NewMessage(watermill.NewUUID(), []byte("not json"))
	require.NoError(t, pubSub.Publish(entity.ChangeTopic(entity.TableBookings), msg))

	b := booking(businessID, time.Now())
	publishChange(t, pubSub, insertChange(b))

	assert.Eventually(t, func() bool {
		return len(s.List()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSynchronizer_MissingTenantGatesMutations(t *testing.T) {
	pubSub := newPubSub()
	store := &fakeBookingsStore{}

	s := sync.NewBookingsSynchronizer(store, pubSub, "")
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, sync.StateReady, s.State())
	assert.Empty(t, s.List())

	_, err := s.Create(context.Background(), entity.BookingInput{CustomerName: "x"})
	assert.ErrorIs(t, err, entity.ErrMissingTenantContext)

	_, err = s.Update(context.Background(), uuid.NewString(), entity.BookingPatch{})
	assert.ErrorIs(t, err, entity.ErrMissingTenantContext)

	err = s.Delete(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, entity.ErrMissingTenantContext)

	// no remote call was ever issued
	listCalls, createCalls := store.calls()
	assert.Zero(t, listCalls)
	assert.Zero(t, createCalls)
}

func TestSynchronizer_FailedDeleteLeavesCollectionIntact(t *testing.T) {
	businessID := uuid.NewString()
	pubSub := newPubSub()

	b := booking(businessID, time.Now())
	store := &fakeBookingsStore{rows: []entity.Booking{b}, failDelete: true}

	s := sync.NewBookingsSynchronizer(store, pubSub, businessID)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	err := s.Delete(context.Background(), b.ID)
	require.Error(t, err)
	assert.False(t, errors.Is(err, entity.ErrMissingTenantContext))

	// no optimistic removal happened
	assert.Len(t, s.List(), 1)
}

func TestSynchronizer_ClosedInstanceIgnoresLateEvents(t *testing.T) {
	businessID := uuid.NewString()
	pubSub := newPubSub()
	store := &fakeBookingsStore{}

	s := sync.NewBookingsSynchronizer(store, pubSub, businessID)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Close())

	payload, _ := json.Marshal(insertChange(booking(businessID, time.Now())))
	msg := message.NewMessage(watermill.NewUUID(), payload)
	// the publisher may already be torn down together with the subscriber
	_ = pubSub.Publish(entity.ChangeTopic(entity.TableBookings), msg)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, s.List())
}

type fakeInvoicesStore struct {
	mu          stdsync.Mutex
	rows        []entity.Invoice
	createCalls int
}

func (s *fakeInvoicesStore) setRows(rows []entity.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

func (s *fakeInvoicesStore) ListByBusiness(_ context.Context, _ string) ([]entity.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Invoice, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *fakeInvoicesStore) Create(_ context.Context, input entity.InvoiceInput) (entity.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	return entity.Invoice{
		ID:          uuid.NewString(),
		BusinessID:  input.BusinessID,
		CustomerID:  input.CustomerID,
		AmountCents: input.AmountCents,
		CreatedAt:   time.Now(),
	}, nil
}

func (s *fakeInvoicesStore) creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

func (s *fakeInvoicesStore) Update(_ context.Context, id string, _ entity.InvoicePatch) (entity.Invoice, error) {
	return entity.Invoice{ID: id}, nil
}

func (s *fakeInvoicesStore) Delete(_ context.Context, _ string) error { return nil }

func TestInvoicesSynchronizer_RefetchesOnEveryChange(t *testing.T) {
	businessID := uuid.NewString()
	pubSub := newPubSub()
	store := &fakeInvoicesStore{}

	s := sync.NewInvoicesSynchronizer(store, pubSub, businessID)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	customerName := "Grace Hopper"
	invoice := entity.Invoice{
		ID:          uuid.NewString(),
		BusinessID:  businessID,
		AmountCents: 4999,
		Currency:    "usd",
		Status:      entity.InvoiceSent,
		CreatedAt:   time.Now(),
		Customer:    &entity.CustomerRef{ID: uuid.NewString(), FullName: customerName},
	}
	store.setRows([]entity.Invoice{invoice})

	// the change payload has no joined customer; the synchronizer must pick
	// it up from the refetch anyway
	partial, _ := json.Marshal(map[string]any{"status": entity.InvoiceSent})
	publishChange(t, pubSub, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableInvoices,
		Kind:       entity.ChangeUpdate,
		BusinessID: businessID,
		EntityID:   invoice.ID,
		Row:        partial,
	})

	assert.Eventually(t, func() bool {
		list := s.List()
		return len(list) == 1 && list[0].Customer != nil && list[0].Customer.FullName == customerName
	}, time.Second, 10*time.Millisecond)
}

func TestTicketsSynchronizer_OpenCount(t *testing.T) {
	businessID := uuid.NewString()
	pubSub := newPubSub()

	store := &fakeTicketsStore{rows: []entity.Ticket{
		{ID: uuid.NewString(), BusinessID: businessID, Status: entity.TicketOpen, CreatedAt: time.Now()},
		{ID: uuid.NewString(), BusinessID: businessID, Status: entity.TicketClosed, CreatedAt: time.Now()},
		{ID: uuid.NewString(), BusinessID: businessID, Status: entity.TicketOpen, CreatedAt: time.Now()},
	}}

	s := sync.NewTicketsSynchronizer(store, pubSub, businessID)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	assert.Equal(t, 2, s.OpenCount())
}

type fakeTicketsStore struct {
	rows []entity.Ticket
}

func (s *fakeTicketsStore) ListByBusiness(_ context.Context, _ string) ([]entity.Ticket, error) {
	return s.rows, nil
}

func (s *fakeTicketsStore) Create(_ context.Context, _ entity.TicketInput) (entity.Ticket, error) {
	return entity.Ticket{}, nil
}

func (s *fakeTicketsStore) Update(_ context.Context, id string, _ entity.TicketPatch) (entity.Ticket, error) {
	return entity.Ticket{ID: id}, nil
}

func (s *fakeTicketsStore) Delete(_ context.Context, _ string) error { return nil }

func TestInvoicesSynchronizer_CreateFromDecimal(t *testing.T) {
	businessID := uuid.NewString()
	pubSub := newPubSub()
	store := &fakeInvoicesStore{}

	s := sync.NewInvoicesSynchronizer(store, pubSub, businessID)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	created, err := s.CreateFromDecimal(context.Background(), nil, "49.99", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4999), created.AmountCents)
	assert.Equal(t, businessID, created.BusinessID)

	// a malformed amount never reaches the gateway
	_, err = s.CreateFromDecimal(context.Background(), nil, "forty-nine", nil)
	require.Error(t, err)
	assert.Equal(t, 1, store.creates())
}

func TestSynchronizer_CloseWithoutStart(t *testing.T) {
	s := sync.NewBookingsSynchronizer(&fakeBookingsStore{}, newPubSub(), uuid.NewString())

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close blocked with no subscription to drain")
	}
}
