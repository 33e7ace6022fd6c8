// Package sync keeps a per-tenant in-memory collection of one resource table
// consistent with durable storage. The collection is rebuilt from a fetch on
// start and corrected by every change-stream event; it is a cache, not the
// source of truth.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	stdsync "sync"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/samber/lo"

	"opsboard/entity"
	"opsboard/metrics"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateErrored       State = "errored"
)

type Entity interface {
	EntityID() string
	TenantID() string
}

// Store is the slice of the data gateway one synchronizer needs.
type Store[E Entity, I any, P any] interface {
	ListByBusiness(ctx context.Context, businessID string) ([]E, error)
	Create(ctx context.Context, input I) (E, error)
	Update(ctx context.Context, id string, patch P) (E, error)
	Delete(ctx context.Context, id string) error
}

type Config[E Entity, I any, P any] struct {
	Table      string
	BusinessID string
	Store      Store[E, I, P]

	// Subscriber delivers the change stream for Table. The synchronizer owns
	// it and closes it on Close.
	Subscriber message.Subscriber

	// Less defines the presentation ordering of List.
	Less func(a, b E) bool

	// RefetchOnChange re-fetches the whole collection on every event instead
	// of patching in place. Used where list rows carry joined fields the
	// change payload does not include.
	RefetchOnChange bool
}

type Synchronizer[E Entity, I any, P any] struct {
	cfg Config[E, I, P]

	mu    stdsync.RWMutex
	items []E
	state State

	cancel context.CancelFunc
	done   chan struct{}
}

func New[E Entity, I any, P any](cfg Config[E, I, P]) *Synchronizer[E, I, P] {
	if cfg.Store == nil {
		panic("store is nil")
	}
	if cfg.Less == nil {
		panic("less is nil")
	}

	return &Synchronizer[E, I, P]{
		cfg:   cfg,
		state: StateUninitialized,
		done:  make(chan struct{}),
	}
}

// Start performs the initial load and begins consuming the change stream.
// With no business id resolved the synchronizer becomes Ready with an empty
// collection and never fetches or subscribes.
func (s *Synchronizer[E, I, P]) Start(ctx context.Context) error {
	if s.cfg.BusinessID == "" {
		s.setState(StateReady)
		close(s.done)
		return nil
	}

	s.setState(StateLoading)

	items, err := s.cfg.Store.ListByBusiness(ctx, s.cfg.BusinessID)
	if err != nil {
		s.setState(StateErrored)
		close(s.done)
		return fmt.Errorf("could not load %s: %w", s.cfg.Table, err)
	}
	s.replace(items)
	s.setState(StateReady)

	subCtx, cancel := context.WithCancel(ctx)
	messages, err := s.cfg.Subscriber.Subscribe(subCtx, entity.ChangeTopic(s.cfg.Table))
	if err != nil {
		cancel()
		s.setState(StateErrored)
		close(s.done)
		return fmt.Errorf("could not subscribe to %s changes: %w", s.cfg.Table, err)
	}
	s.cancel = cancel

	go s.consume(subCtx, messages)

	return nil
}

// Close tears down the subscription. Events arriving afterwards no longer
// mutate the collection. Closing a synchronizer that was never started is a
// no-op.
func (s *Synchronizer[E, I, P]) Close() error {
	if s.cancel != nil {
		s.cancel()
	}

	var err error
	if s.cfg.Subscriber != nil {
		err = s.cfg.Subscriber.Close()
	}

	// done is only ever closed by Start and its consumer goroutine
	if s.State() != StateUninitialized {
		<-s.done
	}
	return err
}

func (s *Synchronizer[E, I, P]) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// List returns a copy of the collection in the resource's presentation order.
func (s *Synchronizer[E, I, P]) List() []E {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]E, len(s.items))
	copy(out, s.items)
	return out
}

// Create sends the insert to the gateway. The created record is returned, but
// the visible collection changes only when the change-stream echo arrives;
// there is no optimistic local insert to reconcile against.
func (s *Synchronizer[E, I, P]) Create(ctx context.Context, input I) (E, error) {
	var zero E
	if s.cfg.BusinessID == "" {
		return zero, entity.ErrMissingTenantContext
	}

	created, err := s.cfg.Store.Create(ctx, input)
	if err != nil {
		return zero, fmt.Errorf("could not create %s record: %w", s.cfg.Table, err)
	}
	return created, nil
}

func (s *Synchronizer[E, I, P]) Update(ctx context.Context, id string, patch P) (E, error) {
	var zero E
	if s.cfg.BusinessID == "" {
		return zero, entity.ErrMissingTenantContext
	}

	updated, err := s.cfg.Store.Update(ctx, id, patch)
	if err != nil {
		return zero, fmt.Errorf("could not update %s record: %w", s.cfg.Table, err)
	}
	return updated, nil
}

func (s *Synchronizer[E, I, P]) Delete(ctx context.Context, id string) error {
	if s.cfg.BusinessID == "" {
		return entity.ErrMissingTenantContext
	}

	if err := s.cfg.Store.Delete(ctx, id); err != nil {
		return fmt.Errorf("could not delete %s record: %w", s.cfg.Table, err)
	}
	return nil
}

func (s *Synchronizer[E, I, P]) consume(ctx context.Context, messages <-chan *message.Message) {
	defer close(s.done)

	for msg := range messages {
		s.handleMessage(ctx, msg)
		msg.Ack()
	}
}

func (s *Synchronizer[E, I, P]) handleMessage(ctx context.Context, msg *message.Message) {
	var change entity.Change
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		log.FromContext(ctx).
			WithError(err).
			WithField("table", s.cfg.Table).
			Error("Discarding malformed change event")
		return
	}

	// the stream is filtered server-side; a foreign-tenant event is ignored
	if change.BusinessID != s.cfg.BusinessID {
		return
	}

	if s.cfg.RefetchOnChange {
		metrics.CollectionRefetches.WithLabelValues(s.cfg.Table).Inc()

		items, err := s.cfg.Store.ListByBusiness(ctx, s.cfg.BusinessID)
		if err != nil {
			log.FromContext(ctx).
				WithError(err).
				WithField("table", s.cfg.Table).
				Error("Re-fetch after change failed, keeping previous collection")
			return
		}
		s.replace(items)
		return
	}

	s.apply(ctx, change)
}

// apply is idempotent by identity: duplicate inserts, updates for unknown
// records and deletes of absent records are all no-ops.
func (s *Synchronizer[E, I, P]) apply(ctx context.Context, change entity.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics.ChangesApplied.WithLabelValues(s.cfg.Table, string(change.Kind)).Inc()

	switch change.Kind {
	case entity.ChangeInsert:
		if _, ok := s.findLocked(change.EntityID); ok {
			return
		}
		var item E
		if err := json.Unmarshal(change.Row, &item); err != nil {
			log.FromContext(ctx).WithError(err).Error("Discarding undecodable insert row")
			return
		}
		s.items = append(s.items, item)
		s.sortLocked()

	case entity.ChangeUpdate:
		i, ok := s.findLocked(change.EntityID)
		if !ok {
			return
		}
		// merge the partial row over the held record, keeping fields the
		// payload does not carry
		merged := s.items[i]
		if err := json.Unmarshal(change.Row, &merged); err != nil {
			log.FromContext(ctx).WithError(err).Error("Discarding undecodable update row")
			return
		}
		s.items[i] = merged
		s.sortLocked()

	case entity.ChangeDelete:
		i, ok := s.findLocked(change.EntityID)
		if !ok {
			return
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
}

func (s *Synchronizer[E, I, P]) findLocked(id string) (int, bool) {
	_, i, ok := lo.FindIndexOf(s.items, func(item E) bool {
		return item.EntityID() == id
	})
	return i, ok
}

func (s *Synchronizer[E, I, P]) sortLocked() {
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.cfg.Less(s.items[i], s.items[j])
	})
}

func (s *Synchronizer[E, I, P]) replace(items []E) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.sortLocked()
}

func (s *Synchronizer[E, I, P]) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}
