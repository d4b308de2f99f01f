// Package feedhub fans row-level change events out to realtime subscribers.
// Every write path publishes here; the websocket handler subscribes on behalf
// of connected clients.
package feedhub

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/campusfix/campusfix/internal/logging"
	"github.com/campusfix/campusfix/internal/models"
)

// Predicate scopes a subscription to rows where Field == Value, mirroring the
// subscribe frame clients send.
type Predicate struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// subscriberBuffer bounds the per-subscriber queue. A subscriber that falls
// this far behind is dropped; the client notices the closed channel and
// re-establishes with a fresh bulk fetch.
const subscriberBuffer = 64

type subscriber struct {
	collection models.Collection
	predicate  *Predicate
	ch         chan models.ChangeEvent
}

// Hub is the in-process change feed. Events are assigned ulid sequence ids at
// publish time, so delivery order per subscriber matches publish order.
type Hub struct {
	logger logging.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		logger: logger.With("module", "feedhub"),
		subs:   map[*subscriber]struct{}{},
	}
}

// Subscription delivers matching events on C until Close is called or the hub
// drops the subscriber for falling behind. C is closed in both cases.
type Subscription struct {
	C <-chan models.ChangeEvent

	hub  *Hub
	sub  *subscriber
	once sync.Once
}

// Close tears the subscription down. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.sub, false)
	})
}

// Subscribe registers interest in one collection, optionally narrowed by an
// equality predicate.
func (h *Hub) Subscribe(collection models.Collection, predicate *Predicate) *Subscription {
	sub := &subscriber{
		collection: collection,
		predicate:  predicate,
		ch:         make(chan models.ChangeEvent, subscriberBuffer),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return &Subscription{C: sub.ch, hub: h, sub: sub}
}

func (h *Hub) remove(sub *subscriber, overflow bool) {
	h.mu.Lock()
	_, present := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()
	if present {
		close(sub.ch)
		if overflow {
			h.logger.Warn(context.Background(), "dropping slow feed subscriber",
				"collection", sub.collection)
		}
	}
}

// Publish emits one event to every matching subscriber. Delete events carry
// no row and cannot be matched against a predicate, so they go to every
// subscriber of the collection; clients treat deletes of unknown rows as
// no-ops.
func (h *Hub) Publish(kind models.EventKind, collection models.Collection, rowID string, entity models.Entity) {
	ev := models.ChangeEvent{
		Seq:        ulid.Make().String(),
		Kind:       kind,
		Collection: collection,
		RowID:      rowID,
		Entity:     entity,
	}

	h.mu.Lock()
	var overflowed []*subscriber
	for sub := range h.subs {
		if sub.collection != collection {
			continue
		}
		if sub.predicate != nil && entity != nil {
			v, ok := entity.Field(sub.predicate.Field)
			if !ok || v != sub.predicate.Value {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
			overflowed = append(overflowed, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range overflowed {
		h.remove(sub, true)
	}
}
