// Package feed maintains realtime change-feed subscriptions. Each
// subscription owns one websocket channel scoped to a collection and an
// optional equality predicate, and delivers row-level change events to a
// handler in arrival order until torn down.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/campusfix/campusfix/internal/logging"
	"github.com/campusfix/campusfix/internal/models"
)

// Handler receives change events. It runs on the subscription's read pump;
// events for one subscription are never delivered concurrently.
type Handler func(models.ChangeEvent)

// Predicate scopes a subscription to rows where Field == Value.
type Predicate struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// subscribeFrame is the first message sent on a fresh channel.
type subscribeFrame struct {
	Collection models.Collection `json:"collection"`
	Predicate  *Predicate        `json:"predicate,omitempty"`
}

// Subscriber dials realtime channels against one backend.
type Subscriber struct {
	url    string
	token  func() string
	logger logging.Logger

	handshakeTimeout time.Duration
}

// NewSubscriber creates a subscriber for the given websocket endpoint. token
// supplies the current access token for the handshake; it is re-read on every
// Subscribe so refreshed tokens are picked up.
func NewSubscriber(url string, token func() string, logger logging.Logger) *Subscriber {
	return &Subscriber{
		url:              url,
		token:            token,
		logger:           logger.With("module", "feed"),
		handshakeTimeout: 5 * time.Second,
	}
}

// Subscription is the handle returned by Subscribe. Unsubscribe is idempotent
// and must be called when the owning view unmounts; afterwards the handler is
// never invoked again, even for frames already in flight.
type Subscription struct {
	conn   *websocket.Conn
	logger logging.Logger

	mu      sync.Mutex
	closed  bool
	handler Handler
}

// Subscribe opens a channel for one collection. Events arrive in the order
// the store emits them; nothing before subscription time is replayed, so the
// caller must establish a baseline with a bulk fetch. A dial or handshake
// failure is returned as an error and the caller is expected to degrade to
// its static snapshot.
func (s *Subscriber) Subscribe(ctx context.Context, collection models.Collection, predicate *Predicate, handler Handler) (*Subscription, error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.handshakeTimeout}
	header := http.Header{}
	if tok := s.token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, resp, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}

	frame := subscribeFrame{Collection: collection, Predicate: predicate}
	if err := conn.WriteJSON(frame); err != nil {
		_ = conn.Close()
		return nil, err
	}

	sub := &Subscription{
		conn:    conn,
		logger:  s.logger.With("collection", collection),
		handler: handler,
	}
	go sub.readPump()
	return sub, nil
}

func (sub *Subscription) readPump() {
	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			// Channel gone: torn down locally or dropped by the server.
			// Either way the view keeps its last snapshot.
			sub.mu.Lock()
			closed := sub.closed
			sub.mu.Unlock()
			if !closed {
				sub.logger.Warn(context.Background(), "feed channel closed", "error", err)
			}
			return
		}

		var ev models.ChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// One malformed event must not kill the subscription.
			sub.logger.Warn(context.Background(), "dropping malformed change event", "error", err)
			continue
		}
		sub.deliver(ev)
	}
}

// deliver invokes the handler unless the subscription is torn down. The guard
// and the call share one critical section, so after Unsubscribe returns no
// invocation can be in flight or follow.
func (sub *Subscription) deliver(ev models.ChangeEvent) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			sub.logger.Error(context.Background(), "change event handler panicked", "panic", r)
		}
	}()
	sub.handler(ev)
}

// Unsubscribe tears the channel down. Safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	sub.mu.Unlock()

	_ = sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = sub.conn.Close()
}
