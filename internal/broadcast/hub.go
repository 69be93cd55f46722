// Package broadcast delivers named events to any number of connected
// subscribers. Delivery is fire-and-forget: every subscriber has a bounded
// queue and a message that does not fit is dropped for that subscriber
// only, so a slow client never slows the publisher.
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vitalis-app/dockdash/internal/telemetry"
)

// DefaultQueueSize is the per-subscriber queue length when unset.
const DefaultQueueSize = 64

// Errors returned by Subscriber.Send.
var (
	ErrQueueFull = errors.New("subscriber queue full")
	ErrClosed    = errors.New("subscriber closed")
)

// Message is the wire envelope for one event.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Encode marshals an event into its wire form.
func Encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(Message{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", event, err)
	}
	return data, nil
}

// Subscriber is one connected client. Its transport drains Messages().
type Subscriber struct {
	id    uint64
	queue chan []byte
	done  chan struct{}
	once  sync.Once
	hub   *Hub
}

// ID returns the subscriber's process-unique identifier.
func (s *Subscriber) ID() uint64 { return s.id }

// Messages returns the queue of encoded messages for the transport.
func (s *Subscriber) Messages() <-chan []byte { return s.queue }

// Done is closed when the subscriber is detached.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Send delivers one event to this subscriber only.
func (s *Subscriber) Send(event string, payload interface{}) error {
	data, err := Encode(event, payload)
	if err != nil {
		return err
	}
	return s.enqueue(data)
}

func (s *Subscriber) enqueue(data []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.queue <- data:
		return nil
	default:
		s.hub.metrics.MessageDropped()
		return ErrQueueFull
	}
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub tracks active subscribers and fans published events out to them.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}

	handlersMu   sync.RWMutex
	onConnect    []func(*Subscriber)
	onDisconnect []func(*Subscriber)

	nextID    atomic.Uint64
	queueSize int
	logger    *zap.Logger
	metrics   *telemetry.Metrics
}

// NewHub creates a hub. queueSize <= 0 selects DefaultQueueSize.
// logger and metrics may be nil.
func NewHub(queueSize int, logger *zap.Logger, metrics *telemetry.Metrics) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:      make(map[*Subscriber]struct{}),
		queueSize: queueSize,
		logger:    logger,
		metrics:   metrics,
	}
}

// NewSubscriber creates a subscriber that is not yet receiving broadcasts.
func (h *Hub) NewSubscriber() *Subscriber {
	return &Subscriber{
		id:    h.nextID.Add(1),
		queue: make(chan []byte, h.queueSize),
		done:  make(chan struct{}),
		hub:   h,
	}
}

// OnConnect registers a handler run for every newly attached subscriber.
func (h *Hub) OnConnect(fn func(*Subscriber)) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.onConnect = append(h.onConnect, fn)
}

// OnDisconnect registers a handler run for every detached subscriber.
func (h *Hub) OnDisconnect(fn func(*Subscriber)) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.onDisconnect = append(h.onDisconnect, fn)
}

// Attach runs the connect handlers for s and then adds it to the broadcast
// set. Anything the handlers send therefore reaches s before any broadcast.
// A handler may add s earlier with Activate.
func (h *Hub) Attach(s *Subscriber) {
	h.handlersMu.RLock()
	handlers := append([]func(*Subscriber){}, h.onConnect...)
	h.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(s)
	}
	h.Activate(s)
}

// Activate adds s to the broadcast set. It is a no-op when s is already
// active or has been detached.
func (h *Hub) Activate(s *Subscriber) {
	h.mu.Lock()
	select {
	case <-s.done:
		h.mu.Unlock()
		return
	default:
	}
	if _, ok := h.subs[s]; ok {
		h.mu.Unlock()
		return
	}
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.SetSubscribers(n)
	h.logger.Info("Subscriber connected", zap.Uint64("id", s.id), zap.Int("subscribers", n))
}

// Detach removes s from the broadcast set and runs the disconnect handlers.
func (h *Hub) Detach(s *Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	n := len(h.subs)
	// Closed under mu so a concurrent Activate cannot re-add s.
	s.close()
	h.mu.Unlock()

	if !ok {
		return
	}

	h.metrics.SetSubscribers(n)
	h.logger.Info("Subscriber disconnected", zap.Uint64("id", s.id), zap.Int("subscribers", n))

	h.handlersMu.RLock()
	handlers := append([]func(*Subscriber){}, h.onDisconnect...)
	h.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(s)
	}
}

// Publish delivers an event to every active subscriber. The payload is
// encoded once. Full queues drop the message for that subscriber.
func (h *Hub) Publish(event string, payload interface{}) error {
	data, err := Encode(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if err := s.enqueue(data); errors.Is(err, ErrQueueFull) {
			h.logger.Debug("Dropping message for slow subscriber",
				zap.Uint64("id", s.id),
				zap.String("event", event))
		}
	}
	return nil
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		h.Detach(s)
	}
}
