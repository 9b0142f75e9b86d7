// Package events streams committed create, patch and delete operations to
// websocket subscribers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/conduit-lang/restgen/internal/orm/crud"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// Event is the wire form of one change. Record is omitted for entities with
// access control since subscribers are not filtered by caller.
type Event struct {
	Entity    string        `json:"entity"`
	Operation string        `json:"operation"`
	Key       interface{}   `json:"key"`
	Record    *shape.Object `json:"record,omitempty"`
	At        time.Time     `json:"at"`
}

type message struct {
	entity string
	data   []byte
}

// Hub fans events out to connected clients
type Hub struct {
	registry *schema.Registry
	logger   *zap.Logger
	now      func() time.Time

	clients   map[*Client]bool
	clientsMu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan message

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub for the entities of registry
func NewHub(registry *schema.Registry, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		registry:   registry,
		logger:     logger,
		now:        time.Now,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		broadcast:  make(chan message, 1024),
		done:       make(chan struct{}),
	}
}

// Attach subscribes the hub to every change the controllers commit
func (h *Hub) Attach(controllers *crud.Controllers) {
	controllers.Subscribe(h.Publish)
}

// Publish queues a change for broadcast. It never blocks the writer: when
// the queue is full the event is dropped.
func (h *Hub) Publish(change crud.ChangeEvent) {
	event := Event{
		Entity:    change.Entity,
		Operation: change.Operation,
		Key:       change.Key,
		Record:    change.Record,
		At:        h.now().UTC(),
	}
	if e, ok := h.registry.Get(change.Entity); !ok || e.Access.Kind != schema.AccessNone {
		event.Record = nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("entity", change.Entity), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- message{entity: change.Entity, data: data}:
	case <-h.done:
	default:
		h.logger.Warn("event queue full, dropping event",
			zap.String("entity", change.Entity),
			zap.String("operation", change.Operation),
		)
	}
}

// Run delivers queued events until ctx ends or Close is called
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.cleanup()
			return

		case <-h.done:
			h.cleanup()
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			h.logger.Debug("subscriber connected", zap.String("client", client.ID), zap.Int("clients", h.ClientCount()))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.clientsMu.RLock()
			var slow []*Client
			for client := range h.clients {
				if !client.Wants(msg.entity) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					slow = append(slow, client)
				}
			}
			h.clientsMu.RUnlock()

			for _, client := range slow {
				h.logger.Warn("subscriber too slow, disconnecting", zap.String("client", client.ID))
				h.remove(client)
			}
		}
	}
}

// Close stops the hub and disconnects every client
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(client *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) cleanup() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}
