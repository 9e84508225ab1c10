// Package eventstream broadcasts insert-path lifecycle events
// (PartWritten, TooManyPartsRejected) to connected WebSocket observers,
// letting an external dashboard watch a writer process without polling
// the catalog or the metrics endpoint.
package eventstream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mergetree-writer/internal/logging"
)

// EventType names one kind of broadcast event.
type EventType string

const (
	EventPartWritten          EventType = "part_written"
	EventTooManyPartsRejected EventType = "too_many_parts_rejected"
	EventConnected            EventType = "connected"
)

// Event is one message broadcast to every subscribed client.
type Event struct {
	Type        EventType `json:"type"`
	Table       string    `json:"table,omitempty"`
	PartName    string    `json:"part_name,omitempty"`
	PartitionID string    `json:"partition_id,omitempty"`
	RowCount    int       `json:"row_count,omitempty"`
	Discovered  int       `json:"discovered,omitempty"`
	MaxParts    int       `json:"max_parts,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Client is one connected WebSocket observer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan Event
	hub  *Hub

	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// Hub fans insert-path events out to every connected Client. Run must be
// started once per process; Broadcast is safe to call from any
// goroutine, including the hot insert path.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
	mutex      sync.RWMutex
	logger     logging.Logger
}

// NewHub builds a Hub. Call Run to start its dispatch loop.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
		logger:     logger,
	}
}

// Run blocks, dispatching registrations and broadcasts until ctx is
// canceled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mutex.Lock()
		for client := range h.clients {
			client.close()
		}
		h.clients = nil
		h.mutex.Unlock()
	}()

	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.logger.Debug("eventstream client connected", "client", client.id, "total", h.ClientCount())

			select {
			case client.send <- Event{Type: EventConnected, Timestamp: time.Now()}:
			default:
				h.removeClient(client)
			}

		case client := <-h.unregister:
			h.removeClient(client)

		case event := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					h.logger.Warn("eventstream client send buffer full, dropping", "client", client.id)
				}
			}
			h.mutex.RUnlock()

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
	}
}

// Broadcast enqueues event for every connected client. A full broadcast
// channel drops the event rather than blocking the caller: the insert
// path must never stall on a slow observer.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("eventstream broadcast channel full, dropping event", "type", event.Type)
	}
}

// ClientCount reports how many observers are currently connected.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
