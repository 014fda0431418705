// Package realtime pushes live ticket events to websocket clients grouped in
// per-ticket rooms, optionally relaying them between instances over Redis.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/observability"
)

// Event names sent to clients.
const (
	EventTicketCreated = "ticket-created"
	EventTicketUpdated = "ticket-updated"
	EventCommentAdded  = "comment-added"
	EventNotification  = "notification"
	EventJoined        = "joined"
	EventLeft          = "left"
	EventError         = "error"

	EventJoinTicket  = "join-ticket"
	EventLeaveTicket = "leave-ticket"
)

// Audience restricts which connections receive an envelope.
type Audience string

const (
	AudienceAll     Audience = ""
	AudienceStaff   Audience = "staff"
	AudienceStation Audience = "station"
)

func (a Audience) admits(role domain.Role) bool {
	switch a {
	case AudienceStaff:
		return role.IsStaff()
	case AudienceStation:
		return role == domain.RoleGasStation
	default:
		return true
	}
}

// Envelope addresses one frame. UserID targets a single user's connections;
// otherwise TicketID targets the ticket room; otherwise every connection.
// Audience filters room and broadcast delivery by role.
type Envelope struct {
	Event      string          `json:"event"`
	TicketID   string          `json:"ticket_id,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	Audience   Audience        `json:"audience,omitempty"`
	Data       json.RawMessage `json:"data"`
	InstanceID string          `json:"instance_id,omitempty"`
}

// Frame is the wire shape clients send and receive.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Publisher delivers envelopes to connected clients.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// NewEnvelope marshals data into an envelope.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

func roomName(ticketID string) string {
	return "ticket-" + ticketID
}

// Client is one websocket connection.
type Client struct {
	id     string
	userID string
	role   domain.Role
	send   chan []byte
	rooms  map[string]struct{}
	closed bool
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user id.
func (c *Client) UserID() string { return c.userID }

// Messages yields frames queued for the connection; closed on unregister.
func (c *Client) Messages() <-chan []byte { return c.send }

// Hub tracks clients and rooms. Safe for concurrent use.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	bufferSize int
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewHub builds a hub with the given per-client send buffer.
func NewHub(bufferSize int, logger *zap.Logger, metrics *observability.Metrics) *Hub {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    map[*Client]struct{}{},
		rooms:      map[string]map[*Client]struct{}{},
		bufferSize: bufferSize,
		logger:     logger,
		metrics:    metrics,
	}
}

// Register adds a connection for user.
func (h *Hub) Register(userID string, role domain.Role) *Client {
	client := &Client{
		id:     uuid.NewString(),
		userID: userID,
		role:   role,
		send:   make(chan []byte, h.bufferSize),
		rooms:  map[string]struct{}{},
	}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.metrics.RealtimeClientConnected(1)
	return client
}

// Unregister removes the connection from all rooms and closes its queue.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return
	}
	for room := range client.rooms {
		h.removeFromRoom(room, client)
	}
	delete(h.clients, client)
	client.closed = true
	close(client.send)
	h.metrics.RealtimeClientConnected(-1)
}

// Join adds the client to the ticket room. Callers authorize beforehand.
func (h *Hub) Join(client *Client, ticketID string) {
	room := roomName(ticketID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = map[*Client]struct{}{}
		h.rooms[room] = members
	}
	members[client] = struct{}{}
	client.rooms[room] = struct{}{}
}

// Leave removes the client from the ticket room.
func (h *Hub) Leave(client *Client, ticketID string) {
	room := roomName(ticketID)
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.rooms, room)
	h.removeFromRoom(room, client)
}

func (h *Hub) removeFromRoom(room string, client *Client) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// RoomSize reports how many connections joined the ticket room.
func (h *Hub) RoomSize(ticketID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomName(ticketID)])
}

// Publish delivers locally; it makes Hub a single-instance Publisher.
func (h *Hub) Publish(_ context.Context, env Envelope) error {
	h.Deliver(env)
	return nil
}

// Deliver queues the envelope for matching clients and returns how many were reached.
func (h *Hub) Deliver(env Envelope) int {
	frame, err := json.Marshal(Frame{Event: env.Event, Data: env.Data})
	if err != nil {
		h.logger.Error("encode realtime frame", zap.String("event", env.Event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	switch {
	case env.UserID != "":
		for client := range h.clients {
			if client.userID == env.UserID && h.enqueue(client, env.Event, frame) {
				delivered++
			}
		}
	case env.TicketID != "":
		for client := range h.rooms[roomName(env.TicketID)] {
			if env.Audience.admits(client.role) && h.enqueue(client, env.Event, frame) {
				delivered++
			}
		}
	default:
		for client := range h.clients {
			if env.Audience.admits(client.role) && h.enqueue(client, env.Event, frame) {
				delivered++
			}
		}
	}
	return delivered
}

// SendTo queues a frame for one client, used for join acknowledgements and errors.
func (h *Hub) SendTo(client *Client, event string, data any) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	frame, err := json.Marshal(Frame{Event: event, Data: raw})
	if err != nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client.closed {
		return false
	}
	return h.enqueue(client, event, frame)
}

// enqueue never blocks; a full buffer drops the frame. Caller holds h.mu.
func (h *Hub) enqueue(client *Client, event string, frame []byte) bool {
	select {
	case client.send <- frame:
		h.metrics.RealtimeDelivered(event)
		return true
	default:
		h.metrics.RealtimeDropped()
		h.logger.Warn("realtime buffer full, dropping frame",
			zap.String("client_id", client.id),
			zap.String("user_id", client.userID),
			zap.String("event", event),
		)
		return false
	}
}
