package relay

import (
	"context"
	"log/slog"

	"github.com/deepakpathik/deskbridge/internal/signaling"
)

// Inbound is a message read from a connection, queued for the hub.
type Inbound struct {
	Client  *Client
	Message *signaling.Message
}

// Hub is the rendezvous relay. A single goroutine (Run) owns the room
// registry and every connection's membership, so joins, leaves and
// broadcasts are serialized without locks.
type Hub struct {
	rooms   map[string]*Room
	clients map[*Client]struct{}

	// Register, Unregister and Broadcast feed the Run loop.
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan *Inbound

	// evicted collects connections whose send buffer overflowed while a
	// message was being handled.
	evicted []*Client

	done   chan struct{}
	logger *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Inbound),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and messages until ctx is cancelled.
// This is the single goroutine that manages all rooms and clients.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.drop(client)

		case in := <-h.Broadcast:
			h.handle(in.Client, in.Message)
		}

		h.flushEvicted()
	}
}

// submit queues a message for the hub. It returns false once the hub has
// stopped.
func (h *Hub) submit(in *Inbound) bool {
	select {
	case h.Broadcast <- in:
		return true
	case <-h.done:
		return false
	}
}

// RegisterClient hands a new connection to the hub.
func (h *Hub) RegisterClient(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) register(c *Client) {
	h.clients[c] = struct{}{}
	h.logger.Debug("Client registered", "conn", c.ID)
}

func (h *Hub) handle(c *Client, msg *signaling.Message) {
	if _, ok := h.clients[c]; !ok {
		h.logger.Debug("Message from unregistered client ignored", "conn", c.ID, "type", msg.Type)
		return
	}

	switch {
	case msg.Type == signaling.MessageTypeJoinRoom:
		h.handleJoin(c, msg)
	case msg.Type == signaling.MessageTypeLeaveRoom:
		h.handleLeave(c, msg)
	case msg.Type.Relayable():
		h.handleRelay(c, msg)
	default:
		h.logger.Warn("Unknown message type", "conn", c.ID, "type", msg.Type)
	}
}

// handleJoin admits c to a room. Joining your own room always succeeds;
// joining anyone else's requires the room to have at least one member.
func (h *Hub) handleJoin(c *Client, msg *signaling.Message) {
	roomID := msg.RoomID
	requesterID := msg.PeerID
	if requesterID == "" {
		requesterID = c.ID
	}

	room := h.rooms[roomID]
	if roomID == "" || (roomID != requesterID && (room == nil || room.Len() == 0)) {
		h.logger.Info("Room join failed: room not found", "conn", c.ID, "room", roomID, "peer", requesterID)
		h.deliver(c, &signaling.Message{Type: signaling.MessageTypeRoomNotFound, RoomID: roomID})
		return
	}

	if room == nil {
		room = newRoom(roomID)
		h.rooms[roomID] = room
		h.logger.Debug("Room created", "room", roomID)
	}

	joined := &signaling.Message{Type: signaling.MessageTypeRoomJoined, RoomID: roomID}

	// Re-joining is idempotent: confirm again, announce nothing.
	if room.Has(c) {
		room.add(c)
		c.rooms[roomID] = requesterID
		h.deliver(c, joined)
		return
	}

	others := room.others(c)
	room.add(c)
	c.rooms[roomID] = requesterID

	h.logger.Info("Client joined room", "conn", c.ID, "room", roomID, "peer", requesterID, "members", room.Len())

	h.deliver(c, joined)

	connected := &signaling.Message{Type: signaling.MessageTypeUserConnected, RoomID: roomID, PeerID: requesterID}
	for _, member := range others {
		h.deliver(member, connected)
	}
}

// handleLeave removes c from a room. Announcing the departure is the
// leaving client's job.
func (h *Hub) handleLeave(c *Client, msg *signaling.Message) {
	room, ok := h.rooms[msg.RoomID]
	if !ok || !room.Has(c) {
		return
	}

	room.remove(c)
	delete(c.rooms, room.ID)
	h.logger.Info("Client left room", "conn", c.ID, "room", room.ID)

	if room.Len() == 0 {
		delete(h.rooms, room.ID)
		h.logger.Debug("Room deleted", "room", room.ID)
	}
}

// handleRelay forwards msg verbatim to every other member of its room.
// The sender need not be a member.
func (h *Hub) handleRelay(c *Client, msg *signaling.Message) {
	room, ok := h.rooms[msg.RoomID]
	if !ok {
		h.logger.Debug("Relay dropped: room not found", "conn", c.ID, "room", msg.RoomID, "type", msg.Type)
		return
	}

	for _, member := range room.others(c) {
		h.deliver(member, msg)
	}
}

// drop removes c from every room, tells the remaining members of each room
// that it left, and closes its send queue.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)

	for roomID, requesterID := range c.rooms {
		room, ok := h.rooms[roomID]
		if !ok {
			continue
		}
		room.remove(c)

		if room.Len() == 0 {
			delete(h.rooms, roomID)
			h.logger.Debug("Room deleted", "room", roomID)
			continue
		}

		gone := &signaling.Message{Type: signaling.MessageTypeUserDisconnected, RoomID: roomID, PeerID: requesterID}
		for _, member := range room.others(c) {
			h.deliver(member, gone)
		}
	}
	c.rooms = make(map[string]string)

	close(c.Send)
	h.logger.Debug("Client unregistered", "conn", c.ID)
}

// deliver queues msg for c without blocking the hub. A connection whose
// buffer is full is evicted once the current message is handled.
func (h *Hub) deliver(c *Client, msg *signaling.Message) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.Send <- msg:
	default:
		h.logger.Warn("Send buffer full, dropping client", "conn", c.ID)
		h.evicted = append(h.evicted, c)
	}
}

func (h *Hub) flushEvicted() {
	for len(h.evicted) > 0 {
		c := h.evicted[0]
		h.evicted = h.evicted[1:]
		h.drop(c)
	}
}
