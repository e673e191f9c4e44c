package server

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chessmentor/arena-server/pkg/events"
	"github.com/chessmentor/arena-server/pkg/game"
	"github.com/chessmentor/arena-server/pkg/matchmaking"
	"github.com/chessmentor/arena-server/pkg/messages"
)

// InboundHubMessage are the messages that the hub receives
type InboundHubMessage struct {
	Conn    *Connection             // who sent it
	Message messages.InboundMessage // decoded envelope
}

// Hub keeps track of all active connections and routes every client
// intent to the registry, the matchmaking queue, or the session manager.
// Intents are drained by a single goroutine, so per-connection handling
// never interleaves; the queue and the sessions carry their own locks on
// top for the timer paths.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection

	register   chan *Connection       // Incoming registration
	unregister chan *Connection       // Incoming unregistration
	inbound    chan InboundHubMessage // Channel of inbound client intents
	done       chan struct{}

	registry  *Registry
	queue     *matchmaking.Queue
	manager   *game.Manager
	publisher *events.Publisher
	logger    *zap.Logger
}

// NewHub creates a new hub. Attach must be called before Run.
func NewHub(registry *Registry, publisher *events.Publisher, logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		inbound:     make(chan InboundHubMessage, 64),
		done:        make(chan struct{}),
		registry:    registry,
		publisher:   publisher,
		logger:      logger,
	}
}

// Attach wires the matchmaking queue and the session manager. Separate
// from NewHub because both of them notify clients through the hub.
func (h *Hub) Attach(queue *matchmaking.Queue, manager *game.Manager) {
	h.queue = queue
	h.manager = manager
}

// Run is the main execution of the hub
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.registerConnection(conn)

		case conn := <-h.unregister:
			h.unregisterConnection(conn)

		case msg := <-h.inbound:
			h.handleInbound(msg)

		case <-h.done:
			return
		}
	}
}

// Register hands a new connection to the hub goroutine.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister hands a departed connection to the hub goroutine.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Dispatch hands an inbound client message to the hub goroutine.
func (h *Hub) Dispatch(msg InboundHubMessage) {
	select {
	case h.inbound <- msg:
	case <-h.done:
	}
}

// Shutdown stops the run loop and closes every connection.
func (h *Hub) Shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.connections {
		conn.closeSend()
		delete(h.connections, id)
	}
}

// ToConnection delivers an event to a single connection. A connection
// that has since disconnected is skipped without error.
func (h *Hub) ToConnection(connID uuid.UUID, msg messages.OutboundMessage) {
	h.mu.RLock()
	conn, ok := h.connections[connID]
	h.mu.RUnlock()

	if !ok {
		return
	}
	conn.SendJSON(msg)
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	h.connections[conn.ID] = conn
	total := len(h.connections)
	h.mu.Unlock()

	h.logger.Info("connection registered",
		zap.String("connection_id", conn.ID.String()),
		zap.Int("total", total))

	h.publisher.Publish(events.Event{
		Type:    events.EventConnectionOpened,
		Payload: map[string]string{"connection_id": conn.ID.String()},
	})
}

// unregisterConnection removes the connection and runs dependent
// cleanup: the player leaves the queue, their session takes the
// abandonment path, and only then is the record discarded.
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	if _, ok := h.connections[conn.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, conn.ID)
	conn.closeSend()
	total := len(h.connections)
	h.mu.Unlock()

	h.logger.Info("connection unregistered",
		zap.String("connection_id", conn.ID.String()),
		zap.Int("total", total))

	if p, ok := h.registry.Get(conn.ID); ok {
		h.queue.Remove(p)
		h.manager.HandleDisconnect(p)
		h.registry.Remove(conn.ID)
	}

	h.publisher.Publish(events.Event{
		Type:    events.EventConnectionClosed,
		Payload: map[string]string{"connection_id": conn.ID.String()},
	})
}

// handleInbound routes one decoded client message. Malformed payloads
// and ineligible actions are dropped; only the rules engine rejecting a
// move produces a client-visible notice, and that happens downstream.
func (h *Hub) handleInbound(msg InboundHubMessage) {
	switch msg.Message.Type {
	case messages.ActionJoin:
		var payload messages.JoinPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.logger.Debug("invalid join payload", zap.Error(err))
			return
		}
		h.handleJoin(msg.Conn, payload)

	case messages.ActionFindGame:
		var payload messages.FindGamePayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.logger.Debug("invalid find-game payload", zap.Error(err))
			return
		}
		h.handleFindGame(msg.Conn, payload)

	case messages.ActionMakeMove:
		var payload messages.MakeMovePayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.logger.Debug("invalid make-move payload", zap.Error(err))
			return
		}
		p, _ := h.registry.Get(msg.Conn.ID)
		h.manager.ApplyMove(p, payload.Move)

	case messages.ActionChat:
		var payload messages.ChatPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.logger.Debug("invalid chat payload", zap.Error(err))
			return
		}
		p, _ := h.registry.Get(msg.Conn.ID)
		h.manager.Chat(p, payload.Message)

	case messages.ActionResign:
		p, _ := h.registry.Get(msg.Conn.ID)
		h.manager.Resign(p)

	default:
		h.logger.Debug("unknown message type", zap.String("type", msg.Message.Type))
	}
}

func (h *Hub) handleJoin(conn *Connection, payload messages.JoinPayload) {
	p, created := h.registry.Join(conn.ID, payload.Name, payload.Elo)

	if created {
		h.publisher.Publish(events.Event{
			Type:    events.EventPlayerJoined,
			Payload: map[string]string{"connection_id": conn.ID.String(), "name": p.Name},
		})
	}

	h.ToConnection(conn.ID, messages.OutboundMessage{
		Event: messages.EventConnected,
		Payload: messages.ConnectedPayload{
			PlayerID: conn.ID.String(),
			Message:  "Connected to ChessMentor server",
		},
	})
}

func (h *Hub) handleFindGame(conn *Connection, payload messages.FindGamePayload) {
	p, ok := h.registry.Get(conn.ID)
	if !ok || p.InGame {
		return
	}

	if payload.Mode == "ai" {
		// The player may still be waiting for a multiplayer opponent;
		// a lingering entry would be claimed by the next enqueuer.
		h.queue.Remove(p)
		h.manager.CreateAIGame(p)
		return
	}
	h.queue.Enqueue(p)
}

// PlayerCount returns the number of joined players, for the health
// surface.
func (h *Hub) PlayerCount() int {
	return h.registry.Count()
}
