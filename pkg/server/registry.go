package server

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chessmentor/arena-server/pkg/player"
)

// Registry tracks the mapping from a live connection to its player
// record. A connection has no player until the peer announces identity
// through a join.
type Registry struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*player.Player
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		players: make(map[uuid.UUID]*player.Player),
		logger:  logger,
	}
}

// Join creates and stores a player for the connection. Joining twice on
// the same connection is an idempotent no-op returning the existing
// record with created false, so callers fire creation side effects only
// once.
func (r *Registry) Join(connID uuid.UUID, name string, rating int) (*player.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.players[connID]; ok {
		return existing, false
	}

	if name == "" {
		name = "Anonymous"
	}
	if rating <= 0 {
		rating = player.DefaultRating
	}

	p := &player.Player{
		ConnID: connID,
		Name:   name,
		Rating: rating,
	}
	r.players[connID] = p

	r.logger.Info("player joined",
		zap.String("connection_id", connID.String()),
		zap.String("name", name),
		zap.Int("rating", rating))

	return p, true
}

// Get returns the player for a connection, if one has joined.
func (r *Registry) Get(connID uuid.UUID) (*player.Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[connID]
	return p, ok
}

// Remove discards the player record for a connection. Callers run
// dependent cleanup (queue removal, session abandonment) first.
func (r *Registry) Remove(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, connID)
}

// Count returns the number of joined players.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}
