// Package player defines the live participant record.
package player

import "github.com/google/uuid"

// DefaultRating is assigned when a client joins without one.
const DefaultRating = 1200

// Player is one live participant, keyed by its connection id. The record
// is owned by the connection registry; the matchmaking queue and game
// sessions only hold references. Mutation of InGame/GameID is already
// serialized by the components doing it, so the struct carries no lock.
type Player struct {
	ConnID uuid.UUID
	Name   string
	Rating int

	InGame bool
	GameID *uuid.UUID
}

// NewAI returns the synthetic participant occupying a slot in a
// human-vs-AI game. It has no connection and never appears in the
// registry; each session gets its own instance.
func NewAI() *Player {
	return &Player{
		ConnID: uuid.Nil,
		Name:   "ChessMentor AI",
		Rating: 1500,
	}
}

// IsAI reports whether this is the synthetic engine participant.
func (p *Player) IsAI() bool {
	return p.ConnID == uuid.Nil
}

// EnterGame marks the player as occupied by the given session.
func (p *Player) EnterGame(gameID uuid.UUID) {
	p.InGame = true
	id := gameID
	p.GameID = &id
}

// LeaveGame clears the player's game association.
func (p *Player) LeaveGame() {
	p.InGame = false
	p.GameID = nil
}
