package messages

import (
	"github.com/chessmentor/arena-server/internal/color"
)

// OutboundMessage is how we wrap responses before sending them to the client
type OutboundMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Server events delivered to clients.
const (
	EventConnected            = "connected"
	EventSearching            = "searching"
	EventSearchTimeout        = "search-timeout"
	EventGameStart            = "game-start"
	EventMoveMade             = "move-made"
	EventInvalidMove          = "invalid-move"
	EventChat                 = "chat-message"
	EventOpponentDisconnected = "opponent-disconnected"
	EventGameEnd              = "game-end"
)

// ConnectedPayload acknowledges a join.
type ConnectedPayload struct {
	PlayerID string `json:"playerId"`
	Message  string `json:"message"`
}

// SearchingPayload tells a queued player the matchmaker is working.
type SearchingPayload struct {
	Message string `json:"message"`
}

// SearchTimeoutPayload tells a player no opponent was found in time.
type SearchTimeoutPayload struct {
	Message string `json:"message"`
}

// OpponentInfo identifies the other participant of a game.
type OpponentInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Elo  int    `json:"elo"`
}

// GameStartPayload is sent to each participant when a game begins.
type GameStartPayload struct {
	GameID   string       `json:"gameId"`
	Color    color.Color  `json:"color"`
	Opponent OpponentInfo `json:"opponent"`
	FEN      string       `json:"fen"`
}

// MoveInfo describes an applied move in both notations.
type MoveInfo struct {
	UCI string `json:"uci"`
	SAN string `json:"san"`
}

// MoveMadePayload is broadcast to a game after an accepted move.
type MoveMadePayload struct {
	Move        MoveInfo    `json:"move"`
	FEN         string      `json:"fen"`
	CurrentTurn color.Color `json:"currentTurn"`
}

// InvalidMovePayload is the single visible rejection notice.
type InvalidMovePayload struct {
	Error string `json:"error"`
}

// ChatMessagePayload relays a chat line to a game.
type ChatMessagePayload struct {
	Player    string `json:"player"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// OpponentDisconnectedPayload pauses a game after a disconnect.
type OpponentDisconnectedPayload struct {
	Message string `json:"message"`
}

// GameEndPayload carries the final result and the PGN transcript.
type GameEndPayload struct {
	Result string `json:"result"`
	PGN    string `json:"pgn"`
}
