package messages

import "encoding/json"

// InboundMessage is the generic wrapper for messages coming from the client.
// The "type" field tells us the action; "payload" is the data we parse further.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client actions the server understands.
const (
	ActionJoin     = "join"
	ActionFindGame = "find-game"
	ActionMakeMove = "make-move"
	ActionChat     = "chat-message"
	ActionResign   = "resign"
)

// JoinPayload announces a player's identity on a fresh connection.
type JoinPayload struct {
	Name        string `json:"name"`
	Elo         int    `json:"elo"`
	ResumeToken string `json:"sessionId,omitempty"`
}

// FindGamePayload asks for an opponent. Mode is "ai" or "multiplayer".
type FindGamePayload struct {
	Mode string `json:"mode"`
}

// MakeMovePayload carries a move in UCI or SAN notation.
type MakeMovePayload struct {
	Move string `json:"move"`
}

// ChatPayload carries a chat line for the sender's current game.
type ChatPayload struct {
	Message string `json:"message"`
}
