package game

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chessmentor/arena-server/internal/color"
	"github.com/chessmentor/arena-server/pkg/player"
	"github.com/chessmentor/arena-server/pkg/rules"
)

// Kind distinguishes human-vs-AI from human-vs-human sessions.
type Kind string

// Possible session kinds
const (
	KindAI          Kind = "ai"
	KindMultiplayer Kind = "multiplayer"
)

// Status is the session lifecycle state. The transition is one-way:
// a session is created active and only ever moves to finished.
type Status string

// Possible session states
const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// ChatEntry is one relayed chat line.
type ChatEntry struct {
	Player    string
	Message   string
	Timestamp int64
}

// Session is one active or recently finished game. The manager holds the
// session lock for the duration of each intent touching it, so a move is
// never observable half-applied.
type Session struct {
	ID   uuid.UUID
	Kind Kind

	White *player.Player
	Black *player.Player

	Board *rules.Board

	Status Status
	Result string

	Chat []ChatEntry

	StartedAt time.Time
	EndedAt   time.Time

	// abandonTimer guards the disconnect grace window; retainTimer
	// guards post-termination retention. Both are cancellable so a
	// stale callback never fires against an invalidated condition.
	abandonTimer *time.Timer
	retainTimer  *time.Timer

	mu sync.Mutex
}

// colorOf returns the color the given connection plays, if it is a human
// participant of this session. Callers hold s.mu.
func (s *Session) colorOf(connID uuid.UUID) (color.Color, bool) {
	if !s.White.IsAI() && s.White.ConnID == connID {
		return color.White, true
	}
	if !s.Black.IsAI() && s.Black.ConnID == connID {
		return color.Black, true
	}
	return "", false
}

// participant returns the player on the given color. Callers hold s.mu.
func (s *Session) participant(c color.Color) *player.Player {
	if c == color.White {
		return s.White
	}
	return s.Black
}

// humanConns lists the connection ids of the human participants.
// Callers hold s.mu.
func (s *Session) humanConns() []uuid.UUID {
	conns := make([]uuid.UUID, 0, 2)
	if !s.White.IsAI() {
		conns = append(conns, s.White.ConnID)
	}
	if !s.Black.IsAI() {
		conns = append(conns, s.Black.ConnID)
	}
	return conns
}

// aiColor returns the color the AI occupies, if any. Callers hold s.mu.
func (s *Session) aiColor() (color.Color, bool) {
	if s.White.IsAI() {
		return color.White, true
	}
	if s.Black.IsAI() {
		return color.Black, true
	}
	return "", false
}

// Snapshot is a consistent copy of the observable session state.
type Snapshot struct {
	ID        uuid.UUID
	Kind      Kind
	Status    Status
	Result    string
	Turn      color.Color
	FEN       string
	PGN       string
	Moves     []rules.Move
	Chat      []ChatEntry
	StartedAt time.Time
	EndedAt   time.Time
}

// Snapshot returns a copy of the session state taken under the session
// lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := make([]ChatEntry, len(s.Chat))
	copy(chat, s.Chat)

	return Snapshot{
		ID:        s.ID,
		Kind:      s.Kind,
		Status:    s.Status,
		Result:    s.Result,
		Turn:      s.Board.Turn(),
		FEN:       s.Board.FEN(),
		PGN:       s.Board.PGN(),
		Moves:     s.Board.History(),
		Chat:      chat,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
}
