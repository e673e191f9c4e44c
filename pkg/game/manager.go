// Package game owns the set of live sessions and the state machine of
// each one.
package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chessmentor/arena-server/internal/color"
	"github.com/chessmentor/arena-server/pkg/config"
	"github.com/chessmentor/arena-server/pkg/engine"
	"github.com/chessmentor/arena-server/pkg/events"
	"github.com/chessmentor/arena-server/pkg/messages"
	"github.com/chessmentor/arena-server/pkg/player"
	"github.com/chessmentor/arena-server/pkg/rules"
)

// Notifier delivers an event to a single connection. Delivery to a
// connection that is gone is a silent no-op.
type Notifier interface {
	ToConnection(connID uuid.UUID, msg messages.OutboundMessage)
}

// Manager owns every live session. Each session's state is mutated only
// while holding that session's lock; ineligible actions are silent
// no-ops per the server's failure semantics.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	cfg       *config.Config
	notifier  Notifier
	provider  engine.Provider
	publisher *events.Publisher
	logger    *zap.Logger
}

// NewManager creates a new manager with in-memory storage.
func NewManager(
	cfg *config.Config,
	notifier Notifier,
	provider engine.Provider,
	publisher *events.Publisher,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		sessions:  make(map[uuid.UUID]*Session),
		cfg:       cfg,
		notifier:  notifier,
		provider:  provider,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateAIGame starts a session against the AI. The human always plays
// white. Ignored if the player is already in a game.
func (m *Manager) CreateAIGame(p *player.Player) *Session {
	if p == nil || p.InGame {
		return nil
	}

	s := &Session{
		ID:        uuid.New(),
		Kind:      KindAI,
		White:     p,
		Black:     player.NewAI(),
		Board:     rules.NewBoard(),
		Status:    StatusActive,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	p.EnterGame(s.ID)

	m.logger.Info("created ai session",
		zap.String("session_id", s.ID.String()),
		zap.String("player", p.Name))

	m.publisher.Publish(events.Event{
		Type:   events.EventSessionCreated,
		GameID: s.ID.String(),
	})

	m.notifier.ToConnection(p.ConnID, messages.OutboundMessage{
		Event: messages.EventGameStart,
		Payload: messages.GameStartPayload{
			GameID: s.ID.String(),
			Color:  color.White,
			Opponent: messages.OpponentInfo{
				ID:   "ai",
				Name: s.Black.Name,
				Elo:  s.Black.Rating,
			},
			FEN: s.Board.FEN(),
		},
	})

	return s
}

// CreateHumanGame starts a session between two humans with colors
// assigned uniformly at random. Both players receive a start
// notification with their own color and opponent identity.
func (m *Manager) CreateHumanGame(a, b *player.Player) *Session {
	if a == nil || b == nil || a.InGame || b.InGame {
		return nil
	}

	white, black := a, b
	if rand.Intn(2) == 0 {
		white, black = b, a
	}

	s := &Session{
		ID:        uuid.New(),
		Kind:      KindMultiplayer,
		White:     white,
		Black:     black,
		Board:     rules.NewBoard(),
		Status:    StatusActive,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	white.EnterGame(s.ID)
	black.EnterGame(s.ID)

	m.logger.Info("created multiplayer session",
		zap.String("session_id", s.ID.String()),
		zap.String("white", white.Name),
		zap.String("black", black.Name))

	m.publisher.Publish(events.Event{
		Type:   events.EventSessionCreated,
		GameID: s.ID.String(),
	})

	fen := s.Board.FEN()
	m.notifier.ToConnection(white.ConnID, messages.OutboundMessage{
		Event: messages.EventGameStart,
		Payload: messages.GameStartPayload{
			GameID: s.ID.String(),
			Color:  color.White,
			Opponent: messages.OpponentInfo{
				ID:   black.ConnID.String(),
				Name: black.Name,
				Elo:  black.Rating,
			},
			FEN: fen,
		},
	})
	m.notifier.ToConnection(black.ConnID, messages.OutboundMessage{
		Event: messages.EventGameStart,
		Payload: messages.GameStartPayload{
			GameID: s.ID.String(),
			Color:  color.Black,
			Opponent: messages.OpponentInfo{
				ID:   white.ConnID.String(),
				Name: white.Name,
				Elo:  white.Rating,
			},
			FEN: fen,
		},
	})

	return s
}

// ApplyMove validates and applies a move from a human participant. Every
// ineligible case is a silent no-op; only a move the rules engine
// rejects produces a client-visible invalid-move notice.
func (m *Manager) ApplyMove(p *player.Player, move string) {
	s := m.sessionOf(p)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive {
		return
	}

	pcolor, ok := s.colorOf(p.ConnID)
	if !ok || s.Board.Turn() != pcolor {
		return
	}

	applied, err := s.Board.Apply(move)
	if err != nil {
		if errors.Is(err, rules.ErrIllegalMove) {
			m.notifier.ToConnection(p.ConnID, messages.OutboundMessage{
				Event:   messages.EventInvalidMove,
				Payload: messages.InvalidMovePayload{Error: "Invalid move"},
			})
		}
		return
	}

	m.afterMoveLocked(s, applied)
}

// afterMoveLocked broadcasts an accepted move, finishes the session if
// the position is terminal, and schedules the AI reply when due.
// Callers hold s.mu.
func (m *Manager) afterMoveLocked(s *Session, applied rules.Move) {
	m.broadcastLocked(s, messages.OutboundMessage{
		Event: messages.EventMoveMade,
		Payload: messages.MoveMadePayload{
			Move:        messages.MoveInfo{UCI: applied.UCI, SAN: applied.SAN},
			FEN:         s.Board.FEN(),
			CurrentTurn: s.Board.Turn(),
		},
	})

	if result, done := s.Board.Terminal(); done {
		m.finishLocked(s, result)
		return
	}

	if ai, ok := s.aiColor(); ok && s.Board.Turn() == ai {
		sessionID := s.ID
		ply := s.Board.MoveCount()
		time.AfterFunc(m.cfg.AIMoveDelay, func() {
			m.playAIMove(sessionID, ply)
		})
	}
}

// playAIMove asks the provider for a move and applies it through the
// same path as a human move. The answer is discarded if the session
// finished or the position advanced while the request was in flight.
func (m *Manager) playAIMove(sessionID uuid.UUID, expectPly int) {
	s, ok := m.Get(sessionID)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.Status != StatusActive || s.Board.MoveCount() != expectPly {
		s.mu.Unlock()
		return
	}
	fen := s.Board.FEN()
	history := make([]string, 0, expectPly)
	for _, mv := range s.Board.History() {
		history = append(history, mv.UCI)
	}
	s.mu.Unlock()

	// The provider runs without the session lock so a resignation or
	// disconnect is never blocked behind a slow engine.
	move, err := m.provider.BestMove(fen, history)
	if err != nil {
		m.logger.Error("ai move request failed",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive || s.Board.MoveCount() != expectPly {
		return
	}

	applied, err := s.Board.Apply(move)
	if err != nil {
		m.logger.Error("ai produced an illegal move",
			zap.String("session_id", sessionID.String()),
			zap.String("move", move),
			zap.Error(err))
		return
	}

	m.afterMoveLocked(s, applied)
}

// Resign ends the player's active session immediately, declaring the
// other color the winner regardless of whose turn it is.
func (m *Manager) Resign(p *player.Player) {
	s := m.sessionOf(p)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive {
		return
	}

	pcolor, ok := s.colorOf(p.ConnID)
	if !ok {
		return
	}

	m.finishLocked(s, fmt.Sprintf("%s wins by resignation", pcolor.Opp()))
}

// Chat appends a line to the session chat log and relays it. Only valid
// for an active multiplayer session the sender belongs to.
func (m *Manager) Chat(p *player.Player, text string) {
	s := m.sessionOf(p)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive || s.Kind != KindMultiplayer {
		return
	}
	if _, ok := s.colorOf(p.ConnID); !ok {
		return
	}

	entry := ChatEntry{
		Player:    p.Name,
		Message:   text,
		Timestamp: time.Now().UnixMilli(),
	}
	s.Chat = append(s.Chat, entry)

	m.broadcastLocked(s, messages.OutboundMessage{
		Event: messages.EventChat,
		Payload: messages.ChatMessagePayload{
			Player:    entry.Player,
			Message:   entry.Message,
			Timestamp: entry.Timestamp,
		},
	})
}

// HandleDisconnect reacts to a participant's connection going away. In a
// multiplayer session the opponent is notified and a grace timer starts;
// if the session is still active when it fires, the missing player's
// color forfeits. An AI session has nobody left to notify and finishes
// immediately.
func (m *Manager) HandleDisconnect(p *player.Player) {
	s := m.sessionOf(p)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive {
		return
	}

	pcolor, ok := s.colorOf(p.ConnID)
	if !ok {
		return
	}

	if s.Kind != KindMultiplayer {
		m.finishLocked(s, fmt.Sprintf("%s wins by abandonment", pcolor.Opp()))
		return
	}

	opponent := s.participant(pcolor.Opp())
	m.notifier.ToConnection(opponent.ConnID, messages.OutboundMessage{
		Event: messages.EventOpponentDisconnected,
		Payload: messages.OpponentDisconnectedPayload{
			Message: "Opponent disconnected. Game paused.",
		},
	})

	m.logger.Info("participant disconnected mid-game",
		zap.String("session_id", s.ID.String()),
		zap.String("color", string(pcolor)))

	sessionID := s.ID
	s.abandonTimer = time.AfterFunc(m.cfg.AbandonGrace, func() {
		m.forfeit(sessionID, pcolor)
	})
}

// forfeit ends a session on behalf of a player who never came back. The
// session may have finished on its own while the grace timer ran, in
// which case this is a no-op.
func (m *Manager) forfeit(sessionID uuid.UUID, loser color.Color) {
	s, ok := m.Get(sessionID)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive {
		return
	}

	m.finishLocked(s, fmt.Sprintf("%s wins by abandonment", loser.Opp()))
}

// finishLocked performs the common termination path: one-way status
// transition, timer cancellation, player release, final notification
// with the transcript, and delayed removal from the live set.
// Callers hold s.mu.
func (m *Manager) finishLocked(s *Session, result string) {
	if s.Status == StatusFinished {
		return
	}

	s.Status = StatusFinished
	s.Result = result
	s.EndedAt = time.Now()

	if s.abandonTimer != nil {
		s.abandonTimer.Stop()
		s.abandonTimer = nil
	}

	if !s.White.IsAI() {
		s.White.LeaveGame()
	}
	if !s.Black.IsAI() {
		s.Black.LeaveGame()
	}

	m.broadcastLocked(s, messages.OutboundMessage{
		Event: messages.EventGameEnd,
		Payload: messages.GameEndPayload{
			Result: result,
			PGN:    s.Board.PGN(),
		},
	})

	m.logger.Info("session finished",
		zap.String("session_id", s.ID.String()),
		zap.String("result", result))

	m.publisher.Publish(events.Event{
		Type:    events.EventSessionFinished,
		GameID:  s.ID.String(),
		Payload: map[string]string{"result": result},
	})

	sessionID := s.ID
	s.retainTimer = time.AfterFunc(m.cfg.SessionRetention, func() {
		m.remove(sessionID)
	})
}

// broadcastLocked fans an event out to every human participant.
// Callers hold s.mu; the per-connection send buffers preserve the order
// events were issued in.
func (m *Manager) broadcastLocked(s *Session, msg messages.OutboundMessage) {
	for _, connID := range s.humanConns() {
		m.notifier.ToConnection(connID, msg)
	}
}

// sessionOf resolves the player's current session, or nil when the
// player is unknown, idle, or the session is already gone.
func (m *Manager) sessionOf(p *player.Player) *Session {
	if p == nil || !p.InGame || p.GameID == nil {
		return nil
	}
	s, ok := m.Get(*p.GameID)
	if !ok {
		return nil
	}
	return s
}

// Get returns a session by id. Finished sessions remain resolvable until
// their retention window lapses.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of tracked sessions, including recently
// finished ones still inside their retention window.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ActiveCount returns the number of sessions still being played.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.sessions {
		s.mu.Lock()
		if s.Status == StatusActive {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// remove purges a session once its retention window lapses.
func (m *Manager) remove(id uuid.UUID) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return
	}

	m.logger.Info("removed session", zap.String("session_id", id.String()))

	m.publisher.Publish(events.Event{
		Type:   events.EventSessionRemoved,
		GameID: id.String(),
	})
}
