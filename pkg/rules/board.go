// Package rules adapts the chess rules engine for the session server.
// The rest of the server treats a board as an opaque capability: apply a
// move, ask whether the position is terminal, export the game.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/chessmentor/arena-server/internal/color"
)

// ErrIllegalMove is returned when a move is rejected by the rules engine.
var ErrIllegalMove = errors.New("illegal move")

// Move is an applied move in both notations.
type Move struct {
	UCI string
	SAN string
}

// Board owns one game's position and move history. It is not safe for
// concurrent use; the session holding it serializes access.
type Board struct {
	game  *nchess.Game
	moves []Move
}

// NewBoard creates a board at the initial position.
func NewBoard() *Board {
	return &Board{game: nchess.NewGame()}
}

// Replay rebuilds a board from the initial position by applying the given
// UCI moves in order.
func Replay(moves []string) (*Board, error) {
	b := NewBoard()
	for i, mv := range moves {
		if _, err := b.Apply(mv); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, mv, err)
		}
	}
	return b, nil
}

// Apply validates and applies a move given in UCI or SAN notation. The
// position is untouched when the move is illegal.
func (b *Board) Apply(move string) (Move, error) {
	raw := strings.TrimSpace(move)
	if raw == "" {
		return Move{}, ErrIllegalMove
	}

	pos := b.game.Position()

	// UCI first, SAN as fallback, the order human clients send them in.
	if mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw)); err == nil {
		if err := b.game.Move(mv, nil); err != nil {
			return Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, raw)
		}
		applied := Move{
			UCI: mv.String(),
			SAN: nchess.AlgebraicNotation{}.Encode(pos, mv),
		}
		b.moves = append(b.moves, applied)
		return applied, nil
	}

	if err := b.game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
		return Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, raw)
	}

	history := b.game.Moves()
	last := history[len(history)-1]
	applied := Move{
		UCI: last.String(),
		SAN: nchess.AlgebraicNotation{}.Encode(pos, last),
	}
	b.moves = append(b.moves, applied)
	return applied, nil
}

// Turn returns the color whose move is legal next.
func (b *Board) Turn() color.Color {
	if b.game.Position().Turn() == nchess.White {
		return color.White
	}
	return color.Black
}

// Terminal reports whether the game has ended by the rules of chess and,
// if so, a human-readable result.
func (b *Board) Terminal() (string, bool) {
	outcome := b.game.Outcome()
	if outcome == nchess.NoOutcome {
		return "", false
	}

	switch b.game.Method() {
	case nchess.Checkmate:
		if outcome == nchess.WhiteWon {
			return "White wins by checkmate", true
		}
		return "Black wins by checkmate", true
	case nchess.Stalemate:
		return "Draw by stalemate", true
	case nchess.InsufficientMaterial:
		return "Draw by insufficient material", true
	case nchess.ThreefoldRepetition:
		return "Draw by repetition", true
	default:
		if outcome == nchess.Draw {
			return "Draw", true
		}
		return "Game over", true
	}
}

// FEN encodes the current position.
func (b *Board) FEN() string {
	return b.game.FEN()
}

// PGN exports the full game transcript.
func (b *Board) PGN() string {
	return strings.TrimSpace(b.game.String())
}

// History returns the applied moves in order.
func (b *Board) History() []Move {
	out := make([]Move, len(b.moves))
	copy(out, b.moves)
	return out
}

// MoveCount returns the number of applied half-moves.
func (b *Board) MoveCount() int {
	return len(b.moves)
}

// LegalMoves lists every legal move in the current position in UCI
// notation. Used by the AI seam's default provider.
func (b *Board) LegalMoves() []string {
	valid := b.game.ValidMoves()
	out := make([]string, 0, len(valid))
	for _, mv := range valid {
		out = append(out, mv.String())
	}
	return out
}
