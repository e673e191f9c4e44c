// Package engine is the seam through which AI moves reach the server.
// How a move is produced is not this server's concern; the session
// manager only requires that some move eventually materializes for a
// position and that it can discard a stale answer.
package engine

import (
	"errors"
	"math/rand"

	"github.com/chessmentor/arena-server/pkg/rules"
)

// ErrNoMove is returned when a provider cannot produce a move for the
// given position.
var ErrNoMove = errors.New("no move available")

// Provider produces a move for the side to play in the given position.
type Provider interface {
	BestMove(fen string, history []string) (string, error)
}

// RandomProvider plays a uniformly random legal move. It exists to
// exercise the seam; strength is explicitly not a goal.
type RandomProvider struct{}

// BestMove replays the game and picks a random legal move in UCI notation.
func (RandomProvider) BestMove(_ string, history []string) (string, error) {
	board, err := rules.Replay(history)
	if err != nil {
		return "", err
	}

	legal := board.LegalMoves()
	if len(legal) == 0 {
		return "", ErrNoMove
	}

	return legal[rand.Intn(len(legal))], nil
}
