package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessmentor/arena-server/pkg/rules"
)

func TestRandomProvider_ReturnsLegalMove(t *testing.T) {
	p := RandomProvider{}

	history := []string{"e2e4"}
	move, err := p.BestMove("", history)
	require.NoError(t, err)

	board, err := rules.Replay(history)
	require.NoError(t, err)
	assert.Contains(t, board.LegalMoves(), move)
}

func TestRandomProvider_NoMoveInMatedPosition(t *testing.T) {
	p := RandomProvider{}

	// Fool's mate: black has just delivered checkmate.
	_, err := p.BestMove("", []string{"f2f3", "e7e5", "g2g4", "d8h4"})
	assert.ErrorIs(t, err, ErrNoMove)
}

func TestRandomProvider_BadHistory(t *testing.T) {
	p := RandomProvider{}

	_, err := p.BestMove("", []string{"not-a-move"})
	assert.Error(t, err)
}
