// Package matchmaking pairs waiting players by rating proximity.
package matchmaking

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chessmentor/arena-server/pkg/config"
	"github.com/chessmentor/arena-server/pkg/events"
	"github.com/chessmentor/arena-server/pkg/messages"
	"github.com/chessmentor/arena-server/pkg/player"
)

// Notifier delivers an event to a single connection. Delivery to a
// connection that is gone is a silent no-op.
type Notifier interface {
	ToConnection(connID uuid.UUID, msg messages.OutboundMessage)
}

// MatchFunc is invoked with both players once a pairing is made. Both
// have already been removed from the queue when it runs.
type MatchFunc func(a, b *player.Player)

type entry struct {
	player     *player.Player
	enqueuedAt time.Time
	expiry     *time.Timer
}

// Queue holds players waiting for an opponent. Pairing picks the first
// waiter in insertion order whose rating is within the band; no
// closest-rating optimization is attempted. All queue mutation happens
// under one lock, so two concurrent enqueues can never both claim the
// same waiter.
type Queue struct {
	mu      sync.Mutex
	waiting []*entry

	band int
	wait time.Duration

	notifier  Notifier
	onMatch   MatchFunc
	publisher *events.Publisher
	logger    *zap.Logger
}

// NewQueue creates an empty queue.
func NewQueue(
	cfg *config.Config,
	notifier Notifier,
	onMatch MatchFunc,
	publisher *events.Publisher,
	logger *zap.Logger,
) *Queue {
	return &Queue{
		band:      cfg.MatchRatingBand,
		wait:      cfg.MatchWaitTimeout,
		notifier:  notifier,
		onMatch:   onMatch,
		publisher: publisher,
		logger:    logger,
	}
}

// Enqueue adds a player to the queue or pairs them with a compatible
// waiter. Players already in a game or already queued are ignored.
func (q *Queue) Enqueue(p *player.Player) {
	if p == nil || p.InGame {
		return
	}

	q.mu.Lock()

	// Drop waiters that entered a game since queueing; a stale entry
	// would consume the pairing without producing a session.
	kept := q.waiting[:0]
	for _, e := range q.waiting {
		if e.player.InGame {
			e.expiry.Stop()
			continue
		}
		kept = append(kept, e)
	}
	q.waiting = kept

	for _, e := range q.waiting {
		if e.player.ConnID == p.ConnID {
			q.mu.Unlock()
			return
		}
	}

	for i, e := range q.waiting {
		if abs(e.player.Rating-p.Rating) <= q.band {
			opponent := e.player
			e.expiry.Stop()
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			q.mu.Unlock()

			q.logger.Info("match found",
				zap.String("player", p.Name),
				zap.String("opponent", opponent.Name),
				zap.Int("rating_diff", abs(opponent.Rating-p.Rating)))

			q.publisher.Publish(events.Event{
				Type: events.EventMatchFound,
				Payload: map[string]string{
					"player_a": opponent.ConnID.String(),
					"player_b": p.ConnID.String(),
				},
			})

			q.onMatch(opponent, p)
			return
		}
	}

	connID := p.ConnID
	e := &entry{
		player:     p,
		enqueuedAt: time.Now(),
	}
	e.expiry = time.AfterFunc(q.wait, func() {
		q.expire(connID)
	})
	q.waiting = append(q.waiting, e)
	q.mu.Unlock()

	q.notifier.ToConnection(p.ConnID, messages.OutboundMessage{
		Event:   messages.EventSearching,
		Payload: messages.SearchingPayload{Message: "Looking for opponent..."},
	})
}

// Remove drops a player from the queue if present, cancelling their
// expiry timer. Safe to call for players that were never queued.
func (q *Queue) Remove(p *player.Player) {
	if p == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.waiting {
		if e.player.ConnID == p.ConnID {
			e.expiry.Stop()
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return
		}
	}
}

// Len returns the number of waiting players.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Contains reports whether the connection has a waiting entry.
func (q *Queue) Contains(connID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.waiting {
		if e.player.ConnID == connID {
			return true
		}
	}
	return false
}

// expire fires when a waiter's timeout elapses. The entry may already be
// gone if the player was matched or removed just before the timer fired.
func (q *Queue) expire(connID uuid.UUID) {
	q.mu.Lock()
	found := false
	for i, e := range q.waiting {
		if e.player.ConnID == connID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			found = true
			break
		}
	}
	q.mu.Unlock()

	if !found {
		return
	}

	q.logger.Info("matchmaking timed out", zap.String("connection_id", connID.String()))

	q.publisher.Publish(events.Event{
		Type:    events.EventSearchTimeout,
		Payload: map[string]string{"connection_id": connID.String()},
	})

	q.notifier.ToConnection(connID, messages.OutboundMessage{
		Event:   messages.EventSearchTimeout,
		Payload: messages.SearchTimeoutPayload{Message: "No opponent found. Try AI mode?"},
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
