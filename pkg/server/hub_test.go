package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chessmentor/arena-server/pkg/config"
	"github.com/chessmentor/arena-server/pkg/engine"
	"github.com/chessmentor/arena-server/pkg/events"
	"github.com/chessmentor/arena-server/pkg/game"
	"github.com/chessmentor/arena-server/pkg/matchmaking"
	"github.com/chessmentor/arena-server/pkg/messages"
	"github.com/chessmentor/arena-server/pkg/player"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func newTestHub(t *testing.T, mutate func(*config.Config)) (*Hub, *Registry, *events.Publisher) {
	t.Helper()

	cfg := config.Default()
	cfg.AIMoveDelay = 10 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	logger := zap.NewNop()
	publisher := events.NewPublisher()
	registry := NewRegistry(logger)
	hub := NewHub(registry, publisher, logger)

	manager := game.NewManager(cfg, hub, engine.RandomProvider{}, publisher, logger)
	queue := matchmaking.NewQueue(cfg, hub, func(a, b *player.Player) {
		manager.CreateHumanGame(a, b)
	}, publisher, logger)
	hub.Attach(queue, manager)

	go hub.Run()
	t.Cleanup(hub.Shutdown)

	return hub, registry, publisher
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	hub, _, _ := newTestHub(t, mutate)
	logger := zap.NewNop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConnection(ws, hub, logger)
		hub.Register(conn)
		go conn.WritePump()
		go conn.ReadPump()
	}))

	t.Cleanup(srv.Close)

	return srv
}

type testClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	return &testClient{t: t, ws: ws}
}

func (c *testClient) send(action string, payload interface{}) {
	c.t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(c.t, err)
	msg, err := json.Marshal(messages.InboundMessage{Type: action, Payload: raw})
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, msg))
}

type outboundEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// waitFor reads messages until the wanted event arrives, skipping
// everything else.
func (c *testClient) waitFor(event string) json.RawMessage {
	c.t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.ws.SetReadDeadline(deadline))
		_, raw, err := c.ws.ReadMessage()
		require.NoError(c.t, err, "waiting for %q", event)

		var env outboundEnvelope
		require.NoError(c.t, json.Unmarshal(raw, &env))
		if env.Event == event {
			return env.Payload
		}
	}
}

func TestHub_JoinAck(t *testing.T) {
	srv := newTestServer(t, nil)
	c := dial(t, srv)

	c.send(messages.ActionJoin, messages.JoinPayload{Name: "x", Elo: 1400})

	var payload messages.ConnectedPayload
	require.NoError(t, json.Unmarshal(c.waitFor(messages.EventConnected), &payload))
	assert.NotEmpty(t, payload.PlayerID)
	assert.Contains(t, payload.Message, "Connected")
}

func TestHub_AIGameFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	c := dial(t, srv)

	c.send(messages.ActionJoin, messages.JoinPayload{Name: "x", Elo: 1200})
	c.waitFor(messages.EventConnected)

	c.send(messages.ActionFindGame, messages.FindGamePayload{Mode: "ai"})

	var start messages.GameStartPayload
	require.NoError(t, json.Unmarshal(c.waitFor(messages.EventGameStart), &start))
	assert.Equal(t, "white", string(start.Color))
	assert.Equal(t, "ChessMentor AI", start.Opponent.Name)
	assert.NotEmpty(t, start.GameID)
	assert.NotEmpty(t, start.FEN)

	c.send(messages.ActionMakeMove, messages.MakeMovePayload{Move: "e2e4"})

	var moved messages.MoveMadePayload
	require.NoError(t, json.Unmarshal(c.waitFor(messages.EventMoveMade), &moved))
	assert.Equal(t, "e2e4", moved.Move.UCI)
	assert.Equal(t, "black", string(moved.CurrentTurn))

	// The AI replies through the same path.
	var reply messages.MoveMadePayload
	require.NoError(t, json.Unmarshal(c.waitFor(messages.EventMoveMade), &reply))
	assert.Equal(t, "white", string(reply.CurrentTurn))
	assert.NotEmpty(t, reply.Move.UCI)
}

func TestHub_InvalidMoveNotice(t *testing.T) {
	srv := newTestServer(t, nil)
	c := dial(t, srv)

	c.send(messages.ActionJoin, messages.JoinPayload{Name: "x", Elo: 1200})
	c.waitFor(messages.EventConnected)
	c.send(messages.ActionFindGame, messages.FindGamePayload{Mode: "ai"})
	c.waitFor(messages.EventGameStart)

	c.send(messages.ActionMakeMove, messages.MakeMovePayload{Move: "e2e5"})

	var payload messages.InvalidMovePayload
	require.NoError(t, json.Unmarshal(c.waitFor(messages.EventInvalidMove), &payload))
	assert.Equal(t, "Invalid move", payload.Error)
}

func TestHub_MultiplayerMatchAndChat(t *testing.T) {
	srv := newTestServer(t, nil)

	a := dial(t, srv)
	b := dial(t, srv)

	a.send(messages.ActionJoin, messages.JoinPayload{Name: "a", Elo: 1200})
	a.waitFor(messages.EventConnected)
	b.send(messages.ActionJoin, messages.JoinPayload{Name: "b", Elo: 1350})
	b.waitFor(messages.EventConnected)

	a.send(messages.ActionFindGame, messages.FindGamePayload{Mode: "multiplayer"})
	a.waitFor(messages.EventSearching)
	b.send(messages.ActionFindGame, messages.FindGamePayload{Mode: "multiplayer"})

	var startA, startB messages.GameStartPayload
	require.NoError(t, json.Unmarshal(a.waitFor(messages.EventGameStart), &startA))
	require.NoError(t, json.Unmarshal(b.waitFor(messages.EventGameStart), &startB))

	assert.Equal(t, startA.GameID, startB.GameID)
	assert.NotEqual(t, startA.Color, startB.Color)
	assert.Equal(t, "b", startA.Opponent.Name)
	assert.Equal(t, "a", startB.Opponent.Name)

	// Chat reaches both participants.
	a.send(messages.ActionChat, messages.ChatPayload{Message: "glhf"})

	var chatA, chatB messages.ChatMessagePayload
	require.NoError(t, json.Unmarshal(a.waitFor(messages.EventChat), &chatA))
	require.NoError(t, json.Unmarshal(b.waitFor(messages.EventChat), &chatB))
	assert.Equal(t, "glhf", chatA.Message)
	assert.Equal(t, "a", chatB.Player)

	// White makes the first move; both sides observe it.
	white := a
	if startB.Color == "white" {
		white = b
	}
	white.send(messages.ActionMakeMove, messages.MakeMovePayload{Move: "e2e4"})

	var movedA, movedB messages.MoveMadePayload
	require.NoError(t, json.Unmarshal(a.waitFor(messages.EventMoveMade), &movedA))
	require.NoError(t, json.Unmarshal(b.waitFor(messages.EventMoveMade), &movedB))
	assert.Equal(t, movedA.FEN, movedB.FEN)
	assert.Equal(t, "black", string(movedA.CurrentTurn))
}

func TestHub_DisconnectForfeitsAfterGrace(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.AbandonGrace = 50 * time.Millisecond
	})

	a := dial(t, srv)
	b := dial(t, srv)

	a.send(messages.ActionJoin, messages.JoinPayload{Name: "a", Elo: 1200})
	a.waitFor(messages.EventConnected)
	b.send(messages.ActionJoin, messages.JoinPayload{Name: "b", Elo: 1200})
	b.waitFor(messages.EventConnected)

	a.send(messages.ActionFindGame, messages.FindGamePayload{Mode: "multiplayer"})
	a.waitFor(messages.EventSearching)
	b.send(messages.ActionFindGame, messages.FindGamePayload{Mode: "multiplayer"})
	a.waitFor(messages.EventGameStart)
	b.waitFor(messages.EventGameStart)

	b.ws.Close()

	var paused messages.OpponentDisconnectedPayload
	require.NoError(t, json.Unmarshal(a.waitFor(messages.EventOpponentDisconnected), &paused))
	assert.Contains(t, paused.Message, "disconnected")

	var end messages.GameEndPayload
	require.NoError(t, json.Unmarshal(a.waitFor(messages.EventGameEnd), &end))
	assert.Contains(t, end.Result, "wins by abandonment")
}

func TestHub_SearchTimeout(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.MatchWaitTimeout = 50 * time.Millisecond
	})

	c := dial(t, srv)
	c.send(messages.ActionJoin, messages.JoinPayload{Name: "x", Elo: 1200})
	c.waitFor(messages.EventConnected)

	c.send(messages.ActionFindGame, messages.FindGamePayload{Mode: "multiplayer"})
	c.waitFor(messages.EventSearching)

	var payload messages.SearchTimeoutPayload
	require.NoError(t, json.Unmarshal(c.waitFor(messages.EventSearchTimeout), &payload))
	assert.Contains(t, payload.Message, "AI mode")
}

func TestHub_ResignEndsGame(t *testing.T) {
	srv := newTestServer(t, nil)
	c := dial(t, srv)

	c.send(messages.ActionJoin, messages.JoinPayload{Name: "x", Elo: 1200})
	c.waitFor(messages.EventConnected)
	c.send(messages.ActionFindGame, messages.FindGamePayload{Mode: "ai"})
	c.waitFor(messages.EventGameStart)

	c.send(messages.ActionResign, struct{}{})

	var end messages.GameEndPayload
	require.NoError(t, json.Unmarshal(c.waitFor(messages.EventGameEnd), &end))
	assert.Equal(t, "black wins by resignation", end.Result)
}

// Timer goroutines deliver through ToConnection while the hub tears the
// connection down; a send must never hit a closed channel.
func TestHub_SendRacingUnregisterDoesNotPanic(t *testing.T) {
	hub, _, _ := newTestHub(t, nil)

	msg := messages.OutboundMessage{
		Event:   messages.EventSearching,
		Payload: messages.SearchingPayload{Message: "x"},
	}

	for i := 0; i < 50; i++ {
		conn := NewConnection(nil, hub, zap.NewNop())
		hub.Register(conn)

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 100; k++ {
					hub.ToConnection(conn.ID, msg)
				}
			}()
		}

		hub.Unregister(conn)
		wg.Wait()
	}
}

// Switching from the multiplayer queue to an AI game must release the
// waiting entry, or the next enqueuer pairs against a busy player and
// ends up neither queued nor matched.
func TestHub_AIGameAfterQueueingClearsWaitingEntry(t *testing.T) {
	srv := newTestServer(t, nil)

	c1 := dial(t, srv)
	c1.send(messages.ActionJoin, messages.JoinPayload{Name: "c1", Elo: 1200})
	c1.waitFor(messages.EventConnected)
	c1.send(messages.ActionFindGame, messages.FindGamePayload{Mode: "multiplayer"})
	c1.waitFor(messages.EventSearching)

	c1.send(messages.ActionFindGame, messages.FindGamePayload{Mode: "ai"})
	c1.waitFor(messages.EventGameStart)

	c2 := dial(t, srv)
	c2.send(messages.ActionJoin, messages.JoinPayload{Name: "c2", Elo: 1200})
	c2.waitFor(messages.EventConnected)
	c2.send(messages.ActionFindGame, messages.FindGamePayload{Mode: "multiplayer"})

	// c2 must be queued with a live search, not silently consumed by
	// c1's abandoned entry.
	var payload messages.SearchingPayload
	require.NoError(t, json.Unmarshal(c2.waitFor(messages.EventSearching), &payload))
	assert.NotEmpty(t, payload.Message)
}

func TestHub_RepeatJoinPublishesOnce(t *testing.T) {
	hub, registry, publisher := newTestHub(t, nil)

	joined := make(chan events.Event, 4)
	publisher.Subscribe(events.EventPlayerJoined, func(e events.Event) {
		joined <- e
	})

	conn := NewConnection(nil, hub, zap.NewNop())
	hub.Register(conn)

	hub.handleJoin(conn, messages.JoinPayload{Name: "x", Elo: 1400})
	hub.handleJoin(conn, messages.JoinPayload{Name: "x", Elo: 1400})

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("join never published")
	}

	select {
	case <-joined:
		t.Fatal("repeat join published a second lifecycle event")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 1, registry.Count())
}
