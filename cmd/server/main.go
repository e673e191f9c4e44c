// Package main is the entry point of the application
package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chessmentor/arena-server/pkg/config"
	"github.com/chessmentor/arena-server/pkg/engine"
	"github.com/chessmentor/arena-server/pkg/events"
	"github.com/chessmentor/arena-server/pkg/game"
	"github.com/chessmentor/arena-server/pkg/matchmaking"
	"github.com/chessmentor/arena-server/pkg/player"
	"github.com/chessmentor/arena-server/pkg/server"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,

	CheckOrigin: func(r *http.Request) bool {
		// The session server has no cross-origin policy of its own.
		return true
	},
}

// application encapsulates global dependencies
type application struct {
	Logger    *zap.Logger
	Config    *config.Config
	Publisher *events.Publisher
	Hub       *server.Hub
	Manager   *game.Manager
	Server    *http.Server

	StartTime time.Time
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.String("port", "", "server port")
	flag.Parse()

	logger := initLogger(*debug)
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}

	cfg := config.Default()
	cfg.Debug = *debug
	cfg.LoadEnv()
	if *port != "" {
		cfg.Port = *port
	}

	publisher := events.NewPublisher()
	publisher.SubscribeAll(func(event events.Event) {
		logger.Debug("event",
			zap.String("type", string(event.Type)),
			zap.String("game_id", event.GameID))
	})

	registry := server.NewRegistry(logger)
	hub := server.NewHub(registry, publisher, logger)

	manager := game.NewManager(cfg, hub, engine.RandomProvider{}, publisher, logger)
	queue := matchmaking.NewQueue(cfg, hub, func(a, b *player.Player) {
		manager.CreateHumanGame(a, b)
	}, publisher, logger)
	hub.Attach(queue, manager)

	app := &application{
		Logger:    logger,
		Config:    cfg,
		Publisher: publisher,
		Hub:       hub,
		Manager:   manager,
		StartTime: time.Now(),
	}

	go app.Hub.Run()

	if err := app.serve(); err != nil {
		logger.Fatal("error serving", zap.Error(err))
	}
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// Shutdown cleans up resources
func (app *application) Shutdown() {
	if app.Hub != nil {
		app.Hub.Shutdown()
	}

	app.Logger.Info("All components shut down successfully")
}
