package main

import (
	"os"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/template/html/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/chattitude/chattitude/internal/config"
	"github.com/chattitude/chattitude/internal/handlers"
	"github.com/chattitude/chattitude/internal/services"
	"github.com/chattitude/chattitude/internal/store"
)

func main() {
	cfg := config.Load()
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	engine := html.New(cfg.ViewsDir, ".html")
	app := fiber.New(fiber.Config{
		Views: engine,
	})
	app.Use(fiberlogger.New())

	var st store.SessionStore
	if cfg.RedisAddr != "" {
		st = store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.SessionTTL,
		}, logger)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis session store")
	} else {
		st = store.NewMemoryStore()
		logger.Info().Msg("using in-memory session store")
	}
	defer st.Close()

	oracle := services.NewOracleService(services.OracleConfig{
		Endpoint:  cfg.OracleEndpoint,
		Model:     cfg.OracleModel,
		APIKey:    cfg.OracleAPIKey,
		MaxTokens: cfg.OracleMaxTokens,
		Timeout:   cfg.OracleTimeout,
	}, logger)
	sessions := services.NewSessionService(st, cfg.Rules, logger)
	local := services.NewLocalService(oracle, cfg.Rules, services.TurnControllerConfig{
		CountdownSeconds: cfg.CountdownSeconds,
	}, logger)
	playback := services.NewPlaybackService(oracle, cfg.Rules, services.PlaybackConfig{
		ThinkingDelay: cfg.ThinkingDelay,
		MessageDelay:  cfg.MessageDelay,
	}, logger)

	h := handlers.NewHandler(sessions, local, oracle, logger)
	ws := handlers.NewWebSocketHandler(sessions, playback, services.DemoScript(), logger)

	app.Get("/", h.IntroPage)
	app.Post("/api/analyze", h.Analyze)

	app.Post("/api/sessions", h.CreateSession)
	app.Get("/api/sessions/:id", h.GetSession)
	app.Post("/api/sessions/:id/join", h.JoinSession)
	app.Post("/api/sessions/:id/turns", h.AppendTurn)

	app.Post("/api/local", h.CreateLocalGame)
	app.Get("/api/local/:id", h.LocalGet)
	app.Post("/api/local/:id/input", h.LocalInput)
	app.Post("/api/local/:id/send", h.LocalSend)
	app.Post("/api/local/:id/send-now", h.LocalSendNow)
	app.Post("/api/local/:id/cancel", h.LocalCancel)
	app.Delete("/api/local/:id", h.LocalEnd)

	app.Get("/ws/session/:id", ws.WebSocketMiddleware, websocket.New(ws.HandleSession))
	app.Get("/ws/demo", ws.WebSocketMiddleware, websocket.New(ws.HandleDemo))

	logger.Info().Str("addr", cfg.ListenAddr).Msg("chattitude server listening")
	if err := app.Listen(cfg.ListenAddr); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
