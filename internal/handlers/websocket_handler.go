package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/chattitude/chattitude/internal/services"
	"github.com/chattitude/chattitude/internal/store"
)

type WebSocketHandler struct {
	Sessions *services.SessionService
	Playback *services.PlaybackService
	Script   []services.ScriptedLine
	Log      zerolog.Logger
}

func NewWebSocketHandler(sessions *services.SessionService, playback *services.PlaybackService, script []services.ScriptedLine, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{Sessions: sessions, Playback: playback, Script: script, Log: log}
}

func (h *WebSocketHandler) WebSocketMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleSession streams every session change to the client as a full
// redacted snapshot, starting with the current value. The socket carries no
// client-to-server traffic; reads only detect the close.
func (h *WebSocketHandler) HandleSession(c *websocket.Conn) {
	defer func() {
		_ = c.Close()
	}()

	id := c.Params("id")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots, err := h.Sessions.Subscribe(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrSessionNotFound) {
			h.Log.Error().Err(err).Str("session", id).Msg("session subscribe failed")
		}
		_ = c.WriteJSON(fiber.Map{"error": subscribeErrorMessage(err)})
		return
	}
	go watchClose(c, cancel)

	for snap := range snapshots {
		if err := c.WriteJSON(snap); err != nil {
			return
		}
	}
}

// HandleDemo runs the scripted playback and streams one frame per demo turn.
// Closing the socket cancels the run, including any pending delay.
func (h *WebSocketHandler) HandleDemo(c *websocket.Conn) {
	defer func() {
		_ = c.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchClose(c, cancel)

	err := h.Playback.Run(ctx, h.Script, func(f services.Frame) {
		if err := c.WriteJSON(f); err != nil {
			cancel()
		}
	})
	if err != nil && ctx.Err() == nil {
		h.Log.Warn().Err(err).Msg("demo playback stopped")
	}
}

// subscribeErrorMessage maps a subscribe failure onto the client-facing
// error text, mirroring the REST surface: a missing session is named as
// such, anything else (store connectivity included) stays internal.
func subscribeErrorMessage(err error) string {
	if errors.Is(err, store.ErrSessionNotFound) {
		return "Session not found"
	}
	return "Internal error"
}

// watchClose cancels ctx as soon as the peer goes away.
func watchClose(c *websocket.Conn, cancel context.CancelFunc) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			cancel()
			return
		}
	}
}
