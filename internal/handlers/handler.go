package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/chattitude/chattitude/internal/services"
	"github.com/chattitude/chattitude/internal/store"
)

type Handler struct {
	Sessions *services.SessionService
	Local    *services.LocalService
	Oracle   *services.OracleService
	Log      zerolog.Logger
}

func NewHandler(sessions *services.SessionService, local *services.LocalService, oracle *services.OracleService, log zerolog.Logger) *Handler {
	return &Handler{Sessions: sessions, Local: local, Oracle: oracle, Log: log}
}

// IntroPage renders the intro view. A ?room=<sessionId> link switches the
// template into the join flow for that session.
func (h *Handler) IntroPage(c *fiber.Ctx) error {
	return c.Render("index", fiber.Map{
		"JoinRoomID": c.Query("room"),
	})
}

type analyzeRequest struct {
	Message string `json:"message"`
	Context string `json:"context"`
}

// Analyze relays one classification request to the oracle, injecting the
// credential server-side. Upstream failures pass their status through.
func (h *Handler) Analyze(c *fiber.Ctx) error {
	var req analyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message is required"})
	}

	verdict, err := h.Oracle.Analyze(c.Context(), req.Message, req.Context)
	if err != nil {
		var oerr *services.OracleError
		if errors.As(err, &oerr) {
			return c.Status(oerr.StatusCode).JSON(fiber.Map{
				"error":   "API request failed",
				"details": oerr.Details,
			})
		}
		h.Log.Error().Err(err).Msg("analyze failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to analyze message",
			"details": err.Error(),
		})
	}
	return c.JSON(verdict)
}

type createSessionRequest struct {
	Topic string `json:"topic"`
	Name  string `json:"name"`
}

func (h *Handler) CreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	sess, token, err := h.Sessions.Create(c.Context(), req.Topic, req.Name)
	if err != nil {
		return h.sessionError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"sessionId": sess.ID,
		"slot":      1,
		"token":     token,
		"session":   sess,
	})
}

type joinSessionRequest struct {
	Name string `json:"name"`
}

func (h *Handler) JoinSession(c *fiber.Ctx) error {
	var req joinSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	sess, token, err := h.Sessions.Join(c.Context(), c.Params("id"), req.Name)
	if err != nil {
		return h.sessionError(c, err)
	}
	return c.JSON(fiber.Map{
		"sessionId": sess.ID,
		"slot":      2,
		"token":     token,
		"session":   sess,
	})
}

func (h *Handler) GetSession(c *fiber.Ctx) error {
	sess, err := h.Sessions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.sessionError(c, err)
	}
	return c.JSON(sess)
}

type appendTurnRequest struct {
	Token string `json:"token"`
	Text  string `json:"text"`
}

// AppendTurn classifies the message against the session's recent context and
// appends it transactionally. Classification failure degrades to a neutral
// verdict; it never blocks the send. Validation and the token/ownership
// checks run first, so a rejected request costs no oracle call.
func (h *Handler) AppendTurn(c *fiber.Ctx) error {
	var req appendTurnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	id := c.Params("id")

	recent, err := h.Sessions.PrepareTurn(c.Context(), id, req.Token, req.Text)
	if err != nil {
		return h.sessionError(c, err)
	}
	verdict := h.Oracle.Classify(c.Context(), req.Text, recent)

	sess, err := h.Sessions.AppendTurn(c.Context(), id, req.Token, req.Text, verdict)
	if err != nil {
		return h.sessionError(c, err)
	}
	return c.JSON(sess)
}

// sessionError maps service and store errors onto the HTTP surface.
func (h *Handler) sessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	case errors.Is(err, services.ErrAlreadyJoined):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session already has two participants"})
	case errors.Is(err, services.ErrBadToken):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unknown participant token"})
	case errors.Is(err, services.ErrNotYourTurn):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not your turn"})
	case errors.Is(err, store.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Concurrent update, please retry"})
	case errors.Is(err, services.ErrEmptyTopic),
		errors.Is(err, services.ErrEmptyName),
		errors.Is(err, services.ErrEmptyMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	h.Log.Error().Err(err).Msg("session operation failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal error"})
}

type createLocalRequest struct {
	Topic     string `json:"topic"`
	PlayerOne string `json:"playerOne"`
	PlayerTwo string `json:"playerTwo"`
}

func (h *Handler) CreateLocalGame(c *fiber.Ctx) error {
	var req createLocalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	state, err := h.Local.Create(req.Topic, req.PlayerOne, req.PlayerTwo)
	if err != nil {
		return h.localError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(state)
}

type localInputRequest struct {
	Text string `json:"text"`
}

func (h *Handler) LocalInput(c *fiber.Ctx) error {
	var req localInputRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	state, err := h.Local.SetInput(c.Params("id"), req.Text)
	if err != nil {
		return h.localError(c, err)
	}
	return c.JSON(state)
}

func (h *Handler) LocalSend(c *fiber.Ctx) error {
	state, err := h.Local.Send(c.Params("id"))
	if err != nil {
		return h.localError(c, err)
	}
	return c.JSON(state)
}

func (h *Handler) LocalSendNow(c *fiber.Ctx) error {
	state, err := h.Local.SendNow(c.Params("id"))
	if err != nil {
		return h.localError(c, err)
	}
	return c.JSON(state)
}

func (h *Handler) LocalCancel(c *fiber.Ctx) error {
	state, err := h.Local.Cancel(c.Params("id"))
	if err != nil {
		return h.localError(c, err)
	}
	return c.JSON(state)
}

func (h *Handler) LocalGet(c *fiber.Ctx) error {
	state, err := h.Local.Get(c.Params("id"))
	if err != nil {
		return h.localError(c, err)
	}
	return c.JSON(state)
}

// LocalEnd tears a single-device match down. This is a purely local
// transition; nothing shared exists for a local game.
func (h *Handler) LocalEnd(c *fiber.Ctx) error {
	if err := h.Local.End(c.Params("id")); err != nil {
		return h.localError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) localError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrGameNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Game not found"})
	case errors.Is(err, services.ErrBusy),
		errors.Is(err, services.ErrAlreadyPending):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNothingToSend),
		errors.Is(err, services.ErrNothingPending),
		errors.Is(err, services.ErrEmptyTopic),
		errors.Is(err, services.ErrEmptyName),
		errors.Is(err, services.ErrEmptyMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	h.Log.Error().Err(err).Msg("local game operation failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal error"})
}
