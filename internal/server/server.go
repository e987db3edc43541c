// Package server exposes a ChatBot over a JSON HTTP API.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"SessionChat/internal/auth"
	"SessionChat/internal/chatbot"
	"SessionChat/internal/message"
	"SessionChat/internal/runner"
	"SessionChat/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Handler serves the HTTP API of one ChatBot
type Handler struct {
	bot    *chatbot.ChatBot
	logger *slog.Logger
}

// NewHandler creates a Handler
func NewHandler(bot *chatbot.ChatBot, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{bot: bot, logger: logger}
}

// New returns an echo server with middleware and all routes registered
func New(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	h.RegisterRoutes(e)
	return e
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/login", h.Login)
	e.POST("/api/logout", h.Logout)

	e.GET("/api/sessions", h.ListSessions)
	e.POST("/api/sessions", h.CreateSession)
	e.POST("/api/sessions/:id/select", h.SelectSession)

	e.GET("/api/conversation", h.GetConversation)
	e.POST("/api/turn", h.Turn)
	e.POST("/api/retry", h.Retry)

	e.GET("/health", h.Health)
}

// LoginRequest carries the credential to validate
type LoginRequest struct {
	APIKey string `json:"api_key"`
}

// CreateSessionRequest names a new session
type CreateSessionRequest struct {
	Name string `json:"name"`
}

// TurnRequest carries the user's text
type TurnRequest struct {
	Text string `json:"text"`
}

// ConversationResponse is the visible part of the working conversation
type ConversationResponse struct {
	SessionID string            `json:"session_id"`
	Name      string            `json:"name"`
	Messages  []message.Message `json:"messages"`
	Pending   bool              `json:"pending"`
}

// TurnResponse carries the assistant reply
type TurnResponse struct {
	Reply string `json:"reply"`
}

// Login validates a credential.
// POST /api/login
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.APIKey == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "api_key is required"})
	}
	if err := h.bot.Login(c.Request().Context(), req.APIKey); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// Logout forgets the credential.
// POST /api/logout
func (h *Handler) Logout(c echo.Context) error {
	h.bot.Logout()
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// ListSessions lists the owner's sessions.
// GET /api/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	sessions, err := h.bot.Sessions(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

// CreateSession creates a session and selects it.
// POST /api/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}

	id, err := h.bot.NewSession(c.Request().Context(), req.Name)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id, "name": req.Name})
}

// SelectSession makes a stored session active.
// POST /api/sessions/:id/select
func (h *Handler) SelectSession(c echo.Context) error {
	if err := h.bot.SwitchSession(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return h.GetConversation(c)
}

// GetConversation returns the working conversation without system messages.
// GET /api/conversation
func (h *Handler) GetConversation(c echo.Context) error {
	snap, err := h.bot.Snapshot()
	if err != nil {
		return h.fail(c, err)
	}

	visible := []message.Message{}
	for _, m := range snap.Conversation {
		if m.Kind != message.KindSystem {
			visible = append(visible, m)
		}
	}
	return c.JSON(http.StatusOK, ConversationResponse{
		SessionID: snap.SessionID,
		Name:      snap.SessionName,
		Messages:  visible,
		Pending:   snap.Pending,
	})
}

// Turn sends one user message and returns the reply.
// POST /api/turn
func (h *Handler) Turn(c echo.Context) error {
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	reply, err := h.bot.Send(c.Request().Context(), req.Text)
	return h.turnResult(c, reply, err)
}

// Retry re-sends the pending user message.
// POST /api/retry
func (h *Handler) Retry(c echo.Context) error {
	reply, err := h.bot.Retry(c.Request().Context())
	return h.turnResult(c, reply, err)
}

// Health reports liveness.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) turnResult(c echo.Context, reply message.Message, err error) error {
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, TurnResponse{Reply: reply.Content})
}

// fail maps err onto a status code and writes it as a JSON error
func (h *Handler) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredential), errors.Is(err, chatbot.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, chatbot.ErrNoSession), errors.Is(err, chatbot.ErrNothingPending):
		return http.StatusConflict
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, runner.ErrInference):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
