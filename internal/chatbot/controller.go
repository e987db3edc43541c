package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"SessionChat/internal/message"
)

// Runner produces one assistant reply for a history
type Runner interface {
	Run(ctx context.Context, history []message.Message) (message.Message, error)
}

// Appender persists a batch of messages atomically
type Appender interface {
	AppendMessages(ctx context.Context, sessionID string, msgs []message.Message) error
}

// Controller executes turns: one runner call, then one persisted batch
type Controller struct {
	runner Runner
	store  Appender
	logger *slog.Logger
}

// NewController creates a Controller
func NewController(r Runner, st Appender, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{runner: r, store: st, logger: logger}
}

// RunTurn appends the human message, runs the model and persists both messages.
//
// The returned history never holds a reply the store lacks. After any
// failure it ends with the unanswered human message and nothing was written,
// so the whole turn can be run again.
func (c *Controller) RunTurn(ctx context.Context, sessionID string, history []message.Message, userText string) ([]message.Message, message.Message, error) {
	human := message.Human(userText)
	updated := append(slices.Clone(history), human)

	reply, err := c.runner.Run(ctx, updated)
	if err != nil {
		return updated, message.Message{}, err
	}

	if err := c.store.AppendMessages(ctx, sessionID, []message.Message{human, reply}); err != nil {
		c.logger.Error("failed to persist turn", "session_id", sessionID, "error", err)
		return updated, message.Message{}, fmt.Errorf("failed to persist turn: %w", err)
	}
	updated = append(updated, reply)

	c.logger.Info("turn completed", "session_id", sessionID, "message_count", len(updated))
	return updated, reply, nil
}
