// Package chatbot holds the front-end state of one user: credential,
// active session and the working conversation.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"SessionChat/internal/auth"
	"SessionChat/internal/backend"
	"SessionChat/internal/config"
	"SessionChat/internal/message"
	"SessionChat/internal/runner"
	"SessionChat/internal/store"
)

var (
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrNoSession      = errors.New("no active session")
	ErrNothingPending = errors.New("no pending message to retry")
)

// Store is the persistence the ChatBot needs
type Store interface {
	Appender
	CreateSession(ctx context.Context, name, ownerHash string) (string, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	ListSessions(ctx context.Context, ownerHash string) ([]store.SessionSummary, error)
	LoadHistory(ctx context.Context, sessionID string) ([]message.Message, error)
}

// ChatBot represents the main application
type ChatBot struct {
	config  config.Config
	backend backend.Backend
	store   Store
	logger  *slog.Logger
	mu      sync.Mutex

	ownerHash  string
	controller *Controller

	sessionID    string
	sessionName  string
	conversation []message.Message
	pending      bool
}

// NewChatBot creates a logged-out ChatBot
func NewChatBot(cfg config.Config, b backend.Backend, st Store, logger *slog.Logger) *ChatBot {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatBot{
		config:  cfg,
		backend: b,
		store:   st,
		logger:  logger,
	}
}

// Login validates the credential with a trial call and keeps it on success
func (cb *ChatBot) Login(ctx context.Context, credential string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.reset()
	if err := auth.Validate(ctx, cb.backend, credential); err != nil {
		cb.logger.Warn("login rejected", "error", err)
		return err
	}

	cb.ownerHash = auth.OwnerHash(credential)
	cb.controller = NewController(runner.New(cb.backend, credential, runner.WithLogger(cb.logger)), cb.store, cb.logger)
	cb.logger.Info("logged in")
	return nil
}

// Logout forgets the credential and the working state
func (cb *ChatBot) Logout() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.reset()
	cb.logger.Info("logged out")
}

// LoggedIn reports whether a credential has been accepted
func (cb *ChatBot) LoggedIn() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.controller != nil
}

// Sessions lists the sessions of the logged-in owner, newest first
func (cb *ChatBot) Sessions(ctx context.Context) ([]store.SessionSummary, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.controller == nil {
		return nil, ErrNotLoggedIn
	}
	return cb.store.ListSessions(ctx, cb.ownerHash)
}

// NewSession creates a session and makes it active
func (cb *ChatBot) NewSession(ctx context.Context, name string) (string, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.controller == nil {
		return "", ErrNotLoggedIn
	}
	id, err := cb.store.CreateSession(ctx, name, cb.ownerHash)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	cb.activate(id, name, nil)
	cb.logger.Info("created new session", "session_id", id)
	return id, nil
}

// SwitchSession loads a session of the current owner and makes it active.
// The previous working state is discarded without writing.
func (cb *ChatBot) SwitchSession(ctx context.Context, id string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.controller == nil {
		return ErrNotLoggedIn
	}
	sess, err := cb.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.OwnerHash != cb.ownerHash {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	history, err := cb.store.LoadHistory(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	cb.activate(sess.ID, sess.Name, history)
	cb.logger.Info("loaded existing session", "session_id", id, "message_count", len(history))
	return nil
}

// Active returns the id and name of the active session
func (cb *ChatBot) Active() (id, name string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.sessionID, cb.sessionName
}

// Send runs one turn on the active session and returns the reply.
// A human message left unanswered by an earlier failure is dropped first.
func (cb *ChatBot) Send(ctx context.Context, text string) (message.Message, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err := cb.ready(); err != nil {
		return message.Message{}, err
	}
	if cb.pending {
		cb.dropPending()
	}
	return cb.turn(ctx, text)
}

// Retry re-runs the pending turn with the same text
func (cb *ChatBot) Retry(ctx context.Context) (message.Message, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err := cb.ready(); err != nil {
		return message.Message{}, err
	}
	if !cb.pending {
		return message.Message{}, ErrNothingPending
	}
	text := cb.conversation[len(cb.conversation)-1].Content
	cb.dropPending()
	return cb.turn(ctx, text)
}

// Snapshot is a consistent view of the working state
type Snapshot struct {
	SessionID    string
	SessionName  string
	Conversation []message.Message
	Pending      bool
}

// Snapshot returns the active session and its working state under one lock
func (cb *ChatBot) Snapshot() (Snapshot, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.controller == nil {
		return Snapshot{}, ErrNotLoggedIn
	}
	return Snapshot{
		SessionID:    cb.sessionID,
		SessionName:  cb.sessionName,
		Conversation: slices.Clone(cb.conversation),
		Pending:      cb.pending,
	}, nil
}

// Conversation returns a copy of the working conversation
func (cb *ChatBot) Conversation() []message.Message {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return slices.Clone(cb.conversation)
}

// Pending reports whether the last human message is unanswered or unsaved
func (cb *ChatBot) Pending() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.pending
}

func (cb *ChatBot) turn(ctx context.Context, text string) (message.Message, error) {
	updated, reply, err := cb.controller.RunTurn(ctx, cb.sessionID, cb.conversation, text)
	cb.conversation = updated
	cb.pending = err != nil
	return reply, err
}

func (cb *ChatBot) dropPending() {
	cb.conversation = cb.conversation[:len(cb.conversation)-1]
	cb.pending = false
}

func (cb *ChatBot) ready() error {
	if cb.controller == nil {
		return ErrNotLoggedIn
	}
	if cb.sessionID == "" {
		return ErrNoSession
	}
	return nil
}

// activate replaces the working state; an empty history is seeded with the
// default system prompt, which is never persisted
func (cb *ChatBot) activate(id, name string, history []message.Message) {
	if len(history) == 0 {
		history = []message.Message{message.System(config.DefaultSystemPrompt)}
	}
	cb.sessionID = id
	cb.sessionName = name
	cb.conversation = history
	cb.pending = false
}

func (cb *ChatBot) reset() {
	cb.ownerHash = ""
	cb.controller = nil
	cb.sessionID = ""
	cb.sessionName = ""
	cb.conversation = nil
	cb.pending = false
}
