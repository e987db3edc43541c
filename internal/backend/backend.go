// Package backend talks to the hosted (or local) chat models.
//
// Each Backend takes the whole conversation and a credential and answers
// with one completion. Nothing here retries; a failed call is reported as is.
package backend

import (
	"context"
	"fmt"
	"net/http"

	"SessionChat/internal/config"
	"SessionChat/internal/message"
)

// Backend is one model inference endpoint
type Backend interface {
	Name() string
	Complete(ctx context.Context, apiKey string, messages []message.Message) (*Completion, error)
}

// Completion is the single reply of a model call
type Completion struct {
	Content string
	Model   string
	Usage   map[string]int64
}

// APIError is a non-2xx answer from a model endpoint
type APIError struct {
	Status string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Status, e.Body)
}

// New builds the backend selected by cfg.Backend
func New(cfg config.Config) (Backend, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	ep := cfg.Endpoint()

	switch cfg.Backend {
	case config.BackendOpenAI, config.BackendGrok:
		return &OpenAI{
			name:        cfg.Backend,
			baseURL:     ep.BaseURL,
			model:       ep.Model,
			temperature: cfg.Temperature,
			httpClient:  httpClient,
		}, nil
	case config.BackendAnthropic:
		return NewAnthropic(ep.BaseURL, ep.Model, cfg.MaxTokens, cfg.Temperature, httpClient), nil
	case config.BackendOllama:
		return &Ollama{baseURL: ep.BaseURL, model: ep.Model, httpClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

// resultText renders a stored tool or function result as plain user text.
// Chat APIs reject a tool-role message that does not follow the assistant
// turn which requested it, and stored history never carries that request.
func resultText(msg message.Message) string {
	if msg.Kind == message.KindFunction {
		return fmt.Sprintf("[function %s]\n%s", msg.Name, msg.Content)
	}
	return fmt.Sprintf("[tool result %s]\n%s", msg.ToolCallID, msg.Content)
}
