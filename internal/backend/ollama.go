package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"SessionChat/internal/message"
)

// OllamaRequest represents the request body for Ollama API
type OllamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
}

// OllamaResponse represents the response from Ollama API
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool  `json:"done"`
	PromptEvalCount int64 `json:"prompt_eval_count"`
	EvalCount       int64 `json:"eval_count"`
}

// OllamaTagsResponse represents the response from Ollama /api/tags endpoint
type OllamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// OllamaModel represents a single model in the Ollama tags response
type OllamaModel struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// Ollama calls a local Ollama server; it needs no credential
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func (o *Ollama) Name() string { return "ollama" }

// Model returns the model specification in use
func (o *Ollama) Model() string { return o.model }

// Complete sends the conversation to /api/chat without streaming
func (o *Ollama) Complete(ctx context.Context, _ string, messages []message.Message) (*Completion, error) {
	reqMessages := make([]map[string]string, len(messages))
	for i, msg := range messages {
		role := msg.Role()
		if role == "function" {
			role = "tool"
		}
		reqMessages[i] = map[string]string{
			"role":    role,
			"content": msg.Content,
		}
	}

	reqBody := OllamaRequest{
		Model:    o.model,
		Messages: reqMessages,
		Stream:   false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url("/api/chat"), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	var apiResp OllamaResponse
	if err := o.do(req, &apiResp); err != nil {
		return nil, err
	}

	return &Completion{
		Content: apiResp.Message.Content,
		Model:   apiResp.Model,
		Usage: map[string]int64{
			"prompt_tokens":     apiResp.PromptEvalCount,
			"completion_tokens": apiResp.EvalCount,
		},
	}, nil
}

// ListModels fetches the list of available Ollama models
func (o *Ollama) ListModels(ctx context.Context) ([]OllamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url("/api/tags"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var tagsResp OllamaTagsResponse
	if err := o.do(req, &tagsResp); err != nil {
		return nil, err
	}
	return tagsResp.Models, nil
}

func (o *Ollama) url(path string) string {
	return strings.TrimSuffix(o.baseURL, "/") + path
}

func (o *Ollama) do(req *http.Request, out interface{}) error {
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request (is Ollama running?): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.Status, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
