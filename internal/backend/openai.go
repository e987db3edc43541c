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

// OpenAIRequest represents the request body for OpenAI-compatible APIs
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

// OpenAIMessage is one chat message in OpenAI wire form
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIResponse represents the response from OpenAI-compatible APIs
type OpenAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]interface{} `json:"usage"`
}

// OpenAI calls an OpenAI-compatible chat completions endpoint (OpenAI, Grok)
type OpenAI struct {
	name        string
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// Name returns the configured backend name, openai or grok
func (o *OpenAI) Name() string { return o.name }

// Complete sends the conversation to /chat/completions
func (o *OpenAI) Complete(ctx context.Context, apiKey string, messages []message.Message) (*Completion, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: API key not set", o.name)
	}

	reqMessages := make([]OpenAIMessage, len(messages))
	for i, msg := range messages {
		switch msg.Kind {
		case message.KindTool, message.KindFunction:
			reqMessages[i] = OpenAIMessage{Role: "user", Content: resultText(msg)}
		default:
			reqMessages[i] = OpenAIMessage{Role: msg.Role(), Content: msg.Content}
		}
	}

	reqBody := OpenAIRequest{
		Model:       o.model,
		Messages:    reqMessages,
		Temperature: o.temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(o.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.Status, Body: string(body)}
	}

	var apiResp OpenAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from %s", o.name)
	}

	return &Completion{
		Content: apiResp.Choices[0].Message.Content,
		Model:   apiResp.Model,
		Usage:   usageCounts(apiResp.Usage),
	}, nil
}

// usageCounts keeps the numeric entries of a decoded usage object
func usageCounts(usage map[string]interface{}) map[string]int64 {
	if usage == nil {
		return nil
	}
	out := make(map[string]int64, len(usage))
	for key, value := range usage {
		if f, ok := value.(float64); ok {
			out[key] = int64(f)
		}
	}
	return out
}
