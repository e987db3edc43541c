package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"SessionChat/internal/message"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic calls the Messages API through the official SDK
type Anthropic struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewAnthropic returns an Anthropic backend; baseURL may be empty for the public API
func NewAnthropic(baseURL, model string, maxTokens int, temperature float64, httpClient *http.Client) *Anthropic {
	return &Anthropic{
		baseURL:     baseURL,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient:  httpClient,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

// Complete sends the conversation as one Messages.New call.
// System messages move into the system prompt; tool and function results
// have no standalone form there and are sent as user text.
func (a *Anthropic) Complete(ctx context.Context, apiKey string, messages []message.Message) (*Completion, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key not set")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if a.baseURL != "" {
		opts = append(opts, option.WithBaseURL(a.baseURL))
	}
	if a.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(a.httpClient))
	}
	client := anthropic.NewClient(opts...)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   int64(a.maxTokens),
		Temperature: anthropic.Float(a.temperature),
	}
	for _, msg := range messages {
		switch msg.Kind {
		case message.KindSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case message.KindHuman:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case message.KindAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case message.KindTool, message.KindFunction:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(resultText(msg))))
		}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(v.Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.New("empty response from Anthropic")
	}

	return &Completion{
		Content: text.String(),
		Model:   string(resp.Model),
		Usage: map[string]int64{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	}, nil
}
