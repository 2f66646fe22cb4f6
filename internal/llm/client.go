package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitcoachapp/backend/internal/telemetry/tracing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var ErrNoAPIKey = errors.New("llm api key not set")

// Message is a single entry of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one completion call. Temperature and MaxTokens
// are optional, zero values leave the provider defaults in place.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int64
}

type Client struct {
	client  openai.Client
	apiKey  string
	model   string
	timeout time.Duration
}

type NewClientParams struct {
	APIKey string
	// BaseURL points the client at an OpenAI-compatible alternate provider.
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewClient(params NewClientParams) *Client {
	opts := []option.RequestOption{option.WithAPIKey(params.APIKey)}
	if params.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(params.BaseURL))
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	return &Client{
		client:  openai.NewClient(opts...),
		apiKey:  params.APIKey,
		model:   params.Model,
		timeout: timeout,
	}
}

// Complete runs one chat completion and returns the raw response text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "llm.complete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("llm.model", c.model))

	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}

	log.Debugf(
		"llm completion done, tokens used: %d (prompt) + %d (completion)",
		completion.Usage.PromptTokens, completion.Usage.CompletionTokens,
	)

	return completion.Choices[0].Message.Content, nil
}
