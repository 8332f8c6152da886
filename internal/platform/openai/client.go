package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/yungbote/quoteflow-backend/internal/config"
	"github.com/yungbote/quoteflow-backend/internal/observability"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

// Client is the narrow surface the rest of the service needs from a chat model.
type Client interface {
	// GenerateJSON asks for a single JSON object (json_object response mode)
	// and returns it decoded. Non-object or unparsable output is an error.
	GenerateJSON(ctx context.Context, system string, user string) (map[string]any, error)

	// Plain text (no response format)
	GenerateText(ctx context.Context, system string, user string) (string, error)

	// Model reports the model id requests are sent to.
	Model() string
}

// ErrEmptyResponse is returned when the model produced no choices or no content.
var ErrEmptyResponse = errors.New("openai: empty response")

type client struct {
	log         *logger.Logger
	api         *goopenai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

func NewClient(cfg config.LLMConfig, log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing llm api key (llm.api_key or OPENAI_API_KEY)")
	}
	oc := goopenai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		oc.BaseURL = strings.TrimRight(base, "/")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4-turbo-preview"
	}
	return &client{
		log:         log.With("client", "OpenAIClient", "model", model),
		api:         goopenai.NewClientWithConfig(oc),
		model:       model,
		temperature: float32(cfg.Temperature),
		timeout:     timeout,
	}, nil
}

func (c *client) Model() string { return c.model }

func (c *client) GenerateJSON(ctx context.Context, system string, user string) (map[string]any, error) {
	req := c.request(system, user)
	req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
		Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
	}
	text, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("model returned JSON null")
	}
	return obj, nil
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	return c.complete(ctx, c.request(system, user))
}

func (c *client) request(system, user string) goopenai.ChatCompletionRequest {
	return goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.temperature,
	}
}

// complete issues exactly one chat completion. Retrying is the job runner's
// call, so failures are returned as-is.
func (c *client) complete(ctx context.Context, req goopenai.ChatCompletionRequest) (string, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		observability.Current().ObserveLLMRequest(c.model, "error", time.Since(start))
		c.log.Warn("chat completion failed", "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return "", err
	}
	observability.Current().ObserveLLMRequest(c.model, "ok", time.Since(start))
	c.log.Debug("chat completion done",
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
