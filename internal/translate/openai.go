package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider translates through the OpenAI chat completion API.
type OpenAIProvider struct {
	cfg    Config
	client *openai.Client
	log    *slog.Logger
}

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(apiKey string, cfg Config, logger *slog.Logger) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not found")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: openai.NewClient(apiKey),
		log:    logger,
	}, nil
}

// Name identifies the backend in logs and tagged errors.
func (p *OpenAIProvider) Name() string { return "openai" }

// Translate sends one chunk and returns the translated text with its
// token usage.
func (p *OpenAIProvider) Translate(ctx context.Context, req Request) (Result, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.Timeout)*time.Second)
		defer cancel()
	}

	chatReq := openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Text,
			},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: float32(p.cfg.Temperature),
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Result{}, tagError(p.Name(), openaiStatusCode(err), err)
	}

	if len(resp.Choices) == 0 {
		return Result{}, tagError(p.Name(), 0, fmt.Errorf("no translation returned"))
	}

	p.log.Debug("chunk translated",
		"provider", p.Name(), "model", p.cfg.Model,
		"tokens", resp.Usage.TotalTokens, "duration", time.Since(start))

	return Result{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// openaiStatusCode extracts the HTTP status from the client's error
// types, 0 when there is none.
func openaiStatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
