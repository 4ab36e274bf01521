package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiProvider translates through the Gemini API.
type GeminiProvider struct {
	cfg    Config
	client *genai.Client
	log    *slog.Logger
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, apiKey string, cfg Config, logger *slog.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key not found")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{cfg: cfg, client: client, log: logger}, nil
}

// Name identifies the backend in logs and tagged errors.
func (p *GeminiProvider) Name() string { return "gemini" }

// Translate sends one chunk and returns the translated text with its
// token usage.
func (p *GeminiProvider) Translate(ctx context.Context, req Request) (Result, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.Timeout)*time.Second)
		defer cancel()
	}

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(p.cfg.Temperature)),
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
	}
	if p.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(p.cfg.MaxTokens)
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, genai.Text(req.Text), config)
	if err != nil {
		return Result{}, tagError(p.Name(), geminiStatusCode(err), err)
	}

	text := resp.Text()
	if text == "" {
		return Result{}, tagError(p.Name(), 0, fmt.Errorf("no translation returned"))
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	p.log.Debug("chunk translated",
		"provider", p.Name(), "model", p.cfg.Model,
		"tokens", tokens, "duration", time.Since(start))

	return Result{Text: strings.TrimSpace(text), TokensUsed: tokens}, nil
}

// geminiStatusCode extracts the HTTP status from the client's error
// type, 0 when there is none.
func geminiStatusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
