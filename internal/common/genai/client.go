// Package genai holds the text-generation clients used to obtain a verdict
// for a statement.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"statement-analyzer/internal/common/config"
	apperrors "statement-analyzer/internal/common/errors"
)

// ServiceName labels generation failures in errors, logs and metrics.
const ServiceName = "generation"

// Client submits one prompt and returns the completion text.
type Client interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// New builds the client selected by cfg.Provider.
func New(ctx context.Context, cfg config.GenAIConfig) (Client, error) {
	httpClient := &http.Client{Timeout: config.GetDuration(cfg.Timeout) + 5*time.Second}

	switch cfg.Provider {
	case "", config.GenAIProviderGemini:
		return NewGeminiClient(ctx, GeminiOptions{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			HTTPClient:  httpClient,
		})
	case config.GenAIProviderOpenAI:
		return NewOpenAIClient(OpenAIOptions{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			HTTPClient:  httpClient,
		}), nil
	default:
		return nil, fmt.Errorf("genai: unsupported provider %q", cfg.Provider)
	}
}

// classifyError maps a provider error onto the upstream taxonomy. status is
// the HTTP status the provider reported, or 0 when none was received.
func classifyError(ctx context.Context, err error, status int) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewUpstreamTimeoutError(ServiceName, err)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.NewUpstreamAuthError(ServiceName, err)
	case status != 0:
		return apperrors.NewUpstreamUnavailableError(ServiceName, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return apperrors.NewUpstreamMalformedError(ServiceName, err)
	}
	return apperrors.NewUpstreamUnavailableError(ServiceName, err)
}
