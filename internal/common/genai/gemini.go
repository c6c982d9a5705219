package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "statement-analyzer/internal/common/errors"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-pro"

type GeminiOptions struct {
	APIKey      string
	BaseURL     string // empty uses the public Gemini API endpoint
	Model       string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
}

// GeminiClient generates verdicts through Google's Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
}

func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key not configured")
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}, nil
}

func (g *GeminiClient) Name() string {
	return "gemini"
}

// Generate sends prompt as a single user turn and concatenates the text parts
// of every candidate.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	genCfg := &genai.GenerateContentConfig{}
	if g.temperature > 0 {
		temp := float32(g.temperature)
		genCfg.Temperature = &temp
	}
	if g.maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(g.maxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), genCfg)
	if err != nil {
		return "", classifyError(ctx, err, geminiStatus(err))
	}

	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return "", apperrors.NewUpstreamMalformedError(ServiceName, errors.New("gemini returned no text"))
	}
	return text.String(), nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
