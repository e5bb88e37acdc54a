package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// GeminiConfig defines configuration options for the Gemini provider.
type GeminiConfig struct {
	APIKey string
	Model  string
	Logger zerolog.Logger
}

// GeminiProvider implements Provider against the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

// NewGeminiProvider builds a provider backed by the Gemini SDK.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  cfg.Model,
		logger: cfg.Logger.With().Str("component", "ai_gemini").Logger(),
	}, nil
}

// Close releases the underlying gRPC connection.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// Compare asks the model for a semantic similarity score between the
// expected answer and the student answer.
func (p *GeminiProvider) Compare(ctx context.Context, expected, candidate string) (float64, error) {
	model := p.client.GenerativeModel(p.model)
	temperature := float32(0)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(comparerSystemPrompt())},
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(buildComparePrompt(expected, candidate)))
	aiDuration.WithLabelValues("gemini", "compare").Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues("gemini", "compare").Inc()
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	content, err := geminiText(resp)
	if err != nil {
		aiFailures.WithLabelValues("gemini", "compare").Inc()
		return 0, err
	}

	var data struct {
		Similarity float64 `json:"similarity"`
	}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return 0, fmt.Errorf("parse similarity json: %w", err)
	}

	return clampUnit(data.Similarity), nil
}

// Write produces a short feedback note describing the grading gap.
func (p *GeminiProvider) Write(ctx context.Context, input FeedbackInput) (string, error) {
	model := p.client.GenerativeModel(p.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(
			"You are a teacher writing one or two sentences of feedback on a graded answer. " +
				"Be specific about what was missing and encouraging in tone. Plain text only.",
		)},
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(buildFeedbackPrompt(input)))
	aiDuration.WithLabelValues("gemini", "feedback").Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues("gemini", "feedback").Inc()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	content, err := geminiText(resp)
	if err != nil {
		aiFailures.WithLabelValues("gemini", "feedback").Inc()
		return "", err
	}

	return strings.TrimSpace(content), nil
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty gemini response", ErrUnavailable)
	}

	builder := strings.Builder{}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}

	content := strings.TrimSpace(builder.String())
	if content == "" {
		return "", fmt.Errorf("%w: gemini response had no text parts", ErrUnavailable)
	}

	return content, nil
}
