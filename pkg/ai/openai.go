package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of model provider requests",
	}, []string{"provider", "operation"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of failed model provider requests",
	}, []string{"provider", "operation"})
)

// OpenAIConfig defines configuration options for the OpenAI provider.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIProvider implements Provider against the OpenAI chat completion API.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIProvider builds a new provider using the supplied configuration.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey)),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/bhasha-ai/grader-api/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "ai_openai").Logger(),
	}, nil
}

// Compare asks the model for a semantic similarity score between the
// expected answer and the student answer.
func (p *OpenAIProvider) Compare(parent context.Context, expected, candidate string) (float64, error) {
	ctx, span := p.tracer.Start(parent, "openai.compare", trace.WithAttributes(
		attribute.String("model", p.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: comparerSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildComparePrompt(expected, candidate),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues("openai", "compare").Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues("openai", "compare").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		aiFailures.WithLabelValues("openai", "compare").Inc()
		err := fmt.Errorf("%w: no choices returned", ErrUnavailable)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	similarity, err := parseCompareResponse(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		aiFailures.WithLabelValues("openai", "compare").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Float64("similarity", similarity))
	return similarity, nil
}

// Write produces a short feedback note describing the gap between the
// student answer and the expected answer.
func (p *OpenAIProvider) Write(parent context.Context, input FeedbackInput) (string, error) {
	ctx, span := p.tracer.Start(parent, "openai.feedback", trace.WithAttributes(
		attribute.String("model", p.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are a teacher writing one or two sentences of feedback on a graded answer. " +
					"Be specific about what was missing and encouraging in tone. Plain text only.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildFeedbackPrompt(input),
			},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues("openai", "feedback").Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues("openai", "feedback").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		aiFailures.WithLabelValues("openai", "feedback").Inc()
		return "", fmt.Errorf("%w: no choices returned", ErrUnavailable)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func comparerSystemPrompt() string {
	return "You compare a student's answer against the expected answer and return a JSON object " +
		`{"similarity": <0..1>} measuring semantic closeness. Ignore spelling, word order, and language; ` +
		"judge meaning only. 1 means fully equivalent, 0 means unrelated."
}

func buildComparePrompt(expected, candidate string) string {
	builder := strings.Builder{}
	builder.WriteString("## Expected Answer\n")
	builder.WriteString(expected)
	builder.WriteString("\n\n## Student Answer\n")
	builder.WriteString(candidate)
	builder.WriteString("\n\nReturn JSON.")
	return builder.String()
}

func buildFeedbackPrompt(input FeedbackInput) string {
	builder := strings.Builder{}
	builder.WriteString("## Expected Answer\n")
	builder.WriteString(input.ExpectedAnswer)
	builder.WriteString("\n\n## Student Answer\n")
	builder.WriteString(input.StudentAnswer)
	if len(input.MissingKeywords) > 0 {
		builder.WriteString("\n\n## Missing Keywords\n")
		builder.WriteString(strings.Join(input.MissingKeywords, ", "))
	}
	fmt.Fprintf(&builder, "\n\n## Marks\n%.1f of %.1f (similarity %.2f)", input.MarksAwarded, input.MaxMarks, input.Similarity)
	return builder.String()
}

func parseCompareResponse(content string) (float64, error) {
	var data struct {
		Similarity float64 `json:"similarity"`
	}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return 0, fmt.Errorf("parse similarity json: %w", err)
	}

	return clampUnit(data.Similarity), nil
}
