package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig defines configuration options for the vision-model engine.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Logger    zerolog.Logger
}

// OpenAIEngine implements Engine using an OpenAI vision model. It is the
// fallback for handwriting Tesseract cannot read.
type OpenAIEngine struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger zerolog.Logger
}

// NewOpenAIEngine builds a vision-backed extraction engine.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	return &OpenAIEngine{
		client: openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey)),
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "ocr_openai").Logger(),
	}, nil
}

// Name identifies the engine in logs and metrics.
func (e *OpenAIEngine) Name() string { return "openai-vision" }

// Extract sends the sheet image to the vision model and returns the
// transcribed text verbatim.
func (e *OpenAIEngine) Extract(ctx context.Context, doc Document) (string, error) {
	mime, err := SniffFormat(doc.Bytes)
	if err != nil {
		return "", err
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(doc.Bytes))

	request := openai.ChatCompletionRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You transcribe handwritten answer sheets. Return the text exactly as written, " +
					"preserving line breaks and question numbering. Do not correct, grade, or annotate.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Transcribe this answer sheet."},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				},
			},
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", NewExtractionError(ReasonTimeout, err)
		}
		return "", NewExtractionError(ReasonProviderError, err)
	}

	if len(resp.Choices) == 0 {
		return "", NewExtractionError(ReasonProviderError, errors.New("no choices returned"))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", NewExtractionError(ReasonUnreadableImage, errors.New("model returned empty transcription"))
	}

	e.logger.Debug().Str("document", doc.Name).Int("chars", len(text)).Msg("vision extraction completed")
	return text, nil
}
