package ocr

import (
	"context"
	"errors"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"
)

// TesseractConfig defines configuration options for the Tesseract engine.
type TesseractConfig struct {
	// Languages is a plus-separated tesseract language list, e.g. "eng+guj".
	Languages string
	Logger    zerolog.Logger
}

// TesseractEngine implements Engine against a local Tesseract installation
// through the gosseract client.
type TesseractEngine struct {
	languages []string
	logger    zerolog.Logger
}

// NewTesseractEngine constructs a Tesseract-backed extraction engine.
func NewTesseractEngine(cfg TesseractConfig) *TesseractEngine {
	languages := strings.Split(cfg.Languages, "+")
	if cfg.Languages == "" {
		languages = []string{"eng"}
	}

	return &TesseractEngine{
		languages: languages,
		logger:    cfg.Logger.With().Str("component", "ocr_tesseract").Logger(),
	}
}

// Name identifies the engine in logs and metrics.
func (e *TesseractEngine) Name() string { return "tesseract" }

// Extract runs OCR over the document. gosseract has no context support, so
// recognition runs in a goroutine and the deadline is enforced by select.
func (e *TesseractEngine) Extract(ctx context.Context, doc Document) (string, error) {
	if _, err := SniffFormat(doc.Bytes); err != nil {
		return "", err
	}

	type recognition struct {
		text string
		err  error
	}

	done := make(chan recognition, 1)
	go func() {
		client := gosseract.NewClient()
		defer client.Close()

		if err := client.SetLanguage(e.languages...); err != nil {
			done <- recognition{err: err}
			return
		}
		if err := client.SetImageFromBytes(doc.Bytes); err != nil {
			done <- recognition{err: err}
			return
		}

		text, err := client.Text()
		done <- recognition{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", NewExtractionError(ReasonTimeout, ctx.Err())
	case result := <-done:
		if result.err != nil {
			return "", NewExtractionError(ReasonProviderError, result.err)
		}

		text := strings.TrimSpace(result.text)
		if text == "" {
			return "", NewExtractionError(ReasonUnreadableImage, errors.New("no text recognized"))
		}

		e.logger.Debug().Str("document", doc.Name).Int("chars", len(text)).Msg("ocr extraction completed")
		return text, nil
	}
}
