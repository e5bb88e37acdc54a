package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

// Reason classifies why text extraction failed. The pipeline retries only
// transient reasons; the rest fail the submission immediately.
type Reason string

const (
	ReasonUnreadableImage   Reason = "UNREADABLE_IMAGE"
	ReasonUnsupportedFormat Reason = "UNSUPPORTED_FORMAT"
	ReasonTimeout           Reason = "TIMEOUT"
	ReasonProviderError     Reason = "PROVIDER_ERROR"
)

// ExtractionError wraps an engine failure with its reason code.
type ExtractionError struct {
	Reason Reason
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extraction failed: %s", e.Reason)
	}
	return fmt.Sprintf("extraction failed (%s): %v", e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError builds a reason-tagged extraction error.
func NewExtractionError(reason Reason, err error) *ExtractionError {
	return &ExtractionError{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from an error chain.
func ReasonOf(err error) (Reason, bool) {
	var extractionErr *ExtractionError
	if errors.As(err, &extractionErr) {
		return extractionErr.Reason, true
	}
	return "", false
}

// IsTransient reports whether the extraction failure is worth retrying.
func IsTransient(err error) bool {
	reason, ok := ReasonOf(err)
	if !ok {
		return false
	}
	return reason == ReasonTimeout || reason == ReasonProviderError
}

// Document is the raw answer sheet handed to an engine.
type Document struct {
	Name  string
	Bytes []byte
}

// Engine extracts text from a scanned answer sheet. Engines never retry;
// retry policy belongs to the orchestrator so backoff is uniform across
// stages.
type Engine interface {
	Name() string
	Extract(ctx context.Context, doc Document) (string, error)
}

var supportedFormats = []string{"image/png", "image/jpeg", "image/webp", "image/tiff", "image/bmp"}

// SniffFormat validates the document bytes look like a supported image and
// returns the detected MIME type.
func SniffFormat(data []byte) (string, error) {
	if len(data) == 0 {
		return "", NewExtractionError(ReasonUnreadableImage, errors.New("empty document"))
	}

	detected := mimetype.Detect(data)
	for _, allowed := range supportedFormats {
		if detected.Is(allowed) {
			return detected.String(), nil
		}
	}

	return "", NewExtractionError(ReasonUnsupportedFormat, fmt.Errorf("unsupported media type %s", detected.String()))
}
