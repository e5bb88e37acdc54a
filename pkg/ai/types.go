package ai

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the model provider could not serve the request.
// Callers decide whether to retry; this package never retries.
var ErrUnavailable = errors.New("ai capability unavailable")

// Comparer measures the semantic closeness of a student answer to the
// expected answer, independent of exact wording or language.
type Comparer interface {
	Compare(ctx context.Context, expected, candidate string) (float64, error)
}

// FeedbackInput carries the grading gap the feedback prose is written from.
type FeedbackInput struct {
	ExpectedAnswer  string
	StudentAnswer   string
	MissingKeywords []string
	Similarity      float64
	MaxMarks        float64
	MarksAwarded    float64
}

// FeedbackWriter produces a short teacher-voice note for one answer. It is
// best effort: marks never depend on whether prose could be generated.
type FeedbackWriter interface {
	Write(ctx context.Context, input FeedbackInput) (string, error)
}

// Provider bundles both capabilities of one model backend.
type Provider interface {
	Comparer
	FeedbackWriter
}

func clampUnit(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
