package grading

import (
	"fmt"
	"math"
	"strings"
)

// Marking granularity: the smallest mark increment a rubric awards.
const markStep = 0.5

// MarkingPolicy converts similarity and keyword evidence into a numeric
// mark. It is a pure function of its inputs; identical evidence always
// yields identical marks.
type MarkingPolicy struct {
	// AcceptThreshold is the similarity at which an all-or-nothing answer
	// earns full marks.
	AcceptThreshold float64
}

// MarkEvidence is what the scorer gathered for one answer.
type MarkEvidence struct {
	MaxMarks       float64
	PartialMarking bool
	KeywordCount   int
	MatchedCount   int
	Similarity     float64
}

// Marks computes the awarded mark, clamped to [0, MaxMarks] and rounded to
// the nearest half mark, half up.
func (p MarkingPolicy) Marks(evidence MarkEvidence) float64 {
	var raw float64
	switch {
	case !evidence.PartialMarking:
		if evidence.Similarity >= p.AcceptThreshold {
			raw = evidence.MaxMarks
		}
	case evidence.KeywordCount > 0:
		keywordFraction := float64(evidence.MatchedCount) / float64(evidence.KeywordCount)
		raw = evidence.MaxMarks * (0.6*evidence.Similarity + 0.4*keywordFraction)
	default:
		raw = evidence.MaxMarks * evidence.Similarity
	}

	if raw < 0 {
		raw = 0
	}
	if raw > evidence.MaxMarks {
		raw = evidence.MaxMarks
	}

	rounded := roundToHalf(raw)
	if rounded > evidence.MaxMarks {
		rounded = evidence.MaxMarks
	}

	return rounded
}

// roundToHalf rounds to the nearest 0.5 increment, half up: 1.12 -> 1.0,
// 1.25 -> 1.5.
func roundToHalf(value float64) float64 {
	return math.Floor(value/markStep+0.5) * markStep
}

// Similarity bands used for fallback feedback prose.
const (
	bandHigh   = 0.75
	bandMedium = 0.4
)

// FallbackFeedback builds a deterministic feedback line when the feedback
// capability is unavailable. Marks never depend on this text.
func FallbackFeedback(similarity float64, missingKeywords []string) string {
	var note string
	switch {
	case similarity >= bandHigh:
		note = "Strong answer, closely matching the expected response."
	case similarity >= bandMedium:
		note = "Partially correct; the answer covers some of the expected points."
	default:
		note = "The answer diverges significantly from the expected response."
	}

	if len(missingKeywords) > 0 {
		note = fmt.Sprintf("%s Missing: %s.", note, strings.Join(missingKeywords, ", "))
	}

	return note
}
