package grading

import (
	"fmt"
	"math"

	"github.com/bhasha-ai/grader-api/internal/models"
)

// ConfidencePolicy blends segmentation and similarity evidence into a
// per-answer confidence and decides which answers need a human.
type ConfidencePolicy struct {
	SegmentWeight    float64
	SimilarityWeight float64
	ReviewThreshold  float64
}

// Confidence computes the per-answer confidence. A scoring error always
// yields zero: there is no evidence to trust.
func (p ConfidencePolicy) Confidence(segmentationConfidence, similarity float64, scoringFailed bool) float64 {
	if scoringFailed {
		return 0
	}
	return p.SegmentWeight*segmentationConfidence + p.SimilarityWeight*similarity
}

// NeedsReview decides whether a result is provisional. Zero segmentation
// confidence forces review regardless of the blend: the span assignment
// itself is a guess.
func (p ConfidencePolicy) NeedsReview(confidence, segmentationConfidence float64, scoringFailed bool) bool {
	return scoringFailed || segmentationConfidence == 0 || confidence < p.ReviewThreshold
}

// SubmissionTotals is the assembled submission-level outcome. Scores are
// always recomputed from the result rows, never read from a cached total.
type SubmissionTotals struct {
	OverallScore float64
	MaxScore     float64
	Percentage   float64
	Grade        string
	Summary      string
	ReviewFlag   bool
}

// AssembleTotals recomputes submission-level scores from the graded answers.
func AssembleTotals(results []models.AnswerResult) SubmissionTotals {
	totals := SubmissionTotals{}
	correct := 0

	for _, result := range results {
		totals.OverallScore += result.MarksObtained
		totals.MaxScore += result.MaxMarks
		if result.NeedsReview {
			totals.ReviewFlag = true
		}
		if result.Status == models.AnswerStatusCorrect {
			correct++
		}
	}

	if totals.MaxScore > 0 {
		totals.Percentage = math.Round(totals.OverallScore/totals.MaxScore*10000) / 100
	}

	totals.Grade = letterGrade(totals.Percentage)
	totals.Summary = overallSummary(correct, len(results), totals.Percentage)

	return totals
}

func letterGrade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A+"
	case percentage >= 80:
		return "A"
	case percentage >= 70:
		return "B+"
	case percentage >= 60:
		return "B"
	case percentage >= 50:
		return "C"
	case percentage >= 40:
		return "D"
	default:
		return "F"
	}
}

func overallSummary(correct, total int, percentage float64) string {
	switch {
	case percentage >= 80:
		return fmt.Sprintf("Excellent performance! %d/%d questions answered correctly with a strong grasp of the concepts.", correct, total)
	case percentage >= 60:
		return fmt.Sprintf("Good work! %d/%d questions correct. Review the missed concepts for improvement.", correct, total)
	case percentage >= 40:
		return fmt.Sprintf("Satisfactory performance with %d/%d correct. Focus on understanding the core concepts better.", correct, total)
	default:
		return fmt.Sprintf("Needs improvement: only %d/%d correct. Please review the material and practice more.", correct, total)
	}
}
