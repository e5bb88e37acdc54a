package grading

import (
	"context"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/bhasha-ai/grader-api/internal/models"
	"github.com/bhasha-ai/grader-api/pkg/ai"
)

// Fallback feedback for answers left blank.
const noAnswerFeedback = "No answer provided."

// ScoreOutcome is everything the scorer learned about one answer.
type ScoreOutcome struct {
	Similarity      float64
	MatchedKeywords []string
	MissingKeywords []string
	Marks           float64
	Status          string
	Feedback        string
	ScoringError    string
	Attempts        int
}

// Scorer grades one segmented answer against its answer-key entry. The
// semantic comparison is the only external call; its failures after retry
// exhaustion are isolated to the single question.
type Scorer struct {
	comparer  ai.Comparer
	feedback  ai.FeedbackWriter
	retry     RetryPolicy
	marking   MarkingPolicy
	timeout   time.Duration
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewScorer constructs a scorer.
func NewScorer(comparer ai.Comparer, feedback ai.FeedbackWriter, retry RetryPolicy, marking MarkingPolicy, timeout time.Duration, logger zerolog.Logger) *Scorer {
	return &Scorer{
		comparer:  comparer,
		feedback:  feedback,
		retry:     retry,
		marking:   marking,
		timeout:   timeout,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "scorer").Logger(),
	}
}

// Score grades a single answer. It never returns an error: capability
// failures are recorded on the outcome so the submission can keep going.
func (s *Scorer) Score(ctx context.Context, entry models.AnswerKeyEntry, studentAnswer string) ScoreOutcome {
	if entry.Kind == models.EntryKindMCQ {
		return s.scoreMCQ(entry, studentAnswer)
	}

	keywords := []string(entry.Keywords)

	trimmed := strings.TrimSpace(studentAnswer)
	if trimmed == "" {
		// Blank answers never reach the comparison capability: the call
		// would be wasted and "similar to nothing" is undefined anyway.
		return ScoreOutcome{
			MatchedKeywords: []string{},
			MissingKeywords: keywords,
			Status:          models.AnswerStatusIncorrect,
			Feedback:        noAnswerFeedback,
		}
	}

	matched, missing := matchKeywords(keywords, trimmed)

	outcome := ScoreOutcome{
		MatchedKeywords: matched,
		MissingKeywords: missing,
	}

	var similarity float64
	attempts, err := s.retry.Do(ctx, func(ctx context.Context) error {
		callCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		value, compareErr := s.comparer.Compare(callCtx, entry.ExpectedAnswer, trimmed)
		if compareErr != nil {
			return compareErr
		}

		similarity = value
		return nil
	}, func(error) bool { return true })
	outcome.Attempts = attempts

	if err != nil {
		s.logger.Warn().Err(err).Int("question", entry.QuestionNumber).Int("attempts", attempts).
			Msg("semantic comparison failed after retries")
		outcome.ScoringError = models.ScoringErrorScorerUnavailable
		outcome.Status = models.AnswerStatusIncorrect
		outcome.Feedback = "This answer could not be graded automatically and requires manual review."
		return outcome
	}

	outcome.Similarity = similarity
	outcome.Marks = s.marking.Marks(MarkEvidence{
		MaxMarks:       entry.MaxMarks,
		PartialMarking: entry.PartialMarking,
		KeywordCount:   len(keywords),
		MatchedCount:   len(matched),
		Similarity:     similarity,
	})
	outcome.Status = answerStatus(outcome.Marks, entry.MaxMarks)
	outcome.Feedback = s.writeFeedback(ctx, entry, trimmed, outcome)

	return outcome
}

func (s *Scorer) scoreMCQ(entry models.AnswerKeyEntry, studentAnswer string) ScoreOutcome {
	expected := normalizeOption(entry.ExpectedAnswer)
	chosen := normalizeOption(studentAnswer)

	outcome := ScoreOutcome{
		MatchedKeywords: []string{},
		MissingKeywords: []string{},
	}

	if chosen == "" {
		outcome.Status = models.AnswerStatusIncorrect
		outcome.Feedback = noAnswerFeedback
		return outcome
	}

	if chosen == expected {
		outcome.Similarity = 1
		outcome.Marks = entry.MaxMarks
		outcome.Status = models.AnswerStatusCorrect
		outcome.Feedback = "Correct answer."
		return outcome
	}

	outcome.Status = models.AnswerStatusIncorrect
	outcome.Feedback = "Incorrect. The correct answer is " + expected + "."
	return outcome
}

// writeFeedback asks the feedback capability for prose, falling back to a
// deterministic note on any failure. Marks are already final at this point.
func (s *Scorer) writeFeedback(ctx context.Context, entry models.AnswerKeyEntry, studentAnswer string, outcome ScoreOutcome) string {
	fallback := FallbackFeedback(outcome.Similarity, outcome.MissingKeywords)
	if s.feedback == nil {
		return fallback
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.feedback.Write(callCtx, ai.FeedbackInput{
		ExpectedAnswer:  entry.ExpectedAnswer,
		StudentAnswer:   studentAnswer,
		MissingKeywords: outcome.MissingKeywords,
		Similarity:      outcome.Similarity,
		MaxMarks:        entry.MaxMarks,
		MarksAwarded:    outcome.Marks,
	})
	if err != nil {
		s.logger.Debug().Err(err).Int("question", entry.QuestionNumber).Msg("feedback generation failed, using fallback")
		return fallback
	}

	cleaned := strings.TrimSpace(s.sanitizer.Sanitize(text))
	if cleaned == "" {
		return fallback
	}

	return cleaned
}

func matchKeywords(keywords []string, answer string) (matched, missing []string) {
	matched = make([]string, 0, len(keywords))
	missing = make([]string, 0, len(keywords))
	lowered := strings.ToLower(answer)

	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			matched = append(matched, keyword)
		} else {
			missing = append(missing, keyword)
		}
	}

	return matched, missing
}

func answerStatus(marks, maxMarks float64) string {
	switch {
	case maxMarks > 0 && marks >= maxMarks*0.9:
		return models.AnswerStatusCorrect
	case marks > 0:
		return models.AnswerStatusPartial
	default:
		return models.AnswerStatusIncorrect
	}
}

func normalizeOption(answer string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(answer))
	if trimmed == "" {
		return ""
	}
	return trimmed[:1]
}
