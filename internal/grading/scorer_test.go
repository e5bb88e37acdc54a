package grading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/bhasha-ai/grader-api/internal/models"
	"github.com/bhasha-ai/grader-api/pkg/ai"
)

type fakeComparer struct {
	similarity float64
	err        error
	calls      int
}

func (f *fakeComparer) Compare(_ context.Context, _, _ string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.similarity, nil
}

type fakeFeedbackWriter struct {
	text string
	err  error
}

func (f *fakeFeedbackWriter) Write(_ context.Context, _ ai.FeedbackInput) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func newTestScorer(comparer ai.Comparer, feedback ai.FeedbackWriter) *Scorer {
	retry := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	marking := MarkingPolicy{AcceptThreshold: 0.75}
	return NewScorer(comparer, feedback, retry, marking, time.Second, zerolog.Nop())
}

func textEntry() models.AnswerKeyEntry {
	return models.AnswerKeyEntry{
		QuestionNumber: 1,
		Kind:           models.EntryKindText,
		ExpectedAnswer: "Photosynthesis converts sunlight into chemical energy in the chloroplast.",
		Keywords:       datatypes.JSONSlice[string]{"sunlight", "chloroplast"},
		MaxMarks:       2,
		PartialMarking: true,
	}
}

func TestScoreBlankAnswerSkipsComparison(t *testing.T) {
	comparer := &fakeComparer{similarity: 0.9}
	scorer := newTestScorer(comparer, &fakeFeedbackWriter{text: "unused"})

	outcome := scorer.Score(context.Background(), textEntry(), "   ")

	require.Equal(t, 0, comparer.calls, "blank answers must not reach the comparer")
	require.Equal(t, 0.0, outcome.Marks)
	require.Equal(t, models.AnswerStatusIncorrect, outcome.Status)
	require.Equal(t, "No answer provided.", outcome.Feedback)
	require.Equal(t, []string{"sunlight", "chloroplast"}, outcome.MissingKeywords)
	require.Empty(t, outcome.MatchedKeywords)
}

func TestScoreAwardsPartialMarks(t *testing.T) {
	comparer := &fakeComparer{similarity: 0.56}
	scorer := newTestScorer(comparer, &fakeFeedbackWriter{text: "Good effort, mention the chloroplast."})

	outcome := scorer.Score(context.Background(), textEntry(), "Plants use sunlight to make food.")

	require.Equal(t, 1, comparer.calls)
	require.InDelta(t, 0.56, outcome.Similarity, 1e-9)
	require.Equal(t, []string{"sunlight"}, outcome.MatchedKeywords)
	require.Equal(t, []string{"chloroplast"}, outcome.MissingKeywords)
	require.Equal(t, 1.0, outcome.Marks)
	require.Equal(t, models.AnswerStatusPartial, outcome.Status)
	require.Equal(t, "Good effort, mention the chloroplast.", outcome.Feedback)
}

func TestScoreIsolatesComparerOutage(t *testing.T) {
	comparer := &fakeComparer{err: ai.ErrUnavailable}
	scorer := newTestScorer(comparer, &fakeFeedbackWriter{text: "unused"})

	outcome := scorer.Score(context.Background(), textEntry(), "Plants use sunlight.")

	require.Equal(t, 3, comparer.calls, "comparison is retried before giving up")
	require.Equal(t, models.ScoringErrorScorerUnavailable, outcome.ScoringError)
	require.Equal(t, 3, outcome.Attempts)
	require.Equal(t, 0.0, outcome.Marks)
	require.Equal(t, models.AnswerStatusIncorrect, outcome.Status)
}

func TestScoreFallsBackWhenFeedbackFails(t *testing.T) {
	comparer := &fakeComparer{similarity: 0.9}
	scorer := newTestScorer(comparer, &fakeFeedbackWriter{err: errors.New("model down")})

	outcome := scorer.Score(context.Background(), textEntry(), "Sunlight is absorbed by the chloroplast.")

	require.Equal(t, 2.0, outcome.Marks)
	require.Contains(t, outcome.Feedback, "Strong answer")
}

func TestScoreSanitizesFeedback(t *testing.T) {
	comparer := &fakeComparer{similarity: 0.9}
	scorer := newTestScorer(comparer, &fakeFeedbackWriter{text: "<script>alert(1)</script>Well reasoned answer."})

	outcome := scorer.Score(context.Background(), textEntry(), "Sunlight is absorbed by the chloroplast.")

	require.Equal(t, "Well reasoned answer.", outcome.Feedback)
}

func TestScoreMCQ(t *testing.T) {
	entry := models.AnswerKeyEntry{
		QuestionNumber: 2,
		Kind:           models.EntryKindMCQ,
		ExpectedAnswer: "B",
		MaxMarks:       1,
	}
	comparer := &fakeComparer{similarity: 0.1}
	scorer := newTestScorer(comparer, &fakeFeedbackWriter{text: "unused"})

	correct := scorer.Score(context.Background(), entry, "b) Mitochondria")
	require.Equal(t, 0, comparer.calls, "mcq answers never reach the comparer")
	require.Equal(t, 1.0, correct.Marks)
	require.Equal(t, models.AnswerStatusCorrect, correct.Status)

	wrong := scorer.Score(context.Background(), entry, "C")
	require.Equal(t, 0.0, wrong.Marks)
	require.Equal(t, models.AnswerStatusIncorrect, wrong.Status)
	require.Contains(t, wrong.Feedback, "correct answer is B")

	blank := scorer.Score(context.Background(), entry, "")
	require.Equal(t, "No answer provided.", blank.Feedback)
}
