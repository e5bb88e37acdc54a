package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bhasha-ai/grader-api/internal/config"
	"github.com/bhasha-ai/grader-api/internal/models"
	"github.com/bhasha-ai/grader-api/internal/observability"
	"github.com/bhasha-ai/grader-api/internal/repository"
	"github.com/bhasha-ai/grader-api/pkg/ai"
	"github.com/bhasha-ai/grader-api/pkg/ocr"
	"github.com/bhasha-ai/grader-api/pkg/storage"
)

// ErrAlreadyRunning indicates the submission is being graded by another run
// or has already reached a terminal state.
var ErrAlreadyRunning = errors.New("submission already claimed or terminal")

// ErrQueueFull indicates the grading queue cannot accept more work.
var ErrQueueFull = errors.New("grading queue full")

// NATS subjects for submission lifecycle events.
const (
	subjectCompleted = "grader.submission.completed"
	subjectFailed    = "grader.submission.failed"
)

const queueCapacity = 256

// SheetFetcher retrieves the raw bytes behind a submission's source
// reference.
type SheetFetcher interface {
	Fetch(ctx context.Context, reference string) ([]byte, error)
}

// Orchestrator drives a submission through extraction, segmentation,
// scoring, and aggregation. Many submissions run concurrently on a bounded
// worker pool; each submission holds the at-most-one-run claim for its
// whole lifetime.
type Orchestrator struct {
	submissions repository.SubmissionRepository
	keys        repository.AnswerKeyRepository
	fetcher     SheetFetcher
	extractor   ocr.Engine
	scorer      *Scorer
	broker      *ProgressBroker
	events      *nats.Conn
	retry       RetryPolicy
	confidence  ConfidencePolicy
	cfg         config.Grading
	logger      zerolog.Logger
	tracer      trace.Tracer

	queue chan string

	cancelMu  sync.Mutex
	cancelled map[string]struct{}
}

// NewOrchestrator constructs the orchestrator. The NATS connection is
// optional; lifecycle events are skipped when it is nil.
func NewOrchestrator(
	submissions repository.SubmissionRepository,
	keys repository.AnswerKeyRepository,
	fetcher SheetFetcher,
	extractor ocr.Engine,
	comparer ai.Comparer,
	feedback ai.FeedbackWriter,
	broker *ProgressBroker,
	events *nats.Conn,
	cfg config.Grading,
	logger zerolog.Logger,
) *Orchestrator {
	retry := RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
	marking := MarkingPolicy{AcceptThreshold: cfg.AcceptThreshold}

	return &Orchestrator{
		submissions: submissions,
		keys:        keys,
		fetcher:     fetcher,
		extractor:   extractor,
		scorer:      NewScorer(comparer, feedback, retry, marking, cfg.ScoringTimeout, logger),
		broker:      broker,
		events:      events,
		retry:       retry,
		confidence: ConfidencePolicy{
			SegmentWeight:    cfg.SegmentWeight,
			SimilarityWeight: cfg.SimilarityWeight,
			ReviewThreshold:  cfg.ReviewThreshold,
		},
		cfg:       cfg,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		tracer:    otel.Tracer("github.com/bhasha-ai/grader-api/internal/grading"),
		queue:     make(chan string, queueCapacity),
		cancelled: make(map[string]struct{}),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	workers := o.cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		go o.worker(ctx)
	}

	o.logger.Info().Int("workers", workers).Msg("grading workers started")
}

func (o *Orchestrator) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-o.queue:
			if err := o.Run(ctx, id); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				o.logger.Error().Err(err).Str("submission_id", id).Msg("grading run failed")
			}
		}
	}
}

// Enqueue schedules a submission for grading.
func (o *Orchestrator) Enqueue(ctx context.Context, submissionID string) error {
	select {
	case o.queue <- submissionID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// RequestCancel flags a submission for cooperative cancellation. The flag is
// honored at the next stage boundary; in-flight external calls complete and
// their results are discarded.
func (o *Orchestrator) RequestCancel(submissionID string) {
	o.cancelMu.Lock()
	o.cancelled[submissionID] = struct{}{}
	o.cancelMu.Unlock()
}

func (o *Orchestrator) cancelRequested(submissionID string) bool {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	_, ok := o.cancelled[submissionID]
	return ok
}

func (o *Orchestrator) clearCancel(submissionID string) {
	o.cancelMu.Lock()
	delete(o.cancelled, submissionID)
	o.cancelMu.Unlock()
}

// Run grades one submission end to end. Invoking it on a submission that is
// not PENDING returns ErrAlreadyRunning: the atomic claim on the PENDING row
// is the at-most-one-run guard.
func (o *Orchestrator) Run(parent context.Context, submissionID string) error {
	ctx, span := o.tracer.Start(parent, "grading.run", trace.WithAttributes(
		attribute.String("submission_id", submissionID),
	))
	defer span.End()
	defer o.clearCancel(submissionID)

	claimed, err := o.submissions.ClaimPending(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("claim submission: %w", err)
	}
	if !claimed {
		span.SetStatus(codes.Error, "not_claimable")
		return ErrAlreadyRunning
	}

	submission, err := o.submissions.GetByID(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		o.releaseClaim(ctx, submissionID)
		return fmt.Errorf("load submission: %w", err)
	}
	o.publishProgress(submission.ID, models.SubmissionStatusExtracting, "")

	if o.cancelRequested(submission.ID) {
		return o.finalizeFailure(ctx, &submission, models.FailureReasonCancelled, span)
	}

	if submission.AnswerKeyID == nil {
		return o.finalizeFailure(ctx, &submission, models.FailureReasonAnswerKeyMissing, span)
	}

	key, err := o.keys.GetByID(ctx, *submission.AnswerKeyID)
	if err != nil {
		span.RecordError(err)
		return o.finalizeFailure(ctx, &submission, models.FailureReasonAnswerKeyMissing, span)
	}

	rawText, ok, err := o.extract(ctx, &submission, span)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if o.cancelRequested(submission.ID) {
		return o.finalizeFailure(ctx, &submission, models.FailureReasonCancelled, span)
	}

	segmentation, err := o.segment(ctx, &submission, rawText, key)
	if err != nil {
		span.RecordError(err)
		o.releaseClaim(ctx, submission.ID)
		return err
	}

	if o.cancelRequested(submission.ID) {
		return o.finalizeFailure(ctx, &submission, models.FailureReasonCancelled, span)
	}

	results, err := o.score(ctx, &submission, key, segmentation)
	if err != nil {
		span.RecordError(err)
		o.releaseClaim(ctx, submission.ID)
		return err
	}

	if o.cancelRequested(submission.ID) {
		// Scoring results are discarded, not persisted: a cancelled run
		// leaves no partial result set behind.
		return o.finalizeFailure(ctx, &submission, models.FailureReasonCancelled, span)
	}

	failedQuestions := 0
	for _, result := range results {
		if result.ScoringError != "" {
			failedQuestions++
			observability.ScoringFailures().WithLabelValues(result.ScoringError).Inc()
		}
	}

	if failedQuestions == len(results) && len(results) > 0 {
		if err := o.submissions.CreateResults(ctx, results); err != nil {
			span.RecordError(err)
			o.releaseClaim(ctx, submission.ID)
			return fmt.Errorf("persist results: %w", err)
		}
		return o.finalizeFailure(ctx, &submission, models.FailureReasonAllQuestions, span)
	}

	if err := o.aggregate(ctx, &submission, results, span); err != nil {
		o.releaseClaim(ctx, submission.ID)
		return err
	}

	return nil
}

// releaseClaim is best effort: a run that aborts on a persistence error must
// not park its submission in an intermediate state that can never be claimed
// again.
func (o *Orchestrator) releaseClaim(ctx context.Context, submissionID string) {
	if err := o.submissions.ReleaseClaim(context.WithoutCancel(ctx), submissionID); err != nil {
		o.logger.Error().Err(err).Str("submission_id", submissionID).Msg("failed to release grading claim")
	}
}

// extract runs the extraction stage. The boolean reports whether the
// pipeline should continue; a false return means the submission was
// finalized as FAILED.
func (o *Orchestrator) extract(ctx context.Context, submission *models.Submission, span trace.Span) (string, bool, error) {
	start := time.Now()
	defer func() {
		observability.StageDuration().WithLabelValues("extract").Observe(time.Since(start).Seconds())
	}()

	var rawText string
	attempts, err := o.retry.Do(ctx, func(ctx context.Context) error {
		callCtx := ctx
		if o.cfg.ExtractionTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.cfg.ExtractionTimeout)
			defer cancel()
		}

		data, fetchErr := o.fetcher.Fetch(callCtx, submission.SourceReference)
		if fetchErr != nil {
			if errors.Is(fetchErr, storage.ErrNotFound) {
				return ocr.NewExtractionError(ocr.ReasonUnreadableImage, fetchErr)
			}
			return ocr.NewExtractionError(ocr.ReasonProviderError, fetchErr)
		}

		text, extractErr := o.extractor.Extract(callCtx, ocr.Document{Name: submission.ID, Bytes: data})
		if extractErr != nil {
			return extractErr
		}

		rawText = text
		return nil
	}, ocr.IsTransient)

	submission.AttemptCount += attempts

	if err != nil {
		reason, _ := ocr.ReasonOf(err)
		o.logger.Warn().Err(err).Str("submission_id", submission.ID).Str("reason", string(reason)).
			Int("attempts", attempts).Msg("extraction failed")
		span.RecordError(err)

		failure := models.FailureReasonExtraction
		if errors.Is(err, storage.ErrNotFound) || reason == ocr.ReasonUnsupportedFormat {
			failure = models.FailureReasonInvalidSource
		}
		return "", false, o.finalizeFailure(ctx, submission, failure, span)
	}

	submission.ExtractedText = rawText
	return rawText, true, nil
}

func (o *Orchestrator) segment(ctx context.Context, submission *models.Submission, rawText string, key models.AnswerKey) (Segmentation, error) {
	start := time.Now()
	defer func() {
		observability.StageDuration().WithLabelValues("segment").Observe(time.Since(start).Seconds())
	}()

	submission.Status = models.SubmissionStatusSegmenting
	if err := o.submissions.Update(ctx, submission); err != nil {
		return Segmentation{}, fmt.Errorf("enter segmenting: %w", err)
	}
	o.publishProgress(submission.ID, models.SubmissionStatusSegmenting, "")

	segmentation := SegmentAnswers(rawText, key.QuestionNumbers())
	submission.SegmentationConfidence = segmentation.Confidence

	return segmentation, nil
}

// score fans scoring out across the submission's questions, bounded by the
// configured fan-out. Questions are independent; one scorer outage never
// blocks the rest.
func (o *Orchestrator) score(ctx context.Context, submission *models.Submission, key models.AnswerKey, segmentation Segmentation) ([]models.AnswerResult, error) {
	start := time.Now()
	defer func() {
		observability.StageDuration().WithLabelValues("score").Observe(time.Since(start).Seconds())
	}()

	submission.Status = models.SubmissionStatusScoring
	if err := o.submissions.Update(ctx, submission); err != nil {
		return nil, fmt.Errorf("enter scoring: %w", err)
	}
	o.publishProgress(submission.ID, models.SubmissionStatusScoring, "")

	fanOut := o.cfg.ScoreFanOut
	if fanOut <= 0 || fanOut > len(key.Entries) {
		fanOut = len(key.Entries)
	}
	semaphore := make(chan struct{}, fanOut)

	results := make([]models.AnswerResult, len(key.Entries))
	attempts := make([]int, len(key.Entries))

	var wg sync.WaitGroup
	for i, entry := range key.Entries {
		wg.Add(1)
		go func(i int, entry models.AnswerKeyEntry) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			outcome := o.scorer.Score(ctx, entry, segmentation.Spans[entry.QuestionNumber])
			attempts[i] = outcome.Attempts

			scoringFailed := outcome.ScoringError != ""
			confidence := o.confidence.Confidence(segmentation.Confidence, outcome.Similarity, scoringFailed)

			results[i] = models.AnswerResult{
				SubmissionID:      submission.ID,
				RunSeq:            submission.RunSeq,
				QuestionNumber:    entry.QuestionNumber,
				StudentAnswerText: segmentation.Spans[entry.QuestionNumber],
				MarksObtained:     outcome.Marks,
				MaxMarks:          entry.MaxMarks,
				Status:            outcome.Status,
				Feedback:          outcome.Feedback,
				Similarity:        outcome.Similarity,
				MatchedKeywords:   outcome.MatchedKeywords,
				MissingKeywords:   outcome.MissingKeywords,
				Confidence:        confidence,
				NeedsReview:       o.confidence.NeedsReview(confidence, segmentation.Confidence, scoringFailed),
				ScoringError:      outcome.ScoringError,
			}
		}(i, entry)
	}
	wg.Wait()

	for _, n := range attempts {
		submission.AttemptCount += n
	}

	return results, nil
}

func (o *Orchestrator) aggregate(ctx context.Context, submission *models.Submission, results []models.AnswerResult, span trace.Span) error {
	start := time.Now()
	defer func() {
		observability.StageDuration().WithLabelValues("aggregate").Observe(time.Since(start).Seconds())
	}()

	submission.Status = models.SubmissionStatusAggregating
	if err := o.submissions.Update(ctx, submission); err != nil {
		return fmt.Errorf("enter aggregating: %w", err)
	}
	o.publishProgress(submission.ID, models.SubmissionStatusAggregating, "")

	if err := o.submissions.CreateResults(ctx, results); err != nil {
		span.RecordError(err)
		return fmt.Errorf("persist results: %w", err)
	}

	totals := AssembleTotals(results)
	now := time.Now().UTC()

	submission.Status = models.SubmissionStatusCompleted
	submission.OverallScore = totals.OverallScore
	submission.MaxScore = totals.MaxScore
	submission.Percentage = totals.Percentage
	submission.Grade = totals.Grade
	submission.Summary = totals.Summary
	submission.ReviewFlag = totals.ReviewFlag
	submission.CompletedAt = &now

	if err := o.submissions.Update(ctx, submission); err != nil {
		span.RecordError(err)
		return fmt.Errorf("complete submission: %w", err)
	}

	observability.SubmissionsFinished().WithLabelValues(models.SubmissionStatusCompleted, "").Inc()
	o.publishProgress(submission.ID, models.SubmissionStatusCompleted, "")
	o.publishEvent(subjectCompleted, submission)

	span.SetAttributes(
		attribute.Float64("overall_score", totals.OverallScore),
		attribute.Float64("max_score", totals.MaxScore),
		attribute.Bool("review_flag", totals.ReviewFlag),
	)

	o.logger.Info().Str("submission_id", submission.ID).
		Float64("overall_score", totals.OverallScore).
		Float64("max_score", totals.MaxScore).
		Bool("review_flag", totals.ReviewFlag).
		Msg("submission graded")

	return nil
}

func (o *Orchestrator) finalizeFailure(ctx context.Context, submission *models.Submission, reason string, span trace.Span) error {
	now := time.Now().UTC()
	submission.Status = models.SubmissionStatusFailed
	submission.FailureReason = reason
	submission.CompletedAt = &now

	if err := o.submissions.Update(ctx, submission); err != nil {
		span.RecordError(err)
		o.releaseClaim(ctx, submission.ID)
		return fmt.Errorf("mark submission failed: %w", err)
	}

	observability.SubmissionsFinished().WithLabelValues(models.SubmissionStatusFailed, reason).Inc()
	span.SetStatus(codes.Error, reason)
	o.publishProgress(submission.ID, models.SubmissionStatusFailed, reason)
	o.publishEvent(subjectFailed, submission)

	o.logger.Warn().Str("submission_id", submission.ID).Str("reason", reason).Msg("submission failed")
	return nil
}

func (o *Orchestrator) publishProgress(submissionID, status, reason string) {
	if o.broker == nil {
		return
	}
	o.broker.Publish(ProgressEvent{
		SubmissionID: submissionID,
		Status:       status,
		Reason:       reason,
		At:           time.Now().UTC(),
	})
}

func (o *Orchestrator) publishEvent(subject string, submission *models.Submission) {
	if o.events == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"submission_id":  submission.ID,
		"status":         submission.Status,
		"failure_reason": submission.FailureReason,
		"overall_score":  submission.OverallScore,
		"max_score":      submission.MaxScore,
		"review_flag":    submission.ReviewFlag,
		"completed_at":   submission.CompletedAt,
	})
	if err != nil {
		return
	}

	if err := o.events.Publish(subject, payload); err != nil {
		o.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish lifecycle event")
	}
}
