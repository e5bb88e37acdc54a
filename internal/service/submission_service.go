package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/bhasha-ai/grader-api/internal/dto"
	"github.com/bhasha-ai/grader-api/internal/models"
	"github.com/bhasha-ai/grader-api/internal/repository"
)

// Submission service errors surfaced to the handler layer.
var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrMissingAnswerSheet = errors.New("an answer sheet file or source reference must be provided")
	ErrPaperWithoutKey    = errors.New("question paper has no answer key")
	ErrSubmissionFinished = errors.New("submission already reached a terminal state")
	ErrGradingQueueBusy   = errors.New("grading queue is busy, try again later")
)

const resultCachePrefix = "grader:result:"

// FileUploader abstracts uploading binary data and returning a URL.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// GradingQueue accepts submissions for asynchronous grading.
type GradingQueue interface {
	Enqueue(ctx context.Context, submissionID string) error
	RequestCancel(submissionID string)
}

// SubmissionService exposes submission domain use cases.
type SubmissionService interface {
	Submit(ctx context.Context, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionAcceptedResponse, error)
	Get(ctx context.Context, id string) (dto.SubmissionResponse, error)
	List(ctx context.Context, filter dto.SubmissionListFilter) ([]dto.SubmissionSummaryResponse, error)
	Cancel(ctx context.Context, id string) error
}

type submissionService struct {
	repo      repository.SubmissionRepository
	keys      repository.AnswerKeyRepository
	validator *validator.Validate
	uploader  FileUploader
	queue     GradingQueue
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    zerolog.Logger
}

// NewSubmissionService builds a new submission service. The redis client is
// optional; result caching is skipped when it is nil.
func NewSubmissionService(
	repo repository.SubmissionRepository,
	keys repository.AnswerKeyRepository,
	validate *validator.Validate,
	uploader FileUploader,
	queue GradingQueue,
	cache *redis.Client,
	cacheTTL time.Duration,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		repo:      repo,
		keys:      keys,
		validator: validate,
		uploader:  uploader,
		queue:     queue,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger.With().Str("component", "submission_service").Logger(),
	}
}

// Submit accepts an answer sheet, pins the current answer-key version, and
// queues the submission for grading. The response carries the PENDING record;
// grading happens on the worker pool.
func (s *submissionService) Submit(ctx context.Context, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionAcceptedResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionAcceptedResponse{}, err
	}

	if file == nil && payload.SourceReference == "" {
		return dto.SubmissionAcceptedResponse{}, ErrMissingAnswerSheet
	}

	key, err := s.keys.GetLatest(ctx, payload.QuestionPaperID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionAcceptedResponse{}, ErrPaperWithoutKey
		}

		return dto.SubmissionAcceptedResponse{}, err
	}

	sourceReference := payload.SourceReference
	if file != nil {
		sourceReference, err = s.uploadSheet(ctx, file)
		if err != nil {
			return dto.SubmissionAcceptedResponse{}, err
		}
	}

	paperID := payload.QuestionPaperID
	submission := models.Submission{
		ID:              uuid.NewString(),
		SourceReference: sourceReference,
		QuestionPaperID: &paperID,
		AnswerKeyID:     &key.ID,
		Status:          models.SubmissionStatusPending,
	}

	if err := s.repo.Create(ctx, &submission); err != nil {
		return dto.SubmissionAcceptedResponse{}, err
	}

	if err := s.queue.Enqueue(ctx, submission.ID); err != nil {
		s.logger.Error().Err(err).Str("submission_id", submission.ID).Msg("failed to enqueue submission")
		return dto.SubmissionAcceptedResponse{}, ErrGradingQueueBusy
	}

	s.logger.Info().Str("submission_id", submission.ID).
		Str("question_paper_id", payload.QuestionPaperID).
		Uint("answer_key_id", key.ID).
		Msg("submission queued for grading")

	return dto.SubmissionAcceptedResponse{
		ID:        submission.ID,
		Status:    submission.Status,
		CreatedAt: submission.CreatedAt,
	}, nil
}

// Get returns the grading report. Completed reports are immutable, so they
// are served from the redis cache when possible.
func (s *submissionService) Get(ctx context.Context, id string) (dto.SubmissionResponse, error) {
	if cached, ok := s.fromCache(ctx, id); ok {
		return cached, nil
	}

	submission, err := s.repo.GetWithResults(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}

		return dto.SubmissionResponse{}, err
	}

	response := dto.NewSubmissionResponse(submission)
	if submission.Status == models.SubmissionStatusCompleted {
		s.toCache(ctx, response)
	}

	return response, nil
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionListFilter) ([]dto.SubmissionSummaryResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	submissions, err := s.repo.List(ctx, repository.SubmissionFilter{
		QuestionPaperID: filter.QuestionPaperID,
		Status:          filter.Status,
	})
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionSummaryResponseSlice(submissions), nil
}

// Cancel requests cooperative cancellation of an in-flight submission. The
// orchestrator honors the request at its next stage boundary.
func (s *submissionService) Cancel(ctx context.Context, id string) error {
	submission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}

		return err
	}

	if submission.IsTerminal() {
		return ErrSubmissionFinished
	}

	s.queue.RequestCancel(submission.ID)
	s.logger.Info().Str("submission_id", submission.ID).Msg("cancellation requested")

	return nil
}

func (s *submissionService) uploadSheet(ctx context.Context, file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open answer sheet: %w", err)
	}
	defer src.Close()

	url, err := s.uploader.Upload(ctx, file.Filename, src)
	if err != nil {
		return "", fmt.Errorf("failed to upload answer sheet: %w", err)
	}

	return url, nil
}

func (s *submissionService) fromCache(ctx context.Context, id string) (dto.SubmissionResponse, bool) {
	if s.cache == nil {
		return dto.SubmissionResponse{}, false
	}

	raw, err := s.cache.Get(ctx, resultCachePrefix+id).Bytes()
	if err != nil {
		return dto.SubmissionResponse{}, false
	}

	var response dto.SubmissionResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return dto.SubmissionResponse{}, false
	}

	return response, true
}

func (s *submissionService) toCache(ctx context.Context, response dto.SubmissionResponse) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(response)
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, resultCachePrefix+response.ID, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Debug().Err(err).Str("submission_id", response.ID).Msg("failed to cache grading report")
	}
}
