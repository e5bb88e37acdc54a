package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bhasha-ai/grader-api/internal/dto"
	"github.com/bhasha-ai/grader-api/internal/models"
	"github.com/bhasha-ai/grader-api/internal/repository"
)

// ErrAnswerKeyNotFound indicates the question paper has no answer key.
var ErrAnswerKeyNotFound = errors.New("answer key not found")

// ErrDuplicateQuestion indicates an upsert payload lists the same question
// number more than once.
var ErrDuplicateQuestion = errors.New("duplicate question number")

// AnswerKeyService exposes answer-key domain use cases.
type AnswerKeyService interface {
	Upsert(ctx context.Context, questionPaperID string, payload dto.AnswerKeyUpsertRequest) (dto.AnswerKeyResponse, error)
	Get(ctx context.Context, questionPaperID string) (dto.AnswerKeyResponse, error)
}

type answerKeyService struct {
	repo      repository.AnswerKeyRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAnswerKeyService builds a new answer key service.
func NewAnswerKeyService(repo repository.AnswerKeyRepository, validate *validator.Validate, logger zerolog.Logger) AnswerKeyService {
	return &answerKeyService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "answer_key_service").Logger(),
	}
}

// Upsert installs the answer key for a question paper. A version that has
// already graded submissions is immutable, so the new entries land in a fresh
// version; an unreferenced latest version is replaced in place.
func (s *answerKeyService) Upsert(ctx context.Context, questionPaperID string, payload dto.AnswerKeyUpsertRequest) (dto.AnswerKeyResponse, error) {
	if questionPaperID == "" {
		return dto.AnswerKeyResponse{}, fmt.Errorf("question paper id must be provided")
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.AnswerKeyResponse{}, err
	}

	entries, err := buildEntries(payload.Entries)
	if err != nil {
		return dto.AnswerKeyResponse{}, err
	}

	version := 1
	latest, err := s.repo.GetLatest(ctx, questionPaperID)
	switch {
	case err == nil:
		referenced, refErr := s.repo.HasSubmissions(ctx, latest.ID)
		if refErr != nil {
			return dto.AnswerKeyResponse{}, refErr
		}

		if referenced {
			version = latest.Version + 1
		} else {
			version = latest.Version
			if delErr := s.repo.DeleteVersion(ctx, latest.ID); delErr != nil {
				return dto.AnswerKeyResponse{}, delErr
			}
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// First key for this paper.
	default:
		return dto.AnswerKeyResponse{}, err
	}

	key := models.AnswerKey{
		QuestionPaperID: questionPaperID,
		Version:         version,
		Entries:         entries,
	}

	if err := s.repo.Create(ctx, &key); err != nil {
		return dto.AnswerKeyResponse{}, err
	}

	s.logger.Info().Str("question_paper_id", questionPaperID).Int("version", version).
		Int("entries", len(entries)).Msg("answer key installed")

	return dto.NewAnswerKeyResponse(key), nil
}

func (s *answerKeyService) Get(ctx context.Context, questionPaperID string) (dto.AnswerKeyResponse, error) {
	key, err := s.repo.GetLatest(ctx, questionPaperID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AnswerKeyResponse{}, ErrAnswerKeyNotFound
		}

		return dto.AnswerKeyResponse{}, err
	}

	return dto.NewAnswerKeyResponse(key), nil
}

func buildEntries(requests []dto.AnswerKeyEntryRequest) ([]models.AnswerKeyEntry, error) {
	entries := make([]models.AnswerKeyEntry, 0, len(requests))
	seen := make(map[int]struct{}, len(requests))

	for _, request := range requests {
		if _, dup := seen[request.QuestionNumber]; dup {
			return nil, fmt.Errorf("question %d: %w", request.QuestionNumber, ErrDuplicateQuestion)
		}
		seen[request.QuestionNumber] = struct{}{}

		kind := request.Kind
		if kind == "" {
			kind = models.EntryKindText
		}

		entries = append(entries, models.AnswerKeyEntry{
			QuestionNumber: request.QuestionNumber,
			Kind:           kind,
			ExpectedAnswer: request.ExpectedAnswer,
			Keywords:       datatypes.JSONSlice[string](request.Keywords),
			MaxMarks:       request.MaxMarks,
			PartialMarking: request.PartialMarking,
		})
	}

	return entries, nil
}
