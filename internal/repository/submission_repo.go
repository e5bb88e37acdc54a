package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/bhasha-ai/grader-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	QuestionPaperID *string
	Status          *string
}

// SubmissionRepository defines data operations for submissions and their
// graded answer sets.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (models.Submission, error)
	GetWithResults(ctx context.Context, id string) (models.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	// ClaimPending atomically moves a PENDING submission into EXTRACTING and
	// bumps the run sequence. It reports false when the submission was not
	// PENDING, which is how concurrent orchestrator invocations lose the race.
	ClaimPending(ctx context.Context, id string) (bool, error)
	// ReleaseClaim returns a claimed, non-terminal submission to PENDING so a
	// later run can claim it again after a persistence failure.
	ReleaseClaim(ctx context.Context, id string) error
	Update(ctx context.Context, submission *models.Submission) error
	CreateResults(ctx context.Context, results []models.AnswerResult) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, "id = ?", id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetWithResults(ctx context.Context, id string) (models.Submission, error) {
	submission, err := r.GetByID(ctx, id)
	if err != nil {
		return models.Submission{}, err
	}

	var results []models.AnswerResult
	if err := r.db.WithContext(ctx).
		Where("submission_id = ? AND run_seq = ?", submission.ID, submission.RunSeq).
		Order("question_number ASC").
		Find(&results).Error; err != nil {
		return models.Submission{}, err
	}

	submission.Results = results
	return submission, nil
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{})

	if filter.QuestionPaperID != nil {
		query = query.Where("question_paper_id = ?", *filter.QuestionPaperID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var submissions []models.Submission
	if err := query.Order("created_at DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) ClaimPending(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusPending).
		Updates(map[string]interface{}{
			"status":  models.SubmissionStatusExtracting,
			"run_seq": gorm.Expr("run_seq + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *submissionRepository) ReleaseClaim(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status NOT IN ?", id, []string{
			models.SubmissionStatusPending,
			models.SubmissionStatusCompleted,
			models.SubmissionStatusFailed,
		}).
		Update("status", models.SubmissionStatusPending).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) CreateResults(ctx context.Context, results []models.AnswerResult) error {
	if len(results) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&results).Error
}
