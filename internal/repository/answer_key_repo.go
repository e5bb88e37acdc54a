package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/bhasha-ai/grader-api/internal/models"
)

// AnswerKeyRepository defines data operations for answer keys.
type AnswerKeyRepository interface {
	GetLatest(ctx context.Context, questionPaperID string) (models.AnswerKey, error)
	GetByID(ctx context.Context, id uint) (models.AnswerKey, error)
	Create(ctx context.Context, key *models.AnswerKey) error
	DeleteVersion(ctx context.Context, id uint) error
	HasSubmissions(ctx context.Context, keyID uint) (bool, error)
}

type answerKeyRepository struct {
	db *gorm.DB
}

// NewAnswerKeyRepository instantiates the repository.
func NewAnswerKeyRepository(db *gorm.DB) AnswerKeyRepository {
	return &answerKeyRepository{db: db}
}

func (r *answerKeyRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.AnswerKey{}).
		Preload("Entries", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_number ASC")
		})
}

func (r *answerKeyRepository) GetLatest(ctx context.Context, questionPaperID string) (models.AnswerKey, error) {
	var key models.AnswerKey
	if err := r.baseQuery(ctx).
		Where("question_paper_id = ?", questionPaperID).
		Order("version DESC").
		First(&key).Error; err != nil {
		return models.AnswerKey{}, err
	}

	return key, nil
}

func (r *answerKeyRepository) GetByID(ctx context.Context, id uint) (models.AnswerKey, error) {
	var key models.AnswerKey
	if err := r.baseQuery(ctx).First(&key, id).Error; err != nil {
		return models.AnswerKey{}, err
	}

	return key, nil
}

func (r *answerKeyRepository) Create(ctx context.Context, key *models.AnswerKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

func (r *answerKeyRepository) DeleteVersion(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("answer_key_id = ?", id).Delete(&models.AnswerKeyEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.AnswerKey{}, id).Error
	})
}

func (r *answerKeyRepository) HasSubmissions(ctx context.Context, keyID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("answer_key_id = ?", keyID).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}
