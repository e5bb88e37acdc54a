package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bhasha-ai/grader-api/internal/dto"
	"github.com/bhasha-ai/grader-api/internal/models"
	"github.com/bhasha-ai/grader-api/internal/repository"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AnswerKey{}, &models.AnswerKeyEntry{}, &models.Submission{}, &models.AnswerResult{}))

	return db
}

func upsertPayload() dto.AnswerKeyUpsertRequest {
	return dto.AnswerKeyUpsertRequest{
		Entries: []dto.AnswerKeyEntryRequest{
			{
				QuestionNumber: 1,
				ExpectedAnswer: "Photosynthesis converts sunlight into chemical energy.",
				Keywords:       []string{"sunlight", "energy"},
				MaxMarks:       2,
				PartialMarking: true,
			},
			{
				QuestionNumber: 2,
				Kind:           models.EntryKindMCQ,
				ExpectedAnswer: "B",
				MaxMarks:       1,
			},
		},
	}
}

func TestAnswerKeyUpsertCreatesFirstVersion(t *testing.T) {
	db := openTestDB(t)
	svc := NewAnswerKeyService(repository.NewAnswerKeyRepository(db), validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())

	paperID := uuid.NewString()
	key, err := svc.Upsert(context.Background(), paperID, upsertPayload())
	require.NoError(t, err)
	require.Equal(t, 1, key.Version)
	require.Equal(t, 3.0, key.TotalMarks)
	require.Len(t, key.Entries, 2)
	require.Equal(t, models.EntryKindText, key.Entries[0].Kind, "kind defaults to text")
}

func TestAnswerKeyUpsertReplacesUnreferencedVersion(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewAnswerKeyRepository(db)
	svc := NewAnswerKeyService(repo, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	ctx := context.Background()

	paperID := uuid.NewString()
	first, err := svc.Upsert(ctx, paperID, upsertPayload())
	require.NoError(t, err)

	payload := upsertPayload()
	payload.Entries[0].MaxMarks = 5
	second, err := svc.Upsert(ctx, paperID, payload)
	require.NoError(t, err)
	require.Equal(t, 1, second.Version, "unreferenced keys are replaced in place")
	require.Equal(t, 6.0, second.TotalMarks)

	_, err = repo.GetByID(ctx, first.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAnswerKeyUpsertVersionsReferencedKey(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewAnswerKeyRepository(db)
	svc := NewAnswerKeyService(repo, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	ctx := context.Background()

	paperID := uuid.NewString()
	first, err := svc.Upsert(ctx, paperID, upsertPayload())
	require.NoError(t, err)

	submission := models.Submission{
		ID:              uuid.NewString(),
		SourceReference: "https://sheets.example.com/1",
		QuestionPaperID: &paperID,
		AnswerKeyID:     &first.ID,
		Status:          models.SubmissionStatusCompleted,
	}
	require.NoError(t, db.Create(&submission).Error)

	second, err := svc.Upsert(ctx, paperID, upsertPayload())
	require.NoError(t, err)
	require.Equal(t, 2, second.Version, "graded keys are immutable, edits create a new version")

	pinned, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, 1, pinned.Version, "the referenced version survives")
}

func TestAnswerKeyUpsertRejectsDuplicateQuestions(t *testing.T) {
	db := openTestDB(t)
	svc := NewAnswerKeyService(repository.NewAnswerKeyRepository(db), validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())

	payload := upsertPayload()
	payload.Entries[1].QuestionNumber = 1

	_, err := svc.Upsert(context.Background(), uuid.NewString(), payload)
	require.ErrorIs(t, err, ErrDuplicateQuestion)
	require.Contains(t, err.Error(), "question 1")
}

func TestAnswerKeyUpsertRejectsInvalidEntries(t *testing.T) {
	db := openTestDB(t)
	svc := NewAnswerKeyService(repository.NewAnswerKeyRepository(db), validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	ctx := context.Background()

	noEntries := dto.AnswerKeyUpsertRequest{}
	_, err := svc.Upsert(ctx, uuid.NewString(), noEntries)
	require.Error(t, err)

	zeroMarks := upsertPayload()
	zeroMarks.Entries[0].MaxMarks = 0
	_, err = svc.Upsert(ctx, uuid.NewString(), zeroMarks)
	require.Error(t, err)

	emptyAnswer := upsertPayload()
	emptyAnswer.Entries[0].ExpectedAnswer = ""
	_, err = svc.Upsert(ctx, uuid.NewString(), emptyAnswer)
	require.Error(t, err)
}

func TestAnswerKeyGet(t *testing.T) {
	db := openTestDB(t)
	svc := NewAnswerKeyService(repository.NewAnswerKeyRepository(db), validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Get(ctx, "missing-paper")
	require.ErrorIs(t, err, ErrAnswerKeyNotFound)

	paperID := uuid.NewString()
	_, err = svc.Upsert(ctx, paperID, upsertPayload())
	require.NoError(t, err)

	key, err := svc.Get(ctx, paperID)
	require.NoError(t, err)
	require.Equal(t, paperID, key.QuestionPaperID)
	require.Len(t, key.Entries, 2)
}
