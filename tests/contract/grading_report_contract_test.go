package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/bhasha-ai/grader-api/internal/dto"
	"github.com/bhasha-ai/grader-api/internal/grading"
	"github.com/bhasha-ai/grader-api/internal/handler"
)

type stubSubmissionService struct {
	report dto.SubmissionResponse
}

func (s stubSubmissionService) Submit(context.Context, dto.SubmissionCreateRequest, *multipart.FileHeader) (dto.SubmissionAcceptedResponse, error) {
	return dto.SubmissionAcceptedResponse{}, nil
}

func (s stubSubmissionService) Get(context.Context, string) (dto.SubmissionResponse, error) {
	return s.report, nil
}

func (s stubSubmissionService) List(context.Context, dto.SubmissionListFilter) ([]dto.SubmissionSummaryResponse, error) {
	return nil, nil
}

func (s stubSubmissionService) Cancel(context.Context, string) error {
	return nil
}

func TestGradingReportContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", "grading_report.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	now := time.Now().UTC()
	paperID := "paper-7"
	report := dto.SubmissionResponse{
		ID:                     "6dfe0b21-9ad8-4a6a-92a3-a76ddab2f0a1",
		QuestionPaperID:        &paperID,
		Status:                 "COMPLETED",
		SegmentationConfidence: 1,
		OverallScore:           3.5,
		MaxScore:               5,
		Percentage:             70,
		Grade:                  "B+",
		Summary:                "Good work! 1/3 questions correct. Review the missed concepts for improvement.",
		ReviewFlag:             true,
		Results: []dto.AnswerResultResponse{
			{
				QuestionNumber:    1,
				StudentAnswerText: "Photosynthesis uses sunlight in the chloroplast.",
				MarksObtained:     2,
				MaxMarks:          2,
				Status:            "correct",
				Feedback:          "Strong answer, closely matching the expected response.",
				Similarity:        0.92,
				MatchedKeywords:   []string{"sunlight", "chloroplast"},
				MissingKeywords:   []string{},
				Confidence:        0.96,
				NeedsReview:       false,
			},
			{
				QuestionNumber:    2,
				StudentAnswerText: "Mitochondria produce energy.",
				MarksObtained:     1.5,
				MaxMarks:          2,
				Status:            "partial",
				Feedback:          "Partially correct; the answer covers some of the expected points. Missing: ATP.",
				Similarity:        0.61,
				MatchedKeywords:   []string{},
				MissingKeywords:   []string{"ATP"},
				Confidence:        0.805,
				NeedsReview:       false,
			},
			{
				QuestionNumber:    3,
				StudentAnswerText: "Osmosis moves water.",
				MarksObtained:     0,
				MaxMarks:          1,
				Status:            "incorrect",
				Feedback:          "This answer could not be graded automatically and requires manual review.",
				Similarity:        0,
				MatchedKeywords:   []string{},
				MissingKeywords:   []string{},
				Confidence:        0,
				NeedsReview:       true,
				ScoringError:      "SCORER_UNAVAILABLE",
			},
		},
		CreatedAt:   now.Add(-time.Minute),
		CompletedAt: &now,
	}

	submissionHandler := handler.NewSubmissionHandler(stubSubmissionService{report: report}, grading.NewProgressBroker(), zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v1/submissions")
	submissionHandler.Register(group)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/"+report.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}
