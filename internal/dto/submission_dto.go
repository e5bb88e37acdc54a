package dto

import (
	"time"

	"github.com/bhasha-ai/grader-api/internal/models"
)

// SubmissionCreateRequest describes the multipart payload for submitting an
// answer sheet. The sheet arrives either as an uploaded file or as an
// already-hosted source reference, never both.
type SubmissionCreateRequest struct {
	QuestionPaperID string `form:"question_paper_id" json:"question_paper_id" validate:"required,min=1"`
	SourceReference string `form:"source_reference" json:"source_reference" validate:"omitempty,url"`
}

// SubmissionListFilter describes query string filters for listing submissions.
type SubmissionListFilter struct {
	QuestionPaperID *string `query:"question_paper_id"`
	Status          *string `query:"status" validate:"omitempty,oneof=PENDING EXTRACTING SEGMENTING SCORING AGGREGATING COMPLETED FAILED"`
}

// SubmissionAcceptedResponse acknowledges a queued submission.
type SubmissionAcceptedResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// AnswerResultResponse serializes one graded question.
type AnswerResultResponse struct {
	QuestionNumber    int      `json:"question_number"`
	StudentAnswerText string   `json:"student_answer_text"`
	MarksObtained     float64  `json:"marks_obtained"`
	MaxMarks          float64  `json:"max_marks"`
	Status            string   `json:"status"`
	Feedback          string   `json:"feedback"`
	Similarity        float64  `json:"similarity"`
	MatchedKeywords   []string `json:"matched_keywords"`
	MissingKeywords   []string `json:"missing_keywords"`
	Confidence        float64  `json:"confidence"`
	NeedsReview       bool     `json:"needs_review"`
	ScoringError      string   `json:"scoring_error,omitempty"`
}

// SubmissionResponse is the full grading report returned to API clients.
type SubmissionResponse struct {
	ID                     string                 `json:"id"`
	QuestionPaperID        *string                `json:"question_paper_id"`
	Status                 string                 `json:"status"`
	FailureReason          string                 `json:"failure_reason,omitempty"`
	SegmentationConfidence float64                `json:"segmentation_confidence"`
	OverallScore           float64                `json:"overall_score"`
	MaxScore               float64                `json:"max_score"`
	Percentage             float64                `json:"percentage"`
	Grade                  string                 `json:"grade,omitempty"`
	Summary                string                 `json:"summary,omitempty"`
	ReviewFlag             bool                   `json:"review_flag"`
	Results                []AnswerResultResponse `json:"results"`
	CreatedAt              time.Time              `json:"created_at"`
	CompletedAt            *time.Time             `json:"completed_at"`
}

// SubmissionSummaryResponse is the compact form used in listings.
type SubmissionSummaryResponse struct {
	ID              string     `json:"id"`
	QuestionPaperID *string    `json:"question_paper_id"`
	Status          string     `json:"status"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	OverallScore    float64    `json:"overall_score"`
	MaxScore        float64    `json:"max_score"`
	Percentage      float64    `json:"percentage"`
	Grade           string     `json:"grade,omitempty"`
	ReviewFlag      bool       `json:"review_flag"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

// NewAnswerResultResponse converts an AnswerResult model into a DTO.
func NewAnswerResultResponse(model models.AnswerResult) AnswerResultResponse {
	return AnswerResultResponse{
		QuestionNumber:    model.QuestionNumber,
		StudentAnswerText: model.StudentAnswerText,
		MarksObtained:     model.MarksObtained,
		MaxMarks:          model.MaxMarks,
		Status:            model.Status,
		Feedback:          model.Feedback,
		Similarity:        model.Similarity,
		MatchedKeywords:   model.MatchedKeywords,
		MissingKeywords:   model.MissingKeywords,
		Confidence:        model.Confidence,
		NeedsReview:       model.NeedsReview,
		ScoringError:      model.ScoringError,
	}
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	results := make([]AnswerResultResponse, 0, len(model.Results))
	for _, result := range model.Results {
		results = append(results, NewAnswerResultResponse(result))
	}

	return SubmissionResponse{
		ID:                     model.ID,
		QuestionPaperID:        model.QuestionPaperID,
		Status:                 model.Status,
		FailureReason:          model.FailureReason,
		SegmentationConfidence: model.SegmentationConfidence,
		OverallScore:           model.OverallScore,
		MaxScore:               model.MaxScore,
		Percentage:             model.Percentage,
		Grade:                  model.Grade,
		Summary:                model.Summary,
		ReviewFlag:             model.ReviewFlag,
		Results:                results,
		CreatedAt:              model.CreatedAt,
		CompletedAt:            model.CompletedAt,
	}
}

// NewSubmissionSummaryResponse converts a Submission model into its listing DTO.
func NewSubmissionSummaryResponse(model models.Submission) SubmissionSummaryResponse {
	return SubmissionSummaryResponse{
		ID:              model.ID,
		QuestionPaperID: model.QuestionPaperID,
		Status:          model.Status,
		FailureReason:   model.FailureReason,
		OverallScore:    model.OverallScore,
		MaxScore:        model.MaxScore,
		Percentage:      model.Percentage,
		Grade:           model.Grade,
		ReviewFlag:      model.ReviewFlag,
		CreatedAt:       model.CreatedAt,
		CompletedAt:     model.CompletedAt,
	}
}

// NewSubmissionSummaryResponseSlice converts submission models into listing DTOs.
func NewSubmissionSummaryResponseSlice(submissions []models.Submission) []SubmissionSummaryResponse {
	responses := make([]SubmissionSummaryResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionSummaryResponse(submission))
	}

	return responses
}
