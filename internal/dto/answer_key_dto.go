package dto

import (
	"time"

	"github.com/bhasha-ai/grader-api/internal/models"
)

// AnswerKeyEntryRequest describes one question's grading criteria in an
// upsert payload.
type AnswerKeyEntryRequest struct {
	QuestionNumber int      `json:"question_number" validate:"required,gt=0"`
	Kind           string   `json:"kind" validate:"omitempty,oneof=text mcq"`
	ExpectedAnswer string   `json:"expected_answer" validate:"required,min=1"`
	Keywords       []string `json:"keywords" validate:"omitempty,dive,min=1"`
	MaxMarks       float64  `json:"max_marks" validate:"required,gt=0"`
	PartialMarking bool     `json:"partial_marking"`
}

// AnswerKeyUpsertRequest describes the payload for creating or replacing the
// answer key of a question paper.
type AnswerKeyUpsertRequest struct {
	Entries []AnswerKeyEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

// AnswerKeyEntryResponse serializes one answer-key entry.
type AnswerKeyEntryResponse struct {
	QuestionNumber int      `json:"question_number"`
	Kind           string   `json:"kind"`
	ExpectedAnswer string   `json:"expected_answer"`
	Keywords       []string `json:"keywords"`
	MaxMarks       float64  `json:"max_marks"`
	PartialMarking bool     `json:"partial_marking"`
}

// AnswerKeyResponse is the serialized answer key returned to API clients.
type AnswerKeyResponse struct {
	ID              uint                     `json:"id"`
	QuestionPaperID string                   `json:"question_paper_id"`
	Version         int                      `json:"version"`
	TotalMarks      float64                  `json:"total_marks"`
	Entries         []AnswerKeyEntryResponse `json:"entries"`
	CreatedAt       time.Time                `json:"created_at"`
}

// NewAnswerKeyResponse converts an AnswerKey model into a DTO.
func NewAnswerKeyResponse(model models.AnswerKey) AnswerKeyResponse {
	entries := make([]AnswerKeyEntryResponse, 0, len(model.Entries))
	for _, entry := range model.Entries {
		entries = append(entries, AnswerKeyEntryResponse{
			QuestionNumber: entry.QuestionNumber,
			Kind:           entry.Kind,
			ExpectedAnswer: entry.ExpectedAnswer,
			Keywords:       entry.Keywords,
			MaxMarks:       entry.MaxMarks,
			PartialMarking: entry.PartialMarking,
		})
	}

	return AnswerKeyResponse{
		ID:              model.ID,
		QuestionPaperID: model.QuestionPaperID,
		Version:         model.Version,
		TotalMarks:      model.TotalMarks(),
		Entries:         entries,
		CreatedAt:       model.CreatedAt,
	}
}
