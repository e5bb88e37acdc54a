package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScoringErrorScorerUnavailable marks a question whose semantic comparison
// failed after retry exhaustion. The rest of the submission still completes.
const ScoringErrorScorerUnavailable = "SCORER_UNAVAILABLE"

// Per-answer outcome bands used in feedback and summaries.
const (
	AnswerStatusCorrect   = "correct"
	AnswerStatusPartial   = "partial"
	AnswerStatusIncorrect = "incorrect"
)

// AnswerResult is one graded question of a submission run. Rows are written
// once during scoring and never updated; a re-run writes a new set under the
// next run sequence.
type AnswerResult struct {
	ID             uint   `gorm:"primaryKey" json:"-"`
	SubmissionID   string `gorm:"size:64;not null;uniqueIndex:idx_submission_run_question" json:"-"`
	RunSeq         int    `gorm:"not null;default:0;uniqueIndex:idx_submission_run_question" json:"-"`
	QuestionNumber int    `gorm:"not null;uniqueIndex:idx_submission_run_question" json:"question_number"`

	StudentAnswerText string  `gorm:"type:text" json:"student_answer_text"`
	MarksObtained     float64 `gorm:"not null" json:"marks_obtained"`
	// MaxMarks is copied from the answer key at scoring time so the result
	// stays auditable even if the key gains a new version later.
	MaxMarks float64 `gorm:"not null" json:"max_marks"`
	Status   string  `gorm:"size:16" json:"status"`
	Feedback string  `gorm:"type:text" json:"feedback"`

	Similarity      float64                     `json:"similarity"`
	MatchedKeywords datatypes.JSONSlice[string] `json:"matched_keywords"`
	MissingKeywords datatypes.JSONSlice[string] `json:"missing_keywords"`

	Confidence   float64 `json:"confidence"`
	NeedsReview  bool    `json:"needs_review"`
	ScoringError string  `gorm:"size:32" json:"scoring_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
