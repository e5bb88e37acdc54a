package models

import "time"

// Submission lifecycle states. PENDING submissions are claimed by the
// orchestrator; COMPLETED and FAILED are terminal.
const (
	SubmissionStatusPending     = "PENDING"
	SubmissionStatusExtracting  = "EXTRACTING"
	SubmissionStatusSegmenting  = "SEGMENTING"
	SubmissionStatusScoring     = "SCORING"
	SubmissionStatusAggregating = "AGGREGATING"
	SubmissionStatusCompleted   = "COMPLETED"
	SubmissionStatusFailed      = "FAILED"
)

// Failure reason codes exposed on FAILED submissions.
const (
	FailureReasonExtraction       = "EXTRACTION_FAILED"
	FailureReasonAllQuestions     = "ALL_QUESTIONS_FAILED"
	FailureReasonAnswerKeyMissing = "ANSWER_KEY_MISSING"
	FailureReasonInvalidSource    = "INVALID_SOURCE"
	FailureReasonCancelled        = "CANCELLED"
)

// Submission is one scanned answer sheet moving through the grading pipeline.
type Submission struct {
	ID              string  `gorm:"primaryKey;size:64" json:"id"`
	SourceReference string  `gorm:"size:512;not null" json:"source_reference"`
	QuestionPaperID *string `gorm:"size:64;index" json:"question_paper_id"`
	// AnswerKeyID pins the rubric version resolved at submit time so later
	// key edits never re-score existing results.
	AnswerKeyID *uint  `json:"answer_key_id"`
	Status      string `gorm:"size:16;not null;index" json:"status"`
	FailureReason string `gorm:"size:32" json:"failure_reason,omitempty"`
	AttemptCount  int    `gorm:"not null;default:0" json:"attempt_count"`

	ExtractedText          string  `gorm:"type:text" json:"-"`
	SegmentationConfidence float64 `json:"segmentation_confidence"`

	// RunSeq identifies the current result set; a re-run writes a fresh set
	// under the next sequence instead of patching rows in place.
	RunSeq int `gorm:"not null;default:0" json:"-"`

	OverallScore float64 `json:"overall_score"`
	MaxScore     float64 `json:"max_score"`
	Percentage   float64 `json:"percentage"`
	Grade        string  `gorm:"size:4" json:"grade,omitempty"`
	Summary      string  `gorm:"type:text" json:"summary,omitempty"`
	ReviewFlag   bool    `json:"review_flag"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`

	Results []AnswerResult `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"results,omitempty"`
}

// IsTerminal reports whether the submission reached a final state.
func (s Submission) IsTerminal() bool {
	return s.Status == SubmissionStatusCompleted || s.Status == SubmissionStatusFailed
}
