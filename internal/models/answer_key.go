package models

import (
	"time"

	"gorm.io/datatypes"
)

// Answer-key entry kinds. Text answers go through the semantic scorer; MCQ
// answers are graded by exact option match.
const (
	EntryKindText = "text"
	EntryKindMCQ  = "mcq"
)

// AnswerKey is one version of the rubric for a question paper. A version is
// immutable once any submission has been scored against it; edits create a
// new version row instead of mutating in place.
type AnswerKey struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	QuestionPaperID string           `gorm:"size:64;not null;uniqueIndex:idx_paper_version" json:"question_paper_id"`
	Version         int              `gorm:"not null;default:1;uniqueIndex:idx_paper_version" json:"version"`
	Entries         []AnswerKeyEntry `gorm:"constraint:OnDelete:CASCADE" json:"entries"`
	CreatedAt       time.Time        `json:"created_at"`
}

// TotalMarks sums the maximum marks across all entries.
func (k AnswerKey) TotalMarks() float64 {
	total := 0.0
	for _, entry := range k.Entries {
		total += entry.MaxMarks
	}
	return total
}

// Entry returns the entry for a question number, if present.
func (k AnswerKey) Entry(questionNumber int) (AnswerKeyEntry, bool) {
	for _, entry := range k.Entries {
		if entry.QuestionNumber == questionNumber {
			return entry, true
		}
	}
	return AnswerKeyEntry{}, false
}

// QuestionNumbers returns the expected question numbers in ascending order.
// Entries are stored ordered by question number.
func (k AnswerKey) QuestionNumbers() []int {
	numbers := make([]int, 0, len(k.Entries))
	for _, entry := range k.Entries {
		numbers = append(numbers, entry.QuestionNumber)
	}
	return numbers
}

// AnswerKeyEntry holds the grading criteria for a single question.
type AnswerKeyEntry struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	AnswerKeyID    uint                        `gorm:"not null;uniqueIndex:idx_key_question" json:"-"`
	QuestionNumber int                         `gorm:"not null;uniqueIndex:idx_key_question" json:"question_number"`
	Kind           string                      `gorm:"size:16;not null;default:text" json:"kind"`
	ExpectedAnswer string                      `gorm:"type:text;not null" json:"expected_answer"`
	Keywords       datatypes.JSONSlice[string] `json:"keywords"`
	MaxMarks       float64                     `gorm:"not null" json:"max_marks"`
	PartialMarking bool                        `gorm:"not null;default:false" json:"partial_marking"`
}
