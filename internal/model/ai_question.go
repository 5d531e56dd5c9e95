package model

import (
	"time"

	"github.com/google/uuid"
)

// AIQuestionStatus tracks the review workflow of a generated question.
type AIQuestionStatus string

const (
	AIQuestionPending  AIQuestionStatus = "pending"
	AIQuestionApproved AIQuestionStatus = "approved"
	AIQuestionRejected AIQuestionStatus = "rejected"
	AIQuestionEdited   AIQuestionStatus = "edited"
)

// AIQuestion is a machine-proposed question awaiting review.
type AIQuestion struct {
	ID              uuid.UUID        `json:"id"`
	AssessmentID    *uuid.UUID       `json:"assessment_id,omitempty"`
	SourceContentID *uuid.UUID       `json:"source_content_id,omitempty"`
	SourceContent   string           `json:"source_content"`
	Text            string           `json:"text"`
	Kind            QuestionKind     `json:"kind"`
	Options         []string         `json:"options,omitempty"`
	CorrectAnswer   AnswerValue      `json:"correct_answer"`
	Status          AIQuestionStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ToQuestion converts an approved proposal into an assessment question.
func (q *AIQuestion) ToQuestion(assessmentID uuid.UUID, order int) Question {
	return Question{
		AssessmentID:  assessmentID,
		Text:          q.Text,
		Kind:          q.Kind,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
		OrderNum:      order,
		AIGenerated:   true,
	}
}

// EditAIQuestionRequest edits a proposal before approval. The merged result is
// checked with Question.Accepts.
type EditAIQuestionRequest struct {
	Text          *string       `json:"text" binding:"omitempty,min=1,max=2000"`
	Kind          *QuestionKind `json:"kind" binding:"omitempty,oneof=single-choice true-false"`
	Options       []string      `json:"options" binding:"omitempty,dive,required,max=500"`
	CorrectAnswer *AnswerValue  `json:"correct_answer"`
}

// ApproveAIQuestionRequest optionally retargets the proposal before approval.
type ApproveAIQuestionRequest struct {
	AssessmentID *uuid.UUID `json:"assessment_id"`
}
