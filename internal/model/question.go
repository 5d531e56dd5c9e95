package model

import (
	"github.com/google/uuid"
)

type QuestionKind string

const (
	QuestionKindSingleChoice QuestionKind = "single-choice"
	QuestionKindTrueFalse    QuestionKind = "true-false"
)

// Valid reports whether k is a supported question kind.
func (k QuestionKind) Valid() bool {
	return k == QuestionKindSingleChoice || k == QuestionKindTrueFalse
}

// Question is the admin-side question, correct answer included. It never leaves the server
// while an attempt is running.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	AssessmentID  uuid.UUID    `json:"assessment_id"`
	Text          string       `json:"text"`
	Kind          QuestionKind `json:"kind"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer AnswerValue  `json:"correct_answer"`
	OrderNum      int          `json:"order_num"`
	AIGenerated   bool         `json:"ai_generated"`
}

// Accepts reports whether v is a well-formed answer for q.
func (q *Question) Accepts(v AnswerValue) error {
	return checkAnswer(q.Kind, len(q.Options), v)
}

// Public strips the correct answer.
func (q *Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:      q.ID,
		Text:    q.Text,
		Kind:    q.Kind,
		Options: q.Options,
	}
}

// PublicQuestion is a question as sent to learners.
type PublicQuestion struct {
	ID      uuid.UUID    `json:"id"`
	Text    string       `json:"text"`
	Kind    QuestionKind `json:"kind"`
	Options []string     `json:"options,omitempty"`
}

// Accepts reports whether v is a well-formed answer for q.
func (q *PublicQuestion) Accepts(v AnswerValue) error {
	return checkAnswer(q.Kind, len(q.Options), v)
}

// CreateQuestionRequest is one question inside CreateAssessmentRequest.
// Kind/options consistency is checked by a struct-level validator.
type CreateQuestionRequest struct {
	Text          string       `json:"text" binding:"required,min=1,max=2000"`
	Kind          QuestionKind `json:"kind" binding:"required,oneof=single-choice true-false"`
	Options       []string     `json:"options" binding:"omitempty,dive,required,max=500"`
	CorrectAnswer AnswerValue  `json:"correct_answer"`
}

// ToQuestion converts the request into a Question at the given position.
func (r *CreateQuestionRequest) ToQuestion(order int) Question {
	opts := r.Options
	if r.Kind == QuestionKindTrueFalse {
		opts = nil
	}
	return Question{
		Text:          r.Text,
		Kind:          r.Kind,
		Options:       opts,
		CorrectAnswer: r.CorrectAnswer,
		OrderNum:      order,
	}
}
