package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptSubmission is the finalize call payload: one attempt's answers and integrity log.
type AttemptSubmission struct {
	AttemptID       uuid.UUID              `json:"attempt_id"`
	AssessmentID    uuid.UUID              `json:"assessment_id"`
	LearnerID       int                    `json:"learner_id"`
	Answers         map[string]AnswerValue `json:"answers"`
	IntegrityEvents []IntegrityEvent       `json:"integrity_events"`
	AutoSubmitted   bool                   `json:"auto_submitted"`
	StartedAt       time.Time              `json:"started_at"`
	SubmittedAt     time.Time              `json:"submitted_at"`
}

// AttemptResult is the grading collaborator's acknowledgment.
type AttemptResult struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	Score     int       `json:"score"`
	Completed bool      `json:"completed"`
	Feedback  string    `json:"feedback,omitempty"`
}

// SubmitAssessmentRequest is the REST submit body.
type SubmitAssessmentRequest struct {
	Answers map[string]AnswerValue `json:"answers" binding:"required"`
	Events  []IntegrityEventInput  `json:"events" binding:"omitempty,dive"`
}

// AttemptSummary is one row of an assessment's results.
type AttemptSummary struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	LearnerID      int       `json:"learner_id"`
	LearnerName    string    `json:"learner_name"`
	Score          int       `json:"score"`
	Completed      bool      `json:"completed"`
	AutoSubmitted  bool      `json:"auto_submitted"`
	IntegrityCount int       `json:"integrity_count"`
	StartedAt      time.Time `json:"started_at"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// AttemptRecord is the queued persistence payload of a graded attempt.
type AttemptRecord struct {
	AttemptID     uuid.UUID `json:"attempt_id"`
	AssessmentID  uuid.UUID `json:"assessment_id"`
	LearnerID     int       `json:"learner_id"`
	Score         int       `json:"score"`
	Completed     bool      `json:"completed"`
	AutoSubmitted bool      `json:"auto_submitted"`
	Feedback      string    `json:"feedback"`
	StartedAt     time.Time `json:"started_at"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// AnswerRecord is one queued answer row.
type AnswerRecord struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	QuestionID uuid.UUID `json:"question_id"`
	Answer     string    `json:"answer"`
	IsCorrect  bool      `json:"is_correct"`
}

// IntegrityRecord is one queued integrity event row.
type IntegrityRecord struct {
	AttemptID    uuid.UUID     `json:"attempt_id"`
	AssessmentID uuid.UUID     `json:"assessment_id"`
	LearnerID    int           `json:"learner_id"`
	Kind         IntegrityKind `json:"kind"`
	Description  string        `json:"description"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// AttemptDetail is an attempt with its answers and integrity log.
type AttemptDetail struct {
	AttemptSummary
	AssessmentID    uuid.UUID        `json:"assessment_id"`
	Feedback        string           `json:"feedback"`
	Answers         []AnswerRecord   `json:"answers"`
	IntegrityEvents []IntegrityEvent `json:"integrity_events"`
}
