package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssessmentStatus enumerates the possible states of an assessment.
type AssessmentStatus string

const (
	AssessmentStatusDraft     AssessmentStatus = "DRAFT"
	AssessmentStatusPublished AssessmentStatus = "PUBLISHED"
	AssessmentStatusArchived  AssessmentStatus = "ARCHIVED"
)

// AssessmentType mirrors how the portal labels assessments.
type AssessmentType string

const (
	AssessmentTypePractice  AssessmentType = "practice"
	AssessmentTypeGraded    AssessmentType = "graded"
	AssessmentTypeSectional AssessmentType = "sectional"
	AssessmentTypeFull      AssessmentType = "full"
)

// Graded reports whether the type counts as a graded test in the learner lobby.
func (t AssessmentType) Graded() bool {
	return t == AssessmentTypeGraded || t == AssessmentTypeSectional || t == AssessmentTypeFull
}

// Assessment is the admin-side assessment entity.
type Assessment struct {
	ID               uuid.UUID        `json:"id"`
	ModuleID         *uuid.UUID       `json:"module_id,omitempty"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Type             AssessmentType   `json:"type"`
	TimeLimitMinutes *int             `json:"time_limit_minutes,omitempty"`
	Status           AssessmentStatus `json:"status"`
	AuthorID         int              `json:"author_id"`
	QuestionCount    int              `json:"question_count"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// CreateAssessmentRequest is the payload for creating a draft assessment with its questions.
type CreateAssessmentRequest struct {
	ModuleID         *uuid.UUID              `json:"module_id" binding:"omitempty"`
	Title            string                  `json:"title" binding:"required,min=3,max=255"`
	Description      string                  `json:"description" binding:"max=2000"`
	Type             AssessmentType          `json:"type" binding:"required,oneof=practice graded sectional full"`
	TimeLimitMinutes *int                    `json:"time_limit_minutes" binding:"omitempty,min=1,max=480"`
	Questions        []CreateQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// LearnerAssessment is an assessment as listed to a learner, with their latest result.
type LearnerAssessment struct {
	Assessment
	Completed bool `json:"completed"`
	Score     *int `json:"score,omitempty"`
}

// AssessmentPayload is the Redis-cached, learner-facing assessment (no answer key).
// It is the immutable input of one session.
type AssessmentPayload struct {
	AssessmentID     uuid.UUID        `json:"assessment_id"`
	Title            string           `json:"title"`
	Description      string           `json:"description,omitempty"`
	Type             AssessmentType   `json:"type"`
	TimeLimitMinutes *int             `json:"time_limit_minutes,omitempty"`
	Questions        []PublicQuestion `json:"questions"`
}

// ErrNoQuestions is returned for an assessment without questions.
var ErrNoQuestions = errors.New("assessment has no questions")

// Validate checks the structural rules a session relies on.
func (p *AssessmentPayload) Validate() error {
	if len(p.Questions) == 0 {
		return ErrNoQuestions
	}
	if p.TimeLimitMinutes != nil && *p.TimeLimitMinutes <= 0 {
		return fmt.Errorf("time limit must be positive, got %d", *p.TimeLimitMinutes)
	}
	seen := make(map[uuid.UUID]struct{}, len(p.Questions))
	for i := range p.Questions {
		q := &p.Questions[i]
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("duplicate question id %s", q.ID)
		}
		seen[q.ID] = struct{}{}
		if !q.Kind.Valid() {
			return fmt.Errorf("question %s: unknown kind %q", q.ID, q.Kind)
		}
		if q.Kind == QuestionKindSingleChoice && len(q.Options) < 2 {
			return fmt.Errorf("question %s: single-choice needs at least 2 options", q.ID)
		}
		if q.Kind == QuestionKindTrueFalse && len(q.Options) != 0 {
			return fmt.Errorf("question %s: true-false takes no options", q.ID)
		}
	}
	return nil
}

// FindQuestion looks a question up by its string ID.
func (p *AssessmentPayload) FindQuestion(id string) (*PublicQuestion, bool) {
	for i := range p.Questions {
		if p.Questions[i].ID.String() == id {
			return &p.Questions[i], true
		}
	}
	return nil, false
}

// CheckAnswers validates a whole answer set against the payload.
func (p *AssessmentPayload) CheckAnswers(answers map[string]AnswerValue) error {
	for qid, v := range answers {
		q, ok := p.FindQuestion(qid)
		if !ok {
			return fmt.Errorf("unknown question %s", qid)
		}
		if err := q.Accepts(v); err != nil {
			return fmt.Errorf("question %s: %w", qid, err)
		}
	}
	return nil
}
