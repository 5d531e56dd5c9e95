package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/model"
)

var (
	ErrAIQuestionReviewed  = errors.New("ai question already reviewed")
	ErrAIQuestionNoTarget  = errors.New("ai question has no target assessment")
	ErrAIQuestionMalformed = errors.New("ai question is malformed")
)

// AIQuestionStore is the persistence the review workflow needs.
type AIQuestionStore interface {
	List(ctx context.Context, status *model.AIQuestionStatus) ([]model.AIQuestion, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.AIQuestion, error)
	Create(ctx context.Context, q *model.AIQuestion) error
	Update(ctx context.Context, q *model.AIQuestion) error
	Approve(ctx context.Context, q *model.AIQuestion, question *model.Question) error
}

// CacheRefresher re-caches a published assessment after its questions change.
type CacheRefresher interface {
	RefreshCache(ctx context.Context, id uuid.UUID) error
}

// AIQuestionService runs the admin review of machine-proposed questions.
type AIQuestionService struct {
	store AIQuestionStore
	cache CacheRefresher
	log   zerolog.Logger
}

// NewAIQuestionService creates a new AIQuestionService.
func NewAIQuestionService(store AIQuestionStore, cache CacheRefresher, log zerolog.Logger) *AIQuestionService {
	return &AIQuestionService{
		store: store,
		cache: cache,
		log:   log.With().Str("component", "ai_question_service").Logger(),
	}
}

// List returns proposals, optionally filtered by status.
func (s *AIQuestionService) List(ctx context.Context, status *model.AIQuestionStatus) ([]model.AIQuestion, error) {
	list, err := s.store.List(ctx, status)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.AIQuestion{}
	}
	return list, nil
}

// Get returns one proposal.
func (s *AIQuestionService) Get(ctx context.Context, id uuid.UUID) (*model.AIQuestion, error) {
	return s.store.GetByID(ctx, id)
}

// Propose stores a generated question as pending.
func (s *AIQuestionService) Propose(ctx context.Context, q *model.AIQuestion) error {
	if err := validateProposal(q); err != nil {
		return err
	}
	q.Status = model.AIQuestionPending
	return s.store.Create(ctx, q)
}

// Edit merges the changes into a proposal still under review.
func (s *AIQuestionService) Edit(ctx context.Context, id uuid.UUID, req model.EditAIQuestionRequest) (*model.AIQuestion, error) {
	q, err := s.reviewable(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Text != nil {
		q.Text = *req.Text
	}
	if req.Kind != nil {
		q.Kind = *req.Kind
	}
	if req.Options != nil {
		q.Options = req.Options
	}
	if q.Kind == model.QuestionKindTrueFalse {
		q.Options = nil
	}
	if req.CorrectAnswer != nil {
		q.CorrectAnswer = *req.CorrectAnswer
	}
	if err := validateProposal(q); err != nil {
		return nil, err
	}
	q.Status = model.AIQuestionEdited
	if err := s.store.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("update ai question: %w", err)
	}
	return q, nil
}

// Reject closes a proposal without adding it.
func (s *AIQuestionService) Reject(ctx context.Context, id uuid.UUID) (*model.AIQuestion, error) {
	q, err := s.reviewable(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Status = model.AIQuestionRejected
	if err := s.store.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("update ai question: %w", err)
	}
	s.log.Info().Str("ai_question_id", id.String()).Msg("AI question rejected")
	return q, nil
}

// Approve appends the proposal to its assessment. A published assessment is re-cached.
func (s *AIQuestionService) Approve(ctx context.Context, id uuid.UUID, req model.ApproveAIQuestionRequest) (*model.AIQuestion, *model.Question, error) {
	q, err := s.reviewable(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	target := q.AssessmentID
	if req.AssessmentID != nil {
		target = req.AssessmentID
	}
	if target == nil || *target == uuid.Nil {
		return nil, nil, ErrAIQuestionNoTarget
	}
	if err := validateProposal(q); err != nil {
		return nil, nil, err
	}

	question := q.ToQuestion(*target, 0)
	if err := s.store.Approve(ctx, q, &question); err != nil {
		return nil, nil, err
	}
	if err := s.cache.RefreshCache(ctx, *target); err != nil && !errors.Is(err, ErrAssessmentNotPublished) {
		s.log.Warn().Err(err).Str("assessment_id", target.String()).Msg("Failed to refresh cache after approval")
	}

	s.log.Info().
		Str("ai_question_id", id.String()).
		Str("question_id", question.ID.String()).
		Msg("AI question approved")
	return q, &question, nil
}

func (s *AIQuestionService) reviewable(ctx context.Context, id uuid.UUID) (*model.AIQuestion, error) {
	q, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status == model.AIQuestionApproved || q.Status == model.AIQuestionRejected {
		return nil, ErrAIQuestionReviewed
	}
	return q, nil
}

func validateProposal(q *model.AIQuestion) error {
	question := q.ToQuestion(uuid.Nil, 0)
	if !question.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrAIQuestionMalformed, question.Kind)
	}
	if question.Kind == model.QuestionKindSingleChoice && len(question.Options) < 2 {
		return fmt.Errorf("%w: single-choice needs at least 2 options", ErrAIQuestionMalformed)
	}
	if err := question.Accepts(question.CorrectAnswer); err != nil {
		return fmt.Errorf("%w: %v", ErrAIQuestionMalformed, err)
	}
	return nil
}
