package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/model"
)

var ErrEmptySubmission = errors.New("at least one question must be answered")

// PayloadSource returns the learner-facing assessment.
type PayloadSource interface {
	GetPayload(ctx context.Context, id uuid.UUID) (*model.AssessmentPayload, error)
}

// AttemptReader reads persisted attempts.
type AttemptReader interface {
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.AttemptSummary, error)
	GetDetail(ctx context.Context, attemptID uuid.UUID) (*model.AttemptDetail, error)
}

// AttemptService serves results and the one-shot REST submit for clients without a socket.
type AttemptService struct {
	payloads PayloadSource
	grading  *GradingService
	attempts AttemptReader
	lockTTL  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(payloads PayloadSource, grading *GradingService, attempts AttemptReader, lockTTL time.Duration, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		payloads: payloads,
		grading:  grading,
		attempts: attempts,
		lockTTL:  lockTTL,
		now:      time.Now,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// Results lists the graded attempts of an assessment.
func (s *AttemptService) Results(ctx context.Context, assessmentID uuid.UUID) ([]model.AttemptSummary, error) {
	list, err := s.attempts.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.AttemptSummary{}
	}
	return list, nil
}

// Detail returns one attempt with its answers and integrity log.
func (s *AttemptService) Detail(ctx context.Context, attemptID uuid.UUID) (*model.AttemptDetail, error) {
	return s.attempts.GetDetail(ctx, attemptID)
}

// Submit validates and grades a complete answer set in one call.
func (s *AttemptService) Submit(ctx context.Context, learnerID int, assessmentID uuid.UUID, req model.SubmitAssessmentRequest) (*model.AttemptResult, error) {
	payload, err := s.payloads.GetPayload(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if len(req.Answers) == 0 {
		return nil, ErrEmptySubmission
	}
	if err := payload.CheckAnswers(req.Answers); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	attemptID, err := s.grading.BeginAttempt(ctx, learnerID, assessmentID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer s.grading.EndAttempt(context.WithoutCancel(ctx), learnerID, assessmentID, attemptID)

	now := s.now().UTC()
	return s.grading.SubmitAttempt(ctx, model.AttemptSubmission{
		AttemptID:       attemptID,
		AssessmentID:    assessmentID,
		LearnerID:       learnerID,
		Answers:         req.Answers,
		IntegrityEvents: integrityLog(req.Events),
		StartedAt:       now,
		SubmittedAt:     now,
	})
}

// integrityLog orders client-reported events and keeps timestamps strictly increasing.
func integrityLog(inputs []model.IntegrityEventInput) []model.IntegrityEvent {
	sorted := make([]model.IntegrityEventInput, 0, len(inputs))
	for _, in := range inputs {
		if in.Kind.Valid() {
			sorted = append(sorted, in)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OccurredAt.Before(sorted[j].OccurredAt) })

	events := make([]model.IntegrityEvent, 0, len(sorted))
	var last time.Time
	for _, in := range sorted {
		at := in.OccurredAt.UTC()
		if !last.IsZero() && !at.After(last) {
			at = last.Add(time.Nanosecond)
		}
		last = at
		events = append(events, model.NewIntegrityEvent(in.Kind, at))
	}
	return events
}
