package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/model"
)

// Grading errors.
var (
	ErrAttemptAlreadyFinalized = errors.New("attempt already finalized")
	ErrAttemptInProgress       = errors.New("learner already has an attempt in progress")
	ErrAnswerKeyMissing        = errors.New("answer key not found")
	ErrInvalidSubmission       = errors.New("invalid submission")
)

// releaseIfOwner deletes KEYS[1] only while it still holds ARGV[1].
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AnswerKeySource loads the answer key from PostgreSQL when Redis is cold.
type AnswerKeySource interface {
	AnswerKey(ctx context.Context, assessmentID uuid.UUID) (map[string]string, error)
}

// GradingService scores submitted attempts in RAM and queues them for persistence.
// It is the finalize collaborator of the session controller.
type GradingService struct {
	rdb     *redis.Client
	keys    AnswerKeySource
	monitor *MonitorService
	lockTTL time.Duration
	log     zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(rdb *redis.Client, keys AnswerKeySource, monitor *MonitorService, lockTTL time.Duration, log zerolog.Logger) *GradingService {
	return &GradingService{
		rdb:     rdb,
		keys:    keys,
		monitor: monitor,
		lockTTL: lockTTL,
		log:     log.With().Str("component", "grading_service").Logger(),
	}
}

// BeginAttempt reserves the learner's single open attempt on an assessment.
func (s *GradingService) BeginAttempt(ctx context.Context, learnerID int, assessmentID uuid.UUID, ttl time.Duration) (uuid.UUID, error) {
	attemptID := uuid.New()
	key := config.CacheKey.LearnerActiveAttemptKey(learnerID, assessmentID.String())
	ok, err := s.rdb.SetNX(ctx, key, attemptID.String(), ttl).Result()
	if err != nil {
		return uuid.Nil, fmt.Errorf("reserve attempt: %w", err)
	}
	if !ok {
		return uuid.Nil, ErrAttemptInProgress
	}
	return attemptID, nil
}

// EndAttempt releases the reservation taken by BeginAttempt.
func (s *GradingService) EndAttempt(ctx context.Context, learnerID int, assessmentID, attemptID uuid.UUID) {
	key := config.CacheKey.LearnerActiveAttemptKey(learnerID, assessmentID.String())
	if err := releaseIfOwner.Run(ctx, s.rdb, []string{key}, attemptID.String()).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to release attempt reservation")
	}
}

// SubmitAttempt grades one attempt exactly once.
func (s *GradingService) SubmitAttempt(ctx context.Context, sub model.AttemptSubmission) (*model.AttemptResult, error) {
	if sub.AttemptID == uuid.Nil || sub.AssessmentID == uuid.Nil || sub.LearnerID == 0 {
		return nil, ErrInvalidSubmission
	}

	lockKey := config.CacheKey.AttemptFinalizedKey(sub.AttemptID.String())
	ok, err := s.rdb.SetNX(ctx, lockKey, sub.LearnerID, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	if !ok {
		return nil, ErrAttemptAlreadyFinalized
	}

	res, err := s.grade(ctx, sub)
	if err != nil {
		// ctx may already be cancelled.
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.rdb.Del(relCtx, lockKey)
		cancel()
		return nil, err
	}
	return res, nil
}

func (s *GradingService) grade(ctx context.Context, sub model.AttemptSubmission) (*model.AttemptResult, error) {
	key, err := s.AnswerKey(ctx, sub.AssessmentID)
	if err != nil {
		return nil, err
	}

	answers := make([]model.AnswerRecord, 0, len(sub.Answers))
	correct := 0
	for qid, v := range sub.Answers {
		want, known := key[qid]
		if !known {
			s.log.Warn().Str("question_id", qid).Str("attempt_id", sub.AttemptID.String()).Msg("Dropping answer for unknown question")
			continue
		}
		questionID, err := uuid.Parse(qid)
		if err != nil {
			continue
		}
		isCorrect := v.String() == want
		if isCorrect {
			correct++
		}
		answers = append(answers, model.AnswerRecord{
			AttemptID:  sub.AttemptID,
			QuestionID: questionID,
			Answer:     v.String(),
			IsCorrect:  isCorrect,
		})
	}

	total := len(key)
	score := Score(correct, total)
	completed := len(answers) == total
	res := &model.AttemptResult{
		AttemptID: sub.AttemptID,
		Score:     score,
		Completed: completed,
		Feedback:  Feedback(score, completed),
	}

	record := model.AttemptRecord{
		AttemptID:     sub.AttemptID,
		AssessmentID:  sub.AssessmentID,
		LearnerID:     sub.LearnerID,
		Score:         score,
		Completed:     completed,
		AutoSubmitted: sub.AutoSubmitted,
		Feedback:      res.Feedback,
		StartedAt:     sub.StartedAt,
		SubmittedAt:   sub.SubmittedAt,
	}
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = time.Now().UTC()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = record.SubmittedAt
	}

	if err := s.enqueue(ctx, record, answers, sub.IntegrityEvents); err != nil {
		return nil, err
	}

	s.monitor.Publish(ctx, sub.AssessmentID, MonitorEvent{
		Type:      MonitorSubmitted,
		LearnerID: sub.LearnerID,
		AttemptID: sub.AttemptID,
		Score:     &score,
		Completed: &completed,
		At:        record.SubmittedAt,
	})

	s.log.Info().
		Str("attempt_id", sub.AttemptID.String()).
		Str("assessment_id", sub.AssessmentID.String()).
		Int("learner_id", sub.LearnerID).
		Int("score", score).
		Int("correct", correct).
		Int("total", total).
		Int("integrity_events", len(sub.IntegrityEvents)).
		Bool("auto", sub.AutoSubmitted).
		Msg("Attempt graded")
	return res, nil
}

// enqueue pushes the attempt, its answers and its integrity log in one round trip.
func (s *GradingService) enqueue(ctx context.Context, record model.AttemptRecord, answers []model.AnswerRecord, events []model.IntegrityEvent) error {
	attemptRaw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	answerItems := make([]interface{}, 0, len(answers))
	for _, a := range answers {
		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal answer: %w", err)
		}
		answerItems = append(answerItems, raw)
	}

	eventItems := make([]interface{}, 0, len(events))
	for _, ev := range events {
		raw, err := json.Marshal(model.IntegrityRecord{
			AttemptID:    record.AttemptID,
			AssessmentID: record.AssessmentID,
			LearnerID:    record.LearnerID,
			Kind:         ev.Kind,
			Description:  ev.Description,
			OccurredAt:   ev.OccurredAt,
		})
		if err != nil {
			return fmt.Errorf("marshal integrity event: %w", err)
		}
		eventItems = append(eventItems, raw)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, attemptRaw)
	if len(answerItems) > 0 {
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, answerItems...)
	}
	if len(eventItems) > 0 {
		pipe.RPush(ctx, config.WorkerKey.PersistIntegrityQueue, eventItems...)
	}
	pipe.HDel(ctx, config.CacheKey.AssessmentLiveKey(record.AssessmentID.String()), strconv.Itoa(record.LearnerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue attempt: %w", err)
	}
	return nil
}

// AnswerKey reads the cached answer key, falling back to PostgreSQL and re-caching.
func (s *GradingService) AnswerKey(ctx context.Context, assessmentID uuid.UUID) (map[string]string, error) {
	cacheKey := config.CacheKey.AssessmentAnswerKey(assessmentID.String())
	key, err := s.rdb.HGetAll(ctx, cacheKey).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("Answer key cache read failed, using database")
	}
	if len(key) > 0 {
		return key, nil
	}

	key, err = s.keys.AnswerKey(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}
	if len(key) == 0 {
		return nil, ErrAnswerKeyMissing
	}
	fields := make(map[string]interface{}, len(key))
	for qid, ans := range key {
		fields[qid] = ans
	}
	if err := s.rdb.HSet(ctx, cacheKey, fields).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to re-cache answer key")
	}
	return key, nil
}

// Score converts a correct count into a 0..100 percentage, rounded half up.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) * 100 / float64(total)))
}

// Feedback is the short message shown with a result.
func Feedback(score int, completed bool) string {
	var msg string
	switch {
	case score >= 80:
		msg = "Excellent work! You have a strong grasp of this material."
	case score >= 60:
		msg = "Good effort. Review the questions you missed to strengthen your understanding."
	default:
		msg = "Keep practicing. Revisit the module content and try again."
	}
	if !completed {
		msg += " Some questions were left unanswered."
	}
	return msg
}
