package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeySource struct {
	keys  map[uuid.UUID]map[string]string
	err   error
	calls int
}

func (f *fakeKeySource) AnswerKey(_ context.Context, id uuid.UUID) (map[string]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.keys[id], nil
}

type fakeAttemptLister struct {
	results   []model.AttemptSummary
	integrity map[int]int64
	err       error
}

func (f *fakeAttemptLister) ListByAssessment(context.Context, uuid.UUID) ([]model.AttemptSummary, error) {
	return f.results, f.err
}

func (f *fakeAttemptLister) IntegrityCounts(context.Context, uuid.UUID) (map[int]int64, error) {
	return f.integrity, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type gradingFixture struct {
	mr           *miniredis.Miniredis
	rdb          *redis.Client
	keys         *fakeKeySource
	svc          *GradingService
	assessmentID uuid.UUID
	questions    []string
}

// newGradingFixture caches a four-question key: options 0..2 and two booleans.
func newGradingFixture(t *testing.T) *gradingFixture {
	t.Helper()
	mr, rdb := newTestRedis(t)
	f := &gradingFixture{
		mr:           mr,
		rdb:          rdb,
		keys:         &fakeKeySource{keys: map[uuid.UUID]map[string]string{}},
		assessmentID: uuid.New(),
	}
	answers := []string{"0", "2", "true", "false"}
	key := make(map[string]string, len(answers))
	for _, a := range answers {
		id := uuid.NewString()
		f.questions = append(f.questions, id)
		key[id] = a
	}
	f.keys.keys[f.assessmentID] = key
	for qid, a := range key {
		mr.HSet(config.CacheKey.AssessmentAnswerKey(f.assessmentID.String()), qid, a)
	}

	monitor := NewMonitorService(rdb, &fakeAttemptLister{}, zerolog.Nop())
	f.svc = NewGradingService(rdb, f.keys, monitor, time.Hour, zerolog.Nop())
	return f
}

func (f *gradingFixture) submission(answers map[string]model.AnswerValue) model.AttemptSubmission {
	return model.AttemptSubmission{
		AttemptID:    uuid.New(),
		AssessmentID: f.assessmentID,
		LearnerID:    7,
		Answers:      answers,
		StartedAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		SubmittedAt:  time.Date(2026, 3, 1, 9, 20, 0, 0, time.UTC),
	}
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0, Score(0, 0))
	assert.Equal(t, 0, Score(0, 4))
	assert.Equal(t, 33, Score(1, 3))
	assert.Equal(t, 67, Score(2, 3))
	assert.Equal(t, 50, Score(1, 2))
	assert.Equal(t, 100, Score(5, 5))
}

func TestFeedback(t *testing.T) {
	assert.Contains(t, Feedback(80, true), "Excellent")
	assert.Contains(t, Feedback(60, true), "Good effort")
	assert.Contains(t, Feedback(59, true), "Keep practicing")
	assert.NotContains(t, Feedback(100, true), "unanswered")
	assert.Contains(t, Feedback(100, false), "unanswered")
}

func TestSubmitAttempt_GradesAndQueues(t *testing.T) {
	f := newGradingFixture(t)
	ctx := context.Background()

	f.mr.HSet(config.CacheKey.AssessmentLiveKey(f.assessmentID.String()), "7", "{}")

	sub := f.submission(map[string]model.AnswerValue{
		f.questions[0]: model.OptionAnswer(0),
		f.questions[1]: model.OptionAnswer(1),
		f.questions[2]: model.BoolAnswer(true),
	})
	sub.IntegrityEvents = []model.IntegrityEvent{
		model.NewIntegrityEvent(model.IntegrityCopyAttempt, sub.StartedAt.Add(time.Minute)),
	}

	res, err := f.svc.SubmitAttempt(ctx, sub)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, sub.AttemptID, res.AttemptID)
	assert.Equal(t, 50, res.Score)
	assert.False(t, res.Completed)
	assert.Contains(t, res.Feedback, "unanswered")
	assert.Zero(t, f.keys.calls)

	attempts, err := f.rdb.LRange(ctx, config.WorkerKey.PersistAttemptsQueue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	var record model.AttemptRecord
	require.NoError(t, json.Unmarshal([]byte(attempts[0]), &record))
	assert.Equal(t, 50, record.Score)
	assert.Equal(t, 7, record.LearnerID)
	assert.True(t, sub.SubmittedAt.Equal(record.SubmittedAt))

	answers, err := f.rdb.LRange(ctx, config.WorkerKey.PersistAnswersQueue, 0, -1).Result()
	require.NoError(t, err)
	assert.Len(t, answers, 3)

	events, err := f.rdb.LRange(ctx, config.WorkerKey.PersistIntegrityQueue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, events, 1)
	var ev model.IntegrityRecord
	require.NoError(t, json.Unmarshal([]byte(events[0]), &ev))
	assert.Equal(t, model.IntegrityCopyAttempt, ev.Kind)
	assert.Equal(t, sub.AttemptID, ev.AttemptID)

	live, err := f.rdb.HGetAll(ctx, config.CacheKey.AssessmentLiveKey(f.assessmentID.String())).Result()
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestSubmitAttempt_Completed(t *testing.T) {
	f := newGradingFixture(t)
	sub := f.submission(map[string]model.AnswerValue{
		f.questions[0]: model.OptionAnswer(0),
		f.questions[1]: model.OptionAnswer(2),
		f.questions[2]: model.BoolAnswer(true),
		f.questions[3]: model.BoolAnswer(false),
	})

	res, err := f.svc.SubmitAttempt(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.True(t, res.Completed)
	assert.Contains(t, res.Feedback, "Excellent")
}

func TestSubmitAttempt_DropsUnknownQuestions(t *testing.T) {
	f := newGradingFixture(t)
	sub := f.submission(map[string]model.AnswerValue{
		f.questions[0]:   model.OptionAnswer(0),
		uuid.NewString(): model.OptionAnswer(1),
	})

	res, err := f.svc.SubmitAttempt(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 25, res.Score)

	n, err := f.rdb.LLen(context.Background(), config.WorkerKey.PersistAnswersQueue).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubmitAttempt_OnlyOnce(t *testing.T) {
	f := newGradingFixture(t)
	ctx := context.Background()
	sub := f.submission(map[string]model.AnswerValue{f.questions[0]: model.OptionAnswer(0)})

	_, err := f.svc.SubmitAttempt(ctx, sub)
	require.NoError(t, err)

	_, err = f.svc.SubmitAttempt(ctx, sub)
	assert.ErrorIs(t, err, ErrAttemptAlreadyFinalized)

	n, err := f.rdb.LLen(ctx, config.WorkerKey.PersistAttemptsQueue).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubmitAttempt_ReleasesLockOnFailure(t *testing.T) {
	f := newGradingFixture(t)
	ctx := context.Background()
	f.mr.Del(config.CacheKey.AssessmentAnswerKey(f.assessmentID.String()))
	f.keys.err = errors.New("db down")

	sub := f.submission(map[string]model.AnswerValue{f.questions[0]: model.OptionAnswer(0)})
	_, err := f.svc.SubmitAttempt(ctx, sub)
	require.Error(t, err)
	assert.False(t, f.mr.Exists(config.CacheKey.AttemptFinalizedKey(sub.AttemptID.String())))

	f.keys.err = nil
	res, err := f.svc.SubmitAttempt(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, 25, res.Score)
}

func TestSubmitAttempt_RejectsIncompleteSubmission(t *testing.T) {
	f := newGradingFixture(t)
	sub := f.submission(nil)
	sub.LearnerID = 0

	_, err := f.svc.SubmitAttempt(context.Background(), sub)
	assert.ErrorIs(t, err, ErrInvalidSubmission)
}

func TestAnswerKey_FallsBackToDatabaseAndRecaches(t *testing.T) {
	f := newGradingFixture(t)
	ctx := context.Background()
	cacheKey := config.CacheKey.AssessmentAnswerKey(f.assessmentID.String())
	f.mr.Del(cacheKey)

	key, err := f.svc.AnswerKey(ctx, f.assessmentID)
	require.NoError(t, err)
	assert.Len(t, key, 4)
	assert.Equal(t, 1, f.keys.calls)

	cached, err := f.rdb.HGetAll(ctx, cacheKey).Result()
	require.NoError(t, err)
	assert.Equal(t, key, cached)

	_, err = f.svc.AnswerKey(ctx, f.assessmentID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.keys.calls)
}

func TestAnswerKey_Missing(t *testing.T) {
	f := newGradingFixture(t)
	_, err := f.svc.AnswerKey(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAnswerKeyMissing)
}

func TestBeginEndAttempt(t *testing.T) {
	f := newGradingFixture(t)
	ctx := context.Background()

	first, err := f.svc.BeginAttempt(ctx, 7, f.assessmentID, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first)

	_, err = f.svc.BeginAttempt(ctx, 7, f.assessmentID, time.Hour)
	assert.ErrorIs(t, err, ErrAttemptInProgress)

	other, err := f.svc.BeginAttempt(ctx, 8, f.assessmentID, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	// A stale attempt id must not release the current reservation.
	f.svc.EndAttempt(ctx, 7, f.assessmentID, uuid.New())
	_, err = f.svc.BeginAttempt(ctx, 7, f.assessmentID, time.Hour)
	assert.ErrorIs(t, err, ErrAttemptInProgress)

	f.svc.EndAttempt(ctx, 7, f.assessmentID, first)
	_, err = f.svc.BeginAttempt(ctx, 7, f.assessmentID, time.Hour)
	assert.NoError(t, err)
}
