package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/model"
)

// AttemptWorker persists graded attempts queued by the grading service.
type AttemptWorker struct {
	db      DB
	rdb     *redis.Client
	log     zerolog.Logger
	backoff time.Duration
	loop    *batchLoop[model.AttemptRecord]
}

func NewAttemptWorker(db DB, rdb *redis.Client, log zerolog.Logger) *AttemptWorker {
	w := &AttemptWorker{
		db:      db,
		rdb:     rdb,
		log:     log.With().Str("component", "attempt_worker").Logger(),
		backoff: RetryBackoff,
	}
	w.loop = &batchLoop[model.AttemptRecord]{
		rdb:     rdb,
		queue:   config.WorkerKey.PersistAttemptsQueue,
		size:    BatchSize,
		timeout: BatchTimeout,
		poll:    PollTimeout,
		log:     w.log,
		flush:   w.flushSafe,
	}
	return w
}

// Start blocks until ctx is cancelled. Call in a goroutine.
func (w *AttemptWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AttemptWorker started")
	w.loop.run(ctx)
}

// flushSafe tries one bulk insert, then row by row, then requeues what still failed.
func (w *AttemptWorker) flushSafe(ctx context.Context, batch []model.AttemptRecord) {
	if len(batch) == 0 {
		return
	}
	err := w.bulkInsert(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Attempts persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk attempt insert failed, using fallback")

	var failed []model.AttemptRecord
	for _, r := range batch {
		if err := w.insertOne(ctx, r); err != nil {
			w.log.Error().Err(err).Str("attempt_id", r.AttemptID.String()).Msg("Attempt insert failed, requeueing")
			failed = append(failed, r)
		}
	}
	if len(failed) > 0 {
		if requeue(ctx, w.rdb, w.log, config.WorkerKey.PersistAttemptsQueue, failed) == nil {
			sleep(ctx, w.backoff)
		}
	}
}

// bulkInsert writes the batch in one statement; replays of an attempt are ignored.
func (w *AttemptWorker) bulkInsert(ctx context.Context, batch []model.AttemptRecord) error {
	n := len(batch)
	ids := make([]uuid.UUID, 0, n)
	assessmentIDs := make([]uuid.UUID, 0, n)
	learnerIDs := make([]int, 0, n)
	scores := make([]int, 0, n)
	completed := make([]bool, 0, n)
	auto := make([]bool, 0, n)
	feedback := make([]string, 0, n)
	startedAts := make([]time.Time, 0, n)
	submittedAts := make([]time.Time, 0, n)

	for _, r := range batch {
		ids = append(ids, r.AttemptID)
		assessmentIDs = append(assessmentIDs, r.AssessmentID)
		learnerIDs = append(learnerIDs, r.LearnerID)
		scores = append(scores, r.Score)
		completed = append(completed, r.Completed)
		auto = append(auto, r.AutoSubmitted)
		feedback = append(feedback, r.Feedback)
		startedAts = append(startedAts, r.StartedAt)
		submittedAts = append(submittedAts, r.SubmittedAt)
	}

	_, err := w.db.Exec(ctx, `
		INSERT INTO attempts
			(id, assessment_id, learner_id, score, completed, auto_submitted, feedback, started_at, submitted_at)
		SELECT u.id, u.assessment_id, u.learner_id, u.score, u.completed, u.auto_submitted,
		       u.feedback, u.started_at, u.submitted_at
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::int[],
			$4::int[],
			$5::bool[],
			$6::bool[],
			$7::text[],
			$8::timestamptz[],
			$9::timestamptz[]
		) AS u (id, assessment_id, learner_id, score, completed, auto_submitted, feedback, started_at, submitted_at)
		ON CONFLICT (id) DO NOTHING`,
		ids, assessmentIDs, learnerIDs, scores, completed, auto, feedback, startedAts, submittedAts,
	)
	return err
}

func (w *AttemptWorker) insertOne(ctx context.Context, r model.AttemptRecord) error {
	_, err := w.db.Exec(ctx,
		`INSERT INTO attempts
			(id, assessment_id, learner_id, score, completed, auto_submitted, feedback, started_at, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		r.AttemptID, r.AssessmentID, r.LearnerID, r.Score, r.Completed, r.AutoSubmitted,
		r.Feedback, r.StartedAt, r.SubmittedAt,
	)
	return err
}
