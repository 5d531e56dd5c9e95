package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/model"
)

const answerRetryDelay = 5 * time.Second

// AnswerWorker upserts graded answers one at a time.
type AnswerWorker struct {
	db         DB
	rdb        *redis.Client
	log        zerolog.Logger
	poll       time.Duration
	retryDelay time.Duration
}

func NewAnswerWorker(db DB, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		db:         db,
		rdb:        rdb,
		log:        log.With().Str("component", "answer_worker").Logger(),
		poll:       PollTimeout,
		retryDelay: answerRetryDelay,
	}
}

// Start blocks until ctx is cancelled, then drains the queue. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AnswerWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), ShutdownFlush)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, w.poll, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			sleep(ctx, RedisBackoff)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	rec, ok := decode[model.AnswerRecord](w.log, result[1])
	if !ok {
		return
	}

	if err := w.upsert(ctx, rec); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", rec.AttemptID.String()).
			Str("question_id", rec.QuestionID.String()).
			Msg("Persist error, retrying later")
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		sleep(ctx, w.retryDelay)
	}
}

func (w *AnswerWorker) upsert(ctx context.Context, a model.AnswerRecord) error {
	_, err := w.db.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, answer, is_correct)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, is_correct = EXCLUDED.is_correct`,
		a.AttemptID, a.QuestionID, a.Answer, a.IsCorrect,
	)
	return err
}

// drain persists whatever is left in the queue; it stops at the first failure.
func (w *AnswerWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}
		rec, ok := decode[model.AnswerRecord](w.log, raw)
		if !ok {
			continue
		}
		if err := w.upsert(ctx, rec); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
