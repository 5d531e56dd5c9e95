package worker

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/model"
)

var integrityColumns = []string{"attempt_id", "assessment_id", "learner_id", "kind", "description", "occurred_at"}

// IntegrityWorker copies integrity events into PostgreSQL in batches.
type IntegrityWorker struct {
	db      DB
	rdb     *redis.Client
	log     zerolog.Logger
	backoff time.Duration
	loop    *batchLoop[model.IntegrityRecord]
}

func NewIntegrityWorker(db DB, rdb *redis.Client, log zerolog.Logger) *IntegrityWorker {
	w := &IntegrityWorker{
		db:      db,
		rdb:     rdb,
		log:     log.With().Str("component", "integrity_worker").Logger(),
		backoff: RetryBackoff,
	}
	w.loop = &batchLoop[model.IntegrityRecord]{
		rdb:     rdb,
		queue:   config.WorkerKey.PersistIntegrityQueue,
		size:    BatchSize,
		timeout: BatchTimeout,
		poll:    PollTimeout,
		log:     w.log,
		flush:   w.flushSafe,
	}
	return w
}

// Start blocks until ctx is cancelled. Call in a goroutine.
func (w *IntegrityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IntegrityWorker started")
	w.loop.run(ctx)
}

// flushSafe attempts CopyFrom, then row inserts, then requeue.
func (w *IntegrityWorker) flushSafe(ctx context.Context, batch []model.IntegrityRecord) {
	if len(batch) == 0 {
		return
	}
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk copy failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *IntegrityWorker) bulkInsert(ctx context.Context, batch []model.IntegrityRecord) error {
	rows := make([][]any, 0, len(batch))
	for _, r := range batch {
		rows = append(rows, integrityRow(r))
	}
	_, err := w.db.CopyFrom(ctx, pgx.Identifier{"integrity_events"}, integrityColumns, pgx.CopyFromRows(rows))
	return err
}

func (w *IntegrityWorker) fallbackInsert(ctx context.Context, batch []model.IntegrityRecord) {
	var failed []model.IntegrityRecord
	for _, r := range batch {
		if !r.Kind.Valid() {
			w.log.Error().Str("kind", string(r.Kind)).Msg("Dropping integrity event with unknown kind")
			continue
		}
		_, err := w.db.Exec(ctx,
			`INSERT INTO integrity_events (attempt_id, assessment_id, learner_id, kind, description, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			integrityRow(r)...,
		)
		if err != nil {
			w.log.Error().Err(err).Int("learner_id", r.LearnerID).Msg("Insert failed, requeueing")
			failed = append(failed, r)
		}
	}
	if len(failed) > 0 {
		if requeue(ctx, w.rdb, w.log, config.WorkerKey.PersistIntegrityQueue, failed) == nil {
			sleep(ctx, w.backoff)
		}
	}
}

func integrityRow(r model.IntegrityRecord) []any {
	return []any{r.AttemptID, r.AssessmentID, r.LearnerID, string(r.Kind), r.Description, r.OccurredAt}
}
