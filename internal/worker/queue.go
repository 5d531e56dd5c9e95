package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize     = 50
	BatchTimeout  = 2 * time.Second
	PollTimeout   = 1 * time.Second // Redis rounds anything lower up to 1s
	RetryBackoff  = 2 * time.Second
	RedisBackoff  = 3 * time.Second
	ShutdownFlush = 5 * time.Second
)

// DB is the part of *pgxpool.Pool the workers write through.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// batchLoop pops JSON items off one queue and hands them to flush by size or age.
type batchLoop[T any] struct {
	rdb     *redis.Client
	queue   string
	size    int
	timeout time.Duration
	poll    time.Duration
	log     zerolog.Logger
	flush   func(ctx context.Context, batch []T)
}

func (b *batchLoop[T]) run(ctx context.Context) {
	buffer := make([]T, 0, b.size)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= b.size || time.Since(lastFlush) >= b.timeout) {
			b.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			b.shutdown(buffer)
			return
		default:
		}

		result, err := b.rdb.BLPop(ctx, b.poll, b.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			b.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleep(ctx, RedisBackoff)
			continue
		}
		if len(result) < 2 {
			continue
		}

		item, ok := decode[T](b.log, result[1])
		if !ok {
			continue
		}
		buffer = append(buffer, item)
	}
}

func (b *batchLoop[T]) shutdown(buffer []T) {
	if len(buffer) == 0 {
		b.log.Info().Msg("Worker stopped")
		return
	}
	b.log.Info().Int("count", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownFlush)
	defer cancel()
	b.flush(ctx, buffer)
}

// decode discards malformed payloads; retrying them can never succeed.
func decode[T any](log zerolog.Logger, raw string) (T, bool) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Error().Err(err).Str("data", raw).Msg("Discarding malformed JSON")
		return v, false
	}
	return v, true
}

// requeue pushes failed items back in one pipeline.
func requeue[T any](ctx context.Context, rdb *redis.Client, log zerolog.Logger, queue string, items []T) error {
	pipe := rdb.Pipeline()
	for _, it := range items {
		raw, err := json.Marshal(it)
		if err != nil {
			log.Error().Err(err).Msg("Dropping unencodable item")
			continue
		}
		pipe.RPush(ctx, queue, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: failed to requeue items, data lost")
		return err
	}
	log.Info().Int("count", len(items)).Msg("Requeued failed items")
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
