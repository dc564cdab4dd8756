// Package rq writes job records and queue entries in the Python RQ wire
// format, so that a Python RQ Worker process can dequeue and execute jobs
// produced by this daemon without any changes to that worker. See spec.md
// 3 and 4.5.
package rq

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Datahenge/btu-scheduler-daemon/internal/metrics"
)

const jobKeyPrefix = "rq:job"
const queueRegistryKey = "rq:queues"

// RedisError wraps any Redis command failure encountered while writing a
// job, per spec.md 7.
type RedisError struct {
	Op  string
	Err error
}

func (e *RedisError) Error() string {
	return fmt.Sprintf("rq: %s: %v", e.Op, e.Err)
}

func (e *RedisError) Unwrap() error { return e.Err }

// newRedisError records the failure on RedisErrorsTotal before returning
// it, so every rq Redis failure is counted regardless of call site.
func newRedisError(op string, err error) *RedisError {
	metrics.RedisErrorsTotal.WithLabelValues(op).Inc()
	return &RedisError{Op: op, Err: err}
}

// JobRecord is the Go equivalent of a Python RQ job's Redis hash. Field
// names and the RFC-3339-millisecond timestamp format are fixed by the RQ
// wire protocol: a misformatted created_at crashes the RQ worker on
// dequeue.
type JobRecord struct {
	ID          string
	Origin      string // queue name
	Description string
	Data        []byte // pickled callable + args, opaque to this daemon
	Meta        []byte
	Timeout     int
	CreatedAt   time.Time
}

// NewJobRecord builds a JobRecord with a fresh UUID and RQ's defaults:
// queue "default", a 3600 second timeout, and created_at stamped at call
// time. last_heartbeat is stamped later, by Save.
func NewJobRecord(origin, description string, data, meta []byte, timeout int) JobRecord {
	if origin == "" {
		origin = "default"
	}
	if timeout <= 0 {
		timeout = 3600
	}
	return JobRecord{
		ID:          uuid.NewString(),
		Origin:      origin,
		Description: description,
		Data:        data,
		Meta:        meta,
		Timeout:     timeout,
		CreatedAt:   time.Now().UTC(),
	}
}

// Key returns the Redis hash key this record is stored under.
func (j JobRecord) Key() string {
	return fmt.Sprintf("%s:%s", jobKeyPrefix, j.ID)
}

// queueKey returns the Redis list key for origin.
func queueKey(origin string) string {
	return fmt.Sprintf("rq:queue:%s", origin)
}

// rfc3339Millis formats t the way Python RQ expects: millisecond precision,
// "Z"-suffixed UTC. time.RFC3339Nano would emit a variable number of
// fractional digits and trailing zero trimming, which RQ's worker does not
// tolerate consistently -- so the layout is spelled out explicitly.
func rfc3339Millis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Writer saves JobRecords to Redis and enqueues them for a Python RQ
// worker to pick up.
type Writer struct {
	rdb *redis.Client
}

// NewWriter wraps an existing Redis client. Callers own the client's
// lifecycle.
func NewWriter(rdb *redis.Client) *Writer {
	return &Writer{rdb: rdb}
}

// Save writes job as an RQ-compatible Redis hash. It does not enqueue the
// job; call Enqueue afterward to make it visible to workers.
func (w *Writer) Save(ctx context.Context, job JobRecord) error {
	fields := map[string]interface{}{
		"status":         "",
		"worker_name":    "",
		"ended_at":       "",
		"result_ttl":     "",
		"enqueued_at":    "",
		"last_heartbeat": rfc3339Millis(time.Now()),
		"origin":         job.Origin,
		"description":    job.Description,
		"started_at":     "",
		"created_at":     rfc3339Millis(job.CreatedAt),
		"timeout":        job.Timeout,
		"data":           job.Data,
		"meta":           job.Meta,
	}
	if err := w.rdb.HSet(ctx, job.Key(), fields).Err(); err != nil {
		return newRedisError("hset", err)
	}
	return nil
}

// Enqueue makes job visible to RQ workers: it registers job's queue name
// in the rq:queues set, then pushes the job id onto that queue's list.
// Both steps run in a single pipeline so a crash between them cannot
// leave the queue registered without work, or vice versa leave work
// unclaimed by any known queue.
func (w *Writer) Enqueue(ctx context.Context, job JobRecord) error {
	qKey := queueKey(job.Origin)

	pipe := w.rdb.TxPipeline()
	pipe.SAdd(ctx, queueRegistryKey, qKey)
	pipe.RPush(ctx, qKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return newRedisError("enqueue pipeline", err)
	}
	return nil
}

// SaveAndEnqueue is the common case: persist the hash, then make it
// visible to workers.
func (w *Writer) SaveAndEnqueue(ctx context.Context, job JobRecord) error {
	if err := w.Save(ctx, job); err != nil {
		return err
	}
	return w.Enqueue(ctx, job)
}

// Exists reports whether a job hash with this id is present in Redis.
func (w *Writer) Exists(ctx context.Context, jobID string) (bool, error) {
	n, err := w.rdb.Exists(ctx, fmt.Sprintf("%s:%s", jobKeyPrefix, jobID)).Result()
	if err != nil {
		return false, newRedisError("exists", err)
	}
	return n == 1, nil
}
