// Package dueindex implements the Due-Time Index: a single Redis sorted
// set keyed by "<schedule_id>|<unix_ts>" with score == unix_ts, recording
// every scheduled future firing. See spec.md 3 and 4.3 for the invariants
// this type enforces.
package dueindex

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Datahenge/btu-scheduler-daemon/internal/metrics"
)

// Key is the single Redis key backing the Due-Time Index.
const Key = "btu_scheduler:task_execution_times"

// RedisError wraps any Redis command failure, per spec.md 7. The caller is
// expected to log and abort the current iteration; the sorted-set
// invariants and the periodic re-seeder make the daemon self-healing.
type RedisError struct {
	Op  string
	Err error
}

func (e *RedisError) Error() string {
	return fmt.Sprintf("dueindex: %s: %v", e.Op, e.Err)
}

func (e *RedisError) Unwrap() error { return e.Err }

// newRedisError records the failure on RedisErrorsTotal before returning
// it, so every dueindex Redis failure is counted regardless of call site.
func newRedisError(op string, err error) *RedisError {
	metrics.RedisErrorsTotal.WithLabelValues(op).Inc()
	return &RedisError{Op: op, Err: err}
}

// Firing identifies one (schedule, timestamp) pair -- the smallest unit of
// work the engine promotes to a JobRecord.
type Firing struct {
	ScheduleID string
	UnixTS     int64
}

// member encodes a Firing as the composite "<schedule_id>|<unix_ts>" Redis
// sorted-set member. The timestamp suffix is non-negotiable: it lets
// multiple firings for the same schedule coexist and prevents a newer
// projection from silently overwriting a not-yet-fired older one.
func (f Firing) member() string {
	return fmt.Sprintf("%s|%d", f.ScheduleID, f.UnixTS)
}

// parseMember splits a composite member on its *last* "|", so schedule ids
// containing a literal pipe character are still handled correctly.
func parseMember(member string) (Firing, error) {
	idx := strings.LastIndex(member, "|")
	if idx < 0 {
		return Firing{}, fmt.Errorf("dueindex: member %q has no '|' separator", member)
	}
	ts, err := strconv.ParseInt(member[idx+1:], 10, 64)
	if err != nil {
		return Firing{}, fmt.Errorf("dueindex: member %q has a non-integer timestamp suffix: %w", member, err)
	}
	return Firing{ScheduleID: member[:idx], UnixTS: ts}, nil
}

// Index wraps the single Due-Time Index sorted set.
type Index struct {
	rdb *redis.Client
}

// New wraps an existing Redis client. Callers own the client's lifecycle.
func New(rdb *redis.Client) *Index {
	return &Index{rdb: rdb}
}

// Schedule inserts (schedule_id, unixTS) into the index. ZADD is
// idempotent: re-scheduling the same (id, ts) pair collides on the same
// composite key and writes nothing new (spec.md 8's "Idempotence of
// create" law).
func (idx *Index) Schedule(ctx context.Context, scheduleID string, unixTS int64) error {
	f := Firing{ScheduleID: scheduleID, UnixTS: unixTS}
	err := idx.rdb.ZAdd(ctx, Key, redis.Z{
		Score:  float64(unixTS),
		Member: f.member(),
	}).Err()
	if err != nil {
		return newRedisError("zadd", err)
	}
	return nil
}

// FetchRipe returns every firing whose score is <= nowTS. It never
// mutates the index (spec.md 4.3's invariant enforcement); callers must
// attempt RemoveFiring before acting on a result.
func (idx *Index) FetchRipe(ctx context.Context, nowTS int64) ([]Firing, error) {
	members, err := idx.rdb.ZRangeByScore(ctx, Key, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(nowTS, 10),
	}).Result()
	if err != nil {
		return nil, newRedisError("zrangebyscore", err)
	}
	return parseMembers(members)
}

// RemoveFiring atomically claims one firing. The returned bool reports
// whether this call actually removed it -- the contract a Runner iteration
// relies on to guarantee at-most-one owner per firing (spec.md 4.3's I3).
func (idx *Index) RemoveFiring(ctx context.Context, scheduleID string, unixTS int64) (bool, error) {
	f := Firing{ScheduleID: scheduleID, UnixTS: unixTS}
	removed, err := idx.rdb.ZRem(ctx, Key, f.member()).Result()
	if err != nil {
		return false, newRedisError("zrem", err)
	}
	return removed == 1, nil
}

// CancelAll removes every firing belonging to scheduleID, regardless of
// its timestamp. Implemented as ZRANGE + filter (O(n) but simple and
// correct); spec.md 4.3 and 9 permit a ZSCAN+MATCH implementation as an
// equally valid alternative with the same semantics.
func (idx *Index) CancelAll(ctx context.Context, scheduleID string) (removedCount int, err error) {
	members, err := idx.rdb.ZRange(ctx, Key, 0, -1).Result()
	if err != nil {
		return 0, newRedisError("zrange", err)
	}

	prefix := scheduleID + "|"
	var toRemove []interface{}
	for _, m := range members {
		if strings.HasPrefix(m, prefix) {
			toRemove = append(toRemove, m)
		}
	}
	if len(toRemove) == 0 {
		return 0, nil
	}

	removed, err := idx.rdb.ZRem(ctx, Key, toRemove...).Result()
	if err != nil {
		return 0, newRedisError("zrem", err)
	}
	return int(removed), nil
}

// ListAll returns every firing currently in the index, sorted by score
// (fire time) for diagnostic output.
func (idx *Index) ListAll(ctx context.Context) ([]Firing, error) {
	members, err := idx.rdb.ZRange(ctx, Key, 0, -1).Result()
	if err != nil {
		return nil, newRedisError("zrange", err)
	}
	firings, err := parseMembers(members)
	if err != nil {
		return nil, err
	}
	sort.Slice(firings, func(i, j int) bool { return firings[i].UnixTS < firings[j].UnixTS })
	return firings, nil
}

func parseMembers(members []string) ([]Firing, error) {
	firings := make([]Firing, 0, len(members))
	for _, m := range members {
		f, err := parseMember(m)
		if err != nil {
			return nil, err
		}
		firings = append(firings, f)
	}
	return firings, nil
}
