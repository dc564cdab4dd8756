// Package engine implements the Scheduler Engine: the FIFO Drainer,
// Periodic Re-Seeder, and Due-Time Runner goroutines described in
// spec.md 4.4, sharing a mutex-guarded internal/fifo.Queue and driving
// internal/cronproj, internal/store, internal/dueindex, internal/rq, and
// internal/webapp. Grounded on the teacher's cmd/worker goroutine
// structure and StartScheduler ticker loop.
package engine

import (
	"context"
	"time"

	"github.com/Datahenge/btu-scheduler-daemon/internal/cronproj"
	"github.com/Datahenge/btu-scheduler-daemon/internal/dueindex"
	"github.com/Datahenge/btu-scheduler-daemon/internal/fifo"
	"github.com/Datahenge/btu-scheduler-daemon/internal/metrics"
	"github.com/Datahenge/btu-scheduler-daemon/internal/obslog"
	"github.com/Datahenge/btu-scheduler-daemon/internal/rq"
	"github.com/Datahenge/btu-scheduler-daemon/internal/store"
	"github.com/Datahenge/btu-scheduler-daemon/internal/webapp"
)

// Config holds the tunables spec.md 6 sources from the TOML file.
type Config struct {
	FullRefreshInterval      time.Duration
	SchedulerPollingInterval time.Duration
	DrainerIdleInterval      time.Duration
	ReSeederTickInterval     time.Duration
}

// DefaultConfig returns the spec's typical intervals: drainer ~750ms,
// re-seeder checks every tick but only acts once per FullRefreshInterval,
// runner every SchedulerPollingInterval (typically 60s).
func DefaultConfig() Config {
	return Config{
		FullRefreshInterval:      time.Hour,
		SchedulerPollingInterval: 60 * time.Second,
		DrainerIdleInterval:      750 * time.Millisecond,
		ReSeederTickInterval:     5 * time.Second,
	}
}

// Engine owns the three long-lived workers and their shared dependencies.
type Engine struct {
	cfg    Config
	queue  *fifo.Queue
	store  store.ScheduleStore
	index  *dueindex.Index
	writer *rq.Writer
	webapp *webapp.Client
}

// New wires an Engine from its dependencies. Callers own the lifecycle of
// the underlying Redis client and SQL connection pool.
func New(cfg Config, queue *fifo.Queue, st store.ScheduleStore, index *dueindex.Index, writer *rq.Writer, wc *webapp.Client) *Engine {
	return &Engine{
		cfg:    cfg,
		queue:  queue,
		store:  st,
		index:  index,
		writer: writer,
		webapp: wc,
	}
}

// Run starts the Drainer, Re-Seeder, Runner, and metrics-collector
// goroutines and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	go e.runDrainer(ctx)
	go e.runReSeeder(ctx)
	go e.runRunner(ctx)
	go e.runMetricsCollector(ctx)
	<-ctx.Done()
	obslog.Log.Info().Msg("engine shutting down")
}

// runDrainer implements spec.md 4.4.1: pop one id, project its next
// firing, write it into the Due-Time Index.
func (e *Engine) runDrainer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		id, ok := e.queue.Pop()
		if !ok {
			time.Sleep(e.cfg.DrainerIdleInterval)
			continue
		}

		e.drainOne(ctx, id)
		metrics.DrainLatency.Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) drainOne(ctx context.Context, scheduleID string) {
	sched, err := e.store.ReadSchedule(ctx, scheduleID)
	if err != nil {
		obslog.Log.Error().Err(err).Str("schedule_id", scheduleID).Msg("drainer: failed to read schedule")
		return
	}
	if sched == nil || !sched.Enabled {
		obslog.Log.Debug().Str("schedule_id", scheduleID).Msg("drainer: schedule absent or disabled, dropping")
		return
	}

	next, err := cronproj.Project(sched.CronExpression, sched.CronTimeZone, time.Now().UTC(), 1)
	if err != nil {
		obslog.Log.Error().Err(err).Str("schedule_id", scheduleID).Msg("drainer: cron projection failed")
		return
	}
	if len(next) == 0 {
		return
	}

	if err := e.index.Schedule(ctx, scheduleID, next[0].Unix()); err != nil {
		obslog.Log.Error().Err(err).Str("schedule_id", scheduleID).Msg("drainer: failed to write due-time index")
		return
	}
}

// runReSeeder implements spec.md 4.4.2: periodically enumerate every
// enabled schedule and push its id into the FIFO, so the system recovers
// from a flushed Redis or a missed UDS notification within
// FullRefreshInterval.
func (e *Engine) runReSeeder(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ReSeederTickInterval)
	defer ticker.Stop()

	lastFullRefresh := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(lastFullRefresh) < e.cfg.FullRefreshInterval {
				continue
			}
			e.reseedAll(ctx)
			lastFullRefresh = time.Now()
		}
	}
}

func (e *Engine) reseedAll(ctx context.Context) {
	ids, err := e.store.ListEnabledScheduleIDs(ctx)
	if err != nil {
		obslog.Log.Error().Err(err).Msg("re-seeder: failed to list enabled schedules")
		return
	}
	for _, id := range ids {
		e.queue.Push(id)
	}
	metrics.FIFOQueueDepth.Set(float64(e.queue.Len()))
	obslog.Log.Info().Int("count", len(ids)).Msg("re-seeder: refreshed enabled schedules")
}

// runRunner implements spec.md 4.4.3: every polling interval, promote
// every ripe Due-Time Index member into a JobRecord, then re-enqueue the
// schedule so the Drainer computes its next firing.
func (e *Engine) runRunner(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SchedulerPollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runOnePoll(ctx)
		}
	}
}

func (e *Engine) runOnePoll(ctx context.Context) {
	now := time.Now().UTC().Unix()
	ripe, err := e.index.FetchRipe(ctx, now)
	if err != nil {
		obslog.Log.Error().Err(err).Msg("runner: fetch_ripe failed")
		return
	}

	for _, firing := range ripe {
		e.fireOne(ctx, firing)
	}
}

func (e *Engine) fireOne(ctx context.Context, firing dueindex.Firing) {
	claimed, err := e.index.RemoveFiring(ctx, firing.ScheduleID, firing.UnixTS)
	if err != nil {
		obslog.Log.Error().Err(err).Str("schedule_id", firing.ScheduleID).Msg("runner: remove_firing failed")
		return
	}
	if !claimed {
		// Another iteration already owns this firing.
		return
	}

	sched, err := e.store.ReadSchedule(ctx, firing.ScheduleID)
	if err != nil {
		obslog.Log.Error().Err(err).Str("schedule_id", firing.ScheduleID).Msg("runner: failed to re-read schedule")
		metrics.FiringsDispatched.WithLabelValues("store_error").Inc()
		return
	}
	if sched == nil || !sched.Enabled {
		obslog.Log.Debug().Str("schedule_id", firing.ScheduleID).Msg("runner: schedule absent or disabled, not enqueuing")
		return
	}

	task, err := e.store.ReadTask(ctx, sched.TaskID)
	if err != nil || task == nil {
		obslog.Log.Error().Err(err).Str("task_id", sched.TaskID).Msg("runner: failed to read task")
		metrics.FiringsDispatched.WithLabelValues("store_error").Inc()
		return
	}

	payload, err := e.webapp.GetPickledTask(ctx, task.ID, sched.ID)
	if err != nil {
		obslog.Log.Error().Err(err).Str("schedule_id", sched.ID).Msg("runner: failed to fetch serialized callable")
		metrics.FiringsDispatched.WithLabelValues("webapp_error").Inc()
		e.queue.Push(sched.ID)
		return
	}

	job := rq.NewJobRecord(sched.QueueName, sched.Description, payload, nil, task.MaxDurationSeconds)
	if err := e.writer.SaveAndEnqueue(ctx, job); err != nil {
		obslog.Log.Error().Err(err).Str("schedule_id", sched.ID).Msg("runner: failed to save/enqueue job")
		metrics.FiringsDispatched.WithLabelValues("redis_error").Inc()
		e.queue.Push(sched.ID)
		return
	}

	metrics.FiringsDispatched.WithLabelValues("enqueued").Inc()
	e.queue.Push(sched.ID)
}

// runMetricsCollector periodically samples gauge-style metrics that have
// no natural event to hang off of.
func (e *Engine) runMetricsCollector(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.FIFOQueueDepth.Set(float64(e.queue.Len()))
			firings, err := e.index.ListAll(ctx)
			if err != nil {
				continue
			}
			metrics.DueIndexDepth.Set(float64(len(firings)))
		}
	}
}
