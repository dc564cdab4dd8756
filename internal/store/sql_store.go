package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/Datahenge/btu-scheduler-daemon/internal/domain"
)

// StoreError wraps any connectivity or query failure surfaced by SQLStore,
// per spec.md 7. Missing rows are not StoreErrors -- they are represented
// by a nil TaskSchedule/Task and a nil error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// SQLStore implements ScheduleStore against a MySQL/MariaDB database using
// the fixed column projection documented in spec.md 6.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (but does not necessarily connect; database/sql is
// lazy) a MySQL connection pool using dsn, a go-sql-driver/mysql DSN as
// produced by config.SQLConfig.DSN().
func NewSQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping probes connectivity, used by the daemon's startup connection probe
// (spec.md 5, `startup_without_database_connections`).
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &StoreError{Op: "ping", Err: err}
	}
	return nil
}

const readScheduleQuery = `
SELECT
	ts.name, ts.task, ts.enabled, ts.queue_name, ts.cron_string,
	ts.schedule_description, ts.argument_overrides, cfg.value
FROM ` + "`tabBTU Task Schedule`" + ` ts
CROSS JOIN (
	SELECT value FROM ` + "`tabSingles`" + `
	WHERE doctype = 'BTU Configuration' AND field = 'cron_time_zone'
) cfg
WHERE ts.name = ?
`

// ReadSchedule implements ScheduleStore.
func (s *SQLStore) ReadSchedule(ctx context.Context, id string) (*domain.TaskSchedule, error) {
	row := s.db.QueryRowContext(ctx, readScheduleQuery, id)

	var ts domain.TaskSchedule
	var enabled int
	var queueName, description, overrides sql.NullString

	err := row.Scan(&ts.ID, &ts.TaskID, &enabled, &queueName, &ts.CronExpression,
		&description, &overrides, &ts.CronTimeZone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "read_schedule", Err: err}
	}

	ts.Enabled = enabled != 0
	ts.QueueName = domain.DefaultQueueName
	if queueName.Valid && queueName.String != "" {
		ts.QueueName = queueName.String
	}
	ts.Description = description.String
	ts.ArgumentOverrides = overrides.String
	return &ts, nil
}

const listEnabledIDsQuery = `
SELECT name FROM ` + "`tabBTU Task Schedule`" + `
WHERE enabled = 1
ORDER BY name ASC
`

// ListEnabledScheduleIDs implements ScheduleStore.
func (s *SQLStore) ListEnabledScheduleIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, listEnabledIDsQuery)
	if err != nil {
		return nil, &StoreError{Op: "list_enabled_schedule_ids", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &StoreError{Op: "list_enabled_schedule_ids scan", Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list_enabled_schedule_ids rows", Err: err}
	}
	return ids, nil
}

const readTaskQuery = `
SELECT name, desc_short, desc_long, max_task_duration, function_string
FROM ` + "`tabBTU Task`" + `
WHERE name = ?
`

// ReadTask implements ScheduleStore.
func (s *SQLStore) ReadTask(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, readTaskQuery, id)

	var task domain.Task
	var longDesc sql.NullString
	var maxDuration sql.NullInt64

	err := row.Scan(&task.ID, &task.ShortDescription, &longDesc, &maxDuration, &task.FunctionPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "read_task", Err: err}
	}

	task.LongDescription = longDesc.String
	task.MaxDurationSeconds = domain.DefaultMaxDurationSeconds
	if maxDuration.Valid && maxDuration.Int64 > 0 {
		task.MaxDurationSeconds = int(maxDuration.Int64)
	}
	return &task, nil
}

var _ ScheduleStore = (*SQLStore)(nil)
