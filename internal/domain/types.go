// Package domain defines the daemon's persistent-but-read-only value types:
// TaskSchedule and Task, as read from the relational configuration store.
package domain

// TaskSchedule is an immutable snapshot of one `tabBTU Task Schedule` row,
// joined with the system-wide cron time zone from `tabSingles`.
type TaskSchedule struct {
	ID                string
	TaskID            string
	Enabled           bool
	QueueName         string
	CronExpression    string
	CronTimeZone      string
	Description       string
	ArgumentOverrides string
}

// Task is an immutable snapshot of one `tabBTU Task` row.
type Task struct {
	ID                 string
	ShortDescription   string
	LongDescription    string
	MaxDurationSeconds int
	FunctionPath       string
}

// DefaultQueueName is used when a TaskSchedule does not specify one.
const DefaultQueueName = "default"

// DefaultMaxDurationSeconds is used when a Task's max_task_duration column
// is zero or absent.
const DefaultMaxDurationSeconds = 600
