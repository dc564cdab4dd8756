// Package store reads Task and TaskSchedule rows from the relational
// configuration database and produces immutable domain.TaskSchedule /
// domain.Task values. The reader performs no caching -- callers call once
// per operation, matching spec.md 4.2.
package store

import (
	"context"

	"github.com/Datahenge/btu-scheduler-daemon/internal/domain"
)

// ScheduleStore is the capability the scheduler engine needs from the
// relational configuration store. A SQL-backed implementation and an
// in-memory fake (storetest.Fake) both satisfy it, per spec.md 9
// ("Polymorphism over row readers").
type ScheduleStore interface {
	// ReadSchedule returns the TaskSchedule for id, or (nil, nil) if no
	// such schedule exists or the system time zone singleton is missing.
	ReadSchedule(ctx context.Context, id string) (*domain.TaskSchedule, error)

	// ListEnabledScheduleIDs returns every enabled schedule id, ordered
	// deterministically (ascending by id) to aid debugging.
	ListEnabledScheduleIDs(ctx context.Context) ([]string, error)

	// ReadTask returns the Task for id, or (nil, nil) if no such task
	// exists.
	ReadTask(ctx context.Context, id string) (*domain.Task, error)
}
