// Package storetest provides an in-memory store.ScheduleStore fake for
// unit-testing the scheduler engine without a MySQL database, per spec.md
// 9's "enabling an in-memory fake for tests" guidance.
package storetest

import (
	"context"
	"sort"
	"sync"

	"github.com/Datahenge/btu-scheduler-daemon/internal/domain"
	"github.com/Datahenge/btu-scheduler-daemon/internal/store"
)

var _ store.ScheduleStore = (*Fake)(nil)

// Fake is a goroutine-safe, in-memory implementation of store.ScheduleStore.
type Fake struct {
	mu        sync.RWMutex
	schedules map[string]domain.TaskSchedule
	tasks     map[string]domain.Task
}

// NewFake returns an empty Fake store.
func NewFake() *Fake {
	return &Fake{
		schedules: make(map[string]domain.TaskSchedule),
		tasks:     make(map[string]domain.Task),
	}
}

// PutSchedule inserts or replaces a TaskSchedule.
func (f *Fake) PutSchedule(ts domain.TaskSchedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[ts.ID] = ts
}

// PutTask inserts or replaces a Task.
func (f *Fake) PutTask(task domain.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = task
}

// SetEnabled toggles a schedule's enabled flag in place, simulating an
// edit made through the host web application.
func (f *Fake) SetEnabled(id string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts, ok := f.schedules[id]; ok {
		ts.Enabled = enabled
		f.schedules[id] = ts
	}
}

// ReadSchedule implements store.ScheduleStore.
func (f *Fake) ReadSchedule(_ context.Context, id string) (*domain.TaskSchedule, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ts, ok := f.schedules[id]
	if !ok {
		return nil, nil
	}
	copied := ts
	return &copied, nil
}

// ListEnabledScheduleIDs implements store.ScheduleStore.
func (f *Fake) ListEnabledScheduleIDs(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var ids []string
	for id, ts := range f.schedules {
		if ts.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadTask implements store.ScheduleStore.
func (f *Fake) ReadTask(_ context.Context, id string) (*domain.Task, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	task, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	copied := task
	return &copied, nil
}
