// Package cronproj normalizes cron expressions of varying field counts and
// projects their next UTC fire times for an arbitrary IANA time zone.
//
// The underlying evaluator (robfig/cron) only understands UTC wall-clock
// fields. To support "03:30 America/Los_Angeles" style schedules, each
// naive UTC instant produced by the evaluator is reinterpreted as if its
// wall-clock fields belonged to the target zone, then converted back to
// UTC. This is correct outside DST transitions; during a transition an
// instant may be skipped or duplicated -- see spec.md 4.1.
package cronproj

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// InvalidCronError is returned when a cron expression cannot be parsed or
// does not have 5, 6, or 7 whitespace-separated fields.
type InvalidCronError struct {
	Expression string
	Reason     string
}

func (e *InvalidCronError) Error() string {
	return fmt.Sprintf("cronproj: invalid cron expression %q: %s", e.Expression, e.Reason)
}

// InvalidTimeZoneError is returned when the supplied IANA zone name is not
// recognized by the Go time package's zone database.
type InvalidTimeZoneError struct {
	Name string
	Err  error
}

func (e *InvalidTimeZoneError) Error() string {
	return fmt.Sprintf("cronproj: invalid time zone %q: %v", e.Name, e.Err)
}

func (e *InvalidTimeZoneError) Unwrap() error { return e.Err }

// normalize pads a 5- or 6-field cron expression out to 7 fields
// (seconds, minute, hour, day-of-month, month, day-of-week, year). A
// 7-field expression passes through untouched. Project drops the year
// field before handing the remaining six to robfig/cron.
func normalize(expr string) (string, error) {
	fields := strings.Fields(expr)
	switch len(fields) {
	case 5:
		return "0 " + expr + " *", nil
	case 6:
		return "0 " + expr, nil
	case 7:
		return expr, nil
	default:
		return "", &InvalidCronError{Expression: expr, Reason: fmt.Sprintf("found %d fields, expected 5, 6, or 7", len(fields))}
	}
}

// hourIsWildcard reports whether the hour field (index 2) of a normalized
// 7-field cron expression is the wildcard "*". When true, no time-zone
// reinterpretation is required: UTC instants from the underlying evaluator
// pass through verbatim (spec.md 4.1's "short-circuit").
func hourIsWildcard(normalized string) bool {
	fields := strings.Fields(normalized)
	if len(fields) != 7 {
		return false
	}
	return fields[2] == "*"
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Project returns the next n UTC instants strictly after anchor for the
// given cron expression interpreted in tzName. anchor should be UTC; pass
// time.Now().UTC() for "now".
func Project(expr, tzName string, anchor time.Time, n int) ([]time.Time, error) {
	normalized, err := normalize(expr)
	if err != nil {
		return nil, err
	}

	// robfig/cron has no native 7-field (with year) support; year is a BTU
	// extension for padding purposes only and is dropped before parsing,
	// matching the original daemon's "year is effectively ignored" cron
	// evaluator behavior.
	fields := strings.Fields(normalized)
	sixField := strings.Join(fields[:6], " ")

	schedule, err := parser.Parse(sixField)
	if err != nil {
		return nil, &InvalidCronError{Expression: expr, Reason: err.Error()}
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, &InvalidTimeZoneError{Name: tzName, Err: err}
	}

	if hourIsWildcard(normalized) {
		return takeUTC(schedule, anchor, n), nil
	}

	raw := takeUTC(schedule, anchor, n)
	result := make([]time.Time, 0, len(raw))
	for _, utcInstant := range raw {
		result = append(result, reinterpretInZone(utcInstant, loc))
	}
	return result, nil
}

// takeUTC walks the schedule forward from anchor, collecting n instants.
func takeUTC(schedule cron.Schedule, anchor time.Time, n int) []time.Time {
	result := make([]time.Time, 0, n)
	cursor := anchor
	for i := 0; i < n; i++ {
		next := schedule.Next(cursor)
		result = append(result, next.UTC())
		cursor = next
	}
	return result
}

// reinterpretInZone takes the wall-clock fields of a UTC instant and
// re-reads them as if they belonged to loc, then converts the result back
// to UTC. This is the "evaluate UTC, reinterpret in zone, convert to UTC"
// trick described in spec.md 4.1.
func reinterpretInZone(utcInstant time.Time, loc *time.Location) time.Time {
	y, mo, d := utcInstant.Date()
	hh, mm, ss := utcInstant.Clock()
	localized := time.Date(y, mo, d, hh, mm, ss, 0, loc)
	return localized.UTC()
}
