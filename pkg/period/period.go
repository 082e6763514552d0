// Package period implements the period evaluator (C2): combining a
// recurrence and an optional begin/end time-of-day window into a
// types.ScheduleState at a local instant.
package period

import (
	"fmt"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/recur"
	"github.com/cuemby/instance-scheduler/pkg/types"
)

// Evaluate returns the period's desired state at local time lt. lt must
// already be converted to the schedule's timezone by the caller (C3).
func Evaluate(p types.Period, lt time.Time) (types.ScheduleState, error) {
	monthOK, err := recur.Contains(recur.FieldMonth, p.Months, lt)
	if err != nil {
		return "", fmt.Errorf("period %s: month recurrence: %w", p.Name, err)
	}
	monthdayOK, err := recur.Contains(recur.FieldMonthday, p.Monthdays, lt)
	if err != nil {
		return "", fmt.Errorf("period %s: monthday recurrence: %w", p.Name, err)
	}
	weekdayOK, err := recur.Contains(recur.FieldWeekday, p.Weekdays, lt)
	if err != nil {
		return "", fmt.Errorf("period %s: weekday recurrence: %w", p.Name, err)
	}

	if !monthOK || !monthdayOK || !weekdayOK {
		return types.StateStopped, nil
	}

	clock := types.WallClock{Hour: lt.Hour(), Minute: lt.Minute()}

	switch {
	case p.BeginTime == nil && p.EndTime == nil:
		return types.StateRunning, nil
	case p.BeginTime == nil:
		if !clock.Before(*p.EndTime) {
			return types.StateStopped, nil
		}
		return types.StateAny, nil
	case p.EndTime == nil:
		if !clock.Before(*p.BeginTime) {
			return types.StateRunning, nil
		}
		return types.StateAny, nil
	default:
		if !clock.Before(*p.BeginTime) && clock.Before(*p.EndTime) {
			return types.StateRunning, nil
		}
		return types.StateStopped, nil
	}
}

// Validate checks the invariants a period must satisfy independent of any
// instant: at least one of begin/end/recurrence must be non-default, and if
// both begin and end are set, begin must precede end within the same day.
func Validate(p types.Period) error {
	hasRecurrence := p.Months != nil || p.Monthdays != nil || p.Weekdays != nil
	if p.BeginTime == nil && p.EndTime == nil && !hasRecurrence {
		return fmt.Errorf("period %s: must set at least one of begintime, endtime, or a recurrence field", p.Name)
	}
	if p.BeginTime != nil && p.EndTime != nil && !p.BeginTime.Before(*p.EndTime) {
		return fmt.Errorf("period %s: begintime must be before endtime", p.Name)
	}
	return nil
}
