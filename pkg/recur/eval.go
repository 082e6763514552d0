package recur

import (
	"fmt"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/types"
)

// Expand resolves a Range into its discrete member values within d, honoring
// wrap the way the documented source asymmetry requires: months and
// weekdays wrap past the domain end, monthdays never do. This is the only
// place that distinction is expressed — callers pick wrap based on Field.
func Expand(start, end, interval int, d IntDomain, wrap bool) []int {
	if interval <= 0 {
		interval = 1
	}

	willWrap := wrap && start > end
	if !wrap && start > end {
		return nil
	}
	if !willWrap && start > d.End {
		return nil
	}

	var out []int
	ptr := start
	for {
		if d.Contains(ptr) {
			out = append(out, ptr)
		}
		ptr += interval
		if willWrap && ptr > d.End {
			ptr -= d.Width() + 1
			willWrap = false
		}
		if ptr > end {
			break
		}
	}
	return out
}

// Contains evaluates expr against dt for the given field. A nil expr is
// treated as types.All per the zero-value rule and always matches.
func Contains(field Field, expr types.RecurrenceExpr, dt time.Time) (bool, error) {
	if expr == nil {
		return true, nil
	}

	domain := DomainFor(field, dt)

	switch e := expr.(type) {
	case types.All:
		return true, nil

	case types.SingleValueNumeric:
		v, err := valueForField(field, dt)
		if err != nil {
			return false, err
		}
		return v == e.Value, nil

	case types.SingleValueLast:
		v, err := valueForField(field, dt)
		if err != nil {
			return false, err
		}
		return v == domain.End, nil

	case types.Range:
		wrap := field != FieldMonthday
		end := e.End
		if end == lastSentinel {
			end = domain.End
		}
		values := Expand(e.Start, end, e.Interval, domain, wrap)
		v, err := valueForField(field, dt)
		if err != nil {
			return false, err
		}
		for _, cand := range values {
			if cand == v {
				return true, nil
			}
		}
		return false, nil

	case types.Union:
		for _, sub := range e.Exprs {
			ok, err := Contains(field, sub, dt)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case types.NearestWeekday:
		if field != FieldMonthday {
			return false, fmt.Errorf("recur: NearestWeekday is only legal in a monthday expression")
		}
		resolved := ResolveNearestWeekday(e.Day, dt)
		return resolved == dt.Day(), nil

	case types.NthWeekday:
		if field != FieldWeekday {
			return false, fmt.Errorf("recur: NthWeekday is only legal in a weekday expression")
		}
		resolved := ResolveNthWeekday(e.Weekday, e.N, dt)
		return resolved != -1 && resolved == dt.Day(), nil

	case types.LastWeekday:
		if field != FieldWeekday {
			return false, fmt.Errorf("recur: LastWeekday is only legal in a weekday expression")
		}
		resolved := ResolveLastWeekday(e.Weekday, dt)
		return resolved == dt.Day(), nil

	default:
		return false, fmt.Errorf("recur: unknown expression variant %T", expr)
	}
}

// lastSentinel marks a Range.End of "L" (end-of-domain) at parse time,
// before the domain for a specific date is known.
const lastSentinel = -1

func valueForField(field Field, dt time.Time) (int, error) {
	switch field {
	case FieldMonth:
		return int(dt.Month()), nil
	case FieldMonthday:
		return dt.Day(), nil
	case FieldWeekday:
		return weekdayIndex(dt.Weekday()), nil
	default:
		return 0, fmt.Errorf("recur: unknown field %d", field)
	}
}

// ResolveNearestWeekday returns the monthday of the nearest Monday-Friday to
// day within dt's month. Saturday bumps back to Friday, except when day is
// the 1st, where it bumps forward to the 3rd (the following Monday) so the
// resolution never crosses into the previous month. Sunday bumps forward to
// Monday, except when day is the last day of the month, where it bumps back
// two days (the preceding Friday) so it never crosses into the next month.
func ResolveNearestWeekday(day int, dt time.Time) int {
	lastDay := daysInMonth(dt.Year(), dt.Month())
	if day < 1 || day > lastDay {
		return -1
	}

	target := time.Date(dt.Year(), dt.Month(), day, 0, 0, 0, 0, dt.Location())
	switch target.Weekday() {
	case time.Saturday:
		if day == 1 {
			return day + 2
		}
		return day - 1
	case time.Sunday:
		if day == lastDay {
			return day - 2
		}
		return day + 1
	default:
		return day
	}
}

// ResolveNthWeekday returns the monthday of the n-th occurrence of weekday
// (Monday=0..Sunday=6) in dt's month, or -1 if no such occurrence exists.
func ResolveNthWeekday(weekday, n int, dt time.Time) int {
	first := time.Date(dt.Year(), dt.Month(), 1, 0, 0, 0, 0, dt.Location())
	firstOffset := (weekday - weekdayIndex(first.Weekday()) + 7) % 7
	day := 1 + firstOffset + 7*(n-1)

	lastDay := daysInMonth(dt.Year(), dt.Month())
	if day > lastDay {
		return -1
	}
	return day
}

// ResolveLastWeekday returns the monthday of the last occurrence of weekday
// in dt's month.
func ResolveLastWeekday(weekday int, dt time.Time) int {
	lastDay := daysInMonth(dt.Year(), dt.Month())
	last := time.Date(dt.Year(), dt.Month(), lastDay, 0, 0, 0, 0, dt.Location())
	offset := (weekdayIndex(last.Weekday()) - weekday + 7) % 7
	return lastDay - offset
}
