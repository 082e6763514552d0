package recur

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cuemby/instance-scheduler/pkg/types"
)

var (
	reNumeric     = regexp.MustCompile(`^\d+$`)
	reLast        = regexp.MustCompile(`^[Ll]$`)
	reAll         = regexp.MustCompile(`^[*?]$`)
	reStep        = regexp.MustCompile(`^(.+)/(\d+)$`)
	reRange       = regexp.MustCompile(`^([A-Za-z0-9]+)-([A-Za-z0-9]+)$`)
	reNthWeekday  = regexp.MustCompile(`^([A-Za-z]+)#([1-5])$`)
	reLastWeekday = regexp.MustCompile(`^([A-Za-z]+)[Ll]$`)
	reNearestDay  = regexp.MustCompile(`^(\d+)[Ww]$`)
)

var monthNames = map[string]int{
	"jan": 1, "january": 1,
	"feb": 2, "february": 2,
	"mar": 3, "march": 3,
	"apr": 4, "april": 4,
	"may": 5,
	"jun": 6, "june": 6,
	"jul": 7, "july": 7,
	"aug": 8, "august": 8,
	"sep": 9, "september": 9,
	"oct": 10, "october": 10,
	"nov": 11, "november": 11,
	"dec": 12, "december": 12,
}

var weekdayNames = map[string]int{
	"mon": 0, "monday": 0,
	"tue": 1, "tuesday": 1,
	"wed": 2, "wednesday": 2,
	"thu": 3, "thursday": 3,
	"fri": 4, "friday": 4,
	"sat": 5, "saturday": 5,
	"sun": 6, "sunday": 6,
}

// ParseField parses a comma-separated set of recurrence tokens for the
// given field into a single types.RecurrenceExpr, combining multiple tokens
// as a types.Union. An absent (empty) spec is treated as types.All.
func ParseField(field Field, spec string) (types.RecurrenceExpr, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return types.All{}, nil
	}

	var exprs []types.RecurrenceExpr
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		expr, err := parseToken(field, tok)
		if err != nil {
			return nil, err
		}
		if err := validate(field, expr); err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}

	if len(exprs) == 0 {
		return nil, fmt.Errorf("recur: empty token set in %q", spec)
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return types.Union{Exprs: exprs}, nil
}

// parseToken tries each variant parser in the fixed order the grammar
// specifies, returning the first successful match or the last error seen.
func parseToken(field Field, tok string) (types.RecurrenceExpr, error) {
	var lastErr error

	if reNumeric.MatchString(tok) {
		v, _ := strconv.Atoi(tok)
		return types.SingleValueNumeric{Value: v}, nil
	}
	lastErr = fmt.Errorf("recur: %q is not a numeric literal", tok)

	if v, ok := nameValue(field, tok); ok {
		return types.SingleValueNumeric{Value: v}, nil
	}
	lastErr = fmt.Errorf("recur: %q is not a recognized name for this field", tok)

	if reLast.MatchString(tok) {
		return types.SingleValueLast{}, nil
	}
	lastErr = fmt.Errorf("recur: %q is not the last-value token", tok)

	if reAll.MatchString(tok) {
		return types.All{}, nil
	}
	lastErr = fmt.Errorf("recur: %q is not a wildcard token", tok)

	if m := reStep.FindStringSubmatch(tok); m != nil {
		interval, err := strconv.Atoi(m[2])
		if err != nil || interval < 1 {
			return nil, fmt.Errorf("recur: step interval in %q must be >= 1", tok)
		}
		base, err := parseRangeBase(field, m[1])
		if err != nil {
			return nil, err
		}
		base.Interval = interval
		return base, nil
	}
	lastErr = fmt.Errorf("recur: %q is not a step expression", tok)

	if m := reRange.FindStringSubmatch(tok); m != nil {
		r, err := parseRangeParts(field, m[1], m[2])
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	lastErr = fmt.Errorf("recur: %q is not a range expression", tok)

	if field == FieldWeekday {
		if m := reNthWeekday.FindStringSubmatch(tok); m != nil {
			wd, ok := weekdayNames[strings.ToLower(m[1])]
			if !ok {
				return nil, fmt.Errorf("recur: %q is not a recognized weekday name", m[1])
			}
			n, _ := strconv.Atoi(m[2])
			return types.NthWeekday{Weekday: wd, N: n}, nil
		}
		lastErr = fmt.Errorf("recur: %q is not an nth-weekday expression", tok)

		if m := reLastWeekday.FindStringSubmatch(tok); m != nil {
			wd, ok := weekdayNames[strings.ToLower(m[1])]
			if !ok {
				return nil, fmt.Errorf("recur: %q is not a recognized weekday name", m[1])
			}
			return types.LastWeekday{Weekday: wd}, nil
		}
		lastErr = fmt.Errorf("recur: %q is not a last-weekday expression", tok)
	}

	if field == FieldMonthday {
		if m := reNearestDay.FindStringSubmatch(tok); m != nil {
			day, _ := strconv.Atoi(m[1])
			return types.NearestWeekday{Day: day}, nil
		}
		lastErr = fmt.Errorf("recur: %q is not a nearest-weekday expression", tok)
	}

	return nil, lastErr
}

// parseRangeBase parses the left-hand side of a step expression ("expr/n").
// If expr is a single value, the range's end defaults to the last sentinel
// (resolved against the concrete domain at evaluation time).
func parseRangeBase(field Field, expr string) (types.Range, error) {
	if m := reRange.FindStringSubmatch(expr); m != nil {
		return parseRangeParts(field, m[1], m[2])
	}

	start, err := tokenToValue(field, expr)
	if err != nil {
		return types.Range{}, err
	}
	return types.Range{Start: start, End: lastSentinel, Interval: 1}, nil
}

func parseRangeParts(field Field, a, b string) (types.Range, error) {
	if reLast.MatchString(a) {
		return types.Range{}, fmt.Errorf("recur: range start %q may not be the last-value token", a)
	}
	start, err := tokenToValue(field, a)
	if err != nil {
		return types.Range{}, err
	}

	end := lastSentinel
	if !reLast.MatchString(b) {
		end, err = tokenToValue(field, b)
		if err != nil {
			return types.Range{}, err
		}
	}

	return types.Range{Start: start, End: end, Interval: 1}, nil
}

func tokenToValue(field Field, tok string) (int, error) {
	if reNumeric.MatchString(tok) {
		return strconv.Atoi(tok)
	}
	if v, ok := nameValue(field, tok); ok {
		return v, nil
	}
	return 0, fmt.Errorf("recur: %q is not a valid value for this field", tok)
}

func nameValue(field Field, tok string) (int, bool) {
	lower := strings.ToLower(tok)
	switch field {
	case FieldMonth:
		v, ok := monthNames[lower]
		return v, ok
	case FieldWeekday:
		v, ok := weekdayNames[lower]
		return v, ok
	default:
		return 0, false
	}
}

// validate rejects combinations that parse syntactically but are illegal
// for the field they appear in.
func validate(field Field, expr types.RecurrenceExpr) error {
	switch expr.(type) {
	case types.NthWeekday:
		if field != FieldWeekday {
			return fmt.Errorf("recur: nth-weekday expressions are only legal in a weekday field")
		}
	case types.LastWeekday:
		if field != FieldWeekday {
			return fmt.Errorf("recur: last-weekday expressions are only legal in a weekday field")
		}
	case types.NearestWeekday:
		if field != FieldMonthday {
			return fmt.Errorf("recur: nearest-weekday expressions are only legal in a monthday field")
		}
	}
	return nil
}
