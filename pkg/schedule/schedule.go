// Package schedule implements the schedule evaluator (C3): composing
// multiple periods under a named schedule and timezone into a single
// desired state, with priority and adjacency rules.
package schedule

import (
	"fmt"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/period"
	"github.com/cuemby/instance-scheduler/pkg/types"
)

// PeriodLookup resolves a period name to its definition. Schedules only
// carry references by name; the store owns the definitions.
type PeriodLookup func(name string) (types.Period, bool)

// Result is the triple the schedule evaluator produces.
type Result struct {
	State               types.ScheduleState
	RequestedSize       string // "" if none
	AuthoritativePeriod string // "" if none
}

const overrideMarkerPeriod = "override_status"

// Evaluate runs the C3 algorithm against dt (which need not yet be in S's
// timezone; Evaluate converts it).
func Evaluate(s types.Schedule, dt time.Time, lookup PeriodLookup) (Result, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return Result{}, fmt.Errorf("schedule %s: invalid timezone %q: %w", s.Name, s.Timezone, err)
	}
	lt := dt.In(loc)

	if s.Override != nil {
		switch *s.Override {
		case types.OverrideRunning:
			return Result{State: types.StateRunning, AuthoritativePeriod: overrideMarkerPeriod}, nil
		case types.OverrideStopped:
			return Result{State: types.StateStopped, AuthoritativePeriod: overrideMarkerPeriod}, nil
		default:
			return Result{}, fmt.Errorf("schedule %s: unknown override status %q", s.Name, *s.Override)
		}
	}

	res, err := evaluateAt(s, lt, lookup)
	if err != nil {
		return Result{}, err
	}

	if res.State == types.StateStopped && len(s.Periods) > 1 {
		return adjacencyCheck(s, lt, res, lookup)
	}
	return res, nil
}

type periodEval struct {
	name      string
	size      string
	state     types.ScheduleState
	beginTime *types.WallClock
}

// evaluateAt runs steps 3-5 of the algorithm (no adjacency check) at lt.
func evaluateAt(s types.Schedule, lt time.Time, lookup PeriodLookup) (Result, error) {
	var evals []periodEval
	for _, ref := range s.Periods {
		p, ok := lookup(ref.PeriodName)
		if !ok {
			return Result{}, fmt.Errorf("schedule %s: unknown period %q", s.Name, ref.PeriodName)
		}
		state, err := period.Evaluate(p, lt)
		if err != nil {
			return Result{}, fmt.Errorf("schedule %s: %w", s.Name, err)
		}
		evals = append(evals, periodEval{name: p.Name, size: ref.Size, state: state, beginTime: p.BeginTime})
	}

	return compose(evals), nil
}

// compose applies the priority rule (Running > Any > Stopped) and, when
// Running wins with ties, the most-authoritative-period tiebreak.
func compose(evals []periodEval) Result {
	best := types.StateStopped
	for _, e := range evals {
		if priority(e.state) > priority(best) {
			best = e.state
		}
	}

	if len(evals) == 0 {
		return Result{State: types.StateStopped}
	}

	if best != types.StateRunning {
		return Result{State: best}
	}

	var authoritative *periodEval
	for i := range evals {
		e := &evals[i]
		if e.state != types.StateRunning {
			continue
		}
		if authoritative == nil || moreAuthoritative(*e, *authoritative) {
			authoritative = e
		}
	}

	return Result{
		State:               types.StateRunning,
		RequestedSize:       authoritative.size,
		AuthoritativePeriod: authoritative.name,
	}
}

// moreAuthoritative implements "the one with the latest begintime; a period
// with begintime=null is never more authoritative than one with a defined
// begintime".
func moreAuthoritative(candidate, current periodEval) bool {
	if candidate.beginTime == nil {
		return false
	}
	if current.beginTime == nil {
		return true
	}
	return current.beginTime.Before(*candidate.beginTime)
}

func priority(s types.ScheduleState) int {
	switch s {
	case types.StateRunning:
		return 2
	case types.StateAny:
		return 1
	default:
		return 0
	}
}

// adjacencyCheck re-evaluates at lt-1m and lt+1m; if both return Running,
// the future side's identity is substituted into the result. The past-side
// evaluation exists only to confirm adjacency, per the documented source
// behavior (its identity is never used).
func adjacencyCheck(s types.Schedule, lt time.Time, fallback Result, lookup PeriodLookup) (Result, error) {
	past, err := evaluateAt(s, lt.Add(-time.Minute), lookup)
	if err != nil {
		return Result{}, err
	}
	future, err := evaluateAt(s, lt.Add(time.Minute), lookup)
	if err != nil {
		return Result{}, err
	}

	if past.State == types.StateRunning && future.State == types.StateRunning {
		return future, nil
	}
	return fallback, nil
}

// Validate checks the schedule-level invariants independent of any instant.
func Validate(s types.Schedule) error {
	if s.Override == nil && len(s.Periods) == 0 {
		return fmt.Errorf("schedule %s: must set override_status or a non-empty period list", s.Name)
	}
	if s.Timezone == "" {
		return fmt.Errorf("schedule %s: timezone is required", s.Name)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("schedule %s: invalid timezone %q: %w", s.Name, s.Timezone, err)
	}
	return nil
}
