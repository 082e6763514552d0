// Package decision implements the decision function (C4): given a
// registered instance's stored state, its schedule's state at an instant,
// and any active maintenance windows, produce the action to take and the
// new stored state.
package decision

import (
	"time"

	"github.com/cuemby/instance-scheduler/pkg/types"
)

// Outcome is what the decision function returns: the action to perform,
// the new stored state to persist, and a short human-readable reason for
// logging/events.
type Outcome struct {
	Action     types.RequestedAction
	NewStored  types.InstanceState
	Reason     string
}

// MaintenanceWindowSchedule is a synthetic schedule carrying the time span
// of one in-scope maintenance window. It is always Enforced.
type MaintenanceWindowSchedule struct {
	Name  string
	State types.ScheduleState
}

// Decide runs the C4 algorithm. scheduleState is the schedule's state at
// dt as computed by the schedule package; activeWindows are the
// maintenance-window schedules evaluated for the same dt.
func Decide(stored types.InstanceState, s types.Schedule, scheduleState types.ScheduleState, activeWindows []MaintenanceWindowSchedule) Outcome {
	if s.UseMaintWindow {
		for _, mw := range activeWindows {
			if mw.State == types.StateRunning {
				return Outcome{Action: types.ActionStart, NewStored: types.InstanceRunning, Reason: "in MW " + mw.Name}
			}
		}
	}

	switch scheduleState {
	case types.StateStopped:
		return decideStopped(stored, s)
	case types.StateRunning:
		return decideRunning(stored, s)
	default: // types.StateAny
		return Outcome{Action: types.ActionDoNothing, NewStored: types.InstanceAny}
	}
}

func decideStopped(stored types.InstanceState, s types.Schedule) Outcome {
	switch {
	case stored == types.InstanceUnknown && !s.StopNewInstances:
		return Outcome{Action: types.ActionDoNothing, NewStored: types.InstanceStopped, Reason: "stop_new_instances disabled"}
	case s.Enforced:
		return Outcome{Action: types.ActionStop, NewStored: types.InstanceStopped, Reason: "enforced"}
	case stored == types.InstanceRetainRunning && s.RetainRunning:
		return Outcome{Action: types.ActionDoNothing, NewStored: types.InstanceStopped}
	case stored != types.InstanceStopped:
		return Outcome{Action: types.ActionStop, NewStored: types.InstanceStopped, Reason: "transition"}
	default:
		return Outcome{Action: types.ActionDoNothing, NewStored: types.InstanceStopped}
	}
}

func decideRunning(stored types.InstanceState, s types.Schedule) Outcome {
	switch {
	case s.Enforced:
		return Outcome{Action: types.ActionStart, NewStored: types.InstanceRunning}
	case s.RetainRunning && stored == types.InstanceStopped:
		return Outcome{Action: types.ActionDoNothing, NewStored: types.InstanceRetainRunning}
	case stored == types.InstanceRetainRunning:
		return Outcome{Action: types.ActionDoNothing, NewStored: types.InstanceRetainRunning}
	case stored == types.InstanceStartFailed:
		return Outcome{Action: types.ActionStart, NewStored: types.InstanceRunning}
	case stored != types.InstanceRunning:
		return Outcome{Action: types.ActionStart, NewStored: types.InstanceRunning}
	default:
		return Outcome{Action: types.ActionDoNothing, NewStored: types.InstanceRunning}
	}
}

// ActiveMaintenanceWindows returns the candidate windows whose
// already-resolved state is Running, for use as Decide's activeWindows
// argument; it does not itself consult at. Evaluation itself is delegated to the caller (maintwindow
// package) to avoid an import cycle; this helper exists for callers that
// already hold resolved states.
func ActiveMaintenanceWindows(states map[string]types.ScheduleState, at time.Time) []MaintenanceWindowSchedule {
	var out []MaintenanceWindowSchedule
	for name, state := range states {
		if state == types.StateRunning {
			out = append(out, MaintenanceWindowSchedule{Name: name, State: state})
		}
	}
	return out
}
