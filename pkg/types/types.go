// Package types holds the shared value objects of the scheduling engine:
// the recurrence/period/schedule temporal model, the registry record for a
// managed cloud resource, and the small enums the decision function and
// orchestrator pass around.
package types

import "time"

// ScheduleState is the tri-state result of evaluating a period or a schedule
// at an instant.
type ScheduleState string

const (
	StateRunning ScheduleState = "running"
	StateStopped ScheduleState = "stopped"
	StateAny     ScheduleState = "any"
)

// InstanceState is the scheduler's memory of what it last intended for a
// resource. It is distinct from the resource's actual runtime state, which
// is queried from the provider on every cycle.
type InstanceState string

const (
	InstanceUnknown       InstanceState = "unknown"
	InstanceRunning       InstanceState = "running"
	InstanceStopped       InstanceState = "stopped"
	InstanceRetainRunning InstanceState = "retain_running"
	InstanceStartFailed   InstanceState = "start_failed"
	InstanceConfigured    InstanceState = "configured"
	InstanceAny           InstanceState = "any"
)

// RequestedAction is what the decision function asks the per-service
// adapter to do.
type RequestedAction string

const (
	ActionDoNothing RequestedAction = "do_nothing"
	ActionStart     RequestedAction = "start"
	ActionStop      RequestedAction = "stop"
	ActionConfigure RequestedAction = "configure"
)

// Service names a scheduling target's cloud service.
type Service string

const (
	ServiceEC2         Service = "ec2"
	ServiceRDS         Service = "rds"
	ServiceAutoScaling Service = "autoscaling"
)

// OverrideStatus short-circuits a schedule's period logic entirely.
type OverrideStatus string

const (
	OverrideRunning OverrideStatus = "running"
	OverrideStopped OverrideStatus = "stopped"
)

// Period is a reusable fragment of a schedule: an optional time-of-day
// window plus a recurrence that says which days it applies on. At least one
// of BeginTime, EndTime, or a non-All recurrence sub-expression must be set.
type Period struct {
	Name      string
	BeginTime *WallClock
	EndTime   *WallClock
	Months    RecurrenceExpr
	Monthdays RecurrenceExpr
	Weekdays  RecurrenceExpr
}

// WallClock is a local time-of-day, zero-padded HH:MM with no date or zone.
type WallClock struct {
	Hour   int
	Minute int
}

// Before reports whether w sorts earlier in the day than o.
func (w WallClock) Before(o WallClock) bool {
	if w.Hour != o.Hour {
		return w.Hour < o.Hour
	}
	return w.Minute < o.Minute
}

// Compare returns -1, 0, or 1 the way time.Time.Compare does.
func (w WallClock) Compare(o WallClock) int {
	switch {
	case w.Hour != o.Hour:
		if w.Hour < o.Hour {
			return -1
		}
		return 1
	case w.Minute != o.Minute:
		if w.Minute < o.Minute {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// PeriodRef is a schedule's reference to a period, carrying the resource
// size requested while that period is authoritative ("period-name[@size]").
type PeriodRef struct {
	PeriodName string
	Size       string // "" means no size requested
}

// Schedule composes an ordered set of periods under a timezone and a set of
// behavioral flags.
type Schedule struct {
	Name        string
	Description string
	Timezone    string // IANA zone name
	Periods     []PeriodRef
	Override    *OverrideStatus

	StopNewInstances bool
	UseMaintWindow   bool
	Enforced         bool
	Hibernate        bool
	RetainRunning    bool
}

// DefaultSchedule returns a Schedule with the spec's documented defaults
// applied (StopNewInstances and UseMaintWindow default true, the rest
// default false).
func DefaultSchedule(name string) Schedule {
	return Schedule{
		Name:             name,
		StopNewInstances: true,
		UseMaintWindow:   true,
	}
}

// MaintenanceWindow mirrors one provider-reported maintenance window.
// Uniqueness is by (Account, Region, Name, WindowID); multiple windows may
// share a Name.
type MaintenanceWindow struct {
	Account           string
	Region            string
	WindowID          string
	Name              string
	Timezone          string
	NextExecutionTime *time.Time
	DurationHours     float64
}

// IsRunningAt reports whether the window's current execution covers dt,
// given a polling interval and lead slack to absorb scheduling jitter.
func (w MaintenanceWindow) IsRunningAt(dt time.Time, pollingInterval, leadSlack time.Duration) bool {
	if w.NextExecutionTime == nil {
		return false
	}
	start := w.NextExecutionTime.Add(-pollingInterval - leadSlack)
	end := w.NextExecutionTime.Add(time.Duration(w.DurationHours * float64(time.Hour)))
	return !dt.Before(start) && dt.Before(end)
}

// LastConfigured is the sliding fingerprint an auto-scaling-group adapter
// stamps on a registry record to detect when its scheduled actions need to
// be reconfigured.
type LastConfigured struct {
	LastUpdated  time.Time
	Min          int
	Desired      int
	Max          int
	ScheduleHash string
	ValidUntil   time.Time
}

// ResourceType further qualifies a Service (e.g. "instance" for EC2,
// "cluster"/"instance" for RDS).
type ResourceType string

// RegisteredInstance is the registry's record of one managed cloud
// resource: its identity, the schedule attached to it by tag, and the
// scheduler's stored intent for it.
type RegisteredInstance struct {
	Account      string
	Region       string
	Service      Service
	ResourceType ResourceType
	ResourceID   string

	ARN          string
	ScheduleName string
	DisplayName  string
	StoredState  InstanceState

	LastConfigured *LastConfigured

	// PendingPurge is set when the resource was absent from one describe
	// call; it is only actually removed from the registry if it is still
	// absent at the next cycle's describe.
	PendingPurge bool

	// ErrorTag carries the last informational error surfaced to the
	// operator (unknown schedule, unsupported resource, etc.).
	ErrorTag *ErrorTag
}

// ErrorTag is the informational, timestamped tag attached to a resource
// when the scheduler cannot act on it normally.
type ErrorTag struct {
	Code      string
	Message   string
	Timestamp time.Time
}

// Target identifies one (account, region, service) scheduling partition.
type Target struct {
	Account string
	Region  string
	Service Service
}

// RegistryKey returns the composite sort key used by the bbolt store:
// "resource#<region>#<service>#<resource_type>#<resource_id>".
func (r RegisteredInstance) RegistryKey() string {
	return "resource#" + r.Region + "#" + string(r.Service) + "#" + string(r.ResourceType) + "#" + r.ResourceID
}
