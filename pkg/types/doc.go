/*
Package types defines the core data structures shared across this module:
periods and schedules (the user-authored configuration), registered
instances (the per-resource registry row the runner evaluates each cycle),
and maintenance windows (the provider-reported context C5 reconciles).

# Core Types

Configuration:
  - Period: a recurring time window (begintime/endtime, weekdays,
    monthdays, months)
  - Schedule: a named composition of period references plus the five
    boolean behavior flags and an optional override status
  - PeriodRef: a "period-name[@size]" reference inside a schedule

Registry:
  - RegisteredInstance: one in-scope resource's identity, schedule
    assignment, and stored_state
  - LastConfigured: the sliding fingerprint an auto-scaling-group adapter
    stamps to detect when its scheduled actions need reconfiguring
  - ErrorTag: the informational, resource-scoped tag set when a resource
    can't be evaluated (unknown schedule, unsupported resource)

Provider context:
  - MaintenanceWindow: one provider-reported maintenance window, keyed by
    (account, region, name, window_id)

# Enumerations

ScheduleState, InstanceState, RequestedAction, Service, and
OverrideStatus are all typed string constants rather than ints, so stored
values and log output stay human-readable without a lookup table.

# Usage

Composing a schedule from period references:

	s := types.DefaultSchedule("business-hours")
	s.Timezone = "America/New_York"
	s.Periods = []types.PeriodRef{{PeriodName: "office-hours"}}

Registering a resource:

	inst := &types.RegisteredInstance{
		Account:      "111111111111",
		Region:       "us-east-1",
		Service:      types.ServiceEC2,
		ResourceType: "instance",
		ResourceID:   "i-0123456789abcdef0",
		ScheduleName: "business-hours",
		StoredState:  types.InstanceUnknown,
	}

# See Also

  - pkg/recur, pkg/period, pkg/schedule for the evaluators that consume
    Period/Schedule
  - pkg/decision for the function that turns a RegisteredInstance's
    stored_state and a schedule's state into an action
  - pkg/storage for how these types are persisted
*/
package types
