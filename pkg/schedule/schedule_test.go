package schedule

import (
	"testing"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wc(h, m int) *types.WallClock { return &types.WallClock{Hour: h, Minute: m} }

func lookupFor(periods map[string]types.Period) PeriodLookup {
	return func(name string) (types.Period, bool) {
		p, ok := periods[name]
		return p, ok
	}
}

func TestAdjacencyRule(t *testing.T) {
	periods := map[string]types.Period{
		"morning":   {Name: "morning", BeginTime: wc(4, 0), EndTime: wc(12, 0)},
		"afternoon": {Name: "afternoon", BeginTime: wc(12, 0), EndTime: wc(17, 0)},
	}
	s := types.DefaultSchedule("adjacent")
	s.Timezone = "UTC"
	s.Periods = []types.PeriodRef{{PeriodName: "morning"}, {PeriodName: "afternoon"}}

	noon := time.Date(2024, time.March, 4, 12, 0, 0, 0, time.UTC)
	res, err := Evaluate(s, noon, lookupFor(periods))
	require.NoError(t, err)
	assert.Equal(t, types.StateRunning, res.State)
	assert.Equal(t, "afternoon", res.AuthoritativePeriod)

	s.Periods = []types.PeriodRef{{PeriodName: "morning"}}
	res, err = Evaluate(s, noon, lookupFor(periods))
	require.NoError(t, err)
	assert.Equal(t, types.StateStopped, res.State)
}

func TestPriorityRule(t *testing.T) {
	periods := map[string]types.Period{
		"a": {Name: "a", EndTime: wc(20, 0)}, // Any until 20:00
		"b": {Name: "b", BeginTime: wc(10, 0)},
	}
	s := types.DefaultSchedule("priority")
	s.Timezone = "UTC"
	s.Periods = []types.PeriodRef{{PeriodName: "a"}, {PeriodName: "b", Size: "large"}}

	at9 := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	res, err := Evaluate(s, at9, lookupFor(periods))
	require.NoError(t, err)
	assert.Equal(t, types.StateRunning, res.State)
	assert.Equal(t, "large", res.RequestedSize)

	periods["b"] = types.Period{Name: "b", EndTime: wc(5, 0)} // Stopped at 9am
	res, err = Evaluate(s, at9, lookupFor(periods))
	require.NoError(t, err)
	assert.Equal(t, types.StateAny, res.State, "Any beats Stopped")

	periods["a"] = types.Period{Name: "a", BeginTime: wc(9, 0)}
	periods["b"] = types.Period{Name: "b", BeginTime: wc(10, 0)}
	at11 := time.Date(2024, time.March, 4, 11, 0, 0, 0, time.UTC)
	s.Periods = []types.PeriodRef{{PeriodName: "a", Size: "small"}, {PeriodName: "b", Size: "large"}}
	res, err = Evaluate(s, at11, lookupFor(periods))
	require.NoError(t, err)
	assert.Equal(t, "large", res.RequestedSize, "later begintime wins authoritative tiebreak")
}

func TestOverrideStatusShortCircuits(t *testing.T) {
	running := types.OverrideRunning
	s := types.Schedule{Name: "forced", Timezone: "UTC", Override: &running}

	res, err := Evaluate(s, time.Now(), lookupFor(nil))
	require.NoError(t, err)
	assert.Equal(t, types.StateRunning, res.State)
	assert.Equal(t, "override_status", res.AuthoritativePeriod)
}

func TestNthWeekdayScenario(t *testing.T) {
	periods := map[string]types.Period{
		"first-monday": {Name: "first-monday", Weekdays: types.NthWeekday{Weekday: 0, N: 1}},
	}
	s := types.DefaultSchedule("monthly")
	s.Timezone = "UTC"
	s.Periods = []types.PeriodRef{{PeriodName: "first-monday"}}

	tests := []struct {
		day  int
		want types.ScheduleState
	}{
		{1, types.StateRunning},
		{8, types.StateStopped},
		{15, types.StateStopped},
		{22, types.StateStopped},
		{29, types.StateStopped},
	}
	for _, tt := range tests {
		dt := time.Date(2024, time.April, tt.day, 10, 0, 0, 0, time.UTC)
		res, err := Evaluate(s, dt, lookupFor(periods))
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.State, "day %d", tt.day)
	}
}
