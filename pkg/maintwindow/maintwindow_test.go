package maintwindow

import (
	"testing"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMirror struct {
	rows []types.MaintenanceWindow
}

func (f *fakeMirror) ListMaintenanceWindows(account, region string) ([]types.MaintenanceWindow, error) {
	var out []types.MaintenanceWindow
	for _, r := range f.rows {
		if r.Account == account && r.Region == region {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeMirror) PutMaintenanceWindow(w types.MaintenanceWindow) error {
	for i, r := range f.rows {
		if r.Account == w.Account && r.Region == w.Region && r.Name == w.Name && r.WindowID == w.WindowID {
			f.rows[i] = w
			return nil
		}
	}
	f.rows = append(f.rows, w)
	return nil
}

func (f *fakeMirror) DeleteMaintenanceWindow(account, region, name, windowID string) error {
	out := f.rows[:0]
	for _, r := range f.rows {
		if r.Account == account && r.Region == region && r.Name == name && r.WindowID == windowID {
			continue
		}
		out = append(out, r)
	}
	f.rows = out
	return nil
}

func ts(t time.Time) *time.Time { return &t }

func TestReconcileSkipsUnreferencedWindows(t *testing.T) {
	m := &fakeMirror{}
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	provider := []types.MaintenanceWindow{
		{Account: "1", Region: "us-east-1", Name: "unused", WindowID: "w1", NextExecutionTime: ts(now), DurationHours: 2},
	}
	err := Reconcile(m, "1", "us-east-1", provider, map[string]bool{}, now, time.Minute, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, m.rows, "a window never referenced by any schedule is never written to the mirror")
}

func TestReconcileWritesNewRows(t *testing.T) {
	m := &fakeMirror{}
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	provider := []types.MaintenanceWindow{
		{Account: "1", Region: "us-east-1", Name: "patch", WindowID: "w1", NextExecutionTime: ts(now.Add(time.Hour)), DurationHours: 2},
	}
	err := Reconcile(m, "1", "us-east-1", provider, map[string]bool{"patch": true}, now, time.Minute, time.Minute)
	require.NoError(t, err)
	require.Len(t, m.rows, 1)
}

func TestReconcileSkipsOverwriteAndDeleteWhileRunning(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	running := types.MaintenanceWindow{
		Account: "1", Region: "us-east-1", Name: "patch", WindowID: "w1",
		NextExecutionTime: ts(now.Add(-30 * time.Minute)), DurationHours: 2,
	}
	m := &fakeMirror{rows: []types.MaintenanceWindow{running}}

	changed := running
	newTime := now.Add(5 * time.Hour)
	changed.NextExecutionTime = &newTime
	err := Reconcile(m, "1", "us-east-1", []types.MaintenanceWindow{changed}, map[string]bool{"patch": true}, now, time.Minute, time.Minute)
	require.NoError(t, err)
	require.Len(t, m.rows, 1)
	assert.True(t, m.rows[0].NextExecutionTime.Equal(*running.NextExecutionTime), "still-running window must not be overwritten")

	err = Reconcile(m, "1", "us-east-1", nil, map[string]bool{"patch": true}, now, time.Minute, time.Minute)
	require.NoError(t, err)
	assert.Len(t, m.rows, 1, "still-running window must not be deleted even if the provider stops advertising it")
}

func TestToScheduleSplitsAcrossMidnight(t *testing.T) {
	begin := time.Date(2024, 3, 4, 22, 0, 0, 0, time.UTC)
	w := types.MaintenanceWindow{Name: "patch", WindowID: "w1", Timezone: "UTC", NextExecutionTime: &begin, DurationHours: 5}

	s, periods := ToSchedule(w)
	assert.True(t, s.Enforced)
	require.Len(t, periods, 2, "a window crossing midnight splits into same-day sub-periods")
	assert.Equal(t, 22, periods[0].BeginTime.Hour)
	assert.Nil(t, periods[0].EndTime)
	assert.Equal(t, 0, periods[1].BeginTime.Hour)
	assert.Equal(t, 3, periods[1].EndTime.Hour)
}
