// Package maintwindow implements the maintenance-window context (C5):
// reconciling provider-reported maintenance windows with a persisted mirror
// so that actively-running windows survive across invocations, and
// translating reconciled windows into synthetic schedules.
package maintwindow

import (
	"time"

	"github.com/cuemby/instance-scheduler/pkg/types"
)

// Mirror is the persisted-store access the reconciler needs. The concrete
// implementation lives in pkg/storage; this interface exists so the
// reconciliation algorithm can be tested without bbolt.
type Mirror interface {
	ListMaintenanceWindows(account, region string) ([]types.MaintenanceWindow, error)
	PutMaintenanceWindow(w types.MaintenanceWindow) error
	DeleteMaintenanceWindow(account, region, name, windowID string) error
}

// Deltas is the three-way classification of provider-reported windows
// against the mirror, keyed by (name, window_id).
type Deltas struct {
	Unchanged []types.MaintenanceWindow
	Updated   []types.MaintenanceWindow
	Deleted   []types.MaintenanceWindow
}

func key(name, windowID string) string { return name + ":" + windowID }

// computeDelta classifies provider-reported windows against mirror rows by
// (name, window_id): unchanged (identical fields), updated (present in
// both, fields differ), deleted (present in mirror only).
func computeDelta(provider, mirror []types.MaintenanceWindow) Deltas {
	mirrorByKey := make(map[string]types.MaintenanceWindow, len(mirror))
	for _, m := range mirror {
		mirrorByKey[key(m.Name, m.WindowID)] = m
	}

	seen := make(map[string]bool, len(provider))
	var d Deltas
	for _, p := range provider {
		k := key(p.Name, p.WindowID)
		seen[k] = true
		if existing, ok := mirrorByKey[k]; ok {
			if sameWindow(existing, p) {
				d.Unchanged = append(d.Unchanged, p)
			} else {
				d.Updated = append(d.Updated, p)
			}
		}
	}
	for k, m := range mirrorByKey {
		if !seen[k] {
			d.Deleted = append(d.Deleted, m)
		}
	}
	return d
}

func sameWindow(a, b types.MaintenanceWindow) bool {
	if a.Timezone != b.Timezone || a.DurationHours != b.DurationHours {
		return false
	}
	switch {
	case a.NextExecutionTime == nil && b.NextExecutionTime == nil:
		return true
	case a.NextExecutionTime == nil || b.NextExecutionTime == nil:
		return false
	default:
		return a.NextExecutionTime.Equal(*b.NextExecutionTime)
	}
}

// Reconcile performs the C5 reconciliation for one (account, region)
// target: it drops windows not referenced by any in-scope schedule or
// lacking a next execution time, diffs against the persisted mirror, and
// writes back new/changed rows while never clobbering a still-running
// window. pollingInterval and leadSlack are passed through to
// types.MaintenanceWindow.IsRunningAt.
func Reconcile(mirror Mirror, account, region string, providerWindows []types.MaintenanceWindow, inScopeNames map[string]bool, dt time.Time, pollingInterval, leadSlack time.Duration) error {
	var candidates []types.MaintenanceWindow
	for _, w := range providerWindows {
		if !inScopeNames[w.Name] {
			continue
		}
		if w.NextExecutionTime == nil {
			continue
		}
		candidates = append(candidates, w)
	}

	mirrorRows, err := mirror.ListMaintenanceWindows(account, region)
	if err != nil {
		return err
	}

	deltas := computeDelta(candidates, mirrorRows)
	mirrorByKey := make(map[string]types.MaintenanceWindow, len(mirrorRows))
	for _, m := range mirrorRows {
		mirrorByKey[key(m.Name, m.WindowID)] = m
	}

	for _, updated := range deltas.Updated {
		old := mirrorByKey[key(updated.Name, updated.WindowID)]
		if old.IsRunningAt(dt, pollingInterval, leadSlack) {
			continue
		}
		if err := mirror.PutMaintenanceWindow(updated); err != nil {
			return err
		}
	}

	for _, deleted := range deltas.Deleted {
		if deleted.IsRunningAt(dt, pollingInterval, leadSlack) {
			continue
		}
		if err := mirror.DeleteMaintenanceWindow(deleted.Account, deleted.Region, deleted.Name, deleted.WindowID); err != nil {
			return err
		}
	}

	for _, p := range candidates {
		if _, ok := mirrorByKey[key(p.Name, p.WindowID)]; !ok {
			if err := mirror.PutMaintenanceWindow(p); err != nil {
				return err
			}
		}
	}

	return nil
}

// FindByName returns every reconciled window sharing the given display
// name for (account, region); there may be many, uniqueness is by
// (name, window_id).
func FindByName(mirror Mirror, account, region, name string) ([]types.MaintenanceWindow, error) {
	all, err := mirror.ListMaintenanceWindows(account, region)
	if err != nil {
		return nil, err
	}
	var out []types.MaintenanceWindow
	for _, w := range all {
		if w.Name == name {
			out = append(out, w)
		}
	}
	return out, nil
}

// ToSchedule translates one reconciled window into a synthetic, always
// enforced schedule whose periods cover the window's begin/end, split
// across midnight into up to three sub-periods so each stays within a
// single local day. It returns the schedule and the concrete period
// definitions its references name, since periods are normally resolved
// through the durable store but these are synthesized for a single cycle.
func ToSchedule(w types.MaintenanceWindow) (types.Schedule, []types.Period) {
	s := types.Schedule{
		Name:           "mw:" + w.Name + ":" + w.WindowID,
		Timezone:       w.Timezone,
		Enforced:       true,
		UseMaintWindow: false,
	}
	if w.NextExecutionTime == nil {
		return s, nil
	}

	loc := time.UTC
	if zone, err := time.LoadLocation(w.Timezone); err == nil {
		loc = zone
	}

	remaining := time.Duration(w.DurationHours * float64(time.Hour))
	cur := w.NextExecutionTime.In(loc)

	var periods []types.Period
	for idx := 1; remaining > 0 && idx <= 3; idx++ {
		midnight := time.Date(cur.Year(), cur.Month(), cur.Day()+1, 0, 0, 0, 0, loc)
		untilMidnight := midnight.Sub(cur)

		span := remaining
		if span > untilMidnight {
			span = untilMidnight
		}
		end := cur.Add(span)

		beginClock := types.WallClock{Hour: cur.Hour(), Minute: cur.Minute()}
		p := types.Period{
			Name:      s.Name + "#" + itoa(idx),
			BeginTime: &beginClock,
			Months:    types.SingleValueNumeric{Value: int(cur.Month())},
			Monthdays: types.SingleValueNumeric{Value: cur.Day()},
		}
		if end.Before(midnight) {
			endClock := types.WallClock{Hour: end.Hour(), Minute: end.Minute()}
			p.EndTime = &endClock
		}

		periods = append(periods, p)
		s.Periods = append(s.Periods, types.PeriodRef{PeriodName: p.Name})

		remaining -= span
		cur = end
	}

	return s, periods
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
