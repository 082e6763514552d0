package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/instance-scheduler/pkg/types"
)

// FakeEC2 is an in-memory InstanceAdapter + TypeModifier used by tests and
// by the CLI's dry-run evaluate mode.
type FakeEC2 struct {
	mu        sync.Mutex
	instances map[string]RuntimeInfo
	// Unsupported, when set, makes ModifyType fail for the given type as if
	// the target capacity were exhausted — used to exercise the runner's
	// type-fallback retry path.
	Unsupported map[string]bool
	// StartUnsupported, when set, makes Start fail for an instance whose
	// current InstanceType is a key in the map, as if the provider
	// returned a capacity-insufficiency error for that type.
	StartUnsupported map[string]bool
}

// NewFakeEC2 seeds the fake with the given initial instance states.
func NewFakeEC2(initial map[string]RuntimeInfo) *FakeEC2 {
	f := &FakeEC2{instances: make(map[string]RuntimeInfo)}
	for id, info := range initial {
		f.instances[id] = info
	}
	return f
}

func (f *FakeEC2) Describe(ctx context.Context, ids []string) (map[string]RuntimeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]RuntimeInfo)
	for _, id := range ids {
		if info, ok := f.instances[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

func (f *FakeEC2) Start(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		info := f.instances[id]
		if f.StartUnsupported[info.InstanceType] {
			return fmt.Errorf("insufficient capacity to start %s on type %s", id, info.InstanceType)
		}
	}

	for _, id := range ids {
		info := f.instances[id]
		info.ResourceID = id
		info.State = types.InstanceRunning
		f.instances[id] = info
	}
	return nil
}

func (f *FakeEC2) Stop(ctx context.Context, ids []string, hibernate bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := types.InstanceStopped
	if hibernate {
		state = types.InstanceRetainRunning
	}
	for _, id := range ids {
		info := f.instances[id]
		info.ResourceID = id
		info.State = state
		f.instances[id] = info
	}
	return nil
}

func (f *FakeEC2) ModifyType(ctx context.Context, id, newType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Unsupported[newType] {
		return fmt.Errorf("insufficient capacity for type %s", newType)
	}

	info := f.instances[id]
	info.ResourceID = id
	info.InstanceType = newType
	f.instances[id] = info
	return nil
}

// FakeRDS is an in-memory InstanceAdapter for RDS instances/clusters. It
// does not implement TypeModifier: RDS engines have no Configure story in
// this scheduler, so a runner wired with it skips the resize step.
type FakeRDS struct {
	mu        sync.Mutex
	instances map[string]RuntimeInfo
}

func NewFakeRDS(initial map[string]RuntimeInfo) *FakeRDS {
	f := &FakeRDS{instances: make(map[string]RuntimeInfo)}
	for id, info := range initial {
		f.instances[id] = info
	}
	return f
}

func (f *FakeRDS) Describe(ctx context.Context, ids []string) (map[string]RuntimeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]RuntimeInfo)
	for _, id := range ids {
		if info, ok := f.instances[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

func (f *FakeRDS) Start(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		info := f.instances[id]
		info.ResourceID = id
		info.State = types.InstanceRunning
		f.instances[id] = info
	}
	return nil
}

func (f *FakeRDS) Stop(ctx context.Context, ids []string, hibernate bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		info := f.instances[id]
		info.ResourceID = id
		info.State = types.InstanceStopped
		f.instances[id] = info
	}
	return nil
}

// FakeASG is an in-memory ASGAdapter.
type FakeASG struct {
	mu      sync.Mutex
	groups  map[string]RuntimeInfo
	actions map[string]string // group name -> fingerprint
}

func NewFakeASG(initial map[string]RuntimeInfo) *FakeASG {
	return &FakeASG{
		groups:  initial,
		actions: make(map[string]string),
	}
}

func (f *FakeASG) Describe(ctx context.Context, names []string) (map[string]RuntimeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]RuntimeInfo)
	for _, name := range names {
		if info, ok := f.groups[name]; ok {
			out[name] = info
		}
	}
	return out, nil
}

func (f *FakeASG) PutScheduledAction(ctx context.Context, name string, s types.Schedule, periods []types.Period) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fingerprint := fmt.Sprintf("%s:%d", s.Name, len(periods))
	f.actions[name] = fingerprint
	return fingerprint, nil
}

func (f *FakeASG) DeleteScheduledAction(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.actions, name)
	return nil
}

// FakeMaintenanceWindows is an in-memory MaintenanceWindowAdapter, seeded
// with whatever the test wants the provider to currently report.
type FakeMaintenanceWindows struct {
	mu      sync.Mutex
	windows []types.MaintenanceWindow
}

func NewFakeMaintenanceWindows(initial []types.MaintenanceWindow) *FakeMaintenanceWindows {
	return &FakeMaintenanceWindows{windows: initial}
}

func (f *FakeMaintenanceWindows) Describe(ctx context.Context, account, region string) ([]types.MaintenanceWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []types.MaintenanceWindow
	for _, w := range f.windows {
		if w.Account == account && w.Region == region {
			out = append(out, w)
		}
	}
	return out, nil
}

// SetWindows replaces the provider's current window list, simulating the
// next poll's result.
func (f *FakeMaintenanceWindows) SetWindows(windows []types.MaintenanceWindow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = windows
}
