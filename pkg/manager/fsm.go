package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/instance-scheduler/pkg/storage"
	"github.com/cuemby/instance-scheduler/pkg/types"
	"github.com/hashicorp/raft"
)

// SchedulerFSM implements the Raft finite state machine for the orchestrator's
// replicated state: the resource registry, schedule/period definitions, and
// the maintenance-window mirror.
type SchedulerFSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewSchedulerFSM creates a new FSM instance.
func NewSchedulerFSM(store storage.Store) *SchedulerFSM {
	return &SchedulerFSM{
		store: store,
	}
}

// Command represents a state change operation in the Raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Apply applies a committed Raft log entry to the FSM.
func (f *SchedulerFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case "put_registered_instance":
		var inst types.RegisteredInstance
		if err := json.Unmarshal(cmd.Data, &inst); err != nil {
			return err
		}
		return f.store.PutRegisteredInstance(&inst)

	case "delete_registered_instance":
		var key registryDeleteKey
		if err := json.Unmarshal(cmd.Data, &key); err != nil {
			return err
		}
		return f.store.DeleteRegisteredInstance(key.Account, key.Region, key.Service, key.ResourceType, key.ResourceID)

	case "put_schedule":
		var s types.Schedule
		if err := json.Unmarshal(cmd.Data, &s); err != nil {
			return err
		}
		return f.store.PutSchedule(&s)

	case "delete_schedule":
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		return f.store.DeleteSchedule(name)

	case "put_period":
		var p types.Period
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.PutPeriod(&p)

	case "delete_period":
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		return f.store.DeletePeriod(name)

	case "put_maintenance_window":
		var w types.MaintenanceWindow
		if err := json.Unmarshal(cmd.Data, &w); err != nil {
			return err
		}
		return f.store.PutMaintenanceWindow(w)

	case "delete_maintenance_window":
		var key mwDeleteKey
		if err := json.Unmarshal(cmd.Data, &key); err != nil {
			return err
		}
		return f.store.DeleteMaintenanceWindow(key.Account, key.Region, key.Name, key.WindowID)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

type registryDeleteKey struct {
	Account      string             `json:"account"`
	Region       string             `json:"region"`
	Service      types.Service      `json:"service"`
	ResourceType types.ResourceType `json:"resource_type"`
	ResourceID   string             `json:"resource_id"`
}

type mwDeleteKey struct {
	Account  string `json:"account"`
	Region   string `json:"region"`
	Name     string `json:"name"`
	WindowID string `json:"window_id"`
}

// Snapshot creates a point-in-time snapshot of the FSM for Raft log compaction.
func (f *SchedulerFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	instances, err := f.store.ListRegisteredInstances()
	if err != nil {
		return nil, fmt.Errorf("failed to list registered instances: %v", err)
	}

	schedules, err := f.store.ListSchedules()
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %v", err)
	}

	periods, err := f.store.ListPeriods()
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %v", err)
	}

	snapshot := &SchedulerSnapshot{
		RegisteredInstances: instances,
		Schedules:           schedules,
		Periods:             periods,
	}

	return snapshot, nil
}

// Restore restores the FSM from a snapshot, e.g. when a node joins the cluster.
func (f *SchedulerFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot SchedulerSnapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, inst := range snapshot.RegisteredInstances {
		if err := f.store.PutRegisteredInstance(inst); err != nil {
			return fmt.Errorf("failed to restore registered instance: %v", err)
		}
	}

	for _, s := range snapshot.Schedules {
		if err := f.store.PutSchedule(s); err != nil {
			return fmt.Errorf("failed to restore schedule: %v", err)
		}
	}

	for _, p := range snapshot.Periods {
		if err := f.store.PutPeriod(p); err != nil {
			return fmt.Errorf("failed to restore period: %v", err)
		}
	}

	return nil
}

// SchedulerSnapshot is a point-in-time copy of replicated orchestrator state.
// The maintenance-window mirror is intentionally excluded: it is re-derived
// by reconciliation against the cloud provider on the next poll rather than
// carried through snapshots.
type SchedulerSnapshot struct {
	RegisteredInstances []*types.RegisteredInstance
	Schedules           []*types.Schedule
	Periods             []*types.Period
}

// Persist writes the snapshot to the given SnapshotSink.
func (s *SchedulerSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

// Release releases the snapshot resources.
func (s *SchedulerSnapshot) Release() {}
