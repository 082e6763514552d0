// Package storage defines the durable state interface for the scheduling
// engine (registry, schedule/period store, maintenance-window mirror) and
// a bbolt-backed implementation of it.
package storage

import (
	"github.com/cuemby/instance-scheduler/pkg/types"
)

// Store is the durable key-value interface the orchestrator, runners, and
// the maintenance-window reconciler use. Every entity is addressed by the
// composite key scheme documented in SPEC_FULL.md §6/§9.
type Store interface {
	// Registered instances (the resource registry).
	PutRegisteredInstance(inst *types.RegisteredInstance) error
	GetRegisteredInstance(account, region string, service types.Service, resourceType types.ResourceType, resourceID string) (*types.RegisteredInstance, error)
	ListRegisteredInstancesByAccount(account string) ([]*types.RegisteredInstance, error)
	ListRegisteredInstancesByTarget(account, region string, service types.Service) ([]*types.RegisteredInstance, error)
	ListRegisteredInstances() ([]*types.RegisteredInstance, error)
	DeleteRegisteredInstance(account, region string, service types.Service, resourceType types.ResourceType, resourceID string) error

	// Schedules.
	PutSchedule(s *types.Schedule) error
	GetSchedule(name string) (*types.Schedule, error)
	ListSchedules() ([]*types.Schedule, error)
	DeleteSchedule(name string) error

	// Periods.
	PutPeriod(p *types.Period) error
	GetPeriod(name string) (*types.Period, error)
	ListPeriods() ([]*types.Period, error)
	DeletePeriod(name string) error

	// Maintenance-window mirror.
	PutMaintenanceWindow(w types.MaintenanceWindow) error
	GetMaintenanceWindow(account, region, name, windowID string) (*types.MaintenanceWindow, error)
	ListMaintenanceWindows(account, region string) ([]types.MaintenanceWindow, error)
	DeleteMaintenanceWindow(account, region, name, windowID string) error

	// Certificate authority material, used by pkg/security to persist the
	// orchestrator's mTLS root across restarts and leader changes.
	GetCA() ([]byte, error)
	SaveCA(data []byte) error

	Close() error
}
