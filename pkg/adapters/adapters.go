// Package adapters defines the per-service collaborator contracts the
// runner drives to actually start, stop, or reconfigure cloud resources.
// Each cloud service (EC2, RDS, Auto Scaling) implements its own shape of
// these operations; the runner only depends on the interfaces here, never
// on a concrete SDK client, so it can be exercised against the in-memory
// fakes in this package without network access.
package adapters

import (
	"context"
	"fmt"

	"github.com/cuemby/instance-scheduler/pkg/types"
)

// RuntimeInfo is what a describe call returns for one resource.
type RuntimeInfo struct {
	ResourceID   string
	State        types.InstanceState
	InstanceType string
}

// InstanceAdapter is the contract shared by VM-shaped resources (EC2
// instances, RDS instances/clusters): describe current runtime state, then
// start or stop by ID.
type InstanceAdapter interface {
	Describe(ctx context.Context, ids []string) (map[string]RuntimeInfo, error)
	Start(ctx context.Context, ids []string) error
	Stop(ctx context.Context, ids []string, hibernate bool) error
}

// TypeModifier is implemented by adapters that support the Configure action
// (EC2 instance-type changes at period boundaries). RDS intentionally does
// not implement this; with no TypeModifier wired, the runner skips the
// resize step.
type TypeModifier interface {
	ModifyType(ctx context.Context, id, newType string) error
}

// ASGAdapter is the contract for auto-scaling groups, which are scheduled by
// installing recurring scheduled actions rather than by direct start/stop.
type ASGAdapter interface {
	Describe(ctx context.Context, names []string) (map[string]RuntimeInfo, error)
	PutScheduledAction(ctx context.Context, name string, s types.Schedule, periods []types.Period) (fingerprint string, err error)
	DeleteScheduledAction(ctx context.Context, name string) error
}

// MaintenanceWindowAdapter fetches provider-reported maintenance windows
// for a (account, region) pair, ahead of the runner's C5 reconciliation.
type MaintenanceWindowAdapter interface {
	Describe(ctx context.Context, account, region string) ([]types.MaintenanceWindow, error)
}

// ErrUnsupportedResource is returned by an adapter when asked to act on a
// resource shape/engine it does not support (e.g. an RDS engine the
// scheduler has no start/stop story for).
type ErrUnsupportedResource struct {
	ResourceID string
	Reason     string
}

func (e *ErrUnsupportedResource) Error() string {
	return fmt.Sprintf("unsupported resource %s: %s", e.ResourceID, e.Reason)
}
