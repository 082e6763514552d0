// Package rpc defines the orchestrator<->runner wire contract and a
// hand-registered gRPC service for it. The dispatch payload is carried as
// plain Go structs over the JSON codec in codec.go rather than generated
// protobuf stubs: google.golang.org/grpc does not require protoc-generated
// types, only a registered codec and a grpc.ServiceDesc, both provided
// here, so the transport and call semantics (deadlines, mTLS, streaming
// errors) are identical to a protobuf service.
package rpc

import (
	"context"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/types"
	"google.golang.org/grpc"
)

// DispatchRequest is the orchestrator -> runner payload for one scheduling
// target (account, region, service). Schedules/Periods are populated
// unless the inlined payload would exceed the dispatch size ceiling, in
// which case the runner fetches the missing definitions from the
// orchestrator through FetchDefinitions.
type DispatchRequest struct {
	Action        string            `json:"action"` // always "scheduler:run"
	Account       string            `json:"account"`
	Region        string            `json:"region"`
	Service       types.Service     `json:"service"`
	CurrentDT     time.Time         `json:"current_dt"`
	DispatchTime  time.Time         `json:"dispatch_time"`
	Schedules     []*types.Schedule `json:"schedules,omitempty"`
	Periods       []*types.Period   `json:"periods,omitempty"`
	ScheduleNames []string          `json:"schedule_names,omitempty"`

	// MaintenanceWindows carries the orchestrator's last-reconciled mirror
	// rows for this (account, region), as of the previous ReportResult.
	// The runner uses these to build C4's active-window list; freshly
	// provider-observed windows for the *next* reconciliation are reported
	// back in DispatchResult, not read here.
	MaintenanceWindows []types.MaintenanceWindow `json:"maintenance_windows,omitempty"`

	// Instances is the registry's current view of every resource in scope
	// for this target; the runner cross-references these IDs against what
	// the provider reports rather than discovering scope on its own.
	Instances []*types.RegisteredInstance `json:"instances,omitempty"`
}

// ActionRecord is one resource's outcome within a dispatch cycle.
type ActionRecord struct {
	ResourceID      string               `json:"resource_id"`
	RequestedAction types.RequestedAction `json:"requested_action"`
	ActionTaken     bool                 `json:"action_taken"`
	Error           string               `json:"error,omitempty"`
}

// DispatchResult is the runner -> orchestrator report for a completed (or
// partially completed, if the wall-clock budget ran out) dispatch cycle.
type DispatchResult struct {
	Account string         `json:"account"`
	Region  string         `json:"region"`
	Service types.Service  `json:"service"`
	Actions []ActionRecord `json:"actions"`
	// FatalError is set when the whole target failed (e.g. role
	// assumption) rather than any single resource.
	FatalError string `json:"fatal_error,omitempty"`

	// ProviderMaintenanceWindows is what the runner observed this cycle by
	// querying the provider directly; the orchestrator reconciles these
	// against its persisted mirror on receipt.
	ProviderMaintenanceWindows []types.MaintenanceWindow `json:"provider_maintenance_windows,omitempty"`
	// MaintWindowNames are the schedule names (use_maintenance_window=true,
	// referenced by a registered instance in this target) the orchestrator
	// should treat as in scope when reconciling ProviderMaintenanceWindows.
	MaintWindowNames []string `json:"maint_window_names,omitempty"`

	// UpdatedInstances carries the full post-cycle record for every
	// instance whose stored state, last_configured fingerprint, or error
	// tag changed this cycle, so the orchestrator can persist them back
	// into the Raft-replicated registry.
	UpdatedInstances []*types.RegisteredInstance `json:"updated_instances,omitempty"`

	// Purged lists resources still absent from the provider's describe
	// call for a second consecutive cycle (pending_purge was already
	// set); the orchestrator removes these from the registry.
	Purged []PurgedResource `json:"purged,omitempty"`
}

// PurgedResource identifies one registry row the runner is asking the
// orchestrator to delete, having confirmed its absence from the provider
// across two consecutive describe calls.
type PurgedResource struct {
	ResourceType types.ResourceType `json:"resource_type"`
	ResourceID   string             `json:"resource_id"`
}

// FetchDefinitionsRequest asks the orchestrator for specific schedules and
// periods by name. The runner sends this only when a Dispatch response
// omitted them because the inlined payload would have exceeded the
// dispatch size ceiling (see DispatchRequest).
type FetchDefinitionsRequest struct {
	ScheduleNames []string `json:"schedule_names,omitempty"`
	PeriodNames   []string `json:"period_names,omitempty"`
}

// FetchDefinitionsResponse carries the requested definitions. A name with
// no matching entry is simply absent from the corresponding slice; the
// caller treats that the same as an unknown schedule/period.
type FetchDefinitionsResponse struct {
	Schedules []*types.Schedule `json:"schedules,omitempty"`
	Periods   []*types.Period   `json:"periods,omitempty"`
}

// JoinRequest asks the leader to admit a new node to the Raft quorum.
type JoinRequest struct {
	NodeID   string `json:"node_id"`
	BindAddr string `json:"bind_addr"`
	Token    string `json:"token"`
}

// JoinResponse carries nothing beyond a successful RPC return today, but
// exists as a named type so the wire contract can grow without breaking
// the method signature.
type JoinResponse struct{}

// CertRequest asks the orchestrator to issue an mTLS leaf certificate for
// a runner or CLI node, authenticated by a join token rather than an
// existing client certificate (there is none yet).
type CertRequest struct {
	NodeID string `json:"node_id"`
	Role   string `json:"role"`
	Token  string `json:"token"`
}

// CertResponse carries the issued certificate, its private key, and the
// cluster's CA certificate, all PEM-encoded.
type CertResponse struct {
	CertPEM   []byte `json:"cert_pem"`
	KeyPEM    []byte `json:"key_pem"`
	CACertPEM []byte `json:"ca_cert_pem"`
}

// SchedulerServer is implemented by the orchestrator (pkg/api). A runner
// calls Dispatch to poll for work on its assigned target; the orchestrator
// (if it is the Raft leader) responds with the target's current schedules
// and periods inlined, or an error if it is not the leader (a target with
// nothing registered gets an empty payload, not an error). The runner later calls ReportResult once it has
// executed the cycle, so the orchestrator can persist registry updates,
// publish events, and record metrics. RequestCertificate and JoinCluster
// are the two steps of admitting a new node: any node (runner, CLI, or a
// peer orchestrator) requests a certificate first; only a peer
// orchestrator additionally calls JoinCluster to join the Raft quorum.
type SchedulerServer interface {
	Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchRequest, error)
	ReportResult(ctx context.Context, res *DispatchResult) (*DispatchResult, error)
	FetchDefinitions(ctx context.Context, req *FetchDefinitionsRequest) (*FetchDefinitionsResponse, error)
	JoinCluster(ctx context.Context, req *JoinRequest) (*JoinResponse, error)
	RequestCertificate(ctx context.Context, req *CertRequest) (*CertResponse, error)
}

const serviceName = "scheduler.rpc.SchedulerService"

// ServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit for a five-method unary service. grpc.Server.RegisterService
// dispatches purely on method name and the handler's (ctx, req) signature;
// it has no dependency on protobuf-generated types.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SchedulerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Dispatch",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(DispatchRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(SchedulerServer).Dispatch(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Dispatch"}
				handler := func(ctx context.Context, r interface{}) (interface{}, error) {
					return srv.(SchedulerServer).Dispatch(ctx, r.(*DispatchRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
		{
			MethodName: "ReportResult",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(DispatchResult)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(SchedulerServer).ReportResult(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ReportResult"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(SchedulerServer).ReportResult(ctx, req.(*DispatchResult))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
		{
			MethodName: "FetchDefinitions",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(FetchDefinitionsRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(SchedulerServer).FetchDefinitions(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/FetchDefinitions"}
				handler := func(ctx context.Context, r interface{}) (interface{}, error) {
					return srv.(SchedulerServer).FetchDefinitions(ctx, r.(*FetchDefinitionsRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
		{
			MethodName: "JoinCluster",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(JoinRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(SchedulerServer).JoinCluster(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/JoinCluster"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(SchedulerServer).JoinCluster(ctx, req.(*JoinRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
		{
			MethodName: "RequestCertificate",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(CertRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(SchedulerServer).RequestCertificate(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/RequestCertificate"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(SchedulerServer).RequestCertificate(ctx, req.(*CertRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Metadata: "pkg/rpc/rpc.go",
}

// Dispatch invokes the Dispatch RPC against conn.
func Dispatch(ctx context.Context, conn *grpc.ClientConn, req *DispatchRequest) (*DispatchRequest, error) {
	out := new(DispatchRequest)
	err := conn.Invoke(ctx, "/"+serviceName+"/Dispatch", req, out, grpc.CallContentSubtype(codecName))
	return out, err
}

// ReportResult invokes the ReportResult RPC against conn.
func ReportResult(ctx context.Context, conn *grpc.ClientConn, res *DispatchResult) (*DispatchResult, error) {
	out := new(DispatchResult)
	err := conn.Invoke(ctx, "/"+serviceName+"/ReportResult", res, out, grpc.CallContentSubtype(codecName))
	return out, err
}

// FetchDefinitions invokes the FetchDefinitions RPC against conn.
func FetchDefinitions(ctx context.Context, conn *grpc.ClientConn, req *FetchDefinitionsRequest) (*FetchDefinitionsResponse, error) {
	out := new(FetchDefinitionsResponse)
	err := conn.Invoke(ctx, "/"+serviceName+"/FetchDefinitions", req, out, grpc.CallContentSubtype(codecName))
	return out, err
}

// JoinCluster invokes the JoinCluster RPC against conn.
func JoinCluster(ctx context.Context, conn *grpc.ClientConn, req *JoinRequest) (*JoinResponse, error) {
	out := new(JoinResponse)
	err := conn.Invoke(ctx, "/"+serviceName+"/JoinCluster", req, out, grpc.CallContentSubtype(codecName))
	return out, err
}

// RequestCertificate invokes the RequestCertificate RPC against conn.
func RequestCertificate(ctx context.Context, conn *grpc.ClientConn, req *CertRequest) (*CertResponse, error) {
	out := new(CertResponse)
	err := conn.Invoke(ctx, "/"+serviceName+"/RequestCertificate", req, out, grpc.CallContentSubtype(codecName))
	return out, err
}
