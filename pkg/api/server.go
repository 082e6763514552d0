package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/events"
	"github.com/cuemby/instance-scheduler/pkg/log"
	"github.com/cuemby/instance-scheduler/pkg/maintwindow"
	"github.com/cuemby/instance-scheduler/pkg/manager"
	"github.com/cuemby/instance-scheduler/pkg/metrics"
	"github.com/cuemby/instance-scheduler/pkg/rpc"
	"github.com/cuemby/instance-scheduler/pkg/schedulerr"
	"github.com/cuemby/instance-scheduler/pkg/security"
	"github.com/cuemby/instance-scheduler/pkg/types"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server implements rpc.SchedulerServer: the orchestrator's gRPC endpoint
// that runners poll for work and report results to.
type Server struct {
	manager             *manager.Manager
	grpc                *grpc.Server
	dispatchSizeCeiling int
}

// defaultDispatchSizeCeiling mirrors config.DefaultDaemon's value so a
// Server constructed without SetDispatchSizeCeiling still behaves
// sensibly.
const defaultDispatchSizeCeiling = 1000

// NewServer creates a new API server with mTLS.
func NewServer(mgr *manager.Manager) (*Server, error) {
	certDir, err := security.GetCertDir("manager", mgr.NodeID())
	if err != nil {
		return nil, fmt.Errorf("failed to get cert directory: %w", err)
	}

	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("manager certificate not found at %s - ensure cluster is initialized", certDir)
	}

	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load manager certificate: %w", err)
	}

	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)

	tlsConfig := &tls.Config{
		ClientAuth:   tls.RequestClientCert,
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    certPool,
		MinVersion:   tls.VersionTLS13,
	}

	creds := credentials.NewTLS(tlsConfig)
	grpcServer := grpc.NewServer(grpc.Creds(creds))

	s := &Server{manager: mgr, grpc: grpcServer, dispatchSizeCeiling: defaultDispatchSizeCeiling}
	grpcServer.RegisterService(&rpc.ServiceDesc, s)

	return s, nil
}

// SetDispatchSizeCeiling overrides the inline-vs-fetch threshold used by
// Dispatch, normally sourced from config.Daemon.DispatchSizeCeiling. A
// non-positive value disables the ceiling (always inline).
func (s *Server) SetDispatchSizeCeiling(n int) {
	s.dispatchSizeCeiling = n
}

// defaultPollingInterval and defaultMWLeadSlack bound how long a
// maintenance-window mirror row is treated as "possibly still running"
// before a delta is allowed to overwrite or delete it. Both are fixed
// conservative values; the daemon configuration in pkg/config does not
// change them.
const (
	defaultPollingInterval = 5 * time.Minute
	defaultMWLeadSlack     = 1 * time.Minute
)

func (s *Server) ensureLeader() error {
	if !s.manager.IsLeader() {
		leaderAddr := s.manager.LeaderAddr()
		if leaderAddr == "" {
			return status.Error(codes.Unavailable, "no leader elected yet")
		}
		return status.Errorf(codes.FailedPrecondition, "not the leader, current leader is at: %s", leaderAddr)
	}
	return nil
}

// Start starts the gRPC server.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	log.Logger.Info().Str("addr", addr).Msg("gRPC API listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

// Dispatch serves a runner's poll for work on one target. Only the leader
// dispatches: a follower would hand out a target's schedules without
// being able to accept the ReportResult write back through Raft.
func (s *Server) Dispatch(ctx context.Context, req *rpc.DispatchRequest) (*rpc.DispatchRequest, error) {
	if err := s.ensureLeader(); err != nil {
		return nil, err
	}

	instances, err := s.manager.ListRegisteredInstancesByTarget(req.Account, req.Region, req.Service)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list registered instances: %v", err)
	}

	scheduleNames := map[string]bool{}
	for _, inst := range instances {
		if inst.ScheduleName != "" {
			scheduleNames[inst.ScheduleName] = true
		}
	}

	out := &rpc.DispatchRequest{
		Action:       "scheduler:run",
		Account:      req.Account,
		Region:       req.Region,
		Service:      req.Service,
		CurrentDT:    time.Now().UTC(),
		DispatchTime: time.Now().UTC(),
		Instances:    instances,
	}

	periodNames := map[string]bool{}
	for name := range scheduleNames {
		sched, err := s.manager.GetSchedule(name)
		if err != nil {
			log.Logger.Warn().Str("schedule", name).Err(err).Msg("dispatch: schedule lookup failed, skipping")
			continue
		}
		out.Schedules = append(out.Schedules, sched)
		for _, ref := range sched.Periods {
			periodNames[ref.PeriodName] = true
		}
	}

	for name := range periodNames {
		p, err := s.manager.GetPeriod(name)
		if err != nil {
			log.Logger.Warn().Str("period", name).Err(err).Msg("dispatch: period lookup failed, skipping")
			continue
		}
		out.Periods = append(out.Periods, p)
	}

	// Above the dispatch size ceiling, omit the inlined definitions: the
	// runner fetches them on demand via FetchDefinitions instead. This is
	// the common case for large deployments, where inlining every
	// referenced schedule/period would risk exceeding the gRPC message
	// size the transport is comfortable with.
	if s.dispatchSizeCeiling > 0 && len(out.Schedules)+len(out.Periods) > s.dispatchSizeCeiling {
		log.Logger.Info().
			Str("account", req.Account).Str("region", req.Region).Str("service", string(req.Service)).
			Int("schedules", len(out.Schedules)).Int("periods", len(out.Periods)).
			Msg("dispatch: definitions exceed size ceiling, omitting inline")
		out.Schedules = nil
		out.Periods = nil
	}

	windows, err := s.manager.ListMaintenanceWindows(req.Account, req.Region)
	if err != nil {
		log.Logger.Warn().Str("account", req.Account).Str("region", req.Region).Err(err).Msg("dispatch: maintenance window lookup failed")
	} else {
		out.MaintenanceWindows = windows
	}

	return out, nil
}

// ReportResult persists a runner's completed-cycle actions back into the
// registry and publishes one scheduling-action event per action taken.
// A failure on one resource's write never aborts the rest of the report.
func (s *Server) ReportResult(ctx context.Context, res *rpc.DispatchResult) (*rpc.DispatchResult, error) {
	if err := s.ensureLeader(); err != nil {
		return nil, err
	}

	if len(res.ProviderMaintenanceWindows) > 0 || len(res.MaintWindowNames) > 0 {
		timer := metrics.NewTimer()
		inScope := make(map[string]bool, len(res.MaintWindowNames))
		for _, name := range res.MaintWindowNames {
			inScope[name] = true
		}
		if err := maintwindow.Reconcile(s.manager, res.Account, res.Region, res.ProviderMaintenanceWindows, inScope, time.Now().UTC(), defaultPollingInterval, defaultMWLeadSlack); err != nil {
			log.Logger.Warn().Str("account", res.Account).Str("region", res.Region).Err(err).Msg("report result: maintenance window reconciliation failed")
		} else {
			metrics.ReconciliationCyclesTotal.Inc()
		}
		timer.ObserveDuration(metrics.ReconciliationDuration)
	}

	for _, inst := range res.UpdatedInstances {
		if err := s.manager.PutRegisteredInstance(inst); err != nil {
			log.Logger.Warn().Str("resource_id", inst.ResourceID).Err(err).Msg("report result: registry write failed")
		}
	}

	for _, p := range res.Purged {
		if err := s.manager.DeleteRegisteredInstance(res.Account, res.Region, res.Service, p.ResourceType, p.ResourceID); err != nil {
			log.Logger.Warn().Str("resource_id", p.ResourceID).Err(err).Msg("report result: purge failed")
		}
	}

	for _, action := range res.Actions {
		if !action.ActionTaken {
			continue
		}

		s.manager.PublishEvent(&events.Event{
			ID:        uuid.New().String(),
			Type:      actionEventType(action.RequestedAction),
			Account:   res.Account,
			Region:    res.Region,
			Timestamp: time.Now(),
			Message:   fmt.Sprintf("%s %s in %s/%s", action.RequestedAction, action.ResourceID, res.Account, res.Region),
			Metadata: map[string]string{
				"service":     string(res.Service),
				"resource_id": action.ResourceID,
			},
		})
	}

	return res, nil
}

// FetchDefinitions serves a runner's on-demand lookup of schedules/periods
// that a Dispatch response omitted because they exceeded the size
// ceiling. A name with no matching store entry is silently omitted from
// the response; the runner treats that the same as an unknown
// schedule/period.
func (s *Server) FetchDefinitions(ctx context.Context, req *rpc.FetchDefinitionsRequest) (*rpc.FetchDefinitionsResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return nil, err
	}

	out := &rpc.FetchDefinitionsResponse{}
	for _, name := range req.ScheduleNames {
		sched, err := s.manager.GetSchedule(name)
		if err != nil {
			log.Logger.Warn().Str("schedule", name).Err(err).Msg("fetch definitions: schedule lookup failed, skipping")
			continue
		}
		out.Schedules = append(out.Schedules, sched)
	}
	for _, name := range req.PeriodNames {
		p, err := s.manager.GetPeriod(name)
		if err != nil {
			log.Logger.Warn().Str("period", name).Err(err).Msg("fetch definitions: period lookup failed, skipping")
			continue
		}
		out.Periods = append(out.Periods, p)
	}
	return out, nil
}

func actionEventType(action types.RequestedAction) events.EventType {
	switch action {
	case types.ActionStart:
		return events.EventInstanceStarted
	case types.ActionStop:
		return events.EventInstanceStopped
	case types.ActionConfigure:
		return events.EventInstanceConfigured
	default:
		return events.EventInstanceSkipped
	}
}

// JoinCluster admits a new node to the Raft quorum after validating its
// join token.
func (s *Server) JoinCluster(ctx context.Context, req *rpc.JoinRequest) (*rpc.JoinResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return nil, err
	}

	if _, err := s.manager.ValidateJoinToken(req.Token); err != nil {
		return nil, status.Errorf(codes.PermissionDenied, "%v", schedulerr.Wrap(schedulerr.KindValidation, err))
	}

	if err := s.manager.AddVoter(req.NodeID, req.BindAddr); err != nil {
		return nil, status.Errorf(codes.Internal, "add voter: %v", err)
	}

	return &rpc.JoinResponse{}, nil
}

// RequestCertificate issues an mTLS leaf certificate to a new node. The
// server's TLS config requests but does not require a client certificate,
// so this RPC is reachable before the caller has one; it authenticates
// purely via the one-time join token.
func (s *Server) RequestCertificate(ctx context.Context, req *rpc.CertRequest) (*rpc.CertResponse, error) {
	if _, err := s.manager.ValidateJoinToken(req.Token); err != nil {
		return nil, status.Errorf(codes.PermissionDenied, "invalid join token: %v", err)
	}

	cert, err := s.manager.IssueCertificate(req.NodeID, req.Role)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "issue certificate: %v", err)
	}

	certPEM, keyPEM, err := s.manager.CertToPEM(cert)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode certificate: %v", err)
	}

	return &rpc.CertResponse{
		CertPEM:   certPEM,
		KeyPEM:    keyPEM,
		CACertPEM: s.manager.GetCACertPEM(),
	}, nil
}
