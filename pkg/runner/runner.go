package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/adapters"
	"github.com/cuemby/instance-scheduler/pkg/client"
	"github.com/cuemby/instance-scheduler/pkg/decision"
	"github.com/cuemby/instance-scheduler/pkg/log"
	"github.com/cuemby/instance-scheduler/pkg/maintwindow"
	"github.com/cuemby/instance-scheduler/pkg/metrics"
	"github.com/cuemby/instance-scheduler/pkg/rolecache"
	"github.com/cuemby/instance-scheduler/pkg/rpc"
	"github.com/cuemby/instance-scheduler/pkg/schedule"
	"github.com/cuemby/instance-scheduler/pkg/schedulerr"
	"github.com/cuemby/instance-scheduler/pkg/types"
)

// Config describes one runner's fixed identity: the target it serves and
// how to reach the orchestrator.
type Config struct {
	NodeID      string
	ManagerAddr string
	JoinToken   string

	Account string
	Region  string
	Service types.Service
	RoleARN string

	// FallbackInstanceTypes is tried, in order, when a Start fails with a
	// capacity-insufficiency error on the instance's current type.
	// Nil/empty disables the fallback: the first failure is final.
	FallbackInstanceTypes []string

	PollInterval    time.Duration
	WallClockBudget time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Minute
	}
	if c.WallClockBudget <= 0 {
		c.WallClockBudget = 4 * time.Minute
	}
	return c
}

// Adapters bundles the per-service collaborators a runner drives. Exactly
// one of Instances/ASG is expected to be usable depending on cfg.Service;
// TypeModifier and MaintWindows are optional (nil disables Configure and
// maintenance-window support respectively).
type Adapters struct {
	Instances    adapters.InstanceAdapter
	TypeModifier adapters.TypeModifier
	ASG          adapters.ASGAdapter
	MaintWindows adapters.MaintenanceWindowAdapter
}

// Transport is the subset of *client.Client a runner needs. Defined as an
// interface so tests can exercise RunCycle against an in-memory fake
// instead of dialing a real orchestrator.
type Transport interface {
	Dispatch(ctx context.Context, req *rpc.DispatchRequest) (*rpc.DispatchRequest, error)
	ReportResult(ctx context.Context, res *rpc.DispatchResult) (*rpc.DispatchResult, error)
	FetchDefinitions(ctx context.Context, req *rpc.FetchDefinitionsRequest) (*rpc.FetchDefinitionsResponse, error)
	Close() error
}

// AdapterFactory builds the per-service adapters bound to a freshly
// assumed (or cached) cross-account session, called once per cycle before
// any provider call so adapters always operate with live credentials. The
// in-memory fakes in pkg/adapters ignore the session and can be wrapped in
// a factory that just returns a fixed Adapters value.
type AdapterFactory func(session *rolecache.Session) Adapters

// Runner drives one (account, region, service) scheduling target to
// completion on each poll.
type Runner struct {
	cfg   Config
	roles *rolecache.Cache
	newAd AdapterFactory

	transport Transport
}

// New creates a runner that dials the orchestrator with a role/token-based
// client, requesting a certificate first if the node has none yet.
func New(cfg Config, assume rolecache.AssumeFunc, newAd AdapterFactory) (*Runner, error) {
	cfg = cfg.withDefaults()

	c, err := client.NewClientWithToken(cfg.ManagerAddr, cfg.NodeID, "runner", cfg.JoinToken)
	if err != nil {
		return nil, fmt.Errorf("connect to orchestrator: %w", err)
	}

	return &Runner{
		cfg:       cfg,
		roles:     rolecache.New(assume),
		newAd:     newAd,
		transport: c,
	}, nil
}

// NewWithClient wires a runner against an already-connected transport, used
// by the embedded dispatch loop (pkg/reconciler), whose in-process transport
// calls the API server directly without gRPC, and by tests substituting a
// fake.
func NewWithClient(cfg Config, assume rolecache.AssumeFunc, newAd AdapterFactory, t Transport) *Runner {
	cfg = cfg.withDefaults()
	return &Runner{cfg: cfg, roles: rolecache.New(assume), newAd: newAd, transport: t}
}

// Close releases the runner's client connection, if it owns one.
func (r *Runner) Close() error {
	if r.transport != nil {
		return r.transport.Close()
	}
	return nil
}

// Run polls and executes dispatch cycles until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.RunCycle(ctx); err != nil {
			log.Logger.Error().
				Str("account", r.cfg.Account).
				Str("region", r.cfg.Region).
				Str("service", string(r.cfg.Service)).
				Err(err).
				Msg("runner: cycle failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle executes exactly one dispatch/evaluate/report cycle for the
// configured target. It never returns an error for a single resource's
// failure; only target-fatal conditions (role assumption, dispatch RPC
// failure) are surfaced to the caller.
func (r *Runner) RunCycle(ctx context.Context) error {
	target := r.cfg.Account + "/" + r.cfg.Region + "/" + string(r.cfg.Service)

	session, err := r.roles.Get(r.cfg.Account, r.cfg.RoleARN)
	if err != nil {
		metrics.RoleAssumptionsTotal.WithLabelValues(r.cfg.Account, "failure").Inc()
		return schedulerr.Wrap(schedulerr.KindRoleAssumption, err)
	}
	metrics.RoleAssumptionsTotal.WithLabelValues(r.cfg.Account, "success").Inc()
	ad := r.newAd(session)

	dispatchTimer := metrics.NewTimer()
	req := &rpc.DispatchRequest{
		Action:       "scheduler:run",
		Account:      r.cfg.Account,
		Region:       r.cfg.Region,
		Service:      r.cfg.Service,
		CurrentDT:    time.Now().UTC(),
		DispatchTime: time.Now().UTC(),
	}
	resp, err := r.transport.Dispatch(ctx, req)
	dispatchTimer.ObserveDurationVec(metrics.DispatchDuration, target)
	if err != nil {
		metrics.DispatchRequestsTotal.WithLabelValues(target, "error").Inc()
		return fmt.Errorf("dispatch: %w", err)
	}
	metrics.DispatchRequestsTotal.WithLabelValues(target, "ok").Inc()

	cycleCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.WallClockBudget > 0 {
		cycleCtx, cancel = context.WithTimeout(ctx, r.cfg.WallClockBudget)
		defer cancel()
	}

	schedules := make(map[string]*types.Schedule, len(resp.Schedules))
	for _, s := range resp.Schedules {
		schedules[s.Name] = s
	}
	periods := make(map[string]*types.Period, len(resp.Periods))
	for _, p := range resp.Periods {
		periods[p.Name] = p
	}
	r.hydrateMissingDefinitions(cycleCtx, target, resp.Instances, schedules, periods)
	lookup := func(name string) (types.Period, bool) {
		p, ok := periods[name]
		if !ok {
			return types.Period{}, false
		}
		return *p, true
	}

	result := &rpc.DispatchResult{
		Account: r.cfg.Account,
		Region:  r.cfg.Region,
		Service: r.cfg.Service,
	}

	mwNames := map[string]bool{}
	for _, s := range schedules {
		if s.UseMaintWindow {
			mwNames[s.Name] = true
		}
	}
	if len(mwNames) > 0 && ad.MaintWindows != nil {
		providerWindows, err := ad.MaintWindows.Describe(cycleCtx, r.cfg.Account, r.cfg.Region)
		if err != nil {
			log.Logger.Warn().Str("target", target).Err(err).Msg("runner: maintenance window describe failed")
		} else {
			result.ProviderMaintenanceWindows = providerWindows
			for name := range mwNames {
				result.MaintWindowNames = append(result.MaintWindowNames, name)
			}
		}
	}

	activeWindows := activeWindowsByScheduleName(resp.MaintenanceWindows, req.CurrentDT)
	runtimeInfo := r.describeAll(cycleCtx, ad, resp.Instances, target)

	evalTimer := metrics.NewTimer()
	for _, inst := range resp.Instances {
		before := *inst

		if runtimeInfo != nil {
			if _, present := runtimeInfo[inst.ResourceID]; !present {
				if inst.PendingPurge {
					result.Purged = append(result.Purged, rpc.PurgedResource{ResourceType: inst.ResourceType, ResourceID: inst.ResourceID})
					log.Logger.Info().Str("target", target).Str("resource_id", inst.ResourceID).
						Msg("runner: resource absent from describe for a second cycle, purging from registry")
				} else {
					inst.PendingPurge = true
					result.UpdatedInstances = append(result.UpdatedInstances, inst)
					log.Logger.Warn().Str("target", target).Str("resource_id", inst.ResourceID).
						Msg("runner: resource absent from describe, marking pending purge")
				}
				continue
			}
			if inst.PendingPurge {
				inst.PendingPurge = false
			}
		}

		rec := r.evaluateAndExecute(cycleCtx, ad, inst, schedules, lookup, activeWindows, req.CurrentDT)
		result.Actions = append(result.Actions, rec)
		if *inst != before {
			result.UpdatedInstances = append(result.UpdatedInstances, inst)
		}

		select {
		case <-cycleCtx.Done():
			result.FatalError = "wall-clock budget exhausted mid-cycle"
			goto report
		default:
		}
	}
report:
	evalTimer.ObserveDuration(metrics.EvaluationLatency)

	if _, err := r.transport.ReportResult(ctx, result); err != nil {
		return fmt.Errorf("report result: %w", err)
	}
	return nil
}

// describeAll fetches live runtime info for every instance in scope before
// any decision is made, per the orchestrator's per-target runner contract.
// It returns nil (rather than an empty map) when the describe call itself
// fails or no adapter is configured, so callers can tell "nothing is
// present" apart from "we don't know" and skip the presence check instead
// of treating a provider hiccup as mass deregistration.
func (r *Runner) describeAll(ctx context.Context, ad Adapters, instances []*types.RegisteredInstance, target string) map[string]adapters.RuntimeInfo {
	if len(instances) == 0 {
		return nil
	}
	ids := make([]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ResourceID
	}

	var (
		info map[string]adapters.RuntimeInfo
		err  error
	)
	switch {
	case r.cfg.Service == types.ServiceAutoScaling && ad.ASG != nil:
		info, err = ad.ASG.Describe(ctx, ids)
	case r.cfg.Service != types.ServiceAutoScaling && ad.Instances != nil:
		info, err = ad.Instances.Describe(ctx, ids)
	default:
		return nil
	}
	if err != nil {
		log.Logger.Warn().Str("target", target).Err(err).Msg("runner: describe failed, skipping presence check this cycle")
		return nil
	}
	return info
}

// hydrateMissingDefinitions fills in any schedule (and, transitively,
// period) referenced by instances but absent from schedules/periods — the
// case where the orchestrator omitted them from the dispatch payload for
// exceeding the dispatch size ceiling. It mutates schedules/periods in
// place and is a best-effort fill: a fetch failure just leaves the name
// missing, which evaluateAndExecute already reports as an unknown
// schedule/period.
func (r *Runner) hydrateMissingDefinitions(ctx context.Context, target string, instances []*types.RegisteredInstance, schedules map[string]*types.Schedule, periods map[string]*types.Period) {
	var missingSchedules []string
	seen := map[string]bool{}
	for _, inst := range instances {
		if inst.ScheduleName == "" || seen[inst.ScheduleName] {
			continue
		}
		seen[inst.ScheduleName] = true
		if _, ok := schedules[inst.ScheduleName]; !ok {
			missingSchedules = append(missingSchedules, inst.ScheduleName)
		}
	}
	if len(missingSchedules) > 0 {
		resp, err := r.transport.FetchDefinitions(ctx, &rpc.FetchDefinitionsRequest{ScheduleNames: missingSchedules})
		if err != nil {
			log.Logger.Warn().Str("target", target).Err(err).Msg("runner: fetch schedules failed")
		} else {
			for _, s := range resp.Schedules {
				schedules[s.Name] = s
			}
		}
	}

	var missingPeriods []string
	seenPeriods := map[string]bool{}
	for _, s := range schedules {
		for _, ref := range s.Periods {
			if seenPeriods[ref.PeriodName] {
				continue
			}
			seenPeriods[ref.PeriodName] = true
			if _, ok := periods[ref.PeriodName]; !ok {
				missingPeriods = append(missingPeriods, ref.PeriodName)
			}
		}
	}
	if len(missingPeriods) > 0 {
		resp, err := r.transport.FetchDefinitions(ctx, &rpc.FetchDefinitionsRequest{PeriodNames: missingPeriods})
		if err != nil {
			log.Logger.Warn().Str("target", target).Err(err).Msg("runner: fetch periods failed")
		} else {
			for _, p := range resp.Periods {
				periods[p.Name] = p
			}
		}
	}
}

// activeWindowsByScheduleName translates reconciled mirror rows into the
// per-schedule-name active-window lists C4 consumes, evaluating each
// window's synthetic schedule at dt.
func activeWindowsByScheduleName(windows []types.MaintenanceWindow, dt time.Time) map[string][]decision.MaintenanceWindowSchedule {
	out := map[string][]decision.MaintenanceWindowSchedule{}
	for _, w := range windows {
		synthetic, periods := maintwindow.ToSchedule(w)
		periodByName := make(map[string]types.Period, len(periods))
		for _, p := range periods {
			periodByName[p.Name] = p
		}
		lookup := func(name string) (types.Period, bool) {
			p, ok := periodByName[name]
			return p, ok
		}

		res, err := schedule.Evaluate(synthetic, dt, lookup)
		if err != nil {
			continue
		}
		out[w.Name] = append(out[w.Name], decision.MaintenanceWindowSchedule{Name: w.Name, State: res.State})
	}
	return out
}

// evaluateAndExecute runs C3+C4 for one registered instance and carries out
// the resulting action via the configured per-service adapter. It never
// panics or aborts the caller's loop; every failure becomes an ActionRecord
// with a populated Error. The instance's ErrorTag is not set here.
func (r *Runner) evaluateAndExecute(ctx context.Context, ad Adapters, inst *types.RegisteredInstance, schedules map[string]*types.Schedule, lookup schedule.PeriodLookup, activeWindows map[string][]decision.MaintenanceWindowSchedule, dt time.Time) rpc.ActionRecord {
	rec := rpc.ActionRecord{ResourceID: inst.ResourceID}

	sched, ok := schedules[inst.ScheduleName]
	if !ok {
		rec.Error = fmt.Sprintf("unknown schedule %q", inst.ScheduleName)
		return rec
	}

	sres, err := schedule.Evaluate(*sched, dt, lookup)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	outcome := decision.Decide(inst.StoredState, *sched, sres.State, activeWindows[sched.Name])
	rec.RequestedAction = outcome.Action

	if outcome.Action == types.ActionDoNothing {
		inst.StoredState = outcome.NewStored
		return rec
	}

	if err := r.executeAction(ctx, ad, inst, sched, sres, outcome); err != nil {
		rec.Error = err.Error()
		metrics.ActionErrorsTotal.WithLabelValues(string(inst.Service), classifyErr(err)).Inc()

		var exhausted *startFallbackExhaustedError
		if errors.As(err, &exhausted) {
			// Failure semantics: all fallback types failed, so the
			// instance is marked StartFailed and the cycle moves on
			// without raising — decision.Decide retries it as a plain
			// Start on the next cycle.
			inst.StoredState = types.InstanceStartFailed
		}
		return rec
	}

	rec.ActionTaken = true
	inst.StoredState = outcome.NewStored
	metrics.ActionsTotal.WithLabelValues(string(inst.Service), string(outcome.Action)).Inc()
	return rec
}

func classifyErr(err error) string {
	if kind, ok := schedulerr.KindOf(err); ok {
		return string(kind)
	}
	return "unknown"
}

// executeAction dispatches the action to the adapter matching inst.Service.
// Auto-scaling groups use the scheduled-action translation; VM-shaped
// resources (EC2, RDS) start/stop directly and optionally resize.
func (r *Runner) executeAction(ctx context.Context, ad Adapters, inst *types.RegisteredInstance, sched *types.Schedule, sres schedule.Result, outcome decision.Outcome) error {
	if inst.Service == types.ServiceAutoScaling {
		if ad.ASG == nil {
			return &adapters.ErrUnsupportedResource{ResourceID: inst.ResourceID, Reason: "no auto-scaling adapter configured"}
		}
		switch outcome.Action {
		case types.ActionStart:
			fingerprint, err := ad.ASG.PutScheduledAction(ctx, inst.ResourceID, *sched, nil)
			if err != nil {
				return err
			}
			inst.LastConfigured = &types.LastConfigured{LastUpdated: time.Now().UTC(), ScheduleHash: fingerprint}
			return nil
		case types.ActionStop:
			return ad.ASG.DeleteScheduledAction(ctx, inst.ResourceID)
		default:
			return nil
		}
	}

	if ad.Instances == nil {
		return &adapters.ErrUnsupportedResource{ResourceID: inst.ResourceID, Reason: "no instance adapter configured"}
	}

	switch outcome.Action {
	case types.ActionStart:
		if err := ad.Instances.Start(ctx, []string{inst.ResourceID}); err != nil {
			return r.startWithFallback(ctx, ad, inst, schedulerr.Wrap(schedulerr.KindInsufficientCapacity, err))
		}
	case types.ActionStop:
		return ad.Instances.Stop(ctx, []string{inst.ResourceID}, sched.Hibernate)
	}

	if sres.RequestedSize != "" && outcome.Action == types.ActionStart && ad.TypeModifier != nil {
		if err := ad.TypeModifier.ModifyType(ctx, inst.ResourceID, sres.RequestedSize); err != nil {
			return schedulerr.Wrap(schedulerr.KindInsufficientCapacity, err)
		}
	}

	return nil
}

// startFallbackExhaustedError marks a Start failure that survived retrying
// every configured fallback instance type. evaluateAndExecute recognizes
// it to move the instance to StartFailed instead of leaving stored_state
// untouched.
type startFallbackExhaustedError struct {
	resourceID string
	tried      []string
	cause      error
}

func (e *startFallbackExhaustedError) Error() string {
	return fmt.Sprintf("start %s: insufficient capacity on all fallback types %v: %v", e.resourceID, e.tried, e.cause)
}

func (e *startFallbackExhaustedError) Unwrap() error { return e.cause }

// startWithFallback retries a capacity-insufficient Start against each of
// r.cfg.FallbackInstanceTypes in order, reconfiguring the instance's type
// before each attempt. firstErr is returned unmodified if fallback is
// disabled (no TypeModifier, no fallback list, or the failure isn't a
// capacity error); if every fallback type also fails to start, the result
// is a *startFallbackExhaustedError wrapping firstErr.
func (r *Runner) startWithFallback(ctx context.Context, ad Adapters, inst *types.RegisteredInstance, firstErr error) error {
	if !schedulerr.Is(firstErr, schedulerr.KindInsufficientCapacity) || ad.TypeModifier == nil || len(r.cfg.FallbackInstanceTypes) == 0 {
		return firstErr
	}

	for _, candidate := range r.cfg.FallbackInstanceTypes {
		if err := ad.TypeModifier.ModifyType(ctx, inst.ResourceID, candidate); err != nil {
			continue
		}
		if err := ad.Instances.Start(ctx, []string{inst.ResourceID}); err == nil {
			return nil
		}
	}

	return &startFallbackExhaustedError{resourceID: inst.ResourceID, tried: r.cfg.FallbackInstanceTypes, cause: firstErr}
}
