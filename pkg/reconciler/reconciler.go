// Package reconciler drives the orchestrator's embedded dispatch loop: on
// a fixed interval it discovers every (account, region, service) target
// with at least one registered instance, and runs each target's cycle
// through pkg/runner, bounded by a worker-pool size so a slow or stuck
// target cannot starve the rest.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/api"
	"github.com/cuemby/instance-scheduler/pkg/log"
	"github.com/cuemby/instance-scheduler/pkg/manager"
	"github.com/cuemby/instance-scheduler/pkg/rolecache"
	"github.com/cuemby/instance-scheduler/pkg/rpc"
	"github.com/cuemby/instance-scheduler/pkg/runner"
	"github.com/cuemby/instance-scheduler/pkg/types"
	"github.com/rs/zerolog"
)

// target identifies one (account, region, service) scheduling target.
type target struct {
	account string
	region  string
	service types.Service
}

// Driver runs the orchestrator's embedded, in-process dispatch loop. It is
// the default deployment mode: every target's runner cycle executes as a
// goroutine against the same manager the Driver reads from, with no
// network hop, leaving the standalone `scheduler runner` command (which
// dials in over pkg/rpc instead) for split deployments.
type Driver struct {
	manager  *manager.Manager
	server   *api.Server
	newAd    func(svc types.Service) runner.AdapterFactory
	assume   rolecache.AssumeFunc
	roleARNs func(account string) string

	interval    time.Duration
	poolSize    int
	cycleBudget time.Duration

	logger zerolog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config configures a Driver. AdaptersFor builds the per-service adapter
// bundle for a target's assumed session; RoleARNFor resolves the
// cross-account role to assume for an account, typically from a config
// document mapping accounts to roles.
type Config struct {
	Interval        time.Duration
	PoolSize        int
	TargetBudget    time.Duration
	Assume          rolecache.AssumeFunc
	RoleARNFor      func(account string) string
	AdaptersFor     func(svc types.Service) runner.AdapterFactory
}

// New creates a Driver that dispatches against mgr's registry and srv's
// Dispatch/ReportResult handlers directly (bypassing gRPC).
func New(mgr *manager.Manager, srv *api.Server, cfg Config) *Driver {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}
	if cfg.TargetBudget <= 0 {
		cfg.TargetBudget = 4 * time.Minute
	}
	return &Driver{
		manager:     mgr,
		server:      srv,
		newAd:       cfg.AdaptersFor,
		assume:      cfg.Assume,
		roleARNs:    cfg.RoleARNFor,
		interval:    cfg.Interval,
		poolSize:    cfg.PoolSize,
		cycleBudget: cfg.TargetBudget,
		logger:      log.WithComponent("reconciler"),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the dispatch loop in a background goroutine.
func (d *Driver) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop signals the dispatch loop to exit and waits for the in-flight
// cycle (if any) to finish.
func (d *Driver) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

func (d *Driver) run() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info().Dur("interval", d.interval).Int("pool_size", d.poolSize).Msg("dispatch loop started")

	for {
		select {
		case <-ticker.C:
			d.dispatchAll()
		case <-d.stopCh:
			d.logger.Info().Msg("dispatch loop stopped")
			return
		}
	}
}

// dispatchAll discovers every current target and runs each one's cycle,
// bounded by poolSize concurrent goroutines. Only the leader dispatches:
// on a follower, manager.IsLeader is false and dispatchAll returns before
// discovering any targets.
func (d *Driver) dispatchAll() {
	if !d.manager.IsLeader() {
		return
	}

	targets, err := d.targets()
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to discover dispatch targets")
		return
	}

	sem := make(chan struct{}, d.poolSize)
	var wg sync.WaitGroup
	for _, t := range targets {
		t := t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			d.dispatchOne(t)
		}()
	}
	wg.Wait()
}

// targets groups every registered instance by (account, region, service).
func (d *Driver) targets() ([]target, error) {
	instances, err := d.manager.ListRegisteredInstances()
	if err != nil {
		return nil, fmt.Errorf("list registered instances: %w", err)
	}
	return groupTargets(instances), nil
}

// groupTargets dedups a registry listing down to its distinct
// (account, region, service) targets, preserving first-seen order.
func groupTargets(instances []*types.RegisteredInstance) []target {
	seen := map[target]bool{}
	var out []target
	for _, inst := range instances {
		t := target{account: inst.Account, region: inst.Region, service: inst.Service}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// dispatchOne runs one target's runner cycle to completion, logging
// (rather than propagating) any failure so one bad target never blocks
// the pool's other goroutines.
func (d *Driver) dispatchOne(t target) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cycleBudget)
	defer cancel()

	roleARN := ""
	if d.roleARNs != nil {
		roleARN = d.roleARNs(t.account)
	}

	newAd := func(s *rolecache.Session) runner.Adapters {
		if d.newAd == nil {
			return runner.Adapters{}
		}
		return d.newAd(t.service)(s)
	}

	r := runner.NewWithClient(runner.Config{
		Account:         t.account,
		Region:          t.region,
		Service:         t.service,
		RoleARN:         roleARN,
		WallClockBudget: d.cycleBudget,
	}, d.assume, newAd, &localTransport{server: d.server})

	if err := r.RunCycle(ctx); err != nil {
		d.logger.Error().
			Str("account", t.account).
			Str("region", t.region).
			Str("service", string(t.service)).
			Err(err).
			Msg("target dispatch cycle failed")
	}
}

// localTransport satisfies runner.Transport by invoking the orchestrator's
// RPC handlers directly, in-process, skipping the gRPC/mTLS hop a
// standalone runner would otherwise need.
type localTransport struct {
	server *api.Server
}

func (l *localTransport) Dispatch(ctx context.Context, req *rpc.DispatchRequest) (*rpc.DispatchRequest, error) {
	return l.server.Dispatch(ctx, req)
}

func (l *localTransport) ReportResult(ctx context.Context, res *rpc.DispatchResult) (*rpc.DispatchResult, error) {
	return l.server.ReportResult(ctx, res)
}

func (l *localTransport) FetchDefinitions(ctx context.Context, req *rpc.FetchDefinitionsRequest) (*rpc.FetchDefinitionsResponse, error) {
	return l.server.FetchDefinitions(ctx, req)
}

func (l *localTransport) Close() error { return nil }
