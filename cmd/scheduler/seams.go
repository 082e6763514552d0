package main

import (
	"fmt"

	"github.com/cuemby/instance-scheduler/pkg/adapters"
	"github.com/cuemby/instance-scheduler/pkg/rolecache"
	"github.com/cuemby/instance-scheduler/pkg/runner"
	"github.com/cuemby/instance-scheduler/pkg/types"
)

// unimplementedAssumeFunc is the role-assumption seam's default wiring: the
// cloud SDK clients and the credential/role-assumption plumbing behind them
// are out of scope for this module (adapters are interfaces plus an
// in-memory fake, never a live cloud SDK client). An operator embedding
// this daemon against a real account supplies their own rolecache.AssumeFunc
// when they wire up their own adapters; this default just reports that
// nothing has been configured rather than silently pretending to succeed.
func unimplementedAssumeFunc(account, roleARN string) (*rolecache.Session, error) {
	return nil, fmt.Errorf("no role-assumption backend configured for account %s (role %s)", account, roleARN)
}

// emptyAdaptersFactory mirrors unimplementedAssumeFunc for the adapter side:
// it returns a runner.AdapterFactory that always yields an empty
// runner.Adapters bundle, so a target with no adapter wired reports
// ErrUnsupportedResource per resource rather than panicking. Swap this out
// (or the fake-backed factory below, selected by --adapters fake) for a real
// factory once an operator-supplied adapter implementation exists.
func emptyAdaptersFactory(svc types.Service) runner.AdapterFactory {
	return func(session *rolecache.Session) runner.Adapters {
		return runner.Adapters{}
	}
}

// fakeAdaptersFactory backs every target with the in-memory fakes, so
// `scheduler run --adapters fake` and `scheduler runner --adapters fake` can
// exercise a full dispatch cycle without any cloud credentials at all. The
// evaluate and validate subcommands call no adapters.
func fakeAdaptersFactory(svc types.Service) runner.AdapterFactory {
	switch svc {
	case types.ServiceEC2:
		return func(*rolecache.Session) runner.Adapters {
			return runner.Adapters{Instances: adapters.NewFakeEC2(nil)}
		}
	case types.ServiceRDS:
		return func(*rolecache.Session) runner.Adapters {
			return runner.Adapters{Instances: adapters.NewFakeRDS(nil)}
		}
	case types.ServiceAutoScaling:
		return func(*rolecache.Session) runner.Adapters {
			return runner.Adapters{ASG: adapters.NewFakeASG(nil)}
		}
	default:
		return emptyAdaptersFactory(svc)
	}
}

// alwaysAssume is a rolecache.AssumeFunc that succeeds immediately with an
// empty session, for use alongside fakeAdaptersFactory when no real
// cross-account role assumption is needed.
func alwaysAssume(account, roleARN string) (*rolecache.Session, error) {
	return &rolecache.Session{Account: account, RoleARN: roleARN}, nil
}
