/*
Package reconciler implements the orchestrator's embedded dispatch loop,
the default way scheduling cycles run: a single Driver ticks on a fixed
interval, discovers every (account, region, service) target that has at
least one registered instance, and runs each target's cycle through
pkg/runner as a pooled goroutine — mirroring the teacher's ticker-driven
cycle shape, just with cloud targets in place of cluster nodes.

Only the Raft leader dispatches. A follower's Driver still ticks, but
dispatchAll short-circuits on manager.IsLeader, and the embedded
transport's underlying api.Server.Dispatch call would reject a non-leader
anyway.

The embedded transport (localTransport) calls the orchestrator's own
Dispatch/ReportResult handlers in-process, skipping the gRPC/mTLS hop a
split, standalone `scheduler runner` deployment uses instead — both paths
exercise the identical pkg/runner cycle logic, so a target behaves the
same way regardless of which deployment mode serves it.
*/
package reconciler
