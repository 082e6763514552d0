/*
Package runner implements the per-target runner half of the orchestrator
and runner pair: given one (account, region, service) scheduling target,
it assumes the target's cross-account role, polls the orchestrator for
that target's registered instances and schedules, evaluates each instance
through the schedule and decision functions, executes the resulting action
through a per-service adapter, and reports the outcome back.

A runner can run two ways. Embedded, the orchestrator's dispatch loop
(pkg/reconciler) constructs one Runner per target and calls RunCycle
directly with an in-process transport that calls the API server without
gRPC (NewWithClient) — this is the default and avoids a network hop per
cycle. Standalone, the `scheduler runner` CLI
command constructs a Runner with its own mTLS connection (New) for split
deployment across account boundaries or availability zones, polling on
Config.PollInterval via Run.

Role assumption is cached per account by pkg/rolecache; the runner never
talks to a cloud SDK directly, only to the AdapterFactory-constructed
Adapters bundle, so the whole per-target cycle can be exercised in tests
against pkg/adapters' in-memory fakes.
*/
package runner
