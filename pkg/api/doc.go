/*
Package api implements the orchestrator's gRPC endpoint: pkg/rpc's
SchedulerService, served over mTLS using the cluster's certificate
authority (pkg/security).

Runners poll Dispatch for their target's current schedules/periods and
report completed cycles via ReportResult, which persists registry state
through the Manager and publishes scheduling-action events. JoinCluster
admits a new orchestrator or runner node after validating its join token.
Only the Raft leader serves writes; a follower returns FailedPrecondition
pointing at the current leader's address.

HealthServer exposes a plain HTTP /health, /ready, and /metrics surface
for process supervisors and Prometheus scraping, independent of the mTLS
gRPC listener.
*/
package api
