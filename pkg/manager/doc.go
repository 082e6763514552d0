/*
Package manager implements the orchestrator node: the control plane that
holds the replicated scheduling state (registry, schedules, periods, the
maintenance-window mirror) behind a Raft quorum.

A cluster of 1-7 orchestrators elects a leader via hashicorp/raft. All
state mutations (PutSchedule, PutRegisteredInstance, ...) go through
Manager.Apply, which replicates a Command through the raft log before the
SchedulerFSM applies it to the local BoltDB-backed store. Reads bypass
Raft and are served directly from the local store on any node, leader or
follower, since Raft guarantees they all converge on the same state.

The Manager also owns the cluster's mTLS certificate authority (issuing
leaf certificates to runners and CLI callers over the gRPC join flow) and
an in-process event broker to which scheduling actions are published as
they happen; nothing in this module subscribes to it by default.
*/
package manager
