/*
Package client is a thin Go wrapper around pkg/rpc's SchedulerService,
used by runners to Dispatch/ReportResult against the orchestrator and by
the CLI for cluster administration (JoinCluster, certificate bootstrap).

NewClient assumes a client certificate already exists on disk for the
caller's role; NewClientWithToken requests one first via RequestCertificate
if it does not. All connections use mTLS once a certificate is available;
only the one-time certificate request itself is made over an unauthenticated
channel, secured by the join token rather than a client certificate.
*/
package client
