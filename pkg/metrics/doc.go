/*
Package metrics provides Prometheus metrics collection and exposition for the
scheduling daemon.

Gauges and counters cover the registry (instances by service/stored-state),
schedule counts, Raft leadership/log position, gRPC dispatch outcomes,
requested-action counts and error kinds, and maintenance-window reconciliation
cycles. Collector samples the orchestrator's replicated state on a ticker;
Handler exposes the registry over HTTP for scraping.
*/
package metrics
