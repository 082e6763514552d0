/*
Package security provides the mutual-TLS certificate authority used to
secure orchestrator-runner gRPC traffic.

CertAuthority issues and persists a self-signed root plus per-node leaf
certificates (one per manager, one per runner) through the same store the
orchestrator's replicated state lives in, so a newly-elected leader or a
newly-joined node can always load the existing CA rather than mint a second
one. certs.go holds the file-system side of that lifecycle: writing issued
certificates and the CA root to disk in the locations the daemon's gRPC
server and client dial config expect.
*/
package security
