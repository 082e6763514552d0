package manager

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/client"
	"github.com/cuemby/instance-scheduler/pkg/events"
	"github.com/cuemby/instance-scheduler/pkg/log"
	"github.com/cuemby/instance-scheduler/pkg/metrics"
	"github.com/cuemby/instance-scheduler/pkg/security"
	"github.com/cuemby/instance-scheduler/pkg/storage"
	"github.com/cuemby/instance-scheduler/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Manager is the scheduler orchestrator node: it owns the replicated
// registry/schedule/period state via Raft, issues mTLS identities for
// runners, and is the only role that mutates state (runners are
// read-mostly — they write back only through Apply).
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft         *raft.Raft
	fsm          *SchedulerFSM
	store        storage.Store
	tokenManager *TokenManager
	ca           *security.CertAuthority
	eventBroker  *events.Broker
}

// Config holds configuration for creating a Manager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// NewManager creates a new Manager instance.
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	fsm := NewSchedulerFSM(store)
	tokenManager := NewTokenManager()

	// The CA's root key is encrypted at rest under a key derived from the
	// node ID. Every manager in a cluster must derive the same key, since
	// a follower loads the CA (rather than generating its own) on Join.
	clusterKey := security.DeriveKeyFromClusterID(cfg.NodeID)
	if err := security.SetClusterEncryptionKey(clusterKey); err != nil {
		return nil, fmt.Errorf("failed to set cluster encryption key: %w", err)
	}

	ca := security.NewCertAuthority(store)

	eventBroker := events.NewBroker()
	eventBroker.Start()

	m := &Manager{
		nodeID:       cfg.NodeID,
		bindAddr:     cfg.BindAddr,
		dataDir:      cfg.DataDir,
		fsm:          fsm,
		store:        store,
		ca:           ca,
		tokenManager: tokenManager,
		eventBroker:  eventBroker,
	}

	return m, nil
}

// Bootstrap initializes a new single-node Raft cluster.
func (m *Manager) Bootstrap() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)

	// Hashicorp Raft's defaults are tuned for WAN deployments. The
	// orchestrator runs LAN-adjacent to its peers, so tighten these for
	// faster leader failover.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStorePath := filepath.Join(m.dataDir, "raft-log.db")
	logStore, err := raftboltdb.NewBoltStore(logStorePath)
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}

	stableStorePath := filepath.Join(m.dataDir, "raft-stable.db")
	stableStore, err := raftboltdb.NewBoltStore(stableStorePath)
	if err != nil {
		return fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: config.LocalID, Address: transport.LocalAddr()},
		},
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}

	if err := m.initializeCA(); err != nil {
		return fmt.Errorf("failed to initialize CA: %w", err)
	}

	log.Logger.Info().Str("node_id", m.nodeID).Msg("cluster bootstrapped")
	return nil
}

// Join adds this manager to an existing cluster.
func (m *Manager) Join(leaderAddr string, token string) error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStorePath := filepath.Join(m.dataDir, "raft-log.db")
	logStore, err := raftboltdb.NewBoltStore(logStorePath)
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}

	stableStorePath := filepath.Join(m.dataDir, "raft-stable.db")
	stableStore, err := raftboltdb.NewBoltStore(stableStorePath)
	if err != nil {
		return fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r

	log.Logger.Info().Str("leader", leaderAddr).Msg("contacting leader to join cluster")

	c, err := client.NewClientWithToken(leaderAddr, m.nodeID, "manager", token)
	if err != nil {
		return fmt.Errorf("failed to connect to leader: %w", err)
	}
	defer c.Close()

	if err := c.JoinCluster(m.nodeID, m.bindAddr, token); err != nil {
		return fmt.Errorf("failed to join cluster via RPC: %w", err)
	}
	log.Logger.Info().Msg("joined cluster")

	// The CA is already initialized by the bootstrap node; a follower
	// loads it from the replicated store rather than minting its own.
	if err := m.ca.LoadFromStore(); err != nil {
		return fmt.Errorf("failed to load CA: %w", err)
	}
	log.Logger.Info().Msg("loaded certificate authority from cluster")

	return nil
}

// AddVoter adds a new manager node to the Raft cluster.
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}

	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %w", err)
	}

	log.Logger.Info().Str("node_id", nodeID).Str("address", address).Msg("added voter")
	return nil
}

// RemoveServer removes a server from the Raft cluster.
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}

	future := m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to remove server: %w", err)
	}
	return nil
}

// GetClusterServers returns information about all servers in the Raft cluster.
func (m *Manager) GetClusterServers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}

	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader returns true if this manager is the Raft leader.
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// GetRaftStats returns Raft statistics, consumed by pkg/metrics's collector.
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}

	stats := make(map[string]interface{})
	stats["state"] = m.raft.State().String()
	stats["last_log_index"] = m.raft.LastIndex()
	stats["applied_index"] = m.raft.AppliedIndex()
	stats["leader"] = string(m.raft.Leader())

	configFuture := m.raft.GetConfiguration()
	if err := configFuture.Error(); err == nil {
		stats["peers"] = uint64(len(configFuture.Configuration().Servers))
	} else {
		stats["peers"] = uint64(0)
	}

	return stats
}

// GetEventBroker returns the event broker.
func (m *Manager) GetEventBroker() *events.Broker {
	return m.eventBroker
}

// PublishEvent publishes an event to all subscribers.
func (m *Manager) PublishEvent(event *events.Event) {
	if m.eventBroker != nil {
		m.eventBroker.Publish(event)
	}
}

// Apply submits a command to the Raft cluster and waits for it to commit.
func (m *Manager) Apply(cmd Command) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftCommitDuration)

	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply command: %w", err)
	}

	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}

	return nil
}

func applyJSON(m *Manager, op string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: op, Data: data})
}

// PutRegisteredInstance upserts a resource's registry entry.
func (m *Manager) PutRegisteredInstance(inst *types.RegisteredInstance) error {
	return applyJSON(m, "put_registered_instance", inst)
}

// DeleteRegisteredInstance removes a resource from the registry.
func (m *Manager) DeleteRegisteredInstance(account, region string, service types.Service, resourceType types.ResourceType, resourceID string) error {
	return applyJSON(m, "delete_registered_instance", registryDeleteKey{
		Account: account, Region: region, Service: service,
		ResourceType: resourceType, ResourceID: resourceID,
	})
}

// PutSchedule upserts a schedule definition.
func (m *Manager) PutSchedule(s *types.Schedule) error {
	return applyJSON(m, "put_schedule", s)
}

// DeleteSchedule removes a schedule definition by name.
func (m *Manager) DeleteSchedule(name string) error {
	return applyJSON(m, "delete_schedule", name)
}

// PutPeriod upserts a period definition.
func (m *Manager) PutPeriod(p *types.Period) error {
	return applyJSON(m, "put_period", p)
}

// DeletePeriod removes a period definition by name.
func (m *Manager) DeletePeriod(name string) error {
	return applyJSON(m, "delete_period", name)
}

// PutMaintenanceWindow upserts an entry in the maintenance-window mirror.
func (m *Manager) PutMaintenanceWindow(w types.MaintenanceWindow) error {
	return applyJSON(m, "put_maintenance_window", w)
}

// DeleteMaintenanceWindow removes an entry from the maintenance-window mirror.
func (m *Manager) DeleteMaintenanceWindow(account, region, name, windowID string) error {
	return applyJSON(m, "delete_maintenance_window", mwDeleteKey{
		Account: account, Region: region, Name: name, WindowID: windowID,
	})
}

// GetRegisteredInstance reads a single registry entry. Reads bypass Raft
// and go straight to the local store: any manager (leader or follower) can
// serve them since Raft guarantees all members converge on the same state.
func (m *Manager) GetRegisteredInstance(account, region string, service types.Service, resourceType types.ResourceType, resourceID string) (*types.RegisteredInstance, error) {
	return m.store.GetRegisteredInstance(account, region, service, resourceType, resourceID)
}

// ListRegisteredInstancesByAccount lists every registered resource in an account.
func (m *Manager) ListRegisteredInstancesByAccount(account string) ([]*types.RegisteredInstance, error) {
	return m.store.ListRegisteredInstancesByAccount(account)
}

// ListRegisteredInstancesByTarget lists a target's (account, region,
// service) registered resources, the unit a runner dispatch operates on.
func (m *Manager) ListRegisteredInstancesByTarget(account, region string, service types.Service) ([]*types.RegisteredInstance, error) {
	return m.store.ListRegisteredInstancesByTarget(account, region, service)
}

// ListRegisteredInstances lists every registered resource across all targets.
func (m *Manager) ListRegisteredInstances() ([]*types.RegisteredInstance, error) {
	return m.store.ListRegisteredInstances()
}

// GetSchedule reads a schedule by name.
func (m *Manager) GetSchedule(name string) (*types.Schedule, error) {
	return m.store.GetSchedule(name)
}

// ListSchedules lists all schedule definitions.
func (m *Manager) ListSchedules() ([]*types.Schedule, error) {
	return m.store.ListSchedules()
}

// GetPeriod reads a period by name.
func (m *Manager) GetPeriod(name string) (*types.Period, error) {
	return m.store.GetPeriod(name)
}

// ListPeriods lists all period definitions.
func (m *Manager) ListPeriods() ([]*types.Period, error) {
	return m.store.ListPeriods()
}

// GetMaintenanceWindow reads one maintenance-window mirror entry.
func (m *Manager) GetMaintenanceWindow(account, region, name, windowID string) (*types.MaintenanceWindow, error) {
	return m.store.GetMaintenanceWindow(account, region, name, windowID)
}

// ListMaintenanceWindows lists the maintenance-window mirror entries for a region.
func (m *Manager) ListMaintenanceWindows(account, region string) ([]types.MaintenanceWindow, error) {
	return m.store.ListMaintenanceWindows(account, region)
}

// GenerateJoinToken issues a token allowing a new node to join the cluster.
// Only the leader may mint tokens: a follower's token would not be
// recognized after the next leader election invalidates its in-memory table.
func (m *Manager) GenerateJoinToken(role string) (*JoinToken, error) {
	if !m.IsLeader() {
		return nil, fmt.Errorf("not the leader, tokens can only be generated by the leader")
	}
	return m.tokenManager.GenerateToken(role, 24*time.Hour)
}

// ValidateJoinToken validates a join token and returns its role.
func (m *Manager) ValidateJoinToken(token string) (string, error) {
	return m.tokenManager.ValidateToken(token)
}

// ValidateToken is an alias of ValidateJoinToken.
func (m *Manager) ValidateToken(token string) (string, error) {
	return m.tokenManager.ValidateToken(token)
}

// Shutdown gracefully shuts down the manager.
func (m *Manager) Shutdown() error {
	if m.eventBroker != nil {
		m.eventBroker.Stop()
	}

	if m.raft != nil {
		future := m.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}

	return nil
}

// initializeCA initializes the Certificate Authority for a new cluster.
func (m *Manager) initializeCA() error {
	if m.ca.IsInitialized() {
		log.Logger.Info().Msg("certificate authority already initialized")
		return nil
	}

	if err := m.ca.LoadFromStore(); err == nil {
		log.Logger.Info().Msg("loaded existing certificate authority")
		return nil
	}

	log.Logger.Info().Msg("initializing new certificate authority")
	if err := m.ca.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize CA: %w", err)
	}

	if err := m.ca.SaveToStore(); err != nil {
		return fmt.Errorf("failed to save CA: %w", err)
	}
	log.Logger.Info().Msg("certificate authority initialized and saved")

	certDir, err := security.GetCertDir("manager", m.nodeID)
	if err != nil {
		return fmt.Errorf("failed to get cert directory: %w", err)
	}

	if security.CertExists(certDir) {
		log.Logger.Info().Str("dir", certDir).Msg("manager certificate already exists")
		return nil
	}

	host, _, err := net.SplitHostPort(m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to parse bind address: %w", err)
	}
	var ipAddresses []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ipAddresses = []net.IP{ip}
	}

	dnsNames := []string{
		fmt.Sprintf("manager-%s", m.nodeID),
		"localhost",
	}

	cert, err := m.ca.IssueNodeCertificate(m.nodeID, "manager", dnsNames, ipAddresses)
	if err != nil {
		return fmt.Errorf("failed to issue node certificate: %w", err)
	}

	if err := security.SaveCertToFile(cert, certDir); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}

	caCert := m.ca.GetRootCACert()
	if err := security.SaveCACertToFile(caCert, certDir); err != nil {
		return fmt.Errorf("failed to save CA certificate: %w", err)
	}

	log.Logger.Info().Str("dir", certDir).Msg("manager certificate issued")
	return nil
}

// IssueCertificate issues a client certificate for a runner or CLI caller.
func (m *Manager) IssueCertificate(nodeID, role string) (*tls.Certificate, error) {
	if !m.ca.IsInitialized() {
		return nil, fmt.Errorf("CA not initialized")
	}
	// Clients connect to the manager, not vice versa, so no SANs are needed.
	return m.ca.IssueNodeCertificate(nodeID, role, nil, nil)
}

// CertToPEM converts a TLS certificate to PEM format.
func (m *Manager) CertToPEM(cert *tls.Certificate) (certPEM, keyPEM []byte, err error) {
	if cert == nil {
		return nil, nil, fmt.Errorf("certificate is nil")
	}

	certPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Certificate[0],
	})

	privateKey, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("private key is not RSA")
	}

	keyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	return certPEM, keyPEM, nil
}

// GetCACertPEM returns the CA certificate in PEM format.
func (m *Manager) GetCACertPEM() []byte {
	if !m.ca.IsInitialized() {
		return nil
	}

	caCertDER := m.ca.GetRootCACert()
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: caCertDER,
	})
}

// NodeID returns the manager's node ID.
func (m *Manager) NodeID() string {
	return m.nodeID
}
