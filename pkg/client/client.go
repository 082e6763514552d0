package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/rpc"
	"github.com/cuemby/instance-scheduler/pkg/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps a connection to the orchestrator's gRPC endpoint, used by
// runners to poll for and report dispatch work and by the CLI for cluster
// administration.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a new client with mTLS, using an existing node
// certificate (role "cli" or "runner" depending on the cert directory
// passed by the caller's environment).
func NewClient(addr string) (*Client, error) {
	return newClientForRole(addr, "cli")
}

func newClientForRole(addr, role string) (*Client, error) {
	certDir, err := security.GetCertDir(role, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get cert directory: %w", err)
	}

	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("%s certificate not found at %s. Connect once with a join token to request a certificate from the orchestrator", role, certDir)
	}

	conn, err := connectWithMTLS(addr, certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to connect with mTLS: %w", err)
	}

	return &Client{conn: conn}, nil
}

// NewClientWithToken creates a new client, requesting a certificate with a
// join token first if one is not already on disk.
func NewClientWithToken(addr, nodeID, role, token string) (*Client, error) {
	certDir, err := security.GetCertDir(role, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cert directory: %w", err)
	}

	if !security.CertExists(certDir) {
		if err := requestCertificate(addr, nodeID, role, token, certDir); err != nil {
			return nil, fmt.Errorf("failed to request certificate: %w", err)
		}
	}

	conn, err := connectWithMTLS(addr, certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to orchestrator: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Dispatch polls the orchestrator for work on one scheduling target.
func (c *Client) Dispatch(ctx context.Context, req *rpc.DispatchRequest) (*rpc.DispatchRequest, error) {
	return rpc.Dispatch(ctx, c.conn, req)
}

// ReportResult reports a completed dispatch cycle back to the orchestrator.
func (c *Client) ReportResult(ctx context.Context, res *rpc.DispatchResult) (*rpc.DispatchResult, error) {
	return rpc.ReportResult(ctx, c.conn, res)
}

// FetchDefinitions fetches specific schedules/periods by name, used by a
// runner to hydrate definitions a Dispatch response omitted because the
// inlined payload would have exceeded the dispatch size ceiling.
func (c *Client) FetchDefinitions(ctx context.Context, req *rpc.FetchDefinitionsRequest) (*rpc.FetchDefinitionsResponse, error) {
	return rpc.FetchDefinitions(ctx, c.conn, req)
}

// JoinCluster joins this node (an additional orchestrator replica) to the
// Raft quorum.
func (c *Client) JoinCluster(nodeID, bindAddr, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := rpc.JoinCluster(ctx, c.conn, &rpc.JoinRequest{
		NodeID:   nodeID,
		BindAddr: bindAddr,
		Token:    token,
	})
	return err
}

// requestCertificate requests a certificate from the orchestrator using a
// join token, before any client certificate exists.
func requestCertificate(addr, nodeID, role, token, certDir string) error {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to orchestrator: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := rpc.RequestCertificate(ctx, conn, &rpc.CertRequest{
		NodeID: nodeID,
		Role:   role,
		Token:  token,
	})
	if err != nil {
		return fmt.Errorf("failed to request certificate: %w", err)
	}

	if err := os.MkdirAll(certDir, 0700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}

	if err := os.WriteFile(certDir+"/node.crt", resp.CertPEM, 0600); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(certDir+"/node.key", resp.KeyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(certDir+"/ca.crt", resp.CACertPEM, 0644); err != nil {
		return fmt.Errorf("failed to write CA certificate: %w", err)
	}

	return nil
}

// connectWithMTLS establishes a gRPC connection with mTLS.
func connectWithMTLS(addr, certDir string) (*grpc.ClientConn, error) {
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      certPool,
		MinVersion:   tls.VersionTLS13,
	}

	creds := credentials.NewTLS(tlsConfig)
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to dial orchestrator: %w", err)
	}

	return conn, nil
}
