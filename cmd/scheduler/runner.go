package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/runner"
	"github.com/cuemby/instance-scheduler/pkg/types"
	"github.com/spf13/cobra"
)

// runnerCmd starts a standalone per-target runner: the split-deployment
// alternative to the orchestrator's embedded dispatch loop, dialing in over
// mTLS gRPC instead of running in-process against the same manager.
var runnerCmd = &cobra.Command{
	Use:   "runner",
	Short: "Run a standalone per-target runner that dials an orchestrator",
	Long: `Start a runner serving exactly one (account, region, service) target.
It polls the orchestrator over mTLS gRPC on the configured interval, running
one dispatch/evaluate/report cycle per poll until interrupted. Use this for
a split deployment; the embedded "run" daemon already runs this same cycle
in-process for every target it discovers.`,
	RunE: runStandaloneRunner,
}

func init() {
	runnerCmd.Flags().String("manager", "", "Orchestrator address to dial (required)")
	runnerCmd.Flags().String("token", "", "Join token issued by the orchestrator (required)")
	runnerCmd.Flags().String("node-id", "", "Unique node ID for this runner (required)")
	runnerCmd.Flags().String("account", "", "Target cloud account ID (required)")
	runnerCmd.Flags().String("region", "", "Target cloud region (required)")
	runnerCmd.Flags().String("service", "", "Target service: ec2, rds, or autoscaling (required)")
	runnerCmd.Flags().String("role-arn", "", "Cross-account role ARN to assume in the target account")
	runnerCmd.Flags().String("adapters", "none", "Adapter backend: none (report unsupported) or fake (in-memory, for demos/dry-runs)")
	runnerCmd.Flags().Duration("poll-interval", 5*time.Minute, "Interval between dispatch cycles")
	runnerCmd.Flags().Duration("target-budget", 4*time.Minute, "Wall-clock budget per cycle before it is cut short")
	for _, f := range []string{"manager", "token", "node-id", "account", "region", "service"} {
		_ = runnerCmd.MarkFlagRequired(f)
	}
}

func runStandaloneRunner(cmd *cobra.Command, args []string) error {
	managerAddr, _ := cmd.Flags().GetString("manager")
	token, _ := cmd.Flags().GetString("token")
	nodeID, _ := cmd.Flags().GetString("node-id")
	account, _ := cmd.Flags().GetString("account")
	region, _ := cmd.Flags().GetString("region")
	serviceFlag, _ := cmd.Flags().GetString("service")
	roleARN, _ := cmd.Flags().GetString("role-arn")
	adapterBackend, _ := cmd.Flags().GetString("adapters")
	pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
	targetBudget, _ := cmd.Flags().GetDuration("target-budget")

	svc := types.Service(serviceFlag)
	switch svc {
	case types.ServiceEC2, types.ServiceRDS, types.ServiceAutoScaling:
	default:
		return fmt.Errorf("--service must be one of ec2, rds, autoscaling (got %q)", serviceFlag)
	}

	assume := unimplementedAssumeFunc
	adaptersFor := emptyAdaptersFactory(svc)
	if adapterBackend == "fake" {
		assume = alwaysAssume
		adaptersFor = fakeAdaptersFactory(svc)
	}

	r, err := runner.New(runner.Config{
		NodeID:          nodeID,
		ManagerAddr:     managerAddr,
		JoinToken:       token,
		Account:         account,
		Region:          region,
		Service:         svc,
		RoleARN:         roleARN,
		PollInterval:    pollInterval,
		WallClockBudget: targetBudget,
	}, assume, adaptersFor)
	if err != nil {
		return fmt.Errorf("start runner: %w", err)
	}
	defer r.Close()

	fmt.Printf("✓ Runner serving %s/%s/%s against %s\n", account, region, svc, managerAddr)
	fmt.Println("Press Ctrl+C to stop.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := r.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("runner stopped: %w", err)
	}
	fmt.Println("✓ Runner stopped")
	return nil
}
