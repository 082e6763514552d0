package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/api"
	"github.com/cuemby/instance-scheduler/pkg/config"
	"github.com/cuemby/instance-scheduler/pkg/log"
	"github.com/cuemby/instance-scheduler/pkg/manager"
	"github.com/cuemby/instance-scheduler/pkg/metrics"
	"github.com/cuemby/instance-scheduler/pkg/reconciler"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Cross-account, cross-region scheduler for cloud compute resources",
	Long: `scheduler starts and stops tagged cloud resources (VM instances, managed
database instances/clusters, auto-scaling groups) on user-defined recurring
schedules, across accounts and regions.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"scheduler version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runnerCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(evaluateCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the orchestrator daemon",
	Long: `Start the orchestrator: bootstrap a new cluster, or join an existing one,
then serve runner dispatch over mTLS gRPC and drive the embedded dispatch
loop until interrupted.`,
	RunE: runOrchestrator,
}

func init() {
	runCmd.Flags().String("node-id", "", "Unique node ID for this orchestrator replica (required)")
	runCmd.Flags().String("bind-addr", "127.0.0.1:8300", "Raft bind address")
	runCmd.Flags().String("api-addr", "127.0.0.1:8080", "gRPC API address runners dial")
	runCmd.Flags().String("data-dir", "", "Data directory (overrides daemon config file's data_dir)")
	runCmd.Flags().String("daemon-config", "", "Path to a daemon runtime config YAML file")
	runCmd.Flags().StringSlice("schedule-file", nil, "Path to a schedule/period YAML document; repeatable")
	runCmd.Flags().Bool("bootstrap", false, "Bootstrap a new single-node cluster instead of joining one")
	runCmd.Flags().String("join-leader", "", "Address of an existing orchestrator to join")
	runCmd.Flags().String("join-token", "", "Join token issued by the leader (required with --join-leader)")
	runCmd.Flags().String("adapters", "none", "Adapter backend for dispatch targets: none (report unsupported) or fake (in-memory, for demos/dry-runs)")
	_ = runCmd.MarkFlagRequired("node-id")
}

func runOrchestrator(cmd *cobra.Command, args []string) error {
	nodeID, _ := cmd.Flags().GetString("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	apiAddr, _ := cmd.Flags().GetString("api-addr")
	dataDirFlag, _ := cmd.Flags().GetString("data-dir")
	daemonConfigPath, _ := cmd.Flags().GetString("daemon-config")
	scheduleFiles, _ := cmd.Flags().GetStringSlice("schedule-file")
	bootstrap, _ := cmd.Flags().GetBool("bootstrap")
	joinLeader, _ := cmd.Flags().GetString("join-leader")
	joinToken, _ := cmd.Flags().GetString("join-token")
	adapterBackend, _ := cmd.Flags().GetString("adapters")

	if !bootstrap && joinLeader == "" {
		return fmt.Errorf("either --bootstrap or --join-leader/--join-token must be given")
	}

	daemonCfg, err := config.LoadDaemon(daemonConfigPath)
	if err != nil {
		return fmt.Errorf("load daemon config: %w", err)
	}
	if dataDirFlag != "" {
		daemonCfg.DataDir = dataDirFlag
	}

	mgr, err := manager.NewManager(&manager.Config{
		NodeID:   nodeID,
		BindAddr: bindAddr,
		DataDir:  daemonCfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	if bootstrap {
		if err := mgr.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
		fmt.Println("✓ Cluster bootstrapped")
	} else {
		if err := mgr.Join(joinLeader, joinToken); err != nil {
			return fmt.Errorf("join cluster: %w", err)
		}
		fmt.Printf("✓ Joined cluster via %s\n", joinLeader)
	}

	if err := loadScheduleFiles(mgr, scheduleFiles); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	apiServer, err := api.NewServer(mgr)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	apiServer.SetDispatchSizeCeiling(daemonCfg.DispatchSizeCeiling)

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(apiAddr); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()
	time.Sleep(200 * time.Millisecond)
	fmt.Printf("✓ gRPC API listening on %s\n", apiAddr)

	var metricsCollector *metrics.Collector
	if daemonCfg.MetricsEnabled {
		metricsCollector = metrics.NewCollector(mgr)
		metricsCollector.Start()

		metricsAddr := "127.0.0.1:9090"
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.Handle("/health", metrics.HealthHandler())
			mux.Handle("/ready", metrics.ReadyHandler())
			mux.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)
	}

	assume := unimplementedAssumeFunc
	adaptersFor := emptyAdaptersFactory
	if adapterBackend == "fake" {
		assume = alwaysAssume
		adaptersFor = fakeAdaptersFactory
	}

	driver := reconciler.New(mgr, apiServer, reconciler.Config{
		Interval:     daemonCfg.PollInterval,
		PoolSize:     daemonCfg.DispatchPoolSize,
		TargetBudget: daemonCfg.TargetBudget,
		Assume:       assume,
		AdaptersFor:  adaptersFor,
	})
	driver.Start()
	fmt.Println("✓ Dispatch loop started")

	if bootstrap {
		printJoinTokens(mgr, apiAddr)
	}

	fmt.Println("\nOrchestrator running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\n%v\n", err)
	}

	driver.Stop()
	if metricsCollector != nil {
		metricsCollector.Stop()
	}
	apiServer.Stop()
	if err := mgr.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Println("✓ Shutdown complete")
	return nil
}

func loadScheduleFiles(mgr *manager.Manager, paths []string) error {
	var loadErrs []error
	for _, path := range paths {
		doc, err := config.LoadDocument(path)
		if err != nil {
			loadErrs = append(loadErrs, err)
			continue
		}
		periods, errs := doc.Periods()
		loadErrs = append(loadErrs, errs...)
		for _, p := range periods {
			p := p
			if err := mgr.PutPeriod(&p); err != nil {
				loadErrs = append(loadErrs, fmt.Errorf("persist period %q: %w", p.Name, err))
			}
		}
		schedules, errs := doc.Schedules()
		loadErrs = append(loadErrs, errs...)
		for _, s := range schedules {
			s := s
			if err := mgr.PutSchedule(&s); err != nil {
				loadErrs = append(loadErrs, fmt.Errorf("persist schedule %q: %w", s.Name, err))
			}
		}
	}
	if len(loadErrs) == 0 {
		return nil
	}
	msg := fmt.Sprintf("%d schedule/period definitions skipped:", len(loadErrs))
	for _, e := range loadErrs {
		msg += "\n  - " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}

func printJoinTokens(mgr *manager.Manager, apiAddr string) {
	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Join Tokens (valid for 24 hours)")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if t, err := mgr.GenerateJoinToken("runner"); err == nil {
		fmt.Printf("\nRunner token:\n  %s\n", t.Token)
		fmt.Println("To start a standalone runner:")
		fmt.Printf("  scheduler runner --manager %s --token %s --node-id <id> --account <id> --region <region> --service ec2\n", apiAddr, t.Token)
	}
	if t, err := mgr.GenerateJoinToken("manager"); err == nil {
		fmt.Printf("\nManager (replica) token:\n  %s\n", t.Token)
		fmt.Println("To add another orchestrator replica:")
		fmt.Printf("  scheduler run --node-id <id> --join-leader %s --join-token %s\n", apiAddr, t.Token)
	}
	fmt.Println()
}
