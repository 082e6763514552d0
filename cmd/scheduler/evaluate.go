package main

import (
	"fmt"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/config"
	"github.com/cuemby/instance-scheduler/pkg/decision"
	"github.com/cuemby/instance-scheduler/pkg/schedule"
	"github.com/cuemby/instance-scheduler/pkg/types"
	"github.com/spf13/cobra"
)

// evaluateCmd is a dry-run: given a schedule/period document, a schedule
// name, and a hypothetical stored state, it prints what the schedule
// evaluator and decision function would produce at a given instant, with
// no cluster connection and no provider calls.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate <file>",
	Short: "Dry-run a schedule's evaluation at a point in time",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().String("schedule", "", "Schedule name to evaluate (required)")
	evaluateCmd.Flags().String("at", "", "Instant to evaluate, RFC3339 (default: now)")
	evaluateCmd.Flags().String("stored-state", string(types.InstanceStopped), "Hypothetical stored state: unknown, running, stopped, retain_running, start_failed, configured")
	_ = evaluateCmd.MarkFlagRequired("schedule")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	scheduleName, _ := cmd.Flags().GetString("schedule")
	atFlag, _ := cmd.Flags().GetString("at")
	storedFlag, _ := cmd.Flags().GetString("stored-state")

	at := time.Now().UTC()
	if atFlag != "" {
		parsed, err := time.Parse(time.RFC3339, atFlag)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		at = parsed
	}

	doc, err := config.LoadDocument(args[0])
	if err != nil {
		return err
	}

	periods, perrs := doc.Periods()
	if len(perrs) > 0 {
		return fmt.Errorf("%s has %d invalid period(s); run `scheduler validate` for details", args[0], len(perrs))
	}
	periodByName := make(map[string]types.Period, len(periods))
	for _, p := range periods {
		periodByName[p.Name] = p
	}
	lookup := func(name string) (types.Period, bool) {
		p, ok := periodByName[name]
		return p, ok
	}

	schedules, serrs := doc.Schedules()
	if len(serrs) > 0 {
		return fmt.Errorf("%s has %d invalid schedule(s); run `scheduler validate` for details", args[0], len(serrs))
	}

	var target *types.Schedule
	for i := range schedules {
		if schedules[i].Name == scheduleName {
			target = &schedules[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("schedule %q not found in %s", scheduleName, args[0])
	}

	result, err := schedule.Evaluate(*target, at, lookup)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	outcome := decision.Decide(types.InstanceState(storedFlag), *target, result.State, nil)

	fmt.Printf("schedule:           %s\n", target.Name)
	fmt.Printf("at:                 %s\n", at.Format(time.RFC3339))
	fmt.Printf("desired state:      %s\n", result.State)
	if result.RequestedSize != "" {
		fmt.Printf("requested size:     %s\n", result.RequestedSize)
	}
	if result.AuthoritativePeriod != "" {
		fmt.Printf("authoritative:      %s\n", result.AuthoritativePeriod)
	}
	fmt.Printf("stored state (in):  %s\n", storedFlag)
	fmt.Printf("action:             %s\n", outcome.Action)
	fmt.Printf("stored state (out): %s\n", outcome.NewStored)
	fmt.Printf("reason:             %s\n", outcome.Reason)
	return nil
}
