package main

import (
	"fmt"

	"github.com/cuemby/instance-scheduler/pkg/config"
	"github.com/spf13/cobra"
)

// validateCmd checks one or more schedule/period YAML documents without
// touching a running cluster: every conversion error config.Document
// collects is reported, and the command exits non-zero if any file had at
// least one invalid entry.
var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate schedule/period YAML documents without connecting to a cluster",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	totalPeriods, totalSchedules, totalErrs := 0, 0, 0

	for _, path := range args {
		doc, err := config.LoadDocument(path)
		if err != nil {
			fmt.Printf("%s: %v\n", path, err)
			totalErrs++
			continue
		}

		periods, perrs := doc.Periods()
		schedules, serrs := doc.Schedules()
		totalPeriods += len(periods)
		totalSchedules += len(schedules)

		for _, e := range perrs {
			fmt.Printf("%s: %v\n", path, e)
			totalErrs++
		}
		for _, e := range serrs {
			fmt.Printf("%s: %v\n", path, e)
			totalErrs++
		}

		fmt.Printf("%s: %d period(s), %d schedule(s) valid\n", path, len(periods), len(schedules))
	}

	fmt.Printf("\n%d period(s), %d schedule(s) valid across %d file(s); %d error(s)\n",
		totalPeriods, totalSchedules, len(args), totalErrs)

	if totalErrs > 0 {
		return fmt.Errorf("%d validation error(s)", totalErrs)
	}
	return nil
}
