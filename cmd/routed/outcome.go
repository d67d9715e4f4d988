package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	outcomeSuccess  bool
	outcomeFailure  bool
	outcomeDuration int
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome <fingerprint>",
	Short: "Report how a routed task went",
	Long: `Report the outcome of a previously routed task, identified by the
fingerprint printed by the route command.

Examples:
  # The task went well
  routed outcome 1a2b3c4d5e6f7a8b --success --duration 25

  # The task did not
  routed outcome 1a2b3c4d5e6f7a8b --failure`,
	Args: cobra.ExactArgs(1),
	RunE: runOutcome,
}

func init() {
	outcomeCmd.Flags().BoolVar(&outcomeSuccess, "success", false, "the task completed successfully")
	outcomeCmd.Flags().BoolVar(&outcomeFailure, "failure", false, "the task failed")
	outcomeCmd.Flags().IntVar(&outcomeDuration, "duration", 0, "task duration in minutes")
	outcomeCmd.MarkFlagsMutuallyExclusive("success", "failure")
	outcomeCmd.MarkFlagsOneRequired("success", "failure")
}

func runOutcome(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.router.ReportOutcome(context.Background(), args[0], outcomeSuccess, outcomeDuration); err != nil {
		return err
	}

	fmt.Printf("Outcome recorded for %s\n", args[0])
	return nil
}
