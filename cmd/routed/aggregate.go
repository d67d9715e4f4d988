package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/routed/internal/aggregate"
)

var aggregateReport bool

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [outcome-log...]",
	Short: "Merge outcome logs and publish improved scoring rules",
	Long: `Run the offline aggregation job: merge one or more outcome logs
(each treated as an independent contributor), compute community success
patterns, and publish a new scoring rule version when the patterns
validate materially better than the active rules.

With no arguments the local outcome log is aggregated. Re-running on
unchanged inputs never produces a second version.

Examples:
  # Aggregate the local log
  routed aggregate

  # Merge logs gathered from several machines
  routed aggregate ./collected/alice.jsonl ./collected/bob.jsonl --report`,
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().BoolVar(&aggregateReport, "report", false, "print the markdown aggregation report")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	inputs := args
	if len(inputs) == 0 {
		inputs = []string{a.cfg.Data.OutcomeLogPath()}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := a.router.Aggregate(ctx, a.cfg.Aggregator, inputs)
	if err != nil {
		return err
	}

	s := result.Stats
	fmt.Printf("Outcome:    %s\n", s.Outcome)
	fmt.Printf("Records:    %d from %d contributor(s) (%d duplicates, %d corrupt)\n",
		s.RecordsLoaded, s.Contributors, s.Duplicates, s.SkippedRecords)
	fmt.Printf("Patterns:   %d\n", s.Patterns)
	if s.Outcome != aggregate.OutcomeUnchanged {
		fmt.Printf("Validation: proposed %.1f%% vs active %.1f%%\n", s.ProposedRate*100, s.ActiveRate*100)
	}
	if result.NewRuleVersion != "" {
		fmt.Printf("Published:  %s\n", result.NewRuleVersion)
	}
	if aggregateReport && result.Report != "" {
		fmt.Println()
		fmt.Println(result.Report)
	}
	return nil
}
