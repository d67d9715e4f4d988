package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/routed/internal/scoring"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recorded decisions and outcomes",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print stats as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.router.Stats(context.Background())
	if err != nil {
		return err
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Decisions:    %d\n", stats.TotalDecisions)
	fmt.Printf("Outcomes:     %d\n", stats.TotalOutcomes)
	if stats.TotalOutcomes > 0 {
		fmt.Printf("Success rate: %.1f%%\n", stats.SuccessRate*100)
	}
	fmt.Printf("Rule version: %s\n", stats.RuleVersion)
	if len(stats.ByWorkflow) > 0 {
		fmt.Println("By workflow:")
		workflows := make([]string, 0, len(stats.ByWorkflow))
		for w := range stats.ByWorkflow {
			workflows = append(workflows, string(w))
		}
		sort.Strings(workflows)
		for _, w := range workflows {
			fmt.Printf("  %-20s %d\n", w, stats.ByWorkflow[scoring.Workflow(w)])
		}
	}
	if stats.SkippedRecords > 0 {
		fmt.Printf("Skipped corrupt records: %d\n", stats.SkippedRecords)
	}
	return nil
}
