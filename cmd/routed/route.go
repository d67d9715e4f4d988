package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/routed/internal/engine"
	"github.com/fyrsmithlabs/routed/internal/features"
)

var (
	routeTokens       int
	routeLoadedFiles  int
	routeProjectFiles int
	routeJSON         bool
)

var routeCmd = &cobra.Command{
	Use:   "route <task description>",
	Short: "Decide which workflow a task should run",
	Long: `Decide which workflow a task should run and record the decision.

Examples:
  # Route a simple task
  routed route "fix typo in README"

  # Route with environment metrics
  routed route "refactor auth across services" --tokens 12000 --loaded-files 8

  # Machine-readable output
  routed route "add pagination to the API" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().IntVar(&routeTokens, "tokens", 0, "current context token count")
	routeCmd.Flags().IntVar(&routeLoadedFiles, "loaded-files", 0, "number of files currently loaded")
	routeCmd.Flags().IntVar(&routeProjectFiles, "project-files", 0, "number of files in the project")
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "print the full decision as JSON")
}

func runRoute(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	resp, err := a.router.Route(context.Background(), engine.RouteRequest{
		Task: strings.Join(args, " "),
		Metrics: features.Metrics{
			Tokens:       routeTokens,
			LoadedFiles:  routeLoadedFiles,
			ProjectFiles: routeProjectFiles,
		},
	})
	if err != nil {
		return err
	}

	if routeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Printf("Workflow:    %s\n", resp.Workflow)
	fmt.Printf("Confidence:  %.2f (%s)\n", resp.Confidence, resp.Source)
	fmt.Printf("Category:    %s\n", resp.Category)
	fmt.Printf("Complexity:  %d/10\n", resp.Complexity)
	fmt.Printf("Reasoning:   %s\n", resp.Reasoning)
	if len(resp.Alternatives) > 0 {
		fmt.Println("Alternatives:")
		for _, alt := range resp.Alternatives {
			fmt.Printf("  %-20s %.2f\n", alt.Workflow, alt.Suitability)
		}
	}
	fmt.Printf("Fingerprint: %s\n", resp.Fingerprint)
	return nil
}
