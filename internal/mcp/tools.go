package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/routed/internal/engine"
	"github.com/fyrsmithlabs/routed/internal/features"
	"github.com/fyrsmithlabs/routed/internal/learning"
	"github.com/fyrsmithlabs/routed/internal/scoring"
)

type routeTaskInput struct {
	Task         string `json:"task" jsonschema:"required,Task description to route"`
	Tokens       int    `json:"tokens,omitempty" jsonschema:"Current context token count"`
	LoadedFiles  int    `json:"loaded_files,omitempty" jsonschema:"Number of files currently loaded"`
	ProjectFiles int    `json:"project_files,omitempty" jsonschema:"Number of files in the project"`
}

type routeTaskOutput struct {
	Workflow     string                   `json:"workflow" jsonschema:"Selected workflow"`
	Confidence   float64                  `json:"confidence" jsonschema:"Decision confidence in [0,1]"`
	Reasoning    string                   `json:"reasoning" jsonschema:"Why this workflow was selected"`
	Source       string                   `json:"source" jsonschema:"Decision source (baseline, learned, override)"`
	Category     string                   `json:"category" jsonschema:"Detected task category"`
	Complexity   int                      `json:"complexity" jsonschema:"Complexity score 1-10"`
	Scores       map[string]int           `json:"dimension_scores" jsonschema:"Per-dimension scores 1-10"`
	Factors      []string                 `json:"decision_factors,omitempty" jsonschema:"Key factors behind the decision"`
	Alternatives []scoring.Alternative    `json:"alternatives,omitempty" jsonschema:"Viable non-selected workflows"`
	Learned      *learning.Recommendation `json:"learned,omitempty" jsonschema:"Learned recommendation consulted, if any"`
	Fingerprint  string                   `json:"fingerprint" jsonschema:"Handle for reporting the outcome later"`
	RuleVersion  string                   `json:"rule_version" jsonschema:"Scoring rule version used"`
}

type reportOutcomeInput struct {
	Fingerprint     string `json:"fingerprint" jsonschema:"required,Fingerprint returned by route_task"`
	Success         bool   `json:"success" jsonschema:"required,Whether the task completed successfully"`
	DurationMinutes int    `json:"duration_minutes,omitempty" jsonschema:"How long the task took in minutes"`
}

type reportOutcomeOutput struct {
	Recorded bool `json:"recorded" jsonschema:"Whether the outcome was recorded"`
}

type routingStatsInput struct{}

type routingStatsOutput struct {
	TotalDecisions int            `json:"total_decisions" jsonschema:"Decisions recorded"`
	TotalOutcomes  int            `json:"total_outcomes" jsonschema:"Outcomes reported"`
	SuccessRate    float64        `json:"success_rate" jsonschema:"Fraction of reported outcomes that succeeded"`
	ByWorkflow     map[string]int `json:"workflow_distribution" jsonschema:"Decision count per workflow"`
	RuleVersion    string         `json:"rule_version" jsonschema:"Active scoring rule version"`
}

func (s *Server) registerTools() {
	// route_task
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "route_task",
		Description: "Decide which workflow a task should run, with reasoning and alternatives",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args routeTaskInput) (*mcp.CallToolResult, routeTaskOutput, error) {
		resp, err := s.router.Route(ctx, engine.RouteRequest{
			Task: args.Task,
			Metrics: features.Metrics{
				Tokens:       args.Tokens,
				LoadedFiles:  args.LoadedFiles,
				ProjectFiles: args.ProjectFiles,
			},
		})
		if err != nil {
			s.logger.Warn("route_task failed", zap.Error(err))
			return nil, routeTaskOutput{}, err
		}

		result := routeTaskOutput{
			Workflow:     string(resp.Workflow),
			Confidence:   resp.Confidence,
			Reasoning:    resp.Reasoning,
			Source:       resp.Source,
			Category:     string(resp.Category),
			Complexity:   resp.Complexity,
			Scores:       resp.Scores,
			Factors:      resp.Factors,
			Alternatives: resp.Alternatives,
			Learned:      resp.Learned,
			Fingerprint:  resp.Fingerprint,
			RuleVersion:  resp.RuleVersion,
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Workflow: %s (confidence %.2f). %s", result.Workflow, result.Confidence, result.Reasoning)},
			},
		}, result, nil
	})

	// report_outcome
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "report_outcome",
		Description: "Report whether a routed task succeeded, so future routing improves",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args reportOutcomeInput) (*mcp.CallToolResult, reportOutcomeOutput, error) {
		if err := s.router.ReportOutcome(ctx, args.Fingerprint, args.Success, args.DurationMinutes); err != nil {
			s.logger.Warn("report_outcome failed", zap.Error(err))
			return nil, reportOutcomeOutput{}, err
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Outcome recorded for %s", args.Fingerprint)},
			},
		}, reportOutcomeOutput{Recorded: true}, nil
	})

	// routing_stats
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "routing_stats",
		Description: "Summarize recorded routing decisions and outcomes",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args routingStatsInput) (*mcp.CallToolResult, routingStatsOutput, error) {
		stats, err := s.router.Stats(ctx)
		if err != nil {
			s.logger.Warn("routing_stats failed", zap.Error(err))
			return nil, routingStatsOutput{}, err
		}

		byWorkflow := make(map[string]int, len(stats.ByWorkflow))
		for w, n := range stats.ByWorkflow {
			byWorkflow[string(w)] = n
		}

		result := routingStatsOutput{
			TotalDecisions: stats.TotalDecisions,
			TotalOutcomes:  stats.TotalOutcomes,
			SuccessRate:    stats.SuccessRate,
			ByWorkflow:     byWorkflow,
			RuleVersion:    stats.RuleVersion,
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%d decisions, %d outcomes, %.0f%% success (rules %s)",
					result.TotalDecisions, result.TotalOutcomes, result.SuccessRate*100, result.RuleVersion)},
			},
		}, result, nil
	})
}
