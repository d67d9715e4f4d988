package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/routed/internal/scoring"
)

// renderReport produces the human-readable markdown digest attached to
// every run that reached VALIDATING. It is operator reading material, not
// an input to anything.
func renderReport(patterns []scoring.SuccessPattern, summary Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Aggregation Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "## Run\n\n")
	fmt.Fprintf(&b, "- Sources: %d (%d with records)\n", summary.Sources, summary.Contributors)
	fmt.Fprintf(&b, "- Records: %d (%d duplicates removed, %d corrupt skipped)\n",
		summary.RecordsLoaded, summary.Duplicates, summary.SkippedRecords)
	fmt.Fprintf(&b, "- Validation: proposed %.1f%% vs active %.1f%%\n",
		summary.ProposedRate*100, summary.ActiveRate*100)
	fmt.Fprintf(&b, "- Outcome: %s\n\n", summary.Outcome)

	fmt.Fprintf(&b, "## Learned Patterns\n\n")
	if len(patterns) == 0 {
		fmt.Fprintf(&b, "No category reached the minimum sample size.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "| Category | Workflow | Samples | Success | Confidence |\n")
	fmt.Fprintf(&b, "|---|---|---:|---:|---:|\n")
	for _, p := range patterns {
		fmt.Fprintf(&b, "| %s | %s | %d | %.1f%% | %.2f |\n",
			p.Category, p.Workflow, p.SampleSize, p.SuccessRate*100, p.Confidence)
	}
	return b.String()
}
