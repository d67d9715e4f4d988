package scoring

import "fmt"

// Workflow is an execution strategy the engine can route a task to.
type Workflow string

// The five routing targets.
const (
	// WorkflowLightweight handles small, low-risk tasks with minimal ceremony.
	WorkflowLightweight Workflow = "lightweight"

	// WorkflowStandardValidated adds a validation pass for medium tasks.
	WorkflowStandardValidated Workflow = "standard_validated"

	// WorkflowPhaseBased splits large or context-heavy work into phases.
	WorkflowPhaseBased Workflow = "phase_based"

	// WorkflowStandardsSetup establishes project conventions and scaffolding.
	WorkflowStandardsSetup Workflow = "standards_setup"

	// WorkflowPRDBased drives feature work from a product requirements doc.
	WorkflowPRDBased Workflow = "prd_based"
)

// Workflows lists every valid routing target.
func Workflows() []Workflow {
	return []Workflow{
		WorkflowLightweight,
		WorkflowStandardValidated,
		WorkflowPhaseBased,
		WorkflowStandardsSetup,
		WorkflowPRDBased,
	}
}

// Valid reports whether w is a known workflow.
func (w Workflow) Valid() bool {
	switch w {
	case WorkflowLightweight, WorkflowStandardValidated, WorkflowPhaseBased,
		WorkflowStandardsSetup, WorkflowPRDBased:
		return true
	}
	return false
}

// ParseWorkflow converts a string into a Workflow, rejecting unknown values.
func ParseWorkflow(s string) (Workflow, error) {
	w := Workflow(s)
	if !w.Valid() {
		return "", fmt.Errorf("unknown workflow %q", s)
	}
	return w, nil
}
