package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_CategoryResolution(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Category
	}{
		{"authentication", "add OAuth login flow", CategoryAuthentication},
		{"authentication wins over refactor", "refactor authentication across all microservices", CategoryAuthentication},
		{"payments", "handle checkout refund edge case", CategoryPayments},
		{"security", "patch XSS vulnerability in comment form", CategorySecurity},
		{"ui", "fix typo in button label", CategoryUI},
		{"api", "add rate limiting to the REST endpoint", CategoryAPI},
		{"database", "write schema migration for orders table", CategoryDatabase},
		{"testing", "increase unit coverage for parser", CategoryTesting},
		{"bugfix", "crash when config missing", CategoryBugfix},
		{"setup", "bootstrap project conventions", CategorySetup},
		{"refactor", "cleanup the import graph", CategoryRefactor},
		{"feature", "implement dark mode", CategoryFeature},
		{"generic fallback", "ponder the meaning of software", CategoryGeneric},
		{"empty text", "", CategoryGeneric},
		{"whitespace only", "   \t\n", CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Extract(tt.text, Metrics{})
			assert.Equal(t, tt.want, f.Category)
		})
	}
}

func TestExtract_FirstMatchWins(t *testing.T) {
	// "login" (authentication) and "button" (ui) both present; the table
	// is ordered so authentication must win and ui must not double-count.
	f := Extract("login button styling", Metrics{})
	assert.Equal(t, CategoryAuthentication, f.Category)
}

func TestExtract_ComplexitySignals(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"none", "fix typo in button label", 0},
		{"single", "refactor the parser", 1},
		{"several", "refactor authentication across all microservices", 4},
		{"capped", "migrate the entire distributed system architecture across all multiple microservices", 4},
		{"repeats count once", "system system system", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Extract(tt.text, Metrics{})
			assert.Equal(t, tt.want, f.ComplexitySignals)
		})
	}
}

func TestExtract_ContextPressure(t *testing.T) {
	tests := []struct {
		name    string
		metrics Metrics
		want    bool
	}{
		{"below thresholds", Metrics{Tokens: 500, LoadedFiles: 1}, false},
		{"at token threshold", Metrics{Tokens: 30000}, false},
		{"above token threshold", Metrics{Tokens: 30001}, true},
		{"at file threshold", Metrics{LoadedFiles: 10}, false},
		{"above file threshold", Metrics{LoadedFiles: 11}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Extract("anything", tt.metrics)
			assert.Equal(t, tt.want, f.ContextPressure)
		})
	}
}

func TestExtract_EmptyTextUsesMetricsOnly(t *testing.T) {
	f := Extract("", Metrics{Tokens: 40000})
	assert.Equal(t, CategoryGeneric, f.Category)
	assert.Zero(t, f.ComplexitySignals)
	assert.True(t, f.ContextPressure)
}

func TestExtract_Deterministic(t *testing.T) {
	const text = "refactor authentication across all microservices"
	m := Metrics{Tokens: 5000, LoadedFiles: 3}

	first := Extract(text, m)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Extract(text, m))
	}
}

func TestFeatures_Has(t *testing.T) {
	f := Extract("deploy this morning before the football game", Metrics{})

	assert.True(t, f.Has("deploy"))
	assert.True(t, f.Has("this morning"), "phrases match as substrings")
	assert.False(t, f.Has("all"), "whole-word matching: 'football' must not match 'all'")
}

func TestMetrics_Validate(t *testing.T) {
	require.NoError(t, Metrics{Tokens: 1, LoadedFiles: 2, ProjectFiles: 3}.Validate())

	assert.Error(t, Metrics{Tokens: -1}.Validate())
	assert.Error(t, Metrics{LoadedFiles: -1}.Validate())
	assert.Error(t, Metrics{ProjectFiles: -1}.Validate())
}
