// Package features turns raw task text and environment metrics into the
// normalized feature set consumed by the scorer and the recommender.
//
// Extraction is pure and deterministic: identical input always yields
// identical output, and the only state consulted is the static, ordered
// category table. Category resolution walks the table in priority order and
// the first matching entry wins, so a task mentioning both "login" and
// "button" classifies as authentication, never both. A mandatory catch-all
// entry guarantees every task resolves to some category.
package features

import (
	"fmt"
	"strings"
	"unicode"
)

// Category identifies the kind of work a task describes.
type Category string

// Known categories, in table priority order. CategoryGeneric is the
// catch-all and always matches last.
const (
	CategoryAuthentication Category = "authentication"
	CategoryPayments       Category = "payments"
	CategorySecurity       Category = "security"
	CategoryUI             Category = "ui"
	CategoryAPI            Category = "api"
	CategoryDatabase       Category = "database"
	CategoryTesting        Category = "testing"
	CategoryBugfix         Category = "bugfix"
	CategorySetup          Category = "setup"
	CategoryRefactor       Category = "refactor"
	CategoryFeature        Category = "feature"
	CategoryGeneric        Category = "generic"
)

// Metrics describes the caller's environment at routing time.
type Metrics struct {
	Tokens       int `json:"tokens"`
	LoadedFiles  int `json:"loaded_files"`
	ProjectFiles int `json:"project_files"`
}

// Validate rejects out-of-range metrics. Negative counts are never
// silently coerced.
func (m Metrics) Validate() error {
	if m.Tokens < 0 {
		return fmt.Errorf("tokens must be >= 0, got %d", m.Tokens)
	}
	if m.LoadedFiles < 0 {
		return fmt.Errorf("loaded_files must be >= 0, got %d", m.LoadedFiles)
	}
	if m.ProjectFiles < 0 {
		return fmt.Errorf("project_files must be >= 0, got %d", m.ProjectFiles)
	}
	return nil
}

const (
	// ContextPressureTokens is the token count above which a task is routed
	// for context protection regardless of its text.
	ContextPressureTokens = 30000

	// ContextPressureFiles is the loaded-file count above which context
	// pressure applies.
	ContextPressureFiles = 10

	// maxComplexitySignals caps the signal count so repeated terms cannot
	// grow the score without bound.
	maxComplexitySignals = 4
)

// categoryEntry pairs a category with the keyword set that detects it.
// Entries are evaluated in order; the first match wins.
type categoryEntry struct {
	category Category
	keywords []string
}

// categoryTable is the ordered detection table. More specific (and higher
// risk) categories are listed first to avoid shadowing by broad ones.
var categoryTable = []categoryEntry{
	{CategoryAuthentication, []string{"auth", "authentication", "authorization", "login", "logout", "oauth", "sso", "credentials", "password", "register", "signup"}},
	{CategoryPayments, []string{"payment", "payments", "billing", "checkout", "invoice", "refund", "subscription", "stripe"}},
	{CategorySecurity, []string{"security", "vulnerability", "encryption", "encrypt", "xss", "csrf", "injection", "cve", "secrets"}},
	{CategoryUI, []string{"ui", "interface", "component", "button", "layout", "css", "frontend", "styling"}},
	{CategoryAPI, []string{"api", "endpoint", "rest", "grpc", "webhook", "backend", "server"}},
	{CategoryDatabase, []string{"database", "schema", "migration", "sql", "query", "model"}},
	{CategoryTesting, []string{"test", "tests", "testing", "spec", "unit", "e2e", "coverage"}},
	{CategoryBugfix, []string{"fix", "bug", "error", "issue", "broken", "crash", "regression"}},
	{CategorySetup, []string{"setup", "scaffold", "scaffolding", "init", "bootstrap", "standards", "conventions"}},
	{CategoryRefactor, []string{"refactor", "refactoring", "cleanup", "restructure", "optimize", "simplify"}},
	{CategoryFeature, []string{"feature", "add", "create", "build", "implement"}},
	{CategoryGeneric, nil}, // catch-all, always matches
}

// complexitySignalTerms indicate work that tends to sprawl. Each distinct
// matching term counts once, capped at maxComplexitySignals.
var complexitySignalTerms = []string{
	"architecture", "refactor", "migrate", "migration", "integration",
	"security", "system", "distributed", "microservice", "microservices",
	"scalable", "concurrency", "enterprise", "complex",
	"all", "entire", "across", "throughout", "multiple",
}

// Features is the normalized extraction result.
type Features struct {
	Category          Category `json:"category"`
	ComplexitySignals int      `json:"complexity_signal_count"`
	ContextPressure   bool     `json:"context_pressure"`
	WordCount         int      `json:"word_count"`

	normalized string
	words      map[string]struct{}
}

// Has reports whether the task text contains the given signal. Single-word
// signals match whole words only; phrases match as substrings of the
// normalized text.
func (f Features) Has(signal string) bool {
	if strings.ContainsRune(signal, ' ') {
		return strings.Contains(f.normalized, signal)
	}
	_, ok := f.words[signal]
	return ok
}

// HasAny reports whether any of the given signals is present.
func (f Features) HasAny(signals ...string) bool {
	for _, s := range signals {
		if f.Has(s) {
			return true
		}
	}
	return false
}

// Extract computes the feature set for a task. Empty or whitespace-only
// text yields the generic category with zero complexity signals; context
// pressure is computed from metrics alone in that case.
func Extract(text string, metrics Metrics) Features {
	normalized := normalize(text)
	words := tokenize(normalized)

	f := Features{
		Category:        resolveCategory(words),
		ContextPressure: metrics.Tokens > ContextPressureTokens || metrics.LoadedFiles > ContextPressureFiles,
		WordCount:       len(strings.Fields(normalized)),
		normalized:      normalized,
		words:           words,
	}

	for _, term := range complexitySignalTerms {
		if f.Has(term) {
			f.ComplexitySignals++
			if f.ComplexitySignals == maxComplexitySignals {
				break
			}
		}
	}

	return f
}

// resolveCategory walks the ordered table and returns the first category
// with a keyword present. The trailing catch-all guarantees termination.
func resolveCategory(words map[string]struct{}) Category {
	for _, entry := range categoryTable {
		if entry.keywords == nil {
			return entry.category
		}
		for _, kw := range entry.keywords {
			if _, ok := words[kw]; ok {
				return entry.category
			}
		}
	}
	return CategoryGeneric
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// tokenize splits normalized text into a set of alphanumeric words.
// Word-level matching keeps "all" from matching inside "ball".
func tokenize(normalized string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = struct{}{}
	}
	return words
}
