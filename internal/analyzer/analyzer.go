// Package analyzer implements the Test Analyzer (§4.5): a rule-based
// mapping from a list of sandbox.Result to a TestAnalysis — no AI, no
// network calls, pure pattern matching over captured output.
package analyzer

import (
	"regexp"
	"strconv"

	"github.com/sologit/sologit/internal/sandbox"
)

// Category is one of §4.5's nine documented failure buckets.
type Category string

const (
	CategoryAssertion  Category = "assertion"
	CategoryImport     Category = "import"
	CategorySyntax     Category = "syntax"
	CategoryTimeout    Category = "timeout"
	CategoryDependency Category = "dependency"
	CategoryNetwork    Category = "network"
	CategoryPermission Category = "permission"
	CategoryResource   Category = "resource"
	CategoryUnknown    Category = "unknown"
)

// Status is the TestAnalysis's overall verdict.
type Status string

const (
	Green  Status = "GREEN"
	Red    Status = "RED"
	Yellow Status = "YELLOW"
)

// Complexity estimates how hard the failure set will be to fix.
type Complexity string

const (
	Low    Complexity = "low"
	Medium Complexity = "medium"
	High   Complexity = "high"
)

// FailurePattern is one collapsed (category, file, line, message-prefix)
// group, with the number of tests it occurred in.
type FailurePattern struct {
	Category   Category
	Message    string
	File       string
	Line       int
	Occurrence int
}

// Analysis is analyze's output (§3 TestAnalysis).
type Analysis struct {
	Total, Passed, Failed, Timeout, Errors int
	Status                                 Status
	Patterns                               []FailurePattern
	Suggestions                            []string
	Complexity                             Complexity
}

// patternRule matches a category against combined stdout+stderr text.
type patternRule struct {
	category Category
	matchers []*regexp.Regexp
}

var categoryRules = []patternRule{
	{CategoryImport, compileAll(
		`ModuleNotFoundError`, `cannot find module`, `ImportError`, `cannot find package`,
	)},
	{CategorySyntax, compileAll(
		`SyntaxError`, `Unexpected token`, `unexpected EOF`,
	)},
	{CategoryNetwork, compileAll(
		`Connection refused`, `(?i)dns\b.*(fail|resolv)`, `network is unreachable`,
	)},
	{CategoryPermission, compileAll(
		`Permission denied`, `EACCES`,
	)},
	{CategoryResource, compileAll(
		`No space left on device`, `[Oo]ut of [Mm]emory`, `\bOOM\b`, `cannot allocate memory`,
	)},
	{CategoryDependency, compileAll(
		`could not resolve dependency`, `lock ?file`, `version solving failed`, `npm ERR!.*ERESOLVE`,
	)},
	{CategoryAssertion, compileAll(
		`AssertionError`, `assert(ion)? failed`, `expected .* to (equal|be)`, `\bFAIL\b`,
	)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// fileLineRE extracts the last "path:line" style token in a failure message
// — the pattern every mainstream test runner uses to point at a source
// location (pytest, go test, jest, etc.).
var fileLineRE = regexp.MustCompile(`([A-Za-z0-9_./\-]+\.[A-Za-z0-9]+):(\d+)`)

// categorize assigns the first matching category for a non-passed result's
// combined output, falling back to timeout (by status) or unknown.
func categorize(r sandbox.Result) Category {
	if r.Status == sandbox.Timeout {
		return CategoryTimeout
	}
	combined := r.Stdout + "\n" + r.Stderr
	for _, rule := range categoryRules {
		for _, m := range rule.matchers {
			if m.MatchString(combined) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}

func extractFileLine(text string) (file string, line int) {
	matches := fileLineRE.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", 0
	}
	last := matches[len(matches)-1]
	n, _ := strconv.Atoi(last[2])
	return last[1], n
}

// messagePrefix is the first line of output that looks like an error
// message, used as the dedup key's message component.
func messagePrefix(r sandbox.Result) string {
	text := r.Stderr
	if text == "" {
		text = r.Stdout
	}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			return text[:i]
		}
	}
	return text
}

// Analyze maps results to a TestAnalysis (§4.5).
func Analyze(results []sandbox.Result) Analysis {
	var a Analysis
	a.Total = len(results)

	type patternKey struct {
		category Category
		file     string
		line     int
		message  string
	}
	patternIndex := make(map[patternKey]int)
	categoriesPresent := make(map[Category]bool)
	failingTests := 0

	for _, r := range results {
		switch r.Status {
		case sandbox.Passed:
			a.Passed++
			continue
		case sandbox.Failed:
			a.Failed++
		case sandbox.Timeout:
			a.Timeout++
		case sandbox.Error:
			a.Errors++
		case sandbox.Skipped:
			continue
		}

		failingTests++
		cat := categorize(r)
		categoriesPresent[cat] = true
		msg := messagePrefix(r)
		file, line := extractFileLine(r.Stderr + "\n" + r.Stdout)

		key := patternKey{category: cat, file: file, line: line, message: msg}
		if idx, ok := patternIndex[key]; ok {
			a.Patterns[idx].Occurrence++
			continue
		}
		patternIndex[key] = len(a.Patterns)
		a.Patterns = append(a.Patterns, FailurePattern{
			Category:   cat,
			Message:    msg,
			File:       file,
			Line:       line,
			Occurrence: 1,
		})
	}

	a.Status = overallStatus(a, results)
	a.Suggestions = buildSuggestions(categoriesPresent, failingTests)
	a.Complexity = estimateComplexity(categoriesPresent, failingTests)
	return a
}

// overallStatus: GREEN if nothing actionable failed; RED if any
// failure/timeout/error; YELLOW only if every non-passed result is SKIPPED.
func overallStatus(a Analysis, results []sandbox.Result) Status {
	if a.Failed == 0 && a.Timeout == 0 && a.Errors == 0 {
		for _, r := range results {
			if r.Status == sandbox.Skipped {
				return Yellow
			}
		}
		return Green
	}
	return Red
}

var suggestionTemplates = map[Category]string{
	CategoryAssertion:  "review the failing assertions against the expected behavior the patch changed",
	CategoryImport:     "verify the new/changed import paths are installed and declared in the project's manifest",
	CategorySyntax:     "the patch introduced a syntax error — re-check the diff's hunks for a stray or missing token",
	CategoryTimeout:    "the test exceeded its configured timeout — check for an infinite loop or raise the test's timeout",
	CategoryDependency: "dependency resolution failed — check the lockfile for a version conflict introduced by the patch",
	CategoryNetwork:    "the test attempted network access inside the sandbox, which is disabled by default — mock the call or opt the test into network access",
	CategoryPermission: "the test hit a permission error — check file modes and the sandbox's scratch directory ownership",
	CategoryResource:   "the test exhausted memory or disk — check for a resource leak or raise the sandbox's resource caps",
	CategoryUnknown:    "inspect the captured stdout/stderr directly — no recognized failure pattern matched",
}

// buildSuggestions returns one template per category present plus, if
// failures span >= 3 categories or >= 3 distinct failing tests, a
// split-the-workpad suggestion.
func buildSuggestions(categoriesPresent map[Category]bool, failingTests int) []string {
	var out []string
	// Stable order: iterate the fixed category list, not the map.
	for _, cat := range []Category{
		CategoryAssertion, CategoryImport, CategorySyntax, CategoryTimeout,
		CategoryDependency, CategoryNetwork, CategoryPermission, CategoryResource, CategoryUnknown,
	} {
		if categoriesPresent[cat] {
			out = append(out, suggestionTemplates[cat])
		}
	}
	if len(categoriesPresent) >= 3 || failingTests >= 3 {
		out = append(out, "split this workpad into smaller pieces")
	}
	return out
}

// estimateComplexity: low if <=1 category and <=2 failing tests; high if
// >=3 categories or >=5 failing tests or any resource/permission category;
// else medium.
func estimateComplexity(categoriesPresent map[Category]bool, failingTests int) Complexity {
	if categoriesPresent[CategoryResource] || categoriesPresent[CategoryPermission] {
		return High
	}
	if len(categoriesPresent) >= 3 || failingTests >= 5 {
		return High
	}
	if len(categoriesPresent) <= 1 && failingTests <= 2 {
		return Low
	}
	return Medium
}
