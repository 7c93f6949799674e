package classify

import (
	"regexp"
	"strings"
)

// Category is the closed set of failure categories.
type Category string

const (
	TestFailure        Category = "test_failure"
	CompileError       Category = "compile_error"
	LintWarning        Category = "lint_warning"
	DependencyConflict Category = "dependency_conflict"
	SecurityVuln       Category = "security_vuln"
	DocMissing         Category = "doc_missing"
	Unknown            Category = "unknown"
)

// Classification is the categorized diagnosis of a failure log.
type Classification struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Evidence   string   `json:"evidence"`
}

// matcher pairs a category with the patterns that identify it.
type matcher struct {
	category   Category
	confidence float64
	patterns   []*regexp.Regexp
}

// matchers is evaluated in order and the first match wins. Specific
// categories come before generic ones: dependency fetch failures also emit
// compiler-looking errors, and vulnerable-dependency reports mention
// package resolution, so both must be tried before CompileError.
var matchers = []matcher{
	{
		category:   DependencyConflict,
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)cannot find module ['"]`),
			regexp.MustCompile(`(?i)unresolved dependency`),
			regexp.MustCompile(`(?i)npm ERR! (peer dep|ERESOLVE|404)`),
			regexp.MustCompile(`(?i)no matching version found`),
			regexp.MustCompile(`missing go\.sum entry`),
			regexp.MustCompile(`(?i)could not resolve dependencies`),
			regexp.MustCompile(`(?i)version solving failed`),
			regexp.MustCompile(`(?i)failed to (fetch|download) .*(package|crate|module)`),
		},
	},
	{
		category:   SecurityVuln,
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(critical|high) severity vulnerabilit`),
			regexp.MustCompile(`(?i)\bCVE-\d{4}-\d+`),
			regexp.MustCompile(`(?i)\bGHSA-[a-z0-9-]+`),
			regexp.MustCompile(`(?i)vulnerable dependenc`),
			regexp.MustCompile(`(?i)audit found \d+ vulnerabilit`),
		},
	},
	{
		category:   TestFailure,
		confidence: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^--- FAIL:`),
			regexp.MustCompile(`(?m)^FAIL\s+\S+`),
			regexp.MustCompile(`(?i)\d+ (test[s]?|spec[s]?) failed`),
			regexp.MustCompile(`(?i)assertion(error| failed)`),
			regexp.MustCompile(`(?m)^FAILED `),
			regexp.MustCompile(`(?i)test result: FAILED`),
		},
	},
	{
		category:   CompileError,
		confidence: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)compilation (failed|error)`),
			regexp.MustCompile(`(?m)^.+\.go:\d+:\d+: `),
			regexp.MustCompile(`(?i)syntax ?error`),
			regexp.MustCompile(`error TS\d+:`),
			regexp.MustCompile(`(?i)undefined: \S+`),
			regexp.MustCompile(`error\[E\d+\]:`),
			regexp.MustCompile(`(?i)cannot build|build failed`),
		},
	},
	{
		category:   LintWarning,
		confidence: 0.75,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\d+ problems? \(\d+ errors?, \d+ warnings?\)`),
			regexp.MustCompile(`(?i)lint(ing)? (failed|error)`),
			regexp.MustCompile(`(?i)\bwarning: unused`),
			regexp.MustCompile(`(?i)files? (need|require)s? formatting`),
			regexp.MustCompile(`(?i)clippy.*warning`),
		},
	},
	{
		category:   DocMissing,
		confidence: 0.75,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)missing (doc|documentation|readme)`),
			regexp.MustCompile(`(?i)undocumented (public|exported)`),
			regexp.MustCompile(`(?i)documentation coverage below`),
		},
	},
}

// evidenceWindow bounds how much surrounding text is captured around a match.
const evidenceWindow = 160

// Classify maps raw failure log text to a Classification. It is a pure
// function: identical text always yields an identical result. Unmatched
// text yields Unknown with zero confidence.
func Classify(log string) Classification {
	for _, m := range matchers {
		for _, re := range m.patterns {
			loc := re.FindStringIndex(log)
			if loc == nil {
				continue
			}
			return Classification{
				Category:   m.category,
				Confidence: m.confidence,
				Evidence:   evidenceAround(log, loc[0], loc[1]),
			}
		}
	}
	return Classification{Category: Unknown, Confidence: 0}
}

// evidenceAround extracts the line(s) surrounding a match span, trimmed to
// the evidence window.
func evidenceAround(log string, start, end int) string {
	lineStart := strings.LastIndexByte(log[:start], '\n') + 1
	lineEnd := end
	if i := strings.IndexByte(log[end:], '\n'); i >= 0 {
		lineEnd = end + i
	} else {
		lineEnd = len(log)
	}

	evidence := log[lineStart:lineEnd]
	if len(evidence) > evidenceWindow {
		evidence = evidence[:evidenceWindow]
	}
	return strings.TrimSpace(evidence)
}
