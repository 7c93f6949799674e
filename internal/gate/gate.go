package gate

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/lucasnoah/greenlight/internal/checks"
	"github.com/lucasnoah/greenlight/internal/classify"
	"github.com/lucasnoah/greenlight/internal/ecosystem"
)

// Issue is a single quality finding from a gate run.
type Issue struct {
	Category classify.Category `json:"category"`
	Check    string            `json:"check"`
	File     string            `json:"file,omitempty"`
	Line     int               `json:"line,omitempty"`
	Message  string            `json:"message"`
	Severity string            `json:"severity"`
}

// CheckOutcome summarizes one check within a gate run.
type CheckOutcome struct {
	Check      string `json:"check"`
	Passed     bool   `json:"passed"`
	AutoFixed  bool   `json:"auto_fixed,omitempty"`
	DurationMs int    `json:"duration_ms"`
	Summary    string `json:"summary,omitempty"`
}

// Result is the structured output of a full gate run. Passed requires an
// empty issue list across every check.
type Result struct {
	Ecosystem string         `json:"ecosystem"`
	Passed    bool           `json:"passed"`
	Checks    []CheckOutcome `json:"checks"`
	Issues    []Issue        `json:"issues"`
}

// JSON returns the gate result as indented JSON.
func (r *Result) JSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Opts configures a gate run.
type Opts struct {
	Kind       ecosystem.Kind
	Specs      []ecosystem.CheckSpec
	ApplyFixes bool     // allow AutoFix commands to run
	ExtraRules []Rule   // forbidden-pattern rules beyond the built-ins
	DocFiles   []string // required doc files; defaults to a README
}

// Runner evaluates the full check sequence for a project: the toolchain
// battery plus the in-process forbidden-pattern scan and documentation
// check. Checks are independent: all of them run regardless of earlier
// failures so one gate run yields the complete issue list.
type Runner struct {
	checker  *checks.Runner
	progress io.Writer
}

// New creates a gate Runner.
func New(checker *checks.Runner) *Runner {
	return &Runner{checker: checker}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (r *Runner) SetProgress(w io.Writer) {
	r.progress = w
}

func (r *Runner) logf(format string, args ...interface{}) {
	if r.progress != nil {
		fmt.Fprintf(r.progress, "  → "+format+"\n", args...)
	}
}

// Run evaluates the gate for the project at dir.
func (r *Runner) Run(dir string, opts Opts) (*Result, error) {
	if len(opts.Specs) == 0 {
		return nil, fmt.Errorf("no checks configured for ecosystem %q", opts.Kind)
	}

	result := &Result{
		Ecosystem: string(opts.Kind),
		Passed:    true,
		Issues:    []Issue{},
	}

	for _, spec := range opts.Specs {
		// The forbidden-pattern scan sits between lint and test in the
		// fixed sequence.
		if spec.Name == "test" {
			r.runScan(dir, opts, result)
		}

		cfg := checks.CheckConfig{
			Name:       spec.Name,
			Command:    spec.Command,
			Parser:     spec.Parser,
			Timeout:    spec.Timeout,
			AutoFix:    opts.ApplyFixes && spec.AutoFix,
			FixCommand: spec.FixCommand,
		}

		res, err := r.checker.Run(dir, cfg)
		if err != nil {
			return nil, fmt.Errorf("run check %q: %w", spec.Name, err)
		}

		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		r.logf("check %s: %s (%dms)", spec.Name, status, res.DurationMs)

		result.Checks = append(result.Checks, CheckOutcome{
			Check:      spec.Name,
			Passed:     res.Passed,
			AutoFixed:  res.AutoFixed,
			DurationMs: res.DurationMs,
			Summary:    res.Summary,
		})

		if !res.Passed {
			result.Passed = false
			result.Issues = append(result.Issues, issuesFromCheck(spec.Name, res)...)
		}
	}

	r.runDocs(dir, opts, result)

	return result, nil
}

// runScan executes the forbidden-pattern scan and folds it into the result.
func (r *Runner) runScan(dir string, opts Opts, result *Result) {
	start := time.Now()
	issues, err := Scan(dir, opts.Kind, opts.ExtraRules)
	outcome := CheckOutcome{
		Check:      "forbidden",
		Passed:     err == nil && len(issues) == 0,
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	switch {
	case err != nil:
		outcome.Summary = fmt.Sprintf("scan failed: %v", err)
		result.Issues = append(result.Issues, Issue{
			Category: classify.Unknown,
			Check:    "forbidden",
			Message:  outcome.Summary,
			Severity: "error",
		})
	case len(issues) > 0:
		outcome.Summary = fmt.Sprintf("%d forbidden patterns", len(issues))
		result.Issues = append(result.Issues, issues...)
	default:
		outcome.Summary = "clean"
	}
	if !outcome.Passed {
		result.Passed = false
	}
	r.logf("check forbidden: %s", outcome.Summary)
	result.Checks = append(result.Checks, outcome)
}

// runDocs executes the documentation completeness check.
func (r *Runner) runDocs(dir string, opts Opts, result *Result) {
	issues := CheckDocs(dir, opts.DocFiles)
	outcome := CheckOutcome{
		Check:   "docs",
		Passed:  len(issues) == 0,
		Summary: "complete",
	}
	if len(issues) > 0 {
		outcome.Summary = fmt.Sprintf("%d documentation issues", len(issues))
		result.Issues = append(result.Issues, issues...)
		result.Passed = false
	}
	r.logf("check docs: %s", outcome.Summary)
	result.Checks = append(result.Checks, outcome)
}

// categoryForCheck maps a battery check name to its issue category.
func categoryForCheck(name string) classify.Category {
	switch name {
	case "format", "lint":
		return classify.LintWarning
	case "build":
		return classify.CompileError
	case "test":
		return classify.TestFailure
	case "audit":
		return classify.SecurityVuln
	default:
		return classify.Unknown
	}
}

// issuesFromCheck converts a failing check result into issues, extracting
// per-file locators where the parser produced structured findings.
func issuesFromCheck(name string, res *checks.Result) []Issue {
	category := categoryForCheck(name)

	switch name {
	case "format":
		var f struct {
			Unformatted []string `json:"unformatted"`
		}
		if json.Unmarshal([]byte(res.Findings), &f) == nil && len(f.Unformatted) > 0 {
			issues := make([]Issue, 0, len(f.Unformatted))
			for _, file := range f.Unformatted {
				issues = append(issues, Issue{
					Category: category,
					Check:    name,
					File:     file,
					Message:  "file is not formatted",
					Severity: "error",
				})
			}
			return issues
		}
	case "lint":
		var f struct {
			Findings []struct {
				File     string `json:"file"`
				Line     int    `json:"line"`
				Severity string `json:"severity"`
				Message  string `json:"message"`
			} `json:"findings"`
		}
		if json.Unmarshal([]byte(res.Findings), &f) == nil && len(f.Findings) > 0 {
			issues := make([]Issue, 0, len(f.Findings))
			for _, finding := range f.Findings {
				issues = append(issues, Issue{
					Category: category,
					Check:    name,
					File:     finding.File,
					Line:     finding.Line,
					Message:  finding.Message,
					Severity: finding.Severity,
				})
			}
			return issues
		}
	}

	return []Issue{{
		Category: category,
		Check:    name,
		Message:  res.Summary,
		Severity: "error",
	}}
}
