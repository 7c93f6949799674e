package checks

import (
	"fmt"
	"regexp"
	"strings"
)

// GoTestParser parses `go test ./...` text output.
type GoTestParser struct{}

type goTestFinding struct {
	Test    string `json:"test"`
	Package string `json:"package"`
}

type goTestResult struct {
	Failed   int             `json:"failed"`
	Packages []string        `json:"failed_packages"`
	Findings []goTestFinding `json:"findings"`
}

var goTestFailRe = regexp.MustCompile(`(?m)^--- FAIL: (\S+)`)
var goTestPkgFailRe = regexp.MustCompile(`(?m)^FAIL\s+(\S+)`)
var goBuildErrRe = regexp.MustCompile(`(?m)^# (\S+)`)

func (p *GoTestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var result goTestResult

	combined := stdout
	if stderr != "" {
		combined += "\n" + stderr
	}

	pkgByOrder := []string{}
	for _, m := range goTestPkgFailRe.FindAllStringSubmatch(combined, -1) {
		pkgByOrder = append(pkgByOrder, m[1])
	}
	result.Packages = pkgByOrder

	for _, m := range goTestFailRe.FindAllStringSubmatch(combined, -1) {
		result.Findings = append(result.Findings, goTestFinding{Test: m[1]})
	}
	result.Failed = len(result.Findings)

	passed := exitCode == 0
	if passed {
		return ParseResult{Passed: true, Summary: "all tests passed", Findings: result}
	}

	// Compile failure inside go test shows up as "# pkg" blocks with no
	// per-test failures.
	if result.Failed == 0 {
		if m := goBuildErrRe.FindStringSubmatch(combined); m != nil {
			return ParseResult{
				Passed:   false,
				Summary:  fmt.Sprintf("build failed in %s", m[1]),
				Findings: result,
			}
		}
		return ParseResult{
			Passed:   false,
			Summary:  fmt.Sprintf("go test failed (exit code %d)", exitCode),
			Findings: result,
		}
	}

	names := make([]string, 0, len(result.Findings))
	for _, f := range result.Findings {
		names = append(names, f.Test)
	}
	limit := len(names)
	if limit > 5 {
		limit = 5
	}
	summary := fmt.Sprintf("%d tests failed: %s", result.Failed, strings.Join(names[:limit], ", "))

	return ParseResult{
		Passed:   false,
		Summary:  summary,
		Findings: result,
	}
}
