package checks

import (
	"encoding/json"
	"fmt"
)

// ESLintParser parses ESLint JSON output.
type ESLintParser struct{}

type eslintMessage struct {
	RuleID   string `json:"ruleId"`
	Severity int    `json:"severity"` // 1=warning, 2=error
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

type eslintFile struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

type eslintFinding struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Rule     string `json:"rule"`
	Message  string `json:"message"`
}

type eslintResult struct {
	Errors   int             `json:"errors"`
	Warnings int             `json:"warnings"`
	Findings []eslintFinding `json:"findings"`
}

func (p *ESLintParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var files []eslintFile
	if err := json.Unmarshal([]byte(stdout), &files); err != nil {
		return ParseResult{
			Passed:   exitCode == 0,
			Summary:  fmt.Sprintf("exit code %d (could not parse ESLint JSON)", exitCode),
			Findings: eslintResult{Errors: -1},
		}
	}

	var result eslintResult
	for _, f := range files {
		for _, m := range f.Messages {
			sev := "warning"
			if m.Severity == 2 {
				sev = "error"
				result.Errors++
			} else {
				result.Warnings++
			}
			result.Findings = append(result.Findings, eslintFinding{
				File:     f.FilePath,
				Line:     m.Line,
				Severity: sev,
				Rule:     m.RuleID,
				Message:  m.Message,
			})
		}
	}

	return ParseResult{
		Passed:   result.Errors == 0,
		Summary:  fmt.Sprintf("%d errors, %d warnings", result.Errors, result.Warnings),
		Findings: result,
	}
}
