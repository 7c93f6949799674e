package checks

import (
	"fmt"
	"strings"
)

// GofmtParser parses `gofmt -l` style output: one unformatted file per line,
// empty output means everything is formatted. gofmt exits 0 either way, so
// the file list is the signal, not the exit code.
type GofmtParser struct{}

type gofmtResult struct {
	Unformatted []string `json:"unformatted"`
}

func (p *GofmtParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode != 0 {
		return ParseResult{
			Passed:   false,
			Summary:  fmt.Sprintf("formatter failed (exit code %d)", exitCode),
			Findings: gofmtResult{},
		}
	}

	var files []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}

	if len(files) == 0 {
		return ParseResult{Passed: true, Summary: "all files formatted", Findings: gofmtResult{}}
	}

	return ParseResult{
		Passed:   false,
		Summary:  fmt.Sprintf("%d files need formatting", len(files)),
		Findings: gofmtResult{Unformatted: files},
	}
}
