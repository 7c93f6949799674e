package checks

import "fmt"

// GenericParser handles any check that only speaks through its exit code.
// On failure it keeps the tail of the combined output as findings, which
// is where compilers, test runners, and auditors put their conclusions.
type GenericParser struct{}

// genericTailBytes caps how much combined output survives into findings.
// Sized so a full failure log section fits but a hung tool's spew does not.
const genericTailBytes = 6000

func (p *GenericParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		return ParseResult{Passed: true, Summary: "passed (exit code 0)"}
	}

	combined := stdout
	if stderr != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += stderr
	}
	if len(combined) > genericTailBytes {
		combined = "[output truncated]\n" + combined[len(combined)-genericTailBytes:]
	}

	return ParseResult{
		Passed:   false,
		Summary:  fmt.Sprintf("exit code %d (%d bytes of output)", exitCode, len(stdout)+len(stderr)),
		Findings: combined,
	}
}
