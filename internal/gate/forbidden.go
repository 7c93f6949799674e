package gate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lucasnoah/greenlight/internal/classify"
	"github.com/lucasnoah/greenlight/internal/ecosystem"
)

// Rule is one forbidden source pattern.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Message  string
	ProdOnly bool // exempt test files from this rule
}

// Built-in rule sets per ecosystem. Production files reject unconditional
// unchecked-failure constructs, not-implemented markers, and debug prints;
// test files are exempt from the unchecked-failure rule only.
var notImplementedRule = Rule{
	Name:    "not-implemented",
	Pattern: regexp.MustCompile(`(?i)\b(TODO|FIXME|XXX)\b|not.?implemented|unimplemented`),
	Message: "not-implemented marker",
}

func rulesFor(kind ecosystem.Kind) []Rule {
	rules := []Rule{notImplementedRule}
	switch kind {
	case ecosystem.Go:
		rules = append(rules,
			Rule{Name: "unchecked-failure", Pattern: regexp.MustCompile(`\bpanic\(|\blog\.Fatal`), Message: "unconditional failure construct", ProdOnly: true},
			Rule{Name: "debug-print", Pattern: regexp.MustCompile(`\bfmt\.Print(ln|f)?\(`), Message: "debug print statement", ProdOnly: true},
		)
	case ecosystem.Node:
		rules = append(rules,
			Rule{Name: "unchecked-failure", Pattern: regexp.MustCompile(`\bprocess\.exit\(|\bdebugger\b`), Message: "unconditional failure construct", ProdOnly: true},
			Rule{Name: "debug-print", Pattern: regexp.MustCompile(`\bconsole\.(log|debug)\(`), Message: "debug print statement", ProdOnly: true},
		)
	case ecosystem.Python:
		rules = append(rules,
			Rule{Name: "unchecked-failure", Pattern: regexp.MustCompile(`\bsys\.exit\(|^\s*assert\s`), Message: "unconditional failure construct", ProdOnly: true},
			Rule{Name: "debug-print", Pattern: regexp.MustCompile(`\bprint\(|\bbreakpoint\(`), Message: "debug print statement", ProdOnly: true},
		)
	case ecosystem.Rust:
		rules = append(rules,
			Rule{Name: "unchecked-failure", Pattern: regexp.MustCompile(`\.unwrap\(\)|\bpanic!\(|\btodo!\(|\bunimplemented!\(`), Message: "unconditional failure construct", ProdOnly: true},
			Rule{Name: "debug-print", Pattern: regexp.MustCompile(`\bprintln!\(|\bdbg!\(`), Message: "debug print statement", ProdOnly: true},
		)
	}
	return rules
}

// skipDirs are never scanned.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
	".venv":        true,
}

// testDirSegments are path segments that mark a file as a test file.
var testDirSegments = map[string]bool{
	"test":      true,
	"tests":     true,
	"__tests__": true,
	"testdata":  true,
	"spec":      true,
}

var testFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`_test\.go$`),
	regexp.MustCompile(`\.(test|spec)\.(js|jsx|ts|tsx)$`),
	regexp.MustCompile(`(^|/)test_[^/]+\.py$`),
	regexp.MustCompile(`_test\.py$`),
}

// rustTestMarker marks an inline Rust test module.
var rustTestMarker = []byte("#[cfg(test)]")

// isTestFile applies the fixed production/test partition predicate: a path
// under a recognized test location, a test filename pattern, or (Rust) an
// inline test-module marker in the content.
func isTestFile(relPath string, content []byte, kind ecosystem.Kind) bool {
	slashPath := filepath.ToSlash(relPath)
	for _, seg := range strings.Split(slashPath, "/") {
		if testDirSegments[seg] {
			return true
		}
	}
	for _, re := range testFilePatterns {
		if re.MatchString(slashPath) {
			return true
		}
	}
	if kind == ecosystem.Rust && containsBytes(content, rustTestMarker) {
		return true
	}
	return false
}

func containsBytes(haystack, needle []byte) bool {
	return strings.Contains(string(haystack), string(needle))
}

// Scan walks the source tree under dir and returns one issue per forbidden
// pattern occurrence. extra rules are applied after the built-ins.
func Scan(dir string, kind ecosystem.Kind, extra []Rule) ([]Issue, error) {
	exts := make(map[string]bool)
	for _, e := range ecosystem.SourceExtensions(kind) {
		exts[e] = true
	}
	if len(exts) == 0 {
		return nil, nil
	}

	rules := append(rulesFor(kind), extra...)

	var issues []Issue
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !exts[filepath.Ext(path)] {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}

		fileIssues := scanFile(rel, content, rules, isTestFile(rel, content, kind))
		issues = append(issues, fileIssues...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

// scanFile applies the rule set to one file's content line by line.
func scanFile(relPath string, content []byte, rules []Rule, testFile bool) []Issue {
	var issues []Issue

	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, rule := range rules {
			if rule.ProdOnly && testFile {
				continue
			}
			if !rule.Pattern.MatchString(line) {
				continue
			}
			issues = append(issues, Issue{
				Category: classify.LintWarning,
				Check:    "forbidden",
				File:     relPath,
				Line:     lineNo,
				Message:  fmt.Sprintf("%s (%s)", rule.Message, rule.Name),
				Severity: "error",
			})
		}
	}
	return issues
}
