package ecosystem

import "time"

// CheckSpec describes one toolchain check in the gate battery. The gate
// never branches on ecosystem; it just runs the specs it is handed.
type CheckSpec struct {
	Name       string
	Command    string
	Parser     string
	Timeout    time.Duration
	AutoFix    bool
	FixCommand string
}

// Battery returns the built-in check battery for an ecosystem, in gate
// order: format, build, lint, test, audit. The forbidden-pattern scan and
// the documentation check run in-process and are not part of the battery.
// Config may override any command by name.
func Battery(kind Kind) []CheckSpec {
	switch kind {
	case Go:
		return []CheckSpec{
			{Name: "format", Command: "gofmt -l .", Parser: "gofmt", AutoFix: true, FixCommand: "gofmt -w ."},
			{Name: "build", Command: "go build ./...", Parser: "generic", Timeout: 5 * time.Minute},
			{Name: "lint", Command: "go vet ./...", Parser: "generic"},
			{Name: "test", Command: "go test ./...", Parser: "gotest", Timeout: 10 * time.Minute},
			{Name: "audit", Command: "govulncheck ./...", Parser: "generic", Timeout: 5 * time.Minute},
		}
	case Node:
		return []CheckSpec{
			{Name: "format", Command: "npx prettier --check .", Parser: "generic", AutoFix: true, FixCommand: "npx prettier --write ."},
			{Name: "build", Command: "npx tsc --noEmit", Parser: "generic", Timeout: 5 * time.Minute},
			{Name: "lint", Command: "npx eslint . -f json", Parser: "eslint", AutoFix: true, FixCommand: "npx eslint . --fix"},
			{Name: "test", Command: "npm test --silent", Parser: "generic", Timeout: 10 * time.Minute},
			{Name: "audit", Command: "npm audit --json --audit-level=high", Parser: "npm-audit"},
		}
	case Python:
		return []CheckSpec{
			{Name: "format", Command: "ruff format --check .", Parser: "generic", AutoFix: true, FixCommand: "ruff format ."},
			{Name: "build", Command: "python -m compileall -q .", Parser: "generic"},
			{Name: "lint", Command: "ruff check .", Parser: "generic", AutoFix: true, FixCommand: "ruff check --fix ."},
			{Name: "test", Command: "pytest -q", Parser: "generic", Timeout: 10 * time.Minute},
			{Name: "audit", Command: "pip-audit", Parser: "generic", Timeout: 5 * time.Minute},
		}
	case Rust:
		return []CheckSpec{
			{Name: "format", Command: "cargo fmt --check", Parser: "generic", AutoFix: true, FixCommand: "cargo fmt"},
			{Name: "build", Command: "cargo build --quiet", Parser: "generic", Timeout: 10 * time.Minute},
			{Name: "lint", Command: "cargo clippy --quiet -- -D warnings", Parser: "generic", Timeout: 10 * time.Minute},
			{Name: "test", Command: "cargo test --quiet", Parser: "generic", Timeout: 10 * time.Minute},
			{Name: "audit", Command: "cargo audit", Parser: "generic"},
		}
	default:
		return nil
	}
}

// SourceExtensions returns the source file extensions the forbidden-pattern
// scan should visit for an ecosystem.
func SourceExtensions(kind Kind) []string {
	switch kind {
	case Go:
		return []string{".go"}
	case Node:
		return []string{".js", ".jsx", ".ts", ".tsx"}
	case Python:
		return []string{".py"}
	case Rust:
		return []string{".rs"}
	default:
		return nil
	}
}
