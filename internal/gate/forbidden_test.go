package gate

import (
	"regexp"
	"testing"

	"github.com/lucasnoah/greenlight/internal/ecosystem"
)

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path string
		kind ecosystem.Kind
		want bool
	}{
		{"foo_test.go", ecosystem.Go, true},
		{"internal/gate/gate.go", ecosystem.Go, false},
		{"src/__tests__/app.js", ecosystem.Node, true},
		{"src/app.test.ts", ecosystem.Node, true},
		{"src/app.spec.tsx", ecosystem.Node, true},
		{"src/app.ts", ecosystem.Node, false},
		{"tests/test_util.py", ecosystem.Python, true},
		{"pkg/util.py", ecosystem.Python, false},
		{"tests/integration.rs", ecosystem.Rust, true},
		{"src/lib.rs", ecosystem.Rust, false},
	}
	for _, tt := range tests {
		if got := isTestFile(tt.path, nil, tt.kind); got != tt.want {
			t.Errorf("isTestFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsTestFile_RustInlineMarker(t *testing.T) {
	content := []byte("fn add() {}\n\n#[cfg(test)]\nmod tests {}\n")
	if !isTestFile("src/lib.rs", content, ecosystem.Rust) {
		t.Error("expected inline #[cfg(test)] to mark file as test")
	}
}

func TestScanFile_ProdVsTest(t *testing.T) {
	rules := rulesFor(ecosystem.Go)
	content := []byte("package x\n\nfunc f() {\n\tpanic(\"no\")\n\t// TODO fix this\n}\n")

	prod := scanFile("f.go", content, rules, false)
	if len(prod) != 2 {
		t.Fatalf("expected 2 issues in production file, got %d: %+v", len(prod), prod)
	}

	// Test files are exempt from unchecked-failure but still forbidden
	// from carrying not-implemented markers.
	test := scanFile("f_test.go", content, rules, true)
	if len(test) != 1 {
		t.Fatalf("expected 1 issue in test file, got %d: %+v", len(test), test)
	}
	if test[0].Message != "not-implemented marker (not-implemented)" {
		t.Errorf("unexpected message %q", test[0].Message)
	}
}

func TestScan_SkipsVendoredDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.go", "package x\n")
	writeFile(t, dir, "vendor/dep/bad.go", "package dep\n\nfunc f() { panic(\"x\") }\n")
	writeFile(t, dir, "node_modules/pkg/bad.js", "console.log('x')\n")

	issues, err := Scan(dir, ecosystem.Go, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("expected vendored dirs skipped, got %+v", issues)
	}
}

func TestScan_ExtraRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n\nvar apiKey = \"hunter2\"\n")

	extra := []Rule{{
		Name:    "hardcoded-secret",
		Pattern: regexp.MustCompile(`apiKey\s*=`),
		Message: "hardcoded credential",
	}}
	issues, err := Scan(dir, ecosystem.Go, extra)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	if issues[0].Line != 3 {
		t.Errorf("expected line 3, got %d", issues[0].Line)
	}
}

func TestScan_LineNumbers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc f() {\n\tfmt.Println(\"debug\")\n}\n")

	issues, err := Scan(dir, ecosystem.Go, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d: %+v", len(issues), issues)
	}
	if issues[0].File != "a.go" || issues[0].Line != 4 {
		t.Errorf("expected a.go:4, got %s:%d", issues[0].File, issues[0].Line)
	}
}
