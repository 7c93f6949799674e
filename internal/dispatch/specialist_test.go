package dispatch

import (
	"context"
	"testing"
	"time"
)

func TestCommandSpecialist_ParsesResponse(t *testing.T) {
	s := NewCommandSpecialist("tests", `echo 'working on it'; echo '{"success":true,"changed_files":["a.go"]}'`, t.TempDir())

	resp, err := s.Remediate(context.Background(), Request{Evidence: "--- FAIL: TestX"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if len(resp.ChangedFiles) != 1 || resp.ChangedFiles[0] != "a.go" {
		t.Errorf("unexpected changed files: %v", resp.ChangedFiles)
	}
}

func TestCommandSpecialist_ExitZeroWithoutResponse(t *testing.T) {
	s := NewCommandSpecialist("docs", "true", t.TempDir())

	resp, err := s.Remediate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Error("exit 0 without a response payload should count as success")
	}
}

func TestCommandSpecialist_NonzeroExitIsError(t *testing.T) {
	s := NewCommandSpecialist("build", "echo 'cannot fix' >&2; exit 1", t.TempDir())

	if _, err := s.Remediate(context.Background(), Request{}); err == nil {
		t.Error("expected error on nonzero exit")
	}
}

func TestCommandSpecialist_ReadsRequestFromStdin(t *testing.T) {
	// The command echoes stdin back inside a response payload field it
	// ignores, proving the request reached it.
	s := NewCommandSpecialist("tests", `grep -q 'TestAPI' && echo '{"success":true}' || exit 1`, t.TempDir())

	resp, err := s.Remediate(context.Background(), Request{Evidence: "--- FAIL: TestAPI"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
}

func TestCommandSpecialist_Timeout(t *testing.T) {
	s := NewCommandSpecialist("slow", "sleep 5", t.TempDir())
	s.Timeout = 50 * time.Millisecond

	if _, err := s.Remediate(context.Background(), Request{}); err == nil {
		t.Error("expected timeout error")
	}
}
