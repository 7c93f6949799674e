package ci

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CmdRunner provides gh command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// runFields is the JSON field set requested from gh for workflow runs.
const runFields = "databaseId,name,status,conclusion,headSha,url,createdAt"

// GHProvider implements Provider on top of the gh CLI.
type GHProvider struct {
	cmd CmdRunner
}

// NewGHProvider creates a gh-backed CI provider.
func NewGHProvider(cmd CmdRunner) *GHProvider {
	return &GHProvider{cmd: cmd}
}

// ListRuns returns the workflow runs for a commit.
func (p *GHProvider) ListRuns(commit string) ([]Run, error) {
	if commit == "" {
		return nil, fmt.Errorf("empty commit SHA")
	}
	out, err := p.cmd.Run("run", "list", "--commit", commit, "--json", runFields)
	if err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", shortSHA(commit), err)
	}

	var runs []Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		return nil, fmt.Errorf("parse run list JSON: %w", err)
	}
	return runs, nil
}

// GetRun returns the current state of one run.
func (p *GHProvider) GetRun(id int64) (*Run, error) {
	out, err := p.cmd.Run("run", "view", strconv.FormatInt(id, 10), "--json", runFields)
	if err != nil {
		return nil, fmt.Errorf("view run %d: %w", id, err)
	}

	var run Run
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		return nil, fmt.Errorf("parse run JSON: %w", err)
	}
	return &run, nil
}

// FailedLogs returns the log text of a run's failed jobs.
func (p *GHProvider) FailedLogs(id int64) (string, error) {
	out, err := p.cmd.Run("run", "view", strconv.FormatInt(id, 10), "--log-failed")
	if err != nil {
		return "", fmt.Errorf("fetch failed logs for run %d: %w", id, err)
	}
	return out, nil
}

// Rerun re-executes a run. With failedOnly, only failed jobs rerun.
func (p *GHProvider) Rerun(id int64, failedOnly bool) error {
	args := []string{"run", "rerun", strconv.FormatInt(id, 10)}
	if failedOnly {
		args = append(args, "--failed")
	}
	if _, err := p.cmd.Run(args...); err != nil {
		return fmt.Errorf("rerun run %d: %w", id, err)
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
