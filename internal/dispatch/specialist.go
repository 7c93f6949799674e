package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandSpecialist runs a configured external command as a remediation
// capability. The request is written to the command's stdin as JSON; the
// command mutates the working tree and reports a Response as JSON on
// stdout. Exit code 0 with no parseable response is treated as success
// with no file report.
type CommandSpecialist struct {
	Name    string
	Command string
	Dir     string
	Timeout time.Duration
}

// NewCommandSpecialist creates a command-backed specialist rooted at dir.
func NewCommandSpecialist(name, command, dir string) *CommandSpecialist {
	return &CommandSpecialist{
		Name:    name,
		Command: command,
		Dir:     dir,
		Timeout: 30 * time.Minute,
	}
}

// Remediate invokes the external command with the request on stdin.
func (c *CommandSpecialist) Remediate(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", c.Command)
	cmd.Dir = c.Dir
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("specialist %q timed out after %s", c.Name, c.Timeout)
	}
	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("invoke specialist %q: %w", c.Name, runErr)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("specialist %q failed: %s", c.Name, detail)
	}

	// The response is the last JSON object on stdout; anything before it
	// is the specialist's own progress chatter.
	if resp := parseResponse(stdout.String()); resp != nil {
		return resp, nil
	}
	return &Response{Success: true}, nil
}

func parseResponse(out string) *Response {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var resp Response
		if json.Unmarshal([]byte(line), &resp) == nil {
			return &resp
		}
	}
	return nil
}
