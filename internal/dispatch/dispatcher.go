package dispatch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/lucasnoah/greenlight/internal/checks"
	"github.com/lucasnoah/greenlight/internal/classify"
	"github.com/lucasnoah/greenlight/internal/ecosystem"
)

// Kind distinguishes the two remediation mechanisms.
type Kind string

const (
	AutoCommand          Kind = "auto_command"
	DelegateToSpecialist Kind = "delegate"
)

// FixAction is one concrete remediation step selected for a category.
type FixAction struct {
	Category   classify.Category `json:"category"`
	Kind       Kind              `json:"kind"`
	Command    string            `json:"command,omitempty"`
	Specialist string            `json:"specialist,omitempty"`
	Idempotent bool              `json:"idempotent"`
}

// Request packages everything a specialist needs to remediate a failure.
type Request struct {
	Classification classify.Classification `json:"classification"`
	Evidence       string                  `json:"evidence"`
	Files          []string                `json:"files,omitempty"`
}

// Response is what a specialist reports back. A reported success is
// trusted: the dispatcher re-enters the gate rather than inspecting the
// mutation itself.
type Response struct {
	Success      bool     `json:"success"`
	ChangedFiles []string `json:"changed_files,omitempty"`
}

// Specialist is a named external remediation capability.
type Specialist interface {
	Remediate(ctx context.Context, req Request) (*Response, error)
}

// Registry maps specialist names to implementations. New categories
// register new specialists without touching the dispatch table logic.
type Registry struct {
	specialists map[string]Specialist
}

// NewRegistry creates an empty specialist registry.
func NewRegistry() *Registry {
	return &Registry{specialists: make(map[string]Specialist)}
}

// Register binds a specialist name to an implementation.
func (r *Registry) Register(name string, s Specialist) {
	r.specialists[name] = s
}

// Lookup returns the specialist registered under name.
func (r *Registry) Lookup(name string) (Specialist, bool) {
	s, ok := r.specialists[name]
	return s, ok
}

// autoFixCommands maps ecosystems to their idempotent lint/format repair
// command. Re-applying any of these to a converged tree is a no-op.
var autoFixCommands = map[ecosystem.Kind]string{
	ecosystem.Go:     "gofmt -w .",
	ecosystem.Node:   "npx eslint . --fix && npx prettier --write .",
	ecosystem.Python: "ruff check --fix . && ruff format .",
	ecosystem.Rust:   "cargo fmt",
}

// depSyncCommands maps ecosystems to their dependency reconciliation command.
var depSyncCommands = map[ecosystem.Kind]string{
	ecosystem.Go:     "go mod tidy",
	ecosystem.Node:   "npm install",
	ecosystem.Python: "pip install -r requirements.txt",
	ecosystem.Rust:   "cargo fetch",
}

// Dispatcher maps a classification (or gate issue category) to exactly one
// FixAction via a static table.
type Dispatcher struct {
	table      map[classify.Category]FixAction
	registry   *Registry
	cmd        checks.CommandRunner
	cmdTimeout time.Duration
	progress   io.Writer
}

// New builds a Dispatcher with the static fix table for an ecosystem.
func New(cmd checks.CommandRunner, registry *Registry, kind ecosystem.Kind) *Dispatcher {
	table := map[classify.Category]FixAction{
		classify.LintWarning: {
			Category:   classify.LintWarning,
			Kind:       AutoCommand,
			Command:    autoFixCommands[kind],
			Idempotent: true,
		},
		classify.DependencyConflict: {
			Category:   classify.DependencyConflict,
			Kind:       AutoCommand,
			Command:    depSyncCommands[kind],
			Idempotent: true,
		},
		classify.CompileError: {
			Category:   classify.CompileError,
			Kind:       DelegateToSpecialist,
			Specialist: "build",
		},
		classify.TestFailure: {
			Category:   classify.TestFailure,
			Kind:       DelegateToSpecialist,
			Specialist: "tests",
		},
		classify.SecurityVuln: {
			Category:   classify.SecurityVuln,
			Kind:       DelegateToSpecialist,
			Specialist: "security",
		},
		classify.DocMissing: {
			Category:   classify.DocMissing,
			Kind:       DelegateToSpecialist,
			Specialist: "docs",
		},
	}

	return &Dispatcher{
		table:      table,
		registry:   registry,
		cmd:        cmd,
		cmdTimeout: 5 * time.Minute,
	}
}

// SetProgress sets a writer for live progress output.
func (d *Dispatcher) SetProgress(w io.Writer) {
	d.progress = w
}

// SetCommandTimeout overrides the AutoCommand timeout (for testing).
func (d *Dispatcher) SetCommandTimeout(t time.Duration) {
	d.cmdTimeout = t
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.progress != nil {
		fmt.Fprintf(d.progress, "  → "+format+"\n", args...)
	}
}

// ActionFor returns the fix action for a category. Unknown (and anything
// unmapped) yields no action: blind repair of unrecognized failures is
// escalated instead of retried.
func (d *Dispatcher) ActionFor(category classify.Category) (FixAction, bool) {
	action, ok := d.table[category]
	return action, ok
}

// Outcome records what one applied FixAction did.
type Outcome struct {
	Action       FixAction `json:"action"`
	Success      bool      `json:"success"`
	ChangedFiles []string  `json:"changed_files,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}

// Apply executes one FixAction in dir. A failed action is an Outcome, not
// an error: the controller always re-measures with a fresh gate run either
// way. Errors are reserved for misconfiguration (unregistered specialist).
func (d *Dispatcher) Apply(ctx context.Context, dir string, action FixAction, req Request) (*Outcome, error) {
	switch action.Kind {
	case AutoCommand:
		if action.Command == "" {
			return nil, fmt.Errorf("no auto command configured for category %q", action.Category)
		}
		d.logf("auto fix: %s", action.Command)
		cmdCtx, cancel := context.WithTimeout(ctx, d.cmdTimeout)
		defer cancel()
		_, stderr, exitCode, err := d.cmd.Run(cmdCtx, dir, action.Command)
		if err != nil {
			return &Outcome{Action: action, Success: false, Detail: err.Error()}, nil
		}
		return &Outcome{
			Action:  action,
			Success: exitCode == 0,
			Detail:  firstLine(stderr),
		}, nil

	case DelegateToSpecialist:
		specialist, ok := d.registry.Lookup(action.Specialist)
		if !ok {
			return nil, fmt.Errorf("specialist %q not registered", action.Specialist)
		}
		d.logf("delegating to specialist %q", action.Specialist)
		resp, err := specialist.Remediate(ctx, req)
		if err != nil {
			return &Outcome{Action: action, Success: false, Detail: err.Error()}, nil
		}
		return &Outcome{
			Action:       action,
			Success:      resp.Success,
			ChangedFiles: resp.ChangedFiles,
		}, nil

	default:
		return nil, fmt.Errorf("unknown fix action kind %q", action.Kind)
	}
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
