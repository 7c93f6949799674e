package state

import (
	"time"

	"github.com/lucasnoah/greenlight/internal/classify"
	"github.com/lucasnoah/greenlight/internal/gate"
)

// Phase is the orchestration state machine position.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseGating      Phase = "gating"
	PhaseFixing      Phase = "fixing"
	PhaseCommitting  Phase = "committing"
	PhaseMonitoring  Phase = "monitoring"
	PhaseRemediating Phase = "remediating"
	PhaseSucceeded   Phase = "succeeded"
	PhaseBlocked     Phase = "blocked"
	PhaseTimedOut    Phase = "timed_out"
	PhaseCancelled   Phase = "cancelled"
)

// Terminal reports whether the phase ends the orchestration.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseSucceeded, PhaseBlocked, PhaseTimedOut, PhaseCancelled:
		return true
	}
	return false
}

// Transition is one append-only state machine move.
type Transition struct {
	From   Phase  `json:"from"`
	To     Phase  `json:"to"`
	At     string `json:"at"`
	Reason string `json:"reason,omitempty"`
}

// AppliedFix records one remediation attempt and its outcome.
type AppliedFix struct {
	Category classify.Category `json:"category"`
	Kind     string            `json:"kind"`   // auto_command or delegate
	Target   string            `json:"target"` // the command or specialist name
	Success  bool              `json:"success"`
	Scope    string            `json:"scope"` // local or remote
	At       string            `json:"at"`
}

// OrchestrationState is the durable record of one submission, written
// before every irreversible side effect so a crash resumes cleanly.
type OrchestrationState struct {
	ID        string `json:"id"`
	Workdir   string `json:"workdir"`
	Branch    string `json:"branch"`
	Ecosystem string `json:"ecosystem"`
	Phase     Phase  `json:"phase"`

	LocalAttempts  int `json:"local_attempts"`
	RemoteAttempts int `json:"remote_attempts"`
	MaxLocal       int `json:"max_local"`
	MaxRemote      int `json:"max_remote"`

	CommitSHA     string `json:"commit_sha,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`

	// SeenRuns maps a commit SHA to the CI run IDs observed for it, so a
	// resumed monitor never re-triggers or double-counts runs.
	SeenRuns map[string][]int64 `json:"seen_runs,omitempty"`

	AppliedFixes []AppliedFix `json:"applied_fixes"`
	Transitions  []Transition `json:"transitions"`

	LastGate       *gate.Result             `json:"last_gate,omitempty"`
	LastFailure    *classify.Classification `json:"last_failure,omitempty"`
	TerminalReason string                   `json:"terminal_reason,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// MoveTo appends a transition and advances the phase. Transitions are
// append-only history and never rewritten.
func (s *OrchestrationState) MoveTo(to Phase, reason string) {
	now := time.Now().UTC().Format(time.RFC3339)
	s.Transitions = append(s.Transitions, Transition{
		From:   s.Phase,
		To:     to,
		At:     now,
		Reason: reason,
	})
	s.Phase = to
	s.UpdatedAt = now
}

// RecordRun remembers a CI run ID observed for a commit.
func (s *OrchestrationState) RecordRun(commit string, runID int64) {
	if s.SeenRuns == nil {
		s.SeenRuns = make(map[string][]int64)
	}
	for _, id := range s.SeenRuns[commit] {
		if id == runID {
			return
		}
	}
	s.SeenRuns[commit] = append(s.SeenRuns[commit], runID)
}
