package monitor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/lucasnoah/greenlight/internal/ci"
)

// Verdict is the terminal outcome of watching a commit's CI runs.
type Verdict string

const (
	VerdictSuccess   Verdict = "success"
	VerdictFailure   Verdict = "failure"
	VerdictTimeout   Verdict = "timeout"
	VerdictCancelled Verdict = "cancelled"
)

// Outcome reports what the watch observed.
type Outcome struct {
	Verdict   Verdict       `json:"verdict"`
	FailedRun *ci.Run       `json:"failed_run,omitempty"`
	Logs      string        `json:"logs,omitempty"`
	RunIDs    []int64       `json:"run_ids,omitempty"` // every run observed for the commit, append-only
	Pending   []string      `json:"pending,omitempty"` // run names still unfinished at timeout
	Polls     int           `json:"polls"`
	Elapsed   time.Duration `json:"elapsed"`
}

// noteRuns accumulates the identifiers of every run seen across polls.
// Workflows can register late, so the set grows; it never shrinks.
func (o *Outcome) noteRuns(runs []ci.Run) {
	for i := range runs {
		id := runs[i].ID
		known := false
		for _, have := range o.RunIDs {
			if have == id {
				known = true
				break
			}
		}
		if !known {
			o.RunIDs = append(o.RunIDs, id)
		}
	}
}

// Monitor polls remote CI until a commit's runs all succeed, one fails,
// or the wall-clock ceiling is hit. Polling is adaptive: young runs are
// checked frequently, long-running ones back off.
type Monitor struct {
	provider ci.Provider

	FastInterval time.Duration // while the newest run is younger than AgeThreshold
	SlowInterval time.Duration
	AgeThreshold time.Duration
	Ceiling      time.Duration

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	progress io.Writer
}

// New creates a Monitor with the default polling profile.
func New(provider ci.Provider) *Monitor {
	return &Monitor{
		provider:     provider,
		FastInterval: 15 * time.Second,
		SlowInterval: 60 * time.Second,
		AgeThreshold: 10 * time.Minute,
		Ceiling:      4 * time.Hour,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

// SetProgress sets a writer for live progress output.
func (m *Monitor) SetProgress(w io.Writer) {
	m.progress = w
}

func (m *Monitor) logf(format string, args ...interface{}) {
	if m.progress != nil {
		fmt.Fprintf(m.progress, "  → "+format+"\n", args...)
	}
}

// Watch polls CI for the runs triggered by commit until a verdict is
// reached. Cancellation is honored only between polls: a poll in flight
// always completes so the observed state stays consistent.
func (m *Monitor) Watch(ctx context.Context, commit string) (*Outcome, error) {
	start := m.now()
	outcome := &Outcome{}

	for {
		outcome.Polls++
		runs, err := m.provider.ListRuns(commit)
		if err != nil {
			return nil, fmt.Errorf("poll CI runs: %w", err)
		}
		outcome.noteRuns(runs)

		verdict := m.evaluate(runs, outcome)
		if verdict != "" {
			outcome.Verdict = verdict
			outcome.Elapsed = m.now().Sub(start)
			return outcome, nil
		}

		elapsed := m.now().Sub(start)
		if elapsed >= m.Ceiling {
			outcome.Verdict = VerdictTimeout
			outcome.Pending = pendingNames(runs)
			outcome.Elapsed = elapsed
			m.logf("ceiling reached after %s with %d runs pending", elapsed.Round(time.Second), len(outcome.Pending))
			return outcome, nil
		}

		interval := m.intervalFor(runs)
		m.logf("%d runs pending, next poll in %s", len(pendingNames(runs)), interval)
		if err := m.sleep(ctx, interval); err != nil {
			outcome.Verdict = VerdictCancelled
			outcome.Elapsed = m.now().Sub(start)
			return outcome, nil
		}
	}
}

// evaluate inspects the current run set. It returns a verdict, or empty
// when the watch must continue. Failure wins immediately over still-
// pending runs so remediation starts as early as possible.
func (m *Monitor) evaluate(runs []ci.Run, outcome *Outcome) Verdict {
	if len(runs) == 0 {
		// Workflows have not been registered for the commit yet.
		return ""
	}

	allDone := true
	for i := range runs {
		run := &runs[i]
		if run.Failed() {
			logs, err := m.provider.FailedLogs(run.ID)
			if err != nil {
				logs = fmt.Sprintf("log retrieval failed: %v", err)
			}
			m.logf("run %q concluded %s", run.Name, run.Conclusion)
			outcome.FailedRun = run
			outcome.Logs = logs
			return VerdictFailure
		}
		if !run.Completed() {
			allDone = false
		}
	}
	if allDone {
		m.logf("all %d runs succeeded", len(runs))
		return VerdictSuccess
	}
	return ""
}

// intervalFor picks the poll interval from the age of the newest run.
func (m *Monitor) intervalFor(runs []ci.Run) time.Duration {
	now := m.now()
	for i := range runs {
		if runs[i].Age(now) < m.AgeThreshold {
			return m.FastInterval
		}
	}
	if len(runs) == 0 {
		return m.FastInterval
	}
	return m.SlowInterval
}

func pendingNames(runs []ci.Run) []string {
	var names []string
	for i := range runs {
		if !runs[i].Completed() {
			names = append(names, runs[i].Name)
		}
	}
	return names
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
