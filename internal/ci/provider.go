package ci

import "time"

// Run represents one remote CI workflow run.
type Run struct {
	ID         int64     `json:"databaseId"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`     // queued, in_progress, completed
	Conclusion string    `json:"conclusion"` // success, failure, cancelled, timed_out, ...
	HeadSHA    string    `json:"headSha"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Completed reports whether the run has reached a terminal status.
func (r *Run) Completed() bool {
	return r.Status == "completed"
}

// Failed reports whether a completed run concluded unsuccessfully.
// Cancellation and timeouts count as failures: the commit is not green.
func (r *Run) Failed() bool {
	return r.Completed() && r.Conclusion != "success" && r.Conclusion != "skipped" && r.Conclusion != "neutral"
}

// Age returns how long ago the run was created.
func (r *Run) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Provider abstracts the remote CI system. Implementations are read-mostly:
// the only mutation is re-running failed jobs.
type Provider interface {
	// ListRuns returns the workflow runs triggered by a commit.
	ListRuns(commit string) ([]Run, error)
	// GetRun returns the current state of one run.
	GetRun(id int64) (*Run, error)
	// FailedLogs returns the log text of a run's failed jobs.
	FailedLogs(id int64) (string, error)
	// Rerun re-executes a run, optionally only its failed jobs. GitHub
	// re-runs under the same run id, so no new identifier is returned;
	// the next ListRuns poll picks up the refreshed state.
	Rerun(id int64, failedOnly bool) error
}
