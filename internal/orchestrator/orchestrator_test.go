package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/greenlight/internal/checks"
	"github.com/lucasnoah/greenlight/internal/ci"
	"github.com/lucasnoah/greenlight/internal/config"
	"github.com/lucasnoah/greenlight/internal/db"
	"github.com/lucasnoah/greenlight/internal/dispatch"
	"github.com/lucasnoah/greenlight/internal/ecosystem"
	"github.com/lucasnoah/greenlight/internal/gate"
	"github.com/lucasnoah/greenlight/internal/gitops"
	"github.com/lucasnoah/greenlight/internal/monitor"
	"github.com/lucasnoah/greenlight/internal/state"
)

type cmdResult struct {
	stdout string
	exit   int
}

// seqCmd serves scripted results keyed by command substring. Each key
// holds a queue of results; the last one repeats once consumed.
type seqCmd struct {
	seq   map[string][]cmdResult
	calls []string
}

func (s *seqCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	s.calls = append(s.calls, command)
	for substr, queue := range s.seq {
		if !strings.Contains(command, substr) {
			continue
		}
		if len(queue) == 0 {
			return "", "", 0, nil
		}
		r := queue[0]
		if len(queue) > 1 {
			s.seq[substr] = queue[1:]
		}
		return r.stdout, "", r.exit, nil
	}
	return "", "", 0, nil
}

// fakeGit answers git queries from scripted queues.
type fakeGit struct {
	dirty  []bool   // successive "status --porcelain" answers; default clean
	heads  []string // successive "rev-parse HEAD" answers; last repeats
	branch string
	calls  []string
}

func (g *fakeGit) RunGit(dir string, args ...string) (string, error) {
	call := strings.Join(args, " ")
	g.calls = append(g.calls, call)
	switch {
	case call == "status --porcelain":
		if len(g.dirty) == 0 {
			return "", nil
		}
		d := g.dirty[0]
		g.dirty = g.dirty[1:]
		if d {
			return " M main.go", nil
		}
		return "", nil
	case call == "rev-parse HEAD":
		if len(g.heads) == 0 {
			return "deadbeef", nil
		}
		h := g.heads[0]
		if len(g.heads) > 1 {
			g.heads = g.heads[1:]
		}
		return h, nil
	case call == "rev-parse --abbrev-ref HEAD":
		return g.branch, nil
	}
	return "", nil
}

// fakeCI serves scripted poll snapshots shared across Watch calls.
type fakeCI struct {
	polls  [][]ci.Run
	logs   map[int64]string
	reruns []int64
	idx    int
}

func (f *fakeCI) ListRuns(commit string) ([]ci.Run, error) {
	if f.idx < len(f.polls) {
		runs := f.polls[f.idx]
		f.idx++
		return runs, nil
	}
	return f.polls[len(f.polls)-1], nil
}

func (f *fakeCI) GetRun(id int64) (*ci.Run, error) { return nil, nil }

func (f *fakeCI) FailedLogs(id int64) (string, error) { return f.logs[id], nil }

func (f *fakeCI) Rerun(id int64, failedOnly bool) error {
	f.reruns = append(f.reruns, id)
	return nil
}

type fixture struct {
	ctl   *Controller
	store *state.Store
	db    *db.DB
	cmd   *seqCmd
	git   *fakeGit
	prov  *fakeCI
}

func newFixture(t *testing.T, cmd *seqCmd, git *fakeGit, prov *fakeCI, cfg *config.Config, registry *dispatch.Registry) *fixture {
	t.Helper()

	projDir := t.TempDir()
	writeProjFile(t, projDir, "README.md", strings.Repeat("greenlight demo project\n", 10))
	writeProjFile(t, projDir, "main.go", "package main\n\nfunc main() {}\n")

	store := state.NewStore(t.TempDir())
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if registry == nil {
		registry = dispatch.NewRegistry()
	}
	mon := monitor.New(prov)
	mon.FastInterval = time.Millisecond
	mon.SlowInterval = time.Millisecond

	ctl := NewController(
		store,
		database,
		gate.New(checks.NewRunner(cmd)),
		dispatch.New(cmd, registry, ecosystem.Go),
		gitops.NewRepo(git, projDir),
		prov,
		mon,
		cfg,
		ecosystem.Go,
	)
	return &fixture{ctl: ctl, store: store, db: database, cmd: cmd, git: git, prov: prov}
}

func writeProjFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func greenCI() *fakeCI {
	return &fakeCI{polls: [][]ci.Run{
		{{ID: 1, Name: "ci", Status: "completed", Conclusion: "success"}},
	}}
}

func TestSubmit_HappyPath(t *testing.T) {
	f := newFixture(t,
		&seqCmd{seq: map[string][]cmdResult{}},
		&fakeGit{dirty: []bool{true, true}, heads: []string{"abc123"}, branch: "main"},
		greenCI(),
		config.Default(),
		nil,
	)

	report, err := f.ctl.Submit(context.Background(), SubmitOpts{Message: "add endpoint"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !report.Succeeded() {
		t.Fatalf("phase = %s (%s), want succeeded", report.Phase, report.Reason)
	}
	if report.CommitSHA != "abc123" {
		t.Errorf("commit sha = %q", report.CommitSHA)
	}

	var phases []state.Phase
	for _, tr := range report.Transitions {
		phases = append(phases, tr.To)
	}
	want := []state.Phase{state.PhaseGating, state.PhaseCommitting, state.PhaseMonitoring, state.PhaseSucceeded}
	if len(phases) != len(want) {
		t.Fatalf("transitions = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, phases[i], want[i])
		}
	}

	// Terminal orchestrations leave the live set but stay readable.
	live, err := f.store.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 0 {
		t.Errorf("expected archived orchestration, live set: %+v", live)
	}
	if _, err := f.store.Get(report.ID); err != nil {
		t.Errorf("archived orchestration unreadable: %v", err)
	}

	// Commit message reached git.
	var committed bool
	for _, call := range f.git.calls {
		if call == "commit -m add endpoint" {
			committed = true
		}
	}
	if !committed {
		t.Errorf("commit not issued, git calls: %v", f.git.calls)
	}
}

func TestSubmit_LocalFixLoop(t *testing.T) {
	cmd := &seqCmd{seq: map[string][]cmdResult{
		"go vet": {
			{stdout: "vet: unreachable code\nlint failed\n", exit: 1},
			{exit: 0},
		},
	}}
	f := newFixture(t,
		cmd,
		&fakeGit{dirty: []bool{true, true}, heads: []string{"abc123"}, branch: "main"},
		greenCI(),
		config.Default(),
		nil,
	)

	report, err := f.ctl.Submit(context.Background(), SubmitOpts{Message: "fix vet"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !report.Succeeded() {
		t.Fatalf("phase = %s (%s), want succeeded", report.Phase, report.Reason)
	}
	if report.LocalAttempts != 1 {
		t.Errorf("local attempts = %d, want 1", report.LocalAttempts)
	}
	if len(report.AppliedFixes) != 1 {
		t.Fatalf("applied fixes = %+v, want 1", report.AppliedFixes)
	}
	fix := report.AppliedFixes[0]
	if fix.Category != "lint_warning" || fix.Kind != "auto_command" || fix.Scope != "local" {
		t.Errorf("unexpected fix record: %+v", fix)
	}

	actions, err := f.db.GetFixActions(report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].Category != "lint_warning" {
		t.Errorf("unexpected db fix actions: %+v", actions)
	}
}

func TestSubmit_LocalBudgetExhausted(t *testing.T) {
	cfg := config.Default()
	cfg.Greenlight.Budgets.MaxLocalFixes = 2
	cmd := &seqCmd{seq: map[string][]cmdResult{
		"go vet": {{stdout: "vet: shadowed variable\nlint failed\n", exit: 1}},
	}}
	f := newFixture(t,
		cmd,
		&fakeGit{dirty: []bool{true}, branch: "main"},
		greenCI(),
		cfg,
		nil,
	)

	report, err := f.ctl.Submit(context.Background(), SubmitOpts{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if report.Phase != state.PhaseBlocked {
		t.Fatalf("phase = %s, want blocked", report.Phase)
	}
	if !strings.Contains(report.Reason, "budget exhausted") {
		t.Errorf("reason = %q", report.Reason)
	}
	if report.LocalAttempts != 2 {
		t.Errorf("local attempts = %d, want 2", report.LocalAttempts)
	}
	if len(report.Issues) == 0 {
		t.Error("expected remaining issues in the report")
	}
	if report.NextAction == "" {
		t.Error("expected a next action for a blocked orchestration")
	}
}

func TestSubmit_RemoteRemediation(t *testing.T) {
	prov := &fakeCI{
		polls: [][]ci.Run{
			{{ID: 7, Name: "tests", Status: "completed", Conclusion: "failure"}},
			{{ID: 8, Name: "tests", Status: "completed", Conclusion: "success"}},
		},
		logs: map[int64]string{7: "--- FAIL: TestAPI (0.01s)\nFAIL\texample.com/x\t0.1s"},
	}
	registry := dispatch.NewRegistry()
	spec := &stubSpecialist{resp: &dispatch.Response{Success: true, ChangedFiles: []string{"api.go"}}}
	registry.Register("tests", spec)

	f := newFixture(t,
		&seqCmd{seq: map[string][]cmdResult{}},
		&fakeGit{dirty: []bool{true, true, true, true}, heads: []string{"sha1", "sha2"}, branch: "main"},
		prov,
		config.Default(),
		registry,
	)

	report, err := f.ctl.Submit(context.Background(), SubmitOpts{Message: "add api"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !report.Succeeded() {
		t.Fatalf("phase = %s (%s), want succeeded", report.Phase, report.Reason)
	}
	if report.RemoteAttempts != 1 {
		t.Errorf("remote attempts = %d, want 1", report.RemoteAttempts)
	}
	if len(spec.requests) != 1 {
		t.Fatalf("specialist not invoked: %+v", spec.requests)
	}
	if spec.requests[0].Classification.Category != "test_failure" {
		t.Errorf("unexpected classification: %+v", spec.requests[0].Classification)
	}

	var forcePushed bool
	for _, call := range f.git.calls {
		if strings.HasPrefix(call, "push --force-with-lease") {
			forcePushed = true
		}
	}
	if !forcePushed {
		t.Errorf("expected force push after amend, git calls: %v", f.git.calls)
	}
}

func TestSubmit_FlakyFailureRerunsJobs(t *testing.T) {
	prov := &fakeCI{
		polls: [][]ci.Run{
			{{ID: 7, Name: "deps", Status: "completed", Conclusion: "failure"}},
			{{ID: 7, Name: "deps", Status: "completed", Conclusion: "success"}},
		},
		logs: map[int64]string{7: "go: missing go.sum entry for module example.com/lib"},
	}
	// The dependency sync touches nothing: the tree stays clean and the
	// failed jobs are re-run instead of re-pushed.
	f := newFixture(t,
		&seqCmd{seq: map[string][]cmdResult{}},
		&fakeGit{dirty: []bool{true, true, false}, heads: []string{"sha1"}, branch: "main"},
		prov,
		config.Default(),
		nil,
	)

	report, err := f.ctl.Submit(context.Background(), SubmitOpts{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !report.Succeeded() {
		t.Fatalf("phase = %s (%s), want succeeded", report.Phase, report.Reason)
	}
	if len(prov.reruns) != 1 || prov.reruns[0] != 7 {
		t.Errorf("expected rerun of run 7, got %v", prov.reruns)
	}
}

func TestSubmit_RemoteBudgetExhaustedTimesOut(t *testing.T) {
	cfg := config.Default()
	cfg.Greenlight.Budgets.MaxRemoteFixes = 1
	prov := &fakeCI{
		// The run never recovers: every poll reports the same failure.
		polls: [][]ci.Run{
			{{ID: 7, Name: "deps", Status: "completed", Conclusion: "failure"}},
		},
		logs: map[int64]string{7: "go: missing go.sum entry for module example.com/lib"},
	}
	f := newFixture(t,
		&seqCmd{seq: map[string][]cmdResult{}},
		&fakeGit{dirty: []bool{true, true, false}, heads: []string{"sha1"}, branch: "main"},
		prov,
		cfg,
		nil,
	)

	report, err := f.ctl.Submit(context.Background(), SubmitOpts{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if report.Phase != state.PhaseTimedOut {
		t.Fatalf("phase = %s (%s), want timed_out", report.Phase, report.Reason)
	}
	if !strings.Contains(report.Reason, "remote fix budget exhausted") {
		t.Errorf("reason = %q", report.Reason)
	}
	if report.RemoteAttempts != 1 {
		t.Errorf("remote attempts = %d, want 1", report.RemoteAttempts)
	}
	if !strings.Contains(report.NextAction, "dependency_conflict") {
		t.Errorf("next action = %q, want manual-fix hint for the classified failure", report.NextAction)
	}
	if len(prov.reruns) != 1 || prov.reruns[0] != 7 {
		t.Errorf("expected one rerun of run 7 before the budget tripped, got %v", prov.reruns)
	}

	// Terminal records are archived but stay readable.
	st, err := f.store.Get(report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ids := st.SeenRuns["sha1"]; len(ids) != 1 || ids[0] != 7 {
		t.Errorf("seen runs = %v, want [7]", ids)
	}
}

func TestSubmit_RecordsAllObservedRuns(t *testing.T) {
	prov := &fakeCI{
		polls: [][]ci.Run{
			{{ID: 1, Name: "build", Status: "in_progress"}},
			{
				{ID: 1, Name: "build", Status: "completed", Conclusion: "success"},
				{ID: 2, Name: "tests", Status: "in_progress"},
			},
			{
				{ID: 1, Name: "build", Status: "completed", Conclusion: "success"},
				{ID: 2, Name: "tests", Status: "completed", Conclusion: "success"},
			},
		},
	}
	f := newFixture(t,
		&seqCmd{seq: map[string][]cmdResult{}},
		&fakeGit{dirty: []bool{true, true}, heads: []string{"abc123"}, branch: "main"},
		prov,
		config.Default(),
		nil,
	)

	report, err := f.ctl.Submit(context.Background(), SubmitOpts{Message: "add tests"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !report.Succeeded() {
		t.Fatalf("phase = %s (%s), want succeeded", report.Phase, report.Reason)
	}

	// Both runs joined the commit's durable run set, including the one
	// that registered late.
	st, err := f.store.Get(report.ID)
	if err != nil {
		t.Fatal(err)
	}
	ids := st.SeenRuns["abc123"]
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("seen runs = %v, want [1 2]", ids)
	}
}

func TestSubmit_UnclassifiableCIFailureBlocks(t *testing.T) {
	prov := &fakeCI{
		polls: [][]ci.Run{
			{{ID: 7, Name: "ci", Status: "completed", Conclusion: "failure"}},
		},
		logs: map[int64]string{7: "the build gnomes are displeased"},
	}
	f := newFixture(t,
		&seqCmd{seq: map[string][]cmdResult{}},
		&fakeGit{dirty: []bool{true, true}, heads: []string{"sha1"}, branch: "main"},
		prov,
		config.Default(),
		nil,
	)

	report, err := f.ctl.Submit(context.Background(), SubmitOpts{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if report.Phase != state.PhaseBlocked {
		t.Fatalf("phase = %s, want blocked", report.Phase)
	}
	if !strings.Contains(report.Reason, "unclassifiable") {
		t.Errorf("reason = %q", report.Reason)
	}
}

func TestSubmit_CleanTreeRejected(t *testing.T) {
	f := newFixture(t,
		&seqCmd{seq: map[string][]cmdResult{}},
		&fakeGit{branch: "main"}, // never dirty
		greenCI(),
		config.Default(),
		nil,
	)

	if _, err := f.ctl.Submit(context.Background(), SubmitOpts{}); err == nil {
		t.Error("expected error for clean working tree")
	}
}

func TestSubmit_DryRun(t *testing.T) {
	cmd := &seqCmd{seq: map[string][]cmdResult{
		"go vet": {{stdout: "vet: something\nlint failed\n", exit: 1}},
	}}
	git := &fakeGit{branch: "main"}
	f := newFixture(t, cmd, git, greenCI(), config.Default(), nil)

	report, err := f.ctl.Submit(context.Background(), SubmitOpts{DryRun: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(report.Reason, "dry run") {
		t.Errorf("reason = %q", report.Reason)
	}
	if len(report.Issues) == 0 {
		t.Error("expected gate issues in dry run report")
	}
	for _, call := range git.calls {
		if strings.HasPrefix(call, "commit") || strings.HasPrefix(call, "push") {
			t.Errorf("dry run must not touch git history: %v", git.calls)
		}
	}
	live, err := f.store.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 0 {
		t.Errorf("dry run must not create orchestrations: %+v", live)
	}
}

func TestResume_TerminalReturnsReport(t *testing.T) {
	f := newFixture(t,
		&seqCmd{seq: map[string][]cmdResult{}},
		&fakeGit{branch: "main"},
		greenCI(),
		config.Default(),
		nil,
	)

	st, err := f.store.Create(state.CreateOpts{Workdir: "/tmp/x", Branch: "main", MaxLocal: 10, MaxRemote: 5})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Update(st.ID, func(o *state.OrchestrationState) {
		o.MoveTo(state.PhaseSucceeded, "all CI runs green")
		o.TerminalReason = "all CI runs green"
	}); err != nil {
		t.Fatal(err)
	}

	report, err := f.ctl.Resume(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !report.Succeeded() {
		t.Errorf("phase = %s, want succeeded", report.Phase)
	}
}

func TestResume_FromMonitoringRunsToCompletion(t *testing.T) {
	f := newFixture(t,
		&seqCmd{seq: map[string][]cmdResult{}},
		&fakeGit{branch: "main"},
		greenCI(),
		config.Default(),
		nil,
	)

	// Simulate a crash after the push landed: the record is parked in
	// monitoring with a commit but no verdict.
	st, err := f.store.Create(state.CreateOpts{Workdir: "/tmp/x", Branch: "main", MaxLocal: 10, MaxRemote: 5})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Update(st.ID, func(o *state.OrchestrationState) {
		o.MoveTo(state.PhaseCommitting, "gate green, committing")
		o.MoveTo(state.PhaseMonitoring, "watching CI for abc123")
		o.CommitSHA = "abc123"
		o.CommitMessage = "add endpoint"
	}); err != nil {
		t.Fatal(err)
	}

	report, err := f.ctl.Resume(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !report.Succeeded() {
		t.Fatalf("phase = %s (%s), want succeeded", report.Phase, report.Reason)
	}

	// Resume picks up at monitoring: no gate checks re-run, nothing
	// committed or pushed a second time.
	if len(f.cmd.calls) != 0 {
		t.Errorf("unexpected check commands during resume: %v", f.cmd.calls)
	}
	for _, call := range f.git.calls {
		if strings.Contains(call, "commit") || strings.Contains(call, "push") {
			t.Errorf("unexpected git mutation during resume: %q", call)
		}
	}

	// The terminal record is archived with its full history intact.
	live, err := f.store.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 0 {
		t.Errorf("expected no live orchestrations after resume, got %d", len(live))
	}
	got, err := f.store.Get(st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Transitions[0].To != state.PhaseCommitting {
		t.Errorf("earliest transition = %+v, want the pre-crash move to committing", got.Transitions[0])
	}
	if ids := got.SeenRuns["abc123"]; len(ids) != 1 || ids[0] != 1 {
		t.Errorf("seen runs = %v, want [1]", ids)
	}
}

type stubSpecialist struct {
	requests []dispatch.Request
	resp     *dispatch.Response
}

func (s *stubSpecialist) Remediate(ctx context.Context, req dispatch.Request) (*dispatch.Response, error) {
	s.requests = append(s.requests, req)
	return s.resp, nil
}
